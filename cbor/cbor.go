// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package cbor configures the RFC 8949 Concise Binary Object Representation
// codec used for all FDO structures and adds the conventions FDO and COSE rely
// on (byte-wrapped CBOR, X.509 certificates as byte strings).
//
// Encoding is deterministic: map keys are sorted in bytewise lexicographic
// order of their encodings and the shortest form is used for every integer
// and length. Go structs that represent CDDL arrays must carry the
// `cbor:",toarray"` struct tag.
//
// Decoding accepts any well-formed input. Values whose exact bytes matter for
// hashing (such as the voucher header) must be held in a [Bstr] or as
// [RawBytes] so that they are never re-encoded.
package cbor

import (
	"io"

	fxcbor "github.com/fxamacker/cbor/v2"
)

// RawBytes is encoded CBOR that is passed through unchanged in either
// direction. An empty RawBytes encodes as null.
type RawBytes = fxcbor.RawMessage

// Tag is a CBOR tag with an arbitrary Go value as content.
type Tag = fxcbor.Tag

// RawTag is a CBOR tag with undecoded content.
type RawTag = fxcbor.RawTag

// Marshaler is implemented by types that encode themselves to CBOR.
type Marshaler = fxcbor.Marshaler

// Unmarshaler is implemented by types that decode themselves from CBOR.
type Unmarshaler = fxcbor.Unmarshaler

// Encoder writes CBOR items to an output stream.
type Encoder = fxcbor.Encoder

// Decoder reads CBOR items from an input stream.
type Decoder = fxcbor.Decoder

var (
	encMode fxcbor.EncMode
	decMode fxcbor.DecMode
)

func init() {
	encOpts := fxcbor.CoreDetEncOptions()
	// FDO has no use for nil versus empty distinctions on byte strings,
	// arrays, or maps, so nil slices and maps encode as empty containers.
	encOpts.NilContainers = fxcbor.NilContainerAsEmpty
	em, err := encOpts.EncMode()
	if err != nil {
		panic("invalid CBOR encoding options: " + err.Error())
	}

	dm, err := fxcbor.DecOptions{
		DupMapKey:        fxcbor.DupMapKeyEnforcedAPF,
		IndefLength:      fxcbor.IndefLengthAllowed,
		MaxArrayElements: 1 << 20,
	}.DecMode()
	if err != nil {
		panic("invalid CBOR decoding options: " + err.Error())
	}

	encMode, decMode = em, dm
}

// Marshal encodes v as deterministic CBOR.
func Marshal(v any) ([]byte, error) { return encMode.Marshal(v) }

// Unmarshal decodes exactly one CBOR item from data into v. Trailing bytes
// are an error.
func Unmarshal(data []byte, v any) error { return decMode.Unmarshal(data, v) }

// NewEncoder returns an Encoder writing deterministic CBOR to w.
func NewEncoder(w io.Writer) *Encoder { return encMode.NewEncoder(w) }

// NewDecoder returns a Decoder reading CBOR items from r.
func NewDecoder(r io.Reader) *Decoder { return decMode.NewDecoder(r) }

// Wellformed checks that data is exactly one well-formed CBOR item.
func Wellformed(data []byte) error { return decMode.Wellformed(data) }
