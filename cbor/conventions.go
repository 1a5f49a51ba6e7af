// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor

import (
	"crypto/x509"
	"fmt"
)

// Bstr marshals and unmarshals CBOR data that is a byte string holding the
// CBOR encoding of a value of type T.
//
//	CDDL: bstr .cbor T
//
// The encoded bytes, not a decoded value, are what a Bstr holds. Once set by
// NewBstr or by unmarshaling, the bytes are emitted unchanged, so hashes and
// MACs computed over them stay valid across any number of decode/encode
// cycles, even when the producer did not use deterministic encoding.
type Bstr[T any] struct {
	raw []byte
}

// NewBstr encodes v and wraps the result.
func NewBstr[T any](v T) (*Bstr[T], error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return &Bstr[T]{raw: data}, nil
}

// Bytes returns the wrapped CBOR encoding. The slice must not be modified.
func (b Bstr[T]) Bytes() []byte { return b.raw }

// Value decodes the wrapped bytes. A new value is decoded on every call, so
// modifying the result never changes the Bstr.
func (b Bstr[T]) Value() (T, error) {
	var v T
	if len(b.raw) == 0 {
		return v, nil
	}
	if err := Unmarshal(b.raw, &v); err != nil {
		return v, fmt.Errorf("error decoding bstr .cbor %T: %w", v, err)
	}
	return v, nil
}

// MarshalCBOR implements Marshaler.
func (b Bstr[T]) MarshalCBOR() ([]byte, error) { return Marshal(b.raw) }

// UnmarshalCBOR implements Unmarshaler. The contents are validated by
// decoding them as T.
func (b *Bstr[T]) UnmarshalCBOR(p []byte) error {
	var data []byte
	if err := Unmarshal(p, &data); err != nil {
		return err
	}
	if len(data) > 0 {
		var v T
		if err := Unmarshal(data, &v); err != nil {
			return fmt.Errorf("invalid bstr .cbor %T: %w", v, err)
		}
	}
	b.raw = data
	return nil
}

// X509Certificate is a newtype for x509.Certificate implementing proper CBOR
// encoding, a byte string of the certificate's DER.
type X509Certificate x509.Certificate

// MarshalCBOR implements Marshaler.
func (c *X509Certificate) MarshalCBOR() ([]byte, error) {
	if c == nil {
		return Marshal(nil)
	}
	return Marshal(c.Raw)
}

// UnmarshalCBOR implements Unmarshaler.
func (c *X509Certificate) UnmarshalCBOR(data []byte) error {
	if c == nil {
		return fmt.Errorf("cannot unmarshal into nil pointer")
	}
	var der []byte
	if err := Unmarshal(data, &der); err != nil {
		return err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return fmt.Errorf("error parsing x509 certificate DER-encoded bytes: %w", err)
	}
	*c = X509Certificate(*cert)
	return nil
}
