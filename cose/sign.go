// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package cose implements the COSE_Sign1 structure of RFC 8152 for the
// signature algorithms FDO permits.
package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

// Sign1TagNum is the CBOR tag of a COSE_Sign1 message.
const Sign1TagNum = 18

// Header labels
const (
	AlgLabel int64 = 1
)

// HeaderMap is a COSE header map with integer labels. Values are kept encoded.
type HeaderMap map[int64]cbor.RawBytes

// Algorithm returns the signature algorithm of the header, if present.
func (hm HeaderMap) Algorithm() (SignatureAlgorithm, bool, error) {
	raw, ok := hm[AlgLabel]
	if !ok {
		return 0, false, nil
	}
	var alg SignatureAlgorithm
	if err := cbor.Unmarshal(raw, &alg); err != nil {
		return 0, true, fmt.Errorf("invalid alg header: %w", err)
	}
	return alg, true, nil
}

// Sign1 is a COSE_Sign1 signature structure with a single signer.
//
//	COSE_Sign1 = [
//	    Headers,
//	    payload : bstr / nil,
//	    signature : bstr
//	]
type Sign1[T any] struct {
	_           struct{} `cbor:",toarray"`
	Protected   cbor.Bstr[HeaderMap]
	Unprotected HeaderMap
	Payload     *cbor.Bstr[T]
	Signature   []byte
}

// Tag is a helper for converting to a tag value.
func (s1 Sign1[T]) Tag() *Sign1Tag[T] { return (*Sign1Tag[T])(&s1) }

// Sign1Tag encodes to a CBOR tag (18) while ensuring the right tag number.
type Sign1Tag[T any] Sign1[T]

// Untag is a helper for accessing the tag value.
func (t Sign1Tag[T]) Untag() *Sign1[T] { return (*Sign1[T])(&t) }

// MarshalCBOR implements cbor.Marshaler.
func (t Sign1Tag[T]) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(cbor.Tag{Number: Sign1TagNum, Content: Sign1[T](t)})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (t *Sign1Tag[T]) UnmarshalCBOR(data []byte) error {
	var tag cbor.RawTag
	if err := cbor.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("expected COSE_Sign1 tag: %w", err)
	}
	if tag.Number != Sign1TagNum {
		return fmt.Errorf("expected COSE_Sign1 tag %d, got %d", Sign1TagNum, tag.Number)
	}
	var s1 Sign1[T]
	if err := cbor.Unmarshal(tag.Content, &s1); err != nil {
		return err
	}
	*t = Sign1Tag[T](s1)
	return nil
}

// Sign sets the protected alg header and signs the payload with key. For RSA
// keys, opts selects PKCS1 v1.5 (crypto.Hash) or PSS (*rsa.PSSOptions). ECDSA
// signatures are encoded as r||s per RFC 8152 section 8.1.
func (s1 *Sign1[T]) Sign(rand io.Reader, key crypto.Signer, opts crypto.SignerOpts) error {
	if s1.Payload == nil {
		return errors.New("cannot sign a nil payload")
	}
	alg, err := SignatureAlgorithmFor(key.Public(), opts)
	if err != nil {
		return err
	}

	algBytes, err := cbor.Marshal(alg)
	if err != nil {
		return err
	}
	protected, err := cbor.NewBstr(HeaderMap{AlgLabel: algBytes})
	if err != nil {
		return fmt.Errorf("error encoding protected header: %w", err)
	}
	s1.Protected = *protected

	digest, err := s1.digest(alg)
	if err != nil {
		return err
	}
	sig, err := key.Sign(rand, digest, alg.signerOpts())
	if err != nil {
		return fmt.Errorf("error signing: %w", err)
	}
	if ecPub, ok := key.Public().(*ecdsa.PublicKey); ok {
		if sig, err = asn1ToRFC8152(sig, (ecPub.Curve.Params().BitSize+7)/8); err != nil {
			return err
		}
	}
	s1.Signature = sig
	return nil
}

// Verify checks the signature against pub. A signature that does not match
// returns false and a nil error; malformed structures return an error.
func (s1 *Sign1[T]) Verify(pub crypto.PublicKey) (bool, error) {
	if s1.Payload == nil {
		return false, errors.New("cannot verify a nil payload")
	}
	headers, err := s1.Protected.Value()
	if err != nil {
		return false, fmt.Errorf("error decoding protected header: %w", err)
	}
	alg, ok, err := headers.Algorithm()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, errors.New("protected header is missing alg")
	}
	digest, err := s1.digest(alg)
	if err != nil {
		return false, err
	}

	switch pub := pub.(type) {
	case *ecdsa.PublicKey:
		if alg != ES256Alg && alg != ES384Alg {
			return false, fmt.Errorf("%s cannot be verified with an ECDSA key", alg)
		}
		size := (pub.Curve.Params().BitSize + 7) / 8
		if len(s1.Signature) != 2*size {
			return false, nil
		}
		r := new(big.Int).SetBytes(s1.Signature[:size])
		s := new(big.Int).SetBytes(s1.Signature[size:])
		return ecdsa.Verify(pub, digest, r, s), nil

	case *rsa.PublicKey:
		switch alg {
		case RS256Alg, RS384Alg:
			return rsa.VerifyPKCS1v15(pub, alg.HashFunc(), digest, s1.Signature) == nil, nil
		case PS256Alg, PS384Alg:
			opts := alg.signerOpts().(*rsa.PSSOptions)
			return rsa.VerifyPSS(pub, alg.HashFunc(), digest, s1.Signature, opts) == nil, nil
		default:
			return false, fmt.Errorf("%s cannot be verified with an RSA key", alg)
		}

	default:
		return false, fmt.Errorf("unsupported key type: %T", pub)
	}
}

// digest hashes the Sig_structure for the given algorithm.
//
//	Sig_structure = [
//	    context : "Signature1",
//	    body_protected : empty_or_serialized_map,
//	    external_aad : bstr,
//	    payload : bstr
//	]
func (s1 *Sign1[T]) digest(alg SignatureAlgorithm) ([]byte, error) {
	hash := alg.HashFunc()
	if hash == 0 || !hash.Available() {
		return nil, fmt.Errorf("unsupported signature algorithm: %s", alg)
	}
	tbs, err := cbor.Marshal([]any{"Signature1", s1.Protected.Bytes(), []byte{}, s1.Payload.Bytes()})
	if err != nil {
		return nil, fmt.Errorf("error encoding Sig_structure: %w", err)
	}
	h := hash.New()
	_, _ = h.Write(tbs)
	return h.Sum(nil), nil
}

// asn1ToRFC8152 converts an ASN.1 DER ECDSA signature, as returned by any
// crypto.Signer, to fixed width big-endian r||s.
func asn1ToRFC8152(der []byte, size int) ([]byte, error) {
	var (
		r, s  = new(big.Int), new(big.Int)
		inner cryptobyte.String
	)
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, cbasn1.SEQUENCE) || !input.Empty() ||
		!inner.ReadASN1Integer(r) || !inner.ReadASN1Integer(s) || !inner.Empty() {
		return nil, errors.New("invalid ASN.1 ECDSA signature")
	}
	if r.Sign() <= 0 || s.Sign() <= 0 || r.BitLen() > size*8 || s.BitLen() > size*8 {
		return nil, errors.New("ECDSA signature values out of range")
	}
	sig := make([]byte, 2*size)
	r.FillBytes(sig[:size])
	s.FillBytes(sig[size:])
	return sig, nil
}
