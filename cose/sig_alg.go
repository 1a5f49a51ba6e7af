// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
)

// SignatureAlgorithm is the ECDSA/RSASSA-PKCS1-v1_5/RSASSA-PSS signature
// type and hash.
type SignatureAlgorithm int64

/*
ECDSA Algorithm Values

	+-------+-------+---------+------------------+
	| Name  | Value | Hash    | Description      |
	+-------+-------+---------+------------------+
	| ES256 | -7    | SHA-256 | ECDSA w/ SHA-256 |
	| ES384 | -35   | SHA-384 | ECDSA w/ SHA-384 |
	+-------+-------+---------+------------------+
*/
const (
	ES256Alg SignatureAlgorithm = -7
	ES384Alg SignatureAlgorithm = -35
)

/*
RSASSA-PKCS1-v1_5 Algorithm Values

	+-------+-------+---------+------------------------------+
	| Name  | Value | Hash    | Description                  |
	+-------+-------+---------+------------------------------+
	| RS256 | -257  | SHA-256 | RSASSA-PKCS1-v1_5 w/ SHA-256 |
	| RS384 | -258  | SHA-384 | RSASSA-PKCS1-v1_5 w/ SHA-384 |
	+-------+-------+---------+------------------------------+
*/
const (
	RS256Alg SignatureAlgorithm = -257
	RS384Alg SignatureAlgorithm = -258
)

/*
RSASSA-PSS Algorithm Values from RFC 8230

	+-------+-------+---------+-------------+-----------------------+
	| Name  | Value | Hash    | Salt Length | Description           |
	+-------+-------+---------+-------------+-----------------------+
	| PS256 | -37   | SHA-256 | 32          | RSASSA-PSS w/ SHA-256 |
	| PS384 | -38   | SHA-384 | 48          | RSASSA-PSS w/ SHA-384 |
	+-------+-------+---------+-------------+-----------------------+
*/
const (
	PS256Alg SignatureAlgorithm = -37
	PS384Alg SignatureAlgorithm = -38
)

func (alg SignatureAlgorithm) String() string {
	switch alg {
	case ES256Alg:
		return "ES256"
	case ES384Alg:
		return "ES384"
	case RS256Alg:
		return "RS256"
	case RS384Alg:
		return "RS384"
	case PS256Alg:
		return "PS256"
	case PS384Alg:
		return "PS384"
	default:
		return fmt.Sprintf("SignatureAlgorithm(%d)", int64(alg))
	}
}

// HashFunc implements crypto.SignerOpts. Unsupported algorithms return the
// zero crypto.Hash.
func (alg SignatureAlgorithm) HashFunc() crypto.Hash {
	switch alg {
	case ES256Alg, RS256Alg, PS256Alg:
		return crypto.SHA256
	case ES384Alg, RS384Alg, PS384Alg:
		return crypto.SHA384
	default:
		return 0
	}
}

// signerOpts returns the options to pass to crypto.Signer.Sign.
func (alg SignatureAlgorithm) signerOpts() crypto.SignerOpts {
	switch alg {
	case PS256Alg, PS384Alg:
		return &rsa.PSSOptions{
			SaltLength: rsa.PSSSaltLengthEqualsHash,
			Hash:       alg.HashFunc(),
		}
	default:
		return alg.HashFunc()
	}
}

// SignatureAlgorithmFor returns the COSE algorithm for a public key. For RSA
// keys, opts selects between PKCS1 v1.5 and PSS (*rsa.PSSOptions) and the
// hash; a nil opts chooses PKCS1 v1.5 with a hash sized to the key.
func SignatureAlgorithmFor(pub crypto.PublicKey, opts crypto.SignerOpts) (SignatureAlgorithm, error) {
	switch pub := pub.(type) {
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return ES256Alg, nil
		case elliptic.P384():
			return ES384Alg, nil
		default:
			return 0, fmt.Errorf("unsupported elliptic curve: %s", pub.Curve.Params().Name)
		}

	case *rsa.PublicKey:
		hash := crypto.SHA256
		if pub.Size() >= 3072/8 {
			hash = crypto.SHA384
		}
		if opts != nil {
			hash = opts.HashFunc()
		}
		_, pss := opts.(*rsa.PSSOptions)
		switch {
		case hash == crypto.SHA256 && pss:
			return PS256Alg, nil
		case hash == crypto.SHA384 && pss:
			return PS384Alg, nil
		case hash == crypto.SHA256:
			return RS256Alg, nil
		case hash == crypto.SHA384:
			return RS384Alg, nil
		default:
			return 0, fmt.Errorf("unsupported RSA signature hash: %s", hash)
		}

	default:
		return 0, fmt.Errorf("unsupported key type: %T", pub)
	}
}
