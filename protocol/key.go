// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package protocol

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

// KeyType is an FDO pkType enum.
//
//	pkType = (
//	    RSA2048RESTR: 1, ;; RSA 2048 with restricted key/exponent (PKCS1 1.5 encoding)
//	    RSAPKCS:      5, ;; RSA key, PKCS1, v1.5
//	    RSAPSS:       6, ;; RSA key, PSS
//	    SECP256R1:    10, ;; ECDSA secp256r1 = NIST-P-256 = prime256v1
//	    SECP384R1:    11, ;; ECDSA secp384r1 = NIST-P-384
//	)
type KeyType uint8

// Public key types
const (
	Rsa2048RestrKeyType KeyType = 1
	RsaPkcsKeyType      KeyType = 5
	RsaPssKeyType       KeyType = 6
	Secp256r1KeyType    KeyType = 10
	Secp384r1KeyType    KeyType = 11
)

func (typ KeyType) String() string {
	switch typ {
	case Rsa2048RestrKeyType:
		return "RSA2048RESTR"
	case RsaPkcsKeyType:
		return "RSAPKCS"
	case RsaPssKeyType:
		return "RSAPSS"
	case Secp256r1KeyType:
		return "SECP256R1"
	case Secp384r1KeyType:
		return "SECP384R1"
	default:
		return fmt.Sprintf("KeyType(%d)", uint8(typ))
	}
}

// ParseKeyType parses the names returned by KeyType.String, ignoring case.
func ParseKeyType(name string) (KeyType, error) {
	switch strings.ToUpper(name) {
	case "RSA2048RESTR":
		return Rsa2048RestrKeyType, nil
	case "RSAPKCS":
		return RsaPkcsKeyType, nil
	case "RSAPSS":
		return RsaPssKeyType, nil
	case "SECP256R1":
		return Secp256r1KeyType, nil
	case "SECP384R1":
		return Secp384r1KeyType, nil
	default:
		return 0, fmt.Errorf("unknown key type: %s", name)
	}
}

// KeyTypeOf returns the FDO key type of a public key. RSA keys are always
// RSAPKCS; callers wanting RSAPSS must choose it explicitly.
func KeyTypeOf(pub crypto.PublicKey) (KeyType, error) {
	switch pub := pub.(type) {
	case *ecdsa.PublicKey:
		switch pub.Curve {
		case elliptic.P256():
			return Secp256r1KeyType, nil
		case elliptic.P384():
			return Secp384r1KeyType, nil
		default:
			return 0, fmt.Errorf("unsupported elliptic curve: %s", pub.Curve.Params().Name)
		}
	case *rsa.PublicKey:
		switch pub.Size() {
		case 2048 / 8, 3072 / 8:
			return RsaPkcsKeyType, nil
		default:
			return 0, fmt.Errorf("unsupported RSA key size: %d bits", pub.Size()*8)
		}
	default:
		return 0, fmt.Errorf("unsupported public key type: %T", pub)
	}
}

// KeyEncoding is an FDO pkEnc enum.
//
//	pkEnc = (
//	    Crypto:       0      ;; applies to crypto with its own encoding (e.g., Intel® EPID)
//	    X509:         1,     ;; X509 DER encoding, applies to RSA and ECDSA
//	    X5CHAIN:      2,     ;; COSE x5chain, an ordered chain of X.509 certificates
//	    COSEKEY:      3      ;; COSE key encoding
//	)
type KeyEncoding uint8

// Public key encodings
const (
	CryptoKeyEnc  KeyEncoding = 0
	X509KeyEnc    KeyEncoding = 1
	X5ChainKeyEnc KeyEncoding = 2
	CoseKeyEnc    KeyEncoding = 3
)

func (enc KeyEncoding) String() string {
	switch enc {
	case CryptoKeyEnc:
		return "Crypto"
	case X509KeyEnc:
		return "X509"
	case X5ChainKeyEnc:
		return "X5CHAIN"
	case CoseKeyEnc:
		return "COSEKEY"
	default:
		return fmt.Sprintf("KeyEncoding(%d)", uint8(enc))
	}
}

// PublicKeyOrChain is a constraint for supported FDO PublicKey types.
type PublicKeyOrChain interface {
	*ecdsa.PublicKey | *rsa.PublicKey | []*x509.Certificate
}

// PublicKey encodes public key information in FDO vouchers.
//
//	PublicKey = [
//	    pkType,
//	    pkEnc,
//	    pkBody
//	]
type PublicKey struct {
	_        struct{} `cbor:",toarray"`
	Type     KeyType
	Encoding KeyEncoding
	Body     cbor.RawBytes

	key   crypto.PublicKey
	chain []*x509.Certificate
	err   error
}

// NewPublicKey creates a public key structure encoded as X509 for a bare key
// or X5CHAIN for a certificate chain.
func NewPublicKey[T PublicKeyOrChain](typ KeyType, pub T) (*PublicKey, error) {
	switch pub := any(pub).(type) {
	case []*x509.Certificate:
		if len(pub) == 0 {
			return nil, errors.New("X5CHAIN key cannot be an empty certificate chain")
		}
		chain := make([]*cbor.X509Certificate, len(pub))
		for i, cert := range pub {
			chain[i] = (*cbor.X509Certificate)(cert)
		}
		body, err := cbor.Marshal(chain)
		if err != nil {
			return nil, fmt.Errorf("X5Chain encoding: %w", err)
		}
		return &PublicKey{Type: typ, Encoding: X5ChainKeyEnc, Body: body}, nil

	case *ecdsa.PublicKey, *rsa.PublicKey:
		der, err := x509.MarshalPKIXPublicKey(pub)
		if err != nil {
			return nil, fmt.Errorf("X509 encoding: %w", err)
		}
		body, err := cbor.Marshal(der)
		if err != nil {
			return nil, fmt.Errorf("X509 encoding: %w", err)
		}
		return &PublicKey{Type: typ, Encoding: X509KeyEnc, Body: body}, nil

	default:
		return nil, fmt.Errorf("unsupported public key: must be *ecdsa.PublicKey, *rsa.PublicKey, or []*x509.Certificate")
	}
}

// Public returns the public key parsed from the X509 or X5CHAIN encoding.
func (pub *PublicKey) Public() (crypto.PublicKey, error) {
	if pub.key == nil && pub.err == nil {
		pub.err = pub.parse()
	}
	return pub.key, pub.err
}

// Chain returns the certificate chain of the public key. If the key encoding
// is not X5CHAIN then the certificate slice will be nil.
func (pub *PublicKey) Chain() ([]*x509.Certificate, error) {
	if pub.key == nil && pub.err == nil {
		pub.err = pub.parse()
	}
	return pub.chain, pub.err
}

func (pub *PublicKey) parse() error {
	var key crypto.PublicKey
	switch pub.Encoding {
	case X509KeyEnc:
		var der []byte
		if err := cbor.Unmarshal(pub.Body, &der); err != nil {
			return fmt.Errorf("X509 public key body: %w", err)
		}
		parsed, err := x509.ParsePKIXPublicKey(der)
		if err != nil {
			return err
		}
		key = parsed

	case X5ChainKeyEnc:
		var certs []*cbor.X509Certificate
		if err := cbor.Unmarshal(pub.Body, &certs); err != nil {
			return fmt.Errorf("X5CHAIN public key body: %w", err)
		}
		if len(certs) == 0 {
			return errors.New("X5CHAIN key cannot be an empty certificate chain")
		}
		pub.chain = make([]*x509.Certificate, len(certs))
		for i, cert := range certs {
			pub.chain[i] = (*x509.Certificate)(cert)
		}
		key = pub.chain[0].PublicKey

	default:
		return fmt.Errorf("unsupported key encoding: %s", pub.Encoding)
	}

	switch pub.Type {
	case Secp256r1KeyType, Secp384r1KeyType:
		if _, ok := key.(*ecdsa.PublicKey); !ok {
			return fmt.Errorf("%s public key must be an ECDSA public key (got %T)", pub.Type, key)
		}
	case RsaPssKeyType, RsaPkcsKeyType, Rsa2048RestrKeyType:
		if _, ok := key.(*rsa.PublicKey); !ok {
			return fmt.Errorf("%s public key must be an RSA public key (got %T)", pub.Type, key)
		}
	default:
		return fmt.Errorf("unsupported key type: %s", pub.Type)
	}
	pub.key = key
	return nil
}

// String describes the key without printing its body.
func (pub PublicKey) String() string {
	key, err := pub.Public()
	if err != nil {
		return fmt.Sprintf("%s %s <invalid: %v>", pub.Type, pub.Encoding, err)
	}
	s := fmt.Sprintf("%s %s %s", pub.Type, pub.Encoding, DescribeKey(key))
	if len(pub.chain) > 0 {
		s += fmt.Sprintf(" (subject %q)", pub.chain[0].Subject.String())
	}
	return s
}

// DescribeKey renders a public key's algorithm and the SHA-256 fingerprint of
// its PKIX encoding.
func DescribeKey(key crypto.PublicKey) string {
	var fingerprint string
	if der, err := x509.MarshalPKIXPublicKey(key); err != nil {
		fingerprint = "<" + err.Error() + ">"
	} else {
		sum := sha256.Sum256(der)
		fingerprint = hex.EncodeToString(sum[:])
	}

	switch key := key.(type) {
	case *ecdsa.PublicKey:
		return fmt.Sprintf("ECDSA %s fingerprint %s", key.Curve.Params().Name, fingerprint)
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA%d fingerprint %s", key.Size()*8, fingerprint)
	default:
		return fmt.Sprintf("%T fingerprint %s", key, fingerprint)
	}
}
