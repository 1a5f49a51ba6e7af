// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"

	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

func signOptsFor(key crypto.Signer, usePSS bool) (crypto.SignerOpts, error) {
	var opts crypto.SignerOpts
	if rsaPub, ok := key.Public().(*rsa.PublicKey); ok {
		switch rsaPub.Size() {
		case 2048 / 8:
			opts = crypto.SHA256
		case 3072 / 8:
			opts = crypto.SHA384
		default:
			return nil, fmt.Errorf("unsupported RSA key size: %d bits", rsaPub.Size()*8)
		}

		if usePSS {
			opts = &rsa.PSSOptions{
				SaltLength: rsa.PSSSaltLengthEqualsHash,
				Hash:       opts.(crypto.Hash),
			}
		}
	}
	return opts, nil
}

// sameKeyKind reports whether two public keys share an algorithm and a curve
// or modulus size. Every key in a voucher must match the manufacturer key
// this way, so that a device with limited crypto can verify all signatures.
func sameKeyKind(a, b crypto.PublicKey) bool {
	switch a := a.(type) {
	case *ecdsa.PublicKey:
		b, ok := b.(*ecdsa.PublicKey)
		return ok && a.Curve == b.Curve
	case *rsa.PublicKey:
		b, ok := b.(*rsa.PublicKey)
		return ok && a.Size() == b.Size()
	default:
		return false
	}
}

// hashAlgFor determines the appropriate hash algorithm to use based on device
// and owner attestation key types. Recommended configurations have matching
// strengths between device and owner attestation keys and therefore the RSA
// key size should match the device public key or should be 2048 for
// secp256r1 and 3072 for secp384r1. A nil device key (no device certificate
// chain) selects by the owner key alone.
func hashAlgFor(devicePubKey, ownerPubKey crypto.PublicKey) (protocol.HashAlg, error) {
	ownerSize, err := hashSizeForPubKey(ownerPubKey)
	if err != nil {
		return 0, fmt.Errorf("owner attestation key: %w", err)
	}
	size := ownerSize
	if devicePubKey != nil {
		deviceSize, err := hashSizeForPubKey(devicePubKey)
		if err != nil {
			return 0, fmt.Errorf("device attestation key: %w", err)
		}
		size = min(deviceSize, ownerSize)
	}
	switch size {
	case 256:
		return protocol.Sha256Hash, nil
	case 384:
		return protocol.Sha384Hash, nil
	default:
		return 0, fmt.Errorf("unsupported hash size: %d", size)
	}
}

func hashSizeForPubKey(pubKey crypto.PublicKey) (int, error) {
	switch key := pubKey.(type) {
	case *ecdsa.PublicKey:
		switch curve := key.Curve; curve {
		case elliptic.P256():
			return 256, nil
		case elliptic.P384():
			return 384, nil
		default:
			return 0, fmt.Errorf("unsupported elliptic curve: %s", curve.Params().Name)
		}

	case *rsa.PublicKey:
		switch key.Size() {
		case 2048 / 8:
			return 256, nil
		case 3072 / 8:
			return 384, nil
		default:
			return 0, fmt.Errorf("unsupported RSA key size: %d bits", key.Size()*8)
		}

	default:
		return 0, fmt.Errorf("unsupported key type: %T", key)
	}
}
