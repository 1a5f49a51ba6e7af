// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// HmacSecretSize is the size of the device HMAC secret in bytes.
const HmacSecretSize = 32

// Compute an hmac over already encoded data.
func hmacHash(h hash.Hash, data []byte) (protocol.Hmac, error) {
	var mac protocol.Hmac
	switch size := h.Size(); size {
	case sha256.Size:
		mac.Algorithm = protocol.HmacSha256Hash
	case sha512.Size384:
		mac.Algorithm = protocol.HmacSha384Hash
	default:
		return protocol.Hmac{}, fmt.Errorf("unsupported hmac size: %d", size)
	}

	h.Reset()
	_, _ = h.Write(data)
	mac.Value = h.Sum(nil)
	return mac, nil
}

// hmacVerify checks that the given HMAC matches data. If the cryptographic
// portion of verification fails, then ErrCryptoVerifyFailed is wrapped.
func hmacVerify(h256, h384 hash.Hash, mac protocol.Hmac, data []byte) error {
	var h hash.Hash
	switch mac.Algorithm {
	case protocol.HmacSha256Hash:
		h = h256
	case protocol.HmacSha384Hash:
		h = h384
	}
	if h == nil {
		return fmt.Errorf("unsupported hmac algorithm: %s", mac.Algorithm)
	}

	h.Reset()
	_, _ = h.Write(data)
	if !hmac.Equal(mac.Value, h.Sum(nil)) {
		return fmt.Errorf("%w: hmac did not match", ErrCryptoVerifyFailed)
	}
	return nil
}

// hashOf digests the concatenation of parts.
func hashOf(alg protocol.HashAlg, parts ...[]byte) (protocol.Hash, error) {
	digest, err := alg.New()
	if err != nil {
		return protocol.Hash{}, err
	}
	for _, part := range parts {
		_, _ = digest.Write(part)
	}
	return protocol.Hash{Algorithm: alg, Value: digest.Sum(nil)}, nil
}
