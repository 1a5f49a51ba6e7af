// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package blob

import (
	"crypto/hmac"
	"fmt"
	"hash"

	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// Hmac is an in-memory HMAC secret. It never formats its contents.
type Hmac []byte

// NewHmac returns a keyed hash using the given HMAC algorithm.
func (h Hmac) NewHmac(alg protocol.HashAlg) (hash.Hash, error) {
	switch alg {
	case protocol.HmacSha256Hash, protocol.HmacSha384Hash:
		return hmac.New(alg.HashFunc().New, []byte(h)), nil
	default:
		return nil, fmt.Errorf("unsupported hmac algorithm: %s", alg)
	}
}

func (h Hmac) String() string { return redacted }

// GoString keeps %#v from printing the secret.
func (h Hmac) GoString() string { return redacted }

const redacted = "<secret>"
