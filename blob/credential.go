// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package blob implements a device credential that may be stored to disk as a
// marshaled blob.
package blob

import (
	"crypto"
	"fmt"
	"hash"
	"io"
	"strings"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// DeviceCredential contains all device state, including both public and private
// parts of keys and secrets.
//
//	DeviceCredential = [
//	    Active:     bool,
//	    Credential: DCTPM,
//	    HmacSecret: bstr,
//	    PrivateKey: bstr ;; PKCS#8 DER
//	]
type DeviceCredential struct {
	_                struct{} `cbor:",toarray"`
	Active           bool
	DeviceCredential fdo.DeviceCredential

	// Secrets that would otherwise be stored inside a TPM or other enclave.
	HmacSecret Hmac
	PrivateKey Pkcs8Key
}

// NewDeviceCredential assembles the credential of a newly initialized device.
// It is active, carries the current protocol version, and trusts no owner
// key yet.
func NewDeviceCredential(deviceInfo string, guid protocol.GUID, rvInfo [][]protocol.RvInstruction, key crypto.Signer, hmacSecret []byte) (*DeviceCredential, error) {
	if len(hmacSecret) != fdo.HmacSecretSize {
		return nil, fmt.Errorf("hmac secret must be %d bytes, got %d", fdo.HmacSecretSize, len(hmacSecret))
	}
	pkcs8 := Pkcs8Key{Signer: key}
	if !pkcs8.IsValid() {
		return nil, fmt.Errorf("private key is an invalid type or curve/size for FDO device credential usage")
	}
	return &DeviceCredential{
		Active: true,
		DeviceCredential: fdo.DeviceCredential{
			Version:       protocol.Version,
			DeviceInfo:    deviceInfo,
			GUID:          guid,
			RvInfo:        rvInfo,
			PublicKeyHash: protocol.Hash{Algorithm: protocol.Sha384Hash, Value: []byte{}},
		},
		HmacSecret: Hmac(hmacSecret),
		PrivateKey: pkcs8,
	}, nil
}

// String renders every field except the secrets, which are shown as
// "<secret>". The device key is described by its public half only.
func (dc DeviceCredential) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Active: %t\n", dc.Active)
	fmt.Fprintf(&b, "Protocol Version: %d\n", dc.DeviceCredential.Version)
	fmt.Fprintf(&b, "Device Info: %s\n", dc.DeviceCredential.DeviceInfo)
	fmt.Fprintf(&b, "Device GUID: %s\n", dc.DeviceCredential.GUID)
	b.WriteString("Rendezvous Info:\n")
	for i, directive := range dc.DeviceCredential.RvInfo {
		fmt.Fprintf(&b, "\t%d:\n", i)
		for _, instruction := range directive {
			fmt.Fprintf(&b, "\t\t- %s\n", instruction)
		}
	}
	fmt.Fprintf(&b, "Owner public key hash: %s\n", dc.DeviceCredential.PublicKeyHash)
	fmt.Fprintf(&b, "HMAC secret: %s\n", dc.HmacSecret)
	if pub := dc.PrivateKey.Public(); pub != nil {
		fmt.Fprintf(&b, "Private key: %s (%s)\n", redacted, protocol.DescribeKey(pub))
	} else {
		fmt.Fprintf(&b, "Private key: %s\n", redacted)
	}
	return b.String()
}

// GoString keeps %#v from printing secrets.
func (dc DeviceCredential) GoString() string { return dc.String() }

// HMACs returns hmac hashes for SHA256 and SHA384.
func (dc *DeviceCredential) HMACs() (hmacSha256, hmacSha384 hash.Hash) {
	hmacSha256, _ = dc.HmacSecret.NewHmac(protocol.HmacSha256Hash)
	hmacSha384, _ = dc.HmacSecret.NewHmac(protocol.HmacSha384Hash)
	return hmacSha256, hmacSha384
}

var _ crypto.Signer = (*DeviceCredential)(nil)

// Public returns the corresponding public key.
func (dc *DeviceCredential) Public() crypto.PublicKey { return dc.PrivateKey.Public() }

// Sign signs digest with the private key.
func (dc *DeviceCredential) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	if !dc.PrivateKey.IsValid() {
		return nil, fmt.Errorf("private key is an invalid type or curve/size for FDO device credential usage")
	}
	return dc.PrivateKey.Sign(rand, digest, opts)
}
