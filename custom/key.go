// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package custom implements the non-normative parts of device initialization:
// device key generation and signing of the device certificate.
package custom

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"fmt"
	"io"
)

// PublicKeyProvider is anything able to supply the public key to embed in a
// certificate: freshly generated keys, keys loaded from disk, and device
// credentials all qualify.
type PublicKeyProvider interface {
	Public() crypto.PublicKey
}

// DeviceKeyType selects the algorithm of a generated device key.
type DeviceKeyType string

// Supported device key types
const (
	DeviceKeyEC256   DeviceKeyType = "ec256"
	DeviceKeyEC384   DeviceKeyType = "ec384"
	DeviceKeyRSA2048 DeviceKeyType = "rsa2048"
	DeviceKeyRSA3072 DeviceKeyType = "rsa3072"
)

// ParseDeviceKeyType validates a device key type name. The empty string
// selects ec256.
func ParseDeviceKeyType(name string) (DeviceKeyType, error) {
	switch typ := DeviceKeyType(name); typ {
	case "":
		return DeviceKeyEC256, nil
	case DeviceKeyEC256, DeviceKeyEC384, DeviceKeyRSA2048, DeviceKeyRSA3072:
		return typ, nil
	default:
		return "", fmt.Errorf("unsupported device key type %q: must be one of ec256, ec384, rsa2048, rsa3072", name)
	}
}

// GenerateDeviceKey creates a new device key pair using rand.
func GenerateDeviceKey(rand io.Reader, typ DeviceKeyType) (crypto.Signer, error) {
	switch typ {
	case DeviceKeyEC256, "":
		return ecdsa.GenerateKey(elliptic.P256(), rand)
	case DeviceKeyEC384:
		return ecdsa.GenerateKey(elliptic.P384(), rand)
	case DeviceKeyRSA2048:
		return rsa.GenerateKey(rand, 2048)
	case DeviceKeyRSA3072:
		return rsa.GenerateKey(rand, 3072)
	default:
		return nil, fmt.Errorf("unsupported device key type: %q", typ)
	}
}
