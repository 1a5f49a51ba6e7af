// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdotest

import (
	"crypto"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"testing"
	"time"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/custom"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// Device is a manufactured device: its voucher and the secrets that would be
// in its credential.
type Device struct {
	CA           *CA
	Manufacturer *Party
	Key          crypto.Signer
	HmacSecret   []byte
	Voucher      *fdo.Voucher
}

// NewDevice manufactures a device with a P-256 key, a P-384 manufacturer,
// and a single {device-port: 8080} rendezvous directive.
func NewDevice(t testing.TB, deviceInfo string) *Device {
	t.Helper()

	ca := NewCA(t)
	mfg := NewParty(t, "Test Manufacturer", elliptic.P384())
	key, err := custom.GenerateDeviceKey(rand.Reader, custom.DeviceKeyEC256)
	if err != nil {
		t.Fatalf("error generating device key: %v", err)
	}
	chain, err := custom.DeviceCertChain(rand.Reader, deviceInfo, key, ca.Key, ca.Chain, time.Now())
	if err != nil {
		t.Fatalf("error building device cert chain: %v", err)
	}

	mfgKey, err := protocol.NewPublicKey(protocol.Secp384r1KeyType, []*x509.Certificate{mfg.Cert})
	if err != nil {
		t.Fatalf("error encoding manufacturer key: %v", err)
	}
	devPort, err := protocol.NewRvInstruction(protocol.RVDevPort, uint64(8080))
	if err != nil {
		t.Fatalf("error encoding rendezvous info: %v", err)
	}
	header, err := fdo.NewVoucherHeader(rand.Reader, [][]protocol.RvInstruction{{devPort}}, deviceInfo, *mfgKey, chain)
	if err != nil {
		t.Fatalf("error creating voucher header: %v", err)
	}

	secret := make([]byte, fdo.HmacSecretSize)
	if _, err := rand.Read(secret); err != nil {
		t.Fatalf("error generating hmac secret: %v", err)
	}
	ov, err := fdo.NewVoucher(header, secret, chain)
	if err != nil {
		t.Fatalf("error creating voucher: %v", err)
	}

	return &Device{CA: ca, Manufacturer: mfg, Key: key, HmacSecret: secret, Voucher: ov}
}
