// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package ownertool implements the operations of the FDO owner tool: device
// initialization, ownership voucher extension, inspection, and verification.
// Every operation reads its inputs from files and writes its outputs
// atomically.
package ownertool

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/blob"
	"github.com/fido-device-onboard/go-fdo-owner-tool/custom"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// Inventory records vouchers produced or extended by the tool.
type Inventory interface {
	SaveVoucher(context.Context, *fdo.Voucher) error
}

// Provisioner creates the ownership voucher and device credential of a new
// device.
type Provisioner struct {
	// Rand is the source of the device key, GUID, HMAC secret, and
	// certificate serial. If nil, crypto/rand.Reader is used.
	Rand io.Reader

	// Now is the start of the device certificate validity. If nil, time.Now
	// is used.
	Now func() time.Time

	// DeviceKeyType selects the generated device key. The zero value is
	// ec256.
	DeviceKeyType custom.DeviceKeyType

	// ManufacturerCert carries the key that signs the first voucher entry.
	ManufacturerCert *x509.Certificate

	// CAKey and CAChain issue the device certificate. CAChain[0] is the
	// certificate of CAKey.
	CAKey   crypto.Signer
	CAChain []*x509.Certificate

	RvInfo [][]protocol.RvInstruction
}

// Provision generates the device key and certificate chain, a GUID, and an
// HMAC secret, then builds the voucher and matching credential. Nothing is
// persisted.
func (p *Provisioner) Provision(deviceInfo string) (*fdo.Voucher, *blob.DeviceCredential, error) {
	if p.ManufacturerCert == nil {
		return nil, nil, errors.New("no manufacturer certificate")
	}
	r := p.Rand
	if r == nil {
		r = rand.Reader
	}
	now := time.Now
	if p.Now != nil {
		now = p.Now
	}

	mfgType, err := protocol.KeyTypeOf(p.ManufacturerCert.PublicKey)
	if err != nil {
		return nil, nil, fmt.Errorf("error determining manufacturer key type: %w", err)
	}
	mfgKey, err := protocol.NewPublicKey(mfgType, []*x509.Certificate{p.ManufacturerCert})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating manufacturer public key representation: %w", err)
	}

	deviceKey, err := custom.GenerateDeviceKey(r, p.DeviceKeyType)
	if err != nil {
		return nil, nil, fmt.Errorf("error generating device key: %w", err)
	}
	chain, err := custom.DeviceCertChain(r, deviceInfo, deviceKey, p.CAKey, p.CAChain, now())
	if err != nil {
		return nil, nil, fmt.Errorf("error building device certificate: %w", err)
	}

	secret := make([]byte, fdo.HmacSecretSize)
	if _, err := io.ReadFull(r, secret); err != nil {
		return nil, nil, fmt.Errorf("error creating device HMAC secret: %w", err)
	}

	header, err := fdo.NewVoucherHeader(r, p.RvInfo, deviceInfo, *mfgKey, chain)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating ownership voucher header: %w", err)
	}
	ov, err := fdo.NewVoucher(header, secret, chain)
	if err != nil {
		return nil, nil, err
	}
	cred, err := blob.NewDeviceCredential(deviceInfo, header.GUID, p.RvInfo, deviceKey, secret)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating device credential: %w", err)
	}

	slog.Debug("provisioned device",
		"guid", header.GUID,
		"device info", deviceInfo,
		"device key", protocol.DescribeKey(deviceKey.Public()),
		"manufacturer key", mfgType,
	)
	return ov, cred, nil
}
