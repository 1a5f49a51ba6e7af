// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/blob"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/custom"
	"github.com/fido-device-onboard/go-fdo-owner-tool/rvinfo"
)

// InitOptions are the inputs and outputs of InitializeDevice.
type InitOptions struct {
	DeviceInfo string

	VoucherOut    string
	CredentialOut string

	ManufacturerCertPath string
	CAKeyPath            string
	CAChainPath          string
	RvInfoPath           string

	DeviceKeyType custom.DeviceKeyType

	// PEM writes the voucher as an OWNERSHIP VOUCHER PEM block instead of
	// binary CBOR.
	PEM bool

	Rand io.Reader
	Now  func() time.Time

	// Inventory, if set, records the new voucher after both files are
	// written.
	Inventory Inventory
}

// InitializeDevice creates a device key, certificate chain, ownership
// voucher, and device credential, and writes the voucher and credential to
// their output paths.
//
// If either output already exists, an error wrapping fs.ErrExist is returned
// before anything is generated. Either both outputs are written or neither
// is.
func InitializeDevice(ctx context.Context, opts InitOptions) (*fdo.Voucher, *blob.DeviceCredential, error) {
	if filepath.Clean(opts.VoucherOut) == filepath.Clean(opts.CredentialOut) {
		return nil, nil, errors.New("ownership voucher and device credential outputs must be different files")
	}
	if err := checkNotExist("device credential", opts.CredentialOut); err != nil {
		return nil, nil, err
	}
	if err := checkNotExist("ownership voucher", opts.VoucherOut); err != nil {
		return nil, nil, err
	}

	// Load inputs
	mfgCerts, err := LoadCertificates(opts.ManufacturerCertPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading manufacturer cert at %s: %w", opts.ManufacturerCertPath, err)
	}
	caKey, err := LoadPrivateKey(opts.CAKeyPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading device CA private key at %s: %w", opts.CAKeyPath, err)
	}
	caChain, err := LoadCertificates(opts.CAChainPath)
	if err != nil {
		return nil, nil, fmt.Errorf("error loading device cert CA chain at %s: %w", opts.CAChainPath, err)
	}
	rvInfo, err := rvinfo.Load(opts.RvInfoPath)
	if err != nil {
		return nil, nil, err
	}

	ov, cred, err := (&Provisioner{
		Rand:             opts.Rand,
		Now:              opts.Now,
		DeviceKeyType:    opts.DeviceKeyType,
		ManufacturerCert: mfgCerts[0],
		CAKey:            caKey,
		CAChain:          caChain,
		RvInfo:           rvInfo,
	}).Provision(opts.DeviceInfo)
	if err != nil {
		return nil, nil, err
	}

	// Encode both artifacts before touching the file system
	ovData, err := MarshalVoucher(ov, opts.PEM)
	if err != nil {
		return nil, nil, err
	}
	credData, err := cbor.Marshal(cred)
	if err != nil {
		return nil, nil, fmt.Errorf("error marshaling device credential: %w", err)
	}
	if err := commitPair(opts.VoucherOut, ovData, opts.CredentialOut, credData); err != nil {
		return nil, nil, err
	}

	if opts.Inventory != nil {
		if err := opts.Inventory.SaveVoucher(ctx, ov); err != nil {
			return nil, nil, fmt.Errorf("error recording ownership voucher in inventory: %w", err)
		}
	}
	return ov, cred, nil
}

// commitPair writes two files so that either both end up at their paths or
// neither does.
func commitPair(path1 string, data1 []byte, path2 string, data2 []byte) error {
	tmp1, err := writeTemp(path1, data1, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp1) }()

	tmp2, err := writeTemp(path2, data2, 0o600)
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp2) }()

	if err := rename(tmp1, path1); err != nil {
		return fmt.Errorf("error moving %s in place: %w", path1, err)
	}
	if err := rename(tmp2, path2); err != nil {
		if rmErr := os.Remove(path1); rmErr != nil {
			slog.Warn("could not remove partial output", "path", path1, "error", rmErr)
		}
		return fmt.Errorf("error moving %s in place: %w", path2, err)
	}
	slog.Debug("wrote outputs", "first", path1, "second", path2)
	return nil
}
