// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
)

// ExtendOptions are the inputs of ExtendVoucherFile.
type ExtendOptions struct {
	// VoucherPath is read and then replaced by the extended voucher.
	VoucherPath string

	// OwnerKeyPath is the private key of the current owner: the manufacturer
	// for a voucher without entries, otherwise the key of the last entry.
	OwnerKeyPath string

	// NewOwnerCertPath holds the certificate, optionally followed by its
	// issuers, of the next owner.
	NewOwnerCertPath string

	// PEM forces PEM output. Otherwise the input encoding is kept.
	PEM bool

	Rand io.Reader

	// Inventory, if set, records the extended voucher after it is written.
	Inventory Inventory
}

// ExtendVoucherFile appends one entry to a voucher file, transferring
// ownership to the new owner certificate. The new voucher is written to a
// temp file in the same directory, synced, and renamed over the original, so
// any failure leaves the original unchanged.
func ExtendVoucherFile(ctx context.Context, opts ExtendOptions) (*fdo.Voucher, error) {
	ov, wasPEM, err := readVoucher(opts.VoucherPath)
	if err != nil {
		return nil, err
	}
	owner, err := LoadPrivateKey(opts.OwnerKeyPath)
	if err != nil {
		return nil, fmt.Errorf("error loading current owner private key at %s: %w", opts.OwnerKeyPath, err)
	}
	nextOwner, err := LoadCertificates(opts.NewOwnerCertPath)
	if err != nil {
		return nil, fmt.Errorf("error loading new owner certificate at %s: %w", opts.NewOwnerCertPath, err)
	}

	r := opts.Rand
	if r == nil {
		r = rand.Reader
	}
	extended, err := fdo.ExtendVoucher(r, ov, owner, nextOwner, nil)
	if err != nil {
		return nil, err
	}

	data, err := MarshalVoucher(extended, opts.PEM || wasPEM)
	if err != nil {
		return nil, err
	}
	if err := replaceFile(opts.VoucherPath, data); err != nil {
		return nil, err
	}
	slog.Debug("extended ownership voucher",
		"path", opts.VoucherPath,
		"entries", len(extended.Entries),
		"new owner", nextOwner[0].Subject,
	)

	if opts.Inventory != nil {
		if err := opts.Inventory.SaveVoucher(ctx, extended); err != nil {
			return nil, fmt.Errorf("error recording ownership voucher in inventory: %w", err)
		}
	}
	return extended, nil
}

// replaceFile atomically replaces the contents of path, keeping its mode.
func replaceFile(path string, data []byte) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking %s: %w", path, err)
	}
	tmp, err := writeTemp(path, data, info.Mode().Perm())
	if err != nil {
		return err
	}
	if err := rename(tmp, filepath.Clean(path)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("error moving new ownership voucher in place: %w", err)
	}
	return nil
}
