// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

import (
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// VerifyOptions are the inputs of VerifyVoucherFile.
type VerifyOptions struct {
	VoucherPath string

	// CredentialPath, if set, is the device credential used to check the
	// header HMAC and that the credential belongs to the voucher.
	CredentialPath string

	// Roots verify the device certificate chain. If nil, the last
	// certificate in the chain is trusted.
	Roots *x509.CertPool

	// Now is the time at which certificate validity is checked. If nil,
	// time.Now is used.
	Now func() time.Time
}

// VerifyVoucherFile checks a voucher file: the device certificate chain hash
// and validity, every entry's hashes and signature, and, when a device
// credential is given, the header HMAC. Each passing check is reported to w
// and the first failure is returned.
func VerifyVoucherFile(w io.Writer, opts VerifyOptions) error {
	ov, err := ReadVoucher(opts.VoucherPath)
	if err != nil {
		return err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	header, err := ov.DecodeHeader()
	if err != nil {
		return fmt.Errorf("error loading ownership voucher header: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Device GUID: %s\n", header.GUID)

	if err := ov.VerifyCertChainHash(); err != nil {
		return fmt.Errorf("device certificate chain hash: %w", err)
	}
	if err := ov.VerifyDeviceCertChain(opts.Roots, now()); err != nil {
		return fmt.Errorf("device certificate chain: %w", err)
	}
	_, _ = fmt.Fprintln(w, "Device certificate chain: OK")

	if err := ov.VerifyEntries(); err != nil {
		return fmt.Errorf("ownership voucher entries: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Entries: OK (%d)\n", len(ov.Entries))

	if opts.CredentialPath != "" {
		cred, err := ReadDeviceCredential(opts.CredentialPath)
		if err != nil {
			return err
		}
		if !cred.DeviceCredential.MatchesHeader(header) {
			return errors.New("device credential does not belong to this ownership voucher")
		}
		if err := checkDeviceKey(ov, cred.Public()); err != nil {
			return err
		}
		if err := ov.VerifyHeader(cred.HMACs()); err != nil {
			return fmt.Errorf("header HMAC: %w", err)
		}
		_, _ = fmt.Fprintln(w, "Header HMAC: OK")
	}

	owner, err := ov.OwnerPublicKey()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "Owner: %s\n", protocol.DescribeKey(owner))
	return nil
}

func checkDeviceKey(ov *fdo.Voucher, credKey crypto.PublicKey) error {
	deviceKey, err := ov.DevicePublicKey()
	if err != nil || deviceKey == nil {
		return err
	}
	if eq, ok := credKey.(interface{ Equal(crypto.PublicKey) bool }); !ok || !eq.Equal(deviceKey) {
		return fmt.Errorf("%w: device credential key does not match device certificate", fdo.ErrCryptoVerifyFailed)
	}
	return nil
}
