// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

import (
	"context"
	"fmt"
	"os"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// VoucherSource looks up stored vouchers by device GUID.
type VoucherSource interface {
	Voucher(context.Context, protocol.GUID) (*fdo.Voucher, error)
}

// ExportVoucher writes the stored voucher of a device to a new file. The
// output must not already exist.
func ExportVoucher(ctx context.Context, src VoucherSource, guid protocol.GUID, path string, asPEM bool) (*fdo.Voucher, error) {
	if err := checkNotExist("ownership voucher", path); err != nil {
		return nil, err
	}
	ov, err := src.Voucher(ctx, guid)
	if err != nil {
		return nil, fmt.Errorf("error looking up ownership voucher %s: %w", guid, err)
	}
	data, err := MarshalVoucher(ov, asPEM)
	if err != nil {
		return nil, err
	}
	tmp, err := writeTemp(path, data, 0o600)
	if err != nil {
		return nil, err
	}
	if err := rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("error moving %s in place: %w", path, err)
	}
	return ov, nil
}
