// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"errors"
	"fmt"
)

// ErrCryptoVerifyFailed indicates that the wrapping error originated from a
// case of cryptographic verification failing rather than a broken invariant.
var ErrCryptoVerifyFailed = errors.New("cryptographic verification failed")

// ErrOwnerKeyMismatch indicates that the key offered to sign a voucher
// extension is not the key at the end of the ownership chain, or is not of
// the manufacturer key's type and size.
var ErrOwnerKeyMismatch = errors.New("owner key does not match ownership voucher")

// ErrNotFound is returned when a voucher is not present in an inventory.
var ErrNotFound = errors.New("not found")

// ExtensionError is returned by ExtendVoucher. The voucher being extended is
// never modified when it is returned.
type ExtensionError struct {
	Err error
}

func (e *ExtensionError) Error() string {
	return "error extending ownership voucher: " + e.Err.Error()
}

func (e *ExtensionError) Unwrap() error { return e.Err }

// EntryParseError is returned when a voucher entry cannot be decoded. Index is
// the position of the entry in the voucher, starting at zero.
type EntryParseError struct {
	Index int
	Err   error
}

func (e *EntryParseError) Error() string {
	return fmt.Sprintf("error parsing ownership voucher entry %d: %v", e.Index, e.Err)
}

func (e *EntryParseError) Unwrap() error { return e.Err }
