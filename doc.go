// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package fdo implements the ownership voucher of [FDO 1.1] and the public
// part of the device credential made alongside it.
//
// Many of the protocol types and values are located in the protocol
// subpackage. This domain package includes the core types.
//
// A new [Voucher] is made from a [VoucherHeader] by [NewVoucher], which fixes
// the header's encoded bytes and tags them with an HMAC keyed by the device
// secret. [ExtendVoucher] appends one signed entry per transfer of ownership.
// Every entry links to the one before it by hash, and entry 0 links to the
// header and its HMAC, so the chain is verifiable offline by anyone holding
// the voucher (see [Voucher.VerifyEntries]).
//
// Device secrets are kept by [blob.DeviceCredential], which stores them in a
// binary-encoded file.
//
// [FDO 1.1]: https://fidoalliance.org/specs/FDO/fido-device-onboard-v1.0-ps-20210323/fido-device-onboard-v1.0-ps-20210323.html
// [blob.DeviceCredential]: https://pkg.go.dev/github.com/fido-device-onboard/go-fdo-owner-tool/blob#DeviceCredential
package fdo
