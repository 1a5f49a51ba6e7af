// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"slices"

	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// DeviceCredential is the public part of a device credential. It is
// non-normative, but the [TPM Draft Spec] proposes a CBOR encoding, so that
// will be used, excluding the key type/handle.
//
//	DCTPM = [
//	    DCProtVer: protver,
//	    DCDeviceInfo: tstr,
//	    DCGuid: bstr
//	    DCRVInfo: RendezvousInfo,
//	    DCPubKeyHash: Hash
//	]
//
// [TPM Draft Spec]: https://fidoalliance.org/specs/FDO/securing-fdo-in-tpm-v1.0-rd-20231010/securing-fdo-in-tpm-v1.0-rd-20231010.html
type DeviceCredential struct {
	_             struct{} `cbor:",toarray"`
	Version       uint16
	DeviceInfo    string
	GUID          protocol.GUID
	RvInfo        [][]protocol.RvInstruction
	PublicKeyHash protocol.Hash // hash of the trusted owner PublicKey; empty until one is trusted
}

// MatchesHeader reports whether the credential was made alongside the given
// voucher header: same GUID, device info, and rendezvous info.
func (dc *DeviceCredential) MatchesHeader(ovh *VoucherHeader) bool {
	return dc.GUID == ovh.GUID &&
		dc.DeviceInfo == ovh.DeviceInfo &&
		slices.EqualFunc(dc.RvInfo, ovh.RvInfo, func(a, b []protocol.RvInstruction) bool {
			return slices.EqualFunc(a, b, func(x, y protocol.RvInstruction) bool {
				return x.Variable == y.Variable && slices.Equal(x.Value, y.Value)
			})
		})
}
