// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"crypto"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cose"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// ExtendVoucher adds a new signed voucher entry to the list and returns the
// new extended voucher. The given voucher is not modified: header bytes,
// HMAC, certificate chain, and existing entries are carried over unchanged.
//
// The owner key must be the private half of the key at the end of the chain
// (the manufacturer key for a voucher with no entries). Both it and the next
// owner key must match the manufacturer key type and curve or size. These
// are checked before anything is signed and a failure wraps
// ErrOwnerKeyMismatch.
//
// ExtraInfo may be used to pass additional supply-chain information along with
// the Ownership Voucher. The Device implicitly verifies the plaintext of
// OVEExtra along with the verification of the Ownership Voucher.
//
// All errors are of type *ExtensionError.
func ExtendVoucher[T protocol.PublicKeyOrChain](rand io.Reader, v *Voucher, owner crypto.Signer, nextOwner T, extra map[int][]byte) (*Voucher, error) {
	xv, err := extendVoucher(rand, v, owner, func(typ protocol.KeyType) (*protocol.PublicKey, error) {
		return protocol.NewPublicKey(typ, nextOwner)
	}, extra)
	if err != nil {
		return nil, &ExtensionError{Err: err}
	}
	return xv, nil
}

func extendVoucher(rand io.Reader, v *Voucher, owner crypto.Signer, nextOwner func(protocol.KeyType) (*protocol.PublicKey, error), extra map[int][]byte) (*Voucher, error) {
	if owner == nil {
		return nil, errors.New("no owner key given")
	}

	// Decoded on every extension, so that damaged header bytes fail here
	header, err := v.DecodeHeader()
	if err != nil {
		return nil, fmt.Errorf("error decoding header: %w", err)
	}
	mfgPubKey, err := header.ManufacturerKey.Public()
	if err != nil {
		return nil, fmt.Errorf("error parsing manufacturer key from header: %w", err)
	}

	// Each key in the Ownership Voucher must copy the public key type from the
	// manufacturer's key in OVHeader.OVPubKey, hash, and encoding (e.g., all
	// RSA2048RESTR, all RSAPKCS 3072, all ECDSA secp256r1 or all ECDSA
	// secp384r1).
	ownerPubKey := owner.Public()
	if !sameKeyKind(mfgPubKey, ownerPubKey) {
		return nil, fmt.Errorf("%w: owner key is not the same type and size/curve as the manufacturer key", ErrOwnerKeyMismatch)
	}

	// Owner key must match the end of the chain
	expectedOwnerPubKey, err := v.OwnerPublicKey()
	if err != nil {
		return nil, fmt.Errorf("error getting owner public key of voucher to extend: %w", err)
	}
	if eq, ok := ownerPubKey.(interface{ Equal(crypto.PublicKey) bool }); !ok || !eq.Equal(expectedOwnerPubKey) {
		return nil, fmt.Errorf("%w: owner key for signing is not the current owner of the voucher", ErrOwnerKeyMismatch)
	}

	// Create the next owner PublicKey structure
	nextOwnerPublicKey, err := nextOwner(header.ManufacturerKey.Type)
	if err != nil {
		return nil, fmt.Errorf("error marshaling next owner public key: %w", err)
	}
	nextOwnerPubKey, err := nextOwnerPublicKey.Public()
	if err != nil {
		return nil, fmt.Errorf("error parsing next owner public key: %w", err)
	}
	if !sameKeyKind(mfgPubKey, nextOwnerPubKey) {
		return nil, fmt.Errorf("next owner key is not the same type and size/curve as the manufacturer key")
	}

	// Select the appropriate hash algorithm
	devicePubKey, err := v.DevicePublicKey()
	if err != nil {
		return nil, err
	}
	alg, err := hashAlgFor(devicePubKey, ownerPubKey)
	if err != nil {
		return nil, fmt.Errorf("error selecting the appropriate hash algorithm: %w", err)
	}

	headerHash, err := hashOf(alg, header.GUID[:], []byte(header.DeviceInfo))
	if err != nil {
		return nil, fmt.Errorf("error computing header info hash: %w", err)
	}
	prevHash, err := v.lastLinkHash(alg)
	if err != nil {
		return nil, err
	}

	var extraInfo *cbor.Bstr[map[int][]byte]
	if len(extra) > 0 {
		if extraInfo, err = cbor.NewBstr(extra); err != nil {
			return nil, fmt.Errorf("error encoding extra info: %w", err)
		}
	}

	// Create and sign next entry
	usePSS := header.ManufacturerKey.Type == protocol.RsaPssKeyType
	entry, err := newSignedEntry(rand, owner, usePSS, VoucherEntryPayload{
		PreviousHash: prevHash,
		HeaderHash:   headerHash,
		Extra:        extraInfo,
		PublicKey:    *nextOwnerPublicKey,
	})
	if err != nil {
		return nil, err
	}

	return &Voucher{
		Version:   v.Version,
		Header:    v.Header,
		Hmac:      v.Hmac,
		CertChain: v.CertChain,
		Entries:   append(slices.Clone(v.Entries), entry),
	}, nil
}

// lastLinkHash hashes the end of the chain: the last entry's bytes, or for a
// voucher without entries, the genesis hash.
func (v *Voucher) lastLinkHash(alg protocol.HashAlg) (protocol.Hash, error) {
	if len(v.Entries) > 0 {
		return hashOf(alg, v.Entries[len(v.Entries)-1])
	}
	return v.genesisHash(alg)
}

// genesisHash is the previous hash of entry 0, computed over the header bytes
// followed by the encoded HMAC.
func (v *Voucher) genesisHash(alg protocol.HashAlg) (protocol.Hash, error) {
	mac, err := cbor.Marshal(v.Hmac)
	if err != nil {
		return protocol.Hash{}, fmt.Errorf("error encoding header hmac: %w", err)
	}
	return hashOf(alg, v.Header.Bytes(), mac)
}

func newSignedEntry(rand io.Reader, owner crypto.Signer, usePSS bool, payload VoucherEntryPayload) (cbor.RawBytes, error) {
	wrapped, err := cbor.NewBstr(payload)
	if err != nil {
		return nil, fmt.Errorf("error encoding voucher entry payload: %w", err)
	}
	entry := cose.Sign1[VoucherEntryPayload]{Payload: wrapped}

	signOpts, err := signOptsFor(owner, usePSS)
	if err != nil {
		return nil, err
	}
	if err := entry.Sign(rand, owner, signOpts); err != nil {
		return nil, fmt.Errorf("error signing voucher entry payload: %w", err)
	}

	raw, err := cbor.Marshal(entry.Tag())
	if err != nil {
		return nil, fmt.Errorf("error encoding voucher entry: %w", err)
	}
	return raw, nil
}
