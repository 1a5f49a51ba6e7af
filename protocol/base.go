// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package protocol defines the FDO wire types shared by vouchers and device
// credentials.
package protocol

import (
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

// GUID is implemented as a 128-bit cryptographically strong random number.
//
// The GUID type identifies a Device during onboarding. It is generated once,
// at device initialization, and is the key under which vouchers are stored.
type GUID [16]byte

// NewGUID reads 16 bytes from rand.
func NewGUID(rand io.Reader) (GUID, error) {
	var guid GUID
	if _, err := io.ReadFull(rand, guid[:]); err != nil {
		return GUID{}, fmt.Errorf("error generating device GUID: %w", err)
	}
	return guid, nil
}

// ParseGUID parses the canonical 8-4-4-4-12 hex text form.
func ParseGUID(s string) (GUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return GUID{}, fmt.Errorf("invalid GUID %q: %w", s, err)
	}
	return GUID(id), nil
}

func (guid GUID) String() string { return uuid.UUID(guid).String() }

// MarshalCBOR implements cbor.Marshaler.
func (guid GUID) MarshalCBOR() ([]byte, error) { return cbor.Marshal(guid[:]) }

// UnmarshalCBOR implements cbor.Unmarshaler.
func (guid *GUID) UnmarshalCBOR(data []byte) error {
	var b []byte
	if err := cbor.Unmarshal(data, &b); err != nil {
		return err
	}
	if len(b) != len(guid) {
		return fmt.Errorf("GUID must be %d bytes, got %d", len(guid), len(b))
	}
	copy(guid[:], b)
	return nil
}
