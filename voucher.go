// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"crypto"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cose"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// Voucher is the top level structure.
//
//	OwnershipVoucher = [
//	    OVProtVer:      protver,           ;; protocol version
//	    OVHeaderTag:    bstr .cbor OVHeader,
//	    OVHeaderHMac:   HMac,              ;; hmac[DCHmacSecret, OVHeader]
//	    OVDevCertChain: OVDevCertChainOrNull,
//	    OVEntryArray:   OVEntries
//	]
//
//	;; Device certificate chain
//	;; use null for Intel® EPID.
//	OVDevCertChainOrNull     = X5CHAIN / null  ;; CBOR null for Intel® EPID device key
//
//	;; Ownership voucher entries array
//	OVEntries = [ * OVEntry ]
//
// The header is held as its encoded bytes and each entry as its encoded
// COSE_Sign1 bytes. Both are written back exactly as they were produced or
// read, which keeps the HMAC and the entry hash chain valid regardless of the
// encoder that produced them.
type Voucher struct {
	_         struct{} `cbor:",toarray"`
	Version   uint16
	Header    cbor.Bstr[VoucherHeader]
	Hmac      protocol.Hmac
	CertChain *[]*cbor.X509Certificate
	Entries   []cbor.RawBytes
}

// VoucherHeader is the Ownership Voucher header.
//
//	OVHeader = [
//	    OVHProtVer:        protver,        ;; protocol version
//	    OVGuid:            Guid,           ;; guid
//	    OVRVInfo:          RendezvousInfo, ;; rendezvous instructions
//	    OVDeviceInfo:      tstr,           ;; DeviceInfo
//	    OVPubKey:          PublicKey,      ;; mfg public key
//	    OVDevCertChainHash:OVDevCertChainHashOrNull
//	]
//
//	;; Hash of Device certificate chain
//	;; use null for Intel® EPID
//	OVDevCertChainHashOrNull = Hash / null     ;; CBOR null for Intel® EPID device key
type VoucherHeader struct {
	_               struct{} `cbor:",toarray"`
	Version         uint16
	GUID            protocol.GUID
	RvInfo          [][]protocol.RvInstruction
	DeviceInfo      string
	ManufacturerKey protocol.PublicKey
	CertChainHash   *protocol.Hash
}

// VoucherEntryPayload is an entry in a voucher's list of recorded transfers.
//
//	OVEntryPayload = [
//	    OVEHashPrevEntry: Hash,
//	    OVEHashHdrInfo:   Hash,  ;; hash[GUID||DeviceInfo] in header
//	    OVEExtra:         null / bstr .cbor OVEExtraInfo
//	    OVEPubKey:        PublicKey
//	]
//
//	OVEExtraInfo = { * OVEExtraInfoType: bstr }
//	OVEExtraInfoType = int
type VoucherEntryPayload struct {
	_            struct{} `cbor:",toarray"`
	PreviousHash protocol.Hash
	HeaderHash   protocol.Hash
	Extra        *cbor.Bstr[map[int][]byte]
	PublicKey    protocol.PublicKey
}

// NewVoucherHeader creates the header of a new voucher. The GUID is read from
// rand and, when a device certificate chain is given, its SHA-384 hash is
// included.
func NewVoucherHeader(rand io.Reader, rvInfo [][]protocol.RvInstruction, deviceInfo string, mfgKey protocol.PublicKey, deviceChain []*x509.Certificate) (*VoucherHeader, error) {
	guid, err := protocol.NewGUID(rand)
	if err != nil {
		return nil, err
	}

	var chainHash *protocol.Hash
	if deviceChain != nil {
		hash, err := CertChainHash(protocol.Sha384Hash, deviceChain)
		if err != nil {
			return nil, err
		}
		chainHash = &hash
	}

	return &VoucherHeader{
		Version:         protocol.Version,
		GUID:            guid,
		RvInfo:          rvInfo,
		DeviceInfo:      deviceInfo,
		ManufacturerKey: mfgKey,
		CertChainHash:   chainHash,
	}, nil
}

// CertChainHash hashes the concatenated DER of a certificate chain, leaf
// first.
func CertChainHash(alg protocol.HashAlg, chain []*x509.Certificate) (protocol.Hash, error) {
	if len(chain) == 0 {
		return protocol.Hash{}, errors.New("cannot hash an empty certificate chain")
	}
	parts := make([][]byte, len(chain))
	for i, cert := range chain {
		parts[i] = cert.Raw
	}
	return hashOf(alg, parts...)
}

// NewVoucher encodes the header, tags it with HMAC-SHA384 keyed by the device
// HMAC secret, and returns a voucher with no entries.
func NewVoucher(header *VoucherHeader, hmacSecret []byte, deviceChain []*x509.Certificate) (*Voucher, error) {
	if len(hmacSecret) != HmacSecretSize {
		return nil, fmt.Errorf("hmac secret must be %d bytes, got %d", HmacSecretSize, len(hmacSecret))
	}
	if (header.CertChainHash == nil) != (deviceChain == nil) {
		return nil, errors.New("device cert chain and header cert chain hash must both be present or both be absent")
	}

	encoded, err := cbor.NewBstr(*header)
	if err != nil {
		return nil, fmt.Errorf("error encoding ownership voucher header: %w", err)
	}
	mac, err := hmacHash(hmac.New(sha512.New384, hmacSecret), encoded.Bytes())
	if err != nil {
		return nil, fmt.Errorf("error computing ownership voucher header hmac: %w", err)
	}

	var certChain *[]*cbor.X509Certificate
	if deviceChain != nil {
		chain := make([]*cbor.X509Certificate, len(deviceChain))
		for i, cert := range deviceChain {
			chain[i] = (*cbor.X509Certificate)(cert)
		}
		certChain = &chain
	}

	return &Voucher{
		Version:   header.Version,
		Header:    *encoded,
		Hmac:      mac,
		CertChain: certChain,
	}, nil
}

// DecodeHeader decodes the header bytes. Every call decodes afresh.
func (v *Voucher) DecodeHeader() (*VoucherHeader, error) {
	header, err := v.Header.Value()
	if err != nil {
		return nil, err
	}
	return &header, nil
}

// DeviceCertChain returns the device certificate chain, or nil if the voucher
// has none.
func (v *Voucher) DeviceCertChain() []*x509.Certificate {
	if v.CertChain == nil {
		return nil
	}
	chain := make([]*x509.Certificate, len(*v.CertChain))
	for i, cert := range *v.CertChain {
		chain[i] = (*x509.Certificate)(cert)
	}
	return chain
}

// DevicePublicKey extracts the device's public key from from the certificate
// chain. For certain key types, such as Intel EPID, the public key will be
// nil.
func (v *Voucher) DevicePublicKey() (crypto.PublicKey, error) {
	if v.CertChain == nil {
		return nil, nil
	}
	if len(*v.CertChain) == 0 {
		return nil, errors.New("empty cert chain")
	}
	return (*v.CertChain)[0].PublicKey, nil
}

// OwnerPublicKey extracts the voucher owner's public key from either the
// header or the last entry.
func (v *Voucher) OwnerPublicKey() (crypto.PublicKey, error) {
	if len(v.Entries) == 0 {
		header, err := v.DecodeHeader()
		if err != nil {
			return nil, err
		}
		return header.ManufacturerKey.Public()
	}
	last, err := decodeEntry(len(v.Entries)-1, v.Entries[len(v.Entries)-1])
	if err != nil {
		return nil, err
	}
	return last.Payload.PublicKey.Public()
}

// VoucherEntry is a decoded entry along with its position and exact bytes.
type VoucherEntry struct {
	Index   int
	Raw     cbor.RawBytes
	Sign1   *cose.Sign1[VoucherEntryPayload]
	Payload VoucherEntryPayload
}

// IterEntries decodes entries lazily, oldest first. If an entry cannot be
// decoded, an *EntryParseError is yielded with a nil entry and iteration
// stops. Each call starts again from the first entry.
func (v *Voucher) IterEntries() iter.Seq2[*VoucherEntry, error] {
	return func(yield func(*VoucherEntry, error) bool) {
		for i, raw := range v.Entries {
			entry, err := decodeEntry(i, raw)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(entry, nil) {
				return
			}
		}
	}
}

func decodeEntry(i int, raw cbor.RawBytes) (*VoucherEntry, error) {
	var tagged cose.Sign1Tag[VoucherEntryPayload]
	if err := cbor.Unmarshal(raw, &tagged); err != nil {
		return nil, &EntryParseError{Index: i, Err: err}
	}
	s1 := tagged.Untag()
	if s1.Payload == nil {
		return nil, &EntryParseError{Index: i, Err: errors.New("entry has no payload")}
	}
	payload, err := s1.Payload.Value()
	if err != nil {
		return nil, &EntryParseError{Index: i, Err: err}
	}
	return &VoucherEntry{Index: i, Raw: raw, Sign1: s1, Payload: payload}, nil
}

// ExtraInfo returns the decoded OVEExtra map, or nil if absent.
func (e *VoucherEntryPayload) ExtraInfo() (map[int][]byte, error) {
	if e.Extra == nil {
		return nil, nil
	}
	return e.Extra.Value()
}
