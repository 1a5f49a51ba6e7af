// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// DumpVoucher prints the header, HMAC, device certificate chain, and entries
// of a voucher file. Nothing is verified. If an entry cannot be parsed, the
// entries before it are printed and its *fdo.EntryParseError is returned.
func DumpVoucher(w io.Writer, path string) error {
	ov, err := ReadVoucher(path)
	if err != nil {
		return err
	}
	return PrintVoucher(w, ov)
}

// PrintVoucher is DumpVoucher for an already decoded voucher.
func PrintVoucher(w io.Writer, ov *fdo.Voucher) error {
	header, err := ov.DecodeHeader()
	if err != nil {
		return fmt.Errorf("error loading ownership voucher header: %w", err)
	}

	_, _ = fmt.Fprintln(w, "Header:")
	_, _ = fmt.Fprintf(w, "\tProtocol Version: %d\n", header.Version)
	_, _ = fmt.Fprintf(w, "\tDevice GUID: %s\n", header.GUID)
	_, _ = fmt.Fprintln(w, "\tRendezvous Info:")
	for _, directive := range header.RvInfo {
		_, _ = fmt.Fprintf(w, "\t\t- %s\n", formatDirective(directive))
	}
	_, _ = fmt.Fprintf(w, "\tDevice Info: %s\n", header.DeviceInfo)
	_, _ = fmt.Fprintf(w, "\tManufacturer public key: %s\n", header.ManufacturerKey)
	if header.CertChainHash == nil {
		_, _ = fmt.Fprintln(w, "\tDevice certificate chain hash: <none>")
	} else {
		_, _ = fmt.Fprintf(w, "\tDevice certificate chain hash: %s\n", header.CertChainHash)
	}
	_, _ = fmt.Fprintf(w, "Header HMAC: %s\n", ov.Hmac)

	if chain := ov.DeviceCertChain(); chain == nil {
		_, _ = fmt.Fprintln(w, "Device certificate chain: <none>")
	} else {
		_, _ = fmt.Fprintln(w, "Device certificate chain:")
		for i, cert := range chain {
			_, _ = fmt.Fprintf(w, "\t%d: %s (issuer %s)\n", i, cert.Subject, cert.Issuer)
		}
	}

	_, _ = fmt.Fprintln(w, "Entries:")
	for entry, err := range ov.IterEntries() {
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "\tEntry %d\n", entry.Index)
		_, _ = fmt.Fprintf(w, "\t\tPrevious entry hash: %s\n", entry.Payload.PreviousHash)
		_, _ = fmt.Fprintf(w, "\t\tHeader info hash: %s\n", entry.Payload.HeaderHash)
		extra, err := entry.Payload.ExtraInfo()
		if err != nil {
			return &fdo.EntryParseError{Index: entry.Index, Err: fmt.Errorf("extra info: %w", err)}
		}
		if len(extra) > 0 {
			_, _ = fmt.Fprintln(w, "\t\tExtra info:")
			for _, key := range slices.Sorted(maps.Keys(extra)) {
				_, _ = fmt.Fprintf(w, "\t\t\t%d: %x\n", key, extra[key])
			}
		}
		_, _ = fmt.Fprintf(w, "\t\tPublic key: %s\n", entry.Payload.PublicKey)
	}
	return nil
}

func formatDirective(directive []protocol.RvInstruction) string {
	parts := make([]string, len(directive))
	for i, instr := range directive {
		parts[i] = instr.String()
	}
	return strings.Join(parts, ", ")
}

// DumpDeviceCredential prints a device credential file. The HMAC secret and
// private key are shown as "<secret>".
func DumpDeviceCredential(w io.Writer, path string) error {
	cred, err := ReadDeviceCredential(path)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, cred.String())
	return err
}
