// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/blob"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

// VoucherPEMType is the PEM block type of an encoded ownership voucher.
const VoucherPEMType = "OWNERSHIP VOUCHER"

var pemPrefix = []byte("-----BEGIN ")

// Replaced in tests to inject failures.
var rename = os.Rename

// ReadVoucher reads an ownership voucher encoded as binary CBOR or as an
// OWNERSHIP VOUCHER PEM block.
func ReadVoucher(path string) (*fdo.Voucher, error) {
	ov, _, err := readVoucher(path)
	return ov, err
}

func readVoucher(path string) (_ *fdo.Voucher, isPEM bool, _ error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, false, fmt.Errorf("error reading ownership voucher: %w", err)
	}
	if isPEM = bytes.HasPrefix(bytes.TrimSpace(data), pemPrefix); isPEM {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, true, fmt.Errorf("invalid PEM file: %s", path)
		}
		if block.Type != VoucherPEMType {
			return nil, true, fmt.Errorf("expected %s PEM block, got %s", VoucherPEMType, block.Type)
		}
		data = block.Bytes
	}

	var ov fdo.Voucher
	if err := cbor.Unmarshal(data, &ov); err != nil {
		return nil, isPEM, fmt.Errorf("error parsing ownership voucher %q: %w", path, err)
	}
	return &ov, isPEM, nil
}

// MarshalVoucher encodes a voucher as CBOR, optionally wrapped in an
// OWNERSHIP VOUCHER PEM block.
func MarshalVoucher(ov *fdo.Voucher, asPEM bool) ([]byte, error) {
	data, err := cbor.Marshal(ov)
	if err != nil {
		return nil, fmt.Errorf("error marshaling ownership voucher: %w", err)
	}
	if asPEM {
		return pem.EncodeToMemory(&pem.Block{Type: VoucherPEMType, Bytes: data}), nil
	}
	return data, nil
}

// ReadDeviceCredential reads a CBOR encoded device credential blob.
func ReadDeviceCredential(path string) (*blob.DeviceCredential, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("error reading device credential: %w", err)
	}
	var dc blob.DeviceCredential
	if err := cbor.Unmarshal(data, &dc); err != nil {
		return nil, fmt.Errorf("error parsing device credential %q: %w", path, err)
	}
	return &dc, nil
}

// LoadPrivateKey reads a private key in DER or PEM form. PKCS#8, SEC1 and
// PKCS#1 encodings are accepted.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("error reading private key: %w", err)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), pemPrefix) {
		block, _ := pem.Decode(data)
		if block == nil {
			return nil, fmt.Errorf("invalid PEM file: %s", path)
		}
		data = block.Bytes
	}

	if key, err := x509.ParsePKCS8PrivateKey(data); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("unsupported private key type %T in %s", key, path)
		}
		return signer, nil
	}
	if key, err := x509.ParseECPrivateKey(data); err == nil {
		return key, nil
	}
	if key, err := x509.ParsePKCS1PrivateKey(data); err == nil {
		return key, nil
	}
	return nil, fmt.Errorf("error parsing private key %q: not a PKCS#8, SEC1, or PKCS#1 key", path)
}

// LoadCertificates reads one or more certificates from consecutive PEM
// blocks or from concatenated DER.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("error reading certificates: %w", err)
	}

	if !bytes.HasPrefix(bytes.TrimSpace(data), pemPrefix) {
		certs, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("error parsing certificates %q: %w", path, err)
		}
		if len(certs) == 0 {
			return nil, fmt.Errorf("no certificates found in %s", path)
		}
		return certs, nil
	}

	var certs []*x509.Certificate
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("error parsing certificate in %q: %w", path, err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return certs, nil
}

// checkNotExist fails with an error wrapping fs.ErrExist if path exists.
func checkNotExist(what, path string) error {
	_, err := os.Lstat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%s file %s already exists: %w", what, path, fs.ErrExist)
	case errors.Is(err, fs.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("error checking %s file %s: %w", what, path, err)
	}
}

// writeTemp writes data to a new file in the directory of path and syncs it
// to disk. The caller renames or removes the returned file.
func writeTemp(path string, data []byte, perm fs.FileMode) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("error creating temp file for %s: %w", path, err)
	}
	name := tmp.Name()
	fail := func(err error) (string, error) {
		_ = tmp.Close()
		_ = os.Remove(name)
		return "", err
	}

	if _, err := tmp.Write(data); err != nil {
		return fail(fmt.Errorf("error writing %s: %w", name, err))
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail(fmt.Errorf("error setting mode of %s: %w", name, err))
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("error syncing %s: %w", name, err))
	}
	if err := tmp.Close(); err != nil {
		return fail(fmt.Errorf("error closing %s: %w", name, err))
	}
	return name, nil
}
