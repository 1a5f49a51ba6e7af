// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool_test

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/custom"
	"github.com/fido-device-onboard/go-fdo-owner-tool/fdotest"
	"github.com/fido-device-onboard/go-fdo-owner-tool/ownertool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/rvinfo"
	"github.com/fido-device-onboard/go-fdo-owner-tool/sqlite"
)

// inputs is a directory of manufacturer and device CA material.
type inputs struct {
	dir  string
	mfg  *fdotest.Party
	ca   *fdotest.CA
	opts ownertool.InitOptions
}

func newInputs(t *testing.T) *inputs {
	t.Helper()

	dir := t.TempDir()
	mfg := fdotest.NewParty(t, "Test Manufacturer", elliptic.P384())
	ca := fdotest.NewCA(t)

	fdotest.WriteCertsPEM(t, filepath.Join(dir, "manufacturer_cert.pem"), mfg.Cert)
	fdotest.WriteKeyPEM(t, filepath.Join(dir, "manufacturer_key.pem"), mfg.Key)
	fdotest.WriteKeyDER(t, filepath.Join(dir, "device_ca_key.der"), ca.Key)
	fdotest.WriteCertsPEM(t, filepath.Join(dir, "device_ca_chain.pem"), ca.Chain...)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "rendezvous-info.yml"), []byte("- device-port: 8080\n"), 0o600))

	return &inputs{
		dir: dir,
		mfg: mfg,
		ca:  ca,
		opts: ownertool.InitOptions{
			DeviceInfo:           "dev-1",
			VoucherOut:           filepath.Join(dir, "ov"),
			CredentialOut:        filepath.Join(dir, "devcred"),
			ManufacturerCertPath: filepath.Join(dir, "manufacturer_cert.pem"),
			CAKeyPath:            filepath.Join(dir, "device_ca_key.der"),
			CAChainPath:          filepath.Join(dir, "device_ca_chain.pem"),
			RvInfoPath:           filepath.Join(dir, "rendezvous-info.yml"),
		},
	}
}

// newOwner writes the certificate of a new P-384 owner and returns its path.
func (in *inputs) newOwner(t *testing.T, name string) (*fdotest.Party, string) {
	t.Helper()

	owner := fdotest.NewParty(t, name, elliptic.P384())
	certPath := filepath.Join(in.dir, name+"_cert.pem")
	fdotest.WriteCertsPEM(t, certPath, owner.Cert)
	fdotest.WriteKeyPEM(t, filepath.Join(in.dir, name+"_key.pem"), owner.Key)
	return owner, certPath
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"), "leftover temp file %s", entry.Name())
	}
}

func TestEndToEnd(t *testing.T) {
	defer slog.SetDefault(slog.Default())
	slog.SetDefault(fdotest.TestingLogger(t))

	in := newInputs(t)
	ctx := context.Background()

	ov, cred, err := ownertool.InitializeDevice(ctx, in.opts)
	require.NoError(t, err)
	header, err := ov.DecodeHeader()
	require.NoError(t, err)
	headerBytes := bytes.Clone(ov.Header.Bytes())

	// Voucher and credential agree
	assert.Equal(t, "dev-1", header.DeviceInfo)
	assert.Empty(t, ov.Entries)
	assert.True(t, cred.DeviceCredential.MatchesHeader(header))
	require.NoError(t, ov.VerifyHeader(cred.HMACs()))
	leaf := ov.DeviceCertChain()[0]
	assert.Equal(t, "dev-1", leaf.Subject.CommonName)
	assert.True(t, leaf.PublicKey.(*ecdsa.PublicKey).Equal(cred.Public()))

	// Files decode to the same values
	onDisk, err := ownertool.ReadVoucher(in.opts.VoucherOut)
	require.NoError(t, err)
	assert.Equal(t, headerBytes, onDisk.Header.Bytes())
	credOnDisk, err := ownertool.ReadDeviceCredential(in.opts.CredentialOut)
	require.NoError(t, err)
	assert.True(t, credOnDisk.DeviceCredential.MatchesHeader(header))
	assert.True(t, credOnDisk.Active)
	assert.Equal(t, cred.HmacSecret, credOnDisk.HmacSecret)

	var dump bytes.Buffer
	require.NoError(t, ownertool.DumpVoucher(&dump, in.opts.VoucherOut))
	assert.Contains(t, dump.String(), "\tProtocol Version: 101\n")
	assert.Contains(t, dump.String(), "\tDevice GUID: "+header.GUID.String()+"\n")
	assert.Contains(t, dump.String(), "\t\t- device-port: 8080\n")
	assert.Contains(t, dump.String(), "\tDevice Info: dev-1\n")
	assert.True(t, strings.HasSuffix(dump.String(), "Entries:\n"), dump.String())

	// Extend with the manufacturer key
	_, ownerCert := in.newOwner(t, "owner1")
	extended, err := ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
		VoucherPath:      in.opts.VoucherOut,
		OwnerKeyPath:     filepath.Join(in.dir, "manufacturer_key.pem"),
		NewOwnerCertPath: ownerCert,
	})
	require.NoError(t, err)
	require.Len(t, extended.Entries, 1)
	assert.Equal(t, headerBytes, extended.Header.Bytes())
	assertNoTempFiles(t, in.dir)

	dump.Reset()
	require.NoError(t, ownertool.DumpVoucher(&dump, in.opts.VoucherOut))
	assert.Contains(t, dump.String(), "\tEntry 0\n")
	assert.NotContains(t, dump.String(), "\tEntry 1\n")

	// Extend again with the first owner's key
	_, owner2Cert := in.newOwner(t, "owner2")
	_, err = ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
		VoucherPath:      in.opts.VoucherOut,
		OwnerKeyPath:     filepath.Join(in.dir, "owner1_key.pem"),
		NewOwnerCertPath: owner2Cert,
	})
	require.NoError(t, err)

	var report bytes.Buffer
	require.NoError(t, ownertool.VerifyVoucherFile(&report, ownertool.VerifyOptions{
		VoucherPath:    in.opts.VoucherOut,
		CredentialPath: in.opts.CredentialOut,
	}))
	assert.Contains(t, report.String(), "Entries: OK (2)")
	assert.Contains(t, report.String(), "Header HMAC: OK")
}

func TestInitializeDeviceOutputsExist(t *testing.T) {
	for _, existing := range []string{"ov", "devcred"} {
		t.Run(existing, func(t *testing.T) {
			in := newInputs(t)
			path := filepath.Join(in.dir, existing)
			require.NoError(t, os.WriteFile(path, []byte("keep me"), 0o600))

			// Inputs are never read when an output exists
			opts := in.opts
			opts.CAKeyPath = filepath.Join(in.dir, "does-not-exist")
			opts.Rand = failingReader{t}

			_, _, err := ownertool.InitializeDevice(context.Background(), opts)
			require.ErrorIs(t, err, fs.ErrExist)

			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "keep me", string(data))
		})
	}
}

type failingReader struct{ t *testing.T }

func (r failingReader) Read([]byte) (int, error) {
	r.t.Error("random source read before output existence check")
	return 0, errors.New("unexpected read")
}

func TestInitializeDeviceCommitsBothOrNeither(t *testing.T) {
	in := newInputs(t)

	var calls int
	restore := ownertool.SetRename(func(oldpath, newpath string) error {
		if calls++; calls == 2 {
			return errors.New("injected rename failure")
		}
		return os.Rename(oldpath, newpath)
	})
	defer restore()

	_, _, err := ownertool.InitializeDevice(context.Background(), in.opts)
	require.ErrorContains(t, err, "injected rename failure")

	assert.NoFileExists(t, in.opts.VoucherOut)
	assert.NoFileExists(t, in.opts.CredentialOut)
	assertNoTempFiles(t, in.dir)
}

func TestInitializeDeviceInputErrors(t *testing.T) {
	in := newInputs(t)

	t.Run("unknown rendezvous variable", func(t *testing.T) {
		opts := in.opts
		opts.RvInfoPath = filepath.Join(in.dir, "bad-rv.yml")
		require.NoError(t, os.WriteFile(opts.RvInfoPath, []byte("- device-prot: 8080\n"), 0o600))

		_, _, err := ownertool.InitializeDevice(context.Background(), opts)
		require.ErrorIs(t, err, rvinfo.ErrUnknownRendezvousVariable)
		assert.Contains(t, err.Error(), "device-prot")
		assert.NoFileExists(t, opts.VoucherOut)
		assert.NoFileExists(t, opts.CredentialOut)
	})

	t.Run("empty CA chain", func(t *testing.T) {
		opts := in.opts
		opts.CAChainPath = filepath.Join(in.dir, "empty.pem")
		require.NoError(t, os.WriteFile(opts.CAChainPath, nil, 0o600))

		_, _, err := ownertool.InitializeDevice(context.Background(), opts)
		require.Error(t, err)
		assert.NoFileExists(t, opts.VoucherOut)
	})

	t.Run("same output twice", func(t *testing.T) {
		opts := in.opts
		opts.CredentialOut = opts.VoucherOut

		_, _, err := ownertool.InitializeDevice(context.Background(), opts)
		require.Error(t, err)
	})
}

func TestExtendVoucherFileLeavesOriginalOnFailure(t *testing.T) {
	in := newInputs(t)
	ctx := context.Background()
	_, _, err := ownertool.InitializeDevice(ctx, in.opts)
	require.NoError(t, err)
	original, err := os.ReadFile(in.opts.VoucherOut)
	require.NoError(t, err)

	_, ownerCert := in.newOwner(t, "owner1")

	t.Run("rename failure", func(t *testing.T) {
		restore := ownertool.SetRename(func(string, string) error {
			return errors.New("injected rename failure")
		})
		defer restore()

		_, err := ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
			VoucherPath:      in.opts.VoucherOut,
			OwnerKeyPath:     filepath.Join(in.dir, "manufacturer_key.pem"),
			NewOwnerCertPath: ownerCert,
		})
		require.ErrorContains(t, err, "injected rename failure")
	})

	t.Run("wrong owner key", func(t *testing.T) {
		_, err := ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
			VoucherPath:      in.opts.VoucherOut,
			OwnerKeyPath:     filepath.Join(in.dir, "owner1_key.pem"),
			NewOwnerCertPath: ownerCert,
		})
		require.ErrorIs(t, err, fdo.ErrOwnerKeyMismatch)
		var extErr *fdo.ExtensionError
		require.ErrorAs(t, err, &extErr)
	})

	t.Run("missing new owner cert", func(t *testing.T) {
		_, err := ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
			VoucherPath:      in.opts.VoucherOut,
			OwnerKeyPath:     filepath.Join(in.dir, "manufacturer_key.pem"),
			NewOwnerCertPath: filepath.Join(in.dir, "nope.pem"),
		})
		require.ErrorIs(t, err, fs.ErrNotExist)
	})

	after, err := os.ReadFile(in.opts.VoucherOut)
	require.NoError(t, err)
	assert.Equal(t, original, after)
	assertNoTempFiles(t, in.dir)
}

func TestPEMVoucher(t *testing.T) {
	in := newInputs(t)
	ctx := context.Background()
	in.opts.PEM = true

	_, _, err := ownertool.InitializeDevice(ctx, in.opts)
	require.NoError(t, err)
	data, err := os.ReadFile(in.opts.VoucherOut)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("-----BEGIN OWNERSHIP VOUCHER-----")))

	// The input encoding is kept on extension
	_, ownerCert := in.newOwner(t, "owner1")
	_, err = ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
		VoucherPath:      in.opts.VoucherOut,
		OwnerKeyPath:     filepath.Join(in.dir, "manufacturer_key.pem"),
		NewOwnerCertPath: ownerCert,
	})
	require.NoError(t, err)
	data, err = os.ReadFile(in.opts.VoucherOut)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("-----BEGIN OWNERSHIP VOUCHER-----")))

	ov, err := ownertool.ReadVoucher(in.opts.VoucherOut)
	require.NoError(t, err)
	assert.Len(t, ov.Entries, 1)
}

func TestDumpDeviceCredentialHidesSecrets(t *testing.T) {
	in := newInputs(t)
	_, cred, err := ownertool.InitializeDevice(context.Background(), in.opts)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, ownertool.DumpDeviceCredential(&out, in.opts.CredentialOut))
	der, err := x509.MarshalPKCS8PrivateKey(cred.PrivateKey.Signer)
	require.NoError(t, err)

	dump := out.String()
	for _, secret := range [][]byte{cred.HmacSecret, der, cred.PrivateKey.Signer.(*ecdsa.PrivateKey).D.Bytes()} {
		assert.NotContains(t, dump, string(secret))
		assert.NotContains(t, strings.ToLower(dump), hex.EncodeToString(secret))
		assert.NotContains(t, dump, base64.StdEncoding.EncodeToString(secret))
		assert.NotContains(t, dump, base64.RawURLEncoding.EncodeToString(secret))
	}
	assert.Contains(t, dump, "HMAC secret: <secret>")
	assert.Contains(t, dump, "Private key: <secret>")
	assert.Contains(t, dump, "Device Info: dev-1")
}

func TestDumpVoucherStopsAtBadEntry(t *testing.T) {
	in := newInputs(t)
	ctx := context.Background()
	_, _, err := ownertool.InitializeDevice(ctx, in.opts)
	require.NoError(t, err)

	_, ownerCert := in.newOwner(t, "owner1")
	ov, err := ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
		VoucherPath:      in.opts.VoucherOut,
		OwnerKeyPath:     filepath.Join(in.dir, "manufacturer_key.pem"),
		NewOwnerCertPath: ownerCert,
	})
	require.NoError(t, err)

	// Append an entry that is a tagged empty array instead of a COSE_Sign1
	ov.Entries = append(ov.Entries, cbor.RawBytes{0xd2, 0x80})
	data, err := ownertool.MarshalVoucher(ov, false)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in.opts.VoucherOut, data, 0o600))

	var out bytes.Buffer
	err = ownertool.DumpVoucher(&out, in.opts.VoucherOut)
	var parseErr *fdo.EntryParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, 1, parseErr.Index)
	assert.Contains(t, out.String(), "\tEntry 0\n")
	assert.NotContains(t, out.String(), "\tEntry 1\n")

	err = ownertool.VerifyVoucherFile(&out, ownertool.VerifyOptions{VoucherPath: in.opts.VoucherOut})
	require.ErrorAs(t, err, &parseErr)
}

func TestVerifyVoucherFileWrongCredential(t *testing.T) {
	in := newInputs(t)
	ctx := context.Background()
	_, _, err := ownertool.InitializeDevice(ctx, in.opts)
	require.NoError(t, err)

	other := in.opts
	other.VoucherOut = filepath.Join(in.dir, "ov2")
	other.CredentialOut = filepath.Join(in.dir, "devcred2")
	_, _, err = ownertool.InitializeDevice(ctx, other)
	require.NoError(t, err)

	var out bytes.Buffer
	err = ownertool.VerifyVoucherFile(&out, ownertool.VerifyOptions{
		VoucherPath:    in.opts.VoucherOut,
		CredentialPath: other.CredentialOut,
	})
	require.ErrorContains(t, err, "does not belong")

	// Checked far in the future, the device certificate chain has expired
	err = ownertool.VerifyVoucherFile(&out, ownertool.VerifyOptions{
		VoucherPath: in.opts.VoucherOut,
		Now:         func() time.Time { return time.Now().AddDate(20, 0, 0) },
	})
	var certErr *fdo.CertificateValidationError
	require.ErrorAs(t, err, &certErr)
	assert.Equal(t, fdo.CertValidationErrorExpired, certErr.Code)
}

func TestProvisioner(t *testing.T) {
	mfg := fdotest.NewParty(t, "Test Manufacturer", elliptic.P256())
	ca := fdotest.NewCA(t)
	now := time.Now().Add(-time.Minute).Truncate(time.Second)

	ov, cred, err := (&ownertool.Provisioner{
		Rand:             fdotest.NewRand(t.Name()),
		Now:              func() time.Time { return now },
		DeviceKeyType:    custom.DeviceKeyEC384,
		ManufacturerCert: mfg.Cert,
		CAKey:            ca.Key,
		CAChain:          ca.Chain,
	}).Provision("dev-2")
	require.NoError(t, err)

	chain := ov.DeviceCertChain()
	require.Len(t, chain, 3)
	assert.True(t, now.Equal(chain[0].NotBefore), "NotBefore %v", chain[0].NotBefore)
	assert.Equal(t, elliptic.P384(), chain[0].PublicKey.(*ecdsa.PublicKey).Curve)
	assert.True(t, chain[0].PublicKey.(*ecdsa.PublicKey).Equal(cred.Public()))

	header, err := ov.DecodeHeader()
	require.NoError(t, err)
	assert.Empty(t, header.RvInfo)
	mfgKey, err := header.ManufacturerKey.Public()
	require.NoError(t, err)
	assert.True(t, mfg.Key.PublicKey.Equal(mfgKey))
	require.NoError(t, ov.VerifyCertChainHash())

	_, _, err = (&ownertool.Provisioner{CAKey: ca.Key, CAChain: ca.Chain}).Provision("dev-3")
	require.Error(t, err)
}

func TestInventory(t *testing.T) {
	in := newInputs(t)
	ctx := context.Background()
	db, err := sqlite.Open(filepath.Join(in.dir, "inventory.db"), "")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	in.opts.Inventory = db
	ov, _, err := ownertool.InitializeDevice(ctx, in.opts)
	require.NoError(t, err)
	header, err := ov.DecodeHeader()
	require.NoError(t, err)

	_, ownerCert := in.newOwner(t, "owner1")
	_, err = ownertool.ExtendVoucherFile(ctx, ownertool.ExtendOptions{
		VoucherPath:      in.opts.VoucherOut,
		OwnerKeyPath:     filepath.Join(in.dir, "manufacturer_key.pem"),
		NewOwnerCertPath: ownerCert,
		Inventory:        db,
	})
	require.NoError(t, err)

	infos, err := db.Vouchers(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, 1, infos[0].Entries)

	exported := filepath.Join(in.dir, "exported.ov")
	_, err = ownertool.ExportVoucher(ctx, db, header.GUID, exported, false)
	require.NoError(t, err)
	want, err := os.ReadFile(in.opts.VoucherOut)
	require.NoError(t, err)
	got, err := os.ReadFile(exported)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = ownertool.ExportVoucher(ctx, db, header.GUID, exported, false)
	require.ErrorIs(t, err, fs.ErrExist)

	other := header.GUID
	other[0] ^= 0xff
	_, err = ownertool.ExportVoucher(ctx, db, other, filepath.Join(in.dir, "missing.ov"), false)
	require.ErrorIs(t, err, fdo.ErrNotFound)
}
