// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fido-device-onboard/go-fdo-owner-tool/custom"
	"github.com/fido-device-onboard/go-fdo-owner-tool/ownertool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

var initializeDeviceCommand = &cli.Command{
	Name:      "initialize-device",
	Usage:     "Create a device key, certificate, ownership voucher, and device credential",
	ArgsUsage: "<device-info> <ownershipvoucher-out> <device-credential-out>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "manufacturer-cert",
			Usage:    "Certificate of the manufacturer key that signs the first voucher entry",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "device-cert-ca-private-key",
			Usage:    "Private key that signs the device certificate (DER or PEM)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "device-cert-ca-chain",
			Usage:    "Certificate chain of the device CA, issuer of the device certificate first",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "rendezvous-info",
			Usage:    "YAML document describing the rendezvous directives",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "device-key-type",
			Usage: "Device key type: ec256, ec384, rsa2048, or rsa3072",
			Value: string(custom.DeviceKeyEC256),
		},
		flagPEM,
	},
	Action: func(cCtx *cli.Context) error {
		a, err := args(cCtx, "device-info", "ownershipvoucher-out", "device-credential-out")
		if err != nil {
			return err
		}
		keyType, err := custom.ParseDeviceKeyType(cCtx.String("device-key-type"))
		if err != nil {
			return err
		}
		inv, closeDB, err := inventory(cCtx)
		if err != nil {
			return err
		}
		defer closeDB()

		ov, _, err := ownertool.InitializeDevice(cCtx.Context, ownertool.InitOptions{
			DeviceInfo:           a[0],
			VoucherOut:           a[1],
			CredentialOut:        a[2],
			ManufacturerCertPath: cCtx.String("manufacturer-cert"),
			CAKeyPath:            cCtx.String("device-cert-ca-private-key"),
			CAChainPath:          cCtx.String("device-cert-ca-chain"),
			RvInfoPath:           cCtx.String("rendezvous-info"),
			DeviceKeyType:        keyType,
			PEM:                  cCtx.Bool(flagPEM.Name),
			Inventory:            inv,
		})
		if err != nil {
			return err
		}
		header, err := ov.DecodeHeader()
		if err != nil {
			return err
		}
		fmt.Printf("Created ownership voucher for device %s\n", header.GUID)
		return nil
	},
}

var dumpVoucherCommand = &cli.Command{
	Name:      "dump-ownership-voucher",
	Usage:     "Print the contents of an ownership voucher",
	ArgsUsage: "<path>",
	Action: func(cCtx *cli.Context) error {
		a, err := args(cCtx, "path")
		if err != nil {
			return err
		}
		return ownertool.DumpVoucher(os.Stdout, a[0])
	},
}

var dumpCredentialCommand = &cli.Command{
	Name:      "dump-device-credential",
	Usage:     "Print the non-secret contents of a device credential",
	ArgsUsage: "<path>",
	Action: func(cCtx *cli.Context) error {
		a, err := args(cCtx, "path")
		if err != nil {
			return err
		}
		return ownertool.DumpDeviceCredential(os.Stdout, a[0])
	},
}

var extendVoucherCommand = &cli.Command{
	Name:      "extend-ownership-voucher",
	Usage:     "Transfer ownership by appending a signed entry, replacing the voucher file",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "current-owner-private-key",
			Usage:    "Private key of the current owner (DER or PEM)",
			Required: true,
		},
		&cli.StringFlag{
			Name:     "new-owner-cert",
			Usage:    "Certificate of the new owner (DER or PEM)",
			Required: true,
		},
		flagPEM,
	},
	Action: func(cCtx *cli.Context) error {
		a, err := args(cCtx, "path")
		if err != nil {
			return err
		}
		inv, closeDB, err := inventory(cCtx)
		if err != nil {
			return err
		}
		defer closeDB()

		_, err = ownertool.ExtendVoucherFile(cCtx.Context, ownertool.ExtendOptions{
			VoucherPath:      a[0],
			OwnerKeyPath:     cCtx.String("current-owner-private-key"),
			NewOwnerCertPath: cCtx.String("new-owner-cert"),
			PEM:              cCtx.Bool(flagPEM.Name),
			Inventory:        inv,
		})
		return err
	},
}

var verifyVoucherCommand = &cli.Command{
	Name:      "verify-ownership-voucher",
	Usage:     "Verify the certificate chain, entries, and optionally the HMAC of a voucher",
	ArgsUsage: "<path>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "device-credential",
			Usage: "Device credential used to verify the header HMAC",
		},
	},
	Action: func(cCtx *cli.Context) error {
		a, err := args(cCtx, "path")
		if err != nil {
			return err
		}
		return ownertool.VerifyVoucherFile(os.Stdout, ownertool.VerifyOptions{
			VoucherPath:    a[0],
			CredentialPath: cCtx.String("device-credential"),
		})
	},
}

var listVouchersCommand = &cli.Command{
	Name:  "list-vouchers",
	Usage: "List the vouchers in the inventory",
	Action: func(cCtx *cli.Context) error {
		if _, err := args(cCtx); err != nil {
			return err
		}
		db, err := requireDB(cCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		infos, err := db.Vouchers(cCtx.Context)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "GUID\tDEVICE INFO\tENTRIES\tUPDATED")
		for _, info := range infos {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", info.GUID, info.DeviceInfo, info.Entries, info.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	},
}

var exportVoucherCommand = &cli.Command{
	Name:      "export-ownership-voucher",
	Usage:     "Write a voucher from the inventory to a new file",
	ArgsUsage: "<guid> <out>",
	Flags: []cli.Flag{
		flagPEM,
	},
	Action: func(cCtx *cli.Context) error {
		a, err := args(cCtx, "guid", "out")
		if err != nil {
			return err
		}
		guid, err := protocol.ParseGUID(a[0])
		if err != nil {
			return err
		}
		db, err := requireDB(cCtx)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		_, err = ownertool.ExportVoucher(cCtx.Context, db, guid, a[1], cCtx.Bool(flagPEM.Name))
		return err
	},
}
