// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package main implements the fdo-owner-tool command, which initializes
// devices and manages their ownership vouchers.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/fido-device-onboard/go-fdo-owner-tool/ownertool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/sqlite"
)

var flagDebug = &cli.BoolFlag{
	Name:  "debug",
	Usage: "Print debug logs",
}

var flagDB = &cli.StringFlag{
	Name:    "db",
	Usage:   "SQLite `PATH` of the voucher inventory",
	EnvVars: []string{"FDO_OWNER_TOOL_DB"},
}

var flagDBPass = &cli.StringFlag{
	Name:    "db-pass",
	Usage:   "Encrypt the voucher inventory with this `PASSWORD`",
	EnvVars: []string{"FDO_OWNER_TOOL_DB_PASS"},
}

var flagPEM = &cli.BoolFlag{
	Name:  "pem",
	Usage: "Write the ownership voucher as an OWNERSHIP VOUCHER PEM block",
}

func main() {
	app := &cli.App{
		Name:  "fdo-owner-tool",
		Usage: "Initialize FDO devices and manage their ownership vouchers",
		Flags: []cli.Flag{
			flagDebug,
			flagDB,
			flagDBPass,
		},
		Before: func(cCtx *cli.Context) error {
			if cCtx.Bool(flagDebug.Name) {
				level.Set(slog.LevelDebug)
			}
			return nil
		},
		Commands: []*cli.Command{
			initializeDeviceCommand,
			dumpVoucherCommand,
			dumpCredentialCommand,
			extendVoucherCommand,
			verifyVoucherCommand,
			listVouchersCommand,
			exportVoucherCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("fdo-owner-tool failed", "error", err)
		os.Exit(1)
	}
}

// args returns the positional arguments, one per name.
func args(cCtx *cli.Context, names ...string) ([]string, error) {
	if cCtx.NArg() != len(names) {
		return nil, fmt.Errorf("%s: expected arguments %v, got %d", cCtx.Command.Name, names, cCtx.NArg())
	}
	return cCtx.Args().Slice(), nil
}

// openDB opens the voucher inventory, or returns nil if none is configured.
func openDB(cCtx *cli.Context) (*sqlite.DB, error) {
	path := cCtx.String(flagDB.Name)
	if path == "" {
		return nil, nil
	}
	db, err := sqlite.Open(path, cCtx.String(flagDBPass.Name))
	if err != nil {
		return nil, fmt.Errorf("error opening voucher inventory %s: %w", path, err)
	}
	if cCtx.Bool(flagDebug.Name) {
		db.DebugLog = os.Stderr
	}
	return db, nil
}

// inventory opens the voucher inventory as an optional ownertool.Inventory.
func inventory(cCtx *cli.Context) (ownertool.Inventory, func(), error) {
	db, err := openDB(cCtx)
	if err != nil || db == nil {
		return nil, func() {}, err
	}
	return db, func() { _ = db.Close() }, nil
}

// requireDB opens the voucher inventory, which must be configured.
func requireDB(cCtx *cli.Context) (*sqlite.DB, error) {
	db, err := openDB(cCtx)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, fmt.Errorf("%s requires --%s", cCtx.Command.Name, flagDB.Name)
	}
	return db, nil
}
