// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package sqlite implements an inventory of ownership vouchers with a SQLite
// database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/fido-device-onboard/go-fdo-owner-tool"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// DB stores ownership vouchers keyed by device GUID.
type DB struct {
	// Log all SQL queries to this optional writer.
	DebugLog io.Writer

	db *sql.DB
}

// New creates a DB. The expected tables must be created before the database
// is used.
func New(db *sql.DB) *DB { return &DB{db: db} }

// Init ensures all tables are created and pragma are set. It does not
// recognize if tables have been created with invalid schemas.
//
// In most cases, Open should be used, which implicitly calls Init.
func Init(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vouchers
			( guid BLOB PRIMARY KEY
			, device_info TEXT NOT NULL
			, entries INTEGER NOT NULL
			, cbor BLOB NOT NULL
			, updated_at INTEGER NOT NULL
			)`,
		`CREATE INDEX IF NOT EXISTS vouchers_updated_at
			ON vouchers(updated_at ASC)`,
		`PRAGMA foreign_keys = ON`,
	}
	for _, sql := range stmts {
		if _, err := db.Exec(sql); err != nil {
			_ = db.Close()
			if strings.Contains(err.Error(), "file is not a database") {
				return fmt.Errorf("file is not a database: likely due to incorrect or missing database password")
			}
			return fmt.Errorf("error creating tables: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
//
// If the database connection is associated with unfinalized prepared
// statements, open blob handles, and/or unfinished backup objects, Close will
// leave the database connection open and return [sqlite3.BUSY].
func (db *DB) Close() error { return db.db.Close() }

// DB returns the underlying database/sql DB.
func (db *DB) DB() *sql.DB { return db.db }

type debugLogKey struct{}

func (db *DB) debugCtx(parent context.Context) context.Context {
	return context.WithValue(parent, debugLogKey{}, db.DebugLog)
}

func debug(ctx context.Context, format string, a ...any) {
	w, ok := ctx.Value(debugLogKey{}).(io.Writer)
	if !ok || w == nil {
		return
	}
	msg := strings.TrimSpace(fmt.Sprintf(format, a...))
	_, _ = fmt.Fprintln(w, msg)
}

// VoucherInfo summarizes a stored voucher without decoding its entries.
type VoucherInfo struct {
	GUID       protocol.GUID
	DeviceInfo string
	Entries    int
	UpdatedAt  time.Time
}

// SaveVoucher stores a voucher, replacing any voucher previously stored for
// the same device GUID.
func (db *DB) SaveVoucher(ctx context.Context, ov *fdo.Voucher) error {
	header, err := ov.DecodeHeader()
	if err != nil {
		return fmt.Errorf("error decoding ownership voucher header: %w", err)
	}
	data, err := cbor.Marshal(ov)
	if err != nil {
		return fmt.Errorf("error marshaling ownership voucher: %w", err)
	}
	return db.insert(ctx, "vouchers", map[string]any{
		"guid":        header.GUID[:],
		"device_info": header.DeviceInfo,
		"entries":     len(ov.Entries),
		"cbor":        data,
		"updated_at":  time.Now().Unix(),
	}, []string{"guid"})
}

// Voucher retrieves a voucher by GUID. If no voucher is stored for the GUID,
// then fdo.ErrNotFound is returned.
func (db *DB) Voucher(ctx context.Context, guid protocol.GUID) (*fdo.Voucher, error) {
	var data []byte
	if err := db.query(ctx, "vouchers", []string{"cbor"},
		map[string]any{"guid": guid[:]},
		&data,
	); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fdo.ErrNotFound
	}

	var ov fdo.Voucher
	if err := cbor.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("error unmarshaling ownership voucher: %w", err)
	}
	return &ov, nil
}

// Vouchers lists all stored vouchers, least recently updated first.
func (db *DB) Vouchers(ctx context.Context) ([]VoucherInfo, error) {
	ctx = db.debugCtx(ctx)
	query := "SELECT `guid`, `device_info`, `entries`, `updated_at` FROM vouchers ORDER BY `updated_at` ASC, `guid` ASC"
	debug(ctx, "sqlite: %s", query)

	rows, err := db.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error querying DB: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var infos []VoucherInfo
	for rows.Next() {
		var (
			guid      []byte
			info      VoucherInfo
			updatedAt int64
		)
		if err := rows.Scan(&guid, &info.DeviceInfo, &info.Entries, &updatedAt); err != nil {
			return nil, fmt.Errorf("error scanning voucher row: %w", err)
		}
		if len(guid) != len(info.GUID) {
			return nil, fmt.Errorf("invalid stored GUID length: %d", len(guid))
		}
		copy(info.GUID[:], guid)
		info.UpdatedAt = time.Unix(updatedAt, 0)
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error querying DB: %w", err)
	}
	return infos, nil
}

func (db *DB) insert(ctx context.Context, table string, kvs map[string]any, upsertOnConflict []string) error {
	return insert(db.debugCtx(ctx), db.db, table, kvs, upsertOnConflict)
}

func (db *DB) query(ctx context.Context, table string, columns []string, where map[string]any, into ...any) error {
	return query(db.debugCtx(ctx), db.db, table, columns, where, into...)
}

// Allows using *sql.DB or *sql.Tx
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Allows using *sql.DB or *sql.Tx
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// If upsertOnConflict is an empty slice (non-nil), then do an INSERT OR IGNORE
func insert(ctx context.Context, db execer, table string, kvs map[string]any, upsertOnConflict []string) error {
	var orIgnore string
	if upsertOnConflict != nil && len(upsertOnConflict) == 0 {
		orIgnore = "OR IGNORE "
	}

	columns := slices.Sorted(maps.Keys(kvs))
	args := make([]any, len(columns))
	for i, name := range columns {
		args[i] = kvs[name]
	}
	markers := slices.Repeat([]string{"?"}, len(columns))

	var upsert string
	if len(upsertOnConflict) > 0 {
		var updates []string
		for _, key := range columns {
			if !slices.Contains(upsertOnConflict, key) {
				updates = append(updates, fmt.Sprintf("`%s` = excluded.`%s`", key, key))
			}
		}
		upsert = fmt.Sprintf(" ON CONFLICT(`%s`) DO UPDATE SET %s",
			strings.Join(upsertOnConflict, "`, `"), strings.Join(updates, ", "))
	}

	query := fmt.Sprintf(
		"INSERT %sINTO %s (%s) VALUES (%s)%s",
		orIgnore,
		table,
		"`"+strings.Join(columns, "`, `")+"`",
		strings.Join(markers, ", "),
		upsert,
	)
	debug(ctx, "sqlite: %s\n%+v", query, columns)
	_, err := db.ExecContext(ctx, query, args...)
	return err
}

func query(ctx context.Context, db querier, table string, columns []string, where map[string]any, into ...any) error {
	if len(columns) != len(into) {
		panic("programming error - query must have the same number of columns and values")
	}

	whereKeys := slices.Sorted(maps.Keys(where))
	clauses := make([]string, len(whereKeys))
	whereVals := make([]any, len(whereKeys))
	for i, key := range whereKeys {
		clauses[i] = "`" + key + "` = ?"
		whereVals[i] = where[key]
	}

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s`,
		"`"+strings.Join(columns, "`, `")+"`",
		table,
		strings.Join(clauses, " AND "),
	)
	debug(ctx, "sqlite: %s\n%+v", query, whereKeys)

	row := db.QueryRowContext(ctx, query, whereVals...)
	if err := row.Scan(into...); errors.Is(err, sql.ErrNoRows) {
		return fdo.ErrNotFound
	} else if err != nil {
		return fmt.Errorf("error querying DB: %w", err)
	}
	return nil
}
