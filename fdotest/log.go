// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdotest

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
)

// TestingLog creates a writer that logs each write to the test output.
func TestingLog(t testing.TB) io.Writer { return errorLog{t} }

// TestingLogger creates a slog.Logger writing to the test output.
func TestingLogger(t testing.TB) *slog.Logger {
	return slog.New(slog.NewTextHandler(TestingLog(t), &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type errorLog struct{ t testing.TB }

// Write implements io.Writer.
func (l errorLog) Write(p []byte) (int, error) {
	l.t.Helper()
	l.t.Log(string(bytes.TrimSpace(p)))
	return len(p), nil
}
