// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package ownertool

// SetRename replaces the function used to move outputs in place until the
// returned restore function is called.
func SetRename(f func(oldpath, newpath string) error) (restore func()) {
	orig := rename
	rename = f
	return func() { rename = orig }
}
