// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package protocol

// Version is the protocol version written into every voucher header, voucher,
// and device credential produced by this module (FDO 1.1).
const Version uint16 = 101
