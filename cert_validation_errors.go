// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"crypto/x509"
	"fmt"
	"time"
)

// CertificateValidationErrorCode says which device certificate check failed.
type CertificateValidationErrorCode int

// Device certificate chain checks
const (
	CertValidationErrorExpired CertificateValidationErrorCode = iota + 1
	CertValidationErrorNotYetValid
	CertValidationErrorSignature
	CertValidationErrorChainHashMismatch
)

func (c CertificateValidationErrorCode) String() string {
	switch c {
	case CertValidationErrorExpired:
		return "expired"
	case CertValidationErrorNotYetValid:
		return "not yet valid"
	case CertValidationErrorSignature:
		return "does not chain to a trusted root"
	case CertValidationErrorChainHashMismatch:
		return "does not match the chain hash in the voucher header"
	default:
		return fmt.Sprintf("CertificateValidationErrorCode(%d)", int(c))
	}
}

// CertificateValidationError is returned when the device certificate chain of
// a voucher fails verification. Index is the position of Certificate in the
// chain, leaf first. Err is the underlying x509 error, if any.
type CertificateValidationError struct {
	Code        CertificateValidationErrorCode
	Index       int
	Certificate *x509.Certificate
	Err         error
}

func (e *CertificateValidationError) Error() string {
	msg := fmt.Sprintf("device certificate %d", e.Index)
	if e.Certificate != nil {
		msg += fmt.Sprintf(" (%s)", e.Certificate.Subject)
	}
	msg += " " + e.Code.String()
	switch {
	case e.Certificate == nil:
	case e.Code == CertValidationErrorExpired:
		msg += " at " + e.Certificate.NotAfter.UTC().Format(time.RFC3339)
	case e.Code == CertValidationErrorNotYetValid:
		msg += " until " + e.Certificate.NotBefore.UTC().Format(time.RFC3339)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CertificateValidationError) Unwrap() error { return e.Err }
