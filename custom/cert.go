// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package custom

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"
)

// DeviceCertValidity is the lifetime of a device certificate.
const DeviceCertValidity = 3650 * 24 * time.Hour

// serialNumberSize is the number of random bytes in a certificate serial.
const serialNumberSize = 8

// CertificateBuildError is returned when a device certificate cannot be
// created. Step names the part of certificate building that failed.
type CertificateBuildError struct {
	Step string
	Err  error
}

func (e *CertificateBuildError) Error() string {
	return fmt.Sprintf("error building device certificate: %s: %v", e.Step, e.Err)
}

func (e *CertificateBuildError) Unwrap() error { return e.Err }

// BuildDeviceCertificate signs a leaf certificate for the device public key.
//
// The subject common name is the device identifier and the issuer is the
// subject of caChain[0], which must be the certificate of caKey. The
// certificate is valid from now for DeviceCertValidity, is X.509 v3, has a
// serial of 8 random bytes, and is signed with a SHA-384 based algorithm.
func BuildDeviceCertificate(rand io.Reader, subject string, device PublicKeyProvider, caKey crypto.Signer, caChain []*x509.Certificate, now time.Time) (*x509.Certificate, error) {
	if len(caChain) == 0 {
		return nil, &CertificateBuildError{Step: "issuer", Err: errors.New("device CA certificate chain is empty")}
	}
	if device == nil || device.Public() == nil {
		return nil, &CertificateBuildError{Step: "public key", Err: errors.New("no device public key")}
	}
	if caKey == nil {
		return nil, &CertificateBuildError{Step: "signing", Err: errors.New("no device CA private key")}
	}

	var sigAlg x509.SignatureAlgorithm
	switch caKey.Public().(type) {
	case *ecdsa.PublicKey:
		sigAlg = x509.ECDSAWithSHA384
	case *rsa.PublicKey:
		sigAlg = x509.SHA384WithRSA
	default:
		return nil, &CertificateBuildError{Step: "signature algorithm", Err: fmt.Errorf("unsupported CA key type %T", caKey.Public())}
	}

	serialBytes := make([]byte, serialNumberSize)
	if _, err := io.ReadFull(rand, serialBytes); err != nil {
		return nil, &CertificateBuildError{Step: "serial number", Err: err}
	}

	template := &x509.Certificate{
		SerialNumber:       new(big.Int).SetBytes(serialBytes),
		Subject:            pkix.Name{CommonName: subject},
		NotBefore:          now,
		NotAfter:           now.Add(DeviceCertValidity),
		KeyUsage:           x509.KeyUsageDigitalSignature,
		SignatureAlgorithm: sigAlg,
	}
	der, err := x509.CreateCertificate(rand, template, caChain[0], device.Public(), caKey)
	if err != nil {
		return nil, &CertificateBuildError{Step: "signing", Err: err}
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, &CertificateBuildError{Step: "parsing signed certificate", Err: err}
	}
	return cert, nil
}

// DeviceCertChain builds the device certificate and returns it followed by
// the CA chain.
func DeviceCertChain(rand io.Reader, subject string, device PublicKeyProvider, caKey crypto.Signer, caChain []*x509.Certificate, now time.Time) ([]*x509.Certificate, error) {
	cert, err := BuildDeviceCertificate(rand, subject, device, caKey, caChain, now)
	if err != nil {
		return nil, err
	}
	return append([]*x509.Certificate{cert}, caChain...), nil
}
