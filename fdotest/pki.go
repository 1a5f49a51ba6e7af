// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package fdotest contains key, certificate, and file fixtures shared by the
// tests of the owner tool packages. All material is generated per test.
package fdotest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	mathrand "math/rand/v2"
	"os"
	"testing"
	"time"
)

// NewRand returns a deterministic random source derived from seed.
func NewRand(seed string) io.Reader {
	return mathrand.NewChaCha8(sha256.Sum256([]byte(seed)))
}

// CA is a device certificate authority: an intermediate signing key and its
// chain, intermediate first and root last.
type CA struct {
	Key   crypto.Signer
	Chain []*x509.Certificate
}

// NewCA creates a two level device CA.
func NewCA(t testing.TB) *CA {
	t.Helper()

	rootKey := newKey(t, elliptic.P384())
	root := newCert(t, "Test Device Root CA", rootKey, nil, nil, true)

	key := newKey(t, elliptic.P256())
	intermediate := newCert(t, "Test Device CA", key, root, rootKey, true)

	return &CA{Key: key, Chain: []*x509.Certificate{intermediate, root}}
}

// Party is an owner or manufacturer: a key pair and a self-signed certificate.
type Party struct {
	Key  *ecdsa.PrivateKey
	Cert *x509.Certificate
}

// NewParty creates a key pair on curve with a self-signed certificate.
func NewParty(t testing.TB, name string, curve elliptic.Curve) *Party {
	t.Helper()

	key := newKey(t, curve)
	return &Party{Key: key, Cert: newCert(t, name, key, nil, nil, false)}
}

func newKey(t testing.TB, curve elliptic.Curve) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	return key
}

func newCert(t testing.TB, name string, key crypto.Signer, parent *x509.Certificate, parentKey crypto.Signer, isCA bool) *x509.Certificate {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: name, Organization: []string{"FDO Test"}},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
		KeyUsage:              x509.KeyUsageDigitalSignature,
	}
	if isCA {
		template.KeyUsage |= x509.KeyUsageCertSign
	}
	if parent == nil {
		parent, parentKey = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	if err != nil {
		t.Fatalf("error creating certificate %q: %v", name, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("error parsing certificate %q: %v", name, err)
	}
	return cert
}

// WriteCertsPEM writes certificates as consecutive PEM blocks.
func WriteCertsPEM(t testing.TB, path string, certs ...*x509.Certificate) {
	t.Helper()

	var data []byte
	for _, cert := range certs {
		data = append(data, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	writeFile(t, path, data)
}

// WriteKeyDER writes a private key as PKCS#8 DER.
func WriteKeyDER(t testing.TB, path string, key crypto.Signer) {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("error marshaling private key: %v", err)
	}
	writeFile(t, path, der)
}

// WriteKeyPEM writes a private key as a PKCS#8 PEM block.
func WriteKeyPEM(t testing.TB, path string, key crypto.Signer) {
	t.Helper()

	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("error marshaling private key: %v", err)
	}
	writeFile(t, path, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func writeFile(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("error writing %s: %v", path, err)
	}
}
