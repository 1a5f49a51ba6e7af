// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package fdo

import (
	"crypto"
	"crypto/hmac"
	"crypto/x509"
	"errors"
	"fmt"
	"hash"
	"time"

	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// VerifyHeader checks that the OVHeader was not modified by comparing the HMAC
// generated using the secret from the device credentials.
func (v *Voucher) VerifyHeader(hmacSha256, hmacSha384 hash.Hash) error {
	return hmacVerify(hmacSha256, hmacSha384, v.Hmac, v.Header.Bytes())
}

// VerifyCertChainHash uses the hash in the voucher header to verify that the
// certificate chain of the voucher has not been tampered with.
func (v *Voucher) VerifyCertChainHash() error {
	header, err := v.DecodeHeader()
	if err != nil {
		return err
	}
	switch {
	case v.CertChain == nil && header.CertChainHash == nil:
		return nil
	case v.CertChain == nil || header.CertChainHash == nil:
		return errors.New("device cert chain and hash must both be present or both be absent")
	}

	chain := v.DeviceCertChain()
	sum, err := CertChainHash(header.CertChainHash.Algorithm, chain)
	if err != nil {
		return fmt.Errorf("error computing hash: %w", err)
	}
	if !hmac.Equal(sum.Value, header.CertChainHash.Value) {
		return &CertificateValidationError{
			Code:        CertValidationErrorChainHashMismatch,
			Certificate: chain[0],
		}
	}
	return nil
}

// VerifyDeviceCertChain using trusted roots. If roots is nil then the last
// certificate in the chain will be implicitly trusted.
func (v *Voucher) VerifyDeviceCertChain(roots *x509.CertPool, now time.Time) error {
	if v.CertChain == nil {
		return nil
	}
	if len(*v.CertChain) == 0 {
		return errors.New("empty cert chain")
	}
	return verifyCertChain(v.DeviceCertChain(), roots, now)
}

// VerifyEntries checks the chain of signatures and hashes on each voucher
// entry payload.
func (v *Voucher) VerifyEntries() error {
	header, err := v.DecodeHeader()
	if err != nil {
		return err
	}
	ownerKey, err := header.ManufacturerKey.Public()
	if err != nil {
		return fmt.Errorf("error parsing manufacturer public key: %w", err)
	}

	// Header info is the concatenation of GUID and DeviceInfo
	headerInfo := append(header.GUID[:], []byte(header.DeviceInfo)...)

	var (
		alg     protocol.HashAlg
		prevRaw []byte
	)
	for entry, err := range v.IterEntries() {
		if err != nil {
			return err
		}
		i, payload := entry.Index, entry.Payload

		// The algorithm used for hashing entries should always match the one
		// used during the very first extension
		if i == 0 {
			alg = payload.PreviousHash.Algorithm
		} else if payload.PreviousHash.Algorithm != alg {
			return fmt.Errorf("%w: entry %d previous hash was computed with %s instead of %s",
				ErrCryptoVerifyFailed, i, payload.PreviousHash.Algorithm, alg)
		}

		// Check payload has a valid COSE signature from the previous owner key
		if ok, err := entry.Sign1.Verify(ownerKey); err != nil {
			return fmt.Errorf("COSE signature for entry %d could not be verified: %w", i, err)
		} else if !ok {
			return fmt.Errorf("%w: COSE signature for entry %d did not match previous owner key", ErrCryptoVerifyFailed, i)
		}

		// Check payload's HeaderHash matches voucher header as hash[GUID||DeviceInfo]
		if payload.HeaderHash.Algorithm != alg {
			return fmt.Errorf("%w: entry %d header hash was computed with %s instead of %s",
				ErrCryptoVerifyFailed, i, payload.HeaderHash.Algorithm, alg)
		}
		headerHash, err := hashOf(alg, headerInfo)
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if !hmac.Equal(headerHash.Value, payload.HeaderHash.Value) {
			return fmt.Errorf("%w: entry %d header hash did not match", ErrCryptoVerifyFailed, i)
		}

		// Check payload's PreviousHash matches the previous entry, or for
		// entry 0, the header and its HMAC
		var prevHash protocol.Hash
		if i == 0 {
			prevHash, err = v.genesisHash(alg)
		} else {
			prevHash, err = hashOf(alg, prevRaw)
		}
		if err != nil {
			return err
		}
		if !hmac.Equal(prevHash.Value, payload.PreviousHash.Value) {
			return fmt.Errorf("%w: entry %d previous hash did not match", ErrCryptoVerifyFailed, i)
		}

		// Parse owner key for next iteration
		if ownerKey, err = payload.PublicKey.Public(); err != nil {
			return fmt.Errorf("error parsing public key of entry %d: %w", i, err)
		}
		prevRaw = entry.Raw
	}
	return nil
}

// VerifyOwnerKey checks that the voucher ends with the given public key.
func (v *Voucher) VerifyOwnerKey(pub crypto.PublicKey) error {
	expected, err := v.OwnerPublicKey()
	if err != nil {
		return fmt.Errorf("error parsing last public key of ownership voucher: %w", err)
	}
	if eq, ok := pub.(interface{ Equal(crypto.PublicKey) bool }); !ok || !eq.Equal(expected) {
		return fmt.Errorf("%w: owner public key did not match last entry in ownership voucher", ErrCryptoVerifyFailed)
	}
	return nil
}

func verifyCertChain(chain []*x509.Certificate, roots *x509.CertPool, now time.Time) error {
	// Check certificate expiration for all certificates in chain
	for i, cert := range chain {
		if err := checkCertificateValidity(cert, i, now); err != nil {
			return err
		}
	}

	// Add all intermediates (if any) to a pool
	intermediates := x509.NewCertPool()
	if len(chain) > 2 {
		for _, cert := range chain[1 : len(chain)-1] {
			intermediates.AddCert(cert)
		}
	}

	// Trust last certificate in chain if roots is nil
	if roots == nil {
		roots = x509.NewCertPool()
		roots.AddCert(chain[len(chain)-1])
	}

	if _, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   now,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}); err != nil {
		return &CertificateValidationError{
			Code:        CertValidationErrorSignature,
			Certificate: chain[0],
			Err:         err,
		}
	}

	return nil
}

// checkCertificateValidity checks if a certificate is within its validity period
func checkCertificateValidity(cert *x509.Certificate, index int, now time.Time) error {
	if now.Before(cert.NotBefore) {
		return &CertificateValidationError{Code: CertValidationErrorNotYetValid, Index: index, Certificate: cert}
	}
	if now.After(cert.NotAfter) {
		return &CertificateValidationError{Code: CertValidationErrorExpired, Index: index, Certificate: cert}
	}
	return nil
}
