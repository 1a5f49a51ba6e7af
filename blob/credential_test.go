// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package blob_test

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fido-device-onboard/go-fdo-owner-tool/blob"
	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

func newCredential(t *testing.T) (*blob.DeviceCredential, *ecdsa.PrivateKey, []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	secret := make([]byte, 32)
	_, err = rand.Read(secret)
	require.NoError(t, err)
	guid, err := protocol.NewGUID(rand.Reader)
	require.NoError(t, err)
	devPort, err := protocol.NewRvInstruction(protocol.RVDevPort, uint64(8080))
	require.NoError(t, err)
	bypass, err := protocol.NewRvInstruction(protocol.RVBypass, nil)
	require.NoError(t, err)

	dc, err := blob.NewDeviceCredential("dev-1", guid, [][]protocol.RvInstruction{{devPort, bypass}}, key, secret)
	require.NoError(t, err)
	return dc, key, secret
}

func TestNewDeviceCredential(t *testing.T) {
	dc, key, secret := newCredential(t)

	assert.True(t, dc.Active)
	assert.Equal(t, protocol.Version, dc.DeviceCredential.Version)
	assert.Equal(t, "dev-1", dc.DeviceCredential.DeviceInfo)
	assert.Equal(t, protocol.Sha384Hash, dc.DeviceCredential.PublicKeyHash.Algorithm)
	assert.Empty(t, dc.DeviceCredential.PublicKeyHash.Value)
	assert.Equal(t, secret, []byte(dc.HmacSecret))
	assert.True(t, key.PublicKey.Equal(dc.Public()))
}

func TestNewDeviceCredentialRejects(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	p521, err := ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	require.NoError(t, err)

	_, err = blob.NewDeviceCredential("d", protocol.GUID{}, nil, key, make([]byte, 16))
	require.Error(t, err)
	_, err = blob.NewDeviceCredential("d", protocol.GUID{}, nil, p521, make([]byte, 32))
	require.Error(t, err)
}

func TestDeviceCredentialRoundTrip(t *testing.T) {
	dc, key, secret := newCredential(t)

	data, err := cbor.Marshal(dc)
	require.NoError(t, err)
	var decoded blob.DeviceCredential
	require.NoError(t, cbor.Unmarshal(data, &decoded))

	assert.Equal(t, dc.Active, decoded.Active)
	assert.Equal(t, dc.DeviceCredential.Version, decoded.DeviceCredential.Version)
	assert.Equal(t, dc.DeviceCredential.DeviceInfo, decoded.DeviceCredential.DeviceInfo)
	assert.Equal(t, dc.DeviceCredential.GUID, decoded.DeviceCredential.GUID)
	assert.Equal(t, dc.DeviceCredential.RvInfo, decoded.DeviceCredential.RvInfo)
	assert.Equal(t, dc.DeviceCredential.PublicKeyHash.Algorithm, decoded.DeviceCredential.PublicKeyHash.Algorithm)
	assert.Empty(t, decoded.DeviceCredential.PublicKeyHash.Value)
	assert.Equal(t, secret, []byte(decoded.HmacSecret))

	decodedKey, ok := decoded.PrivateKey.Signer.(*ecdsa.PrivateKey)
	require.True(t, ok, "decoded key is %T", decoded.PrivateKey.Signer)
	assert.True(t, key.Equal(decodedKey))

	again, err := cbor.Marshal(&decoded)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestDeviceCredentialRedactsSecrets(t *testing.T) {
	dc, key, secret := newCredential(t)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	for _, out := range []string{
		dc.String(),
		fmt.Sprintf("%v", dc),
		fmt.Sprintf("%+v", *dc),
		fmt.Sprintf("%#v", *dc),
		fmt.Sprintf("%s", dc.HmacSecret),
		fmt.Sprintf("%v", dc.PrivateKey),
	} {
		for _, secretBytes := range [][]byte{secret, der, key.D.Bytes()} {
			assert.NotContains(t, out, string(secretBytes))
			assert.NotContains(t, out, hex.EncodeToString(secretBytes))
			assert.NotContains(t, strings.ToLower(out), strings.ToLower(fmt.Sprintf("%X", secretBytes)))
			assert.NotContains(t, out, base64.StdEncoding.EncodeToString(secretBytes))
		}
	}
	assert.Contains(t, dc.String(), "HMAC secret: <secret>")
	assert.Contains(t, dc.String(), "Device Info: dev-1")
	assert.Contains(t, dc.String(), "- device-port: 8080")
	assert.Contains(t, dc.String(), dc.DeviceCredential.GUID.String())
}

func TestDeviceCredentialHMACs(t *testing.T) {
	dc, _, _ := newCredential(t)
	h256, h384 := dc.HMACs()
	require.NotNil(t, h256)
	require.NotNil(t, h384)
	assert.Equal(t, 32, h256.Size())
	assert.Equal(t, 48, h384.Size())

	_, err := dc.HmacSecret.NewHmac(protocol.Sha256Hash)
	require.Error(t, err)
}

func TestDeviceCredentialSigner(t *testing.T) {
	dc, key, _ := newCredential(t)
	digest := sha256.Sum256([]byte("hello"))

	sig, err := dc.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)
	assert.True(t, ecdsa.VerifyASN1(&key.PublicKey, digest[:], sig))

	var empty blob.DeviceCredential
	assert.Nil(t, empty.Public())
	_, err = empty.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.Error(t, err)
	assert.False(t, bytes.Contains([]byte(empty.String()), []byte("fingerprint")))
}
