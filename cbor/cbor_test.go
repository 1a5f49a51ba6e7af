// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

func TestBstrKeepsExactBytes(t *testing.T) {
	// 1 encoded with a one byte argument instead of the shortest form
	input := []byte{0x42, 0x18, 0x01}

	var b cbor.Bstr[uint64]
	require.NoError(t, cbor.Unmarshal(input, &b))

	v, err := b.Value()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	assert.Equal(t, []byte{0x18, 0x01}, b.Bytes())

	output, err := cbor.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, input, output, "re-encoding must not normalize the wrapped bytes")
}

func TestBstrRejectsInvalidContents(t *testing.T) {
	var b cbor.Bstr[uint64]
	assert.Error(t, cbor.Unmarshal([]byte{0x41, 0x18}, &b), "truncated integer")
	assert.Error(t, cbor.Unmarshal([]byte{0x41, 0x60}, &b), "text string is not a uint64")
}

func TestNewBstr(t *testing.T) {
	type pair struct {
		_ struct{} `cbor:",toarray"`
		A string
		B []byte
	}
	b, err := cbor.NewBstr(pair{A: "x", B: []byte{1}})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x82, 0x61, 'x', 0x41, 0x01}, b.Bytes())

	got, err := b.Value()
	require.NoError(t, err)
	assert.Equal(t, "x", got.A)

	// Mutating a decoded value never reaches the wrapped bytes
	got.A = "y"
	again, err := b.Value()
	require.NoError(t, err)
	assert.Equal(t, "x", again.A)
}

func TestNilContainersEncodeEmpty(t *testing.T) {
	data, err := cbor.Marshal([]byte(nil))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x40}, data)

	data, err = cbor.Marshal([]string(nil))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80}, data)
}

func TestMapOrdering(t *testing.T) {
	m := cbor.Map{
		{Key: "b", Value: uint64(1)},
		{Key: "a", Value: uint64(2)},
		{Key: uint64(10), Value: true},
	}
	data, err := cbor.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa3, 0x0a, 0xf5, 0x61, 'a', 0x02, 0x61, 'b', 0x01}, data)

	var decoded map[any]any
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	assert.Len(t, decoded, 3)
}

func TestMapDuplicateKey(t *testing.T) {
	_, err := cbor.Marshal(cbor.Map{
		{Key: "a", Value: nil},
		{Key: "a", Value: true},
	})
	assert.Error(t, err)
}

func TestDecodeValue(t *testing.T) {
	for _, test := range []struct {
		name  string
		input []byte
		want  any
	}{
		{name: "array key", input: []byte{0xa1, 0x82, 0x01, 0x02, 0x61, 'x'},
			want: cbor.Map{{Key: []any{uint64(1), uint64(2)}, Value: "x"}}},
		{name: "indefinite map", input: []byte{0xbf, 0x01, 0x02, 0xff},
			want: cbor.Map{{Key: uint64(1), Value: uint64(2)}}},
		{name: "map in array", input: []byte{0x81, 0xa1, 0x01, 0x80},
			want: []any{cbor.Map{{Key: uint64(1), Value: []any{}}}}},
		{name: "tag", input: []byte{0xd8, 0x20, 0x61, 'u'},
			want: cbor.Tag{Number: 32, Content: "u"}},
		{name: "null", input: []byte{0xf6}, want: nil},
	} {
		t.Run(test.name, func(t *testing.T) {
			got, err := cbor.DecodeValue(test.input)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}

	_, err := cbor.DecodeValue([]byte{0xa1, 0x01})
	assert.Error(t, err, "map missing a value")
	_, err = cbor.DecodeValue([]byte{0x82, 0x01})
	assert.Error(t, err, "array missing an element")
}

func TestMapUnmarshal(t *testing.T) {
	m := cbor.Map{{Key: []any{"a"}, Value: uint64(1)}, {Key: "b", Value: cbor.Map{{Key: int64(-1), Value: true}}}}
	data, err := cbor.Marshal(m)
	require.NoError(t, err)

	var decoded cbor.Map
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	// "b" sorts before the array key
	assert.Equal(t, cbor.Map{{Key: "b", Value: cbor.Map{{Key: int64(-1), Value: true}}}, {Key: []any{"a"}, Value: uint64(1)}}, decoded)

	again, err := cbor.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestX509Certificate(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "cbor test"},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	chain := []*cbor.X509Certificate{(*cbor.X509Certificate)(cert)}
	data, err := cbor.Marshal(chain)
	require.NoError(t, err)

	var decoded []*cbor.X509Certificate
	require.NoError(t, cbor.Unmarshal(data, &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, der, decoded[0].Raw)
	assert.Equal(t, "cbor test", decoded[0].Subject.CommonName)

	var bad cbor.X509Certificate
	assert.Error(t, cbor.Unmarshal([]byte{0x43, 1, 2, 3}, &bad))
}
