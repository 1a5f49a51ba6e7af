// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package rvinfo_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
	"github.com/fido-device-onboard/go-fdo-owner-tool/rvinfo"
)

func TestLoad(t *testing.T) {
	rvInfo, err := rvinfo.Load("testdata/rvinfo.yaml")
	require.NoError(t, err)
	require.Len(t, rvInfo, 2)

	require.Len(t, rvInfo[0], 3)
	assert.Equal(t, protocol.RVDns, rvInfo[0][0].Variable)
	assert.Equal(t, append([]byte{0x6e}, "rv.example.com"...), rvInfo[0][0].Value)
	assert.Equal(t, protocol.RVOwnerPort, rvInfo[0][1].Variable)
	assert.Equal(t, []byte{0x19, 0x1f, 0x6b}, rvInfo[0][1].Value)
	assert.Equal(t, protocol.RVProtocol, rvInfo[0][2].Variable)
	assert.Equal(t, []byte{0x03}, rvInfo[0][2].Value)

	require.Len(t, rvInfo[1], 4)
	assert.Equal(t, protocol.RVDevOnly, rvInfo[1][0].Variable)
	assert.Empty(t, rvInfo[1][0].Value)
	assert.Equal(t, protocol.RVIPAddress, rvInfo[1][1].Variable)
	assert.Equal(t, protocol.RVDevPort, rvInfo[1][2].Variable)
	assert.Equal(t, []byte{0x19, 0x1f, 0x90}, rvInfo[1][2].Value)
	assert.Equal(t, protocol.RVDelaysec, rvInfo[1][3].Variable)
	assert.Equal(t, []byte{0x18, 0x1e}, rvInfo[1][3].Value)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := rvinfo.Load("testdata/does-not-exist.yaml")
	require.Error(t, err)
}

func TestParseValues(t *testing.T) {
	for _, test := range []struct {
		name string
		doc  string
		want any
	}{
		{name: "negative int", doc: "- delay-seconds: -1", want: int64(-1)},
		{name: "float", doc: "- delay-seconds: 1.5", want: float64(1.5)},
		{name: "bool", doc: "- bypass: true", want: true},
		{name: "quoted number", doc: `- dns: "8080"`, want: "8080"},
		{name: "implicit timestamp", doc: "- user-input: 2024-01-02", want: "2024-01-02"},
		{name: "sequence", doc: "- medium: [1, 2]", want: []any{uint64(1), uint64(2)}},
		{name: "alias", doc: "- dns: &host rv.example.com\n  wifi-ssid: *host", want: "rv.example.com"},
	} {
		t.Run(test.name, func(t *testing.T) {
			rvInfo, err := rvinfo.Parse([]byte(test.doc))
			require.NoError(t, err)
			require.Len(t, rvInfo, 1)
			last := rvInfo[0][len(rvInfo[0])-1]
			got, err := last.Decoded()
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestParseMappingValueIsOrdered(t *testing.T) {
	rvInfo, err := rvinfo.Parse([]byte("- external-rv: {b: 1, a: 2}"))
	require.NoError(t, err)

	want, err := cbor.Marshal(cbor.Map{{Key: "a", Value: uint64(2)}, {Key: "b", Value: uint64(1)}})
	require.NoError(t, err)
	assert.Equal(t, want, rvInfo[0][0].Value)
}

func TestParseNullValues(t *testing.T) {
	rvInfo, err := rvinfo.Parse([]byte("- device-port: ~\n  owner-only: ~\n  dns: null"))
	require.NoError(t, err)
	require.Len(t, rvInfo, 1)
	require.Len(t, rvInfo[0], 3)

	assert.Equal(t, []byte{0xf6}, rvInfo[0][0].Value)
	assert.Equal(t, "device-port: null", rvInfo[0][0].String())
	assert.Empty(t, rvInfo[0][1].Value)
	assert.Equal(t, "owner-only", rvInfo[0][1].String())
	assert.Equal(t, []byte{0xf6}, rvInfo[0][2].Value)
}

func TestParseMappingWithSequenceKey(t *testing.T) {
	rvInfo, err := rvinfo.Parse([]byte("- dns: {[1,2]: x}"))
	require.NoError(t, err)

	got, err := rvInfo[0][0].Decoded()
	require.NoError(t, err)
	assert.Equal(t, cbor.Map{{Key: []any{uint64(1), uint64(2)}, Value: "x"}}, got)
	assert.Equal(t, `dns: {[1, 2]: "x"}`, rvInfo[0][0].String())
}

func TestParseJSON(t *testing.T) {
	rvInfo, err := rvinfo.Parse([]byte(`[{"dns": "rv.example.com", "device-port": 8080}]`))
	require.NoError(t, err)
	require.Len(t, rvInfo, 1)
	require.Len(t, rvInfo[0], 2)
	assert.Equal(t, protocol.RVDevPort, rvInfo[0][1].Variable)
}

func TestParseEmptyDirectiveList(t *testing.T) {
	rvInfo, err := rvinfo.Parse([]byte("[]"))
	require.NoError(t, err)
	assert.Empty(t, rvInfo)
}

func TestParseErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		doc  string
		is   error
	}{
		{name: "unknown variable", doc: "- dns: a\n  port: 1", is: rvinfo.ErrUnknownRendezvousVariable},
		{name: "wrong case", doc: "- DNS: a", is: rvinfo.ErrUnknownRendezvousVariable},
		{name: "binary", doc: "- dns: !!binary aGVsbG8=", is: rvinfo.ErrUnsupportedValueType},
		{name: "explicit timestamp", doc: "- dns: !!timestamp 2024-01-02", is: rvinfo.ErrUnsupportedValueType},
		{name: "custom tag", doc: "- dns: !host a", is: rvinfo.ErrUnsupportedValueType},
		{name: "merge key", doc: "- external-rv:\n    <<: {a: 1}", is: rvinfo.ErrUnsupportedValueType},
		{name: "empty document", doc: ""},
		{name: "not a sequence", doc: "dns: a"},
		{name: "directive not a mapping", doc: "- dns"},
		{name: "malformed", doc: "- dns: [a"},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := rvinfo.Parse([]byte(test.doc))
			require.Error(t, err)
			if test.is != nil {
				assert.True(t, errors.Is(err, test.is), "error %v is not %v", err, test.is)
			}
		})
	}
}

func TestUnknownVariableErrorLine(t *testing.T) {
	_, err := rvinfo.Parse([]byte("- dns: a\n- bogus: 1"))
	var unknown *rvinfo.UnknownRendezvousVariableError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "bogus", unknown.Name)
	assert.Equal(t, 2, unknown.Line)
}
