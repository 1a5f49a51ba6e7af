// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package protocol

import (
	"fmt"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

// RvVar is an FDO RVVariable.
type RvVar uint8

// Rendezvous Variables
const (
	RVDevOnly    RvVar = 0
	RVOwnerOnly  RvVar = 1
	RVIPAddress  RvVar = 2
	RVDevPort    RvVar = 3
	RVOwnerPort  RvVar = 4
	RVDns        RvVar = 5
	RVSvCertHash RvVar = 6
	RVClCertHash RvVar = 7
	RVUserInput  RvVar = 8
	RVWifiSsid   RvVar = 9
	RVWifiPw     RvVar = 10
	RVMedium     RvVar = 11
	RVProtocol   RvVar = 12
	RVDelaysec   RvVar = 13
	RVBypass     RvVar = 14
	RVExtRV      RvVar = 15
)

// rvVarNames is the name table used by rendezvous descriptor documents.
var rvVarNames = [...]string{
	RVDevOnly:    "dev-only",
	RVOwnerOnly:  "owner-only",
	RVIPAddress:  "ip-address",
	RVDevPort:    "device-port",
	RVOwnerPort:  "owner-port",
	RVDns:        "dns",
	RVSvCertHash: "server-cert-hash",
	RVClCertHash: "client-cert-hash",
	RVUserInput:  "user-input",
	RVWifiSsid:   "wifi-ssid",
	RVWifiPw:     "wifi-password",
	RVMedium:     "medium",
	RVProtocol:   "protocol",
	RVDelaysec:   "delay-seconds",
	RVBypass:     "bypass",
	RVExtRV:      "external-rv",
}

// IsFlag reports whether v is a flag-like variable whose value may be
// omitted.
func (v RvVar) IsFlag() bool {
	return v == RVDevOnly || v == RVOwnerOnly || v == RVBypass
}

func (v RvVar) String() string {
	if int(v) < len(rvVarNames) {
		return rvVarNames[v]
	}
	return fmt.Sprintf("RvVar(%d)", uint8(v))
}

// ParseRvVar matches name exactly (case-sensitive) against the rendezvous
// variable name table.
func ParseRvVar(name string) (RvVar, bool) {
	for i, known := range rvVarNames {
		if name == known {
			return RvVar(i), true
		}
	}
	return 0, false
}

// RvInstruction contains a paired rendezvous variable identifier and value.
//
//	RendezvousInstr = [
//	    RVVariable,
//	    RVValue
//	]
//	RVValue = bstr .cbor any
//
// Flag-like variables (RVDevOnly, RVOwnerOnly, RVBypass) may omit the value,
// in which case Value is empty and the instruction encodes as [RVVariable].
type RvInstruction struct {
	Variable RvVar
	Value    []byte
}

// NewRvInstruction encodes value and pairs it with v. A nil value produces a
// value-less instruction for flag variables and an encoded null otherwise.
func NewRvInstruction(v RvVar, value any) (RvInstruction, error) {
	if value == nil && v.IsFlag() {
		return RvInstruction{Variable: v}, nil
	}
	data, err := cbor.Marshal(value)
	if err != nil {
		return RvInstruction{}, fmt.Errorf("error encoding value of rendezvous variable %s: %w", v, err)
	}
	return RvInstruction{Variable: v, Value: data}, nil
}

// MarshalCBOR implements cbor.Marshaler.
func (rv RvInstruction) MarshalCBOR() ([]byte, error) {
	if len(rv.Value) == 0 {
		return cbor.Marshal([]any{rv.Variable})
	}
	return cbor.Marshal([]any{rv.Variable, rv.Value})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (rv *RvInstruction) UnmarshalCBOR(data []byte) error {
	var raw []cbor.RawBytes
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < 1 || len(raw) > 2 {
		return fmt.Errorf("rendezvous instruction must have 1 or 2 elements, got %d", len(raw))
	}
	var instr RvInstruction
	if err := cbor.Unmarshal(raw[0], &instr.Variable); err != nil {
		return fmt.Errorf("rendezvous variable: %w", err)
	}
	if len(raw) == 2 {
		if err := cbor.Unmarshal(raw[1], &instr.Value); err != nil {
			return fmt.Errorf("rendezvous value: %w", err)
		}
		if len(instr.Value) > 0 {
			if err := cbor.Wellformed(instr.Value); err != nil {
				return fmt.Errorf("rendezvous value of %s is not valid CBOR: %w", instr.Variable, err)
			}
		}
	}
	*rv = instr
	return nil
}

// Decoded returns the value as a generic CBOR data model value, or nil for a
// value-less instruction. Maps decode as cbor.Map so keys of any type are
// kept.
func (rv RvInstruction) Decoded() (any, error) {
	if len(rv.Value) == 0 {
		return nil, nil
	}
	v, err := cbor.DecodeValue(rv.Value)
	if err != nil {
		return nil, fmt.Errorf("error decoding value of rendezvous variable %s: %w", rv.Variable, err)
	}
	return v, nil
}

func (rv RvInstruction) String() string {
	if len(rv.Value) == 0 {
		return rv.Variable.String()
	}
	v, err := rv.Decoded()
	if err != nil {
		return fmt.Sprintf("%s: <%v>", rv.Variable, err)
	}
	return fmt.Sprintf("%s: %v", rv.Variable, formatValue(v))
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case []byte:
		return fmt.Sprintf("h'%x'", v)
	case []any:
		s := "["
		for i, elem := range v {
			if i > 0 {
				s += ", "
			}
			s += formatValue(elem)
		}
		return s + "]"
	case cbor.Map:
		s := "{"
		for i, pair := range v {
			if i > 0 {
				s += ", "
			}
			s += formatValue(pair.Key) + ": " + formatValue(pair.Value)
		}
		return s + "}"
	case cbor.Tag:
		return fmt.Sprintf("%d(%s)", v.Number, formatValue(v.Content))
	default:
		return fmt.Sprint(v)
	}
}
