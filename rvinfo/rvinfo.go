// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package rvinfo loads rendezvous info from a YAML (or JSON) document.
//
// The document is a sequence of mappings. Each mapping is one rendezvous
// directive and each key one rendezvous variable, named as in the table of
// [protocol.ParseRvVar]:
//
//	- dns: rv.example.com
//	  device-port: 8080
//	  protocol: http
//	- ip-address: 192.168.122.1
//	  delay-seconds: 30
//	- bypass:
//
// A variable with no value (null) is encoded without an RVValue.
package rvinfo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/fido-device-onboard/go-fdo-owner-tool/protocol"
)

// Error kinds, matched with errors.Is.
var (
	ErrUnknownRendezvousVariable = errors.New("unknown rendezvous variable")
	ErrUnsupportedValueType      = errors.New("unsupported value type")
)

// UnknownRendezvousVariableError is returned for a key that is not in the
// rendezvous variable name table.
type UnknownRendezvousVariableError struct {
	Name string
	Line int
}

func (e *UnknownRendezvousVariableError) Error() string {
	return fmt.Sprintf("line %d: unknown rendezvous variable %q", e.Line, e.Name)
}

// Is implements errors.Is.
func (e *UnknownRendezvousVariableError) Is(target error) bool {
	return target == ErrUnknownRendezvousVariable
}

// UnsupportedValueTypeError is returned for a value outside of null, bool,
// integer, float, string, sequence, and mapping.
type UnsupportedValueTypeError struct {
	Tag  string
	Line int
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("line %d: unsupported value type %s", e.Line, e.Tag)
}

// Is implements errors.Is.
func (e *UnsupportedValueTypeError) Is(target error) bool {
	return target == ErrUnsupportedValueType
}

// Load reads and parses a rendezvous info document.
func Load(path string) ([][]protocol.RvInstruction, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("error reading rendezvous info %q: %w", path, err)
	}
	rvInfo, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing rendezvous info %q: %w", path, err)
	}
	return rvInfo, nil
}

// Parse converts a rendezvous info document to its protocol encoding.
// Directive order and variable order within each directive are preserved.
func Parse(data []byte) ([][]protocol.RvInstruction, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, errors.New("document is empty")
	}

	root := resolve(doc.Content[0])
	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a sequence of rendezvous directives", root.Line)
	}

	rvInfo := make([][]protocol.RvInstruction, 0, len(root.Content))
	for _, entry := range root.Content {
		directive, err := parseDirective(resolve(entry))
		if err != nil {
			return nil, err
		}
		rvInfo = append(rvInfo, directive)
	}
	return rvInfo, nil
}

func parseDirective(node *yaml.Node) ([]protocol.RvInstruction, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping of rendezvous variables", node.Line)
	}

	directive := make([]protocol.RvInstruction, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := resolve(node.Content[i]), node.Content[i+1]
		if key.Kind != yaml.ScalarNode || key.ShortTag() == mergeTag {
			return nil, &UnsupportedValueTypeError{Tag: key.ShortTag(), Line: key.Line}
		}
		rv, ok := protocol.ParseRvVar(key.Value)
		if !ok {
			return nil, &UnknownRendezvousVariableError{Name: key.Value, Line: key.Line}
		}

		value, err := Convert(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rv, err)
		}
		instr, err := protocol.NewRvInstruction(rv, value)
		if err != nil {
			return nil, err
		}
		directive = append(directive, instr)
	}
	return directive, nil
}

func resolve(node *yaml.Node) *yaml.Node {
	for node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	return node
}
