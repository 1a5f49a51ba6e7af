// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package rvinfo

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/fido-device-onboard/go-fdo-owner-tool/cbor"
)

const (
	nullTag      = "!!null"
	boolTag      = "!!bool"
	intTag       = "!!int"
	floatTag     = "!!float"
	strTag       = "!!str"
	timestampTag = "!!timestamp"
	mergeTag     = "!!merge"
)

// Convert maps a YAML node to a value of the CBOR data model:
//
//	null     -> nil
//	bool     -> bool
//	int      -> uint64, or int64 if negative, or float64 if out of range
//	float    -> float64
//	string   -> string
//	sequence -> []any
//	mapping  -> cbor.Map
//
// Aliases are followed. Every other node, including explicitly tagged
// binary and timestamp scalars and custom tags, is an
// *UnsupportedValueTypeError.
func Convert(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.AliasNode:
		if node.Alias == nil {
			return nil, &UnsupportedValueTypeError{Tag: "alias", Line: node.Line}
		}
		return Convert(node.Alias)

	case yaml.DocumentNode:
		if len(node.Content) != 1 {
			return nil, &UnsupportedValueTypeError{Tag: "document", Line: node.Line}
		}
		return Convert(node.Content[0])

	case yaml.ScalarNode:
		return convertScalar(node)

	case yaml.SequenceNode:
		list := make([]any, len(node.Content))
		for i, elem := range node.Content {
			v, err := Convert(elem)
			if err != nil {
				return nil, err
			}
			list[i] = v
		}
		return list, nil

	case yaml.MappingNode:
		m := make(cbor.Map, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].ShortTag() == mergeTag {
				return nil, &UnsupportedValueTypeError{Tag: mergeTag, Line: node.Content[i].Line}
			}
			key, err := Convert(node.Content[i])
			if err != nil {
				return nil, err
			}
			val, err := Convert(node.Content[i+1])
			if err != nil {
				return nil, err
			}
			m = append(m, cbor.MapPair{Key: key, Value: val})
		}
		return m, nil

	default:
		return nil, &UnsupportedValueTypeError{Tag: fmt.Sprintf("kind %d", node.Kind), Line: node.Line}
	}
}

func convertScalar(node *yaml.Node) (any, error) {
	switch tag := node.ShortTag(); tag {
	case nullTag:
		return nil, nil

	case boolTag:
		var b bool
		if err := node.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return b, nil

	case intTag:
		var u uint64
		if err := node.Decode(&u); err == nil {
			return u, nil
		}
		var i int64
		if err := node.Decode(&i); err == nil {
			return i, nil
		}
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: integer %q out of range: %w", node.Line, node.Value, err)
		}
		return f, nil

	case floatTag:
		var f float64
		if err := node.Decode(&f); err != nil {
			return nil, fmt.Errorf("line %d: %w", node.Line, err)
		}
		return f, nil

	case strTag:
		return node.Value, nil

	case timestampTag:
		// Plain scalars that merely look like dates stay text; only an
		// explicit !!timestamp is rejected.
		if node.Style&yaml.TaggedStyle == 0 {
			return node.Value, nil
		}
		return nil, &UnsupportedValueTypeError{Tag: tag, Line: node.Line}

	default:
		return nil, &UnsupportedValueTypeError{Tag: tag, Line: node.Line}
	}
}
