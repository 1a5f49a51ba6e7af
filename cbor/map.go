// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package cbor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// Map is a CBOR map with keys of any type, including types that cannot be
// Go map keys such as slices and nested maps. Pairs are encoded ordered by the
// bytewise value of their encoded keys, so the order of the slice does not
// affect the encoding.
type Map []MapPair

// MapPair is a single key/value of a Map.
type MapPair struct {
	Key, Value any
}

// MarshalCBOR implements Marshaler.
func (m Map) MarshalCBOR() ([]byte, error) {
	type encodedPair struct{ key, val []byte }
	pairs := make([]encodedPair, len(m))
	for i, pair := range m {
		key, err := Marshal(pair.Key)
		if err != nil {
			return nil, fmt.Errorf("error encoding map key: %w", err)
		}
		val, err := Marshal(pair.Value)
		if err != nil {
			return nil, fmt.Errorf("error encoding map value for key %v: %w", pair.Key, err)
		}
		pairs[i] = encodedPair{key: key, val: val}
	}
	slices.SortFunc(pairs, func(a, b encodedPair) int { return bytes.Compare(a.key, b.key) })

	out := appendHead(nil, majorTypeMap, uint64(len(pairs)))
	for i, pair := range pairs {
		if i > 0 && bytes.Equal(pairs[i-1].key, pair.key) {
			return nil, fmt.Errorf("duplicate map key % x", pair.key)
		}
		out = append(out, pair.key...)
		out = append(out, pair.val...)
	}
	return out, nil
}

// UnmarshalCBOR implements Unmarshaler. Keys and values are decoded with
// DecodeValue. Pairs keep their encoded order.
func (m *Map) UnmarshalCBOR(data []byte) error {
	major, n, indefinite, rest, err := readHead(data)
	if err != nil {
		return err
	}
	if major != majorTypeMap {
		return fmt.Errorf("cbor: cannot decode major type %d into Map", major>>5)
	}
	if !indefinite && n > uint64(len(rest)) {
		return io.ErrUnexpectedEOF
	}
	items, err := readItems(rest, 2*n, indefinite)
	if err != nil {
		return err
	}
	if len(items)%2 != 0 {
		return errors.New("cbor: map has a key without a value")
	}

	pairs := make(Map, 0, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		key, err := DecodeValue(items[i])
		if err != nil {
			return err
		}
		val, err := DecodeValue(items[i+1])
		if err != nil {
			return err
		}
		pairs = append(pairs, MapPair{Key: key, Value: val})
	}
	*m = pairs
	return nil
}

// DecodeValue decodes one item into the generic data model, as Unmarshal
// into an any would, except that maps at any depth decode as Map and tags as
// Tag. This keeps maps whose keys are arrays or maps, which cannot be Go map
// keys.
func DecodeValue(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	switch data[0] & 0xe0 {
	case majorTypeMap:
		var m Map
		if err := m.UnmarshalCBOR(data); err != nil {
			return nil, err
		}
		return m, nil

	case majorTypeArray:
		_, n, indefinite, rest, err := readHead(data)
		if err != nil {
			return nil, err
		}
		if !indefinite && n > uint64(len(rest)) {
			return nil, io.ErrUnexpectedEOF
		}
		items, err := readItems(rest, n, indefinite)
		if err != nil {
			return nil, err
		}
		list := make([]any, len(items))
		for i, item := range items {
			if list[i], err = DecodeValue(item); err != nil {
				return nil, err
			}
		}
		return list, nil

	case majorTypeTag:
		var tag RawTag
		if err := Unmarshal(data, &tag); err != nil {
			return nil, err
		}
		content, err := DecodeValue(tag.Content)
		if err != nil {
			return nil, err
		}
		return Tag{Number: tag.Number, Content: content}, nil

	default:
		var v any
		if err := Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
}

// readItems splits n consecutive items, or items up to a break code when
// indefinite, and requires that nothing follows them.
func readItems(data []byte, n uint64, indefinite bool) ([]RawBytes, error) {
	var items []RawBytes
	for i := uint64(0); indefinite || i < n; i++ {
		if indefinite && len(data) > 0 && data[0] == breakCode {
			data = data[1:]
			break
		}
		var item RawBytes
		rest, err := decMode.UnmarshalFirst(data, &item)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
		data = rest
	}
	if len(data) > 0 {
		return nil, errors.New("cbor: unexpected data after container items")
	}
	return items, nil
}

// readHead parses an item head. Indefinite length heads report n as zero.
func readHead(data []byte) (major byte, n uint64, indefinite bool, rest []byte, err error) {
	if len(data) == 0 {
		return 0, 0, false, nil, io.ErrUnexpectedEOF
	}
	major, info := data[0]&0xe0, data[0]&0x1f
	data = data[1:]
	switch {
	case info < 24:
		return major, uint64(info), false, data, nil
	case info == 31:
		return major, 0, true, data, nil
	case info > 27:
		return 0, 0, false, nil, fmt.Errorf("cbor: invalid additional information %d", info)
	}
	size := 1 << (info - 24)
	if len(data) < size {
		return 0, 0, false, nil, io.ErrUnexpectedEOF
	}
	for _, b := range data[:size] {
		n = n<<8 | uint64(b)
	}
	return major, n, false, data[size:], nil
}

const (
	majorTypeArray byte = 4 << 5
	majorTypeMap   byte = 5 << 5
	majorTypeTag   byte = 6 << 5

	breakCode byte = 0xff
)

// appendHead writes an item head using the shortest argument encoding.
func appendHead(b []byte, major byte, n uint64) []byte {
	switch {
	case n < 24:
		return append(b, major|byte(n))
	case n <= math.MaxUint8:
		return append(b, major|24, byte(n))
	case n <= math.MaxUint16:
		return binary.BigEndian.AppendUint16(append(b, major|25), uint16(n))
	case n <= math.MaxUint32:
		return binary.BigEndian.AppendUint32(append(b, major|26), uint32(n))
	default:
		return binary.BigEndian.AppendUint64(append(b, major|27), n)
	}
}
