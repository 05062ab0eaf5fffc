// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Aux is one optional field of an alignment record: a two-character tag, a
// type code and a value.
//
// Value holds, depending on Type:
//   'A':                     byte
//   'c', 'C', 's', 'S', 'i', 'I': int64
//   'f':                     float32
//   'Z':                     string
//   'H':                     string (the hex digits as written)
//   'B':                     []int8, []uint8, []int16, []uint16, []int32,
//                            []uint32 or []float32
//
// For integers, Type records the wire width. An integer Aux keeps its width
// when re-encoded as long as the value still fits in it.
type Aux struct {
	Tag   [2]byte
	Type  byte
	Value interface{}
}

// Char is a single printable character. NewAux encodes it with type 'A'.
type Char byte

// Hex is a byte array. NewAux encodes it with type 'H' as uppercase hex
// digits. A plain []byte is a 'B' array of subtype 'C'.
type Hex []byte

// NewTag converts a two-character string to a tag.
func NewTag(s string) ([2]byte, error) {
	if len(s) != 2 {
		return [2]byte{}, errors.E(errors.Invalid, fmt.Sprintf("sam: tag %q must be two characters", s))
	}
	return [2]byte{s[0], s[1]}, nil
}

// IntegerType returns the narrowest integer type code whose range holds v.
// Wider unsigned types are preferred over wider signed types, narrow signed
// over narrow unsigned: 100 is 'c', 200 is 'C', -200 is 's'.
func IntegerType(v int64) (byte, error) {
	switch {
	case v > math.MaxUint32:
		return 0, errors.E(errors.Invalid, fmt.Sprintf("sam: integer tag value %d exceeds the unsigned 32-bit range", v))
	case v > math.MaxInt32:
		return 'I', nil
	case v > math.MaxUint16:
		return 'i', nil
	case v > math.MaxInt16:
		return 'S', nil
	case v > math.MaxUint8:
		return 's', nil
	case v > math.MaxInt8:
		return 'C', nil
	case v >= math.MinInt8:
		return 'c', nil
	case v >= math.MinInt16:
		return 's', nil
	case v >= math.MinInt32:
		return 'i', nil
	}
	return 0, errors.E(errors.Invalid, fmt.Sprintf("sam: integer tag value %d is below the signed 32-bit range", v))
}

// IsIntegerType reports whether t is one of the six integer type codes.
func IsIntegerType(t byte) bool {
	switch t {
	case 'c', 'C', 's', 'S', 'i', 'I':
		return true
	}
	return false
}

// IntegerTypeHolds reports whether integer type t can represent v.
func IntegerTypeHolds(t byte, v int64) bool {
	switch t {
	case 'c':
		return v >= math.MinInt8 && v <= math.MaxInt8
	case 'C':
		return v >= 0 && v <= math.MaxUint8
	case 's':
		return v >= math.MinInt16 && v <= math.MaxInt16
	case 'S':
		return v >= 0 && v <= math.MaxUint16
	case 'i':
		return v >= math.MinInt32 && v <= math.MaxInt32
	case 'I':
		return v >= 0 && v <= math.MaxUint32
	}
	return false
}

// NewAux creates an optional field, choosing the type from the dynamic type
// of v. Integers get the narrowest fitting width, strings 'Z', Char 'A',
// floats 'f', Hex 'H', and numeric slices, []byte included, 'B'.
func NewAux(tag string, v interface{}) (Aux, error) {
	t, err := NewTag(tag)
	if err != nil {
		return Aux{}, err
	}
	a := Aux{Tag: t}
	switch v := v.(type) {
	case Char:
		a.Type, a.Value = 'A', byte(v)
	case string:
		a.Type, a.Value = 'Z', v
	case float32:
		a.Type, a.Value = 'f', v
	case float64:
		a.Type, a.Value = 'f', float32(v)
	case Hex:
		a.Type, a.Value = 'H', strings.ToUpper(hex.EncodeToString(v))
	case []int8, []uint8, []int16, []uint16, []int32, []uint32, []float32:
		a.Type, a.Value = 'B', v
	default:
		n, ok := toInt64(v)
		if !ok {
			return Aux{}, errors.E(errors.Invalid, fmt.Sprintf("sam: unsupported tag value type %T for %s", v, tag))
		}
		if a.Type, err = IntegerType(n); err != nil {
			return Aux{}, err
		}
		a.Value = n
	}
	return a, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return math.MaxInt64, true
		}
		return int64(v), true
	}
	return 0, false
}

// IsHex reports whether s is a valid 'H' value: an even number of hex
// digits of either case.
func IsHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}

// DecodeHex returns the bytes of an 'H' field.
func (a Aux) DecodeHex() ([]byte, error) {
	s, ok := a.Value.(string)
	if a.Type != 'H' || !ok {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: tag %s is not a hex field", a.TagString()))
	}
	return hex.DecodeString(s)
}

// Int returns the value of an integer field.
func (a Aux) Int() (int64, bool) {
	v, ok := a.Value.(int64)
	return v, ok && IsIntegerType(a.Type)
}

// TagString returns the tag as a string.
func (a Aux) TagString() string { return string(a.Tag[:]) }

// String renders the field in SAM text form, TAG:TYPE:VALUE. Integers of any
// width are rendered with type 'i'.
func (a Aux) String() string {
	b, err := a.AppendText(nil)
	if err != nil {
		return fmt.Sprintf("%s:?:%v", a.TagString(), a.Value)
	}
	return string(b)
}

// AppendText appends the SAM text form of the field to buf.
func (a Aux) AppendText(buf []byte) ([]byte, error) {
	buf = append(buf, a.Tag[0], a.Tag[1], ':')
	bad := func() ([]byte, error) {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: tag %s: value %T does not match type %q", a.TagString(), a.Value, a.Type))
	}
	switch a.Type {
	case 'A':
		c, ok := a.Value.(byte)
		if !ok {
			return bad()
		}
		buf = append(buf, 'A', ':', c)
	case 'c', 'C', 's', 'S', 'i', 'I':
		n, ok := a.Value.(int64)
		if !ok {
			return bad()
		}
		buf = append(buf, 'i', ':')
		buf = strconv.AppendInt(buf, n, 10)
	case 'f':
		f, ok := a.Value.(float32)
		if !ok {
			return bad()
		}
		buf = append(buf, 'f', ':')
		buf = strconv.AppendFloat(buf, float64(f), 'g', -1, 32)
	case 'Z':
		s, ok := a.Value.(string)
		if !ok {
			return bad()
		}
		buf = append(buf, 'Z', ':')
		buf = append(buf, s...)
	case 'H':
		h, ok := a.Value.(string)
		if !ok || !IsHex(h) {
			return bad()
		}
		buf = append(buf, 'H', ':')
		buf = append(buf, h...)
	case 'B':
		sub, ok := ArraySubtype(a.Value)
		if !ok {
			return bad()
		}
		buf = append(buf, 'B', ':', sub)
		buf = appendArrayText(buf, a.Value)
	default:
		return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: tag %s: unknown type %q", a.TagString(), a.Type))
	}
	return buf, nil
}

// ArraySubtype returns the element type code of a 'B' array value.
func ArraySubtype(v interface{}) (byte, bool) {
	switch v.(type) {
	case []int8:
		return 'c', true
	case []uint8:
		return 'C', true
	case []int16:
		return 's', true
	case []uint16:
		return 'S', true
	case []int32:
		return 'i', true
	case []uint32:
		return 'I', true
	case []float32:
		return 'f', true
	}
	return 0, false
}

func appendArrayText(buf []byte, v interface{}) []byte {
	switch v := v.(type) {
	case []int8:
		for _, e := range v {
			buf = strconv.AppendInt(append(buf, ','), int64(e), 10)
		}
	case []uint8:
		for _, e := range v {
			buf = strconv.AppendInt(append(buf, ','), int64(e), 10)
		}
	case []int16:
		for _, e := range v {
			buf = strconv.AppendInt(append(buf, ','), int64(e), 10)
		}
	case []uint16:
		for _, e := range v {
			buf = strconv.AppendInt(append(buf, ','), int64(e), 10)
		}
	case []int32:
		for _, e := range v {
			buf = strconv.AppendInt(append(buf, ','), int64(e), 10)
		}
	case []uint32:
		for _, e := range v {
			buf = strconv.AppendInt(append(buf, ','), int64(e), 10)
		}
	case []float32:
		for _, e := range v {
			buf = strconv.AppendFloat(append(buf, ','), float64(e), 'g', -1, 32)
		}
	}
	return buf
}

// ParseAux parses one optional field in SAM text form, TAG:TYPE:VALUE.
// Text integers get the narrowest fitting binary width.
func ParseAux(field []byte) (Aux, error) {
	if len(field) < 5 || field[2] != ':' || field[4] != ':' {
		return Aux{}, errors.E(errors.Integrity, fmt.Sprintf("sam: malformed optional field %q", field))
	}
	a := Aux{Tag: [2]byte{field[0], field[1]}}
	val := field[5:]
	malformed := func(err error) (Aux, error) {
		msg := fmt.Sprintf("sam: malformed value in optional field %q", field)
		if err == nil {
			return Aux{}, errors.E(errors.Integrity, msg)
		}
		return Aux{}, errors.E(errors.Integrity, msg, err)
	}
	switch t := field[3]; t {
	case 'A':
		if len(val) != 1 {
			return malformed(nil)
		}
		a.Type, a.Value = 'A', val[0]
	case 'i', 'c', 'C', 's', 'S', 'I':
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return malformed(err)
		}
		if a.Type, err = IntegerType(n); err != nil {
			return Aux{}, err
		}
		a.Value = n
	case 'f':
		f, err := strconv.ParseFloat(string(val), 32)
		if err != nil {
			return malformed(err)
		}
		a.Type, a.Value = 'f', float32(f)
	case 'Z':
		a.Type, a.Value = 'Z', string(val)
	case 'H':
		if !IsHex(string(val)) {
			return malformed(nil)
		}
		a.Type, a.Value = 'H', string(val)
	case 'B':
		v, err := parseArrayText(val)
		if err != nil {
			return malformed(err)
		}
		a.Type, a.Value = 'B', v
	default:
		return Aux{}, errors.E(errors.Integrity, fmt.Sprintf("sam: unknown type %q in optional field %q", t, field))
	}
	return a, nil
}

func parseArrayText(val []byte) (interface{}, error) {
	if len(val) == 0 {
		return nil, fmt.Errorf("missing array subtype")
	}
	sub := val[0]
	var elems [][]byte
	if len(val) > 1 {
		if val[1] != ',' {
			return nil, fmt.Errorf("expected ',' after array subtype")
		}
		elems = bytes.Split(val[2:], []byte{','})
	}
	n := len(elems)
	if sub == 'f' {
		out := make([]float32, n)
		for i, e := range elems {
			f, err := strconv.ParseFloat(string(e), 32)
			if err != nil {
				return nil, err
			}
			out[i] = float32(f)
		}
		return out, nil
	}
	ints := make([]int64, n)
	for i, e := range elems {
		v, err := strconv.ParseInt(string(e), 10, 64)
		if err != nil {
			return nil, err
		}
		if !IntegerTypeHolds(sub, v) {
			return nil, fmt.Errorf("array element %d out of range for subtype %q", v, sub)
		}
		ints[i] = v
	}
	switch sub {
	case 'c':
		out := make([]int8, n)
		for i, v := range ints {
			out[i] = int8(v)
		}
		return out, nil
	case 'C':
		out := make([]uint8, n)
		for i, v := range ints {
			out[i] = uint8(v)
		}
		return out, nil
	case 's':
		out := make([]int16, n)
		for i, v := range ints {
			out[i] = int16(v)
		}
		return out, nil
	case 'S':
		out := make([]uint16, n)
		for i, v := range ints {
			out[i] = uint16(v)
		}
		return out, nil
	case 'i':
		out := make([]int32, n)
		for i, v := range ints {
			out[i] = int32(v)
		}
		return out, nil
	case 'I':
		out := make([]uint32, n)
		for i, v := range ints {
			out[i] = uint32(v)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown array subtype %q", sub)
}
