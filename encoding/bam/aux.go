// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/sam"
)

// jumps is the payload size of fixed-width tag types, or -1 for
// variable-width types.
var jumps = [256]int{
	'A': 1,
	'c': 1, 'C': 1,
	's': 2, 'S': 2,
	'i': 4, 'I': 4,
	'f': 4,
	'Z': -1,
	'H': -1,
	'B': -1,
}

// appendAux encodes one optional field in BAM form and appends it to
// buf.
func appendAux(buf []byte, a sam.Aux) ([]byte, error) {
	bad := func() ([]byte, error) {
		return buf, errors.E(errors.Invalid, fmt.Sprintf("bam: tag %s: value %v (%T) does not match type %q",
			a.TagString(), a.Value, a.Value, a.Type))
	}
	buf = append(buf, a.Tag[0], a.Tag[1])
	switch a.Type {
	case 'A':
		v, ok := a.Value.(byte)
		if !ok {
			return bad()
		}
		buf = append(buf, 'A', v)
	case 'c', 'C', 's', 'S', 'i', 'I':
		v, ok := a.Int()
		if !ok {
			return bad()
		}
		t := a.Type
		if !sam.IntegerTypeHolds(t, v) {
			var err error
			if t, err = sam.IntegerType(v); err != nil {
				return buf, err
			}
		}
		buf = append(buf, t)
		buf = appendInt(buf, t, v)
	case 'f':
		v, ok := a.Value.(float32)
		if !ok {
			return bad()
		}
		buf = append(buf, 'f')
		buf = appendUint32(buf, math.Float32bits(v))
	case 'Z':
		v, ok := a.Value.(string)
		if !ok || strings.IndexByte(v, 0) >= 0 {
			return bad()
		}
		buf = append(buf, 'Z')
		buf = append(buf, v...)
		buf = append(buf, 0)
	case 'H':
		v, ok := a.Value.(string)
		if !ok || !sam.IsHex(v) {
			return bad()
		}
		buf = append(buf, 'H')
		buf = append(buf, v...)
		buf = append(buf, 0)
	case 'B':
		sub, ok := sam.ArraySubtype(a.Value)
		if !ok {
			return bad()
		}
		buf = append(buf, 'B', sub)
		buf = appendArray(buf, a.Value)
	default:
		return buf, errors.E(errors.Invalid, fmt.Sprintf("bam: tag %s: unknown type %q", a.TagString(), a.Type))
	}
	return buf, nil
}

func appendUint16(buf []byte, v uint16) []byte {
	return append(buf, byte(v), byte(v>>8))
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// appendInt appends v with the width of integer type t.  v must fit.
func appendInt(buf []byte, t byte, v int64) []byte {
	switch jumps[t] {
	case 1:
		return append(buf, byte(v))
	case 2:
		return appendUint16(buf, uint16(v))
	default:
		return appendUint32(buf, uint32(v))
	}
}

func appendArray(buf []byte, v interface{}) []byte {
	switch v := v.(type) {
	case []int8:
		buf = appendUint32(buf, uint32(len(v)))
		for _, e := range v {
			buf = append(buf, byte(e))
		}
	case []uint8:
		buf = appendUint32(buf, uint32(len(v)))
		buf = append(buf, v...)
	case []int16:
		buf = appendUint32(buf, uint32(len(v)))
		for _, e := range v {
			buf = appendUint16(buf, uint16(e))
		}
	case []uint16:
		buf = appendUint32(buf, uint32(len(v)))
		for _, e := range v {
			buf = appendUint16(buf, e)
		}
	case []int32:
		buf = appendUint32(buf, uint32(len(v)))
		for _, e := range v {
			buf = appendUint32(buf, uint32(e))
		}
	case []uint32:
		buf = appendUint32(buf, uint32(len(v)))
		for _, e := range v {
			buf = appendUint32(buf, e)
		}
	case []float32:
		buf = appendUint32(buf, uint32(len(v)))
		for _, e := range v {
			buf = appendUint32(buf, math.Float32bits(e))
		}
	}
	return buf
}

var errCorruptAuxField = errors.E(errors.Integrity, "bam: corrupt aux field")

// parseAux decodes the optional fields of a BAM record.  The values
// do not share memory with aux.
func parseAux(aux []byte) ([]sam.Aux, error) {
	var aa []sam.Aux
	for i := 0; i < len(aux); {
		if i+3 > len(aux) {
			return nil, errCorruptAuxField
		}
		a := sam.Aux{Tag: [2]byte{aux[i], aux[i+1]}, Type: aux[i+2]}
		i += 3
		switch j := jumps[a.Type]; {
		case j > 0:
			if i+j > len(aux) {
				return nil, errCorruptAuxField
			}
			v := aux[i : i+j]
			switch a.Type {
			case 'A':
				a.Value = v[0]
			case 'f':
				a.Value = math.Float32frombits(binary.LittleEndian.Uint32(v))
			default:
				a.Value = decodeInt(a.Type, v)
			}
			i += j
		case a.Type == 'Z' || a.Type == 'H':
			n := bytes.IndexByte(aux[i:], 0)
			if n < 0 {
				return nil, errCorruptAuxField
			}
			v := aux[i : i+n]
			if a.Type == 'H' && !sam.IsHex(string(v)) {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: tag %s: invalid hex value %q", a.TagString(), v))
			}
			a.Value = string(v)
			i += n + 1
		case a.Type == 'B':
			if i+5 > len(aux) {
				return nil, errCorruptAuxField
			}
			sub := aux[i]
			n := int(binary.LittleEndian.Uint32(aux[i+1:]))
			i += 5
			w := jumps[sub]
			if w <= 0 || sub == 'A' || n < 0 || n > (len(aux)-i)/w {
				return nil, errCorruptAuxField
			}
			a.Value = decodeArray(sub, n, aux[i:i+n*w])
			i += n * w
		default:
			return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: tag %s: unknown type %q", a.TagString(), a.Type))
		}
		aa = append(aa, a)
	}
	return aa, nil
}

func decodeInt(t byte, v []byte) int64 {
	switch t {
	case 'c':
		return int64(int8(v[0]))
	case 'C':
		return int64(v[0])
	case 's':
		return int64(int16(binary.LittleEndian.Uint16(v)))
	case 'S':
		return int64(binary.LittleEndian.Uint16(v))
	case 'i':
		return int64(int32(binary.LittleEndian.Uint32(v)))
	}
	return int64(binary.LittleEndian.Uint32(v))
}

func decodeArray(sub byte, n int, b []byte) interface{} {
	switch sub {
	case 'c':
		out := make([]int8, n)
		for i := range out {
			out[i] = int8(b[i])
		}
		return out
	case 'C':
		return append([]uint8(nil), b[:n]...)
	case 's':
		out := make([]int16, n)
		for i := range out {
			out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
		}
		return out
	case 'S':
		out := make([]uint16, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint16(b[2*i:])
		}
		return out
	case 'i':
		out := make([]int32, n)
		for i := range out {
			out[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
		}
		return out
	case 'I':
		out := make([]uint32, n)
		for i := range out {
			out[i] = binary.LittleEndian.Uint32(b[4*i:])
		}
		return out
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return out
}
