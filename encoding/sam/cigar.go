// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
)

// CigarOpType is the operator of one cigar element.
type CigarOpType uint8

const (
	CigarMatch       CigarOpType = iota // M
	CigarInsertion                      // I
	CigarDeletion                       // D
	CigarSkipped                        // N
	CigarSoftClipped                    // S
	CigarHardClipped                    // H
	CigarPadded                         // P
	CigarEqual                          // =
	CigarMismatch                       // X
	lastCigarOp
)

const cigarOpChars = "MIDNSHP=X"

var cigarOpLookup [256]CigarOpType

func init() {
	for i := range cigarOpLookup {
		cigarOpLookup[i] = lastCigarOp
	}
	for i := 0; i < len(cigarOpChars); i++ {
		cigarOpLookup[cigarOpChars[i]] = CigarOpType(i)
	}
}

// String returns the one-letter code of the operator, or "?" for an invalid
// operator.
func (t CigarOpType) String() string {
	if t >= lastCigarOp {
		return "?"
	}
	return cigarOpChars[t : t+1]
}

// ConsumesReference reports whether the operator advances along the
// reference.
func (t CigarOpType) ConsumesReference() bool {
	switch t {
	case CigarMatch, CigarDeletion, CigarSkipped, CigarEqual, CigarMismatch:
		return true
	}
	return false
}

// ConsumesQuery reports whether the operator advances along the read.
func (t CigarOpType) ConsumesQuery() bool {
	switch t {
	case CigarMatch, CigarInsertion, CigarSoftClipped, CigarEqual, CigarMismatch:
		return true
	}
	return false
}

// CigarOp is one cigar element. Its value is the BAM wire encoding,
// (length << 4) | operator.
type CigarOp uint32

// maxCigarOpLen is the largest length representable in 28 bits.
const maxCigarOpLen = 1<<28 - 1

// NewCigarOp creates an element of type t with length n.
func NewCigarOp(t CigarOpType, n int) CigarOp {
	return CigarOp(n)<<4 | CigarOp(t)
}

// Type returns the operator.
func (o CigarOp) Type() CigarOpType { return CigarOpType(o & 0xf) }

// Len returns the operator length.
func (o CigarOp) Len() int { return int(o >> 4) }

func (o CigarOp) String() string {
	return strconv.Itoa(o.Len()) + o.Type().String()
}

// Cigar is an ordered list of cigar elements.
type Cigar []CigarOp

// String renders the cigar in text form. An empty cigar renders as "*".
func (c Cigar) String() string {
	if len(c) == 0 {
		return "*"
	}
	return string(c.AppendText(nil))
}

// AppendText appends the text form of a non-empty cigar to buf.
func (c Cigar) AppendText(buf []byte) []byte {
	for _, o := range c {
		buf = strconv.AppendInt(buf, int64(o.Len()), 10)
		buf = append(buf, o.Type().String()...)
	}
	return buf
}

// ReferenceLength returns the number of reference bases spanned by the
// alignment: the sum of M, D, N, = and X lengths.
func (c Cigar) ReferenceLength() int {
	n := 0
	for _, o := range c {
		if o.Type().ConsumesReference() {
			n += o.Len()
		}
	}
	return n
}

// ReadLength returns the number of read bases the cigar describes.
func (c Cigar) ReadLength() int {
	n := 0
	for _, o := range c {
		if o.Type().ConsumesQuery() {
			n += o.Len()
		}
	}
	return n
}

// IsValid reports whether the cigar describes a read of seqLen bases, with
// clipping operators only at the ends.
func (c Cigar) IsValid(seqLen int) bool {
	for i, o := range c {
		switch t := o.Type(); t {
		case CigarHardClipped:
			if i != 0 && i != len(c)-1 {
				return false
			}
		case CigarSoftClipped:
			if i != 0 && i != len(c)-1 &&
				c[i-1].Type() != CigarHardClipped && c[i+1].Type() != CigarHardClipped {
				return false
			}
		default:
			if t >= lastCigarOp {
				return false
			}
		}
	}
	return seqLen == 0 || c.ReadLength() == seqLen
}

// ParseCigar parses the text form of a cigar. "*" yields an empty cigar.
// Unknown operators and malformed lengths are format errors.
func ParseCigar(b []byte) (Cigar, error) {
	if len(b) == 0 {
		return nil, errors.E(errors.Integrity, "sam: empty cigar field")
	}
	if len(b) == 1 && b[0] == '*' {
		return nil, nil
	}
	var (
		c      Cigar
		n      int
		digits int
	)
	for i, ch := range b {
		if ch >= '0' && ch <= '9' {
			n = n*10 + int(ch-'0')
			digits++
			if n > maxCigarOpLen {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: cigar %q: operation length too large at %d", b, i))
			}
			continue
		}
		t := cigarOpLookup[ch]
		if t == lastCigarOp {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: cigar %q: unknown operation %q", b, ch))
		}
		if digits == 0 {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: cigar %q: missing length before %q", b, ch))
		}
		c = append(c, NewCigarOp(t, n))
		n, digits = 0, 0
	}
	if digits != 0 {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: cigar %q: trailing length without operation", b))
	}
	return c, nil
}
