// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"fmt"
)

const (
	// UnknownMapQ is the mapping quality of a read whose quality is not
	// available.
	UnknownMapQ = 255

	// NoRefID is the reference id of a record without a reference.
	NoRefID = -1

	// NoPos is the 0-based position of a record without a position. It is
	// rendered as 0 in text form.
	NoPos = -1
)

// Record is one alignment. Positions are 0-based. Records do not point back
// to the header; functions that need reference names take the header as an
// argument.
type Record struct {
	Name      string
	RefID     int
	Pos       int
	MapQ      byte
	Cigar     Cigar
	Flags     Flags
	MateRefID int
	MatePos   int
	TempLen   int
	// Seq holds raw bases, one ASCII character per base. nil means absent.
	Seq []byte
	// Qual holds phred scores without the +33 offset. nil means absent.
	Qual      []byte
	AuxFields []Aux
	// IndexBin, if non-nil, is stored instead of the bin computed from the
	// alignment coordinates. Decoders set it from the wire.
	IndexBin *uint16
}

// NewRecord returns an unmapped record with no coordinates.
func NewRecord(name string) *Record {
	return &Record{
		Name:      name,
		RefID:     NoRefID,
		Pos:       NoPos,
		Flags:     Unmapped,
		MateRefID: NoRefID,
		MatePos:   NoPos,
	}
}

// Start returns the 0-based leftmost reference position.
func (r *Record) Start() int { return r.Pos }

// End returns the 0-based exclusive end of the alignment on the reference.
// It equals Start for a record whose cigar spans no reference bases.
func (r *Record) End() int { return r.Pos + r.Cigar.ReferenceLength() }

// Len returns the number of reference bases the record spans, at least 1 so
// that unmapped but placed records occupy a position in the index.
func (r *Record) Len() int {
	if n := r.Cigar.ReferenceLength(); n > 0 {
		return n
	}
	return 1
}

// AlignmentStart returns the 1-based leftmost position, 0 if none.
func (r *Record) AlignmentStart() int { return r.Pos + 1 }

// AlignmentEnd returns the 1-based inclusive rightmost position of the
// alignment. It is 0 for unmapped records.
func (r *Record) AlignmentEnd() int {
	if r.Flags&Unmapped != 0 {
		return 0
	}
	return r.Pos + r.Cigar.ReferenceLength()
}

// clipped returns the total length of the clipping operators at the start or
// at the end of the cigar.
func (r *Record) clipped(leading bool) int {
	n := 0
	for i := range r.Cigar {
		o := r.Cigar[i]
		if !leading {
			o = r.Cigar[len(r.Cigar)-1-i]
		}
		t := o.Type()
		if t != CigarSoftClipped && t != CigarHardClipped {
			break
		}
		n += o.Len()
	}
	return n
}

// UnclippedStart returns the 0-based position the alignment would start at
// if the leading soft and hard clips were aligned.
func (r *Record) UnclippedStart() int {
	return r.Pos - r.clipped(true)
}

// UnclippedEnd returns the 0-based inclusive position the alignment would end
// at if the trailing soft and hard clips were aligned.
func (r *Record) UnclippedEnd() int {
	return r.End() - 1 + r.clipped(false)
}

// AlignmentBlock is a gapless stretch of aligned bases. Positions are
// 1-based.
type AlignmentBlock struct {
	ReadStart      int
	ReferenceStart int
	Len            int
}

// AlignmentBlocks returns the gapless blocks of the alignment, in order, built
// from its M, = and X operators.
func (r *Record) AlignmentBlocks() []AlignmentBlock {
	var blocks []AlignmentBlock
	readBase, refBase := 1, r.AlignmentStart()
	for _, o := range r.Cigar {
		n := o.Len()
		switch o.Type() {
		case CigarHardClipped, CigarPadded:
		case CigarSoftClipped, CigarInsertion:
			readBase += n
		case CigarDeletion, CigarSkipped:
			refBase += n
		case CigarMatch, CigarEqual, CigarMismatch:
			blocks = append(blocks, AlignmentBlock{ReadStart: readBase, ReferenceStart: refBase, Len: n})
			readBase += n
			refBase += n
		}
	}
	return blocks
}

// IsMapped reports whether the read is mapped.
func (r *Record) IsMapped() bool { return r.Flags&Unmapped == 0 }

// IsPaired reports whether the read is part of a pair.
func (r *Record) IsPaired() bool { return r.Flags&Paired != 0 }

// IsReverse reports whether the read is on the reverse strand.
func (r *Record) IsReverse() bool { return r.Flags&Reverse != 0 }

// IsPrimary reports whether the alignment is neither secondary nor
// supplementary.
func (r *Record) IsPrimary() bool { return r.Flags&(Secondary|Supplementary) == 0 }

// HasMappedMate reports whether the read is paired and its mate is mapped.
func (r *Record) HasMappedMate() bool {
	return r.Flags&Paired != 0 && r.Flags&MateUnmapped == 0
}

// Tag returns the first optional field with the given tag.
func (r *Record) Tag(tag string) (Aux, bool) {
	if len(tag) != 2 {
		return Aux{}, false
	}
	for _, a := range r.AuxFields {
		if a.Tag[0] == tag[0] && a.Tag[1] == tag[1] {
			return a, true
		}
	}
	return Aux{}, false
}

// RefName returns the name of the record's reference in h, "*" if it has
// none.
func (r *Record) RefName(h *Header) string {
	return h.RefName(r.RefID)
}

// MateRefName returns the name of the mate's reference in h, "*" if it has
// none.
func (r *Record) MateRefName(h *Header) string {
	return h.RefName(r.MateRefID)
}

func (r *Record) String() string {
	return fmt.Sprintf("%s ref:%d pos:%d flags:%v cigar:%v mate:%d:%d tlen:%d",
		r.Name, r.RefID, r.Pos, r.Flags, r.Cigar, r.MateRefID, r.MatePos, r.TempLen)
}
