// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/sam"
)

// maxRecordSize bounds block_size to reject corrupt input before
// allocating.
const maxRecordSize = 1 << 28

// RawRecord is an encoded BAM record whose fixed-size fields can be
// read without decoding the rest.
type RawRecord struct {
	b []byte
}

// NewRawRecord wraps the bytes that follow a block_size word.  The
// lengths stored in b are checked against len(b).  b is retained.
func NewRawRecord(b []byte) (*RawRecord, error) {
	if _, err := parseLayout(b); err != nil {
		return nil, err
	}
	return &RawRecord{b: b}, nil
}

// ReadRawRecord reads one block_size prefixed record from r.  It
// returns io.EOF if r is at a clean end of stream, and an Integrity
// error if the stream ends inside a record.
func ReadRawRecord(r io.Reader) (*RawRecord, error) {
	var size [4]byte
	n, err := io.ReadFull(r, size[:])
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: truncated block_size (%d bytes)", n), err)
	}
	blockSize := int(int32(binary.LittleEndian.Uint32(size[:])))
	if blockSize < bamFixedBytes || blockSize > maxRecordSize {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: invalid block_size %d", blockSize))
	}
	b := make([]byte, blockSize)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: truncated record, block_size %d", blockSize), err)
	}
	return NewRawRecord(b)
}

// Bytes returns the encoded record without the block_size word.
func (r *RawRecord) Bytes() []byte { return r.b }

// RefID returns the reference id, -1 if the record has none.
func (r *RawRecord) RefID() int { return int(int32(binary.LittleEndian.Uint32(r.b))) }

// Pos returns the 0-based leftmost position, -1 if the record has none.
func (r *RawRecord) Pos() int { return int(int32(binary.LittleEndian.Uint32(r.b[4:]))) }

// Bin returns the stored bin.
func (r *RawRecord) Bin() uint16 { return binary.LittleEndian.Uint16(r.b[10:]) }

// Flags returns the flag word.
func (r *RawRecord) Flags() sam.Flags { return sam.Flags(binary.LittleEndian.Uint16(r.b[14:])) }

// Coord returns the sort key of the record.
func (r *RawRecord) Coord() Coord { return Coord{RefID: r.RefID(), Pos: r.Pos()} }

// Name returns the read name.
func (r *RawRecord) Name() string {
	return string(r.b[bamFixedBytes : bamFixedBytes+int(r.b[8])-1])
}

// ReferenceLength returns the number of reference bases the cigar
// consumes.
func (r *RawRecord) ReferenceLength() int {
	off := bamFixedBytes + int(r.b[8])
	n := int(binary.LittleEndian.Uint16(r.b[12:]))
	length := 0
	for i := 0; i < n; i++ {
		o := sam.CigarOp(binary.LittleEndian.Uint32(r.b[off+i*4:]))
		if o.Type().ConsumesReference() {
			length += o.Len()
		}
	}
	return length
}

// End returns the 0-based exclusive end of the record on the
// reference.  Records that span no reference bases, unmapped ones
// included, occupy one base.
func (r *RawRecord) End() int {
	return r.Pos() + recordSpan(r.Flags(), r.ReferenceLength())
}

// Force decodes the whole record.
func (r *RawRecord) Force(h *sam.Header) (*sam.Record, error) {
	return Unmarshal(r.b, h)
}
