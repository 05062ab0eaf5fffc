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
	"sync"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/sam"
)

// bamFixedBytes is the size of the fixed part of a record, excluding
// the block_size word.
const bamFixedBytes = 32

var (
	errNameTooLong                   = errors.E(errors.Invalid, "bam: read name too long or contains NUL")
	errSequenceQualityLengthMismatch = errors.E(errors.Invalid, "bam: sequence/quality length mismatch")
	errQualityOutOfRange             = errors.E(errors.Invalid, "bam: quality 255 is reserved for missing qualities")
	scratchPool                      = sync.Pool{New: func() interface{} { return new([]byte) }}
)

type binaryWriter struct {
	w   *bytes.Buffer
	buf [4]byte
}

func (w *binaryWriter) writeUint8(v uint8) {
	w.buf[0] = v
	w.w.Write(w.buf[:1])
}

func (w *binaryWriter) writeUint16(v uint16) {
	binary.LittleEndian.PutUint16(w.buf[:2], v)
	w.w.Write(w.buf[:2])
}

func (w *binaryWriter) writeInt32(v int32) {
	binary.LittleEndian.PutUint32(w.buf[:4], uint32(v))
	w.w.Write(w.buf[:4])
}

func (w *binaryWriter) writeUint32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	w.w.Write(w.buf[:4])
}

// IndexBin returns the bin stored for r: r.IndexBin when set,
// otherwise the bin of the reference interval r covers.  Unmapped
// records cover one base at their position.
func IndexBin(r *sam.Record) uint16 {
	if r.IndexBin != nil {
		return *r.IndexBin
	}
	return Reg2Bin(r.Pos, r.Pos+recordSpan(r.Flags, r.Cigar.ReferenceLength()))
}

// recordSpan returns the number of reference bases a record occupies
// for binning and queries.
func recordSpan(flags sam.Flags, refLen int) int {
	if flags&sam.Unmapped != 0 || refLen <= 0 {
		return 1
	}
	return refLen
}

func checkInt32(v int, what string) error {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return errors.E(errors.Invalid, fmt.Sprintf("bam: %s %d out of range", what, v))
	}
	return nil
}

// Marshal serializes the record in BAM format, including the leading
// block_size word, and appends it to buf.  An empty name is written as
// "*".  buf is left unmodified on error.
func Marshal(r *sam.Record, buf *bytes.Buffer) error {
	name := r.Name
	if name == "" {
		name = "*"
	}
	if len(name) > 254 || strings.IndexByte(name, 0) >= 0 {
		return errNameTooLong
	}
	if r.Qual != nil && len(r.Qual) != len(r.Seq) {
		return errSequenceQualityLengthMismatch
	}
	if len(r.Cigar) > math.MaxUint16 {
		return errors.E(errors.Invalid, fmt.Sprintf("bam: %s: too many cigar operations (%d)", r.Name, len(r.Cigar)))
	}
	for _, f := range []struct {
		v    int
		what string
	}{{r.RefID, "reference id"}, {r.Pos, "position"}, {r.MateRefID, "mate reference id"}, {r.MatePos, "mate position"}, {r.TempLen, "template length"}} {
		if err := checkInt32(f.v, f.what); err != nil {
			return err
		}
	}

	// Encode the variable length tail first so that errors leave buf
	// untouched.
	scratch := scratchPool.Get().(*[]byte)
	defer scratchPool.Put(scratch)
	tail := (*scratch)[:0]
	var err error
	if tail, err = appendSeq(tail, r.Seq); err != nil {
		return err
	}
	if r.Qual != nil {
		if bytes.IndexByte(r.Qual, 0xff) >= 0 {
			return errQualityOutOfRange
		}
		tail = append(tail, r.Qual...)
	} else {
		for range r.Seq {
			tail = append(tail, 0xff)
		}
	}
	for _, a := range r.AuxFields {
		if tail, err = appendAux(tail, a); err != nil {
			return err
		}
	}
	*scratch = tail

	bin := binaryWriter{w: buf}
	recLen := bamFixedBytes +
		len(name) + 1 + // Null terminated.
		len(r.Cigar)<<2 + // CigarOps are 4 bytes.
		len(tail)

	// Write record header data.
	bin.writeInt32(int32(recLen))
	bin.writeInt32(int32(r.RefID))
	bin.writeInt32(int32(r.Pos))
	bin.writeUint8(byte(len(name) + 1))
	bin.writeUint8(r.MapQ)
	bin.writeUint16(IndexBin(r))
	bin.writeUint16(uint16(len(r.Cigar)))
	bin.writeUint16(uint16(r.Flags))
	bin.writeInt32(int32(len(r.Seq)))
	bin.writeInt32(int32(r.MateRefID))
	bin.writeInt32(int32(r.MatePos))
	bin.writeInt32(int32(r.TempLen))

	// Write variable length data.
	buf.WriteString(name)
	buf.WriteByte(0)
	for _, o := range r.Cigar {
		bin.writeUint32(uint32(o))
	}
	buf.Write(tail)
	return nil
}
