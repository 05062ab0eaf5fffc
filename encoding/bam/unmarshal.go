package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/sam"
)

var errRecordTooShort = errors.E(errors.Integrity, "bam: record too short")

// layout holds the offsets of the variable length parts of a record.
type layout struct {
	nameLen, nCigar, lSeq int
	cigarOff, seqOff      int
	qualOff, auxOff       int
}

// parseLayout validates the lengths stored in the fixed part of b
// against len(b).
func parseLayout(b []byte) (layout, error) {
	if len(b) < bamFixedBytes {
		return layout{}, errRecordTooShort
	}
	l := layout{
		nameLen: int(b[8]),
		nCigar:  int(binary.LittleEndian.Uint16(b[12:])),
		lSeq:    int(int32(binary.LittleEndian.Uint32(b[16:]))),
	}
	if l.nameLen == 0 || l.lSeq < 0 {
		return layout{}, errors.E(errors.Integrity, fmt.Sprintf("bam: corrupt record: l_read_name=%d l_seq=%d", l.nameLen, l.lSeq))
	}
	l.cigarOff = bamFixedBytes + l.nameLen
	l.seqOff = l.cigarOff + l.nCigar*4
	l.qualOff = l.seqOff + (l.lSeq+1)>>1
	l.auxOff = l.qualOff + l.lSeq
	if len(b) < l.auxOff {
		return layout{}, errors.E(errors.Integrity, fmt.Sprintf("bam: block_size %d does not cover the record fields (%d bytes)", len(b), l.auxOff))
	}
	if b[l.cigarOff-1] != 0 {
		return layout{}, errors.E(errors.Integrity, "bam: read name is not NUL terminated")
	}
	return l, nil
}

// Unmarshal decodes a serialized BAM record.  b holds the bytes that
// follow the block_size word, and must hold exactly one record.
// Reference ids are checked against h.  The result does not share
// memory with b.
func Unmarshal(b []byte, h *sam.Header) (*sam.Record, error) {
	l, err := parseLayout(b)
	if err != nil {
		return nil, err
	}
	// Need to use int(int32(uint32)) to ensure 2's complement extension of -1.
	rec := &sam.Record{
		RefID:     int(int32(binary.LittleEndian.Uint32(b))),
		Pos:       int(int32(binary.LittleEndian.Uint32(b[4:]))),
		MapQ:      b[9],
		Flags:     sam.Flags(binary.LittleEndian.Uint16(b[14:])),
		MateRefID: int(int32(binary.LittleEndian.Uint32(b[20:]))),
		MatePos:   int(int32(binary.LittleEndian.Uint32(b[24:]))),
		TempLen:   int(int32(binary.LittleEndian.Uint32(b[28:]))),
	}
	bin := binary.LittleEndian.Uint16(b[10:])
	rec.IndexBin = &bin
	refs := h.NumRefs()
	if rec.RefID < -1 || rec.RefID >= refs {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: reference id %d out of range", rec.RefID))
	}
	if rec.MateRefID < -1 || rec.MateRefID >= refs {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: mate reference id %d out of range", rec.MateRefID))
	}

	if name := b[bamFixedBytes : l.cigarOff-1]; !(len(name) == 1 && name[0] == '*') {
		rec.Name = string(name)
	}
	if l.nCigar > 0 {
		rec.Cigar = make(sam.Cigar, l.nCigar)
		for i := range rec.Cigar {
			o := sam.CigarOp(binary.LittleEndian.Uint32(b[l.cigarOff+i*4:]))
			if o.Type() > sam.CigarMismatch {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: %s: unknown cigar operation %d", rec.Name, o&0xf))
			}
			rec.Cigar[i] = o
		}
	}
	if l.lSeq > 0 {
		rec.Seq = unpackSeq(b[l.seqOff:l.qualOff], l.lSeq)
		qual := b[l.qualOff:l.auxOff]
		if missing := bytes.Count(qual, []byte{0xff}); missing == 0 {
			rec.Qual = append([]byte(nil), qual...)
		} else if missing != len(qual) {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: %s: quality 255 mixed with quality scores", rec.Name))
		}
	}
	if rec.AuxFields, err = parseAux(b[l.auxOff:]); err != nil {
		return nil, errors.E(err, fmt.Sprintf("bam: record %s", rec.Name))
	}
	return rec, nil
}
