package bam

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// seqCodes maps a 4-bit base code to its character.
const seqCodes = "=ACMGRSVTWYHKDBN"

var seqLookup [256]int8

func init() {
	for i := range seqLookup {
		seqLookup[i] = -1
	}
	for i := 0; i < len(seqCodes); i++ {
		seqLookup[seqCodes[i]] = int8(i)
		seqLookup[seqCodes[i]|0x20] = int8(i) // lowercase
	}
	seqLookup['.'] = 15
}

// appendSeq packs bases two per byte, high nibble first, and appends
// them to buf.
func appendSeq(buf []byte, seq []byte) ([]byte, error) {
	for i := 0; i < len(seq); i += 2 {
		hi := seqLookup[seq[i]]
		lo := int8(0)
		if i+1 < len(seq) {
			lo = seqLookup[seq[i+1]]
		}
		if hi < 0 || lo < 0 {
			return buf, errors.E(errors.Invalid, fmt.Sprintf("bam: invalid base in sequence %q", seq))
		}
		buf = append(buf, byte(hi)<<4|byte(lo))
	}
	return buf, nil
}

// unpackSeq expands n bases packed two per byte.
func unpackSeq(packed []byte, n int) []byte {
	seq := make([]byte, n)
	for i := range seq {
		b := packed[i>>1]
		if i&1 == 0 {
			b >>= 4
		}
		seq[i] = seqCodes[b&0xf]
	}
	return seq
}
