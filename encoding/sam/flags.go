// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

// Flags is the 16-bit FLAG field of an alignment record.
type Flags uint16

const (
	// Paired is set when the template has multiple segments in sequencing.
	Paired Flags = 1 << iota
	// ProperPair is set when each segment is properly aligned.
	ProperPair
	// Unmapped is set when the segment is unmapped.
	Unmapped
	// MateUnmapped is set when the next segment is unmapped.
	MateUnmapped
	// Reverse is set when the segment is on the reverse strand.
	Reverse
	// MateReverse is set when the next segment is on the reverse strand.
	MateReverse
	// Read1 is the first segment of the template.
	Read1
	// Read2 is the last segment of the template.
	Read2
	// Secondary marks a secondary alignment.
	Secondary
	// QCFail marks a read that did not pass quality controls.
	QCFail
	// Duplicate marks a PCR or optical duplicate.
	Duplicate
	// Supplementary marks a supplementary alignment.
	Supplementary
)

// pairFlags are meaningless unless Paired is set.
const pairFlags = ProperPair | MateUnmapped | MateReverse | Read1 | Read2

// String renders the flags in the compact form used by samtools view -X,
// one character per bit from 0x1 to 0x800, '-' for unset bits.
func (f Flags) String() string {
	const chars = "pPuUrR12sfdS"
	if f&Paired == 0 {
		f &^= pairFlags
	}
	b := make([]byte, len(chars))
	for i := range chars {
		if f&(1<<uint(i)) != 0 {
			b[i] = chars[i]
		} else {
			b[i] = '-'
		}
	}
	return string(b)
}
