package bgzf

import (
	"fmt"
)

// VOffset is a virtual offset into a .bgzf file. The upper 48 bits hold the
// file offset of the start of a compressed block, the lower 16 bits the
// offset within that block's uncompressed payload. Virtual offsets compare
// in stream order.
type VOffset uint64

// MakeVOffset combines a block start and an offset within the block.
func MakeVOffset(blockOffset int64, dataOffset int) VOffset {
	return VOffset(uint64(blockOffset)<<16 | uint64(uint16(dataOffset)))
}

// BlockOffset returns the file offset of the compressed block.
func (v VOffset) BlockOffset() int64 { return int64(v >> 16) }

// DataOffset returns the offset within the uncompressed block.
func (v VOffset) DataOffset() int { return int(v & 0xffff) }

func (v VOffset) String() string {
	return fmt.Sprintf("%d:%d", v.BlockOffset(), v.DataOffset())
}

// Chunk is the half-open range [Begin, End) of virtual offsets.
type Chunk struct {
	Begin, End VOffset
}

func (c Chunk) String() string {
	return fmt.Sprintf("[%v,%v)", c.Begin, c.End)
}
