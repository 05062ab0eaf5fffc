package bam

import (
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/bgzf"
	"github.com/grailbio/samcore/encoding/sam"
	"v.io/x/lib/vlog"
)

type refIndexBuilder struct {
	bins      map[uint32]*Bin
	intervals []bgzf.VOffset
	meta      *Metadata
}

// IndexBuilder builds an Index from the records of a coordinate
// sorted BAM file and the chunks they occupy, in file order.
type IndexBuilder struct {
	refs   []refIndexBuilder
	last   Coord
	n      int
	noCoor uint64
}

// NewIndexBuilder creates a builder for a file whose header has nRefs
// references.
func NewIndexBuilder(nRefs int) *IndexBuilder {
	return &IndexBuilder{refs: make([]refIndexBuilder, nRefs)}
}

// Add records that r occupies chunk c of the file.  Records must be
// added in coordinate order, those without a reference last.
func (b *IndexBuilder) Add(r *RawRecord, c bgzf.Chunk) error {
	coord := r.Coord()
	if b.n > 0 && coord.LT(b.last) {
		return errors.E(errors.Invalid, fmt.Sprintf("bam index: record %s at %v follows %v: input is not coordinate sorted", r.Name(), coord, b.last))
	}
	b.n++
	b.last = coord
	refID := coord.RefID
	if refID < 0 {
		b.noCoor++
		return nil
	}
	if refID >= len(b.refs) {
		return errors.E(errors.Invalid, fmt.Sprintf("bam index: record %s: reference id %d out of range", r.Name(), refID))
	}
	ref := &b.refs[refID]
	flags := r.Flags()

	if ref.meta == nil {
		ref.meta = &Metadata{UnmappedBegin: c.Begin, UnmappedEnd: c.End}
	}
	if c.Begin < ref.meta.UnmappedBegin {
		ref.meta.UnmappedBegin = c.Begin
	}
	if c.End > ref.meta.UnmappedEnd {
		ref.meta.UnmappedEnd = c.End
	}
	if flags&sam.Unmapped != 0 {
		ref.meta.UnmappedCount++
	} else {
		ref.meta.MappedCount++
	}

	pos := r.Pos()
	if pos < 0 {
		// Placed on a reference without a position: counted only.
		return nil
	}
	end := r.End()

	binNum := uint32(Reg2Bin(pos, end))
	if ref.bins == nil {
		ref.bins = make(map[uint32]*Bin)
	}
	bin := ref.bins[binNum]
	if bin == nil {
		bin = &Bin{BinNum: binNum}
		ref.bins[binNum] = bin
	}
	if n := len(bin.Chunks); n > 0 && (bin.Chunks[n-1].End >= c.Begin || bin.Chunks[n-1].End.BlockOffset() == c.Begin.BlockOffset()) {
		if c.End > bin.Chunks[n-1].End {
			bin.Chunks[n-1].End = c.End
		}
	} else {
		bin.Chunks = append(bin.Chunks, c)
	}

	first, last := pos>>linearShift, (end-1)>>linearShift
	for len(ref.intervals) <= last {
		ref.intervals = append(ref.intervals, 0)
	}
	for i := first; i <= last; i++ {
		if ref.intervals[i] == 0 {
			ref.intervals[i] = c.Begin
		}
	}
	return nil
}

// Index returns the index of the records added so far.
func (b *IndexBuilder) Index() *Index {
	idx := &Index{Magic: IndexMagic, Refs: make([]Reference, len(b.refs))}
	for i := range b.refs {
		rb := &b.refs[i]
		ref := &idx.Refs[i]
		for _, bin := range rb.bins {
			ref.Bins = append(ref.Bins, Bin{BinNum: bin.BinNum, Chunks: append([]bgzf.Chunk(nil), bin.Chunks...)})
		}
		sort.Slice(ref.Bins, func(a, c int) bool { return ref.Bins[a].BinNum < ref.Bins[c].BinNum })
		// Tiles that no record starts in inherit the offset of the
		// previous tile.
		ref.Intervals = append([]bgzf.VOffset(nil), rb.intervals...)
		for k := 1; k < len(ref.Intervals); k++ {
			if ref.Intervals[k] == 0 {
				ref.Intervals[k] = ref.Intervals[k-1]
			}
		}
		if rb.meta != nil {
			m := *rb.meta
			ref.Meta = &m
		}
	}
	noCoor := b.noCoor
	idx.UnmappedCount = &noCoor
	vlog.VI(1).Infof("bam index: %d records, %d without coordinates", b.n, b.noCoor)
	return idx
}
