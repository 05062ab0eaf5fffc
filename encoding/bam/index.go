package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/biogo/store/llrb"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/bgzf"
)

// IndexMagic is the first four bytes of a .bai file.
var IndexMagic = [4]byte{'B', 'A', 'I', 0x1}

// Index represents the content of a .bai index file (for use with a .bam file).
type Index struct {
	Magic [4]byte
	Refs  []Reference
	// UnmappedCount is the number of records without a reference, nil
	// when the file does not record it.
	UnmappedCount *uint64
}

// Reference represents the reference data within a .bai file.
type Reference struct {
	// Bins are sorted by BinNum.
	Bins []Bin
	// Intervals[i] is the smallest virtual offset of a record that
	// overlaps the i'th 16KB tile of the reference.
	Intervals []bgzf.VOffset
	// Meta is nil if the file has no metadata pseudo bin for the
	// reference.
	Meta *Metadata
}

// Bin represents the bin data within a .bai file.
type Bin struct {
	BinNum uint32
	Chunks []bgzf.Chunk
}

// Metadata represents the Metadata data within a .bai file.
type Metadata struct {
	UnmappedBegin bgzf.VOffset
	UnmappedEnd   bgzf.VOffset
	MappedCount   uint64
	UnmappedCount uint64
}

type indexReader struct {
	r   io.Reader
	err error
}

func (r *indexReader) read(v interface{}, what string) {
	if r.err != nil {
		return
	}
	if err := binary.Read(r.r, binary.LittleEndian, v); err != nil {
		r.err = errors.E(errors.Integrity, "bam index: reading "+what, err)
	}
}

func (r *indexReader) count(what string) int {
	var n int32
	r.read(&n, what)
	if r.err == nil && n < 0 {
		r.err = errors.E(errors.Integrity, fmt.Sprintf("bam index: negative %s %d", what, n))
	}
	return int(n)
}

// ReadIndex parses the content of r and returns an Index or nil and an error.
func ReadIndex(r io.Reader) (*Index, error) {
	i := &Index{}
	if _, err := io.ReadFull(r, i.Magic[0:]); err != nil {
		return nil, errors.E(errors.Integrity, "bam index: reading magic", err)
	}
	if i.Magic != IndexMagic {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam index: invalid magic: %v", i.Magic))
	}

	ir := indexReader{r: r}
	refCount := ir.count("reference count")
	for refID := 0; refID < refCount && ir.err == nil; refID++ {
		var ref Reference
		binCount := ir.count("bin count")
		for b := 0; b < binCount && ir.err == nil; b++ {
			var binNum uint32
			ir.read(&binNum, "bin number")
			chunkCount := ir.count("chunk count")
			if ir.err != nil {
				break
			}
			chunks := make([]uint64, 2*chunkCount)
			ir.read(chunks, "chunks")
			bin := Bin{BinNum: binNum, Chunks: make([]bgzf.Chunk, chunkCount)}
			for c := range bin.Chunks {
				bin.Chunks[c] = bgzf.Chunk{Begin: bgzf.VOffset(chunks[2*c]), End: bgzf.VOffset(chunks[2*c+1])}
			}
			if binNum != MetaBin {
				ref.Bins = append(ref.Bins, bin)
				continue
			}
			// If we have a metadata chunk, put it in ref.Meta instead of ref.Bins.
			if len(bin.Chunks) != 2 {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("bam index: metadata bin has %d chunks, should have 2", len(bin.Chunks)))
			}
			ref.Meta = &Metadata{
				UnmappedBegin: bin.Chunks[0].Begin,
				UnmappedEnd:   bin.Chunks[0].End,
				MappedCount:   uint64(bin.Chunks[1].Begin),
				UnmappedCount: uint64(bin.Chunks[1].End),
			}
		}
		intervalCount := ir.count("interval count")
		if ir.err != nil {
			break
		}
		intervals := make([]uint64, intervalCount)
		ir.read(intervals, "intervals")
		ref.Intervals = make([]bgzf.VOffset, intervalCount)
		for k, v := range intervals {
			ref.Intervals[k] = bgzf.VOffset(v)
		}
		sort.Slice(ref.Bins, func(a, b int) bool { return ref.Bins[a].BinNum < ref.Bins[b].BinNum })
		i.Refs = append(i.Refs, ref)
	}
	if ir.err != nil {
		return nil, ir.err
	}

	var unmappedCount uint64
	if err := binary.Read(r, binary.LittleEndian, &unmappedCount); err == nil {
		i.UnmappedCount = &unmappedCount
	} else if err != io.EOF {
		return nil, errors.E(errors.Integrity, "bam index: reading unmapped count", err)
	}
	return i, nil
}

// WriteIndex writes idx in .bai format.
func WriteIndex(w io.Writer, idx *Index) error {
	var buf bytes.Buffer
	bin := binaryWriter{w: &buf}
	buf.Write(IndexMagic[:])
	bin.writeInt32(int32(len(idx.Refs)))
	for _, ref := range idx.Refs {
		nBins := len(ref.Bins)
		if ref.Meta != nil {
			nBins++
		}
		bin.writeInt32(int32(nBins))
		for _, b := range ref.Bins {
			bin.writeUint32(b.BinNum)
			bin.writeInt32(int32(len(b.Chunks)))
			for _, c := range b.Chunks {
				writeUint64(&buf, uint64(c.Begin))
				writeUint64(&buf, uint64(c.End))
			}
		}
		if m := ref.Meta; m != nil {
			bin.writeUint32(MetaBin)
			bin.writeInt32(2)
			writeUint64(&buf, uint64(m.UnmappedBegin))
			writeUint64(&buf, uint64(m.UnmappedEnd))
			writeUint64(&buf, m.MappedCount)
			writeUint64(&buf, m.UnmappedCount)
		}
		bin.writeInt32(int32(len(ref.Intervals)))
		for _, v := range ref.Intervals {
			writeUint64(&buf, uint64(v))
		}
	}
	if idx.UnmappedCount != nil {
		writeUint64(&buf, *idx.UnmappedCount)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// chunkItem orders chunks by their begin offset for use in llrb.
type chunkItem bgzf.Chunk

// Compare compares two chunkItem objects for use in llrb.
func (c chunkItem) Compare(c2 llrb.Comparable) int {
	b := c2.(chunkItem).Begin
	switch {
	case c.Begin < b:
		return -1
	case c.Begin > b:
		return 1
	}
	return 0
}

// Chunks returns the sorted, non-overlapping chunks of the file that
// may hold records of reference refID overlapping the 0-based
// half-open interval [beg, end).  Chunks that end before the linear
// index entry of beg are dropped.
func (i *Index) Chunks(refID, beg, end int) ([]bgzf.Chunk, error) {
	if refID < 0 || refID >= len(i.Refs) {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("bam index: reference id %d not in index", refID))
	}
	if beg < 0 {
		beg = 0
	}
	if end > MaxBinPos {
		end = MaxBinPos
	}
	if end <= beg {
		return nil, nil
	}
	ref := &i.Refs[refID]
	var floor bgzf.VOffset
	if iv := beg >> linearShift; iv < len(ref.Intervals) {
		floor = ref.Intervals[iv]
	}

	tree := llrb.Tree{}
	for _, binNum := range Reg2Bins(beg, end, nil) {
		k := sort.Search(len(ref.Bins), func(j int) bool { return ref.Bins[j].BinNum >= uint32(binNum) })
		if k == len(ref.Bins) || ref.Bins[k].BinNum != uint32(binNum) {
			continue
		}
		for _, c := range ref.Bins[k].Chunks {
			if c.End <= floor {
				continue
			}
			if old := tree.Get(chunkItem(c)); old != nil && old.(chunkItem).End >= c.End {
				continue
			}
			tree.Insert(chunkItem(c))
		}
	}

	var chunks []bgzf.Chunk
	tree.Do(func(item llrb.Comparable) bool {
		c := bgzf.Chunk(item.(chunkItem))
		if n := len(chunks); n > 0 && c.Begin <= chunks[n-1].End {
			if c.End > chunks[n-1].End {
				chunks[n-1].End = c.End
			}
			return false
		}
		chunks = append(chunks, c)
		return false
	})
	return chunks, nil
}
