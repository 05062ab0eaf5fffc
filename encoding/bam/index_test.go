package bam

import (
	"bytes"
	"encoding/binary"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/bgzf"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func toInt(t *testing.T, s string) int {
	i, err := strconv.Atoi(s)
	require.Nil(t, err)
	return i
}

func writeBin(t *testing.T, w io.Writer, s string) {
	bins := strings.Split(s, ":")
	// Write the number of bins
	err := binary.Write(w, binary.LittleEndian, int32(len(bins)))
	assert.Nil(t, err)

	for _, bin := range bins {
		binContent := strings.Split(bin, ",")

		// Write the bin number
		err = binary.Write(w, binary.LittleEndian, uint32(toInt(t, binContent[0])))
		assert.Nil(t, err)
		binContent = binContent[1:]

		// Write the number of chunks
		err = binary.Write(w, binary.LittleEndian, int32(len(binContent)/2))
		assert.Nil(t, err)

		// Write the chunks
		for _, voffset := range binContent {
			err = binary.Write(w, binary.LittleEndian, uint64(toInt(t, voffset)))
			assert.Nil(t, err)
		}
	}
}

func writeIntervals(t *testing.T, w io.Writer, s string) {
	intervals := strings.Split(s, ",")

	// Write the number of intervals
	err := binary.Write(w, binary.LittleEndian, int32(len(intervals)))
	assert.Nil(t, err)

	for _, voffset := range intervals {
		err = binary.Write(w, binary.LittleEndian, uint64(toInt(t, voffset)))
		assert.Nil(t, err)
	}
}

func writeIndex(t *testing.T, bins, intervals []string, unmapped int) *bytes.Buffer {
	var buf bytes.Buffer
	_, err := buf.Write(IndexMagic[:])
	assert.Nil(t, err)

	err = binary.Write(&buf, binary.LittleEndian, int32(len(bins)))
	assert.Nil(t, err)

	for i := range bins {
		writeBin(t, &buf, bins[i])
		writeIntervals(t, &buf, intervals[i])
	}

	// Write unmapped count
	if unmapped >= 0 {
		err = binary.Write(&buf, binary.LittleEndian, uint64(unmapped))
		assert.Nil(t, err)
	}
	return &buf
}

func TestReadIndex(t *testing.T) {
	tests := []struct {
		bins      []string
		intervals []string
		unmapped  int
	}{
		{
			bins: []string{
				"100,1,2:200,3,4:37450,5,6,7,8",
				"100,10,22",
				"37450,5,6,7,8",
				"200,100002,200003", // Use a voffset larger than 16 bits to check that the block offset is parsed.
			},
			intervals: []string{
				"1000,1001",
				"2000,2001",
				"103000,103001",
				"4000,4001",
			},
			unmapped: 999,
		},
		{
			bins: []string{
				"100,1,2:200,3,4:37450,5,6,7,8",
			},
			intervals: []string{
				"1000,1001",
			},
			unmapped: -1,
		},
	}

	for _, test := range tests {
		buf := writeIndex(t, test.bins, test.intervals, test.unmapped)
		serialized := append([]byte(nil), buf.Bytes()...)
		index, err := ReadIndex(buf)
		require.Nil(t, err)

		assert.Equal(t, IndexMagic, index.Magic)
		assert.Equal(t, len(test.bins), len(index.Refs))
		for refID := range test.bins {
			ref := index.Refs[refID]
			binCount := 0
			hasMeta := false
			for _, binString := range strings.Split(test.bins[refID], ":") {
				binInfo := strings.Split(binString, ",")
				if toInt(t, binInfo[0]) == MetaBin {
					hasMeta = true
					require.NotNil(t, ref.Meta)
					assert.Equal(t, bgzf.VOffset(toInt(t, binInfo[1])), ref.Meta.UnmappedBegin)
					assert.Equal(t, bgzf.VOffset(toInt(t, binInfo[2])), ref.Meta.UnmappedEnd)
					assert.Equal(t, uint64(toInt(t, binInfo[3])), ref.Meta.MappedCount)
					assert.Equal(t, uint64(toInt(t, binInfo[4])), ref.Meta.UnmappedCount)
					continue
				}
				bin := ref.Bins[binCount]
				assert.Equal(t, uint32(toInt(t, binInfo[0])), bin.BinNum)
				for i := 1; i < len(binInfo)-1; i += 2 {
					begin := bgzf.VOffset(toInt(t, binInfo[i]))
					end := bgzf.VOffset(toInt(t, binInfo[i+1]))
					assert.Equal(t, begin.BlockOffset(), bin.Chunks[(i-1)/2].Begin.BlockOffset())
					assert.Equal(t, begin.DataOffset(), bin.Chunks[(i-1)/2].Begin.DataOffset())
					assert.Equal(t, end, bin.Chunks[(i-1)/2].End)
				}
				binCount++
			}
			assert.Equal(t, binCount, len(ref.Bins))
			if !hasMeta {
				assert.Nil(t, ref.Meta)
			}

			intervals := strings.Split(test.intervals[refID], ",")
			assert.Equal(t, len(intervals), len(ref.Intervals))
			for i, intervalStr := range intervals {
				assert.Equal(t, bgzf.VOffset(toInt(t, intervalStr)), ref.Intervals[i])
			}
		}
		if test.unmapped >= 0 {
			assert.Equal(t, uint64(test.unmapped), *index.UnmappedCount)
		} else {
			assert.Nil(t, index.UnmappedCount)
		}

		// Writing the parsed index reproduces the input.
		var out bytes.Buffer
		require.NoError(t, WriteIndex(&out, index))
		assert.Equal(t, serialized, out.Bytes())
	}
}

func TestReadIndexErrors(t *testing.T) {
	_, err := ReadIndex(bytes.NewReader([]byte("BAM\x01")))
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Integrity, err))

	buf := writeIndex(t, []string{"100,1,2"}, []string{"1000"}, 3)
	truncated := buf.Bytes()[:buf.Len()-12]
	_, err = ReadIndex(bytes.NewReader(truncated))
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Integrity, err))

	buf = writeIndex(t, []string{"37450,1,2"}, []string{"1000"}, -1)
	_, err = ReadIndex(buf)
	require.Error(t, err)
}

// rawRecord marshals r and wraps the result.
func rawRecord(t *testing.T, r *sam.Record) *RawRecord {
	var buf bytes.Buffer
	require.NoError(t, Marshal(r, &buf))
	raw, err := NewRawRecord(buf.Bytes()[4:])
	require.NoError(t, err)
	return raw
}

func mappedRecord(name string, refID, pos, length int) *sam.Record {
	r := sam.NewRecord(name)
	r.Flags = 0
	r.RefID = refID
	r.Pos = pos
	r.MapQ = 60
	r.Cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, length)}
	return r
}

func TestIndexBuilder(t *testing.T) {
	b := NewIndexBuilder(2)
	// Each record occupies its own fake block.
	add := func(r *sam.Record, block int64) {
		c := bgzf.Chunk{Begin: bgzf.MakeVOffset(block, 0), End: bgzf.MakeVOffset(block+100, 0)}
		require.NoError(t, b.Add(rawRecord(t, r), c))
	}
	add(mappedRecord("r1", 0, 10, 50), 100)
	add(mappedRecord("r2", 0, 20000, 50), 200)
	add(mappedRecord("r3", 0, 1<<20, 50), 300)
	unmapped := sam.NewRecord("r4")
	unmapped.RefID = 0
	unmapped.Pos = 1 << 20
	add(unmapped, 400)
	add(mappedRecord("r5", 1, 5, 10), 500)
	add(sam.NewRecord("r6"), 600)
	add(sam.NewRecord("r7"), 700)

	err := b.Add(rawRecord(t, mappedRecord("late", 0, 1, 10)), bgzf.Chunk{})
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Invalid, err))

	idx := b.Index()
	require.Len(t, idx.Refs, 2)
	expect.EQ(t, *idx.UnmappedCount, uint64(2))
	ref := idx.Refs[0]
	require.NotNil(t, ref.Meta)
	expect.EQ(t, ref.Meta.MappedCount, uint64(3))
	expect.EQ(t, ref.Meta.UnmappedCount, uint64(1))
	expect.EQ(t, ref.Meta.UnmappedBegin, bgzf.MakeVOffset(100, 0))
	expect.EQ(t, ref.Meta.UnmappedEnd, bgzf.MakeVOffset(500, 0))

	// The linear index has one entry per 16KB tile up to the last record.
	expect.EQ(t, len(ref.Intervals), (1<<20)>>14+1)
	expect.EQ(t, ref.Intervals[0], bgzf.MakeVOffset(100, 0))
	expect.EQ(t, ref.Intervals[1], bgzf.MakeVOffset(200, 0))
	expect.EQ(t, ref.Intervals[2], bgzf.MakeVOffset(200, 0))
	expect.EQ(t, ref.Intervals[64], bgzf.MakeVOffset(300, 0))

	// Soundness: every record is inside a chunk returned for its interval.
	for _, test := range []struct {
		refID, beg, end int
		want            []int64
	}{
		{0, 0, 100, []int64{100}},
		{0, 20010, 20020, []int64{200}},
		{0, 1 << 20, 1<<20 + 1, []int64{300, 400}},
		{1, 0, 1000, []int64{500}},
	} {
		chunks, err := idx.Chunks(test.refID, test.beg, test.end)
		require.NoError(t, err)
		for _, block := range test.want {
			v := bgzf.MakeVOffset(block, 0)
			found := false
			for _, c := range chunks {
				if c.Begin <= v && v < c.End {
					found = true
				}
			}
			expect.True(t, found, "%+v: block %d not in %v", test, block, chunks)
		}
	}

	chunks, err := idx.Chunks(0, 500000, 600000)
	require.NoError(t, err)
	expect.EQ(t, len(chunks), 0)
	_, err = idx.Chunks(5, 0, 10)
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestChunksMerge(t *testing.T) {
	v := func(block int64) bgzf.VOffset { return bgzf.MakeVOffset(block, 0) }
	idx := &Index{Refs: []Reference{{
		Bins: []Bin{
			{BinNum: 0, Chunks: []bgzf.Chunk{{Begin: v(10), End: v(20)}, {Begin: v(90), End: v(95)}}},
			{BinNum: 4681, Chunks: []bgzf.Chunk{{Begin: v(15), End: v(30)}, {Begin: v(1), End: v(2)}}},
			{BinNum: 4682, Chunks: []bgzf.Chunk{{Begin: v(40), End: v(50)}}},
		},
		Intervals: []bgzf.VOffset{v(5)},
	}}}
	chunks, err := idx.Chunks(0, 0, 100)
	require.NoError(t, err)
	// The chunk ending at or before the linear floor is dropped, and
	// overlapping chunks are merged.
	expect.EQ(t, chunks, []bgzf.Chunk{{Begin: v(10), End: v(30)}, {Begin: v(90), End: v(95)}})

	chunks, err = idx.Chunks(0, 1<<14, 1<<14+10)
	require.NoError(t, err)
	expect.EQ(t, chunks, []bgzf.Chunk{{Begin: v(10), End: v(20)}, {Begin: v(40), End: v(50)}, {Begin: v(90), End: v(95)}})
}
