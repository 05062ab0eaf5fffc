// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package samio_test

import (
	"bytes"
	"io"
	"os"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/samcore/encoding/bam"
	"github.com/grailbio/samcore/encoding/samio"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	shutdown := grail.Init()
	status := m.Run()
	shutdown()
	os.Exit(status)
}

func newHeader(t *testing.T) *sam.Header {
	var refs []sam.Reference
	for _, r := range []struct {
		name string
		len  int
	}{{"chr1", 1000}, {"chr2", 2000}} {
		ref, err := sam.NewReference(r.name, r.len)
		require.NoError(t, err)
		refs = append(refs, ref)
	}
	h, err := sam.NewHeader(sam.HeaderParams{SortOrder: sam.Coordinate, Refs: refs})
	require.NoError(t, err)
	return h
}

// newRecord returns a record aligned to [pos, pos+length) of refID.
func newRecord(name string, refID, pos, length int) *sam.Record {
	r := sam.NewRecord(name)
	r.Flags = 0
	r.RefID = refID
	r.Pos = pos
	r.MapQ = 60
	r.Cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, length)}
	r.Seq = bytes.Repeat([]byte{'A'}, length)
	r.Qual = bytes.Repeat([]byte{30}, length)
	return r
}

// writeAll encodes recs and returns the file and index contents.
func writeAll(t *testing.T, h *sam.Header, opts samio.WriterOpts, recs []*sam.Record) (data, index []byte) {
	var out, idx bytes.Buffer
	if opts.Format != samio.SAM {
		opts.Index = &idx
	}
	w, err := samio.NewWriter(&out, h, opts)
	require.NoError(t, err)
	for _, r := range recs {
		require.NoError(t, w.Write(r))
	}
	require.NoError(t, w.Close())
	return out.Bytes(), idx.Bytes()
}

func openBAM(t *testing.T, h *sam.Header, recs []*sam.Record) *samio.Reader {
	data, index := writeAll(t, h, samio.WriterOpts{}, recs)
	idx, err := bam.ReadIndex(bytes.NewReader(index))
	require.NoError(t, err)
	r, err := samio.NewReader(bytes.NewReader(data), samio.ReaderOpts{Index: idx})
	require.NoError(t, err)
	return r
}

func readNames(t *testing.T, iter samio.Iterator) []string {
	names := []string{}
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	require.NoError(t, iter.Close())
	return names
}

func TestEndToEnd(t *testing.T) {
	h := newHeader(t)
	recs := []*sam.Record{
		newRecord("a", 0, 9, 10),
		newRecord("b", 0, 499, 10),
		newRecord("c", 0, 998, 2),
	}
	r := openBAM(t, h, recs)
	assert.Equal(t, samio.BAM, r.Format())
	assert.Equal(t, h.NumRefs(), r.Header().NumRefs())

	iter := r.Iterate()
	var got []*sam.Record
	for iter.Scan() {
		rec := iter.Record()
		require.NotNil(t, rec.IndexBin)
		assert.Equal(t, bam.IndexBin(rec), *rec.IndexBin)
		rec.IndexBin = nil
		got = append(got, rec)
	}
	require.NoError(t, iter.Close())
	assert.Equal(t, recs, got)

	expect.EQ(t, readNames(t, r.Query("chr1", 1, 100, false)), []string{"a"})
	expect.EQ(t, readNames(t, r.Query("chr1", 500, 999, false)), []string{"b", "c"})
	expect.EQ(t, readNames(t, r.Query("chr1", 0, 0, false)), []string{"a", "b", "c"})
	expect.EQ(t, readNames(t, r.Query("chr2", 1, 2000, false)), []string{})
	require.NoError(t, r.Close())
}

func TestQueryContained(t *testing.T) {
	h := newHeader(t)
	r := openBAM(t, h, []*sam.Record{
		newRecord("r1-50", 0, 0, 50),
		newRecord("r61-70", 0, 60, 10),
		newRecord("r91-110", 0, 90, 20),
		newRecord("r201-210", 0, 200, 10),
		newRecord("chr2", 1, 0, 10),
	})
	expect.EQ(t, readNames(t, r.Query("chr1", 40, 100, false)), []string{"r1-50", "r61-70", "r91-110"})
	expect.EQ(t, readNames(t, r.Query("chr1", 40, 100, true)), []string{"r61-70"})
	expect.EQ(t, readNames(t, r.Query("chr1", 50, 50, false)), []string{"r1-50"})
	expect.EQ(t, readNames(t, r.Query("chr1", 51, 60, false)), []string{})
	expect.EQ(t, readNames(t, r.Query("chr2", 1, 1, false)), []string{"chr2"})
}

func TestQueryManyBlocks(t *testing.T) {
	h := newHeader(t)
	var recs []*sam.Record
	for i := 0; i < 2000; i++ {
		recs = append(recs, newRecord("r", i/1000, (i%1000)*2/3, 100))
	}
	r := openBAM(t, h, recs)
	n := 0
	iter := r.Query("chr2", 301, 400, false)
	for iter.Scan() {
		rec := iter.Record()
		assert.Equal(t, 1, rec.RefID)
		assert.True(t, rec.Pos+100 >= 301 && rec.Pos+1 <= 400, "pos %d", rec.Pos)
		n++
	}
	require.NoError(t, iter.Close())
	want := 0
	for _, rec := range recs[1000:] {
		if rec.Pos+100 >= 301 && rec.Pos+1 <= 400 {
			want++
		}
	}
	assert.Equal(t, want, n)
}

func TestQueryErrors(t *testing.T) {
	h := newHeader(t)
	recs := []*sam.Record{newRecord("a", 0, 9, 10)}
	r := openBAM(t, h, recs)
	iter := r.Query("chrX", 1, 10, false)
	expect.False(t, iter.Scan())
	expect.True(t, errors.Is(errors.NotExist, iter.Close()))

	data, _ := writeAll(t, h, samio.WriterOpts{}, recs)
	noIndex, err := samio.NewReader(bytes.NewReader(data), samio.ReaderOpts{})
	require.NoError(t, err)
	expect.True(t, errors.Is(errors.Precondition, noIndex.Query("chr1", 1, 10, false).Close()))

	text, _ := writeAll(t, h, samio.WriterOpts{Format: samio.SAM}, recs)
	samReader, err := samio.NewReader(bytes.NewReader(text), samio.ReaderOpts{})
	require.NoError(t, err)
	assert.Equal(t, samio.SAM, samReader.Format())
	expect.True(t, errors.Is(errors.Precondition, samReader.Query("chr1", 1, 10, false).Close()))
	// A failed query does not hold the reader.
	expect.EQ(t, readNames(t, samReader.Iterate()), []string{"a"})
}

func TestExclusiveIterators(t *testing.T) {
	h := newHeader(t)
	r := openBAM(t, h, []*sam.Record{newRecord("a", 0, 9, 10), newRecord("b", 0, 19, 10)})
	iter := r.Iterate()
	require.True(t, iter.Scan())

	second := r.Iterate()
	expect.False(t, second.Scan())
	expect.True(t, errors.Is(errors.Precondition, second.Err()))
	expect.True(t, errors.Is(errors.Precondition, r.Query("chr1", 1, 100, false).Close()))
	require.NoError(t, iter.Close())

	expect.EQ(t, readNames(t, r.Iterate()), []string{"a", "b"})
	require.NoError(t, r.Close())
	expect.True(t, errors.Is(errors.Precondition, r.Iterate().Err()))
	expect.True(t, errors.Is(errors.Precondition, r.Close()))
}

func TestIterateRestart(t *testing.T) {
	h := newHeader(t)
	recs := []*sam.Record{newRecord("a", 0, 9, 10), newRecord("b", 1, 19, 10)}
	for _, opts := range []samio.WriterOpts{
		{Format: samio.BAM},
		{Format: samio.SAM},
		{Format: samio.SAM, Compress: true},
	} {
		data, _ := writeAll(t, h, opts, recs)
		r, err := samio.NewReader(bytes.NewReader(data), samio.ReaderOpts{})
		require.NoError(t, err)
		for i := 0; i < 3; i++ {
			expect.EQ(t, readNames(t, r.Iterate()), []string{"a", "b"}, "opts %+v, pass %d", opts, i)
		}

		// A stream can be iterated once.
		r, err = samio.NewReader(struct{ io.Reader }{bytes.NewReader(data)}, samio.ReaderOpts{})
		require.NoError(t, err)
		expect.EQ(t, readNames(t, r.Iterate()), []string{"a", "b"})
		expect.True(t, errors.Is(errors.Precondition, r.Iterate().Close()))
	}
}

func TestTextParity(t *testing.T) {
	h := newHeader(t)
	r0 := newRecord("a", 0, 9, 10)
	r0.AuxFields = []sam.Aux{
		{Tag: [2]byte{'N', 'M'}, Type: 'i', Value: int64(1)},
		{Tag: [2]byte{'R', 'G'}, Type: 'Z', Value: "grp"},
		{Tag: [2]byte{'X', 'F'}, Type: 'f', Value: float32(0.5)},
		{Tag: [2]byte{'X', 'B'}, Type: 'B', Value: []int32{-1, 5}},
	}
	r1 := newRecord("b", 1, 99, 5)
	r1.Flags = sam.Paired | sam.Read2 | sam.Reverse
	r1.MateRefID = 1
	r1.MatePos = 199
	r1.TempLen = -105
	r2 := sam.NewRecord("c")
	r2.Seq = []byte("ACGT")
	recs := []*sam.Record{r0, r1, r2}

	var want []string
	for _, rec := range recs {
		line, err := sam.FormatRecord(h, rec)
		require.NoError(t, err)
		want = append(want, line)
	}
	for _, opts := range []samio.WriterOpts{
		{Format: samio.BAM},
		{Format: samio.SAM},
		{Format: samio.SAM, Compress: true},
	} {
		data, _ := writeAll(t, h, opts, recs)
		r, err := samio.NewReader(bytes.NewReader(data), samio.ReaderOpts{})
		require.NoError(t, err)
		iter := r.Iterate()
		var got []string
		for iter.Scan() {
			line, err := sam.FormatRecord(r.Header(), iter.Record())
			require.NoError(t, err)
			got = append(got, line)
		}
		require.NoError(t, iter.Close())
		expect.EQ(t, got, want, "opts %+v", opts)
	}
}

func TestWriterErrors(t *testing.T) {
	h := newHeader(t)
	var out, idx bytes.Buffer
	_, err := samio.NewWriter(&out, h, samio.WriterOpts{Format: samio.SAM, Index: &idx})
	expect.True(t, errors.Is(errors.Precondition, err))

	w, err := samio.NewWriter(&out, h, samio.WriterOpts{Index: &idx})
	require.NoError(t, err)
	expect.True(t, errors.Is(errors.Invalid, w.Write(newRecord("bad", 2, 0, 1))))
	require.NoError(t, w.Write(newRecord("b", 1, 0, 1)))
	// Unsorted input cannot be indexed.
	expect.True(t, errors.Is(errors.Invalid, w.Write(newRecord("a", 0, 0, 1))))
	require.NoError(t, w.Close())
	expect.True(t, errors.Is(errors.Precondition, w.Close()))
	expect.True(t, errors.Is(errors.Precondition, w.Write(newRecord("c", 1, 5, 1))))
}

func TestLenientText(t *testing.T) {
	text := "@HD\tVN:1.6\tSO:coordinate\n" +
		"@SQ\tSN:chr1\tLN:1000\n" +
		"r1\t4\tchr1\t10\t0\t*\t*\t0\t0\tACGT\t*\n" +
		"r2\t4\tchr1\t20\t30\t5M\t*\t0\t0\tACGTA\t*\n"
	_, err := readText(text, sam.Strict)
	expect.True(t, errors.Is(errors.Invalid, err))

	for _, s := range []sam.Stringency{sam.Lenient, sam.Silent} {
		names, err := readText(text, s)
		require.NoError(t, err)
		expect.EQ(t, names, []string{"r1", "r2"})
	}
}

func readText(text string, s sam.Stringency) ([]string, error) {
	r, err := samio.NewReader(bytes.NewReader([]byte(text)), samio.ReaderOpts{Stringency: s})
	if err != nil {
		return nil, err
	}
	iter := r.Iterate()
	var names []string
	for iter.Scan() {
		names = append(names, iter.Record().Name)
	}
	return names, iter.Close()
}

func TestBuildIndex(t *testing.T) {
	h := newHeader(t)
	var recs []*sam.Record
	for i := 0; i < 3000; i++ {
		recs = append(recs, newRecord("r", i/1500, (i%1500)/2, 50))
	}
	recs = append(recs, sam.NewRecord("u1"), sam.NewRecord("u2"))
	data, want := writeAll(t, h, samio.WriterOpts{}, recs)

	idx, err := bam.BuildIndex(bytes.NewReader(data))
	require.NoError(t, err)
	var got bytes.Buffer
	require.NoError(t, bam.WriteIndex(&got, idx))
	expect.True(t, bytes.Equal(got.Bytes(), want))
	require.NotNil(t, idx.UnmappedCount)
	expect.EQ(t, *idx.UnmappedCount, uint64(2))
}
