// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testHeaderText = "@HD\tVN:1.6\tSO:coordinate\tSS:coordinate:queryname\n" +
	"@SQ\tSN:chr1\tLN:1000\tAS:hg19\tM5:0123\n" +
	"@SQ\tSN:chr2\tLN:2000\n" +
	"@RG\tID:grp1\tSM:sample1\tPI:300\tPL:ILLUMINA\n" +
	"@RG\tID:grp2\tSM:sample2\n" +
	"@PG\tID:bwa\tPN:bwa\tVN:0.7\tCL:bwa mem ref.fa r1.fq\n" +
	"@CO\tfree text\twith a tab\n"

func TestParseHeader(t *testing.T) {
	h, err := ParseHeader([]byte(testHeaderText), Strict)
	require.NoError(t, err)
	expect.EQ(t, h.Version(), "1.6")
	expect.EQ(t, h.SortOrder(), Coordinate)
	expect.EQ(t, h.HDAttrs(), []Attribute{{"SS", "coordinate:queryname"}})
	expect.EQ(t, h.NumRefs(), 2)

	ref, ok := h.Ref(0)
	require.True(t, ok)
	expect.EQ(t, ref.Name(), "chr1")
	expect.EQ(t, ref.Len(), 1000)
	as, ok := ref.Attr("AS")
	expect.True(t, ok)
	expect.EQ(t, as, "hg19")
	id, ok := h.RefID("chr2")
	expect.True(t, ok)
	expect.EQ(t, id, 1)
	_, ok = h.RefID("chr3")
	expect.False(t, ok)
	expect.EQ(t, h.RefName(-1), "*")
	expect.EQ(t, h.RefName(5), "*")

	rg, ok := h.ReadGroup("grp1")
	require.True(t, ok)
	expect.EQ(t, rg.Sample(), "sample1")
	pi, ok := rg.PredictedInsertSize()
	expect.True(t, ok)
	expect.EQ(t, pi, 300)
	rg, _ = h.ReadGroup("grp2")
	_, ok = rg.PredictedInsertSize()
	expect.False(t, ok)

	require.Len(t, h.Programs(), 1)
	cl, _ := h.Programs()[0].Attr("CL")
	expect.EQ(t, cl, "bwa mem ref.fa r1.fq")
	expect.EQ(t, h.Comments(), []string{"free text\twith a tab"})

	text, err := h.MarshalText()
	require.NoError(t, err)
	expect.EQ(t, string(text), testHeaderText)
}

func TestHeaderParams(t *testing.T) {
	h, err := ParseHeader([]byte(testHeaderText), Strict)
	require.NoError(t, err)
	h2, err := NewHeader(h.Params())
	require.NoError(t, err)
	assert.Equal(t, h, h2)

	// Accessors return copies.
	refs := h.Refs()
	refs[0] = Reference{}
	ref, _ := h.Ref(0)
	expect.EQ(t, ref.Name(), "chr1")
}

func TestNewHeaderDefaults(t *testing.T) {
	h, err := NewHeader(HeaderParams{})
	require.NoError(t, err)
	text, err := h.MarshalText()
	require.NoError(t, err)
	expect.EQ(t, string(text), "@HD\tVN:1.0\n")
}

func TestHeaderErrors(t *testing.T) {
	for _, text := range []string{
		"HD\tVN:1.6\n",
		"@SQ\tLN:100\n",
		"@SQ\tSN:chr1\n",
		"@SQ\tSN:chr1\tLN:x\n",
		"@SQ\tSN:*\tLN:10\n",
		"@SQ\tSN:chr1\tLN:10\n@SQ\tSN:chr1\tLN:20\n",
		"@RG\tSM:x\n",
		"@PG\tPN:x\n",
	} {
		_, err := ParseHeader([]byte(text), Silent)
		expect.True(t, errors.Is(errors.Integrity, err), "%q: %v", text, err)
	}

	// Validation failures depend on the stringency.
	for _, text := range []string{
		"@HD\tSO:coordinate\n",
		"@HD\tVN:1.6\tSO:sideways\n",
		"@HD\tVN:1.6\n@HD\tVN:1.6\n",
		"@RG\tID:grp1\n",
		"@RG\tID:grp1\tSM:x\tPI:large\n",
		"@XX\tVN:1\n",
		"@SQ\tSN:chr1\tLN:10\tbad\n",
	} {
		_, err := ParseHeader([]byte(text), Strict)
		expect.True(t, errors.Is(errors.Invalid, err), "%q: %v", text, err)
		_, err = ParseHeader([]byte(text), Lenient)
		expect.NoError(t, err, text)
	}

	h, err := ParseHeader([]byte("@RG\tID:grp1\tSM:x\tPI:large\n"), Silent)
	require.NoError(t, err)
	rg, ok := h.ReadGroup("grp1")
	require.True(t, ok)
	_, ok = rg.PredictedInsertSize()
	expect.False(t, ok)
	expect.EQ(t, rg.Sample(), "x")
}

func TestNewReference(t *testing.T) {
	_, err := NewReference("chr1", -1)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewReference("=", 1)
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewReference("chr1", 1, Attribute{"LN", "2"})
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewReadGroup("")
	expect.True(t, errors.Is(errors.Invalid, err))
	_, err = NewProgram("pg", Attribute{"ID", "x"})
	expect.True(t, errors.Is(errors.Invalid, err))
}

func TestSortOrder(t *testing.T) {
	for _, o := range []SortOrder{UnknownOrder, Unsorted, QueryName, Coordinate} {
		got, ok := ParseSortOrder(o.String())
		expect.True(t, ok)
		expect.EQ(t, got, o)
	}
	_, ok := ParseSortOrder("sideways")
	expect.False(t, ok)
}
