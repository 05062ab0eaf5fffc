package cmd

import (
	"bytes"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/samcore/encoding/samio"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRegionsFlag(t *testing.T) {
	regions, err := parseRegionsFlag("chr1:10-20,chr2:5,chrUn_KI270302v1")
	require.NoError(t, err)
	expect.EQ(t, regions, []viewRegion{
		{refName: "chr1", start: 10, end: 20},
		{refName: "chr2", start: 5},
		{refName: "chrUn_KI270302v1", start: 1},
	})
	for _, flag := range []string{"", "chr1:", "chr1:x-10", "chr1:10-", "chr1:20-10", ":1-2"} {
		_, err := parseRegionsFlag(flag)
		assert.Error(t, err, flag)
	}
}

func viewString(t *testing.T, path string, flags viewFlags) string {
	var out bytes.Buffer
	require.NoError(t, view(vcontext.Background(), &out, flags, path))
	return out.String()
}

func TestView(t *testing.T) {
	tmpDir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	bamPath := writeTestFile(t, tmpDir, "test.bam", samio.WriterOpts{WriteIndex: true})
	samPath := writeTestFile(t, tmpDir, "test.sam", samio.WriterOpts{})

	headerText, err := newTestHeader(t).MarshalText()
	require.NoError(t, err)
	all := samLines(t, "a", "b", "c", "e", "f", "g", "d")

	for _, path := range []string{bamPath, samPath} {
		expect.EQ(t, viewString(t, path, viewFlags{}), all)
		expect.EQ(t, viewString(t, path, viewFlags{headerOnly: true}), string(headerText))
		expect.EQ(t, viewString(t, path, viewFlags{withHeader: true}), string(headerText)+all)
		expect.EQ(t, viewString(t, path, viewFlags{filter: "duplicate || !paired"}), samLines(t, "e", "g"))
		expect.EQ(t, viewString(t, path, viewFlags{filter: "ref_name == \"*\""}), samLines(t, "d"))
	}

	expect.EQ(t, viewString(t, bamPath, viewFlags{regions: "chr1:50-150"}), samLines(t, "b"))
	expect.EQ(t, viewString(t, bamPath, viewFlags{regions: "chr1:15-105"}), samLines(t, "a", "b"))
	expect.EQ(t, viewString(t, bamPath, viewFlags{regions: "chr1:15-105", contained: true}), "")
	expect.EQ(t, viewString(t, bamPath, viewFlags{regions: "chr2,chr1:201"}), samLines(t, "e", "f", "g", "c"))
	expect.EQ(t, viewString(t, bamPath, viewFlags{regions: "chr2:1-601", filter: "mapping_quality > 10"}), samLines(t, "f"))

	var out bytes.Buffer
	err = view(vcontext.Background(), &out, viewFlags{regions: "chr1:1-10"}, samPath)
	expect.True(t, errors.Is(errors.Precondition, err))
	err = view(vcontext.Background(), &out, viewFlags{regions: "chr3:1-10"}, bamPath)
	expect.True(t, errors.Is(errors.NotExist, err))
	err = view(vcontext.Background(), &out, viewFlags{filter: "position"}, bamPath)
	assert.Error(t, err)
	err = view(vcontext.Background(), &out, viewFlags{stringency: "lax"}, bamPath)
	expect.True(t, errors.Is(errors.Invalid, err))
}
