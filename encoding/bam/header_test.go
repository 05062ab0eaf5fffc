package bam

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/require"
)

// binaryHeader builds a BAM header with the given text and binary
// dictionary.
func binaryHeader(text string, names []string, lens []int32) []byte {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	binary.Write(&buf, binary.LittleEndian, int32(len(text)))
	buf.WriteString(text)
	binary.Write(&buf, binary.LittleEndian, int32(len(names)))
	for i, name := range names {
		binary.Write(&buf, binary.LittleEndian, int32(len(name)+1))
		buf.WriteString(name)
		buf.WriteByte(0)
		binary.Write(&buf, binary.LittleEndian, lens[i])
	}
	return buf.Bytes()
}

func TestHeaderRoundTrip(t *testing.T) {
	h := newTestHeader(t)
	b, err := MarshalHeader(h)
	require.NoError(t, err)
	h2, err := ReadHeader(bytes.NewReader(b), sam.Strict)
	require.NoError(t, err)
	expect.EQ(t, h2.Refs(), h.Refs())
	expect.EQ(t, h2.SortOrder(), sam.Coordinate)
	expect.EQ(t, h2.Version(), h.Version())
}

func TestHeaderDictionary(t *testing.T) {
	const text = "@HD\tVN:1.0\tSO:coordinate\n@SQ\tSN:chr1\tLN:1000\n"

	_, err := ReadHeader(bytes.NewReader(binaryHeader(text, []string{"chr1"}, []int32{1000})), sam.Strict)
	require.NoError(t, err)

	// NUL padded text is accepted.
	_, err = ReadHeader(bytes.NewReader(binaryHeader(text+"\x00\x00", []string{"chr1"}, []int32{1000})), sam.Strict)
	require.NoError(t, err)

	for _, test := range []struct {
		names []string
		lens  []int32
	}{
		{[]string{"chr2"}, []int32{1000}},
		{[]string{"chr1"}, []int32{999}},
		{[]string{"chr1", "chr2"}, []int32{1000, 5}},
		{nil, nil},
	} {
		_, err := ReadHeader(bytes.NewReader(binaryHeader(text, test.names, test.lens)), sam.Strict)
		require.Error(t, err, "%+v", test)
		expect.True(t, errors.Is(errors.Integrity, err))
	}

	// Without @SQ lines the binary dictionary is used.
	h, err := ReadHeader(bytes.NewReader(binaryHeader("@HD\tVN:1.0\n", []string{"chrM"}, []int32{16571})), sam.Strict)
	require.NoError(t, err)
	id, ok := h.RefID("chrM")
	expect.True(t, ok)
	expect.EQ(t, id, 0)
	ref, _ := h.Ref(0)
	expect.EQ(t, ref.Len(), 16571)
}

func TestHeaderCorrupt(t *testing.T) {
	h := newTestHeader(t)
	b, err := MarshalHeader(h)
	require.NoError(t, err)

	_, err = ReadHeader(bytes.NewReader(b[:len(b)-3]), sam.Strict)
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Integrity, err))

	bad := append([]byte(nil), b...)
	bad[3] = 2
	_, err = ReadHeader(bytes.NewReader(bad), sam.Strict)
	require.Error(t, err)
	expect.True(t, errors.Is(errors.Integrity, err))
}
