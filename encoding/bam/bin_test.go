package bam

import (
	"testing"

	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/testutil/expect"
)

func TestReg2Bin(t *testing.T) {
	for _, test := range []struct {
		beg, end int
		want     uint16
	}{
		{0, 1, 4681},
		{0, 0, 4681},
		{10, 60, 4681},
		{1 << 14, 1<<14 + 1, 4682},
		{1<<14 - 1, 1<<14 + 1, 585},
		{0, 1 << 17, 585},
		{0, 1<<17 + 1, 73},
		{0, 1 << 26, 1},
		{0, 1 << 29, 0},
		{-1, 0, 4680},
	} {
		expect.EQ(t, Reg2Bin(test.beg, test.end), test.want, "%+v", test)
	}
}

func TestReg2Bins(t *testing.T) {
	expect.EQ(t, Reg2Bins(0, 1, nil), []uint16{0, 1, 9, 73, 585, 4681})
	expect.EQ(t, Reg2Bins(0, 1<<14+1, nil), []uint16{0, 1, 9, 73, 585, 4681, 4682})
	expect.EQ(t, len(Reg2Bins(10, 10, nil)), 0)

	// Every bin returned by Reg2Bin for an overlapping interval is
	// among the candidates.
	for _, q := range [][2]int{{0, 100}, {16000, 17000}, {1 << 20, 1<<20 + 5}, {123456, 9876543}} {
		bins := map[uint16]bool{}
		for _, b := range Reg2Bins(q[0], q[1], nil) {
			bins[b] = true
		}
		for _, r := range [][2]int{{q[0], q[0] + 1}, {q[1] - 1, q[1] + 500}, {q[0] - 70000, q[0] + 10}} {
			if r[0] < 0 {
				continue
			}
			expect.True(t, bins[Reg2Bin(r[0], r[1])], "query %v record %v", q, r)
		}
	}
}

func TestCoord(t *testing.T) {
	expect.True(t, Coord{0, 10}.LT(Coord{0, 11}))
	expect.True(t, Coord{0, 100}.LT(Coord{1, 0}))
	expect.True(t, Coord{5, 100}.LT(Coord{-1, -1}))
	expect.False(t, Coord{-1, -1}.LT(Coord{-1, -1}))
	expect.True(t, Coord{-1, -1}.LE(Coord{-1, -1}))
	expect.EQ(t, Coord{2, 3}.String(), "2:3")
}

func TestIndexBin(t *testing.T) {
	r := sam.NewRecord("r")
	expect.EQ(t, IndexBin(r), uint16(4680))
	r.RefID, r.Pos = 0, 1<<14
	expect.EQ(t, IndexBin(r), uint16(4682))
	r.Flags = 0
	r.Cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 1<<14)}
	expect.EQ(t, IndexBin(r), uint16(4682))
	r.Cigar = sam.Cigar{sam.NewCigarOp(sam.CigarMatch, 1<<14 + 1)}
	expect.EQ(t, IndexBin(r), uint16(585))
	bin := uint16(4)
	r.IndexBin = &bin
	expect.EQ(t, IndexBin(r), uint16(4))
}
