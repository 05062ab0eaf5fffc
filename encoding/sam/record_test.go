// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"reflect"
	"runtime"
	"testing"

	"github.com/grailbio/testutil/expect"
	"github.com/stretchr/testify/assert"
)

// getFunctionName returns the runtime function name.
func getFunctionName(i interface{}) string {
	return runtime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

func TestFlagPredicates(t *testing.T) {
	tests := []struct {
		flag Flags
		f    func(r *Record) bool
		want bool
	}{
		{Paired, (*Record).IsPaired, true},
		{Reverse, (*Record).IsReverse, true},
		{Paired, (*Record).IsPrimary, true},
		{0, (*Record).IsMapped, true},
		{Paired, (*Record).HasMappedMate, true},
		{Supplementary, (*Record).IsPaired, false},
		{MateReverse, (*Record).IsReverse, false},
		{Secondary, (*Record).IsPrimary, false},
		{Supplementary, (*Record).IsPrimary, false},
		{Unmapped, (*Record).IsMapped, false},
		{Paired | MateUnmapped, (*Record).HasMappedMate, false},
		{MateReverse, (*Record).HasMappedMate, false},
	}
	for _, test := range tests {
		r := &Record{Name: "TestRead", Flags: test.flag, Cigar: Cigar{NewCigarOp(CigarMatch, 5)}}
		if got := test.f(r); got != test.want {
			t.Errorf("for flag %v and test %v: got %v, want %v", test.flag, getFunctionName(test.f), got, test.want)
		}
	}
}

func TestFlagsString(t *testing.T) {
	expect.EQ(t, (Paired | Read1 | Reverse).String(), "p---r-1-----")
	expect.EQ(t, (Read1 | Duplicate).String(), "----------d-")
	expect.EQ(t, Flags(0xfff).String(), "pPuUrR12sfdS")
}

func TestClipping(t *testing.T) {
	mustParse := func(s string) Cigar {
		c, err := ParseCigar([]byte(s))
		if err != nil {
			t.Fatal(err)
		}
		return c
	}
	tests := []struct {
		cigar          string
		unclippedStart int
		unclippedEnd   int
	}{
		{"10M", 0, 9},
		{"1S8M1S", -1, 8},
		{"1H8M1H", -1, 8},
		{"1H1S6M1S1H", -2, 7},
		{"1S1H6M1H1S", -2, 7},
		{"1H1S1H4M1H1S1H", -3, 6},
		{"2S7M1S", -2, 7},
	}
	for testIdx, test := range tests {
		t.Logf("---- starting tests[%d] ----", testIdx)
		for _, flags := range []Flags{Paired | Read1, Paired | Read1 | Reverse} {
			r := &Record{Name: "A", Pos: 0, Flags: flags, Cigar: mustParse(test.cigar)}
			assert.Equal(t, test.unclippedStart, r.UnclippedStart())
			assert.Equal(t, test.unclippedEnd, r.UnclippedEnd())
		}
	}
}

func TestRecordCoordinates(t *testing.T) {
	c, err := ParseCigar([]byte("10M1D25M"))
	if err != nil {
		t.Fatal(err)
	}
	r := &Record{Name: "A", RefID: 0, Pos: 99, Cigar: c}
	expect.EQ(t, r.Start(), 99)
	expect.EQ(t, r.End(), 135)
	expect.EQ(t, r.Len(), 36)
	expect.EQ(t, r.AlignmentStart(), 100)
	expect.EQ(t, r.AlignmentEnd(), 135)
	expect.EQ(t, r.AlignmentBlocks(), []AlignmentBlock{
		{ReadStart: 1, ReferenceStart: 100, Len: 10},
		{ReadStart: 11, ReferenceStart: 111, Len: 25},
	})

	u := NewRecord("u")
	expect.EQ(t, u.Len(), 1)
	expect.EQ(t, u.AlignmentEnd(), 0)
	expect.EQ(t, u.AlignmentStart(), 0)
	expect.EQ(t, len(u.AlignmentBlocks()), 0)
	expect.False(t, u.IsMapped())
}

func TestAlignmentBlocks(t *testing.T) {
	c, err := ParseCigar([]byte("2H3S4M2I3=5N1X2S"))
	if err != nil {
		t.Fatal(err)
	}
	r := &Record{Pos: 9, Cigar: c}
	expect.EQ(t, r.AlignmentBlocks(), []AlignmentBlock{
		{ReadStart: 4, ReferenceStart: 10, Len: 4},
		{ReadStart: 10, ReferenceStart: 14, Len: 3},
		{ReadStart: 13, ReferenceStart: 22, Len: 1},
	})
}

func TestTag(t *testing.T) {
	nm, err := NewAux("NM", 2)
	if err != nil {
		t.Fatal(err)
	}
	r := NewRecord("A")
	r.AuxFields = []Aux{nm}
	a, ok := r.Tag("NM")
	expect.True(t, ok)
	expect.EQ(t, a, nm)
	_, ok = r.Tag("MD")
	expect.False(t, ok)
	_, ok = r.Tag("N")
	expect.False(t, ok)
}
