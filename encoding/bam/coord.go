package bam

import (
	"fmt"
	"math"
)

// Coord is the sort key of a record in a coordinate sorted file.
// Records without a reference sort after all others.
type Coord struct {
	RefID int
	Pos   int
}

func sortableRefID(id int) int {
	if id < 0 {
		// Unmapped reads are sorted last.
		return math.MaxInt32
	}
	return id
}

// Compare returns (negative int, 0, positive int) if (c<c1, c=c1, c>c1)
// respectively.
func (c Coord) Compare(c1 Coord) int {
	if r0, r1 := sortableRefID(c.RefID), sortableRefID(c1.RefID); r0 != r1 {
		return r0 - r1
	}
	return c.Pos - c1.Pos
}

// LT returns true iff c < c1.
func (c Coord) LT(c1 Coord) bool { return c.Compare(c1) < 0 }

// LE returns true iff c <= c1.
func (c Coord) LE(c1 Coord) bool { return c.Compare(c1) <= 0 }

func (c Coord) String() string {
	return fmt.Sprintf("%d:%d", c.RefID, c.Pos)
}
