package bam

const (
	// MaxBinPos is the exclusive upper bound of positions covered by
	// the binning scheme.
	MaxBinPos = 1 << 29

	// MetaBin is the pseudo bin that holds per-reference metadata in
	// a .bai file.
	MetaBin = 37450

	// linearShift is log2 of the width of a linear index tile.
	linearShift = 14
)

// Each level of the binning scheme: the first bin id of the level and
// the log2 of the bin width.
var binLevels = [...]struct {
	offset int
	shift  uint
}{
	{4681, 14},
	{585, 17},
	{73, 20},
	{9, 23},
	{1, 26},
	{0, 29},
}

// Reg2Bin returns the smallest bin that fully contains the 0-based
// half-open interval [beg, end).  An empty interval is treated as
// [beg, beg+1).
func Reg2Bin(beg, end int) uint16 {
	if end <= beg {
		end = beg + 1
	}
	end--
	for _, l := range binLevels {
		if beg>>l.shift == end>>l.shift {
			return uint16(l.offset + beg>>l.shift)
		}
	}
	return 0
}

// Reg2Bins appends to bins the ids of all bins that may hold records
// overlapping [beg, end), and returns the result.
func Reg2Bins(beg, end int, bins []uint16) []uint16 {
	if beg < 0 {
		beg = 0
	}
	if end > MaxBinPos {
		end = MaxBinPos
	}
	if end <= beg {
		return bins
	}
	end--
	bins = append(bins, 0)
	for i := len(binLevels) - 2; i >= 0; i-- {
		l := binLevels[i]
		for k := l.offset + beg>>l.shift; k <= l.offset+end>>l.shift; k++ {
			bins = append(bins, uint16(k))
		}
	}
	return bins
}
