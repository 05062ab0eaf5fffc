package samio

import (
	"strings"
)

// Format is the encoding of an alignment file.
type Format int

const (
	// Unknown is a sentinel.
	Unknown Format = iota
	// BAM is the BGZF compressed binary format.
	BAM
	// SAM is the text format, optionally BGZF compressed.
	SAM
)

func (f Format) String() string {
	switch f {
	case BAM:
		return "bam"
	case SAM:
		return "sam"
	}
	return "unknown"
}

// ParseFormat parses the format name. "bam" returns BAM, for example. On
// error, it returns Unknown.
func ParseFormat(name string) Format {
	switch strings.ToLower(name) {
	case "bam":
		return BAM
	case "sam":
		return SAM
	default:
		return Unknown
	}
}

// GuessFormat returns the format implied by the pathname. Returns Unknown
// if the extension is not recognized.
func GuessFormat(path string) Format {
	switch {
	case strings.HasSuffix(path, ".bam"):
		return BAM
	case strings.HasSuffix(path, ".sam"), strings.HasSuffix(path, ".sam.gz"):
		return SAM
	}
	return Unknown
}
