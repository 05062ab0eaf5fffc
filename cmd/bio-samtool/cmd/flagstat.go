package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/samcore/encoding/samio"
)

type aggrFlagstat struct {
	total         int
	mapped        int
	duplicate     int
	secondary     int
	supplementary int
	paired        int
	goodPair      int
	single        int
	pairMap       int
	diffChr       int
	diffHigh      int
	r1, r2        int
}

func (stat *aggrFlagstat) record(r *sam.Record) {
	stat.total++
	f := r.Flags
	if (f & sam.Unmapped) == 0 {
		stat.mapped++
	}
	if (f & sam.Duplicate) != 0 {
		stat.duplicate++
	}
	if (f & sam.Secondary) != 0 {
		stat.secondary++
	} else if (f & sam.Supplementary) != 0 {
		stat.supplementary++
	} else if (f & sam.Paired) != 0 {
		stat.paired++
		if (f&sam.ProperPair) != 0 && (f&sam.Unmapped) == 0 {
			stat.goodPair++
		}
		if (f & sam.Read1) != 0 {
			stat.r1++
		}
		if (f & sam.Read2) != 0 {
			stat.r2++
		}
		if (f&sam.MateUnmapped) != 0 && (f&sam.Unmapped) == 0 {
			stat.single++
		}
		if (f&sam.Unmapped) == 0 && (f&sam.MateUnmapped) == 0 {
			stat.pairMap++
			if r.RefID != r.MateRefID {
				stat.diffChr++
				if r.MapQ >= 5 {
					stat.diffHigh++
				}
			}
		}
	}
}

func percent(a int, b int) string {
	if b == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", float64(a)*100/float64(b))
}

// printFlagstat prints the stats in the layout of 'samtools flagstat'.
func printFlagstat(out io.Writer, qc, failed aggrFlagstat) {
	fmt.Fprintf(out, "%d + %d in total (QC-passed reads + QC-failed reads)\n", qc.total, failed.total)
	fmt.Fprintf(out, "%d + %d secondary\n", qc.secondary, failed.secondary)
	fmt.Fprintf(out, "%d + %d supplementary\n", qc.supplementary, failed.supplementary)
	fmt.Fprintf(out, "%d + %d duplicates\n", qc.duplicate, failed.duplicate)
	fmt.Fprintf(out, "%d + %d mapped (%s:%s)\n", qc.mapped, failed.mapped,
		percent(qc.mapped, qc.total), percent(failed.mapped, failed.total))
	fmt.Fprintf(out, "%d + %d paired in sequencing\n", qc.paired, failed.paired)
	fmt.Fprintf(out, "%d + %d read1\n", qc.r1, failed.r1)
	fmt.Fprintf(out, "%d + %d read2\n", qc.r2, failed.r2)
	fmt.Fprintf(out, "%d + %d properly paired (%s:%s)\n", qc.goodPair, failed.goodPair,
		percent(qc.goodPair, qc.paired), percent(failed.goodPair, failed.paired))
	fmt.Fprintf(out, "%d + %d with itself and mate mapped\n", qc.pairMap, failed.pairMap)
	fmt.Fprintf(out, "%d + %d singletons (%s:%s)\n", qc.single, failed.single,
		percent(qc.single, qc.total), percent(failed.single, failed.total))
	fmt.Fprintf(out, "%d + %d with mate mapped to a different chr\n", qc.diffChr, failed.diffChr)
	fmt.Fprintf(out, "%d + %d with mate mapped to a different chr (mapQ>=5)\n", qc.diffHigh, failed.diffHigh)
}

func flagstat(ctx context.Context, out io.Writer, path string) error {
	r, err := samio.OpenFile(ctx, path, samio.ReaderOpts{})
	if err != nil {
		return err
	}
	qc := aggrFlagstat{}
	failed := aggrFlagstat{}
	iter := r.Iterate()
	for iter.Scan() {
		rec := iter.Record()
		stat := &qc
		if (rec.Flags & sam.QCFail) != 0 {
			stat = &failed
		}
		stat.record(rec)
	}
	if err := iter.Close(); err != nil {
		r.Close() // nolint: errcheck
		return err
	}
	if err := r.Close(); err != nil {
		return err
	}
	printFlagstat(out, qc, failed)
	return nil
}
