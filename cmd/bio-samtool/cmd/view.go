package cmd

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/grailbio/base/tsv"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/samcore/encoding/samio"
)

// viewRegion is a 1-based closed interval within refName. end=0 stands for
// the end of the reference.
type viewRegion struct {
	refName    string
	start, end int
}

// Parse flag of form "chr0:beg0-end0,...,chrk:begk-endk". The position part
// of each region is optional.
func parseRegionsFlag(flag string) ([]viewRegion, error) {
	regions := []viewRegion{}
	re := regexp.MustCompile(`^([^:]+)(?::(\d+)(?:-(\d+))?)?$`)
	for _, val := range strings.Split(flag, ",") {
		matches := re.FindStringSubmatch(val)
		if matches == nil {
			return nil, fmt.Errorf("%s: must be of form 'chr', 'chr:beg' or 'chr:beg-end'", val)
		}
		r := viewRegion{refName: matches[1], start: 1}
		if matches[2] != "" {
			begin, err := strconv.ParseInt(matches[2], 10, 64)
			if err != nil {
				return nil, err
			}
			r.start = int(begin)
		}
		if matches[3] != "" {
			end, err := strconv.ParseInt(matches[3], 10, 64)
			if err != nil {
				return nil, err
			}
			if int(end) < r.start {
				return nil, fmt.Errorf("%s: end is before start", val)
			}
			r.end = int(end)
		}
		regions = append(regions, r)
	}
	return regions, nil
}

type viewFlags struct {
	index      string
	withHeader bool
	headerOnly bool
	regions    string
	filter     string
	contained  bool
	stringency string
}

func printRecords(w *tsv.Writer, h *sam.Header, iter samio.Iterator, filter *filterExpr) error {
	for iter.Scan() {
		rec := iter.Record()
		if filter != nil && !evaluateFilterExpr(filter, h, rec) {
			continue
		}
		if err := sam.WriteRecordText(w, h, rec); err != nil {
			iter.Close() // nolint: errcheck
			return err
		}
	}
	return iter.Close()
}

func view(ctx context.Context, out io.Writer, flags viewFlags, path string) (err error) {
	var regions []viewRegion
	if flags.regions != "" {
		if regions, err = parseRegionsFlag(flags.regions); err != nil {
			return err
		}
	}
	var filter *filterExpr
	if flags.filter != "" {
		if filter, err = parseFilterExpr(flags.filter); err != nil {
			return err
		}
	}
	opts := samio.ReaderOpts{IndexPath: flags.index}
	if flags.stringency != "" {
		if opts.Stringency, err = sam.ParseStringency(flags.stringency); err != nil {
			return err
		}
	}
	r, err := samio.OpenFile(ctx, path, opts)
	if err != nil {
		return err
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	h := r.Header()
	w := tsv.NewWriter(out)
	if flags.headerOnly || flags.withHeader {
		if err := sam.WriteHeaderText(w, h); err != nil {
			return err
		}
		if flags.headerOnly {
			return w.Flush()
		}
	}
	if len(regions) == 0 {
		if err := printRecords(w, h, r.Iterate(), filter); err != nil {
			return err
		}
	}
	for _, region := range regions {
		if err := printRecords(w, h, r.Query(region.refName, region.start, region.end, flags.contained), filter); err != nil {
			return err
		}
	}
	return w.Flush()
}
