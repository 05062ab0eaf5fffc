package cmd

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/samcore/encoding/samio"
)

type convertOpts struct {
	// format is the output format, "sam" or "bam". Guessed from the output
	// path if empty.
	format string
	// index makes a BAM output come with a .bai index.
	index bool
	// level is the gzip compression level.
	level int
	// compress makes a SAM output BGZF compressed.
	compress bool
	// stringency is the validation stringency of the input.
	stringency string
}

// convert copies all the records of srcPath into dstPath, possibly changing
// the encoding.
func convert(ctx context.Context, srcPath, dstPath string, opts convertOpts) (err error) {
	ropts := samio.ReaderOpts{}
	if opts.stringency != "" {
		if ropts.Stringency, err = sam.ParseStringency(opts.stringency); err != nil {
			return err
		}
	}
	wopts := samio.WriterOpts{
		Level:      opts.level,
		Compress:   opts.compress,
		WriteIndex: opts.index,
	}
	if opts.format != "" {
		if wopts.Format = samio.ParseFormat(opts.format); wopts.Format == samio.Unknown {
			return errors.E(errors.Invalid, "unknown output format "+opts.format)
		}
	}
	r, err := samio.OpenFile(ctx, srcPath, ropts)
	if err != nil {
		return err
	}
	defer func() {
		if e := r.Close(); e != nil && err == nil {
			err = e
		}
	}()
	w, err := samio.CreateFile(ctx, dstPath, r.Header(), wopts)
	if err != nil {
		return err
	}
	n := 0
	iter := r.Iterate()
	for iter.Scan() {
		if err = w.Write(iter.Record()); err != nil {
			break
		}
		n++
	}
	if e := iter.Close(); e != nil && err == nil {
		err = e
	}
	if e := w.Close(); e != nil && err == nil {
		err = e
	}
	if err == nil {
		log.Printf("%s: wrote %d records in %v format", dstPath, n, w.Format())
	}
	return err
}
