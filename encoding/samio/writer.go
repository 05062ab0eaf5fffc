// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package samio

import (
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/samcore/encoding/bam"
	"github.com/grailbio/samcore/encoding/bgzf"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/klauspost/compress/flate"
	"v.io/x/lib/vlog"
)

// WriterOpts defines options for NewWriter and CreateFile.
type WriterOpts struct {
	// Format is the output encoding. Unknown means BAM.
	Format Format

	// Level is the gzip compression level of BGZF blocks. 0 means
	// flate.DefaultCompression.
	Level int

	// Compress makes SAM output BGZF compressed. BAM output is always
	// compressed.
	Compress bool

	// Index, if non-nil, receives the BAI index of the BAM output when the
	// writer is closed. Records must then be written in coordinate order.
	Index io.Writer

	// WriteIndex makes CreateFile write the index to path + ".bai".
	WriteIndex bool
}

// Writer writes records in BAM or SAM format. It is not safe for
// concurrent use.
type Writer struct {
	h      *sam.Header
	format Format

	bz  *bgzf.Writer
	tw  *tsv.Writer
	buf bytes.Buffer

	index    *bam.IndexBuilder
	indexOut io.Writer

	n       int
	closed  bool
	closers []func() error
}

// NewWriter creates a Writer that writes h and then records to w.
func NewWriter(w io.Writer, h *sam.Header, opts WriterOpts) (*Writer, error) {
	if h == nil {
		return nil, errors.E(errors.Invalid, "samio: nil header")
	}
	level := opts.Level
	if level == 0 {
		level = flate.DefaultCompression
	}
	wr := &Writer{h: h, format: opts.Format}
	if wr.format == Unknown {
		wr.format = BAM
	}
	switch wr.format {
	case BAM:
		var err error
		if wr.bz, err = bgzf.NewWriter(w, level); err != nil {
			return nil, errors.E(errors.Invalid, err)
		}
		if err := bam.WriteHeader(wr.bz, h); err != nil {
			return nil, err
		}
		// Records start in a block of their own.
		if err := wr.bz.Flush(); err != nil {
			return nil, errors.E(err, "samio: write header")
		}
		if opts.Index != nil {
			if h.SortOrder() != sam.Coordinate {
				vlog.Infof("samio: indexing output with sort order %v", h.SortOrder())
			}
			wr.index = bam.NewIndexBuilder(h.NumRefs())
			wr.indexOut = opts.Index
		}
	case SAM:
		if opts.Index != nil {
			return nil, errors.E(errors.Precondition, "samio: SAM output cannot be indexed")
		}
		out := w
		if opts.Compress {
			var err error
			if wr.bz, err = bgzf.NewWriter(w, level); err != nil {
				return nil, errors.E(errors.Invalid, err)
			}
			out = wr.bz
		}
		wr.tw = tsv.NewWriter(out)
		if err := sam.WriteHeaderText(wr.tw, h); err != nil {
			return nil, errors.E(err, "samio: write header")
		}
	default:
		return nil, errors.E(errors.Invalid, fmt.Sprintf("samio: invalid output format %v", opts.Format))
	}
	return wr, nil
}

// Header returns the header the writer was created with.
func (w *Writer) Header() *sam.Header { return w.h }

// Format returns the output format.
func (w *Writer) Format() Format { return w.format }

// Write appends r to the output. The reference ids of r must be in the
// header dictionary.
func (w *Writer) Write(r *sam.Record) error {
	if w.closed {
		return errors.E(errors.Precondition, "samio: write after close")
	}
	nRefs := w.h.NumRefs()
	if r.RefID < sam.NoRefID || r.RefID >= nRefs {
		return errors.E(errors.Invalid, fmt.Sprintf("samio: record %s: reference id %d not in dictionary of %d", r.Name, r.RefID, nRefs))
	}
	if r.MateRefID < sam.NoRefID || r.MateRefID >= nRefs {
		return errors.E(errors.Invalid, fmt.Sprintf("samio: record %s: mate reference id %d not in dictionary of %d", r.Name, r.MateRefID, nRefs))
	}
	w.n++
	if w.format == SAM {
		return sam.WriteRecordText(w.tw, w.h, r)
	}
	w.buf.Reset()
	if err := bam.Marshal(r, &w.buf); err != nil {
		return err
	}
	begin := w.bz.VOffset()
	if _, err := w.bz.Write(w.buf.Bytes()); err != nil {
		return errors.E(err, fmt.Sprintf("samio: write record %d", w.n))
	}
	if w.index == nil {
		return nil
	}
	raw, err := bam.NewRawRecord(w.buf.Bytes()[4:])
	if err != nil {
		return err
	}
	return w.index.Add(raw, bgzf.Chunk{Begin: begin, End: w.bz.VOffset()})
}

// Close flushes the output and writes the index, if any. It does not
// close the io.Writer passed to NewWriter.
func (w *Writer) Close() error {
	if w.closed {
		return errors.E(errors.Precondition, "samio: writer already closed")
	}
	w.closed = true
	var err error
	if w.tw != nil {
		err = w.tw.Flush()
	}
	if w.bz != nil {
		if e := w.bz.Close(); e != nil && err == nil {
			err = errors.E(e, "samio: close")
		}
	}
	if w.index != nil && err == nil {
		err = bam.WriteIndex(w.indexOut, w.index.Index())
	}
	for _, c := range w.closers {
		if e := c(); e != nil && err == nil {
			err = e
		}
	}
	vlog.VI(1).Infof("samio: wrote %d %v records", w.n, w.format)
	return err
}
