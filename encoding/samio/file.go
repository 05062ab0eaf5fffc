// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package samio

import (
	"context"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/samcore/encoding/bam"
	"github.com/grailbio/samcore/encoding/sam"
	"v.io/x/lib/vlog"
)

// OpenFile opens a BAM or SAM file for reading. Path may name any file
// supported by grailbio/base/file, e.g. an S3 object. Unless opts.Index is
// set, the index is loaded from opts.IndexPath, or from path + ".bai" if
// that file exists.
func OpenFile(ctx context.Context, path string, opts ReaderOpts) (*Reader, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if opts.Index == nil {
		indexPath, required := opts.IndexPath, true
		if indexPath == "" {
			indexPath, required = path+".bai", false
		}
		idx, err := loadIndex(ctx, indexPath)
		switch {
		case err == nil:
			opts.Index = idx
		case !required && errors.Is(errors.NotExist, err):
			vlog.VI(1).Infof("samio: %s has no index", path)
		default:
			_ = in.Close(ctx)
			return nil, err
		}
	}
	r, err := NewReader(in.Reader(ctx), opts)
	if err != nil {
		_ = in.Close(ctx)
		return nil, errors.E(err, path)
	}
	r.closers = append(r.closers, func() error { return in.Close(ctx) })
	return r, nil
}

func loadIndex(ctx context.Context, path string) (*bam.Index, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	idx, err := bam.ReadIndex(in.Reader(ctx))
	if e := in.Close(ctx); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return nil, errors.E(err, path)
	}
	return idx, nil
}

// CreateFile creates a BAM or SAM file. If opts.Format is Unknown, the
// format is guessed from the path, defaulting to BAM. A ".gz" suffix
// makes SAM output compressed. If
// opts.WriteIndex is set, the BAI index is written to path + ".bai"
// when the writer is closed.
func CreateFile(ctx context.Context, path string, h *sam.Header, opts WriterOpts) (*Writer, error) {
	if opts.Format == Unknown {
		opts.Format = GuessFormat(path)
	}
	if strings.HasSuffix(path, ".gz") {
		opts.Compress = true
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return nil, err
	}
	var closers []func() error
	if opts.WriteIndex && opts.Index == nil {
		indexOut, err := file.Create(ctx, path+".bai")
		if err != nil {
			_ = out.Close(ctx)
			return nil, err
		}
		opts.Index = indexOut.Writer(ctx)
		closers = append(closers, func() error { return indexOut.Close(ctx) })
	}
	w, err := NewWriter(out.Writer(ctx), h, opts)
	if err != nil {
		for _, c := range closers {
			_ = c()
		}
		_ = out.Close(ctx)
		return nil, errors.E(err, path)
	}
	w.closers = append([]func() error{func() error { return out.Close(ctx) }}, closers...)
	return w, nil
}
