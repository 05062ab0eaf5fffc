package cmd

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/samcore/encoding/bam"
)

// buildIndex reads a coordinate-sorted BAM file and writes its BAI index to
// indexPath, or to path+".bai" if indexPath is empty.
func buildIndex(ctx context.Context, path, indexPath string) (err error) {
	if indexPath == "" {
		indexPath = path + ".bai"
	}
	in, err := file.Open(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, in, &err)
	idx, err := bam.BuildIndex(in.Reader(ctx))
	if err != nil {
		return errors.E(err, path)
	}
	out, err := file.Create(ctx, indexPath)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	if err := bam.WriteIndex(out.Writer(ctx), idx); err != nil {
		return errors.E(err, indexPath)
	}
	log.Printf("%s: wrote index of %d references", indexPath, len(idx.Refs))
	return nil
}
