// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import (
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/bgzf"
	"github.com/grailbio/samcore/encoding/sam"
)

// BuildIndex reads a coordinate sorted .bam file from r and returns its
// BAI index.  The index is identical to the one a writer produces while
// writing the same records.
func BuildIndex(r io.Reader) (*Index, error) {
	bz := bgzf.NewReader(r)
	header, err := ReadHeader(bz, sam.Lenient)
	if err != nil {
		return nil, err
	}
	b := NewIndexBuilder(header.NumRefs())
	for n := 0; ; n++ {
		begin := bz.VOffset()
		rec, err := ReadRawRecord(bz)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(err, fmt.Sprintf("bam index: record %d at %v", n, begin))
		}
		if err := b.Add(rec, bgzf.Chunk{Begin: begin, End: bz.VOffset()}); err != nil {
			return nil, err
		}
	}
	return b.Index(), nil
}
