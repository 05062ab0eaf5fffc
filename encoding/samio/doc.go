// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package samio reads and writes alignment files in BAM or SAM format.
//
// A Reader detects the format of its input, parses the header, and
// hands out Iterators over all records (Iterate) or over the records
// of a genomic interval (Query, BAM with an index only).  At most one
// Iterator of a Reader may be open at a time.
//
// Example:
//   r, err := samio.OpenFile(ctx, "foo.bam", samio.ReaderOpts{})
//   ...
//   iter := r.Query("chr1", 1, 100, false)
//   for iter.Scan() {
//     rec := iter.Record()
//     ...
//   }
//   err = iter.Close()
//   err = r.Close()
package samio
