// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam implements the BAM binary encoding of sam.Records and
// sam.Headers, and the BAI index used to locate records overlapping a
// genomic interval.
//
// Records are exchanged as the bytes that follow the block_size word
// of a BAM alignment. RawRecord gives access to the fixed-size fields
// of such bytes without decoding the rest; Force produces the full
// sam.Record.
package bam
