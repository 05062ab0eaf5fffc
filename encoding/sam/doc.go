// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package sam defines the alignment data model shared by the SAM text and
// BAM binary forms: records, flags, cigars, optional fields and the file
// header. It also implements the SAM text codec for headers and records,
// with validation governed by a Stringency.
//
// Records carry integer reference ids. The header, which owns the sequence
// dictionary, is passed explicitly wherever ids must be resolved to names.
package sam
