// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package samio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/bam"
	"github.com/grailbio/samcore/encoding/bgzf"
	"github.com/grailbio/samcore/encoding/sam"
	"v.io/x/lib/vlog"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ReaderOpts defines options for NewReader and OpenFile.
type ReaderOpts struct {
	// Stringency controls how validation failures in SAM text are
	// handled. The zero value is sam.Strict.
	Stringency sam.Stringency

	// Index is the BAM index used by Query.
	Index *bam.Index

	// IndexPath is the pathname of the .bai file loaded by OpenFile when
	// Index is nil. If "", path + ".bai" is used if it exists.
	IndexPath string
}

// Reader reads records from a BAM or SAM stream. It is not safe for
// concurrent use, and at most one Iterator may be open at a time.
type Reader struct {
	opts   ReaderOpts
	format Format
	header *sam.Header
	index  *bam.Index

	src io.Reader
	rs  io.ReadSeeker // nil if the input cannot seek

	// bz is set for BAM and BGZF compressed SAM input.
	bz *bgzf.Reader
	// Virtual offset of the first BAM record.
	firstRecord bgzf.VOffset

	// SAM text input.
	lines *bufio.Reader
	// pending is the first record line, read while parsing the header.
	pending []byte
	lineno  int

	// active is set while an iterator is open, used once any iterator
	// has been created.
	active, used bool
	closed       bool
	closers      []func() error
}

// NewReader creates a Reader for r. The format is detected from the
// content. Query and repeated Iterate calls require r to implement
// io.Seeker; in that case r must be positioned at the start of the
// file.
func NewReader(r io.Reader, opts ReaderOpts) (*Reader, error) {
	rd := &Reader{opts: opts, index: opts.Index, src: r}
	var magic []byte
	if rs, ok := r.(io.ReadSeeker); ok {
		rd.rs = rs
		var buf [2]byte
		n, err := io.ReadFull(rs, buf[:])
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, errors.E(err, "samio: reading magic")
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return nil, errors.E(err, "samio: seek")
		}
		magic = buf[:n]
	} else {
		br := bufio.NewReader(r)
		var err error
		if magic, err = br.Peek(2); err != nil && err != io.EOF {
			return nil, errors.E(err, "samio: reading magic")
		}
		rd.src = br
	}

	if !bytes.Equal(magic, gzipMagic) {
		rd.format = SAM
		rd.lines = bufio.NewReader(rd.src)
		if err := rd.readTextHeader(true); err != nil {
			return nil, err
		}
		vlog.VI(1).Infof("samio: reading uncompressed SAM")
		return rd, nil
	}

	rd.bz = bgzf.NewReader(rd.src)
	var m [4]byte
	n, err := io.ReadFull(rd.bz, m[:])
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	head := io.MultiReader(bytes.NewReader(m[:n]), rd.bz)
	if n == len(m) && m == bam.Magic {
		rd.format = BAM
		if rd.header, err = bam.ReadHeader(head, opts.Stringency); err != nil {
			return nil, err
		}
		rd.firstRecord = rd.bz.VOffset()
		vlog.VI(1).Infof("samio: reading BAM, first record at %v", rd.firstRecord)
		return rd, nil
	}
	rd.format = SAM
	rd.lines = bufio.NewReader(head)
	if err := rd.readTextHeader(true); err != nil {
		return nil, err
	}
	vlog.VI(1).Infof("samio: reading BGZF compressed SAM")
	return rd, nil
}

// readLine returns the next line of SAM text without the newline.
func (r *Reader) readLine() ([]byte, error) {
	line, err := r.lines.ReadBytes('\n')
	if err == io.EOF && len(line) > 0 {
		err = nil
	}
	if err != nil {
		if err != io.EOF {
			err = errors.E(err, fmt.Sprintf("samio: reading line %d", r.lineno+1))
		}
		return nil, err
	}
	r.lineno++
	return bytes.TrimSuffix(line, []byte{'\n'}), nil
}

// readTextHeader consumes the header lines of SAM text, and parses
// them if parse is set. The first record line is kept in r.pending.
func (r *Reader) readTextHeader(parse bool) error {
	var text []byte
	r.pending = nil
	for {
		line, err := r.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		if len(line) == 0 || line[0] != '@' {
			r.pending = line
			break
		}
		if parse {
			text = append(text, line...)
			text = append(text, '\n')
		}
	}
	if !parse {
		return nil
	}
	h, err := sam.ParseHeader(text, r.opts.Stringency)
	if err != nil {
		return err
	}
	r.header = h
	return nil
}

// Header returns the file header.
func (r *Reader) Header() *sam.Header { return r.header }

// Format returns the detected file format.
func (r *Reader) Format() Format { return r.format }

// Index returns the index used by Query, nil if none.
func (r *Reader) Index() *bam.Index { return r.index }

func (r *Reader) acquire() error {
	if r.closed {
		return errors.E(errors.Precondition, "samio: reader is closed")
	}
	if r.active {
		return errors.E(errors.Precondition, "samio: another iterator is still open")
	}
	r.active = true
	return nil
}

// rewind positions the input at the first record.
func (r *Reader) rewind() error {
	if r.rs == nil {
		return errors.E(errors.Precondition, "samio: input cannot seek, records can be iterated only once")
	}
	if r.format == BAM {
		return r.bz.Seek(r.firstRecord)
	}
	if r.bz != nil {
		if err := r.bz.Seek(0); err != nil {
			return err
		}
		r.lines = bufio.NewReader(r.bz)
	} else {
		if _, err := r.rs.Seek(0, io.SeekStart); err != nil {
			return errors.E(err, "samio: seek")
		}
		r.lines.Reset(r.rs)
	}
	r.lineno = 0
	return r.readTextHeader(false)
}

// Iterate returns an iterator over all records, in file order. Each call
// starts from the first record, which requires a seekable input after the
// first call.
func (r *Reader) Iterate() Iterator {
	if err := r.acquire(); err != nil {
		return NewErrorIterator(err)
	}
	if r.used {
		if err := r.rewind(); err != nil {
			r.active = false
			return NewErrorIterator(err)
		}
	}
	r.used = true
	if r.format == BAM {
		return &bamIterator{r: r, chunk: -1}
	}
	return &samIterator{r: r}
}

// Query returns an iterator over the records of reference seqName that
// overlap, or if contained is set, lie within, the 1-based closed
// interval [start, end]. end <= 0 means the end of the reference. The
// input must be a seekable BAM file with an index.
func (r *Reader) Query(seqName string, start, end int, contained bool) Iterator {
	if err := r.acquire(); err != nil {
		return NewErrorIterator(err)
	}
	fail := func(err error) Iterator {
		r.active = false
		return NewErrorIterator(err)
	}
	switch {
	case r.format != BAM:
		return fail(errors.E(errors.Precondition, fmt.Sprintf("samio: query needs BAM input, not %v", r.format)))
	case r.rs == nil:
		return fail(errors.E(errors.Precondition, "samio: query needs a seekable input"))
	case r.index == nil:
		return fail(errors.E(errors.Precondition, "samio: query needs an index"))
	}
	refID, ok := r.header.RefID(seqName)
	if !ok {
		return fail(errors.E(errors.NotExist, fmt.Sprintf("samio: reference %q not in header", seqName)))
	}
	if start < 1 {
		start = 1
	}
	if end <= 0 {
		end = bam.MaxBinPos
		if ref, _ := r.header.Ref(refID); ref.Len() > 0 {
			end = ref.Len()
		}
	}
	chunks, err := r.index.Chunks(refID, start-1, end)
	if err != nil {
		return fail(err)
	}
	r.used = true
	vlog.VI(1).Infof("samio: query %s:%d-%d: %d chunks", seqName, start, end, len(chunks))
	return &bamIterator{
		r:     r,
		chunk: -1,
		q:     &query{refID: refID, start: start, end: end, contained: contained, chunks: chunks},
	}
}

// Close releases the input. Iterators must not be used afterwards.
func (r *Reader) Close() error {
	if r.closed {
		return errors.E(errors.Precondition, "samio: reader already closed")
	}
	r.closed = true
	var err error
	for _, c := range r.closers {
		if e := c(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// query describes the records a Query iterator yields.
type query struct {
	refID      int
	start, end int
	contained  bool
	chunks     []bgzf.Chunk
}

type action int

const (
	accept action = iota
	skip
	stop
)

func (q *query) check(raw *bam.RawRecord) action {
	refID := raw.RefID()
	switch {
	case refID < 0 || refID > q.refID:
		return stop
	case refID < q.refID:
		return skip
	}
	recStart := raw.Pos() + 1
	if recStart > q.end {
		return stop
	}
	recEnd := raw.End()
	if q.contained {
		if recStart >= q.start && recEnd <= q.end {
			return accept
		}
		return skip
	}
	if recEnd >= q.start && recStart <= q.end {
		return accept
	}
	return skip
}

type bamIterator struct {
	r      *Reader
	q      *query // nil when iterating over the whole file
	chunk  int
	rec    *sam.Record
	err    error
	done   bool
	closed bool
}

func (i *bamIterator) Scan() bool {
	if i.err != nil || i.done {
		return false
	}
	if i.closed || i.r.closed {
		i.err = errors.E(errors.Precondition, "samio: scan after close")
		return false
	}
	bz := i.r.bz
	for {
		if q := i.q; q != nil && (i.chunk < 0 || bz.VOffset() >= q.chunks[i.chunk].End) {
			i.chunk++
			if i.chunk >= len(q.chunks) {
				i.done = true
				return false
			}
			if i.err = bz.Seek(q.chunks[i.chunk].Begin); i.err != nil {
				return false
			}
		}
		voff := bz.VOffset()
		raw, err := bam.ReadRawRecord(bz)
		if err == io.EOF {
			i.done = true
			return false
		}
		if err != nil {
			i.err = errors.E(err, fmt.Sprintf("samio: record at %v", voff))
			return false
		}
		if i.q != nil {
			switch i.q.check(raw) {
			case skip:
				continue
			case stop:
				i.done = true
				return false
			}
		}
		if i.rec, err = raw.Force(i.r.header); err != nil {
			i.err = errors.E(err, fmt.Sprintf("samio: record at %v", voff))
			return false
		}
		return true
	}
}

func (i *bamIterator) Record() *sam.Record { return i.rec }

func (i *bamIterator) Err() error { return i.err }

func (i *bamIterator) Close() error {
	if !i.closed {
		i.closed = true
		i.r.active = false
	}
	return i.err
}

type samIterator struct {
	r      *Reader
	rec    *sam.Record
	err    error
	done   bool
	closed bool
}

func (i *samIterator) Scan() bool {
	if i.err != nil || i.done {
		return false
	}
	if i.closed || i.r.closed {
		i.err = errors.E(errors.Precondition, "samio: scan after close")
		return false
	}
	r := i.r
	for {
		line := r.pending
		r.pending = nil
		if line == nil {
			var err error
			if line, err = r.readLine(); err == io.EOF {
				i.done = true
				return false
			} else if err != nil {
				i.err = err
				return false
			}
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		rec, err := sam.ParseRecord(r.header, line, r.opts.Stringency)
		if err != nil {
			i.err = errors.E(err, fmt.Sprintf("samio: line %d", r.lineno))
			return false
		}
		i.rec = rec
		return true
	}
}

func (i *samIterator) Record() *sam.Record { return i.rec }

func (i *samIterator) Err() error { return i.err }

func (i *samIterator) Close() error {
	if !i.closed {
		i.closed = true
		i.r.active = false
	}
	return i.err
}
