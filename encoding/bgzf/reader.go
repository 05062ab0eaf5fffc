// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bgzf

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/klauspost/compress/gzip"
	"v.io/x/lib/vlog"
)

const (
	// headerLen is the length of the fixed gzip header up to and
	// including XLEN.
	headerLen = 12
	// gzip FLG bit that announces an Extra field.
	flagExtra = 0x04
)

// Reader decompresses a .bgzf stream one block at a time and tracks
// the virtual offset of every byte it returns.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	rs io.ReadSeeker // nil if the source cannot seek
	br *bufio.Reader
	gz *gzip.Reader

	// coffset is the file offset of the current block, next the file
	// offset of the block after it.
	coffset, next int64
	block         []byte
	data          bytes.Buffer
	// off is the read position within data.Bytes().
	off int
	// lastEmpty is set when the most recently read block had no payload.
	lastEmpty bool
	err       error
}

// NewReader returns a Reader that reads from r, starting at virtual
// offset 0.  Seek is only supported when r implements io.Seeker.
func NewReader(r io.Reader) *Reader {
	br := &Reader{br: bufio.NewReaderSize(r, compressedBlockSize)}
	if rs, ok := r.(io.ReadSeeker); ok {
		br.rs = rs
	}
	return br
}

// Read implements io.Reader.  It returns data from as many blocks as
// needed to fill p, skipping empty blocks.
func (r *Reader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.off >= r.data.Len() {
			if err := r.readBlock(); err != nil {
				if n > 0 && err == io.EOF {
					return n, nil
				}
				return n, err
			}
			continue
		}
		c := copy(p[n:], r.data.Bytes()[r.off:])
		r.off += c
		n += c
	}
	return n, nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	for r.off >= r.data.Len() {
		if err := r.readBlock(); err != nil {
			return 0, err
		}
	}
	b := r.data.Bytes()[r.off]
	r.off++
	return b, nil
}

// VOffset returns the virtual offset of the next byte Read will
// return.  When the current block is exhausted, the offset is
// expressed as the start of the following block.
func (r *Reader) VOffset() VOffset {
	if r.off >= r.data.Len() {
		return MakeVOffset(r.next, 0)
	}
	return MakeVOffset(r.coffset, r.off)
}

// Seek positions the reader at the given virtual offset.  It requires
// the underlying reader to implement io.Seeker.
func (r *Reader) Seek(v VOffset) error {
	if r.rs == nil {
		return errors.E(errors.NotSupported, "bgzf: seek on a non-seekable source")
	}
	if _, err := r.rs.Seek(v.BlockOffset(), io.SeekStart); err != nil {
		return errors.E(err, fmt.Sprintf("bgzf: seek %v", v))
	}
	r.br.Reset(r.rs)
	r.err = nil
	r.next = v.BlockOffset()
	r.coffset = r.next
	r.data.Reset()
	r.off = 0
	if err := r.readBlock(); err != nil {
		if err == io.EOF && v.DataOffset() == 0 {
			return nil
		}
		return err
	}
	if v.DataOffset() > r.data.Len() {
		return errors.E(errors.Invalid, fmt.Sprintf("bgzf: virtual offset %v beyond end of block", v))
	}
	r.off = v.DataOffset()
	return nil
}

// readBlock reads and decompresses the block at r.next.  It returns
// io.EOF at a clean end of stream.
func (r *Reader) readBlock() error {
	if r.err != nil {
		return r.err
	}
	var hdr [headerLen]byte
	n, err := io.ReadFull(r.br, hdr[:])
	if err == io.EOF {
		if !r.lastEmpty {
			vlog.Errorf("bgzf: stream ends without EOF terminator at offset %d", r.next)
			r.lastEmpty = true
		}
		// Keep VOffset at the end of the stream.
		r.coffset = r.next
		r.data.Reset()
		r.off = 0
		return io.EOF
	}
	if err != nil {
		return r.fail(errors.E(errors.Integrity, err, fmt.Sprintf("bgzf: truncated block header at offset %d after %d bytes", r.next, n)))
	}
	if hdr[0] != 0x1f || hdr[1] != 0x8b || hdr[2] != 8 || hdr[3]&flagExtra == 0 {
		return r.fail(errors.E(errors.Integrity, fmt.Sprintf("bgzf: not a bgzf block at offset %d", r.next)))
	}
	xlen := int(binary.LittleEndian.Uint16(hdr[10:]))
	size := headerLen + xlen
	if cap(r.block) < compressedBlockSize {
		r.block = make([]byte, compressedBlockSize)
	}
	r.block = r.block[:size]
	copy(r.block, hdr[:])
	if _, err := io.ReadFull(r.br, r.block[headerLen:]); err != nil {
		return r.fail(errors.E(errors.Integrity, err, fmt.Sprintf("bgzf: truncated extra field at offset %d", r.next)))
	}
	bsize := -1
	for x := r.block[headerLen:]; len(x) >= 4; {
		slen := int(binary.LittleEndian.Uint16(x[2:]))
		if x[0] == bgzfExtraPrefix[0] && x[1] == bgzfExtraPrefix[1] && slen == 2 && len(x) >= 6 {
			bsize = int(binary.LittleEndian.Uint16(x[4:]))
			break
		}
		if len(x) < 4+slen {
			break
		}
		x = x[4+slen:]
	}
	if bsize < size+8-1 {
		return r.fail(errors.E(errors.Integrity, fmt.Sprintf("bgzf: missing or invalid BSIZE at offset %d", r.next)))
	}
	total := bsize + 1
	r.block = r.block[:total]
	if _, err := io.ReadFull(r.br, r.block[size:]); err != nil {
		return r.fail(errors.E(errors.Integrity, err, fmt.Sprintf("bgzf: truncated block at offset %d", r.next)))
	}
	if err := r.inflate(); err != nil {
		return r.fail(errors.E(errors.Integrity, err, fmt.Sprintf("bgzf: corrupt block at offset %d", r.next)))
	}
	r.coffset = r.next
	r.next += int64(total)
	r.off = 0
	r.lastEmpty = r.data.Len() == 0
	return nil
}

func (r *Reader) fail(err error) error {
	r.err = err
	return err
}

func (r *Reader) inflate() error {
	var err error
	src := bytes.NewReader(r.block)
	if r.gz == nil {
		if r.gz, err = gzip.NewReader(src); err != nil {
			return err
		}
	} else if err = r.gz.Reset(src); err != nil {
		return err
	}
	r.gz.Multistream(false)
	r.data.Reset()
	isize := binary.LittleEndian.Uint32(r.block[len(r.block)-4:])
	if isize > MaxUncompressedBlockSize {
		return errors.E(errors.Integrity, fmt.Sprintf("bgzf: uncompressed size %d too large", isize))
	}
	r.data.Grow(int(isize))
	if _, err = r.data.ReadFrom(r.gz); err != nil {
		return err
	}
	if r.data.Len() != int(isize) {
		return errors.E(errors.Integrity, fmt.Sprintf("bgzf: uncompressed size %d does not match ISIZE %d", r.data.Len(), isize))
	}
	return nil
}
