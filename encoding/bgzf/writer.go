// Package bgzf reads and writes the .bgzf (block gzipped) file format.
// A .bgzf file consists of one or more complete gzip members
// concatenated together.  Each member represents at most 64KB of
// uncompressed data, and its compressed size is at most 64KB.  The
// payload of the file is the in-order concatenation of the
// uncompressed content of each block.  A valid .bgzf file ends with
// the 28 byte terminator shown below; the terminator is a valid gzip
// member with an empty payload.
//
// Positions inside a .bgzf file are addressed by virtual offsets, see
// VOffset.  A position can be reached by seeking to the start of its
// compressed block and skipping into the uncompressed payload.
//
// For more information about the format, see the SAM/BAM spec here:
// https://samtools.github.io/hts-specs/SAMv1.pdf
//
// Example use:
//   var bgzfFile bytes.Buffer
//   w, err := NewWriter(&bgzfFile, flate.DefaultCompression)
//   n, err := w.Write([]byte("Foo bar"))
//   err = w.Close()
//
// Example use with multiple compression shards:
//   // In goroutine 1
//   var shard1 bytes.Buffer
//   w, err := NewWriter(&shard1, flate.DefaultCompression)
//   n, err := w.Write([]byte("Foo bar"))
//   err = w.CloseWithoutTerminator()
//
//   // In goroutine 2
//   var shard2 bytes.Buffer
//   w, err := NewWriter(&shard2, flate.DefaultCompression)
//   n, err := w.Write([]byte(" baz!"))
//   err = w.Close()  // Terminator goes at the end of the last shard.
package bgzf

import (
	"bytes"
	"io"
	"io/ioutil"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"v.io/x/lib/vlog"
)

const (
	// DefaultUncompressedBlockSize is the default bgzf
	// uncompressedBlockSize chosen by both sambamba and biogo.  See
	// the SAM/BAM specification for details.
	DefaultUncompressedBlockSize = 0x0ff00

	// MaxUncompressedBlockSize is the largest legal value for
	// uncompressedBlockSize.
	MaxUncompressedBlockSize = 0x10000

	// compressedBlockSize is the maximum size of the compressed data
	// for a Bgzf block.  See the SAM/BAM specification for details.
	compressedBlockSize = 0x10000

	// extraOffset is the offset of the Extra field in the gzip header.
	extraOffset = 12
)

var (
	// bgzfExtra goes into the gzip's Extra subfield, with subfield
	// ids: 66, 67, and length 2.  See the SAM/BAM spec.
	bgzfExtra       = [...]byte{66, 67, 2, 0, 0, 0}
	bgzfExtraPrefix = [...]byte{66, 67, 2, 0}

	// terminator is the Bgzf EOF terminator.  It belongs at the end
	// of a valid Bgzf file.  See the SAM/BAM spec.
	terminator = []byte{
		0x1f, 0x8b, 0x08, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0xff, 0x06, 0x00, 0x42, 0x43,
		0x02, 0x00, 0x1b, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// Writer compresses data into .bgzf format.  Each gzip block has an
// uncompressed size of at most 64KB.  The .bgzf format adds an Extra
// header field to each of the gzip headers; the Extra field contains
// the size of the compressed block in bytes - 1.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	level            int
	uncompressedSize int
	xfl              int
	w                io.Writer
	original         bytes.Buffer
	compressed       bytes.Buffer
	gz               *gzip.Writer
	coffset          int64 // starting file position of the current gzip block
	closed           bool
}

// NewWriter returns a new .bgzf writer with the given compression
// level.  Returns nil, error if the level is invalid.
func NewWriter(w io.Writer, level int) (*Writer, error) {
	return NewWriterParams(w, level, DefaultUncompressedBlockSize, -1)
}

// NewWriterParams returns a new .bgzf writer with the given
// compression level and uncompressed block size.  If xfl is
// non-negative, it replaces the XFL byte of every gzip header.
func NewWriterParams(w io.Writer, level, uncompressedBlockSize, xfl int) (*Writer, error) {
	if uncompressedBlockSize <= 0 || uncompressedBlockSize > MaxUncompressedBlockSize {
		return nil, errors.Errorf("bgzf: invalid uncompressed block size %d", uncompressedBlockSize)
	}
	gz, err := gzip.NewWriterLevel(ioutil.Discard, level)
	if err != nil {
		return nil, errors.Wrapf(err, "bgzf: compression level %d", level)
	}
	return &Writer{
		level:            level,
		uncompressedSize: uncompressedBlockSize,
		xfl:              xfl,
		w:                w,
		gz:               gz,
	}, nil
}

// Write appends buf to the .bgzf payload.  Returns the number of
// bytes consumed from buf and any error encountered.
func (w *Writer) Write(buf []byte) (int, error) {
	if w.closed {
		return 0, errors.New("bgzf: write after close")
	}
	for i := 0; i < len(buf); {
		// Buffer at most one block at a time to avoid creating an
		// entire copy of the input buf.
		end := len(buf)
		limit := i + w.uncompressedSize - w.original.Len()
		if limit < end {
			end = limit
		}
		n, _ := w.original.Write(buf[i:end])
		i += n
		if err := w.tryCompress(false); err != nil {
			return i, err
		}
	}
	return len(buf), nil
}

// Flush compresses any buffered data into a block of its own, so that
// the next byte written starts a new block.
func (w *Writer) Flush() error {
	if w.closed {
		return errors.New("bgzf: flush after close")
	}
	return w.tryCompress(true)
}

// CloseWithoutTerminator closes the current .bgzf block, but does not
// append the .bgzf terminator.  This output file is not a complete
// .bgzf file until the terminator is appended.
func (w *Writer) CloseWithoutTerminator() error {
	if w.closed {
		return errors.New("bgzf: writer already closed")
	}
	err := w.tryCompress(true)
	w.closed = true
	return err
}

// Close the current .bgzf block and also append the .bgzf terminator.
func (w *Writer) Close() error {
	if err := w.CloseWithoutTerminator(); err != nil {
		return err
	}
	n, err := w.w.Write(terminator)
	w.coffset += int64(n)
	return err
}

// tryCompress removes blocks from w.original, compresses them and
// writes them to the underlying writer.  If compressRemainder is
// set, a trailing partial block is also compressed.
func (w *Writer) tryCompress(compressRemainder bool) error {
	for w.original.Len() >= w.uncompressedSize || (compressRemainder && w.original.Len() > 0) {
		// Reset gzip to start a new block.
		w.gz.Reset(&w.compressed)
		w.gz.Header.Extra = append([]byte(nil), bgzfExtra[:]...)
		w.gz.Header.OS = 0xff // Unknown OS value

		if _, err := w.gz.Write(w.original.Next(w.uncompressedSize)); err != nil {
			return errors.Wrap(err, "bgzf: compress")
		}
		if err := w.gz.Close(); err != nil {
			return errors.Wrap(err, "bgzf: compress")
		}

		// Edit gzip header where necessary.
		b := w.compressed.Bytes()
		if w.xfl >= 0 {
			b[8] = byte(w.xfl) // offset of the XFL field in the gzip header.
		}

		// Replace bgzf BSIZE header with compressed length - 1.
		bsize := w.compressed.Len() - 1
		if bsize >= compressedBlockSize {
			return errors.Errorf("bgzf: compressed block is too big: %d > %d", bsize, compressedBlockSize)
		}
		if w.compressed.Len() < extraOffset+len(bgzfExtra) {
			vlog.Fatalf("compressed length is too short: %d < %d", w.compressed.Len(),
				extraOffset+len(bgzfExtra))
		}
		if !bytes.Equal(b[extraOffset:extraOffset+len(bgzfExtraPrefix)], bgzfExtraPrefix[:]) {
			vlog.Fatalf("could not find bgzf extra prefix")
		}
		b[extraOffset+4] = byte(bsize)
		b[extraOffset+5] = byte(bsize >> 8)

		sz := w.compressed.Len()
		if _, err := w.compressed.WriteTo(w.w); err != nil {
			return errors.Wrap(err, "bgzf: write block")
		}
		w.coffset += int64(sz)
	}
	return nil
}

// VOffset returns the virtual offset of the next byte to be written.
// The data offset is never 0x10000: a full block is compressed before
// VOffset can observe it.
func (w *Writer) VOffset() VOffset {
	return MakeVOffset(w.coffset, w.original.Len())
}
