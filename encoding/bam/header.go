package bam

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/samcore/encoding/sam"
)

// Magic is the first four bytes of the decompressed BAM stream.
var Magic = [4]byte{'B', 'A', 'M', 1}

// maxHeaderText bounds l_text and l_name to reject corrupt input
// before allocating.
const maxHeaderText = 1 << 30

// WriteHeader writes the binary BAM header: the magic, the SAM text of
// h, and the binary sequence dictionary.
func WriteHeader(w io.Writer, h *sam.Header) error {
	text, err := h.MarshalText()
	if err != nil {
		return err
	}
	bb := bytes.Buffer{}
	bin := binaryWriter{w: &bb}
	bb.Write(Magic[:])
	bin.writeInt32(int32(len(text)))
	bb.Write(text)
	refs := h.Refs()
	bin.writeInt32(int32(len(refs)))
	for _, ref := range refs {
		bin.writeInt32(int32(len(ref.Name()) + 1))
		bb.WriteString(ref.Name())
		bb.WriteByte(0)
		bin.writeInt32(int32(ref.Len()))
	}
	_, err = w.Write(bb.Bytes())
	return err
}

// MarshalHeader encodes header in BAM binary format.
func MarshalHeader(h *sam.Header) ([]byte, error) {
	bb := bytes.Buffer{}
	if err := WriteHeader(&bb, h); err != nil {
		return nil, err
	}
	return bb.Bytes(), nil
}

type binaryReader struct {
	r   io.Reader
	buf [4]byte
	err error
}

func (r *binaryReader) readInt32(what string) int32 {
	if r.err != nil {
		return 0
	}
	if _, err := io.ReadFull(r.r, r.buf[:]); err != nil {
		r.err = errors.E(errors.Integrity, "bam: truncated header reading "+what, err)
		return 0
	}
	return int32(binary.LittleEndian.Uint32(r.buf[:]))
}

func (r *binaryReader) readBytes(n int32, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > maxHeaderText {
		r.err = errors.E(errors.Integrity, fmt.Sprintf("bam: invalid %s length %d", what, n))
		return nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r.r, b); err != nil {
		r.err = errors.E(errors.Integrity, "bam: truncated header reading "+what, err)
		return nil
	}
	return b
}

// ReadHeader reads a binary BAM header from r, which must be positioned
// at the start of the decompressed stream.  The SAM text is parsed
// with stringency s.  The binary sequence dictionary must agree with
// the @SQ lines of the text, name for name and length for length.  If
// the text has no @SQ lines, the binary dictionary is used.
func ReadHeader(r io.Reader, s sam.Stringency) (*sam.Header, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, errors.E(errors.Integrity, "bam: reading magic", err)
	}
	if magic != Magic {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: invalid magic %q", magic[:]))
	}
	br := binaryReader{r: r}
	text := br.readBytes(br.readInt32("l_text"), "header text")
	nRef := br.readInt32("n_ref")
	if br.err == nil && nRef < 0 {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: invalid reference count %d", nRef))
	}
	type binRef struct {
		name string
		len  int
	}
	var binRefs []binRef
	for i := int32(0); i < nRef && br.err == nil; i++ {
		name := br.readBytes(br.readInt32("l_name"), "reference name")
		length := br.readInt32("l_ref")
		if br.err != nil {
			break
		}
		if len(name) == 0 || name[len(name)-1] != 0 {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: reference %d: name is not NUL terminated", i))
		}
		binRefs = append(binRefs, binRef{string(name[:len(name)-1]), int(length)})
	}
	if br.err != nil {
		return nil, br.err
	}

	h, err := sam.ParseHeader(bytes.TrimRight(text, "\x00"), s)
	if err != nil {
		return nil, err
	}
	if h.NumRefs() == 0 && len(binRefs) > 0 {
		p := h.Params()
		for _, b := range binRefs {
			ref, err := sam.NewReference(b.name, b.len)
			if err != nil {
				return nil, errors.E(errors.Integrity, err)
			}
			p.Refs = append(p.Refs, ref)
		}
		return sam.NewHeader(p)
	}
	if h.NumRefs() != len(binRefs) {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: header text has %d references, binary dictionary has %d", h.NumRefs(), len(binRefs)))
	}
	for i, ref := range h.Refs() {
		if ref.Name() != binRefs[i].name || ref.Len() != binRefs[i].len {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("bam: reference %d: header text has %s:%d, binary dictionary has %s:%d",
				i, ref.Name(), ref.Len(), binRefs[i].name, binRefs[i].len))
		}
	}
	return h, nil
}
