package cmd

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash"
	"io"

	"blainsmith.com/go/seahash"
	"github.com/dgryski/go-farm"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/unsafe"
	"github.com/grailbio/samcore/encoding/sam"
	"github.com/grailbio/samcore/encoding/samio"
	"github.com/minio/highwayhash"
)

type checksumOpts struct {
	// baiPath sets the name of the BAM index file. If empty, bampath+".bai" is used.
	baiPath string

	// hash is the hash function, "seahash", "highway" or "farm".
	hash string

	// all treats all the following bool fields to be true.  If all=true, then the
	// individual values of the following fields are ignored.
	all bool

	// name causes the record names to be added to the checksum.
	name bool
	// mapq causes the mapq tag values to be added to the checksum.
	mapQ bool
	// cigar causes the sequences to be added to the checksum
	cigar bool
	// mate causes the materef and matepos to be added to the checksum
	matePos bool
	// templen causes the templen to be added to the checksum
	tempLen bool
	// seq causes the sequences to be added to the checksum
	seq bool
	// qual causes the sequences to be added to the checksum
	qual bool
	// aux causes the aux tag values to be added to the checksum.
	aux bool
}

// highwayKey is the fixed key of the highway hash. Checksums are only
// comparable when computed with the same key.
var highwayKey = []byte("samcore-checksum-highwayhash-key")

// farmHash buffers its input and hashes it with farm.Hash64 in Sum64.
type farmHash struct {
	buf []byte
}

func (h *farmHash) Write(p []byte) (int, error) {
	h.buf = append(h.buf, p...)
	return len(p), nil
}

func (h *farmHash) Sum(b []byte) []byte {
	var v [8]byte
	binary.BigEndian.PutUint64(v[:], h.Sum64())
	return append(b, v[:]...)
}

func (h *farmHash) Sum64() uint64 { return farm.Hash64(h.buf) }

func (h *farmHash) Reset() { h.buf = h.buf[:0] }

func (h *farmHash) Size() int { return 8 }

func (h *farmHash) BlockSize() int { return 1 }

func newHash(name string) (hash.Hash64, error) {
	switch name {
	case "", "seahash":
		return seahash.New(), nil
	case "highway":
		return highwayhash.New64(highwayKey)
	case "farm":
		return &farmHash{}, nil
	}
	return nil, fmt.Errorf("unknown hash function %q, must be seahash, highway or farm", name)
}

// RefChecksum is the checksum of reads for one chromosome.
type refChecksum struct {
	// Name is the name of the reference.
	Name string
	// NRecs is the # Of records found for this reference sequence.
	NRecs int64
	// SumPos is sum of all position values. A quick commutative hash.
	SumPos uint64
	// SumFlags is sum of all flag values.
	SumFlags uint64
	// SumTemplen is the sum of templen values.
	SumTempLen uint64
	// SumMapQ is the sum of mapq values.
	SumMapQ uint64
	// SumMatePos is the sum of mapref and mappos values.
	SumMatePos uint64
	// SumName is sum of all names.
	SumName uint64
	// SumSeq is sum of all seq strings.
	SumSeq uint64
	// SumCigar is sum of all cigar strings.
	SumCigar uint64
	// SumQual is the sum of seq quality values.
	SumQual uint64
	// SumAux is sum of all aux fields.
	SumAux uint64
}

func hashField(h hash.Hash64, pos [8]byte, value []byte) uint64 {
	h.Reset()
	h.Write(pos[:]) // nolint: errcheck
	h.Write(value)  // nolint: errcheck
	return h.Sum64()
}

func (c *refChecksum) add(r *sam.Record, h hash.Hash64, opts checksumOpts, scratch *[]byte) error {
	c.NRecs++
	c.SumPos += uint64(r.Pos)

	pos := [8]byte{}
	binary.LittleEndian.PutUint32(pos[:], uint32(r.RefID))
	binary.LittleEndian.PutUint32(pos[4:], uint32(r.Pos))

	value := [16]byte{}
	binary.LittleEndian.PutUint32(value[:4], uint32(r.Flags))
	c.SumFlags += hashField(h, pos, value[:4])

	if opts.all || opts.tempLen {
		binary.LittleEndian.PutUint32(value[:4], uint32(r.TempLen))
		c.SumTempLen += hashField(h, pos, value[:4])
	}
	if opts.all || opts.mapQ {
		binary.LittleEndian.PutUint32(value[:4], uint32(r.MapQ))
		c.SumMapQ += hashField(h, pos, value[:4])
	}
	if opts.all || opts.matePos {
		binary.LittleEndian.PutUint32(value[:4], uint32(r.MateRefID))
		binary.LittleEndian.PutUint32(value[4:], uint32(r.MatePos))
		c.SumMatePos += hashField(h, pos, value[:8])
	}
	if opts.all || opts.name {
		c.SumName += hashField(h, pos, unsafe.StringToBytes(r.Name))
	}
	if opts.all || opts.seq {
		c.SumSeq += hashField(h, pos, r.Seq)
	}
	if opts.all || opts.qual {
		c.SumQual += hashField(h, pos, r.Qual)
	}
	if opts.all || opts.cigar {
		buf := (*scratch)[:0]
		for _, op := range r.Cigar {
			buf = append(buf, 0, 0, 0, 0)
			binary.LittleEndian.PutUint32(buf[len(buf)-4:], uint32(op))
		}
		c.SumCigar += hashField(h, pos, buf)
		*scratch = buf
	}
	if opts.all || opts.aux {
		// The text form is used so that the sum does not depend on the
		// integer width chosen by the encoder.
		buf := (*scratch)[:0]
		for _, aux := range r.AuxFields {
			var err error
			if buf, err = aux.AppendText(buf); err != nil {
				return err
			}
			buf = append(buf, '\t')
		}
		c.SumAux += hashField(h, pos, buf)
		*scratch = buf
	}
	return nil
}

// fileChecksum represents the checksum of a file.
type fileChecksum struct {
	Refs     []refChecksum // One for each ref. Index is refid.
	Unmapped refChecksum   // For reads without a reference.
	err      errors.Once
}

func checksumFile(ctx context.Context, path string, opts checksumOpts) fileChecksum {
	var csum fileChecksum
	h, err := newHash(opts.hash)
	if err != nil {
		csum.err.Set(err)
		return csum
	}
	r, err := samio.OpenFile(ctx, path, samio.ReaderOpts{IndexPath: opts.baiPath})
	if err != nil {
		csum.err.Set(err)
		return csum
	}
	header := r.Header()
	csum.Refs = make([]refChecksum, header.NumRefs())
	for i, ref := range header.Refs() {
		csum.Refs[i].Name = ref.Name()
	}
	csum.Unmapped.Name = "*"
	var scratch []byte
	iter := r.Iterate()
	for iter.Scan() {
		rec := iter.Record()
		c := &csum.Unmapped
		if rec.RefID >= 0 {
			c = &csum.Refs[rec.RefID]
		}
		if err := c.add(rec, h, opts, &scratch); err != nil {
			csum.err.Set(err)
			break
		}
	}
	csum.err.Set(iter.Close())
	csum.err.Set(r.Close())
	return csum
}

func checksum(ctx context.Context, out io.Writer, path string, opts checksumOpts) error {
	csum := checksumFile(ctx, path, opts)
	if err := csum.err.Err(); err != nil {
		return err
	}
	js, err := json.MarshalIndent(csum, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(js))
	return err
}
