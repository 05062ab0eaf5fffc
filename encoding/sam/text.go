// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/tsv"
)

// Number of mandatory fields of an alignment line.
const numMandatoryFields = 11

// WriteHeaderText writes h as SAM header lines: @HD, then @SQ, @RG, @PG and
// @CO lines in dictionary order.
func WriteHeaderText(w *tsv.Writer, h *Header) error {
	w.WriteString("@HD")
	w.WriteString("VN:" + h.version)
	if h.sortOrder != UnknownOrder {
		w.WriteString("SO:" + h.sortOrder.String())
	}
	if h.groupOrder != "" {
		w.WriteString("GO:" + h.groupOrder)
	}
	writeAttrs(w, h.hdAttrs)
	if err := w.EndLine(); err != nil {
		return err
	}
	for _, ref := range h.refs {
		w.WriteString("@SQ")
		w.WriteString("SN:" + ref.name)
		w.WriteString("LN:" + strconv.Itoa(ref.len))
		writeAttrs(w, ref.attrs)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	for _, rg := range h.readGroups {
		w.WriteString("@RG")
		w.WriteString("ID:" + rg.id)
		writeAttrs(w, rg.attrs)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	for _, pg := range h.programs {
		w.WriteString("@PG")
		w.WriteString("ID:" + pg.id)
		writeAttrs(w, pg.attrs)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	for _, co := range h.comments {
		w.WriteString("@CO")
		w.WriteString(co)
		if err := w.EndLine(); err != nil {
			return err
		}
	}
	return nil
}

func writeAttrs(w *tsv.Writer, attrs attributes) {
	for _, kv := range attrs {
		w.WriteString(kv.Key + ":" + kv.Value)
	}
}

// MarshalText returns the SAM text form of the header.
func (h *Header) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	if err := WriteHeaderText(w, h); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func splitAttrs(lineno int, fields [][]byte, s Stringency) ([]Attribute, error) {
	attrs := make([]Attribute, 0, len(fields))
	for _, f := range fields {
		i := bytes.IndexByte(f, ':')
		if i != 2 {
			if err := s.invalidf("sam: header line %d: malformed attribute %q", lineno, f); err != nil {
				return nil, err
			}
			continue
		}
		attrs = append(attrs, Attribute{Key: string(f[:2]), Value: string(f[3:])})
	}
	return attrs, nil
}

// take removes the attribute with the given key from attrs and returns its
// value.
func take(attrs []Attribute, key string) (string, []Attribute, bool) {
	for i, kv := range attrs {
		if kv.Key == key {
			rest := append(attrs[:i:i], attrs[i+1:]...)
			return kv.Value, rest, true
		}
	}
	return "", attrs, false
}

// ParseHeader parses SAM header text. Malformed attributes and unknown line
// types are validation failures handled according to s; lines that cannot
// be interpreted at all are format errors.
func ParseHeader(text []byte, s Stringency) (*Header, error) {
	var p HeaderParams
	sawHD := false
	for n, line := range bytes.Split(text, []byte{'\n'}) {
		lineno := n + 1
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(line) == 0 {
			continue
		}
		if line[0] != '@' {
			return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d does not start with '@': %q", lineno, line))
		}
		fields := bytes.Split(line, []byte{'\t'})
		kind := string(fields[0])
		if kind == "@CO" {
			co := ""
			if i := bytes.IndexByte(line, '\t'); i >= 0 {
				co = string(line[i+1:])
			}
			p.Comments = append(p.Comments, co)
			continue
		}
		attrs, err := splitAttrs(lineno, fields[1:], s)
		if err != nil {
			return nil, err
		}
		switch kind {
		case "@HD":
			if sawHD {
				if err := s.invalidf("sam: header line %d: duplicate @HD line", lineno); err != nil {
					return nil, err
				}
			}
			sawHD = true
			var v string
			var ok bool
			if v, attrs, ok = take(attrs, "VN"); ok {
				p.Version = v
			} else if err := s.invalidf("sam: header line %d: @HD without VN", lineno); err != nil {
				return nil, err
			}
			if v, attrs, ok = take(attrs, "SO"); ok {
				so, known := ParseSortOrder(v)
				if !known {
					if err := s.invalidf("sam: header line %d: unknown sort order %q", lineno, v); err != nil {
						return nil, err
					}
				}
				p.SortOrder = so
			}
			if v, attrs, ok = take(attrs, "GO"); ok {
				p.GroupOrder = v
			}
			p.HDAttrs = attrs
		case "@SQ":
			name, rest, ok := take(attrs, "SN")
			if !ok {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d: @SQ without SN", lineno))
			}
			lenText, rest, ok := take(rest, "LN")
			if !ok {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d: @SQ %s without LN", lineno, name))
			}
			length, err := strconv.Atoi(lenText)
			if err != nil {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d: @SQ %s: bad LN %q", lineno, name, lenText), err)
			}
			ref, err := NewReference(name, length, rest...)
			if err != nil {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d", lineno), err)
			}
			p.Refs = append(p.Refs, ref)
		case "@RG":
			id, rest, ok := take(attrs, "ID")
			if !ok {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d: @RG without ID", lineno))
			}
			if _, ok := attributes(rest).get("SM"); !ok {
				if err := s.invalidf("sam: header line %d: @RG %s without SM", lineno, id); err != nil {
					return nil, err
				}
			}
			rg, err := NewReadGroup(id, rest...)
			if err != nil {
				if err := s.Report(err); err != nil {
					return nil, err
				}
				// Keep the read group, without the attribute that failed
				// coercion.
				_, rest, _ = take(rest, "PI")
				if rg, err = NewReadGroup(id, rest...); err != nil {
					return nil, err
				}
			}
			p.ReadGroups = append(p.ReadGroups, rg)
		case "@PG":
			id, rest, ok := take(attrs, "ID")
			if !ok {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: header line %d: @PG without ID", lineno))
			}
			pg, err := NewProgram(id, rest...)
			if err != nil {
				return nil, err
			}
			p.Programs = append(p.Programs, pg)
		default:
			if err := s.invalidf("sam: header line %d: unknown record type %s", lineno, kind); err != nil {
				return nil, err
			}
		}
	}
	h, err := NewHeader(p)
	if err != nil {
		return nil, errors.E(errors.Integrity, err)
	}
	return h, nil
}

// WriteRecordText writes r as one SAM alignment line. Reference ids are
// resolved through h. An unmapped record is written with reference "*",
// position 0, mapping quality 0 and cigar "*".
func WriteRecordText(w *tsv.Writer, h *Header, r *Record) error {
	if r.RefID >= h.NumRefs() || r.MateRefID >= h.NumRefs() {
		return errors.E(errors.Invalid, fmt.Sprintf("sam: record %s: reference ids %d/%d not in dictionary of %d", r.Name, r.RefID, r.MateRefID, h.NumRefs()))
	}
	var tags [][]byte
	for _, a := range r.AuxFields {
		b, err := a.AppendText(nil)
		if err != nil {
			return err
		}
		tags = append(tags, b)
	}
	qual, err := qualText(r.Qual)
	if err != nil {
		return errors.E(err, fmt.Sprintf("sam: record %s", r.Name))
	}
	name := r.Name
	if name == "" {
		name = "*"
	}
	w.WriteString(name)
	w.WriteUint32(uint32(r.Flags))
	unmapped := r.Flags&Unmapped != 0
	if unmapped {
		w.WriteString("*")
		w.WriteUint32(0)
		w.WriteUint32(0)
		w.WriteString("*")
	} else {
		w.WriteString(h.RefName(r.RefID))
		w.WriteInt64(int64(r.AlignmentStart()))
		w.WriteUint32(uint32(r.MapQ))
		w.WriteString(r.Cigar.String())
	}
	switch {
	case r.MateRefID == NoRefID:
		w.WriteString("*")
	case r.MateRefID == r.RefID && !unmapped:
		w.WriteString("=")
	default:
		w.WriteString(h.RefName(r.MateRefID))
	}
	w.WriteInt64(int64(r.MatePos + 1))
	w.WriteInt64(int64(r.TempLen))
	if len(r.Seq) == 0 {
		w.WriteString("*")
	} else {
		w.WriteString(string(r.Seq))
	}
	w.WriteString(qual)
	for _, b := range tags {
		w.WriteString(string(b))
	}
	return w.EndLine()
}

// MaxQual is the largest phred score the text form can represent.
const MaxQual = 93

// qualText converts phred scores to the +33 text encoding. Absent scores
// render as "*".
func qualText(qual []byte) (string, error) {
	if len(qual) == 0 {
		return "*", nil
	}
	b := make([]byte, len(qual))
	for i, q := range qual {
		if q > MaxQual {
			return "", errors.E(errors.Invalid, fmt.Sprintf("quality %d at base %d exceeds %d", q, i, MaxQual))
		}
		b[i] = q + 33
	}
	return string(b), nil
}

// FormatRecord returns the SAM text line of r, without the trailing newline.
func FormatRecord(h *Header, r *Record) (string, error) {
	var buf bytes.Buffer
	w := tsv.NewWriter(&buf)
	if err := WriteRecordText(w, h, r); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func parseInt(field []byte, bits int, what string) (int64, error) {
	n, err := strconv.ParseInt(string(field), 10, bits)
	if err != nil {
		return 0, errors.E(errors.Integrity, fmt.Sprintf("sam: bad %s %q", what, field), err)
	}
	return n, nil
}

func refIDFromText(h *Header, name []byte, what string) (int, error) {
	if len(name) == 1 && name[0] == '*' {
		return NoRefID, nil
	}
	id, ok := h.RefID(string(name))
	if !ok {
		return NoRefID, errors.E(errors.Integrity, fmt.Sprintf("sam: %s %q not in sequence dictionary", what, name))
	}
	return id, nil
}

// ParseRecord parses one SAM alignment line. Reference names are resolved
// through h. Structural problems are format errors; cross-field
// inconsistencies are validation failures handled according to s.
func ParseRecord(h *Header, line []byte, s Stringency) (*Record, error) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	fields := bytes.Split(line, []byte{'\t'})
	if len(fields) < numMandatoryFields {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: alignment line has %d fields, want at least %d", len(fields), numMandatoryFields))
	}
	r := &Record{Name: string(fields[0])}
	if r.Name == "*" {
		r.Name = ""
	}
	flags, err := parseInt(fields[1], 32, "flag")
	if err != nil {
		return nil, err
	}
	if flags < 0 || flags > 0xffff {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: flag %d out of range", flags))
	}
	r.Flags = Flags(flags)
	if r.RefID, err = refIDFromText(h, fields[2], "reference"); err != nil {
		return nil, err
	}
	pos, err := parseInt(fields[3], 32, "position")
	if err != nil {
		return nil, err
	}
	r.Pos = int(pos) - 1
	mapq, err := parseInt(fields[4], 16, "mapping quality")
	if err != nil {
		return nil, err
	}
	if mapq < 0 || mapq > 255 {
		return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: mapping quality %d out of range", mapq))
	}
	r.MapQ = byte(mapq)
	if r.Cigar, err = ParseCigar(fields[5]); err != nil {
		return nil, err
	}
	if len(fields[6]) == 1 && fields[6][0] == '=' {
		r.MateRefID = r.RefID
	} else if r.MateRefID, err = refIDFromText(h, fields[6], "mate reference"); err != nil {
		return nil, err
	}
	matePos, err := parseInt(fields[7], 32, "mate position")
	if err != nil {
		return nil, err
	}
	r.MatePos = int(matePos) - 1
	tlen, err := parseInt(fields[8], 32, "template length")
	if err != nil {
		return nil, err
	}
	r.TempLen = int(tlen)
	if seq := fields[9]; !(len(seq) == 1 && seq[0] == '*') {
		r.Seq = append([]byte(nil), seq...)
	}
	if qual := fields[10]; !(len(qual) == 1 && qual[0] == '*') {
		r.Qual = make([]byte, len(qual))
		for i, q := range qual {
			if q < 33 || q > 126 {
				return nil, errors.E(errors.Integrity, fmt.Sprintf("sam: record %s: invalid quality character %q", r.Name, q))
			}
			r.Qual[i] = q - 33
		}
	}
	if n := len(fields) - numMandatoryFields; n > 0 {
		r.AuxFields = make([]Aux, 0, n)
		for _, f := range fields[numMandatoryFields:] {
			a, err := ParseAux(f)
			if err != nil {
				return nil, err
			}
			r.AuxFields = append(r.AuxFields, a)
		}
	}
	if err := Validate(r, s); err != nil {
		return nil, err
	}
	return r, nil
}

// Validate checks the cross-field consistency rules of the text form and
// reports each violation through s. It returns the first error s does not
// suppress.
func Validate(r *Record, s Stringency) error {
	if r.Flags&Unmapped != 0 {
		if r.RefID != NoRefID || r.Pos != NoPos || r.MapQ != 0 || len(r.Cigar) != 0 {
			if err := s.invalidf("sam: record %s: unmapped read must have reference *, position 0, mapping quality 0 and cigar *", r.Name); err != nil {
				return err
			}
		}
	} else {
		if r.RefID == NoRefID || r.Pos < 0 {
			if err := s.invalidf("sam: record %s: mapped read without reference or position", r.Name); err != nil {
				return err
			}
		}
		if len(r.Seq) > 0 && len(r.Cigar) > 0 && !r.Cigar.IsValid(len(r.Seq)) {
			if err := s.invalidf("sam: record %s: cigar %v inconsistent with read length %d", r.Name, r.Cigar, len(r.Seq)); err != nil {
				return err
			}
		}
	}
	if r.Flags&Paired == 0 {
		if r.Flags&pairFlags != 0 {
			if err := s.invalidf("sam: record %s: pair flags set on unpaired read (flags %v)", r.Name, r.Flags); err != nil {
				return err
			}
		}
		if r.MateRefID != NoRefID || r.MatePos != NoPos || r.TempLen != 0 {
			if err := s.invalidf("sam: record %s: mate fields set on unpaired read", r.Name); err != nil {
				return err
			}
		}
	} else if r.MateRefID == NoRefID {
		if r.MatePos != NoPos || r.TempLen != 0 {
			if err := s.invalidf("sam: record %s: mate position or insert size set without mate reference", r.Name); err != nil {
				return err
			}
		}
	} else if r.MatePos < 0 {
		if err := s.invalidf("sam: record %s: mate reference set without mate position", r.Name); err != nil {
			return err
		}
	}
	if r.Qual != nil && len(r.Seq) != len(r.Qual) {
		if err := s.invalidf("sam: record %s: %d bases but %d qualities", r.Name, len(r.Seq), len(r.Qual)); err != nil {
			return err
		}
	}
	return nil
}
