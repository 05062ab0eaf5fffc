// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package sam

import (
	"fmt"
	"strconv"

	"github.com/grailbio/base/errors"
)

// SortOrder is the record order declared by the @HD SO attribute.
type SortOrder int

const (
	// UnknownOrder is the order of a header without SO.
	UnknownOrder SortOrder = iota
	// Unsorted records are in no particular order.
	Unsorted
	// QueryName records are sorted by read name.
	QueryName
	// Coordinate records are sorted by (reference id, position).
	Coordinate
)

var sortOrderNames = []string{"unknown", "unsorted", "queryname", "coordinate"}

func (o SortOrder) String() string {
	if o < 0 || int(o) >= len(sortOrderNames) {
		return "unknown"
	}
	return sortOrderNames[o]
}

// ParseSortOrder parses an SO value. Unrecognized values yield UnknownOrder
// and false.
func ParseSortOrder(s string) (SortOrder, bool) {
	for i, name := range sortOrderNames {
		if name == s {
			return SortOrder(i), true
		}
	}
	return UnknownOrder, false
}

// Attribute is one KEY:VALUE pair of a header line.
type Attribute struct {
	Key, Value string
}

type attributes []Attribute

func (a attributes) get(key string) (string, bool) {
	for _, kv := range a {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func (a attributes) clone() []Attribute {
	if len(a) == 0 {
		return nil
	}
	return append([]Attribute(nil), a...)
}

// Reference is one entry of the sequence dictionary (an @SQ line). The
// value is immutable.
type Reference struct {
	name  string
	len   int
	attrs attributes
}

// NewReference creates a dictionary entry. attrs are the attributes other
// than SN and LN, in output order.
func NewReference(name string, length int, attrs ...Attribute) (Reference, error) {
	if name == "" || name == "*" || name == "=" {
		return Reference{}, errors.E(errors.Invalid, fmt.Sprintf("sam: invalid reference name %q", name))
	}
	if length < 0 || length > 1<<31-1 {
		return Reference{}, errors.E(errors.Invalid, fmt.Sprintf("sam: reference %s: invalid length %d", name, length))
	}
	for _, kv := range attrs {
		if kv.Key == "SN" || kv.Key == "LN" {
			return Reference{}, errors.E(errors.Invalid, fmt.Sprintf("sam: reference %s: duplicate %s attribute", name, kv.Key))
		}
	}
	return Reference{name: name, len: length, attrs: attributes(attrs).clone()}, nil
}

// Name returns the SN attribute.
func (r Reference) Name() string { return r.name }

// Len returns the LN attribute.
func (r Reference) Len() int { return r.len }

// Attr returns the value of an attribute other than SN and LN.
func (r Reference) Attr(key string) (string, bool) { return r.attrs.get(key) }

// Attrs returns a copy of the attributes other than SN and LN.
func (r Reference) Attrs() []Attribute { return r.attrs.clone() }

// ReadGroup is an @RG line. The value is immutable.
type ReadGroup struct {
	id    string
	attrs attributes
	// predicted insert size (PI), -1 when absent.
	pi int
}

// NewReadGroup creates a read group. attrs are the attributes other than ID,
// in output order. PI must be an integer.
func NewReadGroup(id string, attrs ...Attribute) (ReadGroup, error) {
	if id == "" {
		return ReadGroup{}, errors.E(errors.Invalid, "sam: read group without ID")
	}
	rg := ReadGroup{id: id, attrs: attributes(attrs).clone(), pi: -1}
	for _, kv := range attrs {
		switch kv.Key {
		case "ID":
			return ReadGroup{}, errors.E(errors.Invalid, fmt.Sprintf("sam: read group %s: duplicate ID attribute", id))
		case "PI":
			n, err := strconv.Atoi(kv.Value)
			if err != nil || n < 0 {
				return ReadGroup{}, errors.E(errors.Invalid, fmt.Sprintf("sam: read group %s: PI %q is not a non-negative integer", id, kv.Value))
			}
			rg.pi = n
		}
	}
	return rg, nil
}

// ID returns the ID attribute.
func (rg ReadGroup) ID() string { return rg.id }

// Sample returns the SM attribute, "" if absent.
func (rg ReadGroup) Sample() string {
	s, _ := rg.attrs.get("SM")
	return s
}

// PredictedInsertSize returns the PI attribute.
func (rg ReadGroup) PredictedInsertSize() (int, bool) { return rg.pi, rg.pi >= 0 }

// Attr returns the value of an attribute other than ID.
func (rg ReadGroup) Attr(key string) (string, bool) { return rg.attrs.get(key) }

// Attrs returns a copy of the attributes other than ID.
func (rg ReadGroup) Attrs() []Attribute { return rg.attrs.clone() }

// Program is a @PG line. The value is immutable.
type Program struct {
	id    string
	attrs attributes
}

// NewProgram creates a program record. attrs are the attributes other than
// ID, in output order.
func NewProgram(id string, attrs ...Attribute) (Program, error) {
	if id == "" {
		return Program{}, errors.E(errors.Invalid, "sam: program without ID")
	}
	if _, ok := attributes(attrs).get("ID"); ok {
		return Program{}, errors.E(errors.Invalid, fmt.Sprintf("sam: program %s: duplicate ID attribute", id))
	}
	return Program{id: id, attrs: attributes(attrs).clone()}, nil
}

// ID returns the ID attribute.
func (p Program) ID() string { return p.id }

// Attr returns the value of an attribute other than ID.
func (p Program) Attr(key string) (string, bool) { return p.attrs.get(key) }

// Attrs returns a copy of the attributes other than ID.
func (p Program) Attrs() []Attribute { return p.attrs.clone() }

// HeaderParams describes a header to be built by NewHeader.
type HeaderParams struct {
	// Version is the @HD VN value. DefaultVersion is used when empty.
	Version    string
	SortOrder  SortOrder
	GroupOrder string
	// HDAttrs are the @HD attributes other than VN, SO and GO.
	HDAttrs    []Attribute
	Refs       []Reference
	ReadGroups []ReadGroup
	Programs   []Program
	Comments   []string
}

// DefaultVersion is the @HD VN written when none is given.
const DefaultVersion = "1.0"

// Header is the file header. It is created once by NewHeader or
// ParseHeader and never modified afterwards; accessors return copies.
type Header struct {
	version    string
	sortOrder  SortOrder
	groupOrder string
	hdAttrs    attributes
	refs       []Reference
	refIDs     map[string]int
	readGroups []ReadGroup
	programs   []Program
	comments   []string
}

// NewHeader builds a header. Reference names, read group IDs and program
// IDs must be unique. The order of p.Refs defines the reference ids.
func NewHeader(p HeaderParams) (*Header, error) {
	h := &Header{
		version:    p.Version,
		sortOrder:  p.SortOrder,
		groupOrder: p.GroupOrder,
		hdAttrs:    attributes(p.HDAttrs).clone(),
		refs:       append([]Reference(nil), p.Refs...),
		refIDs:     make(map[string]int, len(p.Refs)),
		readGroups: append([]ReadGroup(nil), p.ReadGroups...),
		programs:   append([]Program(nil), p.Programs...),
		comments:   append([]string(nil), p.Comments...),
	}
	if h.version == "" {
		h.version = DefaultVersion
	}
	for id, ref := range h.refs {
		if ref.name == "" {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: reference %d has no name", id))
		}
		if _, ok := h.refIDs[ref.name]; ok {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: duplicate reference name %s", ref.name))
		}
		h.refIDs[ref.name] = id
	}
	seen := map[string]bool{}
	for _, rg := range h.readGroups {
		if seen[rg.id] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: duplicate read group %s", rg.id))
		}
		seen[rg.id] = true
	}
	seen = map[string]bool{}
	for _, pg := range h.programs {
		if seen[pg.id] {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("sam: duplicate program %s", pg.id))
		}
		seen[pg.id] = true
	}
	return h, nil
}

// Version returns the @HD VN value.
func (h *Header) Version() string { return h.version }

// SortOrder returns the declared record order.
func (h *Header) SortOrder() SortOrder { return h.sortOrder }

// GroupOrder returns the @HD GO value, "" if absent.
func (h *Header) GroupOrder() string { return h.groupOrder }

// HDAttrs returns a copy of the @HD attributes other than VN, SO and GO.
func (h *Header) HDAttrs() []Attribute { return h.hdAttrs.clone() }

// NumRefs returns the number of entries in the sequence dictionary.
func (h *Header) NumRefs() int { return len(h.refs) }

// Refs returns a copy of the sequence dictionary. The index of an entry is
// its reference id.
func (h *Header) Refs() []Reference { return append([]Reference(nil), h.refs...) }

// Ref returns the dictionary entry with the given id.
func (h *Header) Ref(id int) (Reference, bool) {
	if id < 0 || id >= len(h.refs) {
		return Reference{}, false
	}
	return h.refs[id], true
}

// RefID returns the id of the named reference.
func (h *Header) RefID(name string) (int, bool) {
	id, ok := h.refIDs[name]
	return id, ok
}

// RefName returns the name of the reference with the given id, or "*" when
// the id is not in the dictionary.
func (h *Header) RefName(id int) string {
	if id < 0 || id >= len(h.refs) {
		return "*"
	}
	return h.refs[id].name
}

// ReadGroups returns a copy of the read groups.
func (h *Header) ReadGroups() []ReadGroup { return append([]ReadGroup(nil), h.readGroups...) }

// ReadGroup returns the read group with the given ID.
func (h *Header) ReadGroup(id string) (ReadGroup, bool) {
	for _, rg := range h.readGroups {
		if rg.id == id {
			return rg, true
		}
	}
	return ReadGroup{}, false
}

// Programs returns a copy of the program records.
func (h *Header) Programs() []Program { return append([]Program(nil), h.programs...) }

// Comments returns a copy of the @CO lines, without the "@CO\t" prefix.
func (h *Header) Comments() []string { return append([]string(nil), h.comments...) }

// Params returns a description of h that NewHeader turns back into an equal
// header. It is the way to derive a modified header.
func (h *Header) Params() HeaderParams {
	return HeaderParams{
		Version:    h.version,
		SortOrder:  h.sortOrder,
		GroupOrder: h.groupOrder,
		HDAttrs:    h.hdAttrs.clone(),
		Refs:       h.Refs(),
		ReadGroups: h.ReadGroups(),
		Programs:   h.Programs(),
		Comments:   h.Comments(),
	}
}
