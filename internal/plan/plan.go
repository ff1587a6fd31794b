// Copyright 2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package plan materializes a validated, closed [graph.Graph] into a single
// contiguous, memory-mappable binary image: a header followed by four
// fixed-order sections (node table, triple array, prefix table, string
// pool), all 8-byte aligned and little-endian.
package plan

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"

	"github.com/ttlplan/ttlc/internal/debug"
	"github.com/ttlplan/ttlc/internal/graph"
	"github.com/ttlplan/ttlc/internal/intern"
	"github.com/ttlplan/ttlc/internal/owl"
	"github.com/ttlplan/ttlc/internal/shacl"
)

// Magic is the fixed 8-byte ASCII signature every plan file begins with.
var Magic = [8]byte{'T', 'T', 'L', 'C', 'P', 'L', 'A', 'N'}

// VersionMajor/VersionMinor are the format version this package reads and
// writes. A reader refuses to open a file whose major version differs.
const (
	VersionMajor uint16 = 1
	VersionMinor uint16 = 0
)

const headerSize = 64

// ErrKind enumerates the ways materialization can fail.
type ErrKind int

const (
	_ ErrKind = iota
	// ErrValidation means the graph did not conform to its shapes at
	// Violation severity; no plan is written.
	ErrValidation
	// ErrConsistency means the graph's OWL axioms were inconsistent.
	ErrConsistency
	// ErrBadMagic means a file opened with [Open] did not start with Magic.
	ErrBadMagic
	// ErrVersion means a file opened with [Open] has an incompatible major version.
	ErrVersion
	// ErrChecksum means a file opened with [Open] failed its content hash check.
	ErrChecksum
	// ErrTruncated means a file opened with [Open] is shorter than its header claims.
	ErrTruncated
)

func (k ErrKind) String() string {
	switch k {
	case ErrValidation:
		return "validation-failed"
	case ErrConsistency:
		return "consistency-error"
	case ErrBadMagic:
		return "bad-magic"
	case ErrVersion:
		return "version-mismatch"
	case ErrChecksum:
		return "checksum-mismatch"
	case ErrTruncated:
		return "truncated"
	default:
		return "unknown"
	}
}

// Error is the error type every failure in this package is reported as.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("plan: %s: %s", e.Kind, e.Msg) }

// Kind extracts the ErrKind from err, if it originated from this package.
func Kind(err error) (ErrKind, bool) {
	pe, ok := err.(*Error)
	if !ok {
		return 0, false
	}
	return pe.Kind, true
}

// nodeKindTag mirrors intern.Kind in the materialized node table: a plain
// byte rather than the interner's packed representation, since the plan
// file has its own dense node index space.
type nodeKindTag uint8

const (
	tagInvalid nodeKindTag = iota
	tagIRI
	tagBlank
	tagLiteral
	tagTypedLiteral
)

func tagFromKind(k intern.Kind) nodeKindTag {
	switch k {
	case intern.KindIRI:
		return tagIRI
	case intern.KindBlank:
		return tagBlank
	case intern.KindLiteral:
		return tagLiteral
	case intern.KindTypedLiteral:
		return tagTypedLiteral
	default:
		return tagInvalid
	}
}

// nodeRecord is one 24-byte node table entry.
type nodeRecord struct {
	Kind        nodeKindTag
	_           [3]byte
	LexemeOff   uint32
	LexemeLen   uint32
	DatatypeIdx uint32
	LangOff     uint32
	LangLen     uint32
}

const nodeRecordSize = 24

// tripleRecord is one 16-byte triple array entry, laid out identically to
// [graph.Triple] but with plan-local dense node indices instead of intern
// ids.
type tripleRecord struct {
	Subject   uint32
	Predicate uint32
	Object    uint32
	ObjKind   uint8
	Flags     uint8
	_         [2]byte
}

const tripleRecordSize = 16

// prefixRecord is one 16-byte prefix table entry.
type prefixRecord struct {
	LabelOff uint32
	LabelLen uint32
	BaseIdx  uint32
	_        uint32
}

const prefixRecordSize = 16

// renumber assigns a dense, zero-based plan index to every intern.ID that
// appears anywhere in g (as a subject, predicate, or object), a prefix
// base, or a literal's datatype. Index 0 is a valid node, unlike
// intern.ID's reserved zero — the plan format has no "invalid id" sentinel
// because every id it stores was observed in the graph.
func renumber(g *graph.Graph) (order []intern.ID, index map[intern.ID]uint32) {
	index = map[intern.ID]uint32{}
	add := func(id intern.ID) {
		if !id.Valid() {
			return
		}
		if _, ok := index[id]; !ok {
			index[id] = uint32(len(order))
			order = append(order, id)
		}
	}
	for _, t := range g.Triples() {
		add(t.Subject)
		add(t.Predicate)
		add(t.Object)
	}
	for _, p := range g.Prefixes() {
		add(p.Base)
	}
	for _, id := range order {
		if lit, ok := g.Interner.Literal(id); ok {
			add(lit.Datatype)
		}
	}
	return order, index
}

// Serialize, when strict is true, re-validates g against ss (aborting with
// [ErrValidation] if any shape is violated), then writes the graph out as a
// single contiguous byte image. owlM is consulted
// only for the subclass lookups sh:class/sh:targetClass matching needs
// during that re-validation; OWL consistency errors are [owl.Build]'s own
// concern and are surfaced by the caller before Serialize is ever reached.
//
// Either of ss and owlM may be nil, in which case that phase is skipped.
// Only the graph's own triples are written; no inferred triples are
// materialized, whether or not owlM is nil.
// strict controls what Serialize does with a non-conforming shape report:
// in strict mode a violation aborts materialization with [ErrValidation],
// matching the driver's "no partial output" rule; in permissive mode the
// plan is still written, since only semantic parse errors — never a
// shape violation — abort a permissive-mode run.
func Serialize(g *graph.Graph, ss *shacl.ShapeSet, owlM *owl.Matrix, strict bool) ([]byte, error) {
	debug.Assert(g.Frozen(), "plan: Serialize called on an unfrozen graph")

	if ss != nil && strict {
		report, err := ss.Validate(g, owlM, shacl.Strict)
		if err != nil {
			return nil, err
		}
		if !report.Conforms() {
			rec := report.Records[0]
			return nil, &Error{Kind: ErrValidation, Msg: fmt.Sprintf(
				"focus node %d violated shape %d (constraint kind %d): %s",
				rec.Focus, rec.ShapeIRI, rec.Kind, rec.Message)}
		}
	}

	order, index := renumber(g)
	triples := g.Sorted()

	var pool bytes.Buffer
	nodes := make([]nodeRecord, len(order))
	for i, id := range order {
		rec := nodeRecord{Kind: tagFromKind(id.Kind())}
		lexeme := g.Interner.Lexeme(id)
		rec.LexemeOff = uint32(pool.Len())
		rec.LexemeLen = uint32(len(lexeme))
		pool.Write(lexeme)

		if lit, ok := g.Interner.Literal(id); ok {
			if lit.Datatype.Valid() {
				rec.DatatypeIdx = index[lit.Datatype]
			}
			rec.LangOff = uint32(pool.Len())
			rec.LangLen = uint32(len(lit.Lang))
			pool.WriteString(lit.Lang)
		}
		nodes[i] = rec
	}

	prefixes := make([]prefixRecord, len(g.Prefixes()))
	for i, p := range g.Prefixes() {
		rec := prefixRecord{LabelOff: uint32(pool.Len()), LabelLen: uint32(len(p.Label))}
		pool.WriteString(p.Label)
		if idx, ok := index[p.Base]; ok {
			rec.BaseIdx = idx
		}
		prefixes[i] = rec
	}

	tripleRecs := make([]tripleRecord, len(triples))
	for i, t := range triples {
		tripleRecs[i] = tripleRecord{
			Subject:   index[t.Subject],
			Predicate: index[t.Predicate],
			Object:    index[t.Object],
			ObjKind:   uint8(t.ObjKind),
			Flags:     uint8(t.Flags),
		}
	}

	return encode(nodes, tripleRecs, prefixes, pool.Bytes())
}

func encode(nodes []nodeRecord, triples []tripleRecord, prefixes []prefixRecord, pool []byte) ([]byte, error) {
	nodeTableOff := uint64(headerSize)
	tripleArrayOff := align8(nodeTableOff + uint64(len(nodes))*nodeRecordSize)
	prefixTableOff := align8(tripleArrayOff + uint64(len(triples))*tripleRecordSize)
	stringPoolOff := align8(prefixTableOff + uint64(len(prefixes))*prefixRecordSize)
	total := align8(stringPoolOff + uint64(len(pool)))

	buf := make([]byte, total)

	off := nodeTableOff
	for _, n := range nodes {
		buf[off] = byte(n.Kind)
		binary.LittleEndian.PutUint32(buf[off+4:], n.LexemeOff)
		binary.LittleEndian.PutUint32(buf[off+8:], n.LexemeLen)
		binary.LittleEndian.PutUint32(buf[off+12:], n.DatatypeIdx)
		binary.LittleEndian.PutUint32(buf[off+16:], n.LangOff)
		binary.LittleEndian.PutUint32(buf[off+20:], n.LangLen)
		off += nodeRecordSize
	}

	off = tripleArrayOff
	for _, t := range triples {
		binary.LittleEndian.PutUint32(buf[off:], t.Subject)
		binary.LittleEndian.PutUint32(buf[off+4:], t.Predicate)
		binary.LittleEndian.PutUint32(buf[off+8:], t.Object)
		buf[off+12] = t.ObjKind
		buf[off+13] = t.Flags
		off += tripleRecordSize
	}

	off = prefixTableOff
	for _, p := range prefixes {
		binary.LittleEndian.PutUint32(buf[off:], p.LabelOff)
		binary.LittleEndian.PutUint32(buf[off+4:], p.LabelLen)
		binary.LittleEndian.PutUint32(buf[off+8:], p.BaseIdx)
		off += prefixRecordSize
	}

	copy(buf[stringPoolOff:], pool)

	checksum := xxhash.Sum64(buf[headerSize:])

	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint16(buf[8:], VersionMajor)
	binary.LittleEndian.PutUint16(buf[10:], VersionMinor)
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(nodes)))
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(triples)))
	binary.LittleEndian.PutUint32(buf[20:], uint32(len(prefixes)))
	binary.LittleEndian.PutUint32(buf[24:], uint32(len(pool)))
	binary.LittleEndian.PutUint64(buf[28:], tripleArrayOff)
	binary.LittleEndian.PutUint64(buf[36:], prefixTableOff)
	binary.LittleEndian.PutUint64(buf[44:], stringPoolOff)
	binary.LittleEndian.PutUint64(buf[52:], checksum)
	// buf[60:64] reserved, already zero.

	return buf, nil
}

func align8(n uint64) uint64 { return (n + 7) &^ 7 }
