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

package plan

import (
	"bytes"
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

// View is a read-only accessor over a materialized plan image. Every
// accessor method does pointer/slice arithmetic against the backing bytes
// only; opening a View performs no parsing and no per-node allocation.
type View struct {
	data []byte
	// closer releases the backing mapping (munmap on unix, a no-op over an
	// in-memory byte slice such as one returned by [Serialize]).
	closer func() error

	nodeTableOff   uint64
	tripleArrayOff uint64
	prefixTableOff uint64
	stringPoolOff  uint64

	nodeCount   uint32
	tripleCount uint32
	prefixCount uint32
}

// OpenBytes builds a View directly over an in-memory plan image, such as
// one just produced by [Serialize], without going through a file at all.
func OpenBytes(data []byte) (*View, error) {
	return newView(data, func() error { return nil })
}

func newView(data []byte, closer func() error) (*View, error) {
	if len(data) < headerSize {
		return nil, &Error{Kind: ErrTruncated, Msg: "file shorter than plan header"}
	}
	if !bytes.Equal(data[0:8], Magic[:]) {
		return nil, &Error{Kind: ErrBadMagic, Msg: "missing TTLCPLAN signature"}
	}
	major := binary.LittleEndian.Uint16(data[8:])
	if major != VersionMajor {
		return nil, &Error{Kind: ErrVersion, Msg: "incompatible major version"}
	}

	v := &View{
		data:           data,
		closer:         closer,
		nodeTableOff:   headerSize,
		nodeCount:      binary.LittleEndian.Uint32(data[12:]),
		tripleCount:    binary.LittleEndian.Uint32(data[16:]),
		prefixCount:    binary.LittleEndian.Uint32(data[20:]),
		tripleArrayOff: binary.LittleEndian.Uint64(data[28:]),
		prefixTableOff: binary.LittleEndian.Uint64(data[36:]),
		stringPoolOff:  binary.LittleEndian.Uint64(data[44:]),
	}
	wantChecksum := binary.LittleEndian.Uint64(data[52:])

	if uint64(len(data)) < v.stringPoolOff {
		return nil, &Error{Kind: ErrTruncated, Msg: "file shorter than its own section table"}
	}
	if got := xxhash.Sum64(data[headerSize:]); got != wantChecksum {
		return nil, &Error{Kind: ErrChecksum, Msg: "content hash mismatch"}
	}
	return v, nil
}

// Close releases any resources backing the View (the mapping, for a View
// returned by [Open]; a no-op for one returned by [OpenBytes]).
func (v *View) Close() error { return v.closer() }

// NodeCount returns the number of distinct nodes in the plan.
func (v *View) NodeCount() int { return int(v.nodeCount) }

// TripleCount returns the number of triples in the plan.
func (v *View) TripleCount() int { return int(v.tripleCount) }

// PrefixCount returns the number of declared prefixes in the plan.
func (v *View) PrefixCount() int { return int(v.prefixCount) }

func (v *View) nodeRecordAt(idx uint32) nodeRecord {
	off := v.nodeTableOff + uint64(idx)*nodeRecordSize
	b := v.data[off:]
	return nodeRecord{
		Kind:        nodeKindTag(b[0]),
		LexemeOff:   binary.LittleEndian.Uint32(b[4:]),
		LexemeLen:   binary.LittleEndian.Uint32(b[8:]),
		DatatypeIdx: binary.LittleEndian.Uint32(b[12:]),
		LangOff:     binary.LittleEndian.Uint32(b[16:]),
		LangLen:     binary.LittleEndian.Uint32(b[20:]),
	}
}

// NodeString returns the lexeme bytes for the idx'th node, a direct slice
// into the backing image with no copy.
func (v *View) NodeString(idx uint32) []byte {
	rec := v.nodeRecordAt(idx)
	start := v.stringPoolOff + uint64(rec.LexemeOff)
	return v.data[start : start+uint64(rec.LexemeLen)]
}

// NodeKindTag reports the node kind tag for the idx'th node.
func (v *View) NodeKindTag(idx uint32) nodeKindTag { return v.nodeRecordAt(idx).Kind }

// NodeLang returns the language tag bytes recorded for the idx'th node, if
// it is a literal with one.
func (v *View) NodeLang(idx uint32) []byte {
	rec := v.nodeRecordAt(idx)
	if rec.LangLen == 0 {
		return nil
	}
	start := v.stringPoolOff + uint64(rec.LangOff)
	return v.data[start : start+uint64(rec.LangLen)]
}

// NodeDatatype returns the plan-local node index of the idx'th node's
// declared datatype, and whether it has one. Only tagTypedLiteral nodes
// ever carry one; a lang-tagged literal has NodeLang instead.
func (v *View) NodeDatatype(idx uint32) (uint32, bool) {
	rec := v.nodeRecordAt(idx)
	return rec.DatatypeIdx, rec.Kind == tagTypedLiteral && rec.LangLen == 0
}

// PlanTriple is a materialized triple as read back from a View: plan-local
// dense node indices rather than intern ids.
type PlanTriple struct {
	Subject, Predicate, Object uint32
	ObjKind                    uint8
	Flags                      uint8
}

// Triple returns the i'th triple in (subject, predicate, object) sorted
// order.
func (v *View) Triple(i int) PlanTriple {
	off := v.tripleArrayOff + uint64(i)*tripleRecordSize
	b := v.data[off:]
	return PlanTriple{
		Subject:   binary.LittleEndian.Uint32(b[0:]),
		Predicate: binary.LittleEndian.Uint32(b[4:]),
		Object:    binary.LittleEndian.Uint32(b[8:]),
		ObjKind:   b[12],
		Flags:     b[13],
	}
}

// PlanPrefix is a materialized prefix declaration as read back from a View.
type PlanPrefix struct {
	Label   []byte
	BaseIdx uint32
}

// Prefix returns the i'th declared prefix, in declaration order.
func (v *View) Prefix(i int) PlanPrefix {
	off := v.prefixTableOff + uint64(i)*prefixRecordSize
	b := v.data[off:]
	labelOff := binary.LittleEndian.Uint32(b[0:])
	labelLen := binary.LittleEndian.Uint32(b[4:])
	baseIdx := binary.LittleEndian.Uint32(b[8:])
	start := v.stringPoolOff + uint64(labelOff)
	return PlanPrefix{Label: v.data[start : start+uint64(labelLen)], BaseIdx: baseIdx}
}
