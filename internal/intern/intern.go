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

// Package intern assigns a stable, dense, 32-bit [ID] to every distinct IRI,
// blank node label, and literal lexeme seen during parsing.
//
// Lexeme bytes are appended to an arena region the interner owns; the table
// itself stores only (hash, zc.Range, Kind) triples, so growing the table
// never moves or copies lexeme bytes.
package intern

import (
	"hash/fnv"

	"github.com/ttlplan/ttlc/internal/arena"
	"github.com/ttlplan/ttlc/internal/debug"
	"github.com/ttlplan/ttlc/internal/zc"
)

// Kind is the node kind encoded in the top bits of an [ID].
type Kind uint8

const (
	// KindInvalid marks the reserved zero ID.
	KindInvalid Kind = iota
	// KindIRI is a full or prefix-expanded IRI.
	KindIRI
	// KindBlank is a blank node label, scoped to one parse.
	KindBlank
	// KindLiteral is an untyped (effectively xsd:string) literal.
	KindLiteral
	// KindTypedLiteral is a literal with a ^^datatype or @lang tag, or a
	// numeric or boolean literal whose datatype its lexical form implies.
	KindTypedLiteral
)

const (
	kindBits  = 4
	kindShift = 32 - kindBits
	indexMask = 1<<kindShift - 1
	// MaxID is the largest index makeID accepts, one below the largest
	// value the 28-bit payload of an ID can hold.
	MaxID = indexMask - 1
)

// ID is a dense, stable handle produced by [Interner.Intern]. Bits 28-31
// carry the node [Kind]; the low 28 bits index the lexeme table. Zero is
// reserved for "invalid", so real ids start at 1.
type ID uint32

// Kind returns the node kind encoded in id.
func (id ID) Kind() Kind { return Kind(id >> kindShift) }

// Index returns the dense table index encoded in id, with the kind bits
// stripped off.
func (id ID) Index() uint32 { return uint32(id) & indexMask }

// Valid reports whether id is anything other than the reserved zero value.
func (id ID) Valid() bool { return id != 0 }

func makeID(kind Kind, index uint32) ID {
	debug.Assert(index <= MaxID, "intern: index %d exceeds 28-bit id space", index)
	return ID(uint32(kind)<<kindShift | index)
}

// entry is one slot of the open-addressing table.
type entry struct {
	hash    uint64
	lexeme  zc.Range
	kind    Kind
	id      ID
	occupied bool
}

// Literal carries the side information the parser attaches to a literal id:
// its declared datatype IRI (itself an interned [ID], 0 if none) and
// language tag (raw bytes, since language tags are rarely repeated enough
// to be worth interning on their own).
type Literal struct {
	Datatype ID
	Lang     string
}

// Interner maps byte lexemes to dense, stable [ID] values.
//
// The zero value is not usable; construct one with [New]. An Interner is
// not safe for concurrent use during the write (parsing) phase; once
// parsing is complete it is read-only and may be shared freely, per the
// concurrency model.
type Interner struct {
	a        *arena.Arena
	zone     arena.ZoneID
	table    []entry
	count    int // number of occupied slots == number of distinct lexemes.
	literals map[ID]Literal
}

// New constructs an Interner that stores lexeme bytes in a fresh zone of a.
func New(a *arena.Arena) (*Interner, error) {
	zone, err := a.AddZone(arena.MinSize)
	if err != nil {
		return nil, err
	}
	return &Interner{
		a:        a,
		zone:     zone,
		table:    make([]entry, 16),
		literals: make(map[ID]Literal),
	}, nil
}

// Len returns the number of distinct lexemes interned so far.
func (in *Interner) Len() int { return in.count }

func fnv1a(b []byte) uint64 {
	h := fnv.New64a()
	h.Write(b) //nolint:errcheck // hash.Hash64.Write never fails.
	return h.Sum64()
}

// Intern returns the stable ID for lexeme, assigning a new dense id the
// first time a given (kind, lexeme) pair is seen. Identical byte sequences
// of the same kind always yield the same id; the same bytes under a
// different kind (e.g. a blank node label that collides with an IRI's
// local text) are intentionally distinct lexemes, since the hash is mixed
// with the kind.
func (in *Interner) Intern(kind Kind, lexeme []byte) (ID, error) {
	if 2*(in.count+1) > len(in.table) {
		if err := in.grow(); err != nil {
			return 0, err
		}
	}

	h := fnv1a(lexeme) ^ (uint64(kind) * 0x9E3779B185EBCA87)
	mask := uint64(len(in.table) - 1)

	for i := h & mask; ; i = (i + 1) & mask {
		e := &in.table[i]
		if !e.occupied {
			id, err := in.insert(e, kind, h, lexeme)
			if err != nil {
				return 0, err
			}
			return id, nil
		}
		if e.hash == h && e.kind == kind && e.lexeme.Len() == len(lexeme) &&
			string(e.lexeme.Bytes(in.bytes())) == string(lexeme) {
			return e.id, nil
		}
	}
}

func (in *Interner) insert(e *entry, kind Kind, h uint64, lexeme []byte) (ID, error) {
	// Alloc serves the arena's active zone, so make the interner's own zone
	// active for this one allocation and then restore the caller's.
	prev := in.a.ActiveZone()
	if err := in.a.SwitchZone(in.zone); err != nil {
		return 0, err
	}
	p, err := in.a.Alloc(len(lexeme))
	_ = in.a.SwitchZone(prev)
	if err != nil {
		return 0, err
	}
	copy(in.a.Bytes(p), lexeme)

	in.count++
	id := makeID(kind, uint32(in.count))

	e.hash = h
	e.kind = kind
	e.lexeme = zc.NewRange(zoneOffset(p), len(lexeme))
	e.id = id
	e.occupied = true

	return id, nil
}

// zoneOffset recovers a zone-relative byte offset from an arena.Ptr. The
// interner owns exactly one zone, so Ptr.Offset is already zone-relative.
func zoneOffset(p arena.Ptr) int { return p.Offset }

func (in *Interner) grow() error {
	old := in.table
	in.table = make([]entry, len(old)*2)
	for _, e := range old {
		if !e.occupied {
			continue
		}
		mask := uint64(len(in.table) - 1)
		for i := e.hash & mask; ; i = (i + 1) & mask {
			if !in.table[i].occupied {
				in.table[i] = e
				break
			}
		}
	}
	return nil
}

func (in *Interner) bytes() []byte {
	// The zone's entire backing buffer; zc.Range offsets into it directly.
	return in.a.Bytes(arena.Ptr{Zone: in.zone, Offset: 0, Len: in.a.Used(in.zone)})
}

// Lexeme returns the original bytes for id. Panics if id was not produced
// by this interner (debug builds only; release builds return nil).
func (in *Interner) Lexeme(id ID) []byte {
	idx := int(id.Index())
	if idx <= 0 || idx > in.count {
		debug.Assert(false, "intern: id %d out of range", id)
		return nil
	}
	e := in.findByIndex(idx)
	if e == nil {
		return nil
	}
	return e.lexeme.Bytes(in.bytes())
}

func (in *Interner) findByIndex(idx int) *entry {
	// Linear scan over the whole table, so every Lexeme() call costs
	// O(table size); callers include the parser's prefixed-name expansion
	// and the SHACL extractor and validator, not only the materializer.
	for i := range in.table {
		e := &in.table[i]
		if e.occupied && int(e.id.Index()) == idx {
			return e
		}
	}
	return nil
}

// SetLiteral records datatype/language metadata for a literal id, so that
// later components (the SHACL validator's sh:datatype constraint) can
// recover it without re-lexing the lexeme.
func (in *Interner) SetLiteral(id ID, lit Literal) {
	in.literals[id] = lit
}

// Literal returns the datatype/language metadata recorded for id, if any.
func (in *Interner) Literal(id ID) (Literal, bool) {
	lit, ok := in.literals[id]
	return lit, ok
}
