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

// Package graph holds the interned triple store the parser populates and
// every downstream component (OWL closure, SHACL validator, materializer)
// reads from.
package graph

import (
	"sort"

	"github.com/ttlplan/ttlc/internal/debug"
	"github.com/ttlplan/ttlc/internal/intern"
)

// TripleFlags records per-triple metadata that doesn't belong in the object
// kind tag: whether the object carries a language tag or explicit datatype,
// and whether the triple was asserted by the input or inferred by the OWL
// closure engine.
type TripleFlags uint8

const (
	// FlagLangTagged marks an object literal with an @lang tag.
	FlagLangTagged TripleFlags = 1 << iota
	// FlagDatatyped marks an object literal with a ^^datatype, explicit or
	// implied by a numeric or boolean lexical form.
	FlagDatatyped
	// FlagInferred marks a triple synthesized by the closure engine rather
	// than asserted in the source document.
	FlagInferred
)

// ObjectKind distinguishes what an object position holds, independent of
// the general node Kind the interner assigns (a predicate position is
// always an IRI, but an object can be any of these).
type ObjectKind uint8

const (
	ObjectIRI ObjectKind = iota
	ObjectBlank
	ObjectLiteral
)

// Triple is one RDF statement. 16 bytes, 8-byte aligned: three 32-bit
// identifiers, an object-kind tag, and a byte of flags, with two bytes of
// trailing pad; the zero-size leading field raises the alignment to 8.
type Triple struct {
	_         [0]uint64
	Subject   intern.ID
	Predicate intern.ID
	Object    intern.ID
	ObjKind   ObjectKind
	Flags     TripleFlags
}

// less orders triples by (s, p, o), the order the materializer requires the
// triple array to be sorted in.
func (t Triple) less(o Triple) bool {
	if t.Subject != o.Subject {
		return t.Subject < o.Subject
	}
	if t.Predicate != o.Predicate {
		return t.Predicate < o.Predicate
	}
	return t.Object < o.Object
}

// Prefix maps a short prefix label to the IRI it expands to.
type Prefix struct {
	Label string
	Base  intern.ID
}

// index is a hash map from an intern.ID to the triple indices where it
// appears in some role. Built lazily, once, the first time it's asked for;
// invalidated (and rebuilt) only if the graph is mutated after having built
// one, which the frozen/append-only discipline is meant to make rare.
type index map[intern.ID][]int

// Graph is an append-only, ordered sequence of triples plus prefix/base
// parser state and four derived indices built lazily on first use.
//
// A Graph is not safe for concurrent writes. Once [Graph.Freeze] is called,
// it is read-only and may be shared by the closure engine, the validator,
// and the materializer without synchronization, per the concurrency model.
type Graph struct {
	Interner *intern.Interner

	triples []Triple
	prefix  []Prefix
	base    intern.ID

	frozen bool

	bySubject   index
	byPredicate index
	byObject    index
	bySP        map[[2]intern.ID][]int
}

// New constructs an empty Graph backed by in.
func New(in *intern.Interner) *Graph {
	return &Graph{Interner: in}
}

// Add appends t to the graph in insertion order. Panics (in debug builds)
// if the graph has already been frozen.
func (g *Graph) Add(t Triple) {
	debug.Assert(!g.frozen, "graph: Add called after Freeze")
	g.triples = append(g.triples, t)
	g.invalidate()
}

func (g *Graph) invalidate() {
	g.bySubject = nil
	g.byPredicate = nil
	g.byObject = nil
	g.bySP = nil
}

// SetBase records the document's @base IRI.
func (g *Graph) SetBase(id intern.ID) { g.base = id }

// Base returns the document's @base IRI, or the zero ID if none was set.
func (g *Graph) Base() intern.ID { return g.base }

// AddPrefix records a @prefix declaration. Prefix declarations are kept in
// declaration order, which is also the order the materializer emits the
// prefix table section in, per the determinism invariant.
func (g *Graph) AddPrefix(label string, base intern.ID) {
	g.prefix = append(g.prefix, Prefix{Label: label, Base: base})
}

// Prefixes returns the declared prefix table, in declaration order.
func (g *Graph) Prefixes() []Prefix { return g.prefix }

// ResolvePrefix looks up a previously declared prefix by label.
func (g *Graph) ResolvePrefix(label string) (intern.ID, bool) {
	for _, p := range g.prefix {
		if p.Label == label {
			return p.Base, true
		}
	}
	return 0, false
}

// Len returns the number of triples in the graph.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns the graph's triples in insertion order. The returned
// slice must not be mutated by the caller.
func (g *Graph) Triples() []Triple { return g.triples }

// Freeze marks the graph read-only and builds its derived indices once, up
// front, rather than leaving every index to build itself lazily and
// separately on first query; materialization and validation both need all
// four indices anyway.
func (g *Graph) Freeze() {
	if g.frozen {
		return
	}
	g.frozen = true
	g.buildIndices()
}

// Frozen reports whether Freeze has been called.
func (g *Graph) Frozen() bool { return g.frozen }

func (g *Graph) buildIndices() {
	g.bySubject = make(index)
	g.byPredicate = make(index)
	g.byObject = make(index)
	g.bySP = make(map[[2]intern.ID][]int)

	for i, t := range g.triples {
		g.bySubject[t.Subject] = append(g.bySubject[t.Subject], i)
		g.byPredicate[t.Predicate] = append(g.byPredicate[t.Predicate], i)
		g.byObject[t.Object] = append(g.byObject[t.Object], i)
		key := [2]intern.ID{t.Subject, t.Predicate}
		g.bySP[key] = append(g.bySP[key], i)
	}
}

func (g *Graph) ensureIndices() {
	if g.bySubject == nil {
		g.buildIndices()
	}
}

// BySubject returns every triple with the given subject.
func (g *Graph) BySubject(s intern.ID) []Triple {
	g.ensureIndices()
	return g.gather(g.bySubject[s])
}

// ByPredicate returns every triple with the given predicate.
func (g *Graph) ByPredicate(p intern.ID) []Triple {
	g.ensureIndices()
	return g.gather(g.byPredicate[p])
}

// ByObject returns every triple with the given object.
func (g *Graph) ByObject(o intern.ID) []Triple {
	g.ensureIndices()
	return g.gather(g.byObject[o])
}

// ObjectsOf returns the objects of every (s, p, *) triple, the single
// index scan every SHACL property constraint performs per focus node.
func (g *Graph) ObjectsOf(s, p intern.ID) []intern.ID {
	g.ensureIndices()
	idxs := g.bySP[[2]intern.ID{s, p}]
	objs := make([]intern.ID, len(idxs))
	for i, idx := range idxs {
		objs[i] = g.triples[idx].Object
	}
	return objs
}

// TriplesOf is like ObjectsOf but returns the full triples, so callers can
// recover ObjKind/Flags as well as the object id.
func (g *Graph) TriplesOf(s, p intern.ID) []Triple {
	g.ensureIndices()
	return g.gather(g.bySP[[2]intern.ID{s, p}])
}

func (g *Graph) gather(idxs []int) []Triple {
	out := make([]Triple, len(idxs))
	for i, idx := range idxs {
		out[i] = g.triples[idx]
	}
	return out
}

// Sorted returns a copy of the graph's triples ordered by (s, p, o), the
// order the materializer's triple array section requires.
func (g *Graph) Sorted() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}
