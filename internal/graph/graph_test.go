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

package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttlplan/ttlc/internal/arena"
	"github.com/ttlplan/ttlc/internal/graph"
	"github.com/ttlplan/ttlc/internal/intern"
)

func newGraph(t *testing.T) (*graph.Graph, *intern.Interner) {
	t.Helper()
	a, err := arena.Create(arena.MinSize, 0)
	require.NoError(t, err)
	in, err := intern.New(a)
	require.NoError(t, err)
	return graph.New(in), in
}

func TestGraph_AddAndQuery(t *testing.T) {
	g, in := newGraph(t)

	s, _ := in.Intern(intern.KindIRI, []byte("ex:a"))
	p, _ := in.Intern(intern.KindIRI, []byte("ex:p"))
	o, _ := in.Intern(intern.KindIRI, []byte("ex:b"))

	g.Add(graph.Triple{Subject: s, Predicate: p, Object: o, ObjKind: graph.ObjectIRI})

	require.Equal(t, 1, g.Len())
	require.Len(t, g.BySubject(s), 1)
	require.Len(t, g.ByPredicate(p), 1)
	require.Len(t, g.ByObject(o), 1)
	require.Equal(t, []intern.ID{o}, g.ObjectsOf(s, p))
}

func TestGraph_ObjectsOfSingleScan(t *testing.T) {
	g, in := newGraph(t)

	s, _ := in.Intern(intern.KindIRI, []byte("ex:x"))
	p, _ := in.Intern(intern.KindIRI, []byte("ex:p"))
	o1, _ := in.Intern(intern.KindIRI, []byte("ex:o1"))
	o2, _ := in.Intern(intern.KindIRI, []byte("ex:o2"))
	other, _ := in.Intern(intern.KindIRI, []byte("ex:other"))

	g.Add(graph.Triple{Subject: s, Predicate: p, Object: o1, ObjKind: graph.ObjectIRI})
	g.Add(graph.Triple{Subject: s, Predicate: p, Object: o2, ObjKind: graph.ObjectIRI})
	g.Add(graph.Triple{Subject: s, Predicate: other, Object: o1, ObjKind: graph.ObjectIRI})

	objs := g.ObjectsOf(s, p)
	require.Len(t, objs, 2)
	require.ElementsMatch(t, []intern.ID{o1, o2}, objs)
}

func TestGraph_PrefixesPreserveDeclarationOrder(t *testing.T) {
	g, in := newGraph(t)

	a1, _ := in.Intern(intern.KindIRI, []byte("http://a/"))
	a2, _ := in.Intern(intern.KindIRI, []byte("http://b/"))
	g.AddPrefix("ex", a1)
	g.AddPrefix("foaf", a2)

	prefixes := g.Prefixes()
	require.Len(t, prefixes, 2)
	require.Equal(t, "ex", prefixes[0].Label)
	require.Equal(t, "foaf", prefixes[1].Label)

	base, ok := g.ResolvePrefix("foaf")
	require.True(t, ok)
	require.Equal(t, a2, base)
}

func TestGraph_SortedOrdersByComponents(t *testing.T) {
	g, in := newGraph(t)

	s1, _ := in.Intern(intern.KindIRI, []byte("ex:1"))
	s2, _ := in.Intern(intern.KindIRI, []byte("ex:2"))
	p, _ := in.Intern(intern.KindIRI, []byte("ex:p"))
	o, _ := in.Intern(intern.KindIRI, []byte("ex:o"))

	g.Add(graph.Triple{Subject: s2, Predicate: p, Object: o})
	g.Add(graph.Triple{Subject: s1, Predicate: p, Object: o})

	sorted := g.Sorted()
	require.Len(t, sorted, 2)
	require.True(t, sorted[0].Subject <= sorted[1].Subject)
}

func TestGraph_FreezeIsIdempotent(t *testing.T) {
	g, in := newGraph(t)
	s, _ := in.Intern(intern.KindIRI, []byte("ex:a"))
	g.Add(graph.Triple{Subject: s, Predicate: s, Object: s})

	g.Freeze()
	g.Freeze()
	require.True(t, g.Frozen())
	require.Len(t, g.BySubject(s), 1)
}
