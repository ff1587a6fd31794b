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

package intern_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttlplan/ttlc/internal/arena"
	"github.com/ttlplan/ttlc/internal/intern"
)

func newInterner(t *testing.T) *intern.Interner {
	t.Helper()
	a, err := arena.Create(arena.MinSize, 0)
	require.NoError(t, err)
	in, err := intern.New(a)
	require.NoError(t, err)
	return in
}

func TestIntern_IdenticalBytesYieldIdenticalID(t *testing.T) {
	in := newInterner(t)

	a, err := in.Intern(intern.KindIRI, []byte("http://example.com/a"))
	require.NoError(t, err)
	b, err := in.Intern(intern.KindIRI, []byte("http://example.com/a"))
	require.NoError(t, err)

	require.Equal(t, a, b)
}

func TestIntern_DistinctBytesYieldDistinctIDs(t *testing.T) {
	in := newInterner(t)

	a, err := in.Intern(intern.KindIRI, []byte("http://example.com/a"))
	require.NoError(t, err)
	b, err := in.Intern(intern.KindIRI, []byte("http://example.com/b"))
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestIntern_SameBytesDifferentKindAreDistinct(t *testing.T) {
	in := newInterner(t)

	iri, err := in.Intern(intern.KindIRI, []byte("x"))
	require.NoError(t, err)
	blank, err := in.Intern(intern.KindBlank, []byte("x"))
	require.NoError(t, err)

	require.NotEqual(t, iri, blank)
	require.Equal(t, intern.KindIRI, iri.Kind())
	require.Equal(t, intern.KindBlank, blank.Kind())
}

func TestIntern_ZeroIsNeverAssigned(t *testing.T) {
	in := newInterner(t)
	id, err := in.Intern(intern.KindIRI, []byte("anything"))
	require.NoError(t, err)
	require.True(t, id.Valid())
	require.NotZero(t, id)
}

func TestIntern_LexemeRoundTrips(t *testing.T) {
	in := newInterner(t)
	id, err := in.Intern(intern.KindLiteral, []byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(in.Lexeme(id)))
}

func TestIntern_GrowthPreservesLookups(t *testing.T) {
	in := newInterner(t)

	ids := make(map[string]intern.ID)
	for i := 0; i < 500; i++ {
		s := fmt.Sprintf("http://example.com/%d", i)
		id, err := in.Intern(intern.KindIRI, []byte(s))
		require.NoError(t, err)
		ids[s] = id
	}

	for s, want := range ids {
		got, err := in.Intern(intern.KindIRI, []byte(s))
		require.NoError(t, err)
		require.Equal(t, want, got, "lexeme %q should resolve to the same id after growth", s)
	}
	require.Equal(t, 500, in.Len())
}

func TestIntern_LiteralMetadata(t *testing.T) {
	in := newInterner(t)

	dt, err := in.Intern(intern.KindIRI, []byte("http://www.w3.org/2001/XMLSchema#integer"))
	require.NoError(t, err)
	lit, err := in.Intern(intern.KindTypedLiteral, []byte("42"))
	require.NoError(t, err)

	in.SetLiteral(lit, intern.Literal{Datatype: dt})

	got, ok := in.Literal(lit)
	require.True(t, ok)
	require.Equal(t, dt, got.Datatype)
}
