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

package shacl_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ttlplan/ttlc/internal/arena"
	"github.com/ttlplan/ttlc/internal/graph"
	"github.com/ttlplan/ttlc/internal/intern"
	"github.com/ttlplan/ttlc/internal/owl"
	"github.com/ttlplan/ttlc/internal/shacl"
	"github.com/ttlplan/ttlc/internal/ttl"
)

func build(t *testing.T, src string) (*graph.Graph, *intern.Interner, *owl.Matrix) {
	t.Helper()
	a, err := arena.Create(arena.MinSize, 0)
	require.NoError(t, err)
	in, err := intern.New(a)
	require.NoError(t, err)
	g := graph.New(in)
	report := ttl.New([]byte(src), in, g, ttl.Strict).Parse()
	require.Empty(t, report.Errors)
	g.Freeze()
	m, errs := owl.Build(g)
	require.Empty(t, errs)
	return g, in, m
}

func iri(t *testing.T, in *intern.Interner, s string) intern.ID {
	t.Helper()
	id, err := in.Intern(intern.KindIRI, []byte(s))
	require.NoError(t, err)
	return id
}

func TestValidate_MinCountViolation(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
ex:alice ex:name "Alice" .
ex:bob a ex:Person .
`)
	nameShape := iri(t, in, "http://e/NameShape")
	person := iri(t, in, "http://e/Person")
	namePred := iri(t, in, "http://e/name")

	shapes := []*shacl.Shape{
		{
			IRI:      nameShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetClass, Value: person}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: namePred, Constraints: []shacl.Constraint{{Kind: shacl.KindMinCount, Count: 1}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
	require.Equal(t, 1, report.ViolationCount)
	require.Equal(t, iri(t, in, "http://e/bob"), report.Records[0].Focus)
}

func TestValidate_DatatypeViolation(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
ex:alice ex:age "thirty"^^xsd:string .
`)
	ageShape := iri(t, in, "http://e/AgeShape")
	alice := iri(t, in, "http://e/alice")
	agePred := iri(t, in, "http://e/age")
	xsdInt := iri(t, in, "http://www.w3.org/2001/XMLSchema#integer")

	shapes := []*shacl.Shape{
		{
			IRI:      ageShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: agePred, Constraints: []shacl.Constraint{{Kind: shacl.KindDatatype, Datatype: xsdInt}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
	require.Equal(t, shacl.KindDatatype, report.Records[0].Kind)
}

func TestValidate_DatatypeInferredFromPropertyRange(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
ex:age rdfs:range xsd:integer .
ex:alice ex:age "30" .
`)
	ageShape := iri(t, in, "http://e/AgeShape")
	alice := iri(t, in, "http://e/alice")
	agePred := iri(t, in, "http://e/age")
	xsdInt := iri(t, in, "http://www.w3.org/2001/XMLSchema#integer")

	shapes := []*shacl.Shape{
		{
			IRI:      ageShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: agePred, Constraints: []shacl.Constraint{{Kind: shacl.KindDatatype, Datatype: xsdInt}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	// "30" carries no ^^datatype tag of its own; it conforms only because
	// ex:age's declared rdfs:range supplies xsd:integer by inference.
	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.True(t, report.Conforms())
}

func TestValidate_UntypedLiteralWithoutMatchingRangeViolates(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
ex:age rdfs:range xsd:string .
ex:alice ex:age "30" .
`)
	ageShape := iri(t, in, "http://e/AgeShape")
	alice := iri(t, in, "http://e/alice")
	agePred := iri(t, in, "http://e/age")
	xsdInt := iri(t, in, "http://www.w3.org/2001/XMLSchema#integer")

	shapes := []*shacl.Shape{
		{
			IRI:      ageShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: agePred, Constraints: []shacl.Constraint{{Kind: shacl.KindDatatype, Datatype: xsdInt}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
}

func TestValidate_ConformingGraphHasNoViolations(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
ex:alice ex:name "Alice" .
`)
	nameShape := iri(t, in, "http://e/NameShape")
	alice := iri(t, in, "http://e/alice")
	namePred := iri(t, in, "http://e/name")

	shapes := []*shacl.Shape{
		{
			IRI:      nameShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: namePred, Constraints: []shacl.Constraint{{Kind: shacl.KindMinCount, Count: 1}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Strict)
	require.NoError(t, err)
	require.True(t, report.Conforms())
	require.Empty(t, report.Records)
}

func TestValidate_ClassConstraintUsesSubclassClosure(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
ex:Dog rdfs:subClassOf ex:Animal .
ex:rex a ex:Dog .
ex:alice ex:pet ex:rex .
`)
	petShape := iri(t, in, "http://e/PetShape")
	alice := iri(t, in, "http://e/alice")
	petPred := iri(t, in, "http://e/pet")
	animal := iri(t, in, "http://e/Animal")

	shapes := []*shacl.Shape{
		{
			IRI:      petShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: petPred, Constraints: []shacl.Constraint{{Kind: shacl.KindClass, Class: animal}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Strict)
	require.NoError(t, err)
	require.True(t, report.Conforms())
}

func TestValidate_PatternViolation(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
ex:alice ex:code "abc123" .
`)
	codeShape := iri(t, in, "http://e/CodeShape")
	alice := iri(t, in, "http://e/alice")
	codePred := iri(t, in, "http://e/code")

	shapes := []*shacl.Shape{
		{
			IRI:      codeShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: codePred, Constraints: []shacl.Constraint{{Kind: shacl.KindPattern, Pattern: `^[0-9]+$`}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
}

func TestValidate_MinInclusiveRange(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
ex:alice ex:age "17" .
`)
	ageShape := iri(t, in, "http://e/AgeShape")
	alice := iri(t, in, "http://e/alice")
	agePred := iri(t, in, "http://e/age")

	shapes := []*shacl.Shape{
		{
			IRI:      ageShape,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Path: agePred, Constraints: []shacl.Constraint{{Kind: shacl.KindMinInclusive, Bound: 18}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
	require.Equal(t, shacl.KindMinInclusive, report.Records[0].Kind)
}

func TestValidate_AndCombinatorRequiresAllBranches(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
ex:alice ex:name "Alice" .
`)
	alice := iri(t, in, "http://e/alice")
	namePred := iri(t, in, "http://e/name")
	agePred := iri(t, in, "http://e/age")
	outer := iri(t, in, "http://e/CombinedShape")
	branch1 := iri(t, in, "http://e/HasName")
	branch2 := iri(t, in, "http://e/HasAge")

	hasName := &shacl.Shape{IRI: branch1, Properties: []shacl.PropertyShape{
		{Path: namePred, Constraints: []shacl.Constraint{{Kind: shacl.KindMinCount, Count: 1}}},
	}}
	hasAge := &shacl.Shape{IRI: branch2, Properties: []shacl.PropertyShape{
		{Path: agePred, Constraints: []shacl.Constraint{{Kind: shacl.KindMinCount, Count: 1}}},
	}}

	shapes := []*shacl.Shape{
		{
			IRI:      outer,
			Targets:  []shacl.Target{{Kind: shacl.TargetNode, Value: alice}},
			Severity: shacl.Violation,
			Properties: []shacl.PropertyShape{
				{Constraints: []shacl.Constraint{{Kind: shacl.KindAnd, Nested: []*shacl.Shape{hasName, hasAge}}}},
			},
		},
	}
	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)

	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
}
