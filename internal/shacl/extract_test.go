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

	"github.com/ttlplan/ttlc/internal/shacl"
)

func TestExtractShapes_TargetClassAndCardinality(t *testing.T) {
	g, in, m := build(t, `
@prefix ex: <http://e/> .
@prefix sh: <http://www.w3.org/ns/shacl#> .
ex:alice ex:name "Alice" .
ex:bob a ex:Person .

ex:NameShape a sh:NodeShape ;
	sh:targetClass ex:Person ;
	sh:property [ sh:path ex:name ; sh:minCount 1 ] .
`)
	shapes, err := shacl.ExtractShapes(g, in)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	require.Equal(t, shacl.TargetClass, shapes[0].Targets[0].Kind)
	require.Len(t, shapes[0].Properties, 1)
	require.Equal(t, shacl.KindMinCount, shapes[0].Properties[0].Constraints[0].Kind)

	ss, err := shacl.Compile(shapes)
	require.NoError(t, err)
	report, err := ss.Validate(g, m, shacl.Permissive)
	require.NoError(t, err)
	require.False(t, report.Conforms())
}

func TestExtractShapes_PropertyListDoesNotLeakAsTopLevelShape(t *testing.T) {
	g, in, _ := build(t, `
@prefix ex: <http://e/> .
@prefix sh: <http://www.w3.org/ns/shacl#> .
ex:NameShape a sh:NodeShape ;
	sh:targetNode ex:alice ;
	sh:property [ sh:path ex:name ; sh:minCount 1 ] .
`)
	shapes, err := shacl.ExtractShapes(g, in)
	require.NoError(t, err)
	require.Len(t, shapes, 1, "the blank-node property shape must not appear as its own top-level shape")
}

func TestExtractShapes_AndCombinatorWalksNestedShapes(t *testing.T) {
	g, in, _ := build(t, `
@prefix ex: <http://e/> .
@prefix sh: <http://www.w3.org/ns/shacl#> .
ex:Combo a sh:NodeShape ;
	sh:targetNode ex:alice ;
	sh:and ( ex:ShapeOne ex:ShapeTwo ) .

ex:ShapeOne sh:property [ sh:path ex:p ; sh:minCount 1 ] .
ex:ShapeTwo sh:property [ sh:path ex:q ; sh:minCount 1 ] .
`)
	shapes, err := shacl.ExtractShapes(g, in)
	require.NoError(t, err)
	require.Len(t, shapes, 1)

	var and *shacl.Constraint
	for i := range shapes[0].Properties {
		for j := range shapes[0].Properties[i].Constraints {
			if shapes[0].Properties[i].Constraints[j].Kind == shacl.KindAnd {
				and = &shapes[0].Properties[i].Constraints[j]
			}
		}
	}
	require.NotNil(t, and)
	require.Len(t, and.Nested, 2)

	_, err = shacl.Compile(shapes)
	require.NoError(t, err)
}

func TestExtractShapes_SeverityAndDeactivated(t *testing.T) {
	g, in, _ := build(t, `
@prefix ex: <http://e/> .
@prefix sh: <http://www.w3.org/ns/shacl#> .
ex:WarnShape a sh:NodeShape ;
	sh:targetNode ex:alice ;
	sh:severity sh:Warning ;
	sh:deactivated true .
`)
	shapes, err := shacl.ExtractShapes(g, in)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	require.Equal(t, shacl.Warning, shapes[0].Severity)
	require.True(t, shapes[0].Deactivated)
}
