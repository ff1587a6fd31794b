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

package shacl

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/ttlplan/ttlc/internal/graph"
	"github.com/ttlplan/ttlc/internal/intern"
)

// sh: and rdf: vocabulary terms consulted during extraction. Interned once
// per call to [ExtractShapes] rather than stored as package state, since an
// *intern.Interner is tied to one arena.
const (
	ns        = "http://www.w3.org/ns/shacl#"
	rdfNS     = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"
	rdfTypeNS = rdfNS + "type"
)

// vocab holds every sh:/rdf: predicate and class [ExtractShapes] looks for,
// interned once up front.
type vocab struct {
	rdfType, rdfFirst, rdfRest, rdfNil intern.ID

	nodeShape, propertyShape intern.ID
	targetNode, targetClass  intern.ID
	targetSubjectsOf         intern.ID
	targetObjectsOf          intern.ID
	property, path           intern.ID
	severity, deactivated    intern.ID
	violation, warning, info intern.ID

	minCount, maxCount                 intern.ID
	datatype, nodeKind, class, pattern intern.ID
	minInclusive, maxInclusive         intern.ID
	in, hasValue                       intern.ID
	and, or, not, xone                 intern.ID

	kindIRI, kindBlank, kindLiteral intern.ID
	kindBNOrIRI, kindBNOrLit        intern.ID
	kindIRIOrLit                    intern.ID
}

func buildVocab(in *intern.Interner) (*vocab, error) {
	v := &vocab{}
	terms := []struct {
		dst *intern.ID
		iri string
	}{
		{&v.rdfType, rdfTypeNS},
		{&v.rdfFirst, rdfNS + "first"},
		{&v.rdfRest, rdfNS + "rest"},
		{&v.rdfNil, rdfNS + "nil"},

		{&v.nodeShape, ns + "NodeShape"},
		{&v.propertyShape, ns + "PropertyShape"},
		{&v.targetNode, ns + "targetNode"},
		{&v.targetClass, ns + "targetClass"},
		{&v.targetSubjectsOf, ns + "targetSubjectsOf"},
		{&v.targetObjectsOf, ns + "targetObjectsOf"},
		{&v.property, ns + "property"},
		{&v.path, ns + "path"},
		{&v.severity, ns + "severity"},
		{&v.deactivated, ns + "deactivated"},
		{&v.violation, ns + "Violation"},
		{&v.warning, ns + "Warning"},
		{&v.info, ns + "Info"},

		{&v.minCount, ns + "minCount"},
		{&v.maxCount, ns + "maxCount"},
		{&v.datatype, ns + "datatype"},
		{&v.nodeKind, ns + "nodeKind"},
		{&v.class, ns + "class"},
		{&v.pattern, ns + "pattern"},
		{&v.minInclusive, ns + "minInclusive"},
		{&v.maxInclusive, ns + "maxInclusive"},
		{&v.in, ns + "in"},
		{&v.hasValue, ns + "hasValue"},
		{&v.and, ns + "and"},
		{&v.or, ns + "or"},
		{&v.not, ns + "not"},
		{&v.xone, ns + "xone"},

		{&v.kindIRI, ns + "IRI"},
		{&v.kindBlank, ns + "BlankNode"},
		{&v.kindLiteral, ns + "Literal"},
		{&v.kindBNOrIRI, ns + "BlankNodeOrIRI"},
		{&v.kindBNOrLit, ns + "BlankNodeOrLiteral"},
		{&v.kindIRIOrLit, ns + "IRIOrLiteral"},
	}
	for _, t := range terms {
		id, err := in.Intern(intern.KindIRI, []byte(t.iri))
		if err != nil {
			return nil, err
		}
		*t.dst = id
	}
	return v, nil
}

// ExtractShapes walks g for sh:NodeShape declarations and builds the
// equivalent []*Shape values, the in-memory form [Compile] expects.
//
// This is how shapes actually reach the driver: they are authored as plain
// triples in the same document being compiled, using the SHACL vocabulary,
// rather than supplied out of band. [WithShapes]-style direct construction
// remains useful for tests and for embedding the compiler as a library.
func ExtractShapes(g *graph.Graph, in *intern.Interner) ([]*Shape, error) {
	v, err := buildVocab(in)
	if err != nil {
		return nil, err
	}

	// Only explicit `a sh:NodeShape` declarations become top-level entries.
	// A shape reached via sh:property is a property shape, walked directly
	// by extractPropertyShape below; one reached via sh:and/or/not/xone is
	// a nested node shape, walked recursively by extractShape itself.
	// Neither belongs in the top-level result on its own.
	var shapeIRIs []intern.ID
	seen := make(map[intern.ID]bool)
	for _, t := range g.ByPredicate(v.rdfType) {
		if t.Object == v.nodeShape && !seen[t.Subject] {
			seen[t.Subject] = true
			shapeIRIs = append(shapeIRIs, t.Subject)
		}
	}
	sort.Slice(shapeIRIs, func(i, j int) bool { return shapeIRIs[i] < shapeIRIs[j] })

	shapes := make(map[intern.ID]*Shape, len(shapeIRIs))
	for _, iri := range shapeIRIs {
		s, err := extractShape(g, in, v, iri)
		if err != nil {
			return nil, err
		}
		shapes[iri] = s
	}

	out := make([]*Shape, 0, len(shapeIRIs))
	for _, iri := range shapeIRIs {
		out = append(out, shapes[iri])
	}
	return out, nil
}

func extractShape(g *graph.Graph, in *intern.Interner, v *vocab, iri intern.ID) (*Shape, error) {
	s := &Shape{IRI: iri, Severity: Violation}

	for _, o := range g.ObjectsOf(iri, v.targetNode) {
		s.Targets = append(s.Targets, Target{Kind: TargetNode, Value: o})
	}
	for _, o := range g.ObjectsOf(iri, v.targetClass) {
		s.Targets = append(s.Targets, Target{Kind: TargetClass, Value: o})
	}
	for _, o := range g.ObjectsOf(iri, v.targetSubjectsOf) {
		s.Targets = append(s.Targets, Target{Kind: TargetSubjectsOf, Value: o})
	}
	for _, o := range g.ObjectsOf(iri, v.targetObjectsOf) {
		s.Targets = append(s.Targets, Target{Kind: TargetObjectsOf, Value: o})
	}
	if len(s.Targets) == 0 {
		for _, t := range g.ByPredicate(v.rdfType) {
			if t.Object == iri {
				s.Targets = append(s.Targets, Target{Kind: TargetImplicit, Value: iri})
				break
			}
		}
	}

	if sev := g.ObjectsOf(iri, v.severity); len(sev) > 0 {
		switch sev[0] {
		case v.warning:
			s.Severity = Warning
		case v.info:
			s.Severity = Info
		default:
			s.Severity = Violation
		}
	}
	if deact := g.ObjectsOf(iri, v.deactivated); len(deact) > 0 {
		s.Deactivated = string(in.Lexeme(deact[0])) == "true"
	}

	for _, propShapeIRI := range g.ObjectsOf(iri, v.property) {
		ps, err := extractPropertyShape(g, in, v, propShapeIRI)
		if err != nil {
			return nil, err
		}
		s.Properties = append(s.Properties, *ps)
	}

	for _, combinator := range []struct {
		pred intern.ID
		kind ConstraintKind
	}{
		{v.and, KindAnd},
		{v.or, KindOr},
		{v.xone, KindXone},
	} {
		for _, listHead := range g.ObjectsOf(iri, combinator.pred) {
			members, err := walkList(g, v, listHead)
			if err != nil {
				return nil, err
			}
			nested := make([]*Shape, 0, len(members))
			for _, m := range members {
				ns, err := extractShape(g, in, v, m)
				if err != nil {
					return nil, err
				}
				nested = append(nested, ns)
			}
			s.Properties = append(s.Properties, PropertyShape{
				Path:        iri,
				Constraints: []Constraint{{Kind: combinator.kind, Nested: nested}},
			})
		}
	}
	for _, negatedIRI := range g.ObjectsOf(iri, v.not) {
		negated, err := extractShape(g, in, v, negatedIRI)
		if err != nil {
			return nil, err
		}
		s.Properties = append(s.Properties, PropertyShape{
			Path:        iri,
			Constraints: []Constraint{{Kind: KindNot, Negated: negated}},
		})
	}

	return s, nil
}

func extractPropertyShape(g *graph.Graph, in *intern.Interner, v *vocab, iri intern.ID) (*PropertyShape, error) {
	ps := &PropertyShape{}
	if paths := g.ObjectsOf(iri, v.path); len(paths) > 0 {
		ps.Path = paths[0]
	}

	if c := g.ObjectsOf(iri, v.minCount); len(c) > 0 {
		n, err := parseInt(in, c[0])
		if err != nil {
			return nil, err
		}
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindMinCount, Count: n})
	}
	if c := g.ObjectsOf(iri, v.maxCount); len(c) > 0 {
		n, err := parseInt(in, c[0])
		if err != nil {
			return nil, err
		}
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindMaxCount, Count: n})
	}
	if c := g.ObjectsOf(iri, v.datatype); len(c) > 0 {
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindDatatype, Datatype: c[0]})
	}
	if c := g.ObjectsOf(iri, v.class); len(c) > 0 {
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindClass, Class: c[0]})
	}
	if c := g.ObjectsOf(iri, v.pattern); len(c) > 0 {
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindPattern, Pattern: string(in.Lexeme(c[0]))})
	}
	if c := g.ObjectsOf(iri, v.minInclusive); len(c) > 0 {
		f, err := parseFloat(in, c[0])
		if err != nil {
			return nil, err
		}
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindMinInclusive, Bound: f})
	}
	if c := g.ObjectsOf(iri, v.maxInclusive); len(c) > 0 {
		f, err := parseFloat(in, c[0])
		if err != nil {
			return nil, err
		}
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindMaxInclusive, Bound: f})
	}
	if c := g.ObjectsOf(iri, v.hasValue); len(c) > 0 {
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindHasValue, Value: c[0]})
	}
	if c := g.ObjectsOf(iri, v.in); len(c) > 0 {
		members, err := walkList(g, v, c[0])
		if err != nil {
			return nil, err
		}
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindIn, Values: members})
	}
	if c := g.ObjectsOf(iri, v.nodeKind); len(c) > 0 {
		tag, ok := nodeKindFromIRI(v, c[0])
		if !ok {
			return nil, &Error{Kind: ErrCompile, Msg: fmt.Sprintf("unrecognized sh:nodeKind value %d", c[0])}
		}
		ps.Constraints = append(ps.Constraints, Constraint{Kind: KindNodeKind, NodeKind: tag})
	}

	return ps, nil
}

func nodeKindFromIRI(v *vocab, id intern.ID) (NodeKindTag, bool) {
	switch id {
	case v.kindIRI:
		return NodeKindIRI, true
	case v.kindBlank:
		return NodeKindBlankNode, true
	case v.kindLiteral:
		return NodeKindLiteral, true
	case v.kindBNOrIRI:
		return NodeKindBlankNodeOrIRI, true
	case v.kindBNOrLit:
		return NodeKindBlankNodeOrLiteral, true
	case v.kindIRIOrLit:
		return NodeKindIRIOrLiteral, true
	default:
		return 0, false
	}
}

// walkList follows an rdf:List's rdf:first/rdf:rest spine starting at head,
// returning its elements in order. head == rdf:nil yields an empty slice.
func walkList(g *graph.Graph, v *vocab, head intern.ID) ([]intern.ID, error) {
	var out []intern.ID
	cur := head
	for cur != v.rdfNil && cur != 0 {
		firsts := g.ObjectsOf(cur, v.rdfFirst)
		if len(firsts) == 0 {
			return nil, &Error{Kind: ErrCompile, Msg: "malformed rdf:List: missing rdf:first"}
		}
		out = append(out, firsts[0])

		rests := g.ObjectsOf(cur, v.rdfRest)
		if len(rests) == 0 {
			break
		}
		cur = rests[0]
	}
	return out, nil
}

func parseInt(in *intern.Interner, id intern.ID) (int, error) {
	n, err := strconv.Atoi(string(in.Lexeme(id)))
	if err != nil {
		return 0, &Error{Kind: ErrCompile, Msg: fmt.Sprintf("expected an integer literal: %v", err)}
	}
	return n, nil
}

func parseFloat(in *intern.Interner, id intern.ID) (float64, error) {
	f, err := strconv.ParseFloat(string(in.Lexeme(id)), 64)
	if err != nil {
		return 0, &Error{Kind: ErrCompile, Msg: fmt.Sprintf("expected a numeric literal: %v", err)}
	}
	return f, nil
}
