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
	"regexp"
	"sort"
	"strconv"

	"github.com/google/cel-go/cel"

	"github.com/ttlplan/ttlc/internal/graph"
	"github.com/ttlplan/ttlc/internal/intern"
	"github.com/ttlplan/ttlc/internal/owl"
)

const rdfType = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"

// ErrKind enumerates the ways validation can fail outright, as opposed to
// merely reporting a shape violation.
type ErrKind int

const (
	_ ErrKind = iota
	ErrPatternCompile
	ErrDatatypeParse
	// ErrCompile means a shape authored in the document itself was
	// malformed (a missing rdf:first, an unparseable sh:minCount literal,
	// an unrecognized sh:nodeKind value), discovered while extracting
	// []*Shape values out of the graph rather than while validating.
	ErrCompile
)

func (k ErrKind) String() string {
	switch k {
	case ErrPatternCompile:
		return "constraint-runtime-error"
	case ErrDatatypeParse:
		return "constraint-runtime-error"
	case ErrCompile:
		return "shape-authoring-error"
	default:
		return "unknown"
	}
}

// Error is returned when a constraint cannot even be evaluated (as
// distinct from evaluating to a violation).
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Msg) }

// compiled holds the per-constraint artifacts built once, at Compile time,
// and reused across every focus node: a regexp for KindPattern, a CEL
// program for the two numeric range kinds.
type compiled struct {
	pattern *regexp.Regexp
	rangeOp cel.Program
}

// ShapeSet is a frozen, ready-to-evaluate collection of shapes.
type ShapeSet struct {
	shapes   []*Shape
	compiled map[*Constraint]*compiled
}

var rangeEnv = buildRangeEnv()

func buildRangeEnv() *cel.Env {
	env, err := cel.NewEnv(
		cel.Variable("value", cel.DoubleType),
		cel.Variable("bound", cel.DoubleType),
		cel.Variable("mode", cel.StringType),
	)
	if err != nil {
		// The environment is a fixed, hand-written expression; a failure
		// here means a programming error, not a runtime condition.
		panic(fmt.Sprintf("shacl: failed to build CEL environment: %v", err))
	}
	return env
}

// Compile prepares shapes for repeated evaluation: it precompiles every
// sh:pattern into a finite automaton (Go's RE2 engine) and every numeric
// range constraint into a reusable CEL program, both exactly once rather
// than once per focus node.
func Compile(shapes []*Shape) (*ShapeSet, error) {
	ss := &ShapeSet{shapes: shapes, compiled: map[*Constraint]*compiled{}}
	var walk func(s *Shape) error
	walk = func(s *Shape) error {
		for pi := range s.Properties {
			cs := s.Properties[pi].Constraints
			for ci := range cs {
				c := &cs[ci]
				switch c.Kind {
				case KindPattern:
					re, err := regexp.Compile(c.Pattern)
					if err != nil {
						return &Error{Kind: ErrPatternCompile, Msg: err.Error()}
					}
					ss.compiled[c] = &compiled{pattern: re}
				case KindMinInclusive, KindMaxInclusive:
					expr := "value >= bound"
					if c.Kind == KindMaxInclusive {
						expr = "value <= bound"
					}
					ast, iss := rangeEnv.Compile(expr)
					if iss != nil && iss.Err() != nil {
						return &Error{Kind: ErrPatternCompile, Msg: iss.Err().Error()}
					}
					prg, err := rangeEnv.Program(ast)
					if err != nil {
						return &Error{Kind: ErrPatternCompile, Msg: err.Error()}
					}
					ss.compiled[c] = &compiled{rangeOp: prg}
				case KindAnd, KindOr, KindXone:
					for _, nested := range c.Nested {
						if err := walk(nested); err != nil {
							return err
						}
					}
				case KindNot:
					if c.Negated != nil {
						if err := walk(c.Negated); err != nil {
							return err
						}
					}
				}
			}
		}
		return nil
	}
	for _, s := range shapes {
		if err := walk(s); err != nil {
			return nil, err
		}
	}
	return ss, nil
}

// Record is one reported constraint violation.
type Record struct {
	Focus    intern.ID
	ShapeIRI intern.ID
	Path     intern.ID
	Kind     ConstraintKind
	Severity Severity
	Message  string
}

// Report is the aggregate result of validating a graph against a
// [ShapeSet].
type Report struct {
	Records        []Record
	ViolationCount int
	WarningCount   int
	InfoCount      int
}

// Conforms reports whether the graph satisfied every shape at Violation
// severity (warnings and info records don't affect conformance).
func (r *Report) Conforms() bool { return r.ViolationCount == 0 }

// Mode selects strict (abort on first violation) or permissive (collect
// every violation) validation.
type Mode int

const (
	Permissive Mode = iota
	Strict
)

// Validate runs every non-deactivated shape in ss against g, using owlM
// for sh:targetClass membership and sh:class constraint checks.
func (ss *ShapeSet) Validate(g *graph.Graph, owlM *owl.Matrix, mode Mode) (*Report, error) {
	report := &Report{}
	for _, shape := range ss.shapes {
		if shape.Deactivated {
			continue
		}
		for _, focus := range ss.focusNodes(g, owlM, shape) {
			ok, err := ss.evaluateShape(g, owlM, focus, shape, report)
			if err != nil {
				return report, err
			}
			if !ok && mode == Strict {
				return report, nil
			}
		}
	}
	return report, nil
}

func (ss *ShapeSet) focusNodes(g *graph.Graph, owlM *owl.Matrix, shape *Shape) []intern.ID {
	seen := map[intern.ID]bool{}
	var out []intern.ID
	add := func(id intern.ID) {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	typePred, _ := g.Interner.Intern(intern.KindIRI, []byte(rdfType))

	for _, t := range shape.Targets {
		switch t.Kind {
		case TargetNode:
			add(t.Value)
		case TargetImplicit:
			add(shape.IRI)
		case TargetClass:
			for _, tr := range g.ByPredicate(typePred) {
				if subclassOrSame(owlM, tr.Object, t.Value) {
					add(tr.Subject)
				}
			}
		case TargetSubjectsOf:
			for _, tr := range g.ByPredicate(t.Value) {
				add(tr.Subject)
			}
		case TargetObjectsOf:
			for _, tr := range g.ByPredicate(t.Value) {
				add(tr.Object)
			}
		}
	}
	return out
}

// evaluateShape runs every property shape in shape against one focus
// node, appending a Record for each violated constraint. It returns false
// if any constraint at Violation severity failed.
func (ss *ShapeSet) evaluateShape(g *graph.Graph, owlM *owl.Matrix, focus intern.ID, shape *Shape, report *Report) (bool, error) {
	conforms := true
	for pi := range shape.Properties {
		prop := &shape.Properties[pi]
		triples := g.TriplesOf(focus, prop.Path)

		for ci := range prop.Constraints {
			c := &prop.Constraints[ci]
			ok, msg, err := ss.evaluateConstraint(g, owlM, focus, triples, c)
			if err != nil {
				return false, err
			}
			if !ok {
				conforms = false
				ss.record(report, focus, shape, prop.Path, c.Kind, msg)
			}
		}
	}
	return conforms, nil
}

func (ss *ShapeSet) record(report *Report, focus intern.ID, shape *Shape, path intern.ID, kind ConstraintKind, msg string) {
	rec := Record{Focus: focus, ShapeIRI: shape.IRI, Path: path, Kind: kind, Severity: shape.Severity, Message: msg}
	report.Records = append(report.Records, rec)
	switch shape.Severity {
	case Violation:
		report.ViolationCount++
	case Warning:
		report.WarningCount++
	case Info:
		report.InfoCount++
	}
}

// evaluateConstraint evaluates one constraint against the triples matched
// by its property shape's (focus, path) pair — a single index scan,
// already performed by the caller.
func (ss *ShapeSet) evaluateConstraint(g *graph.Graph, owlM *owl.Matrix, focus intern.ID, triples []graph.Triple, c *Constraint) (bool, string, error) {
	switch c.Kind {
	case KindMinCount:
		if len(triples) < c.Count {
			return false, fmt.Sprintf("expected at least %d values, got %d", c.Count, len(triples)), nil
		}
		return true, "", nil

	case KindMaxCount:
		if len(triples) > c.Count {
			return false, fmt.Sprintf("expected at most %d values, got %d", c.Count, len(triples)), nil
		}
		return true, "", nil

	case KindDatatype:
		for _, tr := range triples {
			lit, ok := g.Interner.Literal(tr.Object)
			if ok {
				if lit.Datatype != c.Datatype {
					return false, "value does not have the required datatype", nil
				}
				continue
			}
			// tr.Object carries no explicit datatype tag. Fall back to the
			// property's declared rdfs:range before failing: an untyped
			// literal reached through a property ranged over d satisfies
			// sh:datatype d by OWL inference.
			if !rangeDeclares(owlM, tr.Predicate, c.Datatype) {
				return false, "value does not have the required datatype", nil
			}
		}
		return true, "", nil

	case KindNodeKind:
		for _, tr := range triples {
			if !nodeKindMatches(tr, c.NodeKind) {
				return false, "value does not have the required node kind", nil
			}
		}
		return true, "", nil

	case KindClass:
		for _, tr := range triples {
			if !isInstanceOf(g, owlM, tr.Object, c.Class) {
				return false, "value is not an instance of the required class", nil
			}
		}
		return true, "", nil

	case KindPattern:
		re := ss.compiled[c].pattern
		for _, tr := range triples {
			if !re.Match(g.Interner.Lexeme(tr.Object)) {
				return false, fmt.Sprintf("value does not match pattern %q", c.Pattern), nil
			}
		}
		return true, "", nil

	case KindMinInclusive, KindMaxInclusive:
		prg := ss.compiled[c].rangeOp
		for _, tr := range triples {
			v, err := parseNumeric(g.Interner.Lexeme(tr.Object))
			if err != nil {
				return false, "", &Error{Kind: ErrDatatypeParse, Msg: err.Error()}
			}
			out, _, err := prg.Eval(map[string]any{"value": v, "bound": c.Bound, "mode": ""})
			if err != nil {
				return false, "", &Error{Kind: ErrDatatypeParse, Msg: err.Error()}
			}
			if ok, isBool := out.Value().(bool); !isBool || !ok {
				return false, fmt.Sprintf("value %v out of range", v), nil
			}
		}
		return true, "", nil

	case KindIn:
		for _, tr := range triples {
			if !inSorted(c.Values, tr.Object) {
				return false, "value is not a member of the allowed set", nil
			}
		}
		return true, "", nil

	case KindHasValue:
		for _, tr := range triples {
			if tr.Object == c.Value {
				return true, "", nil
			}
		}
		return false, "required value is not present", nil

	case KindAnd:
		for _, nested := range c.Nested {
			ok, err := ss.conformsNested(g, owlM, focus, nested)
			if err != nil {
				return false, "", err
			}
			if !ok {
				return false, "sh:and branch did not conform", nil
			}
		}
		return true, "", nil

	case KindOr:
		for _, nested := range c.Nested {
			ok, err := ss.conformsNested(g, owlM, focus, nested)
			if err != nil {
				return false, "", err
			}
			if ok {
				return true, "", nil
			}
		}
		return false, "no sh:or branch conformed", nil

	case KindXone:
		count := 0
		for _, nested := range c.Nested {
			ok, err := ss.conformsNested(g, owlM, focus, nested)
			if err != nil {
				return false, "", err
			}
			if ok {
				count++
			}
		}
		if count != 1 {
			return false, fmt.Sprintf("exactly one sh:xone branch must conform, %d did", count), nil
		}
		return true, "", nil

	case KindNot:
		ok, err := ss.conformsNested(g, owlM, focus, c.Negated)
		if err != nil {
			return false, "", err
		}
		if ok {
			return false, "sh:not branch conformed but should not have", nil
		}
		return true, "", nil

	default:
		return true, "", nil
	}
}

// conformsNested evaluates a nested shape's property constraints directly
// against focus, ignoring the nested shape's own targets: inside a
// compositional constraint, the focus node is already selected by the
// enclosing shape.
func (ss *ShapeSet) conformsNested(g *graph.Graph, owlM *owl.Matrix, focus intern.ID, shape *Shape) (bool, error) {
	scratch := &Report{}
	ok, err := ss.evaluateShape(g, owlM, focus, shape, scratch)
	return ok, err
}

func nodeKindMatches(tr graph.Triple, want NodeKindTag) bool {
	isIRI := tr.ObjKind == graph.ObjectIRI
	isBlank := tr.ObjKind == graph.ObjectBlank
	isLit := tr.ObjKind == graph.ObjectLiteral
	switch want {
	case NodeKindIRI:
		return isIRI
	case NodeKindBlankNode:
		return isBlank
	case NodeKindLiteral:
		return isLit
	case NodeKindBlankNodeOrIRI:
		return isIRI || isBlank
	case NodeKindBlankNodeOrLiteral:
		return isBlank || isLit
	case NodeKindIRIOrLiteral:
		return isIRI || isLit
	default:
		return false
	}
}

func isInstanceOf(g *graph.Graph, owlM *owl.Matrix, node, class intern.ID) bool {
	typePred, _ := g.Interner.Intern(intern.KindIRI, []byte(rdfType))
	for _, cls := range g.ObjectsOf(node, typePred) {
		if subclassOrSame(owlM, cls, class) {
			return true
		}
	}
	return false
}

// subclassOrSame reports whether a is b or a (possibly transitive) subclass
// of b. The closure matrix only indexes classes that appear in a
// subClassOf/equivalentClass/disjointWith triple, so a class used only as
// an rdf:type object is never itself a matrix row; direct equality covers
// that case without requiring every class ever to be asserted against
// itself.
func subclassOrSame(owlM *owl.Matrix, a, b intern.ID) bool {
	return a == b || (owlM != nil && owlM.IsSubclass(a, b))
}

// rangeDeclares reports whether p was asserted rdfs:range d, directly or
// via subclass closure over the declared range classes. owlM is nil when
// OWL closure was skipped, in which case no inference is possible.
func rangeDeclares(owlM *owl.Matrix, p, d intern.ID) bool {
	if owlM == nil {
		return false
	}
	for _, r := range owlM.Range(p) {
		if subclassOrSame(owlM, d, r) {
			return true
		}
	}
	return false
}

func inSorted(values []intern.ID, target intern.ID) bool {
	i := sort.Search(len(values), func(i int) bool { return values[i] >= target })
	return i < len(values) && values[i] == target
}

func parseNumeric(lexeme []byte) (float64, error) {
	return strconv.ParseFloat(string(lexeme), 64)
}
