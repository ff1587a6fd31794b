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

// Package ttlc compiles a Turtle/OWL/SHACL knowledge specification into a
// compact, memory-mappable binary execution plan.
//
// The entry point is [Compile]; its behavior is configured with
// [CompileOption] values, following the same pattern as the rest of this
// family of compilers: a small, composable option type rather than a
// sprawling config struct.
package ttlc

import (
	"github.com/ttlplan/ttlc/internal/arena"
	"github.com/ttlplan/ttlc/internal/graph"
	"github.com/ttlplan/ttlc/internal/intern"
	"github.com/ttlplan/ttlc/internal/owl"
	"github.com/ttlplan/ttlc/internal/plan"
	"github.com/ttlplan/ttlc/internal/shacl"
	"github.com/ttlplan/ttlc/internal/telemetry"
	"github.com/ttlplan/ttlc/internal/ttl"
)

// options collects every [CompileOption]'s effect.
type options struct {
	mode         ttl.Mode
	arenaSize    int
	guard        bool
	shapes       []*shacl.Shape
	skipOWL      bool
	skipValidate bool
	recorder     *telemetry.Recorder
}

// CompileOption is a configuration setting for [Compile].
type CompileOption func(*options)

// WithStrict makes the parser and validator fail fast on the first error
// or violation, instead of collecting every one found.
func WithStrict() CompileOption {
	return func(o *options) { o.mode = ttl.Strict }
}

// WithArenaSize overrides the initial zone size the compiler's arena is
// constructed with.
func WithArenaSize(bytes int) CompileOption {
	return func(o *options) { o.arenaSize = bytes }
}

// WithGuardPages enables page-protected guard regions around the arena's
// zones, at the cost of rounding every zone up to a page multiple.
func WithGuardPages() CompileOption {
	return func(o *options) { o.guard = true }
}

// WithShapes supplies SHACL shapes to validate the graph against,
// overriding the shapes [Compile] would otherwise extract from sh:
// vocabulary triples already present in src.
func WithShapes(shapes []*shacl.Shape) CompileOption {
	return func(o *options) { o.shapes = shapes }
}

// WithoutValidation skips SHACL validation entirely, even if src declares
// shapes itself. [Result.Report] is nil.
func WithoutValidation() CompileOption {
	return func(o *options) { o.skipValidate = true }
}

// WithoutOWL skips OWL closure computation, leaving [Result.Matrix] nil
// and disabling sh:class / sh:targetClass subclass-aware matching (they
// fall back to exact-class matching only).
func WithoutOWL() CompileOption {
	return func(o *options) { o.skipOWL = true }
}

// WithTelemetry attaches a [telemetry.Recorder] that records how long each
// compilation phase took.
func WithTelemetry(rec *telemetry.Recorder) CompileOption {
	return func(o *options) { o.recorder = rec }
}

// Result is everything [Compile] produced from one source document.
type Result struct {
	Arena  *arena.Arena
	Graph  *graph.Graph
	Matrix *owl.Matrix
	Report *shacl.Report
	Plan   []byte

	// ConsistencyErrors holds every [owl.ConsistencyError] (a pair of classes
	// asserted disjoint but related by the subclass closure) [owl.Build] found. In strict
	// mode the first one aborts Compile and is also returned as the error;
	// in permissive mode the pipeline accumulates them here and still
	// produces a Plan, matching the way [Result.Report] holds shape
	// violations without aborting a permissive run.
	ConsistencyErrors []error
}

// Compile lexes, parses, closes, validates, and materializes src, a
// Turtle/OWL/SHACL document, returning the resulting binary plan and the
// intermediate artifacts that produced it.
//
// In permissive mode, syntax errors are recovered from, but a semantic parse
// error (an undeclared prefix, bad datatype, invalid IRI or invalid blank
// node) is returned as the error and no Plan is produced.
//
// If validation runs (on shapes given via [WithShapes] or extracted from
// src, unless [WithoutValidation] is set) and any shape is violated
// at [shacl.Violation] severity in strict mode, Compile still returns a
// non-nil [Result] with [Result.Report] populated, but [Result.Plan] is
// nil and the error is non-nil: callers that only care about materializing
// a valid plan can check the error alone. A disjointness contradiction
// found during OWL closure behaves the same way: it aborts and is returned
// as the error in strict mode, but only accumulates into
// [Result.ConsistencyErrors] in permissive mode, alongside a non-nil Plan.
func Compile(src []byte, opts ...CompileOption) (*Result, error) {
	o := &options{mode: ttl.Permissive, arenaSize: arena.MinSize}
	for _, opt := range opts {
		opt(o)
	}

	var enter func(string) func()
	if o.recorder != nil {
		enter = o.recorder.Enter
	} else {
		enter = func(string) func() { return func() {} }
	}

	a, err := arena.Create(o.arenaSize, flagsFor(o))
	if err != nil {
		return nil, err
	}

	done := enter("intern")
	in, err := intern.New(a)
	done()
	if err != nil {
		return nil, err
	}

	g := graph.New(in)

	done = enter("parse")
	report := ttl.New(src, in, g, o.mode).Parse()
	done()
	if report.FirstErr != nil && o.mode == ttl.Strict {
		return &Result{Arena: a, Graph: g}, report.FirstErr
	}
	for _, e := range report.Errors {
		if te, ok := e.(*ttl.Error); ok {
			switch te.Kind {
			case ttl.ErrUndeclaredPrefix, ttl.ErrBadDatatype, ttl.ErrInvalidIRI, ttl.ErrInvalidBlankNode:
				return &Result{Arena: a, Graph: g}, te
			}
		}
	}
	g.Freeze()

	result := &Result{Arena: a, Graph: g}

	var matrix *owl.Matrix
	if !o.skipOWL {
		done = enter("owl")
		m, errs := owl.Build(g)
		done()
		matrix = m
		result.Matrix = m
		if len(errs) > 0 {
			if o.mode == ttl.Strict {
				return result, errs[0]
			}
			result.ConsistencyErrors = errs
		}
	}

	var shapeSet *shacl.ShapeSet
	if !o.skipValidate {
		shapes := o.shapes
		if shapes == nil {
			done = enter("shacl-extract")
			extracted, err := shacl.ExtractShapes(g, in)
			done()
			if err != nil {
				return result, err
			}
			shapes = extracted
		}

		if len(shapes) > 0 {
			done = enter("shacl-compile")
			ss, err := shacl.Compile(shapes)
			done()
			if err != nil {
				return result, err
			}
			shapeSet = ss

			validateMode := shacl.Permissive
			if o.mode == ttl.Strict {
				validateMode = shacl.Strict
			}

			done = enter("shacl-validate")
			rep, err := ss.Validate(g, matrix, validateMode)
			done()
			if err != nil {
				return result, err
			}
			result.Report = rep
		}
	}

	done = enter("materialize")
	data, err := plan.Serialize(g, shapeSet, matrix, o.mode == ttl.Strict)
	done()
	if err != nil {
		return result, err
	}
	result.Plan = data

	return result, nil
}

func flagsFor(o *options) arena.Flags {
	var f arena.Flags
	if o.guard {
		f |= arena.FlagGuardPages
	}
	return f
}
