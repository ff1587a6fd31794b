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

// Package shacl implements shape-based validation of a closed [graph.Graph]
// against the SHACL constraint kinds listed in the specification.
package shacl

import "github.com/ttlplan/ttlc/internal/intern"

// Severity is the level at which a violated constraint is reported.
type Severity uint8

const (
	Violation Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Violation:
		return "Violation"
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	default:
		return "unknown"
	}
}

// TargetKind selects how a shape's focus nodes are computed.
type TargetKind uint8

const (
	TargetNode TargetKind = iota
	TargetClass
	TargetSubjectsOf
	TargetObjectsOf
	TargetImplicit
)

// Target is one target clause of a shape; a shape's focus node set is the
// union over every declared Target.
type Target struct {
	Kind TargetKind
	// Value holds the node (TargetNode), class (TargetClass), or predicate
	// (TargetSubjectsOf / TargetObjectsOf) the clause refers to. Unused for
	// TargetImplicit, whose value is the shape's own IRI.
	Value intern.ID
}

// ConstraintKind tags the variant carried by a [Constraint]'s sum type, as
// the design notes call for: each variant carries exactly its needed
// payload, nothing more.
type ConstraintKind uint8

const (
	KindMinCount ConstraintKind = iota
	KindMaxCount
	KindDatatype
	KindNodeKind
	KindClass
	KindPattern
	KindMinInclusive
	KindMaxInclusive
	KindIn
	KindHasValue
	KindAnd
	KindOr
	KindNot
	KindXone
)

// NodeKindTag is the value of a sh:nodeKind constraint.
type NodeKindTag uint8

const (
	NodeKindIRI NodeKindTag = iota
	NodeKindBlankNode
	NodeKindLiteral
	NodeKindBlankNodeOrIRI
	NodeKindBlankNodeOrLiteral
	NodeKindIRIOrLiteral
)

// Constraint is a single SHACL constraint, tagged by [ConstraintKind]. Only
// the fields relevant to Kind are populated; see the per-kind comments.
type Constraint struct {
	Kind ConstraintKind

	Count    int         // KindMinCount, KindMaxCount
	Datatype intern.ID   // KindDatatype
	NodeKind NodeKindTag // KindNodeKind
	Class    intern.ID   // KindClass
	Pattern  string      // KindPattern (a Go/RE2 regular expression)
	Bound    float64     // KindMinInclusive, KindMaxInclusive
	Values   []intern.ID // KindIn (kept sorted for binary search)
	Value    intern.ID   // KindHasValue

	// Nested shapes for the compositional kinds; evaluated against the
	// same focus node and combined by short-circuit boolean logic.
	Nested []*Shape // KindAnd, KindOr, KindXone
	Negated *Shape   // KindNot
}

// PropertyShape binds an ordered list of constraints to a single
// predicate path, scanned once per focus node via [graph.Graph.ObjectsOf].
type PropertyShape struct {
	Path        intern.ID
	Constraints []Constraint
}

// Shape is a SHACL node shape: a target selector, a severity, an ordered
// list of property shapes, and a deactivation flag.
type Shape struct {
	IRI         intern.ID
	Targets     []Target
	Properties  []PropertyShape
	Severity    Severity
	Deactivated bool
}
