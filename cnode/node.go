// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package cnode implements the canonicalised constraint tree: the
// algebraic, tagged-tree representation every schema keyword lowers into
// before translation to IR. The node shapes and the
// Rewriter-based traversal are grounded on expr.Node/expr.Rewriter
// (expr/node.go), generalized from a value-expression AST to a
// constraint tree.
package cnode

import (
	"github.com/katef/jvst-sub001/automaton"
	"github.com/katef/jvst-sub001/errcode"
)

// Node is any constraint-tree node. Concrete types are listed below; Node
// itself carries no behavior beyond identifying members of the sum type,
// the same shape as expr.Node.
type Node interface {
	cnode()
}

// Valid and Invalid are the two terminals.
type Valid struct{}

func (Valid) cnode() {}

type Invalid struct {
	Code errcode.Code
}

func (Invalid) cnode() {}

// And, Or and Xor are control nodes over a non-empty, ordered child list.
// Canonification guarantees (post-simplify) that no child shares its
// parent's tag (associative flattening, §4.1).
type And struct{ Children []Node }

func (*And) cnode() {}

type Or struct{ Children []Node }

func (*Or) cnode() {}

type Xor struct{ Children []Node }

func (*Xor) cnode() {}

// Not negates a single child.
type Not struct{ Child Node }

func (*Not) cnode() {}

// Switch dispatches on the first token's kind. Slot index is a token.Kind
// value; a nil slot means "no constraint for this kind" (treated as Valid).
type Switch struct {
	Slots [9]Node
}

func (*Switch) cnode() {}

// NumRange constrains a numeric token's value. HasMin/HasMax gate whether
// Min/Max apply; ExclMin/ExclMax make the respective bound exclusive.
type NumRange struct {
	HasMin, HasMax   bool
	Min, Max         float64
	ExclMin, ExclMax bool
}

func (*NumRange) cnode() {}

// NumInteger requires the numeric token's value to be integral (accepts
// 1.1e2, 200e-2; rejects 0.1).
type NumInteger struct{}

func (NumInteger) cnode() {}

// NumMultipleOf requires value to be an integer multiple of Divisor (>0).
type NumMultipleOf struct{ Divisor float64 }

func (*NumMultipleOf) cnode() {}

// StrMatch requires a string token to fully match a compiled automaton.
type StrMatch struct{ DFA automaton.DFA }

func (*StrMatch) cnode() {}

// StrLenRange constrains a string's length as tested against the VM's TLEN
// register: the byte length of the string token's raw text, so multi-byte
// UTF-8 characters and escape sequences count one per byte.
type StrLenRange struct {
	Min    int
	Max    int
	HasMax bool
}

func (*StrLenRange) cnode() {}

// CountRange constrains a count (array length, object property count); it
// is shared across ARR and OBJ contexts per §3.1.
type CountRange struct {
	Min    int
	Max    int
	HasMax bool
}

func (*CountRange) cnode() {}

// ObjPropMatch is a single property-name matcher plus the constraint
// applied to a matching property's value. Name is the literal property name
// when the matcher came from the `properties` keyword (automaton.Literal);
// it is empty for `patternProperties` matchers, which can't be tied to a
// single required-name bit.
type ObjPropMatch struct {
	DFA   automaton.DFA
	Child Node
	Name  string
}

func (*ObjPropMatch) cnode() {}

// ObjPropSet is the union of named/patterned property matchers plus an
// "additionalProperties" fallback, prior to MATCH_SWITCH canonification.
type ObjPropSet struct {
	Matches    []*ObjPropMatch
	Additional Node // nil means "no additionalProperties constraint" (Valid)
}

func (*ObjPropSet) cnode() {}

// ObjRequired is the raw `required` keyword prior to canonification into
// ObjReqMask/ObjReqBit.
type ObjRequired struct{ Names []string }

func (*ObjRequired) cnode() {}

// ObjReqMask declares a per-object-context bitvector of NBits presence
// markers, introduced by canonification (§4.1) whenever there are required
// properties or `dependencies` entries. Bits [0,ReqCount) come from the
// `required` keyword and must ALL end up set; bits [ReqCount,NBits) exist
// only to track presence of names `dependencies` references that aren't
// independently required (post-loop checked individually via
// ObjReqImplies/ObjReqDependency, not by a blanket test).
type ObjReqMask struct {
	NBits    int
	ReqCount int
}

func (*ObjReqMask) cnode() {}

// ObjReqBit marks that bit Bit of the enclosing ObjReqMask must end up set.
type ObjReqBit struct{ Bit int }

func (*ObjReqBit) cnode() {}

// ObjDependency implements the `dependencies` keyword (§8 scenario #7): if
// Trigger is observed as a property name, either every name in Requires
// must also be present (property-dependency form), or the enclosing object
// must additionally satisfy Schema (schema-dependency form) — exactly one
// of Requires/Schema is set.
type ObjDependency struct {
	Trigger  string
	Requires []string
	Schema   Node
}

func (*ObjDependency) cnode() {}

// ObjReqImplies is the canonicalized property-dependency form: if bit
// TriggerBit is set in the enclosing ObjReqMask after the property loop,
// every bit in RequireBits must also be set. Introduced by canonification
// once ObjDependency's required-name strings have been resolved against the
// object context's bit assignment.
type ObjReqImplies struct {
	TriggerBit  int
	RequireBits []int
}

func (*ObjReqImplies) cnode() {}

// ObjReqDependency is the canonicalized schema-dependency form: if Trigger
// is observed as a property name, the whole object must also satisfy
// Schema. Because the main object loop and a schema re-applied to the same
// object are independent token consumers, translate lowers this as a
// two-frame SPLIT (a small dedicated presence-scan sub-frame for Trigger
// plus Schema run as a standalone value) whose accepting count is tested
// (§4.2.1), rather than reusing the main loop's OBJ_REQMASK bit, which is
// private to that frame.
type ObjReqDependency struct {
	Trigger string
	Schema  Node
}

func (*ObjReqDependency) cnode() {}

// ArrItem is an array element constraint. In "list mode" (Tuple == nil) the
// same Child applies to every item (the `items: {...}` form). In "tuple
// mode" (§9 EXPANSION, additionalItems) Tuple holds one constraint per
// position and Child is unused.
type ArrItem struct {
	Child Node
	Tuple []Node
}

func (*ArrItem) cnode() {}

// ArrAdditional constrains array items beyond the positions covered by an
// ArrItem in tuple mode.
type ArrAdditional struct{ Child Node }

func (*ArrAdditional) cnode() {}

// ArrUnique marks `uniqueItems`. Per the open question in §9 it is carried
// in the vocabulary but has no assembler/VM support: Simplify keeps it as
// is and translateArray emits no check for it, so uniqueness is not
// enforced (documented in DESIGN.md).
type ArrUnique struct{}

func (ArrUnique) cnode() {}

// MatchCase is one arm of a MatchSwitch: CaseID is the automaton.Union
// bitmask of original matchers that fired, Constraint is the intersection
// (And) of their children.
type MatchCase struct {
	CaseID     uint32
	Constraint Node
}

// MatchSwitch is the post-canonification union of property matchers (§3.1):
// one DFA dispatches a property name to the (possibly combined) case whose
// constraint applies to that property's value. Default applies when the
// DFA rejects (no matcher fired).
type MatchSwitch struct {
	DFA     automaton.DFA
	Cases   []MatchCase
	Default Node
}

func (*MatchSwitch) cnode() {}
