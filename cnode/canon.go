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

package cnode

import (
	"github.com/katef/jvst-sub001/automaton"
	"github.com/katef/jvst-sub001/errcode"
)

// Simplify canonicalizes a raw Build output into the fixpoint described in
// §4.1: flatten associative control nodes, distribute SWITCH outward over
// AND/OR, collapse VALID/INVALID identities, and fold OBJ_PROP_SET plus
// OBJ_REQUIRED/`dependencies` into a single MATCH_SWITCH with an
// OBJ_REQMASK. The traversal shape is grounded on expr.Rewrite/expr.Rewriter
// (expr/node.go): repeatedly rewrite bottom-up until a pass makes no change,
// using a blake2b structural hash (hash.go) to detect when a subtree is
// already in its fixed point and skip re-rewriting it.
func Simplify(n Node) Node {
	s := &simplifier{memo: map[[32]byte]Node{}}
	return s.fix(n)
}

type simplifier struct {
	memo map[[32]byte]Node
}

func (s *simplifier) fix(n Node) Node {
	h := structHash(n)
	if cached, ok := s.memo[h]; ok {
		return cached
	}
	cur := n
	for {
		next := s.step(cur)
		if structHash(next) == structHash(cur) {
			s.memo[h] = next
			return next
		}
		cur = next
	}
}

// step applies one bottom-up rewrite pass: children first, then the
// node-local rules.
func (s *simplifier) step(n Node) Node {
	switch v := n.(type) {
	case *And:
		children := make([]Node, len(v.Children))
		for i, c := range v.Children {
			children[i] = s.fix(c)
		}
		return simplifyAnd(children)
	case *Or:
		children := make([]Node, len(v.Children))
		for i, c := range v.Children {
			children[i] = s.fix(c)
		}
		return simplifyOr(children)
	case *Xor:
		children := make([]Node, len(v.Children))
		for i, c := range v.Children {
			children[i] = s.fix(c)
		}
		return &Xor{Children: children}
	case *Not:
		return &Not{Child: s.fix(v.Child)}
	case *Switch:
		sw := &Switch{}
		for i, c := range v.Slots {
			if c == nil {
				sw.Slots[i] = Valid{}
			} else {
				sw.Slots[i] = s.fix(c)
			}
		}
		return sw
	case *ObjPropMatch:
		return &ObjPropMatch{DFA: v.DFA, Child: s.fix(v.Child), Name: v.Name}
	case *ObjPropSet:
		out := &ObjPropSet{Matches: make([]*ObjPropMatch, len(v.Matches))}
		for i, m := range v.Matches {
			out.Matches[i] = s.fix(m).(*ObjPropMatch)
		}
		if v.Additional != nil {
			out.Additional = s.fix(v.Additional)
		}
		return out
	case *ObjDependency:
		if v.Schema != nil {
			return &ObjDependency{Trigger: v.Trigger, Schema: s.fix(v.Schema)}
		}
		return v
	case *ArrItem:
		out := &ArrItem{}
		if v.Child != nil {
			out.Child = s.fix(v.Child)
		}
		if v.Tuple != nil {
			out.Tuple = make([]Node, len(v.Tuple))
			for i, c := range v.Tuple {
				out.Tuple[i] = s.fix(c)
			}
		}
		return out
	case *ArrAdditional:
		return &ArrAdditional{Child: s.fix(v.Child)}
	case *ObjReqDependency:
		return &ObjReqDependency{Trigger: v.Trigger, Schema: s.fix(v.Schema)}
	case *MatchSwitch:
		cases := make([]MatchCase, len(v.Cases))
		for i, c := range v.Cases {
			cases[i] = MatchCase{CaseID: c.CaseID, Constraint: s.fix(c.Constraint)}
		}
		return &MatchSwitch{DFA: v.DFA, Cases: cases, Default: s.fix(v.Default)}
	default:
		return n
	}
}

// simplifyAnd flattens nested Ands, drops Valid children, short-circuits on
// an Invalid child, and folds object-context siblings (ObjPropSet,
// ObjRequired, ObjDependency) into MatchSwitch/ObjReqMask/ObjReqBit per
// §4.1's "replace OBJ_PROP_SET ∪ OBJ_REQUIRED by a single MATCH_SWITCH"
// rule.
func simplifyAnd(children []Node) Node {
	flat := make([]Node, 0, len(children))
	for _, c := range children {
		if inner, ok := c.(*And); ok {
			flat = append(flat, inner.Children...)
			continue
		}
		flat = append(flat, c)
	}

	flat = mergeSwitches(flat, false)
	flat = canonicalizeObjectContext(flat)

	kept := flat[:0:0]
	for _, c := range flat {
		switch c.(type) {
		case Valid:
			continue
		}
		if _, ok := c.(Invalid); ok {
			return c
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		return Valid{}
	case 1:
		return kept[0]
	default:
		return &And{Children: kept}
	}
}

func simplifyOr(children []Node) Node {
	flat := make([]Node, 0, len(children))
	for _, c := range children {
		if inner, ok := c.(*Or); ok {
			flat = append(flat, inner.Children...)
			continue
		}
		flat = append(flat, c)
	}
	flat = mergeSwitches(flat, true)
	kept := flat[:0:0]
	var lastInvalid Node
	for _, c := range flat {
		if _, ok := c.(Valid); ok {
			return Valid{}
		}
		if iv, ok := c.(Invalid); ok {
			lastInvalid = iv
			continue
		}
		kept = append(kept, c)
	}
	switch len(kept) {
	case 0:
		if lastInvalid != nil {
			return lastInvalid
		}
		return Invalid{Code: errcode.MatchCase}
	case 1:
		return kept[0]
	default:
		return &Or{Children: kept}
	}
}

// mergeSwitches implements §4.1's "distribute SWITCH outward" rule:
// AND(SWITCH_A, SWITCH_B) becomes one SWITCH whose slot k is AND(A[k],B[k])
// (dually for OR), so a value-context never has to dispatch more than one
// SWITCH per token. Any non-Switch siblings pass through untouched.
func mergeSwitches(children []Node, isOr bool) []Node {
	var switches []*Switch
	var rest []Node
	for _, c := range children {
		if sw, ok := c.(*Switch); ok {
			switches = append(switches, sw)
			continue
		}
		rest = append(rest, c)
	}
	if len(switches) <= 1 {
		if len(switches) == 1 {
			return append(rest, switches[0])
		}
		return rest
	}
	merged := &Switch{}
	for k := 0; k < len(merged.Slots); k++ {
		slotChildren := make([]Node, len(switches))
		for i, sw := range switches {
			slotChildren[i] = sw.Slots[k]
		}
		if isOr {
			merged.Slots[k] = simplifyOr(slotChildren)
		} else {
			merged.Slots[k] = simplifyAnd(slotChildren)
		}
	}
	return append(rest, merged)
}

// canonicalizeObjectContext looks for ObjPropSet/ObjRequired/ObjDependency
// siblings within the same AND (an object body, always reached through
// Switch.Slots[token.ObjectBegin]) and replaces them with their
// post-canonification form: a MatchSwitch plus an ObjReqMask, with
// ObjDependency lowered to ObjReqImplies/ObjReqDependency against that same
// bit assignment.
func canonicalizeObjectContext(children []Node) []Node {
	var propSets []*ObjPropSet
	var required []*ObjRequired
	var deps []*ObjDependency
	var rest []Node
	for _, c := range children {
		switch v := c.(type) {
		case *ObjPropSet:
			propSets = append(propSets, v)
		case *ObjRequired:
			required = append(required, v)
		case *ObjDependency:
			deps = append(deps, v)
		default:
			rest = append(rest, c)
		}
	}
	if len(propSets) == 0 && len(required) == 0 && len(deps) == 0 {
		return children
	}

	var reqNames []string
	for _, r := range required {
		reqNames = append(reqNames, r.Names...)
	}
	reqSet := map[string]bool{}
	for _, n := range reqNames {
		reqSet[n] = true
	}
	var trackOnly []string
	for _, d := range deps {
		if d.Schema != nil {
			continue // schema-form deps don't use the shared reqmask bitvec
		}
		if !reqSet[d.Trigger] {
			trackOnly = append(trackOnly, d.Trigger)
		}
		for _, r := range d.Requires {
			if !reqSet[r] {
				trackOnly = append(trackOnly, r)
			}
		}
	}
	bits, reqCount := internTwoGroups(reqNames, trackOnly)

	var matches []*ObjPropMatch
	var additional []Node
	for _, ps := range propSets {
		matches = append(matches, ps.Matches...)
		if ps.Additional != nil {
			additional = append(additional, ps.Additional)
		}
	}
	for _, m := range matches {
		if bit, ok := bits[m.Name]; m.Name != "" && ok {
			m.Child = simplifyAnd([]Node{m.Child, &ObjReqBit{Bit: bit}})
		}
	}

	out := rest
	if len(bits) > 0 {
		out = append(out, &ObjReqMask{NBits: len(bits), ReqCount: reqCount})
	}
	if len(matches) > 0 || len(additional) > 0 {
		out = append(out, buildMatchSwitch(matches, additional))
	}
	for _, d := range deps {
		if d.Schema != nil {
			out = append(out, &ObjReqDependency{Trigger: d.Trigger, Schema: d.Schema})
			continue
		}
		trigBit, ok := bits[d.Trigger]
		if !ok {
			continue
		}
		reqBits := make([]int, 0, len(d.Requires))
		for _, name := range d.Requires {
			reqBits = append(reqBits, bits[name])
		}
		out = append(out, &ObjReqImplies{TriggerBit: trigBit, RequireBits: reqBits})
	}
	return out
}

// buildMatchSwitch unions every matcher's DFA (automaton.Union) and
// rebuilds each resulting bitmask case's constraint as the AND of the
// original matchers that fired, mirroring regexp2's case-combination
// approach generalized from character classes to named/patterned property
// matchers.
func buildMatchSwitch(matches []*ObjPropMatch, additional []Node) *MatchSwitch {
	dfas := make([]automaton.DFA, len(matches))
	for i, m := range matches {
		dfas[i] = m.DFA
	}
	table := automaton.Union(dfas)

	seen := map[uint32]bool{}
	var cases []MatchCase
	for i := 0; i < table.NStates(); i++ {
		mask, ok := table.Accept(i)
		if !ok || mask == 0 || seen[mask] {
			continue
		}
		seen[mask] = true
		var parts []Node
		for bit, m := range matches {
			if mask&(1<<uint(bit)) != 0 {
				parts = append(parts, m.Child)
			}
		}
		var constraint Node
		if len(parts) == 1 {
			constraint = parts[0]
		} else {
			constraint = &And{Children: parts}
		}
		cases = append(cases, MatchCase{CaseID: mask, Constraint: constraint})
	}

	var def Node
	switch len(additional) {
	case 0:
		def = Valid{}
	case 1:
		def = additional[0]
	default:
		def = &And{Children: additional}
	}
	return &MatchSwitch{DFA: table, Cases: cases, Default: def}
}
