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

package ir

import (
	"fmt"

	"github.com/katef/jvst-sub001/automaton"
	"github.com/katef/jvst-sub001/cnode"
	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/token"
)

// Translate lowers a canonicalized cnode tree (cnode.Simplify's output)
// into an IR Program whose frame 0 validates one top-level value (§4.2).
func Translate(n cnode.Node) *Program {
	t := &translator{}
	entry := t.newFrame("root")
	entry.Stmts = []Stmt{t.translateValue(entry, n)}
	return &Program{Frames: t.frames}
}

type translator struct {
	frames []*Frame
	n      int
}

func (t *translator) newFrame(prefix string) *Frame {
	f := &Frame{Name: fmt.Sprintf("%s.%d", prefix, t.n)}
	t.n++
	t.frames = append(t.frames, f)
	return f
}

// translateValue lowers n as "validate the next value on the stream against
// n", which always begins by fetching that value's leading token.
func (t *translator) translateValue(f *Frame, n cnode.Node) Stmt {
	switch v := n.(type) {
	case cnode.Valid:
		return &Seq{Stmts: []Stmt{Token{}, consumeContainer(), ValidStmt{}}}
	case cnode.Invalid:
		return &Seq{Stmts: []Stmt{Token{}, consumeContainer(), InvalidStmt{Code: v.Code}}}
	case *cnode.Switch:
		return t.translateSwitch(f, v)
	case *cnode.And:
		return t.translateSplitGroup(f, v.Children, splitAll)
	case *cnode.Or:
		return t.translateSplitGroup(f, v.Children, splitAny)
	case *cnode.Xor:
		return t.translateSplitGroup(f, v.Children, splitOne)
	case *cnode.Not:
		return t.translateSplitGroup(f, []cnode.Node{v.Child}, splitNone)
	default:
		// Any other node reaching translateValue is a compiler defect: every
		// value-level cnode is Valid/Invalid/Switch/And/Or/Xor/Not after
		// cnode.Build's top-level combination (see cnode.buildObject).
		panic(fmt.Sprintf("ir.Translate: unexpected value-level cnode %T", n))
	}
}

func consumeContainer() Stmt {
	return &If{
		Cond: Or{X: IsTok{Kind: token.ObjectBegin}, Y: IsTok{Kind: token.ArrayBegin}},
		True: Consume{},
		False: Nop{},
	}
}

// translateSwitch emits the SWITCH rule of §4.2: fetch one token, then
// dispatch to each kind's slot. The last kind in the chain becomes the
// implicit else (token.Kind values partition all 9 kinds, so no further
// ISTOK test is needed for it).
func (t *translator) translateSwitch(f *Frame, sw *cnode.Switch) Stmt {
	var chain Stmt = t.translateSlot(f, token.Kind(len(sw.Slots)-1), sw.Slots[len(sw.Slots)-1])
	for k := len(sw.Slots) - 2; k >= 0; k-- {
		chain = &If{
			Cond:  IsTok{Kind: token.Kind(k)},
			True:  t.translateSlot(f, token.Kind(k), sw.Slots[k]),
			False: chain,
		}
	}
	return &Seq{Stmts: []Stmt{Token{}, chain}}
}

// translateSlot lowers the constraint that applies once a value's kind is
// known; TT/TNUM/TLEN are already populated by the enclosing TOKEN. Object
// and array slots must themselves consume every token belonging to the
// value (via a MATCH_SWITCH loop, an ArrItem loop, or a trailing CONSUME).
func (t *translator) translateSlot(f *Frame, kind token.Kind, n cnode.Node) Stmt {
	switch kind {
	case token.ObjectBegin:
		return t.translateObject(f, n)
	case token.ArrayBegin:
		return t.translateArray(f, n)
	default:
		return t.translateScalarSlot(f, n)
	}
}

// translateScalarSlot lowers a Number/String/True/False/Null slot: every
// such value is exactly one token, so these expressions read registers
// directly with no further TOKEN calls. Where the slot flattens into a
// plain conjunction of leaf constraints, each leaf gets its own check:
// string length and integer checks report their own codes, while every
// other leaf (numeric range, multipleOf, string pattern) reports
// errcode.Number. Only a non-flattenable slot (Or/Xor/Not at this level)
// falls back to one combined boolean with a generic code.
func (t *translator) translateScalarSlot(f *Frame, n cnode.Node) Stmt {
	leaves, ok := flattenScalarAnd(n)
	if !ok {
		e, ok2 := t.scalarExpr(f, n)
		if !ok2 {
			return t.translateSplitGroup(f, []cnode.Node{n}, splitAll)
		}
		return &If{Cond: e, True: ValidStmt{}, False: InvalidStmt{Code: errcode.MatchCase}}
	}
	var stmts []Stmt
	for _, leaf := range leaves {
		switch v := leaf.(type) {
		case cnode.Valid:
			continue
		case cnode.Invalid:
			stmts = append(stmts, InvalidStmt{Code: v.Code})
		case *cnode.StrLenRange:
			stmts = append(stmts, &If{
				Cond:  LT(RegTokLen{}, SizeOf(v.Min)),
				True:  InvalidStmt{Code: errcode.LengthTooShort},
				False: Nop{},
			})
			if v.HasMax {
				stmts = append(stmts, &If{
					Cond:  GT(RegTokLen{}, SizeOf(v.Max)),
					True:  InvalidStmt{Code: errcode.LengthTooLong},
					False: Nop{},
				})
			}
		case cnode.NumInteger:
			stmts = append(stmts, &If{Cond: Not{X: IsInt{X: RegTokNum{}}}, True: InvalidStmt{Code: errcode.NotInteger}, False: Nop{}})
		default:
			e, ok2 := t.scalarExpr(f, leaf)
			if !ok2 {
				continue
			}
			stmts = append(stmts, &If{Cond: Not{X: e}, True: InvalidStmt{Code: errcode.Number}, False: Nop{}})
		}
	}
	stmts = append(stmts, ValidStmt{})
	return &Seq{Stmts: stmts}
}

// flattenScalarAnd flattens a conjunction of leaf scalar constraints into a
// flat list, failing (ok=false) as soon as it sees anything it can't
// statically decompose (Or/Xor/Not at this level): those still need
// value-level SPLIT handling via translateSplitGroup.
func flattenScalarAnd(n cnode.Node) ([]cnode.Node, bool) {
	switch v := n.(type) {
	case cnode.Valid, cnode.Invalid, *cnode.NumRange, cnode.NumInteger, *cnode.NumMultipleOf, *cnode.StrMatch, *cnode.StrLenRange:
		return []cnode.Node{n}, true
	case *cnode.And:
		var out []cnode.Node
		for _, c := range v.Children {
			sub, ok := flattenScalarAnd(c)
			if !ok {
				return nil, false
			}
			out = append(out, sub...)
		}
		return out, true
	default:
		return nil, false
	}
}

// scalarExpr tries to render n as a pure boolean Expr with no side effects,
// covering the numeric/string leaf constraints. ok is false when n needs
// statement-level handling (nested And/Or over non-leaf constructs). f is
// the frame any matcher declarations attach to.
func (t *translator) scalarExpr(f *Frame, n cnode.Node) (Expr, bool) {
	switch v := n.(type) {
	case cnode.Valid:
		return BoolConst(true), true
	case cnode.Invalid:
		return BoolConst(false), true
	case *cnode.NumRange:
		var e Expr = BoolConst(true)
		if v.HasMin {
			if v.ExclMin {
				e = And{X: e, Y: GT(RegTokNum{}, Num(v.Min))}
			} else {
				e = And{X: e, Y: GE(RegTokNum{}, Num(v.Min))}
			}
		}
		if v.HasMax {
			if v.ExclMax {
				e = And{X: e, Y: LT(RegTokNum{}, Num(v.Max))}
			} else {
				e = And{X: e, Y: LE(RegTokNum{}, Num(v.Max))}
			}
		}
		return e, true
	case cnode.NumInteger:
		return IsInt{X: RegTokNum{}}, true
	case *cnode.NumMultipleOf:
		return isMultipleOf(v.Divisor), true
	case *cnode.StrMatch:
		m := t.addMatcher(f, v.DFA)
		return NE(MatchExpr{M: m}, Int(0)), true
	case *cnode.StrLenRange:
		var e Expr = BoolConst(true)
		e = And{X: e, Y: GE(RegTokLen{}, SizeOf(v.Min))}
		if v.HasMax {
			e = And{X: e, Y: LE(RegTokLen{}, SizeOf(v.Max))}
		}
		return e, true
	case *cnode.And:
		parts := make([]Expr, 0, len(v.Children))
		for _, c := range v.Children {
			e, ok := t.scalarExpr(f, c)
			if !ok {
				return nil, false
			}
			parts = append(parts, e)
		}
		return allOf(parts), true
	case *cnode.Or:
		parts := make([]Expr, 0, len(v.Children))
		for _, c := range v.Children {
			e, ok := t.scalarExpr(f, c)
			if !ok {
				return nil, false
			}
			parts = append(parts, e)
		}
		return anyOf(parts), true
	case *cnode.Not:
		e, ok := t.scalarExpr(f, v.Child)
		if !ok {
			return nil, false
		}
		return Not{X: e}, true
	default:
		return nil, false
	}
}

// isMultipleOf renders NUM_MULTIPLE_OF via the assembler's FINT opcode
// (integer-valued, with an optional divisor) applied to TOK_NUM/divisor.
func isMultipleOf(divisor float64) Expr {
	return IsInt{X: DivExpr{Num: RegTokNum{}, Div: Num(divisor)}}
}

// DivExpr marks "Num divided by Div", recognized only inside IsInt so the
// assembler can emit FINT's optional divisor operand rather than a generic
// division (§4.4: "FINT a[,d] ... Set flag to integer-valued (and divisible
// by d if present)").
type DivExpr struct {
	Num, Div Expr
}

func (DivExpr) irexpr() {}

func allOf(es []Expr) Expr {
	if len(es) == 0 {
		return BoolConst(true)
	}
	out := es[0]
	for _, e := range es[1:] {
		out = And{X: out, Y: e}
	}
	return out
}

func anyOf(es []Expr) Expr {
	if len(es) == 0 {
		return BoolConst(false)
	}
	out := es[0]
	for _, e := range es[1:] {
		out = Or{X: out, Y: e}
	}
	return out
}

type splitKind int

const (
	splitAll  splitKind = iota // AND: every sub-frame must accept
	splitAny                   // OR: at least one must accept
	splitOne                   // XOR: exactly one must accept
	splitNone                  // NOT: none may accept
)

// translateSplitGroup lowers a set of sibling value-level constraints that
// must all see the same value via SPLIT (§4.2.1): one sub-frame per child,
// driven in lockstep, the result count tested per splitKind.
func (t *translator) translateSplitGroup(f *Frame, children []cnode.Node, kind splitKind) Stmt {
	frames := make([]*Frame, len(children))
	for i, c := range children {
		sub := t.newFrame("split")
		sub.Stmts = []Stmt{t.translateValue(sub, c)}
		frames[i] = sub
	}
	sl := &Splitlist{Frames: frames}
	f.Splitlists = append(f.Splitlists, sl)

	switch kind {
	case splitNone:
		cond := EQ(Split{List: sl}, Int(0))
		return &If{Cond: cond, True: ValidStmt{}, False: InvalidStmt{Code: errcode.SplitCondition}}
	case splitAll:
		cond := EQ(Split{List: sl}, Int(int64(len(children))))
		return &If{Cond: cond, True: ValidStmt{}, False: InvalidStmt{Code: errcode.SplitCondition}}
	case splitOne:
		cond := EQ(Split{List: sl}, Int(1))
		return &If{Cond: cond, True: ValidStmt{}, False: InvalidStmt{Code: errcode.SplitCondition}}
	default: // splitAny
		cond := GE(Split{List: sl}, Int(1))
		return &If{Cond: cond, True: ValidStmt{}, False: InvalidStmt{Code: errcode.SplitCondition}}
	}
}

// addMatcher declares a Matcher owned by frame f.
func (t *translator) addMatcher(f *Frame, dfa DFA) *Matcher {
	m := &Matcher{DFA: dfa}
	f.Matchers = append(f.Matchers, m)
	return m
}

// addCounter declares a Counter owned by frame f.
func (t *translator) addCounter(f *Frame, label string) *Counter {
	c := &Counter{Label: label}
	f.Counters = append(f.Counters, c)
	return c
}

// addBitvector declares a Bitvector owned by frame f.
func (t *translator) addBitvector(f *Frame, label string, nbits int) *Bitvector {
	bv := &Bitvector{Label: label, NBits: nbits}
	f.Bitvecs = append(f.Bitvecs, bv)
	return bv
}

// valueFrame builds a fresh sub-frame validating n as a standalone value,
// for use where a CALL's result must be tested rather than just run for
// effect (used for property values and array items, which must not
// terminate the enclosing object/array loop the way an inlined
// ValidStmt/InvalidStmt would per §4.3's "exactly one VALID block per
// frame" rule).
func (t *translator) valueFrame(prefix string, n cnode.Node) *Frame {
	sub := t.newFrame(prefix)
	sub.Stmts = []Stmt{t.translateValue(sub, n)}
	return sub
}

// callValue is valueFrame wrapped in a Call statement, for call sites that
// only need the value consumed and don't inspect its verdict.
func (t *translator) callValue(prefix string, n cnode.Node) *Call {
	return &Call{Frame: t.valueFrame(prefix, n)}
}

// flattenAnd flattens nested Ands into their leaf children, the same way
// cnode.Simplify flattens before canonicalizeObjectContext folds the object
// context; translate applies it again here because node-local rewrites
// inside an object/array body (ObjReqDependency in particular) aren't
// collapsed until this layer pulls them back out by type.
func flattenAnd(n cnode.Node) []cnode.Node {
	and, ok := n.(*cnode.And)
	if !ok {
		return []cnode.Node{n}
	}
	var out []cnode.Node
	for _, c := range and.Children {
		out = append(out, flattenAnd(c)...)
	}
	return out
}

// extractReqBits pulls any ObjReqBit markers cnode.Simplify attached to a
// MatchCase's constraint back out, returning the remaining value constraint
// (Valid if the case was ONLY a presence marker) plus the bits to Bset.
func extractReqBits(n cnode.Node) (cnode.Node, []int) {
	parts := flattenAnd(n)
	var bits []int
	kept := parts[:0:0]
	for _, p := range parts {
		if rb, ok := p.(*cnode.ObjReqBit); ok {
			bits = append(bits, rb.Bit)
			continue
		}
		kept = append(kept, p)
	}
	switch len(kept) {
	case 0:
		return cnode.Valid{}, bits
	case 1:
		return kept[0], bits
	default:
		return &cnode.And{Children: kept}, bits
	}
}

// bitsAllSet ANDs together a BTEST per bit; used for ObjReqImplies's
// RequireBits, whose members generally aren't contiguous.
func bitsAllSet(bv *Bitvector, bits []int) Expr {
	if len(bits) == 0 {
		return BoolConst(true)
	}
	var e Expr = BTest(bv, bits[0])
	for _, b := range bits[1:] {
		e = And{X: e, Y: BTest(bv, b)}
	}
	return e
}

// countCheck emits the minCount/maxCount post-loop bounds test shared by
// object property counts and array lengths, reporting lowCode/highCode
// respectively on violation.
func countCheck(counter *Counter, cr *cnode.CountRange, lowCode, highCode errcode.Code) Stmt {
	var stmts []Stmt
	if cr.Min > 0 {
		stmts = append(stmts, &If{
			Cond:  LT(Count{Counter: counter}, Int(int64(cr.Min))),
			True:  InvalidStmt{Code: lowCode},
			False: Nop{},
		})
	}
	if cr.HasMax {
		stmts = append(stmts, &If{
			Cond:  GT(Count{Counter: counter}, Int(int64(cr.Max))),
			True:  InvalidStmt{Code: highCode},
			False: Nop{},
		})
	}
	if len(stmts) == 0 {
		return Nop{}
	}
	return &Seq{Stmts: stmts}
}

// translateObject lowers an ObjectBegin slot's constraint (§4.2): a
// MATCH_SWITCH-driven loop over properties, followed by the post-loop
// checks that can't be evaluated until every property has been seen
// (property count, blanket required-bit test, dependencies). The leading
// ObjectBegin token has already been consumed by the caller (translateSwitch
// or, for a SPLIT sibling, the Seq this function's caller wraps it in).
func (t *translator) translateObject(f *Frame, n cnode.Node) Stmt {
	parts := flattenAnd(n)

	var countRange *cnode.CountRange
	var ms *cnode.MatchSwitch
	var reqMask *cnode.ObjReqMask
	var implies []*cnode.ObjReqImplies
	var schemaDeps []*cnode.ObjReqDependency
	var rest []cnode.Node
	for _, p := range parts {
		switch v := p.(type) {
		case *cnode.CountRange:
			countRange = v
		case *cnode.MatchSwitch:
			ms = v
		case *cnode.ObjReqMask:
			reqMask = v
		case *cnode.ObjReqImplies:
			implies = append(implies, v)
		case *cnode.ObjReqDependency:
			schemaDeps = append(schemaDeps, v)
		case cnode.Valid:
		default:
			rest = append(rest, p)
		}
	}

	propCount := t.addCounter(f, "props")
	var reqBits *Bitvector
	if reqMask != nil {
		reqBits = t.addBitvector(f, "reqmask", reqMask.NBits)
	}

	loopBody := []Stmt{
		Token{},
		&If{Cond: IsTok{Kind: token.ObjectEnd}, True: Break{Loop: "obj"}, False: Nop{}},
		&Incr{Counter: propCount, K: 1},
	}
	if ms != nil {
		loopBody = append(loopBody, t.translatePropertyMatch(f, reqBits, ms))
	} else {
		// No properties/patternProperties/additionalProperties constraint at
		// all: every property value still has to be consumed.
		loopBody = append(loopBody, t.callValue("propskip", cnode.Valid{}))
	}
	loop := &Loop{Name: "obj", Body: &Seq{Stmts: loopBody}}

	var post []Stmt
	post = append(post, loop)
	if countRange != nil {
		post = append(post, countCheck(propCount, countRange, errcode.TooFewProps, errcode.TooManyProps))
	}
	if reqMask != nil && reqMask.ReqCount > 0 {
		post = append(post, &If{
			Cond:  Not{X: BTestAll(reqBits, 0, reqMask.ReqCount-1)},
			True:  InvalidStmt{Code: errcode.MissingRequired},
			False: Nop{},
		})
	}
	for _, im := range implies {
		post = append(post, &If{
			Cond:  And{X: BTest(reqBits, im.TriggerBit), Y: Not{X: bitsAllSet(reqBits, im.RequireBits)}},
			True:  InvalidStmt{Code: errcode.MissingRequired},
			False: Nop{},
		})
	}
	for _, r := range rest {
		post = append(post, t.callValue("objextra", r))
	}
	for _, sd := range schemaDeps {
		post = append(post, t.translateSchemaDependency(f, sd))
	}
	post = append(post, ValidStmt{})
	return &Seq{Stmts: post}
}

// translatePropertyMatch lowers one MATCH_SWITCH dispatch over a property
// name: MATCH the key, Bset any required-bit markers attached to the firing
// case's constraint, then CALL a fresh sub-frame to validate the value so a
// single property's acceptance can't short-circuit the whole object loop.
func (t *translator) translatePropertyMatch(f *Frame, reqBits *Bitvector, ms *cnode.MatchSwitch) Stmt {
	m := t.addMatcher(f, ms.DFA)
	cases := make([]MatchCase, len(ms.Cases))
	for i, c := range ms.Cases {
		valueNode, bits := extractReqBits(c.Constraint)
		var stmts []Stmt
		for _, b := range bits {
			stmts = append(stmts, &Bset{Bitvec: reqBits, Bit: b})
		}
		stmts = append(stmts, &If{
			Cond:  NE(CallExpr{Frame: t.valueFrame("propval", valueNode)}, Int(0)),
			True:  InvalidStmt{Code: errcode.MatchCase},
			False: Nop{},
		})
		cases[i] = MatchCase{CaseID: c.CaseID, Body: &Seq{Stmts: stmts}}
	}
	defValueNode, defBits := extractReqBits(ms.Default)
	var defStmts []Stmt
	for _, b := range defBits {
		defStmts = append(defStmts, &Bset{Bitvec: reqBits, Bit: b})
	}
	defStmts = append(defStmts, &If{
		Cond:  NE(CallExpr{Frame: t.valueFrame("propval", defValueNode)}, Int(0)),
		True:  InvalidStmt{Code: errcode.MatchCase},
		False: Nop{},
	})
	return &Match{M: m, Cases: cases, Default: &Seq{Stmts: defStmts}}
}

// translateSchemaDependency lowers the schema-dependency form of
// `dependencies` (§8 scenario #7). The main object body (already executing
// in f) and the dependency's schema each independently consume the whole
// object from the top, so they can't share f's private reqmask bitvector;
// instead this emits a SPLIT sibling pair — re-scan-for-Trigger and
// re-validate-against-Schema — combined as "trigger absent OR schema
// satisfied", which is then ANDed into f's own verdict.
func (t *translator) translateSchemaDependency(f *Frame, sd *cnode.ObjReqDependency) Stmt {
	absentFrame := t.newFrame("trignotfound")
	absentFrame.Stmts = []Stmt{t.translatePresenceScan(absentFrame, sd.Trigger)}

	// sd.Schema is a full value-level cnode (cnode.Build's output applied to
	// the dependency's sub-schema document), not an already-unwrapped
	// object-context node, so it goes through translateValue like any other
	// value-level child rather than translateObject.
	schemaFrame := t.newFrame("depschema")
	schemaFrame.Stmts = []Stmt{t.translateValue(schemaFrame, sd.Schema)}

	sl := &Splitlist{Frames: []*Frame{absentFrame, schemaFrame}}
	f.Splitlists = append(f.Splitlists, sl)
	return &If{
		Cond:  EQ(Split{List: sl}, Int(0)),
		True:  InvalidStmt{Code: errcode.MissingRequired},
		False: Nop{},
	}
}

// translatePresenceScan builds the body of a dedicated sub-frame that reads
// an object value from the top and returns INVALID the moment it observes a
// property named trigger, VALID once the object ends without having seen
// one. A SPLIT sub-frame that returns is simply not fed any further tokens
// for the value (§4.5.1), so there's no need to skip the rest of the object
// once trigger is found.
func (t *translator) translatePresenceScan(f *Frame, trigger string) Stmt {
	m := t.addMatcher(f, automaton.Literal(trigger))
	loopBody := []Stmt{
		Token{},
		&If{Cond: IsTok{Kind: token.ObjectEnd}, True: Break{Loop: "scan"}, False: Nop{}},
		&Match{
			M: m,
			Cases: []MatchCase{
				{CaseID: 1, Body: InvalidStmt{Code: errcode.MatchCase}},
			},
			Default: t.callValue("scanskip", cnode.Valid{}),
		},
	}
	return &Seq{Stmts: []Stmt{
		Token{},
		&Loop{Name: "scan", Body: &Seq{Stmts: loopBody}},
		ValidStmt{},
	}}
}

// translateArray lowers an ArrayBegin slot's constraint (§4.2): tuple-mode
// positions (if any) are checked against ArrItem.Tuple in order, remaining
// items against ArrAdditional (list mode reuses ArrItem.Child for every
// position via the same Default path). CountRange becomes a post-loop
// minItems/maxItems check.
func (t *translator) translateArray(f *Frame, n cnode.Node) Stmt {
	parts := flattenAnd(n)

	var countRange *cnode.CountRange
	var item *cnode.ArrItem
	var additional *cnode.ArrAdditional
	var rest []cnode.Node
	for _, p := range parts {
		switch v := p.(type) {
		case *cnode.CountRange:
			countRange = v
		case *cnode.ArrItem:
			item = v
		case *cnode.ArrAdditional:
			additional = v
		case cnode.Valid, cnode.ArrUnique:
		default:
			rest = append(rest, p)
		}
	}

	idx := t.addCounter(f, "items")
	var tuple []cnode.Node
	var listChild cnode.Node
	if item != nil {
		tuple = item.Tuple
		listChild = item.Child
	}

	var dispatch Stmt
	if len(tuple) > 0 {
		var afterTuple Stmt
		if additional != nil {
			afterTuple = t.callValue("arritem", additional.Child)
		} else if listChild != nil {
			afterTuple = t.callValue("arritem", listChild)
		} else {
			afterTuple = t.callValue("arritem", cnode.Valid{})
		}
		chain := afterTuple
		for i := len(tuple) - 1; i >= 0; i-- {
			chain = &If{
				Cond:  EQ(Count{Counter: idx}, Int(int64(i))),
				True:  t.callValue("arritem", tuple[i]),
				False: chain,
			}
		}
		dispatch = chain
	} else if listChild != nil {
		dispatch = t.callValue("arritem", listChild)
	} else {
		dispatch = t.callValue("arritem", cnode.Valid{})
	}

	loop := &Loop{Name: "arr", Body: &Seq{Stmts: []Stmt{
		Token{},
		&If{Cond: IsTok{Kind: token.ArrayEnd}, True: Break{Loop: "arr"}, False: Nop{}},
		dispatch,
		&Incr{Counter: idx, K: 1},
	}}}

	var post []Stmt
	post = append(post, loop)
	if countRange != nil {
		post = append(post, countCheck(idx, countRange, errcode.LengthTooShort, errcode.LengthTooLong))
	}
	for _, r := range rest {
		post = append(post, t.callValue("arrextra", r))
	}
	post = append(post, ValidStmt{})
	return &Seq{Stmts: post}
}
