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

// Package linearize rewrites the structured ir.Stmt tree a frame starts
// with (IF/LOOP/SEQ/BREAK) into an ordered list of ir.Block connected by
// ir.Branch/ir.CBranch. The control-flow shape mirrors plan/transform.go's
// tree-to-DAG query-plan linearizer, generalized from relational operator
// chaining to VALID/INVALID-terminated validation control flow.
package linearize

import (
	"fmt"

	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/ir"
)

// Run linearizes every frame of p in place: each Frame.Stmts (a single
// structured statement on entry) becomes a pseudo-topologically ordered
// []ir.Stmt of *ir.Block, and Frame.Entry is set to the first block to run.
func Run(p *ir.Program) {
	for _, f := range p.Frames {
		runFrame(f)
	}
}

func runFrame(f *ir.Frame) {
	if len(f.Stmts) != 1 {
		panic(fmt.Sprintf("linearize: frame %q must have exactly one top-level statement pre-linearize, got %d", f.Name, len(f.Stmts)))
	}
	b := &builder{
		invalid:  map[errcode.Code]*ir.Block{},
		loopExit: map[string]*ir.Block{},
	}
	entry := b.lower(f.Stmts[0], nil)
	f.Entry = entry
	f.Stmts = order(entry)
}

type builder struct {
	n        int
	valid    *ir.Block
	invalid  map[errcode.Code]*ir.Block
	loopExit map[string]*ir.Block
}

func (b *builder) newBlock(label string) *ir.Block {
	blk := &ir.Block{Label: fmt.Sprintf("%s%d", label, b.n)}
	b.n++
	return blk
}

// validBlock/invalidBlock implement §4.3's "exactly one VALID block per
// frame, one INVALID block per distinct error code per frame" sharing rule.
func (b *builder) validBlock() *ir.Block {
	if b.valid == nil {
		blk := b.newBlock("valid")
		blk.Stmts = []ir.Stmt{ir.ValidStmt{}}
		b.valid = blk
	}
	return b.valid
}

func (b *builder) invalidBlock(code errcode.Code) *ir.Block {
	if blk, ok := b.invalid[code]; ok {
		return blk
	}
	blk := b.newBlock("invalid")
	blk.Stmts = []ir.Stmt{ir.InvalidStmt{Code: code}}
	b.invalid[code] = blk
	return blk
}

// simple wraps a single non-branching statement into its own block, falling
// through to cont.
func (b *builder) simple(s ir.Stmt, cont *ir.Block) *ir.Block {
	blk := b.newBlock("s")
	blk.Stmts = []ir.Stmt{s, &ir.Branch{To: cont}}
	return blk
}

// lower returns the entry block for running s and then continuing at cont.
// cont is nil only at the frame's outermost call, where a structured
// statement produced by ir.Translate always terminates in VALID/INVALID on
// every path and so never actually reaches it.
func (b *builder) lower(s ir.Stmt, cont *ir.Block) *ir.Block {
	switch v := s.(type) {
	case ir.Nop:
		return cont
	case ir.ValidStmt:
		return b.validBlock()
	case ir.InvalidStmt:
		return b.invalidBlock(v.Code)
	case ir.Token, ir.Consume:
		return b.simple(s, cont)
	case *ir.Incr, *ir.Decr, *ir.Bset, *ir.Bclear, *ir.Move, *ir.Call, *ir.Splitvec:
		return b.simple(s, cont)
	case *ir.Seq:
		cur := cont
		for i := len(v.Stmts) - 1; i >= 0; i-- {
			cur = b.lower(v.Stmts[i], cur)
		}
		return cur
	case *ir.If:
		tBlk := b.lower(v.True, cont)
		fBlk := b.lower(v.False, cont)
		return b.lowerCond(v.Cond, tBlk, fBlk)
	case *ir.Loop:
		back := b.newBlock("loopback")
		prevExit, hadExit := b.loopExit[v.Name]
		b.loopExit[v.Name] = cont
		bodyEntry := b.lower(v.Body, back)
		back.Stmts = []ir.Stmt{&ir.Branch{To: bodyEntry}}
		if hadExit {
			b.loopExit[v.Name] = prevExit
		} else {
			delete(b.loopExit, v.Name)
		}
		return bodyEntry
	case ir.Break:
		target, ok := b.loopExit[v.Loop]
		if !ok {
			panic("linearize: break outside its loop: " + v.Loop)
		}
		blk := b.newBlock("break")
		blk.Stmts = []ir.Stmt{&ir.Branch{To: target}}
		return blk
	case *ir.Match:
		// MATCH_SWITCH's N-way dispatch lowers to a CBRANCH chain testing the
		// matcher's case-id expression against each CaseID in turn, reusing
		// IF's lowering; the assembler compiles each EQ(MatchExpr,k) test on
		// its own (a MATCH followed by an ICMP against k) and does not fold
		// the chain into a single dispatch.
		chain := v.Default
		for i := len(v.Cases) - 1; i >= 0; i-- {
			c := v.Cases[i]
			chain = &ir.If{
				Cond:  ir.EQ(ir.MatchExpr{M: v.M}, ir.Int(int64(c.CaseID))),
				True:  c.Body,
				False: chain,
			}
		}
		return b.lower(chain, cont)
	default:
		panic(fmt.Sprintf("linearize: unexpected pre-linearize statement %T", s))
	}
}

// lowerCond breaks a possibly-compound boolean expression into a chain of
// CBRANCHes (§4.3): AND tests the left operand first, jumping to f if it's
// false and only then testing the right; OR dually; NOT swaps its targets.
// What reaches the assembler as a single CBRANCH's Cond is therefore always
// a leaf expression (Cmp/IsTok/IsInt/Btest/MatchExpr-backed comparison).
func (b *builder) lowerCond(cond ir.Expr, t, f *ir.Block) *ir.Block {
	switch v := cond.(type) {
	case ir.BoolConst:
		if bool(v) {
			return t
		}
		return f
	case ir.And:
		rhs := b.lowerCond(v.Y, t, f)
		return b.lowerCond(v.X, rhs, f)
	case ir.Or:
		rhs := b.lowerCond(v.Y, t, f)
		return b.lowerCond(v.X, t, rhs)
	case ir.Not:
		return b.lowerCond(v.X, f, t)
	default:
		blk := b.newBlock("cond")
		blk.Stmts = []ir.Stmt{&ir.CBranch{Cond: cond, T: t, F: f}}
		return blk
	}
}

// order performs reachability mark-and-sweep from entry and a pseudo-
// topological sort: a CBRANCH's false-target is visited immediately after
// its own block so it can fall through without a jump (§4.3, §4.4 branch
// elision).
func order(entry *ir.Block) []ir.Stmt {
	var out []ir.Stmt
	seen := map[*ir.Block]bool{}
	var visit func(b *ir.Block)
	visit = func(b *ir.Block) {
		if b == nil || seen[b] {
			return
		}
		seen[b] = true
		out = append(out, b)
		if len(b.Stmts) == 0 {
			return
		}
		switch term := b.Stmts[len(b.Stmts)-1].(type) {
		case *ir.CBranch:
			visit(term.F)
			visit(term.T)
		case *ir.Branch:
			visit(term.To)
		}
	}
	visit(entry)
	return out
}
