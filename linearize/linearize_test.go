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

package linearize

import (
	"testing"

	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/ir"
)

// TestBuilderSharesTerminalBlocks checks the "exactly one VALID block, one
// INVALID block per error code, per frame" rule: independent calls to
// validBlock/invalidBlock for the same code must return the same *ir.Block,
// while distinct codes get distinct blocks.
func TestBuilderSharesTerminalBlocks(t *testing.T) {
	b := &builder{invalid: map[errcode.Code]*ir.Block{}, loopExit: map[string]*ir.Block{}}

	v1 := b.validBlock()
	v2 := b.validBlock()
	if v1 != v2 {
		t.Error("validBlock returned distinct blocks on repeated calls")
	}

	i1 := b.invalidBlock(errcode.TooFewProps)
	i2 := b.invalidBlock(errcode.TooFewProps)
	if i1 != i2 {
		t.Error("invalidBlock returned distinct blocks for the same code")
	}

	i3 := b.invalidBlock(errcode.TooManyProps)
	if i1 == i3 {
		t.Error("invalidBlock shared a block across distinct error codes")
	}
	if v1 == i1 {
		t.Error("validBlock and invalidBlock aliased the same block")
	}
}

// TestRunVisitsBothBranches exercises a runtime-decided (non-foldable)
// condition: both the true and false arms must be reachable from the
// frame's entry once order() lays out the blocks.
func TestRunVisitsBothBranches(t *testing.T) {
	cond := ir.IsTok{Kind: 1}
	stmt := &ir.If{
		Cond:  cond,
		True:  ir.ValidStmt{},
		False: ir.InvalidStmt{Code: errcode.TooFewProps},
	}
	f := &ir.Frame{Name: "test", Stmts: []ir.Stmt{stmt}}
	Run(&ir.Program{Frames: []*ir.Frame{f}})

	if f.Entry == nil {
		t.Fatal("Frame.Entry was not set")
	}

	var sawValid, sawInvalid bool
	var cbranches int
	for _, s := range f.Stmts {
		blk, ok := s.(*ir.Block)
		if !ok {
			t.Fatalf("expected *ir.Block, got %T", s)
		}
		for _, bs := range blk.Stmts {
			switch v := bs.(type) {
			case ir.ValidStmt:
				sawValid = true
			case ir.InvalidStmt:
				sawInvalid = true
			case *ir.CBranch:
				cbranches++
				if v.T == nil || v.F == nil {
					t.Error("CBranch missing a target")
				}
			}
		}
	}
	if !sawValid || !sawInvalid {
		t.Errorf("expected both VALID and INVALID blocks reachable, sawValid=%v sawInvalid=%v", sawValid, sawInvalid)
	}
	if cbranches != 1 {
		t.Errorf("expected exactly one CBranch block for the IsTok condition, got %d", cbranches)
	}
}
