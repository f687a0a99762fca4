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

package asm

import (
	"testing"

	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/ir"
	"github.com/katef/jvst-sub001/linearize"
)

// assembleSimple builds a one-frame program that checks the current token's
// number register against a literal and assembles it, returning the result
// for inspection.
func assembleSimple(t *testing.T) *Program {
	t.Helper()
	stmt := &ir.If{
		Cond:  ir.GT(ir.RegTokNum{}, ir.Num(3)),
		True:  ir.ValidStmt{},
		False: ir.InvalidStmt{Code: errcode.Number},
	}
	f := &ir.Frame{Name: "root", Stmts: []ir.Stmt{stmt}}
	p := &ir.Program{Frames: []*ir.Frame{f}}
	linearize.Run(p)

	prog, err := Assemble(p)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	return prog
}

func TestAssembleBasic(t *testing.T) {
	prog := assembleSimple(t)

	if len(prog.FrameEntry) != 1 {
		t.Fatalf("expected one frame entry, got %d", len(prog.FrameEntry))
	}
	if prog.FrameEntry[0] != 0 {
		t.Errorf("expected frame 0 to start at PC 0 (its PROC), got %d", prog.FrameEntry[0])
	}
	if len(prog.Code) == 0 {
		t.Fatal("expected non-empty assembled code")
	}
	if prog.Code[0].Op != OpProc {
		t.Errorf("expected frame to open with PROC, got %s", prog.Code[0].Op)
	}

	var sawFCmp, sawJmp, sawReturn bool
	for pc, in := range prog.Code {
		switch in.Op {
		case OpFCmp:
			sawFCmp = true
		case OpJmp:
			sawJmp = true
			target := pc + 1 + int(in.B.Lit)
			if target < 0 || target > len(prog.Code) {
				t.Errorf("JMP at %d resolves to out-of-bounds PC %d (code len %d)", pc, target, len(prog.Code))
			}
		case OpReturn:
			sawReturn = true
		}
	}
	if !sawFCmp {
		t.Error("expected an FCMP instruction for the GT comparison")
	}
	if !sawJmp {
		t.Error("expected a JMP instruction following the comparison")
	}
	if !sawReturn {
		t.Error("expected a RETURN instruction terminating the frame")
	}
}

func TestCmpCond(t *testing.T) {
	cases := []struct {
		k    ir.CmpKind
		want Cond
	}{
		{ir.CmpNE, CondNE},
		{ir.CmpLT, CondLT},
		{ir.CmpLE, CondLE},
		{ir.CmpEQ, CondEQ},
		{ir.CmpGE, CondGE},
		{ir.CmpGT, CondGT},
	}
	for _, c := range cases {
		got, err := cmpCond(c.k)
		if err != nil {
			t.Fatalf("cmpCond(%v): %v", c.k, err)
		}
		if got != c.want {
			t.Errorf("cmpCond(%v) = %v, want %v", c.k, got, c.want)
		}
	}
}

func TestCompileBtestScratchSlot(t *testing.T) {
	bv := &ir.Bitvector{Label: "bv", NBits: 4}
	f := &ir.Frame{Name: "root", Bitvecs: []*ir.Bitvector{bv}}
	a := &asmState{
		prog:        &Program{},
		frameIdx:    map[*ir.Frame]int{f: 0},
		blockPC:     map[*ir.Block]int{},
		fdataIdx:    map[float64]int{},
		cdataIdx:    map[int64]int{},
		matcherID:   map[*ir.Matcher]int{},
		splitIdx:    map[*ir.Splitlist]int{},
		counterSlot: map[*ir.Counter]int{},
		bitvecSlot:  map[*ir.Bitvector]int{bv: 0},
	}
	cond, err := a.compileCond(f, ir.BTestAll(bv, 0, 2))
	if err != nil {
		t.Fatalf("compileCond: %v", err)
	}
	if cond != CondEQ {
		t.Errorf("BTestAll should compile to CondEQ (mask == expected), got %v", cond)
	}
	if len(a.prog.Code) != 3 {
		t.Fatalf("expected MOVE+BAND+ICMP (3 instructions), got %d", len(a.prog.Code))
	}
	if a.prog.Code[0].Op != OpMove || a.prog.Code[1].Op != OpBAnd || a.prog.Code[2].Op != OpICmp {
		t.Errorf("unexpected instruction sequence: %s, %s, %s", a.prog.Code[0].Op, a.prog.Code[1].Op, a.prog.Code[2].Op)
	}
}
