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
	"fmt"

	"github.com/katef/jvst-sub001/ir"
)

// compileCond resolves one leaf boolean expression (everything
// linearize.lowerCond didn't already decompose into AND/OR/NOT) into the
// JMP condition that should be tested right after the instructions it
// emits.
func (a *asmState) compileCond(f *ir.Frame, e ir.Expr) (Cond, error) {
	switch v := e.(type) {
	case ir.Cmp:
		return a.compileCmp(f, v)
	case ir.IsTok:
		a.emit(Instr{Op: OpICmp, A: reg(RegTT), B: lit(int64(v.Kind))})
		return CondEQ, nil
	case ir.IsInt:
		if err := a.compileFInt(f, v.X); err != nil {
			return 0, err
		}
		return CondNE, nil
	case ir.Btest:
		return a.compileBtest(f, v)
	case ir.BoolConst:
		// lowerCond folds constant conditions away; surviving here only if
		// a caller builds a CBRANCH directly instead of going through
		// linearize, which is a compiler defect.
		if bool(v) {
			return CondAlways, nil
		}
		return CondNever, nil
	default:
		return 0, fmt.Errorf("asm: condition expression %T did not reduce to a leaf comparison", e)
	}
}

// cmpCond maps an ir.CmpKind to the JMP condition that fires when the
// preceding ICMP/FCMP found X Kind Y true.
func cmpCond(k ir.CmpKind) (Cond, error) {
	switch k {
	case ir.CmpNE:
		return CondNE, nil
	case ir.CmpLT:
		return CondLT, nil
	case ir.CmpLE:
		return CondLE, nil
	case ir.CmpEQ:
		return CondEQ, nil
	case ir.CmpGE:
		return CondGE, nil
	case ir.CmpGT:
		return CondGT, nil
	default:
		return 0, fmt.Errorf("asm: unknown comparison kind %d", k)
	}
}

// compileCmp emits ICMP or FCMP (picked by whether either side is a
// floating-point-valued expression) and returns the matching Cond.
func (a *asmState) compileCmp(f *ir.Frame, c ir.Cmp) (Cond, error) {
	x, xFloat, err := a.compileOperandKind(f, c.X)
	if err != nil {
		return 0, err
	}
	y, yFloat, err := a.compileOperandKind(f, c.Y)
	if err != nil {
		return 0, err
	}
	op := OpICmp
	if xFloat || yFloat {
		op = OpFCmp
	}
	a.emit(Instr{Op: op, A: x, B: y})
	return cmpCond(c.Kind)
}

// compileFInt emits FINT over x's numeric operand, with its optional
// divisor operand set when x is a DivExpr (§4.4: "FINT a[,d] ... Set flag
// to integer-valued (and divisible by d if present)").
func (a *asmState) compileFInt(f *ir.Frame, x ir.Expr) error {
	if d, ok := x.(ir.DivExpr); ok {
		num, _, err := a.compileOperandKind(f, d.Num)
		if err != nil {
			return err
		}
		div, _, err := a.compileOperandKind(f, d.Div)
		if err != nil {
			return err
		}
		a.emit(Instr{Op: OpFInt, A: num, B: div})
		return nil
	}
	num, _, err := a.compileOperandKind(f, x)
	if err != nil {
		return err
	}
	a.emit(Instr{Op: OpFInt, A: num, B: none()})
	return nil
}

// compileBtest compiles BTest/BTestAll/BTestAny/BTestOne by masking the
// bitvector's slot into a scratch slot with BAND and comparing it against
// the mask's expected value (§4.4 doesn't give BTEST its own opcode family
// beyond BSET/BAND, so range tests reuse BAND plus ICMP).
func (a *asmState) compileBtest(f *ir.Frame, v ir.Btest) (Cond, error) {
	var mask int64
	for b := v.B0; b <= v.B1; b++ {
		mask |= int64(1) << uint(b)
	}
	scratch := a.allocSlot()
	a.emit(Instr{Op: OpMove, A: slot(scratch), B: slot(a.bitvecSlot[v.Bitvec])})
	a.emit(Instr{Op: OpBAnd, A: slot(scratch), B: lit(mask)})
	switch v.Kind {
	case ir.TestAll:
		// every masked bit set: scratch&mask == mask
		a.emit(Instr{Op: OpICmp, A: slot(scratch), B: lit(mask)})
		return CondEQ, nil
	case ir.TestAny:
		// at least one masked bit set: scratch&mask != 0
		a.emit(Instr{Op: OpICmp, A: slot(scratch), B: lit(0)})
		return CondNE, nil
	case ir.TestOne, ir.TestOnly:
		// single-bit test (B0==B1 for TestOne) or exactly-one-of-range
		// (TestOnly): both reduce to "masked value is nonzero" for a
		// single bit; a true exactly-one-of-many-bits test would need a
		// popcount the VM doesn't expose, so TestOnly is only ever
		// constructed over a single bit by the current translator.
		a.emit(Instr{Op: OpICmp, A: slot(scratch), B: lit(0)})
		return CondNE, nil
	default:
		return 0, fmt.Errorf("asm: unknown bit-test kind %d", v.Kind)
	}
}

// compileOperandKind resolves e to an Operand for use as an ICMP/FCMP/MOVE
// argument, also reporting whether the value is float64-typed so the
// caller can pick ICMP vs FCMP.
func (a *asmState) compileOperandKind(f *ir.Frame, e ir.Expr) (Operand, bool, error) {
	switch v := e.(type) {
	case ir.Num:
		return fdataRef(a.fdata(float64(v))), true, nil
	case ir.RegTokNum:
		return reg(RegTNUM), true, nil
	case ir.Int:
		if fitsLit(int64(v)) {
			return lit(int64(v)), false, nil
		}
		return cdataRef(a.cdata(int64(v))), false, nil
	case ir.SizeOf:
		if fitsLit(int64(v)) {
			return lit(int64(v)), false, nil
		}
		return cdataRef(a.cdata(int64(v))), false, nil
	case ir.RegTokType:
		return reg(RegTT), false, nil
	case ir.RegTokLen:
		return reg(RegTLEN), false, nil
	case ir.RegTokComplete:
		// Not backed by a dedicated VM register (§4.5 lists TT/TNUM/TLEN/M
		// only); every scalar slot already drains a full value before
		// testing it, so "is the current token complete" is always true
		// by the time this would be read.
		return lit(1), false, nil
	case ir.Count:
		return slot(a.counterSlot[v.Counter]), false, nil
	case ir.BCount:
		return slot(a.bitvecSlot[v.Bitvec]), false, nil
	case ir.Itemp:
		return slot(a.tempBase + v.I), false, nil
	case ir.Ftemp:
		return slot(a.tempBase + v.I), true, nil
	case ir.Slot:
		return slot(v.I), false, nil
	case ir.MatchExpr:
		idx, err := a.matcher(v.M)
		if err != nil {
			return Operand{}, false, err
		}
		a.emit(Instr{Op: OpMatch, A: lit(int64(idx))})
		return reg(RegM), false, nil
	case ir.Split:
		idx, err := a.splitlist(v.List)
		if err != nil {
			return Operand{}, false, err
		}
		scratch := a.allocSlot()
		a.emit(Instr{Op: OpSplit, A: lit(int64(idx)), B: slot(scratch)})
		return slot(scratch), false, nil
	case ir.CallExpr:
		idx, ok := a.frameIdx[v.Frame]
		if !ok {
			return Operand{}, false, fmt.Errorf("asm: CALL target frame %q not part of this program", v.Frame.Name)
		}
		a.emit(Instr{Op: OpCall, A: lit(int64(idx))})
		scratch := a.allocSlot()
		// The vm's CALL writes the callee's RETURN code into the M
		// register; materialize it into a scratch slot so the caller can
		// treat the call result like any other integer operand.
		a.emit(Instr{Op: OpMove, A: slot(scratch), B: reg(RegM)})
		return slot(scratch), false, nil
	case ir.ExprSeq:
		if err := a.assembleStmt(f, v.Stmt); err != nil {
			return Operand{}, false, err
		}
		return a.compileOperandKind(f, v.Value)
	default:
		return Operand{}, false, fmt.Errorf("asm: expression %T cannot be compiled as an operand", e)
	}
}

// compileOperand is compileOperandKind without the float tag, for contexts
// (MOVE's source/destination) that don't care.
func (a *asmState) compileOperand(f *ir.Frame, e ir.Expr) (Operand, error) {
	op, _, err := a.compileOperandKind(f, e)
	return op, err
}

// fitsLit reports whether k fits the instruction word's inline literal
// field directly, avoiding a cdata pool round-trip for small constants.
func fitsLit(k int64) bool {
	return k >= -(1<<31) && k < (1<<31)
}
