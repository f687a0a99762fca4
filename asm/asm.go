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

// Package asm assembles a linearized ir.Program into a Program: a flat
// instruction vector plus the data pools (§4.4) the vm package executes
// against. Instruction selection and the branch-fixup table are grounded on
// bytecode_gen.go/assembler.go's SSA-to-bytecode lowering, generalized from
// vectorized relational opcodes to the scalar token/slot/bitvector
// instruction set a schema validator needs.
package asm

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/katef/jvst-sub001/automaton"
	"github.com/katef/jvst-sub001/ir"
)

// Op is a VM opcode (§4.4's instruction set table).
type Op uint8

const (
	OpProc Op = iota
	OpToken
	OpTokenBack // "TOKEN -1": un-consume the last token
	OpConsume
	OpICmp
	OpFCmp
	OpFInt
	OpJmp
	OpCall
	OpReturn
	OpMatch
	OpFLoad
	OpILoad
	OpMove
	OpIncr
	OpBSet
	OpBAnd
	OpSplit
	OpSplitV
)

func (op Op) String() string {
	names := [...]string{
		"PROC", "TOKEN", "TOKEN-1", "CONSUME", "ICMP", "FCMP", "FINT", "JMP",
		"CALL", "RETURN", "MATCH", "FLOAD", "ILOAD", "MOVE", "INCR", "BSET",
		"BAND", "SPLIT", "SPLITV",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "OP?"
}

// Reg names one of the VM's fixed registers (§4.5).
type Reg uint8

const (
	RegTT Reg = iota
	RegTNUM
	RegTLEN
	RegM
)

// Cond is a JMP condition (§4.4).
type Cond uint8

const (
	CondEQ Cond = iota
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
	CondAlways
	CondNever
)

// OperandKind tags an Instr operand per §4.4's REG/SLOT/LIT scheme.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandReg
	OperandSlot
	OperandLit
	OperandFData // index into Program.FData
	OperandCData // index into Program.CData
)

// Operand is one operand of an Instr. Only the field matching Kind is
// meaningful.
type Operand struct {
	Kind OperandKind
	Reg  Reg
	Slot int
	Lit  int64
}

func none() Operand           { return Operand{Kind: OperandNone} }
func reg(r Reg) Operand       { return Operand{Kind: OperandReg, Reg: r} }
func slot(i int) Operand      { return Operand{Kind: OperandSlot, Slot: i} }
func lit(k int64) Operand     { return Operand{Kind: OperandLit, Lit: k} }
func fdataRef(i int) Operand  { return Operand{Kind: OperandFData, Slot: i} }
func cdataRef(i int) Operand  { return Operand{Kind: OperandCData, Slot: i} }

// Instr is one assembled instruction. A JMP carries its condition in A.Lit
// and its PC-relative branch displacement in B.Lit; displacements are
// resolved by the time Assemble returns.
type Instr struct {
	Op   Op
	A, B Operand
}

// Program is the assembled, immutable artifact the vm package executes
// (§4.4, §6 "Program serialization").
type Program struct {
	ID uuid.UUID

	Code []Instr

	// FrameEntry[i] is the PC of frame i's PROC instruction; frame 0 is the
	// entry point.
	FrameEntry []int

	FData []float64
	CData []int64
	DFAs  []DFATable

	// SplitTables[i] holds the frame indices a SPLIT/SPLITV instruction's
	// operand i fans out to, resolved against FrameEntry at Run time.
	SplitTables [][]int
}

// DFATable is the on-disk form of one automaton.Table (§4.4's dfas pool).
type DFATable struct {
	Start       int
	Offs        []uint32
	Transitions []uint32
	Endstates   []uint32
}

// Assemble walks every linearized frame of p (ir.Translate followed by
// linearize.Run) and emits one Program. Frames must already be linearized:
// Frame.Entry set, Frame.Stmts a pseudo-topological []*ir.Block list.
func Assemble(p *ir.Program) (*Program, error) {
	a := &asmState{
		prog:      &Program{ID: uuid.New()},
		frameIdx:  map[*ir.Frame]int{},
		blockPC:   map[*ir.Block]int{},
		fdataIdx:  map[float64]int{},
		cdataIdx:  map[int64]int{},
		matcherID: map[*ir.Matcher]int{},
		splitIdx:  map[*ir.Splitlist]int{},
	}
	for i, f := range p.Frames {
		a.frameIdx[f] = i
	}
	for _, f := range p.Frames {
		if err := a.assembleFrame(f); err != nil {
			return nil, err
		}
	}
	if err := a.resolveFixups(); err != nil {
		return nil, err
	}
	return a.prog, nil
}

type fixup struct {
	pc      int    // index into a.prog.Code
	operand int    // 0 = A, 1 = B
	target  *ir.Block
}

type asmState struct {
	prog *Program

	frameIdx map[*ir.Frame]int
	blockPC  map[*ir.Block]int

	fdataIdx  map[float64]int
	cdataIdx  map[int64]int
	matcherID map[*ir.Matcher]int
	splitIdx  map[*ir.Splitlist]int

	fixups []fixup

	// per-frame state, reset at the start of assembleFrame
	counterSlot map[*ir.Counter]int
	bitvecSlot  map[*ir.Bitvector]int
	tempBase    int
	nextSlot    int
}

// allocSlot hands out the next free slot in the current frame, for runtime
// scratch values (materialized float/int constants, BTEST masks) that don't
// correspond to a Counter or Bitvector declaration.
func (a *asmState) allocSlot() int {
	s := a.nextSlot
	a.nextSlot++
	return s
}

func (a *asmState) emit(in Instr) int {
	pc := len(a.prog.Code)
	a.prog.Code = append(a.prog.Code, in)
	return pc
}

func (a *asmState) fdata(v float64) int {
	if i, ok := a.fdataIdx[v]; ok {
		return i
	}
	i := len(a.prog.FData)
	a.prog.FData = append(a.prog.FData, v)
	a.fdataIdx[v] = i
	return i
}

func (a *asmState) cdata(v int64) int {
	if i, ok := a.cdataIdx[v]; ok {
		return i
	}
	i := len(a.prog.CData)
	a.prog.CData = append(a.prog.CData, v)
	a.cdataIdx[v] = i
	return i
}

func (a *asmState) dfa(d ir.DFA) (int, error) {
	t, ok := d.(interface {
		NStates() int
		Encode() (offs, transitions, endstates []uint32)
	})
	if !ok {
		return 0, fmt.Errorf("asm: matcher DFA %T does not expose Encode (expected *automaton.Table)", d)
	}
	offs, transitions, endstates := t.Encode()
	idx := len(a.prog.DFAs)
	a.prog.DFAs = append(a.prog.DFAs, DFATable{
		Offs: offs, Transitions: transitions, Endstates: endstates,
	})
	return idx, nil
}

func (a *asmState) matcher(m *ir.Matcher) (int, error) {
	if idx, ok := a.matcherID[m]; ok {
		return idx, nil
	}
	idx, err := a.dfa(m.DFA)
	if err != nil {
		return 0, err
	}
	a.matcherID[m] = idx
	return idx, nil
}

// assembleFrame emits PROC plus every block in order, recording each
// block's PC and deferring branch targets to fixups resolved once every
// frame (hence every PC) is known.
func (a *asmState) assembleFrame(f *ir.Frame) error {
	a.counterSlot = map[*ir.Counter]int{}
	a.bitvecSlot = map[*ir.Bitvector]int{}
	a.nextSlot = 0
	for _, c := range f.Counters {
		a.counterSlot[c] = a.allocSlot()
	}
	for _, bv := range f.Bitvecs {
		a.bitvecSlot[bv] = a.allocSlot()
	}
	a.tempBase = a.nextSlot
	for i := 0; i < f.NTemps; i++ {
		a.allocSlot()
	}

	entryPC := a.emit(Instr{Op: OpProc})
	a.prog.FrameEntry = append(a.prog.FrameEntry, entryPC)

	for _, s := range f.Stmts {
		blk, ok := s.(*ir.Block)
		if !ok {
			return fmt.Errorf("asm: frame %q statement list is not linearized (got %T, want *ir.Block)", f.Name, s)
		}
		a.blockPC[blk] = len(a.prog.Code)
		if err := a.assembleBlock(f, blk); err != nil {
			return err
		}
	}
	// nslots wasn't known until every scratch slot BTEST/constant-loading
	// needed while assembling the body had been allocated.
	a.prog.Code[entryPC].A = lit(int64(a.nextSlot))
	return nil
}

func (a *asmState) assembleBlock(f *ir.Frame, b *ir.Block) error {
	for _, s := range b.Stmts {
		if err := a.assembleStmt(f, s); err != nil {
			return err
		}
	}
	return nil
}

// branch emits a JMP ALWAYS to target, deferring resolution to a fixup.
func (a *asmState) branch(target *ir.Block) {
	pc := a.emit(Instr{Op: OpJmp, A: lit(int64(CondAlways))})
	a.fixups = append(a.fixups, fixup{pc: pc, operand: 1, target: target})
}

// cbranch emits the conditional JMP to t for a resolved leaf condition
// (taken when trueCond holds), followed by an unconditional JMP to f. No
// fallthrough elision is done: the JMP to f is emitted even when f is the
// very next block to be assembled, which is harmless since the vm simply
// executes it.
func (a *asmState) cbranch(trueCond Cond, t, f *ir.Block) {
	pc := a.emit(Instr{Op: OpJmp, A: lit(int64(trueCond))})
	a.fixups = append(a.fixups, fixup{pc: pc, operand: 1, target: t})
	a.branch(f)
}

func (a *asmState) resolveFixups() error {
	for _, fx := range a.fixups {
		pc, ok := a.blockPC[fx.target]
		if !ok {
			return fmt.Errorf("asm: branch target block %q never assembled", fx.target.Label)
		}
		disp := int64(pc - (fx.pc + 1))
		switch fx.operand {
		case 0:
			a.prog.Code[fx.pc].A = lit(disp)
		case 1:
			a.prog.Code[fx.pc].B = lit(disp)
		}
	}
	return nil
}

// assembleStmt emits the instruction(s) for one post-linearize Stmt. Block/
// Branch/CBranch are the only control-flow forms reaching here; every other
// case is one of translate.go's atomic statements.
func (a *asmState) assembleStmt(f *ir.Frame, s ir.Stmt) error {
	switch v := s.(type) {
	case *ir.Branch:
		a.branch(v.To)
		return nil
	case *ir.CBranch:
		return a.assembleCBranch(f, v)
	case ir.ValidStmt:
		a.emit(Instr{Op: OpReturn, A: lit(0)})
		return nil
	case ir.InvalidStmt:
		a.emit(Instr{Op: OpReturn, A: lit(int64(v.Code))})
		return nil
	case ir.Token:
		if v.N == -1 {
			a.emit(Instr{Op: OpTokenBack})
		} else {
			a.emit(Instr{Op: OpToken})
		}
		return nil
	case ir.Consume:
		a.emit(Instr{Op: OpConsume})
		return nil
	case *ir.Incr:
		a.emit(Instr{Op: OpIncr, A: slot(a.counterSlot[v.Counter]), B: lit(int64(v.K))})
		return nil
	case *ir.Decr:
		a.emit(Instr{Op: OpIncr, A: slot(a.counterSlot[v.Counter]), B: lit(-int64(v.K))})
		return nil
	case *ir.Bset:
		a.emit(Instr{Op: OpBSet, A: slot(a.bitvecSlot[v.Bitvec]), B: lit(int64(v.Bit))})
		return nil
	case *ir.Bclear:
		// No dedicated BCLEAR opcode (§4.4); clearing is BAND against every
		// bit but the one to clear, over the bitvector's declared width.
		mask := ^(int64(1) << uint(v.Bit))
		mask &= (int64(1) << uint(v.Bitvec.NBits)) - 1
		a.emit(Instr{Op: OpBAnd, A: slot(a.bitvecSlot[v.Bitvec]), B: lit(mask)})
		return nil
	case *ir.Move:
		src, err := a.compileOperand(f, v.Src)
		if err != nil {
			return err
		}
		dst, err := a.compileOperand(f, v.Dst)
		if err != nil {
			return err
		}
		a.emit(Instr{Op: OpMove, A: dst, B: src})
		return nil
	case *ir.Call:
		idx, ok := a.frameIdx[v.Frame]
		if !ok {
			return fmt.Errorf("asm: CALL target frame %q not part of this program", v.Frame.Name)
		}
		a.emit(Instr{Op: OpCall, A: lit(int64(idx))})
		return nil
	case *ir.Splitvec:
		idx, err := a.splitlist(v.List)
		if err != nil {
			return err
		}
		a.emit(Instr{Op: OpSplitV, A: lit(int64(idx)), B: slot(a.bitvecSlot[v.Bitvec])})
		return nil
	default:
		return fmt.Errorf("asm: unexpected post-linearize statement %T", s)
	}
}

func (a *asmState) splitlist(sl *ir.Splitlist) (int, error) {
	if idx, ok := a.splitIdx[sl]; ok {
		return idx, nil
	}
	frames := make([]int, len(sl.Frames))
	for i, fr := range sl.Frames {
		idx, ok := a.frameIdx[fr]
		if !ok {
			return 0, fmt.Errorf("asm: split sub-frame %q not part of this program", fr.Name)
		}
		frames[i] = idx
	}
	idx := len(a.prog.SplitTables)
	a.prog.SplitTables = append(a.prog.SplitTables, frames)
	a.splitIdx[sl] = idx
	return idx, nil
}

// assembleCBranch resolves the one CBRANCH form linearize.lowerCond leaves
// for the assembler: a leaf boolean expression (Cmp/IsTok/IsInt/Btest/
// Split/MatchExpr-backed comparison) plus its T/F targets.
func (a *asmState) assembleCBranch(f *ir.Frame, v *ir.CBranch) error {
	trueCond, err := a.compileCond(f, v.Cond)
	if err != nil {
		return err
	}
	a.cbranch(trueCond, v.T, v.F)
	return nil
}
