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

// Package vm executes an assembled asm.Program against an incremental
// token.Stream (§4.5). The dispatch loop is grounded on interp.go's
// opfn-table portable bytecode loop, generalized from vectorized lane
// registers to the validator's four scalar registers (TT/TNUM/TLEN/M) plus
// per-frame slots, and from a single flat program to one that suspends and
// resumes across CALL/SPLIT boundaries as input arrives in chunks.
//
// Suspension is modeled with a goroutine per in-flight machine (and one more
// per active SPLIT/SPLITV branch): each blocks on a channel receive when it
// needs another token the caller hasn't supplied yet, instead of threading
// an explicit resumable stack through the interpreter by hand.
package vm

import (
	"fmt"
	"math"
	"strconv"

	"github.com/katef/jvst-sub001/asm"
	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/token"
)

// Status reports what a Machine is doing right now (§4.5.1).
type Status uint8

const (
	Running Status = iota
	SuspendedForMoreInput
	Finished
)

// Result is what Feed/Run hands back after driving the machine as far as it
// can go with the input supplied so far.
type Result struct {
	Status Status
	Code   errcode.Code // meaningful once Status == Finished
}

func (r Result) String() string {
	switch r.Status {
	case SuspendedForMoreInput:
		return "suspended"
	case Finished:
		return "finished: " + r.Code.String()
	default:
		return "running"
	}
}

// Machine runs one asm.Program instance against one token.Stream. A Machine
// is single-use: construct one per document.
type Machine struct {
	prog   *asm.Program
	stream token.Stream

	feedCh    chan []byte
	needMore  chan struct{}
	resultCh  chan Result
	started   bool
	lastCode  errcode.Code
	lastState Status
}

// New builds a Machine that will validate tokens pulled from stream as
// Feed delivers input bytes to it.
func New(prog *asm.Program, stream token.Stream) *Machine {
	return &Machine{
		prog:     prog,
		stream:   stream,
		feedCh:   make(chan []byte),
		needMore: make(chan struct{}),
		resultCh: make(chan Result, 1),
	}
}

// vmHalt unwinds the interpreter goroutine on a hard tokenizer error;
// recovered at the top of run.
type vmHalt struct{ code errcode.Code }

// Feed appends data for the tokenizer to resume on and runs the machine
// until it either needs more input, finishes, or the program is already
// done (in which case the cached Result is returned again).
func (m *Machine) Feed(data []byte) Result {
	if m.lastState == Finished {
		return Result{Status: Finished, Code: m.lastCode}
	}
	if !m.started {
		m.started = true
		go m.run()
	} else {
		<-m.needMore // wait for the interpreter to actually be blocked
	}
	m.feedCh <- data
	r := <-m.resultCh
	m.lastState = r.Status
	m.lastCode = r.Code
	return r
}

// Start kicks the machine off without feeding anything, for documents whose
// tokenizer already has a full buffer (token.Stream implementations that
// never report token.More).
func (m *Machine) Start() Result {
	m.started = true
	go m.run()
	r := <-m.resultCh
	m.lastState = r.Status
	m.lastCode = r.Code
	return r
}

func (m *Machine) run() {
	defer func() {
		if p := recover(); p != nil {
			if h, ok := p.(vmHalt); ok {
				m.resultCh <- Result{Status: Finished, Code: h.code}
				return
			}
			panic(p)
		}
	}()
	code := m.execFrame(0, &rootSource{m: m}, &regs{})
	m.resultCh <- Result{Status: Finished, Code: code}
}

// regs holds the VM's four fixed registers (§4.5) for one thread of
// execution (the root program, or one SPLIT/SPLITV branch); threads never
// share a *regs: SPLIT/SPLITV branches receive the same tokens in lockstep
// but each keeps its own register values.
type regs struct {
	tt   token.Kind
	tnum float64
	tlen int
	text string
	m    uint32
}

// tokenSource is how an execFrame call gets its next token: either directly
// from the real stream (suspending the whole Machine when starved) or from
// a SPLIT dispatcher feeding one shared event to every still-running
// branch in lockstep.
type tokenSource interface {
	next() token.Event
}

type rootSource struct {
	m        *Machine
	pushback *token.Event
}

func (r *rootSource) next() token.Event {
	if r.pushback != nil {
		ev := *r.pushback
		r.pushback = nil
		return ev
	}
	for {
		ev, status := r.m.stream.Next()
		switch status {
		case token.Ok:
			return ev
		case token.Partial:
			continue
		case token.More:
			r.m.needMore <- struct{}{}
			data := <-r.m.feedCh
			r.m.stream.Feed(data)
		case token.Error:
			panic(vmHalt{code: errcode.InvalidString})
		default:
			panic(fmt.Sprintf("vm: unknown token status %d", status))
		}
	}
}

// execFrame runs frameIdx's instructions to completion (a RETURN), using
// src for every TOKEN this frame or anything it CALLs performs, and rg as
// the shared register file for this thread of execution. CALL recurses
// directly into execFrame, so the Go call stack doubles as the VM's
// activation stack.
func (m *Machine) execFrame(frameIdx int, src tokenSource, rg *regs) errcode.Code {
	entry := m.prog.FrameEntry[frameIdx]
	nslots := int(m.prog.Code[entry].A.Lit)
	slots := make([]int64, nslots)
	pc := entry + 1
	var cmpDelta int

	readInt := func(op asm.Operand) int64 {
		switch op.Kind {
		case asm.OperandLit:
			return op.Lit
		case asm.OperandSlot:
			return slots[op.Slot]
		case asm.OperandCData:
			return m.prog.CData[op.Slot]
		case asm.OperandFData:
			return int64(m.prog.FData[op.Slot])
		case asm.OperandReg:
			return int64(m.readReg(op.Reg, rg))
		default:
			panic(fmt.Sprintf("vm: operand kind %d has no integer value", op.Kind))
		}
	}
	readFloat := func(op asm.Operand) float64 {
		switch op.Kind {
		case asm.OperandLit:
			return float64(op.Lit)
		case asm.OperandFData:
			return m.prog.FData[op.Slot]
		case asm.OperandCData:
			return float64(m.prog.CData[op.Slot])
		case asm.OperandSlot:
			return math.Float64frombits(uint64(slots[op.Slot]))
		case asm.OperandReg:
			if op.Reg == asm.RegTNUM {
				return rg.tnum
			}
			return float64(m.readReg(op.Reg, rg))
		default:
			panic(fmt.Sprintf("vm: operand kind %d has no float value", op.Kind))
		}
	}
	writeSlot := func(op asm.Operand, v int64) {
		if op.Kind != asm.OperandSlot {
			panic("vm: MOVE destination is not a slot")
		}
		slots[op.Slot] = v
	}

	for {
		in := m.prog.Code[pc]
		switch in.Op {
		case asm.OpReturn:
			return errcode.Code(in.A.Lit)

		case asm.OpJmp:
			cond := asm.Cond(in.A.Lit)
			if evalCond(cond, cmpDelta) {
				pc = pc + 1 + int(in.B.Lit)
			} else {
				pc++
			}
			continue

		case asm.OpICmp:
			cmpDelta = sign64(readInt(in.A) - readInt(in.B))

		case asm.OpFCmp:
			cmpDelta = signf(readFloat(in.A) - readFloat(in.B))

		case asm.OpFInt:
			x := readFloat(in.A)
			ok := x == math.Trunc(x)
			if ok && in.B.Kind != asm.OperandNone {
				d := readFloat(in.B)
				ok = d != 0 && math.Mod(x, d) == 0
			}
			if ok {
				cmpDelta = 1
			} else {
				cmpDelta = 0
			}

		case asm.OpToken:
			ev := src.next()
			rg.tt = ev.Kind
			rg.text = ev.Text
			rg.tlen = len(ev.Text)
			if ev.Kind == token.Number {
				f, err := strconv.ParseFloat(ev.Text, 64)
				if err != nil {
					return errcode.Number
				}
				rg.tnum = f
			}

		case asm.OpTokenBack:
			if rs, ok := src.(*rootSource); ok {
				ev := token.Event{Kind: rg.tt, Text: rg.text, Complete: true}
				rs.pushback = &ev
			}

		case asm.OpConsume:
			m.doConsume(rg, src)

		case asm.OpMatch:
			d := m.prog.DFAs[in.A.Lit]
			caseID, ok := runDFA(d, []byte(rg.text))
			if !ok {
				caseID = 0
			}
			rg.m = caseID

		case asm.OpMove, asm.OpFLoad, asm.OpILoad:
			writeSlot(in.A, readInt(in.B))

		case asm.OpIncr:
			writeSlot(in.A, slots[in.A.Slot]+in.B.Lit)

		case asm.OpBSet:
			writeSlot(in.A, slots[in.A.Slot]|(int64(1)<<uint(in.B.Lit)))

		case asm.OpBAnd:
			writeSlot(in.A, slots[in.A.Slot]&in.B.Lit)

		case asm.OpCall:
			code := m.execFrame(int(in.A.Lit), src, rg)
			rg.m = uint32(code)

		case asm.OpSplit:
			list := m.prog.SplitTables[in.A.Lit]
			count, _ := m.runSplit(list, src)
			writeSlot(in.B, int64(count))

		case asm.OpSplitV:
			list := m.prog.SplitTables[in.A.Lit]
			_, perBranch := m.runSplit(list, src)
			var bits int64
			for i, ok := range perBranch {
				if ok {
					bits |= int64(1) << uint(i)
				}
			}
			writeSlot(in.B, bits)

		default:
			panic(fmt.Sprintf("vm: unimplemented opcode %s", in.Op))
		}
		pc++
	}
}

func (m *Machine) readReg(r asm.Reg, rg *regs) uint32 {
	switch r {
	case asm.RegTT:
		return uint32(rg.tt)
	case asm.RegTLEN:
		return uint32(rg.tlen)
	case asm.RegM:
		return rg.m
	case asm.RegTNUM:
		return uint32(int64(rg.tnum))
	default:
		panic(fmt.Sprintf("vm: unknown register %d", r))
	}
}

func evalCond(c asm.Cond, delta int) bool {
	switch c {
	case asm.CondEQ:
		return delta == 0
	case asm.CondNE:
		return delta != 0
	case asm.CondLT:
		return delta < 0
	case asm.CondLE:
		return delta <= 0
	case asm.CondGT:
		return delta > 0
	case asm.CondGE:
		return delta >= 0
	case asm.CondAlways:
		return true
	case asm.CondNever:
		return false
	default:
		panic(fmt.Sprintf("vm: unknown branch condition %d", c))
	}
}

func sign64(d int64) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

func signf(d float64) int {
	switch {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// doConsume skips the current value (CONSUME, §4.4): nothing to do for a
// scalar (already fully read by the preceding TOKEN), and for an open
// container it reads tokens until the matching close at depth 0.
func (m *Machine) doConsume(rg *regs, src tokenSource) {
	switch rg.tt {
	case token.ObjectBegin, token.ArrayBegin:
		depth := 1
		for depth > 0 {
			ev := src.next()
			switch ev.Kind {
			case token.ObjectBegin, token.ArrayBegin:
				depth++
			case token.ObjectEnd, token.ArrayEnd:
				depth--
			}
		}
	}
}

// runDFA walks an assembled DFATable over s (the VM-side twin of
// automaton.Table.Run, operating on the serialized offs/transitions/
// endstates triple instead of the in-memory Table).
func runDFA(d asm.DFATable, s []byte) (uint32, bool) {
	cur := uint32(d.Start)
	for _, b := range s {
		lo, hi := d.Offs[cur], d.Offs[cur+1]
		next := int64(-1)
		for e := lo; e < hi; e++ {
			if d.Transitions[2*e] == uint32(b) {
				next = int64(d.Transitions[2*e+1])
				break
			}
		}
		if next < 0 {
			return 0, false
		}
		cur = uint32(next)
	}
	for i := 0; i+1 < len(d.Endstates); i += 2 {
		if d.Endstates[i] == cur {
			return d.Endstates[i+1], true
		}
	}
	return 0, false
}
