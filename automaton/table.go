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

package automaton

// state is one DFA node: trans[b] is the next state on byte b, or -1.
type state struct {
	trans  [256]int
	accept bool
	caseID uint32
}

// Table is a concrete, explicit-transition DFA. It is the only DFA
// implementation the core assembler needs to know how to encode (see
// Encode); regexp compilers (goregexp, or any other) produce a *Table.
type Table struct {
	states  []state
	startID int
}

func (t *Table) stateTable() []state { return t.states }
func (t *Table) start() int      { return t.startID }

// Run executes the DFA over s and returns the case identifier of the
// accepting state reached by consuming all of s, if any.
func (t *Table) Run(s []byte) (uint32, bool) {
	cur := t.startID
	for _, b := range s {
		cur = t.states[cur].trans[b]
		if cur < 0 {
			return 0, false
		}
	}
	st := t.states[cur]
	if !st.accept {
		return 0, false
	}
	return st.caseID, true
}

// Literal builds a DFA that accepts exactly one string, with case id 1.
func Literal(s string) *Table {
	t := &Table{}
	cur := 0
	t.states = append(t.states, state{trans: newDeadTrans()})
	for i := 0; i < len(s); i++ {
		next := len(t.states)
		t.states = append(t.states, state{trans: newDeadTrans()})
		t.states[cur].trans[s[i]] = next
		cur = next
	}
	t.states[cur].accept = true
	t.states[cur].caseID = 1
	return t
}

// NStates reports the number of DFA states, for data-pool layout (§4.4).
func (t *Table) NStates() int { return len(t.states) }

// Edges returns, for state i, the list of (label, dest) pairs with dest>=0 —
// the encoding the program's dfas pool uses (§4.4: "transitions[2*nedges]
// pairs (label,dest)").
func (t *Table) Edges(i int) [][2]int {
	var out [][2]int
	for b, to := range t.states[i].trans {
		if to >= 0 {
			out = append(out, [2]int{b, to})
		}
	}
	return out
}

// Accept reports whether state i is accepting and, if so, its case id.
func (t *Table) Accept(i int) (uint32, bool) {
	return t.states[i].caseID, t.states[i].accept
}

// Encode lays the DFA out as the triple described in §4.4: a prefix-summed
// offsets array, a flat (label,dest) transitions array, and a flat
// (state,case_id) endstates array.
func (t *Table) Encode() (offs []uint32, transitions []uint32, endstates []uint32) {
	offs = make([]uint32, len(t.states)+1)
	for i := range t.states {
		edges := t.Edges(i)
		offs[i+1] = offs[i] + uint32(len(edges))
		for _, e := range edges {
			transitions = append(transitions, uint32(e[0]), uint32(e[1]))
		}
	}
	for i, st := range t.states {
		if st.accept {
			endstates = append(endstates, uint32(i), st.caseID)
		}
	}
	return offs, transitions, endstates
}

// Decode reconstructs a Table from the Encode triple plus a start state.
func Decode(start int, offs, transitions, endstates []uint32) *Table {
	n := len(offs) - 1
	t := &Table{startID: start, states: make([]state, n)}
	for i := range t.states {
		t.states[i].trans = newDeadTrans()
		lo, hi := offs[i], offs[i+1]
		for e := lo; e < hi; e++ {
			label := transitions[2*e]
			dest := transitions[2*e+1]
			t.states[i].trans[label] = int(dest)
		}
	}
	for e := 0; e+1 < len(endstates); e += 2 {
		st := endstates[e]
		t.states[st].accept = true
		t.states[st].caseID = endstates[e+1]
	}
	return t
}
