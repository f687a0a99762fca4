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

// Package automaton defines the contract between the assembler and the
// regexp-to-DFA engine. The regex compiler itself is an external
// collaborator; this package fixes the DFA shape the assembler's data
// pools encode, and the case-identifier semantics the MATCH opcode relies
// on.
package automaton

// DFA matches a byte string and reports the opaque case identifier of the
// accepting state reached, if any.
type DFA interface {
	Run(s []byte) (caseID uint32, ok bool)
	// stateTable and start expose the transition table and start state
	// that Union walks. Only *Table implements them; the assembler lays a
	// *Table out into the program's data pool through NStates and Encode.
	stateTable() []state
	start() int
}

// Union combines several DFAs that all read the same input into a single
// DFA via product construction. The result's case identifiers are bitmasks
// over the input slice's indices: bit i is set in the result's case id iff
// dfas[i] itself would have accepted. A bitmask of 0 means none of the
// inputs accepted (the MATCH opcode's "no match" / default case).
//
// This mirrors regexp2's NFA-to-DFA subset construction (see
// regexp2/autom.Nfa2Dfa.go) generalized to a simultaneous product of
// several automata rather than the powerset of one NFA, so that
// canonification (§4.1) can union property-name matchers into one dispatch
// DFA while keeping track of which original matcher(s) fired.
func Union(dfas []DFA) *Table {
	if len(dfas) == 0 {
		return &Table{states: []state{{trans: newDeadTrans()}}, startID: 0}
	}
	if len(dfas) > 32 {
		panic("automaton: Union supports at most 32 inputs")
	}

	type combo struct {
		ids []int
	}
	key := func(ids []int) string {
		b := make([]byte, 0, 4*len(ids))
		for _, id := range ids {
			b = append(b, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
		}
		return string(b)
	}

	starts := make([]int, len(dfas))
	for i, d := range dfas {
		starts[i] = d.start()
	}

	out := &Table{}
	seen := map[string]int{}
	order := []combo{{ids: starts}}
	seen[key(starts)] = 0
	out.states = append(out.states, state{trans: newDeadTrans()})
	out.startID = 0

	for qi := 0; qi < len(order); qi++ {
		ids := order[qi].ids
		var mask uint32
		for i, d := range dfas {
			ss := d.stateTable()
			if ids[i] >= 0 && ss[ids[i]].accept {
				mask |= 1 << uint(i)
			}
		}
		if mask != 0 {
			out.states[qi].accept = true
			out.states[qi].caseID = mask
		}
		for b := 0; b < 256; b++ {
			next := make([]int, len(dfas))
			dead := true
			for i, d := range dfas {
				to := -1
				if ids[i] >= 0 {
					to = d.stateTable()[ids[i]].trans[b]
				}
				next[i] = to
				if to >= 0 {
					dead = false
				}
			}
			if dead {
				continue
			}
			k := key(next)
			nid, ok := seen[k]
			if !ok {
				nid = len(order)
				seen[k] = nid
				order = append(order, combo{ids: next})
				out.states = append(out.states, state{trans: newDeadTrans()})
			}
			out.states[qi].trans[b] = nid
		}
	}
	return out
}

func newDeadTrans() [256]int {
	var t [256]int
	for i := range t {
		t[i] = -1
	}
	return t
}
