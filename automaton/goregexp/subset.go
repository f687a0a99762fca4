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

package goregexp

import (
	"sort"

	"github.com/katef/jvst-sub001/automaton"
)

// epsClosure returns the sorted, deduped set of states reachable from any
// state in ids via epsilon edges only.
func epsClosure(states []nfaState, ids []int) []int {
	seen := map[int]bool{}
	stack := append([]int(nil), ids...)
	for _, id := range ids {
		seen[id] = true
	}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range states[id].eps {
			if !seen[e] {
				seen[e] = true
				stack = append(stack, e)
			}
		}
	}
	out := make([]int, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}

func setKey(ids []int) string {
	b := make([]byte, 0, 4*len(ids))
	for _, id := range ids {
		b = append(b, byte(id), byte(id>>8), byte(id>>16), byte(id>>24))
	}
	return string(b)
}

// subsetConstruct performs the classic NFA-to-DFA powerset construction
// (regexp2/autom.Nfa2Dfa.go), producing a single-pattern automaton.Table
// whose sole accepting case id is 1 (matching automaton.Literal's
// convention).
func subsetConstruct(states []nfaState, start int) *automaton.Table {
	// exported via encode round-trip: build via Decode so we reuse
	// automaton's table representation without exposing internals.
	type dstate struct {
		ids []int
	}
	d0 := epsClosure(states, []int{start})
	order := [][]int{d0}
	seen := map[string]int{setKey(d0): 0}

	var offs []uint32
	var transitions []uint32
	var endstates []uint32

	for qi := 0; qi < len(order); qi++ {
		ids := order[qi]
		accept := false
		for _, id := range ids {
			if states[id].accept {
				accept = true
			}
		}
		if accept {
			endstates = append(endstates, uint32(qi), 1)
		}
		var edges [][2]int
		for b := 0; b < 256; b++ {
			var next []int
			for _, id := range ids {
				for _, e := range states[id].trans {
					if byte(b) >= e.lo && byte(b) <= e.hi {
						next = append(next, e.to)
					}
				}
			}
			if len(next) == 0 {
				continue
			}
			closure := epsClosure(states, next)
			k := setKey(closure)
			nid, ok := seen[k]
			if !ok {
				nid = len(order)
				seen[k] = nid
				order = append(order, closure)
			}
			edges = append(edges, [2]int{b, nid})
		}
		offs = append(offs, uint32(len(transitions)/2))
		for _, e := range edges {
			transitions = append(transitions, uint32(e[0]), uint32(e[1]))
		}
	}
	offs = append(offs, uint32(len(transitions)/2))
	return automaton.Decode(0, offs, transitions, endstates)
}
