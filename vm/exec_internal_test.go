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

package vm

import (
	"testing"

	"github.com/katef/jvst-sub001/asm"
)

func TestEvalCond(t *testing.T) {
	cases := []struct {
		cond  asm.Cond
		delta int
		want  bool
	}{
		{asm.CondEQ, 0, true},
		{asm.CondEQ, 1, false},
		{asm.CondNE, 1, true},
		{asm.CondNE, 0, false},
		{asm.CondLT, -1, true},
		{asm.CondLT, 0, false},
		{asm.CondLE, 0, true},
		{asm.CondGT, 1, true},
		{asm.CondGE, 0, true},
		{asm.CondAlways, 0, true},
		{asm.CondNever, 0, false},
	}
	for _, c := range cases {
		if got := evalCond(c.cond, c.delta); got != c.want {
			t.Errorf("evalCond(%v, %d) = %v, want %v", c.cond, c.delta, got, c.want)
		}
	}
}

func TestRunDFA(t *testing.T) {
	// Two literal strings sharing a prefix: "id" (case 1) and "ident" (case 2).
	d := asm.DFATable{
		Start: 0,
		// state 0: 'i' -> 1
		// state 1: 'd' -> 2
		// state 2: 'e' -> 3 (continuing toward "ident")
		// state 3: 'n' -> 4
		// state 4: 't' -> 5
		Offs: []uint32{0, 1, 2, 3, 4, 5, 5},
		Transitions: []uint32{
			'i', 1,
			'd', 2,
			'e', 3,
			'n', 4,
			't', 5,
		},
		Endstates: []uint32{2, 1, 5, 2},
	}
	if caseID, ok := runDFA(d, []byte("id")); !ok || caseID != 1 {
		t.Errorf("runDFA(id) = (%d, %v), want (1, true)", caseID, ok)
	}
	if caseID, ok := runDFA(d, []byte("ident")); !ok || caseID != 2 {
		t.Errorf("runDFA(ident) = (%d, %v), want (2, true)", caseID, ok)
	}
	if _, ok := runDFA(d, []byte("ide")); ok {
		t.Error("runDFA(ide) should not accept (state 3 is not an endstate)")
	}
	if _, ok := runDFA(d, []byte("xyz")); ok {
		t.Error("runDFA(xyz) should not accept (no transition on 'x')")
	}
}
