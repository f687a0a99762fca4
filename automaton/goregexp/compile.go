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

// Package goregexp is a reference implementation of the automaton.DFA
// contract, built on the stdlib's regexp/syntax parser instead of a
// hand-rolled one, since regex-engine internals are out of the core's
// scope. The NFA-to-DFA shape (Thompson
// construction followed by subset construction) is grounded on
// regexp2/autom.Nfa2Dfa.go and regexp2/autom.NodeDfa.go, simplified to a
// byte alphabet and full-match semantics (property names, not arbitrary
// text search).
package goregexp

import (
	"fmt"
	"regexp/syntax"

	"github.com/katef/jvst-sub001/automaton"
)

// Compile builds a full-match DFA for pattern, using ECMA/POSIX-ish syntax
// as supported by regexp/syntax.Parse.
func Compile(pattern string) (*automaton.Table, error) {
	re, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("goregexp: %w", err)
	}
	re = re.Simplify()
	b := &nfaBuilder{}
	start, end := b.compile(re)
	b.states[end].accept = true
	return subsetConstruct(b.states, start), nil
}

// nfaState is an epsilon-NFA node: eps are epsilon transitions, trans are
// byte-range transitions (min,max,to).
type nfaState struct {
	eps    []int
	trans  []byteEdge
	accept bool
}

type byteEdge struct {
	lo, hi byte
	to     int
}

type nfaBuilder struct {
	states []nfaState
}

func (b *nfaBuilder) newState() int {
	b.states = append(b.states, nfaState{})
	return len(b.states) - 1
}

func (b *nfaBuilder) addEps(from, to int) {
	b.states[from].eps = append(b.states[from].eps, to)
}

// compile returns (start, end): end is a dangling accept-less state that
// the caller should wire up to whatever follows (classic Thompson
// construction, single-out-state variant).
func (b *nfaBuilder) compile(re *syntax.Regexp) (int, int) {
	switch re.Op {
	case syntax.OpEmptyMatch, syntax.OpBeginLine, syntax.OpEndLine,
		syntax.OpBeginText, syntax.OpEndText, syntax.OpWordBoundary,
		syntax.OpNoWordBoundary:
		s := b.newState()
		return s, s
	case syntax.OpLiteral:
		start := b.newState()
		cur := start
		for _, r := range re.Rune {
			next := b.newState()
			lo, hi := runeByteRange(r)
			b.states[cur].trans = append(b.states[cur].trans, byteEdge{lo, hi, next})
			cur = next
		}
		return start, cur
	case syntax.OpCharClass:
		start := b.newState()
		end := b.newState()
		for i := 0; i+1 < len(re.Rune); i += 2 {
			lo, _ := runeByteRange(re.Rune[i])
			_, hi := runeByteRange(re.Rune[i+1])
			b.states[start].trans = append(b.states[start].trans, byteEdge{lo, hi, end})
		}
		return start, end
	case syntax.OpAnyChar, syntax.OpAnyCharNotNL:
		start := b.newState()
		end := b.newState()
		b.states[start].trans = append(b.states[start].trans, byteEdge{0, 255, end})
		return start, end
	case syntax.OpCapture:
		return b.compile(re.Sub[0])
	case syntax.OpConcat:
		if len(re.Sub) == 0 {
			s := b.newState()
			return s, s
		}
		start, cur := b.compile(re.Sub[0])
		for _, sub := range re.Sub[1:] {
			s2, e2 := b.compile(sub)
			b.addEps(cur, s2)
			cur = e2
		}
		return start, cur
	case syntax.OpAlternate:
		start := b.newState()
		end := b.newState()
		for _, sub := range re.Sub {
			s, e := b.compile(sub)
			b.addEps(start, s)
			b.addEps(e, end)
		}
		return start, end
	case syntax.OpStar:
		start := b.newState()
		end := b.newState()
		s, e := b.compile(re.Sub[0])
		b.addEps(start, s)
		b.addEps(start, end)
		b.addEps(e, s)
		b.addEps(e, end)
		return start, end
	case syntax.OpPlus:
		s, e := b.compile(re.Sub[0])
		end := b.newState()
		b.addEps(e, s)
		b.addEps(e, end)
		return s, end
	case syntax.OpQuest:
		start := b.newState()
		end := b.newState()
		s, e := b.compile(re.Sub[0])
		b.addEps(start, s)
		b.addEps(start, end)
		b.addEps(e, end)
		return start, end
	case syntax.OpRepeat:
		return b.compileRepeat(re)
	case syntax.OpNoMatch:
		s := b.newState()
		e := b.newState()
		return s, e // no path from s to e
	default:
		s := b.newState()
		return s, s
	}
}

func (b *nfaBuilder) compileRepeat(re *syntax.Regexp) (int, int) {
	min, max := re.Min, re.Max
	start := b.newState()
	cur := start
	for i := 0; i < min; i++ {
		s, e := b.compile(re.Sub[0])
		b.addEps(cur, s)
		cur = e
	}
	if max < 0 {
		// {min,} == min copies followed by a star
		s, e := b.compile(re.Sub[0])
		b.addEps(cur, s)
		b.addEps(e, s)
		end := b.newState()
		b.addEps(cur, end)
		b.addEps(e, end)
		return start, end
	}
	end := b.newState()
	b.addEps(cur, end)
	for i := min; i < max; i++ {
		s, e := b.compile(re.Sub[0])
		b.addEps(cur, s)
		cur = e
		b.addEps(cur, end)
	}
	return start, end
}

// runeByteRange collapses a rune range onto a single byte range, which is
// exact for ASCII and a documented approximation above U+007F (acceptable
// for a reference collaborator matching property names).
func runeByteRange(r rune) (byte, byte) {
	if r > 255 {
		return 255, 255
	}
	if r < 0 {
		return 0, 0
	}
	return byte(r), byte(r)
}
