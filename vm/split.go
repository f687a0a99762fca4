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

import "github.com/katef/jvst-sub001/token"

// branchSource hands one shared token to a SPLIT/SPLITV branch: the branch
// asks for a token by sending on req, then blocks on tok until the
// dispatcher (runSplit) has pulled the next real token and fanned it out.
type branchSource struct {
	req chan int
	idx int
	tok chan token.Event
}

func (b *branchSource) next() token.Event {
	b.req <- b.idx
	return <-b.tok
}

type branchResult struct {
	idx  int
	code int
}

// runSplit drives every frame in list in lockstep against a single shared
// token position (§4.2.1, §4.5: "SPLIT/SPLITV lockstep sub-frame
// execution"): each branch runs independently until it either finishes or
// blocks wanting the next token, and only once every still-running branch
// is blocked does runSplit pull one token from src and deliver it to all of
// them. A branch that has already returned stops receiving tokens, so a
// sibling that keeps running (e.g. the object-validation half of a schema
// dependency) continues to drain the shared value on its own.
func (m *Machine) runSplit(list []int, src tokenSource) (validCount int, perBranch []bool) {
	n := len(list)
	reqCh := make(chan int, n)
	resultCh := make(chan branchResult, n)
	toks := make([]chan token.Event, n)

	for i, frameIdx := range list {
		toks[i] = make(chan token.Event)
		bs := &branchSource{req: reqCh, idx: i, tok: toks[i]}
		go func(i, frameIdx int, bs *branchSource) {
			code := m.execFrame(frameIdx, bs, &regs{})
			resultCh <- branchResult{idx: i, code: int(code)}
		}(i, frameIdx, bs)
	}

	finished := make([]bool, n)
	codes := make([]int, n)
	active := n

	for active > 0 {
		waiting := make(map[int]bool, active)
		for len(waiting) < active {
			select {
			case r := <-resultCh:
				finished[r.idx] = true
				codes[r.idx] = r.code
				active--
				delete(waiting, r.idx)
				if active == 0 {
					break
				}
			case idx := <-reqCh:
				waiting[idx] = true
			}
		}
		if active == 0 {
			break
		}
		ev := src.next()
		for idx := range waiting {
			toks[idx] <- ev
		}
	}

	perBranch = make([]bool, n)
	for i, code := range codes {
		if code == 0 {
			validCount++
			perBranch[i] = true
		}
	}
	return validCount, perBranch
}
