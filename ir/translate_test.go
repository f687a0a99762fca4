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

package ir

import (
	"testing"

	"github.com/katef/jvst-sub001/cnode"
)

func TestTranslateValidProducesSingleValidFrame(t *testing.T) {
	p := Translate(cnode.Valid{})
	if len(p.Frames) != 1 {
		t.Fatalf("expected exactly one frame for a trivial schema, got %d", len(p.Frames))
	}
	if len(p.Frames[0].Stmts) != 1 {
		t.Fatalf("expected one top-level statement pre-linearize, got %d", len(p.Frames[0].Stmts))
	}
}

func TestTranslateSwitchDispatchesPerSlot(t *testing.T) {
	// Object/array slots always route through translateObject/translateArray
	// (every such value still has to be consumed token-by-token), so only
	// the top-level shape is asserted here: every slot defaults to Valid.
	sw := &cnode.Switch{}
	for i := range sw.Slots {
		sw.Slots[i] = cnode.Valid{}
	}
	p := Translate(sw)
	if len(p.Frames) == 0 {
		t.Fatal("expected at least a root frame")
	}
	stmt := p.Frames[0].Stmts[0]
	seq, ok := stmt.(*Seq)
	if !ok {
		t.Fatalf("expected the root frame's statement to open with a Seq (TOKEN then dispatch), got %T", stmt)
	}
	if len(seq.Stmts) == 0 {
		t.Fatal("expected a non-empty Seq")
	}
	if _, ok := seq.Stmts[0].(Token); !ok {
		t.Errorf("expected the Seq's first statement to fetch a token, got %T", seq.Stmts[0])
	}
}

func TestTranslateSplitGroupBuildsSplitlist(t *testing.T) {
	f := &Frame{Name: "root"}
	tr := &translator{}
	tr.frames = append(tr.frames, f)

	children := []cnode.Node{cnode.Valid{}, cnode.Invalid{}}
	stmt := tr.translateSplitGroup(f, children, splitAll)

	if len(f.Splitlists) != 1 {
		t.Fatalf("expected translateSplitGroup to register one Splitlist on the frame, got %d", len(f.Splitlists))
	}
	sl := f.Splitlists[0]
	if len(sl.Frames) != len(children) {
		t.Fatalf("expected one sub-frame per child, got %d frames for %d children", len(sl.Frames), len(children))
	}
	ifStmt, ok := stmt.(*If)
	if !ok {
		t.Fatalf("expected translateSplitGroup to return an *If gating on the split count, got %T", stmt)
	}
	cmp, ok := ifStmt.Cond.(Cmp)
	if !ok {
		t.Fatalf("expected the gating condition to be a Cmp over the Split count, got %T", ifStmt.Cond)
	}
	if _, ok := cmp.X.(Split); !ok {
		t.Errorf("expected Cmp.X to reference the Splitlist via Split{}, got %T", cmp.X)
	}
	if cmp.Kind != CmpEQ {
		t.Errorf("splitAll should gate with EQ(count, len(children)), got kind %v", cmp.Kind)
	}
	if want := Int(int64(len(children))); cmp.Y != want {
		t.Errorf("splitAll should compare against %v, got %v", want, cmp.Y)
	}
}

func TestTranslateSplitGroupNoneGatesOnZero(t *testing.T) {
	f := &Frame{Name: "root"}
	tr := &translator{}
	tr.frames = append(tr.frames, f)

	stmt := tr.translateSplitGroup(f, []cnode.Node{cnode.Valid{}}, splitNone)
	ifStmt := stmt.(*If)
	cmp := ifStmt.Cond.(Cmp)
	if cmp.Y != Int(0) {
		t.Errorf("splitNone should gate on count == 0, got comparand %v", cmp.Y)
	}
}
