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

package cnode

import (
	"testing"

	"github.com/katef/jvst-sub001/errcode"
)

func TestSimplifyAndFlattensAndDropsValid(t *testing.T) {
	n := &And{Children: []Node{
		Valid{},
		&And{Children: []Node{Valid{}, NumInteger{}}},
	}}
	got := Simplify(n)
	if _, ok := got.(NumInteger); !ok {
		t.Fatalf("expected flattening+Valid-drop to collapse to NumInteger, got %#v", got)
	}
}

func TestSimplifyAndShortCircuitsOnInvalid(t *testing.T) {
	n := &And{Children: []Node{NumInteger{}, Invalid{Code: errcode.TooFewProps}}}
	got := Simplify(n)
	iv, ok := got.(Invalid)
	if !ok {
		t.Fatalf("expected AND with an Invalid child to collapse to Invalid, got %#v", got)
	}
	if iv.Code != errcode.TooFewProps {
		t.Errorf("expected code %v, got %v", errcode.TooFewProps, iv.Code)
	}
}

func TestSimplifyOrShortCircuitsOnValid(t *testing.T) {
	n := &Or{Children: []Node{Invalid{Code: errcode.TooFewProps}, Valid{}}}
	got := Simplify(n)
	if _, ok := got.(Valid); !ok {
		t.Fatalf("expected OR with a Valid child to collapse to Valid, got %#v", got)
	}
}

func TestSimplifyOrAllInvalidKeepsLast(t *testing.T) {
	n := &Or{Children: []Node{
		Invalid{Code: errcode.TooFewProps},
		Invalid{Code: errcode.TooManyProps},
	}}
	got := Simplify(n)
	iv, ok := got.(Invalid)
	if !ok {
		t.Fatalf("expected all-Invalid OR to collapse to Invalid, got %#v", got)
	}
	if iv.Code != errcode.TooManyProps {
		t.Errorf("expected the last Invalid's code %v to win, got %v", errcode.TooManyProps, iv.Code)
	}
}

func TestMergeSwitchesDistributesAndOverSwitch(t *testing.T) {
	swA := &Switch{}
	swA.Slots[0] = NumInteger{}
	swB := &Switch{}
	swB.Slots[0] = &NumMultipleOf{Divisor: 2}

	got := Simplify(&And{Children: []Node{swA, swB}})
	sw, ok := got.(*Switch)
	if !ok {
		t.Fatalf("expected two Switches ANDed together to merge into one Switch, got %#v", got)
	}
	and, ok := sw.Slots[0].(*And)
	if !ok {
		t.Fatalf("expected slot 0 to become AND(A[0],B[0]), got %#v", sw.Slots[0])
	}
	if len(and.Children) != 2 {
		t.Errorf("expected 2 merged children, got %d", len(and.Children))
	}
	for i := 1; i < len(sw.Slots); i++ {
		if _, ok := sw.Slots[i].(Valid); !ok {
			t.Errorf("expected untouched slot %d to remain Valid, got %#v", i, sw.Slots[i])
		}
	}
}

func TestSimplifyIsIdempotent(t *testing.T) {
	n := &And{Children: []Node{
		&Or{Children: []Node{NumInteger{}, Valid{}}},
		&NumRange{HasMin: true, Min: 1},
	}}
	once := Simplify(n)
	twice := Simplify(once)
	if structHash(once) != structHash(twice) {
		t.Error("Simplify should be a fixpoint: re-simplifying its own output must be a no-op")
	}
}
