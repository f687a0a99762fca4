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
	"fmt"

	"github.com/katef/jvst-sub001/automaton"
	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/token"
)

// buildEnum lowers the `enum` keyword (§9 EXPANSION) directly into a
// Switch, canonicalized at construction rather than by a fixpoint rule: the
// original (original_source/src/validate_constraints.c) lowers enum to a
// disjunction of per-token-kind equality tests, which is exactly the cnode
// vocabulary already has via NUM_RANGE (min==max) and STR_MATCH (literal
// DFA). Only scalar enum values (number/string/bool/null) are supported;
// an array or object enum member makes Build return an error.
func buildEnum(m map[string]any) (Node, bool, error) {
	raw, ok := m["enum"]
	if !ok {
		return nil, false, nil
	}
	values, ok := raw.([]any)
	if !ok || len(values) == 0 {
		return nil, false, fmt.Errorf("cnode.Build: enum must be a non-empty array")
	}

	sw := &Switch{}
	var nums []Node
	var strs []Node
	haveTrue, haveFalse, haveNull := false, false, false

	for _, v := range values {
		switch e := v.(type) {
		case float64:
			nums = append(nums, &NumRange{HasMin: true, HasMax: true, Min: e, Max: e})
		case string:
			strs = append(strs, &StrMatch{DFA: automaton.Literal(e)})
		case bool:
			if e {
				haveTrue = true
			} else {
				haveFalse = true
			}
		case nil:
			haveNull = true
		default:
			return nil, false, fmt.Errorf("cnode.Build: enum only supports scalar values, got %T", v)
		}
	}

	for i := range sw.Slots {
		sw.Slots[i] = Invalid{Code: errcode.MatchCase}
	}
	if len(nums) > 0 {
		sw.Slots[token.Number] = orOf(nums)
	}
	if len(strs) > 0 {
		sw.Slots[token.String] = orOf(strs)
	}
	if haveTrue {
		sw.Slots[token.True] = Valid{}
	}
	if haveFalse {
		sw.Slots[token.False] = Valid{}
	}
	if haveNull {
		sw.Slots[token.Null] = Valid{}
	}
	return sw, true, nil
}

func orOf(nodes []Node) Node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	return &Or{Children: nodes}
}
