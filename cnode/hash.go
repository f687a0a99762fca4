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
	"sort"
	"strings"

	"github.com/dchest/siphash"
	"golang.org/x/crypto/blake2b"
)

// symbolKey is a fixed interning key so two compilations of the same schema
// assign required-property bit indices in the same order, using a
// siphash-keyed ordering the same way a symbol-table interner would.
const (
	symbolKey0 uint64 = 0x6a767374636e6f64
	symbolKey1 uint64 = 0x6465686173683031
)

func symbolHash(name string) uint64 {
	return siphash.Hash(symbolKey0, symbolKey1, []byte(name))
}

// internNames assigns a stable bit index to each distinct name in names,
// ordered by (siphash, name) so the assignment doesn't depend on map
// iteration order.
func internNames(names []string) map[string]int {
	uniq := map[string]bool{}
	for _, n := range names {
		uniq[n] = true
	}
	ordered := make([]string, 0, len(uniq))
	for n := range uniq {
		ordered = append(ordered, n)
	}
	sort.Slice(ordered, func(i, j int) bool {
		hi, hj := symbolHash(ordered[i]), symbolHash(ordered[j])
		if hi != hj {
			return hi < hj
		}
		return ordered[i] < ordered[j]
	})
	out := make(map[string]int, len(ordered))
	for i, n := range ordered {
		out[n] = i
	}
	return out
}

// internTwoGroups assigns bits to primary first (occupying the contiguous
// prefix [0,reqCount)), then to any secondary names not already covered,
// so callers can BTESTALL just the primary range for a blanket "required"
// check while still tracking secondary names individually.
func internTwoGroups(primary, secondary []string) (map[string]int, int) {
	p := internNames(primary)
	out := make(map[string]int, len(p)+len(secondary))
	for name, i := range p {
		out[name] = i
	}
	reqCount := len(p)
	var extra []string
	for _, n := range secondary {
		if _, ok := out[n]; !ok {
			extra = append(extra, n)
		}
	}
	s := internNames(extra)
	for name, i := range s {
		out[name] = reqCount + i
	}
	return out, reqCount
}

// structKey renders a deterministic textual encoding of a cnode subtree,
// used only as input to structHash; it is not meant to be human-facing.
func structKey(n Node) string {
	var b strings.Builder
	writeKey(&b, n)
	return b.String()
}

func writeKey(b *strings.Builder, n Node) {
	if n == nil {
		b.WriteString("nil")
		return
	}
	switch v := n.(type) {
	case Valid:
		b.WriteString("V")
	case Invalid:
		fmt.Fprintf(b, "I(%d)", v.Code)
	case *And:
		b.WriteString("A(")
		for _, c := range v.Children {
			writeKey(b, c)
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case *Or:
		b.WriteString("O(")
		for _, c := range v.Children {
			writeKey(b, c)
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case *Xor:
		b.WriteString("X(")
		for _, c := range v.Children {
			writeKey(b, c)
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case *Not:
		b.WriteString("N(")
		writeKey(b, v.Child)
		b.WriteByte(')')
	case *Switch:
		b.WriteString("S(")
		for _, c := range v.Slots {
			writeKey(b, c)
			b.WriteByte(',')
		}
		b.WriteByte(')')
	case *NumRange:
		fmt.Fprintf(b, "NR(%v,%v,%v,%v,%v,%v)", v.HasMin, v.Min, v.HasMax, v.Max, v.ExclMin, v.ExclMax)
	case NumInteger:
		b.WriteString("NI")
	case *NumMultipleOf:
		fmt.Fprintf(b, "NM(%v)", v.Divisor)
	case *StrLenRange:
		fmt.Fprintf(b, "SL(%d,%d,%v)", v.Min, v.Max, v.HasMax)
	case *CountRange:
		fmt.Fprintf(b, "CR(%d,%d,%v)", v.Min, v.Max, v.HasMax)
	case ArrUnique:
		b.WriteString("AU")
	default:
		// matchers/DFAs and already-canonicalized nodes are not re-hashed
		// for dedup purposes: they're treated as opaque leaves keyed on
		// their pointer identity, which is stable within one compilation.
		fmt.Fprintf(b, "P(%p)", n)
	}
}

// structHash returns a content hash of n's canonical key, used to memoize
// the simplify fixpoint (§4.1) over repeated sub-schemas.
func structHash(n Node) [32]byte {
	return blake2b.Sum256([]byte(structKey(n)))
}
