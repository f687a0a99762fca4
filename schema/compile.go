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

// Package schema is the single entry point tying the compiler stages
// together end to end: cnode.Build, cnode.Simplify, ir.Translate,
// linearize.Run and asm.Assemble, the same parse -> plan -> optimize ->
// lower -> codegen pipeline shape doc.go lays out for query compilation.
package schema

import (
	"fmt"

	"github.com/katef/jvst-sub001/asm"
	"github.com/katef/jvst-sub001/cnode"
	"github.com/katef/jvst-sub001/ir"
	"github.com/katef/jvst-sub001/linearize"
	"github.com/katef/jvst-sub001/token"
	"github.com/katef/jvst-sub001/vm"
)

// Compile turns a decoded JSON Schema document (draft-04/06, as produced by
// encoding/json or sigs.k8s.io/yaml's Unmarshal into map[string]any/[]any/
// bool/string/float64/nil) into an assembled Program ready to validate a
// token.Stream.
func Compile(doc any) (*asm.Program, error) {
	n, err := cnode.Build(doc)
	if err != nil {
		return nil, fmt.Errorf("schema: building constraint tree: %w", err)
	}
	n = cnode.Simplify(n)
	prog := ir.Translate(n)
	linearize.Run(prog)
	p, err := asm.Assemble(prog)
	if err != nil {
		return nil, fmt.Errorf("schema: assembling program: %w", err)
	}
	return p, nil
}

// Validator holds a compiled Program; the token.Stream to run it against is
// supplied on each call to Run or Machine.
type Validator struct {
	prog *asm.Program
}

// NewValidator builds a Validator from a decoded schema document.
func NewValidator(doc any) (*Validator, error) {
	p, err := Compile(doc)
	if err != nil {
		return nil, err
	}
	return &Validator{prog: p}, nil
}

// Run validates the document already buffered in stream by starting a fresh
// vm.Machine over it without feeding further input, and returns the
// machine's Result (its Code is errcode.None on success).
func (v *Validator) Run(stream token.Stream) vm.Result {
	m := vm.New(v.prog, stream)
	return m.Start()
}

// Machine constructs a fresh, not-yet-started vm.Machine over stream, for
// callers that want to Feed it input incrementally (§4.5.1).
func (v *Validator) Machine(stream token.Stream) *vm.Machine {
	return vm.New(v.prog, stream)
}
