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
	"github.com/katef/jvst-sub001/automaton/goregexp"
	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/token"
)

// Build performs the direct lowering described in §4.1: each keyword in a
// decoded JSON Schema document emits a cnode, combinators map to
// control nodes. doc is already decoded into Go's generic JSON shape
// (map[string]any / []any / string / float64 / bool / nil) — schema-source
// parsing into a richer AST is out of scope here; this is the core's only
// consumption point.
//
// The returned tree is not yet canonicalised; call Simplify before
// translating to IR.
func Build(doc any) (Node, error) {
	switch v := doc.(type) {
	case bool:
		if v {
			return Valid{}, nil
		}
		return Invalid{Code: errcode.UnexpectedToken}, nil
	case map[string]any:
		return buildObject(v)
	case nil:
		return Valid{}, nil
	default:
		return nil, fmt.Errorf("cnode.Build: schema must be an object or boolean, got %T", doc)
	}
}

func buildObject(m map[string]any) (Node, error) {
	var parts []Node

	if t, ok := m["type"]; ok {
		sw, err := buildType(t)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sw)
	}

	if numSw, ok, err := buildNumeric(m); err != nil {
		return nil, err
	} else if ok {
		parts = append(parts, numSw)
	}

	if strSw, ok, err := buildString(m); err != nil {
		return nil, err
	} else if ok {
		parts = append(parts, strSw)
	}

	if arrSw, ok, err := buildArray(m); err != nil {
		return nil, err
	} else if ok {
		parts = append(parts, arrSw)
	}

	if objSw, ok, err := buildObjectKeywords(m); err != nil {
		return nil, err
	} else if ok {
		parts = append(parts, objSw)
	}

	if enumSw, ok, err := buildEnum(m); err != nil {
		return nil, err
	} else if ok {
		parts = append(parts, enumSw)
	}

	for _, kw := range []string{"allOf", "anyOf", "oneOf"} {
		raw, ok := m[kw]
		if !ok {
			continue
		}
		list, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("cnode.Build: %s must be an array", kw)
		}
		children := make([]Node, 0, len(list))
		for _, sub := range list {
			n, err := Build(sub)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		}
		if len(children) == 0 {
			continue
		}
		switch kw {
		case "allOf":
			parts = append(parts, &And{Children: children})
		case "anyOf":
			parts = append(parts, &Or{Children: children})
		case "oneOf":
			parts = append(parts, &Xor{Children: children})
		}
	}

	if raw, ok := m["not"]; ok {
		n, err := Build(raw)
		if err != nil {
			return nil, err
		}
		parts = append(parts, &Not{Child: n})
	}

	switch len(parts) {
	case 0:
		return Valid{}, nil
	case 1:
		return parts[0], nil
	default:
		return &And{Children: parts}, nil
	}
}

func kindsForType(name string) []token.Kind {
	switch name {
	case "object":
		return []token.Kind{token.ObjectBegin}
	case "array":
		return []token.Kind{token.ArrayBegin}
	case "string":
		return []token.Kind{token.String}
	case "number":
		return []token.Kind{token.Number}
	case "integer":
		return []token.Kind{token.Number} // NumInteger narrows further
	case "boolean":
		return []token.Kind{token.True, token.False}
	case "null":
		return []token.Kind{token.Null}
	default:
		return nil
	}
}

func buildType(raw any) (Node, error) {
	var names []string
	switch t := raw.(type) {
	case string:
		names = []string{t}
	case []any:
		for _, e := range t {
			s, ok := e.(string)
			if !ok {
				return nil, fmt.Errorf("cnode.Build: type array must contain strings")
			}
			names = append(names, s)
		}
	default:
		return nil, fmt.Errorf("cnode.Build: type must be a string or array of strings")
	}

	sw := &Switch{}
	for i := range sw.Slots {
		sw.Slots[i] = Invalid{Code: errcode.UnexpectedToken}
	}
	for _, name := range names {
		for _, k := range kindsForType(name) {
			if name == "integer" {
				sw.Slots[k] = NumInteger{}
			} else {
				sw.Slots[k] = Valid{}
			}
		}
	}
	return sw, nil
}

func asFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

func buildNumeric(m map[string]any) (Node, bool, error) {
	var children []Node
	nr := &NumRange{}
	used := false

	if v, ok := m["minimum"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: minimum must be a number")
		}
		nr.HasMin, nr.Min, used = true, f, true
	}
	if v, ok := m["maximum"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: maximum must be a number")
		}
		nr.HasMax, nr.Max, used = true, f, true
	}
	if v, ok := m["exclusiveMinimum"]; ok {
		used = true
		switch e := v.(type) {
		case bool:
			nr.ExclMin = e && nr.HasMin
		case float64:
			nr.HasMin, nr.Min, nr.ExclMin = true, e, true
		default:
			return nil, false, fmt.Errorf("cnode.Build: exclusiveMinimum must be boolean or number")
		}
	}
	if v, ok := m["exclusiveMaximum"]; ok {
		used = true
		switch e := v.(type) {
		case bool:
			nr.ExclMax = e && nr.HasMax
		case float64:
			nr.HasMax, nr.Max, nr.ExclMax = true, e, true
		default:
			return nil, false, fmt.Errorf("cnode.Build: exclusiveMaximum must be boolean or number")
		}
	}
	if used {
		children = append(children, nr)
	}
	if v, ok := m["multipleOf"]; ok {
		f, ok := asFloat(v)
		if !ok || f <= 0 {
			return nil, false, fmt.Errorf("cnode.Build: multipleOf must be a positive number")
		}
		children = append(children, &NumMultipleOf{Divisor: f})
		used = true
	}
	if !used {
		return nil, false, nil
	}
	var body Node
	if len(children) == 1 {
		body = children[0]
	} else {
		body = &And{Children: children}
	}
	sw := &Switch{}
	sw.Slots[token.Number] = body
	return sw, true, nil
}

func buildString(m map[string]any) (Node, bool, error) {
	var children []Node
	used := false

	lr := &StrLenRange{}
	lrUsed := false
	if v, ok := m["minLength"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: minLength must be a number")
		}
		lr.Min, lrUsed = int(f), true
	}
	if v, ok := m["maxLength"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: maxLength must be a number")
		}
		lr.Max, lr.HasMax, lrUsed = int(f), true, true
	}
	if lrUsed {
		children = append(children, lr)
		used = true
	}
	if v, ok := m["pattern"]; ok {
		pat, ok := v.(string)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: pattern must be a string")
		}
		dfa, err := goregexp.Compile(pat)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s", errcode.BadRegexp, err)
		}
		children = append(children, &StrMatch{DFA: dfa})
		used = true
	}
	if !used {
		return nil, false, nil
	}
	var body Node
	if len(children) == 1 {
		body = children[0]
	} else {
		body = &And{Children: children}
	}
	sw := &Switch{}
	sw.Slots[token.String] = body
	return sw, true, nil
}

func buildArray(m map[string]any) (Node, bool, error) {
	var children []Node
	used := false

	cr := &CountRange{}
	crUsed := false
	if v, ok := m["minItems"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: minItems must be a number")
		}
		cr.Min, crUsed = int(f), true
	}
	if v, ok := m["maxItems"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: maxItems must be a number")
		}
		cr.Max, cr.HasMax, crUsed = int(f), true, true
	}
	if crUsed {
		children = append(children, cr)
		used = true
	}

	if v, ok := m["items"]; ok {
		used = true
		switch it := v.(type) {
		case []any:
			tuple := make([]Node, len(it))
			for i, sub := range it {
				n, err := Build(sub)
				if err != nil {
					return nil, false, err
				}
				tuple[i] = n
			}
			children = append(children, &ArrItem{Tuple: tuple})
			if add, ok := m["additionalItems"]; ok {
				var addNode Node
				switch a := add.(type) {
				case bool:
					if !a {
						addNode = Invalid{Code: errcode.UnexpectedToken}
					} else {
						addNode = Valid{}
					}
				default:
					n, err := Build(a)
					if err != nil {
						return nil, false, err
					}
					addNode = n
				}
				children = append(children, &ArrAdditional{Child: addNode})
			}
		default:
			n, err := Build(v)
			if err != nil {
				return nil, false, err
			}
			children = append(children, &ArrItem{Child: n})
		}
	}

	if v, ok := m["uniqueItems"]; ok {
		if b, ok := v.(bool); ok && b {
			// §9 open question: no assembler/VM support; Simplify keeps
			// it and translation emits no check for it (see DESIGN.md).
			children = append(children, ArrUnique{})
			used = true
		}
	}

	if !used {
		return nil, false, nil
	}
	var body Node
	if len(children) == 1 {
		body = children[0]
	} else {
		body = &And{Children: children}
	}
	sw := &Switch{}
	sw.Slots[token.ArrayBegin] = body
	return sw, true, nil
}

func buildObjectKeywords(m map[string]any) (Node, bool, error) {
	var children []Node
	used := false

	cr := &CountRange{}
	crUsed := false
	if v, ok := m["minProperties"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: minProperties must be a number")
		}
		cr.Min, crUsed = int(f), true
	}
	if v, ok := m["maxProperties"]; ok {
		f, ok := asFloat(v)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: maxProperties must be a number")
		}
		cr.Max, cr.HasMax, crUsed = int(f), true, true
	}
	if crUsed {
		children = append(children, cr)
		used = true
	}

	propSet := &ObjPropSet{}
	propSetUsed := false
	if v, ok := m["properties"]; ok {
		props, ok := v.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: properties must be an object")
		}
		for name, sub := range props {
			n, err := Build(sub)
			if err != nil {
				return nil, false, err
			}
			propSet.Matches = append(propSet.Matches, &ObjPropMatch{
				DFA:   automaton.Literal(name),
				Child: n,
				Name:  name,
			})
		}
		propSetUsed = true
	}
	if v, ok := m["patternProperties"]; ok {
		pats, ok := v.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: patternProperties must be an object")
		}
		for pat, sub := range pats {
			dfa, err := goregexp.Compile(pat)
			if err != nil {
				return nil, false, fmt.Errorf("%w: %s", errcode.BadRegexp, err)
			}
			n, err := Build(sub)
			if err != nil {
				return nil, false, err
			}
			propSet.Matches = append(propSet.Matches, &ObjPropMatch{DFA: dfa, Child: n})
		}
		propSetUsed = true
	}
	if v, ok := m["additionalProperties"]; ok {
		propSetUsed = true
		switch a := v.(type) {
		case bool:
			if !a {
				propSet.Additional = Invalid{Code: errcode.UnexpectedToken}
			}
		default:
			n, err := Build(a)
			if err != nil {
				return nil, false, err
			}
			propSet.Additional = n
		}
	}
	if propSetUsed {
		children = append(children, propSet)
		used = true
	}

	if v, ok := m["required"]; ok {
		names, err := asStringSlice(v)
		if err != nil {
			return nil, false, fmt.Errorf("cnode.Build: required: %w", err)
		}
		children = append(children, &ObjRequired{Names: names})
		used = true
	}

	if v, ok := m["dependencies"]; ok {
		deps, ok := v.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("cnode.Build: dependencies must be an object")
		}
		for trigger, raw := range deps {
			switch d := raw.(type) {
			case []any:
				names, err := asStringSlice(d)
				if err != nil {
					return nil, false, fmt.Errorf("cnode.Build: dependencies[%s]: %w", trigger, err)
				}
				children = append(children, &ObjDependency{Trigger: trigger, Requires: names})
			default:
				// schema-dependency form: if trigger is present, the whole
				// object must additionally satisfy the given sub-schema.
				n, err := Build(raw)
				if err != nil {
					return nil, false, err
				}
				children = append(children, &ObjDependency{Trigger: trigger, Schema: n})
			}
		}
		used = true
	}

	if !used {
		return nil, false, nil
	}
	var body Node
	if len(children) == 1 {
		body = children[0]
	} else {
		body = &And{Children: children}
	}
	sw := &Switch{}
	sw.Slots[token.ObjectBegin] = body
	return sw, true, nil
}

func asStringSlice(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("expected an array of strings")
	}
	out := make([]string, len(list))
	for i, e := range list {
		s, ok := e.(string)
		if !ok {
			return nil, fmt.Errorf("expected an array of strings")
		}
		out[i] = s
	}
	return out, nil
}
