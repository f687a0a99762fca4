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

package schema

import (
	"encoding/json"
	"testing"

	"github.com/katef/jvst-sub001/errcode"
	"github.com/katef/jvst-sub001/internal/testfixture"
	"github.com/katef/jvst-sub001/token/jsontoken"
	"github.com/katef/jvst-sub001/vm"
)

func mustCompile(t *testing.T, schema any) *Validator {
	t.Helper()
	v, err := NewValidator(schema)
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	return v
}

func runDoc(t *testing.T, v *Validator, doc any) errcode.Code {
	t.Helper()
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshaling fixture data: %v", err)
	}
	lex := jsontoken.New()
	lex.Feed(raw)
	res := v.Run(lex)
	if res.Status != vm.Finished {
		t.Fatalf("validator did not finish in one pass, got status %v", res)
	}
	return res.Code
}

func TestFixtures(t *testing.T) {
	suites, err := testfixture.LoadDir("testdata")
	if err != nil {
		t.Fatalf("loading fixtures: %v", err)
	}
	if len(suites) == 0 {
		t.Fatal("expected at least one fixture file in testdata")
	}
	for file, fileSuites := range suites {
		for _, suite := range fileSuites {
			suite := suite
			t.Run(file+"/"+suite.Description, func(t *testing.T) {
				v := mustCompile(t, suite.Schema)
				for _, c := range suite.Tests {
					c := c
					t.Run(c.Description, func(t *testing.T) {
						code := runDoc(t, v, c.Data)
						gotValid := code == errcode.None
						if gotValid != c.Valid {
							t.Errorf("data %v: got valid=%v (code %s), want valid=%v", c.Data, gotValid, code, c.Valid)
						}
					})
				}
			})
		}
	}
}
