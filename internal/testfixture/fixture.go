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

// Package testfixture loads the YAML schema/test-case fixtures the compiler
// and VM test suites share, mirroring the JSON Schema Test Suite's
// one-file-per-feature layout (a schema plus a list of documents each
// expected valid or not).
package testfixture

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Case is one document exercised against a Suite's Schema.
type Case struct {
	Description string `json:"description"`
	Data        any    `json:"data"`
	Valid       bool   `json:"valid"`
}

// Suite is one schema plus the cases it should accept or reject.
type Suite struct {
	Description string `json:"description"`
	Schema      any    `json:"schema"`
	Tests       []Case `json:"tests"`
}

// Load reads and decodes a single YAML fixture file.
func Load(path string) ([]Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("testfixture: reading %s: %w", path, err)
	}
	var suites []Suite
	if err := yaml.Unmarshal(data, &suites); err != nil {
		return nil, fmt.Errorf("testfixture: decoding %s: %w", path, err)
	}
	return suites, nil
}

// LoadDir reads every *.yaml file directly inside dir, in directory order.
func LoadDir(dir string) (map[string][]Suite, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("testfixture: reading dir %s: %w", dir, err)
	}
	out := make(map[string][]Suite, len(entries))
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		path := filepath.Join(dir, e.Name())
		suites, err := Load(path)
		if err != nil {
			return nil, err
		}
		out[e.Name()] = suites
	}
	return out, nil
}
