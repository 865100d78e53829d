// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Annotations are human-written descriptions merged into schema documents.
// The file looks like:
//
//	tables:
//	  sales:
//	    description: One row per order line.
//	    columns:
//	      amount: Gross amount in EUR.
type Annotations struct {
	Tables map[string]TableAnnotation `yaml:"tables"`
}

// TableAnnotation describes one table.
type TableAnnotation struct {
	Description string            `yaml:"description"`
	Columns     map[string]string `yaml:"columns"`
}

// LoadAnnotations reads a YAML annotation file. An empty path or a missing
// file yields no annotations.
func LoadAnnotations(path string) (Annotations, error) {
	var a Annotations
	if strings.TrimSpace(path) == "" {
		return a, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return a, nil
		}
		return a, err
	}
	if err := yaml.Unmarshal(data, &a); err != nil {
		return a, fmt.Errorf("parse annotations %s: %w", path, err)
	}
	return a, nil
}

func (a Annotations) lookup(table string) (TableAnnotation, bool) {
	if t, ok := a.Tables[table]; ok {
		return t, true
	}
	for name, t := range a.Tables {
		if strings.EqualFold(name, table) {
			return t, true
		}
	}
	return TableAnnotation{}, false
}

// Describe returns the table description, matching names case-insensitively.
func (a Annotations) Describe(table string) string {
	t, _ := a.lookup(table)
	return strings.TrimSpace(t.Description)
}

// DescribeColumn returns the column description.
func (a Annotations) DescribeColumn(table, column string) string {
	t, ok := a.lookup(table)
	if !ok {
		return ""
	}
	if d, ok := t.Columns[column]; ok {
		return strings.TrimSpace(d)
	}
	for name, d := range t.Columns {
		if strings.EqualFold(name, column) {
			return strings.TrimSpace(d)
		}
	}
	return ""
}
