// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package index

import (
	"fmt"
	"strings"

	"github.com/zeebo/xxh3"

	"querypilot/cli/internal/sqlexec"
)

// Document is one table description, tagged with its table name.
type Document struct {
	ID    string `json:"id"`
	Table string `json:"table"`
	Text  string `json:"text"`
}

// FromTables renders one document per table:
//
//	Table: sales
//	Description: one row per order line   (only when annotated)
//	Columns:
//	amount (numeric) NOT NULL
func FromTables(tables []sqlexec.Table, ann Annotations) []Document {
	out := make([]Document, 0, len(tables))
	for _, t := range tables {
		var b strings.Builder
		fmt.Fprintf(&b, "Table: %s\n", t.Name)
		if d := ann.Describe(t.Name); d != "" {
			fmt.Fprintf(&b, "Description: %s\n", d)
		}
		b.WriteString("Columns:")
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "\n%s (%s)", c.Name, c.Type)
			if !c.Nullable {
				b.WriteString(" NOT NULL")
			}
			if d := ann.DescribeColumn(t.Name, c.Name); d != "" {
				fmt.Fprintf(&b, " -- %s", d)
			}
		}
		out = append(out, Document{ID: docID(t.Name), Table: t.Name, Text: b.String()})
	}
	return out
}

func docID(table string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(table))
}

// Fingerprint identifies a document set. Rebuilding an unchanged schema
// produces the same value, so the store write can be skipped.
func Fingerprint(docs []Document) string {
	h := xxh3.New()
	for _, d := range docs {
		_, _ = h.WriteString(d.Table)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(d.Text)
		_, _ = h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64())
}
