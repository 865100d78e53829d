// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package state

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Field is one column value of a result row.
type Field struct {
	Name  string
	Value any
}

// Row is an ordered column→value record. It marshals as a JSON object whose keys
// keep the column order of the query.
type Row []Field

// MarshalJSON implements json.Marshaler.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler, keeping the key order of the object.
func (r *Row) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*r = nil
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("state: row must be a JSON object, got %v", tok)
	}
	out := Row{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		var v any
		if err := dec.Decode(&v); err != nil {
			return err
		}
		out = append(out, Field{Name: name, Value: v})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*r = out
	return nil
}

// Get returns the value of the named column.
func (r Row) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// ExecutionResult is the outcome of running the validated SQL.
// Columns and Rows are only populated when Success is true.
type ExecutionResult struct {
	Success  bool     `json:"success"`
	Columns  []string `json:"columns"`
	Rows     []Row    `json:"rows"`
	RowCount int      `json:"row_count"`
	Elapsed  float64  `json:"execution_time"`
	Error    *string  `json:"error"`
}

// Succeeded builds a successful result.
func Succeeded(columns []string, rows []Row, elapsed float64) ExecutionResult {
	if columns == nil {
		columns = []string{}
	}
	if rows == nil {
		rows = []Row{}
	}
	return ExecutionResult{Success: true, Columns: columns, Rows: rows, RowCount: len(rows), Elapsed: elapsed}
}

// Failed builds a failed result carrying only the error text.
func Failed(msg string, elapsed float64) ExecutionResult {
	return ExecutionResult{Columns: []string{}, Rows: []Row{}, Elapsed: elapsed, Error: &msg}
}

// ErrorText returns the error message or "".
func (r ExecutionResult) ErrorText() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

func (r ExecutionResult) clone() ExecutionResult {
	c := r
	c.Columns = cloneSlice(r.Columns)
	c.Rows = cloneSlice(r.Rows)
	if r.Error != nil {
		msg := *r.Error
		c.Error = &msg
	}
	return c
}
