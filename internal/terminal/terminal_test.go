// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestLinesFor(t *testing.T) {
	tests := []struct {
		length, width, want int
	}{
		{0, 80, 2},
		{80, 80, 2},
		{81, 80, 3},
		{10, 0, 2},
	}
	for _, tt := range tests {
		if got := LinesFor(tt.length, tt.width); got != tt.want {
			t.Errorf("LinesFor(%d, %d) = %d, want %d", tt.length, tt.width, got, tt.want)
		}
	}
}

func TestClearLines(t *testing.T) {
	var buf bytes.Buffer
	clearLines(&buf, 3)
	if got := strings.Count(buf.String(), "\x1b[2K"); got != 3 {
		t.Errorf("cleared %d lines", got)
	}
	if got := strings.Count(buf.String(), "\x1b[1A"); got != 2 {
		t.Errorf("moved up %d lines", got)
	}
}

func TestReadLine(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"postgres://u:p@h/db\n", "postgres://u:p@h/db", nil},
		{"no newline", "no newline", nil},
		{"crlf\r\n", "crlf", nil},
		{"", "", ErrEmptyInput},
	}
	for _, tt := range tests {
		got, err := readLine(strings.NewReader(tt.in))
		if !errors.Is(err, tt.wantErr) || got != tt.want {
			t.Errorf("readLine(%q) = %q, %v", tt.in, got, err)
		}
	}
}
