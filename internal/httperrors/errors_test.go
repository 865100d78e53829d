// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"errors"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"deadline", errors.New("context deadline exceeded"), ClassTimeout},
		{"dns", &net.DNSError{Err: "no such host", Name: "qp.local"}, ClassDNS},
		{"refused op", &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, ClassRefused},
		{"refused text", errors.New("dial tcp 127.0.0.1:8080: connection refused"), ClassRefused},
		{"tls", errors.New("x509: certificate signed by unknown authority"), ClassTLS},
		{"server", errors.New("server returned 502 Bad Gateway"), ClassServer},
		{"other", errors.New("unexpected EOF"), ClassNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestExplainMasksDetails(t *testing.T) {
	out := Explain(errors.New("weird failure for postgres://admin:hunter2@db/shop"), "streaming the answer", "localhost:8080")
	if !strings.Contains(out, "localhost:8080") || !strings.Contains(out, "streaming the answer") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Errorf("password leaked: %q", out)
	}
}

func TestExtractHostFromURL(t *testing.T) {
	for in, want := range map[string]string{
		"http://localhost:8080/query": "localhost:8080",
		"::not a url":                 "server",
		"":                            "server",
	} {
		if got := ExtractHostFromURL(in); got != want {
			t.Errorf("ExtractHostFromURL(%q) = %q, want %q", in, got, want)
		}
	}
}
