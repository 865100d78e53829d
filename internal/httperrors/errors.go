// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors turns failures talking to a QueryPilot server into
// user-friendly terminal output.
package httperrors

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/pterm/pterm"

	"querypilot/cli/internal/logging"
)

// Class is the broad category of a network failure.
type Class string

const (
	ClassTimeout Class = "timeout"
	ClassDNS     Class = "dns"
	ClassRefused Class = "refused"
	ClassTLS     Class = "tls"
	ClassServer  Class = "server"
	ClassNetwork Class = "network"
)

// Classify picks the most specific class for err.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ""
	case isTimeoutError(err):
		return ClassTimeout
	case isDNSError(err):
		return ClassDNS
	case isConnectionRefusedError(err):
		return ClassRefused
	case isSSLError(err):
		return ClassTLS
	case isServerError(err.Error()):
		return ClassServer
	default:
		return ClassNetwork
	}
}

// FormatNetworkError prints a friendly explanation of err to stdout and
// returns it wrapped. action describes what the CLI was doing, e.g.
// "streaming the answer"; server is the base URL that was contacted.
func FormatNetworkError(err error, action, server string) error {
	if err == nil {
		return nil
	}
	pterm.Print(Explain(err, action, ExtractHostFromURL(server)))
	return fmt.Errorf("network error: %w", err)
}

// Explain renders the explanation for err.
func Explain(err error, action, host string) string {
	var b strings.Builder
	switch Classify(err) {
	case ClassTimeout:
		fmt.Fprintf(&b, "⏱️  Connection timeout while %s\n\n", action)
		b.WriteString("The QueryPilot server took too long to respond. This could mean:\n")
		b.WriteString("  • The pipeline is waiting on a slow model or database\n")
		b.WriteString("  • Network firewall is blocking the connection\n\n")
	case ClassDNS:
		fmt.Fprintf(&b, "🌐 Cannot resolve %s while %s\n\n", host, action)
		b.WriteString("Check the --server address and your DNS settings.\n\n")
	case ClassRefused:
		fmt.Fprintf(&b, "🚫 Connection refused by %s while %s\n\n", host, action)
		b.WriteString("Is `querypilot serve` running and listening on that address?\n\n")
	case ClassTLS:
		fmt.Fprintf(&b, "🔒 Secure connection to %s failed while %s\n\n", host, action)
		b.WriteString("Check the server certificate, proxy settings and your system clock.\n\n")
	case ClassServer:
		fmt.Fprintf(&b, "⚠️  Server error from %s while %s\n\n", host, action)
		b.WriteString("The server logs will have the details. Please try again shortly.\n\n")
	default:
		fmt.Fprintf(&b, "❌ Cannot reach the QueryPilot server at %s while %s\n\n", host, action)
		if details := logging.Mask(err.Error()); details != "" {
			if len(details) > 100 {
				details = details[:100] + "..."
			}
			fmt.Fprintf(&b, "Technical details: %s\n\n", details)
		}
	}
	return b.String()
}

func isTimeoutError(err error) bool {
	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isDNSError(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

func isConnectionRefusedError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "connection refused")
}

func isSSLError(err error) bool {
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "tls") ||
		strings.Contains(errStr, "x509") ||
		strings.Contains(errStr, "certificate") ||
		strings.Contains(errStr, "handshake")
}

func isServerError(errStr string) bool {
	lower := strings.ToLower(errStr)
	for _, s := range []string{"500", "502", "503", "504", "internal server error", "bad gateway", "service unavailable", "gateway timeout"} {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

// ExtractHostFromURL extracts the host from a URL for error messages.
func ExtractHostFromURL(urlStr string) string {
	u, err := url.Parse(urlStr)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
