// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net/url"
	"strings"
)

// Redact reduces a connection string to scheme://host[:port]/path.
// User info, query parameters and fragments are dropped entirely, so the result is
// safe for audit history and logs. Unparseable input yields "" rather than
// echoing something that may contain a password.
func Redact(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if info, err := ParseInfo(raw); err == nil {
		if info.Type == DBTypeSQLite {
			return "sqlite://" + info.Path
		}
		host := info.Host
		if info.Port != "" {
			host += ":" + info.Port
		}
		return info.Scheme + "://" + host + "/" + info.Database
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return ""
	}
	host := u.Hostname()
	if p := u.Port(); p != "" {
		host += ":" + p
	}
	return u.Scheme + "://" + host + u.EscapedPath()
}
