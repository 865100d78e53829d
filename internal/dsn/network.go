// Copyright (c) 2025 QueryPilot
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var rePort = regexp.MustCompile(`^\d+$`)

// NetworkResolver handles URL-style DSNs for server engines (PostgreSQL, MySQL).
// Passwords with unencoded special characters are common in pasted DSNs, so a
// failed url.Parse falls back to a manual split on the last '@'.
type NetworkResolver struct {
	dbType          DBType
	schemes         []string
	canonicalScheme string
	defaultPort     string
}

// NewPostgreSQLResolver creates a resolver for postgres:// and postgresql:// DSNs.
func NewPostgreSQLResolver() *NetworkResolver {
	return &NetworkResolver{
		dbType:          DBTypePostgreSQL,
		schemes:         []string{"postgresql", "postgres"},
		canonicalScheme: "postgresql",
		defaultPort:     "5432",
	}
}

// NewMySQLResolver creates a resolver for mysql:// DSNs.
func NewMySQLResolver() *NetworkResolver {
	return &NetworkResolver{
		dbType:          DBTypeMySQL,
		schemes:         []string{"mysql"},
		canonicalScheme: "mysql",
		defaultPort:     "3306",
	}
}

func (r *NetworkResolver) example() string {
	return fmt.Sprintf("%s://user:password@host:%s/database", r.canonicalScheme, r.defaultPort)
}

// Parse parses a DSN string and returns DSN info.
func (r *NetworkResolver) Parse(dsn string) (*DSNInfo, error) {
	if dsn == "" {
		return nil, NewParseError(dsn, "empty DSN", "provide a valid connection string")
	}

	scheme := ""
	for _, s := range r.schemes {
		if strings.HasPrefix(strings.ToLower(dsn), s+"://") {
			scheme = s
			break
		}
	}
	if scheme == "" {
		return nil, NewParseError(dsn, "missing or invalid scheme", "use "+r.example())
	}
	remainder := dsn[len(scheme)+3:]

	var (
		info *DSNInfo
		err  error
	)
	if parsed, perr := url.Parse(dsn); perr == nil && parsed.User != nil {
		info = r.fromURL(parsed, dsn)
	} else {
		info, err = r.manualParse(remainder, dsn)
		if err != nil {
			return nil, err
		}
	}
	info.Scheme = scheme
	if info.Port == "" {
		info.Port = r.defaultPort
	}
	return info, r.check(info)
}

func (r *NetworkResolver) fromURL(parsed *url.URL, originalDSN string) *DSNInfo {
	info := &DSNInfo{
		Type:     r.dbType,
		Host:     parsed.Hostname(),
		Port:     parsed.Port(),
		User:     parsed.User.Username(),
		Database: strings.TrimSpace(strings.TrimPrefix(parsed.Path, "/")),
		Params:   make(map[string]string),
		Original: originalDSN,
	}
	info.Password, _ = parsed.User.Password()
	for key, values := range parsed.Query() {
		if len(values) > 0 {
			info.Params[key] = values[0]
		}
	}
	return info
}

// manualParse handles [user[:password]@]host[:port]/database[?params] where the
// password may itself contain '@' or ':'.
func (r *NetworkResolver) manualParse(remainder, originalDSN string) (*DSNInfo, error) {
	info := &DSNInfo{
		Type:     r.dbType,
		Params:   make(map[string]string),
		Original: originalDSN,
	}

	atIndex := strings.LastIndex(remainder, "@")
	if atIndex == -1 {
		return nil, NewParseError(originalDSN, "missing @ separator", "format should be "+r.example())
	}
	authPart, hostAndDB := remainder[:atIndex], remainder[atIndex+1:]

	if user, pass, ok := strings.Cut(authPart, ":"); ok {
		info.User, info.Password = user, pass
	} else {
		info.User = authPart
	}

	hostPart, dbAndParams, ok := strings.Cut(hostAndDB, "/")
	if !ok {
		return nil, NewParseError(originalDSN, "missing / before database name", "format should be "+r.example())
	}
	if host, port, ok := strings.Cut(hostPart, ":"); ok {
		info.Host, info.Port = host, port
	} else {
		info.Host = hostPart
	}

	db, paramStr, _ := strings.Cut(dbAndParams, "?")
	info.Database = strings.TrimSpace(db)
	if paramStr != "" {
		for _, param := range strings.Split(paramStr, "&") {
			if k, v, ok := strings.Cut(param, "="); ok {
				info.Params[k] = v
			}
		}
	}
	return info, nil
}

func (r *NetworkResolver) check(info *DSNInfo) error {
	switch {
	case strings.TrimSpace(info.User) == "":
		return NewParseError(info.Original, "missing username", "provide username in format "+r.example())
	case strings.TrimSpace(info.Host) == "":
		return NewParseError(info.Original, "missing host", "provide host in format "+r.example())
	case strings.TrimSpace(info.Database) == "":
		return NewParseError(info.Original, "missing database name", "provide database in format "+r.example())
	case !rePort.MatchString(info.Port):
		return NewParseError(info.Original, fmt.Sprintf("invalid port number: %s", info.Port), "port must be numeric")
	}
	return nil
}

// Normalize converts DSN info to a canonical URL with escaped credentials and
// deterministic parameter order.
func (r *NetworkResolver) Normalize(info *DSNInfo) (string, error) {
	if info == nil {
		return "", NewParseError("", "nil DSN info", "")
	}

	var b strings.Builder
	b.WriteString(r.canonicalScheme)
	b.WriteString("://")
	if info.User != "" {
		b.WriteString(url.QueryEscape(info.User))
		if info.Password != "" {
			b.WriteString(":")
			b.WriteString(url.QueryEscape(info.Password))
		}
		b.WriteString("@")
	}
	b.WriteString(info.Host)
	port := info.Port
	if port == "" {
		port = r.defaultPort
	}
	b.WriteString(":")
	b.WriteString(port)
	b.WriteString("/")
	b.WriteString(info.Database)

	if len(info.Params) > 0 {
		keys := make([]string, 0, len(info.Params))
		for k := range info.Params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("?")
		for i, k := range keys {
			if i > 0 {
				b.WriteString("&")
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteString("=")
			b.WriteString(url.QueryEscape(info.Params[k]))
		}
	}
	return b.String(), nil
}
