package db

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync/atomic"
)

// Mode is the storage deployment chosen by the connection URL.
type Mode int

const (
	// ModeEmbedded is a single-file SQLite store.
	ModeEmbedded Mode = iota + 1
	// ModeServer is a shared PostgreSQL server.
	ModeServer
)

func (m Mode) String() string {
	switch m {
	case ModeEmbedded:
		return "embedded"
	case ModeServer:
		return "server"
	}
	return "unknown"
}

// ErrUnsupportedScheme is returned for connection strings that name neither store.
var ErrUnsupportedScheme = errors.New("unsupported database url scheme")

var (
	kvPairRegex   = regexp.MustCompile(`(?i)\b(host|user|password|dbname|port|sslmode)=`)
	kvPassword    = regexp.MustCompile(`(?i)(password=)([^\s]+)`)
	memoryCounter atomic.Uint64
)

// DetectMode classifies a connection string without opening it.
func DetectMode(raw string) (Mode, error) {
	s := clean(raw)
	lower := strings.ToLower(s)
	switch {
	case s == "":
		return 0, fmt.Errorf("%w: empty url", ErrUnsupportedScheme)
	case strings.HasPrefix(lower, "sqlite:"), strings.HasPrefix(lower, "file:"), lower == ":memory:":
		return ModeEmbedded, nil
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"), strings.HasPrefix(lower, "postgresql+"):
		return ModeServer, nil
	case kvPairRegex.MatchString(s):
		return ModeServer, nil
	}
	scheme := s
	if i := strings.Index(s, ":"); i > 0 {
		scheme = s[:i]
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
}

func clean(raw string) string {
	return strings.Trim(strings.TrimSpace(raw), "\"'")
}

// NormalizeDSN accepts either a URL style DSN (postgres://...) or a lib/pq key=value list
// and returns a form the pgx driver accepts. Driver suffixes such as
// postgresql+asyncpg:// are dropped, sslmode defaults to disable and the session
// time zone is pinned to UTC so date columns compare against UTC midnights.
func NormalizeDSN(raw string) string {
	s := clean(raw)
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "postgresql+") {
		if i := strings.Index(s, "://"); i > 0 {
			s = "postgresql" + s[i:]
			lower = strings.ToLower(s)
		}
	}
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		u, err := url.Parse(s)
		if err != nil {
			return s
		}
		q := u.Query()
		if !hasKeyFold(q, "timezone") {
			q.Set("timezone", "UTC")
		}
		u.RawQuery = q.Encode()
		return u.String()
	}
	// key=value list expected
	if !kvPairRegex.MatchString(s) {
		return s
	}
	cleaned := strings.Join(strings.Fields(s), " ")
	if !strings.Contains(strings.ToLower(cleaned), "sslmode=") {
		cleaned += " sslmode=disable"
	}
	if !strings.Contains(strings.ToLower(cleaned), "timezone=") {
		cleaned += " TimeZone=UTC"
	}
	return cleaned
}

func hasKeyFold(q url.Values, key string) bool {
	for k := range q {
		if strings.EqualFold(k, key) {
			return true
		}
	}
	return false
}

// ToURLDSN builds a URL style DSN from key=value, which golang-migrate requires.
func ToURLDSN(kvDSN string) string {
	if kvDSN == "" {
		return kvDSN
	}
	lower := strings.ToLower(kvDSN)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return kvDSN
	}
	m := map[string]string{}
	for _, part := range strings.Fields(kvDSN) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			m[strings.ToLower(kv[0])] = kv[1]
		}
	}
	host, port, user, pass, dbname := m["host"], m["port"], m["user"], m["password"], m["dbname"]
	if host == "" || user == "" || dbname == "" {
		return kvDSN
	}
	u := &url.URL{Scheme: "postgres", Host: host}
	if port != "" {
		u.Host = host + ":" + port
	}
	if pass != "" {
		u.User = url.UserPassword(user, pass)
	} else {
		u.User = url.User(user)
	}
	u.Path = "/" + dbname
	q := url.Values{}
	if sslm, ok := m["sslmode"]; ok {
		q.Set("sslmode", sslm)
	}
	if tz, ok := m["timezone"]; ok {
		q.Set("timezone", tz)
	}
	if len(q) > 0 {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Redact hides credentials so a connection string can be logged.
func Redact(raw string) string {
	s := clean(raw)
	if u, err := url.Parse(s); err == nil && u.User != nil {
		return u.Redacted()
	}
	return kvPassword.ReplaceAllString(s, `${1}***`)
}

// sqliteTarget is the parsed form of an embedded-mode URL.
type sqliteTarget struct {
	dsn    string
	path   string
	memory bool
}

// sqliteDSN turns sqlite:///relative.db, sqlite:////abs.db, file: URIs and
// :memory: into a go-sqlite3 DSN with foreign keys and a busy timeout enabled.
// Each in-memory URL gets its own private database.
func sqliteDSN(raw string) sqliteTarget {
	s := clean(raw)
	lower := strings.ToLower(s)

	var path, query string
	switch {
	case strings.HasPrefix(lower, "file:"):
		path = s[len("file:"):]
	case strings.HasPrefix(lower, "sqlite:///"):
		path = s[len("sqlite:///"):]
	case strings.HasPrefix(lower, "sqlite://"):
		path = s[len("sqlite://"):]
	case strings.HasPrefix(lower, "sqlite:"):
		path = s[len("sqlite:"):]
	default:
		path = s
	}
	if i := strings.Index(path, "?"); i >= 0 {
		path, query = path[:i], path[i+1:]
	}

	params, _ := url.ParseQuery(query)
	memory := path == "" || path == ":memory:" || params.Get("mode") == "memory"
	if memory && (path == "" || path == ":memory:") {
		path = fmt.Sprintf("ledger-mem-%d", memoryCounter.Add(1))
		params.Set("mode", "memory")
		params.Set("cache", "shared")
	}
	if params.Get("_foreign_keys") == "" && params.Get("_fk") == "" {
		params.Set("_foreign_keys", "1")
	}
	if params.Get("_busy_timeout") == "" {
		params.Set("_busy_timeout", "5000")
	}
	if !memory && params.Get("_journal_mode") == "" {
		params.Set("_journal_mode", "WAL")
	}

	t := sqliteTarget{dsn: "file:" + path + "?" + params.Encode(), memory: memory}
	if !memory {
		t.path = path
	}
	return t
}
