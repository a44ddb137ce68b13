// Package connstr parses URI-style database connection links into a
// Descriptor and formats descriptors back for display and for drivers.
//
// Accepted grammar:
//
//	scheme://[user[:password]@]host[:port]/database[?query]
//
// File-backed schemes (sqlite) take the path as the database and have no
// host or port:
//
//	sqlite:///var/data/app.db
package connstr

import (
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Scheme is a canonical connection scheme.
type Scheme string

const (
	Postgres    Scheme = "postgresql"
	MySQL       Scheme = "mysql"
	SQLServer   Scheme = "sqlserver"
	Oracle      Scheme = "oracle"
	Redshift    Scheme = "redshift"
	CockroachDB Scheme = "cockroachdb"
	MongoDB     Scheme = "mongodb"
	ClickHouse  Scheme = "clickhouse"
	SQLite      Scheme = "sqlite"
)

type schemeInfo struct {
	canonical   Scheme
	defaultPort int
	// file schemes address a local path instead of host:port.
	file bool
}

var schemes = map[string]schemeInfo{
	"postgresql":  {canonical: Postgres, defaultPort: 5432},
	"postgres":    {canonical: Postgres, defaultPort: 5432},
	"mysql":       {canonical: MySQL, defaultPort: 3306},
	"mariadb":     {canonical: MySQL, defaultPort: 3306},
	"sqlserver":   {canonical: SQLServer, defaultPort: 1433},
	"mssql":       {canonical: SQLServer, defaultPort: 1433},
	"oracle":      {canonical: Oracle, defaultPort: 1521},
	"redshift":    {canonical: Redshift, defaultPort: 5439},
	"cockroachdb": {canonical: CockroachDB, defaultPort: 26257},
	"mongodb":     {canonical: MongoDB, defaultPort: 27017},
	"clickhouse":  {canonical: ClickHouse, defaultPort: 9000},
	"sqlite":      {canonical: SQLite, file: true},
	"sqlite3":     {canonical: SQLite, file: true},
}

// LookupScheme resolves a scheme or alias, case-insensitively.
func LookupScheme(s string) (Scheme, bool) {
	info, ok := schemes[strings.ToLower(strings.TrimSpace(s))]
	return info.canonical, ok
}

// DefaultPort returns the scheme's default port, 0 for file schemes.
func (s Scheme) DefaultPort() int {
	return schemes[string(s)].defaultPort
}

// IsFile reports whether the scheme addresses a local file.
func (s Scheme) IsFile() bool {
	return schemes[string(s)].file
}

// PostgresFamily reports whether the scheme speaks the postgres wire
// protocol.
func (s Scheme) PostgresFamily() bool {
	return s == Postgres || s == Redshift || s == CockroachDB
}

// Schemes lists the accepted scheme names including aliases, sorted.
func Schemes() []string {
	out := make([]string, 0, len(schemes))
	for k := range schemes {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Descriptor is a parsed connection link. Values are immutable by
// convention; edits go through WithField which returns a copy.
type Descriptor struct {
	Scheme   Scheme `json:"scheme"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Database string `json:"database"`
	Username string `json:"username,omitempty"`
	Password Secret `json:"password,omitempty"`
	// Params holds the query string. Nil when the link had none.
	Params url.Values `json:"params,omitempty"`
}

// Parse parses a connection link. Absent optional parts take the scheme's
// default port or the empty string.
func Parse(s string) (Descriptor, error) {
	s = strings.TrimSpace(s)
	i := strings.Index(s, "://")
	if i <= 0 {
		return Descriptor{}, newError(ErrMalformedURI, "", `missing "scheme://"`)
	}
	info, ok := schemes[strings.ToLower(s[:i])]
	if !ok {
		// The scheme is checked before full URI parsing so an unknown
		// scheme is reported as such even when the rest is odd.
		if !validScheme(s[:i]) {
			return Descriptor{}, newError(ErrMalformedURI, "", "invalid scheme")
		}
		return Descriptor{}, newError(ErrUnsupportedScheme, "", strconv.Quote(s[:i]))
	}

	u, err := url.Parse(s)
	if err != nil {
		// url.Error embeds the input, which may carry a password.
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return Descriptor{}, newError(ErrMalformedURI, "", err.Error())
	}
	if u.Opaque != "" {
		return Descriptor{}, newError(ErrMalformedURI, "", "opaque URI")
	}

	d := Descriptor{Scheme: info.canonical}
	if u.User != nil {
		d.Username = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			d.Password = Secret(pw)
		}
	}
	q := u.Query()

	if info.file {
		if u.Port() != "" {
			return Descriptor{}, newError(ErrMalformedURI, FieldPort, "file scheme takes no port")
		}
		d.Database = u.Host + u.Path
		if d.Database == "" {
			return Descriptor{}, newError(ErrMissingDatabase, FieldDatabase, "empty path")
		}
		d.Params = nonEmpty(q)
		return d, nil
	}

	d.Host = u.Hostname()
	if d.Host == "" {
		return Descriptor{}, newError(ErrMalformedURI, FieldHost, "empty host")
	}
	d.Port = info.defaultPort
	if p := u.Port(); p != "" {
		n, err := parsePort(p)
		if err != nil {
			return Descriptor{}, err
		}
		d.Port = n
	} else if strings.HasSuffix(u.Host, ":") {
		return Descriptor{}, newError(ErrMalformedURI, FieldPort, "empty port")
	}

	d.Database = strings.TrimPrefix(u.Path, "/")
	if d.Database == "" && info.canonical == SQLServer {
		// go-mssqldb URL form: sqlserver://host:1433?database=orders
		d.Database = q.Get("database")
		q.Del("database")
	}
	if d.Database == "" {
		return Descriptor{}, newError(ErrMissingDatabase, FieldDatabase, "empty path")
	}
	d.Params = nonEmpty(q)
	return d, nil
}

// MustParse is Parse for tests and constants; it panics on error.
func MustParse(s string) Descriptor {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

func parsePort(p string) (int, error) {
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0, newError(ErrMalformedURI, FieldPort, "port "+strconv.Quote(p)+" is not a number")
	}
	if n < 1 || n > 65535 {
		return 0, newError(ErrMalformedURI, FieldPort, "port "+p+" out of range 1..65535")
	}
	return n, nil
}

// validScheme follows RFC 3986: ALPHA *( ALPHA / DIGIT / "+" / "-" / "." ).
func validScheme(s string) bool {
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return s != ""
}

func nonEmpty(q url.Values) url.Values {
	if len(q) == 0 {
		return nil
	}
	return q
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return nil
	}
	out := make(url.Values, len(v))
	for k, vs := range v {
		out[k] = append([]string(nil), vs...)
	}
	return out
}
