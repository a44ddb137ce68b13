package connstr

import (
	"strconv"
	"strings"
)

// Field names one editable part of a Descriptor.
type Field string

const (
	FieldScheme   Field = "scheme"
	FieldHost     Field = "host"
	FieldPort     Field = "port"
	FieldDatabase Field = "database"
	FieldUsername Field = "username"
	FieldPassword Field = "password"
)

// Fields lists the editable fields in display order.
var Fields = []Field{FieldScheme, FieldHost, FieldPort, FieldDatabase, FieldUsername, FieldPassword}

// ParseField resolves a field name, case-insensitively. "user" and "db"
// are accepted as short forms.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "scheme", "driver":
		return FieldScheme, nil
	case "host":
		return FieldHost, nil
	case "port":
		return FieldPort, nil
	case "database", "db":
		return FieldDatabase, nil
	case "username", "user":
		return FieldUsername, nil
	case "password", "pass":
		return FieldPassword, nil
	}
	return "", newError(ErrUnknownField, "", strconv.Quote(s))
}

// WithField returns a copy of d with one field replaced. Only the edited
// field is validated; d itself is never modified.
func (d Descriptor) WithField(f Field, value string) (Descriptor, error) {
	out := d
	out.Params = cloneValues(d.Params)

	switch f {
	case FieldScheme:
		s, ok := LookupScheme(value)
		if !ok {
			return d, newError(ErrUnsupportedScheme, f, strconv.Quote(value))
		}
		if s.IsFile() != d.Scheme.IsFile() {
			return d, newError(ErrUnsupportedScheme, f, "cannot switch between file and network schemes")
		}
		// A port that was the old default follows the new scheme.
		if d.Port == d.Scheme.DefaultPort() {
			out.Port = s.DefaultPort()
		}
		out.Scheme = s
	case FieldHost:
		if d.Scheme.IsFile() {
			return d, newError(ErrMalformedURI, f, "file scheme has no host")
		}
		h := strings.TrimSpace(value)
		h = strings.TrimSuffix(strings.TrimPrefix(h, "["), "]")
		if h == "" || strings.ContainsAny(h, "/?#@ ") {
			return d, newError(ErrMalformedURI, f, "invalid host")
		}
		out.Host = h
	case FieldPort:
		if d.Scheme.IsFile() {
			return d, newError(ErrMalformedURI, f, "file scheme has no port")
		}
		v := strings.TrimSpace(value)
		if v == "" {
			out.Port = d.Scheme.DefaultPort()
			break
		}
		n, err := parsePort(v)
		if err != nil {
			return d, err
		}
		out.Port = n
	case FieldDatabase:
		v := strings.TrimSpace(value)
		if !d.Scheme.IsFile() {
			v = strings.TrimPrefix(v, "/")
		}
		if v == "" {
			return d, newError(ErrMissingDatabase, f, "empty database")
		}
		out.Database = v
	case FieldUsername:
		out.Username = value
	case FieldPassword:
		out.Password = Secret(value)
	default:
		return d, newError(ErrUnknownField, "", strconv.Quote(string(f)))
	}
	return out, nil
}
