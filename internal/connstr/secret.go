package connstr

import "encoding/json"

// redacted replaces secrets in every printed form. It matches what
// net/url's Redacted uses for passwords.
const redacted = "xxxxx"

// Secret holds a password. Formatting it with any fmt verb or marshaling it
// to JSON yields a placeholder; Reveal returns the value.
type Secret string

// Reveal returns the cleartext value.
func (s Secret) Reveal() string { return string(s) }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return `connstr.Secret("` + s.String() + `")` }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

// MarshalText keeps encoders that prefer TextMarshaler (yaml, xml) redacted.
func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }
