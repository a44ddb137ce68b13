package storage

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/rodrigobaldaia/data-onboarding/internal/canvas"
	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
)

// storedConnection is the payload of a connection record. The descriptor's
// own JSON form redacts the password, so it is spelled out here.
type storedConnection struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`

	Scheme   connstr.Scheme `json:"scheme"`
	Host     string         `json:"host,omitempty"`
	Port     int            `json:"port,omitempty"`
	Database string         `json:"database"`
	Username string         `json:"username,omitempty"`
	Password string         `json:"password,omitempty"`
	Params   url.Values     `json:"params,omitempty"`
}

// Encode converts an artifact into a Record.
func Encode(a canvas.Artifact, savePasswords bool) (Record, error) {
	r := Record{ID: a.ArtifactID(), Kind: a.Kind(), CreatedAt: a.Created().UTC()}

	var payload any
	switch v := a.(type) {
	case *canvas.DatasetImportArtifact:
		r.SourceName = v.SourceName
		payload = v
	case *canvas.ConnectionArtifact:
		d := v.Descriptor
		sc := storedConnection{
			ID:        v.ID,
			CreatedAt: v.CreatedAt,
			Scheme:    d.Scheme,
			Host:      d.Host,
			Port:      d.Port,
			Database:  d.Database,
			Username:  d.Username,
			Params:    d.Params,
		}
		if savePasswords {
			sc.Password = d.Password.Reveal()
		}
		r.SourceName = d.Redacted()
		payload = sc
	default:
		return Record{}, fmt.Errorf("storage: unsupported artifact type %T", a)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("encode %s %s: %w", r.Kind, r.ID, err)
	}
	r.Payload = b
	return r, nil
}

// Artifact decodes the record back into the artifact that produced it.
func (r Record) Artifact() (canvas.Artifact, error) {
	switch r.Kind {
	case canvas.KindDatasetImport:
		var a canvas.DatasetImportArtifact
		if err := json.Unmarshal(r.Payload, &a); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", r.Kind, r.ID, err)
		}
		return &a, nil
	case canvas.KindConnection:
		var sc storedConnection
		if err := json.Unmarshal(r.Payload, &sc); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", r.Kind, r.ID, err)
		}
		return &canvas.ConnectionArtifact{
			ID:        sc.ID,
			CreatedAt: sc.CreatedAt,
			Descriptor: connstr.Descriptor{
				Scheme:   sc.Scheme,
				Host:     sc.Host,
				Port:     sc.Port,
				Database: sc.Database,
				Username: sc.Username,
				Password: connstr.Secret(sc.Password),
				Params:   sc.Params,
			},
		}, nil
	default:
		return nil, fmt.Errorf("storage: unknown artifact kind %q", r.Kind)
	}
}

// ParseTime reads timestamps written by any backend. Drivers that return
// TEXT hand back RFC 3339 or SQLite's space-separated form.
func ParseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
	}
	for _, layout := range layouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	if ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC); err == nil {
		return ts, nil
	}
	return time.Time{}, fmt.Errorf("unsupported time format: %q", s)
}
