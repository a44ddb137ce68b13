// Package fetch reads an upload's bytes from stdin, a local path or an
// HTTP(S) URL for the command-line front end.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// ErrTooLarge is returned when a source exceeds the loader's byte limit.
var ErrTooLarge = errors.New("source exceeds size limit")

// Input describes where the bytes come from.
type Input struct {
	// Location is an http(s):// URL, a file:// URL or a local path. Empty or
	// "-" reads Stdin.
	Location string

	// Stdin is used when Location is empty. If nil, stdin reads as empty.
	Stdin io.Reader
}

// Source is a loaded upload.
type Source struct {
	Bytes []byte
	// Name is the base name of the path or URL, "stdin" otherwise.
	Name string
	// Charset is the charset parameter of an HTTP Content-Type, if any.
	Charset string
}

// Loader fetches or reads sources with a consistent timeout and size policy.
type Loader struct {
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
}

// NewLoader creates a Loader. If client is nil, http.DefaultClient is used.
// maxBytes <= 0 disables the size limit.
func NewLoader(client *http.Client, timeout time.Duration, maxBytes int64) *Loader {
	if client == nil {
		client = http.DefaultClient
	}
	return &Loader{client: client, timeout: timeout, maxBytes: maxBytes}
}

// Load returns the bytes of input.
//
// On non-2xx HTTP responses, Load returns an error that includes the status
// code and up to 4KB of the response body for debugging.
func (l *Loader) Load(ctx context.Context, input Input) (Source, error) {
	loc := strings.TrimSpace(input.Location)
	switch {
	case loc == "" || loc == "-":
		if input.Stdin == nil {
			return Source{Name: "stdin"}, nil
		}
		b, err := l.readAll(input.Stdin)
		if err != nil {
			return Source{}, fmt.Errorf("read stdin: %w", err)
		}
		return Source{Bytes: b, Name: "stdin"}, nil

	case strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://"):
		return l.get(ctx, loc)

	default:
		p := strings.TrimPrefix(loc, "file://")
		f, err := os.Open(p)
		if err != nil {
			return Source{}, err
		}
		defer f.Close()
		b, err := l.readAll(f)
		if err != nil {
			return Source{}, fmt.Errorf("read %s: %w", p, err)
		}
		return Source{Bytes: b, Name: filepath.Base(p)}, nil
	}
}

func (l *Loader) get(ctx context.Context, rawURL string) (Source, error) {
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Source{}, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "onboard/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return Source{}, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return Source{}, fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	b, err := l.readAll(resp.Body)
	if err != nil {
		return Source{}, fmt.Errorf("read body: %w", err)
	}
	src := Source{Bytes: b, Name: path.Base(req.URL.Path)}
	if src.Name == "/" || src.Name == "." {
		src.Name = req.URL.Host
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil {
		src.Charset = params["charset"]
	}
	return src, nil
}

func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	if l.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > l.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, l.maxBytes)
	}
	return b, nil
}
