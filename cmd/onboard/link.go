package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rodrigobaldaia/data-onboarding/internal/connstr"
)

// Environment variables read by resolveLink.
const (
	envLink         = "ONBOARD_LINK"
	envLinkScheme   = "LINK_SCHEME"
	envLinkHost     = "LINK_HOST"
	envLinkPort     = "LINK_PORT"
	envLinkUser     = "LINK_USER"
	envLinkPassword = "LINK_PASSWORD"
	envLinkDB       = "LINK_DB"
	envLinkParams   = "LINK_PARAMS"
)

// resolveLink picks the connection link to onboard.
//
// Precedence rules are strict and deterministic:
//  1. the positional argument
//  2. ONBOARD_LINK (full link via env var)
//  3. LINK_* component env vars, assembled into a link
//
// Keeping the password in LINK_PASSWORD avoids it showing up in shell
// history or process listings.
func resolveLink(arg string, lookup func(string) (string, bool)) (string, error) {
	if s := strings.TrimSpace(arg); s != "" {
		return s, nil
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}
	if v := get(envLink); v != "" {
		return v, nil
	}

	scheme := get(envLinkScheme)
	host := get(envLinkHost)
	port := get(envLinkPort)
	user := get(envLinkUser)
	pass, _ := lookup(envLinkPassword) // allow spaces
	db := get(envLinkDB)
	params := get(envLinkParams)

	if scheme == "" && host == "" && port == "" && user == "" && pass == "" && db == "" && params == "" {
		return "", fmt.Errorf("no link given: pass one as an argument or set %s", envLink)
	}
	return buildLink(scheme, host, port, user, pass, db, params)
}

// buildLink assembles a link from component parts. The scheme defaults to
// postgresql and the host to localhost; every other part is optional here
// and validated later by connstr.Parse.
func buildLink(scheme, host, port, user, pass, db, extraParams string) (string, error) {
	if scheme == "" {
		scheme = string(connstr.Postgres)
	}
	s, ok := connstr.LookupScheme(scheme)
	if !ok {
		return "", fmt.Errorf("%s: %w: %q", envLinkScheme, connstr.ErrUnsupportedScheme, scheme)
	}

	if s.IsFile() {
		// A relative path lands in the host slot; connstr joins them back.
		link := string(s) + "://" + db
		if p := strings.TrimPrefix(extraParams, "?"); p != "" {
			link += "?" + p
		}
		return link, nil
	}

	u := &url.URL{Scheme: string(s)}
	if host == "" {
		host = "localhost"
	}
	u.Host = host
	if port != "" {
		u.Host += ":" + port
	}
	switch {
	case user != "" && pass != "":
		u.User = url.UserPassword(user, pass)
	case user != "":
		u.User = url.User(user)
	}
	if db != "" {
		u.Path = "/" + db
	}

	q := url.Values{}
	appendRawParams(q, extraParams)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// appendRawParams merges "k=v&k2=v2" into q. Malformed pairs are skipped.
func appendRawParams(q url.Values, raw string) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "?")
	if raw == "" {
		return
	}
	extra, err := url.ParseQuery(raw)
	if err != nil {
		return
	}
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
}

// parseAssignment splits "key=value". The value may be empty and may itself
// contain '='.
func parseAssignment(s string) (key, value string, err error) {
	key, value, ok := strings.Cut(s, "=")
	key = strings.TrimSpace(key)
	if !ok || key == "" {
		return "", "", fmt.Errorf("expected key=value, got %q", s)
	}
	return key, value, nil
}
