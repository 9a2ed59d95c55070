// Package credstore persists the authenticated cookie artifact between runs.
package credstore

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// RequiredCookie is the cookie without which a session cannot be authenticated.
const RequiredCookie = "li_at"

const (
	SourceLogin   = "login"
	SourceBrowser = "browser"
	SourceImport  = "import"
)

var (
	ErrNoArtifact     = errors.New("no credential artifact")
	ErrMissingCookie  = fmt.Errorf("artifact has no %s cookie", RequiredCookie)
	ErrExpiredCookie  = fmt.Errorf("artifact %s cookie is expired", RequiredCookie)
	ErrUnknownFormat  = errors.New("unrecognized cookie export format")
	ErrNoTargetCookie = errors.New("export contains no linkedin.com cookies")
)

type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	// Expires is zero for session cookies.
	Expires  time.Time `json:"expires"`
	HTTPOnly bool      `json:"http_only"`
	Secure   bool      `json:"secure"`
}

// String never includes the cookie value.
func (c Cookie) String() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Domain)
}

func (c Cookie) expired(now time.Time) bool {
	return !c.Expires.IsZero() && !c.Expires.After(now)
}

type Artifact struct {
	Cookies    []Cookie  `json:"cookies"`
	CapturedAt time.Time `json:"captured_at"`
	Source     string    `json:"source"`
}

func (a Artifact) Cookie(name string) (Cookie, bool) {
	for _, c := range a.Cookies {
		if c.Name == name {
			return c, true
		}
	}
	return Cookie{}, false
}

// Validate checks that the artifact can plausibly authenticate at now.
func (a Artifact) Validate(now time.Time) error {
	c, ok := a.Cookie(RequiredCookie)
	if !ok || c.Value == "" {
		return ErrMissingCookie
	}
	if c.expired(now) {
		return ErrExpiredCookie
	}
	return nil
}

// HTTPCookies converts the unexpired cookies for use in a cookie jar.
func (a Artifact) HTTPCookies(now time.Time) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(a.Cookies))
	for _, c := range a.Cookies {
		if c.expired(now) {
			continue
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Expires:  c.Expires,
			HttpOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out
}

// FromHTTPCookies builds cookies from a jar, domain is used when a cookie has none
// (jars do not return the domain of stored cookies).
func FromHTTPCookies(cookies []*http.Cookie, domain string) []Cookie {
	out := make([]Cookie, 0, len(cookies))
	for _, c := range cookies {
		d := c.Domain
		if d == "" {
			d = domain
		}
		out = append(out, Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   d,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HttpOnly,
			Secure:   c.Secure,
		})
	}
	return out
}

// IsTargetDomain reports whether a cookie domain belongs to linkedin.com.
func IsTargetDomain(domain string) bool {
	domain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(domain), "."))
	return domain == "linkedin.com" || strings.HasSuffix(domain, ".linkedin.com")
}
