// Package rewrite keeps proxied pages pointed at the proxy: it rewrites URL
// attributes, redirect targets, cookies and security headers.
package rewrite

import (
	"fmt"
	"strings"

	"rewrite-proxy-go/internal/model"
)

// Mode selects how upstream URLs are rewritten.
type Mode string

const (
	// ModePrefix makes URLs proxy-relative by prepending the mount prefix.
	ModePrefix Mode = "prefix"
	// ModeStrip normalizes upstream URLs to root-relative paths. Used when
	// the proxy answers at the upstream's own root.
	ModeStrip Mode = "strip"
)

// CookiePolicy selects how Set-Cookie flags are relaxed.
type CookiePolicy string

const (
	// CookieSameSiteLax turns SameSite=None into SameSite=Lax.
	CookieSameSiteLax CookiePolicy = "samesite_lax"
	// CookieDropSecure removes the Secure flag.
	CookieDropSecure CookiePolicy = "drop_secure"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(s)); m {
	case ModePrefix, ModeStrip:
		return m, nil
	}
	return "", fmt.Errorf("unknown rewrite mode %q", s)
}

// ParseCookiePolicy validates a cookie policy name.
func ParseCookiePolicy(s string) (CookiePolicy, error) {
	switch p := CookiePolicy(strings.ToLower(s)); p {
	case CookieSameSiteLax, CookieDropSecure:
		return p, nil
	}
	return "", fmt.Errorf("unknown cookie policy %q", s)
}

// Rewriter applies the rewrite rules for one upstream. It holds no mutable
// state and is safe for concurrent use.
type Rewriter struct {
	rc      model.RewriteContext
	mode    Mode
	cookies CookiePolicy
	origins []string
}

// New creates a Rewriter.
func New(rc model.RewriteContext, mode Mode, cookies CookiePolicy) *Rewriter {
	return &Rewriter{
		rc:      rc,
		mode:    mode,
		cookies: cookies,
		origins: []string{
			"https://" + rc.UpstreamDomain,
			"http://" + rc.UpstreamDomain,
			"//" + rc.UpstreamDomain,
		},
	}
}

// Context returns the rewrite context.
func (rw *Rewriter) Context() model.RewriteContext { return rw.rc }

// Mode returns the active rewrite mode.
func (rw *Rewriter) Mode() Mode { return rw.mode }

// URL rewrites a single URL value. Values that match no rule are returned
// unchanged: other hosts, javascript:, mailto:, data:, fragments, relative
// paths and the empty string.
//
// The upstream origin is stripped before the root-relative rule applies, so
// "https://upstream/x" and "/x" rewrite identically. In prefix mode a value
// already under the mount prefix is left alone, which makes URL idempotent.
func (rw *Rewriter) URL(v string) string {
	if v == "" {
		return v
	}
	rel, ok := rw.stripOrigin(v)
	if !ok {
		if !isRootRelative(v) {
			return v
		}
		rel = v
	}
	if rw.mode == ModeStrip {
		return rel
	}
	return rw.withPrefix(rel)
}

// stripOrigin removes a leading upstream origin and returns the remaining
// root-relative reference. The origin must end at a path, query or fragment
// boundary so "https://upstream.evil.example" is not mistaken for it.
func (rw *Rewriter) stripOrigin(v string) (string, bool) {
	for _, o := range rw.origins {
		if len(v) < len(o) || !strings.EqualFold(v[:len(o)], o) {
			continue
		}
		rest := v[len(o):]
		if rest == "" {
			return "/", true
		}
		switch rest[0] {
		case '/':
			return rest, true
		case '?', '#':
			return "/" + rest, true
		}
	}
	return "", false
}

func (rw *Rewriter) withPrefix(rel string) string {
	p := rw.rc.MountPrefix
	if p == "" || underPrefix(rel, p) {
		return rel
	}
	return p + rel
}

// underPrefix reports whether path already sits at or below prefix.
func underPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	rest := path[len(prefix):]
	return rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#'
}

// isRootRelative reports whether v is a path like "/x". Protocol-relative
// "//host/x" references are absolute and do not count.
func isRootRelative(v string) bool {
	return strings.HasPrefix(v, "/") && !strings.HasPrefix(v, "//")
}
