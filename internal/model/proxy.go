// Package model defines shared types for the proxy.
package model

import (
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// RewriteContext is the fixed pair every rewrite operation needs. It is built
// once from config and never mutated.
type RewriteContext struct {
	MountPrefix    string
	UpstreamDomain string
}

// Request is an inbound client request as handed over by a hosting shell.
// RawQuery is the query exactly as received; when set it is forwarded
// verbatim and Query is ignored.
type Request struct {
	Method          string
	Path            string
	RawQuery        string
	Query           url.Values
	Header          http.Header
	Body            []byte
	IsBase64Encoded bool
}

// UpstreamRequest is the request issued to the upstream origin.
type UpstreamRequest struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte // nil for methods that carry no body
}

// UpstreamResponse is the fully read upstream response.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// ContentType returns the declared content type, or "" when absent.
func (r *UpstreamResponse) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Response is the outbound response handed back to a hosting shell.
type Response struct {
	StatusCode int
	// Headers is single-valued with lower-case keys. Repeated set-cookie
	// values are joined with ", ".
	Headers map[string]string
	// MultiValueHeaders holds set-cookie values individually for shells
	// that can emit repeated headers.
	MultiValueHeaders map[string][]string
	Body              string
	IsBase64Encoded   bool
}

// cookieSeparator joins repeated Set-Cookie values into one header value.
const cookieSeparator = ", "

// FlattenHeaders converts a multi-valued header set into the single-valued,
// lower-case mapping used by Response. The second return value carries
// set-cookie values individually, or nil when there are none.
func FlattenHeaders(h http.Header) (map[string]string, map[string][]string) {
	flat := make(map[string]string, len(h))
	var multi map[string][]string

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		vals := h[k]
		if len(vals) == 0 {
			continue
		}
		name := strings.ToLower(k)
		if name == "set-cookie" {
			if multi == nil {
				multi = make(map[string][]string, 1)
			}
			multi[name] = append(multi[name], vals...)
			flat[name] = strings.Join(multi[name], cookieSeparator)
			continue
		}
		if prev, ok := flat[name]; ok {
			flat[name] = prev + ", " + strings.Join(vals, ", ")
			continue
		}
		flat[name] = strings.Join(vals, ", ")
	}
	return flat, multi
}
