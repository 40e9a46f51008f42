package rewrite

import (
	"net/http"
	"regexp"
)

// strippedResponseHeaders would block framing, the injected script or the
// plain-HTTP hop between client and proxy.
var strippedResponseHeaders = map[string]bool{
	"Content-Security-Policy":             true,
	"Content-Security-Policy-Report-Only": true,
	"Strict-Transport-Security":           true,
	"X-Frame-Options":                     true,
}

// hopByHopHeaders are not forwarded by proxies. Content-Length is dropped too
// since the body is re-encoded before it leaves the proxy.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

var (
	cookieDomainAttr   = regexp.MustCompile(`(?i);\s*domain\s*=[^;]*`)
	cookieSameSiteNone = regexp.MustCompile(`(?i)samesite\s*=\s*none`)
	cookieSecureAttr   = regexp.MustCompile(`(?i);\s*secure\s*(;|$)`)
)

// Headers sanitizes an upstream header set. Security headers and hop-by-hop
// headers are removed, every Set-Cookie value goes through Cookie, and for
// 3xx responses Location goes through URL. The input is not modified.
func (rw *Rewriter) Headers(status int, src http.Header) http.Header {
	dst := make(http.Header, len(src))
	redirect := status >= 300 && status < 400

	for k, vals := range src {
		name := http.CanonicalHeaderKey(k)
		if strippedResponseHeaders[name] || hopByHopHeaders[name] {
			continue
		}
		switch name {
		case "Set-Cookie":
			for _, v := range vals {
				dst.Add(name, rw.Cookie(v))
			}
		case "Location":
			for _, v := range vals {
				if redirect {
					v = rw.URL(v)
				}
				dst.Add(name, v)
			}
		default:
			dst[name] = append(dst[name], vals...)
		}
	}
	return dst
}

// Cookie rewrites one Set-Cookie value so the browser binds it to the proxy
// host: the Domain attribute is removed, SameSite=None becomes SameSite=Lax
// and the drop_secure policy also removes the Secure flag.
func (rw *Rewriter) Cookie(v string) string {
	v = cookieDomainAttr.ReplaceAllString(v, "")
	if rw.cookies == CookieDropSecure {
		v = cookieSecureAttr.ReplaceAllString(v, "${1}")
	}
	// Browsers reject SameSite=None without Secure, so both policies relax it.
	return cookieSameSiteNone.ReplaceAllString(v, "SameSite=Lax")
}
