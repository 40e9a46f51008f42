package service

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"rewrite-proxy-go/internal/config"
	"rewrite-proxy-go/internal/model"
)

// Default negotiation headers sent when the client supplies none.
const (
	defaultAccept         = "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"
	defaultAcceptLanguage = "en-US,en;q=0.5"
	// acceptEncoding lists the codings content.Decode understands.
	acceptEncoding = "gzip, deflate, br, zstd"
)

// bodyMethods are the methods whose body is forwarded upstream.
var bodyMethods = map[string]bool{
	http.MethodPost:  true,
	http.MethodPut:   true,
	http.MethodPatch: true,
}

// Translator maps inbound requests onto the single upstream origin.
type Translator struct {
	scheme      string
	rc          model.RewriteContext
	landingPath string
	userAgent   string
}

// NewTranslator creates a Translator targeting https://<upstream.domain>.
func NewTranslator(cfg *config.Config) *Translator {
	return newTranslator(cfg, "https")
}

func newTranslator(cfg *config.Config, scheme string) *Translator {
	landing := cfg.Upstream.LandingPath
	if landing == "" {
		landing = config.DefaultLandingPath
	}
	ua := cfg.Upstream.UserAgent
	if ua == "" {
		ua = config.DefaultUserAgent
	}
	return &Translator{
		scheme:      scheme,
		rc:          cfg.RewriteContext(),
		landingPath: landing,
		userAgent:   ua,
	}
}

// Translate builds the upstream request for req. The target host is always
// the configured upstream domain.
func (t *Translator) Translate(req *model.Request) (*model.UpstreamRequest, error) {
	u := url.URL{
		Scheme:   t.scheme,
		Host:     t.rc.UpstreamDomain,
		Path:     t.upstreamPath(req.Path),
		RawQuery: req.RawQuery,
	}
	if u.RawQuery == "" {
		u.RawQuery = req.Query.Encode()
	}

	method := strings.ToUpper(req.Method)
	ur := &model.UpstreamRequest{
		Method: method,
		URL:    u.String(),
		Header: t.upstreamHeader(req.Header),
	}

	if bodyMethods[method] {
		body := req.Body
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(string(body))
			if err != nil {
				return nil, fmt.Errorf("decode base64 request body: %w", err)
			}
			body = decoded
		}
		if body == nil {
			body = []byte{}
		}
		ur.Body = body
	}

	return ur, nil
}

// upstreamPath strips the mount prefix and substitutes the landing page for
// the root.
func (t *Translator) upstreamPath(p string) string {
	if mp := t.rc.MountPrefix; mp != "" && strings.HasPrefix(p, mp) {
		if rest := p[len(mp):]; rest == "" || rest[0] == '/' {
			p = rest
		}
	}
	if p == "" || p == "/" {
		return t.landingPath
	}
	return p
}

func (t *Translator) upstreamHeader(src http.Header) http.Header {
	dst := make(http.Header)
	dst.Set("User-Agent", t.userAgent)
	dst.Set("Accept", headerOr(src, "Accept", defaultAccept))
	dst.Set("Accept-Language", headerOr(src, "Accept-Language", defaultAcceptLanguage))
	dst.Set("Accept-Encoding", acceptEncoding)
	if cookies := src.Values("Cookie"); len(cookies) > 0 {
		dst.Set("Cookie", strings.Join(cookies, "; "))
	}
	if ct := src.Get("Content-Type"); ct != "" {
		dst.Set("Content-Type", ct)
	}
	return dst
}

func headerOr(h http.Header, key, fallback string) string {
	if v := h.Get(key); v != "" {
		return v
	}
	return fallback
}
