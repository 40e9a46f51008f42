// Package content classifies upstream bodies and reverses their transfer
// compression.
package content

import "strings"

// Kind is the rewrite class of a response body.
type Kind int

const (
	// KindBinary bodies are carried byte-for-byte as base64.
	KindBinary Kind = iota
	// KindText bodies are passed through as text.
	KindText
	// KindHTML bodies go through the document rewriter.
	KindHTML
)

// String returns the metric label for k.
func (k Kind) String() string {
	switch k {
	case KindHTML:
		return "html"
	case KindText:
		return "text"
	default:
		return "binary"
	}
}

// textTypes are media type fragments that mark a body as text.
var textTypes = []string{"text/", "application/json", "application/javascript"}

// Classify maps a declared content type to a Kind. HTML is checked before the
// generic text fragments because text/html also contains "text/".
func Classify(contentType string) Kind {
	ct := strings.ToLower(contentType)
	if strings.Contains(ct, "text/html") {
		return KindHTML
	}
	for _, t := range textTypes {
		if strings.Contains(ct, t) {
			return KindText
		}
	}
	return KindBinary
}
