package content

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

// Decode reverses a Content-Encoding. It reports whether the body was
// decoded; unknown encodings leave the body untouched and return false so
// the caller keeps the header.
func Decode(encoding string, body []byte) ([]byte, bool, error) {
	enc := strings.ToLower(strings.TrimSpace(encoding))
	if enc == "" || enc == "identity" {
		return body, true, nil
	}
	if len(body) == 0 {
		return body, true, nil
	}

	var (
		r   io.Reader
		err error
	)
	br := bytes.NewReader(body)
	switch enc {
	case "gzip", "x-gzip":
		r, err = gzip.NewReader(br)
	case "deflate":
		// Servers disagree on whether deflate means zlib-wrapped or raw.
		r, err = zlib.NewReader(br)
		if err != nil {
			r, err = flate.NewReader(bytes.NewReader(body)), nil
		}
	case "br":
		r = brotli.NewReader(br)
	case "zstd":
		d, zerr := zstd.NewReader(br)
		if zerr != nil {
			return nil, false, fmt.Errorf("decode %s: %w", enc, zerr)
		}
		defer d.Close()
		r = d
	default:
		return body, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", enc, err)
	}

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", enc, err)
	}
	return out, true, nil
}
