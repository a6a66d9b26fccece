package fetch

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// acceptEncoding matches what a desktop browser advertises. Setting it explicitly
// turns off net/http's transparent gzip handling, so readBody decodes every
// advertised encoding itself.
const acceptEncoding = "gzip, deflate, br"

// readBody reads the response body and undoes Content-Encoding layers in reverse order.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	encodings := resp.Header.Values("Content-Encoding")
	data := raw
	for i := len(encodings) - 1; i >= 0; i-- {
		for _, enc := range splitEncodings(encodings[i]) {
			data, err = decode(enc, data)
			if err != nil {
				return nil, err
			}
		}
	}
	return data, nil
}

func splitEncodings(header string) []string {
	parts := strings.Split(header, ",")
	out := make([]string, 0, len(parts))
	for i := len(parts) - 1; i >= 0; i-- {
		if p := strings.ToLower(strings.TrimSpace(parts[i])); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func decode(encoding string, data []byte) ([]byte, error) {
	switch encoding {
	case "identity":
		return data, nil
	case "gzip", "x-gzip":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		defer func() { _ = r.Close() }()
		return io.ReadAll(r)
	case "deflate":
		// Servers disagree on zlib-wrapped vs raw deflate.
		if zr, err := zlib.NewReader(bytes.NewReader(data)); err == nil {
			defer func() { _ = zr.Close() }()
			return io.ReadAll(zr)
		}
		fr := flate.NewReader(bytes.NewReader(data))
		defer func() { _ = fr.Close() }()
		return io.ReadAll(fr)
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}
