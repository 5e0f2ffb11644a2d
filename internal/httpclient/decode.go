package httpclient

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

const acceptEncoding = "br, gzip"

// DecodingTransport advertises brotli and gzip and transparently decodes the
// response body. The backend serves br to browser-like clients, which the
// standard transport cannot decode on its own.
type DecodingTransport struct {
	Base http.RoundTripper
}

// NewDecodingTransport wraps base (http.DefaultTransport when nil).
func NewDecodingTransport(base http.RoundTripper) *DecodingTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &DecodingTransport{Base: base}
}

func (t *DecodingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" && req.Header.Get("Range") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", acceptEncoding)
	}
	resp, err := t.Base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if req.Method == http.MethodHead || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotModified {
		return resp, nil
	}
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		resp.Body = &decodedBody{Reader: brotli.NewReader(resp.Body), raw: resp.Body}
	case "gzip":
		gz := &lazyGzip{src: resp.Body}
		resp.Body = &decodedBody{Reader: gz, raw: resp.Body, closer: gz}
	default:
		return resp, nil
	}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return resp, nil
}

type decodedBody struct {
	io.Reader
	raw    io.ReadCloser
	closer io.Closer
}

func (b *decodedBody) Close() error {
	if b.closer != nil {
		_ = b.closer.Close()
	}
	return b.raw.Close()
}

// lazyGzip reads the gzip header on first Read, so a corrupt body surfaces as
// a read error on a response the caller already holds.
type lazyGzip struct {
	src io.Reader
	gz  *gzip.Reader
	err error
}

func (l *lazyGzip) Read(p []byte) (int, error) {
	if l.gz == nil && l.err == nil {
		l.gz, l.err = gzip.NewReader(l.src)
	}
	if l.err != nil {
		return 0, l.err
	}
	return l.gz.Read(p)
}

func (l *lazyGzip) Close() error {
	if l.gz != nil {
		return l.gz.Close()
	}
	return nil
}
