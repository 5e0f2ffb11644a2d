package httpclient

import (
	"net/http"
	"net/http/cookiejar"
	"time"

	"golang.org/x/net/publicsuffix"
)

const (
	DefaultTimeout         = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
	MaxIdleConnsPerHost    = 16
)

var defaultClient *http.Client

func init() {
	defaultClient = &http.Client{
		Timeout:   DefaultTimeout,
		Transport: NewDecodingTransport(newTransport()),
	}
}

func newTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: MaxIdleConnsPerHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		// Compression is negotiated by DecodingTransport so brotli is offered too.
		DisableCompression: true,
	}
}

// Default returns the shared tuned HTTP client (no cookie jar).
func Default() *http.Client {
	return defaultClient
}

// WithTimeout returns a client with the given timeout and a fresh copy of the default transport.
func WithTimeout(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewDecodingTransport(newTransport()),
	}
}

// NewSession returns a client with its own transport and cookie jar, so
// cookies and keep-alive connections are never shared with another session.
// Each identity slot owns one.
func NewSession(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// cookiejar.New never returns a non-nil error.
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return &http.Client{
		Timeout:   timeout,
		Jar:       jar,
		Transport: NewDecodingTransport(newTransport()),
	}
}
