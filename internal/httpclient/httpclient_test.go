package httpclient

import (
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
)

func TestDecodingTransport_brotli(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept-Encoding") != acceptEncoding {
			t.Errorf("Accept-Encoding = %q", r.Header.Get("Accept-Encoding"))
		}
		var buf bytes.Buffer
		bw := brotli.NewWriter(&buf)
		bw.Write([]byte(`{"ok":true}`))
		bw.Close()
		w.Header().Set("Content-Encoding", "br")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	resp, err := WithTimeout(5 * time.Second).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q", body)
	}
	if resp.Header.Get("Content-Encoding") != "" {
		t.Errorf("Content-Encoding should be stripped after decoding")
	}
}

func TestDecodingTransport_gzip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		gw.Write([]byte("plain"))
		gw.Close()
		w.Header().Set("Content-Encoding", "gzip")
		w.Write(buf.Bytes())
	}))
	defer srv.Close()

	resp, err := NewSession(5 * time.Second).Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "plain" {
		t.Errorf("body = %q", body)
	}
}

func TestDecodingTransport_corruptGzipFailsOnRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "gzip")
		w.Write([]byte("not gzip at all"))
	}))
	defer srv.Close()

	resp, err := NewSession(5 * time.Second).Get(srv.URL)
	if err != nil {
		t.Fatalf("round trip should succeed, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if _, err := io.ReadAll(resp.Body); err == nil {
		t.Error("reading a corrupt gzip body should fail")
	}
}

func TestNewSession_isolatedCookies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/set" {
			http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc", Path: "/"})
			return
		}
		if c, err := r.Cookie("sid"); err == nil {
			w.Write([]byte(c.Value))
		}
	}))
	defer srv.Close()

	a := NewSession(5 * time.Second)
	b := NewSession(5 * time.Second)
	resp, err := a.Get(srv.URL + "/set")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	read := func(c *http.Client) string {
		resp, err := c.Get(srv.URL + "/get")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return string(body)
	}
	if got := read(a); got != "abc" {
		t.Errorf("session a cookie = %q, want abc", got)
	}
	if got := read(b); got != "" {
		t.Errorf("session b should not see a's cookie, got %q", got)
	}
}

func TestHostSemaphore_limitsPerHost(t *testing.T) {
	h := NewHostSemaphore(1)
	release, err := h.Acquire(context.Background(), "http://example.com/a")
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Acquire(ctx, "http://example.com/b"); err == nil {
		t.Fatal("second acquire on same host should block until ctx expires")
	}
	other, err := h.Acquire(context.Background(), "http://other.example.com/")
	if err != nil {
		t.Fatalf("different host should not block: %v", err)
	}
	other()
	release()
	again, err := h.Acquire(context.Background(), "http://example.com/c")
	if err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	again()
}
