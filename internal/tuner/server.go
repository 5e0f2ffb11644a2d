// Package tuner serves the generated lineup and guide over HTTP and hands
// out pooled stream tokens.
package tuner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/guide"
	"github.com/snapetech/plutoguide/internal/identity"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/metrics"
	"github.com/snapetech/plutoguide/internal/provider"
)

// DefaultAddr is used when Server.Addr is empty.
const DefaultAddr = ":8080"

// TokenSource hands out stream tokens; *identity.Pool implements it.
type TokenSource interface {
	AcquireToken(ctx context.Context, region string) (identity.Token, *identity.Slot, error)
}

// Server serves /lineup.json, /guide.xml, /healthz, /metrics and
// /token/{region}. The guide is swapped in whole by UpdateGuide.
type Server struct {
	Addr    string
	BaseURL string
	Tokens  TokenSource
	// Regions limits /token to these codes; empty allows any.
	Regions []string
	Log     logrus.FieldLogger

	current atomic.Pointer[snapshot]
}

type snapshot struct {
	channels   []catalog.Channel
	programmes int
	xmltv      []byte
	updated    time.Time
}

// UpdateGuide renders and publishes a new guide. Requests in flight keep the
// snapshot they started with.
func (s *Server) UpdateGuide(channels []catalog.Channel, programmes []guide.Programme) error {
	var buf bytes.Buffer
	if err := guide.WriteXMLTV(&buf, channels, programmes); err != nil {
		return err
	}
	s.current.Store(&snapshot{
		channels:   channels,
		programmes: len(programmes),
		xmltv:      buf.Bytes(),
		updated:    time.Now(),
	})
	metrics.GuideProgrammes.Set(float64(len(programmes)))
	s.log().Printf("Guide updated: %d channels, %d programmes", len(channels), len(programmes))
	return nil
}

func (s *Server) log() logrus.FieldLogger { return logging.Or(s.Log) }

// Handler returns the router; Run serves it.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.serveHealth)
	r.Get("/lineup.json", s.serveLineup)
	r.Get("/guide.xml", s.serveGuide)
	r.Get("/token/{region}", s.serveToken)
	r.Handle("/metrics", metrics.Handler())
	return r
}

// Run blocks until ctx is cancelled or the server fails to start. On shutdown it stops
// accepting new connections and waits briefly for in-flight requests to finish.
func (s *Server) Run(ctx context.Context) error {
	addr := s.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.log().Printf("Guide server listening on %s (BaseURL %s)", addr, s.BaseURL)
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		s.log().Print("Shutting down guide server ...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log().Printf("Guide server shutdown: %v", err)
		}
		<-serverErr
		return nil
	}
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.log().WithFields(logrus.Fields{
			"status": status,
			"bytes":  ww.BytesWritten(),
			"dur":    time.Since(start).Round(time.Millisecond).String(),
		}).Debugf("http: %s %s", r.Method, r.URL.Path)
	})
}

// serveHealth returns 200 {"status":"ok",...} once a guide has been published,
// 503 {"status":"loading"} before.
func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.current.Load()
	if snap == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"channels":     len(snap.channels),
		"programmes":   snap.programmes,
		"last_refresh": snap.updated.UTC().Format(time.RFC3339),
	})
}

func (s *Server) serveGuide(w http.ResponseWriter, r *http.Request) {
	snap := s.current.Load()
	if snap == nil {
		http.Error(w, "guide not ready", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Last-Modified", snap.updated.UTC().Format(http.TimeFormat))
	_, _ = w.Write(snap.xmltv)
}

type tokenResponse struct {
	Region    string    `json:"region"`
	Slot      string    `json:"slot"`
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) serveToken(w http.ResponseWriter, r *http.Request) {
	region := strings.ToLower(chi.URLParam(r, "region"))
	if !s.allowedRegion(region) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown region " + region})
		return
	}
	if s.Tokens == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no token source"})
		return
	}
	tok, slot, err := s.Tokens.AcquireToken(r.Context(), region)
	if err != nil {
		s.log().WithField("region", region).Printf("Token request failed: %v", err)
		status := http.StatusBadGateway
		if errors.Is(err, provider.ErrTransport) {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Region:    tok.Region,
		Slot:      slot.ID(),
		Token:     tok.Value,
		IssuedAt:  tok.IssuedAt.UTC(),
		ExpiresAt: tok.IssuedAt.Add(identity.TokenTTL).UTC(),
	})
}

func (s *Server) allowedRegion(region string) bool {
	if region == "" {
		return false
	}
	if len(s.Regions) == 0 {
		return true
	}
	for _, r := range s.Regions {
		if strings.EqualFold(r, region) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
