package identity

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/snapetech/plutoguide/internal/provider"
)

// TokenTTL is how long a session token is reused before the slot boots again.
const TokenTTL = 4 * time.Hour

// Token is a backend session token issued to one slot for one region.
type Token struct {
	Value    string
	Region   string
	IssuedAt time.Time
}

// Fresh reports whether the token is younger than TokenTTL at now.
func (t Token) Fresh(now time.Time) bool {
	return now.Sub(t.IssuedAt) < TokenTTL
}

// Booter starts a backend session. *provider.Client implements it.
type Booter interface {
	Boot(ctx context.Context, hc *http.Client, p provider.BootParams) (*provider.BootResponse, error)
}

// Slot is one virtual device: its own client ID, HTTP session and per-region
// token cache. Slots live as long as their pool.
type Slot struct {
	id       string
	username string
	password string
	client   *http.Client

	mu     sync.Mutex // guards tokens only; never held across a boot call
	tokens map[string]Token
}

// ID returns the slot's device identity (the clientID sent on boot).
func (s *Slot) ID() string { return s.id }

// Client returns the slot's HTTP session. Requests made with a slot's token
// should go through the same session.
func (s *Slot) Client() *http.Client { return s.client }

// Cached returns the cached token for region, fresh or not.
func (s *Slot) Cached(region string) (Token, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[region]
	return t, ok
}

func (s *Slot) store(t Token) {
	s.mu.Lock()
	s.tokens[t.Region] = t
	s.mu.Unlock()
}

func (s *Slot) reset() {
	s.mu.Lock()
	s.tokens = make(map[string]Token)
	s.mu.Unlock()
}

func (s *Slot) short() string {
	if len(s.id) > 8 {
		return s.id[:8]
	}
	return s.id
}
