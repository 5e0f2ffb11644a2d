// Package identity manages the pool of virtual device identities.
//
// The backend allows one active session per device, so concurrent streams and
// metadata crawls each borrow a different slot. Slots are handed out
// round-robin; each slot caches one token per region for TokenTTL.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/snapetech/plutoguide/internal/config"
	"github.com/snapetech/plutoguide/internal/httpclient"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/metrics"
	"github.com/snapetech/plutoguide/internal/provider"
)

// DefaultPoolSize is the number of stream slots when none is configured.
const DefaultPoolSize = 10

// ErrAuthFailed is returned when a slot could not obtain a token. The
// underlying transport or backend error is wrapped alongside it.
var ErrAuthFailed = errors.New("authentication failed")

// PoolConfig configures NewPool.
type PoolConfig struct {
	Size     int
	Username string
	Password string
	// Regions supplies per-region header overrides for boot calls.
	Regions     config.Regions
	HTTPTimeout time.Duration
	Log         logrus.FieldLogger
}

// Pool hands out identity slots round-robin and refreshes their tokens.
type Pool struct {
	booter  Booter
	regions config.Regions
	log     logrus.FieldLogger
	now     func() time.Time

	slots []*Slot
	meta  *Slot // metadata traffic; not part of the rotation

	mu   sync.Mutex
	next uint64
}

// NewPool creates cfg.Size slots (DefaultPoolSize if <= 0) plus one metadata slot.
func NewPool(b Booter, cfg PoolConfig) *Pool {
	size := cfg.Size
	if size <= 0 {
		size = DefaultPoolSize
	}
	regions := cfg.Regions
	if regions == nil {
		regions = config.DefaultRegions()
	}
	p := &Pool{
		booter:  b,
		regions: regions,
		log:     logging.Or(cfg.Log),
		now:     time.Now,
		slots:   make([]*Slot, size),
	}
	for i := range p.slots {
		p.slots[i] = newSlot(cfg)
	}
	p.meta = newSlot(cfg)
	return p
}

func newSlot(cfg PoolConfig) *Slot {
	return &Slot{
		id:       uuid.NewString(),
		username: cfg.Username,
		password: cfg.Password,
		client:   httpclient.NewSession(cfg.HTTPTimeout),
		tokens:   make(map[string]Token),
	}
}

// Size returns the number of stream slots.
func (p *Pool) Size() int { return len(p.slots) }

// Slots returns the stream slots in creation order.
func (p *Pool) Slots() []*Slot {
	out := make([]*Slot, len(p.slots))
	copy(out, p.slots)
	return out
}

// AcquireToken picks the next slot in rotation and returns a fresh token for
// region from it, booting a new session when the cached one is absent or stale.
// On failure the slot's cache is left as it was and the error wraps ErrAuthFailed.
func (p *Pool) AcquireToken(ctx context.Context, region string) (Token, *Slot, error) {
	p.mu.Lock()
	idx := int(p.next % uint64(len(p.slots)))
	p.next++
	p.mu.Unlock()

	metrics.SlotAcquisitions.WithLabelValues(strconv.Itoa(idx)).Inc()
	s := p.slots[idx]
	t, err := p.token(ctx, s, region)
	if err != nil {
		return Token{}, nil, err
	}
	return t, s, nil
}

// MetadataToken returns a fresh token from the metadata slot, which serves
// catalog and guide crawls so they never displace a stream session.
func (p *Pool) MetadataToken(ctx context.Context, region string) (Token, *Slot, error) {
	t, err := p.token(ctx, p.meta, region)
	if err != nil {
		return Token{}, nil, err
	}
	return t, p.meta, nil
}

// Reset drops every cached token on every slot.
func (p *Pool) Reset() {
	for _, s := range p.slots {
		s.reset()
	}
	p.meta.reset()
}

// Headers returns the header overrides configured for region.
func (p *Pool) Headers(region string) map[string]string {
	rc, _ := p.regions.Lookup(region)
	return rc.HeaderOverrides
}

func (p *Pool) token(ctx context.Context, s *Slot, region string) (Token, error) {
	now := p.now()
	if t, ok := s.Cached(region); ok && t.Fresh(now) {
		metrics.TokenCacheHits.WithLabelValues(region).Inc()
		return t, nil
	}

	resp, err := p.booter.Boot(ctx, s.client, provider.BootParams{
		ClientID: s.id,
		Username: s.username,
		Password: s.password,
		Headers:  p.Headers(region),
	})
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(region, "error").Inc()
		return Token{}, fmt.Errorf("%w: slot %s region %s: %w", ErrAuthFailed, s.short(), region, err)
	}
	metrics.TokenRefreshes.WithLabelValues(region, "ok").Inc()

	t := Token{Value: resp.SessionToken, Region: region, IssuedAt: now}
	s.store(t)
	p.log.WithFields(logrus.Fields{"slot": s.short(), "region": region}).
		Infof("identity: new token at %s", now.UTC().Format("2006-01-02 15:04:05 -0700"))
	return t, nil
}

// Session returns the provider session for a token obtained from this pool.
func (p *Pool) Session(t Token) provider.Session {
	return provider.Session{Token: t.Value, Headers: p.Headers(t.Region)}
}

var _ Booter = (*provider.Client)(nil)

