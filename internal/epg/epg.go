// Package epg fetches timeline pages for every channel of a region over
// consecutive server-reported time windows and merges multi-region runs.
package epg

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/identity"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/metrics"
	"github.com/snapetech/plutoguide/internal/provider"
)

const (
	DefaultBatchSize     = 100
	DefaultWindowMinutes = 720
	DefaultWindowCount   = 3
)

// ErrAggregationAborted wraps any failure that stopped an aggregation. No
// partial result is returned alongside it.
var ErrAggregationAborted = errors.New("epg aggregation aborted")

// Page is one raw timeline response and where it came from.
type Page struct {
	Region string
	Window int // 0-based window index within the region
	Batch  int // 0-based batch index within the window
	Start  time.Time
	Data   []provider.ChannelTimeline
	Meta   provider.TimelineMeta
}

// ChannelSource supplies a region's channel universe. *catalog.Client implements it.
type ChannelSource interface {
	FetchCatalog(ctx context.Context, region string) ([]catalog.Channel, error)
}

// TokenSource hands out metadata tokens. *identity.Pool implements it.
type TokenSource interface {
	MetadataToken(ctx context.Context, region string) (identity.Token, *identity.Slot, error)
	Session(t identity.Token) provider.Session
}

// API fetches one timeline batch. *provider.Client implements it.
type API interface {
	Timelines(ctx context.Context, hc *http.Client, s provider.Session, start time.Time, channelIDs []string, durationMinutes int) (*provider.TimelineResponse, error)
}

// Options tunes an Aggregator. Zero values take the defaults.
type Options struct {
	BatchSize     int
	WindowMinutes int
	// Concurrency bounds the timeline batches in flight within one window.
	Concurrency int
	// Limiter paces batch requests; nil = unpaced.
	Limiter *rate.Limiter
	Log     logrus.FieldLogger
}

// Aggregator walks time windows for a region.
type Aggregator struct {
	channels ChannelSource
	tokens   TokenSource
	api      API

	batchSize     int
	windowMinutes int
	concurrency   int
	limiter       *rate.Limiter
	log           logrus.FieldLogger
	now           func() time.Time
}

// NewAggregator returns an aggregator over the given sources.
func NewAggregator(channels ChannelSource, tokens TokenSource, api API, opts Options) *Aggregator {
	a := &Aggregator{
		channels:      channels,
		tokens:        tokens,
		api:           api,
		batchSize:     opts.BatchSize,
		windowMinutes: opts.WindowMinutes,
		concurrency:   opts.Concurrency,
		limiter:       opts.Limiter,
		log:           logging.Or(opts.Log),
		now:           time.Now,
	}
	if a.batchSize <= 0 {
		a.batchSize = DefaultBatchSize
	}
	if a.windowMinutes <= 0 {
		a.windowMinutes = DefaultWindowMinutes
	}
	if a.concurrency <= 0 {
		a.concurrency = 1
	}
	return a
}

// FetchWindow fetches windowCount consecutive windows of timelines for every
// channel in region. Window 0 starts at the top of the current UTC hour; each
// following window starts at the previous window's reported end, truncated to
// the hour. Pages are returned in window then batch order.
func (a *Aggregator) FetchWindow(ctx context.Context, region string, windowCount int) ([]Page, error) {
	if windowCount <= 0 {
		windowCount = DefaultWindowCount
	}
	abort := func(err error) error {
		return fmt.Errorf("%w: %s: %w", ErrAggregationAborted, region, err)
	}

	chs, err := a.channels.FetchCatalog(ctx, region)
	if err != nil {
		return nil, abort(err)
	}
	batches := chunk(catalog.IDs(chs), a.batchSize)
	if len(batches) == 0 {
		a.log.WithField("region", region).Warnf("epg: no channels, nothing to fetch")
		return nil, nil
	}

	log := a.log.WithField("region", region)
	start := a.now().UTC().Truncate(time.Hour)
	var pages []Page
	for w := 0; w < windowCount; w++ {
		log.Infof("epg: retrieving window %d/%d starting %s (%d batches)", w+1, windowCount, start.Format(time.RFC3339), len(batches))
		tok, slot, err := a.tokens.MetadataToken(ctx, region)
		if err != nil {
			return nil, abort(err)
		}
		got, err := a.fetchBatches(ctx, slot.Client(), a.tokens.Session(tok), start, batches)
		if err != nil {
			return nil, abort(fmt.Errorf("window %d: %w", w, err))
		}
		end, err := windowEnd(got[len(got)-1])
		if err != nil {
			return nil, abort(fmt.Errorf("window %d: %w", w, err))
		}
		for i, resp := range got {
			pages = append(pages, Page{
				Region: region,
				Window: w,
				Batch:  i,
				Start:  start,
				Data:   resp.Data,
				Meta:   resp.Meta,
			})
		}
		metrics.TimelinePages.WithLabelValues(region).Add(float64(len(got)))
		start = end.Truncate(time.Hour)
	}
	return pages, nil
}

// fetchBatches fetches every batch of one window concurrently and returns the
// responses in batch order. The first failure cancels the rest.
func (a *Aggregator) fetchBatches(ctx context.Context, hc *http.Client, sess provider.Session, start time.Time, batches [][]string) ([]*provider.TimelineResponse, error) {
	out := make([]*provider.TimelineResponse, len(batches))
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(a.concurrency)
	for i, ids := range batches {
		p.Go(func(ctx context.Context) error {
			if a.limiter != nil {
				if err := a.limiter.Wait(ctx); err != nil {
					return err
				}
			}
			resp, err := a.api.Timelines(ctx, hc, sess, start, ids, a.windowMinutes)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			out[i] = resp
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func windowEnd(resp *provider.TimelineResponse) (time.Time, error) {
	if resp.Meta.EndDateTime == "" {
		return time.Time{}, fmt.Errorf("meta.endDateTime missing: %w", provider.ErrMalformedResponse)
	}
	end, err := time.Parse(time.RFC3339Nano, resp.Meta.EndDateTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("meta.endDateTime %q: %w", resp.Meta.EndDateTime, provider.ErrMalformedResponse)
	}
	return end.UTC(), nil
}

func chunk(ids []string, size int) [][]string {
	var out [][]string
	for i := 0; i < len(ids); i += size {
		j := i + size
		if j > len(ids) {
			j = len(ids)
		}
		out = append(out, ids[i:j])
	}
	return out
}

// FetchRegions fetches regions one after another and deduplicates the
// combined pages with Deduplicate. The first region failure aborts the run.
func (a *Aggregator) FetchRegions(ctx context.Context, regions []string, windowCount int) ([]Page, error) {
	if windowCount <= 0 {
		windowCount = DefaultWindowCount
	}
	var all []Page
	for _, r := range regions {
		pages, err := a.FetchWindow(ctx, r, windowCount)
		if err != nil {
			return nil, err
		}
		all = append(all, pages...)
	}
	return Deduplicate(all, windowCount), nil
}

// Deduplicate keeps, for each channel id, only its first windowCount
// occurrences across pages in order; later entries are dropped. Channel ids
// are global across regions, so a channel fetched by two regions keeps the
// first region's windows. Pages are copied; the input is not modified.
func Deduplicate(pages []Page, windowCount int) []Page {
	seen := make(map[string]int)
	dropped := 0
	out := make([]Page, len(pages))
	for i, p := range pages {
		kept := make([]provider.ChannelTimeline, 0, len(p.Data))
		for _, entry := range p.Data {
			if seen[entry.ChannelID] >= windowCount {
				dropped++
				continue
			}
			seen[entry.ChannelID]++
			kept = append(kept, entry)
		}
		p.Data = kept
		out[i] = p
	}
	if dropped > 0 {
		metrics.DroppedDuplicates.Add(float64(dropped))
	}
	return out
}
