package epg

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/identity"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/provider"
)

type staticBooter struct{}

func (staticBooter) Boot(context.Context, *http.Client, provider.BootParams) (*provider.BootResponse, error) {
	return &provider.BootResponse{SessionToken: "tok"}, nil
}

type staticChannels map[string][]string

func (s staticChannels) FetchCatalog(_ context.Context, region string) ([]catalog.Channel, error) {
	ids, ok := s[region]
	if !ok {
		return nil, fmt.Errorf("catalog %s: %w", region, provider.ErrBackend)
	}
	out := make([]catalog.Channel, len(ids))
	for i, id := range ids {
		out[i] = catalog.Channel{ID: id, Number: i + 1, Region: region}
	}
	return out, nil
}

type call struct {
	start time.Time
	ids   []string
}

// fakeTimelines answers every batch with one entry per channel and reports an
// end 12h30m after the requested start.
type fakeTimelines struct {
	mu      sync.Mutex
	calls   []call
	failOn  string // channel id whose batch fails
	noMeta  bool
	endSkew time.Duration
}

func (f *fakeTimelines) Timelines(_ context.Context, _ *http.Client, s provider.Session, start time.Time, ids []string, dur int) (*provider.TimelineResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{start: start, ids: append([]string(nil), ids...)})
	f.mu.Unlock()
	if dur != DefaultWindowMinutes {
		return nil, fmt.Errorf("duration = %d", dur)
	}
	for _, id := range ids {
		if id == f.failOn {
			return nil, &provider.StatusError{Endpoint: provider.EndpointTimelines, Code: 500, Body: "boom"}
		}
	}
	resp := &provider.TimelineResponse{}
	for _, id := range ids {
		resp.Data = append(resp.Data, provider.ChannelTimeline{ChannelID: id})
	}
	if !f.noMeta {
		skew := f.endSkew
		if skew == 0 {
			skew = 12*time.Hour + 30*time.Minute
		}
		resp.Meta.EndDateTime = start.Add(skew).Format("2006-01-02T15:04:05.000Z")
	}
	return resp, nil
}

func (f *fakeTimelines) starts() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[time.Time]bool{}
	var out []time.Time
	for _, c := range f.calls {
		if !seen[c.start] {
			seen[c.start] = true
			out = append(out, c.start)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func newTestAggregator(ch ChannelSource, api API, opts Options) *Aggregator {
	opts.Log = logging.Discard()
	pool := identity.NewPool(staticBooter{}, identity.PoolConfig{Size: 1, Log: logging.Discard()})
	a := NewAggregator(ch, pool, api, opts)
	a.now = func() time.Time { return time.Date(2024, 3, 1, 10, 37, 12, 0, time.UTC) }
	return a
}

func ids(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s%03d", prefix, i)
	}
	return out
}

func TestFetchWindow_windowProgression(t *testing.T) {
	api := &fakeTimelines{}
	a := newTestAggregator(staticChannels{"uk": {"a", "b"}}, api, Options{})

	pages, err := a.FetchWindow(context.Background(), "uk", 3)
	require.NoError(t, err)
	require.Len(t, pages, 3)

	want := []time.Time{
		time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC), // 22:30 truncated
		time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, want, api.starts())
	for i, p := range pages {
		assert.Equal(t, i, p.Window)
		assert.Equal(t, want[i], p.Start)
		assert.Equal(t, "uk", p.Region)
	}
}

func TestFetchWindow_batchesOf100InOrder(t *testing.T) {
	api := &fakeTimelines{}
	all := ids("c", 250)
	a := newTestAggregator(staticChannels{"uk": all}, api, Options{Concurrency: 4, Limiter: rate.NewLimiter(rate.Inf, 1)})

	pages, err := a.FetchWindow(context.Background(), "uk", 2)
	require.NoError(t, err)
	require.Len(t, pages, 6)

	sizes := []int{100, 100, 50, 100, 100, 50}
	for i, p := range pages {
		assert.Len(t, p.Data, sizes[i], "page %d", i)
		assert.Equal(t, i%3, p.Batch)
	}
	assert.Equal(t, "c000", pages[0].Data[0].ChannelID)
	assert.Equal(t, "c100", pages[1].Data[0].ChannelID)
	assert.Equal(t, "c249", pages[2].Data[49].ChannelID)

	api.mu.Lock()
	defer api.mu.Unlock()
	require.Len(t, api.calls, 6)
	for _, c := range api.calls {
		assert.LessOrEqual(t, len(c.ids), 100)
	}
}

func TestFetchWindow_batchFailureAborts(t *testing.T) {
	api := &fakeTimelines{failOn: "c150"}
	a := newTestAggregator(staticChannels{"uk": ids("c", 250)}, api, Options{Concurrency: 2})

	pages, err := a.FetchWindow(context.Background(), "uk", 3)
	require.Error(t, err)
	assert.Nil(t, pages)
	assert.ErrorIs(t, err, ErrAggregationAborted)
	assert.ErrorIs(t, err, provider.ErrBackend)
	assert.True(t, strings.Contains(err.Error(), "window 0"), err.Error())
}

func TestFetchWindow_missingEndTime(t *testing.T) {
	api := &fakeTimelines{noMeta: true}
	a := newTestAggregator(staticChannels{"uk": {"a"}}, api, Options{})

	_, err := a.FetchWindow(context.Background(), "uk", 2)
	assert.ErrorIs(t, err, ErrAggregationAborted)
	assert.ErrorIs(t, err, provider.ErrMalformedResponse)
}

func TestFetchWindow_catalogFailureAborts(t *testing.T) {
	a := newTestAggregator(staticChannels{}, &fakeTimelines{}, Options{})
	_, err := a.FetchWindow(context.Background(), "uk", 1)
	assert.ErrorIs(t, err, ErrAggregationAborted)
}

func TestFetchWindow_noChannels(t *testing.T) {
	api := &fakeTimelines{}
	a := newTestAggregator(staticChannels{"uk": nil}, api, Options{})
	pages, err := a.FetchWindow(context.Background(), "uk", 3)
	require.NoError(t, err)
	assert.Empty(t, pages)
	assert.Empty(t, api.calls)
}

func page(region string, ids ...string) Page {
	p := Page{Region: region}
	for _, id := range ids {
		p.Data = append(p.Data, provider.ChannelTimeline{ChannelID: id})
	}
	return p
}

func channelIDs(p Page) []string {
	var out []string
	for _, e := range p.Data {
		out = append(out, e.ChannelID)
	}
	return out
}

func TestDeduplicate_keepsFirstWindowCount(t *testing.T) {
	in := []Page{
		page("uk", "a"), page("uk", "a"), page("uk", "a"),
		page("ca", "a", "b"), page("ca", "a"),
	}
	out := Deduplicate(in, 3)
	require.Len(t, out, 5)
	kept := 0
	for _, p := range out {
		for _, id := range channelIDs(p) {
			if id == "a" {
				kept++
			}
		}
	}
	assert.Equal(t, 3, kept)
	assert.Equal(t, []string{"b"}, channelIDs(out[3]))
	assert.Empty(t, channelIDs(out[4]))
	// input untouched
	assert.Equal(t, []string{"a", "b"}, channelIDs(in[3]))
}

func TestFetchRegions_dedupAcrossRegions(t *testing.T) {
	api := &fakeTimelines{}
	a := newTestAggregator(staticChannels{"us_east": {"a"}, "uk": {"a", "b"}}, api, Options{})

	pages, err := a.FetchRegions(context.Background(), []string{"us_east", "uk"}, 2)
	require.NoError(t, err)
	require.Len(t, pages, 4)
	assert.Equal(t, []string{"a"}, channelIDs(pages[0]))
	assert.Equal(t, []string{"a"}, channelIDs(pages[1]))
	assert.Equal(t, []string{"b"}, channelIDs(pages[2]))
	assert.Equal(t, []string{"b"}, channelIDs(pages[3]))
}

func TestFetchRegions_regionFailureAborts(t *testing.T) {
	a := newTestAggregator(staticChannels{"uk": {"a"}}, &fakeTimelines{}, Options{})
	_, err := a.FetchRegions(context.Background(), []string{"uk", "fr"}, 1)
	assert.ErrorIs(t, err, ErrAggregationAborted)
}
