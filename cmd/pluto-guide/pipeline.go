package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/config"
	"github.com/snapetech/plutoguide/internal/epg"
	"github.com/snapetech/plutoguide/internal/guide"
	"github.com/snapetech/plutoguide/internal/identity"
	"github.com/snapetech/plutoguide/internal/provider"
	"github.com/snapetech/plutoguide/internal/safeurl"
	"github.com/snapetech/plutoguide/internal/store"
	"github.com/snapetech/plutoguide/internal/tuner"
)

// app is the wired pipeline: one backend client, one identity pool, and the
// catalog and EPG stages on top of them.
type app struct {
	cfg     *config.Config
	log     logrus.FieldLogger
	regions config.Regions

	api     *provider.Client
	pool    *identity.Pool
	catalog *catalog.Client
	epg     *epg.Aggregator
}

func newApp(cfg *config.Config, log logrus.FieldLogger) (*app, error) {
	for _, u := range []string{cfg.BootURL, cfg.APIURL} {
		if u != "" && !safeurl.IsHTTPOrHTTPS(u) {
			return nil, fmt.Errorf("backend URL %q: must be http or https", u)
		}
	}
	regions, err := config.LoadRegions(cfg.RegionsFile)
	if err != nil {
		return nil, err
	}
	api := provider.New(cfg.BootURL, cfg.APIURL)
	api.Log = log
	pool := identity.NewPool(api, identity.PoolConfig{
		Size:        cfg.PoolSize,
		Username:    cfg.Username,
		Password:    cfg.Password,
		Regions:     regions,
		HTTPTimeout: cfg.HTTPTimeout,
		Log:         log,
	})
	cat := catalog.NewClient(pool, api, log)
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	agg := epg.NewAggregator(cat, pool, api, epg.Options{
		BatchSize:     cfg.BatchSize,
		WindowMinutes: cfg.WindowMinutes,
		Concurrency:   cfg.BatchConcurrency,
		Limiter:       limiter,
		Log:           log,
	})
	return &app{
		cfg:     cfg,
		log:     log,
		regions: regions,
		api:     api,
		pool:    pool,
		catalog: cat,
		epg:     agg,
	}, nil
}

// fetchChannels fetches each region's catalog in order and merges them.
func (a *app) fetchChannels(ctx context.Context, regions []string) ([]catalog.Channel, error) {
	per := make([]catalog.RegionChannels, 0, len(regions))
	for _, r := range regions {
		chs, err := a.catalog.FetchCatalog(ctx, r)
		if err != nil {
			return nil, err
		}
		a.log.WithField("region", r).Printf("Catalog: %d channels", len(chs))
		per = append(per, catalog.RegionChannels{Region: r, Channels: chs})
	}
	return catalog.MergeAll(per, a.regions), nil
}

// buildGuide runs the EPG aggregation for regions and returns the merged
// lineup with its programmes. Each run starts from an empty catalog cache.
func (a *app) buildGuide(ctx context.Context, regions []string, windows int) ([]catalog.Channel, []guide.Programme, error) {
	start := time.Now()
	a.catalog.Cache.Reset()
	pages, err := a.epg.FetchRegions(ctx, regions, windows)
	if err != nil {
		return nil, nil, err
	}
	// FetchRegions fetched every region's catalog through the cache.
	channels := catalog.MergeCached(a.catalog.Cache, regions, a.regions)
	programmes := guide.Build(pages, channels)
	a.log.Printf("Guide built for %s: %d channels, %d programmes from %d pages in %s",
		strings.Join(regions, ","), len(channels), len(programmes), len(pages), time.Since(start).Round(time.Millisecond))
	return channels, programmes, nil
}

// publish writes the guide to every configured sink. srv may be nil.
func (a *app) publish(ctx context.Context, channels []catalog.Channel, programmes []guide.Programme, xmltvPath, storePath string, srv *tuner.Server) error {
	if xmltvPath != "" {
		if err := guide.WriteFile(xmltvPath, channels, programmes); err != nil {
			return fmt.Errorf("write xmltv: %w", err)
		}
		a.log.Printf("Wrote %s and %s.gz", xmltvPath, xmltvPath)
	}
	if storePath != "" {
		st, err := store.Open(ctx, storePath)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.SaveGuide(ctx, channels, programmes, time.Now()); err != nil {
			return err
		}
	}
	if srv != nil {
		if err := srv.UpdateGuide(channels, programmes); err != nil {
			return fmt.Errorf("update served guide: %w", err)
		}
	}
	return nil
}

// restore loads the last stored guide; ok is false when there is none.
func restore(ctx context.Context, storePath string) (channels []catalog.Channel, programmes []guide.Programme, generated time.Time, ok bool, err error) {
	st, err := store.Open(ctx, storePath)
	if err != nil {
		return nil, nil, time.Time{}, false, err
	}
	defer st.Close()
	generated, ok, err = st.GeneratedAt(ctx)
	if err != nil || !ok {
		return nil, nil, time.Time{}, false, err
	}
	if channels, err = st.LoadChannels(ctx); err != nil {
		return nil, nil, time.Time{}, false, err
	}
	if programmes, err = st.LoadProgrammes(ctx); err != nil {
		return nil, nil, time.Time{}, false, err
	}
	return channels, programmes, generated, true, nil
}

// probeTargets maps each region to its configured header overrides.
func (a *app) probeTargets(regions []string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(regions))
	for _, r := range regions {
		out[strings.ToLower(r)] = a.pool.Headers(r)
	}
	return out
}
