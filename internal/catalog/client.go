package catalog

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"github.com/snapetech/plutoguide/internal/identity"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/metrics"
	"github.com/snapetech/plutoguide/internal/provider"
)

const logoImageType = "colorLogoPNG"

// TokenSource hands out metadata tokens. *identity.Pool implements it.
type TokenSource interface {
	MetadataToken(ctx context.Context, region string) (identity.Token, *identity.Slot, error)
	Session(t identity.Token) provider.Session
}

// API lists channels and categories. *provider.Client implements it.
type API interface {
	Channels(ctx context.Context, hc *http.Client, s provider.Session) ([]provider.ChannelDTO, error)
	Categories(ctx context.Context, hc *http.Client, s provider.Session) ([]provider.CategoryDTO, error)
}

// Client fetches per-region channel catalogs.
type Client struct {
	Tokens TokenSource
	API    API
	// Cache, when set, receives every successfully fetched catalog.
	Cache *Cache
	Log   logrus.FieldLogger
}

// NewClient returns a catalog client with an empty cache.
func NewClient(tokens TokenSource, api API, log logrus.FieldLogger) *Client {
	return &Client{Tokens: tokens, API: api, Cache: NewCache(), Log: logging.Or(log)}
}

// FetchCatalog fetches region's channels and categories with one metadata
// token and returns the channels numbered and sorted ascending by number.
// Any failure aborts the fetch; no partial catalog is returned or cached.
func (c *Client) FetchCatalog(ctx context.Context, region string) ([]Channel, error) {
	tok, slot, err := c.Tokens.MetadataToken(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", region, err)
	}
	sess := c.Tokens.Session(tok)
	hc := slot.Client()

	var (
		dtos []provider.ChannelDTO
		cats []provider.CategoryDTO
	)
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		var err error
		dtos, err = c.API.Channels(ctx, hc, sess)
		return err
	})
	p.Go(func(ctx context.Context) error {
		var err error
		cats, err = c.API.Categories(ctx, hc, sess)
		return err
	})
	if err := p.Wait(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", region, err)
	}

	channels := build(region, dtos, cats)
	metrics.CatalogChannels.WithLabelValues(region).Set(float64(len(channels)))
	logging.Or(c.Log).WithField("region", region).Infof("catalog: %d channels, %d categories", len(channels), len(cats))
	if c.Cache != nil {
		c.Cache.Put(region, channels)
	}
	return channels, nil
}

// build turns provider descriptors into numbered channels sorted by number.
// Numbers are assigned in source order; a number already taken in this region
// is bumped by one until free.
func build(region string, dtos []provider.ChannelDTO, cats []provider.CategoryDTO) []Channel {
	categoryOf := make(map[string]string)
	for _, cat := range cats {
		for _, id := range cat.ChannelIDs {
			categoryOf[id] = cat.Name
		}
	}

	used := make(map[int]bool, len(dtos))
	out := make([]Channel, 0, len(dtos))
	for _, d := range dtos {
		n := d.Number
		for used[n] {
			n++
		}
		used[n] = true
		out = append(out, Channel{
			ID:       d.ID,
			Name:     d.Name,
			Slug:     d.Slug,
			TMSID:    d.TMSID,
			Summary:  d.Summary,
			Number:   n,
			Logo:     logoURL(d.Images),
			Category: categoryOf[d.ID],
			Region:   region,
		})
	}
	SortByNumber(out)
	return out
}

func logoURL(images []provider.Image) string {
	for _, img := range images {
		if img.Type == logoImageType {
			return img.URL
		}
	}
	return ""
}
