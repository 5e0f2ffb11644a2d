package catalog

import (
	"github.com/snapetech/plutoguide/internal/config"
)

// RegionChannels is one region's catalog as input to MergeAll.
type RegionChannels struct {
	Region   string
	Channels []Channel
}

// MergeAll builds the global lineup from per-region catalogs:
//
//  1. channels are deduplicated by id, first occurrence in caller order wins;
//  2. a channel whose region has a number offset and whose number is below
//     that offset is shifted up by it;
//  3. numbers are made unique across the whole result by bumping a taken
//     number by one until free, in output order.
//
// Inputs are not modified.
func MergeAll(perRegion []RegionChannels, regions config.Regions) []Channel {
	seenID := make(map[string]bool)
	var out []Channel
	for _, rc := range perRegion {
		for _, ch := range rc.Channels {
			if seenID[ch.ID] {
				continue
			}
			seenID[ch.ID] = true
			if ch.Region == "" {
				ch.Region = rc.Region
			}
			out = append(out, ch)
		}
	}

	used := make(map[int]bool, len(out))
	for i := range out {
		n := out[i].Number
		if cfg, ok := regions.Lookup(out[i].Region); ok && cfg.NumberOffset > 0 && n < cfg.NumberOffset {
			n += cfg.NumberOffset
		}
		for used[n] {
			n++
		}
		used[n] = true
		out[i].Number = n
	}
	return out
}

// MergeCached merges the catalogs held in cache, in the given region order.
// Regions not in the cache are skipped; empty order means cache insertion order.
func MergeCached(cache *Cache, order []string, regions config.Regions) []Channel {
	if len(order) == 0 {
		order = cache.Regions()
	}
	in := make([]RegionChannels, 0, len(order))
	for _, r := range order {
		if chs, ok := cache.Get(r); ok {
			in = append(in, RegionChannels{Region: r, Channels: chs})
		}
	}
	return MergeAll(in, regions)
}
