package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Channel is one live channel as listed for a region.
// Number is unique within a region's catalog.
type Channel struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Slug     string `json:"slug"`
	TMSID    string `json:"tmsid,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Number   int    `json:"number"`
	Logo     string `json:"logo,omitempty"`     // colorLogoPNG image; "" when the channel has none
	Category string `json:"category,omitempty"` // "" when no category lists the channel
	Region   string `json:"region"`
}

// Cache keeps the last successful catalog per region for the current run.
// MergeCached builds the global lineup from it. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	regions map[string][]Channel
	order   []string // insertion order of first Put per region
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{regions: make(map[string][]Channel)}
}

// Put replaces the cached catalog of region.
func (c *Cache) Put(region string, channels []Channel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.regions[region]; !ok {
		c.order = append(c.order, region)
	}
	c.regions[region] = cloneChannels(channels)
}

// Get returns a copy of region's cached catalog.
func (c *Cache) Get(region string) ([]Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	chs, ok := c.regions[region]
	if !ok {
		return nil, false
	}
	return cloneChannels(chs), true
}

// Regions returns the cached region codes in the order they were first stored.
func (c *Cache) Regions() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Reset empties the cache. Called at the start of a guide-generation run.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.regions = make(map[string][]Channel)
	c.order = nil
}

// Snapshot returns every cached catalog in insertion order.
func (c *Cache) Snapshot() []RegionChannels {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]RegionChannels, 0, len(c.order))
	for _, r := range c.order {
		out = append(out, RegionChannels{Region: r, Channels: cloneChannels(c.regions[r])})
	}
	return out
}

func cloneChannels(in []Channel) []Channel {
	if in == nil {
		return nil
	}
	out := make([]Channel, len(in))
	copy(out, in)
	return out
}

// IDs returns the channel ids in catalog order.
func IDs(channels []Channel) []string {
	out := make([]string, len(channels))
	for i, ch := range channels {
		out[i] = ch.ID
	}
	return out
}

// SortByNumber sorts channels ascending by number, keeping source order for ties.
func SortByNumber(channels []Channel) {
	sort.SliceStable(channels, func(i, j int) bool { return channels[i].Number < channels[j].Number })
}

// Save writes channels to path as JSON using a temp-file-then-rename strategy
// so readers never see a partially-written file.
func Save(path string, channels []Channel) error {
	data, err := json.MarshalIndent(struct {
		Channels []Channel `json:"channels"`
	}{channels}, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".channels-*.json.tmp")
	if err != nil {
		return fmt.Errorf("catalog save: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("catalog save: write: %w", writeErr)
		}
		return fmt.Errorf("catalog save: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("catalog save: rename: %w", err)
	}
	return nil
}

// Load reads a channel list written by Save.
func Load(path string) ([]Channel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out struct {
		Channels []Channel `json:"channels"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("catalog load %s: %w", path, err)
	}
	return out.Channels, nil
}
