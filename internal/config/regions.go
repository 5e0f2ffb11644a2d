package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"
)

// RegionConfig describes how requests for one region are shaped and how its
// channel numbers are shifted in the merged catalog.
type RegionConfig struct {
	// HeaderOverrides are added to every backend request for the region.
	// Empty values are skipped.
	HeaderOverrides map[string]string `mapstructure:"headers"`
	// NumberOffset is added to channel numbers below it; 0 = none.
	NumberOffset int `mapstructure:"number_offset"`
}

// Regions is the region table keyed by region code.
type Regions map[string]RegionConfig

// Lookup returns the config for code. Unknown regions get no overrides and no offset.
func (r Regions) Lookup(code string) (RegionConfig, bool) {
	rc, ok := r[strings.ToLower(code)]
	return rc, ok
}

// Codes returns the region codes in sorted order.
func (r Regions) Codes() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DefaultRegions is the built-in table: forwarded-for addresses that geolocate
// to each market, plus the number blocks used for foreign lineups.
func DefaultRegions() Regions {
	xff := func(ip string) map[string]string {
		return map[string]string{"X-Forwarded-For": ip}
	}
	return Regions{
		"local":   {},
		"uk":      {HeaderOverrides: xff("178.238.11.6"), NumberOffset: 7000},
		"ca":      {HeaderOverrides: xff("192.206.151.131"), NumberOffset: 6000},
		"fr":      {HeaderOverrides: xff("193.169.64.141"), NumberOffset: 8000},
		"de":      {HeaderOverrides: xff("81.173.176.155"), NumberOffset: 9000},
		"us_east": {HeaderOverrides: xff("108.82.206.181")},
		"us_west": {HeaderOverrides: xff("76.81.9.69")},
	}
}

type regionsFile struct {
	Regions map[string]RegionConfig `mapstructure:"regions"`
}

// LoadRegions reads a region table from path (yaml, json or toml by extension):
//
//	regions:
//	  uk:
//	    headers: {X-Forwarded-For: 178.238.11.6}
//	    number_offset: 7000
//
// Empty path returns DefaultRegions. Entries in the file replace the built-in
// entry of the same code; built-in regions not in the file are kept.
func LoadRegions(path string) (Regions, error) {
	out := DefaultRegions()
	if path == "" {
		return out, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read regions file %s: %w", path, err)
	}
	var f regionsFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("parse regions file %s: %w", path, err)
	}
	for code, rc := range f.Regions {
		if rc.NumberOffset < 0 {
			return nil, fmt.Errorf("region %s: negative number_offset %d", code, rc.NumberOffset)
		}
		out[strings.ToLower(code)] = rc
	}
	return out, nil
}
