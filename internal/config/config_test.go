package config

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	os.Clearenv()
	c := Load()
	if c.BootURL != "https://boot.pluto.tv" {
		t.Errorf("BootURL = %q", c.BootURL)
	}
	if c.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want 10", c.PoolSize)
	}
	if c.WindowCount != 3 || c.BatchSize != 100 || c.WindowMinutes != 720 {
		t.Errorf("epg defaults = %d/%d/%d", c.WindowCount, c.BatchSize, c.WindowMinutes)
	}
	if len(c.Regions) != 1 || c.Regions[0] != "local" {
		t.Errorf("Regions = %v", c.Regions)
	}
	if c.HasCredentials() {
		t.Error("no credentials expected")
	}
}

func TestLoad_overrides(t *testing.T) {
	os.Clearenv()
	os.Setenv("PLUTO_GUIDE_API_URL", "http://api.local/")
	os.Setenv("PLUTO_GUIDE_POOL_SIZE", "3")
	os.Setenv("PLUTO_GUIDE_REGIONS", "uk, ca,,fr")
	os.Setenv("PLUTO_GUIDE_REFRESH", "90m")
	os.Setenv("PLUTO_GUIDE_USERNAME", "u")
	os.Setenv("PLUTO_GUIDE_PASSWORD", "p")
	c := Load()
	if c.APIURL != "http://api.local" {
		t.Errorf("APIURL = %q", c.APIURL)
	}
	if c.PoolSize != 3 {
		t.Errorf("PoolSize = %d", c.PoolSize)
	}
	if len(c.Regions) != 3 || c.Regions[0] != "uk" || c.Regions[2] != "fr" {
		t.Errorf("Regions = %v", c.Regions)
	}
	if c.RefreshInterval != 90*time.Minute {
		t.Errorf("RefreshInterval = %v", c.RefreshInterval)
	}
	if !c.HasCredentials() {
		t.Error("credentials expected")
	}
}

func TestLoad_invalidPoolSizeFallsBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("PLUTO_GUIDE_POOL_SIZE", "0")
	os.Setenv("PLUTO_GUIDE_BATCH_SIZE", "nope")
	c := Load()
	if c.PoolSize != 10 {
		t.Errorf("PoolSize = %d, want 10", c.PoolSize)
	}
	if c.BatchSize != 100 {
		t.Errorf("BatchSize = %d, want 100", c.BatchSize)
	}
}

func TestDefaultRegions(t *testing.T) {
	r := DefaultRegions()
	uk, ok := r.Lookup("UK")
	if !ok {
		t.Fatal("uk missing")
	}
	if uk.NumberOffset != 7000 {
		t.Errorf("uk offset = %d", uk.NumberOffset)
	}
	if uk.HeaderOverrides["X-Forwarded-For"] != "178.238.11.6" {
		t.Errorf("uk headers = %v", uk.HeaderOverrides)
	}
	if local, _ := r.Lookup("local"); local.NumberOffset != 0 || len(local.HeaderOverrides) != 0 {
		t.Errorf("local = %+v", local)
	}
	if _, ok := r.Lookup("mars"); ok {
		t.Error("unknown region should not be found")
	}
	if len(r.Codes()) != 7 {
		t.Errorf("Codes = %v", r.Codes())
	}
}

func TestLoadRegions_file(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	data := `regions:
  uk:
    headers:
      X-Forwarded-For: 10.0.0.1
    number_offset: 7500
  br:
    headers:
      X-Forwarded-For: 10.0.0.2
    number_offset: 5000
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	r, err := LoadRegions(path)
	if err != nil {
		t.Fatal(err)
	}
	uk, _ := r.Lookup("uk")
	if uk.NumberOffset != 7500 {
		t.Errorf("uk offset = %d", uk.NumberOffset)
	}
	// viper lowercases keys; header names are canonicalized on use.
	var got string
	for k, v := range uk.HeaderOverrides {
		if http.CanonicalHeaderKey(k) == "X-Forwarded-For" {
			got = v
		}
	}
	if got != "10.0.0.1" {
		t.Errorf("uk headers = %v", uk.HeaderOverrides)
	}
	if br, ok := r.Lookup("br"); !ok || br.NumberOffset != 5000 {
		t.Errorf("br = %+v ok=%v", br, ok)
	}
	if ca, _ := r.Lookup("ca"); ca.NumberOffset != 6000 {
		t.Errorf("built-in ca should survive, got %+v", ca)
	}
}

func TestLoadRegions_emptyPath(t *testing.T) {
	r, err := LoadRegions("")
	if err != nil {
		t.Fatal(err)
	}
	if len(r) != len(DefaultRegions()) {
		t.Errorf("len = %d", len(r))
	}
}

func TestLoadRegions_missingFile(t *testing.T) {
	if _, err := LoadRegions(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
