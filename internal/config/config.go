package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds backend, pool, pipeline and output settings.
// Load from env; call LoadEnvFile(".env") first to use a .env file.
type Config struct {
	// Backend
	BootURL  string // e.g. https://boot.pluto.tv
	APIURL   string // e.g. https://service-channels.clusters.pluto.tv
	Username string // optional account; empty = anonymous boot
	Password string

	// Identity pool
	PoolSize int
	// HTTPTimeout bounds every backend call made by a slot session.
	HTTPTimeout time.Duration

	// Regions fetched, in merge order (first wins on duplicate channel ids).
	Regions []string
	// RegionsFile is an optional yaml/json/toml region table; empty = built-in table.
	RegionsFile string

	// EPG
	WindowCount      int // time windows fetched per region
	BatchSize        int // channel ids per timeline request
	WindowMinutes    int // duration requested per timeline call
	BatchConcurrency int // timeline batches in flight per window
	RateLimit        float64
	RateBurst        int

	// Output
	XMLTVPath   string // "" = stdout for the guide command
	StorePath   string // SQLite snapshot; "" = disabled
	CatalogPath string // JSON catalog written by the channels command

	// Server
	Addr            string
	RefreshInterval time.Duration

	// Logging
	LogLevel      string
	LogFormat     string // "text" | "json"
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
}

// Load reads config from environment.
func Load() *Config {
	c := &Config{
		BootURL:          strings.TrimSuffix(getEnv("PLUTO_GUIDE_BOOT_URL", "https://boot.pluto.tv"), "/"),
		APIURL:           strings.TrimSuffix(getEnv("PLUTO_GUIDE_API_URL", "https://service-channels.clusters.pluto.tv"), "/"),
		Username:         os.Getenv("PLUTO_GUIDE_USERNAME"),
		Password:         os.Getenv("PLUTO_GUIDE_PASSWORD"),
		PoolSize:         getEnvInt("PLUTO_GUIDE_POOL_SIZE", 10),
		HTTPTimeout:      getEnvDuration("PLUTO_GUIDE_HTTP_TIMEOUT", 30*time.Second),
		Regions:          getEnvList("PLUTO_GUIDE_REGIONS", []string{"local"}),
		RegionsFile:      os.Getenv("PLUTO_GUIDE_REGIONS_FILE"),
		WindowCount:      getEnvInt("PLUTO_GUIDE_WINDOWS", 3),
		BatchSize:        getEnvInt("PLUTO_GUIDE_BATCH_SIZE", 100),
		WindowMinutes:    getEnvInt("PLUTO_GUIDE_WINDOW_MINUTES", 720),
		BatchConcurrency: getEnvInt("PLUTO_GUIDE_BATCH_CONCURRENCY", 4),
		RateLimit:        getEnvFloat("PLUTO_GUIDE_RATE_LIMIT", 5),
		RateBurst:        getEnvInt("PLUTO_GUIDE_RATE_BURST", 4),
		XMLTVPath:        os.Getenv("PLUTO_GUIDE_XMLTV"),
		StorePath:        os.Getenv("PLUTO_GUIDE_STORE"),
		CatalogPath:      getEnv("PLUTO_GUIDE_CATALOG", "./channels.json"),
		Addr:             getEnv("PLUTO_GUIDE_ADDR", ":8080"),
		RefreshInterval:  getEnvDuration("PLUTO_GUIDE_REFRESH", 6*time.Hour),
		LogLevel:         getEnv("PLUTO_GUIDE_LOG_LEVEL", "info"),
		LogFormat:        getEnv("PLUTO_GUIDE_LOG_FORMAT", "text"),
		LogFile:          os.Getenv("PLUTO_GUIDE_LOG_FILE"),
		LogMaxSizeMB:     getEnvInt("PLUTO_GUIDE_LOG_MAX_SIZE_MB", 20),
		LogMaxBackups:    getEnvInt("PLUTO_GUIDE_LOG_MAX_BACKUPS", 3),
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.WindowCount <= 0 {
		c.WindowCount = 3
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.WindowMinutes <= 0 {
		c.WindowMinutes = 720
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = 1
	}
	if c.RateBurst <= 0 {
		c.RateBurst = 1
	}
	return c
}

// HasCredentials reports whether both username and password are configured.
func (c *Config) HasCredentials() bool {
	return c.Username != "" && c.Password != ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return defaultVal
		}
		return n
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return defaultVal
		}
		return f
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

// getEnvList splits a comma-separated value, dropping blanks.
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	out := SplitList(v)
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

// SplitList splits "uk, ca,,fr" into ["uk" "ca" "fr"].
func SplitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
