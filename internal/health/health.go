// Package health checks a running guide server and the freshness of a
// written XMLTV file.
package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/snapetech/plutoguide/internal/httpclient"
)

// Paths are the server endpoints CheckEndpoints requests, in order.
var Paths = []string{"/healthz", "/lineup.json", "/guide.xml"}

// CheckEndpoints hits healthz, lineup and guide at baseURL and returns the first error or nil.
func CheckEndpoints(ctx context.Context, baseURL string) error {
	client := httpclient.WithTimeout(5 * time.Second)
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return fmt.Errorf("no server URL configured")
	}
	for _, path := range Paths {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s: HTTP %d", path, resp.StatusCode)
		}
	}
	return nil
}

// CheckGuideFile returns an error when the XMLTV file at path is missing,
// empty, or older than maxAge. maxAge <= 0 skips the age check.
func CheckGuideFile(path string, maxAge time.Duration, now time.Time) error {
	if path == "" {
		return fmt.Errorf("no guide file configured")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("guide file: %w", err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("guide file %s is empty", path)
	}
	if maxAge > 0 {
		if age := now.Sub(fi.ModTime()); age > maxAge {
			return fmt.Errorf("guide file %s is stale: written %s ago (max %s)", path, age.Round(time.Second), maxAge)
		}
	}
	return nil
}
