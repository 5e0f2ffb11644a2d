package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Result is the outcome of booting one throwaway session for a region.
type Result struct {
	Region     string
	Status     Status
	StatusCode int
	LatencyMs  int64
	Err        error
}

type Status string

const (
	StatusOK         Status = "ok"
	StatusCloudflare Status = "cloudflare"
	StatusBadStatus  Status = "bad_status"
	StatusMalformed  Status = "malformed"
	StatusTimeout    Status = "timeout"
	StatusFailed     Status = "error"
)

// ProbeBoot boots a session with a fresh client ID and classifies the result.
// The session token is discarded.
func (c *Client) ProbeBoot(ctx context.Context, hc *http.Client, region string, headers map[string]string) Result {
	start := time.Now()
	_, err := c.Boot(ctx, hc, BootParams{ClientID: uuid.NewString(), Headers: headers})
	r := Result{Region: region, LatencyMs: time.Since(start).Milliseconds(), Err: err}
	r.Status, r.StatusCode = classify(err)
	return r
}

func classify(err error) (Status, int) {
	if err == nil {
		return StatusOK, http.StatusOK
	}
	var se *StatusError
	if errors.As(err, &se) {
		body := strings.ToLower(se.Body)
		// CDN challenge pages; only on the codes the CDN actually uses.
		if se.Code == 403 || se.Code == 503 || se.Code == 520 || se.Code == 521 || se.Code == 524 {
			if strings.Contains(body, "checking your browser") || strings.Contains(body, "ray id") {
				return StatusCloudflare, se.Code
			}
		}
		return StatusBadStatus, se.Code
	}
	if errors.Is(err, ErrMalformedResponse) {
		return StatusMalformed, http.StatusOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StatusTimeout, 0
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return StatusTimeout, 0
	}
	return StatusFailed, 0
}

// ProbeRegions probes each region in turn and returns results sorted OK first
// (by latency), then failures by region code.
func (c *Client) ProbeRegions(ctx context.Context, hc *http.Client, regions map[string]map[string]string) []Result {
	out := make([]Result, 0, len(regions))
	for region, headers := range regions {
		out = append(out, c.ProbeBoot(ctx, hc, region, headers))
	}
	sort.Slice(out, func(i, j int) bool {
		okI := out[i].Status == StatusOK
		okJ := out[j].Status == StatusOK
		if okI != okJ {
			return okI
		}
		if okI && out[i].LatencyMs != out[j].LatencyMs {
			return out[i].LatencyMs < out[j].LatencyMs
		}
		return out[i].Region < out[j].Region
	})
	return out
}
