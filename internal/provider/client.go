// Package provider is the HTTP client for the streaming backend: the boot
// (session) endpoint and the guide endpoints for channels, categories and
// timelines. It performs exactly one request per call; callers own retries.
package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/snapetech/plutoguide/internal/httpclient"
	"github.com/snapetech/plutoguide/internal/logging"
	"github.com/snapetech/plutoguide/internal/metrics"
	"github.com/snapetech/plutoguide/internal/safeurl"
)

const (
	DefaultBootURL = "https://boot.pluto.tv"
	DefaultAPIURL  = "https://service-channels.clusters.pluto.tv"

	// AppVersion and DeviceVersion mimic the web player.
	AppVersion    = "8.0.0-111b2b9dc00bd0bea9030b30662159ed9e7c8bc6"
	DeviceVersion = "122.0.0"
	UserAgent     = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

	// TimelineStartLayout formats the start parameter of a timeline request.
	// Starts are always truncated to the hour first.
	TimelineStartLayout = "2006-01-02T15:04:05.000Z"

	bodyPreviewBytes = 512
)

// Endpoint names used in errors and metrics.
const (
	EndpointBoot       = "boot"
	EndpointChannels   = "channels"
	EndpointCategories = "categories"
	EndpointTimelines  = "timelines"
)

// Client talks to the backend. It holds no session state; every call takes the
// *http.Client of the identity slot it is made for.
type Client struct {
	BootURL string
	APIURL  string
	Log     logrus.FieldLogger
	// HostSem caps concurrent requests per backend host; nil = unlimited.
	HostSem *httpclient.HostSemaphore
}

// New returns a client for the given base URLs ("" = production defaults).
func New(bootURL, apiURL string) *Client {
	if bootURL == "" {
		bootURL = DefaultBootURL
	}
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	return &Client{
		BootURL: strings.TrimSuffix(bootURL, "/"),
		APIURL:  strings.TrimSuffix(apiURL, "/"),
		Log:     logging.Default(),
		HostSem: httpclient.GlobalHostSem,
	}
}

// Session is what an authenticated guide call needs: the bearer token and the
// region's header overrides.
type Session struct {
	Token   string
	Headers map[string]string
}

// ─── Boot ─────────────────────────────────────────────────────────────────────

// BootParams identifies the device booting a session.
type BootParams struct {
	ClientID string
	Username string
	Password string
	Headers  map[string]string
}

// BootResponse is the subset of the boot payload the pipeline reads.
type BootResponse struct {
	SessionToken string          `json:"sessionToken"`
	Session      json.RawMessage `json:"session,omitempty"`
}

// Boot starts a backend session. Any 2xx is success; the response must carry
// a non-empty sessionToken.
func (c *Client) Boot(ctx context.Context, hc *http.Client, p BootParams) (*BootResponse, error) {
	q := url.Values{}
	q.Set("appName", "web")
	q.Set("appVersion", AppVersion)
	q.Set("deviceVersion", DeviceVersion)
	q.Set("deviceModel", "web")
	q.Set("deviceMake", "chrome")
	q.Set("deviceType", "web")
	q.Set("clientID", p.ClientID)
	q.Set("clientModelNumber", "1.0.0")
	q.Set("serverSideAds", "false")
	q.Set("drmCapabilities", "widevine:L3")
	q.Set("blockingMode", "")
	q.Set("notificationVersion", "1")
	q.Set("appLaunchCount", "")
	q.Set("lastAppLaunchDate", "")
	if p.Username != "" && p.Password != "" {
		q.Set("username", p.Username)
		q.Set("password", p.Password)
	}
	var out BootResponse
	if err := c.getJSON(ctx, hc, EndpointBoot, c.BootURL+"/v4/start?"+q.Encode(), "", p.Headers, &out); err != nil {
		return nil, err
	}
	if out.SessionToken == "" {
		return nil, fmt.Errorf("%s: sessionToken missing: %w", EndpointBoot, ErrMalformedResponse)
	}
	return &out, nil
}

// ─── Guide ────────────────────────────────────────────────────────────────────

// Image is one channel artwork entry.
type Image struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// ChannelDTO is a channel as listed by /v2/guide/channels.
type ChannelDTO struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Slug    string  `json:"slug"`
	TMSID   string  `json:"tmsid"`
	Summary string  `json:"summary"`
	Number  int     `json:"number"`
	Images  []Image `json:"images"`
}

// CategoryDTO is a category as listed by /v2/guide/categories.
type CategoryDTO struct {
	Name       string   `json:"name"`
	ChannelIDs []string `json:"channelIDs"`
}

// Channels lists every channel visible to the session, sorted by number.
func (c *Client) Channels(ctx context.Context, hc *http.Client, s Session) ([]ChannelDTO, error) {
	var out struct {
		Data []ChannelDTO `json:"data"`
	}
	if err := c.getJSON(ctx, hc, EndpointChannels, c.APIURL+"/v2/guide/channels?"+listQuery().Encode(), s.Token, s.Headers, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("%s: data missing: %w", EndpointChannels, ErrMalformedResponse)
	}
	return out.Data, nil
}

// Categories lists the channel categories visible to the session.
func (c *Client) Categories(ctx context.Context, hc *http.Client, s Session) ([]CategoryDTO, error) {
	var out struct {
		Data []CategoryDTO `json:"data"`
	}
	if err := c.getJSON(ctx, hc, EndpointCategories, c.APIURL+"/v2/guide/categories?"+listQuery().Encode(), s.Token, s.Headers, &out); err != nil {
		return nil, err
	}
	if out.Data == nil {
		return nil, fmt.Errorf("%s: data missing: %w", EndpointCategories, ErrMalformedResponse)
	}
	return out.Data, nil
}

func listQuery() url.Values {
	q := url.Values{}
	q.Set("channelIds", "")
	q.Set("offset", "0")
	q.Set("limit", "1000")
	q.Set("sort", "number:asc")
	return q
}

// Clip holds the clip-level metadata of an episode.
type Clip struct {
	OriginalReleaseDate string `json:"originalReleaseDate"`
}

// Tile is series artwork.
type Tile struct {
	Path string `json:"path"`
}

// Series identifies the series an episode belongs to. Type is "live", "tv" or "film".
type Series struct {
	ID   string `json:"_id"`
	Type string `json:"type"`
	Tile *Tile  `json:"tile"`
}

// Episode is the per-airing metadata of a timeline entry. Season and Number
// are pointers: absent and zero are different things to the guide builder.
type Episode struct {
	ID          string  `json:"_id"`
	Number      *int    `json:"number"`
	Season      *int    `json:"season"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Genre       string  `json:"genre"`
	SubGenre    string  `json:"subGenre"`
	Clip        *Clip   `json:"clip"`
	Series      *Series `json:"series"`
}

// TimelineEntry is one airing on one channel.
type TimelineEntry struct {
	Start   string   `json:"start"`
	Stop    string   `json:"stop"`
	Title   string   `json:"title"`
	Episode *Episode `json:"episode"`
}

// ChannelTimeline is the airings of one channel in a timeline response.
type ChannelTimeline struct {
	ChannelID string          `json:"channelId"`
	Timelines []TimelineEntry `json:"timelines"`
}

// TimelineMeta carries the window the server actually answered for.
type TimelineMeta struct {
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
}

// TimelineResponse is one raw /v2/guide/timelines payload.
type TimelineResponse struct {
	Data []ChannelTimeline `json:"data"`
	Meta TimelineMeta      `json:"meta"`
}

// Timelines fetches the airings of channelIDs for durationMinutes starting at start.
func (c *Client) Timelines(ctx context.Context, hc *http.Client, s Session, start time.Time, channelIDs []string, durationMinutes int) (*TimelineResponse, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Truncate(time.Hour).Format(TimelineStartLayout))
	q.Set("channelIds", strings.Join(channelIDs, ","))
	q.Set("duration", fmt.Sprint(durationMinutes))
	var out TimelineResponse
	if err := c.getJSON(ctx, hc, EndpointTimelines, c.APIURL+"/v2/guide/timelines?"+q.Encode(), s.Token, s.Headers, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ─── Transport ────────────────────────────────────────────────────────────────

func (c *Client) getJSON(ctx context.Context, hc *http.Client, endpoint, rawURL, token string, headers map[string]string, v any) (err error) {
	if hc == nil {
		hc = httpclient.Default()
	}
	start := time.Now()
	outcome := "ok"
	defer func() {
		metrics.BackendRequests.WithLabelValues(endpoint, outcome).Inc()
		metrics.BackendDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		outcome = "transport"
		return fmt.Errorf("%s: %w: %v", endpoint, ErrTransport, err)
	}
	setBrowserHeaders(req, token)
	for k, v := range headers {
		if v == "" {
			continue
		}
		req.Header.Set(k, v)
	}

	if c.HostSem != nil {
		release, err := c.HostSem.Acquire(ctx, rawURL)
		if err != nil {
			outcome = "transport"
			return fmt.Errorf("%s: %w: %v", endpoint, ErrTransport, err)
		}
		defer release()
	}

	resp, err := hc.Do(req)
	if err != nil {
		outcome = "transport"
		// Boot URLs carry account credentials in the query.
		return fmt.Errorf("%s: %w: %w", endpoint, ErrTransport, safeurl.RedactError(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		outcome = "status"
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, bodyPreviewBytes))
		return &StatusError{Endpoint: endpoint, Code: resp.StatusCode, Body: strings.TrimSpace(string(preview))}
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		outcome = "malformed"
		return fmt.Errorf("%s: decode: %w: %v", endpoint, ErrMalformedResponse, err)
	}
	if c.Log != nil {
		c.Log.Debugf("provider: %s %d in %s", endpoint, resp.StatusCode, time.Since(start).Round(time.Millisecond))
	}
	return nil
}

func setBrowserHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Origin", "https://pluto.tv")
	req.Header.Set("Referer", "https://pluto.tv/")
	req.Header.Set("User-Agent", UserAgent)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
