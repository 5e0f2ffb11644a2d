// Package guide turns raw timeline pages into programme entries and writes
// them as XMLTV.
package guide

import (
	"fmt"
	"strings"
	"time"

	"github.com/snapetech/plutoguide/internal/catalog"
	"github.com/snapetech/plutoguide/internal/epg"
	"github.com/snapetech/plutoguide/internal/genre"
	"github.com/snapetech/plutoguide/internal/provider"
)

// Series types reported by the backend.
const (
	TypeLive = "live"
	TypeTV   = "tv"
	TypeFilm = "film"
)

const (
	airDateLayout = "2006-01-02T15:04:05.000Z"
	dateLayout    = "20060102"
)

// Programme is one airing, normalized for guide consumers.
type Programme struct {
	Channel  string    `json:"channel"`
	Region   string    `json:"region,omitempty"`
	Start    time.Time `json:"start"`
	Stop     time.Time `json:"stop"`
	Title    string    `json:"title"`
	SubTitle string    `json:"sub_title,omitempty"`
	Live     bool      `json:"live,omitempty"`
	// Onscreen is SxxEyy; EpisodeID is the backend episode id. Both are set or neither.
	Onscreen        string   `json:"onscreen,omitempty"`
	EpisodeID       string   `json:"episode_id,omitempty"`
	OriginalAirDate string   `json:"original_air_date,omitempty"` // UTC, millisecond precision
	Date            string   `json:"date,omitempty"`              // YYYYMMDD
	Description     string   `json:"description,omitempty"`
	Icon            string   `json:"icon,omitempty"`
	SeriesID        string   `json:"series_id,omitempty"`
	Categories      []string `json:"categories,omitempty"`
}

// Build converts pages into programmes, in page order. When channels is
// non-empty, airings on channels it does not list are skipped. Airings whose
// start or stop cannot be parsed are skipped too.
func Build(pages []epg.Page, channels []catalog.Channel) []Programme {
	var known map[string]bool
	if len(channels) > 0 {
		known = make(map[string]bool, len(channels))
		for _, ch := range channels {
			known[ch.ID] = true
		}
	}
	var out []Programme
	for _, p := range pages {
		for _, ct := range p.Data {
			if known != nil && !known[ct.ChannelID] {
				continue
			}
			for _, entry := range ct.Timelines {
				prog, ok := buildProgramme(ct.ChannelID, entry)
				if !ok {
					continue
				}
				prog.Region = p.Region
				out = append(out, prog)
			}
		}
	}
	return out
}

func buildProgramme(channelID string, e provider.TimelineEntry) (Programme, bool) {
	start, err := parseTime(e.Start)
	if err != nil {
		return Programme{}, false
	}
	stop, err := parseTime(e.Stop)
	if err != nil {
		return Programme{}, false
	}
	prog := Programme{
		Channel: channelID,
		Start:   start,
		Stop:    stop,
		Title:   stripControl(e.Title),
	}
	ep := e.Episode
	if ep == nil {
		return prog, true
	}

	var seriesType string
	if ep.Series != nil {
		seriesType = ep.Series.Type
		prog.SeriesID = ep.Series.ID
		if ep.Series.Tile != nil {
			prog.Icon = ep.Series.Tile.Path
		}
	}
	var release string
	if ep.Clip != nil {
		release = ep.Clip.OriginalReleaseDate
	}

	switch seriesType {
	case TypeLive:
		prog.Live = release != "" && release == e.Start
		if ep.Season != nil && *ep.Season != 0 && ep.Number != nil {
			prog.Onscreen = onscreen(*ep.Season, *ep.Number)
			prog.EpisodeID = ep.ID
		}
	case TypeTV:
		if ep.Season != nil && ep.Number != nil {
			prog.Onscreen = onscreen(*ep.Season, *ep.Number)
			prog.EpisodeID = ep.ID
		}
	}

	if rt, err := parseTime(release); err == nil {
		prog.OriginalAirDate = rt.Format(airDateLayout)
		prog.Date = rt.Format(dateLayout)
	}
	prog.Description = strings.ReplaceAll(stripControl(ep.Description), "&quot;", `"`)
	if !strings.EqualFold(e.Title, ep.Name) {
		prog.SubTitle = stripControl(ep.Name)
	}
	prog.Categories = categories(ep.Genre, seriesType, ep.SubGenre)
	return prog, true
}

// categories is classify(genre), the type tag, then classify(subGenre), with
// exact duplicates dropped in first-seen order.
func categories(g, seriesType, sub string) []string {
	var all []string
	all = append(all, genre.Classify(g)...)
	switch seriesType {
	case TypeTV:
		all = append(all, "Series")
	case TypeFilm:
		all = append(all, "Movie")
	}
	all = append(all, genre.Classify(sub)...)

	seen := make(map[string]bool, len(all))
	out := all[:0]
	for _, c := range all {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func onscreen(season, number int) string {
	return fmt.Sprintf("S%02dE%02d", season, number)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// stripControl removes C0 control characters other than tab, newline and
// carriage return; XML 1.0 cannot carry them.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
}
