package tuner

import (
	"net/http"
	"strconv"
)

// LineupEntry is one /lineup.json row. GuideNumber and GuideName follow the
// HDHomeRun lineup field names so existing DVR front-ends can read it.
type LineupEntry struct {
	GuideNumber string `json:"GuideNumber"`
	GuideName   string `json:"GuideName"`
	GuideID     string `json:"GuideID"`
	Slug        string `json:"Slug,omitempty"`
	Region      string `json:"Region,omitempty"`
	Category    string `json:"Category,omitempty"`
	Logo        string `json:"Logo,omitempty"`
	GuideURL    string `json:"GuideURL,omitempty"`
}

func (s *Server) serveLineup(w http.ResponseWriter, r *http.Request) {
	snap := s.current.Load()
	out := []LineupEntry{}
	if snap != nil {
		out = make([]LineupEntry, 0, len(snap.channels))
		for _, ch := range snap.channels {
			e := LineupEntry{
				GuideNumber: strconv.Itoa(ch.Number),
				GuideName:   ch.Name,
				GuideID:     ch.ID,
				Slug:        ch.Slug,
				Region:      ch.Region,
				Category:    ch.Category,
				Logo:        ch.Logo,
			}
			if s.BaseURL != "" {
				e.GuideURL = s.BaseURL + "/guide.xml"
			}
			out = append(out, e)
		}
	}
	writeJSON(w, http.StatusOK, out)
}
