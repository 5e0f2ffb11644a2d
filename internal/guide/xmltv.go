package guide

import (
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/snapetech/plutoguide/internal/catalog"
)

// GeneratorName is written as the tv element's generator-info-name.
const GeneratorName = "plutoguide"

const (
	xmltvTimeLayout = "20060102150405 -0700"
	xmltvDoctype    = `<!DOCTYPE tv SYSTEM "xmltv.dtd">` + "\n"
)

type xmlTVRoot struct {
	XMLName    xml.Name       `xml:"tv"`
	Generator  string         `xml:"generator-info-name,attr"`
	Channels   []xmlChannel   `xml:"channel"`
	Programmes []xmlProgramme `xml:"programme"`
}

type xmlChannel struct {
	ID      string   `xml:"id,attr"`
	Display string   `xml:"display-name"`
	Number  string   `xml:"lcn,omitempty"`
	Icon    *xmlIcon `xml:"icon"`
}

type xmlIcon struct {
	Src string `xml:"src,attr"`
}

type xmlEpisodeNum struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type xmlSeriesID struct {
	System string `xml:"system,attr"`
	Value  string `xml:",chardata"`
}

type xmlProgramme struct {
	Start       string          `xml:"start,attr"`
	Stop        string          `xml:"stop,attr"`
	Channel     string          `xml:"channel,attr"`
	Title       string          `xml:"title"`
	SubTitle    string          `xml:"sub-title,omitempty"`
	Desc        string          `xml:"desc,omitempty"`
	Date        string          `xml:"date,omitempty"`
	Categories  []string        `xml:"category"`
	Icon        *xmlIcon        `xml:"icon"`
	EpisodeNums []xmlEpisodeNum `xml:"episode-num"`
	Live        *struct{}       `xml:"live"`
	SeriesID    *xmlSeriesID    `xml:"series-id"`
}

// WriteXMLTV writes an XMLTV document listing channels and programmes.
func WriteXMLTV(w io.Writer, channels []catalog.Channel, programmes []Programme) error {
	tv := xmlTVRoot{Generator: GeneratorName}
	for _, ch := range channels {
		xc := xmlChannel{
			ID:      ch.ID,
			Display: stripControl(ch.Name),
			Number:  fmt.Sprint(ch.Number),
		}
		if ch.Logo != "" {
			xc.Icon = &xmlIcon{Src: ch.Logo}
		}
		tv.Channels = append(tv.Channels, xc)
	}
	for _, p := range programmes {
		tv.Programmes = append(tv.Programmes, toXML(p))
	}

	if _, err := io.WriteString(w, xml.Header+xmltvDoctype); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(tv); err != nil {
		return fmt.Errorf("xmltv encode: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func toXML(p Programme) xmlProgramme {
	xp := xmlProgramme{
		Start:      p.Start.UTC().Format(xmltvTimeLayout),
		Stop:       p.Stop.UTC().Format(xmltvTimeLayout),
		Channel:    p.Channel,
		Title:      p.Title,
		SubTitle:   p.SubTitle,
		Desc:       p.Description,
		Date:       p.Date,
		Categories: p.Categories,
	}
	if p.Icon != "" {
		xp.Icon = &xmlIcon{Src: p.Icon}
	}
	if p.Onscreen != "" {
		xp.EpisodeNums = append(xp.EpisodeNums,
			xmlEpisodeNum{System: "onscreen", Value: p.Onscreen},
			xmlEpisodeNum{System: "pluto", Value: p.EpisodeID},
		)
	}
	if p.OriginalAirDate != "" {
		xp.EpisodeNums = append(xp.EpisodeNums, xmlEpisodeNum{System: "original-air-date", Value: p.OriginalAirDate})
	}
	if p.Live {
		xp.Live = &struct{}{}
	}
	if p.SeriesID != "" {
		xp.SeriesID = &xmlSeriesID{System: "pluto", Value: p.SeriesID}
	}
	return xp
}

// WriteFile writes the XMLTV document to path and a gzip copy to path+".gz".
// Both files are written to a temp file first and renamed into place.
func WriteFile(path string, channels []catalog.Channel, programmes []Programme) error {
	var buf bytes.Buffer
	if err := WriteXMLTV(&buf, channels, programmes); err != nil {
		return err
	}
	if err := writeAtomic(path, buf.Bytes()); err != nil {
		return err
	}
	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	zw.Name = filepath.Base(path)
	if _, err := zw.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("xmltv gzip: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("xmltv gzip: %w", err)
	}
	return writeAtomic(path+".gz", gz.Bytes())
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(filepath.Clean(path))
	tmp, err := os.CreateTemp(dir, ".guide-*.tmp")
	if err != nil {
		return fmt.Errorf("guide write: create temp: %w", err)
	}
	tmpName := tmp.Name()
	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return fmt.Errorf("guide write: %w", writeErr)
		}
		return fmt.Errorf("guide write: close: %w", closeErr)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("guide write: chmod: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("guide write: rename: %w", err)
	}
	return nil
}
