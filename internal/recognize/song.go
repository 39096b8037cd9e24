package recognize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Song is a recognized track.
type Song struct {
	TrackKey string
	Title    string
	Artist   string
	Album    string
	Released string
	Genre    string
	CoverArt string
	// Offset is how far into the track the sample was matched, in seconds.
	Offset       *float64
	RecognizedAt time.Time
	RawJSON      json.RawMessage
}

// Position estimates the playback position at now from the match offset.
func (s *Song) Position(now time.Time) (time.Duration, bool) {
	if s.Offset == nil {
		return 0, false
	}
	pos := time.Duration(*s.Offset*float64(time.Second)) + now.Sub(s.RecognizedAt)
	if pos < 0 {
		pos = 0
	}
	return pos, true
}

func (s *Song) String() string {
	if s.Offset == nil {
		return fmt.Sprintf("%s - %s", s.Title, s.Artist)
	}
	sec := int(*s.Offset)
	return fmt.Sprintf("%s - %s @ %d:%02d", s.Title, s.Artist, sec/60, sec%60)
}

type response struct {
	Matches []struct {
		Offset *float64 `json:"offset"`
	} `json:"matches"`
	Track *struct {
		Key      string `json:"key"`
		Title    string `json:"title"`
		Subtitle string `json:"subtitle"`
		Images   struct {
			CoverArt string `json:"coverart"`
		} `json:"images"`
		Genres struct {
			Primary string `json:"primary"`
		} `json:"genres"`
		Sections []struct {
			Type     string `json:"type"`
			Metadata []struct {
				Title string `json:"title"`
				Text  string `json:"text"`
			} `json:"metadata"`
		} `json:"sections"`
	} `json:"track"`
}

// ParseResponse extracts a Song from a tag response body.
func ParseResponse(raw []byte) (*Song, error) {
	var r response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if r.Track == nil || r.Track.Title == "" || r.Track.Subtitle == "" || r.Track.Key == "" {
		return nil, ErrNoMatch
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, fmt.Errorf("compacting response: %w", err)
	}

	song := &Song{
		TrackKey: r.Track.Key,
		Title:    r.Track.Title,
		Artist:   r.Track.Subtitle,
		Genre:    r.Track.Genres.Primary,
		CoverArt: r.Track.Images.CoverArt,
		RawJSON:  compact.Bytes(),
	}
	if len(r.Matches) > 0 {
		song.Offset = r.Matches[0].Offset
	}

	// Only the first SONG section carries album metadata.
	for _, section := range r.Track.Sections {
		if section.Type != "SONG" {
			continue
		}
		for _, m := range section.Metadata {
			switch m.Title {
			case "Album":
				song.Album = m.Text
			case "Released":
				song.Released = m.Text
			}
		}
		break
	}

	return song, nil
}
