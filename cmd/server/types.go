//go:build !js && !wasm
// +build !js,!wasm

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/storage"
	"github.com/himanishpuri/songid/pkg/signature"
)

// MaxURILength bounds signature URIs accepted in request bodies.
const MaxURILength = 1 << 20

// SignatureRequest is the request body for POST /api/decode and
// POST /api/recognize/signature
type SignatureRequest struct {
	URI string `json:"uri"`
}

// Validate checks if the request is valid
func (r *SignatureRequest) Validate() error {
	if r.URI == "" {
		return fmt.Errorf("uri is required")
	}
	if len(r.URI) > MaxURILength {
		return fmt.Errorf("uri too long: %d bytes (maximum: %d)", len(r.URI), MaxURILength)
	}
	if !strings.HasPrefix(r.URI, signature.DataURIPrefix) {
		return fmt.Errorf("uri must start with %q", signature.DataURIPrefix)
	}
	return nil
}

// PeakDTO is one peak in a decoded signature.
type PeakDTO struct {
	FrameOffset  uint32  `json:"frame"`
	Magnitude    uint16  `json:"magnitude"`
	CorrectedBin uint16  `json:"corrected_bin"`
	FrequencyHz  float64 `json:"frequency_hz"`
	Seconds      float64 `json:"seconds"`
}

type BandDTO struct {
	Band  string    `json:"band"`
	Count int       `json:"count"`
	Peaks []PeakDTO `json:"peaks,omitempty"`
}

// SignatureResponse describes a signature
type SignatureResponse struct {
	URI        string    `json:"uri,omitempty"`
	SampleRate int       `json:"sample_rate"`
	Samples    uint32    `json:"samples"`
	DurationMs uint32    `json:"duration_ms"`
	PeakCount  int       `json:"peak_count"`
	Bands      []BandDTO `json:"bands"`
}

func newSignatureResponse(sig *signature.Signature, withPeaks bool) SignatureResponse {
	resp := SignatureResponse{
		SampleRate: sig.SampleRateHz,
		Samples:    sig.NumberSamples,
		DurationMs: sig.SampleMs(),
		PeakCount:  sig.PeakCount(),
		Bands:      []BandDTO{},
	}
	for _, b := range signature.Bands() {
		peaks := sig.Peaks[b]
		if len(peaks) == 0 {
			continue
		}
		band := BandDTO{Band: b.String(), Count: len(peaks)}
		if withPeaks {
			band.Peaks = make([]PeakDTO, len(peaks))
			for i, p := range peaks {
				band.Peaks[i] = PeakDTO{
					FrameOffset:  p.FrameOffset,
					Magnitude:    p.Magnitude,
					CorrectedBin: p.CorrectedBin,
					FrequencyHz:  p.Frequency(sig.SampleRateHz),
					Seconds:      p.Seconds(sig.SampleRateHz),
				}
			}
		}
		resp.Bands = append(resp.Bands, band)
	}
	return resp
}

// SongDTO represents a recognized song in API responses
type SongDTO struct {
	TrackKey     string    `json:"track_key"`
	Title        string    `json:"title"`
	Artist       string    `json:"artist"`
	Album        string    `json:"album,omitempty"`
	Released     string    `json:"released,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	CoverArt     string    `json:"cover_art,omitempty"`
	OffsetSec    *float64  `json:"offset_sec,omitempty"`
	RecognizedAt time.Time `json:"recognized_at"`
}

func newSongDTO(s *recognize.Song) SongDTO {
	return SongDTO{
		TrackKey:     s.TrackKey,
		Title:        s.Title,
		Artist:       s.Artist,
		Album:        s.Album,
		Released:     s.Released,
		Genre:        s.Genre,
		CoverArt:     s.CoverArt,
		OffsetSec:    s.Offset,
		RecognizedAt: s.RecognizedAt,
	}
}

// RecognizeResponse is the response for the recognize endpoints
type RecognizeResponse struct {
	Matched bool     `json:"matched"`
	Song    *SongDTO `json:"song,omitempty"`
}

// HistoryResponse is the response for GET /api/history
type HistoryResponse struct {
	Recognitions []storage.Recognition `json:"recognitions"`
	Count        int                   `json:"count"`
}

// DeleteResponse is the response for DELETE /api/history/{id}
type DeleteResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

// MetricsResponse provides server health and history metrics
type MetricsResponse struct {
	Status           string `json:"status"`
	DatabasePath     string `json:"database_path"`
	RecognitionCount int    `json:"recognition_count"`
	SampleRate       int    `json:"sample_rate"`
}

// ErrorResponse is the standard error response format
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}
