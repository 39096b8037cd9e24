package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/himanishpuri/songid/internal/audio"
	"github.com/himanishpuri/songid/internal/presence"
	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/storage"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/himanishpuri/songid/pkg/signature"
)

// ErrSilent is returned for audio that never rises above the silence
// threshold.
var ErrSilent = errors.New("service: audio is silent")

type Service struct {
	recognizer Recognizer
	store      Store
	presence   presence.Presence
	log        *logger.Logger
	tempDir    string
	interval   time.Duration
	segment    time.Duration
}

func New(opts ...Option) (*Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("invalid interval %v", cfg.Interval)
	}

	if cfg.Store == nil {
		var (
			db  *storage.DBClient
			err error
		)
		if cfg.DBPath != "" {
			db, err = storage.NewDBClientWithPath(cfg.DBPath)
		} else {
			db, err = storage.NewDBClient()
		}
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		cfg.Store = db
	}

	if cfg.Recognizer == nil {
		cfg.Recognizer = recognize.New(recognize.WithLogger(cfg.Logger))
	}
	if cfg.Presence == nil {
		cfg.Presence = presence.NewTerminal(os.Stdout)
	}

	return &Service{
		recognizer: cfg.Recognizer,
		store:      cfg.Store,
		presence:   cfg.Presence,
		log:        cfg.Logger,
		tempDir:    cfg.TempDir,
		interval:   cfg.Interval,
		segment:    cfg.Segment,
	}, nil
}

// SignatureFromFile decodes any audio file ffmpeg can read and fingerprints
// the middle segment of it.
func (s *Service) SignatureFromFile(ctx context.Context, path string) (*signature.Signature, error) {
	samples, err := audio.LoadMono16k(ctx, path, s.tempDir)
	if err != nil {
		return nil, fmt.Errorf("loading audio: %w", err)
	}

	samples = centerSegment(samples, s.segment)
	if audio.IsSilent(samples, audio.SilenceThreshold) {
		return nil, ErrSilent
	}

	sig, err := signature.MakeSignature(samples)
	if err != nil {
		return nil, fmt.Errorf("generating signature: %w", err)
	}
	s.log.Debugf("Signature for %s: %d peaks over %v", filepath.Base(path), sig.PeakCount(), sig.Duration())
	return sig, nil
}

func centerSegment(samples []int16, segment time.Duration) []int16 {
	if segment <= 0 {
		return samples
	}
	n := int(segment.Seconds() * signature.SampleRate)
	if len(samples) <= n {
		return samples
	}
	start := (len(samples) - n) / 2
	return samples[start : start+n]
}

// RecognizeFile identifies the song in path and records the match.
func (s *Service) RecognizeFile(ctx context.Context, path string) (*recognize.Song, error) {
	s.log.Infof("Recognizing %s", path)

	sig, err := s.SignatureFromFile(ctx, path)
	if err != nil {
		return nil, err
	}
	return s.recognize(ctx, sig, "file:"+filepath.Base(path))
}

// RecognizeSamples identifies mono 16 kHz samples. Silent input returns
// ErrSilent without contacting the recognizer.
func (s *Service) RecognizeSamples(ctx context.Context, samples []int16) (*recognize.Song, error) {
	if audio.IsSilent(samples, audio.SilenceThreshold) {
		return nil, ErrSilent
	}
	sig, err := signature.MakeSignature(samples)
	if err != nil {
		return nil, fmt.Errorf("generating signature: %w", err)
	}
	return s.recognize(ctx, sig, "listen")
}

// RecognizeSignature submits a signature made elsewhere, such as in a
// browser, and records the match.
func (s *Service) RecognizeSignature(ctx context.Context, sig *signature.Signature) (*recognize.Song, error) {
	if sig.PeakCount() == 0 {
		return nil, ErrSilent
	}
	return s.recognize(ctx, sig, "signature")
}

func (s *Service) recognize(ctx context.Context, sig *signature.Signature, source string) (*recognize.Song, error) {
	song, err := s.recognizer.Recognize(ctx, sig)
	if err != nil {
		return nil, err
	}

	rec := &storage.Recognition{
		TrackKey:     song.TrackKey,
		Title:        song.Title,
		Artist:       song.Artist,
		Album:        song.Album,
		Released:     song.Released,
		Genre:        song.Genre,
		CoverArt:     song.CoverArt,
		OffsetSec:    song.Offset,
		SampleMs:     sig.SampleMs(),
		Source:       source,
		RecognizedAt: song.RecognizedAt,
	}
	if _, merged, err := s.store.Record(rec); err != nil {
		// History is best effort; the match is still returned.
		s.log.Warnf("Failed to record %q: %v", song.Title, err)
	} else if !merged {
		s.log.Infof("Recognized %s", song)
	}
	return song, nil
}

// Listen fingerprints whatever src captured every interval until ctx is
// done. Each result goes to the presence; a silent interval clears it once.
func (s *Service) Listen(ctx context.Context, src Source) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Infof("Listening in %v intervals", s.interval)
	wasEmpty := false

	for {
		select {
		case <-ctx.Done():
			s.presence.Clear()
			return nil
		case <-ticker.C:
		}

		samples := src.Drain()
		song, err := s.RecognizeSamples(ctx, samples)
		switch {
		case err == nil:
			wasEmpty = false
			s.presence.Update(song)

		case errors.Is(err, ErrSilent), errors.Is(err, signature.ErrInputTooShort):
			if !wasEmpty {
				s.log.Infof("Input was silent for %v, clearing", s.interval)
				s.presence.Clear()
				wasEmpty = true
			}

		case ctx.Err() != nil:
			s.presence.Clear()
			return nil

		case errors.Is(err, recognize.ErrNoMatch):
			wasEmpty = false
			s.log.Infof("No match for the last %v", s.interval)
			s.presence.Clear()

		default:
			wasEmpty = false
			s.log.Warnf("Recognition failed: %v", err)
			s.presence.Clear()
		}
	}
}

func (s *Service) History(limit int) ([]storage.Recognition, error) {
	return s.store.List(limit)
}

func (s *Service) HistoryCount() (int, error) {
	return s.store.Count()
}

func (s *Service) GetRecognition(id string) (*storage.Recognition, error) {
	return s.store.Get(id)
}

func (s *Service) DeleteRecognition(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.log.Infof("Deleted recognition %s", id)
	return nil
}

func (s *Service) ExportHistory(w io.Writer) error {
	return s.store.ExportCSV(w)
}

func (s *Service) Close() error {
	return s.store.Close()
}
