package service

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/himanishpuri/songid/internal/presence"
	"github.com/himanishpuri/songid/internal/recognize"
	"github.com/himanishpuri/songid/internal/storage"
	"github.com/himanishpuri/songid/pkg/logger"
	"github.com/himanishpuri/songid/pkg/signature"
)

const (
	// DefaultInterval is how much live audio goes into one signature.
	DefaultInterval = 12 * time.Second
	// DefaultSegment caps the audio taken from a file.
	DefaultSegment = 12 * time.Second
)

type Recognizer interface {
	Recognize(ctx context.Context, sig *signature.Signature) (*recognize.Song, error)
}

type Store interface {
	Record(rec *storage.Recognition) (*storage.Recognition, bool, error)
	List(limit int) ([]storage.Recognition, error)
	Get(id string) (*storage.Recognition, error)
	Delete(id string) error
	Count() (int, error)
	ExportCSV(w io.Writer) error
	Close() error
}

// Source yields the samples captured since the previous call.
type Source interface {
	Drain() []int16
}

type Config struct {
	DBPath     string
	TempDir    string
	Interval   time.Duration
	Segment    time.Duration
	Recognizer Recognizer
	Store      Store
	Presence   presence.Presence
	Logger     *logger.Logger
}

type Option func(*Config)

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		c.Interval = d
	}
}

// WithSegment sets how much audio from a file is fingerprinted. Zero uses
// the whole file.
func WithSegment(d time.Duration) Option {
	return func(c *Config) {
		c.Segment = d
	}
}

func WithRecognizer(r Recognizer) Option {
	return func(c *Config) {
		c.Recognizer = r
	}
}

func WithStore(s Store) Option {
	return func(c *Config) {
		c.Store = s
	}
}

func WithPresence(p presence.Presence) Option {
	return func(c *Config) {
		c.Presence = p
	}
}

func WithLogger(log *logger.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func defaultConfig() *Config {
	return &Config{
		TempDir:  os.TempDir(),
		Interval: DefaultInterval,
		Segment:  DefaultSegment,
	}
}
