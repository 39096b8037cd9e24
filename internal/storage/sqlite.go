//go:build !js && !wasm
// +build !js,!wasm

package storage

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DefaultDBFile = "songid.sqlite3"
	DBPathEnv     = "SONGID_DB_PATH"

	// DefaultMergeWindow is how long a repeat of the latest track is folded
	// into the existing row instead of adding a new one.
	DefaultMergeWindow = 2 * time.Minute
)

const errDBClientNil = "db client is nil"

var ErrNotFound = errors.New("storage: recognition not found")

type DBClient struct {
	DB          *gorm.DB
	db          *sql.DB
	MergeWindow time.Duration
}

// Recognition is one entry of the recognition history.
type Recognition struct {
	ID           string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	TrackKey     string    `gorm:"index:idx_track_key" json:"track_key"`
	Title        string    `gorm:"index:idx_track_meta,priority:1" json:"title"`
	Artist       string    `gorm:"index:idx_track_meta,priority:2" json:"artist"`
	Album        string    `json:"album,omitempty"`
	Released     string    `json:"released,omitempty"`
	Genre        string    `json:"genre,omitempty"`
	CoverArt     string    `json:"cover_art,omitempty"`
	OffsetSec    *float64  `json:"offset_sec,omitempty"`
	SampleMs     uint32    `json:"sample_ms"`
	Source       string    `json:"source"`
	Hits         int       `gorm:"default:1" json:"hits"`
	RecognizedAt time.Time `gorm:"index:idx_recognized_at" json:"recognized_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

func NewDBClient() (*DBClient, error) {
	dbPath := os.Getenv(DBPathEnv)
	if dbPath == "" {
		dbPath = DefaultDBFile
	}
	return NewDBClientWithPath(dbPath)
}

func NewDBClientWithPath(dbPath string) (*DBClient, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(sqlite.Open(dbPath+"?_pragma=busy_timeout(5000)"), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}

	// One writer at a time; sqlite serializes anyway.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Recognition{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &DBClient{DB: db, db: sqlDB, MergeWindow: DefaultMergeWindow}, nil
}

func (c *DBClient) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Record stores rec. When the newest entry has the same track key and was
// last seen within MergeWindow, that entry is updated instead and returned
// with merged set.
func (c *DBClient) Record(rec *Recognition) (stored *Recognition, merged bool, err error) {
	if c == nil || c.DB == nil {
		return nil, false, errors.New(errDBClientNil)
	}
	if rec.RecognizedAt.IsZero() {
		rec.RecognizedAt = time.Now()
	}

	err = c.DB.Transaction(func(tx *gorm.DB) error {
		var last Recognition
		err := tx.Order("last_seen_at DESC").First(&last).Error
		switch {
		case err == nil:
			if rec.TrackKey != "" && last.TrackKey == rec.TrackKey &&
				rec.RecognizedAt.Sub(last.LastSeenAt) <= c.MergeWindow {
				updates := map[string]any{
					"hits":         gorm.Expr("hits + 1"),
					"last_seen_at": rec.RecognizedAt,
				}
				if rec.OffsetSec != nil {
					updates["offset_sec"] = *rec.OffsetSec
				}
				if err := tx.Model(&last).Updates(updates).Error; err != nil {
					return fmt.Errorf("updating recognition: %w", err)
				}
				if err := tx.First(&last, "id = ?", last.ID).Error; err != nil {
					return fmt.Errorf("reloading recognition: %w", err)
				}
				stored, merged = &last, true
				return nil
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("querying latest recognition: %w", err)
		}

		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		rec.Hits = 1
		rec.LastSeenAt = rec.RecognizedAt
		if err := tx.Create(rec).Error; err != nil {
			return fmt.Errorf("creating recognition: %w", err)
		}
		stored = rec
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return stored, merged, nil
}

// List returns up to limit recognitions, most recent first. A limit of zero
// or less returns everything.
func (c *DBClient) List(limit int) ([]Recognition, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	q := c.DB.Order("last_seen_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []Recognition
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing recognitions: %w", err)
	}
	return rows, nil
}

func (c *DBClient) Get(id string) (*Recognition, error) {
	if c == nil || c.DB == nil {
		return nil, errors.New(errDBClientNil)
	}
	var rec Recognition
	if err := c.DB.First(&rec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("querying recognition: %w", err)
	}
	return &rec, nil
}

func (c *DBClient) Delete(id string) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	res := c.DB.Where("id = ?", id).Delete(&Recognition{})
	if res.Error != nil {
		return fmt.Errorf("deleting recognition: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (c *DBClient) Count() (int, error) {
	if c == nil || c.DB == nil {
		return 0, errors.New(errDBClientNil)
	}
	var n int64
	if err := c.DB.Model(&Recognition{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("counting recognitions: %w", err)
	}
	return int(n), nil
}

var csvHeader = []string{
	"id", "recognized_at", "last_seen_at", "hits", "title", "artist", "album",
	"released", "genre", "track_key", "offset_sec", "sample_ms", "source", "cover_art",
}

// ExportCSV writes the whole history, oldest first.
func (c *DBClient) ExportCSV(w io.Writer) error {
	if c == nil || c.DB == nil {
		return errors.New(errDBClientNil)
	}
	var rows []Recognition
	if err := c.DB.Order("recognized_at ASC").Find(&rows).Error; err != nil {
		return fmt.Errorf("loading recognitions: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		offset := ""
		if r.OffsetSec != nil {
			offset = strconv.FormatFloat(*r.OffsetSec, 'f', 2, 64)
		}
		record := []string{
			r.ID,
			r.RecognizedAt.UTC().Format(time.RFC3339),
			r.LastSeenAt.UTC().Format(time.RFC3339),
			strconv.Itoa(r.Hits),
			r.Title,
			r.Artist,
			r.Album,
			r.Released,
			r.Genre,
			r.TrackKey,
			offset,
			strconv.FormatUint(uint64(r.SampleMs), 10),
			r.Source,
			r.CoverArt,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
