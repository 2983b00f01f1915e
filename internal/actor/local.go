package actor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/lvcoi/igfetch/internal/config"
	"github.com/lvcoi/igfetch/internal/db"
	"github.com/lvcoi/igfetch/internal/downloader"
	"github.com/lvcoi/igfetch/internal/logger"
)

// FileInput reads the run input from a JSON file. A missing file is an empty input.
type FileInput struct {
	Path string
}

func (f FileInput) Input(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.Path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading input file: %w", err)
	}
	return decodeInput(data)
}

// SQLiteSink appends records to the local dataset database.
type SQLiteSink struct {
	DB *db.DB
}

func (s *SQLiteSink) Push(ctx context.Context, records ...downloader.Record) error {
	rows := make([]db.ItemRow, 0, len(records))
	for _, r := range records {
		payload, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding record: %w", err)
		}
		rows = append(rows, itemRow(r, payload))
	}
	_, err := s.DB.InsertItems(ctx, rows...)
	return err
}

func itemRow(r downloader.Record, payload []byte) db.ItemRow {
	row := db.ItemRow{URL: r.SourceURL(), Status: db.StatusSucceeded, Payload: payload}
	switch rec := r.(type) {
	case downloader.ItemMetadata:
		row.VideoID = value(rec.VideoID)
	case downloader.ItemFailure:
		row.VideoID = value(rec.VideoID)
		row.Error = rec.Error
		row.ErrorKind = string(rec.ErrorKind)
	case downloader.URLFailure:
		row.Error = rec.Error
		row.ErrorKind = string(rec.ErrorKind)
	}
	if r.Failed() {
		row.Status = db.StatusFailed
	}
	return row
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FileStore writes blobs under Dir and indexes them in the dataset database.
// Records are not reachable by URL, so ID is empty.
type FileStore struct {
	Dir string
	DB  *db.DB
}

func (s *FileStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("creating store directory: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(key))
	tmp, err := os.CreateTemp(s.Dir, ".put-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming %s: %w", key, err)
	}
	if s.DB == nil {
		return nil
	}
	return s.DB.UpsertBlob(ctx, db.BlobRow{Key: key, ContentType: contentType, Size: int64(len(data)), Path: path})
}

func (s *FileStore) ID() string { return "" }

// NewLocal builds the runtime used off the platform. inputFile overrides the
// configured input path when non-empty.
func NewLocal(storage config.StorageConfig, apify config.ApifyConfig, inputFile string, log logger.Logger) (*Runtime, error) {
	if log == nil {
		log = logger.NewNop()
	}
	if inputFile == "" {
		inputFile = storage.InputFile
	}
	if err := os.MkdirAll(filepath.Dir(storage.Database), 0o755); err != nil {
		return nil, fmt.Errorf("creating dataset directory: %w", err)
	}
	database, err := db.Open(storage.Database)
	if err != nil {
		return nil, err
	}
	storeDir := filepath.Join(storage.Dir, "key_value_stores", "default")
	log.Debug("local runtime",
		logger.String("input", inputFile),
		logger.String("dataset", storage.Database),
		logger.String("store", storeDir),
	)
	return &Runtime{
		Name:     "local",
		Input:    FileInput{Path: inputFile},
		Sink:     &SQLiteSink{DB: database},
		Store:    &FileStore{Dir: storeDir, DB: database},
		rotating: rotatingConfig(apify),
		closers:  []func() error{database.Close},
	}, nil
}
