package ledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// FileStore keeps one CSV file per channel under a directory. It exists for
// paper trading and local development where a Google Sheet is overkill.
type FileStore struct {
	mu  sync.Mutex
	dir string
	now func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates the directory if needed and returns a ready store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating ledger directory: %w", err)
	}
	return &FileStore{dir: dir, now: time.Now}, nil
}

// WithNowFunc overrides the timestamp source (tests).
func (s *FileStore) WithNowFunc(now func() time.Time) *FileStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Append writes one timestamped row, creating the channel file with a header
// row on first use. The whole file is rewritten through a temp file and an
// atomic rename so a crash mid-write never corrupts history.
func (s *FileStore) Append(_ context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.channelPath(channel)
	rows, err := readCSVFile(path)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		rows = append(rows, Header)
	}

	entry := NewEntry(s.now(), message)
	rows = append(rows, []string{entry.Date, entry.Time, entry.Message})

	return writeCSVFile(path, rows)
}

// ReadAll returns every entry in the channel, oldest first. A missing channel
// yields an empty slice and no error.
func (s *FileStore) ReadAll(_ context.Context, channel string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := readCSVFile(s.channelPath(channel))
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		if len(row) < 3 {
			continue
		}
		entries = append(entries, Entry{Date: row[0], Time: row[1], Message: row[2]})
	}
	return entries, nil
}

func (s *FileStore) channelPath(channel string) string {
	// Channel names carry '%' and '-' which are filename-safe; guard the
	// separator anyway.
	safe := strings.ReplaceAll(channel, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, safe+".csv")
}

func readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is derived from the configured ledger directory
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ledger file: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}
	return rows, nil
}

func writeCSVFile(path string, rows [][]string) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return fmt.Errorf("creating temp ledger file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.WriteAll(rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing ledger rows: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmp, path)
}
