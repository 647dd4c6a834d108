// Package history persists run summaries between invocations.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"

	"stampede/internal/report"
)

const bucketRuns = "runs"

// Store keeps run summaries in a bbolt file under the user's home
// directory. Keys are ordered by start time so listing newest-first is
// a reverse cursor walk.
type Store struct {
	db *bbolt.DB
}

// DefaultPath returns the standard history database location.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".stampede", "history.db"), nil
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketRuns))
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close releases the database file.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores one run summary.
func (s *Store) Save(summary *report.Summary) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketRuns))

		data, err := json.Marshal(summary)
		if err != nil {
			return err
		}
		return b.Put(key(summary), data)
	})
}

// key orders runs chronologically; the run ID suffix keeps keys unique
// when two runs start in the same nanosecond.
func key(summary *report.Summary) []byte {
	return []byte(fmt.Sprintf("%020d/%s", summary.Start.UnixNano(), summary.RunID))
}

// List returns up to limit summaries, newest first. A non-positive
// limit returns everything.
func (s *Store) List(limit int) ([]*report.Summary, error) {
	var items []*report.Summary

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(items) >= limit {
				break
			}
			var summary report.Summary
			if err := json.Unmarshal(v, &summary); err != nil {
				continue
			}
			items = append(items, &summary)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Get returns the summary for a run ID, or an error when absent.
func (s *Store) Get(runID string) (*report.Summary, error) {
	var found *report.Summary

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var summary report.Summary
			if err := json.Unmarshal(v, &summary); err != nil {
				continue
			}
			if summary.RunID == runID {
				found = &summary
				return nil
			}
		}
		return fmt.Errorf("run %s not found", runID)
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}
