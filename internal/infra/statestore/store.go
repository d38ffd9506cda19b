// Package statestore persists per-tool usage statistics so counts and
// latency averages survive restarts. Single-process, best-effort; the
// engine runs fully in-memory when no store is configured.
package statestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var usageBucket = []byte("tool_usage")

// UsageRecord is the persisted slice of a ToolDescriptor's statistics.
type UsageRecord struct {
	UsageCount      int64         `json:"usageCount"`
	AvgResponseTime time.Duration `json:"avgResponseTime"`
	LastUsed        time.Time     `json:"lastUsed"`
}

type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(usageBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure usage bucket: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(endpoint, tool string) (UsageRecord, bool, error) {
	var record UsageRecord
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(usageBucket).Get(usageKey(endpoint, tool))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decode usage record: %w", err)
		}
		found = true
		return nil
	})
	return record, found, err
}

func (s *Store) Save(endpoint, tool string, record UsageRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode usage record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(usageBucket).Put(usageKey(endpoint, tool), data)
	})
}

func usageKey(endpoint, tool string) []byte {
	return []byte(endpoint + "\x00" + tool)
}
