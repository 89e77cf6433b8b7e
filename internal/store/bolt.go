package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Adda-Baaj/feedsmith/internal/domain"

	bolt "go.etcd.io/bbolt"
)

// BoltDB is a bbolt file holding one bucket per source, keyed by item url.
type BoltDB struct {
	db *bolt.DB
}

// OpenBolt opens or creates the database at path.
func OpenBolt(path string) (*BoltDB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("bolt path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create bolt dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return &BoltDB{db: db}, nil
}

// Close releases the database file.
func (b *BoltDB) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

// Source returns the Store for one source id.
func (b *BoltDB) Source(id string) Store {
	return &boltSource{db: b.db, bucket: []byte("items:" + strings.ToLower(strings.TrimSpace(id)))}
}

type boltSource struct {
	db     *bolt.DB
	bucket []byte
}

// Load returns the items in key order. A missing bucket is an empty cache.
func (s *boltSource) Load(context.Context) ([]domain.Item, error) {
	var items []domain.Item
	err := s.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(s.bucket)
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			var it domain.Item
			if err := json.Unmarshal(v, &it); err != nil {
				return fmt.Errorf("decode item %s: %w", k, err)
			}
			items = append(items, it)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load bucket %s: %w", s.bucket, err)
	}
	return items, nil
}

// Save replaces the bucket content in a single transaction.
func (s *boltSource) Save(_ context.Context, items []domain.Item) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(s.bucket) != nil {
			if err := tx.DeleteBucket(s.bucket); err != nil {
				return err
			}
		}
		bkt, err := tx.CreateBucket(s.bucket)
		if err != nil {
			return err
		}
		for _, it := range items {
			raw, err := json.Marshal(it)
			if err != nil {
				return fmt.Errorf("encode item %s: %w", it.URL, err)
			}
			if err := bkt.Put([]byte(it.URL), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save bucket %s: %w", s.bucket, err)
	}
	return nil
}
