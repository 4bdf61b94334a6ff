// Package favorites persists starred conversations in a bbolt file.
package favorites

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/Zuo-Peng/chat-history/internal/model"
)

var bucketName = []byte("favorites")

type entry struct {
	IsFavorite bool `json:"is_favorite"`
}

// Store is safe for concurrent use; bbolt serializes writers.
type Store struct {
	db *bolt.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open favorites %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init favorites: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func encodeKey(k model.Key) []byte {
	return []byte(string(k.Provider) + "\x00" + k.ID)
}

func decodeKey(b []byte) (model.Key, bool) {
	provider, id, ok := strings.Cut(string(b), "\x00")
	if !ok {
		return model.Key{}, false
	}
	return model.Key{Provider: model.Provider(provider), ID: id}, true
}

// Keys returns every conversation currently marked favorite.
func (s *Store) Keys() (map[model.Key]bool, error) {
	out := make(map[model.Key]bool)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var e entry
			if err := json.Unmarshal(v, &e); err != nil {
				// skip malformed entries instead of failing the whole load
				return nil
			}
			if key, ok := decodeKey(k); ok && e.IsFavorite {
				out[key] = true
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) IsFavorite(k model.Key) (bool, error) {
	var fav bool
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(encodeKey(k))
		if v == nil {
			return nil
		}
		var e entry
		if err := json.Unmarshal(v, &e); err != nil {
			return nil
		}
		fav = e.IsFavorite
		return nil
	})
	return fav, err
}

// Toggle flips the favorite flag of k and returns the new value. A
// conversation never seen before becomes a favorite.
func (s *Store) Toggle(k model.Key) (bool, error) {
	var fav bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		key := encodeKey(k)
		fav = true
		if v := b.Get(key); v != nil {
			var e entry
			if err := json.Unmarshal(v, &e); err == nil {
				fav = !e.IsFavorite
			}
		}
		enc, err := json.Marshal(entry{IsFavorite: fav})
		if err != nil {
			return err
		}
		return b.Put(key, enc)
	})
	if err != nil {
		return false, fmt.Errorf("toggle favorite %s: %w", k, err)
	}
	return fav, nil
}
