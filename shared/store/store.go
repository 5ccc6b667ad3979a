// Package store provides the persistent key-value layer backing every
// engine entity: get/put/delete, prefix listing, and an atomic
// create-if-absent primitive that the generation pipeline relies on for
// its idempotency guarantee.
package store

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
)

// ErrNotFound is returned by Get when no value exists for the key.
var ErrNotFound = errors.New("store: key not found")

// Entry is one key/value pair returned by ListByPrefix.
type Entry struct {
	Key   string
	Value []byte
}

// Store is the persistent key-value contract. CreateIfAbsent must be
// atomic: under concurrent calls with the same key exactly one caller
// observes created=true.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
	ListByPrefix(prefix string) ([]Entry, error)
	CreateIfAbsent(key string, value []byte) (created bool, err error)
	Close() error
}

// GetJSON reads key and unmarshals it into out.
func GetJSON(s Store, key string, out any) error {
	raw, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// PutJSON marshals v and writes it under key.
func PutJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Put(key, raw)
}

// CreateJSONIfAbsent marshals v and atomically creates it under key if no
// value exists yet.
func CreateJSONIfAbsent(s Store, key string, v any) (bool, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("encode %s: %w", key, err)
	}
	return s.CreateIfAbsent(key, raw)
}
