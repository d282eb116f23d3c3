package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

const pebbleKeyPrefix = "geo|"

var (
	pebbleLower = []byte(pebbleKeyPrefix)
	pebbleUpper = []byte("geo}")
)

// PebbleStore keeps one key per address in a Pebble database.
type PebbleStore struct {
	db   *pebble.DB
	path string
}

func OpenPebbleStore(path string) (*PebbleStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("geo pebble path is empty")
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("geo pebble open: %w", err)
	}
	return &PebbleStore{db: db, path: path}, nil
}

func (s *PebbleStore) Load() (map[string]Entry, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: pebbleLower,
		UpperBound: pebbleUpper,
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	out := make(map[string]Entry)
	for iter.First(); iter.Valid(); iter.Next() {
		addr := strings.TrimPrefix(string(iter.Key()), pebbleKeyPrefix)
		var e Entry
		if err := json.Unmarshal(iter.Value(), &e); err != nil {
			return nil, fmt.Errorf("decode geo pebble %s: %w", addr, err)
		}
		out[addr] = e
	}
	return out, iter.Error()
}

func (s *PebbleStore) Put(address string, e Entry) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.db.Set([]byte(pebbleKeyPrefix+address), raw, pebble.Sync)
}

func (s *PebbleStore) Replace(entries map[string]Entry) error {
	b := s.db.NewBatch()
	defer b.Close()

	if err := b.DeleteRange(pebbleLower, pebbleUpper, nil); err != nil {
		return err
	}
	for addr, e := range entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Set([]byte(pebbleKeyPrefix+addr), raw, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.Sync)
}

func (s *PebbleStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
