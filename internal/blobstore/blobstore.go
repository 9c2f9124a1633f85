// Copyright 2026 The statekit Authors
// This file is part of the statekit library.
//
// The statekit library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The statekit library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the statekit library. If not, see <http://www.gnu.org/licenses/>.

// Package blobstore implements the write-once, content-addressed blob
// store layers are persisted in: one file per hash, written atomically.
package blobstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"
)

// Store is a flat, on-disk key-value store keyed by hex hash.
type Store struct {
	dir   string
	sizes *sizeIndex // optional accelerator, see leveldb_index.go
}

// Open ensures dir exists and returns a Store backed by it. indexPath, if
// non-empty, enables the LevelDB-backed size accelerator described in
// SPEC_FULL.md; an empty indexPath runs the store without it.
func Open(dir, indexPath string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: creating %s: %w", dir, err)
	}
	s := &Store{dir: dir}
	if indexPath != "" {
		idx, err := openSizeIndex(indexPath)
		if err != nil {
			log.Warn("blobstore: size index unavailable, falling back to stat", "err", err)
		} else {
			s.sizes = idx
		}
	}
	return s, nil
}

// Close releases the optional size index, if one is open.
func (s *Store) Close() error {
	if s.sizes != nil {
		return s.sizes.close()
	}
	return nil
}

func (s *Store) path(hash string) string {
	return filepath.Join(s.dir, hash)
}

// Has reports whether hash is present in the store.
func (s *Store) Has(hash string) (bool, error) {
	_, err := os.Stat(s.path(hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Get retrieves the bytes stored under hash. The second return value is
// false if hash is absent.
func (s *Store) Get(hash string) ([]byte, bool, error) {
	data, err := os.ReadFile(s.path(hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return data, true, nil
}

// Put stores data under hash. Putting the same hash twice with the same
// bytes is a no-op in effect; putting the same hash with different bytes
// indicates caller error (hash collision or mislabeled blob) and is
// reported rather than silently overwritten.
func (s *Store) Put(hash string, data []byte) error {
	if existing, ok, err := s.Get(hash); err != nil {
		return err
	} else if ok {
		if !bytes.Equal(existing, data) {
			return fmt.Errorf("blobstore: %s already stored with different content", hash)
		}
		return nil
	}

	tmp, err := os.CreateTemp(s.dir, hash+".tmp-*")
	if err != nil {
		return fmt.Errorf("blobstore: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: writing %s: %w", hash, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: closing %s: %w", hash, err)
	}
	if err := os.Rename(tmpName, s.path(hash)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("blobstore: committing %s: %w", hash, err)
	}
	if s.sizes != nil {
		if err := s.sizes.set(hash, len(data)); err != nil {
			log.Debug("blobstore: size index update failed", "hash", hash, "err", err)
		}
	}
	return nil
}

// Size returns the byte length of the blob stored under hash, preferring
// the size index when available and falling back to a filesystem stat.
func (s *Store) Size(hash string) (int64, error) {
	if s.sizes != nil {
		if size, ok, err := s.sizes.get(hash); err == nil && ok {
			return size, nil
		}
	}
	info, err := os.Stat(s.path(hash))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
