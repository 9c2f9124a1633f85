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

package blobstore

import (
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
)

// sizeIndex is a durable hash->size accelerator backed by LevelDB, letting
// Store.Size avoid a filesystem stat once warm. Purely an optimization:
// a missing or corrupt index transparently falls back to stat, and Store
// never relies on the index for correctness of Has/Get/Put.
type sizeIndex struct {
	db *leveldb.DB
}

func openSizeIndex(path string) (*sizeIndex, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &sizeIndex{db: db}, nil
}

func (i *sizeIndex) close() error {
	return i.db.Close()
}

func (i *sizeIndex) get(hash string) (int64, bool, error) {
	raw, err := i.db.Get([]byte(hash), nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if len(raw) != 8 {
		return 0, false, nil
	}
	return int64(binary.BigEndian.Uint64(raw)), true, nil
}

func (i *sizeIndex) set(hash string, size int) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(size))
	return i.db.Put([]byte(hash), buf[:], nil)
}
