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

package snapshot

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/ethereum/go-ethereum/log"
)

// entry is one item discovered by Walk.
type entry struct {
	RelPath string // forward-slash, relative to the walk root
	AbsPath string
	Dir     fs.DirEntry
}

// Walk recursively traverses root and returns every file, directory, and
// symlink beneath it (root itself excluded), sorted lexicographically by
// relative path. Symlinks are reported but never followed. Device, socket,
// and other non-regular non-symlink nodes are skipped - they have no
// portable representation in the archive format produced by Capture/Diff.
func Walk(root string) ([]entry, error) {
	var entries []entry
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		typ := d.Type()
		switch {
		case d.IsDir(), typ&fs.ModeSymlink != 0, typ.IsRegular():
			entries = append(entries, entry{
				RelPath: filepath.ToSlash(rel),
				AbsPath: path,
				Dir:     d,
			})
		default:
			log.Debug("skipping non-portable filesystem entry", "path", rel, "mode", typ)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].RelPath < entries[j].RelPath })
	return entries, nil
}
