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

// Package snapshot is the algorithmic heart of statekit: it walks a working
// directory, fingerprints its state, and packs/unpacks the changed-file
// archives that make up each layer's blob.
package snapshot

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/statekit-dev/statekit/internal/fingerprint"
)

// BlobSource is the subset of BlobStore the snapshotter needs to restore a
// layer's archive onto disk. Kept as a narrow interface (mirroring the
// teacher's habit of depending on small interfaces like "snapshot" rather
// than concrete stores) so tests can substitute an in-memory fake.
type BlobSource interface {
	Get(hash string) ([]byte, bool, error)
}

// Result is the outcome of Capture or Diff: a new layer's identity bytes
// are ready to be stored, unless Empty is set, in which case no layer
// should be created.
type Result struct {
	Hash   string
	Buffer []byte
	Empty  bool
}

// Snapshotter packs and unpacks the per-layer deltas that make up
// statekit's history. It owns no persistent state of its own beyond
// scratch directories, which it creates and removes within a single call.
type Snapshotter struct {
	blobs BlobSource
	cache *stateCache
}

// New returns a Snapshotter that restores blobs from the given source.
func New(blobs BlobSource) *Snapshotter {
	return &Snapshotter{blobs: blobs, cache: newStateCache()}
}

// Capture builds the root layer: a full archive of every entry in workdir.
// Returns Empty=true if the workdir has no entries (no layer is created).
func (s *Snapshotter) Capture(workdir string) (Result, error) {
	entries, err := Walk(workdir)
	if err != nil {
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{Empty: true}, nil
	}
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.RelPath
	}
	sort.Strings(paths)

	buf, err := packArchive(workdir, paths)
	if err != nil {
		return Result{}, err
	}
	sum := sha256.Sum256(buf)
	return Result{Hash: hex.EncodeToString(sum[:]), Buffer: buf}, nil
}

// Diff computes the delta between workdir's current state and the state of
// parentChain (the ancestry from root to the parent layer, inclusive).
// Returns Empty=true if nothing changed and nothing was deleted.
func (s *Snapshotter) Diff(workdir string, parentChain []string) (Result, error) {
	current, err := State(workdir)
	if err != nil {
		return Result{}, err
	}
	base, err := s.StateFromLayer(parentChain)
	if err != nil {
		return Result{}, err
	}

	var changed, deleted []string
	for rel, fp := range current {
		if baseFp, ok := base[rel]; !ok || !fingerprint.Equal(fp, baseFp) {
			changed = append(changed, rel)
		}
	}
	for rel := range base {
		if _, ok := current[rel]; !ok {
			deleted = append(deleted, rel)
		}
	}
	if len(changed) == 0 && len(deleted) == 0 {
		return Result{Empty: true}, nil
	}
	sort.Strings(changed)
	sort.Strings(deleted)

	var buf []byte
	if len(changed) > 0 {
		buf, err = packArchive(workdir, changed)
		if err != nil {
			return Result{}, err
		}
	}
	if deleted == nil {
		deleted = []string{}
	}
	var deletedJSON bytes.Buffer
	enc := json.NewEncoder(&deletedJSON)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(deleted); err != nil {
		return Result{}, err
	}
	sum := sha256.New()
	sum.Write(buf)
	sum.Write(bytes.TrimSuffix(deletedJSON.Bytes(), []byte("\n")))
	return Result{Hash: hex.EncodeToString(sum.Sum(nil)), Buffer: buf}, nil
}

// RestoreOne extracts a single layer's blob over workdir. A zero-byte blob
// (a diff layer that only recorded deletions) is a no-op.
func (s *Snapshotter) RestoreOne(workdir, hash string) error {
	data, ok, err := s.blobs.Get(hash)
	if err != nil {
		return fmt.Errorf("restore %s: %w", hash, err)
	}
	if !ok {
		return fmt.Errorf("restore %s: blob missing", hash)
	}
	if len(data) == 0 {
		return nil
	}
	return unpackArchive(workdir, data)
}

// Rebuild deletes workdir, recreates it empty, then restores every layer in
// chain (root to head order) onto it in turn.
func (s *Snapshotter) Rebuild(workdir string, chain []string) error {
	if err := os.RemoveAll(workdir); err != nil {
		return fmt.Errorf("rebuild: clearing workdir: %w", err)
	}
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return fmt.Errorf("rebuild: recreating workdir: %w", err)
	}
	for _, hash := range chain {
		if err := s.RestoreOne(workdir, hash); err != nil {
			return err
		}
	}
	return nil
}

// StateFromLayer reconstructs the WorkState for the layer at the tip of
// chain without touching the caller's workdir: it materializes chain into
// a fresh scratch directory, fingerprints it, and removes the scratch
// directory unconditionally before returning.
func (s *Snapshotter) StateFromLayer(chain []string) (fingerprint.WorkState, error) {
	if len(chain) == 0 {
		return fingerprint.WorkState{}, nil
	}
	tip := chain[len(chain)-1]
	if cached, ok := s.cache.get(tip); ok {
		return cached, nil
	}

	scratch, err := os.MkdirTemp("", "statekit-state-*")
	if err != nil {
		return nil, fmt.Errorf("state-from-layer: %w", err)
	}
	defer os.RemoveAll(scratch)

	for _, hash := range chain {
		if err := s.RestoreOne(scratch, hash); err != nil {
			return nil, err
		}
	}
	state, err := State(scratch)
	if err != nil {
		return nil, err
	}
	s.cache.set(tip, state)
	return state, nil
}

// packArchive builds a portable, uncompressed USTAR archive of paths (in
// the order given) packed relative to root. Mtimes are normalized to the
// zero time for hash stability across reruns.
func packArchive(root string, paths []string) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, rel := range paths {
		abs := filepath.Join(root, filepath.FromSlash(rel))
		info, err := os.Lstat(abs)
		if err != nil {
			return nil, err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return nil, err
		}
		hdr.Name = rel
		hdr.ModTime = time.Unix(0, 0).UTC()
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.Uid, hdr.Gid = 0, 0
		hdr.Uname, hdr.Gname = "", ""

		switch {
		case info.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(abs)
			if err != nil {
				return nil, err
			}
			hdr.Typeflag = tar.TypeSymlink
			hdr.Linkname = target
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, err
			}
		case info.IsDir():
			hdr.Typeflag = tar.TypeDir
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, err
			}
		default:
			hdr.Typeflag = tar.TypeReg
			if err := tw.WriteHeader(hdr); err != nil {
				return nil, err
			}
			f, err := os.Open(abs)
			if err != nil {
				return nil, err
			}
			_, err = io.Copy(tw, f)
			f.Close()
			if err != nil {
				return nil, err
			}
		}
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// unpackArchive extracts a USTAR archive into root. Member names are
// rejected if absolute or if they attempt to escape root via "..".
func unpackArchive(root string, data []byte) error {
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("corrupt archive: %w", err)
		}
		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(hdr.Mode)|0o700); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			f, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode)|0o600)
			if err != nil {
				return err
			}
			if _, err := io.Copy(f, tr); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("unsupported archive entry type %q for %q", hdr.Typeflag, hdr.Name)
		}
	}
}

var errPathEscape = errors.New("archive member escapes extraction root")

// safeJoin joins root and name, refusing absolute paths and "../" escapes.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", errPathEscape, name)
	}
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errPathEscape, name)
	}
	return filepath.Join(root, cleaned), nil
}
