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

// Package index implements the persistent catalog of layers, the head
// pointer, and tags: the Index component of statekit.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/ethereum/go-ethereum/log"
	"github.com/statekit-dev/statekit/internal/cachekey"
)

// ErrUnresolvedRef is returned by Resolve when ref names no tag, hash
// prefix, or exact hash - or when a prefix matches more than one layer.
var ErrUnresolvedRef = errors.New("unresolved ref")

// Layer is one immutable record in the catalog.
type Layer struct {
	Hash        string  `json:"hash"`
	Instruction string  `json:"instruction"`
	Parent      *string `json:"parent"`
	Time        int64   `json:"time"`
}

// document is the on-disk shape of index.json.
type document struct {
	Head   *string           `json:"head"`
	Layers []Layer           `json:"layers"`
	Tags   map[string]string `json:"tags"`
}

// Index is the persistent catalog: append-only layer list, a mutable head
// pointer, and a mutable tag map.
type Index struct {
	mu       sync.Mutex
	path     string
	doc      document
	refCache *lru.Cache
}

// Open loads path if it exists, or starts a fresh empty catalog otherwise.
func Open(path string) (*Index, error) {
	idx := &Index{path: path, doc: document{Tags: map[string]string{}}}
	cache, err := lru.New(256)
	if err != nil {
		return nil, err
	}
	idx.refCache = cache

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("index: reading %s: %w", path, err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("index: corrupt catalog %s: %w", path, err)
	}
	if doc.Tags == nil {
		doc.Tags = map[string]string{}
	}
	idx.doc = doc
	return idx, nil
}

// save persists the catalog atomically: write to a temp file in the same
// directory, then rename over the target.
func (x *Index) save() error {
	data, err := json.MarshalIndent(x.doc, "", "  ")
	if err != nil {
		return fmt.Errorf("index: encoding catalog: %w", err)
	}
	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "index.json.tmp-*")
	if err != nil {
		return fmt.Errorf("index: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("index: writing catalog: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("index: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, x.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("index: committing catalog: %w", err)
	}
	return nil
}

// Head returns the current head hash, or nil if the chain is empty.
func (x *Index) Head() *string {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.doc.Head
}

// Layers returns the catalog in append order (not chain order).
func (x *Index) Layers() []Layer {
	x.mu.Lock()
	defer x.mu.Unlock()
	out := make([]Layer, len(x.doc.Layers))
	copy(out, x.doc.Layers)
	return out
}

// Append adds layer to the catalog and advances head to it.
func (x *Index) Append(layer Layer) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.doc.Layers = append(x.doc.Layers, layer)
	hash := layer.Hash
	x.doc.Head = &hash
	x.refCache.Purge()
	log.Debug("index: appended layer", "hash", shortHash(layer.Hash), "parent", shortHashPtr(layer.Parent))
	return x.save()
}

// SetHead mutates the head pointer only; it does not validate that hash
// names a known layer (callers like Engine.checkout do that via Ancestry).
func (x *Index) SetHead(hash string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	h := hash
	x.doc.Head = &h
	x.refCache.Purge()
	return x.save()
}

// FindByCacheKey scans layers for the first one produced by instruction
// run against parent, per the (instruction, parent) cache key. First
// stored match wins if more than one layer happens to share a cache key.
func (x *Index) FindByCacheKey(instruction string, parent *string) (Layer, bool, error) {
	want, err := cachekey.Compute(instruction, parent)
	if err != nil {
		return Layer{}, false, err
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, layer := range x.doc.Layers {
		got, err := cachekey.Compute(layer.Instruction, layer.Parent)
		if err != nil {
			return Layer{}, false, err
		}
		if got == want {
			return layer, true, nil
		}
	}
	return Layer{}, false, nil
}

// Ancestry follows parent pointers backward from head to the root and
// returns them in root-to-head order. If a parent pointer is dangling
// (its hash is not in the catalog), Ancestry stops and returns whatever
// prefix of the chain is intact.
func (x *Index) Ancestry() []Layer {
	x.mu.Lock()
	byHash := make(map[string]Layer, len(x.doc.Layers))
	for _, l := range x.doc.Layers {
		byHash[l.Hash] = l
	}
	head := x.doc.Head
	x.mu.Unlock()

	if head == nil {
		return nil
	}
	var chain []Layer
	cur, ok := byHash[*head]
	for ok {
		chain = append(chain, cur)
		if cur.Parent == nil {
			break
		}
		cur, ok = byHash[*cur.Parent]
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Resolve turns a ref (tag name, hash prefix, or exact hash) into a hash.
// Resolution order: tag name, then unique hash prefix (any length >= 1;
// an ambiguous prefix is reported as ErrUnresolvedRef), then exact hash.
func (x *Index) Resolve(ref string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("%w: empty ref", ErrUnresolvedRef)
	}
	if cached, ok := x.refCache.Get(ref); ok {
		return cached.(string), nil
	}

	x.mu.Lock()
	if hash, ok := x.doc.Tags[ref]; ok {
		x.mu.Unlock()
		x.refCache.Add(ref, hash)
		return hash, nil
	}
	layers := x.doc.Layers
	x.mu.Unlock()

	matched := map[string]bool{}
	for _, l := range layers {
		if strings.HasPrefix(l.Hash, ref) {
			matched[l.Hash] = true
		}
	}
	switch len(matched) {
	case 1:
		for hash := range matched {
			x.refCache.Add(ref, hash)
			return hash, nil
		}
	case 0:
		// fall through to exact-match check below
	default:
		return "", fmt.Errorf("%w: %q matches multiple layers", ErrUnresolvedRef, ref)
	}

	for _, l := range layers {
		if l.Hash == ref {
			x.refCache.Add(ref, l.Hash)
			return l.Hash, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnresolvedRef, ref)
}

// SetTag sets or replaces the mapping from name to hash.
func (x *Index) SetTag(name, hash string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.doc.Tags[name] = hash
	x.refCache.Purge()
	return x.save()
}

// Tags returns a copy of the current tag mapping.
func (x *Index) Tags() map[string]string {
	x.mu.Lock()
	defer x.mu.Unlock()

	out := make(map[string]string, len(x.doc.Tags))
	for k, v := range x.doc.Tags {
		out[k] = v
	}
	return out
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func shortHashPtr(h *string) string {
	if h == nil {
		return "(root)"
	}
	return shortHash(*h)
}
