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

// Package engine ties the Index, BlobStore, Snapshotter, and subprocess
// runner together into the run / exec / checkout / rebuild lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/statekit-dev/statekit/internal/blobstore"
	"github.com/statekit-dev/statekit/internal/fingerprint"
	"github.com/statekit-dev/statekit/internal/index"
	"github.com/statekit-dev/statekit/internal/runner"
	"github.com/statekit-dev/statekit/internal/snapshot"
)

// Sentinel errors, matched with errors.Is. UnresolvedRef is the same
// sentinel the index package exposes; Engine re-exports it so callers
// never need to import internal/index directly.
var (
	ErrCommandFailed   = errors.New("command failed")
	ErrUnresolvedRef   = index.ErrUnresolvedRef
	ErrLayerNotOnChain = errors.New("layer not on chain")
	ErrNothingToTag    = errors.New("nothing to tag")
)

// CommandFailedError reports a non-zero subprocess exit from run/exec.
type CommandFailedError struct {
	Instruction string
	ExitCode    int
}

func (e *CommandFailedError) Error() string {
	return fmt.Sprintf("command failed (exit %d): %s", e.ExitCode, e.Instruction)
}

func (e *CommandFailedError) Unwrap() error { return ErrCommandFailed }

// LayerNotOnChainError reports that a checkout target is not an ancestor
// of the current head.
type LayerNotOnChainError struct {
	Hash string
}

func (e *LayerNotOnChainError) Error() string {
	return fmt.Sprintf("layer %s is not on the current chain", e.Hash)
}

func (e *LayerNotOnChainError) Unwrap() error { return ErrLayerNotOnChain }

// Config are the two filesystem paths an Engine is built from. Both are
// resolved to absolute paths at construction.
type Config struct {
	StateDir string
	WorkDir  string
}

// resolve fills in defaults (".statekit", "<stateDir>/work") and makes
// both paths absolute.
func (c Config) resolve() (Config, error) {
	stateDir := c.StateDir
	if stateDir == "" {
		stateDir = ".statekit"
	}
	stateDir, err := filepath.Abs(stateDir)
	if err != nil {
		return Config{}, fmt.Errorf("engine: resolving state dir: %w", err)
	}
	workDir := c.WorkDir
	if workDir == "" {
		workDir = filepath.Join(stateDir, "work")
	}
	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return Config{}, fmt.Errorf("engine: resolving work dir: %w", err)
	}
	return Config{StateDir: stateDir, WorkDir: workDir}, nil
}

// Status reports the difference between two filesystem states, used by
// both Status (workdir vs head) and Diff (two layer states).
type Status struct {
	Added    []string
	Modified []string
	Deleted  []string
}

// Clean reports whether the status carries no differences.
func (s Status) Clean() bool {
	return len(s.Added) == 0 && len(s.Modified) == 0 && len(s.Deleted) == 0
}

// RunResult is the outcome of Run: exactly one of Cached or Empty may be
// set, or neither (a fresh layer was created).
type RunResult struct {
	Hash   string
	Cached bool
	Empty  bool
}

// LayerInfo is the metadata Inspect reports about one layer.
type LayerInfo struct {
	Hash        string
	Instruction string
	Parent      *string
	Time        int64
	Size        int64
}

// Engine is the façade over Index, BlobStore, Snapshotter, and Runner. It
// owns no persistent state of its own.
type Engine struct {
	cfg   Config
	idx   *index.Index
	blobs *blobstore.Store
	snap  *snapshot.Snapshotter
}

// Open ensures stateDir and workDir exist and returns a ready Engine.
func Open(cfg Config) (*Engine, error) {
	cfg, err := cfg.resolve()
	if err != nil {
		return nil, err
	}
	if err := ensureDirs(cfg); err != nil {
		return nil, err
	}

	idx, err := index.Open(filepath.Join(cfg.StateDir, "index.json"))
	if err != nil {
		return nil, err
	}
	blobs, err := blobstore.Open(filepath.Join(cfg.StateDir, "blobs"), filepath.Join(cfg.StateDir, "sizes.ldb"))
	if err != nil {
		return nil, err
	}
	return &Engine{
		cfg:   cfg,
		idx:   idx,
		blobs: blobs,
		snap:  snapshot.New(blobs),
	}, nil
}

// Close releases the engine's underlying handles (currently just the
// optional blob size accelerator).
func (e *Engine) Close() error {
	return e.blobs.Close()
}

func ensureDirs(cfg Config) error {
	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return fmt.Errorf("engine: creating state dir: %w", err)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return fmt.Errorf("engine: creating work dir: %w", err)
	}
	return nil
}

// Run executes instruction, capturing its effect on workdir as a new
// layer unless a matching cache entry already exists.
func (e *Engine) Run(ctx context.Context, instruction string, stdout, stderr io.Writer) (RunResult, error) {
	parent := e.idx.Head()

	hit, ok, err := e.idx.FindByCacheKey(instruction, parent)
	if err != nil {
		return RunResult{}, err
	}
	if ok {
		if err := e.snap.RestoreOne(e.cfg.WorkDir, hit.Hash); err != nil {
			return RunResult{}, err
		}
		log.Debug("engine: cache hit", "instruction", instruction, "hash", hit.Hash[:12])
		return RunResult{Hash: hit.Hash, Cached: true}, nil
	}

	res, err := runner.Run(ctx, e.cfg.WorkDir, instruction, stdout, stderr)
	if err != nil {
		return RunResult{}, err
	}
	if !res.Success {
		return RunResult{}, &CommandFailedError{Instruction: instruction, ExitCode: res.ExitCode}
	}

	var result snapshot.Result
	if parent != nil {
		chain := hashChain(e.idx.Ancestry())
		result, err = e.snap.Diff(e.cfg.WorkDir, chain)
	} else {
		result, err = e.snap.Capture(e.cfg.WorkDir)
	}
	if err != nil {
		return RunResult{}, err
	}
	if result.Empty {
		head := ""
		if parent != nil {
			head = *parent
		}
		return RunResult{Hash: head, Empty: true}, nil
	}

	if err := e.blobs.Put(result.Hash, result.Buffer); err != nil {
		return RunResult{}, err
	}
	layer := index.Layer{
		Hash:        result.Hash,
		Instruction: instruction,
		Parent:      parent,
		Time:        time.Now().UnixMilli(),
	}
	if err := e.idx.Append(layer); err != nil {
		return RunResult{}, err
	}
	return RunResult{Hash: result.Hash}, nil
}

// Exec runs instruction without creating a layer; used for queries that
// must not mutate history.
func (e *Engine) Exec(ctx context.Context, instruction string, stdout, stderr io.Writer) error {
	res, err := runner.Run(ctx, e.cfg.WorkDir, instruction, stdout, stderr)
	if err != nil {
		return err
	}
	if !res.Success {
		return &CommandFailedError{Instruction: instruction, ExitCode: res.ExitCode}
	}
	return nil
}

// Batch runs each instruction via Run, in order, stopping at the first
// failure.
func (e *Engine) Batch(ctx context.Context, instructions []string, stdout, stderr io.Writer) ([]RunResult, error) {
	results := make([]RunResult, 0, len(instructions))
	for _, instr := range instructions {
		res, err := e.Run(ctx, instr, stdout, stderr)
		if err != nil {
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

// Rebuild reconstructs workdir from the full ancestry of head and
// reports how many layers were applied.
func (e *Engine) Rebuild() (int, error) {
	chain := hashChain(e.idx.Ancestry())
	if err := e.snap.Rebuild(e.cfg.WorkDir, chain); err != nil {
		return 0, err
	}
	return len(chain), nil
}

// Reset deletes stateDir entirely and starts a fresh, empty store.
func (e *Engine) Reset() error {
	if err := e.blobs.Close(); err != nil {
		log.Warn("engine: closing blob store during reset", "err", err)
	}
	if err := os.RemoveAll(e.cfg.StateDir); err != nil {
		return fmt.Errorf("engine: reset: %w", err)
	}
	if err := ensureDirs(e.cfg); err != nil {
		return err
	}
	idx, err := index.Open(filepath.Join(e.cfg.StateDir, "index.json"))
	if err != nil {
		return err
	}
	blobs, err := blobstore.Open(filepath.Join(e.cfg.StateDir, "blobs"), filepath.Join(e.cfg.StateDir, "sizes.ldb"))
	if err != nil {
		return err
	}
	e.idx = idx
	e.blobs = blobs
	e.snap = snapshot.New(blobs)
	return nil
}

// Checkout resolves ref, verifies it is on the current chain, rebuilds
// workdir up to that point, and moves head to it.
func (e *Engine) Checkout(ref string) error {
	hash, err := e.idx.Resolve(ref)
	if err != nil {
		return err
	}
	chain := hashChain(e.idx.Ancestry())
	idx := -1
	for i, h := range chain {
		if h == hash {
			idx = i
			break
		}
	}
	if idx == -1 {
		return &LayerNotOnChainError{Hash: hash}
	}
	if err := e.snap.Rebuild(e.cfg.WorkDir, chain[:idx+1]); err != nil {
		return err
	}
	return e.idx.SetHead(hash)
}

// Status compares the live workdir against the state of head.
func (e *Engine) Status() (Status, error) {
	current, err := snapshot.State(e.cfg.WorkDir)
	if err != nil {
		return Status{}, err
	}
	var base fingerprint.WorkState
	if head := e.idx.Head(); head != nil {
		chain := hashChain(e.idx.Ancestry())
		state, err := e.snap.StateFromLayer(chain)
		if err != nil {
			return Status{}, err
		}
		base = state
	}
	return compareStates(current, base), nil
}

// Diff compares the states of two layers. An empty from means "the empty
// tree"; an empty to means head.
func (e *Engine) Diff(from, to string) (Status, error) {
	toHash := to
	if toHash == "" {
		head := e.idx.Head()
		if head == nil {
			return Status{}, nil
		}
		toHash = *head
	} else {
		resolved, err := e.idx.Resolve(toHash)
		if err != nil {
			return Status{}, err
		}
		toHash = resolved
	}

	toChain, err := e.ancestryOf(toHash)
	if err != nil {
		return Status{}, err
	}
	toState, err := e.snap.StateFromLayer(toChain)
	if err != nil {
		return Status{}, err
	}

	var fromState fingerprint.WorkState
	if from != "" {
		fromHash, err := e.idx.Resolve(from)
		if err != nil {
			return Status{}, err
		}
		fromChain, err := e.ancestryOf(fromHash)
		if err != nil {
			return Status{}, err
		}
		state, err := e.snap.StateFromLayer(fromChain)
		if err != nil {
			return Status{}, err
		}
		fromState = state
	}
	return compareStates(toState, fromState), nil
}

// ancestryOf returns the root..hash chain by walking parent pointers from
// hash itself, rather than requiring hash to sit on the current head's
// chain. Diff may target a layer head has since diverged from (e.g. after
// a checkout to an ancestor); unlike Checkout, spec.md §4.4 places no
// on-chain requirement on diff's endpoints.
func (e *Engine) ancestryOf(hash string) ([]string, error) {
	byHash := make(map[string]index.Layer, len(e.idx.Layers()))
	for _, l := range e.idx.Layers() {
		byHash[l.Hash] = l
	}
	l, ok := byHash[hash]
	if !ok {
		return nil, &LayerNotOnChainError{Hash: hash}
	}
	var chain []string
	for {
		chain = append([]string{l.Hash}, chain...)
		if l.Parent == nil {
			break
		}
		parent, ok := byHash[*l.Parent]
		if !ok {
			break
		}
		l = parent
	}
	return chain, nil
}

// Tag sets name to ref, or to the current head if ref is empty. Fails
// with ErrNothingToTag if there is no head to fall back on.
func (e *Engine) Tag(name, ref string) error {
	target := ref
	if target == "" {
		head := e.idx.Head()
		if head == nil {
			return ErrNothingToTag
		}
		target = *head
	}
	hash, err := e.idx.Resolve(target)
	if err != nil {
		return err
	}
	return e.idx.SetTag(name, hash)
}

// Tags returns the current tag mapping.
func (e *Engine) Tags() map[string]string {
	return e.idx.Tags()
}

// Inspect reports one layer's metadata, including its blob size.
func (e *Engine) Inspect(ref string) (LayerInfo, error) {
	hash, err := e.idx.Resolve(ref)
	if err != nil {
		return LayerInfo{}, err
	}
	for _, l := range e.idx.Layers() {
		if l.Hash == hash {
			size, err := e.blobs.Size(hash)
			if err != nil {
				return LayerInfo{}, err
			}
			return LayerInfo{Hash: l.Hash, Instruction: l.Instruction, Parent: l.Parent, Time: l.Time, Size: size}, nil
		}
	}
	return LayerInfo{}, fmt.Errorf("%w: %s", ErrUnresolvedRef, ref)
}

// HistoryEntry is one layer as reported by History, root to head order.
type HistoryEntry struct {
	Hash        string
	Short       string // first 12 characters of Hash
	Instruction string
	Parent      *string
	Time        int64
}

// History materializes the full chain from root to head.
func (e *Engine) History() ([]HistoryEntry, error) {
	chain := e.idx.Ancestry()
	out := make([]HistoryEntry, len(chain))
	for i, l := range chain {
		short := l.Hash
		if len(short) > 12 {
			short = short[:12]
		}
		out[i] = HistoryEntry{Hash: l.Hash, Short: short, Instruction: l.Instruction, Parent: l.Parent, Time: l.Time}
	}
	return out, nil
}

// Head returns the current head hash, or nil if the chain is empty.
func (e *Engine) Head() *string {
	return e.idx.Head()
}

func hashChain(layers []index.Layer) []string {
	out := make([]string, len(layers))
	for i, l := range layers {
		out[i] = l.Hash
	}
	return out
}
