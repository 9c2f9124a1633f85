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
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"

	"github.com/statekit-dev/statekit/internal/fingerprint"
)

// State walks root and returns the fingerprint of every entry found,
// keyed by relative path. It is the direct implementation of spec's
// "state(root) -> WorkState".
func State(root string) (fingerprint.WorkState, error) {
	entries, err := Walk(root)
	if err != nil {
		return nil, err
	}
	state := make(fingerprint.WorkState, len(entries))
	for _, e := range entries {
		fp, err := fingerprintEntry(e)
		if err != nil {
			return nil, err
		}
		state[e.RelPath] = fp
	}
	return state, nil
}

func fingerprintEntry(e entry) (fingerprint.Fingerprint, error) {
	info, err := os.Lstat(e.AbsPath)
	if err != nil {
		return fingerprint.Fingerprint{}, err
	}
	mode := info.Mode()
	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(e.AbsPath)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		return fingerprint.Fingerprint{Kind: fingerprint.KindSymlink, Digest: target, Mode: mode.Perm()}, nil
	case mode.IsDir():
		return fingerprint.Fingerprint{Kind: fingerprint.KindDir, Mode: mode.Perm()}, nil
	default:
		digest, err := hashFile(e.AbsPath)
		if err != nil {
			return fingerprint.Fingerprint{}, err
		}
		return fingerprint.Fingerprint{Kind: fingerprint.KindFile, Digest: digest, Mode: mode.Perm()}, nil
	}
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
