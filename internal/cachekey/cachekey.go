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

// Package cachekey computes the lookup key memoized execution keys off of:
// the SHA-256 of a canonical JSON encoding of an (instruction, parent) pair.
package cachekey

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// document is deliberately a struct, not a map: encoding/json emits struct
// fields in declaration order with no inserted whitespace (and, with HTML
// escaping turned off, leaves '<', '>' and '&' unescaped), which is exactly
// the "two keys, fixed order, no whitespace" canonical form the cache key
// needs to be stable across implementations. A map would sort keys
// alphabetically by accident of the stdlib, which happens to agree here,
// but relying on that would be fragile against future stdlib changes.
type document struct {
	Instruction string  `json:"instruction"`
	Parent      *string `json:"parent"`
}

// Compute returns the lowercase hex SHA-256 cache key for instruction run
// against parent. parent is nil for a root lookup (no prior layer).
func Compute(instruction string, parent *string) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(document{Instruction: instruction, Parent: parent}); err != nil {
		return "", err
	}
	sum := sha256.Sum256(bytes.TrimSuffix(buf.Bytes(), []byte("\n")))
	return hex.EncodeToString(sum[:]), nil
}
