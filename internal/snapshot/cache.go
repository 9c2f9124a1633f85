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
	"encoding/json"

	"github.com/VictoriaMetrics/fastcache"

	"github.com/statekit-dev/statekit/internal/fingerprint"
)

// stateCache memoizes StateFromLayer reconstructions within a single
// process lifetime, keyed by the hash of the layer the state was computed
// for. Grounded on journal.go's disk-layer account cache
// (fastcache.New(512 * 1024 * 1024)): the same "recompute is expensive,
// keep a bounded in-memory cache of recent results" shape, applied here to
// whole-tree fingerprints instead of individual account blobs.
//
// A miss is never a correctness problem, only a performance one: on miss
// the caller falls through to materializing the chain from blobs again.
type stateCache struct {
	backing *fastcache.Cache
}

func newStateCache() *stateCache {
	return &stateCache{backing: fastcache.New(64 * 1024 * 1024)}
}

func (c *stateCache) get(layerHash string) (fingerprint.WorkState, bool) {
	raw, ok := c.backing.HasGet(nil, []byte(layerHash))
	if !ok {
		return nil, false
	}
	var state fingerprint.WorkState
	if err := json.Unmarshal(raw, &state); err != nil {
		// A corrupt cache entry is never fatal - just treat it as a miss.
		return nil, false
	}
	return state, true
}

func (c *stateCache) set(layerHash string, state fingerprint.WorkState) {
	encoded, err := json.Marshal(state)
	if err != nil {
		return
	}
	c.backing.Set([]byte(layerHash), encoded)
}
