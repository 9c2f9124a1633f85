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

package engine

import (
	"sort"

	"github.com/statekit-dev/statekit/internal/fingerprint"
)

// compareStates diffs two filesystem states, used by both Status (workdir
// vs head) and Diff (two layer states). added is present only in current,
// deleted only in base, modified present in both with differing content.
func compareStates(current, base fingerprint.WorkState) Status {
	var added, modified, deleted []string
	for rel, fp := range current {
		baseFp, ok := base[rel]
		if !ok {
			added = append(added, rel)
			continue
		}
		if !fingerprint.Equal(fp, baseFp) {
			modified = append(modified, rel)
		}
	}
	for rel := range base {
		if _, ok := current[rel]; !ok {
			deleted = append(deleted, rel)
		}
	}
	sort.Strings(added)
	sort.Strings(modified)
	sort.Strings(deleted)
	return Status{Added: added, Modified: modified, Deleted: deleted}
}
