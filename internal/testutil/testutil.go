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

// Package testutil holds small helpers shared by the core packages' test
// suites.
package testutil

import "github.com/davecgh/go-spew/spew"

// DumpDiff renders got and want with spew so a mismatched map or struct
// shows its full nested contents in the failure message, rather than the
// default %v truncation.
func DumpDiff(got, want interface{}) string {
	return "got:\n" + spew.Sdump(got) + "want:\n" + spew.Sdump(want)
}
