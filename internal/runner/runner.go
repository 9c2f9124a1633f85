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

// Package runner executes the shell instructions that produce each layer.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/ethereum/go-ethereum/log"
)

// Result describes the outcome of running an instruction.
type Result struct {
	ExitCode int
	Success  bool
}

// Run executes instruction with "sh -c" in workdir. Stdout and stderr are
// streamed to out and errOut as the process runs. HOME is overridden to
// workdir so the instruction sees a workdir-scoped home, matching the
// sandboxing convention the rest of the environment is inherited from.
func Run(ctx context.Context, workdir, instruction string, out, errOut io.Writer) (Result, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", instruction)
	cmd.Dir = workdir
	cmd.Stdout = out
	cmd.Stderr = errOut
	cmd.Env = overrideHome(os.Environ(), workdir)

	log.Debug("runner: executing instruction", "workdir", workdir)
	err := cmd.Run()
	if err == nil {
		return Result{ExitCode: 0, Success: true}, nil
	}

	var exitErr *exec.ExitError
	if ok := asExitError(err, &exitErr); ok {
		return Result{ExitCode: exitErr.ExitCode(), Success: false}, nil
	}
	return Result{}, fmt.Errorf("runner: launching instruction: %w", err)
}

func asExitError(err error, target **exec.ExitError) bool {
	ee, ok := err.(*exec.ExitError)
	if ok {
		*target = ee
	}
	return ok
}

// overrideHome returns env with HOME replaced by workdir, leaving every
// other variable untouched.
func overrideHome(env []string, workdir string) []string {
	out := make([]string, 0, len(env)+1)
	replaced := false
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "HOME=" {
			out = append(out, "HOME="+workdir)
			replaced = true
			continue
		}
		out = append(out, kv)
	}
	if !replaced {
		out = append(out, "HOME="+workdir)
	}
	return out
}
