package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/statekit-dev/statekit/engine"
)

func newEngine(ctx *cli.Context) (*engine.Engine, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return engine.Open(cfg)
}

func fail(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

var runCommand = cli.Command{
	Name:      "run",
	Usage:     "Execute an instruction, capturing its effect as a layer",
	ArgsUsage: "<instruction>",
	Action:    runAction,
}

func runAction(ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return fail("run: expected exactly one instruction argument")
	}
	e, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Run(context.Background(), ctx.Args().Get(0), os.Stdout, os.Stderr)
	if err != nil {
		return describeErr(err)
	}
	switch {
	case res.Cached:
		fmt.Printf("%s cached (hash %s)\n", color.YellowString("=="), short(res.Hash))
	case res.Empty:
		fmt.Printf("%s no change\n", color.CyanString("--"))
	default:
		fmt.Printf("%s layer %s\n", color.GreenString("++"), short(res.Hash))
	}
	return nil
}

var execCommand = cli.Command{
	Name:      "exec",
	Usage:     "Execute an instruction without recording a layer",
	ArgsUsage: "<instruction>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fail("exec: expected exactly one instruction argument")
		}
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.Exec(context.Background(), ctx.Args().Get(0), os.Stdout, os.Stderr); err != nil {
			return describeErr(err)
		}
		return nil
	},
}

var batchCommand = cli.Command{
	Name:      "batch",
	Usage:     "Run each instruction in a JSON array file, in order",
	ArgsUsage: "<file.json>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fail("batch: expected a path to a JSON array file")
		}
		raw, err := os.ReadFile(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		var instructions []string
		if err := json.Unmarshal(raw, &instructions); err != nil {
			return fmt.Errorf("batch: parsing %s: %w", ctx.Args().Get(0), err)
		}
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		results, err := e.Batch(context.Background(), instructions, os.Stdout, os.Stderr)
		for _, res := range results {
			switch {
			case res.Cached:
				fmt.Printf("%s cached (hash %s)\n", color.YellowString("=="), short(res.Hash))
			case res.Empty:
				fmt.Printf("%s no change\n", color.CyanString("--"))
			default:
				fmt.Printf("%s layer %s\n", color.GreenString("++"), short(res.Hash))
			}
		}
		if err != nil {
			return describeErr(err)
		}
		return nil
	},
}

var historyCommand = cli.Command{
	Name:  "history",
	Usage: "Show the chain from root to head",
	Action: func(ctx *cli.Context) error {
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		chain, err := e.History()
		if err != nil {
			return err
		}
		printHistory(chain)
		return nil
	},
}

var statusCommand = cli.Command{
	Name:  "status",
	Usage: "Show uncommitted workdir changes against head",
	Action: func(ctx *cli.Context) error {
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		st, err := e.Status()
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

var diffCommand = cli.Command{
	Name:      "diff",
	Usage:     "Diff two layer states (defaults: from=empty, to=head)",
	ArgsUsage: "[from] [to]",
	Action: func(ctx *cli.Context) error {
		from, to := "", ""
		if ctx.NArg() > 0 {
			from = ctx.Args().Get(0)
		}
		if ctx.NArg() > 1 {
			to = ctx.Args().Get(1)
		}
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		st, err := e.Diff(from, to)
		if err != nil {
			return describeErr(err)
		}
		printStatus(st)
		return nil
	},
}

var checkoutCommand = cli.Command{
	Name:      "checkout",
	Usage:     "Materialize a chain prefix into workdir and move head",
	ArgsUsage: "<ref>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fail("checkout: expected a ref")
		}
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Checkout(ctx.Args().Get(0)); err != nil {
			return describeErr(err)
		}
		return nil
	},
}

var tagCommand = cli.Command{
	Name:      "tag",
	Usage:     "Create or replace a tag, defaulting ref to head",
	ArgsUsage: "<name> [ref]",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() < 1 {
			return fail("tag: expected a tag name")
		}
		ref := ""
		if ctx.NArg() > 1 {
			ref = ctx.Args().Get(1)
		}
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Tag(ctx.Args().Get(0), ref); err != nil {
			return describeErr(err)
		}
		return nil
	},
}

var tagsCommand = cli.Command{
	Name:  "tags",
	Usage: "List all tags",
	Action: func(ctx *cli.Context) error {
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		printTags(e.Tags())
		return nil
	},
}

var inspectCommand = cli.Command{
	Name:      "inspect",
	Usage:     "Show one layer's metadata",
	ArgsUsage: "<ref>",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return fail("inspect: expected a ref")
		}
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		info, err := e.Inspect(ctx.Args().Get(0))
		if err != nil {
			return describeErr(err)
		}
		printLayerInfo(info)
		return nil
	},
}

var rebuildCommand = cli.Command{
	Name:  "rebuild",
	Usage: "Reconstruct workdir from the current chain",
	Action: func(ctx *cli.Context) error {
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		count, err := e.Rebuild()
		if err != nil {
			return err
		}
		fmt.Printf("rebuilt %d layers\n", count)
		return nil
	},
}

var resetCommand = cli.Command{
	Name:  "reset",
	Usage: "Delete the state directory and start fresh",
	Action: func(ctx *cli.Context) error {
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()
		return e.Reset()
	},
}

var headCommand = cli.Command{
	Name:  "head",
	Usage: "Print the current head (short) or (empty)",
	Action: func(ctx *cli.Context) error {
		e, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		head := e.Head()
		if head == nil {
			fmt.Println("(empty)")
			return nil
		}
		fmt.Println(short(*head))
		return nil
	},
}

// describeErr adds exit-relevant context for the sentinel engine errors the
// CLI surfaces distinctly; other errors pass through unchanged.
func describeErr(err error) error {
	var cmdErr *engine.CommandFailedError
	if errors.As(err, &cmdErr) {
		return fmt.Errorf("instruction failed with exit code %d: %s", cmdErr.ExitCode, cmdErr.Instruction)
	}
	return err
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
