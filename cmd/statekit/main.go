package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	colorable "github.com/mattn/go-colorable"
	isatty "github.com/mattn/go-isatty"
	cli "gopkg.in/urfave/cli.v1"
)

var (
	stateDirFlag = cli.StringFlag{
		Name:   "statedir",
		Usage:  "Directory holding the layer catalog and blob store",
		EnvVar: "STATEKIT_DIR,SEQUENTIAL_MACHINE_DIR",
	}
	workDirFlag = cli.StringFlag{
		Name:   "workdir",
		Usage:  "Directory instructions execute in and that is snapshotted",
		EnvVar: "STATEKIT_WORK,SEQUENTIAL_MACHINE_WORK",
	}
	configFlag = cli.StringFlag{
		Name:  "config",
		Usage: "TOML config file overriding statedir/workdir defaults",
	}
	verboseFlag = cli.BoolFlag{
		Name:  "verbose",
		Usage: "Enable debug-level logging",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "statekit"
	app.Usage = "persistent, content-addressed compute over a working directory"
	app.Flags = []cli.Flag{stateDirFlag, workDirFlag, configFlag, verboseFlag}
	app.Before = setupLogging
	app.Commands = []cli.Command{
		runCommand,
		execCommand,
		batchCommand,
		historyCommand,
		statusCommand,
		diffCommand,
		checkoutCommand,
		tagCommand,
		tagsCommand,
		inspectCommand,
		rebuildCommand,
		resetCommand,
		headCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setupLogging(ctx *cli.Context) error {
	lvl := log.LvlInfo
	if ctx.GlobalBool(verboseFlag.Name) {
		lvl = log.LvlDebug
	}
	handler := log.LvlFilterHandler(lvl, log.StreamHandler(colorable.NewColorableStderr(), log.TerminalFormat(true)))
	log.Root().SetHandler(handler)

	if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	return nil
}
