// Command locsim runs a scenario file against a fresh simulated network of
// profile and proximity servers: one positional argument,
// the scenario file path; exit code 0 on success, non-zero on any command
// failure.
package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli"
	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/orchestrator"
	"go.dedis.ch/locsim/scenario"
	"go.dedis.ch/locsim/simctx"
)

func main() {
	app := cli.NewApp()
	app.Name = "locsim"
	app.Usage = "deterministic network simulator for the profile/proximity LOC protocol"
	app.Version = "0.1"
	app.ArgsUsage = "scenario-file"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "debug, d",
			Value: 1,
			Usage: "debug-level: 1 for terse, 5 for maximal",
		},
		cli.Int64Flag{
			Name:  "seed, s",
			Usage: "RNG seed; 0 (default) seeds from the current time",
		},
		cli.StringFlag{
			Name:  "workdir, w",
			Value: ".",
			Usage: "simulator working directory, holding bin/, images/, instances/ and snapshots/",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(c *cli.Context) error {
	log.SetDebugVisible(c.Int("debug"))

	if c.NArg() != 1 {
		return xerrors.New("expected exactly one argument: the scenario file path")
	}
	scenarioPath := c.Args().First()

	f, err := os.Open(scenarioPath)
	if err != nil {
		return xerrors.Errorf("opening scenario file: %v", err)
	}
	defer f.Close()

	cmds, err := scenario.Parse(f)
	if err != nil {
		return xerrors.Errorf("parsing scenario: %v", err)
	}
	log.Lvl1("locsim: parsed ", len(cmds), " commands from ", scenarioPath)

	workdir := c.String("workdir")
	paths := simctx.Paths{
		BinDir:       filepath.Join(workdir, "bin"),
		ImagesDir:    filepath.Join(workdir, "images"),
		InstancesDir: filepath.Join(workdir, "instances"),
		SnapshotsDir: filepath.Join(workdir, "snapshots"),
	}
	if err := os.MkdirAll(paths.InstancesDir, 0o755); err != nil {
		return xerrors.Errorf("creating instances directory: %v", err)
	}
	if err := os.MkdirAll(paths.SnapshotsDir, 0o755); err != nil {
		return xerrors.Errorf("creating snapshots directory: %v", err)
	}

	seed := c.Int64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	ctx := simctx.New(paths, seed)

	o := orchestrator.New(ctx)
	defer o.Shutdown()
	if err := o.Run(cmds); err != nil {
		return xerrors.Errorf("running scenario: %v", err)
	}

	log.Lvl1("locsim: scenario completed successfully")
	return nil
}
