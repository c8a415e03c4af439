package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/clientdriver"
	"go.dedis.ch/locsim/locserver"
	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/scenario"
	"go.dedis.ch/locsim/simctx"
	"go.dedis.ch/locsim/snapshot"
	"go.dedis.ch/locsim/supervisor"
)

// binaryName is the executable name the supervisor expects inside a
// server's instance directory, one per kind, matching the bin/<kind>
// template directory names.
func binaryName(kind model.ServerKind) string {
	if kind == model.KindProximity {
		return "ProximityServer"
	}
	return "ProfileServer"
}

// Orchestrator runs a parsed scenario against a Context. It is the sole
// mutator of the world model; every handler below executes on the single
// goroutine that calls Run, so scenario semantics stay sequential.
type Orchestrator struct {
	Ctx      *simctx.Context
	Registry *locserver.Registry

	supervisors map[model.ServerName]*supervisor.Supervisor
	debugMode   bool
}

// New constructs an Orchestrator over ctx, creating the LOC registry that
// backs both the locserver package and the predictor's neighbor lookups.
func New(ctx *simctx.Context) *Orchestrator {
	return &Orchestrator{
		Ctx:         ctx,
		Registry:    locserver.NewRegistry(ctx.World),
		supervisors: map[model.ServerName]*supervisor.Supervisor{},
	}
}

// Run executes cmds one at a time in scenario order, aborting on the
// first error.
func (o *Orchestrator) Run(cmds []scenario.Command) error {
	for i, cmd := range cmds {
		if sc, ok := cmd.(*scenario.SnapshotCommand); ok && sc.Load && i != 0 {
			return xerrors.Errorf("line %d: LoadSnapshot must be the first command of the scenario", cmd.Line())
		}
		if err := o.runOne(cmd); err != nil {
			return xerrors.Errorf("line %d: %v", cmd.Line(), err)
		}
	}
	if o.debugMode {
		clientdriver.LogLatencySummaries()
	}
	return nil
}

// Shutdown stops every running server and its LOC listener, in any order;
// called once after Run regardless of its outcome.
func (o *Orchestrator) Shutdown() {
	for name, sup := range o.supervisors {
		if err := sup.Shutdown(context.Background()); err != nil {
			log.Warnf("orchestrator: shutting down %s: %v", name, err)
		}
	}
}

func (o *Orchestrator) runOne(cmd scenario.Command) error {
	switch c := cmd.(type) {
	case *scenario.ServerKindCommand:
		return o.handleServerKind(c)
	case *scenario.ServerRangeCommand:
		return o.handleServerRange(c)
	case *scenario.NeighborhoodCommand:
		return o.handleNeighborhood(c)
	case *scenario.NeighborCommand:
		return o.handleNeighbor(c)
	case *scenario.IdentityCommand:
		return o.handleIdentity(c)
	case *scenario.CancelIdentityCommand:
		return o.handleCancelIdentity(c)
	case *scenario.ActivityCommand:
		return o.handleActivity(c)
	case *scenario.DeleteActivityCommand:
		return o.handleDeleteActivity(c)
	case *scenario.TestQueryCommand:
		return o.handleTestQuery(c)
	case *scenario.TestQueryActivityCommand:
		return o.handleTestQueryActivity(c)
	case *scenario.DelayCommand:
		return o.handleDelay(c)
	case *scenario.SnapshotCommand:
		return o.handleSnapshot(c)
	case *scenario.DebugModeCommand:
		return o.handleDebugMode(c)
	default:
		return xerrors.Errorf("unhandled command type %T", cmd)
	}
}

func (o *Orchestrator) handleDelay(c *scenario.DelayCommand) error {
	time.Sleep(time.Duration(c.Seconds * float64(time.Second)))
	return nil
}

func (o *Orchestrator) handleDebugMode(c *scenario.DebugModeCommand) error {
	o.debugMode = c.On
	clientdriver.EnableLatencyStats(c.On)
	return nil
}

func (o *Orchestrator) handleServerRange(c *scenario.ServerRangeCommand) error {
	servers := o.Ctx.World.ServerRange(c.Group, c.Index, c.Count)
	if len(servers) == 0 {
		return &ResolutionError{Line: c.Line(), Kind: "server range", Detail: fmt.Sprintf("%s %d %d matches nothing", c.Group, c.Index, c.Count)}
	}
	for _, s := range servers {
		sup, ok := o.supervisors[s.Name]
		if !ok {
			return &ResolutionError{Line: c.Line(), Kind: "server", Detail: fmt.Sprintf("%s has no supervisor", s.Name)}
		}
		if c.Start {
			if err := sup.Start(context.Background()); err != nil {
				return err
			}
		} else {
			if err := sup.Stop(context.Background()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (o *Orchestrator) handleSnapshot(c *scenario.SnapshotCommand) error {
	if c.Load {
		return snapshot.Load(o.Ctx, o.Registry, o.supervisors, c.Name)
	}
	return snapshot.Take(o.Ctx, o.Registry, o.supervisors, c.Name)
}

// loc returns the LOCServer for name, logging if it is unexpectedly absent
// (every server gets one at creation time).
func (o *Orchestrator) loc(name model.ServerName) (*locserver.LOCServer, bool) {
	l, ok := o.Registry.Get(name)
	if !ok {
		log.Warnf("orchestrator: %s has no LOC server", name)
	}
	return l, ok
}
