package orchestrator

import (
	"fmt"
	"path/filepath"

	"go.dedis.ch/locsim/locserver"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/scenario"
	"go.dedis.ch/locsim/supervisor"
)

func instancePrefix(kind model.ServerKind) string {
	if kind == model.KindProximity {
		return "Px-"
	}
	return "Ps-"
}

// handleServerKind implements `ProfileServer`/`ProximityServer`:
// allocate Count new server records named group+zero-padded-index(3),
// continuing from however many the group already holds, each with a
// sequential 20-port block starting at BasePort and a location drawn by
// model.RandomPointInDisc (uniform bearing, uniform distance) within the
// command's disc.
func (o *Orchestrator) handleServerKind(c *scenario.ServerKindCommand) error {
	start := len(o.Ctx.World.ServerGroups[c.Group]) + 1
	center := model.Location{Lat: c.Lat, Lon: c.Lon}
	supPaths := supervisor.Paths{
		BinDir:       o.Ctx.Paths.BinDir,
		ImagesDir:    o.Ctx.Paths.ImagesDir,
		InstancesDir: o.Ctx.Paths.InstancesDir,
	}

	for i := 0; i < c.Count; i++ {
		index := start + i
		name := model.ServerName(fmt.Sprintf("%s%03d", c.Group, index))
		loc := model.RandomPointInDisc(o.Ctx.RNG, center, c.Radius)
		basePort := c.BasePort + i*model.PortBlockSize
		instanceDir := filepath.Join(o.Ctx.Paths.InstancesDir, instancePrefix(c.Kind)+string(name))

		var s *model.Server
		if c.Kind == model.KindProximity {
			s = model.NewProximityServer(name, loc, basePort, instanceDir)
		} else {
			s = model.NewProfileServer(name, loc, basePort, instanceDir)
		}
		o.Ctx.World.AddServer(c.Group, s)

		locSrv := locserver.New(s, o.Registry)
		if err := locSrv.Listen(fmt.Sprintf("127.0.0.1:%d", s.Port(model.PortOffsetLOC))); err != nil {
			return err
		}

		o.supervisors[name] = supervisor.New(s, locSrv, supPaths, binaryName(c.Kind))
	}
	return nil
}

// resolveServerNames maps DSL server name tokens ("A001") to Servers,
// used by the directed Neighbor/CancelNeighbor commands.
func (o *Orchestrator) resolveServerNames(line int, names []string) ([]*model.Server, error) {
	out := make([]*model.Server, 0, len(names))
	for _, n := range names {
		s, ok := o.Ctx.World.Servers[model.ServerName(n)]
		if !ok {
			return nil, &ResolutionError{Line: line, Kind: "server", Detail: fmt.Sprintf("no such server %q", n)}
		}
		out = append(out, s)
	}
	return out, nil
}

// handleNeighborhood implements `Neighborhood`/`CancelNeighborhood`:
// resolve every triple to its servers, then pairwise wire (or unwire) every
// server against every other server in the union, a full mesh.
func (o *Orchestrator) handleNeighborhood(c *scenario.NeighborhoodCommand) error {
	var members []*model.Server
	for _, tr := range c.Triples {
		servers := o.Ctx.World.ServerRange(tr.Group, tr.Index, tr.Count)
		if len(servers) == 0 {
			return &ResolutionError{Line: c.Line(), Kind: "server range", Detail: fmt.Sprintf("%s %d %d matches nothing", tr.Group, tr.Index, tr.Count)}
		}
		members = append(members, servers...)
	}
	names := make([]model.ServerName, len(members))
	for i, s := range members {
		names[i] = s.Name
	}
	for _, s := range members {
		locSrv, ok := o.loc(s.Name)
		if !ok {
			return &ResolutionError{Line: c.Line(), Kind: "server", Detail: fmt.Sprintf("%s has no LOC server", s.Name)}
		}
		if c.Cancel {
			locSrv.CancelNeighborhood(names)
		} else {
			locSrv.AddNeighborhood(names)
		}
	}
	return nil
}

// handleNeighbor implements `Neighbor`/`CancelNeighbor`: a single
// directed link from Source to every Target, addressed by literal server
// name rather than (group,index,count).
func (o *Orchestrator) handleNeighbor(c *scenario.NeighborCommand) error {
	all, err := o.resolveServerNames(c.Line(), append([]string{c.Source}, c.Targets...))
	if err != nil {
		return err
	}
	source := all[0]
	targets := all[1:]
	names := make([]model.ServerName, len(targets))
	for i, s := range targets {
		names[i] = s.Name
	}
	locSrv, ok := o.loc(source.Name)
	if !ok {
		return &ResolutionError{Line: c.Line(), Kind: "server", Detail: fmt.Sprintf("%s has no LOC server", source.Name)}
	}
	if c.Cancel {
		locSrv.CancelNeighborhood(names)
	} else {
		locSrv.AddNeighborhood(names)
	}
	return nil
}
