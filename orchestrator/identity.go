package orchestrator

import (
	"fmt"
	"time"

	"go.dedis.ch/locsim/clientdriver"
	"go.dedis.ch/locsim/cryptoid"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/scenario"
)

// handleIdentity implements `Identity`: populate CreateCount synthetic
// identities across the profile servers resolved by (Group,Index,Count),
// each assigned to a server chosen uniformly among those with residual
// capacity.
func (o *Orchestrator) handleIdentity(c *scenario.IdentityCommand) error {
	servers := o.Ctx.World.ServerRange(c.Group, c.Index, c.Count)
	if len(servers) == 0 {
		return &ResolutionError{Line: c.Line(), Kind: "server range", Detail: fmt.Sprintf("%s %d %d matches nothing", c.Group, c.Index, c.Count)}
	}

	total := 0
	for _, s := range servers {
		if s.Kind != model.KindProfile {
			return &ResolutionError{Line: c.Line(), Kind: "server", Detail: fmt.Sprintf("%s is not a profile server", s.Name)}
		}
		s.Profile.Lock()
		total += s.Profile.AvailableSlots
		s.Profile.Unlock()
	}
	if total < c.CreateCount {
		return &ResolutionError{Line: c.Line(), Kind: "identity capacity", Detail: fmt.Sprintf("requested %d exceeds residual capacity %d", c.CreateCount, total)}
	}

	center := model.Location{Lat: c.Lat, Lon: c.Lon}
	start := len(o.Ctx.World.IdentityGroups[c.Name]) + 1

	for i := 0; i < c.CreateCount; i++ {
		server := o.pickNonFullProfileServer(servers)
		if server == nil {
			return &ResolutionError{Line: c.Line(), Kind: "identity capacity", Detail: "ran out of residual capacity mid-batch"}
		}

		name := model.IdentityName(fmt.Sprintf("%s%05d", c.Name, start+i))
		loc := model.RandomPointInDisc(o.Ctx.RNG, center, c.Radius)

		profile := model.Profile{Version: "1", Name: string(name), Type: c.Type, Location: loc}
		if o.Ctx.RNG.Intn(100) < c.ProfileChance {
			data, hash, ok, err := pickImage(o.Ctx.RNG.Intn, o.Ctx.Paths.ImagesDir, c.ProfileMask)
			if err != nil {
				return err
			}
			if ok {
				profile.Image, profile.ImageHash, profile.HasImage = data, hash, true
			}
		}
		if o.Ctx.RNG.Intn(100) < c.ThumbChance {
			data, hash, ok, err := pickImage(o.Ctx.RNG.Intn, o.Ctx.Paths.ImagesDir, c.ThumbMask)
			if err != nil {
				return err
			}
			if ok {
				profile.Thumbnail, profile.ThumbnailHash, profile.HasThumbnail = data, hash, true
			}
		}

		keys, err := cryptoid.GenerateKeyPair()
		if err != nil {
			return err
		}
		id := &model.Identity{Name: name, Keys: keys, IDHash: keys.IdentityID(), Host: server.Name}

		contact := clientdriver.Contact{
			Host:            "127.0.0.1",
			NonCustomerPort: server.Port(model.PortOffsetClientBase),
			CustomerPort:    server.Port(model.PortOffsetClientCustomer),
		}
		if err := clientdriver.HostProfile(contact, id, profile, time.Now().Unix()); err != nil {
			return err
		}

		server.Profile.Lock()
		server.Profile.AvailableSlots--
		server.Profile.Identities = append(server.Profile.Identities, name)
		server.Profile.Unlock()

		o.Ctx.World.AddIdentity(c.Name, id)
	}
	return nil
}

// pickNonFullProfileServer picks uniformly among servers with residual
// identity capacity.
func (o *Orchestrator) pickNonFullProfileServer(servers []*model.Server) *model.Server {
	var candidates []*model.Server
	for _, s := range servers {
		s.Profile.Lock()
		full := s.Profile.AvailableSlots <= 0
		s.Profile.Unlock()
		if !full {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	return candidates[o.Ctx.RNG.Intn(len(candidates))]
}

// handleCancelIdentity implements `CancelIdentity`: for each selected
// identity, cancel its hosting agreement, restore the host's slot, and
// blank the positional identity-group slot.
func (o *Orchestrator) handleCancelIdentity(c *scenario.CancelIdentityCommand) error {
	for i := c.Index; i < c.Index+c.Count; i++ {
		id, ok := o.Ctx.World.IdentityAt(c.Name, i)
		if !ok {
			continue
		}
		server, ok := o.Ctx.World.Servers[id.Host]
		if !ok {
			return &ResolutionError{Line: c.Line(), Kind: "server", Detail: fmt.Sprintf("identity %s hosted by unknown server %s", id.Name, id.Host)}
		}
		contact := clientdriver.Contact{
			Host:            "127.0.0.1",
			NonCustomerPort: server.Port(model.PortOffsetClientBase),
			CustomerPort:    server.Port(model.PortOffsetClientCustomer),
		}
		if err := clientdriver.CancelProfile(contact, id); err != nil {
			return err
		}

		server.Profile.Lock()
		server.Profile.AvailableSlots++
		out := server.Profile.Identities[:0]
		for _, n := range server.Profile.Identities {
			if n != id.Name {
				out = append(out, n)
			}
		}
		server.Profile.Identities = out
		server.Profile.Unlock()

		o.Ctx.World.ClearIdentitySlot(c.Name, i, id.Name)
	}
	return nil
}
