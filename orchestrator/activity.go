package orchestrator

import (
	"fmt"
	"time"

	"go.dedis.ch/locsim/clientdriver"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/scenario"
	"go.dedis.ch/locsim/wire"
)

// plannedActivity is one not-yet-submitted activity with its owner and
// assigned primary server; the capacity pre-check counts planned
// activities per server.
type plannedActivity struct {
	owner  *model.Identity
	server *model.Server
	key    model.ActivityKey
	info   model.ActivityInfo
}

// nearestProximityServer returns the proximity server in world whose
// location is closest to loc by great-circle distance.
func nearestProximityServer(world *model.World, loc model.Location) *model.Server {
	var best *model.Server
	bestDist := 0.0
	for _, s := range world.AllServers() {
		if s.Kind != model.KindProximity {
			continue
		}
		d := model.DistanceMeters(loc, s.Location)
		if best == nil || d < bestDist {
			best, bestDist = s, d
		}
	}
	return best
}

func intRange(rngIntn func(int) int, from, to int) int {
	if from >= to {
		return from
	}
	return from + rngIntn(to-from+1)
}

// handleActivity implements `Activity`: populate CreateCount
// synthetic activities owned by identities resolved from (Group,Index,
// Count), each assigned to its nearest proximity server, with a per-batch
// residual-capacity pre-check before any are submitted.
func (o *Orchestrator) handleActivity(c *scenario.ActivityCommand) error {
	owners := o.Ctx.World.IdentityRange(c.Group, c.Index, c.Count)
	if len(owners) == 0 {
		return &ResolutionError{Line: c.Line(), Kind: "identity range", Detail: fmt.Sprintf("%s %d %d matches nothing", c.Group, c.Index, c.Count)}
	}

	center := model.Location{Lat: c.Lat, Lon: c.Lon}
	now := time.Now().Unix()

	var planned []plannedActivity
	batchCount := map[model.ServerName]int{}
	for i := 0; i < c.CreateCount; i++ {
		owner := owners[o.Ctx.RNG.Intn(len(owners))]
		loc := model.RandomPointInDisc(o.Ctx.RNG, center, c.Radius)
		server := nearestProximityServer(o.Ctx.World, loc)
		if server == nil {
			return &ResolutionError{Line: c.Line(), Kind: "proximity server", Detail: "no proximity server exists in the world"}
		}

		precision := intRange(o.Ctx.RNG.Intn, c.PrecMin, c.PrecMax)
		startOffset := intRange(o.Ctx.RNG.Intn, c.StartFrom, c.StartTo)
		lifetime := intRange(o.Ctx.RNG.Intn, c.LifeFrom, c.LifeTo)
		startTime := now + int64(startOffset)
		expiration := startTime + int64(lifetime)

		ownerServer, ok := o.Ctx.World.Servers[owner.Host]
		contact := ""
		if ok {
			contact = fmt.Sprintf("127.0.0.1:%d", ownerServer.Port(model.PortOffsetClientCustomer))
		}

		key := model.ActivityKey{Type: c.Name, ID: o.Ctx.World.NextActivityID()}
		info := model.ActivityInfo{
			Version:             "1",
			OwnerIdentityID:     owner.IDHash,
			OwnerPublicKey:      owner.Keys.Public,
			OwnerProfileContact: contact,
			Type:                c.Name,
			Location:            loc,
			Precision:           precision,
			StartTime:           startTime,
			ExpirationTime:      expiration,
		}
		signable := wire.ActivityInfoWire{
			Version: info.Version, Type: info.Type, ID: key.ID,
			OwnerIdentityID: info.OwnerIdentityID[:], OwnerPublicKey: info.OwnerPublicKey,
			OwnerProfileContact: info.OwnerProfileContact, Lat: loc.Lat, Lon: loc.Lon,
			Precision: int32(precision), StartTime: startTime, ExpirationTime: expiration,
		}
		toSign, err := wire.Encode(&signable)
		if err != nil {
			return err
		}
		info.Signature = owner.Keys.Sign(toSign)

		planned = append(planned, plannedActivity{owner: owner, server: server, key: key, info: info})
		batchCount[server.Name]++
	}

	for name, n := range batchCount {
		server := o.Ctx.World.Servers[name]
		server.Proximity.Lock()
		residual := server.Proximity.AvailableSlots
		server.Proximity.Unlock()
		if n > residual {
			return &ResolutionError{Line: c.Line(), Kind: "activity capacity", Detail: fmt.Sprintf("%s: batch of %d exceeds residual capacity %d", name, n, residual)}
		}
	}

	for _, p := range planned {
		contact := clientdriver.Contact{
			Host:            "127.0.0.1",
			NonCustomerPort: p.server.Port(model.PortOffsetClientBase),
			CustomerPort:    p.server.Port(model.PortOffsetClientCustomer),
		}
		a := &model.Activity{Key: p.key, Owner: p.owner.Name, Primary: p.info, PrimaryServer: p.server.Name}
		if err := clientdriver.CreateActivity(contact, a); err != nil {
			return err
		}

		p.server.Proximity.Lock()
		p.server.Proximity.AvailableSlots--
		p.server.Proximity.Primary[p.key] = struct{}{}
		p.server.Proximity.Unlock()

		o.Ctx.World.AddActivity(c.Name, a)
	}
	return nil
}

// handleDeleteActivity implements `DeleteActivity`: for each selected
// activity, delete it against its primary server, clear hosting-active,
// remove it from the primary server and the global activity map, and blank
// its positional slot.
func (o *Orchestrator) handleDeleteActivity(c *scenario.DeleteActivityCommand) error {
	for i := c.Index; i < c.Index+c.Count; i++ {
		a, ok := o.Ctx.World.ActivityAt(c.Name, i)
		if !ok {
			continue
		}
		server, ok := o.Ctx.World.Servers[a.PrimaryServer]
		if !ok {
			return &ResolutionError{Line: c.Line(), Kind: "server", Detail: fmt.Sprintf("activity %v hosted by unknown server %s", a.Key, a.PrimaryServer)}
		}
		contact := clientdriver.Contact{
			Host:            "127.0.0.1",
			NonCustomerPort: server.Port(model.PortOffsetClientBase),
			CustomerPort:    server.Port(model.PortOffsetClientCustomer),
		}
		if err := clientdriver.DeleteActivity(contact, a.Key); err != nil {
			return err
		}

		a.HostingActive = false
		server.Proximity.Lock()
		delete(server.Proximity.Primary, a.Key)
		server.Proximity.AvailableSlots++
		server.Proximity.Unlock()

		o.Ctx.World.ClearActivitySlot(c.Name, i, a.Key)
	}
	return nil
}
