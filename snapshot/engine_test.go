package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.dedis.ch/locsim/locserver"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/simctx"
	"go.dedis.ch/locsim/supervisor"
)

// buildSource populates a small world: two profile servers, neighbors of
// each other, one hosted identity, and assigned network ids -- enough state
// to exercise every JSON file the snapshot engine writes.
func buildSource(t *testing.T, basePort int) (*simctx.Context, *locserver.Registry) {
	t.Helper()
	ctx := simctx.New(simctx.Paths{SnapshotsDir: t.TempDir(), InstancesDir: t.TempDir()}, 42)
	reg := locserver.NewRegistry(ctx.World)

	a := model.NewProfileServer("A001", model.Location{Lat: 10, Lon: 20}, basePort, "")
	b := model.NewProfileServer("A002", model.Location{Lat: 11, Lon: 21}, basePort+model.PortBlockSize, "")
	ctx.World.AddServer("A", a)
	ctx.World.AddServer("A", b)

	locserver.New(a, reg)
	locserver.New(b, reg)

	var idA, idB model.NetworkID
	idA[0], idB[0] = 1, 2
	a.Lock()
	a.SetNetworkID(idA)
	a.Unlock()
	b.Lock()
	b.SetNetworkID(idB)
	b.Unlock()

	locA, _ := reg.Get(a.Name)
	locB, _ := reg.Get(b.Name)
	locA.AddNeighborhood([]model.ServerName{b.Name})
	locB.AddNeighborhood([]model.ServerName{a.Name})

	id := &model.Identity{
		Name:   "Ia00001",
		Keys:   a.Keys,
		IDHash: a.Keys.IdentityID(),
		Host:   a.Name,
		Primary: model.Profile{
			Version: "1", Name: "Ia00001", Type: "Test",
			Location: model.Location{Lat: 10, Lon: 20},
		},
		ProfileInitialized: true,
		HostingActive:      true,
	}
	ctx.World.AddIdentity("Ia", id)
	a.Profile.Lock()
	a.Profile.AvailableSlots--
	a.Profile.Identities = append(a.Profile.Identities, id.Name)
	a.Profile.Unlock()

	act := &model.Activity{
		Key:   model.ActivityKey{Type: "Act", ID: 7},
		Owner: id.Name,
		Primary: model.ActivityInfo{
			Version:        "1",
			Type:           "Act",
			Location:       model.Location{Lat: 10, Lon: 20},
			StartTime:      100,
			ExpirationTime: 200,
		},
		PrimaryServer: a.Name,
		HostingActive: true,
	}
	ctx.World.AddActivity("Act", act)

	return ctx, reg
}

func TestSnapshotRoundTrip(t *testing.T) {
	ctx, reg := buildSource(t, 11000)
	supervisors := map[model.ServerName]*supervisor.Supervisor{}

	require.NoError(t, Take(ctx, reg, supervisors, "snap1"))

	dstCtx := simctx.New(simctx.Paths{
		SnapshotsDir: ctx.Paths.SnapshotsDir,
		InstancesDir: t.TempDir(),
	}, 7)
	dstReg := locserver.NewRegistry(dstCtx.World)
	dstSupervisors := map[model.ServerName]*supervisor.Supervisor{}

	require.NoError(t, Load(dstCtx, dstReg, dstSupervisors, "snap1"))
	defer func() {
		for _, s := range dstCtx.World.AllServers() {
			if l, ok := dstReg.Get(s.Name); ok {
				l.Close()
			}
		}
	}()

	require.Len(t, dstCtx.World.Servers, 2)
	a, ok := dstCtx.World.Servers["A001"]
	require.True(t, ok)
	b, ok := dstCtx.World.Servers["A002"]
	require.True(t, ok)

	require.Equal(t, 10.0, a.Location.Lat)
	require.Equal(t, 20.0, a.Location.Lon)
	require.Equal(t, 11000, a.BasePort)
	require.True(t, a.Initialized())
	nidA, ok := a.NetworkID()
	require.True(t, ok)
	require.Equal(t, byte(1), nidA[0])

	require.Contains(t, dstReg.Neighbors(a.Name), b.Name)
	require.Contains(t, dstReg.Neighbors(b.Name), a.Name)

	id, ok := dstCtx.World.Identities["Ia00001"]
	require.True(t, ok)
	require.Equal(t, model.ServerName("A001"), id.Host)
	require.True(t, id.HostingActive)
	require.Equal(t, "Test", id.Primary.Type)

	a.Profile.Lock()
	require.Contains(t, a.Profile.Identities, model.IdentityName("Ia00001"))
	a.Profile.Unlock()

	act, ok := dstCtx.World.Activities[model.ActivityKey{Type: "Act", ID: 7}]
	require.True(t, ok)
	require.Equal(t, model.IdentityName("Ia00001"), act.Owner)
	require.True(t, act.HostingActive)
	require.Equal(t, int64(200), act.Primary.ExpirationTime)

	// Ids minted after the restore must not collide with restored keys.
	require.Equal(t, int64(8), dstCtx.World.NextActivityID())
}
