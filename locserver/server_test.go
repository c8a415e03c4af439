package locserver

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

func newWorldWithTwoServers() (*model.World, *model.Server, *model.Server) {
	world := model.NewWorld()
	a := model.NewProfileServer("A001", model.Location{}, 10000, "")
	b := model.NewProfileServer("A002", model.Location{}, 10020, "")
	world.Servers[a.Name] = a
	world.Servers[b.Name] = b
	return world, a, b
}

func TestNeighborhoodMonotonicity(t *testing.T) {
	world, a, b := newWorldWithTwoServers()
	reg := NewRegistry(world)
	locA := New(a, reg)
	locB := New(b, reg)

	var idA, idB model.NetworkID
	idA[0], idB[0] = 1, 2
	a.Lock()
	a.SetNetworkID(idA)
	a.Unlock()
	b.Lock()
	b.SetNetworkID(idB)
	b.Unlock()

	locA.AddNeighborhood([]model.ServerName{b.Name})
	locB.AddNeighborhood([]model.ServerName{a.Name})

	require.Contains(t, locA.NeighborNames(), b.Name)
	require.Contains(t, locB.NeighborNames(), a.Name)
}

func TestDeferredNotificationFiresOnceOnInitialization(t *testing.T) {
	world, a, b := newWorldWithTwoServers()
	reg := NewRegistry(world)
	locA := New(a, reg)
	_ = New(b, reg)

	// b is not yet initialized: AddNeighborhood installs a deferred hook.
	locA.AddNeighborhood([]model.ServerName{b.Name})
	require.NotContains(t, locA.NeighborNames(), b.Name)

	var idB model.NetworkID
	idB[0] = 9
	b.Lock()
	b.SetNetworkID(idB)
	b.Unlock()

	require.Contains(t, locA.NeighborNames(), b.Name)

	// The hook list was consumed when it fired; re-adding the neighbor that
	// is already present must not duplicate it.
	locA.AddNeighborhood([]model.ServerName{b.Name})
	require.Len(t, locA.NeighborNames(), 1)
}

func TestCancelNeighborhoodUninstallsDeferredHook(t *testing.T) {
	world, a, b := newWorldWithTwoServers()
	reg := NewRegistry(world)
	locA := New(a, reg)
	_ = New(b, reg)

	locA.AddNeighborhood([]model.ServerName{b.Name})
	locA.CancelNeighborhood([]model.ServerName{b.Name})

	var idB model.NetworkID
	idB[0] = 9
	b.Lock()
	b.SetNetworkID(idB)
	b.Unlock()

	require.Empty(t, locA.NeighborNames())
}

func TestCancelNeighborhoodRemovesActiveNeighbor(t *testing.T) {
	world, a, b := newWorldWithTwoServers()
	reg := NewRegistry(world)
	locA := New(a, reg)
	_ = New(b, reg)

	var idB model.NetworkID
	idB[0] = 9
	b.Lock()
	b.SetNetworkID(idB)
	b.Unlock()

	locA.AddNeighborhood([]model.ServerName{b.Name})
	require.Contains(t, locA.NeighborNames(), b.Name)

	locA.CancelNeighborhood([]model.ServerName{b.Name})
	require.NotContains(t, locA.NeighborNames(), b.Name)
}

func TestSetNeighborhoodReplacesWithoutNotification(t *testing.T) {
	world, a, b := newWorldWithTwoServers()
	reg := NewRegistry(world)
	locA := New(a, reg)

	locA.SetNeighborhood(map[model.ServerName]*model.Server{b.Name: b})
	require.Contains(t, locA.NeighborNames(), b.Name)
}

// dialLOC starts the accept loop on an ephemeral port and returns a framed
// client connection to it.
func dialLOC(t *testing.T, s *LOCServer) *wire.Conn {
	t.Helper()
	require.NoError(t, s.Listen("127.0.0.1:0"))
	t.Cleanup(func() { s.Close() })
	nc, err := net.Dial("tcp", s.listener.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { nc.Close() })
	return wire.NewConn(nc)
}

func TestRegisterServiceAssignsNetworkID(t *testing.T) {
	world, a, _ := newWorldWithTwoServers()
	reg := NewRegistry(world)
	conn := dialLOC(t, New(a, reg))

	id := make([]byte, 32)
	id[0] = 5
	require.NoError(t, conn.Send(wire.TagRegisterServiceRequest, &wire.RegisterServiceRequest{
		Version:     1,
		Kind:        "profile",
		ServiceData: id,
	}))
	tag, body, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, wire.TagRegisterServiceResponse, tag)
	var resp wire.RegisterServiceResponse
	require.NoError(t, wire.Decode(body, &resp))
	require.Equal(t, wire.StatusOk, resp.Status)

	require.True(t, a.Initialized())
	nid, ok := a.NetworkID()
	require.True(t, ok)
	require.Equal(t, byte(5), nid[0])
}

func TestProtocolViolationClosesConnection(t *testing.T) {
	world, a, _ := newWorldWithTwoServers()
	reg := NewRegistry(world)
	conn := dialLOC(t, New(a, reg))

	// An unknown tag is a protocol violation.
	require.NoError(t, conn.Send(wire.Tag(0xEE), nil))

	tag, body, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, wire.TagErrorProtocolViolation, tag)
	var resp wire.ErrorProtocolViolation
	require.NoError(t, wire.Decode(body, &resp))
	require.Equal(t, wire.ErrProtocolViolationID, resp.ID)

	// The server closes the connection after the single error response.
	_, _, err = conn.Receive()
	require.Error(t, err)

	// The owner's registration state is unaffected.
	require.False(t, a.Initialized())
}

func TestKeepAliveDeliversNeighborhoodChanges(t *testing.T) {
	world, a, b := newWorldWithTwoServers()
	reg := NewRegistry(world)
	locA := New(a, reg)
	_ = New(b, reg)

	var idA, idB model.NetworkID
	idA[0], idB[0] = 1, 2
	a.Lock()
	a.SetNetworkID(idA)
	a.Unlock()
	b.Lock()
	b.SetNetworkID(idB)
	b.Unlock()

	conn := dialLOC(t, locA)
	require.NoError(t, conn.Send(wire.TagGetNeighbourNodesRequest, &wire.GetNeighbourNodesRequest{
		Version:   1,
		KeepAlive: true,
	}))
	tag, body, err := conn.Receive()
	require.NoError(t, err)
	require.Equal(t, wire.TagGetNeighbourNodesResponse, tag)
	var snapshot wire.GetNeighbourNodesResponse
	require.NoError(t, wire.Decode(body, &snapshot))
	require.Empty(t, snapshot.Neighbors)

	locA.AddNeighborhood([]model.ServerName{b.Name})

	tag, body, err = conn.Receive()
	require.NoError(t, err)
	require.Equal(t, wire.TagNeighbourhoodChangedNotification, tag)
	var notif wire.NeighbourhoodChangedNotification
	require.NoError(t, wire.Decode(body, &notif))
	require.Len(t, notif.Added, 1)
	require.Equal(t, idB[:], notif.Added[0].Service.NetworkID)
	require.Empty(t, notif.Removed)

	locA.CancelNeighborhood([]model.ServerName{b.Name})

	tag, body, err = conn.Receive()
	require.NoError(t, err)
	require.Equal(t, wire.TagNeighbourhoodChangedNotification, tag)
	notif = wire.NeighbourhoodChangedNotification{}
	require.NoError(t, wire.Decode(body, &notif))
	require.Empty(t, notif.Added)
	require.Len(t, notif.Removed, 1)
	require.Equal(t, idB[:], notif.Removed[0])
}
