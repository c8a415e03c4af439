package predictor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

func TestWildcardMatcher(t *testing.T) {
	cases := []struct {
		filter string
		value  string
		want   bool
	}{
		{"*", "anything", true},
		{"**", "anything", true},
		{"", "anything", true},
		{"Foo", "foo", true},
		{"Foo", "bar", false},
		{"Foo*", "foobar", true},
		{"Foo*", "barfoo", false},
		{"*bar", "foobar", true},
		{"*bar", "barfoo", false},
		{"*oo*", "foobar", true},
		{"*oo*", "xxx", false},
	}
	for _, c := range cases {
		f := model.ParseStringFilter(c.filter)
		require.Equal(t, c.want, f.Match(c.value), "filter=%q value=%q", c.filter, c.value)
	}
}

type fakeNeighbors map[model.ServerName][]model.ServerName

func (f fakeNeighbors) Neighbors(name model.ServerName) []model.ServerName { return f[name] }

func newTestIdentity(name model.IdentityName, serverName string, profileName string, active bool) *model.Identity {
	return &model.Identity{
		Name: name,
		Primary: model.Profile{
			Name: profileName, Type: "Test",
			Location: model.Location{Lat: 10, Lon: 20},
		},
		Propagated:         model.Profile{Name: profileName, Type: "Test", Location: model.Location{Lat: 10, Lon: 20}},
		ProfileInitialized: true,
		HostingActive:      active,
		Host:               model.ServerName(serverName),
	}
}

func TestPredictProfileSearchLocalAndNeighbor(t *testing.T) {
	world := model.NewWorld()
	a := model.NewProfileServer("A001", model.Location{}, 10000, "")
	b := model.NewProfileServer("A002", model.Location{}, 10020, "")
	world.Servers[a.Name] = a
	world.Servers[b.Name] = b

	id1 := newTestIdentity("id1", "A001", "Alice", true)
	id2 := newTestIdentity("id2", "A002", "Bob", true)
	world.Identities[id1.Name] = id1
	world.Identities[id2.Name] = id2
	a.Profile.Identities = append(a.Profile.Identities, id1.Name)
	b.Profile.Identities = append(b.Profile.Identities, id2.Name)

	neighbors := fakeNeighbors{"A001": {"A002"}}

	results, covered := PredictProfileSearch(world, neighbors, a, ProfileQuery{})
	require.Len(t, results, 2)
	require.Len(t, covered, 2)
}

func TestPredictProfileSearchHostedOnlySkipsNeighbors(t *testing.T) {
	world := model.NewWorld()
	a := model.NewProfileServer("A001", model.Location{}, 10000, "")
	b := model.NewProfileServer("A002", model.Location{}, 10020, "")
	world.Servers[a.Name] = a
	world.Servers[b.Name] = b
	id2 := newTestIdentity("id2", "A002", "Bob", true)
	world.Identities[id2.Name] = id2
	b.Profile.Identities = append(b.Profile.Identities, id2.Name)

	neighbors := fakeNeighbors{"A001": {"A002"}}
	results, covered := PredictProfileSearch(world, neighbors, a, ProfileQuery{HostedOnly: true})
	require.Empty(t, results)
	require.Len(t, covered, 1)
}

func TestCompareResultSetWithinBound(t *testing.T) {
	id := newTestIdentity("id1", "A001", "Alice", true)
	expected := []ProfileResult{{Identity: id, IsHosted: true}}
	realWire := []wire.ProfileResultWire{profileToWire(expected[0])}
	err := CompareProfileResults("A001", expected, realWire, 100)
	require.NoError(t, err)
}

func TestCompareResultSetRejectsExtra(t *testing.T) {
	id := newTestIdentity("id1", "A001", "Alice", true)
	expected := []ProfileResult{{Identity: id, IsHosted: true}}
	extra := wire.ProfileResultWire{Profile: wire.ProfileWire{Name: "Mallory"}}
	err := CompareProfileResults("A001", expected, []wire.ProfileResultWire{profileToWire(expected[0]), extra}, 100)
	require.Error(t, err)
}

func TestCompareResultSetOversizedSubset(t *testing.T) {
	var expected []ProfileResult
	for i := 0; i < 5; i++ {
		id := newTestIdentity(model.IdentityName("id"), "A001", "Alice", true)
		expected = append(expected, ProfileResult{Identity: id, IsHosted: true})
	}
	var real []wire.ProfileResultWire
	for i := 0; i < 2; i++ {
		real = append(real, profileToWire(expected[i]))
	}
	err := CompareProfileResults("A001", expected, real, 2)
	require.NoError(t, err)
}

func TestCompareCoveredServersSingleTargetAllowed(t *testing.T) {
	var target model.NetworkID
	target[0] = 7
	expected := []model.NetworkID{target, {1}, {2}}
	err := CompareCoveredServers("A001", expected, [][]byte{target[:]}, 5, 10)
	require.NoError(t, err)
}
