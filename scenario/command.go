package scenario

import "go.dedis.ch/locsim/model"

// Command is a single parsed, validated scenario DSL line. The orchestrator
// type-switches on the concrete type to execute it.
type Command interface {
	// Line is the 1-based source line the command was parsed from, used in
	// orchestrator failure reporting.
	Line() int
}

type base struct {
	line int
}

func (b base) Line() int { return b.line }

// ServerKindCommand is `ProfileServer`/`ProximityServer`: allocate a group
// of new servers.
type ServerKindCommand struct {
	base
	Kind     model.ServerKind
	Group    string
	Count    int
	BasePort int
	Lat, Lon float64
	Radius   float64
}

// ServerRangeCommand is `StartServer`/`StopServer`.
type ServerRangeCommand struct {
	base
	Start bool
	Group string
	Index int
	Count int
}

// GroupRange is one (group, index, count) triple, used by Neighborhood
// commands and by orchestrator range resolution generally.
type GroupRange struct {
	Group string
	Index int
	Count int
}

// NeighborhoodCommand is `Neighborhood`/`CancelNeighborhood`: every server
// named by every triple is pairwise linked (or unlinked) with every other.
type NeighborhoodCommand struct {
	base
	Cancel  bool
	Triples []GroupRange
}

// NeighborCommand is `Neighbor`/`CancelNeighbor`: a single source server
// linked (or unlinked) with one or more named targets.
type NeighborCommand struct {
	base
	Cancel  bool
	Source  string
	Targets []string
}

// IdentityCommand is `Identity`: populate createCount synthetic identities
// across a group of profile servers.
type IdentityCommand struct {
	base
	Name          string
	CreateCount   int
	Type          string
	Lat, Lon      float64
	Radius        float64
	ProfileMask   string
	ProfileChance int
	ThumbMask     string
	ThumbChance   int
	Group         string
	Index         int
	Count         int
}

// CancelIdentityCommand is `CancelIdentity`.
type CancelIdentityCommand struct {
	base
	Name  string
	Index int
	Count int
}

// ActivityCommand is `Activity`: populate createCount synthetic activities
// assigned to their nearest proximity server.
type ActivityCommand struct {
	base
	Name               string
	CreateCount        int
	Lat, Lon           float64
	PrecMin, PrecMax   int
	Radius             float64
	StartFrom, StartTo int
	LifeFrom, LifeTo   int
	Group              string
	Index              int
	Count              int
}

// DeleteActivityCommand is `DeleteActivity`.
type DeleteActivityCommand struct {
	base
	Name  string
	Index int
	Count int
}

// TestQueryCommand is `TestQuery`: a profile-search assertion.
type TestQueryCommand struct {
	base
	Group         string
	Index         int
	Count         int
	NameFilter    model.StringFilter
	TypeFilter    model.StringFilter
	IncludeImages bool
	HasLocation   bool
	Lat, Lon      float64
	Radius        float64
}

// TestQueryActivityCommand is `TestQueryActivity`: an activity-search
// assertion.
type TestQueryActivityCommand struct {
	base
	Group                  string
	Index                  int
	Count                  int
	TypeFilter             model.StringFilter
	HasStartNotAfter       bool
	StartNotAfter          int64
	HasExpirationNotBefore bool
	ExpirationNotBefore    int64
	HasLocation            bool
	Lat, Lon               float64
	Radius                 float64
}

// DelayCommand is `Delay`.
type DelayCommand struct {
	base
	Seconds float64
}

// SnapshotCommand is `TakeSnapshot`/`LoadSnapshot`.
type SnapshotCommand struct {
	base
	Load bool
	Name string
}

// DebugModeCommand is `DebugMode`.
type DebugModeCommand struct {
	base
	On bool
}
