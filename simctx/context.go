// Package simctx bundles the process-wide state a single simulator
// invocation threads through every orchestrator command handler: the
// seedable RNG, the on-disk path layout, and the world model itself.
package simctx

import (
	"math/rand"

	"go.dedis.ch/locsim/model"
)

// Paths locates the simulator's on-disk layout: binary templates,
// candidate images, per-instance runtime directories, and snapshots.
type Paths struct {
	BinDir       string
	ImagesDir    string
	InstancesDir string
	SnapshotsDir string
}

// Context is the single object passed by reference into every orchestrator
// command handler.
type Context struct {
	World *model.World
	Paths Paths
	RNG   *rand.Rand
}

// New constructs a Context with a fresh World and an RNG seeded with seed;
// callers that need non-deterministic behaviour should seed from the
// current time themselves before calling New.
func New(paths Paths, seed int64) *Context {
	return &Context{
		World: model.NewWorld(),
		Paths: paths,
		RNG:   rand.New(rand.NewSource(seed)),
	}
}
