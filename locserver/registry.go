// Package locserver implements the embedded location/discovery server each
// managed server owns: a TCP listener serving the LOC protocol, a neighbor
// set, change notifications, and initialization gating.
package locserver

import (
	"sync"

	"go.dedis.ch/locsim/model"
)

// Registry tracks the LOCServer instance owned by each managed server, and
// resolves peer names to servers for the orchestrator and the predictor.
type Registry struct {
	World *model.World

	mu      sync.RWMutex
	servers map[model.ServerName]*LOCServer
}

// NewRegistry creates a Registry over world.
func NewRegistry(world *model.World) *Registry {
	return &Registry{World: world, servers: map[model.ServerName]*LOCServer{}}
}

// Register associates a LOCServer with its owner's name.
func (r *Registry) Register(s *LOCServer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.servers[s.Owner.Name] = s
}

// Get returns the LOCServer for name, if any.
func (r *Registry) Get(name model.ServerName) (*LOCServer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.servers[name]
	return s, ok
}

// Neighbors implements predictor.NeighborLister: the current neighbor names
// of the named server, or nil if it has no LOC server registered.
func (r *Registry) Neighbors(name model.ServerName) []model.ServerName {
	s, ok := r.Get(name)
	if !ok {
		return nil
	}
	return s.NeighborNames()
}
