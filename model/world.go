package model

import "sync"

// World is the simulator's global state: every server, identity and
// activity created so far, plus the positional "group" orderings the
// scenario DSL addresses with (group, index, count) triples.
// These tables are mutated only by the
// orchestrator's single goroutine; LOC servers only ever touch the
// per-server fields behind Server.Lock/Unlock.
type World struct {
	mu sync.RWMutex

	Servers map[ServerName]*Server
	// ServerGroups maps a scenario group name (e.g. "A" in "ProfileServer
	// A 2 ...") to the ordered, 0-indexed slice of server names created
	// for it; index N in a scenario command is ServerGroups[group][N-1].
	ServerGroups map[string][]ServerName

	Identities     map[IdentityName]*Identity
	IdentityGroups map[string][]IdentityName

	Activities     map[ActivityKey]*Activity
	ActivityGroups map[string][]ActivityKey

	nextActivityID int64
}

// NewWorld returns an empty World ready for orchestration.
func NewWorld() *World {
	return &World{
		Servers:        map[ServerName]*Server{},
		ServerGroups:   map[string][]ServerName{},
		Identities:     map[IdentityName]*Identity{},
		IdentityGroups: map[string][]IdentityName{},
		Activities:     map[ActivityKey]*Activity{},
		ActivityGroups: map[string][]ActivityKey{},
		nextActivityID: 1,
	}
}

// NextActivityID returns the next simulation-wide unique activity id.
func (w *World) NextActivityID() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextActivityID
	w.nextActivityID++
	return id
}

// AddServer registers a new server under its group.
func (w *World) AddServer(group string, s *Server) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Servers[s.Name] = s
	w.ServerGroups[group] = append(w.ServerGroups[group], s.Name)
}

// ServerAt resolves (group, index) to a Server, 1-based index per the DSL.
func (w *World) ServerAt(group string, index int) (*Server, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := w.ServerGroups[group]
	if index < 1 || index > len(names) {
		return nil, false
	}
	s, ok := w.Servers[names[index-1]]
	return s, ok
}

// ServerRange resolves (group, index, count) to the matching Servers,
// skipping any that don't exist (defensive; the parser already bounds
// index/count).
func (w *World) ServerRange(group string, index, count int) []*Server {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := w.ServerGroups[group]
	var out []*Server
	for i := index; i < index+count; i++ {
		if i < 1 || i > len(names) {
			continue
		}
		if s, ok := w.Servers[names[i-1]]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AddIdentity registers a new identity under its group.
func (w *World) AddIdentity(group string, id *Identity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Identities[id.Name] = id
	w.IdentityGroups[group] = append(w.IdentityGroups[group], id.Name)
}

// IdentityRange resolves (group, index, count) to the matching Identities.
// A positional slot left empty by CancelIdentity book-keeping (name == "")
// is skipped so index arithmetic over the group stays stable.
func (w *World) IdentityRange(group string, index, count int) []*Identity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := w.IdentityGroups[group]
	var out []*Identity
	for i := index; i < index+count; i++ {
		if i < 1 || i > len(names) {
			continue
		}
		name := names[i-1]
		if name == "" {
			continue
		}
		if id, ok := w.Identities[name]; ok {
			out = append(out, id)
		}
	}
	return out
}

// IdentityAt resolves (group, index) to a single Identity, 1-based index
// per the DSL, used by CancelIdentity to address one exact slot rather than
// a range.
func (w *World) IdentityAt(group string, index int) (*Identity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := w.IdentityGroups[group]
	if index < 1 || index > len(names) {
		return nil, false
	}
	name := names[index-1]
	if name == "" {
		return nil, false
	}
	id, ok := w.Identities[name]
	return id, ok
}

// ClearIdentitySlot removes an identity from the world and blanks its
// positional slot, for CancelIdentity.
func (w *World) ClearIdentitySlot(group string, index int, name IdentityName) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.Identities, name)
	names := w.IdentityGroups[group]
	if index >= 1 && index <= len(names) {
		names[index-1] = ""
	}
}

// AddActivity registers a new activity under its group and advances the id
// counter past the activity's key, so ids minted by NextActivityID stay
// unique after a snapshot restore registers pre-existing keys.
func (w *World) AddActivity(group string, a *Activity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Activities[a.Key] = a
	w.ActivityGroups[group] = append(w.ActivityGroups[group], a.Key)
	if a.Key.ID >= w.nextActivityID {
		w.nextActivityID = a.Key.ID + 1
	}
}

// ActivityRange resolves (group, index, count) to the matching Activities,
// skipping deleted (zero-value) slots.
func (w *World) ActivityRange(group string, index, count int) []*Activity {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := w.ActivityGroups[group]
	var out []*Activity
	for i := index; i < index+count; i++ {
		if i < 1 || i > len(keys) {
			continue
		}
		key := keys[i-1]
		if key == (ActivityKey{}) {
			continue
		}
		if a, ok := w.Activities[key]; ok {
			out = append(out, a)
		}
	}
	return out
}

// ActivityAt resolves (group, index) to a single Activity, 1-based index
// per the DSL, used by DeleteActivity to address one exact slot rather than
// a range.
func (w *World) ActivityAt(group string, index int) (*Activity, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := w.ActivityGroups[group]
	if index < 1 || index > len(keys) {
		return nil, false
	}
	key := keys[index-1]
	if key == (ActivityKey{}) {
		return nil, false
	}
	a, ok := w.Activities[key]
	return a, ok
}

// ClearActivitySlot removes an activity and blanks its positional slot
// for DeleteActivity.
func (w *World) ClearActivitySlot(group string, index int, key ActivityKey) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.Activities, key)
	keys := w.ActivityGroups[group]
	if index >= 1 && index <= len(keys) {
		keys[index-1] = ActivityKey{}
	}
}

// AllServers returns every server, for operations (like neighborhood
// notifications, snapshotting) that must visit the whole world.
func (w *World) AllServers() []*Server {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*Server, 0, len(w.Servers))
	for _, s := range w.Servers {
		out = append(out, s)
	}
	return out
}

// GroupOfServer returns the scenario group name a server was created under,
// used by the snapshot engine to round-trip ServerGroups.
func (w *World) GroupOfServer(name ServerName) string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for group, names := range w.ServerGroups {
		for _, n := range names {
			if n == name {
				return group
			}
		}
	}
	return ""
}

// ForEachIdentity visits every live identity together with the scenario
// group it was created under, for the snapshot engine. Slots
// blanked by CancelIdentity are skipped.
func (w *World) ForEachIdentity(fn func(group string, id *Identity)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for group, names := range w.IdentityGroups {
		for _, n := range names {
			if n == "" {
				continue
			}
			if id, ok := w.Identities[n]; ok {
				fn(group, id)
			}
		}
	}
}

// ForEachActivity visits every live activity together with the scenario
// group it was created under, for the snapshot engine. Slots
// blanked by DeleteActivity are skipped.
func (w *World) ForEachActivity(fn func(group string, a *Activity)) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	for group, keys := range w.ActivityGroups {
		for _, k := range keys {
			if k == (ActivityKey{}) {
				continue
			}
			if a, ok := w.Activities[k]; ok {
				fn(group, a)
			}
		}
	}
}
