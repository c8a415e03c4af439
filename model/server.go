package model

import (
	"sync"

	"go.dedis.ch/locsim/cryptoid"
)

// ServerName uniquely identifies a server within a simulation run.
type ServerName string

// ServerKind distinguishes profile servers (hosting identities) from
// proximity servers (hosting activities).
type ServerKind int

// The two kinds of managed server.
const (
	KindProfile ServerKind = iota
	KindProximity
)

func (k ServerKind) String() string {
	if k == KindProximity {
		return "proximity"
	}
	return "profile"
}

// Port layout within a server's reserved 20-port block: P=LOC,
// P+1=primary, P+2=neighbor, P+3..P+5=role-specific client ports.
const (
	PortBlockSize      = 20
	PortOffsetLOC      = 0
	PortOffsetPrimary  = 1
	PortOffsetNeighbor = 2
	// PortOffsetClientBase is the non-customer client port: profile
	// RegisterHosting, proximity VerifyIdentity/CreateActivity/DeleteActivity.
	PortOffsetClientBase = 3
	// PortOffsetClientCustomer is the customer client port: profile
	// CheckIn/UpdateProfile/CancelHostingAgreement/ProfileSearch, proximity
	// ActivitySearch.
	PortOffsetClientCustomer = 4
	// PortOffsetCanAPI is the reserved can_api_port slot.
	PortOffsetCanAPI = 5
)

// Hosting capacity limits per server.
const (
	MaxIdentities = 20000
	MaxActivities = 50000
)

// NetworkID is the 32-byte opaque server identifier assigned by the LOC
// server on registration, typically SHA-256 of a public key (Glossary).
type NetworkID [32]byte

// IsZero reports whether the id has never been assigned.
func (n NetworkID) IsZero() bool {
	return n == NetworkID{}
}

// ProcessHandle is the minimal view the model needs of a running child
// process; the supervisor package supplies the concrete implementation, so
// this package does not need to import it.
type ProcessHandle interface {
	Pid() int
	Alive() bool
}

// ProfileData is the profile-server-only payload of a Server.
type ProfileData struct {
	mu             sync.Mutex
	AvailableSlots int
	Identities     []IdentityName
}

// Lock/Unlock guard the profile-only fields (hosted-identity bookkeeping).
func (p *ProfileData) Lock()   { p.mu.Lock() }
func (p *ProfileData) Unlock() { p.mu.Unlock() }

// ProximityData is the proximity-server-only payload of a Server.
type ProximityData struct {
	mu             sync.Mutex
	AvailableSlots int
	Primary        map[ActivityKey]struct{}
}

// Lock/Unlock guard the proximity-only fields (hosted-activity bookkeeping).
func (p *ProximityData) Lock()   { p.mu.Lock() }
func (p *ProximityData) Unlock() { p.mu.Unlock() }

// Server is the shared base record of a managed server, used by both the
// orchestrator and the LOC server, with a Profile or Proximity variant
// payload for the kind-specific state.
type Server struct {
	Name        ServerName
	Location    Location
	BasePort    int
	Kind        ServerKind
	InstanceDir string
	Process     ProcessHandle
	// Keys is the server's own signing identity, generated once at
	// creation and carried through snapshots. clientdriver does not use it:
	// it verifies server signatures against the public key each
	// StartConversation response carries.
	Keys *cryptoid.KeyPair

	Profile   *ProfileData
	Proximity *ProximityData

	mu          sync.Mutex
	networkID   NetworkID
	hasNetID    bool
	initialized bool
	// onInit holds callbacks installed by peers that tried to add this
	// server to their neighborhood before it was initialized, in
	// installation order so subscribers are notified in the order they
	// deferred.
	onInit []onInitHook
}

// onInitHook pairs a deferred callback with the subscriber server name that
// installed it, so a later CancelNeighborhood can uninstall it before it
// fires.
type onInitHook struct {
	subscriber ServerName
	cb         func(*Server)
}

// NewProfileServer constructs a Server with profile-specific state. Key
// generation draws from crypto/rand and is treated as infallible: a
// failure here means the host's entropy source is broken, not a
// recoverable condition a caller can act on.
func NewProfileServer(name ServerName, loc Location, basePort int, instanceDir string) *Server {
	return &Server{
		Name:        name,
		Location:    loc,
		BasePort:    basePort,
		Kind:        KindProfile,
		InstanceDir: instanceDir,
		Keys:        cryptoid.MustGenerateKeyPair(),
		Profile:     &ProfileData{AvailableSlots: MaxIdentities},
	}
}

// NewProximityServer constructs a Server with proximity-specific state.
func NewProximityServer(name ServerName, loc Location, basePort int, instanceDir string) *Server {
	return &Server{
		Name:        name,
		Location:    loc,
		BasePort:    basePort,
		Kind:        KindProximity,
		InstanceDir: instanceDir,
		Keys:        cryptoid.MustGenerateKeyPair(),
		Proximity:   &ProximityData{AvailableSlots: MaxActivities, Primary: map[ActivityKey]struct{}{}},
	}
}

// Port returns the concrete port number for a given offset within this
// server's reserved block.
func (s *Server) Port(offset int) int {
	return s.BasePort + offset
}

// Lock/Unlock guard NetworkID/Initialized and the deferred-init callback
// list, exposed publicly so the LOC server can perform "check-if-
// initialized and insert" atomically with installing a deferred hook.
func (s *Server) Lock()   { s.mu.Lock() }
func (s *Server) Unlock() { s.mu.Unlock() }

// NetworkID returns the assigned network id and whether one has been set.
// Caller must hold the lock, or accept a racy read for logging purposes.
func (s *Server) NetworkID() (NetworkID, bool) {
	return s.networkID, s.hasNetID
}

// Initialized reports whether SetNetworkID has completed for this server
// since the last Uninitialize.
func (s *Server) Initialized() bool {
	return s.initialized
}

// SetNetworkID assigns the server's network id and marks it initialized,
// firing any deferred on-init callbacks in the order they were installed.
// A call while already initialized is a no-op; a call after Uninitialize
// keeps the first id and marks the server initialized again. Must be called
// with the lock held; it releases and reacquires the lock around the
// callbacks so a callback calling back into AddNeighborhood does not
// deadlock.
func (s *Server) SetNetworkID(id NetworkID) {
	if s.initialized {
		return
	}
	if !s.hasNetID {
		s.networkID = id
		s.hasNetID = true
	}
	s.initialized = true
	callbacks := s.onInit
	s.onInit = nil
	s.mu.Unlock()
	for _, h := range callbacks {
		h.cb(s)
	}
	s.mu.Lock()
}

// OnInitialized registers cb, attributed to subscriber, to run once, in
// installation order, the first time this server becomes initialized. If
// the server is already initialized, cb runs immediately. Caller must hold
// the lock. A subscriber with an already-pending hook is not registered
// twice.
func (s *Server) OnInitialized(subscriber ServerName, cb func(*Server)) {
	if s.initialized {
		s.mu.Unlock()
		cb(s)
		s.mu.Lock()
		return
	}
	for _, h := range s.onInit {
		if h.subscriber == subscriber {
			return
		}
	}
	s.onInit = append(s.onInit, onInitHook{subscriber: subscriber, cb: cb})
}

// CancelOnInitialized removes any pending deferred hook installed by
// subscriber, a no-op if none is pending. Caller
// must hold the lock.
func (s *Server) CancelOnInitialized(subscriber ServerName) {
	out := s.onInit[:0]
	for _, h := range s.onInit {
		if h.subscriber != subscriber {
			out = append(out, h)
		}
	}
	s.onInit = out
}

// Uninitialize clears the initialized flag, for DeregisterService. The
// network id, once assigned, is never cleared.
func (s *Server) Uninitialize() {
	s.mu.Lock()
	s.initialized = false
	s.mu.Unlock()
}
