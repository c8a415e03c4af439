package locserver

import (
	"net"
	"sync"

	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

// pendingChange accumulates neighbor additions/removals between
// notification flushes, aggregated the way AddNeighborhood/
// CancelNeighborhood deliver "an aggregated notification of accumulated
// changes".
type pendingChange struct {
	added   []wire.NodeInfo
	removed [][]byte
}

func (p *pendingChange) empty() bool { return len(p.added) == 0 && len(p.removed) == 0 }

// LOCServer is the per-managed-server LOC endpoint: one accept loop and one
// neighbor map. Every accepted connection is served concurrently; conn is
// the single peer subscribed to change notifications (the latest one to
// send a keep-alive GetNeighbourNodes), and a later subscriber replaces it.
type LOCServer struct {
	Owner    *model.Server
	registry *Registry

	mu        sync.Mutex
	neighbors map[model.ServerName]*model.Server

	connMu       sync.Mutex
	conn         *wire.Conn
	wantsUpdates bool
	pending      pendingChange

	// regMu/pendingID hold a proximity server's not-yet-armed
	// RegisterService network id; unused
	// for profile servers, which assign immediately.
	regMu      sync.Mutex
	pendingID  *model.NetworkID
	markerSeen bool

	listener net.Listener
	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New constructs a LOCServer for owner and registers it in registry.
func New(owner *model.Server, registry *Registry) *LOCServer {
	s := &LOCServer{
		Owner:     owner,
		registry:  registry,
		neighbors: map[model.ServerName]*model.Server{},
		shutdown:  make(chan struct{}),
	}
	registry.Register(s)
	return s
}

// Listen opens the TCP listener on the owner's LOC port and starts the
// accept loop.
func (s *LOCServer) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return xerrors.Errorf("listening for %s LOC server: %v", s.Owner.Name, err)
	}
	s.listener = l
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Close shuts down the accept loop, drops the connected peer if any, and
// closes the listener. It returns once the accept loop has unwound.
func (s *LOCServer) Close() error {
	close(s.shutdown)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
		s.wantsUpdates = false
	}
	s.connMu.Unlock()
	s.wg.Wait()
	return err
}

func (s *LOCServer) acceptLoop() {
	defer s.wg.Done()
	for {
		nc, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				log.Warnf("%s LOC accept: %v", s.Owner.Name, err)
				return
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(nc)
		}()
	}
}

// NeighborNames returns a snapshot of current neighbor names.
func (s *LOCServer) NeighborNames() []model.ServerName {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.ServerName, 0, len(s.neighbors))
	for name := range s.neighbors {
		out = append(out, name)
	}
	return out
}

func nodeInfoFor(srv *model.Server) wire.NodeInfo {
	id, _ := srv.NetworkID()
	return wire.NodeInfo{
		Contact: wire.Contact{IP: "127.0.0.1", LOCPort: srv.Port(model.PortOffsetLOC)},
		Service: wire.ServiceDescriptor{
			Kind:      srv.Kind.String(),
			Port:      srv.Port(model.PortOffsetPrimary),
			NetworkID: id[:],
		},
	}
}

// AddNeighborhood links s to every named peer not already a neighbor.
// Peers not yet initialized get a deferred hook instead, fired once they
// initialize.
func (s *LOCServer) AddNeighborhood(names []model.ServerName) {
	var added []wire.NodeInfo
	for _, name := range names {
		if name == s.Owner.Name {
			continue
		}
		peer, ok := s.registry.World.Servers[name]
		if !ok {
			continue
		}
		s.mu.Lock()
		_, exists := s.neighbors[name]
		s.mu.Unlock()
		if exists {
			continue
		}
		peer.Lock()
		if peer.Initialized() {
			peer.Unlock()
			s.mu.Lock()
			s.neighbors[name] = peer
			s.mu.Unlock()
			added = append(added, nodeInfoFor(peer))
		} else {
			peer.OnInitialized(s.Owner.Name, func(initialized *model.Server) {
				s.AddNeighborhood([]model.ServerName{initialized.Name})
			})
			peer.Unlock()
		}
	}
	if len(added) > 0 {
		s.queueChange(added, nil)
	}
}

// CancelNeighborhood is the mirror of AddNeighborhood. Peers that are
// current neighbors are removed and
// produce Removed changes; peers with a not-yet-fired deferred hook have it
// uninstalled instead.
func (s *LOCServer) CancelNeighborhood(names []model.ServerName) {
	var removed [][]byte
	for _, name := range names {
		if name == s.Owner.Name {
			continue
		}
		peer, ok := s.registry.World.Servers[name]
		if !ok {
			continue
		}
		s.mu.Lock()
		_, exists := s.neighbors[name]
		if exists {
			delete(s.neighbors, name)
		}
		s.mu.Unlock()
		if exists {
			id, _ := peer.NetworkID()
			removed = append(removed, id[:])
			continue
		}
		peer.Lock()
		peer.CancelOnInitialized(s.Owner.Name)
		peer.Unlock()
	}
	if len(removed) > 0 {
		s.queueChange(nil, removed)
	}
}

// SetNeighborhood replaces the neighbor map wholesale, used only during
// snapshot restore; it emits no notifications.
func (s *LOCServer) SetNeighborhood(peers map[model.ServerName]*model.Server) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.neighbors = peers
}

// queueChange accumulates a change and flushes it immediately if a peer is
// connected and has requested updates.
func (s *LOCServer) queueChange(added []wire.NodeInfo, removed [][]byte) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.pending.added = append(s.pending.added, added...)
	s.pending.removed = append(s.pending.removed, removed...)
	if s.conn != nil && s.wantsUpdates {
		s.flushPendingLocked()
	}
}

// flushPendingLocked sends the accumulated change as a single
// NeighbourhoodChangedNotification. Caller must hold connMu.
func (s *LOCServer) flushPendingLocked() {
	if s.pending.empty() {
		return
	}
	notif := &wire.NeighbourhoodChangedNotification{Added: s.pending.added, Removed: s.pending.removed}
	s.pending = pendingChange{}
	if err := s.conn.Send(wire.TagNeighbourhoodChangedNotification, notif); err != nil {
		log.Warnf("%s: sending neighborhood notification: %v", s.Owner.Name, err)
	}
}
