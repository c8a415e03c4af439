package locserver

import (
	"io"
	"net"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/log"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

func (s *LOCServer) handleConn(nc net.Conn) {
	conn := wire.NewConn(nc)
	correlationID := uuid.New().String()
	log.Lvl4("loc ", s.Owner.Name, " accepted connection ", correlationID)

	defer func() {
		conn.Close()
		s.connMu.Lock()
		if s.conn == conn {
			s.conn = nil
			s.wantsUpdates = false
		}
		s.connMu.Unlock()
	}()

	for {
		tag, body, err := conn.Receive()
		if err != nil {
			if xerrors.Is(err, wire.ErrProtocolViolation) {
				conn.SendViolation()
				return
			}
			if err != io.EOF {
				log.Warnf("loc %s: %s: %v", s.Owner.Name, correlationID, err)
			}
			return
		}
		if err := s.dispatch(conn, tag, body, correlationID); err != nil {
			log.Lvl4("loc ", s.Owner.Name, " ", correlationID, " protocol violation: ", err)
			conn.SendViolation()
			return
		}
	}
}

func (s *LOCServer) dispatch(conn *wire.Conn, tag wire.Tag, body []byte, correlationID string) error {
	switch tag {
	case wire.TagRegisterServiceRequest:
		return s.handleRegisterService(conn, body)
	case wire.TagDeregisterServiceRequest:
		return s.handleDeregisterService(conn, body)
	case wire.TagGetNeighbourNodesRequest:
		return s.handleGetNeighbourNodes(conn, body)
	default:
		return xerrors.Errorf("unexpected tag %d", tag)
	}
}

func (s *LOCServer) handleRegisterService(conn *wire.Conn, body []byte) error {
	var req wire.RegisterServiceRequest
	if err := wire.Decode(body, &req); err != nil {
		return err
	}
	if req.Kind != s.Owner.Kind.String() {
		return xerrors.Errorf("kind mismatch: got %q want %q", req.Kind, s.Owner.Kind.String())
	}
	if len(req.ServiceData) != 32 {
		return xerrors.Errorf("serviceData must be 32 bytes, got %d", len(req.ServiceData))
	}
	var id model.NetworkID
	copy(id[:], req.ServiceData)

	if s.Owner.Kind == model.KindProximity {
		s.regMu.Lock()
		if s.markerSeen {
			s.markerSeen = false
			s.regMu.Unlock()
			s.Owner.Lock()
			s.Owner.SetNetworkID(id)
			s.Owner.Unlock()
		} else {
			s.pendingID = &id
			s.regMu.Unlock()
		}
	} else {
		s.Owner.Lock()
		s.Owner.SetNetworkID(id)
		s.Owner.Unlock()
	}

	return conn.Send(wire.TagRegisterServiceResponse, &wire.RegisterServiceResponse{
		Status: wire.StatusOk,
		Lat:    s.Owner.Location.Lat,
		Lon:    s.Owner.Location.Lon,
	})
}

// MarkReady completes a deferred proximity-server registration once the
// supervisor observes the child's "location initialization completed"
// readiness marker.
// RegisterService and the readiness marker can arrive in either order: if
// the network id is already pending, it is assigned now; otherwise the
// marker is remembered so the next RegisterService assigns immediately.
func (s *LOCServer) MarkReady() {
	s.regMu.Lock()
	id := s.pendingID
	s.pendingID = nil
	if id == nil {
		s.markerSeen = true
		s.regMu.Unlock()
		return
	}
	s.regMu.Unlock()
	s.Owner.Lock()
	s.Owner.SetNetworkID(*id)
	s.Owner.Unlock()
}

func (s *LOCServer) handleDeregisterService(conn *wire.Conn, body []byte) error {
	var req wire.DeregisterServiceRequest
	if err := wire.Decode(body, &req); err != nil {
		return err
	}
	s.Owner.Uninitialize()
	return conn.Send(wire.TagDeregisterServiceResponse, &wire.DeregisterServiceResponse{Status: wire.StatusOk})
}

func (s *LOCServer) handleGetNeighbourNodes(conn *wire.Conn, body []byte) error {
	var req wire.GetNeighbourNodesRequest
	if err := wire.Decode(body, &req); err != nil {
		return err
	}

	s.mu.Lock()
	infos := make([]wire.NodeInfo, 0, len(s.neighbors))
	for _, peer := range s.neighbors {
		infos = append(infos, nodeInfoFor(peer))
	}
	s.mu.Unlock()

	if req.KeepAlive {
		s.connMu.Lock()
		s.conn = conn
		s.wantsUpdates = true
		s.flushPendingLocked()
		s.connMu.Unlock()
	}

	return conn.Send(wire.TagGetNeighbourNodesResponse, &wire.GetNeighbourNodesResponse{
		Status:    wire.StatusOk,
		Neighbors: infos,
	})
}
