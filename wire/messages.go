package wire

// Status is the generic result code carried by every response message.
type Status int32

// Status values. StatusOk is the only non-error status; every other
// request-specific failure is reported through StatusErrorProtocolViolation
// plus connection closure.
const (
	StatusOk Status = iota
	StatusErrorProtocolViolation
)

// ErrorProtocolViolation is the single response sent for any malformed
// frame, unknown message id, or invalid request subtype.
type ErrorProtocolViolation struct {
	Status Status
	ID     uint32
}

// Contact describes how to reach a peer: its IP and the LOC port of its
// owning server.
type Contact struct {
	IP      string
	LOCPort int
}

// ServiceDescriptor is a peer's kind, primary port and network id, carried
// inside NodeInfo.
type ServiceDescriptor struct {
	Kind      string // "profile" or "proximity"
	Port      int
	NetworkID []byte // 32 bytes
}

// NodeInfo is one neighbour entry as returned by GetNeighbourNodes or
// carried inside a NeighbourhoodChangedNotification Added element.
type NodeInfo struct {
	Contact Contact
	Service ServiceDescriptor
}

// RegisterServiceRequest is sent by a child process announcing itself to
// its LOC server.
type RegisterServiceRequest struct {
	Version     uint32
	Kind        string
	ServiceData []byte // network id, exactly 32 bytes
}

// RegisterServiceResponse carries the owner's GPS location.
type RegisterServiceResponse struct {
	Status Status
	Lat    float64
	Lon    float64
}

// DeregisterServiceRequest asks the LOC server to uninitialize the owner.
type DeregisterServiceRequest struct {
	Version uint32
}

// DeregisterServiceResponse acknowledges deregistration.
type DeregisterServiceResponse struct {
	Status Status
}

// GetNeighbourNodesRequest asks for the current neighbour snapshot and
// optionally subscribes to future changes.
type GetNeighbourNodesRequest struct {
	Version   uint32
	KeepAlive bool
}

// GetNeighbourNodesResponse is the neighbour snapshot.
type GetNeighbourNodesResponse struct {
	Status    Status
	Neighbors []NodeInfo
}

// NeighbourhoodChangedNotification is sent unsolicited, server to child,
// to subscribers that asked for KeepAlive, aggregating every change since
// the last delivery.
type NeighbourhoodChangedNotification struct {
	Added   []NodeInfo
	Removed [][]byte // removed network ids
}
