// Package wire implements the framed-protobuf transport shared by every
// protocol this simulator speaks: the embedded LOC server and the
// client-facing profile/proximity protocols: Encode/Decode plus a Conn
// type that reads and writes whole messages off a net.Conn, with the
// frame header carrying an explicit message-kind tag.
package wire

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"go.dedis.ch/protobuf"
)

// Tag identifies the kind of message carried in a frame.
type Tag byte

// Message kinds exchanged over the wire.
const (
	TagRegisterServiceRequest Tag = iota + 1
	TagRegisterServiceResponse
	TagDeregisterServiceRequest
	TagDeregisterServiceResponse
	TagGetNeighbourNodesRequest
	TagGetNeighbourNodesResponse
	TagNeighbourhoodChangedNotification

	TagStartConversationRequest
	TagStartConversationResponse
	TagRegisterHostingRequest
	TagRegisterHostingResponse
	TagCheckInRequest
	TagCheckInResponse
	TagUpdateProfileRequest
	TagUpdateProfileResponse
	TagCancelHostingAgreementRequest
	TagCancelHostingAgreementResponse

	TagVerifyIdentityRequest
	TagVerifyIdentityResponse
	TagCreateActivityRequest
	TagCreateActivityResponse
	TagDeleteActivityRequest
	TagDeleteActivityResponse

	TagProfileSearchRequest
	TagProfileSearchResponse
	TagProfileSearchPartRequest
	TagProfileSearchPartResponse
	TagActivitySearchRequest
	TagActivitySearchResponse
	TagActivitySearchPartRequest
	TagActivitySearchPartResponse

	// TagErrorProtocolViolation marks the single, connection-closing
	// response sent for any malformed frame or invalid request subtype.
	TagErrorProtocolViolation
)

// ErrProtocolViolationID is the sentinel id carried by every
// ErrorProtocolViolation response.
const ErrProtocolViolationID uint32 = 0x0BADC0DE

// headerSize is 1 tag byte + 4 little-endian body-length bytes.
const headerSize = 5

// MaxBodySize bounds how much we allocate for a single frame body before
// validating it.
var MaxBodySize uint32 = 10 * 1024 * 1024

var byteOrder = binary.LittleEndian

// ErrProtocolViolation is returned by Conn.Receive when the peer's frame
// could not be parsed, or is explicitly returned by a server to signal it
// is about to send the sentinel error response and close the connection.
var ErrProtocolViolation = xerrors.New("protocol violation")

// WriteFrame writes a single tag+length-prefixed frame to w.
func WriteFrame(w io.Writer, tag Tag, body []byte) error {
	header := make([]byte, headerSize)
	header[0] = byte(tag)
	byteOrder.PutUint32(header[1:], uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return xerrors.Errorf("writing frame header: %v", err)
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return xerrors.Errorf("writing frame body: %v", err)
		}
	}
	return nil
}

// ReadFrame reads a single tag+length-prefixed frame from r. A short read
// anywhere (including zero bytes on the header) is reported as io.EOF so
// callers can treat it uniformly as "peer closed the connection".
func ReadFrame(r io.Reader) (Tag, []byte, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, nil, err
	}
	tag := Tag(header[0])
	size := byteOrder.Uint32(header[1:])
	if size > MaxBodySize {
		return 0, nil, xerrors.Errorf("%w: body too big: %d > %d", ErrProtocolViolation, size, MaxBodySize)
	}
	body := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, body); err != nil {
			if err == io.ErrUnexpectedEOF {
				err = io.EOF
			}
			return 0, nil, err
		}
	}
	return tag, body, nil
}

// Conn wraps a net.Conn with the tag-framed protobuf encoding. Sends are
// serialised with a mutex, matching the "semaphore with permit count 1" the
// specification requires per peer connection.
type Conn struct {
	nc      net.Conn
	sendMu  sync.Mutex
	readMu  sync.Mutex
	Timeout time.Duration
}

// NewConn wraps an already-established net.Conn.
func NewConn(nc net.Conn) *Conn {
	return &Conn{nc: nc, Timeout: time.Minute}
}

// Raw returns the underlying net.Conn, e.g. to inspect remote address.
func (c *Conn) Raw() net.Conn { return c.nc }

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.nc.Close() }

// Send encodes msg with protobuf and writes it as a single frame tagged
// tag. Only one Send may be in flight at a time per connection.
func (c *Conn) Send(tag Tag, msg interface{}) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	var body []byte
	var err error
	if msg != nil {
		body, err = protobuf.Encode(msg)
		if err != nil {
			return xerrors.Errorf("encoding message for tag %d: %v", tag, err)
		}
	}
	if c.Timeout > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(c.Timeout))
	}
	return WriteFrame(c.nc, tag, body)
}

// Receive reads the next frame and returns its tag and raw protobuf body.
// Use Decode to unmarshal the body into a concrete message type.
func (c *Conn) Receive() (Tag, []byte, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	if c.Timeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(c.Timeout))
	}
	return ReadFrame(c.nc)
}

// Encode returns the canonical protobuf encoding of msg, used outside the
// Conn/Send path to byte-compare query results and to build the signed
// form of an activity.
func Encode(msg interface{}) ([]byte, error) {
	body, err := protobuf.Encode(msg)
	if err != nil {
		return nil, xerrors.Errorf("encoding message: %v", err)
	}
	return body, nil
}

// Decode unmarshals a frame body into msg, which must be a pointer.
func Decode(body []byte, msg interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := protobuf.Decode(body, msg); err != nil {
		return xerrors.Errorf("decoding message: %v", err)
	}
	return nil
}

// SendViolation sends the single ErrorProtocolViolation response and is
// expected to be followed immediately by Close.
func (c *Conn) SendViolation() error {
	return c.Send(TagErrorProtocolViolation, &ErrorProtocolViolation{Status: StatusErrorProtocolViolation, ID: ErrProtocolViolationID})
}
