package clientdriver

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/wire"
)

// DialTimeout bounds how long a client waits to establish a TLS connection
// to a server's client port.
const DialTimeout = 5 * time.Second

// Dial opens a TLS connection to host:port. Certificate validation is
// disabled: this is a simulator talking to servers it spawned itself, not a
// relying party.
func Dial(host string, port int) (*wire.Conn, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	dialer := &net.Dialer{Timeout: DialTimeout}
	nc, err := tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{
		InsecureSkipVerify: true,
	})
	if err != nil {
		return nil, xerrors.Errorf("dialing %s: %v", addr, err)
	}
	return wire.NewConn(nc), nil
}
