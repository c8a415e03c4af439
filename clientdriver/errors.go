// Package clientdriver drives the profile- and proximity-server
// client-facing protocols over TLS on behalf of simulated identities:
// hosting registration, profile updates, activity lifecycle, and
// paginated searches.
package clientdriver

import "fmt"

// ProtocolError is returned whenever a server's reply fails a handshake or
// round-trip verification a well-behaved server must satisfy: a bad
// signature, a mutated contract echo, or an unexpected status.
type ProtocolError struct {
	Op     string
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("clientdriver: %s: %s", e.Op, e.Reason)
}
