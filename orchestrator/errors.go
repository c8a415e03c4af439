// Package orchestrator executes a parsed scenario against the simulated
// world: creating and starting servers, wiring neighborhoods, populating
// identities and activities through the client driver, and checking live
// queries against the ground-truth predictor.
package orchestrator

import "fmt"

// ResolutionError is returned whenever a command references a server,
// identity, or activity that does not exist in the world model.
type ResolutionError struct {
	Line   int
	Kind   string
	Detail string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("scenario line %d: resolving %s: %s", e.Line, e.Kind, e.Detail)
}
