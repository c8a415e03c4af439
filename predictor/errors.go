// Package predictor computes the expected result of a profile- or
// activity-search query by mirroring the real servers' federation-aware
// query semantics against the simulator's world model.
package predictor

import "fmt"

// MismatchError is the sentinel for a TestQuery*/TestQueryActivity*
// comparison failure: the live query result disagreed with the prediction.
type MismatchError struct {
	Server  string
	Reason  string
	Details string
}

func (e *MismatchError) Error() string {
	if e.Details == "" {
		return fmt.Sprintf("query mismatch on %s: %s", e.Server, e.Reason)
	}
	return fmt.Sprintf("query mismatch on %s: %s (%s)", e.Server, e.Reason, e.Details)
}
