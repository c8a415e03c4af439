package predictor

import "go.dedis.ch/locsim/model"

// ActivityQuery is a normalised activity-search request.
type ActivityQuery struct {
	TypeFilter             model.StringFilter
	HasStartNotAfter       bool
	StartNotAfter          int64
	HasExpirationNotBefore bool
	ExpirationNotBefore    int64
	HasLocation            bool
	Location               model.Location
	Radius                 float64
}

// ActivityResult is one predicted match, tagged the way the real protocol
// tags an ActivitySearchResponse entry.
type ActivityResult struct {
	Activity      *model.Activity
	IsPrimary     bool
	PrimaryServer model.ServerName
}

// matchActivity applies the activity matcher: requires
// HostingActive, then a type wildcard filter, an optional
// distance-minus-precision radius filter, and optional start/expiration
// thresholds, drawn from either the primary or propagated copy.
func matchActivity(a *model.Activity, propagated bool, q ActivityQuery) bool {
	if !a.HostingActive {
		return false
	}
	info := a.Primary
	if propagated {
		info = a.Propagated
	}
	if !q.TypeFilter.Match(info.Type) {
		return false
	}
	if q.HasLocation {
		if model.DistanceMeters(info.Location, q.Location)-float64(info.Precision) > q.Radius {
			return false
		}
	}
	if q.HasStartNotAfter && info.StartTime > q.StartNotAfter {
		return false
	}
	if q.HasExpirationNotBefore && info.ExpirationTime < q.ExpirationNotBefore {
		return false
	}
	return true
}

// PredictActivitySearch computes the expected result set and covered-servers
// list for an activity search issued against target, the activity
// analogue of PredictProfileSearch.
func PredictActivitySearch(world *model.World, neighbors NeighborLister, target *model.Server, q ActivityQuery) ([]ActivityResult, []model.NetworkID) {
	targetID, _ := target.NetworkID()
	covered := []model.NetworkID{targetID}

	var results []ActivityResult
	for key := range target.Proximity.Primary {
		a, ok := world.Activities[key]
		if !ok {
			continue
		}
		if matchActivity(a, false, q) {
			results = append(results, ActivityResult{Activity: a, IsPrimary: true})
		}
	}

	for _, peerName := range neighbors.Neighbors(target.Name) {
		peer, ok := world.Servers[peerName]
		if !ok || peer.Kind != model.KindProximity {
			continue
		}
		peerID, _ := peer.NetworkID()
		covered = append(covered, peerID)
		for key := range peer.Proximity.Primary {
			a, ok := world.Activities[key]
			if !ok {
				continue
			}
			if matchActivity(a, true, q) {
				results = append(results, ActivityResult{
					Activity: a, IsPrimary: false, PrimaryServer: peerName,
				})
			}
		}
	}
	return results, covered
}
