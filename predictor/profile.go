package predictor

import "go.dedis.ch/locsim/model"

// NeighborLister is the minimal view the predictor needs of a server's LOC
// neighborhood; the locserver package's registry implements it, kept
// abstract here to avoid predictor depending on locserver.
type NeighborLister interface {
	Neighbors(name model.ServerName) []model.ServerName
}

// ProfileQuery is a normalised profile-search request, built by the
// orchestrator from a TestQuery scenario command.
type ProfileQuery struct {
	NameFilter    model.StringFilter
	TypeFilter    model.StringFilter
	HasLocation   bool
	Location      model.Location
	Radius        float64
	IncludeImages bool
	HostedOnly    bool
}

// ProfileResult is one predicted match, tagged the way the real protocol
// tags a ProfileSearchResponse entry.
type ProfileResult struct {
	Identity               *model.Identity
	IsHosted               bool
	IsOnline               bool
	HostingServerNetworkID model.NetworkID
}

// matchProfile applies the profile matcher: a profile participates
// only if ProfileInitialized && HostingActive, then name/type wildcard
// filters and an optional location-radius filter, drawn from either the
// primary (propagated=false) or propagated (propagated=true) copy.
func matchProfile(id *model.Identity, propagated bool, q ProfileQuery) bool {
	if !id.ProfileInitialized || !id.HostingActive {
		return false
	}
	p := id.Primary
	if propagated {
		p = id.Propagated
	}
	if !q.NameFilter.Match(p.Name) {
		return false
	}
	if !q.TypeFilter.Match(p.Type) {
		return false
	}
	if q.HasLocation {
		if model.DistanceMeters(p.Location, q.Location) > q.Radius {
			return false
		}
	}
	return true
}

// PredictProfileSearch computes the expected result set and covered-servers
// list for a profile search issued against target.
func PredictProfileSearch(world *model.World, neighbors NeighborLister, target *model.Server, q ProfileQuery) ([]ProfileResult, []model.NetworkID) {
	targetID, _ := target.NetworkID()
	covered := []model.NetworkID{targetID}

	var results []ProfileResult
	for _, name := range target.Profile.Identities {
		id, ok := world.Identities[name]
		if !ok {
			continue
		}
		if matchProfile(id, false, q) {
			results = append(results, ProfileResult{Identity: id, IsHosted: true, IsOnline: false})
		}
	}

	if q.HostedOnly {
		return results, covered
	}

	for _, peerName := range neighbors.Neighbors(target.Name) {
		peer, ok := world.Servers[peerName]
		if !ok || peer.Kind != model.KindProfile {
			continue
		}
		peerID, _ := peer.NetworkID()
		covered = append(covered, peerID)
		for _, name := range peer.Profile.Identities {
			id, ok := world.Identities[name]
			if !ok {
				continue
			}
			if matchProfile(id, true, q) {
				results = append(results, ProfileResult{
					Identity: id, IsHosted: false, HostingServerNetworkID: peerID,
				})
			}
		}
	}
	return results, covered
}
