package clientdriver

import (
	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

// Search limits: a profile search with images allowed caps both
// the inline page and the total lower than one without, and an activity
// search always uses the "no images" limits (activities carry no image
// field).
const (
	maxResponseRecordsWithImages    = 100
	maxResponseRecordsWithoutImages = 1000
	maxTotalRecordsWithImages       = 1000
	maxTotalRecordsWithoutImages    = 10000

	maxResponseRecordsActivity = 1000
	maxTotalRecordsActivity    = 10000
)

// ProfileSearchLimits returns the (maxResponseRecords, maxTotalRecords)
// pair a profile search issues.
func ProfileSearchLimits(includeImages bool) (maxResponse, maxTotal int) {
	if includeImages {
		return maxResponseRecordsWithImages, maxTotalRecordsWithImages
	}
	return maxResponseRecordsWithoutImages, maxTotalRecordsWithoutImages
}

// ActivitySearchLimits returns the (maxResponseRecords, maxTotalRecords)
// pair an activity search issues.
func ActivitySearchLimits() (maxResponse, maxTotal int) {
	return maxResponseRecordsActivity, maxTotalRecordsActivity
}

func toFilterWire(f model.StringFilter) string {
	switch f.Mode {
	case model.FilterNone:
		return "**"
	case model.FilterPrefix:
		return f.Core + "*"
	case model.FilterSuffix:
		return "*" + f.Core
	case model.FilterContains:
		return "*" + f.Core + "*"
	default:
		return f.Core
	}
}

// ProfileSearch issues a ProfileSearchRequest and follows up with
// ProfileSearchPartRequest calls until every record TotalRecordCount
// promised has been collected.
func ProfileSearch(c Contact, nameFilter, typeFilter model.StringFilter, hasLocation bool, loc model.Location, radius float64, includeImages, hostedOnly bool) ([]wire.ProfileResultWire, [][]byte, error) {
	lat := recordLatency("ProfileSearch")
	defer lat()

	conn, err := Dial(c.Host, c.CustomerPort)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	if _, err := startConversation(conn); err != nil {
		return nil, nil, err
	}

	maxResponse, maxTotal := ProfileSearchLimits(includeImages)
	req := &wire.ProfileSearchRequest{
		Filter: wire.SearchFilter{
			NameFilter:    toFilterWire(nameFilter),
			TypeFilter:    toFilterWire(typeFilter),
			HasLocation:   hasLocation,
			Lat:           loc.Lat,
			Lon:           loc.Lon,
			Radius:        radius,
			IncludeImages: includeImages,
			HostedOnly:    hostedOnly,
		},
		MaxResponseRecords: int32(maxResponse),
		MaxTotalRecords:    int32(maxTotal),
	}
	if err := conn.Send(wire.TagProfileSearchRequest, req); err != nil {
		return nil, nil, xerrors.Errorf("sending ProfileSearchRequest: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return nil, nil, xerrors.Errorf("receiving ProfileSearchResponse: %v", err)
	}
	if tag != wire.TagProfileSearchResponse {
		return nil, nil, &ProtocolError{Op: "ProfileSearch", Reason: "unexpected response tag"}
	}
	var resp wire.ProfileSearchResponse
	if err := wire.Decode(body, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Status != wire.StatusOk {
		return nil, nil, &ProtocolError{Op: "ProfileSearch", Reason: "server reported non-ok status"}
	}

	results := resp.Results
	for int32(len(results)) < resp.TotalRecordCount {
		part, err := fetchProfilePart(conn, int32(len(results)), resp.TotalRecordCount-int32(len(results)))
		if err != nil {
			return nil, nil, err
		}
		if len(part) == 0 {
			break
		}
		results = append(results, part...)
	}
	return results, resp.CoveredServers, nil
}

func fetchProfilePart(conn *wire.Conn, offset, count int32) ([]wire.ProfileResultWire, error) {
	if err := conn.Send(wire.TagProfileSearchPartRequest, &wire.ProfileSearchPartRequest{Offset: offset, Count: count}); err != nil {
		return nil, xerrors.Errorf("sending ProfileSearchPartRequest: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return nil, xerrors.Errorf("receiving ProfileSearchPartResponse: %v", err)
	}
	if tag != wire.TagProfileSearchPartResponse {
		return nil, &ProtocolError{Op: "ProfileSearchPart", Reason: "unexpected response tag"}
	}
	var resp wire.ProfileSearchPartResponse
	if err := wire.Decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != wire.StatusOk {
		return nil, &ProtocolError{Op: "ProfileSearchPart", Reason: "server reported non-ok status"}
	}
	return resp.Results, nil
}

// ActivitySearch issues an ActivitySearchRequest and paginates the same way
// ProfileSearch does.
func ActivitySearch(c Contact, typeFilter model.StringFilter, hasStartNotAfter bool, startNotAfter int64, hasExpirationNotBefore bool, expirationNotBefore int64, hasLocation bool, loc model.Location, radius float64) ([]wire.ActivityResultWire, [][]byte, error) {
	lat := recordLatency("ActivitySearch")
	defer lat()

	conn, err := Dial(c.Host, c.CustomerPort)
	if err != nil {
		return nil, nil, err
	}
	defer conn.Close()

	if _, err := startConversation(conn); err != nil {
		return nil, nil, err
	}

	req := &wire.ActivitySearchRequest{
		Filter: wire.SearchFilter{
			TypeFilter:             toFilterWire(typeFilter),
			HasLocation:            hasLocation,
			Lat:                    loc.Lat,
			Lon:                    loc.Lon,
			Radius:                 radius,
			HasStartNotAfter:       hasStartNotAfter,
			StartNotAfter:          startNotAfter,
			HasExpirationNotBefore: hasExpirationNotBefore,
			ExpirationNotBefore:    expirationNotBefore,
		},
		MaxResponseRecords: maxResponseRecordsActivity,
		MaxTotalRecords:    maxTotalRecordsActivity,
	}
	if err := conn.Send(wire.TagActivitySearchRequest, req); err != nil {
		return nil, nil, xerrors.Errorf("sending ActivitySearchRequest: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return nil, nil, xerrors.Errorf("receiving ActivitySearchResponse: %v", err)
	}
	if tag != wire.TagActivitySearchResponse {
		return nil, nil, &ProtocolError{Op: "ActivitySearch", Reason: "unexpected response tag"}
	}
	var resp wire.ActivitySearchResponse
	if err := wire.Decode(body, &resp); err != nil {
		return nil, nil, err
	}
	if resp.Status != wire.StatusOk {
		return nil, nil, &ProtocolError{Op: "ActivitySearch", Reason: "server reported non-ok status"}
	}

	results := resp.Results
	for int32(len(results)) < resp.TotalRecordCount {
		part, err := fetchActivityPart(conn, int32(len(results)), resp.TotalRecordCount-int32(len(results)))
		if err != nil {
			return nil, nil, err
		}
		if len(part) == 0 {
			break
		}
		results = append(results, part...)
	}
	return results, resp.CoveredServers, nil
}

func fetchActivityPart(conn *wire.Conn, offset, count int32) ([]wire.ActivityResultWire, error) {
	if err := conn.Send(wire.TagActivitySearchPartRequest, &wire.ActivitySearchPartRequest{Offset: offset, Count: count}); err != nil {
		return nil, xerrors.Errorf("sending ActivitySearchPartRequest: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return nil, xerrors.Errorf("receiving ActivitySearchPartResponse: %v", err)
	}
	if tag != wire.TagActivitySearchPartResponse {
		return nil, &ProtocolError{Op: "ActivitySearchPart", Reason: "unexpected response tag"}
	}
	var resp wire.ActivitySearchPartResponse
	if err := wire.Decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != wire.StatusOk {
		return nil, &ProtocolError{Op: "ActivitySearchPart", Reason: "server reported non-ok status"}
	}
	return resp.Results, nil
}
