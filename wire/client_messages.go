package wire

// Messages for the profile- and proximity-server client-facing protocols
// driven by the clientdriver package.

// StartConversationRequest carries a fresh client challenge.
type StartConversationRequest struct {
	Version         uint32
	ClientChallenge []byte // 32 bytes
}

// StartConversationResponse carries the server's reply: its signature over
// the client challenge, and a fresh server challenge for the client to sign
// back where the protocol requires mutual authentication.
type StartConversationResponse struct {
	Status          Status
	ServerPublicKey []byte
	Signature       []byte // sign(serverPriv, ClientChallenge)
	ServerChallenge []byte // 32 bytes
}

// HostingContract is the agreement a profile server signs when it accepts
// to host an identity.
type HostingContract struct {
	PlanID            []byte // empty/nil means "no plan"
	IdentityPublicKey []byte
	StartTime         int64
	IdentityType      string
}

// RegisterHostingRequest proposes a hosting contract.
type RegisterHostingRequest struct {
	Contract HostingContract
}

// RegisterHostingResponse echoes the (possibly server-amended) contract and
// signs it; the client verifies byte-identity and the signature.
type RegisterHostingResponse struct {
	Status    Status
	Contract  HostingContract
	Signature []byte
}

// CheckInRequest proves the client still controls the identity's key by
// signing the challenge handed out at StartConversation.
type CheckInRequest struct {
	ChallengeSignature []byte
}

// CheckInResponse acknowledges the check-in.
type CheckInResponse struct {
	Status Status
}

// ProfileWire is the wire form of a primary/propagated profile.
type ProfileWire struct {
	Version       string
	Name          string
	Type          string
	Lat, Lon      float64
	Image         []byte
	ImageHash     []byte
	Thumbnail     []byte
	ThumbnailHash []byte
	ExtraData     []byte
}

// UpdateProfileRequest pushes a new primary profile to the hosting server.
type UpdateProfileRequest struct {
	Profile ProfileWire
}

// UpdateProfileResponse acknowledges the profile update.
type UpdateProfileResponse struct {
	Status Status
}

// CancelHostingAgreementRequest cancels a previously registered identity.
type CancelHostingAgreementRequest struct {
}

// CancelHostingAgreementResponse acknowledges the cancellation.
type CancelHostingAgreementResponse struct {
	Status Status
}

// VerifyIdentityRequest starts the proximity-server handshake: the client
// sends a challenge and expects the server to sign it back.
type VerifyIdentityRequest struct {
	ClientChallenge []byte
}

// VerifyIdentityResponse carries the server's signature over the client
// challenge.
type VerifyIdentityResponse struct {
	Status    Status
	Signature []byte
}

// ActivityInfoWire is the wire/signed form of ActivityInformation.
type ActivityInfoWire struct {
	Version             string
	Type                string
	ID                  int64
	OwnerIdentityID     []byte
	OwnerPublicKey      []byte
	OwnerProfileContact string
	Lat, Lon            float64
	Precision           int32
	StartTime           int64
	ExpirationTime      int64
	ExtraData           []byte
	Signature           []byte
}

// CreateActivityRequest submits a signed activity, plus the set of servers
// that should be skipped when the proximity server would otherwise forward
// it (unused by this simulator beyond round-tripping it).
type CreateActivityRequest struct {
	Activity       ActivityInfoWire
	IgnoredServers []string
}

// CreateActivityResponse acknowledges creation.
type CreateActivityResponse struct {
	Status Status
}

// DeleteActivityRequest asks the primary proximity server to delete an
// activity by id.
type DeleteActivityRequest struct {
	Type string
	ID   int64
}

// DeleteActivityResponse acknowledges deletion.
type DeleteActivityResponse struct {
	Status Status
}

// SearchFilter bundles the optional name/type/location/image filters shared
// by profile and activity queries.
type SearchFilter struct {
	NameFilter             string
	TypeFilter             string
	HasLocation            bool
	Lat, Lon               float64
	Radius                 float64
	IncludeImages          bool
	HostedOnly             bool
	StartNotAfter          int64
	HasStartNotAfter       bool
	ExpirationNotBefore    int64
	HasExpirationNotBefore bool
}

// ProfileSearchRequest asks a server for identities matching Filter.
type ProfileSearchRequest struct {
	Filter             SearchFilter
	MaxResponseRecords int32
	MaxTotalRecords    int32
}

// ProfileResultWire is one matched identity in a search response.
type ProfileResultWire struct {
	Profile                ProfileWire
	IsHosted               bool
	IsOnline               bool
	HostingServerNetworkID []byte
}

// ProfileSearchResponse carries the inline results plus pagination and
// covered-servers metadata.
type ProfileSearchResponse struct {
	Status           Status
	Results          []ProfileResultWire
	TotalRecordCount int32
	CoveredServers   [][]byte
}

// ProfileSearchPartRequest fetches additional result ranges once
// TotalRecordCount exceeds what was returned inline.
type ProfileSearchPartRequest struct {
	Offset int32
	Count  int32
}

// ProfileSearchPartResponse carries one page of additional results.
type ProfileSearchPartResponse struct {
	Status  Status
	Results []ProfileResultWire
}

// ActivitySearchRequest asks a server for activities matching Filter.
type ActivitySearchRequest struct {
	Filter             SearchFilter
	MaxResponseRecords int32
	MaxTotalRecords    int32
}

// ActivityResultWire is one matched activity in a search response.
type ActivityResultWire struct {
	Activity      ActivityInfoWire
	IsPrimary     bool
	PrimaryServer string
}

// ActivitySearchResponse carries the inline results plus pagination and
// covered-servers metadata.
type ActivitySearchResponse struct {
	Status           Status
	Results          []ActivityResultWire
	TotalRecordCount int32
	CoveredServers   [][]byte
}

// ActivitySearchPartRequest fetches additional activity result ranges.
type ActivitySearchPartRequest struct {
	Offset int32
	Count  int32
}

// ActivitySearchPartResponse carries one page of additional results.
type ActivitySearchPartResponse struct {
	Status  Status
	Results []ActivityResultWire
}
