package snapshot

// serverJSON is the on-disk form of one managed server, shared by
// ProfileServers.json and ProximityServers.json.
type serverJSON struct {
	Name           string
	Group          string
	Lat, Lon       float64
	BasePort       int
	InstanceDir    string
	PublicKey      string
	PrivateKey     string
	NetworkID      string
	HasNetworkID   bool
	Initialized    bool
	Running        bool
	AvailableSlots int
	Neighbors      []string
	// Identities lists a profile server's hosted identity names, in the
	// order they were hosted; nil for proximity servers.
	Identities []string
}

// identityJSON is the on-disk form of one identity.
type identityJSON struct {
	Name               string
	Group              string
	PublicKey          string
	PrivateKey         string
	Host               string
	Primary            profileJSON
	Propagated         profileJSON
	ProfileInitialized bool
	HostingActive      bool
}

// profileJSON is the on-disk form of a Profile, images referenced by hash
// into Images.json rather than embedded inline, so duplicate images are
// stored once.
type profileJSON struct {
	Version       string
	Name          string
	Type          string
	Lat, Lon      float64
	HasImage      bool
	ImageHash     string
	HasThumbnail  bool
	ThumbnailHash string
	ExtraData     string
}

// activityJSON is the on-disk form of one activity.
type activityJSON struct {
	Type          string
	ID            int64
	Owner         string
	Group         string
	PrimaryServer string
	HostingActive bool
	Primary       activityInfoJSON
	Propagated    activityInfoJSON
}

// activityInfoJSON is the on-disk form of an ActivityInfo.
type activityInfoJSON struct {
	Version             string
	OwnerIdentityID     string
	OwnerPublicKey      string
	OwnerProfileContact string
	Type                string
	Lat, Lon            float64
	Precision           int
	StartTime           int64
	ExpirationTime      int64
	ExtraData           string
	Signature           string
}
