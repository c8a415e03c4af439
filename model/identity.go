package model

import "go.dedis.ch/locsim/cryptoid"

// IdentityName uniquely identifies an identity within a simulation run.
type IdentityName string

// Profile is one version -- primary or propagated -- of an identity's
// profile fields.
type Profile struct {
	Version       string
	Name          string
	Type          string
	Location      Location
	Image         []byte
	ImageHash     [32]byte
	HasImage      bool
	Thumbnail     []byte
	ThumbnailHash [32]byte
	HasThumbnail  bool
	ExtraData     []byte
}

// Identity is a synthetic user hosted by a profile server.
type Identity struct {
	Name IdentityName
	Keys *cryptoid.KeyPair
	// IDHash is SHA-256(Keys.Public), cached for cheap comparisons.
	IDHash [32]byte

	Host ServerName

	// Primary is what the identity told its host; Propagated is what
	// neighbors currently believe (may lag after an UpdateProfile).
	Primary    Profile
	Propagated Profile

	ProfileInitialized bool
	HostingActive      bool

	// Session bookkeeping for the last handshake.
	ServerPublicKey []byte
	ClientChallenge []byte
	ServerChallenge []byte
}
