package clientdriver

import (
	"reflect"

	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/cryptoid"
	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

// Contact is where a server's client-facing ports can be reached; the
// simulator always dials 127.0.0.1 since every child process is local.
type Contact struct {
	Host            string
	NonCustomerPort int
	CustomerPort    int
}

// HostProfile drives the full profile-hosting flow: a
// RegisterHosting round-trip on the non-customer port, then a CheckIn +
// UpdateProfile round-trip on the customer port. On success it fills in the
// identity's session bookkeeping and primary profile.
func HostProfile(c Contact, id *model.Identity, profile model.Profile, startTime int64) error {
	lat := recordLatency("HostProfile")
	defer lat()

	conn, err := Dial(c.Host, c.NonCustomerPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	conv, err := startConversation(conn)
	if err != nil {
		return err
	}

	contract := wire.HostingContract{
		IdentityPublicKey: id.Keys.Public,
		StartTime:         startTime,
		IdentityType:      profile.Type,
	}
	if err := conn.Send(wire.TagRegisterHostingRequest, &wire.RegisterHostingRequest{Contract: contract}); err != nil {
		return xerrors.Errorf("sending RegisterHosting: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return xerrors.Errorf("receiving RegisterHosting response: %v", err)
	}
	if tag != wire.TagRegisterHostingResponse {
		return &ProtocolError{Op: "RegisterHosting", Reason: "unexpected response tag"}
	}
	var resp wire.RegisterHostingResponse
	if err := wire.Decode(body, &resp); err != nil {
		return err
	}
	if resp.Status != wire.StatusOk {
		return &ProtocolError{Op: "RegisterHosting", Reason: "server reported non-ok status"}
	}
	if !reflect.DeepEqual(resp.Contract, contract) {
		return &ProtocolError{Op: "RegisterHosting", Reason: "server mutated the hosting contract"}
	}
	contractBytes, err := wire.Encode(&resp.Contract)
	if err != nil {
		return err
	}
	if !cryptoid.Verify(conv.ServerPublicKey, contractBytes, resp.Signature) {
		return &ProtocolError{Op: "RegisterHosting", Reason: "invalid signature over hosting contract"}
	}
	conn.Close()

	custConn, err := Dial(c.Host, c.CustomerPort)
	if err != nil {
		return err
	}
	defer custConn.Close()

	custConv, err := startConversation(custConn)
	if err != nil {
		return err
	}
	if err := checkIn(custConn, id.Keys, custConv.ServerChallenge); err != nil {
		return err
	}
	if err := updateProfile(custConn, profile); err != nil {
		return err
	}

	id.ServerPublicKey = custConv.ServerPublicKey
	id.ClientChallenge = custConv.ClientChallenge
	id.ServerChallenge = custConv.ServerChallenge
	id.Primary = profile
	id.ProfileInitialized = true
	id.HostingActive = true
	return nil
}

// checkIn signs the server challenge with keys and submits a CheckInRequest,
// proving the client still controls the identity's key.
func checkIn(conn *wire.Conn, keys *cryptoid.KeyPair, serverChallenge []byte) error {
	sig := keys.Sign(serverChallenge)
	if err := conn.Send(wire.TagCheckInRequest, &wire.CheckInRequest{ChallengeSignature: sig}); err != nil {
		return xerrors.Errorf("sending CheckIn: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return xerrors.Errorf("receiving CheckIn response: %v", err)
	}
	if tag != wire.TagCheckInResponse {
		return &ProtocolError{Op: "CheckIn", Reason: "unexpected response tag"}
	}
	var resp wire.CheckInResponse
	if err := wire.Decode(body, &resp); err != nil {
		return err
	}
	if resp.Status != wire.StatusOk {
		return &ProtocolError{Op: "CheckIn", Reason: "server reported non-ok status"}
	}
	return nil
}

func profileToWire(p model.Profile) wire.ProfileWire {
	return wire.ProfileWire{
		Version:       p.Version,
		Name:          p.Name,
		Type:          p.Type,
		Lat:           p.Location.Lat,
		Lon:           p.Location.Lon,
		Image:         p.Image,
		ImageHash:     p.ImageHash[:],
		Thumbnail:     p.Thumbnail,
		ThumbnailHash: p.ThumbnailHash[:],
		ExtraData:     p.ExtraData,
	}
}

func updateProfile(conn *wire.Conn, profile model.Profile) error {
	if err := conn.Send(wire.TagUpdateProfileRequest, &wire.UpdateProfileRequest{Profile: profileToWire(profile)}); err != nil {
		return xerrors.Errorf("sending UpdateProfile: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return xerrors.Errorf("receiving UpdateProfile response: %v", err)
	}
	if tag != wire.TagUpdateProfileResponse {
		return &ProtocolError{Op: "UpdateProfile", Reason: "unexpected response tag"}
	}
	var resp wire.UpdateProfileResponse
	if err := wire.Decode(body, &resp); err != nil {
		return err
	}
	if resp.Status != wire.StatusOk {
		return &ProtocolError{Op: "UpdateProfile", Reason: "server reported non-ok status"}
	}
	return nil
}

// CancelProfile drives the profile cancellation flow: a customer-
// port check-in followed by CancelHostingAgreement.
func CancelProfile(c Contact, id *model.Identity) error {
	lat := recordLatency("CancelProfile")
	defer lat()

	conn, err := Dial(c.Host, c.CustomerPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	conv, err := startConversation(conn)
	if err != nil {
		return err
	}
	if err := checkIn(conn, id.Keys, conv.ServerChallenge); err != nil {
		return err
	}

	if err := conn.Send(wire.TagCancelHostingAgreementRequest, &wire.CancelHostingAgreementRequest{}); err != nil {
		return xerrors.Errorf("sending CancelHostingAgreement: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return xerrors.Errorf("receiving CancelHostingAgreement response: %v", err)
	}
	if tag != wire.TagCancelHostingAgreementResponse {
		return &ProtocolError{Op: "CancelHostingAgreement", Reason: "unexpected response tag"}
	}
	var resp wire.CancelHostingAgreementResponse
	if err := wire.Decode(body, &resp); err != nil {
		return err
	}
	if resp.Status != wire.StatusOk {
		return &ProtocolError{Op: "CancelHostingAgreement", Reason: "server reported non-ok status"}
	}
	id.HostingActive = false
	return nil
}
