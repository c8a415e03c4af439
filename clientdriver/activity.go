package clientdriver

import (
	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/model"
	"go.dedis.ch/locsim/wire"
)

func activityInfoToWire(key model.ActivityKey, info model.ActivityInfo) wire.ActivityInfoWire {
	return wire.ActivityInfoWire{
		Version:             info.Version,
		Type:                info.Type,
		ID:                  key.ID,
		OwnerIdentityID:     info.OwnerIdentityID[:],
		OwnerPublicKey:      info.OwnerPublicKey,
		OwnerProfileContact: info.OwnerProfileContact,
		Lat:                 info.Location.Lat,
		Lon:                 info.Location.Lon,
		Precision:           int32(info.Precision),
		StartTime:           info.StartTime,
		ExpirationTime:      info.ExpirationTime,
		ExtraData:           info.ExtraData,
		Signature:           info.Signature,
	}
}

// CreateActivity drives the activity-creation flow: VerifyIdentity then
// CreateActivity, on the identity-owning connection to its primary
// proximity server's client port.
func CreateActivity(c Contact, a *model.Activity) error {
	lat := recordLatency("CreateActivity")
	defer lat()

	conn, err := Dial(c.Host, c.NonCustomerPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := verifyIdentity(conn, nil); err != nil {
		return err
	}

	req := &wire.CreateActivityRequest{Activity: activityInfoToWire(a.Key, a.Primary)}
	if err := conn.Send(wire.TagCreateActivityRequest, req); err != nil {
		return xerrors.Errorf("sending CreateActivity: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return xerrors.Errorf("receiving CreateActivity response: %v", err)
	}
	if tag != wire.TagCreateActivityResponse {
		return &ProtocolError{Op: "CreateActivity", Reason: "unexpected response tag"}
	}
	var resp wire.CreateActivityResponse
	if err := wire.Decode(body, &resp); err != nil {
		return err
	}
	if resp.Status != wire.StatusOk {
		return &ProtocolError{Op: "CreateActivity", Reason: "server reported non-ok status"}
	}
	a.HostingActive = true
	return nil
}

// DeleteActivity drives the activity-deletion flow: VerifyIdentity then
// DeleteActivity(id).
func DeleteActivity(c Contact, key model.ActivityKey) error {
	lat := recordLatency("DeleteActivity")
	defer lat()

	conn, err := Dial(c.Host, c.NonCustomerPort)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := verifyIdentity(conn, nil); err != nil {
		return err
	}

	req := &wire.DeleteActivityRequest{Type: key.Type, ID: key.ID}
	if err := conn.Send(wire.TagDeleteActivityRequest, req); err != nil {
		return xerrors.Errorf("sending DeleteActivity: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return xerrors.Errorf("receiving DeleteActivity response: %v", err)
	}
	if tag != wire.TagDeleteActivityResponse {
		return &ProtocolError{Op: "DeleteActivity", Reason: "unexpected response tag"}
	}
	var resp wire.DeleteActivityResponse
	if err := wire.Decode(body, &resp); err != nil {
		return err
	}
	if resp.Status != wire.StatusOk {
		return &ProtocolError{Op: "DeleteActivity", Reason: "server reported non-ok status"}
	}
	return nil
}
