package clientdriver

import (
	"golang.org/x/crypto/ed25519"
	"golang.org/x/xerrors"

	"go.dedis.ch/locsim/cryptoid"
	"go.dedis.ch/locsim/wire"
)

// conversation is the result of a successful StartConversation handshake:
// the server's public key (trusted on first use, as this is a simulator),
// the client challenge we sent, and the fresh server challenge the client
// may need to sign back.
type conversation struct {
	ServerPublicKey ed25519.PublicKey
	ClientChallenge []byte
	ServerChallenge []byte
}

// startConversation issues StartConversation with a fresh client challenge
// and verifies the server's signature over it.
func startConversation(conn *wire.Conn) (*conversation, error) {
	challenge, err := cryptoid.NewChallenge()
	if err != nil {
		return nil, err
	}
	if err := conn.Send(wire.TagStartConversationRequest, &wire.StartConversationRequest{
		Version:         1,
		ClientChallenge: challenge,
	}); err != nil {
		return nil, xerrors.Errorf("sending StartConversation: %v", err)
	}

	tag, body, err := conn.Receive()
	if err != nil {
		return nil, xerrors.Errorf("receiving StartConversation response: %v", err)
	}
	if tag != wire.TagStartConversationResponse {
		return nil, &ProtocolError{Op: "StartConversation", Reason: "unexpected response tag"}
	}
	var resp wire.StartConversationResponse
	if err := wire.Decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != wire.StatusOk {
		return nil, &ProtocolError{Op: "StartConversation", Reason: "server reported non-ok status"}
	}
	if !cryptoid.Verify(resp.ServerPublicKey, challenge, resp.Signature) {
		return nil, &ProtocolError{Op: "StartConversation", Reason: "invalid signature over client challenge"}
	}
	return &conversation{
		ServerPublicKey: resp.ServerPublicKey,
		ClientChallenge: challenge,
		ServerChallenge: resp.ServerChallenge,
	}, nil
}

// verifyIdentity issues the proximity-server VerifyIdentity handshake. The
// server's signature over the client's challenge is checked only when
// serverPublicKey is non-nil; CreateActivity and DeleteActivity pass nil, so
// on those flows only the response tag and status are checked.
func verifyIdentity(conn *wire.Conn, serverPublicKey ed25519.PublicKey) ([]byte, error) {
	challenge, err := cryptoid.NewChallenge()
	if err != nil {
		return nil, err
	}
	if err := conn.Send(wire.TagVerifyIdentityRequest, &wire.VerifyIdentityRequest{ClientChallenge: challenge}); err != nil {
		return nil, xerrors.Errorf("sending VerifyIdentity: %v", err)
	}
	tag, body, err := conn.Receive()
	if err != nil {
		return nil, xerrors.Errorf("receiving VerifyIdentity response: %v", err)
	}
	if tag != wire.TagVerifyIdentityResponse {
		return nil, &ProtocolError{Op: "VerifyIdentity", Reason: "unexpected response tag"}
	}
	var resp wire.VerifyIdentityResponse
	if err := wire.Decode(body, &resp); err != nil {
		return nil, err
	}
	if resp.Status != wire.StatusOk {
		return nil, &ProtocolError{Op: "VerifyIdentity", Reason: "server reported non-ok status"}
	}
	if serverPublicKey != nil && !cryptoid.Verify(serverPublicKey, challenge, resp.Signature) {
		return nil, &ProtocolError{Op: "VerifyIdentity", Reason: "invalid signature over client challenge"}
	}
	return challenge, nil
}
