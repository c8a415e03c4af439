// Package cryptoid wraps golang.org/x/crypto/ed25519 for the identities
// and signed wire messages of this simulator: a keypair, a 32-byte
// identity id derived from the public key, and the challenge/contract
// signature helpers the client driver needs.
package cryptoid

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"

	"golang.org/x/crypto/ed25519"
	"golang.org/x/xerrors"
)

// ChallengeSize is the length in bytes of every handshake challenge.
const ChallengeSize = 32

// KeyPair is an Ed25519 identity: the public key, the private (seed+public)
// key as used directly by ed25519.Sign, and the SHA-512-expanded, clamped
// form of the private scalar, kept as an informational value that Sign
// does not use.
type KeyPair struct {
	Public          ed25519.PublicKey
	Private         ed25519.PrivateKey
	ExpandedPrivate [64]byte
}

// GenerateKeyPair creates a fresh Ed25519 keypair using the system RNG.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, xerrors.Errorf("generating ed25519 key: %v", err)
	}
	return newKeyPair(pub, priv), nil
}

// MustGenerateKeyPair is GenerateKeyPair for call sites that have no
// meaningful recovery from a broken system entropy source.
func MustGenerateKeyPair() *KeyPair {
	kp, err := GenerateKeyPair()
	if err != nil {
		panic(err)
	}
	return kp
}

// KeyPairFromBytes reconstructs a KeyPair from previously generated raw
// public/private key bytes, used by the snapshot engine to restore an
// identity's or server's signing key across a save/load round-trip without
// re-deriving a fresh (and therefore different) key.
func KeyPairFromBytes(pub, priv []byte) (*KeyPair, error) {
	if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
		return nil, xerrors.New("cryptoid: wrong key size")
	}
	return newKeyPair(ed25519.PublicKey(pub), ed25519.PrivateKey(priv)), nil
}

func newKeyPair(pub ed25519.PublicKey, priv ed25519.PrivateKey) *KeyPair {
	h := sha512.Sum512(priv.Seed())
	// Clamp per RFC 8032 so the low-order scalar bytes match what ed25519's
	// internal expansion would compute; used only as an informational
	// "expanded private key" value, actual signing always goes through
	// ed25519.Sign.
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64
	return &KeyPair{Public: pub, Private: priv, ExpandedPrivate: h}
}

// Sign signs msg with the private key.
func (k *KeyPair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.Private, msg)
}

// IdentityID returns SHA-256(public key), the identity id used throughout
// the data model.
func (k *KeyPair) IdentityID() [32]byte {
	return sha256.Sum256(k.Public)
}

// Verify reports whether sig is a valid Ed25519 signature of msg under pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// NewChallenge returns a fresh random challenge of ChallengeSize bytes, as
// used on both sides of every client-protocol handshake.
func NewChallenge() ([]byte, error) {
	buf := make([]byte, ChallengeSize)
	if _, err := rand.Read(buf); err != nil {
		return nil, xerrors.Errorf("reading random challenge: %v", err)
	}
	return buf, nil
}
