// Package security holds the node's Ed25519 identity. The node signs every
// event it publishes off-box so consumers can check where it came from.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBadKeyFile is returned when the stored seed is not a valid key.
var ErrBadKeyFile = errors.New("invalid node key file")

// Keypair holds the node's Ed25519 identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a new random keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// KeyPath is where the node seed lives under the data directory.
func KeyPath(home string) string {
	return filepath.Join(home, "keys", "node.seed")
}

// LoadOrCreateKeypair loads the node seed from home/keys/node.seed, or
// generates and stores one on first boot.
func LoadOrCreateKeypair(home string) (*Keypair, error) {
	path := KeyPath(home)

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		seed, err := hex.DecodeString(strings.TrimSpace(string(b)))
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, fmt.Errorf("%s: %w", path, ErrBadKeyFile)
		}
		priv := ed25519.NewKeyFromSeed(seed)
		return &Keypair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read node key: %w", err)
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(kp.Private.Seed())), 0600); err != nil {
		return nil, fmt.Errorf("write node key: %w", err)
	}
	return kp, nil
}

// PublicKeyHex returns the public key as hex.
func (kp *Keypair) PublicKeyHex() string {
	return hex.EncodeToString(kp.Public)
}

// NodeID derives a short stable node name from the public key.
func (kp *Keypair) NodeID() string {
	return "claw-" + kp.PublicKeyHex()[:16]
}

// Sign signs message with the node key.
func (kp *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// Verify checks a signature against a public key.
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	return len(publicKey) == ed25519.PublicKeySize && ed25519.Verify(publicKey, message, signature)
}

// VerifyHex is Verify for the hex-encoded forms carried in message headers.
func VerifyHex(message []byte, signatureHex, publicKeyHex string) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil {
		return false
	}
	pub, err := hex.DecodeString(publicKeyHex)
	if err != nil {
		return false
	}
	return Verify(message, sig, pub)
}
