package box

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"zax_relay/internal/model"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// Overhead is the number of bytes Seal adds to a plaintext.
const Overhead = box.Overhead

var ErrOpen = errors.New("box: message authentication failed")

// NewKeyPair generates a curve25519 key pair.
func NewKeyPair() (priv, pub [model.KeySize]byte, err error) {
	_, err = rand.Read(priv[:])
	if err != nil {
		return priv, pub, fmt.Errorf("failed to generate private key: %w", err)
	}
	curve25519.ScalarBaseMult(&pub, &priv)
	return priv, pub, nil
}

// NewNonce returns a random nonce. 24 random bytes make collisions
// negligible, so callers never need to track previously issued values.
func NewNonce() (model.Nonce, error) {
	var n model.Nonce
	if _, err := io.ReadFull(rand.Reader, n[:]); err != nil {
		return n, fmt.Errorf("rand.Read nonce: %w", err)
	}
	return n, nil
}

// Seal encrypts and authenticates plaintext from the holder of priv to peerPub.
func Seal(plaintext []byte, nonce model.Nonce, peerPub, priv [model.KeySize]byte) []byte {
	n := [model.NonceSize]byte(nonce)
	return box.Seal(nil, plaintext, &n, &peerPub, &priv)
}

// Open authenticates and decrypts ciphertext sealed by peerPub for priv.
func Open(ciphertext []byte, nonce model.Nonce, peerPub, priv [model.KeySize]byte) ([]byte, error) {
	if len(ciphertext) < Overhead {
		return nil, fmt.Errorf("ciphertext too short: %d bytes", len(ciphertext))
	}
	n := [model.NonceSize]byte(nonce)
	plain, ok := box.Open(nil, ciphertext, &n, &peerPub, &priv)
	if !ok {
		return nil, ErrOpen
	}
	return plain, nil
}
