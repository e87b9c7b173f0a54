package model

import (
	"encoding/base64"
	"fmt"
)

const (
	// HPKSize is the byte length of a hashed client public key.
	HPKSize = 32
	// NonceSize is the byte length of a box nonce.
	NonceSize = 24
	// KeySize is the byte length of a curve25519 key.
	KeySize = 32
)

// Encoded lengths of the fixed-size fields (standard base64, padded).
var (
	HPKB64Len   = base64.StdEncoding.EncodedLen(HPKSize)
	NonceB64Len = base64.StdEncoding.EncodedLen(NonceSize)
)

type (
	// HPK addresses a client: its session keys and its mailbox.
	HPK [HPKSize]byte

	Nonce [NonceSize]byte
)

func (h HPK) String() string {
	return base64.StdEncoding.EncodeToString(h[:])
}

func (n Nonce) String() string {
	return base64.StdEncoding.EncodeToString(n[:])
}

// ParseHPK decodes a base64 identifier and checks its length.
func ParseHPK(s string) (HPK, error) {
	var h HPK
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("decode hpk: %w", err)
	}
	if len(b) != HPKSize {
		return h, fmt.Errorf("hpk must be %d bytes, got %d", HPKSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

func ParseNonce(s string) (Nonce, error) {
	var n Nonce
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return n, fmt.Errorf("decode nonce: %w", err)
	}
	if len(b) != NonceSize {
		return n, fmt.Errorf("nonce must be %d bytes, got %d", NonceSize, len(b))
	}
	copy(n[:], b)
	return n, nil
}
