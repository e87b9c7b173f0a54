// Package channel is the authenticated encryption around one command
// exchange. The same key pair serves both directions; the request and the
// response always use different nonces.
package channel

import (
	"encoding/json"

	"zax_relay/internal/cryptographic/box"
	"zax_relay/internal/model"
	"zax_relay/internal/zaxerr"
)

type (
	Channel struct{}
)

func New() *Channel {
	return &Channel{}
}

// Open authenticates and decrypts the client's ciphertext. Failures are
// reported without saying which input was wrong.
func (c *Channel) Open(keys *model.SessionKeys, nonce model.Nonce, ciphertext []byte) ([]byte, error) {
	plain, err := box.Open(ciphertext, nonce, keys.ClientPub, keys.SessionPriv)
	if err != nil {
		return nil, zaxerr.Wrap(zaxerr.CryptoFailure, "channel.decrypt", err)
	}
	return plain, nil
}

// Encrypt serialises v to JSON and seals it for the client.
func (c *Channel) Encrypt(keys *model.SessionKeys, nonce model.Nonce, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, zaxerr.Wrap(zaxerr.Unexpected, "channel.encrypt", err)
	}
	return box.Seal(data, nonce, keys.ClientPub, keys.SessionPriv), nil
}

func (c *Channel) GenerateNonce() (model.Nonce, error) {
	n, err := box.NewNonce()
	if err != nil {
		return n, zaxerr.Wrap(zaxerr.Unexpected, "channel.nonce", err)
	}
	return n, nil
}
