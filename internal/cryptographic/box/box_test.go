package box

import (
	"testing"

	"zax_relay/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyPairs(t *testing.T) (clientPriv, clientPub, serverPriv, serverPub [model.KeySize]byte) {
	t.Helper()
	var err error
	clientPriv, clientPub, err = NewKeyPair()
	require.NoError(t, err)
	serverPriv, serverPub, err = NewKeyPair()
	require.NoError(t, err)
	return
}

func TestSealOpenRoundTrip(t *testing.T) {
	clientPriv, clientPub, serverPriv, serverPub := keyPairs(t)
	nonce, err := NewNonce()
	require.NoError(t, err)

	ct := Seal([]byte(`{"cmd":"count"}`), nonce, serverPub, clientPriv)
	assert.Len(t, ct, len(`{"cmd":"count"}`)+Overhead)

	plain, err := Open(ct, nonce, clientPub, serverPriv)
	require.NoError(t, err)
	assert.Equal(t, `{"cmd":"count"}`, string(plain))
}

func TestOpenRejectsAnyFlippedBit(t *testing.T) {
	clientPriv, clientPub, serverPriv, serverPub := keyPairs(t)
	nonce, err := NewNonce()
	require.NoError(t, err)
	ct := Seal([]byte("hello mailbox"), nonce, serverPub, clientPriv)

	t.Run("ciphertext", func(t *testing.T) {
		for i := range ct {
			bad := append([]byte(nil), ct...)
			bad[i] ^= 0x01
			_, err := Open(bad, nonce, clientPub, serverPriv)
			require.ErrorIs(t, err, ErrOpen, "byte %d", i)
		}
	})

	t.Run("nonce", func(t *testing.T) {
		for i := range nonce {
			bad := nonce
			bad[i] ^= 0x80
			_, err := Open(ct, bad, clientPub, serverPriv)
			require.ErrorIs(t, err, ErrOpen, "byte %d", i)
		}
	})

	t.Run("key", func(t *testing.T) {
		bad := serverPriv
		bad[7] ^= 0x04
		_, err := Open(ct, nonce, clientPub, bad)
		require.ErrorIs(t, err, ErrOpen)
	})
}

func TestOpenShortCiphertext(t *testing.T) {
	_, clientPub, serverPriv, _ := keyPairs(t)
	_, err := Open(make([]byte, Overhead-1), model.Nonce{}, clientPub, serverPriv)
	require.Error(t, err)
}

func TestNewNonceIsFresh(t *testing.T) {
	a, err := NewNonce()
	require.NoError(t, err)
	b, err := NewNonce()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
