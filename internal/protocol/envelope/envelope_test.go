package envelope

import (
	"encoding/base64"
	"strings"
	"testing"

	"zax_relay/internal/model"
	"zax_relay/internal/zaxerr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample() *Request {
	r := &Request{Ciphertext: []byte("sealed-bytes-here")}
	for i := range r.HPK {
		r.HPK[i] = byte(i)
	}
	for i := range r.Nonce {
		r.Nonce[i] = byte(100 + i)
	}
	return r
}

func TestParseRequest(t *testing.T) {
	want := sample()

	got, err := ParseRequest(EncodeRequest(want))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	crlf := strings.ReplaceAll(string(EncodeRequest(want)), "\n", "\r\n") + "\r\n"
	got, err = ParseRequest([]byte(crlf))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestParseRequestMalformed(t *testing.T) {
	r := sample()
	hpk := r.HPK.String()
	nonce := r.Nonce.String()
	ct := base64.StdEncoding.EncodeToString(r.Ciphertext)
	shortNonce := base64.StdEncoding.EncodeToString(make([]byte, model.NonceSize-1))

	tests := []struct {
		name string
		body string
	}{
		{"empty", ""},
		{"two lines", hpk + "\n" + nonce},
		{"four lines", hpk + "\n" + nonce + "\n" + ct + "\n" + ct},
		{"short nonce", hpk + "\n" + shortNonce + "\n" + ct},
		{"short hpk", hpk[4:] + "\n" + nonce + "\n" + ct},
		{"hpk not base64", strings.Repeat("!", model.HPKB64Len) + "\n" + nonce + "\n" + ct},
		{"ciphertext not base64", hpk + "\n" + nonce + "\n" + "***"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.body))
			require.ErrorIs(t, err, zaxerr.ErrMalformedRequest)
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	r := sample()
	nonce, ct, err := ParseResponse(EncodeResponse(r.Nonce, r.Ciphertext))
	require.NoError(t, err)
	assert.Equal(t, r.Nonce, nonce)
	assert.Equal(t, r.Ciphertext, ct)
}
