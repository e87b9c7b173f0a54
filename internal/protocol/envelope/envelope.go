// Package envelope splits and joins the textual frames of the command channel.
//
// A request is three newline separated lines: the caller's hpk, the request
// nonce and the ciphertext, each in standard base64. A response is two lines:
// the response nonce and the ciphertext.
package envelope

import (
	"bytes"
	"encoding/base64"
	"strings"

	"zax_relay/internal/model"
	"zax_relay/internal/zaxerr"
)

const op = "envelope.parse"

type (
	Request struct {
		HPK        model.HPK
		Nonce      model.Nonce
		Ciphertext []byte
	}
)

func splitLines(body []byte, want int) ([]string, error) {
	text := strings.TrimRight(string(body), " \t\r\n")
	if text == "" {
		return nil, zaxerr.New(zaxerr.MalformedRequest, op, "empty body")
	}
	lines := strings.Split(text, "\n")
	if len(lines) != want {
		return nil, zaxerr.New(zaxerr.MalformedRequest, op, "want %d lines, got %d", want, len(lines))
	}
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines, nil
}

// ParseRequest validates the envelope shape. It never touches key material,
// so a malformed request is rejected before any decryption attempt.
func ParseRequest(body []byte) (*Request, error) {
	lines, err := splitLines(body, 3)
	if err != nil {
		return nil, err
	}
	if len(lines[0]) != model.HPKB64Len {
		return nil, zaxerr.New(zaxerr.MalformedRequest, op, "hpk token is %d chars", len(lines[0]))
	}
	if len(lines[1]) != model.NonceB64Len {
		return nil, zaxerr.New(zaxerr.MalformedRequest, op, "nonce is %d chars", len(lines[1]))
	}

	hpk, err := model.ParseHPK(lines[0])
	if err != nil {
		return nil, zaxerr.Wrap(zaxerr.MalformedRequest, op, err)
	}
	nonce, err := model.ParseNonce(lines[1])
	if err != nil {
		return nil, zaxerr.Wrap(zaxerr.MalformedRequest, op, err)
	}
	ct, err := base64.StdEncoding.DecodeString(lines[2])
	if err != nil || len(ct) == 0 {
		return nil, zaxerr.New(zaxerr.MalformedRequest, op, "bad ciphertext line")
	}

	return &Request{HPK: hpk, Nonce: nonce, Ciphertext: ct}, nil
}

func EncodeRequest(r *Request) []byte {
	var buf bytes.Buffer
	buf.WriteString(r.HPK.String())
	buf.WriteByte('\n')
	buf.WriteString(r.Nonce.String())
	buf.WriteByte('\n')
	buf.WriteString(base64.StdEncoding.EncodeToString(r.Ciphertext))
	return buf.Bytes()
}

func EncodeResponse(nonce model.Nonce, ciphertext []byte) []byte {
	return []byte(nonce.String() + "\n" + base64.StdEncoding.EncodeToString(ciphertext))
}

// ParseResponse is the client side of EncodeResponse.
func ParseResponse(body []byte) (model.Nonce, []byte, error) {
	lines, err := splitLines(body, 2)
	if err != nil {
		return model.Nonce{}, nil, err
	}
	nonce, err := model.ParseNonce(lines[0])
	if err != nil {
		return model.Nonce{}, nil, zaxerr.Wrap(zaxerr.MalformedRequest, op, err)
	}
	ct, err := base64.StdEncoding.DecodeString(lines[1])
	if err != nil {
		return model.Nonce{}, nil, zaxerr.Wrap(zaxerr.MalformedRequest, op, err)
	}
	return nonce, ct, nil
}
