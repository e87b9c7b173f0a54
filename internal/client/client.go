// Package client speaks the command channel from the client side. It assumes
// the session handshake already happened and that the caller holds its own
// secret key and the server's session public key.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"zax_relay/internal/cryptographic/box"
	"zax_relay/internal/model"
	"zax_relay/internal/protocol/envelope"

	"github.com/zeebo/blake3"
)

type (
	Client struct {
		host       string
		httpClient *http.Client

		hpk        model.HPK
		clientPriv [model.KeySize]byte
		sessionPub [model.KeySize]byte
	}

	// RejectedError is returned for any non-200 reply. The relay gives no
	// reason on purpose.
	RejectedError struct {
		StatusCode int
	}
)

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay rejected command: status %d", e.StatusCode)
}

// HPK derives the identifier a client is addressed by from its public key.
func HPK(pub [model.KeySize]byte) model.HPK {
	return model.HPK(blake3.Sum256(pub[:]))
}

// New returns a client for the relay at host (e.g. "localhost:9090" or a
// full "http://..." base URL).
func New(host string, clientPriv, clientPub, sessionPub [model.KeySize]byte) *Client {
	return &Client{
		host:       host,
		httpClient: http.DefaultClient,
		hpk:        HPK(clientPub),
		clientPriv: clientPriv,
		sessionPub: sessionPub,
	}
}

func (c *Client) WithHTTPClient(h *http.Client) *Client {
	c.httpClient = h
	return c
}

func (c *Client) HPK() model.HPK {
	return c.hpk
}

func (c *Client) commandURL() string {
	u, err := url.Parse(c.host)
	if err != nil || u.Scheme == "" || u.Host == "" {
		u = &url.URL{Scheme: "http", Host: c.host}
	}
	u.Path = "/command"
	return u.String()
}

// Seal builds a request body carrying cmd.
func (c *Client) Seal(cmd any) ([]byte, error) {
	plain, err := json.Marshal(cmd)
	if err != nil {
		return nil, err
	}
	nonce, err := box.NewNonce()
	if err != nil {
		return nil, err
	}
	return envelope.EncodeRequest(&envelope.Request{
		HPK:        c.hpk,
		Nonce:      nonce,
		Ciphertext: box.Seal(plain, nonce, c.sessionPub, c.clientPriv),
	}), nil
}

// Open decrypts a two-line reply into v.
func (c *Client) Open(body []byte, v any) error {
	nonce, ct, err := envelope.ParseResponse(body)
	if err != nil {
		return err
	}
	plain, err := box.Open(ct, nonce, c.sessionPub, c.clientPriv)
	if err != nil {
		return err
	}
	return json.Unmarshal(plain, v)
}

func (c *Client) do(ctx context.Context, cmd any) ([]byte, error) {
	body, err := c.Seal(cmd)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.commandURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	defer io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, &RejectedError{StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) Upload(ctx context.Context, to model.HPK, payload any) error {
	_, err := c.do(ctx, map[string]any{
		"cmd":     "upload",
		"to":      to.String(),
		"payload": payload,
	})
	return err
}

func (c *Client) Count(ctx context.Context) (int, error) {
	body, err := c.do(ctx, map[string]any{"cmd": "count"})
	if err != nil {
		return 0, err
	}
	var rsp model.CountResponse
	if err := c.Open(body, &rsp); err != nil {
		return 0, err
	}
	return rsp.Count, nil
}

func (c *Client) Download(ctx context.Context, start int) ([]model.MessageView, error) {
	body, err := c.do(ctx, map[string]any{"cmd": "download", "start": start})
	if err != nil {
		return nil, err
	}
	var views []model.MessageView
	if err := c.Open(body, &views); err != nil {
		return nil, err
	}
	return views, nil
}

func (c *Client) Delete(ctx context.Context, ids ...int64) error {
	_, err := c.do(ctx, map[string]any{"cmd": "delete", "payload": ids})
	return err
}
