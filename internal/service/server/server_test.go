package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zax_relay/internal/channel"
	"zax_relay/internal/client"
	"zax_relay/internal/cryptographic/box"
	"zax_relay/internal/model"
	"zax_relay/internal/repository/mailbox"
	"zax_relay/internal/repository/sessionkey"
	redisSvc "zax_relay/internal/service/redis"
	"zax_relay/internal/service/relay"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRelay struct {
	ts   *httptest.Server
	keys *sessionkey.RedisStore
}

// newTestRelay wires the relay the way cmd/server does with the redis backend.
func newTestRelay(t *testing.T, maxBody int64, checks ...HealthCheck) *testRelay {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	redisService := redisSvc.NewRedis(rdb)

	keys := sessionkey.NewRedisStore(redisService)
	d := relay.NewDispatcher(keys, mailbox.NewRedisStore(redisService), channel.New())
	ts := httptest.NewServer(NewHttpServer(d, maxBody, checks...).Router())
	t.Cleanup(ts.Close)

	return &testRelay{ts: ts, keys: keys}
}

func (r *testRelay) newClient(t *testing.T) *client.Client {
	t.Helper()
	clientPriv, clientPub, err := box.NewKeyPair()
	require.NoError(t, err)
	sessionPriv, sessionPub, err := box.NewKeyPair()
	require.NoError(t, err)

	c := client.New(r.ts.URL, clientPriv, clientPub, sessionPub)
	require.NoError(t, r.keys.Put(context.Background(), c.HPK(),
		model.SessionKeys{SessionPriv: sessionPriv, ClientPub: clientPub}, 0))
	return c
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	r := newTestRelay(t, 0)
	a := r.newClient(t)
	b := r.newClient(t)

	require.NoError(t, a.Upload(ctx, b.HPK(), "cGF5bG9hZA=="))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	views, err := b.Download(ctx, 0)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.JSONEq(t, `"cGF5bG9hZA=="`, string(views[0].Data))
	assert.Equal(t, a.HPK().String(), views[0].From)

	require.NoError(t, b.Delete(ctx, views[0].ID))

	n, err = b.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailuresAreUniform(t *testing.T) {
	ctx := context.Background()
	r := newTestRelay(t, 0)
	a := r.newClient(t)

	_, err := a.Download(ctx, -1)
	var rejected *client.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusPreconditionFailed, rejected.StatusCode)

	resp, err := http.Post(r.ts.URL+"/command", "text/plain", strings.NewReader("one line only"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusPreconditionFailed, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Empty(t, body)
}

func TestUnknownSessionOverHTTP(t *testing.T) {
	r := newTestRelay(t, 0)
	priv, pub, err := box.NewKeyPair()
	require.NoError(t, err)
	_, sessionPub, err := box.NewKeyPair()
	require.NoError(t, err)

	stranger := client.New(r.ts.URL, priv, pub, sessionPub)
	_, err = stranger.Count(context.Background())

	var rejected *client.RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, http.StatusPreconditionFailed, rejected.StatusCode)
}

func TestBodyLimit(t *testing.T) {
	ctx := context.Background()
	r := newTestRelay(t, 512)
	a := r.newClient(t)
	b := r.newClient(t)

	require.NoError(t, a.Upload(ctx, b.HPK(), "small"))

	err := a.Upload(ctx, b.HPK(), strings.Repeat("A", 1024))
	var rejected *client.RejectedError
	require.True(t, errors.As(err, &rejected))

	n, err := b.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "oversized upload must not be stored")
}

func TestRoutes(t *testing.T) {
	r := newTestRelay(t, 0)

	resp, err := http.Get(r.ts.URL + "/command")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, err = http.Get(r.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealthReportsBackendFailure(t *testing.T) {
	r := newTestRelay(t, 0, HealthCheck{
		Name:  "mongo",
		Check: func(context.Context) error { return errors.New("no reachable servers") },
	})

	resp, err := http.Get(r.ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
