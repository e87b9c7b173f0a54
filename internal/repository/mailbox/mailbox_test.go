package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"

	"zax_relay/internal/model"
	redisSvc "zax_relay/internal/service/redis"
	"zax_relay/internal/zaxerr"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

var (
	alice = model.HPK{0xa1}
	bob   = model.HPK{0xb0}
	carol = model.HPK{0xc4}
)

func message(from model.HPK, body string) *model.StoredMessage {
	return &model.StoredMessage{
		From:  from,
		Nonce: model.Nonce{byte(len(body))},
		Time:  time.Now().Unix(),
		Data:  json.RawMessage(fmt.Sprintf("%q", body)),
	}
}

func fill(t *testing.T, s Store, to model.HPK, n int) []int64 {
	t.Helper()
	ids := make([]int64, 0, n)
	for i := 0; i < n; i++ {
		m := message(alice, fmt.Sprintf("msg-%d", i))
		require.NoError(t, s.Append(context.Background(), to, m))
		ids = append(ids, m.ID)
	}
	return ids
}

func bodies(msgs []model.StoredMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		var s string
		_ = json.Unmarshal(m.Data, &s)
		out = append(out, s)
	}
	return out
}

// runStoreSuite holds the behaviour every Store implementation must share.
func runStoreSuite(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("append then count", func(t *testing.T) {
		s := newStore(t)
		n, err := s.Count(ctx, bob)
		require.NoError(t, err)
		assert.Zero(t, n)

		m := message(alice, "hello")
		require.NoError(t, s.Append(ctx, bob, m))
		assert.NotZero(t, m.ID)

		n, err = s.Count(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.Count(ctx, alice)
		require.NoError(t, err)
		assert.Zero(t, n, "other mailboxes are untouched")
	})

	t.Run("read keeps insertion order and fields", func(t *testing.T) {
		s := newStore(t)
		ids := fill(t, s, bob, 5)

		got, err := s.ReadRange(ctx, bob, 0, 5)
		require.NoError(t, err)
		require.Len(t, got, 5)
		assert.Equal(t, []string{"msg-0", "msg-1", "msg-2", "msg-3", "msg-4"}, bodies(got))
		for i, m := range got {
			assert.Equal(t, ids[i], m.ID)
			assert.Equal(t, alice, m.From)
			assert.Equal(t, model.Nonce{5}, m.Nonce)
			assert.NotZero(t, m.Time)
		}
	})

	t.Run("read window", func(t *testing.T) {
		s := newStore(t)
		fill(t, s, bob, 5)

		got, err := s.ReadRange(ctx, bob, 1, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"msg-1", "msg-2"}, bodies(got))

		got, err = s.ReadRange(ctx, bob, 3, 10)
		require.NoError(t, err)
		assert.Equal(t, []string{"msg-3", "msg-4"}, bodies(got))
	})

	t.Run("read range bounds", func(t *testing.T) {
		s := newStore(t)

		got, err := s.ReadRange(ctx, bob, 0, 10)
		require.NoError(t, err, "empty mailbox at start 0 is not a bad range")
		assert.Empty(t, got)

		_, err = s.ReadRange(ctx, bob, -1, 10)
		require.ErrorIs(t, err, zaxerr.ErrBadRange)

		fill(t, s, bob, 3)
		_, err = s.ReadRange(ctx, bob, 3, 10)
		require.ErrorIs(t, err, zaxerr.ErrBadRange)
		_, err = s.ReadRange(ctx, bob, -2, 10)
		require.ErrorIs(t, err, zaxerr.ErrBadRange)

		got, err = s.ReadRange(ctx, bob, 2, 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("delete is idempotent and keeps order", func(t *testing.T) {
		s := newStore(t)
		ids := fill(t, s, bob, 4)

		require.NoError(t, s.Delete(ctx, bob, ids[1]))
		once, err := s.ReadRange(ctx, bob, 0, 10)
		require.NoError(t, err)

		require.NoError(t, s.Delete(ctx, bob, ids[1]))
		twice, err := s.ReadRange(ctx, bob, 0, 10)
		require.NoError(t, err)

		assert.Equal(t, once, twice)
		assert.Equal(t, []string{"msg-0", "msg-2", "msg-3"}, bodies(twice))

		n, err := s.Count(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 3, n, "a repeated delete does not count twice")
	})

	t.Run("delete several and unknown ids", func(t *testing.T) {
		s := newStore(t)
		ids := fill(t, s, bob, 3)

		require.NoError(t, s.Delete(ctx, bob, ids[2], 9999, ids[0]))
		n, err := s.Count(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		require.NoError(t, s.Delete(ctx, carol, ids[1]), "empty mailbox")
		n, err = s.Count(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "ids are scoped to the mailbox")
	})

	t.Run("ids stay unique after delete", func(t *testing.T) {
		s := newStore(t)
		ids := fill(t, s, bob, 2)
		require.NoError(t, s.Delete(ctx, bob, ids[1]))

		m := message(alice, "late")
		require.NoError(t, s.Append(ctx, bob, m))
		assert.NotContains(t, ids, m.ID)
	})

	t.Run("concurrent appends", func(t *testing.T) {
		s := newStore(t)
		const senders, each = 8, 25

		var g errgroup.Group
		for i := 0; i < senders; i++ {
			from := model.HPK{byte(i)}
			g.Go(func() error {
				for j := 0; j < each; j++ {
					if err := s.Append(ctx, bob, message(from, "x")); err != nil {
						return err
					}
				}
				return nil
			})
		}
		require.NoError(t, g.Wait())

		n, err := s.Count(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, senders*each, n)

		got, err := s.ReadRange(ctx, bob, 0, n)
		require.NoError(t, err)
		require.Len(t, got, n)

		// ids follow the order messages became visible, with no gaps
		for i, m := range got {
			assert.Equal(t, int64(i+1), m.ID)
		}
	})

	t.Run("reader paging during appends sees every message once", func(t *testing.T) {
		s := newStore(t)
		const total = 60

		var g errgroup.Group
		for i := 0; i < 4; i++ {
			from := model.HPK{byte(i)}
			g.Go(func() error {
				for j := 0; j < total/4; j++ {
					if err := s.Append(ctx, bob, message(from, "x")); err != nil {
						return err
					}
				}
				return nil
			})
		}

		var read []int64
		for len(read) < total {
			page, err := s.ReadRange(ctx, bob, len(read), 7)
			if err != nil {
				require.ErrorIs(t, err, zaxerr.ErrBadRange, "start at the end before more arrive")
				continue
			}
			for _, m := range page {
				read = append(read, m.ID)
			}
		}
		require.NoError(t, g.Wait())

		for i, id := range read {
			assert.Equal(t, int64(i+1), id)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}

func TestRedisStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) Store {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { rdb.Close() })
		return NewRedisStore(redisSvc.NewRedis(rdb))
	})
}

func TestRedisStoreIndexIsSortedSet(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s := NewRedisStore(redisSvc.NewRedis(rdb))

	ids := fill(t, s, bob, 3)
	require.NoError(t, s.Delete(ctx, bob, ids[0]))

	members, err := mr.ZMembers(idsKey(bob))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, members)
	fields, err := mr.HKeys(messagesKey(bob))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, fields)

	got, err := s.ReadRange(ctx, bob, 0, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ids[1], got[0].ID)
	assert.Equal(t, ids[2], got[1].ID)
}

func TestRedisStoreSkipsVanishedMessages(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	s := NewRedisStore(redisSvc.NewRedis(rdb))

	ids := fill(t, s, bob, 3)
	mr.HDel(messagesKey(bob), fmt.Sprint(ids[1]))

	got, err := s.ReadRange(ctx, bob, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"msg-0", "msg-2"}, bodies(got))
}

// TestMongoStore needs a disposable replica set, since appends run in a
// transaction, e.g.
// ZAX_TEST_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0 go test ./internal/repository/mailbox/
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("ZAX_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("ZAX_TEST_MONGO_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	var n int
	runStoreSuite(t, func(t *testing.T) Store {
		n++
		db := client.Database(fmt.Sprintf("zax_test_%d_%d", time.Now().UnixNano(), n))
		t.Cleanup(func() { db.Drop(context.Background()) })

		s := NewMongoStore(db)
		require.NoError(t, s.EnsureIndexes(context.Background()))
		return s
	})
}
