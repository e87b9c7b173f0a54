package mailbox

import (
	"context"
	"fmt"
	"strconv"

	"zax_relay/internal/model"
	redisSvc "zax_relay/internal/service/redis"
	"zax_relay/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type (
	// RedisStore keeps three keys per mailbox: a sorted set of message ids
	// scored by id, a hash from id to the CBOR encoded message, and the id
	// counter.
	RedisStore struct {
		redisService *redisSvc.RedisService
	}
)

// appendScript allocates the id and stores the message in one step, so ids
// grow in the order messages become visible.
var appendScript = redis.NewScript(`
local id = redis.call('INCR', KEYS[1])
local field = tostring(id)
redis.call('HSET', KEYS[2], field, ARGV[1])
redis.call('ZADD', KEYS[3], field, field)
return id
`)

func NewRedisStore(redisService *redisSvc.RedisService) *RedisStore {
	return &RedisStore{
		redisService: redisService,
	}
}

func idsKey(hpk model.HPK) string {
	return fmt.Sprintf("mailbox_ids_%s", hpk)
}

func messagesKey(hpk model.HPK) string {
	return fmt.Sprintf("mailbox_msgs_%s", hpk)
}

func seqKey(hpk model.HPK) string {
	return fmt.Sprintf("mailbox_seq_%s", hpk)
}

// Append stores msg without its id; the id is the hash field and is restored
// on read.
func (s *RedisStore) Append(ctx context.Context, to model.HPK, msg *model.StoredMessage) error {
	stored := *msg
	stored.ID = 0
	data, err := encodeMessage(&stored)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	res, err := s.redisService.RunScript(ctx, appendScript,
		[]string{seqKey(to), messagesKey(to), idsKey(to)}, data)
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	id, ok := res.(int64)
	if !ok {
		return fmt.Errorf("store message: unexpected id %v", res)
	}
	msg.ID = id

	log.Debug("message stored", zap.Stringer("to", to), zap.Int64("id", id))
	return nil
}

func (s *RedisStore) Count(ctx context.Context, hpk model.HPK) (int, error) {
	n, err := s.redisService.ZCard(ctx, idsKey(hpk))
	if err != nil {
		return 0, fmt.Errorf("count mailbox: %w", err)
	}
	return int(n), nil
}

func (s *RedisStore) ReadRange(ctx context.Context, hpk model.HPK, start, limit int) ([]model.StoredMessage, error) {
	if start < 0 {
		return nil, checkRange(start, 0)
	}

	var (
		size *redis.IntCmd
		ids  *redis.StringSliceCmd
	)
	_, err := s.redisService.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		size = pipe.ZCard(ctx, idsKey(hpk))
		ids = pipe.ZRange(ctx, idsKey(hpk), int64(start), int64(start+limit-1))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read mailbox: %w", err)
	}
	if err := checkRange(start, int(size.Val())); err != nil {
		return nil, err
	}
	if limit <= 0 || len(ids.Val()) == 0 {
		return []model.StoredMessage{}, nil
	}

	vals, err := s.redisService.HMGet(ctx, messagesKey(hpk), ids.Val()...)
	if err != nil {
		return nil, fmt.Errorf("read messages: %w", err)
	}

	out := make([]model.StoredMessage, 0, len(vals))
	for i, v := range vals {
		field := ids.Val()[i]
		// deleted between the two round trips
		raw, ok := v.(string)
		if !ok {
			continue
		}
		m, err := decodeMessage([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode message %s: %w", field, err)
		}
		m.ID, err = strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("decode message id %q: %w", field, err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, hpk model.HPK, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}

	fields := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		field := strconv.FormatInt(id, 10)
		fields = append(fields, field)
		members = append(members, field)
	}

	_, err := s.redisService.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, idsKey(hpk), members...)
		pipe.HDel(ctx, messagesKey(hpk), fields...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	return nil
}
