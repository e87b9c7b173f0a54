package sessionkey

import (
	"context"
	"fmt"
	"time"

	"zax_relay/internal/model"
	redisSvc "zax_relay/internal/service/redis"
	"zax_relay/internal/utils/log"
	"zax_relay/internal/zaxerr"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type (
	// RedisStore reads the two cache entries the handshake writes per client:
	// the server's session secret key and the client's public key.
	RedisStore struct {
		redisService *redisSvc.RedisService
	}
)

func NewRedisStore(redisService *redisSvc.RedisService) *RedisStore {
	return &RedisStore{
		redisService: redisService,
	}
}

func sessionKeyName(hpk model.HPK) string {
	return fmt.Sprintf("session_key_%s", hpk)
}

func clientKeyName(hpk model.HPK) string {
	return fmt.Sprintf("client_key_%s", hpk)
}

func (s *RedisStore) Load(ctx context.Context, hpk model.HPK) (*model.SessionKeys, error) {
	log.Debug("Reading client session key", zap.Stringer("hpk", hpk))

	vals, err := s.redisService.MGet(ctx, sessionKeyName(hpk), clientKeyName(hpk))
	if err != nil {
		return nil, zaxerr.Wrap(zaxerr.Unexpected, op, err)
	}

	var keys model.SessionKeys
	if err := copyKey(keys.SessionPriv[:], vals[0]); err != nil {
		return nil, zaxerr.New(zaxerr.UnknownSession, op, "session key for %s: %v", hpk, err)
	}
	if err := copyKey(keys.ClientPub[:], vals[1]); err != nil {
		return nil, zaxerr.New(zaxerr.UnknownSession, op, "client key for %s: %v", hpk, err)
	}
	return &keys, nil
}

func copyKey(dst []byte, v any) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("not cached")
	}
	if len(s) != len(dst) {
		return fmt.Errorf("cached key is %d bytes", len(s))
	}
	copy(dst, s)
	return nil
}

// Put stores both halves of a session atomically. The handshake owns this in
// production; the relay only uses it from tests and cmd/client's seed mode.
func (s *RedisStore) Put(ctx context.Context, hpk model.HPK, keys model.SessionKeys, ttl time.Duration) error {
	_, err := s.redisService.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKeyName(hpk), keys.SessionPriv[:], ttl)
		pipe.Set(ctx, clientKeyName(hpk), keys.ClientPub[:], ttl)
		return nil
	})
	return err
}
