package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"zax_relay/internal/client"
	"zax_relay/internal/cryptographic/box"
	"zax_relay/internal/model"
	"zax_relay/internal/repository/sessionkey"
	redisSvc "zax_relay/internal/service/redis"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

const usage = `Usage: zax-client <command> [flags] [args]

Commands:
  keygen                          print a new client key pair and its hpk
  seed --public KEY               cache a session for KEY in redis (stands in for the handshake)
  count                           number of messages waiting
  download [--start N]            list waiting messages
  upload --to HPK --payload JSON  deposit a message for HPK
  delete ID...                    remove delivered messages

count, download, upload and delete need --secret, --public and --session.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd string, args []string) error {
	fs := pflag.NewFlagSet("zax-client "+cmd, pflag.ContinueOnError)
	server := fs.String("server", "localhost:9090", "relay address")
	secret := fs.String("secret", "", "client secret key (base64)")
	public := fs.String("public", "", "client public key (base64)")
	session := fs.String("session", "", "server session public key (base64)")
	redisAddr := fs.String("redis-addr", "localhost:6379", "redis address, for seed")
	ttl := fs.Duration("ttl", time.Hour, "session lifetime, for seed")
	start := fs.Int("start", 0, "first message position, for download")
	to := fs.String("to", "", "recipient hpk (base64), for upload")
	payload := fs.String("payload", "", "message payload as JSON, for upload")
	timeout := fs.Duration("timeout", 10*time.Second, "request timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch cmd {
	case "keygen":
		priv, pub, err := box.NewKeyPair()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{
			"secret": encode(priv[:]),
			"public": encode(pub[:]),
			"hpk":    client.HPK(pub).String(),
		})

	case "seed":
		clientPub, err := decodeKey("public", *public)
		if err != nil {
			return err
		}
		return seed(ctx, *redisAddr, clientPub, *ttl)
	}

	clientPriv, err := decodeKey("secret", *secret)
	if err != nil {
		return err
	}
	clientPub, err := decodeKey("public", *public)
	if err != nil {
		return err
	}
	sessionPub, err := decodeKey("session", *session)
	if err != nil {
		return err
	}
	c := client.New(*server, clientPriv, clientPub, sessionPub)

	switch cmd {
	case "count":
		n, err := c.Count(ctx)
		if err != nil {
			return err
		}
		return printJSON(model.CountResponse{Count: n})

	case "download":
		views, err := c.Download(ctx, *start)
		if err != nil {
			return err
		}
		return printJSON(views)

	case "upload":
		recipient, err := model.ParseHPK(*to)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}
		if !json.Valid([]byte(*payload)) {
			return fmt.Errorf("--payload must be valid JSON")
		}
		return c.Upload(ctx, recipient, json.RawMessage(*payload))

	case "delete":
		ids := make([]int64, 0, fs.NArg())
		for _, a := range fs.Args() {
			id, err := strconv.ParseInt(a, 10, 64)
			if err != nil {
				return fmt.Errorf("bad id %q: %w", a, err)
			}
			ids = append(ids, id)
		}
		if len(ids) == 0 {
			return fmt.Errorf("delete needs at least one id")
		}
		return c.Delete(ctx, ids...)
	}

	return fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
}

// seed plays the server half of the handshake for local testing: it makes a
// session key pair for the client and caches it where the relay looks.
func seed(ctx context.Context, addr string, clientPub [model.KeySize]byte, ttl time.Duration) error {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	redisService := redisSvc.NewRedis(rdb)
	defer redisService.Close()

	sessionPriv, sessionPub, err := box.NewKeyPair()
	if err != nil {
		return err
	}
	hpk := client.HPK(clientPub)
	keys := model.SessionKeys{SessionPriv: sessionPriv, ClientPub: clientPub}
	if err := sessionkey.NewRedisStore(redisService).Put(ctx, hpk, keys, ttl); err != nil {
		return err
	}
	return printJSON(map[string]string{
		"hpk":     hpk.String(),
		"session": encode(sessionPub[:]),
	})
}

func encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func decodeKey(name, s string) ([model.KeySize]byte, error) {
	var k [model.KeySize]byte
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != model.KeySize {
		return k, fmt.Errorf("--%s must be a base64 %d-byte key", name, model.KeySize)
	}
	copy(k[:], b)
	return k, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
