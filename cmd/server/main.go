package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zax_relay/internal/channel"
	"zax_relay/internal/config"
	"zax_relay/internal/repository/mailbox"
	"zax_relay/internal/repository/sessionkey"
	redisSvc "zax_relay/internal/service/redis"
	"zax_relay/internal/service/relay"
	"zax_relay/internal/service/server"
	"zax_relay/internal/utils/log"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Parse("zax-server", os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := log.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("relay stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	redisService := redisSvc.NewRedis(rdb)
	defer redisService.Close()

	checks := []server.HealthCheck{{Name: "redis", Check: redisService.Ping}}

	var mailboxes mailbox.Store
	switch cfg.Mailbox.Backend {
	case config.BackendMemory:
		mailboxes = mailbox.NewMemoryStore()
	case config.BackendRedis:
		mailboxes = mailbox.NewRedisStore(redisService)
	case config.BackendMongo:
		mongoDBClient, err := initMongo(ctx, cfg.Mongo.URI)
		if err != nil {
			return fmt.Errorf("connect mongo: %w", err)
		}
		defer mongoDBClient.Disconnect(context.Background())

		store := mailbox.NewMongoStore(mongoDBClient.Database(cfg.Mongo.Database))
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo indexes: %w", err)
		}
		mailboxes = store
		checks = append(checks, server.HealthCheck{
			Name:  "mongo",
			Check: func(ctx context.Context) error { return mongoDBClient.Ping(ctx, nil) },
		})
	}
	log.Info("mailbox backend selected", zap.String("backend", cfg.Mailbox.Backend))

	dispatcher := relay.NewDispatcher(
		sessionkey.NewRedisStore(redisService),
		mailboxes,
		channel.New(),
		relay.WithMaxItems(cfg.Mailbox.MaxItems),
	)
	s := server.NewHttpServer(dispatcher, cfg.Server.MaxBody, checks...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.Run(cfg.Server.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return s.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func initMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	return client, client.Ping(ctx, nil)
}
