// Package config loads relay settings from one YAML file, named by --config
// or ZAX_CONFIG, then applies any flags given on the command line.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the config file when --config is not given.
const EnvConfig = "ZAX_CONFIG"

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendMongo  = "mongo"
)

type (
	Config struct {
		Server  ServerConfig  `yaml:"server"`
		Redis   RedisConfig   `yaml:"redis"`
		Mongo   MongoConfig   `yaml:"mongo"`
		Mailbox MailboxConfig `yaml:"mailbox"`
		Log     LogConfig     `yaml:"log"`
	}

	ServerConfig struct {
		Addr string `yaml:"addr"`
		// MaxBody caps a command request, in bytes.
		MaxBody int64 `yaml:"max_body"`
	}

	// RedisConfig is used for the session key cache, and for mailboxes when
	// the redis backend is selected.
	RedisConfig struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}

	MongoConfig struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	}

	MailboxConfig struct {
		// Backend is memory, redis or mongo.
		Backend string `yaml:"backend"`
		// MaxItems caps the messages returned by one download.
		MaxItems int `yaml:"max_items"`
	}

	LogConfig struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	}
)

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:    "localhost:9090",
			MaxBody: 100 * 1024,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Mongo: MongoConfig{
			URI:      "mongodb://localhost:27017/?replicaSet=rs0",
			Database: "zax",
		},
		Mailbox: MailboxConfig{
			Backend:  BackendRedis,
			MaxItems: 100,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse builds the config for a command: defaults, then the file, then flags.
func Parse(name string, args []string) (*Config, error) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	path := fs.String("config", "", "path to the YAML config file (default $"+EnvConfig+")")

	flags := Default()
	fs.StringVar(&flags.Server.Addr, "addr", flags.Server.Addr, "listen address")
	fs.Int64Var(&flags.Server.MaxBody, "max-body", flags.Server.MaxBody, "maximum command body in bytes")
	fs.StringVar(&flags.Redis.Addr, "redis-addr", flags.Redis.Addr, "redis address")
	fs.StringVar(&flags.Redis.Password, "redis-password", flags.Redis.Password, "redis password")
	fs.IntVar(&flags.Redis.DB, "redis-db", flags.Redis.DB, "redis database number")
	fs.StringVar(&flags.Mongo.URI, "mongo-uri", flags.Mongo.URI, "mongo connection URI")
	fs.StringVar(&flags.Mongo.Database, "mongo-db", flags.Mongo.Database, "mongo database name")
	fs.StringVar(&flags.Mailbox.Backend, "mailbox", flags.Mailbox.Backend, "mailbox backend: memory, redis or mongo")
	fs.IntVar(&flags.Mailbox.MaxItems, "max-items", flags.Mailbox.MaxItems, "maximum messages per download")
	fs.StringVar(&flags.Log.Level, "log-level", flags.Log.Level, "debug, info, warn or error")
	fs.BoolVar(&flags.Log.Development, "log-dev", flags.Log.Development, "human readable logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *path == "" {
		*path = os.Getenv(EnvConfig)
	}
	cfg := Default()
	if *path != "" {
		var err error
		if cfg, err = Load(*path); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *pflag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Server.Addr = flags.Server.Addr
		case "max-body":
			cfg.Server.MaxBody = flags.Server.MaxBody
		case "redis-addr":
			cfg.Redis.Addr = flags.Redis.Addr
		case "redis-password":
			cfg.Redis.Password = flags.Redis.Password
		case "redis-db":
			cfg.Redis.DB = flags.Redis.DB
		case "mongo-uri":
			cfg.Mongo.URI = flags.Mongo.URI
		case "mongo-db":
			cfg.Mongo.Database = flags.Mongo.Database
		case "mailbox":
			cfg.Mailbox.Backend = flags.Mailbox.Backend
		case "max-items":
			cfg.Mailbox.MaxItems = flags.Mailbox.MaxItems
		case "log-level":
			cfg.Log.Level = flags.Log.Level
		case "log-dev":
			cfg.Log.Development = flags.Log.Development
		}
	})

	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.MaxBody <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body must be positive, got %d", c.Server.MaxBody))
	}
	if c.Mailbox.MaxItems <= 0 {
		errs = append(errs, fmt.Errorf("mailbox.max_items must be positive, got %d", c.Mailbox.MaxItems))
	}
	switch c.Mailbox.Backend {
	case BackendMemory, BackendRedis:
	case BackendMongo:
		if c.Mongo.URI == "" || c.Mongo.Database == "" {
			errs = append(errs, errors.New("mongo.uri and mongo.database are required for the mongo backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown mailbox backend %q", c.Mailbox.Backend))
	}
	return errors.Join(errs...)
}
