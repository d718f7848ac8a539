// Package config reads the process configuration from the environment,
// after loading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/DoyleJ11/alignment-sync/internal/checkpoint"
	"github.com/DoyleJ11/alignment-sync/internal/client"
	"github.com/DoyleJ11/alignment-sync/pkg/protocol"
)

type Config struct {
	ServerURL    string `env:"ALIGNMENT_SERVER_URL" envDefault:"ws://localhost:8000/ws"`
	GameID       string `env:"ALIGNMENT_GAME_ID"`
	PlayerID     string `env:"ALIGNMENT_PLAYER_ID"`
	SessionToken string `env:"ALIGNMENT_SESSION_TOKEN"`
	PlayerName   string `env:"ALIGNMENT_PLAYER_NAME" envDefault:"player"`
	StatusAddr   string `env:"ALIGNMENT_STATUS_ADDR" envDefault:":8080"`

	CheckpointBackend string `env:"ALIGNMENT_CHECKPOINT_BACKEND" envDefault:"bolt"`
	CheckpointPath    string `env:"ALIGNMENT_CHECKPOINT_PATH" envDefault:"alignment-checkpoints.db"`
	CheckpointDSN     string `env:"ALIGNMENT_CHECKPOINT_DSN"`
	RedisAddr         string `env:"ALIGNMENT_REDIS_ADDR" envDefault:"localhost:6379"`

	LogLevel string `env:"ALIGNMENT_LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"ALIGNMENT_LOG_DEV"`

	Heartbeat      time.Duration `env:"ALIGNMENT_HEARTBEAT" envDefault:"30s"`
	ReconnectDelay time.Duration `env:"ALIGNMENT_RECONNECT_DELAY" envDefault:"2s"`
	RetryDelay     time.Duration `env:"ALIGNMENT_RETRY_DELAY" envDefault:"5s"`
	ResyncTimeout  time.Duration `env:"ALIGNMENT_RESYNC_TIMEOUT" envDefault:"30s"`
}

// Load reads files (".env" when none are given) into the environment
// without overriding variables already set, then parses the environment.
// Missing files are skipped.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) Identity() protocol.Identity {
	return protocol.Identity{GameID: c.GameID, PlayerID: c.PlayerID, SessionToken: c.SessionToken}
}

func (c Config) Client() client.Config {
	return client.Config{
		ServerURL: c.ServerURL,
		Checkpoint: checkpoint.Config{
			Backend:   c.CheckpointBackend,
			Path:      c.CheckpointPath,
			DSN:       c.CheckpointDSN,
			RedisAddr: c.RedisAddr,
		},
		Heartbeat:      c.Heartbeat,
		ReconnectDelay: c.ReconnectDelay,
		RetryDelay:     c.RetryDelay,
		ResyncTimeout:  c.ResyncTimeout,
	}
}
