package config

import (
	"log/slog"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration values.
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	Relay  RelayConfig
	CORS   CORSConfig
}

type ServerConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type StoreConfig struct {
	// Path of the JSON document the channel store rewrites on every
	// mutation.
	Path string
}

type RelayConfig struct {
	// MaxMessageSize bounds a single inbound frame. Image messages
	// carry data-URI payloads, so this is generous.
	MaxMessageSize int64

	// SnapshotLimit caps the number of messages returned by an
	// initial-data request; 0 sends the full log.
	SnapshotLimit int
}

type CORSConfig struct {
	AllowedOrigins []string
}

// Load reads configuration from an optional .env file, environment
// variables, and defaults.
func Load() (*Config, error) {
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.SetDefault("CHAT_HOST", "0.0.0.0")
	viper.SetDefault("CHAT_PORT", "3001")
	viper.SetDefault("CHAT_READ_TIMEOUT", "15s")
	viper.SetDefault("CHAT_WRITE_TIMEOUT", "15s")
	viper.SetDefault("CHAT_IDLE_TIMEOUT", "60s")
	viper.SetDefault("CHAT_STORE_PATH", "channels.json")
	viper.SetDefault("CHAT_MAX_MESSAGE_SIZE", 10<<20)
	viper.SetDefault("CHAT_SNAPSHOT_LIMIT", 0)
	viper.SetDefault("CHAT_ALLOWED_ORIGINS", "http://localhost:5173")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		slog.Debug("no .env file found, using environment and defaults", "error", err)
	}

	readTimeout, err := time.ParseDuration(viper.GetString("CHAT_READ_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	writeTimeout, err := time.ParseDuration(viper.GetString("CHAT_WRITE_TIMEOUT"))
	if err != nil {
		return nil, err
	}
	idleTimeout, err := time.ParseDuration(viper.GetString("CHAT_IDLE_TIMEOUT"))
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: ServerConfig{
			Host:         viper.GetString("CHAT_HOST"),
			Port:         viper.GetString("CHAT_PORT"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			IdleTimeout:  idleTimeout,
		},
		Store: StoreConfig{
			Path: viper.GetString("CHAT_STORE_PATH"),
		},
		Relay: RelayConfig{
			MaxMessageSize: viper.GetInt64("CHAT_MAX_MESSAGE_SIZE"),
			SnapshotLimit:  viper.GetInt("CHAT_SNAPSHOT_LIMIT"),
		},
		CORS: CORSConfig{
			AllowedOrigins: viper.GetStringSlice("CHAT_ALLOWED_ORIGINS"),
		},
	}, nil
}
