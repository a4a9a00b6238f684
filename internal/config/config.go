// Package config holds the runtime configuration for both endpoints.
package config

import (
	"errors"
	"time"

	"github.com/tlqiu/quic3/internal/transfer"
)

var (
	ErrInvalidChunkSize    = errors.New("chunk size must be greater than 0")
	ErrInvalidMaxTransfers = errors.New("max active transfers must be greater than 0")
	ErrMissingOutputDir    = errors.New("output directory must be set")
	ErrMissingServerAddr   = errors.New("server address must be set")
	ErrMissingServerName   = errors.New("server name must be set")
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Client   ClientConfig
	Transfer TransferConfig
	LogLevel string
}

// ServerConfig configures the receiving endpoint.
type ServerConfig struct {
	Addr               string
	CertFile           string
	KeyFile            string
	OutputDir          string
	DBPath             string
	MaxActiveTransfers int64
}

// ClientConfig configures the sending endpoint.
type ClientConfig struct {
	ServerAddr string
	ServerName string
	CACertFile string
}

// TransferConfig configures stream framing.
type TransferConfig struct {
	ChunkSize       int
	KeepAlivePeriod time.Duration
	MaxIdleTimeout  time.Duration
}

// NewDefaultConfig returns a configuration with sensible defaults.
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:               "0.0.0.0:4433",
			CertFile:           "certs/server-cert.pem",
			KeyFile:            "certs/server-key.pem",
			OutputDir:          "received",
			DBPath:             "transfers.db",
			MaxActiveTransfers: 32,
		},
		Client: ClientConfig{
			ServerAddr: "127.0.0.1:4433",
			ServerName: "localhost",
			CACertFile: "certs/server-cert.pem",
		},
		Transfer: TransferConfig{
			ChunkSize:       transfer.DefaultChunkSize,
			KeepAlivePeriod: 10 * time.Second,
			MaxIdleTimeout:  30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if c.Transfer.ChunkSize <= 0 {
		return ErrInvalidChunkSize
	}
	if c.Server.MaxActiveTransfers <= 0 {
		return ErrInvalidMaxTransfers
	}
	if c.Server.OutputDir == "" {
		return ErrMissingOutputDir
	}
	if c.Client.ServerAddr == "" {
		return ErrMissingServerAddr
	}
	if c.Client.ServerName == "" {
		return ErrMissingServerName
	}
	return nil
}
