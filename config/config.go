package config

import (
	"os"
	"strconv"
)

type Config struct {
	Addr             string
	DBPath           string
	SessionSecret    string
	WriteTimeout     int // seconds
	HandshakeTimeout int // seconds
	SendBuffer       int // outbound frames buffered per connection
}

func Load() *Config {
	cfg := &Config{
		Addr:             ":5000",
		DBPath:           "talk2me.db",
		SessionSecret:    "talk2me-secret-key",
		WriteTimeout:     10,
		HandshakeTimeout: 5,
		SendBuffer:       32,
	}

	if addr := os.Getenv("T2M_ADDR"); addr != "" {
		cfg.Addr = addr
	}

	if dbPath := os.Getenv("T2M_DB_PATH"); dbPath != "" {
		cfg.DBPath = dbPath
	}

	if secret := os.Getenv("T2M_SESSION_SECRET"); secret != "" {
		cfg.SessionSecret = secret
	}

	if timeoutStr := os.Getenv("T2M_WRITE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.WriteTimeout = timeout
		}
	}

	if timeoutStr := os.Getenv("T2M_HANDSHAKE_TIMEOUT"); timeoutStr != "" {
		if timeout, err := strconv.Atoi(timeoutStr); err == nil {
			cfg.HandshakeTimeout = timeout
		}
	}

	if bufStr := os.Getenv("T2M_SEND_BUFFER"); bufStr != "" {
		if buf, err := strconv.Atoi(bufStr); err == nil && buf > 0 {
			cfg.SendBuffer = buf
		}
	}

	return cfg
}
