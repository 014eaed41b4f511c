package config

import (
	"fmt"
	"time"
)

// Snapshot backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	DirectAddr      string
	UserPort        int
	MulticastPort   int
	BroadcastAddr   string
	DebugAddr       string
	SnapshotBackend string
	DataDir         string
	DatabaseDSN     string
	RedisAddr       string
	HistoryDebounce time.Duration
	AskTimeout      time.Duration
	SweepInterval   time.Duration
	ReportInterval  time.Duration
}

func NewConfig(directAddr string, userPort, multicastPort int, broadcastAddr, debugAddr, backend, dataDir, dsn, redisAddr string) (*Config, error) {
	if directAddr == "" {
		return nil, fmt.Errorf("direct listen address cannot be empty")
	}
	if userPort <= 0 || userPort > 65535 {
		return nil, fmt.Errorf("invalid user port %d", userPort)
	}
	if multicastPort <= 0 || multicastPort > 65535 {
		return nil, fmt.Errorf("invalid multicast port %d", multicastPort)
	}
	if broadcastAddr == "" {
		return nil, fmt.Errorf("broadcast address cannot be empty")
	}

	switch backend {
	case BackendFile:
		if dataDir == "" {
			return nil, fmt.Errorf("data directory cannot be empty for the file backend")
		}
	case BackendPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("database DSN cannot be empty for the postgres backend")
		}
	case BackendRedis:
		if redisAddr == "" {
			return nil, fmt.Errorf("redis address cannot be empty for the redis backend")
		}
	default:
		return nil, fmt.Errorf("unknown snapshot backend %q", backend)
	}

	return &Config{
		DirectAddr:      directAddr,
		UserPort:        userPort,
		MulticastPort:   multicastPort,
		BroadcastAddr:   broadcastAddr,
		DebugAddr:       debugAddr,
		SnapshotBackend: backend,
		DataDir:         dataDir,
		DatabaseDSN:     dsn,
		RedisAddr:       redisAddr,
		HistoryDebounce: time.Second,
		AskTimeout:      30 * time.Second,
		SweepInterval:   time.Second,
		ReportInterval:  10 * time.Second,
	}, nil
}
