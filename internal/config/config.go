// Package config loads the faucet server's and snapshot builder's runtime
// configuration from environment variables into plain, explicit-fields
// structs.
package config

import (
	"os"
	"strconv"
)

// ServerConfig configures the HTTP claim server (cmd/faucetd).
type ServerConfig struct {
	Port        int
	DBPath      string
	MintURL     string
	RPCURL      string
	RPCUser     string
	RPCPass     string
	CORSOrigin  string
	LogLevel    string
	LogFile     string
	HRP         string
}

// ServerFromEnv loads ServerConfig from FAUCET_* environment variables,
// applying documented defaults for anything unset.
func ServerFromEnv() ServerConfig {
	return ServerConfig{
		Port:       envInt("FAUCET_PORT", 3000),
		DBPath:     envStr("FAUCET_DB_PATH", "faucet.db"),
		MintURL:    envStr("FAUCET_MINT_URL", ""),
		RPCURL:     envStr("FAUCET_RPC_URL", ""),
		RPCUser:    envStr("FAUCET_RPC_USER", ""),
		RPCPass:    envStr("FAUCET_RPC_PASS", ""),
		CORSOrigin: envStr("FAUCET_CORS_ORIGIN", "*"),
		LogLevel:   envStr("FAUCET_LOG_LEVEL", "info"),
		LogFile:    envStr("FAUCET_LOG_FILE", "faucetd.log"),
		HRP:        envStr("FAUCET_HRP", "alpha"),
	}
}

// SnapshotConfig configures the one-shot snapshot builder (cmd/faucet-snapshot).
// Its fields are populated from CLI flags rather than the environment; this
// type just gives the builder's main package a single value to pass around.
type SnapshotConfig struct {
	RPCURL      string
	RPCUser     string
	RPCPass     string
	BlockHeight int64
	HRP         string
	OutputPath  string
	BatchSize   int
	MintURL     string
}

func envStr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
