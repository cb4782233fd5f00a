// Command faucet-snapshot is the operator CLI for the one-shot UTXO
// snapshot: it populates a fresh balance store at a chosen L1 block height
// and then exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/alpha-labs/alpha-faucet/internal/config"
	"github.com/alpha-labs/alpha-faucet/internal/snapshot"
)

func loadConfig() config.SnapshotConfig {
	rpcURL := flag.String("rpc", "", "source-chain JSON-RPC URL")
	rpcUser := flag.String("rpc-user", "", "source-chain RPC username")
	rpcPass := flag.String("rpc-pass", "", "source-chain RPC password")
	blockHeight := flag.Int64("block", 0, "target block height to snapshot")
	hrp := flag.String("hrp", "alpha", "bech32 human-readable prefix for eligible addresses")
	output := flag.String("output", "faucet.db", "path to the output database file (must not exist)")
	batchSize := flag.Int("batch-size", 5000, "insert batch size (reserved for future chunked inserts)")
	mintURL := flag.String("mint-url", "", "upstream mint endpoint to record in snapshot metadata")
	flag.Parse()

	return config.SnapshotConfig{
		RPCURL:      *rpcURL,
		RPCUser:     *rpcUser,
		RPCPass:     *rpcPass,
		BlockHeight: *blockHeight,
		HRP:         *hrp,
		OutputPath:  *output,
		BatchSize:   *batchSize,
		MintURL:     *mintURL,
	}
}

func main() {
	cfg := loadConfig()

	if cfg.RPCURL == "" {
		fmt.Fprintln(os.Stderr, "faucet-snapshot: --rpc is required")
		os.Exit(1)
	}
	if cfg.BlockHeight <= 0 {
		fmt.Fprintln(os.Stderr, "faucet-snapshot: --block must be a positive height")
		os.Exit(1)
	}

	summary, err := snapshot.Run(context.Background(), snapshot.Config{
		RPCURL:      cfg.RPCURL,
		RPCUser:     cfg.RPCUser,
		RPCPass:     cfg.RPCPass,
		BlockHeight: cfg.BlockHeight,
		HRP:         cfg.HRP,
		OutputPath:  cfg.OutputPath,
		MintURL:     cfg.MintURL,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "faucet-snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot complete: block=%d addresses=%d total_satoshis=%d fallback=%v (batch size %d unused: bulk insert runs in one transaction)\n",
		summary.BlockHeight, summary.AddressCount, summary.TotalAmount, summary.UsedFallback, cfg.BatchSize)
}
