package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alpha-labs/alpha-faucet/internal/l1rpc"
)

// fakeChain is a synthetic block-by-block chain for exercising the replay
// fallback without a live RPC node.
type fakeChain struct {
	hashes map[int64]string
	blocks map[string]*l1rpc.BlockVerbose2
}

func (f *fakeChain) GetBlockHash(height int64) (string, error) {
	hash, ok := f.hashes[height]
	if !ok {
		return "", fmt.Errorf("no block at height %d", height)
	}
	return hash, nil
}

func (f *fakeChain) GetBlockVerbose2(hash string) (*l1rpc.BlockVerbose2, error) {
	block, ok := f.blocks[hash]
	if !ok {
		return nil, fmt.Errorf("no block %s", hash)
	}
	return block, nil
}

func newBlockVerbose2(height int64, txid string, vinTxid string, vinVout int, voutAddress string, voutAmount float64) *l1rpc.BlockVerbose2 {
	block := &l1rpc.BlockVerbose2{Height: height}
	tx := struct {
		Txid string `json:"txid"`
		Vin  []struct {
			Txid string `json:"txid"`
			Vout int    `json:"vout"`
		} `json:"vin"`
		Vout []struct {
			N            int     `json:"n"`
			Value        float64 `json:"value"`
			ScriptPubKey struct {
				Address string `json:"address"`
			} `json:"scriptPubKey"`
		} `json:"vout"`
	}{
		Txid: txid,
		Vin: []struct {
			Txid string `json:"txid"`
			Vout int    `json:"vout"`
		}{
			{Txid: vinTxid, Vout: vinVout},
		},
		Vout: []struct {
			N            int     `json:"n"`
			Value        float64 `json:"value"`
			ScriptPubKey struct {
				Address string `json:"address"`
			} `json:"scriptPubKey"`
		}{
			{N: 0, Value: voutAmount, ScriptPubKey: struct {
				Address string `json:"address"`
			}{Address: voutAddress}},
		},
	}
	block.Tx = append(block.Tx, tx)
	return block
}

func TestAggregateFromScanSumsMultipleOutputs(t *testing.T) {
	result := &l1rpc.ScanUTXOSetResult{
		Unspents: []struct {
			TxID    string  `json:"txid"`
			Vout    int     `json:"vout"`
			Address string  `json:"address"`
			Amount  float64 `json:"amount"`
			Height  int64   `json:"height"`
		}{
			{TxID: "a", Vout: 0, Address: "alpha1abc", Amount: 0.5, Height: 10},
			{TxID: "b", Vout: 1, Address: "ALPHA1ABC", Amount: 1.0, Height: 20},
			{TxID: "c", Vout: 0, Address: "alpha1other", Amount: 2.0, Height: 5},
			{TxID: "d", Vout: 0, Address: "alpha1abc", Amount: 3.0, Height: 999}, // above target height
			{TxID: "e", Vout: 0, Address: "other1xyz", Amount: 5.0, Height: 1},   // wrong hrp
		},
	}

	out := aggregateFromScan(result, 100, "alpha")
	require.Equal(t, uint64(150_000_000), out["alpha1abc"])
	require.Equal(t, uint64(200_000_000), out["alpha1other"])
	require.NotContains(t, out, "other1xyz")
}

func TestAggregateFromReplayDropsOutputSpentInLaterBlock(t *testing.T) {
	// Block 0: coinbase tx0 creates tx0:0 -> alpha1a (10 coins).
	// Block 1: tx1 spends tx0:0 and creates tx1:0 -> alpha1b (10 coins).
	// alpha1a's output no longer exists once the chain reaches block 1, so
	// only alpha1b should be credited.
	block0 := newBlockVerbose2(0, "tx0", "", 0, "alpha1a", 10.0)
	block1 := newBlockVerbose2(1, "tx1", "tx0", 0, "alpha1b", 10.0)

	chain := &fakeChain{
		hashes: map[int64]string{0: "hash0", 1: "hash1"},
		blocks: map[string]*l1rpc.BlockVerbose2{
			"hash0": block0,
			"hash1": block1,
		},
	}

	out, err := aggregateFromReplay(chain, 1, "alpha")
	require.NoError(t, err)
	require.NotContains(t, out, "alpha1a")
	require.Equal(t, uint64(1_000_000_000), out["alpha1b"])
}

func TestRoundToSatoshis(t *testing.T) {
	require.Equal(t, uint64(100_000_000), roundToSatoshis(1.0))
	require.Equal(t, uint64(150_000_000), roundToSatoshis(1.5))
	require.Equal(t, uint64(1), roundToSatoshis(0.00000001))
}

func TestRunRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "existing.db")
	require.NoError(t, writeEmptyFile(path))

	_, err := Run(nil, Config{OutputPath: path})
	require.Error(t, err)
}

func writeEmptyFile(path string) error {
	return os.WriteFile(path, []byte{}, 0o644)
}
