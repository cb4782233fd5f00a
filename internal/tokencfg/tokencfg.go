// Package tokencfg holds the fixed token metadata constants advertised by
// the balance endpoint.
package tokencfg

const (
	ID          = "alpha-l1-proxy"
	Name        = "Alpha"
	Symbol      = "ALPHA"
	Decimals    = 8
	Description = "Proxy-minted token redeemable 1:1 against a snapshotted L1 balance."

	// SatoshisPerCoin is the smallest-unit scale factor.
	SatoshisPerCoin uint64 = 100_000_000
)

// ToCoinUnits converts an integer satoshi amount to its coin-unit float
// representation, used for display and for the upstream mint payload only —
// every durable balance stays an integer satoshi count.
func ToCoinUnits(satoshis uint64) float64 {
	return float64(satoshis) / float64(SatoshisPerCoin)
}
