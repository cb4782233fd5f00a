// Package addr implements the L1 address codec: bech32 P2WPKH, witness
// version 0, 20-byte witness program.
package addr

import (
	"crypto/sha256"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // HASH160 requires RIPEMD160; no replacement exists.

	"github.com/alpha-labs/alpha-faucet/internal/ferr"
)

// DefaultHRP is the human-readable prefix used when none is configured.
const DefaultHRP = "alpha"

const (
	minLen = 14
	maxLen = 74

	// charset is the bech32 data-part alphabet (BIP-173).
	charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"
)

// Codec encodes/decodes addresses for a single configured HRP. The HRP is
// the one piece of chain-specific state, so it is threaded through a small
// value type instead of package-level globals.
type Codec struct {
	HRP string
}

// New returns a Codec for the given HRP, defaulting to DefaultHRP when hrp
// is empty.
func New(hrp string) Codec {
	if hrp == "" {
		hrp = DefaultHRP
	}
	return Codec{HRP: hrp}
}

// ValidateResult is the outcome of Validate.
type ValidateResult struct {
	Valid      bool
	Normalized string
	Reason     string
}

// Validate runs the format and decoding checks in order and reports the
// first failure reason, if any.
func (c Codec) Validate(addrRaw string) ValidateResult {
	fail := func(reason string) ValidateResult {
		return ValidateResult{Valid: false, Reason: reason}
	}

	if addrRaw == "" {
		return fail("empty address")
	}
	lower := strings.ToLower(addrRaw)

	prefix := c.HRP + "1"
	if !strings.HasPrefix(lower, prefix) {
		return fail("missing hrp prefix " + prefix)
	}
	if len(lower) < minLen || len(lower) > maxLen {
		return fail("invalid length")
	}
	sep := strings.LastIndexByte(lower, '1')
	data := lower[sep+1:]
	for _, r := range data {
		if strings.IndexRune(charset, r) < 0 {
			return fail("invalid bech32 character")
		}
	}

	hrp, words, err := bech32.DecodeNoLimit(lower)
	if err != nil {
		return fail("bech32 checksum invalid")
	}
	if hrp != c.HRP {
		return fail("hrp mismatch")
	}
	if len(words) == 0 {
		return fail("empty data section")
	}
	if words[0] != 0 {
		return fail("unsupported witness version")
	}
	prog, err := bech32.ConvertBits(words[1:], 5, 8, false)
	if err != nil {
		return fail("invalid witness program encoding")
	}
	if len(prog) != 20 {
		return fail("witness program must be 20 bytes")
	}

	return ValidateResult{Valid: true, Normalized: lower}
}

// Decode returns the witness version and 20-byte program of addr. Callers
// must have already validated addr (or accept InvalidAddress on failure).
func (c Codec) Decode(addrRaw string) (witnessVersion byte, pubkeyHash [20]byte, err error) {
	res := c.Validate(addrRaw)
	if !res.Valid {
		return 0, pubkeyHash, ferr.New(ferr.InvalidAddress, "%s", res.Reason)
	}
	_, words, decErr := bech32.DecodeNoLimit(res.Normalized)
	if decErr != nil {
		return 0, pubkeyHash, ferr.Wrap(ferr.InvalidAddress, decErr, "bech32 decode")
	}
	prog, convErr := bech32.ConvertBits(words[1:], 5, 8, false)
	if convErr != nil {
		return 0, pubkeyHash, ferr.Wrap(ferr.InvalidAddress, convErr, "bit conversion")
	}
	copy(pubkeyHash[:], prog)
	return 0, pubkeyHash, nil
}

// Encode builds a witness-version-0 bech32 address from a 20-byte witness
// program.
func (c Codec) Encode(pubkeyHash []byte) (string, error) {
	if len(pubkeyHash) != 20 {
		return "", ferr.New(ferr.InvalidAddress, "pubkey hash must be 20 bytes, got %d", len(pubkeyHash))
	}
	words, err := bech32.ConvertBits(pubkeyHash, 8, 5, true)
	if err != nil {
		return "", ferr.Wrap(ferr.InvalidAddress, err, "bit conversion")
	}
	data := make([]byte, 0, len(words)+1)
	data = append(data, 0) // witness version 0
	data = append(data, words...)
	out, err := bech32.Encode(c.HRP, data)
	if err != nil {
		return "", ferr.Wrap(ferr.InvalidAddress, err, "bech32 encode")
	}
	return out, nil
}

// FromPubkey derives the address for a 33-byte compressed secp256k1 pubkey:
// HASH160 = RIPEMD160(SHA256(pubkey)), then Encode.
func (c Codec) FromPubkey(compressedPubkey []byte) (string, error) {
	if len(compressedPubkey) != 33 {
		return "", ferr.New(ferr.InvalidAddress, "compressed pubkey must be 33 bytes, got %d", len(compressedPubkey))
	}
	h := Hash160(compressedPubkey)
	return c.Encode(h)
}

// Hash160 computes RIPEMD160(SHA256(data)), the standard witness-program
// derivation for P2WPKH.
func Hash160(data []byte) []byte {
	sh := sha256.Sum256(data)
	r := ripemd160.New()
	r.Write(sh[:])
	return r.Sum(nil)
}
