// Package msghash builds the canonical claim message and its digest.
package msghash

import (
	"crypto/sha256"
	"fmt"

	"github.com/alpha-labs/alpha-faucet/internal/ferr"
)

// MessagePrefix is prepended to every signed message, domain-separating
// faucet claims from any other signature scheme that might reuse the same
// keys.
const MessagePrefix = "Alpha Signed Message:\n"

// Build returns the canonical ASCII claim message:
// "<addr>:<destinationID>:<amount>".
func Build(addrNormalized, destinationID string, amount uint64) string {
	return fmt.Sprintf("%s:%s:%d", addrNormalized, destinationID, amount)
}

// Digest returns the 32-byte double-SHA256 digest of the CompactSize-framed,
// prefixed message, following Bitcoin's signed-message convention.
func Digest(message string) ([32]byte, error) {
	var out [32]byte
	encoded, err := encodePrefixed(message)
	if err != nil {
		return out, err
	}
	first := sha256.Sum256(encoded)
	out = sha256.Sum256(first[:])
	return out, nil
}

func encodePrefixed(message string) ([]byte, error) {
	prefix := []byte(MessagePrefix)
	msg := []byte(message)

	prefixLen, err := compactSize(uint64(len(prefix)))
	if err != nil {
		return nil, err
	}
	msgLen, err := compactSize(uint64(len(msg)))
	if err != nil {
		return nil, err
	}

	buf := make([]byte, 0, len(prefixLen)+len(prefix)+len(msgLen)+len(msg))
	buf = append(buf, prefixLen...)
	buf = append(buf, prefix...)
	buf = append(buf, msgLen...)
	buf = append(buf, msg...)
	return buf, nil
}

// compactSize is Bitcoin's CompactSize varint: n<253 -> 1 byte; n<2^16 ->
// 0xFD + LE u16; n<2^32 -> 0xFE + LE u32; larger -> error. Prefix/message
// lengths here are always tiny, so the 0xFF/u64 form is never needed.
func compactSize(n uint64) ([]byte, error) {
	switch {
	case n < 253:
		return []byte{byte(n)}, nil
	case n <= 0xFFFF:
		return []byte{0xFD, byte(n), byte(n >> 8)}, nil
	case n <= 0xFFFFFFFF:
		return []byte{0xFE, byte(n), byte(n >> 8), byte(n >> 16), byte(n >> 24)}, nil
	default:
		return nil, ferr.New(ferr.Internal, "compact size value too large: %d", n)
	}
}
