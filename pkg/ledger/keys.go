package ledger

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Pebble key schema. Every family shares a prefix so it can be range-scanned,
// and numeric components are zero-padded so they sort lexicographically.
const (
	prefixAccount = "acc:"  // ledger account, keyed by base58 address
	prefixSlot    = "slot:" // committed slot record
	prefixReceipt = "rcpt:" // execution receipt, keyed by signature
)

// accountKey returns "acc:{base58}"
func accountKey(key solana.PublicKey) []byte {
	return []byte(prefixAccount + key.String())
}

// slotKey returns "slot:{slot}" with the slot padded to 20 digits
func slotKey(slot uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixSlot, slot))
}

func receiptKey(signature string) []byte {
	return []byte(prefixReceipt + signature)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
