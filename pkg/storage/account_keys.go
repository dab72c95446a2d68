package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger key schema for Pebble storage
//
//   cfg                         → GlobalConfig (JSON)
//   cur:<address>               → currency balance (uint64, big-endian)
//   inv:<address>               → gross inventory (uint64, big-endian)
//   lst:<address>               → Listing (JSON)
//   nonce:<address>             → last accepted tx nonce (uint64, big-endian)
//   trade:<timestamp>:<tradeID> → Trade (JSON)
//
// Zero balances are deleted rather than stored.

// Key prefixes
const (
	prefixCurrency  = "cur:"
	prefixInventory = "inv:"
	prefixListing   = "lst:"
	prefixNonce     = "nonce:"
	prefixTrade     = "trade:"
	keyConfig       = "cfg"
)

// addressKey returns "{prefix}{address}"
func addressKey(prefix string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s", prefix, addr.Hex()))
}

func currencyKey(addr common.Address) []byte  { return addressKey(prefixCurrency, addr) }
func inventoryKey(addr common.Address) []byte { return addressKey(prefixInventory, addr) }
func listingKey(addr common.Address) []byte   { return addressKey(prefixListing, addr) }
func nonceKey(addr common.Address) []byte     { return addressKey(prefixNonce, addr) }

// tradeKey returns the key for a trade
// Format: "trade:{timestamp}:{tradeID}"
// Timestamp is zero-padded (20 digits) for lexicographic sorting
func tradeKey(timestamp int64, tradeID string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixTrade, timestamp, tradeID))
}

// addressFromKey extracts the address from a "{prefix}{address}" key
func addressFromKey(prefix string, key []byte) (common.Address, error) {
	if len(key) != len(prefix)+42 { // 42 = "0x" + 40 hex chars
		return common.Address{}, fmt.Errorf("invalid key length: %d", len(key))
	}
	addrHex := string(key[len(prefix):])
	if !common.IsHexAddress(addrHex) {
		return common.Address{}, fmt.Errorf("invalid address in key: %s", addrHex)
	}
	return common.HexToAddress(addrHex), nil
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
