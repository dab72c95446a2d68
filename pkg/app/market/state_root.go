package market

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
)

// StateRoot hashes the full ledger state deterministically:
// config fields, then currency, inventory and listings sorted by address.
func StateRoot(snap *ledger.Snapshot) common.Hash {
	h := sha3.NewLegacyKeccak256()

	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}

	cfg := snap.Config
	h.Write(cfg.Owner.Bytes())
	writeUint(cfg.UnitPrice)
	writeUint(cfg.CommissionRate)
	writeUint(cfg.ReserveCap)
	writeUint(cfg.CurrentReserve)
	writeUint(cfg.MaxListingPerAccount)

	h.Write([]byte("cur"))
	for _, addr := range sortedAddrs(snap.Currency) {
		h.Write(addr.Bytes())
		writeUint(snap.Currency[addr])
	}
	h.Write([]byte("inv"))
	for _, addr := range sortedAddrs(snap.Inventory) {
		h.Write(addr.Bytes())
		writeUint(snap.Inventory[addr])
	}
	h.Write([]byte("lst"))
	for _, addr := range sortedAddrs(snap.Listings) {
		l := snap.Listings[addr]
		h.Write(addr.Bytes())
		writeUint(l.Quantity)
		writeUint(l.Price)
	}

	var root common.Hash
	h.Sum(root[:0])
	return root
}

func sortedAddrs[V any](m map[common.Address]V) []common.Address {
	addrs := make([]common.Address, 0, len(m))
	for addr := range m {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return bytes.Compare(addrs[i][:], addrs[j][:]) < 0
	})
	return addrs
}

// StateRoot returns the root of the app's current ledger state
func (a *App) StateRoot() common.Hash {
	return StateRoot(a.engine.Snapshot())
}
