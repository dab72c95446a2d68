package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
)

// PebbleStore persists ledger state. It implements ledger.Persister so the
// engine writes each operation's changes before they become visible.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

// NewMemPebbleStore opens a store backed by an in-memory filesystem
func NewMemPebbleStore() (*PebbleStore, error) {
	db, err := pebble.Open("", &pebble.Options{FS: vfs.NewMem()})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

var _ ledger.Persister = (*PebbleStore)(nil)

// Commit writes a change set in a single synced batch
func (s *PebbleStore) Commit(cs *ledger.ChangeSet) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for addr, bal := range cs.Currency {
		if err := setOrDeleteUint64(batch, currencyKey(addr), bal); err != nil {
			return err
		}
	}
	for addr, inv := range cs.Inventory {
		if err := setOrDeleteUint64(batch, inventoryKey(addr), inv); err != nil {
			return err
		}
	}
	for addr, l := range cs.Listings {
		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("failed to marshal listing: %w", err)
		}
		if err := batch.Set(listingKey(addr), data, nil); err != nil {
			return err
		}
	}
	if cs.Config != nil {
		data, err := json.Marshal(cs.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		if err := batch.Set([]byte(keyConfig), data, nil); err != nil {
			return err
		}
	}
	if cs.Trade != nil {
		data, err := json.Marshal(cs.Trade)
		if err != nil {
			return fmt.Errorf("failed to marshal trade: %w", err)
		}
		if err := batch.Set(tradeKey(cs.Trade.Timestamp, cs.Trade.ID), data, nil); err != nil {
			return err
		}
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func setOrDeleteUint64(batch *pebble.Batch, key []byte, v uint64) error {
	if v == 0 {
		return batch.Delete(key, nil)
	}
	return batch.Set(key, encodeUint64(v), nil)
}

// SaveGenesis stores the initial config if none exists yet
func (s *PebbleStore) SaveGenesis(cfg ledger.GlobalConfig) error {
	_, closer, err := s.db.Get([]byte(keyConfig))
	if err == nil {
		closer.Close()
		return nil
	}
	if !errors.Is(err, pebble.ErrNotFound) {
		return fmt.Errorf("failed to read config: %w", err)
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := s.db.Set([]byte(keyConfig), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// LoadSnapshot rebuilds the full ledger state.
// Returns nil if no config has been stored.
func (s *PebbleStore) LoadSnapshot() (*ledger.Snapshot, error) {
	data, closer, err := s.db.Get([]byte(keyConfig))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}
	var cfg ledger.GlobalConfig
	err = json.Unmarshal(data, &cfg)
	closer.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	snap := &ledger.Snapshot{
		Config:    cfg,
		Currency:  make(map[common.Address]uint64),
		Inventory: make(map[common.Address]uint64),
		Listings:  make(map[common.Address]ledger.Listing),
	}

	if err := s.scanUint64(prefixCurrency, snap.Currency); err != nil {
		return nil, err
	}
	if err := s.scanUint64(prefixInventory, snap.Inventory); err != nil {
		return nil, err
	}
	err = s.scan(prefixListing, func(addr common.Address, value []byte) error {
		var l ledger.Listing
		if err := json.Unmarshal(value, &l); err != nil {
			return fmt.Errorf("failed to unmarshal listing: %w", err)
		}
		snap.Listings[addr] = l
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func (s *PebbleStore) scanUint64(prefix string, out map[common.Address]uint64) error {
	return s.scan(prefix, func(addr common.Address, value []byte) error {
		v, err := decodeUint64(value)
		if err != nil {
			return fmt.Errorf("failed to decode %s%s: %w", prefix, addr.Hex(), err)
		}
		out[addr] = v
		return nil
	})
}

// scan iterates every address-keyed entry under prefix
func (s *PebbleStore) scan(prefix string, fn func(addr common.Address, value []byte) error) error {
	p := []byte(prefix)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: p,
		UpperBound: keyUpperBound(p),
	})
	if err != nil {
		return fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		addr, err := addressFromKey(prefix, iter.Key())
		if err != nil {
			return err
		}
		if err := fn(addr, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// LoadRecentTrades loads the most recent N trades, newest first
func (s *PebbleStore) LoadRecentTrades(limit int) ([]*ledger.Trade, error) {
	prefix := []byte(prefixTrade)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open iterator: %w", err)
	}
	defer iter.Close()

	var trades []*ledger.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var trade ledger.Trade
		if err := json.Unmarshal(iter.Value(), &trade); err != nil {
			continue
		}
		trades = append(trades, &trade)
	}
	return trades, nil
}

// SaveNonce records the last accepted nonce for an account
func (s *PebbleStore) SaveNonce(addr common.Address, nonce uint64) error {
	if err := s.db.Set(nonceKey(addr), encodeUint64(nonce), pebble.Sync); err != nil {
		return fmt.Errorf("failed to save nonce: %w", err)
	}
	return nil
}

// LoadNonce returns the last accepted nonce, or 0 if none
func (s *PebbleStore) LoadNonce(addr common.Address) (uint64, error) {
	data, closer, err := s.db.Get(nonceKey(addr))
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce: %w", err)
	}
	defer closer.Close()
	return decodeUint64(data)
}
