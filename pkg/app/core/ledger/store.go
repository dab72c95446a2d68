package ledger

import (
	"github.com/ethereum/go-ethereum/common"
)

// Persister durably commits a change set. Commit must be all-or-nothing: if
// it returns an error nothing was written.
type Persister interface {
	Commit(cs *ChangeSet) error
}

// Store is the authoritative in-memory ledger. It is never mutated except
// through apply, and only the Engine (holding its lock) calls apply.
type Store struct {
	currency  map[common.Address]uint64
	inventory map[common.Address]uint64
	listings  map[common.Address]Listing
	config    GlobalConfig
}

func newStore(cfg GlobalConfig) *Store {
	return &Store{
		currency:  make(map[common.Address]uint64),
		inventory: make(map[common.Address]uint64),
		listings:  make(map[common.Address]Listing),
		config:    cfg,
	}
}

func storeFromSnapshot(snap *Snapshot) *Store {
	s := newStore(snap.Config)
	for addr, v := range snap.Currency {
		if v != 0 {
			s.currency[addr] = v
		}
	}
	for addr, v := range snap.Inventory {
		if v != 0 {
			s.inventory[addr] = v
		}
	}
	for addr, l := range snap.Listings {
		s.listings[addr] = l
	}
	return s
}

// CurrencyBalance returns 0 for unknown accounts
func (s *Store) CurrencyBalance(addr common.Address) uint64 {
	return s.currency[addr]
}

// InventoryBalance returns gross goods holdings (listed + unlisted)
func (s *Store) InventoryBalance(addr common.Address) uint64 {
	return s.inventory[addr]
}

// Listing returns the zero listing for unknown accounts
func (s *Store) Listing(addr common.Address) Listing {
	return s.listings[addr]
}

// Config returns a copy of the global config
func (s *Store) Config() GlobalConfig {
	return s.config
}

// apply replaces every key in cs with its new value. Zero balances are
// dropped so absent and zero stay indistinguishable.
func (s *Store) apply(cs *ChangeSet) {
	for addr, v := range cs.Currency {
		if v == 0 {
			delete(s.currency, addr)
		} else {
			s.currency[addr] = v
		}
	}
	for addr, v := range cs.Inventory {
		if v == 0 {
			delete(s.inventory, addr)
		} else {
			s.inventory[addr] = v
		}
	}
	for addr, l := range cs.Listings {
		s.listings[addr] = l
	}
	if cs.Config != nil {
		s.config = *cs.Config
	}
}

func (s *Store) snapshot() *Snapshot {
	snap := &Snapshot{
		Config:    s.config,
		Currency:  make(map[common.Address]uint64, len(s.currency)),
		Inventory: make(map[common.Address]uint64, len(s.inventory)),
		Listings:  make(map[common.Address]Listing, len(s.listings)),
	}
	for addr, v := range s.currency {
		snap.Currency[addr] = v
	}
	for addr, v := range s.inventory {
		snap.Inventory[addr] = v
	}
	for addr, l := range s.listings {
		snap.Listings[addr] = l
	}
	return snap
}

// op is the scratch state of one in-flight operation: reads fall through to
// the store, writes land in the change set. Dropping an op discards the whole
// operation, which is what makes every failure leave the ledger untouched.
type op struct {
	store *Store
	cs    *ChangeSet
}

func newOp(store *Store) *op {
	return &op{store: store, cs: newChangeSet()}
}

func (o *op) currency(addr common.Address) uint64 {
	if v, ok := o.cs.Currency[addr]; ok {
		return v
	}
	return o.store.currency[addr]
}

func (o *op) setCurrency(addr common.Address, v uint64) {
	o.cs.Currency[addr] = v
}

func (o *op) inventory(addr common.Address) uint64 {
	if v, ok := o.cs.Inventory[addr]; ok {
		return v
	}
	return o.store.inventory[addr]
}

func (o *op) setInventory(addr common.Address, v uint64) {
	o.cs.Inventory[addr] = v
}

func (o *op) listing(addr common.Address) Listing {
	if l, ok := o.cs.Listings[addr]; ok {
		return l
	}
	return o.store.listings[addr]
}

func (o *op) setListing(addr common.Address, l Listing) {
	o.cs.Listings[addr] = l
}

func (o *op) config() GlobalConfig {
	if o.cs.Config != nil {
		return *o.cs.Config
	}
	return o.store.config
}

func (o *op) setConfig(cfg GlobalConfig) {
	o.cs.Config = &cfg
}
