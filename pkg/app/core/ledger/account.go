package ledger

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Listing is the part of an account's inventory currently offered for sale.
// Quantity 0 means no active listing; Price is kept so a later buy against a
// re-activated listing never sees a zero price.
type Listing struct {
	Quantity uint64 `json:"quantity"`
	Price    uint64 `json:"price"` // settlement-currency units per goods unit
}

// Active returns true if the listing has quantity for sale
func (l Listing) Active() bool {
	return l.Quantity > 0
}

// GlobalConfig is the ledger-wide singleton. Owner is fixed at construction.
type GlobalConfig struct {
	Owner                common.Address `json:"owner"`
	UnitPrice            uint64         `json:"unitPrice"`
	CommissionRate       uint64         `json:"commissionRate"` // percent, 0-100
	ReserveCap           uint64         `json:"reserveCap"`
	CurrentReserve       uint64         `json:"currentReserve"` // sum of all listing quantities
	MaxListingPerAccount uint64         `json:"maxListingPerAccount"`
}

// MaxCommissionRate is the upper bound for CommissionRate (100%)
const MaxCommissionRate = 100

// Validate checks config invariants
func (c GlobalConfig) Validate() error {
	if c.Owner == (common.Address{}) {
		return fmt.Errorf("owner address must be set")
	}
	if c.UnitPrice == 0 {
		return fmt.Errorf("%w: unit price must be positive", ErrInvalidPrice)
	}
	if c.CommissionRate > MaxCommissionRate {
		return fmt.Errorf("%w: commission rate %d exceeds %d", ErrInvalidPrice, c.CommissionRate, MaxCommissionRate)
	}
	if c.CurrentReserve > c.ReserveCap {
		return fmt.Errorf("%w: reserve %d above cap %d", ErrReserveCapExceeded, c.CurrentReserve, c.ReserveCap)
	}
	return nil
}

// Trade is the settlement record of one successful buy
type Trade struct {
	ID          string         `json:"id"`
	Buyer       common.Address `json:"buyer"`
	Seller      common.Address `json:"seller"`
	Quantity    uint64         `json:"quantity"`
	Price       uint64         `json:"price"`
	ProductCost uint64         `json:"productCost"` // paid to seller
	Commission  uint64         `json:"commission"`  // paid to owner
	TotalCost   uint64         `json:"totalCost"`   // debited from buyer
	Timestamp   int64          `json:"timestamp"`   // Unix milliseconds
}

// AccountState is one account's balances and listing read together
type AccountState struct {
	Currency  uint64
	Inventory uint64 // gross holdings, listed included
	Listing   Listing
}

// Unlisted returns the inventory not offered for sale
func (a AccountState) Unlisted() uint64 {
	if a.Listing.Quantity > a.Inventory {
		return 0
	}
	return a.Inventory - a.Listing.Quantity
}

// ChangeSet holds every key an operation writes, with its full new value.
// It is the only thing that ever reaches the Store and the Persister.
type ChangeSet struct {
	Currency  map[common.Address]uint64
	Inventory map[common.Address]uint64
	Listings  map[common.Address]Listing
	Config    *GlobalConfig // nil if unchanged
	Trade     *Trade        // non-nil only for buy
}

func newChangeSet() *ChangeSet {
	return &ChangeSet{
		Currency:  make(map[common.Address]uint64),
		Inventory: make(map[common.Address]uint64),
		Listings:  make(map[common.Address]Listing),
	}
}

// Empty returns true if the change set writes nothing
func (cs *ChangeSet) Empty() bool {
	return len(cs.Currency) == 0 && len(cs.Inventory) == 0 && len(cs.Listings) == 0 &&
		cs.Config == nil && cs.Trade == nil
}

// Snapshot is a point-in-time copy of the whole ledger
type Snapshot struct {
	Config    GlobalConfig
	Currency  map[common.Address]uint64
	Inventory map[common.Address]uint64
	Listings  map[common.Address]Listing
}

// ListedTotal sums all listing quantities. Used to audit CurrentReserve.
func (s *Snapshot) ListedTotal() (uint64, bool) {
	var total uint64
	for _, l := range s.Listings {
		next := total + l.Quantity
		if next < total {
			return 0, false
		}
		total = next
	}
	return total, true
}

// Validate checks every ledger invariant against the snapshot
func (s *Snapshot) Validate() error {
	if err := s.Config.Validate(); err != nil {
		return err
	}
	listed, ok := s.ListedTotal()
	if !ok {
		return fmt.Errorf("%w: listed total", ErrOverflow)
	}
	if listed != s.Config.CurrentReserve {
		return fmt.Errorf("reserve %d does not match listed total %d", s.Config.CurrentReserve, listed)
	}
	for addr, l := range s.Listings {
		if l.Quantity > s.Inventory[addr] {
			return fmt.Errorf("listing of %s (%d) exceeds inventory (%d)", addr.Hex(), l.Quantity, s.Inventory[addr])
		}
	}
	return nil
}
