package ledger

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypermarket/pkg/util"
)

// Engine executes ledger operations one at a time. Each operation validates
// and computes its full change set against a private overlay, persists it,
// and only then applies it to the Store. Readers never see a half-applied op.
type Engine struct {
	mu        sync.RWMutex
	store     *Store
	persister Persister
	clock     util.Clock
	log       *zap.SugaredLogger
}

// Option configures an Engine
type Option func(*Engine)

// WithPersister commits every successful change set before it is applied
func WithPersister(p Persister) Option {
	return func(e *Engine) { e.persister = p }
}

// WithLogger sets the engine logger (default: nop)
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l.Sugar() }
}

// WithClock sets the clock used for trade timestamps
func WithClock(c util.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// NewEngine creates an empty ledger with the given config.
// CurrentReserve must be 0 since no listings exist yet.
func NewEngine(cfg GlobalConfig, opts ...Option) (*Engine, error) {
	if cfg.CurrentReserve != 0 {
		return nil, fmt.Errorf("new ledger must start with zero reserve, got %d", cfg.CurrentReserve)
	}
	return Restore(&Snapshot{Config: cfg}, opts...)
}

// Restore rebuilds an engine from a persisted snapshot after checking that
// the snapshot satisfies every ledger invariant
func Restore(snap *Snapshot, opts ...Option) (*Engine, error) {
	if err := snap.Validate(); err != nil {
		return nil, fmt.Errorf("invalid ledger state: %w", err)
	}

	e := &Engine{
		store: storeFromSnapshot(snap),
		clock: util.RealClock{},
		log:   zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// execute runs fn against a fresh op under the write lock and commits its
// change set only if fn succeeds
func (e *Engine) execute(name string, fn func(o *op) error) (*ChangeSet, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o := newOp(e.store)
	if err := fn(o); err != nil {
		e.log.Debugw("operation_rejected", "op", name, "kind", Kind(err), "err", err)
		return nil, err
	}

	if o.cs.Empty() {
		return o.cs, nil
	}

	if e.persister != nil {
		if err := e.persister.Commit(o.cs); err != nil {
			e.log.Errorw("persist_failed", "op", name, "err", err)
			return nil, fmt.Errorf("failed to persist %s: %w", name, err)
		}
	}

	e.store.apply(o.cs)
	return o.cs, nil
}

// AddListing lists quantity units of the caller's unlisted inventory at price
func (e *Engine) AddListing(caller common.Address, quantity, price uint64) error {
	_, err := e.execute("add_listing", func(o *op) error {
		return o.addToListing(caller, quantity, price)
	})
	if err == nil {
		e.log.Infow("listing_added", "account", caller.Hex(), "quantity", quantity, "price", price)
	}
	return err
}

// RemoveListing withdraws quantity units from the caller's listing
func (e *Engine) RemoveListing(caller common.Address, quantity uint64) error {
	_, err := e.execute("remove_listing", func(o *op) error {
		return o.removeFromListing(caller, quantity)
	})
	if err == nil {
		e.log.Infow("listing_removed", "account", caller.Hex(), "quantity", quantity)
	}
	return err
}

// Buy purchases quantity units from seller's listing; caller is the buyer
func (e *Engine) Buy(caller, seller common.Address, quantity uint64) (*Trade, error) {
	var trade *Trade
	_, err := e.execute("buy", func(o *op) error {
		t, err := o.buy(caller, seller, quantity, e.clock.Now().UnixMilli())
		trade = t
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Infow("trade_executed",
		"trade_id", trade.ID,
		"buyer", trade.Buyer.Hex(),
		"seller", trade.Seller.Hex(),
		"quantity", trade.Quantity,
		"price", trade.Price,
		"commission", trade.Commission)
	return trade, nil
}

// WithdrawCurrency debits amount from the caller's currency balance
func (e *Engine) WithdrawCurrency(caller common.Address, amount uint64) error {
	_, err := e.execute("withdraw_currency", func(o *op) error {
		if amount == 0 {
			return fmt.Errorf("%w: withdraw amount must be positive", ErrInvalidQuantity)
		}
		bal := o.currency(caller)
		if bal < amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, bal, amount)
		}
		o.setCurrency(caller, bal-amount)
		return nil
	})
	if err == nil {
		e.log.Infow("currency_withdrawn", "account", caller.Hex(), "amount", amount)
	}
	return err
}

// ==============================
// Read-only accessors
// ==============================

func (e *Engine) UnitPrice() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.config.UnitPrice
}

func (e *Engine) CommissionRate() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.config.CommissionRate
}

func (e *Engine) ReserveCap() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.config.ReserveCap
}

func (e *Engine) CurrentReserve() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.config.CurrentReserve
}

func (e *Engine) MaxListingPerAccount() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.config.MaxListingPerAccount
}

func (e *Engine) Owner() common.Address {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.config.Owner
}

// Config returns a copy of the whole global config
func (e *Engine) Config() GlobalConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Config()
}

func (e *Engine) CurrencyBalance(addr common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.CurrencyBalance(addr)
}

func (e *Engine) InventoryBalance(addr common.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.InventoryBalance(addr)
}

func (e *Engine) Listing(addr common.Address) Listing {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.Listing(addr)
}

// Account returns addr's balances and listing from one consistent read
func (e *Engine) Account(addr common.Address) AccountState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return AccountState{
		Currency:  e.store.CurrencyBalance(addr),
		Inventory: e.store.InventoryBalance(addr),
		Listing:   e.store.Listing(addr),
	}
}

// Snapshot returns a consistent deep copy of the ledger
func (e *Engine) Snapshot() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.store.snapshot()
}
