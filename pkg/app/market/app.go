// Package market runs signed ledger transactions through the mempool and
// the ledger engine.
package market

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
	"github.com/uhyunpark/hypermarket/pkg/app/core/mempool"
	"github.com/uhyunpark/hypermarket/pkg/app/core/transaction"
	"github.com/uhyunpark/hypermarket/pkg/metrics"
	"github.com/uhyunpark/hypermarket/pkg/storage"
	"github.com/uhyunpark/hypermarket/pkg/util"
)

var (
	ErrMalformed   = errors.New("malformed transaction")
	ErrStaleNonce  = errors.New("nonce already used")
	ErrExpired     = errors.New("transaction expired")
	ErrMempoolFull = errors.New("mempool full")
)

// Kind extends ledger.Kind with the admission errors of this package
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformed):
		return "Malformed"
	case errors.Is(err, transaction.ErrBadSignature):
		return "BadSignature"
	case errors.Is(err, ErrStaleNonce):
		return "StaleNonce"
	case errors.Is(err, ErrExpired):
		return "Expired"
	case errors.Is(err, ErrMempoolFull):
		return "MempoolFull"
	}
	return ledger.Kind(err)
}

// NonceStore persists the last accepted nonce per caller
type NonceStore interface {
	LoadNonce(addr common.Address) (uint64, error)
	SaveNonce(addr common.Address, nonce uint64) error
}

// TradeHistory serves recent trades, newest first
type TradeHistory interface {
	LoadRecentTrades(limit int) ([]*ledger.Trade, error)
}

// Result is the outcome of one applied transaction
type Result struct {
	Hash   string             `json:"hash"`
	Type   transaction.TxType `json:"type,omitempty"`
	Caller common.Address     `json:"caller"`
	Kind   string             `json:"kind,omitempty"` // empty on success
	Error  string             `json:"error,omitempty"`
	Trade  *ledger.Trade      `json:"trade,omitempty"`
	Err    error              `json:"-"`
}

// OK returns true if the transaction was executed
func (r Result) OK() bool { return r.Err == nil }

type Config struct {
	MempoolSize   int   // 0 = unbounded
	MaxBatchBytes int64 // 0 = drain everything each tick
	TradeBuffer   int   // in-memory recent trades kept when no TradeHistory is set
}

func DefaultConfig() Config {
	return Config{
		MempoolSize:   10_000,
		MaxBatchBytes: 1 << 20,
		TradeBuffer:   1000,
	}
}

// App owns the engine and everything in front of it
type App struct {
	engine   *ledger.Engine
	verifier *transaction.Verifier
	mempool  *mempool.Mempool
	cfg      Config

	nonces  NonceStore
	history TradeHistory
	journal storage.Journal
	clock   util.Clock
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	// applyMu serializes batches so nonce checks and engine calls interleave
	// in mempool order
	applyMu   sync.Mutex
	nonceMu   sync.Mutex
	lastNonce map[common.Address]uint64

	recentMu sync.RWMutex
	recent   []*ledger.Trade // newest last

	listenersMu sync.RWMutex
	listeners   []func(Result)
}

type Option func(*App)

func WithNonceStore(s NonceStore) Option     { return func(a *App) { a.nonces = s } }
func WithTradeHistory(h TradeHistory) Option { return func(a *App) { a.history = h } }
func WithJournal(j storage.Journal) Option   { return func(a *App) { a.journal = j } }
func WithClock(c util.Clock) Option          { return func(a *App) { a.clock = c } }
func WithMetrics(m *metrics.Metrics) Option  { return func(a *App) { a.metrics = m } }
func WithLogger(l *zap.Logger) Option        { return func(a *App) { a.log = l.Sugar() } }

func NewApp(engine *ledger.Engine, verifier *transaction.Verifier, cfg Config, opts ...Option) *App {
	a := &App{
		engine:    engine,
		verifier:  verifier,
		mempool:   mempool.NewMempool(cfg.MempoolSize),
		cfg:       cfg,
		journal:   storage.NewNopJournal(),
		clock:     util.RealClock{},
		log:       zap.NewNop().Sugar(),
		lastNonce: make(map[common.Address]uint64),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.publishReserve()
	return a
}

func (a *App) Engine() *ledger.Engine           { return a.engine }
func (a *App) Verifier() *transaction.Verifier { return a.verifier }
func (a *App) Metrics() *metrics.Metrics       { return a.metrics }

// Subscribe registers fn to receive every applied transaction's result.
// fn runs on the apply goroutine and must not block.
func (a *App) Subscribe(fn func(Result)) {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()
	a.listeners = append(a.listeners, fn)
}

// TxHash returns the keccak hash of a raw transaction
func TxHash(raw []byte) string {
	return ethcrypto.Keccak256Hash(raw).Hex()
}

// SubmitTx authenticates raw and queues it. Only signature and encoding are
// checked here; nonce, deadline and ledger rules are checked when applied.
func (a *App) SubmitTx(raw []byte) (string, error) {
	hash := TxHash(raw)
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return hash, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := a.verifier.Verify(tx); err != nil {
		return hash, wrapVerifyErr(err)
	}
	if !a.mempool.PushRaw(raw) {
		a.metrics.IncMempoolDropped()
		return hash, ErrMempoolFull
	}
	a.metrics.SetMempoolPending(a.mempool.Len())
	return hash, nil
}

func wrapVerifyErr(err error) error {
	if errors.Is(err, transaction.ErrBadSignature) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrMalformed, err)
}

// PendingTxs returns the number of queued transactions
func (a *App) PendingTxs() int {
	return a.mempool.Len()
}

// ApplyPending drains one batch from the mempool and applies it in order
func (a *App) ApplyPending() []Result {
	a.applyMu.Lock()
	defer a.applyMu.Unlock()

	batch := a.mempool.SelectBatch(a.cfg.MaxBatchBytes)
	if len(batch) == 0 {
		return nil
	}

	start := time.Now()
	results := make([]Result, 0, len(batch))
	ok := 0
	for _, raw := range batch {
		res := a.applyTx(raw)
		if res.OK() {
			ok++
		}
		results = append(results, res)
		a.notify(res)
	}
	a.metrics.ObserveApply(time.Since(start))
	a.metrics.SetMempoolPending(a.mempool.Len())
	a.publishReserve()

	a.log.Infow("batch_applied", "txs", len(batch), "ok", ok, "rejected", len(batch)-ok)
	return results
}

// Run applies pending transactions every interval until ctx is done
func (a *App) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.log.Infow("apply_loop_started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			// Drain what is already queued so accepted txs are not lost
			for a.mempool.Len() > 0 {
				a.ApplyPending()
			}
			a.log.Infow("apply_loop_stopped")
			return
		case <-ticker.C:
			a.ApplyPending()
		}
	}
}

func (a *App) applyTx(raw []byte) Result {
	res := Result{Hash: TxHash(raw)}

	op, err := a.admit(raw)
	if op != nil {
		res.Type = op.Type
		res.Caller = op.Caller
	}
	if err == nil {
		res.Trade, err = a.execute(op)
	}

	res.Err = err
	res.Kind = Kind(err)
	if err != nil {
		res.Error = err.Error()
	}

	opName := "unknown"
	if op != nil {
		opName = string(op.Type)
	}
	result := res.Kind
	if result == "" {
		result = "ok"
	}
	a.metrics.ObserveOp(opName, result)
	if jerr := a.journal.Append(fmt.Sprintf("%s %s %s %s", res.Hash, opName, res.Caller.Hex(), result)); jerr != nil {
		a.log.Errorw("journal_append_failed", "hash", res.Hash, "err", jerr)
	}

	if err != nil {
		a.log.Debugw("tx_rejected", "hash", res.Hash, "op", opName, "kind", res.Kind, "err", err)
	}
	return res
}

// admit authenticates raw and consumes its nonce. A returned op with a
// non-nil error means the tx was authenticated but rejected.
func (a *App) admit(raw []byte) (*transaction.Op, error) {
	tx, err := transaction.ParseTransaction(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	op, err := a.verifier.Verify(tx)
	if err != nil {
		return nil, wrapVerifyErr(err)
	}

	if op.Deadline != 0 && uint64(a.clock.Now().Unix()) > op.Deadline {
		return op, fmt.Errorf("%w: deadline %d", ErrExpired, op.Deadline)
	}
	if err := a.useNonce(op.Caller, op.Nonce); err != nil {
		return op, err
	}
	return op, nil
}

// useNonce accepts nonce if it is above the caller's last one. Nonces are
// consumed even if the ledger later rejects the operation.
func (a *App) useNonce(caller common.Address, nonce uint64) error {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()

	last, err := a.loadNonceLocked(caller)
	if err != nil {
		return err
	}
	if nonce <= last {
		return fmt.Errorf("%w: nonce %d, last %d", ErrStaleNonce, nonce, last)
	}
	if a.nonces != nil {
		if err := a.nonces.SaveNonce(caller, nonce); err != nil {
			return fmt.Errorf("failed to save nonce: %w", err)
		}
	}
	a.lastNonce[caller] = nonce
	return nil
}

func (a *App) loadNonceLocked(caller common.Address) (uint64, error) {
	if n, ok := a.lastNonce[caller]; ok {
		return n, nil
	}
	if a.nonces == nil {
		return 0, nil
	}
	n, err := a.nonces.LoadNonce(caller)
	if err != nil {
		return 0, fmt.Errorf("failed to load nonce: %w", err)
	}
	a.lastNonce[caller] = n
	return n, nil
}

// Nonce returns the last accepted nonce for addr
func (a *App) Nonce(addr common.Address) (uint64, error) {
	a.nonceMu.Lock()
	defer a.nonceMu.Unlock()
	return a.loadNonceLocked(addr)
}

// execute dispatches an authenticated op to the engine
func (a *App) execute(op *transaction.Op) (*ledger.Trade, error) {
	e := a.engine
	switch op.Type {
	case transaction.TxSetUnitPrice:
		return nil, e.SetUnitPrice(op.Caller, op.Amount)
	case transaction.TxSetCommissionRate:
		return nil, e.SetCommissionRate(op.Caller, op.Amount)
	case transaction.TxSetReserveCap:
		return nil, e.SetReserveCap(op.Caller, op.Amount)
	case transaction.TxSetMaxListingPerAccount:
		return nil, e.SetMaxListingPerAccount(op.Caller, op.Amount)
	case transaction.TxDepositCurrency:
		return nil, e.DepositCurrency(op.Caller, op.Account, op.Amount)
	case transaction.TxMintInventory:
		return nil, e.MintInventory(op.Caller, op.Account, op.Amount)
	case transaction.TxAddListing:
		return nil, e.AddListing(op.Caller, op.Amount, op.Price)
	case transaction.TxRemoveListing:
		return nil, e.RemoveListing(op.Caller, op.Amount)
	case transaction.TxWithdrawCurrency:
		return nil, e.WithdrawCurrency(op.Caller, op.Amount)
	case transaction.TxBuy:
		trade, err := e.Buy(op.Caller, op.Account, op.Amount)
		if err != nil {
			return nil, err
		}
		a.recordTrade(trade)
		return trade, nil
	}
	return nil, fmt.Errorf("%w: unsupported type %s", ErrMalformed, op.Type)
}

func (a *App) recordTrade(t *ledger.Trade) {
	a.metrics.ObserveTrade(t.Quantity, t.Commission)

	a.recentMu.Lock()
	defer a.recentMu.Unlock()
	a.recent = append(a.recent, t)
	if limit := a.cfg.TradeBuffer; limit > 0 && len(a.recent) > limit {
		a.recent = append([]*ledger.Trade(nil), a.recent[len(a.recent)-limit:]...)
	}
}

// RecentTrades returns up to limit trades, newest first
func (a *App) RecentTrades(limit int) ([]*ledger.Trade, error) {
	if limit < 0 {
		limit = 0
	}
	if a.history != nil {
		return a.history.LoadRecentTrades(limit)
	}

	a.recentMu.RLock()
	defer a.recentMu.RUnlock()
	out := make([]*ledger.Trade, 0, min(limit, len(a.recent)))
	for i := len(a.recent) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, a.recent[i])
	}
	return out, nil
}

func (a *App) notify(res Result) {
	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, fn := range a.listeners {
		fn(res)
	}
}

func (a *App) publishReserve() {
	cfg := a.engine.Config()
	a.metrics.SetReserve(cfg.CurrentReserve, cfg.ReserveCap)
}
