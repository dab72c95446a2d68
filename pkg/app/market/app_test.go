package market

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
	"github.com/uhyunpark/hypermarket/pkg/app/core/transaction"
	"github.com/uhyunpark/hypermarket/pkg/crypto"
	"github.com/uhyunpark/hypermarket/pkg/metrics"
	"github.com/uhyunpark/hypermarket/pkg/storage"
	"github.com/uhyunpark/hypermarket/pkg/util"
)

var testNow = time.Unix(1_750_000_000, 0)

type harness struct {
	t      *testing.T
	app    *App
	eip    *crypto.EIP712Signer
	owner  *crypto.Signer
	alice  *crypto.Signer
	bob    *crypto.Signer
	nonces map[common.Address]uint64
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	owner, _ := crypto.GenerateKey()
	alice, _ := crypto.GenerateKey()
	bob, _ := crypto.GenerateKey()

	clock := util.FixedClock{T: testNow}
	engine, err := ledger.NewEngine(ledger.GlobalConfig{
		Owner:                owner.Address(),
		UnitPrice:            100,
		CommissionRate:       5,
		ReserveCap:           1000,
		MaxListingPerAccount: 500,
	}, ledger.WithClock(clock))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	domain := crypto.DefaultDomain()
	opts = append([]Option{WithClock(clock)}, opts...)
	app := NewApp(engine, transaction.NewVerifier(domain), DefaultConfig(), opts...)

	return &harness{
		t:      t,
		app:    app,
		eip:    crypto.NewEIP712Signer(domain),
		owner:  owner,
		alice:  alice,
		bob:    bob,
		nonces: make(map[common.Address]uint64),
	}
}

// tx signs op for key with the key's next nonce
func (h *harness) tx(key *crypto.Signer, op transaction.Op) []byte {
	h.t.Helper()
	h.nonces[key.Address()]++
	op.Caller = key.Address()
	if op.Nonce == 0 {
		op.Nonce = h.nonces[key.Address()]
	}
	stx, err := transaction.Sign(h.eip, key, &op)
	if err != nil {
		h.t.Fatalf("sign failed: %v", err)
	}
	raw, err := stx.Serialize()
	if err != nil {
		h.t.Fatalf("serialize failed: %v", err)
	}
	return raw
}

func (h *harness) submit(raws ...[]byte) {
	h.t.Helper()
	for _, raw := range raws {
		if _, err := h.app.SubmitTx(raw); err != nil {
			h.t.Fatalf("submit failed: %v", err)
		}
	}
}

func TestBuyFlow(t *testing.T) {
	h := newHarness(t)
	h.submit(
		h.tx(h.owner, transaction.Op{Type: transaction.TxMintInventory, Account: h.alice.Address(), Amount: 10}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxDepositCurrency, Account: h.bob.Address(), Amount: 2000}),
		h.tx(h.alice, transaction.Op{Type: transaction.TxAddListing, Amount: 10, Price: 10}),
		h.tx(h.bob, transaction.Op{Type: transaction.TxBuy, Account: h.alice.Address(), Amount: 5}),
	)

	results := h.app.ApplyPending()
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i, r := range results {
		if !r.OK() {
			t.Fatalf("tx %d (%s) failed: %v", i, r.Type, r.Err)
		}
	}
	last := results[3]
	if last.Trade == nil || last.Trade.TotalCost != 52 {
		t.Fatalf("trade = %+v, want total cost 52", last.Trade)
	}

	e := h.app.Engine()
	if got := e.CurrencyBalance(h.bob.Address()); got != 1948 {
		t.Errorf("bob currency = %d, want 1948", got)
	}
	if got := e.CurrencyBalance(h.owner.Address()); got != 2 {
		t.Errorf("owner commission = %d, want 2", got)
	}
	if got := e.CurrentReserve(); got != 5 {
		t.Errorf("reserve = %d, want 5", got)
	}

	trades, err := h.app.RecentTrades(10)
	if err != nil || len(trades) != 1 {
		t.Fatalf("RecentTrades() = %d trades, %v", len(trades), err)
	}
}

func TestAdminOpsApplyFirst(t *testing.T) {
	h := newHarness(t)
	h.submit(
		h.tx(h.owner, transaction.Op{Type: transaction.TxMintInventory, Account: h.alice.Address(), Amount: 10}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxDepositCurrency, Account: h.bob.Address(), Amount: 2000}),
		h.tx(h.alice, transaction.Op{Type: transaction.TxAddListing, Amount: 10, Price: 10}),
	)
	h.app.ApplyPending()

	// The buy is queued before the rate change but applies after it
	h.submit(
		h.tx(h.bob, transaction.Op{Type: transaction.TxBuy, Account: h.alice.Address(), Amount: 10}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxSetCommissionRate, Amount: 0}),
	)
	results := h.app.ApplyPending()
	if results[0].Type != transaction.TxSetCommissionRate {
		t.Fatalf("first applied = %s, want setCommissionRate", results[0].Type)
	}
	if results[1].Trade == nil || results[1].Trade.Commission != 0 {
		t.Errorf("trade = %+v, want zero commission", results[1].Trade)
	}
}

func TestRemoveListingBeatsBuy(t *testing.T) {
	h := newHarness(t)
	h.submit(
		h.tx(h.owner, transaction.Op{Type: transaction.TxMintInventory, Account: h.alice.Address(), Amount: 10}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxDepositCurrency, Account: h.bob.Address(), Amount: 2000}),
		h.tx(h.alice, transaction.Op{Type: transaction.TxAddListing, Amount: 10, Price: 10}),
	)
	h.app.ApplyPending()

	h.submit(
		h.tx(h.bob, transaction.Op{Type: transaction.TxBuy, Account: h.alice.Address(), Amount: 10}),
		h.tx(h.alice, transaction.Op{Type: transaction.TxRemoveListing, Amount: 10}),
	)
	results := h.app.ApplyPending()
	if results[0].Type != transaction.TxRemoveListing || !results[0].OK() {
		t.Fatalf("first result = %+v, want successful removeListing", results[0])
	}
	if results[1].Kind != "InsufficientQuantity" {
		t.Errorf("buy kind = %q, want InsufficientQuantity", results[1].Kind)
	}
}

func TestCallerOrderSurvivesPriority(t *testing.T) {
	h := newHarness(t)
	h.submit(h.tx(h.owner, transaction.Op{Type: transaction.TxMintInventory, Account: h.alice.Address(), Amount: 10}))
	h.app.ApplyPending()

	// removeListing outranks addListing, but not the same caller's earlier nonce
	h.submit(
		h.tx(h.alice, transaction.Op{Type: transaction.TxAddListing, Amount: 10, Price: 10}),
		h.tx(h.alice, transaction.Op{Type: transaction.TxRemoveListing, Amount: 4}),
	)
	results := h.app.ApplyPending()
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	for i, r := range results {
		if !r.OK() {
			t.Fatalf("tx %d (%s) failed: %v", i, r.Type, r.Err)
		}
	}
	if results[0].Type != transaction.TxAddListing {
		t.Errorf("first applied = %s, want addListing", results[0].Type)
	}
	if l := h.app.Engine().Listing(h.alice.Address()); l.Quantity != 6 {
		t.Errorf("listing quantity = %d, want 6", l.Quantity)
	}
}

func TestOwnerAdminAfterOwnBuy(t *testing.T) {
	h := newHarness(t)
	h.submit(
		h.tx(h.owner, transaction.Op{Type: transaction.TxMintInventory, Account: h.alice.Address(), Amount: 10}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxDepositCurrency, Account: h.owner.Address(), Amount: 1000}),
		h.tx(h.alice, transaction.Op{Type: transaction.TxAddListing, Amount: 10, Price: 10}),
	)
	h.app.ApplyPending()

	h.submit(
		h.tx(h.owner, transaction.Op{Type: transaction.TxBuy, Account: h.alice.Address(), Amount: 2}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxSetUnitPrice, Amount: 7}),
	)
	for i, r := range h.app.ApplyPending() {
		if !r.OK() {
			t.Fatalf("tx %d (%s) failed: %v", i, r.Type, r.Err)
		}
	}
	if got := h.app.Engine().UnitPrice(); got != 7 {
		t.Errorf("unit price = %d, want 7", got)
	}
}

func TestNonceReplayRejected(t *testing.T) {
	h := newHarness(t)
	raw := h.tx(h.owner, transaction.Op{Type: transaction.TxDepositCurrency, Account: h.bob.Address(), Amount: 100})
	h.submit(raw, raw)

	results := h.app.ApplyPending()
	if !results[0].OK() {
		t.Fatalf("first deposit failed: %v", results[0].Err)
	}
	if !errors.Is(results[1].Err, ErrStaleNonce) || results[1].Kind != "StaleNonce" {
		t.Errorf("replay err = %v (%s), want StaleNonce", results[1].Err, results[1].Kind)
	}
	if got := h.app.Engine().CurrencyBalance(h.bob.Address()); got != 100 {
		t.Errorf("bob currency = %d, want 100", got)
	}
}

func TestNonceConsumedOnLedgerRejection(t *testing.T) {
	h := newHarness(t)
	h.submit(h.tx(h.alice, transaction.Op{Type: transaction.TxWithdrawCurrency, Amount: 5}))
	results := h.app.ApplyPending()
	if results[0].Kind != "InsufficientFunds" {
		t.Fatalf("kind = %q, want InsufficientFunds", results[0].Kind)
	}
	n, err := h.app.Nonce(h.alice.Address())
	if err != nil || n != 1 {
		t.Errorf("Nonce() = %d, %v; want 1", n, err)
	}
}

func TestDeadline(t *testing.T) {
	h := newHarness(t)
	now := uint64(testNow.Unix())
	h.submit(
		h.tx(h.owner, transaction.Op{Type: transaction.TxSetUnitPrice, Amount: 7, Deadline: now - 1}),
		h.tx(h.owner, transaction.Op{Type: transaction.TxSetUnitPrice, Amount: 8, Deadline: now}),
	)
	results := h.app.ApplyPending()
	if results[0].Kind != "Expired" {
		t.Errorf("expired tx kind = %q, want Expired", results[0].Kind)
	}
	if !results[1].OK() {
		t.Errorf("tx at deadline failed: %v", results[1].Err)
	}
	if got := h.app.Engine().UnitPrice(); got != 8 {
		t.Errorf("unit price = %d, want 8", got)
	}
}

func TestOwnerOnlyViaSignature(t *testing.T) {
	h := newHarness(t)
	h.submit(h.tx(h.alice, transaction.Op{Type: transaction.TxMintInventory, Account: h.alice.Address(), Amount: 1000}))
	results := h.app.ApplyPending()
	if results[0].Kind != "OwnerOnly" {
		t.Errorf("kind = %q, want OwnerOnly", results[0].Kind)
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newHarness(t)

	if _, err := h.app.SubmitTx([]byte("not json")); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}

	raw := h.tx(h.alice, transaction.Op{Type: transaction.TxWithdrawCurrency, Amount: 1})
	stx, _ := transaction.ParseTransaction(raw)
	stx.Caller = h.bob.Address().Hex()
	forged, _ := stx.Serialize()
	if _, err := h.app.SubmitTx(forged); !errors.Is(err, transaction.ErrBadSignature) {
		t.Errorf("expected ErrBadSignature, got %v", err)
	}
	if h.app.PendingTxs() != 0 {
		t.Errorf("rejected txs were queued: %d", h.app.PendingTxs())
	}
}

func TestMempoolFull(t *testing.T) {
	owner, _ := crypto.GenerateKey()
	engine, _ := ledger.NewEngine(ledger.GlobalConfig{Owner: owner.Address(), UnitPrice: 1, ReserveCap: 10})
	app := NewApp(engine, transaction.NewVerifier(crypto.DefaultDomain()), Config{MempoolSize: 1})
	eip := crypto.NewEIP712Signer(crypto.DefaultDomain())

	for i, want := range []error{nil, ErrMempoolFull} {
		stx, _ := transaction.Sign(eip, owner, &transaction.Op{
			Type: transaction.TxSetUnitPrice, Caller: owner.Address(), Amount: 2, Nonce: uint64(i + 1),
		})
		raw, _ := stx.Serialize()
		if _, err := app.SubmitTx(raw); !errors.Is(err, want) {
			t.Errorf("submit %d: err = %v, want %v", i, err, want)
		}
	}
}

func TestNoncesPersist(t *testing.T) {
	store, err := storage.NewMemPebbleStore()
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	h := newHarness(t, WithNonceStore(store))
	h.submit(h.tx(h.owner, transaction.Op{Type: transaction.TxSetUnitPrice, Amount: 3, Nonce: 41}))
	h.app.ApplyPending()

	n, err := store.LoadNonce(h.owner.Address())
	if err != nil || n != 41 {
		t.Errorf("stored nonce = %d, %v; want 41", n, err)
	}
}

func TestSubscribeAndMetrics(t *testing.T) {
	m := metrics.New()
	h := newHarness(t, WithMetrics(m))

	var mu sync.Mutex
	var seen []Result
	h.app.Subscribe(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, r)
	})

	h.submit(h.tx(h.owner, transaction.Op{Type: transaction.TxSetReserveCap, Amount: 50}))
	h.app.ApplyPending()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || !seen[0].OK() {
		t.Fatalf("listener saw %+v", seen)
	}
}

func TestRunDrainsOnShutdown(t *testing.T) {
	h := newHarness(t)
	h.submit(h.tx(h.owner, transaction.Op{Type: transaction.TxSetUnitPrice, Amount: 9}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.app.Run(ctx, time.Hour)

	if got := h.app.Engine().UnitPrice(); got != 9 {
		t.Errorf("unit price = %d, want 9", got)
	}
	if h.app.PendingTxs() != 0 {
		t.Errorf("pending = %d, want 0", h.app.PendingTxs())
	}
}

func TestRecentTradesBuffer(t *testing.T) {
	owner, _ := crypto.GenerateKey()
	engine, _ := ledger.NewEngine(ledger.GlobalConfig{Owner: owner.Address(), UnitPrice: 1, ReserveCap: 10})
	app := NewApp(engine, transaction.NewVerifier(crypto.DefaultDomain()), Config{TradeBuffer: 2})

	for _, id := range []string{"a", "b", "c"} {
		app.recordTrade(&ledger.Trade{ID: id})
	}
	trades, _ := app.RecentTrades(10)
	if len(trades) != 2 || trades[0].ID != "c" || trades[1].ID != "b" {
		t.Errorf("recent trades = %v", trades)
	}
}

func TestRecentTradesNegativeLimit(t *testing.T) {
	h := newHarness(t)
	h.app.recordTrade(&ledger.Trade{ID: "a"})
	trades, err := h.app.RecentTrades(-1)
	if err != nil || len(trades) != 0 {
		t.Errorf("RecentTrades(-1) = %v, %v; want none", trades, err)
	}
}

type failingJournal struct{}

func (failingJournal) Append(string) error { return errors.New("disk full") }

func TestJournalFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	h := newHarness(t, WithJournal(failingJournal{}), WithLogger(zap.New(core)))

	h.submit(h.tx(h.owner, transaction.Op{Type: transaction.TxSetUnitPrice, Amount: 9}))
	results := h.app.ApplyPending()
	if len(results) != 1 || !results[0].OK() {
		t.Fatalf("results = %+v, want one applied tx", results)
	}
	if got := logs.FilterMessage("journal_append_failed").Len(); got != 1 {
		t.Errorf("journal_append_failed logged %d times, want 1", got)
	}
}

func TestKind(t *testing.T) {
	if Kind(nil) != "" {
		t.Error("Kind(nil) should be empty")
	}
	if Kind(ErrExpired) != "Expired" {
		t.Error("expired kind")
	}
	if Kind(ledger.ErrOwnerOnly) != "OwnerOnly" {
		t.Error("ledger kinds should pass through")
	}
}
