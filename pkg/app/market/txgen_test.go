package market

import (
	"context"
	"testing"
	"time"
)

func drain(h *harness) []Result {
	var all []Result
	for h.app.PendingTxs() > 0 {
		all = append(all, h.app.ApplyPending()...)
	}
	return all
}

func TestTxGeneratorBootstrap(t *testing.T) {
	h := newHarness(t)
	gen, err := NewTxGenerator(h.owner, 0, 4, h.eip.Domain(), 1)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}

	h.submit(gen.Bootstrap(10_000, 100)...)
	for i, r := range drain(h) {
		if !r.OK() {
			t.Fatalf("bootstrap tx %d failed: %v", i, r.Err)
		}
	}

	e := h.app.Engine()
	for _, tr := range gen.Traders() {
		if got := e.CurrencyBalance(tr.Address()); got != 10_000 {
			t.Errorf("%s currency = %d", tr.Address().Hex(), got)
		}
		if got := e.InventoryBalance(tr.Address()); got != 100 {
			t.Errorf("%s inventory = %d", tr.Address().Hex(), got)
		}
	}
	if n, _ := h.app.Nonce(h.owner.Address()); n != 8 {
		t.Errorf("owner nonce = %d, want 8", n)
	}
}

func TestTxGeneratorRandomLoad(t *testing.T) {
	h := newHarness(t)
	gen, err := NewTxGenerator(h.owner, 0, 5, h.eip.Domain(), 42)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	h.submit(gen.Bootstrap(10_000, 100)...)
	drain(h)

	h.submit(gen.GenerateBatch(200)...)
	results := drain(h)
	if len(results) != 200 {
		t.Fatalf("got %d results, want 200", len(results))
	}

	ok := 0
	for _, r := range results {
		switch r.Kind {
		case "Malformed", "BadSignature", "Expired", "StaleNonce":
			t.Fatalf("generated tx rejected at admission: %s %v", r.Kind, r.Err)
		case "":
			ok++
		}
	}
	if ok == 0 {
		t.Error("no generated tx succeeded")
	}

	// Goods only move between traders
	e := h.app.Engine()
	var inventory, listed uint64
	for _, tr := range gen.Traders() {
		inventory += e.InventoryBalance(tr.Address())
		listed += e.Listing(tr.Address()).Quantity
	}
	if inventory != 500 {
		t.Errorf("total inventory = %d, want 500", inventory)
	}
	if listed != e.CurrentReserve() {
		t.Errorf("listed %d != reserve %d", listed, e.CurrentReserve())
	}
}

func TestTxFeeder(t *testing.T) {
	h := newHarness(t)
	cfg := TxFeederConfig{BatchSize: 5, Interval: 5 * time.Millisecond, NumAccounts: 3, Currency: 1000, Inventory: 10}

	cancel, err := StartTxFeeder(context.Background(), h.app, h.owner, cfg)
	if err != nil {
		t.Fatalf("start feeder: %v", err)
	}
	defer cancel()

	deadline := time.Now().Add(2 * time.Second)
	for h.app.PendingTxs() < 6+cfg.BatchSize {
		if time.Now().After(deadline) {
			t.Fatalf("feeder queued only %d txs", h.app.PendingTxs())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	results := drain(h)
	for _, r := range results[:6] {
		if !r.OK() {
			t.Fatalf("bootstrap tx failed: %v", r.Err)
		}
	}
}
