package ledger

import (
	"errors"
	"math"
	"testing"
)

func TestApplyReserveDelta(t *testing.T) {
	tests := []struct {
		name    string
		start   uint64
		cap     uint64
		delta   ReserveDelta
		want    uint64
		wantErr error
	}{
		{name: "increase", start: 10, cap: 100, delta: Increase(5), want: 15},
		{name: "increase to cap", start: 10, cap: 15, delta: Increase(5), want: 15},
		{name: "increase past cap", start: 10, cap: 14, delta: Increase(5), wantErr: ErrReserveCapExceeded},
		{name: "increase wraps", start: math.MaxUint64, cap: math.MaxUint64, delta: Increase(1), wantErr: ErrReserveCapExceeded},
		{name: "decrease", start: 10, cap: 100, delta: Decrease(4), want: 6},
		{name: "decrease floors at zero", start: 3, cap: 100, delta: Decrease(9), want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.CurrentReserve = tt.start
			cfg.ReserveCap = tt.cap
			o := newOp(newStore(cfg))

			err := o.applyReserveDelta(tt.delta)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("applyReserveDelta() err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil {
				if o.cs.Config != nil {
					t.Error("failed delta wrote config")
				}
				return
			}
			if got := o.config().CurrentReserve; got != tt.want {
				t.Errorf("reserve = %d, want %d", got, tt.want)
			}
			// Store is untouched until the op is committed
			if o.store.config.CurrentReserve != tt.start {
				t.Error("delta leaked into store before commit")
			}
		})
	}
}

// TestReserveTracksListings drives a mixed sequence and checks the reserve
// equals the sum of listed quantities after every step
func TestReserveTracksListings(t *testing.T) {
	e := newTestEngine(t)
	fund(t, e, alice, 5000, 200)
	fund(t, e, bob, 5000, 200)
	fund(t, e, carol, 5000, 0)

	steps := []func() error{
		func() error { return e.AddListing(alice, 50, 3) },
		func() error { return e.AddListing(bob, 80, 2) },
		func() error { _, err := e.Buy(carol, alice, 20); return err },
		func() error { return e.RemoveListing(bob, 30) },
		func() error { _, err := e.Buy(alice, bob, 50); return err },
		func() error { return e.AddListing(carol, 20, 9) },
		func() error { _, err := e.Buy(bob, carol, 5); return err },
		func() error { return e.RemoveListing(alice, 30) },
	}

	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d failed: %v", i, err)
		}
		checkInvariants(t, e)
	}

	if got := e.CurrentReserve(); got != 15 {
		t.Errorf("final reserve = %d, want 15", got)
	}
}
