package market

import (
	"context"
	"time"

	"github.com/uhyunpark/hypermarket/pkg/crypto"
)

// TxFeederConfig controls simulated load
type TxFeederConfig struct {
	BatchSize   int           // txs per tick
	Interval    time.Duration // how often to generate a batch
	NumAccounts int           // simulated traders
	Currency    uint64        // bootstrap deposit per trader
	Inventory   uint64        // bootstrap mint per trader
}

func DefaultFeederConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   10,
		Interval:    100 * time.Millisecond,
		NumAccounts: 20,
		Currency:    1_000_000,
		Inventory:   1_000,
	}
}

func HighLoadConfig() TxFeederConfig {
	return TxFeederConfig{
		BatchSize:   100,
		Interval:    100 * time.Millisecond,
		NumAccounts: 200,
		Currency:    1_000_000,
		Inventory:   1_000,
	}
}

// StartTxFeeder funds simulated traders with owner txs, then keeps feeding
// random signed trader txs into the app until ctx is done. Requires the
// owner's key, so it is a devnet tool only.
func StartTxFeeder(ctx context.Context, app *App, owner *crypto.Signer, cfg TxFeederConfig) (context.CancelFunc, error) {
	ownerNonce, err := app.Nonce(owner.Address())
	if err != nil {
		return nil, err
	}
	gen, err := NewTxGenerator(owner, ownerNonce, cfg.NumAccounts, app.Verifier().Signer().Domain(), time.Now().UnixNano())
	if err != nil {
		return nil, err
	}

	feedCtx, cancel := context.WithCancel(ctx)
	go func() {
		for _, raw := range gen.Bootstrap(cfg.Currency, cfg.Inventory) {
			if _, err := app.SubmitTx(raw); err != nil {
				app.log.Warnw("txfeeder_bootstrap_failed", "err", err)
			}
		}

		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		start := time.Now()
		total, dropped := 0, 0
		app.log.Infow("txfeeder_started", "accounts", cfg.NumAccounts, "batch", cfg.BatchSize, "interval", cfg.Interval)

		for {
			select {
			case <-feedCtx.Done():
				elapsed := time.Since(start)
				app.log.Infow("txfeeder_stopped",
					"txs", total,
					"dropped", dropped,
					"tx_per_sec", float64(total)/elapsed.Seconds())
				return
			case <-ticker.C:
				for _, raw := range gen.GenerateBatch(cfg.BatchSize) {
					if _, err := app.SubmitTx(raw); err != nil {
						dropped++
						continue
					}
					total++
				}
			}
		}
	}()
	return cancel, nil
}
