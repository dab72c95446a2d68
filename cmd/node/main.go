package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/hypermarket/params"
	"github.com/uhyunpark/hypermarket/pkg/api"
	"github.com/uhyunpark/hypermarket/pkg/app/core/ledger"
	"github.com/uhyunpark/hypermarket/pkg/app/core/transaction"
	"github.com/uhyunpark/hypermarket/pkg/app/market"
	"github.com/uhyunpark/hypermarket/pkg/crypto"
	"github.com/uhyunpark/hypermarket/pkg/metrics"
	"github.com/uhyunpark/hypermarket/pkg/storage"
	"github.com/uhyunpark/hypermarket/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	level := cfg.Node.LogLevel
	if cfg.Node.Verbose {
		level = "debug"
	}
	logger, err := util.NewLoggerWithFile(util.LogConfig{Level: level, File: cfg.Node.LogFile})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", level)

	// ---- Storage ----
	var store *storage.PebbleStore
	if cfg.Node.InMemory {
		store, err = storage.NewMemPebbleStore()
	} else {
		store, err = storage.NewPebbleStore(cfg.Node.DataDir)
	}
	if err != nil {
		sugar.Fatalw("store_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer store.Close()

	// Devnet convenience: derive the owner from OWNER_KEY when no address is given
	if cfg.Ledger.Owner == (common.Address{}) && cfg.Node.OwnerKey != "" {
		if key, err := crypto.FromPrivateKeyHex(cfg.Node.OwnerKey); err == nil {
			cfg.Ledger.Owner = key.Address()
		}
	}

	engine, err := openEngine(store, cfg.Ledger, logger)
	if err != nil {
		sugar.Fatalw("ledger_open_failed", "err", err)
	}
	ledgerCfg := engine.Config()
	sugar.Infow("ledger_ready",
		"owner", ledgerCfg.Owner.Hex(),
		"unit_price", ledgerCfg.UnitPrice,
		"commission_rate", ledgerCfg.CommissionRate,
		"reserve", ledgerCfg.CurrentReserve,
		"reserve_cap", ledgerCfg.ReserveCap)

	var journal storage.Journal = storage.NewNopJournal()
	if !cfg.Node.InMemory {
		fj, err := storage.NewFileJournal(filepath.Join(cfg.Node.DataDir, "tx.journal"))
		if err != nil {
			sugar.Fatalw("journal_open_failed", "err", err)
		}
		defer fj.Close()
		journal = fj
	}

	// ---- App ----
	domain := crypto.EIP712Domain{
		Name:    cfg.Domain.Name,
		Version: cfg.Domain.Version,
		ChainID: cfg.Domain.ChainID,
	}
	m := metrics.New()
	appCfg := market.DefaultConfig()
	appCfg.MempoolSize = cfg.Node.MempoolSize
	app := market.NewApp(engine, transaction.NewVerifier(domain), appCfg,
		market.WithNonceStore(store),
		market.WithTradeHistory(store),
		market.WithJournal(journal),
		market.WithMetrics(m),
		market.WithLogger(logger),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Transaction Feeder (optional) ----
	// Enable with: ENABLE_TXGEN=true OWNER_KEY=0x... TXGEN_MODE=default|high
	if cfg.Node.TxGen {
		startFeeder(ctx, app, cfg.Node, ledgerCfg, sugar)
	}

	// ---- API Server ----
	apiServer := api.NewServer(app, logger, cfg.Node.CORSOrigins)
	apiDone := make(chan struct{})
	go func() {
		defer close(apiDone)
		if err := apiServer.Start(ctx, cfg.Node.APIAddr); err != nil {
			sugar.Errorw("api_server_failed", "err", err)
			stop()
		}
	}()

	sugar.Infow("node_starting", "apply_interval_ms", cfg.Node.ApplyInterval.Milliseconds(), "mempool_size", appCfg.MempoolSize)
	app.Run(ctx, cfg.Node.ApplyInterval)
	<-apiDone
	sugar.Infow("node_stopped", "state_root", app.StateRoot().Hex())
}

// openEngine restores the persisted ledger, or writes genesis on first start
func openEngine(store *storage.PebbleStore, genesis params.Ledger, logger *zap.Logger) (*ledger.Engine, error) {
	opts := []ledger.Option{ledger.WithPersister(store), ledger.WithLogger(logger)}

	snap, err := store.LoadSnapshot()
	if err != nil {
		return nil, err
	}
	if snap != nil {
		return ledger.Restore(snap, opts...)
	}

	cfg := ledger.GlobalConfig{
		Owner:                genesis.Owner,
		UnitPrice:            genesis.UnitPrice,
		CommissionRate:       genesis.CommissionRate,
		ReserveCap:           genesis.ReserveCap,
		MaxListingPerAccount: genesis.MaxListingPerAccount,
	}
	engine, err := ledger.NewEngine(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := store.SaveGenesis(cfg); err != nil {
		return nil, err
	}
	logger.Sugar().Infow("genesis_written", "owner", cfg.Owner.Hex())
	return engine, nil
}

func startFeeder(ctx context.Context, app *market.App, node params.Node, ledgerCfg ledger.GlobalConfig, sugar *zap.SugaredLogger) {
	if node.OwnerKey == "" {
		sugar.Warn("txgen_disabled - OWNER_KEY not set")
		return
	}
	owner, err := crypto.FromPrivateKeyHex(node.OwnerKey)
	if err != nil {
		sugar.Fatalw("owner_key_invalid", "err", err)
	}
	if owner.Address() != ledgerCfg.Owner {
		sugar.Warnw("txgen_disabled - OWNER_KEY is not the ledger owner", "key", owner.Address().Hex())
		return
	}

	feederCfg := market.DefaultFeederConfig()
	if node.TxGenMode == "high" {
		feederCfg = market.HighLoadConfig()
	}
	if _, err := market.StartTxFeeder(ctx, app, owner, feederCfg); err != nil {
		sugar.Fatalw("txgen_start_failed", "err", err)
	}
	sugar.Infow("txgen_enabled", "mode", node.TxGenMode, "accounts", feederCfg.NumAccounts)
}
