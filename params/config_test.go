package params

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// noEnvFile points LoadFromEnv at a path that does not exist so a stray
// .env in the package directory cannot leak into tests
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(noEnvFile(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Node.APIAddr != ":8080" {
		t.Errorf("api addr = %s", cfg.Node.APIAddr)
	}
	if cfg.Node.ApplyInterval != 200*time.Millisecond {
		t.Errorf("apply interval = %v", cfg.Node.ApplyInterval)
	}
	if cfg.Domain.ChainID.Int64() != 1337 {
		t.Errorf("chain id = %v", cfg.Domain.ChainID)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OWNER_ADDRESS", "0x00000000000000000000000000000000000000aa")
	t.Setenv("UNIT_PRICE", "250")
	t.Setenv("COMMISSION_RATE", "7")
	t.Setenv("RESERVE_CAP", "5000")
	t.Setenv("MAX_LISTING_PER_ACCOUNT", "100")
	t.Setenv("APPLY_INTERVAL_MS", "50")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")
	t.Setenv("EIP712_CHAIN_ID", "8453")
	t.Setenv("IN_MEMORY", "true")

	cfg, err := LoadFromEnv(noEnvFile(t))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Ledger.Owner != common.HexToAddress("0xaa") {
		t.Errorf("owner = %s", cfg.Ledger.Owner.Hex())
	}
	if cfg.Ledger.UnitPrice != 250 || cfg.Ledger.CommissionRate != 7 ||
		cfg.Ledger.ReserveCap != 5000 || cfg.Ledger.MaxListingPerAccount != 100 {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Node.ApplyInterval != 50*time.Millisecond {
		t.Errorf("apply interval = %v", cfg.Node.ApplyInterval)
	}
	if len(cfg.Node.CORSOrigins) != 2 {
		t.Errorf("cors origins = %v", cfg.Node.CORSOrigins)
	}
	if cfg.Domain.ChainID.Int64() != 8453 {
		t.Errorf("chain id = %v", cfg.Domain.ChainID)
	}
	if !cfg.Node.InMemory {
		t.Error("expected in-memory mode")
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("UNIT_PRICE=42\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	// godotenv.Load never overrides variables that are already set
	t.Cleanup(func() { os.Unsetenv("UNIT_PRICE") })

	cfg, err := LoadFromEnv(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Ledger.UnitPrice != 42 {
		t.Errorf("unit price = %d, want 42", cfg.Ledger.UnitPrice)
	}
}

func TestInvalidValues(t *testing.T) {
	cases := map[string]string{
		"OWNER_ADDRESS":     "nope",
		"UNIT_PRICE":        "-1",
		"RESERVE_CAP":       "lots",
		"APPLY_INTERVAL_MS": "0",
		"MEMPOOL_SIZE":      "x",
		"EIP712_CHAIN_ID":   "abc",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			if _, err := LoadFromEnv(noEnvFile(t)); err == nil {
				t.Errorf("expected error for %s=%s", key, val)
			}
		})
	}
}
