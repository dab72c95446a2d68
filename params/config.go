package params

import (
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Ledger holds the genesis configuration. It is only used when the data
// directory holds no ledger yet; afterwards the persisted config wins.
type Ledger struct {
	Owner                common.Address
	UnitPrice            uint64
	CommissionRate       uint64 // percent
	ReserveCap           uint64
	MaxListingPerAccount uint64
}

type Node struct {
	DataDir string // Pebble directory; empty with InMemory keeps nothing on disk
	// InMemory runs the store on an in-memory filesystem (devnet/tests)
	InMemory bool
	APIAddr  string
	LogFile  string
	LogLevel string
	Verbose  bool
	// ApplyInterval is how often the mempool is drained into the ledger
	ApplyInterval time.Duration
	MempoolSize   int
	CORSOrigins   []string

	// TxGen feeds simulated signed traffic (devnet only, needs OwnerKey)
	TxGen     bool
	TxGenMode string // default | high
	OwnerKey  string
}

// Domain is the EIP-712 signing domain clients must sign against
type Domain struct {
	Name    string
	Version string
	ChainID *big.Int
}

type Config struct {
	Ledger Ledger
	Node   Node
	Domain Domain
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			UnitPrice:            1,
			CommissionRate:       5,
			ReserveCap:           1_000_000,
			MaxListingPerAccount: 10_000,
		},
		Node: Node{
			DataDir:       "data/ledger",
			APIAddr:       ":8080",
			LogFile:       "data/node.log",
			LogLevel:      "info",
			ApplyInterval: 200 * time.Millisecond,
			MempoolSize:   10_000,
			CORSOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		},
		Domain: Domain{
			Name:    "HyperMarket",
			Version: "1",
			ChainID: big.NewInt(1337),
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	// .env is optional
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if owner := os.Getenv("OWNER_ADDRESS"); owner != "" {
		if !common.IsHexAddress(owner) {
			return cfg, fmt.Errorf("OWNER_ADDRESS: invalid address %q", owner)
		}
		cfg.Ledger.Owner = common.HexToAddress(owner)
	}

	uints := []struct {
		key string
		dst *uint64
	}{
		{"UNIT_PRICE", &cfg.Ledger.UnitPrice},
		{"COMMISSION_RATE", &cfg.Ledger.CommissionRate},
		{"RESERVE_CAP", &cfg.Ledger.ReserveCap},
		{"MAX_LISTING_PER_ACCOUNT", &cfg.Ledger.MaxListingPerAccount},
	}
	for _, u := range uints {
		if v := os.Getenv(u.key); v != "" {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return cfg, fmt.Errorf("%s: %w", u.key, err)
			}
			*u.dst = n
		}
	}

	cfg.Node.DataDir = getEnv("DATA_DIR", cfg.Node.DataDir)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.LogLevel = getEnv("LOG_LEVEL", cfg.Node.LogLevel)
	cfg.Node.Verbose = os.Getenv("VERBOSE") == "true"
	cfg.Node.InMemory = os.Getenv("IN_MEMORY") == "true"

	cfg.Node.TxGen = os.Getenv("ENABLE_TXGEN") == "true"
	cfg.Node.TxGenMode = getEnv("TXGEN_MODE", "default")
	cfg.Node.OwnerKey = os.Getenv("OWNER_KEY")

	if interval := os.Getenv("APPLY_INTERVAL_MS"); interval != "" {
		ms, err := strconv.Atoi(interval)
		if err != nil || ms <= 0 {
			return cfg, fmt.Errorf("APPLY_INTERVAL_MS: invalid value %q", interval)
		}
		cfg.Node.ApplyInterval = time.Duration(ms) * time.Millisecond
	}
	if size := os.Getenv("MEMPOOL_SIZE"); size != "" {
		n, err := strconv.Atoi(size)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("MEMPOOL_SIZE: invalid value %q", size)
		}
		cfg.Node.MempoolSize = n
	}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.Node.CORSOrigins = strings.Split(origins, ",")
	}

	cfg.Domain.Name = getEnv("EIP712_NAME", cfg.Domain.Name)
	cfg.Domain.Version = getEnv("EIP712_VERSION", cfg.Domain.Version)
	if chainID := os.Getenv("EIP712_CHAIN_ID"); chainID != "" {
		id, ok := new(big.Int).SetString(chainID, 10)
		if !ok || id.Sign() < 0 {
			return cfg, fmt.Errorf("EIP712_CHAIN_ID: invalid value %q", chainID)
		}
		cfg.Domain.ChainID = id
	}

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
