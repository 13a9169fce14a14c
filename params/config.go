package params

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
)

// DefaultProgramID is the devnet address the order program is deployed under
const DefaultProgramID = "DeceFi1111111111111111111111111111111111111"

type Ledger struct {
	ProgramID solana.PublicKey
	DBPath    string
	// RequireSignatures rejects transactions whose signer accounts carry no
	// valid ed25519 signature. Disable only for local experiments.
	RequireSignatures bool
}

type Node struct {
	LogFile string
	APIAddr string
	// SlotInterval paces slot production. Queued transactions wait at most
	// one interval before they are executed.
	SlotInterval time.Duration
	// MaxTxBytesPerSlot caps the instruction bytes drained from the mempool
	// per slot. Zero means unbounded.
	MaxTxBytesPerSlot int64
	Verbose           bool
}

type Config struct {
	Ledger Ledger
	Node   Node
}

func Default() Config {
	return Config{
		Ledger: Ledger{
			ProgramID:         solana.MustPublicKeyFromBase58(DefaultProgramID),
			DBPath:            "data/ledger",
			RequireSignatures: true,
		},
		Node: Node{
			LogFile:           "data/node.log",
			APIAddr:           ":8080",
			SlotInterval:      400 * time.Millisecond,
			MaxTxBytesPerSlot: 64 << 10,
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if id := os.Getenv("PROGRAM_ID"); id != "" {
		pk, err := solana.PublicKeyFromBase58(id)
		if err != nil {
			return cfg, fmt.Errorf("PROGRAM_ID: %w", err)
		}
		cfg.Ledger.ProgramID = pk
	}
	cfg.Ledger.DBPath = getEnv("LEDGER_DB_PATH", cfg.Ledger.DBPath)
	if v := os.Getenv("REQUIRE_SIGNATURES"); v != "" {
		cfg.Ledger.RequireSignatures = v == "true"
	}
	cfg.Node.LogFile = getEnv("LOG_FILE", cfg.Node.LogFile)
	cfg.Node.APIAddr = getEnv("API_ADDR", cfg.Node.APIAddr)

	if v := os.Getenv("SLOT_INTERVAL_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return cfg, fmt.Errorf("SLOT_INTERVAL_MS: invalid value %q", v)
		}
		cfg.Node.SlotInterval = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("MAX_TX_BYTES_PER_SLOT"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("MAX_TX_BYTES_PER_SLOT: invalid value %q", v)
		}
		cfg.Node.MaxTxBytesPerSlot = n
	}
	cfg.Node.Verbose = os.Getenv("VERBOSE") == "true"

	return cfg, nil
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
