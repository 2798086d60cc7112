package config

import (
	"os"
	"strconv"
	"time"
)

// Policy holds the tunable business magnitudes. The reputation ledger itself
// is a plain counter; these values belong to the wiring, not the component.
type Policy struct {
	// SettleReward is credited to supplier, buyer and funder on settlement.
	SettleReward int
	// DefaultPenalty is debited from the buyer when an invoice defaults.
	DefaultPenalty int
	// BlacklistThreshold: an identity whose score drops to or below this
	// value is blacklisted.
	BlacklistThreshold int

	// TransferTimeout bounds external asset-transfer calls.
	TransferTimeout time.Duration
	// OracleTimeout bounds each verification oracle call.
	OracleTimeout time.Duration
}

// LoadPolicy reads the policy from the environment with sensible defaults.
func LoadPolicy() Policy {
	return Policy{
		SettleReward:       envInt("REPUTATION_SETTLE_REWARD", 10),
		DefaultPenalty:     envInt("REPUTATION_DEFAULT_PENALTY", 25),
		BlacklistThreshold: envInt("REPUTATION_BLACKLIST_THRESHOLD", 0),
		TransferTimeout:    envDuration("TRANSFER_TIMEOUT", 30*time.Second),
		OracleTimeout:      envDuration("ORACLE_TIMEOUT", 10*time.Second),
	}
}

func envInt(key string, fallback int) int {
	if raw := os.Getenv(key); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if raw := os.Getenv(key); raw != "" {
		if v, err := time.ParseDuration(raw); err == nil {
			return v
		}
	}
	return fallback
}
