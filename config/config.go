// Package config loads and validates the TOML configuration of spec section
// 6: per-network endpoints and contract addresses, per-network batching
// thresholds, the core submission deadline, and the fees kill switch.
//
// Grounded on `v3_bridges/sentinel/src/lib/get_config.rs` for the
// batch-size/duration sanity-check constants (size 1..1000, duration
// 0..600s, "a batch duration of 0 means we submit material one at a time"),
// generalised from that file's fixed host/native pair into spec.md §6's
// `networks.{id}.*` / `batching.{id}.*` maps so an arbitrary number of
// chains can be configured, matching the teacher's own `cmd/geth`
// TOML-via-BurntSushi/toml convention for reading its config file.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

const (
	minBatchSize      = 1
	maxBatchSize      = 1000
	maxBatchDurationMs = 600_000
)

// GasLimitOverrides maps a call kind ("mint", "pegOut", "protocolCancel")
// to a gas limit, taking precedence over the fallback passed to
// NetworkConfig.GasLimit for that kind.
type GasLimitOverrides map[string]uint64

// NetworkConfig is one chain's entry under the `networks` table.
type NetworkConfig struct {
	ChainID           uint64            `toml:"chain_id"`
	Side              string            `toml:"side"`
	Endpoints         []string          `toml:"endpoints"`
	Validate          bool              `toml:"validate"`
	PnetworkHub       string            `toml:"pnetwork_hub"`
	Router            string            `toml:"router"`
	StateManager      string            `toml:"state_manager"`
	Vault             string            `toml:"vault"`
	Governance        string            `toml:"governance"`
	GasPrice          uint64            `toml:"gas_price"`
	GasLimitOverrides GasLimitOverrides `toml:"gas_limit_overrides"`
	PrivateKey        string            `toml:"private_key"`
	CanonToTipLength  uint64            `toml:"canon_to_tip_length"`
}

// BatchingConfig is one chain's entry under the `batching` table.
type BatchingConfig struct {
	Size       int   `toml:"size"`
	DurationMs int64 `toml:"duration_ms"`
}

// CoreConfig is the `core` table: the per-submission deadline every syncer
// enforces on its request/response round trip.
type CoreConfig struct {
	TimeLimitS int64 `toml:"time_limit_s"`
}

// FeesConfig is the `fees` table: the global accrual kill switch.
type FeesConfig struct {
	Disabled bool `toml:"disabled"`
}

// Config is the root of the TOML file spec section 6 describes.
type Config struct {
	Networks map[string]NetworkConfig  `toml:"networks"`
	Batching map[string]BatchingConfig `toml:"batching"`
	Core     CoreConfig                `toml:"core"`
	Fees     FeesConfig                `toml:"fees"`
}

// Load decodes and sanity-checks the TOML file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decoding %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate sanity-checks every configured network's batching thresholds,
// mirroring get_config.rs's sanity_check_batch_size/
// sanity_check_batch_duration.
func (c *Config) Validate() error {
	for id, b := range c.Batching {
		if b.Size < minBatchSize || b.Size > maxBatchSize {
			return fmt.Errorf("config: batching.%s.size %d is unacceptable (must be %d..%d)", id, b.Size, minBatchSize, maxBatchSize)
		}
		if b.DurationMs < 0 || b.DurationMs > maxBatchDurationMs {
			return fmt.Errorf("config: batching.%s.duration_ms %d is unacceptable (must be 0..%d)", id, b.DurationMs, maxBatchDurationMs)
		}
	}
	for id, n := range c.Networks {
		if len(n.Endpoints) == 0 {
			return fmt.Errorf("config: networks.%s.endpoints must not be empty", id)
		}
		if n.Side != "native" && n.Side != "host" {
			return fmt.Errorf("config: networks.%s.side must be \"native\" or \"host\", got %q", id, n.Side)
		}
	}
	return nil
}

// BridgeSide parses the network's configured side string into a
// sentineltypes.BridgeSide, the form every other package consumes.
func (n NetworkConfig) BridgeSide() (sentineltypes.BridgeSide, error) {
	switch n.Side {
	case "native":
		return sentineltypes.SideNative, nil
	case "host":
		return sentineltypes.SideHost, nil
	default:
		return sentineltypes.SideUnknown, fmt.Errorf("config: unrecognised side %q", n.Side)
	}
}

// GasLimit resolves the gas limit for kind on network n: the configured
// override for kind if there is one, else the caller-supplied fallback.
// There is no network-wide gas limit setting.
func (n NetworkConfig) GasLimit(kind string, fallback uint64) uint64 {
	if v, ok := n.GasLimitOverrides[kind]; ok {
		return v
	}
	return fallback
}
