package config

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pnetwork-association/sentinel-core/pipeline"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/syncer"
)

// NetworkIDFromKey turns a `networks.{id}`/`batching.{id}` TOML table key
// into a sentineltypes.NetworkID. Keys are the 4-byte network id encoded as
// 8 hex characters (with or without a leading "0x"), e.g. "00f2783e".
func NetworkIDFromKey(key string) (sentineltypes.NetworkID, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(key, "0x"))
	if err != nil {
		return sentineltypes.NetworkID{}, fmt.Errorf("config: network key %q is not hex: %w", key, err)
	}
	return sentineltypes.NetworkIDFromBytes(raw)
}

// BuildPipelineConfig resolves one network's TOML entry plus its signing
// key into a pipeline.Config, the form package pipeline actually consumes.
func BuildPipelineConfig(networkID sentineltypes.NetworkID, n NetworkConfig) (pipeline.Config, error) {
	side, err := n.BridgeSide()
	if err != nil {
		return pipeline.Config{}, err
	}
	if n.PrivateKey == "" {
		return pipeline.Config{}, fmt.Errorf("config: network %s has no private_key configured", networkID)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(n.PrivateKey, "0x"))
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("config: network %s private_key: %w", networkID, err)
	}
	if n.ChainID == 0 {
		return pipeline.Config{}, fmt.Errorf("config: network %s has no chain_id configured", networkID)
	}
	chainID := new(big.Int).SetUint64(n.ChainID)
	canonToTipLength := n.CanonToTipLength
	if canonToTipLength == 0 {
		canonToTipLength = 6
	}
	return pipeline.Config{
		NetworkID:           networkID,
		Side:                side,
		HubAddress:          common.HexToAddress(n.PnetworkHub),
		VaultAddress:        common.HexToAddress(n.Vault),
		StateManagerAddress: common.HexToAddress(n.StateManager),
		ChainID:             chainID,
		GasLimit:            n.GasLimit("mint", 300_000),
		DefaultGasPrice:     new(big.Int).SetUint64(n.GasPrice),
		CanonToTipLength:    canonToTipLength,
		PrivateKey:          key,
	}, nil
}

// BuildSyncerConfig resolves one network's batching entry plus core-wide
// timing into a syncer.Config.
func BuildSyncerConfig(networkID sentineltypes.NetworkID, n NetworkConfig, b BatchingConfig, core CoreConfig) (syncer.Config, error) {
	side, err := n.BridgeSide()
	if err != nil {
		return syncer.Config{}, err
	}
	return syncer.Config{
		NetworkID:              networkID,
		Side:                   side,
		ChainID:                new(big.Int).SetUint64(n.ChainID),
		GovernanceAddress:      common.HexToAddress(n.Governance),
		PnetworkHub:            common.HexToAddress(n.PnetworkHub),
		BatchSize:              b.Size,
		BatchDuration:          time.Duration(b.DurationMs) * time.Millisecond,
		SleepDuration:          2 * time.Second,
		BootstrapRetryInterval: 10 * time.Second,
		SubmitTimeout:          time.Duration(core.TimeLimitS) * time.Second,
		Validate:               n.Validate,
	}, nil
}
