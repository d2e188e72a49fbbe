package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

func testNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ChainID:      1,
		Side:         "native",
		Endpoints:    []string{"http://127.0.0.1:8545"},
		PnetworkHub:  "0x0000000000000000000000000000000000000001",
		Vault:        "0x0000000000000000000000000000000000000002",
		StateManager: "0x0000000000000000000000000000000000000003",
		Governance:   "0x0000000000000000000000000000000000000004",
		PrivateKey:   "0000000000000000000000000000000000000000000000000000000000000001",
	}
}

func TestBuildPipelineConfig(t *testing.T) {
	networkID := sentineltypes.NetworkID{0x00, 0xf2, 0x78, 0x3e}
	pc, err := BuildPipelineConfig(networkID, testNetworkConfig())
	require.NoError(t, err)
	require.Equal(t, networkID, pc.NetworkID)
	require.Equal(t, sentineltypes.SideNative, pc.Side)
	require.Equal(t, uint64(1), pc.ChainID.Uint64())
	require.Equal(t, uint64(6), pc.CanonToTipLength, "falls back to 6 when unconfigured")
}

func TestBuildPipelineConfigRejectsMissingChainID(t *testing.T) {
	n := testNetworkConfig()
	n.ChainID = 0
	_, err := BuildPipelineConfig(sentineltypes.NetworkID{}, n)
	require.ErrorContains(t, err, "chain_id")
}

func TestBuildPipelineConfigRejectsMissingPrivateKey(t *testing.T) {
	n := testNetworkConfig()
	n.PrivateKey = ""
	_, err := BuildPipelineConfig(sentineltypes.NetworkID{}, n)
	require.ErrorContains(t, err, "private_key")
}

func TestBuildSyncerConfig(t *testing.T) {
	networkID := sentineltypes.NetworkID{0x00, 0xf2, 0x78, 0x3e}
	n := testNetworkConfig()
	b := BatchingConfig{Size: 20, DurationMs: 5000}
	core := CoreConfig{TimeLimitS: 15}

	sc, err := BuildSyncerConfig(networkID, n, b, core)
	require.NoError(t, err)
	require.Equal(t, sentineltypes.SideNative, sc.Side)
	require.Equal(t, 20, sc.BatchSize)
	require.Equal(t, 5*time.Second, sc.BatchDuration)
	require.Equal(t, 15*time.Second, sc.SubmitTimeout)
}

func TestBuildSyncerConfigRejectsUnknownSide(t *testing.T) {
	n := testNetworkConfig()
	n.Side = "sideways"
	_, err := BuildSyncerConfig(sentineltypes.NetworkID{}, n, BatchingConfig{}, CoreConfig{})
	require.Error(t, err)
}

func TestNetworkIDFromKey(t *testing.T) {
	id, err := NetworkIDFromKey("00f2783e")
	require.NoError(t, err)
	require.Equal(t, sentineltypes.NetworkID{0x00, 0xf2, 0x78, 0x3e}, id)

	id2, err := NetworkIDFromKey("0x00f2783e")
	require.NoError(t, err)
	require.Equal(t, id, id2)

	_, err = NetworkIDFromKey("not-hex")
	require.Error(t, err)
}
