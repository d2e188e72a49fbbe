package syncer

import (
	"fmt"

	"github.com/ethereum/go-ethereum/metrics"

	"github.com/pnetwork-association/sentinel-core/sentineltypes"
)

// chainMetrics holds one chain's registered gauges/timers, following the
// naming convention of eth/downloader's own metered queue
// ("eth/downloader/<stage>").
type chainMetrics struct {
	batchSize   metrics.Gauge
	submitTimer metrics.Timer
	recoveries  metrics.Counter
}

func newChainMetrics(networkID sentineltypes.NetworkID, side sentineltypes.BridgeSide) *chainMetrics {
	prefix := fmt.Sprintf("sentinel/syncer/%s/%s", side, networkID)
	return &chainMetrics{
		batchSize:   metrics.NewRegisteredGauge(prefix+"/batch_size", nil),
		submitTimer: metrics.NewRegisteredTimer(prefix+"/submit", nil),
		recoveries:  metrics.NewRegisteredCounter(prefix+"/recoveries", nil),
	}
}
