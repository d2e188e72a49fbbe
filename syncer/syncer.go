// Package syncer implements the asynchronous actor of spec section 4.5: the
// per-chain loop that fetches blocks one at a time, batches them, hands
// each batch to a pipeline.Pipeline's serialized dispatch loop, and reacts
// to NoParent/BlockAlreadyInDb responses by rewinding or skipping and
// forcing single-block submissions from then on.
//
// Grounded almost verbatim on
// v3_bridges/sentinel-app/src/syncer/syncer_loop.rs's main_loop/syncer_loop
// pair. Modelled as a goroutine selecting over typed channels and
// context cancellation rather than an async task, matching go-ethereum's
// own eth/downloader and eth/fetcher convention (spec section 4.5's "plain
// Go chan pair ... following go-ethereum's own convention").
package syncer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/pnetwork-association/sentinel-core/pipeline"
	"github.com/pnetwork-association/sentinel-core/rpcadapter"
	"github.com/pnetwork-association/sentinel-core/sentinelerr"
)

// Syncer drives one chain's pipeline end-to-end.
type Syncer struct {
	cfg         Config
	fetcher     rpcadapter.Fetcher
	broadcaster rpcadapter.Broadcaster
	reqCh       chan<- pipeline.Request
	pipe        *pipeline.Pipeline
	metrics     *chainMetrics
}

// New builds a Syncer for one chain. pipe is used only for its read-only
// LatestBlockNumber bootstrap query; every batch submission is sent over
// reqCh to whatever goroutine is running pipe.Serve. broadcaster may be nil,
// in which case signed transactions are logged but never sent on.
func New(cfg Config, fetcher rpcadapter.Fetcher, broadcaster rpcadapter.Broadcaster, pipe *pipeline.Pipeline, reqCh chan<- pipeline.Request) *Syncer {
	return &Syncer{
		cfg:         cfg,
		fetcher:     fetcher,
		broadcaster: broadcaster,
		pipe:        pipe,
		reqCh:       reqCh,
		metrics:     newChainMetrics(cfg.NetworkID, cfg.Side),
	}
}

// Run drives the syncer until ctx is cancelled, restarting its main loop on
// timeout exactly as syncer_loop.rs's outer select does, and returning the
// first non-timeout, non-cancellation error it sees.
func (s *Syncer) Run(ctx context.Context) error {
	log.Info("starting syncer", "side", s.cfg.Side)
	for {
		err := s.mainLoop(ctx)
		if ctx.Err() != nil {
			log.Warn("syncer shutting down", "side", s.cfg.Side)
			return ctx.Err()
		}
		if err == nil {
			continue
		}
		if sentinelerr.Is(err, sentinelerr.KindTimedout) {
			log.Warn("syncer timed out, restarting", "side", s.cfg.Side, "err", err)
			continue
		}
		log.Error("syncer errored, giving up", "side", s.cfg.Side, "err", err)
		return err
	}
}

// mainLoop bootstraps the starting block number, then fetches, batches and
// submits forever, returning only on a fatal error, a timeout or context
// cancellation (spec section 4.5 states 1-2).
func (s *Syncer) mainLoop(ctx context.Context) error {
	latest, err := s.bootstrap(ctx)
	if err != nil {
		return err
	}
	batch := NewBatch(s.cfg)
	batch.SetBlockNum(latest + 1)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		m, err := s.fetcher.MaterialByNumber(ctx, batch.BlockNum())
		if err != nil {
			if sentinelerr.Is(err, sentinelerr.KindNoBlock) {
				if tip, tipErr := s.fetcher.LatestBlockNumber(ctx); tipErr == nil {
					log.Debug("no next block yet, sleeping", "side", s.cfg.Side, "block", batch.BlockNum(), "remote_tip", tip)
				} else {
					log.Debug("no next block yet, sleeping", "side", s.cfg.Side, "block", batch.BlockNum())
				}
				if !sleepOrDone(ctx, s.cfg.SleepDuration) {
					return ctx.Err()
				}
				continue
			}
			return err
		}
		batch.Push(m)

		if !batch.IsReadyToSubmit() {
			batch.IncrementBlockNum()
			continue
		}

		req := batch.ToRequest()
		log.Info("batch ready to submit", "side", s.cfg.Side, "request", req.RequestID, "blocks", len(batch.Materials()))
		s.metrics.batchSize.Update(int64(len(batch.Materials())))
		start := time.Now()
		resp, err := s.submit(ctx, req)
		s.metrics.submitTimer.UpdateSince(start)
		switch {
		case err == nil:
			s.broadcastAll(ctx, resp)
			batch.Drain()
			batch.IncrementBlockNum()
		case sentinelerr.Is(err, sentinelerr.KindNoParent):
			n, _ := sentinelerr.BlockNum(err)
			log.Warn("no parent, rewinding", "side", s.cfg.Side, "block", n)
			s.metrics.recoveries.Inc(1)
			batch.Drain()
			batch.SetBlockNum(n - 1)
			batch.SetSingleSubmissionFlag()
		case sentinelerr.Is(err, sentinelerr.KindBlockAlreadyInDB):
			n, _ := sentinelerr.BlockNum(err)
			log.Warn("block already in db, skipping", "side", s.cfg.Side, "block", n)
			s.metrics.recoveries.Inc(1)
			batch.Drain()
			batch.SetBlockNum(n + 1)
			batch.SetSingleSubmissionFlag()
		default:
			return err
		}
	}
}

// bootstrap retries the pipeline's latest-block-number query until it
// clears NotInitialized (spec section 4.5 state 1).
func (s *Syncer) bootstrap(ctx context.Context) (uint64, error) {
	for {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		latest, err := s.pipe.LatestBlockNumber()
		if err == nil {
			return latest, nil
		}
		if !sentinelerr.Is(err, sentinelerr.KindNotInitialized) {
			return 0, err
		}
		log.Warn("chain not initialized yet, retrying", "side", s.cfg.Side)
		if !sleepOrDone(ctx, s.cfg.BootstrapRetryInterval) {
			return 0, ctx.Err()
		}
	}
}

// submit hands req to whichever goroutine is running the pipeline's Serve
// loop and waits for a response, a context cancellation, or
// cfg.SubmitTimeout's deadline expiring first.
func (s *Syncer) submit(ctx context.Context, req pipeline.ProcessBatchRequest) (*pipeline.ProcessBatchResponse, error) {
	reply := make(chan pipeline.Result, 1)
	select {
	case s.reqCh <- pipeline.Request{Req: req, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timer := time.NewTimer(s.cfg.SubmitTimeout)
	defer timer.Stop()
	select {
	case res := <-reply:
		return res.Resp, res.Err
	case <-timer.C:
		return nil, sentinelerr.New(sentinelerr.KindTimedout, "submitting batch for %s %s", s.cfg.Side, s.cfg.NetworkID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// broadcastAll sends every signed transaction a successful submission
// produced on to the network, logging (not failing the loop on) individual
// broadcast errors: a rejected broadcast doesn't un-sign the transaction or
// roll back the already-committed pipeline state.
func (s *Syncer) broadcastAll(ctx context.Context, resp *pipeline.ProcessBatchResponse) {
	if resp == nil || s.broadcaster == nil {
		return
	}
	for _, tx := range resp.SignedTxs {
		if err := s.broadcaster.SendTransaction(ctx, tx); err != nil {
			log.Error("failed to broadcast signed transaction", "side", s.cfg.Side, "hash", tx.Hash(), "err", err)
		}
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
