package syncer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/pnetwork-association/sentinel-core/pipeline"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

// Config holds one syncer's unchanging parameters, expanding spec section
// 3.10's batch network metadata (ChainID, GovernanceAddress, PnetworkHub)
// alongside the batching/polling knobs of spec section 6
// (`batching.{id}.size`, `.duration_ms`, `core.time_limit_s`).
type Config struct {
	NetworkID         sentineltypes.NetworkID
	Side              sentineltypes.BridgeSide
	ChainID           *big.Int
	GovernanceAddress common.Address
	PnetworkHub       common.Address

	// BatchSize is the material count that makes a batch ready to submit.
	BatchSize int
	// BatchDuration is the wall-clock age that also makes a batch ready to
	// submit; zero means submit every block as its own batch of one,
	// matching the teacher-adjacent config's "a batch duration of 0 means
	// we submit material one at a time".
	BatchDuration time.Duration
	// SleepDuration is how long the main loop waits before re-polling the
	// RPC adapter after a NoBlock answer.
	SleepDuration time.Duration
	// BootstrapRetryInterval is how long the bootstrap loop waits before
	// re-asking the pipeline for its latest block number after
	// NotInitialized.
	BootstrapRetryInterval time.Duration
	// SubmitTimeout is the per-submission deadline handed to the pipeline
	// request/response round trip (spec's `core.time_limit_s`).
	SubmitTimeout time.Duration
	// Validate carries networks.{id}.validate. Neither the syncer nor
	// ProcessBatchRequest reads it: header and receipt validation in the
	// chain store always runs, whatever its value.
	Validate bool
}

// Batch accumulates submission.Material for one chain between submissions,
// tracking the next block number to fetch and whether a NoParent/
// BlockAlreadyInDb recovery has forced single-block submissions (spec
// section 4.5 states e/f).
type Batch struct {
	cfg Config

	blockNum         uint64
	materials        []*submission.Material
	firstPushedAt    time.Time
	singleSubmission bool
}

// NewBatch builds an empty Batch for cfg, starting at block number 0 (the
// syncer's bootstrap step overwrites this before the main loop begins).
func NewBatch(cfg Config) *Batch {
	return &Batch{cfg: cfg}
}

func (b *Batch) BlockNum() uint64 { return b.blockNum }

func (b *Batch) SetBlockNum(n uint64) { b.blockNum = n }

func (b *Batch) IncrementBlockNum() { b.blockNum++ }

// Push appends m to the batch, stamping the batch's age clock on the first
// push since the last Drain.
func (b *Batch) Push(m *submission.Material) {
	if len(b.materials) == 0 {
		b.firstPushedAt = time.Now()
	}
	b.materials = append(b.materials, m)
}

// IsReadyToSubmit reports whether the batch should be handed to the
// pipeline now: a forced single-submission recovery, a zero-duration
// "one at a time" configuration, a size threshold, or a duration
// threshold, in that order (spec section 4.5 step b).
func (b *Batch) IsReadyToSubmit() bool {
	if len(b.materials) == 0 {
		return false
	}
	if b.singleSubmission {
		return true
	}
	if b.cfg.BatchDuration <= 0 {
		return true
	}
	if len(b.materials) >= b.cfg.BatchSize {
		return true
	}
	return time.Since(b.firstPushedAt) >= b.cfg.BatchDuration
}

// Drain empties the batch's materials after a submission, regardless of
// outcome. The single-submission flag, once set, is left in place: a chain
// that has needed a NoParent/BlockAlreadyInDb recovery keeps submitting one
// block at a time for the rest of this syncer's run.
func (b *Batch) Drain() { b.materials = nil }

// SetSingleSubmissionFlag forces every subsequent batch to be ready as soon
// as it holds one material (spec section 4.5 steps e/f).
func (b *Batch) SetSingleSubmissionFlag() { b.singleSubmission = true }

// Materials returns the batch's accumulated, as-yet-unsubmitted blocks.
func (b *Batch) Materials() []*submission.Material { return b.materials }

// ToRequest builds the pipeline request this batch currently represents,
// tagging it with a fresh request id so the syncer's and the core's log
// lines for the same submission can be correlated.
func (b *Batch) ToRequest() pipeline.ProcessBatchRequest {
	return pipeline.ProcessBatchRequest{Materials: b.materials, RequestID: uuid.New()}
}
