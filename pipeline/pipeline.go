// Package pipeline implements the synchronous orchestrator of spec section
// 4.8: the single entry point a syncer's request/response channel calls
// into. One call runs validate -> append -> move pointers -> extract
// events -> user-op state machine -> fee engine -> sign/cancel -> commit,
// all inside one DB transaction, and maps chain-store/event/userop/
// txbuilder errors onto the response kinds of spec section 7.
//
// Grounded on the message-handling shape implied by
// v3_bridges/sentinel-app/src/syncer/syncer_loop.rs's
// WebSocketMessagesEncodable::ProcessBatch call and its Success/NoParent/
// BlockAlreadyInDb response variants.
package pipeline

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/pnetwork-association/sentinel-core/chainstore"
	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/debugops"
	"github.com/pnetwork-association/sentinel-core/dictionary"
	"github.com/pnetwork-association/sentinel-core/events"
	"github.com/pnetwork-association/sentinel-core/feeengine"
	"github.com/pnetwork-association/sentinel-core/sentinelerr"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
	"github.com/pnetwork-association/sentinel-core/txbuilder"
	"github.com/pnetwork-association/sentinel-core/userop"
)

// Config holds the per-chain, rarely-changing parameters a Pipeline needs
// to sign outgoing transactions and run its chain store, set once at
// startup wiring time (spec section 3.10's batch network metadata plus
// the signing material of section 4.4).
type Config struct {
	NetworkID           sentineltypes.NetworkID
	Side                sentineltypes.BridgeSide
	HubAddress          common.Address
	VaultAddress        common.Address
	StateManagerAddress common.Address
	ChainID             *big.Int
	GasLimit            uint64
	DefaultGasPrice     *big.Int
	CanonToTipLength    uint64
	PrivateKey          *ecdsa.PrivateKey
}

// Pipeline is the single synchronous orchestrator of spec section 4.8,
// bound to one chain's store and signing configuration.
type Pipeline struct {
	backend db.TransactionalDatabase
	family  chainstore.ChainFamily
	cfg     Config
}

// New builds a Pipeline over backend (the top-level db.Store), running its
// chain store as a family instance (chainstore.EVMFamily for header+
// receipts chains).
func New(backend db.TransactionalDatabase, family chainstore.ChainFamily, cfg Config) *Pipeline {
	return &Pipeline{backend: backend, family: family, cfg: cfg}
}

// LatestBlockNumber returns this chain's latest known block number, the read
// a syncer's bootstrap loop polls until it gets a non-error answer (spec
// section 4.5 state 1). It is a plain read against the shared backend, not
// routed through Serve's request channel: it mutates nothing, so it carries
// none of the single-consumer serialisation a submission needs.
func (p *Pipeline) LatestBlockNumber() (uint64, error) {
	store, err := chainstore.New(p.backend, p.cfg.NetworkID, p.family, p.cfg.CanonToTipLength)
	if err != nil {
		return 0, err
	}
	return store.LatestBlockNumber()
}

// ProcessBatchRequest is one syncer's submission of a contiguous run of
// materials for this pipeline's chain.
type ProcessBatchRequest struct {
	Materials []*submission.Material

	// SkipFeeAccrual suppresses the fee-accrual step while still
	// subtracting fees from outgoing amounts (spec section 9's resolved
	// Open Question), set to true only by debugops.ForceReprocessBlock.
	SkipFeeAccrual bool

	// RequestID correlates one submission across the syncer's logs and
	// the core's own, the same way a request id ties together a
	// multi-hop RPC trace. Generated once per batch by the syncer
	// (syncer.Batch.ToRequest); the zero UUID is valid and simply logs as
	// all-zero for requests built outside that path (tests, debug tools).
	RequestID uuid.UUID
}

// ProcessBatchResponse is what ProcessBatch hands back to the syncer on
// success: how many materials were appended and what transactions, if any,
// must now be broadcast.
type ProcessBatchResponse struct {
	AppendedBlocks int
	SignedTxs      []*types.Transaction
	NewNonce       uint64
}

// ProcessBatch runs req's materials through the whole pipeline inside one
// DB transaction, committing only if every step succeeds. A chainstore
// error (NoParent, BlockAlreadyInDB, ...) aborts the transaction and is
// returned unwrapped so the syncer can react per spec section 4.5's
// three-way branch; nothing from a partially-processed batch is
// persisted.
func (p *Pipeline) ProcessBatch(ctx context.Context, req ProcessBatchRequest) (*ProcessBatchResponse, error) {
	log.Debug("processing batch", "network", p.cfg.NetworkID, "side", p.cfg.Side, "request", req.RequestID, "blocks", len(req.Materials))
	tx, err := p.backend.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	store, err := chainstore.New(tx, p.cfg.NetworkID, p.family, p.cfg.CanonToTipLength)
	if err != nil {
		return nil, err
	}
	userOps := userop.NewStore(tx)
	dict := dictionary.NewTable(tx)
	debug := debugops.NewCommands(tx)

	var items []txbuilder.CalldataItem
	appended := 0

	for _, m := range req.Materials {
		if err := store.Append(ctx, m); err != nil {
			return nil, err
		}
		appended++

		if err := store.AdvanceLatest(); err != nil {
			return nil, err
		}
		if err := store.MaybeUpdateCanon(); err != nil {
			return nil, err
		}
		if err := store.MaybeUpdateTail(); err != nil {
			return nil, err
		}
		if err := store.MaybeUpdateLinkerHash(); err != nil {
			return nil, err
		}
		tail, err := store.Tail()
		if err != nil {
			return nil, err
		}
		if err := store.RemoveParentsIfNotAnchor(tail); err != nil {
			return nil, err
		}

		userOpEvents, _, err := events.Decode(m, p.cfg.HubAddress)
		if err != nil {
			return nil, err
		}
		for _, ev := range userOpEvents {
			outs, err := p.handleOp(userOps, dict, ev, m.Timestamp, req.SkipFeeAccrual)
			if err != nil {
				return nil, err
			}
			items = append(items, outs...)
		}
	}

	startNonce, gasPrice, err := p.signingParams(debug)
	if err != nil {
		return nil, err
	}

	resp := &ProcessBatchResponse{AppendedBlocks: appended, NewNonce: startNonce}
	if len(items) > 0 {
		builder := txbuilder.New(p.cfg.ChainID, p.cfg.VaultAddress, p.cfg.StateManagerAddress, p.cfg.GasLimit, gasPrice, p.cfg.PrivateKey)
		signedTxs, err := builder.SignCalldataBatch(startNonce, items)
		if err != nil {
			return nil, err
		}
		newNonce, err := debug.IncrementAccountNonce(p.cfg.NetworkID, uint64(len(signedTxs)))
		if err != nil {
			return nil, err
		}
		resp.SignedTxs = signedTxs
		resp.NewNonce = newNonce
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Request is one syncer's batch submission sent to a Pipeline's serialized
// dispatch loop (spec section 5: "the core itself is a single-consumer
// actor: all DB mutations are serialised through one task that owns the DB
// handle"). Reply is buffered or unbuffered at the caller's discretion; Serve
// never blocks past ctx's cancellation trying to deliver to it.
type Request struct {
	Req   ProcessBatchRequest
	Reply chan Result
}

// Result is what a Request's Reply channel receives: exactly one of Resp or
// Err is non-nil.
type Result struct {
	Resp *ProcessBatchResponse
	Err  error
}

// Serve runs p's single-consumer dispatch loop, processing requests off
// reqCh one at a time until ctx is cancelled. A submission that has already
// started always runs to completion (commit or rollback) even if nobody is
// left to receive its Result, matching spec section 5's "a dropped
// request-side of a request/response channel ... causes the in-flight
// submission to still commit".
func (p *Pipeline) Serve(ctx context.Context, reqCh <-chan Request) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-reqCh:
			resp, err := p.ProcessBatch(ctx, req.Req)
			select {
			case req.Reply <- Result{Resp: resp, Err: err}:
			case <-ctx.Done():
			}
		}
	}
}

// signingParams reads the nonce and gas price currently in effect for this
// chain, falling back to zero and the configured default gas price the
// first time either has never been set.
func (p *Pipeline) signingParams(debug *debugops.Commands) (uint64, *big.Int, error) {
	startNonce, err := debug.AccountNonce(p.cfg.NetworkID)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil, err
		}
		startNonce = 0
	}
	gasPrice, err := debug.GasPrice(p.cfg.NetworkID)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			return 0, nil, err
		}
		gasPrice = p.cfg.DefaultGasPrice
	}
	return startNonce, gasPrice, nil
}

// handleOp converts one decoded event into a userop.Op, runs it through the
// state machine, and returns any calldata item (mint/pegOut on a fresh
// transition into Enqueued, protocolCancel on the "enqueued but never
// witnessed" defensive path) it produces. A merge that regresses state, or
// re-observes an already-Enqueued op, produces no output: each outgoing
// call is built exactly once per op.
func (p *Pipeline) handleOp(store *userop.Store, dict *dictionary.Table, ev events.UserOpEvent, blockTimestamp uint64, skipAccrual bool) ([]txbuilder.CalldataItem, error) {
	var witnessedTimestamp uint64
	if ev.Kind == events.KindWitnessed {
		witnessedTimestamp = blockTimestamp
	}
	op := userop.FromEvent(ev, p.cfg.Side, witnessedTimestamp)

	uid, err := op.UID()
	if err != nil {
		return nil, err
	}
	existedBefore, prevState, err := opSnapshot(store, uid)
	if err != nil {
		return nil, err
	}

	toCancel, err := store.Process(op)
	if err != nil {
		return nil, err
	}
	if toCancel != nil {
		data, err := txbuilder.ProtocolCancelCalldata(uid)
		if err != nil {
			return nil, err
		}
		return []txbuilder.CalldataItem{{To: p.cfg.StateManagerAddress, Data: data}}, nil
	}

	after, err := store.Get(uid)
	if err != nil {
		return nil, err
	}

	if !existedBefore && after.State == userop.StateWitnessed && !skipAccrual {
		if err := accrueFee(dict, after); err != nil {
			return nil, err
		}
	}

	if after.State == userop.StateEnqueued && (!existedBefore || prevState != userop.StateEnqueued) {
		data, err := p.buildOutgoingCalldata(dict, after)
		if err != nil {
			return nil, err
		}
		return []txbuilder.CalldataItem{{To: p.cfg.VaultAddress, Data: data}}, nil
	}
	return nil, nil
}

func opSnapshot(store *userop.Store, uid common.Hash) (bool, userop.State, error) {
	existing, err := store.Get(uid)
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, existing.State, nil
}

func accrueFee(dict *dictionary.Table, op *userop.Op) error {
	amount, overflow := uint256.FromBig(op.Amount)
	if overflow {
		return sentinelerr.New(sentinelerr.KindFeeExceedsAmount, "amount %s overflows uint256", op.Amount)
	}
	return feeengine.Accrue(dict, []feeengine.TxInfo{{TokenAddress: op.UnderlyingAssetAddress, Amount: amount}})
}

// buildOutgoingCalldata fee-adjusts op's amount and encodes the mint or
// pegOut call matching this pipeline's bridge side (host mints the wrapped
// asset; native pegs the underlying asset back out).
func (p *Pipeline) buildOutgoingCalldata(dict *dictionary.Table, op *userop.Op) ([]byte, error) {
	amount, overflow := uint256.FromBig(op.Amount)
	if overflow {
		return nil, sentinelerr.New(sentinelerr.KindFeeExceedsAmount, "amount %s overflows uint256", op.Amount)
	}
	subtracted, err := feeengine.Subtract(dict, []feeengine.TxInfo{{TokenAddress: op.UnderlyingAssetAddress, Amount: amount}})
	if err != nil {
		return nil, err
	}
	info := txbuilder.TransferInfo{
		Recipient:    common.HexToAddress(op.DestinationAccount),
		TokenAddress: op.UnderlyingAssetAddress,
		Amount:       subtracted[0].Amount.ToBig(),
		UserData:     op.UserData,
	}
	if p.cfg.Side == sentineltypes.SideHost {
		return txbuilder.MintCalldata(info)
	}
	return txbuilder.PegOutCalldata(info)
}
