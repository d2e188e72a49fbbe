// Package rpcadapter implements the "assumed available" RPC collaborator of
// spec section 6: turning a chain's JSON-RPC endpoint into the
// (networkID, blockNumber) -> (*submission.Material, error) and
// networkID -> (latest uint64, error) contract a syncer polls against.
//
// Grounded on github.com/ethereum/go-ethereum/ethclient's own Client, the
// teacher's canonical way of talking to an EVM JSON-RPC endpoint, and on
// common/ethereum/src/eth_block_from_json_rpc.rs for which fields a fetched
// block must carry before it can become a submission.Material.
package rpcadapter

import (
	"context"
	"math/big"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"

	"github.com/pnetwork-association/sentinel-core/sentinelerr"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/submission"
)

// Fetcher is the contract a syncer polls: one block's material at a time,
// and the chain's current tip.
type Fetcher interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	MaterialByNumber(ctx context.Context, blockNumber uint64) (*submission.Material, error)
}

// Broadcaster sends a pipeline's signed outgoing transactions on to the
// network. Kept separate from Fetcher since a debug/dry-run deployment may
// want to fetch without ever broadcasting.
type Broadcaster interface {
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EVMFetcher is the EVM-family Fetcher, wrapping one or more ethclient.Client
// endpoints for a single chain. Endpoints are tried round-robin on error,
// matching networks.{id}.endpoints of spec section 6.
type EVMFetcher struct {
	networkID sentineltypes.NetworkID
	clients   []*ethclient.Client
	next      uint32
}

// DialEVMFetcher dials every endpoint URL eagerly so a misconfigured
// endpoint is caught at startup rather than on the first poll.
func DialEVMFetcher(ctx context.Context, networkID sentineltypes.NetworkID, endpoints []string) (*EVMFetcher, error) {
	if len(endpoints) == 0 {
		return nil, sentinelerr.New(sentinelerr.KindInvalidHeader, "rpcadapter: no endpoints configured")
	}
	clients := make([]*ethclient.Client, 0, len(endpoints))
	for _, url := range endpoints {
		c, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return &EVMFetcher{networkID: networkID, clients: clients}, nil
}

// pick round-robins over the configured endpoints, advancing regardless of
// outcome so a failing endpoint doesn't get preferentially retried.
func (f *EVMFetcher) pick() *ethclient.Client {
	i := atomic.AddUint32(&f.next, 1) - 1
	return f.clients[int(i)%len(f.clients)]
}

// LatestBlockNumber returns the chain's current tip, trying every endpoint
// in turn before giving up.
func (f *EVMFetcher) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var lastErr error
	for range f.clients {
		n, err := f.pick().BlockNumber(ctx)
		if err == nil {
			return n, nil
		}
		lastErr = err
		log.Warn("rpcadapter: endpoint failed, trying next", "err", err)
	}
	return 0, lastErr
}

// MaterialByNumber fetches the header and every transaction's receipt for
// blockNumber and assembles a submission.Material, returning
// sentinelerr.KindNoBlock if the chain hasn't produced that block yet.
func (f *EVMFetcher) MaterialByNumber(ctx context.Context, blockNumber uint64) (*submission.Material, error) {
	var lastErr error
	for range f.clients {
		m, err := f.fetchOnce(ctx, f.pick(), blockNumber)
		if err == nil {
			return m, nil
		}
		lastErr = err
		log.Warn("rpcadapter: endpoint failed, trying next", "err", err)
	}
	return nil, lastErr
}

func (f *EVMFetcher) fetchOnce(ctx context.Context, c *ethclient.Client, blockNumber uint64) (*submission.Material, error) {
	num := new(big.Int).SetUint64(blockNumber)
	block, err := c.BlockByNumber(ctx, num)
	if err != nil {
		if err.Error() == "not found" {
			return nil, sentinelerr.New(sentinelerr.KindNoBlock, "block %d not yet available", blockNumber)
		}
		return nil, err
	}

	receipts := make(types.Receipts, 0, len(block.Transactions()))
	for _, txn := range block.Transactions() {
		r, err := c.TransactionReceipt(ctx, txn.Hash())
		if err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}

	m := submission.FromEVM(f.networkID, block.Header(), receipts)
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// SendTransaction broadcasts tx to the next endpoint in the round-robin,
// trying the rest in turn if it's rejected by the first.
func (f *EVMFetcher) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	var lastErr error
	for range f.clients {
		err := f.pick().SendTransaction(ctx, tx)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn("rpcadapter: broadcast failed, trying next endpoint", "err", err)
	}
	return lastErr
}
