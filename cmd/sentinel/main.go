// Command sentinel runs one or more per-chain syncer/pipeline pairs against
// a shared database, exactly the long-running process spec.md describes:
// one actor pair per configured network, all DB mutations serialised
// through each chain's own pipeline.Serve loop.
//
// Grounded on cmd/geth's own App-per-binary, flags-driven Action
// convention: a urfave/cli/v2 App with a handful of global flags and a
// single default Action that loads config, wires every network, and runs
// until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/pnetwork-association/sentinel-core/chainstore"
	"github.com/pnetwork-association/sentinel-core/config"
	"github.com/pnetwork-association/sentinel-core/db"
	"github.com/pnetwork-association/sentinel-core/pipeline"
	"github.com/pnetwork-association/sentinel-core/rpcadapter"
	"github.com/pnetwork-association/sentinel-core/sentineltypes"
	"github.com/pnetwork-association/sentinel-core/syncer"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Usage:   "path to the TOML configuration file",
		Value:   "sentinel.toml",
		Aliases: []string{"c"},
		EnvVars: []string{"SENTINEL_CONFIG"},
	}
	datadirFlag = &cli.StringFlag{
		Name:    "datadir",
		Usage:   "directory holding the chain databases",
		Value:   "sentinel-data",
		EnvVars: []string{"SENTINEL_DATADIR"},
	}
	verbosityFlag = &cli.IntFlag{
		Name:    "verbosity",
		Usage:   "logging verbosity: 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value:   int(log.LvlInfo),
		EnvVars: []string{"SENTINEL_VERBOSITY"},
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "sentinel"
	app.Usage = "cross-chain bridge validator and transaction signer"
	app.Flags = []cli.Flag{configFlag, datadirFlag, verbosityFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging mirrors cmd/geth's own Setup(): a level-filtered handler
// writing terminal-formatted records to stderr.
func setupLogging(ctx *cli.Context) {
	lvl := log.Lvl(ctx.Int(verbosityFlag.Name))
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat(false))))
}

func run(ctx *cli.Context) error {
	setupLogging(ctx)

	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}

	backend, err := db.Open(ctx.String(datadirFlag.Name), nil)
	if err != nil {
		return fmt.Errorf("sentinel: opening database: %w", err)
	}
	defer backend.Close()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go waitForSignal(cancel)

	g, gctx := errgroup.WithContext(runCtx)
	for key, n := range cfg.Networks {
		key, n := key, n
		networkID, err := config.NetworkIDFromKey(key)
		if err != nil {
			return err
		}
		b, ok := cfg.Batching[key]
		if !ok {
			return fmt.Errorf("sentinel: networks.%s has no matching batching.%s entry", key, key)
		}

		pipe, reqCh, fetcher, broadcaster, err := wireNetwork(gctx, backend, networkID, n)
		if err != nil {
			return fmt.Errorf("sentinel: wiring network %s: %w", networkID, err)
		}

		syncCfg, err := config.BuildSyncerConfig(networkID, n, b, cfg.Core)
		if err != nil {
			return fmt.Errorf("sentinel: network %s: %w", networkID, err)
		}
		s := syncer.New(syncCfg, fetcher, broadcaster, pipe, reqCh)

		g.Go(func() error { pipe.Serve(gctx, reqCh); return nil })
		g.Go(func() error { return s.Run(gctx) })
	}

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

// wireNetwork builds one network's pipeline, request channel and RPC
// adapter. The pipeline and its request channel are handed to exactly one
// Serve goroutine and one syncer, per spec section 5's single-consumer
// requirement.
func wireNetwork(ctx context.Context, backend *db.Store, networkID sentineltypes.NetworkID, n config.NetworkConfig) (*pipeline.Pipeline, chan pipeline.Request, *rpcadapter.EVMFetcher, *rpcadapter.EVMFetcher, error) {
	pipeCfg, err := config.BuildPipelineConfig(networkID, n)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	pipe := pipeline.New(backend, chainstore.EVMFamily{}, pipeCfg)

	fetcher, err := rpcadapter.DialEVMFetcher(ctx, networkID, n.Endpoints)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	reqCh := make(chan pipeline.Request)
	return pipe, reqCh, fetcher, fetcher, nil
}

func waitForSignal(cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Warn("received shutdown signal")
	cancel()
}
