// Command miner runs the hybrid proof-of-work mining client described
// in spec §6: it polls a coordinator for new parent blocks, mines a
// taproot-embedded commit/reveal pair against the coordinator's
// bitwork target, and submits winners back to the coordinator.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"

	"github.com/djkazic/dodmine/internal/config"
	"github.com/djkazic/dodmine/internal/coordinator"
	"github.com/djkazic/dodmine/internal/fleet"
	"github.com/djkazic/dodmine/internal/metrics"
	"github.com/djkazic/dodmine/internal/orchestrator"
	"github.com/djkazic/dodmine/internal/roundlog"
	"github.com/djkazic/dodmine/pkg/bitcoinutil"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] != "miner" {
		fmt.Fprintln(os.Stderr, "usage: dodmine miner [flags]")
		os.Exit(2)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Parse(os.Args[2:])
	if err != nil {
		var invalidErr *config.InvalidConfigError
		if errors.As(err, &invalidErr) {
			logger.Fatal("fatal configuration error", zap.Error(invalidErr))
		}
		logger.Fatal("failed to parse flags", zap.Error(err))
	}

	threads := cfg.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := roundlog.Open(cfg.RoundLogPath, logger)
	if err != nil {
		logger.Fatal("failed to open round history journal", zap.Error(err))
	}
	defer log.Close()

	var fleetNode *fleet.Node
	if cfg.FleetEnabled {
		fleetNode, err = fleet.NewNode(ctx, cfg.FleetPort, cfg.FleetDataDir, logger)
		if err != nil {
			logger.Fatal("failed to start fleet node", zap.Error(err))
		}
		defer fleetNode.Close()
		if err := fleetNode.StartDiscovery(ctx, cfg.FleetMDNS, cfg.FleetBootnodes); err != nil {
			logger.Warn("fleet discovery failed to start", zap.Error(err))
		}
	}

	coord := coordinator.NewHTTPClient(cfg.CoordinatorURL)

	if _, err := coord.Register(ctx, cfg.MinerAddress, bitcoinutil.BytesToHex(cfg.MinerPubKey)); err != nil {
		logger.Fatal("failed to register with coordinator", zap.Error(err))
	}

	o := orchestrator.New(coord, log, fleetNode, orchestrator.Config{
		MaxWorkers:   threads,
		MinerPubKey:  cfg.MinerPubKey,
		MinerAddress: cfg.MinerAddress,
		PrivKey:      cfg.MinerPrivKey,
		CyclesPrice:  cfg.CyclesPrice,
	}, logger)

	go serveMetrics(cfg.MetricsListen, logger)

	logger.Info("miner starting",
		zap.Int("threads", threads),
		zap.String("address", cfg.MinerAddress),
		zap.String("coordinator", cfg.CoordinatorURL),
		zap.Bool("fleet", cfg.FleetEnabled),
	)

	if err := o.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("orchestrator exited", zap.Error(err))
	}
	logger.Info("miner shutting down")
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
