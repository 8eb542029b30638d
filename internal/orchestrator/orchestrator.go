// Package orchestrator polls the coordinator for a new parent block,
// launches a mining round, and forwards winners to a submission
// worker, per spec §4.F.
package orchestrator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"go.uber.org/zap"

	"github.com/djkazic/dodmine/internal/bitwork"
	"github.com/djkazic/dodmine/internal/coordinator"
	"github.com/djkazic/dodmine/internal/engine"
	"github.com/djkazic/dodmine/internal/fleet"
	"github.com/djkazic/dodmine/internal/metrics"
	"github.com/djkazic/dodmine/internal/roundlog"
	"github.com/djkazic/dodmine/internal/signer"
	"github.com/djkazic/dodmine/internal/workerpool"
)

const (
	// DefaultTickInterval is how often the orchestrator checks for new work.
	DefaultTickInterval = 5 * time.Second

	// DefaultInitialDelay is the grace period before the first tick.
	DefaultInitialDelay = 1 * time.Second

	// DefaultDeadlineDiff is how far before next_block_time a round's
	// deadline is set.
	DefaultDeadlineDiff = 5 * time.Second

	submissionQueueDepth = 4
)

// Config bundles the per-miner parameters an orchestrator needs.
type Config struct {
	TickInterval time.Duration
	InitialDelay time.Duration
	DeadlineDiff time.Duration

	MaxWorkers   int
	MinerPubKey  []byte
	MinerAddress string
	PrivKey      *btcec.PrivateKey
	CyclesPrice  *big.Int
}

func (c *Config) setDefaults() {
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.DeadlineDiff == 0 {
		c.DeadlineDiff = DefaultDeadlineDiff
	}
}

// Orchestrator drives the periodic tick described in spec §4.F.
type Orchestrator struct {
	coord  coordinator.Coordinator
	pool   *workerpool.Pool
	log    *roundlog.Store
	fleet  *fleet.Node
	logger *zap.Logger
	cfg    Config

	runningMu sync.Mutex
	running   bool

	heightMu   sync.Mutex
	lastHeight uint64
	haveHeight bool

	submissions chan submissionEvent
}

type submissionEvent struct {
	ParentHash [32]byte
	Winning    signer.Winning
}

// New creates an Orchestrator. log may be nil to disable the round
// history journal; when present, its recorded tip seeds lastHeight so
// a restarted process doesn't immediately re-report a height the
// coordinator already confirmed. fleetNode may be nil to run as a
// single, fleet-unaware process.
func New(coord coordinator.Coordinator, log *roundlog.Store, fleetNode *fleet.Node, cfg Config, logger *zap.Logger) *Orchestrator {
	cfg.setDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	pool := workerpool.New(cfg.MaxWorkers)

	o := &Orchestrator{
		coord:       coord,
		pool:        pool,
		log:         log,
		fleet:       fleetNode,
		logger:      logger,
		cfg:         cfg,
		submissions: make(chan submissionEvent, submissionQueueDepth),
	}

	if log != nil {
		if tip, ok, err := log.Tip(); err == nil && ok {
			o.lastHeight = tip
			o.haveHeight = true
		}
	}

	return o
}

// Run blocks until ctx is cancelled, driving the tick loop and the
// submission worker.
func (o *Orchestrator) Run(ctx context.Context) error {
	go o.submissionWorker(ctx)

	initialTimer := time.NewTimer(o.cfg.InitialDelay)
	defer initialTimer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-initialTimer.C:
	}

	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	o.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			o.tick(ctx)
		}
	}
}

// tick implements the per-tick procedure from spec §4.F.
func (o *Orchestrator) tick(ctx context.Context) {
	o.runningMu.Lock()
	if o.running {
		o.runningMu.Unlock()
		return
	}
	o.running = true
	o.runningMu.Unlock()
	defer func() {
		o.runningMu.Lock()
		o.running = false
		o.runningMu.Unlock()
	}()

	height, summary, err := o.coord.GetLastBlock(ctx)
	if err != nil {
		metrics.CoordinatorErrors.WithLabelValues("get_last_block").Inc()
		o.logger.Warn("coordinator get_last_block failed", zap.Error(err))
		return
	}
	if summary == nil {
		return
	}

	o.heightMu.Lock()
	isNew := !o.haveHeight || height > o.lastHeight
	if isNew {
		o.lastHeight = height
		o.haveHeight = true
	}
	o.heightMu.Unlock()
	if !isNew {
		return
	}

	if o.fleet != nil {
		metrics.FleetPeers.Set(float64(o.fleet.PeerCount()))
	}
	if o.fleet != nil && o.fleet.Claimed(summary.Hash) {
		o.logger.Debug("skipping round already claimed by a fleet peer")
		return
	}

	deadlineNs := int64(summary.NextBlockTime) - o.cfg.DeadlineDiff.Nanoseconds()
	timestamp := uint32(time.Now().Unix())

	metrics.RoundsStarted.Inc()
	metrics.ActiveThreads.Set(float64(o.cfg.MaxWorkers))
	defer metrics.ActiveThreads.Set(0)

	if o.fleet != nil {
		o.fleet.Announce(fleet.EventRoundStart, height, summary.Hash)
	}

	result, err := engine.Mine(ctx, o.logger, engine.Params{
		Target:      summary.Difficulty,
		ParentHash:  summary.Hash,
		MinerPubKey: o.cfg.MinerPubKey,
		MaxWorkers:  o.cfg.MaxWorkers,
		DeadlineNs:  deadlineNs,
		Timestamp:   timestamp,
		Pool:        o.pool,
	})
	if err != nil {
		expired := errors.Is(err, engine.ErrDeadlineExpired)
		if expired {
			metrics.RoundsExpired.Inc()
			if o.fleet != nil {
				o.fleet.Announce(fleet.EventRoundExpired, height, summary.Hash)
			}
		} else {
			o.logger.Warn("mining round failed", zap.Error(err))
		}
		o.recordOutcome(height, summary.Hash, summary.Difficulty, false, expired)
		return
	}

	metrics.RoundsWon.Inc()
	o.recordOutcome(height, summary.Hash, summary.Difficulty, true, false)
	if o.fleet != nil {
		o.fleet.Announce(fleet.EventRoundWon, height, summary.Hash)
	}
	ev := submissionEvent{
		ParentHash: summary.Hash,
		Winning: signer.Winning{
			Time:      result.Time,
			NonceSeed: result.NonceSeed,
			NumBytes:  result.NumBytes,
		},
	}
	select {
	case o.submissions <- ev:
	default:
		o.logger.Warn("submission queue full, dropping stale winner")
	}
}

// recordOutcome appends the round's result to the journal, if one is
// configured. Journal failures are logged, not fatal: the log is a
// diagnostic aid, not mining state.
func (o *Orchestrator) recordOutcome(height uint64, parentHash [32]byte, target bitwork.Bitwork, won, expired bool) {
	if o.log == nil {
		return
	}
	err := o.log.Add(roundlog.Outcome{
		Height:     height,
		ParentHash: parentHash,
		Difficulty: target,
		Won:        won,
		Expired:    expired,
	})
	if err != nil {
		o.logger.Warn("failed to record round outcome", zap.Error(err))
	}
}

// submissionWorker drains the submission channel: for each winner it
// signs the commit/reveal pair and submits it to the coordinator.
// Signing failures are fatal (spec §7); submission failures are logged
// and dropped, since the next round supersedes a stale winner.
func (o *Orchestrator) submissionWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-o.submissions:
			commitHex, revealHex, err := signer.ComposeAndSign(
				ev.ParentHash,
				o.cfg.MinerPubKey,
				ev.Winning,
				o.cfg.MinerAddress,
				o.cfg.PrivKey,
			)
			if err != nil {
				o.logger.Fatal("signing commit/reveal pair failed", zap.Error(err))
				return
			}

			_, err = o.coord.Submit(ctx, coordinator.SubmitRequest{
				BtcAddress:       o.cfg.MinerAddress,
				SignedCommitPSBT: commitHex,
				SignedRevealPSBT: revealHex,
				CyclesPrice:      o.cfg.CyclesPrice,
			})
			if err != nil {
				metrics.SubmissionsRejected.Inc()
				o.logger.Warn("coordinator submit failed", zap.Error(err))
				continue
			}
			metrics.SubmissionsAccepted.Inc()
		}
	}
}
