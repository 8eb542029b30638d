// Package engine fans out parallel workers sweeping a transaction
// template's nonce window, racing to satisfy a bitwork target before a
// deadline, per spec §4.D.
package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/djkazic/dodmine/internal/bitwork"
	"github.com/djkazic/dodmine/internal/metrics"
	"github.com/djkazic/dodmine/internal/template"
	"github.com/djkazic/dodmine/internal/workerpool"
	"github.com/djkazic/dodmine/pkg/bitcoinutil"
)

// counterExhausted is the Replace-By-Fee reservation boundary; a worker
// that reaches it without a winner treats the round as expired.
const counterExhausted = 0xFFFF_FFFF_FFFF_FFFE

// progressInterval bounds how often a worker reports a hash-count delta
// for hashrate telemetry.
const progressInterval = 250 * time.Millisecond

// ErrDeadlineExpired is returned when no worker satisfies the target
// before the round deadline (including counter exhaustion, which is
// treated identically per spec §7).
var ErrDeadlineExpired = errors.New("engine: deadline expired")

// ResultKind distinguishes the hasher that produced a Result. Only CPU
// hashing exists today; the tag keeps room for a future GPU/ASIC path
// without changing the Result shape.
type ResultKind int

const (
	KindCPU ResultKind = iota
)

// Result is the winning worker's contribution, per spec §4.D.
type Result struct {
	Kind      ResultKind
	NumBytes  uint64
	Time      uint32
	NonceSeed uint32
}

// Params bundles one round's mining inputs.
type Params struct {
	Target      bitwork.Bitwork
	ParentHash  [32]byte
	MinerPubKey []byte
	MaxWorkers  int
	DeadlineNs  int64
	Timestamp   uint32

	// Pool, if set, is marked busy/idle as each worker starts and
	// finishes, per spec §4.G. Nil disables occupancy tracking.
	Pool *workerpool.Pool
}

type msgKind int

const (
	msgProgress msgKind = iota
	msgResult
	msgExpired
)

type workerMsg struct {
	kind   msgKind
	result Result
	hashes uint64
}

// Mine runs one round. It returns the winning Result, or
// ErrDeadlineExpired if the round's deadline passes with no winner.
func Mine(ctx context.Context, logger *zap.Logger, params Params) (*Result, error) {
	if params.MaxWorkers < 1 {
		return nil, fmt.Errorf("engine: max workers must be >= 1, got %d", params.MaxWorkers)
	}
	if len(params.MinerPubKey) != 32 {
		return nil, fmt.Errorf("engine: miner pubkey must be 32 bytes, got %d", len(params.MinerPubKey))
	}

	prefix := bitcoinutil.ReverseBytes(params.ParentHash[:])

	// stop tells every worker to return immediately once the round has
	// a winner or has expired, so a loser never keeps sweeping (and
	// publishing progress pings) for however long remains until the
	// original deadline.
	stop := make(chan struct{})
	ch := make(chan workerMsg, params.MaxWorkers*8)

	var wg sync.WaitGroup
	for w := 0; w < params.MaxWorkers; w++ {
		txBytes, nonceOffset, err := template.Build(params.ParentHash, params.MinerPubKey, params.Timestamp, uint32(w))
		if err != nil {
			close(stop)
			return nil, fmt.Errorf("engine: build template for worker %d: %w", w, err)
		}
		wg.Add(1)
		go func(index int, args workerArgs) {
			defer wg.Done()
			if params.Pool != nil {
				params.Pool.MarkBusy(index)
				defer params.Pool.Mark(index, workerpool.Idle)
			}
			runWorker(args)
		}(w, workerArgs{
			index:       w,
			tx:          txBytes,
			nonceOffset: nonceOffset,
			prefix:      prefix,
			target:      params.Target,
			deadlineNs:  params.DeadlineNs,
			timestamp:   params.Timestamp,
			ch:          ch,
			stop:        stop,
		})
	}

	var totalHashes uint64
	var winner *Result
	var expired bool
	roundStart := time.Now()
	ctxErr := false

loop:
	for {
		select {
		case <-ctx.Done():
			ctxErr = true
			break loop
		case msg := <-ch:
			switch msg.kind {
			case msgProgress:
				totalHashes += msg.hashes
				if elapsed := time.Since(roundStart).Seconds(); elapsed > 0 {
					metrics.LocalHashrate.Set(float64(totalHashes) / elapsed)
				}
			case msgResult:
				r := msg.result
				winner = &r
				break loop
			case msgExpired:
				expired = true
				break loop
			}
		}
	}

	// Every worker still running at this point is a loser; tell them to
	// stop, then drain the channel until they've all actually exited so
	// a late progress or terminal send can never block on a full
	// buffer. This keeps the "workers always terminate" guarantee true
	// regardless of how far away the original deadline still is.
	close(stop)
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for range ch {
		}
	}()
	wg.Wait()
	close(ch)
	<-drained

	if ctxErr {
		return nil, ctx.Err()
	}

	if logger != nil {
		logger.Debug("round terminated",
			zap.Bool("won", winner != nil),
			zap.Bool("expired", expired),
			zap.Uint64("hashes_observed", totalHashes),
		)
	}

	if winner != nil {
		return winner, nil
	}
	return nil, ErrDeadlineExpired
}

type workerArgs struct {
	index       int
	tx          []byte
	nonceOffset int
	prefix      []byte
	target      bitwork.Bitwork
	deadlineNs  int64
	timestamp   uint32
	ch          chan<- workerMsg
	stop        <-chan struct{}
}

func runWorker(a workerArgs) {
	tx := make([]byte, len(a.tx))
	copy(tx, a.tx)

	c := uint64(a.index)
	lastReport := time.Now()
	var hashesSinceReport uint64

	for {
		select {
		case <-a.stop:
			return
		default:
		}

		binary.LittleEndian.PutUint64(tx[a.nonceOffset:a.nonceOffset+8], c)
		digest := bitcoinutil.DoubleSHA256(tx)
		hashesSinceReport++

		if bitwork.Satisfies(digest, a.prefix, a.target) {
			a.ch <- workerMsg{kind: msgResult, result: Result{
				Kind:      KindCPU,
				NumBytes:  c,
				Time:      a.timestamp,
				NonceSeed: uint32(a.index),
			}}
			return
		}

		now := time.Now()
		if now.UnixNano() > a.deadlineNs {
			a.ch <- workerMsg{kind: msgExpired}
			return
		}
		if now.Sub(lastReport) >= progressInterval {
			select {
			case a.ch <- workerMsg{kind: msgProgress, hashes: hashesSinceReport}:
			default:
				// Telemetry only: drop rather than block if the
				// engine isn't keeping up draining the channel.
			}
			hashesSinceReport = 0
			lastReport = now
		}

		c++
		if c == counterExhausted {
			a.ch <- workerMsg{kind: msgExpired}
			return
		}
	}
}
