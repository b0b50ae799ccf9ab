package stream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"vanna/internal/domain/chain"
	"vanna/internal/metrics"
	"vanna/pkg/logger"
)

// Assembler produces chain snapshots. Implemented by chain.Assembler.
type Assembler interface {
	Assemble(ctx context.Context, underlying string) (*chain.ChainSnapshot, error)
}

// Broadcaster fans a generated payload out to an underlying's subscribers.
// Implemented by server.Hub.
type Broadcaster interface {
	Broadcast(underlying string, payload []byte)
	SubscriberCount(underlying string) int
}

type updateFrame struct {
	Type string               `json:"type"`
	Data *chain.ChainSnapshot `json:"data"`
}

// Feeder drives the push cadence: one independent loop per underlying with at
// least one subscriber. Each loop assembles, computes and broadcasts on a
// fixed interval; a failed tick backs off briefly and the loop carries on. A
// loop stops when its audience drops to zero.
type Feeder struct {
	assembler Assembler
	hub       Broadcaster

	interval        time.Duration
	errorBackoff    time.Duration
	assembleTimeout time.Duration

	mu      sync.Mutex
	base    context.Context
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	log *logger.Logger
}

// NewFeeder creates a snapshot feeder
func NewFeeder(assembler Assembler, hub Broadcaster, interval, errorBackoff, assembleTimeout time.Duration) *Feeder {
	return &Feeder{
		assembler:       assembler,
		hub:             hub,
		interval:        interval,
		errorBackoff:    errorBackoff,
		assembleTimeout: assembleTimeout,
		cancels:         make(map[string]context.CancelFunc),
		log:             logger.Get().With("component", "feeder"),
	}
}

// Start fixes the base context for all per-underlying loops
func (f *Feeder) Start(ctx context.Context) {
	f.mu.Lock()
	f.base = ctx
	f.mu.Unlock()
}

// Ensure starts the loop for an underlying if it is not already running.
// Called on each subscribe; duplicate calls are no-ops.
func (f *Feeder) Ensure(underlying string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.base == nil {
		f.log.Warn("Feeder not started, ignoring subscription for ", underlying)
		return
	}
	if _, running := f.cancels[underlying]; running {
		return
	}

	ctx, cancel := context.WithCancel(f.base)
	f.cancels[underlying] = cancel

	f.wg.Add(1)
	go f.run(ctx, underlying)

	f.log.Infow("Snapshot loop started", "underlying", underlying, "interval", f.interval)
}

// Release stops the loop for an underlying. Wired to the hub's
// last-unsubscribe hook so zero audiences burn no cycles.
func (f *Feeder) Release(underlying string) {
	f.mu.Lock()
	cancel, ok := f.cancels[underlying]
	if ok {
		delete(f.cancels, underlying)
	}
	f.mu.Unlock()

	if ok {
		cancel()
		f.log.Infow("Snapshot loop stopped", "underlying", underlying)
	}
}

// Stop cancels every loop and waits for them to exit
func (f *Feeder) Stop() {
	f.mu.Lock()
	for underlying, cancel := range f.cancels {
		cancel()
		delete(f.cancels, underlying)
	}
	f.mu.Unlock()

	f.wg.Wait()
}

// run is one underlying's cadence loop. The loop body is sequential, so a
// tick that overruns the interval simply swallows the missed ticker fires;
// work for the same underlying never overlaps.
func (f *Feeder) run(ctx context.Context, underlying string) {
	defer f.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("Snapshot loop panicked", " underlying=", underlying, " panic=", r)
		}
	}()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	// First snapshot goes out immediately rather than one interval late.
	f.tickOnce(ctx, underlying)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.hub.SubscriberCount(underlying) == 0 {
				f.Release(underlying)
				return
			}
			if err := f.tickOnce(ctx, underlying); err != nil {
				select {
				case <-ctx.Done():
					return
				case <-time.After(f.errorBackoff):
				}
			}
		}
	}
}

// tickOnce assembles one snapshot and broadcasts it to the underlying's
// subscribers. Errors abort this tick only.
func (f *Feeder) tickOnce(ctx context.Context, underlying string) error {
	tctx, cancel := context.WithTimeout(ctx, f.assembleTimeout)
	defer cancel()

	start := time.Now()
	snapshot, err := f.assembler.Assemble(tctx, underlying)
	metrics.RecordSnapshot(underlying, time.Since(start), err)

	if err != nil {
		f.log.Warnw("Snapshot tick failed",
			"underlying", underlying,
			"error", err,
			"backoff", f.errorBackoff,
		)
		return err
	}

	payload, err := json.Marshal(updateFrame{Type: "update", Data: snapshot})
	if err != nil {
		f.log.Errorw("Snapshot marshal failed", "underlying", underlying, "error", err)
		return err
	}

	f.hub.Broadcast(underlying, payload)
	return nil
}
