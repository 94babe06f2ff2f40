// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package blinker

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/warthog618/gpiosysfs"
)

// State is the step of the blink cycle a worker is performing.
type State int32

const (
	// StateIdle indicates the worker has not been started.
	StateIdle State = iota

	// StateConfiguring indicates the worker is exporting its pin and setting
	// it as an output.
	StateConfiguring

	// StateDrivingLow indicates the worker is driving its pin low.
	StateDrivingLow

	// StateHoldingLow indicates the worker is sleeping with its pin low.
	StateHoldingLow

	// StateDrivingHigh indicates the worker is driving its pin high.
	StateDrivingHigh

	// StateHoldingHigh indicates the worker is sleeping with its pin high.
	StateHoldingHigh

	// StateBackoff indicates the worker is waiting to retry after a failure.
	StateBackoff

	// StateStopped indicates the worker has returned from Run.
	StateStopped
)

var stateNames = map[State]string{
	StateIdle:        "idle",
	StateConfiguring: "configuring",
	StateDrivingLow:  "driving low",
	StateHoldingLow:  "holding low",
	StateDrivingHigh: "driving high",
	StateHoldingHigh: "holding high",
	StateBackoff:     "backoff",
	StateStopped:     "stopped",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// Worker blinks a single pin until its context is cancelled.
//
// A worker owns its pin exclusively for its lifetime, and shares no mutable
// state with other workers.
type Worker struct {
	p *gpiosysfs.Pin

	period     time.Duration
	mode       Mode
	policy     Policy
	backoff    Backoff
	maxRetries int
	sleep      Sleeper
	logger     *log.Logger

	// private to the Run goroutine.
	rng *rand.Rand

	state  atomic.Int32
	cycles atomic.Uint64

	mu sync.Mutex
	// the error that stopped the worker, if any
	err error
}

// NewWorker creates a worker to blink the pin.
func NewWorker(p *gpiosysfs.Pin, opts ...Option) *Worker {
	o := newOptions(opts)
	if !o.seeded {
		o.seed = time.Now().UnixNano() + int64(p.Offset())
	}
	return &Worker{
		p:          p,
		period:     o.period,
		mode:       o.mode,
		policy:     o.policy,
		backoff:    o.backoff,
		maxRetries: o.maxRetries,
		sleep:      o.sleep,
		logger:     o.logger.With("pin", p.Offset()),
		rng:        rand.New(rand.NewSource(o.seed)),
	}
}

// Pin returns the pin driven by the worker.
func (w *Worker) Pin() *gpiosysfs.Pin {
	return w.p
}

// State returns the current state of the worker.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Cycles returns the number of complete low/high cycles performed.
func (w *Worker) Cycles() uint64 {
	return w.cycles.Load()
}

// Err returns the error that stopped the worker, if any.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
	w.logger.Debug("state", "state", s)
}

// Run blinks the pin until the context is done.
//
// A cancelled context is a normal stop, and Run returns nil once the pin has
// been unexported.  Failures are handled according to the worker policy.
// Only PolicyAbort returns an error.
func (w *Worker) Run(ctx context.Context) error {
	defer func() {
		w.setState(StateStopped)
	}()
	w.logger.Info("starting", "mode", w.mode, "policy", w.policy, "period", w.period)
	retries := 0
	delay := w.backoff.Initial
	for {
		if ctx.Err() != nil {
			w.logger.Info("stopped")
			return nil
		}
		err := w.session(ctx)
		if err != nil && ctx.Err() != nil {
			// stopping anyway, so the policy does not apply
			w.logger.Warn("failed while stopping", "err", err)
		}
		if err == nil || ctx.Err() != nil {
			retries = 0
			delay = w.backoff.Initial
			continue
		}
		switch w.policy {
		case PolicyAbort:
			w.logger.Error("aborting", "err", err)
			w.stop(err)
			return errors.Wrapf(err, "worker gpio%d", w.p.Offset())
		case PolicyStop:
			w.logger.Error("stopping", "err", err)
			w.stop(err)
			return nil
		}
		retries++
		if w.maxRetries > 0 && retries > w.maxRetries {
			w.logger.Error("retries exhausted", "err", err, "retries", w.maxRetries)
			w.stop(err)
			return nil
		}
		d := w.jitter(delay)
		w.logger.Warn("retrying", "err", err, "attempt", retries, "in", d)
		w.setState(StateBackoff)
		if w.sleep(ctx, d) != nil {
			w.logger.Info("stopped")
			return nil
		}
		delay = w.backoff.next(delay)
	}
}

func (w *Worker) stop(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// session performs one guarded session, which is a single cycle, or cycles
// until the context is done, depending on mode.
func (w *Worker) session(ctx context.Context) error {
	w.setState(StateConfiguring)
	return gpiosysfs.RunGuarded(w.p, gpiosysfs.DirectionOutputLow, func(p *gpiosysfs.Pin) error {
		for {
			if err := w.cycle(ctx, p); err != nil {
				return err
			}
			if w.mode == ModePerCycle || ctx.Err() != nil {
				return nil
			}
		}
	})
}

// cycle drives the pin low then high, holding each for the period.
//
// A cancelled sleep ends the cycle early, without error.
func (w *Worker) cycle(ctx context.Context, p *gpiosysfs.Pin) error {
	w.setState(StateDrivingLow)
	if err := p.SetValue(0); err != nil {
		return err
	}
	w.setState(StateHoldingLow)
	w.logger.Debug("wait", "tag", w.rng.Uint32())
	if w.sleep(ctx, w.period) != nil {
		return nil
	}
	w.setState(StateDrivingHigh)
	if err := p.SetValue(1); err != nil {
		return err
	}
	w.setState(StateHoldingHigh)
	if w.sleep(ctx, w.period) != nil {
		return nil
	}
	w.cycles.Add(1)
	return nil
}

func (w *Worker) jitter(d time.Duration) time.Duration {
	if w.backoff.Jitter <= 0 {
		return d
	}
	f := 1 + w.backoff.Jitter*(2*w.rng.Float64()-1)
	return time.Duration(float64(d) * f)
}

func (b Backoff) next(d time.Duration) time.Duration {
	f := b.Factor
	if f < 1 {
		f = 1
	}
	d = time.Duration(float64(d) * f)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}
