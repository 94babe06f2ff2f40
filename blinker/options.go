// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package blinker

import (
	"time"

	"github.com/charmbracelet/log"
)

// Option defines the interface required to provide an option to workers and
// the one-shot operations.
//
// Options that do not apply to an operation are ignored.
type Option interface {
	applyOption(*options)
}

type options struct {
	sleep      Sleeper
	logger     *log.Logger
	mode       Mode
	policy     Policy
	backoff    Backoff
	maxRetries int
	seed       int64
	seeded     bool
	period     time.Duration
	eventLimit int
}

func newOptions(opts []Option) options {
	o := options{
		sleep:   Sleep,
		mode:    ModePerCycle,
		policy:  PolicyRetry,
		backoff: DefaultBackoff,
		period:  200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt.applyOption(&o)
	}
	if o.logger == nil {
		o.logger = log.Default()
	}
	if o.sleep == nil {
		o.sleep = Sleep
	}
	return o
}

// SleeperOption specifies the function used to sleep between level changes.
type SleeperOption struct {
	s Sleeper
}

// WithSleeper specifies the function used to sleep between level changes.
//
// The default is Sleep.
func WithSleeper(s Sleeper) SleeperOption {
	return SleeperOption{s}
}

func (o SleeperOption) applyOption(opts *options) {
	opts.sleep = o.s
}

// LoggerOption specifies the logger status is reported to.
type LoggerOption struct {
	l *log.Logger
}

// WithLogger specifies the logger status is reported to.
//
// The default is the charmbracelet default logger.
func WithLogger(l *log.Logger) LoggerOption {
	return LoggerOption{l}
}

func (o LoggerOption) applyOption(opts *options) {
	opts.logger = o.l
}

// Mode determines how a worker exports its pin.
type Mode int

const (
	// ModePerCycle exports the pin for each blink cycle.
	//
	// The pin is unexported between cycles, so it is only held by the
	// worker while it is being driven.
	ModePerCycle Mode = iota

	// ModeOnce exports the pin once and blinks it within that one session.
	ModeOnce
)

func (m Mode) applyOption(opts *options) {
	opts.mode = m
}

func (m Mode) String() string {
	switch m {
	case ModePerCycle:
		return "per-cycle"
	case ModeOnce:
		return "once"
	}
	return "unknown"
}

// Policy determines how a worker reacts to a failed session.
type Policy int

const (
	// PolicyRetry logs the failure and retries after a backoff.
	PolicyRetry Policy = iota

	// PolicyStop logs the failure and stops the worker.
	//
	// Other workers in the group are unaffected.
	PolicyStop

	// PolicyAbort stops the worker and returns the failure, which stops all
	// other workers in the group.
	PolicyAbort
)

func (p Policy) applyOption(opts *options) {
	opts.policy = p
}

func (p Policy) String() string {
	switch p {
	case PolicyRetry:
		return "retry"
	case PolicyStop:
		return "stop"
	case PolicyAbort:
		return "abort"
	}
	return "unknown"
}

// Backoff determines the delay between retries.
//
// The delay starts at Initial and is multiplied by Factor after each
// consecutive failure, up to Max.  Each delay is then varied randomly by up to
// Jitter, as a fraction of the delay.
type Backoff struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
	Jitter  float64
}

// DefaultBackoff is the Backoff used by workers unless overridden.
var DefaultBackoff = Backoff{
	Initial: 100 * time.Millisecond,
	Max:     10 * time.Second,
	Factor:  2,
	Jitter:  0.2,
}

func (b Backoff) applyOption(opts *options) {
	opts.backoff = b
}

// WithBackoff specifies the delay between retries.
func WithBackoff(initial, max time.Duration) Backoff {
	b := DefaultBackoff
	b.Initial = initial
	b.Max = max
	return b
}

// MaxRetriesOption limits the number of consecutive retries.
type MaxRetriesOption int

// WithMaxRetries limits the number of consecutive retries before a worker
// gives up and stops.
//
// The default, zero, retries indefinitely.
func WithMaxRetries(n int) MaxRetriesOption {
	return MaxRetriesOption(n)
}

func (o MaxRetriesOption) applyOption(opts *options) {
	opts.maxRetries = int(o)
}

// SeedOption seeds the random source of a worker.
type SeedOption int64

// WithSeed seeds the random source of a worker.
//
// By default each worker is seeded from the time it is created and its pin.
func WithSeed(seed int64) SeedOption {
	return SeedOption(seed)
}

func (o SeedOption) applyOption(opts *options) {
	opts.seed = int64(o)
	opts.seeded = true
}

// PeriodOption specifies the time a worker holds each level.
type PeriodOption time.Duration

// WithPeriod specifies the time a worker holds each level, i.e. half the
// blink period.
//
// The default is 200ms.
func WithPeriod(d time.Duration) PeriodOption {
	return PeriodOption(d)
}

func (o PeriodOption) applyOption(opts *options) {
	opts.period = time.Duration(o)
}

// EventLimitOption limits the number of events reported by Poll and Monitor.
type EventLimitOption int

// WithEventLimit limits the number of events reported by Poll and Monitor,
// after which they return.
//
// The default, zero, is unlimited.
func WithEventLimit(n int) EventLimitOption {
	return EventLimitOption(n)
}

func (o EventLimitOption) applyOption(opts *options) {
	opts.eventLimit = int(o)
}
