// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package blinker drives and samples GPIO pins from concurrent workers, with
// each use of a pin wrapped in a guarded session.
//
// A Worker blinks a single pin until its context is cancelled.  Workers are
// run together in a Group, which ensures no two workers share a pin and
// releases any pins left exported once all workers have stopped.
//
// Blink and Poll are one-shot operations performed within a single session.
package blinker

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/warthog618/gpiosysfs"
)

// Sleeper sleeps for the duration, returning early with the context error
// if the context is done first.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the default Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var (
	// ErrDuplicatePin indicates more than one worker in a group was assigned
	// the same pin.
	ErrDuplicatePin = errors.New("pin assigned to multiple workers")
)

// Blink drives the pin low and high for the duration, holding each level for
// period, and leaves the pin driven low.
//
// The number of low/high cycles is duration/period/2, so a duration of
// 400ms with a period of 200ms performs a single cycle.
// The pin is exported for the duration of the blink, and unexported before
// returning.  If the context is cancelled the blink stops early, still
// leaving the pin low, and the context error is returned.
func Blink(ctx context.Context, p *gpiosysfs.Pin, duration, period time.Duration, opts ...Option) error {
	if period <= 0 {
		return errors.Wrapf(gpiosysfs.ErrInvalidArgument, "period %s", period)
	}
	if duration < 0 {
		return errors.Wrapf(gpiosysfs.ErrInvalidArgument, "duration %s", duration)
	}
	o := newOptions(opts)
	logger := o.logger.With("pin", p.Offset())
	iterations := int(duration / period / 2)
	logger.Debug("blinking", "iterations", iterations, "period", period)
	err := gpiosysfs.RunGuarded(p, gpiosysfs.DirectionOutputLow, func(p *gpiosysfs.Pin) error {
		var serr error
		for i := 0; i < iterations && serr == nil; i++ {
			if err := p.SetValue(0); err != nil {
				return err
			}
			logger.Debug("low", "iteration", i)
			if serr = o.sleep(ctx, period); serr != nil {
				break
			}
			if err := p.SetValue(1); err != nil {
				return err
			}
			logger.Debug("high", "iteration", i)
			serr = o.sleep(ctx, period)
		}
		if err := p.SetValue(0); err != nil {
			return err
		}
		return serr
	})
	if err != nil {
		return errors.Wrapf(err, "blink gpio%d", p.Offset())
	}
	logger.Info("blink complete", "iterations", iterations)
	return nil
}

// Poll samples the level of the pin, as an input, every interval and calls
// onChange with each new level.
//
// The first sample is always reported.  Poll returns nil once the context is
// done, or the event limit is reached, after unexporting the pin.
func Poll(ctx context.Context, p *gpiosysfs.Pin, interval time.Duration, onChange func(level int), opts ...Option) error {
	if interval <= 0 {
		return errors.Wrapf(gpiosysfs.ErrInvalidArgument, "interval %s", interval)
	}
	o := newOptions(opts)
	logger := o.logger.With("pin", p.Offset())
	err := gpiosysfs.RunGuarded(p, gpiosysfs.DirectionInput, func(p *gpiosysfs.Pin) error {
		last := -1
		events := 0
		for {
			v, err := p.Value()
			if err != nil {
				return err
			}
			if v != last {
				logger.Debug("pin state", "state", v)
				onChange(v)
				last = v
				events++
				if o.eventLimit > 0 && events >= o.eventLimit {
					return nil
				}
			}
			if o.sleep(ctx, interval) != nil {
				return nil
			}
		}
	})
	if err != nil {
		return errors.Wrapf(err, "poll gpio%d", p.Offset())
	}
	return nil
}
