// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package blinker

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/gpiosysfs"
)

// Monitor watches the pin, as an input, for edges and calls onEdge for each
// edge detected.
//
// Unlike Poll, the pin is not sampled, so brief pulses are not missed.
// Monitor returns nil once the context is done, or the event limit is
// reached, after unexporting the pin.
func Monitor(ctx context.Context, p *gpiosysfs.Pin, e gpiosysfs.Edge, onEdge func(gpiosysfs.EdgeEvent), opts ...Option) error {
	o := newOptions(opts)
	logger := o.logger.With("pin", p.Offset())
	err := gpiosysfs.RunGuarded(p, gpiosysfs.DirectionInput, func(p *gpiosysfs.Pin) error {
		limit := make(chan struct{})
		var once sync.Once
		events := 0
		eh := func(evt gpiosysfs.EdgeEvent) {
			if o.eventLimit > 0 && events >= o.eventLimit {
				return
			}
			logger.Debug("edge", "state", evt.Level)
			onEdge(evt)
			events++
			if o.eventLimit > 0 && events >= o.eventLimit {
				once.Do(func() { close(limit) })
			}
		}
		w, err := p.Watch(e, eh)
		if err != nil {
			return err
		}
		defer w.Close()
		select {
		case <-ctx.Done():
		case <-limit:
		}
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "monitor gpio%d", p.Offset())
	}
	return nil
}
