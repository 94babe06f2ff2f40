// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package blinker

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/warthog618/gpiosysfs"
	"golang.org/x/sync/errgroup"
)

// Group runs a set of workers concurrently.
type Group struct {
	workers []*Worker
	logger  *log.Logger
}

// NewGroup creates an empty Group.
//
// Only the WithLogger option applies to a Group.
func NewGroup(opts ...Option) *Group {
	o := newOptions(opts)
	return &Group{logger: o.logger}
}

// Add adds workers to the group.
func (g *Group) Add(ww ...*Worker) {
	g.workers = append(g.workers, ww...)
}

// Workers returns the workers in the group.
func (g *Group) Workers() []*Worker {
	return append([]*Worker(nil), g.workers...)
}

func (g *Group) validate() error {
	seen := map[int]bool{}
	for _, w := range g.workers {
		pin := w.Pin().Offset()
		if seen[pin] {
			return errors.Wrapf(ErrDuplicatePin, "gpio%d", pin)
		}
		seen[pin] = true
	}
	return nil
}

// Run runs all workers until the context is done, or a worker aborts.
//
// The workers must be assigned distinct pins, else ErrDuplicatePin is
// returned before any worker is started.
// Once all workers have stopped, any pins still exported by the controllers
// of the workers' pins are released.
// The returned error is the first worker error, or a release failure, or a
// *gpiosysfs.CompositeError if both occur.
func (g *Group) Run(ctx context.Context) error {
	if err := g.validate(); err != nil {
		return err
	}
	g.logger.Info("starting workers", "count", len(g.workers))
	eg, ectx := errgroup.WithContext(ctx)
	for _, w := range g.workers {
		w := w
		eg.Go(func() error {
			return w.Run(ectx)
		})
	}
	werr := eg.Wait()
	rerr := g.releaseAll()
	switch {
	case rerr == nil:
		return werr
	case werr == nil:
		return fmt.Errorf("%w: %w", gpiosysfs.ErrReleaseFailed, rerr)
	default:
		return &gpiosysfs.CompositeError{Work: werr, Release: rerr}
	}
}

func (g *Group) releaseAll() (err error) {
	done := map[*gpiosysfs.Controller]bool{}
	for _, w := range g.workers {
		c := w.Pin().Controller()
		if done[c] {
			continue
		}
		done[c] = true
		rerr := c.ReleaseAll()
		if rerr == nil {
			continue
		}
		g.logger.Error("release failed", "err", rerr)
		if err == nil {
			err = rerr
		} else {
			err = fmt.Errorf("%w; %w", err, rerr)
		}
	}
	return err
}
