// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package gpiosysfs

import "fmt"

// RunGuarded exports the pin, sets its direction, calls work, and unexports
// the pin.
//
// If the export fails nothing else is attempted and the error wraps
// ErrExportFailed.
// Otherwise the pin is unexported exactly once, whether the direction could
// be set or not, and whether work returns an error or panics.
//
// The returned error is:
//   - nil if all steps succeed,
//   - the error from work, unchanged, if only work fails,
//   - an error wrapping ErrConfigFailed if the direction could not be set,
//   - an error wrapping ErrReleaseFailed if only the unexport fails,
//   - a *CompositeError if both the work (or direction) and the unexport
//     fail.
//
// If work panics the pin is unexported and the panic is propagated.  If that
// unexport also fails the panic value is replaced by a *CompositeError
// recording both.
func RunGuarded(p *Pin, d Direction, work func(*Pin) error) error {
	if err := p.Export(); err != nil {
		return fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	werr := guard(p, d, work)
	rerr := p.Unexport()
	switch {
	case rerr == nil:
		return werr
	case werr == nil:
		return fmt.Errorf("%w: %w", ErrReleaseFailed, rerr)
	default:
		return &CompositeError{Work: werr, Release: rerr}
	}
}

// guard runs the configuration and work on an exported pin, unexporting the
// pin before propagating any panic.
func guard(p *Pin, d Direction, work func(*Pin) error) error {
	defer func() {
		if r := recover(); r != nil {
			if rerr := p.Unexport(); rerr != nil {
				panic(&CompositeError{Work: fmt.Errorf("panic: %v", r), Release: rerr})
			}
			panic(r)
		}
	}()
	if err := p.SetDirection(d); err != nil {
		return fmt.Errorf("%w: %w", ErrConfigFailed, err)
	}
	return work(p)
}

// WithExported runs work on the pin within a guarded session.
//
// Refer to RunGuarded for details.
func (p *Pin) WithExported(d Direction, work func(*Pin) error) error {
	return RunGuarded(p, d, work)
}
