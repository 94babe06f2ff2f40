// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package gpiosysfs is a library for controlling GPIO pins on Linux platforms
// using the GPIO sysfs interface.
//
// A pin must be exported before it can be used, and must be unexported once
// it is no longer required.  The export is visible to all processes and
// outlives the process that requested it, so a pin that is not unexported
// leaks.  To prevent that, pins are intended to be used within a guarded
// session, RunGuarded, which pairs every successful export with exactly one
// unexport regardless of how the work performed within the session ends.
//
// Supports:
// - Pin export/unexport, with a process wide registry of exporters
// - Pin direction (input/output initially low/output initially high)
// - Pin read and write
// - Pin edge detection (rising/falling/both)
// - Pin active low
//
// Example of use:
//
//	c := gpiosysfs.New(gpiosysfs.WithConsumer("blinker"))
//	p := c.Pin(22)
//	err := p.WithExported(gpiosysfs.DirectionOutputLow, func(p *gpiosysfs.Pin) error {
//		for i := 0; i < 5; i++ {
//			if err := p.SetValue(1); err != nil {
//				return err
//			}
//			time.Sleep(200 * time.Millisecond)
//			if err := p.SetValue(0); err != nil {
//				return err
//			}
//			time.Sleep(200 * time.Millisecond)
//		}
//		return nil
//	})
package gpiosysfs

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/warthog618/gpiosysfs/sysfs"
)

// Kernel is the kernel interface used to control pins.
//
// It is satisfied by *sysfs.FS for real hardware, and by mockup.Sysfs for
// testing.
type Kernel interface {
	Export(pin int) error
	Unexport(pin int) error
	WaitExported(pin int, timeout time.Duration) error
	SetDirection(pin int, d sysfs.Direction) error
	Direction(pin int) (sysfs.Direction, error)
	Value(pin int) (int, error)
	SetValue(pin int, v int) error
	SetEdge(pin int, e sysfs.Edge) error
	SetActiveLow(pin int, activeLow bool) error
}

// Controller provides pins from a kernel interface.
type Controller struct {
	k Kernel

	reg *Registry

	// default consumer label for pins.
	consumer string

	// how long to wait for the pin attributes to become accessible after
	// export.
	settle time.Duration

	mu sync.Mutex
	// pins that were exported by this controller but that the kernel
	// refused to unexport.
	stale map[int]bool
}

// New creates a Controller.
//
// By default the Controller uses the sysfs tree at sysfs.DefaultRoot and the
// process wide DefaultRegistry.
func New(options ...Option) *Controller {
	co := controllerOptions{
		consumer: fmt.Sprintf("gpiosysfs-%d", os.Getpid()),
		settle:   100 * time.Millisecond,
	}
	for _, option := range options {
		option.applyControllerOption(&co)
	}
	if co.k == nil {
		co.k = sysfs.New(co.root)
	}
	if co.reg == nil {
		co.reg = DefaultRegistry()
	}
	return &Controller{
		k:        co.k,
		reg:      co.reg,
		consumer: co.consumer,
		settle:   co.settle,
		stale:    map[int]bool{},
	}
}

// Kernel returns the kernel interface used by the Controller.
func (c *Controller) Kernel() Kernel {
	return c.k
}

// Registry returns the registry the Controller claims pins in.
func (c *Controller) Registry() *Registry {
	return c.reg
}

// Pin returns a handle for the pin with the given global number.
//
// This does not access the kernel - the pin must be exported before use.
func (c *Controller) Pin(offset int, options ...PinOption) *Pin {
	po := pinOptions{consumer: c.consumer}
	for _, option := range options {
		option.applyPinOption(&po)
	}
	return &Pin{c: c, offset: offset, consumer: po.consumer}
}

// ReleaseAll unexports all pins still exported by pins from this Controller.
//
// This is intended for use at shutdown, to clean up after workers that did
// not complete their sessions.  The claims are released even if the
// unexport fails.  Pins that previously failed to unexport are retried.
// All unexport errors are returned.
func (c *Controller) ReleaseAll() error {
	pins := map[int]bool{}
	for _, cl := range c.reg.drain(c) {
		pins[cl.pin] = true
	}
	for pin := range c.stalePins() {
		// pins since reclaimed by another handle are no longer ours to release
		if _, ok := c.reg.Owner(pin); !ok {
			pins[pin] = true
		}
	}
	pp := make([]int, 0, len(pins))
	for pin := range pins {
		pp = append(pp, pin)
	}
	sort.Ints(pp)
	var errs []error
	for _, pin := range pp {
		if err := c.k.Unexport(pin); err != nil {
			c.setStale(pin, true)
			errs = append(errs, &IOError{Op: "unexport", Pin: pin, Err: err})
			continue
		}
		c.setStale(pin, false)
	}
	return errors.Join(errs...)
}

func (c *Controller) setStale(pin int, stale bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if stale {
		c.stale[pin] = true
	} else {
		delete(c.stale, pin)
	}
}

func (c *Controller) stalePins() map[int]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	pins := make(map[int]bool, len(c.stale))
	for pin := range c.stale {
		pins[pin] = true
	}
	return pins
}

// Direction indicates the direction of a pin, and the initial level for
// outputs.
type Direction int

const (
	// DirectionUnknown indicates the pin direction is unknown.
	DirectionUnknown Direction = iota

	// DirectionInput indicates the pin is an input.
	DirectionInput

	// DirectionOutputLow indicates the pin is an output initially driven low.
	DirectionOutputLow

	// DirectionOutputHigh indicates the pin is an output initially driven
	// high.
	DirectionOutputHigh
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutputLow:
		return "output-low"
	case DirectionOutputHigh:
		return "output-high"
	}
	return "unknown"
}

func (d Direction) token() (sysfs.Direction, bool) {
	switch d {
	case DirectionInput:
		return sysfs.DirectionIn, true
	case DirectionOutputLow:
		return sysfs.DirectionLow, true
	case DirectionOutputHigh:
		return sysfs.DirectionHigh, true
	}
	return "", false
}

// Edge indicates the edges detected by a pin.
type Edge int

const (
	// EdgeNone indicates edge detection is disabled.
	EdgeNone Edge = iota

	// EdgeRising indicates the pin detects low to high transitions.
	EdgeRising

	// EdgeFalling indicates the pin detects high to low transitions.
	EdgeFalling

	// EdgeBoth indicates the pin detects transitions in both directions.
	EdgeBoth = EdgeRising | EdgeFalling
)

func (e Edge) token() (sysfs.Edge, bool) {
	switch e {
	case EdgeNone:
		return sysfs.EdgeNone, true
	case EdgeRising:
		return sysfs.EdgeRising, true
	case EdgeFalling:
		return sysfs.EdgeFalling, true
	case EdgeBoth:
		return sysfs.EdgeBoth, true
	}
	return "", false
}

// Pin is a handle for a single GPIO pin.
//
// Pins are cheap to create and hold no kernel resources until exported.
// A Pin is not safe for concurrent use - it is intended to be owned by a
// single goroutine for the duration of a session.
type Pin struct {
	c *Controller

	offset int

	// the label recorded against the pin in the registry while exported.
	consumer string

	// the registry claim held while exported.
	claim *claim
}

// Offset returns the global number of the pin.
func (p *Pin) Offset() int {
	return p.offset
}

// Controller returns the Controller that provided the pin.
func (p *Pin) Controller() *Controller {
	return p.c
}

// Consumer returns the label the pin is claimed with when exported.
func (p *Pin) Consumer() string {
	return p.consumer
}

// Exported returns true if the pin is exported by this handle.
func (p *Pin) Exported() bool {
	return p.claim != nil && p.c.reg.holds(p.claim)
}

// Export requests the pin be exported to userspace.
//
// The pin is first claimed in the registry, so a pin already exported by
// another handle in this process fails with ErrPinBusy without touching the
// kernel.  Once the export is accepted by the kernel, Export waits for the pin
// attributes to become accessible.  If they do not, the export is undone.
// If undoing the export fails too, both errors are returned and the pin is
// left for ReleaseAll to retry.
func (p *Pin) Export() error {
	cl, err := p.c.reg.claim(p.offset, p.consumer, p.c)
	if err != nil {
		return &IOError{Op: "export", Pin: p.offset, Err: err}
	}
	if err = p.c.k.Export(p.offset); err != nil {
		p.c.reg.release(cl)
		return &IOError{Op: "export", Pin: p.offset, Err: err}
	}
	if err = p.c.k.WaitExported(p.offset, p.c.settle); err != nil {
		if uerr := p.c.k.Unexport(p.offset); uerr != nil {
			p.c.setStale(p.offset, true)
			err = errors.Join(err, &IOError{Op: "unexport", Pin: p.offset, Err: uerr})
		}
		p.c.reg.release(cl)
		return &IOError{Op: "export", Pin: p.offset, Err: err}
	}
	p.claim = cl
	return nil
}

// Unexport requests the pin be withdrawn from userspace.
//
// The registry claim is released even if the kernel rejects the unexport, so
// a subsequent Export can be attempted.
// Unexporting a pin that was not exported by this handle is permitted, to
// clean up after a partial export or a previous process, unless the pin is
// currently exported by another handle in this process.
func (p *Pin) Unexport() error {
	cl := p.claim
	p.claim = nil
	if cl != nil {
		defer p.c.reg.release(cl)
	} else if owner, ok := p.c.reg.Owner(p.offset); ok {
		return &IOError{Op: "unexport", Pin: p.offset, Err: ErrPinBusy{Pin: p.offset, Owner: owner}}
	}
	if err := p.c.k.Unexport(p.offset); err != nil {
		if cl != nil {
			p.c.setStale(p.offset, true)
		}
		return &IOError{Op: "unexport", Pin: p.offset, Err: err}
	}
	p.c.setStale(p.offset, false)
	return nil
}

func (p *Pin) checkExported(op string) error {
	if !p.Exported() {
		return &IOError{Op: op, Pin: p.offset, Err: ErrNotExported}
	}
	return nil
}

// SetDirection sets the direction of the pin.
//
// For outputs the initial level is set along with the direction, so the pin
// is never driven to an unintended level.
func (p *Pin) SetDirection(d Direction) error {
	tok, ok := d.token()
	if !ok {
		return &IOError{Op: "set direction", Pin: p.offset, Err: ErrInvalidArgument}
	}
	if err := p.checkExported("set direction"); err != nil {
		return err
	}
	if err := p.c.k.SetDirection(p.offset, tok); err != nil {
		return &IOError{Op: "set direction", Pin: p.offset, Err: err}
	}
	return nil
}

// Direction returns the current direction of the pin.
//
// As the kernel does not distinguish the initial level of outputs, outputs
// are reported as DirectionOutputLow or DirectionOutputHigh based on the
// current level.
func (p *Pin) Direction() (Direction, error) {
	if err := p.checkExported("get direction"); err != nil {
		return DirectionUnknown, err
	}
	d, err := p.c.k.Direction(p.offset)
	if err != nil {
		return DirectionUnknown, &IOError{Op: "get direction", Pin: p.offset, Err: err}
	}
	if d == sysfs.DirectionIn {
		return DirectionInput, nil
	}
	v, err := p.Value()
	if err != nil {
		return DirectionUnknown, err
	}
	if v == 0 {
		return DirectionOutputLow, nil
	}
	return DirectionOutputHigh, nil
}

// Value returns the current level of the pin, 0 or 1.
func (p *Pin) Value() (int, error) {
	if err := p.checkExported("get value"); err != nil {
		return 0, err
	}
	v, err := p.c.k.Value(p.offset)
	if err != nil {
		return 0, &IOError{Op: "get value", Pin: p.offset, Err: err}
	}
	return v, nil
}

// SetValue sets the level of an output pin.
//
// The value must be 0 or 1.
func (p *Pin) SetValue(v int) error {
	if v != 0 && v != 1 {
		return &IOError{Op: "set value", Pin: p.offset, Err: ErrInvalidArgument}
	}
	if err := p.checkExported("set value"); err != nil {
		return err
	}
	if err := p.c.k.SetValue(p.offset, v); err != nil {
		return &IOError{Op: "set value", Pin: p.offset, Err: err}
	}
	return nil
}

// SetEdge sets the edges detected by an input pin.
func (p *Pin) SetEdge(e Edge) error {
	tok, ok := e.token()
	if !ok {
		return &IOError{Op: "set edge", Pin: p.offset, Err: ErrInvalidArgument}
	}
	if err := p.checkExported("set edge"); err != nil {
		return err
	}
	if err := p.c.k.SetEdge(p.offset, tok); err != nil {
		return &IOError{Op: "set edge", Pin: p.offset, Err: err}
	}
	return nil
}

// SetActiveLow sets the pin to be active low, inverting the value read and
// written.
func (p *Pin) SetActiveLow(activeLow bool) error {
	if err := p.checkExported("set active low"); err != nil {
		return err
	}
	if err := p.c.k.SetActiveLow(p.offset, activeLow); err != nil {
		return &IOError{Op: "set active low", Pin: p.offset, Err: err}
	}
	return nil
}

var (
	// ErrExportFailed indicates a session could not export its pin.
	ErrExportFailed = errors.New("export failed")

	// ErrConfigFailed indicates a session could not configure the direction
	// of its pin.
	ErrConfigFailed = errors.New("direction configuration failed")

	// ErrReleaseFailed indicates a session could not unexport its pin.
	ErrReleaseFailed = errors.New("unexport failed")

	// ErrInvalidArgument indicates a parameter is outside its valid range.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotExported indicates an operation requiring an exported pin was
	// attempted on a pin that is not exported by the handle.
	ErrNotExported = errors.New("not exported")

	// ErrNotSupported indicates the kernel interface does not support the
	// operation.
	ErrNotSupported = errors.New("not supported")
)

// IOError records a failure of an operation on a pin.
type IOError struct {
	Op  string
	Pin int
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s gpio%d: %s", e.Op, e.Pin, e.Err)
}

// Unwrap returns the underlying error.
func (e *IOError) Unwrap() error {
	return e.Err
}

// ErrPinBusy indicates the pin is already exported by another handle in this
// process.
type ErrPinBusy struct {
	Pin   int
	Owner string
}

func (e ErrPinBusy) Error() string {
	return fmt.Sprintf("gpio%d already exported by %s", e.Pin, e.Owner)
}

// CompositeError records the failures of both the work performed in a
// session and the subsequent unexport.
type CompositeError struct {
	Work    error
	Release error
}

func (e *CompositeError) Error() string {
	return fmt.Sprintf("%s; %s: %s", e.Work, ErrReleaseFailed, e.Release)
}

// Unwrap returns both errors, so errors.Is and errors.As match either.
func (e *CompositeError) Unwrap() []error {
	return []error{e.Work, ErrReleaseFailed, e.Release}
}
