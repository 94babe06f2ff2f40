// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package mockup

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/warthog618/gpiosysfs/sysfs"
	"golang.org/x/sys/unix"
)

// OpKind identifies the kernel operation recorded in an Op.
type OpKind string

const (
	OpExport       OpKind = "export"
	OpUnexport     OpKind = "unexport"
	OpWaitExported OpKind = "wait"
	OpSetDirection OpKind = "set direction"
	OpDirection    OpKind = "direction"
	OpValue        OpKind = "value"
	OpSetValue     OpKind = "set value"
	OpSetEdge      OpKind = "set edge"
	OpSetActiveLow OpKind = "set active low"
)

// AnyPin matches all pins when injecting faults.
const AnyPin = -1

// Op records a single operation requested of the Sysfs.
type Op struct {
	Kind OpKind
	Pin  int

	// Arg is the value written, if any.
	Arg string

	// Err is the error returned, if any.
	Err error

	Time time.Time
}

// Sysfs is an in-memory emulation of the kernel side of the sysfs GPIO
// interface.
//
// Pins are numbered from Base for NGPIO pins.  Each pin is modelled as a
// loopback line with a pull, so an input reads the pull and an output reads
// back the level it is driving.
//
// All operations are recorded, and errors can be injected per operation and
// pin.  Sysfs is safe for concurrent use.
type Sysfs struct {
	mu sync.Mutex

	base  int
	ngpio int

	pins map[int]*line

	ops []Op

	faults map[fault]*faultState

	exports   map[int]int
	unexports map[int]int

	// delay applied to every operation, to emulate a slow kernel
	delay time.Duration
}

type line struct {
	exported  bool
	dir       sysfs.Direction
	edge      sysfs.Edge
	activeLow bool

	// physical level and pull of the line
	level int
	pull  int

	// logical values written while exported
	values []int
}

type fault struct {
	kind OpKind
	pin  int
}

type faultState struct {
	err error

	// remaining number of times the fault fires, or -1 for always
	count int
}

// NewSysfs creates an emulation with ngpio pins numbered from base.
//
// All pins are initially unexported inputs pulled low.
func NewSysfs(base, ngpio int) *Sysfs {
	s := &Sysfs{
		base:      base,
		ngpio:     ngpio,
		pins:      map[int]*line{},
		faults:    map[fault]*faultState{},
		exports:   map[int]int{},
		unexports: map[int]int{},
	}
	for i := base; i < base+ngpio; i++ {
		s.pins[i] = &line{dir: sysfs.DirectionIn, edge: sysfs.EdgeNone}
	}
	return s
}

// Base returns the number of the first pin.
func (s *Sysfs) Base() int {
	return s.base
}

// NGPIO returns the number of pins.
func (s *Sysfs) NGPIO() int {
	return s.ngpio
}

// SetDelay sets a delay applied to every subsequent operation.
func (s *Sysfs) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// SetFault causes all subsequent kind operations on the pin to fail with err.
//
// The pin may be AnyPin.  The operation is recorded but has no effect.
func (s *Sysfs) SetFault(kind OpKind, pin int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[fault{kind, pin}] = &faultState{err: err, count: -1}
}

// FailN causes the next n kind operations on the pin to fail with err.
func (s *Sysfs) FailN(kind OpKind, pin int, n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 {
		delete(s.faults, fault{kind, pin})
		return
	}
	s.faults[fault{kind, pin}] = &faultState{err: err, count: n}
}

// FailOnce causes the next kind operation on the pin to fail with err.
func (s *Sysfs) FailOnce(kind OpKind, pin int, err error) {
	s.FailN(kind, pin, 1, err)
}

// ClearFault removes any fault set for the kind operations on the pin.
func (s *Sysfs) ClearFault(kind OpKind, pin int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faults, fault{kind, pin})
}

// SetPull sets the level an input pin is pulled to.
func (s *Sysfs) SetPull(pin int, level int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pin]
	if !ok {
		return ErrorIndexRange{pin, s.base + s.ngpio}
	}
	p.pull = bit(level)
	if p.dir == sysfs.DirectionIn {
		p.level = p.pull
	}
	return nil
}

// Level returns the physical level of the pin.
func (s *Sysfs) Level(pin int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pin]
	if !ok {
		return 0, ErrorIndexRange{pin, s.base + s.ngpio}
	}
	return p.level, nil
}

// Exported returns true if the pin is currently exported.
func (s *Sysfs) Exported(pin int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pin]
	return ok && p.exported
}

// Exports returns the number of successful exports of the pin.
func (s *Sysfs) Exports(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports[pin]
}

// Unexports returns the number of successful unexports of the pin.
func (s *Sysfs) Unexports(pin int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unexports[pin]
}

// Values returns the logical values written to the pin, in order.
func (s *Sysfs) Values(pin int) []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pins[pin]
	if !ok {
		return nil
	}
	return append([]int(nil), p.values...)
}

// Ops returns all operations requested, in order.
func (s *Sysfs) Ops() []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Op(nil), s.ops...)
}

// PinOps returns the operations requested on the pin, in order.
func (s *Sysfs) PinOps(pin int) []Op {
	s.mu.Lock()
	defer s.mu.Unlock()
	var oo []Op
	for _, op := range s.ops {
		if op.Pin == pin {
			oo = append(oo, op)
		}
	}
	return oo
}

// Export emulates writing the pin to the export node.
func (s *Sysfs) Export(pin int) error {
	return s.do(OpExport, pin, "", func() error {
		p, ok := s.pins[pin]
		if !ok {
			return s.ctrlErr("export", unix.EINVAL)
		}
		if p.exported {
			return s.ctrlErr("export", unix.EBUSY)
		}
		p.exported = true
		p.edge = sysfs.EdgeNone
		p.activeLow = false
		s.exports[pin]++
		return nil
	})
}

// Unexport emulates writing the pin to the unexport node.
func (s *Sysfs) Unexport(pin int) error {
	return s.do(OpUnexport, pin, "", func() error {
		p, ok := s.pins[pin]
		if !ok || !p.exported {
			return s.ctrlErr("unexport", unix.EINVAL)
		}
		p.exported = false
		p.edge = sysfs.EdgeNone
		s.unexports[pin]++
		return nil
	})
}

// WaitExported returns immediately, as the attributes of an exported pin are
// always accessible.
func (s *Sysfs) WaitExported(pin int, timeout time.Duration) error {
	return s.do(OpWaitExported, pin, "", func() error {
		_, err := s.exported(pin, "value")
		return err
	})
}

// SetDirection emulates writing the direction node.
func (s *Sysfs) SetDirection(pin int, d sysfs.Direction) error {
	return s.do(OpSetDirection, pin, string(d), func() error {
		p, err := s.exported(pin, "direction")
		if err != nil {
			return err
		}
		switch d {
		case sysfs.DirectionIn:
			p.dir = d
			p.level = p.pull
		// the initial level of an output is physical, ignoring active low
		case sysfs.DirectionOut, sysfs.DirectionLow:
			p.dir = sysfs.DirectionOut
			p.level = 0
		case sysfs.DirectionHigh:
			p.dir = sysfs.DirectionOut
			p.level = 1
		default:
			return s.attrErr(pin, "direction", unix.EINVAL)
		}
		return nil
	})
}

// Direction emulates reading the direction node.
func (s *Sysfs) Direction(pin int) (d sysfs.Direction, err error) {
	err = s.do(OpDirection, pin, "", func() error {
		p, err := s.exported(pin, "direction")
		if err != nil {
			return err
		}
		d = p.dir
		return nil
	})
	return
}

// Value emulates reading the value node.
func (s *Sysfs) Value(pin int) (v int, err error) {
	err = s.do(OpValue, pin, "", func() error {
		p, err := s.exported(pin, "value")
		if err != nil {
			return err
		}
		v = p.logical(p.level)
		return nil
	})
	return
}

// SetValue emulates writing the value node.
//
// As with the kernel, any non-zero value is treated as 1, and writing the
// value of an input fails.
func (s *Sysfs) SetValue(pin int, v int) error {
	return s.do(OpSetValue, pin, fmt.Sprint(bit(v)), func() error {
		p, err := s.exported(pin, "value")
		if err != nil {
			return err
		}
		if p.dir != sysfs.DirectionOut {
			return s.attrErr(pin, "value", unix.EPERM)
		}
		p.values = append(p.values, bit(v))
		p.level = p.logical(bit(v))
		return nil
	})
}

// SetEdge emulates writing the edge node.
func (s *Sysfs) SetEdge(pin int, e sysfs.Edge) error {
	return s.do(OpSetEdge, pin, string(e), func() error {
		p, err := s.exported(pin, "edge")
		if err != nil {
			return err
		}
		switch e {
		case sysfs.EdgeNone, sysfs.EdgeRising, sysfs.EdgeFalling, sysfs.EdgeBoth:
		default:
			return s.attrErr(pin, "edge", unix.EINVAL)
		}
		if e != sysfs.EdgeNone && p.dir != sysfs.DirectionIn {
			return s.attrErr(pin, "edge", unix.EIO)
		}
		p.edge = e
		return nil
	})
}

// SetActiveLow emulates writing the active_low node.
func (s *Sysfs) SetActiveLow(pin int, activeLow bool) error {
	return s.do(OpSetActiveLow, pin, fmt.Sprint(activeLow), func() error {
		p, err := s.exported(pin, "active_low")
		if err != nil {
			return err
		}
		p.activeLow = activeLow
		return nil
	})
}

// do records the operation and performs it, unless a fault is injected.
func (s *Sysfs) do(kind OpKind, pin int, arg string, fn func() error) error {
	s.mu.Lock()
	delay := s.delay
	s.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.injected(kind, pin)
	if err == nil {
		err = fn()
	}
	s.ops = append(s.ops, Op{Kind: kind, Pin: pin, Arg: arg, Err: err, Time: time.Now()})
	return err
}

func (s *Sysfs) injected(kind OpKind, pin int) error {
	for _, k := range []fault{{kind, pin}, {kind, AnyPin}} {
		f, ok := s.faults[k]
		if !ok {
			continue
		}
		if f.count > 0 {
			f.count--
			if f.count == 0 {
				delete(s.faults, k)
			}
		}
		return f.err
	}
	return nil
}

func (s *Sysfs) exported(pin int, attr string) (*line, error) {
	p, ok := s.pins[pin]
	if !ok || !p.exported {
		return nil, s.attrErr(pin, attr, unix.ENOENT)
	}
	return p, nil
}

func (s *Sysfs) ctrlErr(node string, errno unix.Errno) error {
	return &os.PathError{Op: "write", Path: sysfs.DefaultRoot + "/" + node, Err: errno}
}

func (s *Sysfs) attrErr(pin int, attr string, errno unix.Errno) error {
	path := fmt.Sprintf("%s/gpio%d/%s", sysfs.DefaultRoot, pin, attr)
	return &os.PathError{Op: "open", Path: path, Err: errno}
}

func (p *line) logical(level int) int {
	if p.activeLow {
		return level ^ 1
	}
	return level
}

func bit(v int) int {
	if v != 0 {
		return 1
	}
	return 0
}
