// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package gpiosysfs

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"golang.org/x/sys/unix"
)

// ExportEventType indicates the type of change to a pin export.
type ExportEventType int

const (
	_ ExportEventType = iota

	// ExportEventExported indicates the pin has been exported.
	ExportEventExported

	// ExportEventUnexported indicates the pin has been unexported.
	ExportEventUnexported
)

func (t ExportEventType) String() string {
	switch t {
	case ExportEventExported:
		return "exported"
	case ExportEventUnexported:
		return "unexported"
	}
	return "unknown"
}

// ExportEvent reports a pin being exported or unexported by any process.
type ExportEvent struct {
	Pin  int
	Type ExportEventType
}

// ExportHandler is a receiver for export events.
type ExportHandler func(ExportEvent)

// ExportWatcher reports pins being exported and unexported, system wide.
//
// This is driven by the uevents the kernel emits as it creates and removes
// the pin directories, so it sees exports made by other processes as well as
// this one.
type ExportWatcher struct {
	r       ueventReader
	matcher netlink.Matcher

	// closed to signal the watcher to shutdown
	stop     chan struct{}
	stopOnce sync.Once

	// closed once watcher exits
	doneCh chan struct{}

	mu  sync.Mutex
	err error
}

// ueventReader is the source of uevents, usually a netlink.UEventConn.
//
// ReadUEvent is expected to return EAGAIN periodically while idle, so the
// watcher can notice it has been closed.
type ueventReader interface {
	ReadUEvent() (*netlink.UEvent, error)
	Close() error
}

// ueventReadTimeout bounds how long the watcher may be blocked reading the
// netlink socket, and so how long Close may take.
const ueventReadTimeout = 100 * time.Millisecond

var pinDevpath = regexp.MustCompile(`/gpio(\d+)$`)

// NewExportWatcher starts watching for pin exports.
//
// The handler is called from the watcher goroutine.
func NewExportWatcher(eh ExportHandler) (*ExportWatcher, error) {
	conn := new(netlink.UEventConn)
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		return nil, fmt.Errorf("unable to connect to Netlink Kobject UEvent socket: %w", err)
	}
	tv := unix.NsecToTimeval(int64(ueventReadTimeout))
	if err := unix.SetsockoptTimeval(conn.Fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		conn.Close()
		return nil, err
	}
	w, err := newExportWatcher(conn, eh)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return w, nil
}

func newExportWatcher(r ueventReader, eh ExportHandler) (*ExportWatcher, error) {
	action := "^(add|remove)$"
	matcher := &netlink.RuleDefinition{Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^gpio$",
			"DEVPATH":   "/gpio/gpio\\d+$",
		}}
	if err := matcher.Compile(); err != nil {
		return nil, err
	}
	w := ExportWatcher{
		r:       r,
		matcher: matcher,
		stop:    make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	go w.watch(eh)
	return &w, nil
}

func (w *ExportWatcher) watch(eh ExportHandler) {
	defer close(w.doneCh)
	// the reader is only closed once no read is in progress.
	defer w.r.Close()
	for {
		select {
		case <-w.stop:
			return
		default:
		}
		evt, err := w.r.ReadUEvent()
		if err != nil {
			var errno unix.Errno
			if !errors.As(err, &errno) {
				// malformed message
				continue
			}
			switch errno {
			case unix.EAGAIN, unix.EINTR, unix.ENOBUFS:
				continue
			}
			w.setErr(err)
			return
		}
		if !w.matcher.Evaluate(*evt) {
			continue
		}
		m := pinDevpath.FindStringSubmatch(evt.Env["DEVPATH"])
		if m == nil {
			continue
		}
		pin, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		ee := ExportEvent{Pin: pin}
		switch evt.Action {
		case netlink.ADD:
			ee.Type = ExportEventExported
		case netlink.REMOVE:
			ee.Type = ExportEventUnexported
		default:
			continue
		}
		eh(ee)
	}
}

func (w *ExportWatcher) setErr(err error) {
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
}

// Err returns the error that terminated the watcher, if any.
//
// A watcher that has terminated reports no further events, and should be
// closed.
func (w *ExportWatcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Done returns a channel that is closed once the watcher has terminated,
// either due to Close or an error reading uevents.
func (w *ExportWatcher) Done() <-chan struct{} {
	return w.doneCh
}

// Close stops the watcher and waits for it to exit.
//
// The handler must not be blocked, else Close will not return.
func (w *ExportWatcher) Close() {
	w.stopOnce.Do(func() { close(w.stop) })
	<-w.doneCh
}
