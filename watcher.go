// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package gpiosysfs

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// EdgeEvent reports a detected edge on a pin.
type EdgeEvent struct {
	// The pin the edge was detected on.
	Pin int

	// The level of the pin after the edge.
	Level int

	// The time the edge was reported.
	//
	// Unlike the character device, sysfs provides no kernel timestamp, so
	// this is the time the watcher read the value.
	Time time.Time
}

// EdgeHandler is a receiver for edge events.
type EdgeHandler func(EdgeEvent)

// ValueOpener is implemented by kernel interfaces that can provide a
// pollable value attribute, such as *sysfs.FS.
type ValueOpener interface {
	OpenValue(pin int) (*os.File, error)
}

// Watcher reports edges detected on exported pins.
type Watcher struct {
	epfd int

	// fd to value file mapping
	evtfds map[int]*os.File

	// fd to pin mapping
	pins map[int]int

	// the handler for detected events
	eh EdgeHandler

	// pipe to signal watcher to shutdown
	donefds []int

	// closed once watcher exits
	doneCh chan struct{}
}

// Watch starts reporting edges detected on the pin.
//
// The pin must be exported, and be an input.  The edge detection is applied
// to the pin before the watch starts.  The handler is called from the
// watcher goroutine.
// Close the returned Watcher before unexporting the pin.
func (p *Pin) Watch(e Edge, eh EdgeHandler) (*Watcher, error) {
	if e == EdgeNone {
		return nil, &IOError{Op: "watch", Pin: p.offset, Err: ErrInvalidArgument}
	}
	vo, ok := p.c.k.(ValueOpener)
	if !ok {
		return nil, &IOError{Op: "watch", Pin: p.offset, Err: ErrNotSupported}
	}
	if err := p.SetEdge(e); err != nil {
		return nil, err
	}
	f, err := vo.OpenValue(p.offset)
	if err != nil {
		return nil, &IOError{Op: "watch", Pin: p.offset, Err: err}
	}
	w, err := NewWatcher(map[int]*os.File{p.offset: f}, eh)
	if err != nil {
		f.Close()
		return nil, &IOError{Op: "watch", Pin: p.offset, Err: err}
	}
	return w, nil
}

// NewWatcher creates a watcher reporting edges on the value files.
//
// The files are keyed by pin number, and are closed when the watcher is
// closed.
func NewWatcher(files map[int]*os.File, eh EdgeHandler) (w *Watcher, err error) {
	if len(files) == 0 {
		return nil, unix.EINVAL
	}
	var epfd int
	epfd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			unix.Close(epfd)
		}
	}()
	p := []int{0, 0}
	err = unix.Pipe2(p, unix.O_CLOEXEC)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			unix.Close(p[0])
			unix.Close(p[1])
		}
	}()
	epv := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(p[0])}
	err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, p[0], &epv)
	if err != nil {
		return
	}
	evtfds := map[int]*os.File{}
	pins := map[int]int{}
	epv.Events = unix.EPOLLPRI | unix.EPOLLERR
	for pin, f := range files {
		fd := int(f.Fd())
		// sysfs reports the value as changed until it has been read once.
		if _, err = readValue(f); err != nil {
			return
		}
		epv.Fd = int32(fd)
		err = unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &epv)
		if err != nil {
			return
		}
		evtfds[fd] = f
		pins[fd] = pin
	}
	w = &Watcher{
		epfd:    epfd,
		evtfds:  evtfds,
		pins:    pins,
		eh:      eh,
		donefds: p,
		doneCh:  make(chan struct{}),
	}
	go w.watch()
	return
}

// Close stops the watcher and closes the value files.
func (w *Watcher) Close() {
	unix.Write(w.donefds[1], []byte("bye"))
	<-w.doneCh
	for _, f := range w.evtfds {
		f.Close()
	}
	unix.Close(w.donefds[0])
	unix.Close(w.donefds[1])
}

func (w *Watcher) watch() {
	epollEvents := make([]unix.EpollEvent, len(w.evtfds)+1)
	defer close(w.doneCh)
	for {
		n, err := unix.EpollWait(w.epfd, epollEvents[:], -1)
		if err != nil {
			if err == unix.EBADF || err == unix.EINVAL {
				// fd closed so exit
				return
			}
			if err == unix.EINTR {
				continue
			}
			panic(fmt.Sprintf("EpollWait unexpected error: %v", err))
		}
		for i := 0; i < n; i++ {
			ev := epollEvents[i]
			fd := int(ev.Fd)
			if fd == w.donefds[0] {
				unix.Close(w.epfd)
				return
			}
			f, ok := w.evtfds[fd]
			if !ok {
				continue
			}
			v, err := readValue(f)
			if err != nil {
				continue
			}
			w.eh(EdgeEvent{Pin: w.pins[fd], Level: v, Time: time.Now()})
		}
	}
}

func readValue(f *os.File) (int, error) {
	buf := []byte{0}
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	if buf[0] == '1' {
		return 1, nil
	}
	return 0, nil
}
