// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package gpiosysfs_test

import (
	"errors"
	"testing"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/gpiosysfs"
	"golang.org/x/sys/unix"
)

// uevents is a uevent source fed by the test, that idles like a netlink
// socket with a receive timeout.
type uevents struct {
	evts   chan *netlink.UEvent
	errs   chan error
	closed chan struct{}
}

func newUEvents() *uevents {
	return &uevents{
		evts:   make(chan *netlink.UEvent),
		errs:   make(chan error),
		closed: make(chan struct{}),
	}
}

func (u *uevents) ReadUEvent() (*netlink.UEvent, error) {
	select {
	case evt := <-u.evts:
		return evt, nil
	case err := <-u.errs:
		return nil, err
	case <-time.After(5 * time.Millisecond):
		return nil, unix.EAGAIN
	}
}

func (u *uevents) Close() error {
	close(u.closed)
	return nil
}

func pinUEvent(action netlink.KObjAction, devpath string) *netlink.UEvent {
	return &netlink.UEvent{
		Action: action,
		KObj:   devpath,
		Env: map[string]string{
			"ACTION":    string(action),
			"DEVPATH":   devpath,
			"SUBSYSTEM": "gpio",
		},
	}
}

func TestExportWatcher(t *testing.T) {
	u := newUEvents()
	evtchan := make(chan gpiosysfs.ExportEvent, 5)
	w, err := gpiosysfs.NewExportWatcherFromReader(u, func(evt gpiosysfs.ExportEvent) {
		evtchan <- evt
	})
	require.Nil(t, err)
	defer w.Close()

	u.evts <- pinUEvent(netlink.ADD, "/devices/platform/soc/fe200000.gpio/gpiochip0/gpio/gpio529")
	// ignored
	u.evts <- pinUEvent(netlink.ADD, "/devices/platform/gpio-mockup.0/gpiochip1")
	u.evts <- pinUEvent(netlink.CHANGE, "/devices/virtual/gpio/gpio23")
	u.errs <- errors.New("unable to parse uevent")
	u.errs <- unix.EINTR
	u.errs <- unix.ENOBUFS
	u.evts <- pinUEvent(netlink.REMOVE, "/devices/virtual/gpio/gpio23")

	assert.Equal(t, gpiosysfs.ExportEvent{Pin: 529, Type: gpiosysfs.ExportEventExported}, <-evtchan)
	assert.Equal(t, gpiosysfs.ExportEvent{Pin: 23, Type: gpiosysfs.ExportEventUnexported}, <-evtchan)
	assert.Empty(t, evtchan)
	assert.Nil(t, w.Err())
}

func TestExportWatcherClose(t *testing.T) {
	u := newUEvents()
	w, err := gpiosysfs.NewExportWatcherFromReader(u, func(gpiosysfs.ExportEvent) {})
	require.Nil(t, err)
	w.Close()
	select {
	case <-u.closed:
	default:
		assert.Fail(t, "reader not closed")
	}
	select {
	case <-w.Done():
	default:
		assert.Fail(t, "watcher not done")
	}
	assert.Nil(t, w.Err())
	// repeated close is harmless
	w.Close()
}

func TestExportWatcherReadError(t *testing.T) {
	u := newUEvents()
	w, err := gpiosysfs.NewExportWatcherFromReader(u, func(gpiosysfs.ExportEvent) {})
	require.Nil(t, err)
	u.errs <- unix.EBADF
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		require.Fail(t, "watcher did not terminate")
	}
	assert.ErrorIs(t, w.Err(), unix.EBADF)
	<-u.closed
	w.Close()
}

func TestExportWatcherEventTypeString(t *testing.T) {
	assert.Equal(t, "exported", gpiosysfs.ExportEventExported.String())
	assert.Equal(t, "unexported", gpiosysfs.ExportEventUnexported.String())
	assert.Equal(t, "unknown", gpiosysfs.ExportEventType(0).String())
}
