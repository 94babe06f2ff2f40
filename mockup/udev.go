// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package mockup

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/warthog618/gpiosysfs/sysfs"
	"golang.org/x/sys/unix"
)

// udevMonitor collects the udev events announcing the mocked chips.
//
// The monitor must be created before the module is loaded, so the events are
// queued on the socket until Chips reads them.
type udevMonitor struct {
	conn    netlink.UEventConn
	matcher netlink.Matcher

	// the root of sysfs, in which the chips are located
	sysRoot string
}

func newUdevMonitor() (*udevMonitor, error) {
	m := udevMonitor{sysRoot: "/sys"}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		return nil, fmt.Errorf("unable to connect to Netlink Kobject UEvent socket: %w", err)
	}
	// bounded reads so Chips can time out
	tv := unix.NsecToTimeval(int64(100 * time.Millisecond))
	if err := unix.SetsockoptTimeval(m.conn.Fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		m.conn.Close()
		return nil, err
	}
	action := "^add$"
	matcher := &netlink.RuleDefinition{Action: &action,
		Env: map[string]string{
			"SUBSYSTEM": "^gpio$",
			"DEVPATH":   "/devices/platform/gpio-mockup\\.\\d+/gpiochip\\d+$",
		}}
	if err := matcher.Compile(); err != nil {
		m.conn.Close()
		return nil, err
	}
	m.matcher = matcher
	return &m, nil
}

// Chips waits for the udev events for the mocked chips and makes chips from
// them, in the order of lines.
func (m *udevMonitor) Chips(lines []int) ([]Chip, error) {
	evts := make([]netlink.UEvent, 0, len(lines))
	deadline := time.Now().Add(time.Second)
	for len(evts) < len(lines) {
		if time.Now().After(deadline) {
			return nil, errors.New("timeout waiting for udev events")
		}
		evt, err := m.conn.ReadUEvent()
		if err != nil {
			var errno unix.Errno
			if errors.As(err, &errno) && errno != unix.EAGAIN && errno != unix.EINTR {
				return nil, err
			}
			continue
		}
		if m.matcher.Evaluate(*evt) {
			evts = append(evts, *evt)
		}
	}
	sort.Slice(evts, func(i, j int) bool {
		return evts[i].Env["DEVNAME"] < evts[j].Env["DEVNAME"]
	})
	cc := make([]Chip, len(lines))
	for i, l := range lines {
		c, err := m.chip(evts[i])
		if err != nil {
			return nil, err
		}
		if c.Lines != l {
			return nil, fmt.Errorf("%s has %d lines, expected %d", c.Name, c.Lines, l)
		}
		cc[i] = c
	}
	return cc, nil
}

// chip makes a chip from the udev event for its character device.
//
// The chip is registered with sysfs under its platform device, so the sysfs
// base and label are read from there.
func (m *udevMonitor) chip(evt netlink.UEvent) (Chip, error) {
	devname := evt.Env["DEVNAME"]
	name := filepath.Base(devname)
	var num int
	if _, err := fmt.Sscanf(name, "gpiochip%d", &num); err != nil {
		return Chip{}, fmt.Errorf("failed to parse chip num: %w", err)
	}
	platdev := filepath.Dir(evt.Env["DEVPATH"])
	ci, err := sysfs.New(filepath.Join(m.sysRoot, platdev, "gpio")).Chips()
	if err != nil {
		return Chip{}, err
	}
	if len(ci) != 1 {
		return Chip{}, fmt.Errorf("found %d sysfs chips for %s, expected 1", len(ci), name)
	}
	return Chip{
		Name:      name,
		Label:     ci[0].Label,
		Lines:     ci[0].Lines,
		Base:      ci[0].Base,
		DevPath:   devname,
		DbgfsPath: fmt.Sprintf("/sys/kernel/debug/gpio-mockup/gpiochip%d/", num),
	}, nil
}

func (m *udevMonitor) Close() {
	m.conn.Close()
}
