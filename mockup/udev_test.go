// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package mockup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pilebones/go-udev/netlink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeChip(t *testing.T, dir, label, base, ngpio string) {
	t.Helper()
	require.Nil(t, os.MkdirAll(dir, 0755))
	for attr, v := range map[string]string{"label": label, "base": base, "ngpio": ngpio} {
		require.Nil(t, os.WriteFile(filepath.Join(dir, attr), []byte(v+"\n"), 0644))
	}
}

func chipUEvent(devpath, devname string) netlink.UEvent {
	return netlink.UEvent{
		Action: netlink.ADD,
		KObj:   devpath,
		Env: map[string]string{
			"DEVPATH":   devpath,
			"DEVNAME":   devname,
			"SUBSYSTEM": "gpio",
		},
	}
}

func TestUdevMonitorChip(t *testing.T) {
	root := t.TempDir()
	writeChip(t, filepath.Join(root, "devices/platform/gpio-mockup.1/gpio/gpiochip600"),
		"gpio-mockup-B", "600", "8")
	m := udevMonitor{sysRoot: root}
	c, err := m.chip(chipUEvent("/devices/platform/gpio-mockup.1/gpiochip3", "/dev/gpiochip3"))
	require.Nil(t, err)
	assert.Equal(t, Chip{
		Name:      "gpiochip3",
		Label:     "gpio-mockup-B",
		Lines:     8,
		Base:      600,
		DevPath:   "/dev/gpiochip3",
		DbgfsPath: "/sys/kernel/debug/gpio-mockup/gpiochip3/",
	}, c)
	pin, err := c.Pin(2)
	assert.Nil(t, err)
	assert.Equal(t, 602, pin)
}

func TestUdevMonitorChipInvalid(t *testing.T) {
	root := t.TempDir()
	writeChip(t, filepath.Join(root, "devices/platform/gpio-mockup.2/gpio/gpiochip600"),
		"gpio-mockup-C", "600", "8")
	writeChip(t, filepath.Join(root, "devices/platform/gpio-mockup.2/gpio/gpiochip608"),
		"gpio-mockup-D", "608", "8")
	patterns := []struct {
		name    string
		devpath string
		devname string
	}{
		{"name", "/devices/platform/gpio-mockup.0/gpiochip0", "/dev/gpio"},
		{"no sysfs chip", "/devices/platform/gpio-mockup.0/gpiochip0", "/dev/gpiochip0"},
		{"ambiguous", "/devices/platform/gpio-mockup.2/gpiochip2", "/dev/gpiochip2"},
	}
	m := udevMonitor{sysRoot: root}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			_, err := m.chip(chipUEvent(p.devpath, p.devname))
			assert.NotNil(t, err)
		}
		t.Run(p.name, tf)
	}
}
