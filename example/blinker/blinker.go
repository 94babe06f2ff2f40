// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/blinker"
	"github.com/warthog618/gpiosysfs/device/rpi"
	"github.com/warthog618/gpiosysfs/sysfs"
)

// This example drives GPIO 4 and GPIO 17, which are pins J8-7 and J8-11 on a
// Raspberry Pi.
// GPIO 4 is toggled at 1Hz and GPIO 17 at 2Hz, both with a 50% duty cycle,
// until the process is signalled.
// Do not run this on a device which has these pins externally driven.
func main() {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs := sysfs.New("")
	c := gpiosysfs.New(gpiosysfs.WithConsumer("blinker"))
	g := blinker.NewGroup(blinker.WithLogger(logger))
	for name, period := range map[string]time.Duration{
		"GPIO4":  500 * time.Millisecond,
		"GPIO17": 250 * time.Millisecond,
	} {
		pin, err := rpi.SysfsPin(fs, name)
		if err != nil {
			logger.Fatal("can't find pin", "name", name, "err", err)
		}
		g.Add(blinker.NewWorker(c.Pin(pin),
			blinker.WithPeriod(period),
			blinker.ModeOnce,
			blinker.WithLogger(logger)))
	}
	if err := g.Run(ctx); err != nil {
		logger.Fatal("blinking failed", "err", err)
	}
	for _, w := range g.Workers() {
		logger.Info("blinked", "pin", w.Pin().Offset(), "cycles", w.Cycles())
	}
}
