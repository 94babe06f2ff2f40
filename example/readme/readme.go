// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A collection of code snippets demonstrating the API.
package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/blinker"
	"github.com/warthog618/gpiosysfs/device/rpi"
	"github.com/warthog618/gpiosysfs/sysfs"
)

func main() {
	// Controller Initialisation
	c := gpiosysfs.New(gpiosysfs.WithConsumer("myapp"))

	// Quick Start
	err := c.Pin(2).WithExported(gpiosysfs.DirectionInput, func(in *gpiosysfs.Pin) error {
		val, err := in.Value()
		if err != nil {
			return err
		}
		d := gpiosysfs.DirectionOutputLow
		if val == 1 {
			d = gpiosysfs.DirectionOutputHigh
		}
		return c.Pin(3).WithExported(d, func(*gpiosysfs.Pin) error {
			return nil
		})
	})

	// Pin Names
	pin, _ := rpi.SysfsPin(sysfs.New(""), "J8p7") // Using Raspberry Pi J8 mapping.
	p := c.Pin(pin)

	// Manual Export
	if err = p.Export(); err == nil {
		p.SetDirection(gpiosysfs.DirectionOutputHigh)
		p.SetActiveLow(true)
		p.SetValue(0)
		p.Unexport()
	}

	// Session Errors
	err = gpiosysfs.RunGuarded(p, gpiosysfs.DirectionOutputLow, func(p *gpiosysfs.Pin) error {
		return p.SetValue(1)
	})
	var busy gpiosysfs.ErrPinBusy
	var ce *gpiosysfs.CompositeError
	switch {
	case errors.As(err, &busy):
		fmt.Printf("gpio%d is in use by %s\n", busy.Pin, busy.Owner)
	case errors.Is(err, gpiosysfs.ErrExportFailed):
		fmt.Printf("export failed: %s\n", err)
	case errors.As(err, &ce):
		fmt.Printf("work failed: %s, and release failed: %s\n", ce.Work, ce.Release)
	case errors.Is(err, gpiosysfs.ErrReleaseFailed):
		fmt.Printf("pin left exported: %s\n", err)
	}

	// Edge Watches
	p.WithExported(gpiosysfs.DirectionInput, func(p *gpiosysfs.Pin) error {
		w, err := p.Watch(gpiosysfs.EdgeBoth, handler)
		if err != nil {
			return err
		}
		defer w.Close()
		time.Sleep(time.Second)
		return nil
	})

	// Blinking
	ctx := context.Background()
	blinker.Blink(ctx, p, 2*time.Second, 200*time.Millisecond)

	// Concurrent Workers
	g := blinker.NewGroup()
	g.Add(
		blinker.NewWorker(c.Pin(pin), blinker.WithPeriod(time.Second)),
		blinker.NewWorker(c.Pin(pin+1), blinker.PolicyAbort, blinker.WithBackoff(time.Second, time.Minute)),
	)
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	g.Run(ctx)

	// Cleanup
	c.ReleaseAll()
}

func handler(evt gpiosysfs.EdgeEvent) {
	fmt.Printf("gpio%d is now %d\n", evt.Pin, evt.Level)
}
