// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/device/rpi"
	"github.com/warthog618/gpiosysfs/sysfs"
)

// Watches GPIO 4 (Raspberry Pi J8-7) and reports when it changes state.
func main() {
	pin, err := rpi.SysfsPin(sysfs.New(""), "J8p7")
	if err != nil {
		fmt.Printf("Finding J8p7 returned error: %s\n", err)
		os.Exit(1)
	}
	c := gpiosysfs.New(gpiosysfs.WithConsumer("watcher"))
	err = c.Pin(pin).WithExported(gpiosysfs.DirectionInput, func(p *gpiosysfs.Pin) error {
		w, err := p.Watch(gpiosysfs.EdgeBoth, func(evt gpiosysfs.EdgeEvent) {
			edge := "rising"
			if evt.Level == 0 {
				edge = "falling"
			}
			fmt.Printf("event:%3d %-7s %s\n", evt.Pin, edge, evt.Time.Format(time.RFC3339Nano))
		})
		if err != nil {
			return err
		}
		defer w.Close()

		// In a real application the main thread would do something useful.
		// But we'll just run for a minute then exit.
		fmt.Printf("Watching Pin %d...\n", pin)
		time.Sleep(time.Minute)
		return nil
	})
	if err != nil {
		fmt.Printf("Watch returned error: %s\n", err)
		if errors.Is(err, gpiosysfs.ErrNotSupported) {
			fmt.Println("Note that edge detection requires a chip that supports interrupts.")
		}
		os.Exit(1)
	}
	fmt.Println("exiting...")
}
