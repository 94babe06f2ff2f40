// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/gpiosysfs/device/rpi"
	"github.com/warthog618/gpiosysfs/sysfs"
)

func init() {
	rootCmd.AddCommand(releaseCmd)
}

var releaseCmd = &cobra.Command{
	Use:   "release <pin>...",
	Short: "Unexport leftover pins",
	Long: `Unexport pins left exported, such as by a process that was killed before it could clean up.

Pins that are not exported are skipped.`,
	Args:                  cobra.MinimumNArgs(1),
	RunE:                  release,
	DisableFlagsInUseLine: true,
}

func release(cmd *cobra.Command, args []string) error {
	fs := sysfs.New(rootOpts.Root)
	pins, err := parsePins(fs, args)
	if err != nil {
		return err
	}
	failed := 0
	for _, pin := range pins {
		if !fs.IsExported(pin) {
			fmt.Fprintf(cmd.OutOrStdout(), "gpio%d not exported\n", pin)
			continue
		}
		if err := fs.Unexport(pin); err != nil {
			logErr(cmd, errors.Wrapf(err, "unexport gpio%d", pin))
			failed++
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "released gpio%d\n", pin)
	}
	if failed > 0 {
		return errors.Errorf("failed to release %d of %d pins", failed, len(pins))
	}
	return nil
}

// parsePins maps the pin names to global sysfs numbers.
func parsePins(fs *sysfs.FS, names []string) ([]int, error) {
	pins := make([]int, 0, len(names))
	for _, name := range names {
		pin, err := rpi.SysfsPin(fs, name)
		if err != nil {
			return nil, errors.Wrapf(err, "can't parse pin '%s'", name)
		}
		pins = append(pins, pin)
	}
	return pins, nil
}
