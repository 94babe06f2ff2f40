// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A utility to drive and manage GPIO pins exported through sysfs.
package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/sysfs"
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.Root, "root", "r", sysfs.DefaultRoot, "the sysfs GPIO root")
	rootCmd.PersistentFlags().StringVar(&rootOpts.LogLevel, "log-level", "", "set the log level (debug|info|warn|error)")
}

var (
	rootCmd = &cobra.Command{
		Use:   "gpioguard",
		Short: "gpioguard is a utility to drive and manage sysfs GPIO pins",
		Long: "gpioguard is a utility to drive and manage GPIO pins exported through " +
			"the Linux sysfs GPIO interface, ensuring pins are always unexported.",
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}
	rootOpts = struct {
		Root     string
		LogLevel string
	}{}

	// extra options applied to the controllers created by subcommands.
	controllerOptions []gpiosysfs.Option
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newController() *gpiosysfs.Controller {
	opts := []gpiosysfs.Option{
		gpiosysfs.WithRoot(rootOpts.Root),
		gpiosysfs.WithConsumer("gpioguard"),
	}
	return gpiosysfs.New(append(opts, controllerOptions...)...)
}

// newLogger returns a logger writing to the command's error stream at the
// given level, unless overridden by the --log-level flag.
func newLogger(cmd *cobra.Command, level string) (*log.Logger, error) {
	if rootOpts.LogLevel != "" {
		level = rootOpts.LogLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(cmd.ErrOrStderr(), log.Options{
		ReportTimestamp: true,
		Prefix:          "gpioguard " + cmd.Name(),
		Level:           lvl,
	}), nil
}

func logErr(cmd *cobra.Command, err error) {
	fmt.Fprintf(cmd.ErrOrStderr(), "gpioguard %s: %s\n", cmd.Name(), err)
}
