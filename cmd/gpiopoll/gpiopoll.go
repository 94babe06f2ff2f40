// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A utility to report the state of a GPIO pin exported through sysfs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/warthog618/config"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/keys"
	"github.com/warthog618/config/pflag"
	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/blinker"
	"github.com/warthog618/gpiosysfs/device/rpi"
	"github.com/warthog618/gpiosysfs/sysfs"
)

var version = "undefined"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

var levelNames = map[int]string{
	0: "Low",
	1: "High",
}

var edges = map[string]gpiosysfs.Edge{
	"rising":  gpiosysfs.EdgeRising,
	"falling": gpiosysfs.EdgeFalling,
	"both":    gpiosysfs.EdgeBoth,
}

// run reports the state of the pin named on the command line until the
// context is done, and returns the exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...gpiosysfs.Option) int {
	cfg, flags := loadConfig(args)
	if cfg.MustGet("help").Bool() {
		printHelp(stdout)
		return 0
	}
	if cfg.MustGet("version").Bool() {
		fmt.Fprintf(stdout, "gpiopoll (gpiosysfs) %s\n", version)
		return 0
	}
	if flags.NArg() != 1 {
		return die(stderr, "exactly one pin must be specified")
	}
	root := cfg.MustGet("root").String()
	pin, err := rpi.SysfsPin(sysfs.New(root), flags.Args()[0])
	if err != nil {
		return die(stderr, fmt.Sprintf("can't parse pin '%s'", flags.Args()[0]))
	}
	interval := cfg.MustGet("interval").Duration()
	edge := cfg.MustGet("edge").String()
	if _, ok := edges[edge]; edge != "" && !ok {
		return die(stderr, fmt.Sprintf("invalid edge: %s", edge))
	}
	logger := log.NewWithOptions(stdout, log.Options{
		ReportTimestamp: true,
		Prefix:          "gpiopoll",
	})
	lvl, err := log.ParseLevel(cfg.MustGet("log-level").String())
	if err != nil {
		return die(stderr, err.Error())
	}
	logger.SetLevel(lvl)

	copts := []gpiosysfs.Option{
		gpiosysfs.WithRoot(root),
		gpiosysfs.WithConsumer("gpiopoll"),
	}
	c := gpiosysfs.New(append(copts, opts...)...)
	bopts := []blinker.Option{
		blinker.WithLogger(logger),
		blinker.WithEventLimit(cfg.MustGet("num-events").Int()),
	}
	if edge != "" {
		err = blinker.Monitor(ctx, c.Pin(pin), edges[edge], func(evt gpiosysfs.EdgeEvent) {
			logger.Info("pin state", "pin", pin, "state", levelNames[evt.Level], "at", evt.Time)
		}, bopts...)
	} else {
		err = blinker.Poll(ctx, c.Pin(pin), interval, func(level int) {
			logger.Info("pin state", "pin", pin, "state", levelNames[level])
		}, bopts...)
	}
	if err != nil {
		return die(stderr, err.Error())
	}
	return 0
}

func loadConfig(args []string) (*config.Config, *pflag.Getter) {
	ff := []pflag.Flag{
		{Short: 'h', Name: "help", Options: pflag.IsBool},
		{Short: 'v', Name: "version", Options: pflag.IsBool},
		{Short: 'i', Name: "interval"},
		{Short: 'e', Name: "edge"},
		{Short: 'n', Name: "num-events"},
		{Short: 'r', Name: "root"},
		{Short: 'l', Name: "log-level"},
	}
	defaults := dict.New(dict.WithMap(
		map[string]interface{}{
			"help":       false,
			"version":    false,
			"interval":   "10ms",
			"edge":       "",
			"num-events": 0,
			"root":       sysfs.DefaultRoot,
			"log-level":  "info",
		}))
	flags := pflag.New(pflag.WithFlags(ff),
		pflag.WithCommandLine(args),
		pflag.WithKeyReplacer(keys.NullReplacer()),
	)
	cfg := config.New(flags,
		env.New(env.WithEnvPrefix("GPIOPOLL_")),
		config.WithDefault(defaults))
	return cfg, flags
}

func die(w io.Writer, reason string) int {
	fmt.Fprintln(w, "gpiopoll: "+reason)
	return 1
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: gpiopoll [OPTIONS] <pin>")
	fmt.Fprintln(w, "Export a GPIO pin as an input and log its state on every change.")
	fmt.Fprintln(w, "The pin is unexported on exit.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -h, --help:\t\tdisplay this message and exit")
	fmt.Fprintln(w, "  -v, --version:\tdisplay the version and exit")
	fmt.Fprintln(w, "  -i, --interval=DURATION:\tthe sampling interval (defaults to 10ms)")
	fmt.Fprintln(w, "  -e, --edge=[rising|falling|both]:")
	fmt.Fprintln(w, "\t\t\twait for edge interrupts rather than sampling")
	fmt.Fprintln(w, "  -n, --num-events=NUM:\texit after reporting NUM changes")
	fmt.Fprintln(w, "  -l, --log-level=LEVEL:\tset the log level (debug|info|warn|error)")
	fmt.Fprintln(w, "  -r, --root=PATH:\tthe sysfs GPIO root (defaults to /sys/class/gpio)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options may also be set in the environment, e.g. GPIOPOLL_INTERVAL=50ms.")
}
