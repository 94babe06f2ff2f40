// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

// A utility to blink a GPIO pin exported through sysfs.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pkg/errors"
	"github.com/warthog618/config"
	"github.com/warthog618/config/dict"
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

// run blinks the pin named on the command line and returns the exit status.
//
// Any options are applied to the Controller after those derived from the
// command line.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...gpiosysfs.Option) int {
	cfg, flags := loadConfig(args)
	if cfg.MustGet("help").Bool() {
		printHelp(stdout)
		return 0
	}
	if cfg.MustGet("version").Bool() {
		fmt.Fprintf(stdout, "gpioblink (gpiosysfs) %s\n", version)
		return 0
	}
	if flags.NArg() != 3 {
		return usage(stderr, "pin, duration and period must be specified")
	}
	aa := flags.Args()
	root := cfg.MustGet("root").String()
	pin, err := rpi.SysfsPin(sysfs.New(root), aa[0])
	if err != nil {
		return usage(stderr, fmt.Sprintf("can't parse pin '%s'", aa[0]))
	}
	duration, err := parseMillis(aa[1])
	if err != nil {
		return usage(stderr, fmt.Sprintf("can't parse duration '%s'", aa[1]))
	}
	period, err := parseMillis(aa[2])
	if err != nil {
		return usage(stderr, fmt.Sprintf("can't parse period '%s'", aa[2]))
	}
	logger, err := newLogger(stderr, cfg)
	if err != nil {
		return usage(stderr, err.Error())
	}
	copts := []gpiosysfs.Option{
		gpiosysfs.WithRoot(root),
		gpiosysfs.WithConsumer("gpioblink"),
	}
	c := gpiosysfs.New(append(copts, opts...)...)
	logger.Info("blinking", "pin", pin, "duration", duration, "period", period)
	err = blinker.Blink(ctx, c.Pin(pin), duration, period, blinker.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(stdout, "Problem: %s\n", err)
		return 1
	}
	fmt.Fprintln(stdout, "Success")
	return 0
}

func parseMillis(s string) (time.Duration, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", s)
	}
	return time.Duration(v) * time.Millisecond, nil
}

func loadConfig(args []string) (*config.Config, *pflag.Getter) {
	ff := []pflag.Flag{
		{Short: 'h', Name: "help", Options: pflag.IsBool},
		{Short: 'v', Name: "version", Options: pflag.IsBool},
		{Short: 'q', Name: "quiet", Options: pflag.IsBool},
		{Short: 'r', Name: "root"},
		{Short: 'l', Name: "log-level"},
	}
	defaults := dict.New(dict.WithMap(
		map[string]interface{}{
			"help":      false,
			"version":   false,
			"quiet":     false,
			"root":      sysfs.DefaultRoot,
			"log-level": "info",
		}))
	flags := pflag.New(pflag.WithFlags(ff),
		pflag.WithCommandLine(args),
		pflag.WithKeyReplacer(keys.NullReplacer()),
	)
	cfg := config.New(flags, config.WithDefault(defaults))
	return cfg, flags
}

func newLogger(w io.Writer, cfg *config.Config) (*log.Logger, error) {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		Prefix:          "gpioblink",
	})
	if cfg.MustGet("quiet").Bool() {
		logger.SetLevel(log.ErrorLevel)
		return logger, nil
	}
	lvl, err := log.ParseLevel(cfg.MustGet("log-level").String())
	if err != nil {
		return nil, err
	}
	logger.SetLevel(lvl)
	return logger, nil
}

func usage(w io.Writer, reason string) int {
	fmt.Fprintln(w, "gpioblink: "+reason)
	fmt.Fprintln(w, "Usage: gpioblink [OPTIONS] <pin> <duration_ms> <period_ms>")
	return 1
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: gpioblink [OPTIONS] <pin> <duration_ms> <period_ms>")
	fmt.Fprintln(w, "Export a GPIO pin, toggle it low then high for duration, and unexport it.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Each level is held for period, so a full cycle takes twice the period.")
	fmt.Fprintln(w, "The pin is always left low and unexported.")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -h, --help:\t\tdisplay this message and exit")
	fmt.Fprintln(w, "  -v, --version:\tdisplay the version and exit")
	fmt.Fprintln(w, "  -q, --quiet:\t\tonly log errors")
	fmt.Fprintln(w, "  -l, --log-level=LEVEL:\tset the log level (debug|info|warn|error)")
	fmt.Fprintln(w, "  -r, --root=PATH:\tthe sysfs GPIO root (defaults to /sys/class/gpio)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Pins:")
	fmt.Fprintln(w, "  N:\t\tthe global sysfs GPIO number")
	fmt.Fprintln(w, "  GPIOn, J8pN:\tRaspberry Pi pin names")
}
