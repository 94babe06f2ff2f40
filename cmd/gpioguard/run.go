// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/blob/loader/file"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/gpiosysfs/blinker"
	"github.com/warthog618/gpiosysfs/sysfs"
)

func init() {
	runCmd.Flags().StringVarP(&runOpts.ConfigFile, "config-file", "c", "gpioguard.json", "the config file")
	runCmd.Flags().DurationVarP(&runOpts.Period, "period", "p", 0, "the time each level is held")
	runCmd.Flags().StringVarP(&runOpts.Mode, "mode", "m", "", "when pins are exported.")
	runCmd.Flags().StringVar(&runOpts.Policy, "policy", "", "what a worker does when a cycle fails.")
	runCmd.Flags().IntVar(&runOpts.Retries, "retries", 0, "the number of consecutive retries before a worker stops (0 is unlimited)")
	runCmd.Flags().DurationVarP(&runOpts.Duration, "duration", "d", 0, "stop the workers after the duration (0 runs until signalled)")
	runCmd.SetHelpTemplate(runCmd.HelpTemplate() + extendedRunHelp)
	rootCmd.AddCommand(runCmd)
}

var extendedRunHelp = `
Modes:
  per-cycle:    export and unexport the pin around every cycle
  once:         export the pin for the life of the worker

Policies:
  retry:        back off and retry the failed cycle
  stop:         stop the failed worker, leaving the others running
  abort:        stop all workers

Config:
  Settings not provided by flags are read from the environment, with
  the prefix GPIOGUARD_, then from the config file, e.g.

    {
      "pins": "GPIO17,GPIO27,22",
      "period": "500ms",
      "mode": "once",
      "policy": "retry",
      "retries": 5,
      "backoff": {"initial": "100ms", "max": "10s"},
      "log": {"level": "info"}
    }

  Pins named on the command line replace the configured pins.
`

var (
	runCmd = &cobra.Command{
		Use:   "run [flags] [pin]...",
		Short: "Blink pins concurrently",
		Long: `Run a worker for each pin that continuously blinks it until signalled.

Each worker has sole use of its pin, and the pins are always unexported on exit.`,
		RunE: runWorkers,
	}
	runOpts = struct {
		ConfigFile string
		Period     time.Duration
		Mode       string
		Policy     string
		Retries    int
		Duration   time.Duration
	}{}
)

var modes = map[string]blinker.Mode{
	"per-cycle": blinker.ModePerCycle,
	"once":      blinker.ModeOnce,
}

var policies = map[string]blinker.Policy{
	"retry": blinker.PolicyRetry,
	"stop":  blinker.PolicyStop,
	"abort": blinker.PolicyAbort,
}

func runWorkers(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cmd, cfg.MustGet("log.level").String())
	if err != nil {
		return err
	}
	opts, err := workerOptions(cfg)
	if err != nil {
		return err
	}
	names := args
	if len(names) == 0 {
		names = splitPins(cfg.MustGet("pins").String())
	}
	if len(names) == 0 {
		return errors.New("no pins specified")
	}
	pins, err := parsePins(sysfs.New(rootOpts.Root), names)
	if err != nil {
		return err
	}

	c := newController()
	g := blinker.NewGroup(blinker.WithLogger(logger))
	for _, pin := range pins {
		g.Add(blinker.NewWorker(c.Pin(pin), append(opts, blinker.WithLogger(logger))...))
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if runOpts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, runOpts.Duration)
		defer cancel()
	}
	logger.Info("starting", "pins", pins)
	err = g.Run(ctx)
	for _, w := range g.Workers() {
		if werr := w.Err(); werr != nil {
			logger.Warn("worker failed", "pin", w.Pin().Offset(), "cycles", w.Cycles(), "err", werr)
			continue
		}
		logger.Info("worker stopped", "pin", w.Pin().Offset(), "cycles", w.Cycles())
	}
	return err
}

// loadRunConfig merges the flags, environment, config file and defaults, in
// that order of precedence.
func loadRunConfig(cmd *cobra.Command) (*config.Config, error) {
	defaults := dict.New(dict.WithMap(
		map[string]interface{}{
			"pins":    "",
			"period":  "200ms",
			"mode":    blinker.ModePerCycle.String(),
			"policy":  blinker.PolicyRetry.String(),
			"retries": 0,
			"backoff": map[string]interface{}{
				"initial": blinker.DefaultBackoff.Initial.String(),
				"max":     blinker.DefaultBackoff.Max.String(),
			},
			"log": map[string]interface{}{
				"level": "info",
			},
		}))
	flags := cmd.Flags()
	overrides := map[string]interface{}{}
	if flags.Changed("period") {
		overrides["period"] = runOpts.Period.String()
	}
	if flags.Changed("mode") {
		overrides["mode"] = runOpts.Mode
	}
	if flags.Changed("policy") {
		overrides["policy"] = runOpts.Policy
	}
	if flags.Changed("retries") {
		overrides["retries"] = runOpts.Retries
	}
	cfg := config.New(
		dict.New(dict.WithMap(overrides)),
		env.New(env.WithEnvPrefix("GPIOGUARD_")),
		config.WithDefault(defaults))
	if _, err := os.Stat(runOpts.ConfigFile); err == nil {
		cfg.Append(blob.New(file.New(runOpts.ConfigFile), json.NewDecoder()))
	} else if flags.Changed("config-file") {
		return nil, err
	}
	return cfg, nil
}

func workerOptions(cfg *config.Config) ([]blinker.Option, error) {
	mode, ok := modes[cfg.MustGet("mode").String()]
	if !ok {
		return nil, errors.Errorf("invalid mode: %s", cfg.MustGet("mode").String())
	}
	policy, ok := policies[cfg.MustGet("policy").String()]
	if !ok {
		return nil, errors.Errorf("invalid policy: %s", cfg.MustGet("policy").String())
	}
	period := cfg.MustGet("period").Duration()
	if period <= 0 {
		return nil, errors.Errorf("invalid period: %s", period)
	}
	return []blinker.Option{
		mode,
		policy,
		blinker.WithPeriod(period),
		blinker.WithMaxRetries(cfg.MustGet("retries").Int()),
		blinker.WithBackoff(
			cfg.MustGet("backoff.initial").Duration(),
			cfg.MustGet("backoff.max").Duration()),
	}, nil
}

func splitPins(s string) []string {
	names := []string(nil)
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
