// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/warthog618/gpiosysfs"
)

func init() {
	watchCmd.Flags().UintVarP(&watchOpts.NumEvents, "num-events", "n", 0, "exit after n events")
	rootCmd.AddCommand(watchCmd)
}

var (
	watchCmd = &cobra.Command{
		Use:   "watch [flags]",
		Short: "Watch for pins being exported and unexported",
		Long: `Wait for pins to be exported or unexported, by any process, and print the events to standard output.

This requires access to the kernel uevent netlink socket.`,
		Args: cobra.NoArgs,
		RunE: watch,
	}
	watchOpts = struct {
		NumEvents uint
	}{}
)

func watch(cmd *cobra.Command, args []string) error {
	evtchan := make(chan gpiosysfs.ExportEvent)
	w, err := gpiosysfs.NewExportWatcher(func(evt gpiosysfs.ExportEvent) {
		evtchan <- evt
	})
	if err != nil {
		return err
	}
	defer w.Close()
	sigdone := make(chan os.Signal, 1)
	signal.Notify(sigdone, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigdone)
	count := uint(0)
	for {
		select {
		case evt := <-evtchan:
			fmt.Fprintf(cmd.OutOrStdout(), "event: gpio%-4d %-10s %s\n",
				evt.Pin, evt.Type, time.Now().Format(time.RFC3339Nano))
			count++
			if watchOpts.NumEvents > 0 && count >= watchOpts.NumEvents {
				go drain(evtchan)
				return nil
			}
		case <-sigdone:
			go drain(evtchan)
			return nil
		case <-w.Done():
			return w.Err()
		}
	}
}

// drain unblocks the watcher while it is closed.
func drain(evtchan <-chan gpiosysfs.ExportEvent) {
	for range evtchan {
	}
}
