// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/warthog618/gpiosysfs/sysfs"
)

func init() {
	rootCmd.AddCommand(chipsCmd)
}

var chipsCmd = &cobra.Command{
	Use:   "chips",
	Short: "List the GPIO chips",
	Long:  `List the GPIO chips in the sysfs tree, with their labels, pin ranges and number of lines.`,
	Args:  cobra.NoArgs,
	RunE:  chips,
}

func chips(cmd *cobra.Command, args []string) error {
	cc, err := sysfs.New(rootOpts.Root).Chips()
	if err != nil {
		return err
	}
	for _, c := range cc {
		fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] (%d lines, gpio%d-gpio%d)\n",
			c.Name, c.Label, c.Lines, c.Base, c.Base+c.Lines-1)
	}
	return nil
}
