// SPDX-FileCopyrightText: 2020 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package gpiosysfs

import "github.com/pilebones/go-udev/netlink"

// UEventReader exposes the uevent source of the ExportWatcher to tests.
type UEventReader interface {
	ReadUEvent() (*netlink.UEvent, error)
	Close() error
}

// NewExportWatcherFromReader creates an ExportWatcher reading from r rather
// than the kernel.
func NewExportWatcherFromReader(r UEventReader, eh ExportHandler) (*ExportWatcher, error) {
	return newExportWatcher(r, eh)
}
