// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

// Package sysfs provides access to the Linux GPIO sysfs interface.
//
// The interface is a tree of attribute files, by default rooted at
// /sys/class/gpio, containing the export and unexport control nodes, a
// gpiochipN directory for each chip, and a gpioN directory for each exported
// pin.
//
// The functions here are a thin layer over those attributes.  They hold no
// state other than the root of the tree and return the underlying platform
// errors unwrapped.
package sysfs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultRoot is the location of the GPIO sysfs interface.
const DefaultRoot = "/sys/class/gpio"

// Direction is the token written to, or read from, a pin direction attribute.
type Direction string

const (
	// DirectionIn configures the pin as an input.
	DirectionIn Direction = "in"

	// DirectionOut configures the pin as an output, initially low.
	//
	// This is the form the kernel reports when the direction is read.
	DirectionOut Direction = "out"

	// DirectionLow configures the pin as an output, initially low.
	DirectionLow Direction = "low"

	// DirectionHigh configures the pin as an output, initially high.
	DirectionHigh Direction = "high"
)

// Edge is the token written to a pin edge attribute.
type Edge string

const (
	// EdgeNone disables edge detection.
	EdgeNone Edge = "none"

	// EdgeRising detects low to high transitions.
	EdgeRising Edge = "rising"

	// EdgeFalling detects high to low transitions.
	EdgeFalling Edge = "falling"

	// EdgeBoth detects transitions in both directions.
	EdgeBoth Edge = "both"
)

// FS is a GPIO sysfs tree.
type FS struct {
	root string
}

// New returns the GPIO sysfs tree rooted at root.
//
// An empty root selects DefaultRoot.
func New(root string) *FS {
	if len(root) == 0 {
		root = DefaultRoot
	}
	return &FS{root: root}
}

// Root returns the path to the root of the tree.
func (fs *FS) Root() string {
	return fs.root
}

// PinPath returns the path to the directory for the pin.
//
// The directory only exists while the pin is exported.
func (fs *FS) PinPath(pin int) string {
	return filepath.Join(fs.root, fmt.Sprintf("gpio%d", pin))
}

func (fs *FS) attrPath(pin int, attr string) string {
	return filepath.Join(fs.PinPath(pin), attr)
}

// Export requests the kernel expose the pin to userspace.
func (fs *FS) Export(pin int) error {
	return writeAttr(filepath.Join(fs.root, "export"), strconv.Itoa(pin))
}

// Unexport requests the kernel withdraw the pin from userspace.
func (fs *FS) Unexport(pin int) error {
	return writeAttr(filepath.Join(fs.root, "unexport"), strconv.Itoa(pin))
}

// IsExported returns true if the directory for the pin exists.
func (fs *FS) IsExported(pin int) bool {
	_, err := os.Stat(fs.PinPath(pin))
	return err == nil
}

// WaitExported waits for the value attribute of an exported pin to become
// accessible.
//
// The attributes are created by the kernel as part of the export, but
// permissions may be applied later by udev, so there is a window after the
// export where the attributes exist but cannot be written.
// Returns the last access error if the timeout expires first.
func (fs *FS) WaitExported(pin int, timeout time.Duration) error {
	path := fs.attrPath(pin, "value")
	deadline := time.Now().Add(timeout)
	for {
		err := unix.Access(path, unix.R_OK|unix.W_OK)
		if err == nil {
			return nil
		}
		if !time.Now().Before(deadline) {
			return &os.PathError{Op: "access", Path: path, Err: err}
		}
		time.Sleep(time.Millisecond)
	}
}

// SetDirection writes the direction attribute of an exported pin.
func (fs *FS) SetDirection(pin int, d Direction) error {
	return writeAttr(fs.attrPath(pin, "direction"), string(d))
}

// Direction reads the direction attribute of an exported pin.
//
// The kernel only ever reports DirectionIn or DirectionOut.
func (fs *FS) Direction(pin int) (Direction, error) {
	s, err := readAttr(fs.attrPath(pin, "direction"))
	if err != nil {
		return "", err
	}
	switch Direction(s) {
	case DirectionIn, DirectionOut:
		return Direction(s), nil
	}
	return "", ErrInvalidContent{Path: fs.attrPath(pin, "direction"), Content: s}
}

// Value reads the value attribute of an exported pin.
func (fs *FS) Value(pin int) (int, error) {
	path := fs.attrPath(pin, "value")
	s, err := readAttr(path)
	if err != nil {
		return 0, err
	}
	return parseValue(path, s)
}

// SetValue writes the value attribute of an exported pin.
//
// Any non-zero value is written as 1.
func (fs *FS) SetValue(pin int, v int) error {
	s := "0"
	if v != 0 {
		s = "1"
	}
	return writeAttr(fs.attrPath(pin, "value"), s)
}

// SetEdge writes the edge attribute of an exported pin.
func (fs *FS) SetEdge(pin int, e Edge) error {
	return writeAttr(fs.attrPath(pin, "edge"), string(e))
}

// SetActiveLow writes the active_low attribute of an exported pin.
func (fs *FS) SetActiveLow(pin int, activeLow bool) error {
	s := "0"
	if activeLow {
		s = "1"
	}
	return writeAttr(fs.attrPath(pin, "active_low"), s)
}

// OpenValue opens the value attribute of an exported pin for reading.
//
// This is intended for edge detection, where the file is polled for
// POLLPRI.
func (fs *FS) OpenValue(pin int) (*os.File, error) {
	return os.OpenFile(fs.attrPath(pin, "value"), os.O_RDONLY|unix.O_CLOEXEC, 0)
}

// ChipInfo describes a GPIO chip as seen through sysfs.
type ChipInfo struct {
	// The name of the chip directory, e.g. gpiochip0.
	Name string

	// The label provided by the chip driver.
	Label string

	// The global number of the first pin on the chip.
	Base int

	// The number of pins on the chip.
	Lines int
}

// Chips returns the chips found in the tree, sorted by base.
func (fs *FS) Chips() ([]ChipInfo, error) {
	dirs, err := filepath.Glob(filepath.Join(fs.root, "gpiochip*"))
	if err != nil {
		return nil, err
	}
	cc := []ChipInfo(nil)
	for _, dir := range dirs {
		ci := ChipInfo{Name: filepath.Base(dir)}
		if ci.Base, err = readIntAttr(filepath.Join(dir, "base")); err != nil {
			return nil, err
		}
		if ci.Lines, err = readIntAttr(filepath.Join(dir, "ngpio")); err != nil {
			return nil, err
		}
		if ci.Label, err = readAttr(filepath.Join(dir, "label")); err != nil {
			return nil, err
		}
		cc = append(cc, ci)
	}
	sort.Slice(cc, func(i, j int) bool {
		return cc[i].Base < cc[j].Base
	})
	return cc, nil
}

// FindChip returns the chip with the given label.
func (fs *FS) FindChip(label string) (ChipInfo, error) {
	cc, err := fs.Chips()
	if err != nil {
		return ChipInfo{}, err
	}
	for _, ci := range cc {
		if ci.Label == label {
			return ci, nil
		}
	}
	return ChipInfo{}, ErrChipNotFound
}

// writeAttr writes the string to an existing attribute file.
//
// The file is never created, so writing to an attribute of an unexported
// pin fails with ENOENT.
func writeAttr(path string, s string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	_, err = f.Write([]byte(s))
	cerr := f.Close()
	if err != nil {
		return err
	}
	return cerr
}

func readAttr(path string) (string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(buf)), nil
}

func readIntAttr(path string) (int, error) {
	s, err := readAttr(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, ErrInvalidContent{Path: path, Content: s}
	}
	return v, nil
}

func parseValue(path, s string) (int, error) {
	switch s {
	case "0":
		return 0, nil
	case "1":
		return 1, nil
	}
	return 0, ErrInvalidContent{Path: path, Content: s}
}

// ErrChipNotFound indicates no chip matched the search criteria.
var ErrChipNotFound = errors.New("chip not found")

// ErrInvalidContent indicates an attribute contained an unexpected value.
type ErrInvalidContent struct {
	Path    string
	Content string
}

func (e ErrInvalidContent) Error() string {
	return fmt.Sprintf("unexpected content in %s: '%s'", e.Path, e.Content)
}
