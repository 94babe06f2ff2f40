// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package sysfs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/gpiosysfs/sysfs"
)

// newTree creates a fake sysfs tree with the control nodes and one chip.
func newTree(t *testing.T) *sysfs.FS {
	t.Helper()
	root := t.TempDir()
	for _, f := range []string{"export", "unexport"} {
		writeFile(t, filepath.Join(root, f), "")
	}
	chip := filepath.Join(root, "gpiochip0")
	require.Nil(t, os.Mkdir(chip, 0755))
	writeFile(t, filepath.Join(chip, "base"), "0\n")
	writeFile(t, filepath.Join(chip, "ngpio"), "54\n")
	writeFile(t, filepath.Join(chip, "label"), "pinctrl-bcm2835\n")
	return sysfs.New(root)
}

// addPin mimics the kernel side of an export.
func addPin(t *testing.T, fs *sysfs.FS, pin int) {
	t.Helper()
	dir := fs.PinPath(pin)
	require.Nil(t, os.Mkdir(dir, 0755))
	writeFile(t, filepath.Join(dir, "direction"), "in\n")
	writeFile(t, filepath.Join(dir, "value"), "0\n")
	writeFile(t, filepath.Join(dir, "edge"), "none\n")
	writeFile(t, filepath.Join(dir, "active_low"), "0\n")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.Nil(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	buf, err := os.ReadFile(path)
	require.Nil(t, err)
	return string(buf)
}

func TestNew(t *testing.T) {
	fs := sysfs.New("")
	assert.Equal(t, sysfs.DefaultRoot, fs.Root())
	assert.Equal(t, "/sys/class/gpio/gpio22", fs.PinPath(22))

	fs = sysfs.New("/tmp/gpio")
	assert.Equal(t, "/tmp/gpio", fs.Root())
}

func TestExport(t *testing.T) {
	fs := newTree(t)
	err := fs.Export(22)
	assert.Nil(t, err)
	assert.Equal(t, "22", readFile(t, filepath.Join(fs.Root(), "export")))

	err = fs.Export(3)
	assert.Nil(t, err)
	assert.Equal(t, "3", readFile(t, filepath.Join(fs.Root(), "export")))

	// missing control node
	fs = sysfs.New(t.TempDir())
	err = fs.Export(22)
	assert.True(t, os.IsNotExist(err))
}

func TestUnexport(t *testing.T) {
	fs := newTree(t)
	err := fs.Unexport(17)
	assert.Nil(t, err)
	assert.Equal(t, "17", readFile(t, filepath.Join(fs.Root(), "unexport")))
}

func TestIsExported(t *testing.T) {
	fs := newTree(t)
	assert.False(t, fs.IsExported(22))
	addPin(t, fs, 22)
	assert.True(t, fs.IsExported(22))
}

func TestWaitExported(t *testing.T) {
	fs := newTree(t)
	start := time.Now()
	err := fs.WaitExported(22, 20*time.Millisecond)
	assert.NotNil(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	addPin(t, fs, 22)
	err = fs.WaitExported(22, 0)
	assert.Nil(t, err)
}

func TestSetDirection(t *testing.T) {
	fs := newTree(t)
	err := fs.SetDirection(22, sysfs.DirectionHigh)
	assert.True(t, os.IsNotExist(err))

	addPin(t, fs, 22)
	patterns := []sysfs.Direction{
		sysfs.DirectionLow,
		sysfs.DirectionHigh,
		sysfs.DirectionOut,
		sysfs.DirectionIn,
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			err := fs.SetDirection(22, p)
			assert.Nil(t, err)
			assert.Equal(t, string(p), readFile(t, filepath.Join(fs.PinPath(22), "direction")))
		}
		t.Run(string(p), tf)
	}
}

func TestDirection(t *testing.T) {
	fs := newTree(t)
	_, err := fs.Direction(22)
	assert.True(t, os.IsNotExist(err))

	addPin(t, fs, 22)
	d, err := fs.Direction(22)
	assert.Nil(t, err)
	assert.Equal(t, sysfs.DirectionIn, d)

	path := filepath.Join(fs.PinPath(22), "direction")
	writeFile(t, path, "out\n")
	d, err = fs.Direction(22)
	assert.Nil(t, err)
	assert.Equal(t, sysfs.DirectionOut, d)

	writeFile(t, path, "sideways\n")
	_, err = fs.Direction(22)
	assert.Equal(t, sysfs.ErrInvalidContent{Path: path, Content: "sideways"}, err)
}

func TestValue(t *testing.T) {
	fs := newTree(t)
	_, err := fs.Value(22)
	assert.True(t, os.IsNotExist(err))

	addPin(t, fs, 22)
	path := filepath.Join(fs.PinPath(22), "value")
	patterns := []struct {
		name    string
		content string
		val     int
		err     error
	}{
		{"zero", "0", 0, nil},
		{"zero nl", "0\n", 0, nil},
		{"one", "1\n", 1, nil},
		{"garbage", "2\n", 0, sysfs.ErrInvalidContent{Path: path, Content: "2"}},
		{"empty", "", 0, sysfs.ErrInvalidContent{Path: path, Content: ""}},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			writeFile(t, path, p.content)
			v, err := fs.Value(22)
			assert.Equal(t, p.err, err)
			assert.Equal(t, p.val, v)
		}
		t.Run(p.name, tf)
	}
}

func TestSetValue(t *testing.T) {
	fs := newTree(t)
	err := fs.SetValue(22, 1)
	assert.True(t, os.IsNotExist(err))

	addPin(t, fs, 22)
	path := filepath.Join(fs.PinPath(22), "value")
	err = fs.SetValue(22, 1)
	assert.Nil(t, err)
	assert.Equal(t, "1", readFile(t, path))

	err = fs.SetValue(22, 0)
	assert.Nil(t, err)
	assert.Equal(t, "0", readFile(t, path))

	err = fs.SetValue(22, 5)
	assert.Nil(t, err)
	assert.Equal(t, "1", readFile(t, path))
}

func TestSetEdge(t *testing.T) {
	fs := newTree(t)
	addPin(t, fs, 4)
	err := fs.SetEdge(4, sysfs.EdgeBoth)
	assert.Nil(t, err)
	assert.Equal(t, "both", readFile(t, filepath.Join(fs.PinPath(4), "edge")))
}

func TestSetActiveLow(t *testing.T) {
	fs := newTree(t)
	addPin(t, fs, 4)
	path := filepath.Join(fs.PinPath(4), "active_low")
	err := fs.SetActiveLow(4, true)
	assert.Nil(t, err)
	assert.Equal(t, "1", readFile(t, path))
	err = fs.SetActiveLow(4, false)
	assert.Nil(t, err)
	assert.Equal(t, "0", readFile(t, path))
}

func TestOpenValue(t *testing.T) {
	fs := newTree(t)
	_, err := fs.OpenValue(4)
	assert.True(t, os.IsNotExist(err))

	addPin(t, fs, 4)
	f, err := fs.OpenValue(4)
	require.Nil(t, err)
	f.Close()
}

func TestChips(t *testing.T) {
	fs := newTree(t)
	chip := filepath.Join(fs.Root(), "gpiochip504")
	require.Nil(t, os.Mkdir(chip, 0755))
	writeFile(t, filepath.Join(chip, "base"), "504\n")
	writeFile(t, filepath.Join(chip, "ngpio"), "8\n")
	writeFile(t, filepath.Join(chip, "label"), "raspberrypi-exp-gpio\n")

	cc, err := fs.Chips()
	assert.Nil(t, err)
	xcc := []sysfs.ChipInfo{
		{Name: "gpiochip0", Label: "pinctrl-bcm2835", Base: 0, Lines: 54},
		{Name: "gpiochip504", Label: "raspberrypi-exp-gpio", Base: 504, Lines: 8},
	}
	assert.Equal(t, xcc, cc)

	ci, err := fs.FindChip("raspberrypi-exp-gpio")
	assert.Nil(t, err)
	assert.Equal(t, xcc[1], ci)

	_, err = fs.FindChip("nonexistent")
	assert.Equal(t, sysfs.ErrChipNotFound, err)

	// corrupt
	writeFile(t, filepath.Join(chip, "ngpio"), "eight\n")
	_, err = fs.Chips()
	assert.Equal(t, sysfs.ErrInvalidContent{Path: filepath.Join(chip, "ngpio"), Content: "eight"}, err)
}
