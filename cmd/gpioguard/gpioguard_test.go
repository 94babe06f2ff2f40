// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/mockup"
	"golang.org/x/sys/unix"
)

// execute runs the root command with the args, after restoring all flags to
// their defaults, and returns the output streams.
func execute(args ...string) (string, string, error) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	rootCmd.PersistentFlags().VisitAll(reset)
	for _, cmd := range rootCmd.Commands() {
		cmd.Flags().VisitAll(reset)
	}
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func withMockup(t *testing.T) *mockup.Sysfs {
	s := mockup.NewSysfs(0, 32)
	controllerOptions = []gpiosysfs.Option{
		gpiosysfs.WithKernel(s),
		gpiosysfs.WithRegistry(gpiosysfs.NewRegistry()),
	}
	t.Cleanup(func() { controllerOptions = nil })
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.Nil(t, os.WriteFile(path, []byte(content), 0644))
}

func newTree(t *testing.T) string {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "export"), "")
	writeFile(t, filepath.Join(root, "unexport"), "")
	for _, c := range []struct {
		name  string
		label string
		base  string
		ngpio string
	}{
		{"gpiochip512", "pinctrl-bcm2711", "512", "58"},
		{"gpiochip570", "raspberrypi-exp-gpio", "570", "8"},
	} {
		dir := filepath.Join(root, c.name)
		require.Nil(t, os.Mkdir(dir, 0755))
		writeFile(t, filepath.Join(dir, "label"), c.label+"\n")
		writeFile(t, filepath.Join(dir, "base"), c.base+"\n")
		writeFile(t, filepath.Join(dir, "ngpio"), c.ngpio+"\n")
	}
	return root
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute("version")
	assert.Nil(t, err)
	assert.Equal(t, "gpioguard (gpiosysfs) undefined\n", stdout)
}

func TestChips(t *testing.T) {
	root := newTree(t)
	stdout, _, err := execute("chips", "--root", root)
	assert.Nil(t, err)
	assert.Equal(t,
		"gpiochip512 [pinctrl-bcm2711] (58 lines, gpio512-gpio569)\n"+
			"gpiochip570 [raspberrypi-exp-gpio] (8 lines, gpio570-gpio577)\n",
		stdout)
}

func TestRelease(t *testing.T) {
	root := newTree(t)
	require.Nil(t, os.Mkdir(filepath.Join(root, "gpio529"), 0755))
	stdout, _, err := execute("release", "--root", root, "GPIO17", "530")
	assert.Nil(t, err)
	assert.Equal(t, "released gpio529\ngpio530 not exported\n", stdout)
	buf, err := os.ReadFile(filepath.Join(root, "unexport"))
	assert.Nil(t, err)
	assert.Equal(t, "529", string(buf))

	_, _, err = execute("release", "--root", root, "J8p4")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "can't parse pin 'J8p4'")

	// unexport fails
	require.Nil(t, os.Remove(filepath.Join(root, "unexport")))
	_, stderr, err := execute("release", "--root", root, "529")
	assert.NotNil(t, err)
	assert.Contains(t, err.Error(), "failed to release 1 of 1 pins")
	assert.Contains(t, stderr, "gpioguard release: unexport gpio529")
}

func TestRun(t *testing.T) {
	s := withMockup(t)
	_, _, err := execute("run", "--log-level", "error",
		"--duration", "30ms", "--period", "1ms", "--mode", "once", "3", "4")
	assert.Nil(t, err)
	for _, pin := range []int{3, 4} {
		assert.Equal(t, 1, s.Exports(pin))
		assert.Equal(t, 1, s.Unexports(pin))
		assert.False(t, s.Exported(pin))
		assert.NotEmpty(t, s.Values(pin))
	}
}

func TestRunConfigFile(t *testing.T) {
	s := withMockup(t)
	s.SetFault(mockup.OpSetValue, 7, unix.EIO)
	path := filepath.Join(t.TempDir(), "gpioguard.json")
	writeFile(t, path, `{
		"pins": "6, 7",
		"period": "1ms",
		"policy": "abort",
		"log": {"level": "error"}
	}`)
	_, _, err := execute("run", "-c", path)
	assert.ErrorIs(t, err, unix.EIO)
	assert.Contains(t, err.Error(), "worker gpio7")
	assert.False(t, s.Exported(6))
	assert.False(t, s.Exported(7))

	// flags override the file
	_, _, err = execute("run", "-c", path, "--policy", "stop", "--duration", "10ms")
	assert.Nil(t, err)
	assert.False(t, s.Exported(7))
}

func TestRunInvalid(t *testing.T) {
	patterns := []struct {
		name string
		args []string
		msg  string
	}{
		{"no pins", []string{}, "no pins specified"},
		{"mode", []string{"--mode", "sideways", "3"}, "invalid mode: sideways"},
		{"policy", []string{"--policy", "ignore", "3"}, "invalid policy: ignore"},
		{"period", []string{"--period", "0s", "3"}, "invalid period: 0s"},
		{"pin", []string{"three"}, "can't parse pin 'three'"},
		{"config", []string{"-c", "/nonexistent/gpioguard.json", "3"}, "no such file"},
		{"level", []string{"--log-level", "loud", "3"}, "invalid level"},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			s := withMockup(t)
			_, _, err := execute(append([]string{"run"}, p.args...)...)
			require.NotNil(t, err)
			assert.Contains(t, err.Error(), p.msg)
			assert.Empty(t, s.Ops())
		}
		t.Run(p.name, tf)
	}
}

func TestSplitPins(t *testing.T) {
	assert.Nil(t, splitPins(""))
	assert.Equal(t, []string{"GPIO17", "22"}, splitPins(" GPIO17,,22 "))
}

func TestCommands(t *testing.T) {
	names := []string{}
	for _, cmd := range rootCmd.Commands() {
		names = append(names, cmd.Name())
	}
	for _, name := range []string{"chips", "release", "run", "version", "watch"} {
		assert.Contains(t, names, name)
	}
}
