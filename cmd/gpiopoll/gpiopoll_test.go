// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/mockup"
)

func runMockup(ctx context.Context, s *mockup.Sysfs, args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	rc := run(ctx, args, &stdout, &stderr,
		gpiosysfs.WithKernel(s),
		gpiosysfs.WithRegistry(gpiosysfs.NewRegistry()))
	return rc, stdout.String(), stderr.String()
}

func TestRunArgs(t *testing.T) {
	patterns := []struct {
		name string
		args []string
		msg  string
	}{
		{"none", []string{}, "exactly one pin must be specified"},
		{"two", []string{"5", "6"}, "exactly one pin must be specified"},
		{"pin", []string{"five"}, "can't parse pin 'five'"},
		{"edge", []string{"-e", "sideways", "5"}, "invalid edge: sideways"},
	}
	for _, p := range patterns {
		tf := func(t *testing.T) {
			s := mockup.NewSysfs(0, 32)
			rc, _, stderr := runMockup(context.Background(), s, p.args...)
			assert.Equal(t, 1, rc)
			assert.Contains(t, stderr, "gpiopoll: "+p.msg)
			assert.Empty(t, s.Ops())
		}
		t.Run(p.name, tf)
	}
}

func TestRunPoll(t *testing.T) {
	s := mockup.NewSysfs(0, 32)
	go func() {
		// wait for the first sample before raising the pin
		for {
			for _, op := range s.PinOps(5) {
				if op.Kind == mockup.OpValue {
					s.SetPull(5, 1)
					return
				}
			}
			time.Sleep(time.Millisecond)
		}
	}()
	rc, stdout, _ := runMockup(context.Background(), s, "-i", "1ms", "-n", "2", "5")
	assert.Equal(t, 0, rc)
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "pin state")
	assert.Contains(t, lines[0], "state=Low")
	assert.Contains(t, lines[1], "pin state")
	assert.Contains(t, lines[1], "state=High")
	assert.False(t, s.Exported(5))
	assert.Equal(t, 1, s.Unexports(5))
}

func TestRunCancel(t *testing.T) {
	s := mockup.NewSysfs(0, 32)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	rc, stdout, _ := runMockup(ctx, s, "5")
	assert.Equal(t, 0, rc)
	assert.Contains(t, stdout, "state=Low")
	assert.NotContains(t, stdout, "state=High")
	assert.False(t, s.Exported(5))
}

func TestRunEdgeNotSupported(t *testing.T) {
	s := mockup.NewSysfs(0, 32)
	rc, _, stderr := runMockup(context.Background(), s, "-e", "both", "5")
	assert.Equal(t, 1, rc)
	assert.Contains(t, stderr, gpiosysfs.ErrNotSupported.Error())
	assert.False(t, s.Exported(5))
}

func TestRunVersion(t *testing.T) {
	s := mockup.NewSysfs(0, 32)
	rc, stdout, _ := runMockup(context.Background(), s, "-v")
	assert.Equal(t, 0, rc)
	assert.Equal(t, "gpiopoll (gpiosysfs) undefined\n", stdout)
}
