// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

//go:build linux
// +build linux

package gpiosysfs_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warthog618/gpiosysfs"
	"github.com/warthog618/gpiosysfs/mockup"
)

func TestRegistryOwner(t *testing.T) {
	c, _ := newController(gpiosysfs.WithConsumer("ctrl"))
	r := c.Registry()
	_, ok := r.Owner(3)
	assert.False(t, ok)

	p := c.Pin(3, gpiosysfs.WithConsumer("pin"))
	require.Nil(t, p.Export())
	owner, ok := r.Owner(3)
	assert.True(t, ok)
	assert.Equal(t, "pin", owner)

	p2 := c.Pin(4)
	require.Nil(t, p2.Export())
	owner, ok = r.Owner(4)
	assert.True(t, ok)
	assert.Equal(t, "ctrl", owner)
	assert.Equal(t, []int{3, 4}, r.Claimed())

	require.Nil(t, p.Unexport())
	_, ok = r.Owner(3)
	assert.False(t, ok)
	assert.Equal(t, []int{4}, r.Claimed())
}

func TestRegistryShared(t *testing.T) {
	// controllers over separate kernels still collide in a shared registry
	r := gpiosysfs.NewRegistry()
	c1 := gpiosysfs.New(gpiosysfs.WithKernel(mockup.NewSysfs(0, 8)), gpiosysfs.WithRegistry(r))
	c2 := gpiosysfs.New(gpiosysfs.WithKernel(mockup.NewSysfs(0, 8)), gpiosysfs.WithRegistry(r))
	require.Nil(t, c1.Pin(5).Export())
	err := c2.Pin(5).Export()
	var busy gpiosysfs.ErrPinBusy
	assert.True(t, errors.As(err, &busy))

	// but not in separate registries
	c3 := gpiosysfs.New(gpiosysfs.WithKernel(mockup.NewSysfs(0, 8)), gpiosysfs.WithRegistry(gpiosysfs.NewRegistry()))
	assert.Nil(t, c3.Pin(5).Export())
}

func TestRegistryContention(t *testing.T) {
	c, s := newController()
	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := c.Pin(7)
			err := p.Export()
			if err == nil {
				atomic.AddInt32(&wins, 1)
				return
			}
			var busy gpiosysfs.ErrPinBusy
			assert.True(t, errors.As(err, &busy))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
	assert.Equal(t, 1, s.Exports(7))
	// losers never reached the kernel
	assert.Len(t, s.PinOps(7), 2)
}
