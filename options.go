// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package gpiosysfs

import "time"

// Option defines the interface required to provide a Controller option.
type Option interface {
	applyControllerOption(*controllerOptions)
}

// PinOption defines the interface required to provide a Pin option.
type PinOption interface {
	applyPinOption(*pinOptions)
}

type controllerOptions struct {
	k        Kernel
	root     string
	reg      *Registry
	consumer string
	settle   time.Duration
}

type pinOptions struct {
	consumer string
}

// ConsumerOption defines the consumer label for a pin.
type ConsumerOption string

// WithConsumer provides the consumer label for the pin.
//
// The label identifies the owner of the pin in the registry, and so appears
// in ErrPinBusy errors.
// When applied to a Controller it provides the default consumer label for
// all pins provided by the Controller.
func WithConsumer(consumer string) ConsumerOption {
	return ConsumerOption(consumer)
}

func (o ConsumerOption) applyControllerOption(c *controllerOptions) {
	c.consumer = string(o)
}

func (o ConsumerOption) applyPinOption(p *pinOptions) {
	p.consumer = string(o)
}

// KernelOption specifies the kernel interface used to control pins.
type KernelOption struct {
	k Kernel
}

// WithKernel specifies the kernel interface used to control pins.
//
// This overrides any WithRoot option.
func WithKernel(k Kernel) KernelOption {
	return KernelOption{k}
}

func (o KernelOption) applyControllerOption(c *controllerOptions) {
	c.k = o.k
}

// RootOption specifies the root of the sysfs tree.
type RootOption string

// WithRoot specifies the root of the sysfs tree, if not the default
// /sys/class/gpio.
func WithRoot(root string) RootOption {
	return RootOption(root)
}

func (o RootOption) applyControllerOption(c *controllerOptions) {
	c.root = string(o)
}

// RegistryOption specifies the registry pins are claimed in.
type RegistryOption struct {
	r *Registry
}

// WithRegistry specifies the registry pins are claimed in, if not the
// DefaultRegistry.
//
// Controllers sharing a registry can never export the same pin number
// concurrently.
func WithRegistry(r *Registry) RegistryOption {
	return RegistryOption{r}
}

func (o RegistryOption) applyControllerOption(c *controllerOptions) {
	c.reg = o.r
}

// SettleOption specifies how long to wait for pin attributes to become
// accessible after export.
type SettleOption time.Duration

// WithSettleTimeout specifies how long to wait for pin attributes to become
// accessible after export.
//
// The default is 100ms.
func WithSettleTimeout(d time.Duration) SettleOption {
	return SettleOption(d)
}

func (o SettleOption) applyControllerOption(c *controllerOptions) {
	c.settle = time.Duration(o)
}
