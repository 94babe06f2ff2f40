// SPDX-FileCopyrightText: 2019 Kent Gibson <warthog618@gmail.com>
//
// SPDX-License-Identifier: MIT

package gpiosysfs

import (
	"sort"
	"sync"
)

// Registry records which pins are exported, and by whom.
//
// A pin may be claimed by at most one handle at a time.  The registry is
// consulted at export, so two handles in the same process can never both
// believe they own the same physical pin.
type Registry struct {
	// mutex covers the claims.
	mu sync.Mutex

	// claims keyed by pin number.
	claims map[int]*claim
}

type claim struct {
	pin int

	owner string

	// the controller the pin was exported through, so it can be unexported
	// via the same kernel interface.
	c *Controller
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process wide registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{claims: map[int]*claim{}}
}

func (r *Registry) claim(pin int, owner string, c *Controller) (*claim, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cl, ok := r.claims[pin]; ok {
		return nil, ErrPinBusy{Pin: pin, Owner: cl.owner}
	}
	cl := &claim{pin: pin, owner: owner, c: c}
	r.claims[pin] = cl
	return cl, nil
}

// release removes the claim, if it is still current.
func (r *Registry) release(cl *claim) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claims[cl.pin] != cl {
		return false
	}
	delete(r.claims, cl.pin)
	return true
}

func (r *Registry) holds(cl *claim) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.claims[cl.pin] == cl
}

// drain removes and returns all claims made through the controller.
func (r *Registry) drain(c *Controller) []*claim {
	r.mu.Lock()
	defer r.mu.Unlock()
	cc := []*claim(nil)
	for pin, cl := range r.claims {
		if cl.c == c {
			cc = append(cc, cl)
			delete(r.claims, pin)
		}
	}
	sort.Slice(cc, func(i, j int) bool {
		return cc[i].pin < cc[j].pin
	})
	return cc
}

// Owner returns the consumer label of the handle that has the pin exported.
func (r *Registry) Owner(pin int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cl, ok := r.claims[pin]
	if !ok {
		return "", false
	}
	return cl.owner, true
}

// Claimed returns the pins currently claimed, in ascending order.
func (r *Registry) Claimed() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	pp := make([]int, 0, len(r.claims))
	for pin := range r.claims {
		pp = append(pp, pin)
	}
	sort.Ints(pp)
	return pp
}
