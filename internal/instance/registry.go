// Package instance tracks the keyboards a host has open and keeps a
// second process from opening the same journal.
package instance

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"stenotouch/internal/metrics"
)

// Instance is an open keyboard.
type Instance interface {
	Name() string
	Close() error
}

// Registry holds the open instances. The most recently registered one is
// active. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	instances []Instance
	metrics   *metrics.StenoMetrics
}

// NewRegistry creates an empty registry. m may be nil.
func NewRegistry(m *metrics.StenoMetrics) *Registry {
	return &Registry{metrics: m}
}

// Register adds inst and makes it active. Registering an instance twice
// only makes it active again.
func (r *Registry) Register(inst Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := slices.Index(r.instances, inst); i >= 0 {
		r.instances = slices.Delete(r.instances, i, i+1)
		r.instances = append(r.instances, inst)
		return
	}
	r.instances = append(r.instances, inst)
	if r.metrics != nil {
		r.metrics.KeyboardOpened()
	}
}

// Unregister removes inst. The previously registered instance, if any,
// becomes active. It reports whether inst was registered.
func (r *Registry) Unregister(inst Instance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := slices.Index(r.instances, inst)
	if i < 0 {
		return false
	}
	r.instances = slices.Delete(r.instances, i, i+1)
	if r.metrics != nil {
		r.metrics.KeyboardClosed()
	}
	return true
}

// Active returns the active instance, or nil when none is open.
func (r *Registry) Active() Instance {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.instances) == 0 {
		return nil
	}
	return r.instances[len(r.instances)-1]
}

// Lookup returns the open instance called name.
func (r *Registry) Lookup(name string) (Instance, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.instances) - 1; i >= 0; i-- {
		if r.instances[i].Name() == name {
			return r.instances[i], true
		}
	}
	return nil, false
}

// Len returns the number of open instances.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.instances)
}

// CloseAll closes and unregisters every instance, newest first.
func (r *Registry) CloseAll() error {
	r.mu.Lock()
	open := r.instances
	r.instances = nil
	r.mu.Unlock()

	var errs []error
	for i := len(open) - 1; i >= 0; i-- {
		if err := open[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", open[i].Name(), err))
		}
		if r.metrics != nil {
			r.metrics.KeyboardClosed()
		}
	}
	return errors.Join(errs...)
}
