package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/originpress/inkwell/internal/core"
)

// Manager owns the lifecycle of a set of registered services. Start brings
// services up in registration order; if any fails, the services already
// started are stopped in reverse order before the error is returned. Stop
// always runs in reverse registration order and collects the first error
// encountered while still attempting to stop every service.
type Manager struct {
	mu        sync.Mutex
	services  []Service
	started   bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewManager returns an empty, unstarted Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds svc to the set of managed services. It is an error to
// register a nil service or to register after Start has run.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if svc == nil {
		return fmt.Errorf("system: cannot register a nil service")
	}
	if m.started {
		return fmt.Errorf("system: cannot register %s after the manager has started", svc.Name())
	}
	m.services = append(m.services, svc)
	return nil
}

// Start starts every registered service in registration order. It is a
// no-op on subsequent calls.
func (m *Manager) Start(ctx context.Context) error {
	var err error
	m.startOnce.Do(func() {
		m.mu.Lock()
		services := append([]Service(nil), m.services...)
		m.started = true
		m.mu.Unlock()

		started := make([]Service, 0, len(services))
		for _, svc := range services {
			if startErr := svc.Start(ctx); startErr != nil {
				err = fmt.Errorf("system: starting %s: %w", svc.Name(), startErr)
				for i := len(started) - 1; i >= 0; i-- {
					_ = started[i].Stop(ctx)
				}
				return
			}
			started = append(started, svc)
		}
	})
	return err
}

// Stop stops every registered service in reverse registration order. It is
// a no-op on subsequent calls. The first error encountered is returned, but
// every service is still given a chance to stop.
func (m *Manager) Stop(ctx context.Context) error {
	var err error
	m.stopOnce.Do(func() {
		m.mu.Lock()
		services := append([]Service(nil), m.services...)
		m.mu.Unlock()

		for i := len(services) - 1; i >= 0; i-- {
			if stopErr := services[i].Stop(ctx); stopErr != nil && err == nil {
				err = fmt.Errorf("system: stopping %s: %w", services[i].Name(), stopErr)
			}
		}
	})
	return err
}

// DescriptorProviders returns the subset of registered services that
// advertise a core.Descriptor.
func (m *Manager) DescriptorProviders() []core.DescriptorProvider {
	m.mu.Lock()
	defer m.mu.Unlock()

	var providers []core.DescriptorProvider
	for _, svc := range m.services {
		if p, ok := svc.(core.DescriptorProvider); ok {
			providers = append(providers, p)
		}
	}
	return providers
}

// Descriptors returns the sorted descriptors for every registered service
// that implements DescriptorProvider.
func (m *Manager) Descriptors() []core.Descriptor {
	return core.CollectDescriptors(m.DescriptorProviders())
}
