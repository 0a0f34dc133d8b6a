// Package system provides the lifecycle scaffolding every long-running
// pipeline component implements: a minimal Service interface and a Manager
// that starts services in registration order and stops them in reverse.
package system

import (
	"context"

	"github.com/originpress/inkwell/internal/core"
)

// Service represents a lifecycle-managed component. Every background
// component (scheduler, HTTP server) implements this so
// the Manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// DescriptorProvider is implemented by services that want to advertise
// introspection metadata via core.Descriptor.
type DescriptorProvider = core.DescriptorProvider
