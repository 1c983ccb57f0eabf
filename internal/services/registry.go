// Package services wires the calculator's long-lived components together:
// the evaluation service, the solver service, and the configuration service.
// Services register in a global registry at startup and locate each other by
// name, so the shell and the CLI commands share one set of instances.
package services

import (
	"fmt"
	"sync"

	"unitcalc/internal/logger"
	"unitcalc/pkg/calctypes"
)

// Registry manages service registration and lifecycle.
type Registry struct {
	mu       sync.RWMutex
	services map[string]calctypes.Service
}

// NewRegistry creates an empty service registry.
func NewRegistry() *Registry {
	return &Registry{
		services: make(map[string]calctypes.Service),
	}
}

// RegisterService adds a service, failing if the name is taken.
func (r *Registry) RegisterService(service calctypes.Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := service.Name()
	if _, exists := r.services[name]; exists {
		return fmt.Errorf("service %s already registered", name)
	}
	r.services[name] = service
	return nil
}

// GetService retrieves a service by name.
func (r *Registry) GetService(name string) (calctypes.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	service, exists := r.services[name]
	if !exists {
		return nil, fmt.Errorf("service %s not found", name)
	}
	return service, nil
}

// InitializeAll initializes services in registration-independent dependency
// order: configuration first, then the calculator core, then everything else.
func (r *Registry) InitializeAll() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range []string{"config", "calc"} {
		if service, ok := r.services[name]; ok {
			if err := service.Initialize(); err != nil {
				return fmt.Errorf("failed to initialize service %s: %w", name, err)
			}
			logger.ServiceOperation(name, "initialize")
		}
	}
	for name, service := range r.services {
		if name == "config" || name == "calc" {
			continue
		}
		if err := service.Initialize(); err != nil {
			return fmt.Errorf("failed to initialize service %s: %w", name, err)
		}
		logger.ServiceOperation(name, "initialize")
	}
	return nil
}

// GlobalRegistry is the process-wide service registry.
var GlobalRegistry = NewRegistry()

var globalRegistryMu sync.RWMutex

// GetGlobalRegistry returns the global service registry.
func GetGlobalRegistry() *Registry {
	globalRegistryMu.RLock()
	defer globalRegistryMu.RUnlock()
	return GlobalRegistry
}

// SetGlobalRegistry replaces the global registry. Tests use this to install a
// fresh registry per test.
func SetGlobalRegistry(registry *Registry) {
	globalRegistryMu.Lock()
	defer globalRegistryMu.Unlock()
	GlobalRegistry = registry
}
