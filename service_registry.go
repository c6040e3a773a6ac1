// service_registry.go: Process-wide single-slot service registry
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"fmt"
	"sort"
	"sync"
)

// ServiceRegistry maps a service id, by convention the qualified name of the
// capability, to one implementation. Registering an id again replaces the
// previous implementation.
type ServiceRegistry struct {
	mu       sync.RWMutex
	services map[string]any
	logger   Logger
}

// NewServiceRegistry creates an empty registry.
func NewServiceRegistry(logger any) *ServiceRegistry {
	return &ServiceRegistry{
		services: make(map[string]any),
		logger:   NewLogger(logger),
	}
}

// RegisterService stores or replaces the implementation for serviceID.
func (r *ServiceRegistry) RegisterService(serviceID string, service any) {
	r.mu.Lock()
	_, replaced := r.services[serviceID]
	r.services[serviceID] = service
	r.mu.Unlock()

	r.logger.Debug("Service registered", "service_id", serviceID, "replaced", replaced)
}

// UnRegisterService removes serviceID. Removing an unknown id is a no-op.
func (r *ServiceRegistry) UnRegisterService(serviceID string) {
	r.mu.Lock()
	delete(r.services, serviceID)
	r.mu.Unlock()
}

// GetService returns the raw implementation registered for serviceID.
func (r *ServiceRegistry) GetService(serviceID string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	svc, ok := r.services[serviceID]
	return svc, ok
}

// ServiceIDs lists registered ids, sorted.
func (r *ServiceRegistry) ServiceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.services))
	for id := range r.services {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clear drops every registration.
func (r *ServiceRegistry) Clear() {
	r.mu.Lock()
	r.services = make(map[string]any)
	r.mu.Unlock()
}

// GetServiceByID returns the service registered under serviceID as T.
// An absent id, or one registered with a nil value, yields the zero value
// and a nil error; a registered value that is not a T fails with
// ErrCodeInvalidServiceObject.
//
//	eps, err := gobundles.GetServiceByID[gobundles.ExtensionPointService](registry, gobundles.ExtensionPointServiceID)
func GetServiceByID[T any](r *ServiceRegistry, serviceID string) (T, error) {
	var zero T
	svc, ok := r.GetService(serviceID)
	if !ok || svc == nil {
		return zero, nil
	}
	typed, ok := svc.(T)
	if !ok {
		return zero, NewInvalidServiceObjectError(serviceID, svc)
	}
	return typed, nil
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%T", v)
}
