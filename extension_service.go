// extension_service.go: Registry of all declared extension points
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package gobundles

import (
	"sort"
	"sync"
)

// ExtensionPointServiceID is the service registry key of the extension
// point service.
const ExtensionPointServiceID = "gobundles.ExtensionPointService"

// ExtensionPointService is the read side of the extension registry handed to
// bundles.
type ExtensionPointService interface {
	GetExtensionPoint(id string) (*ExtensionPoint, bool)
	GetExtensionPoints() []*ExtensionPoint
	GetExtensionPointsFrom(symbolicName string) []*ExtensionPoint
	GetConfigurationElementsFor(pointID string) []*ConfigurationElement
	GetExtension(pointID, extensionID string) (*Extension, bool)
	HasContributionFrom(symbolicName string) bool
}

// ExtensionRegistry owns every extension point. Extensions contributed to a
// point nobody has declared yet are parked as orphans and attached when the
// point shows up.
type ExtensionRegistry struct {
	mu       sync.RWMutex
	points   map[string]*ExtensionPoint
	orphans  []*Extension
	activate func(symbolicName string) error
}

// NewExtensionRegistry creates an empty registry.
func NewExtensionRegistry() *ExtensionRegistry {
	return &ExtensionRegistry{points: make(map[string]*ExtensionPoint)}
}

// SetActivationHook installs the callback used to start a lazy contributor
// before one of its executable extensions is created.
func (r *ExtensionRegistry) SetActivationHook(fn func(symbolicName string) error) {
	r.mu.Lock()
	r.activate = fn
	r.mu.Unlock()
}

func (r *ExtensionRegistry) activateContributor(symbolicName string) error {
	r.mu.RLock()
	fn := r.activate
	r.mu.RUnlock()
	if fn == nil {
		return nil
	}
	return fn(symbolicName)
}

// AddExtensionPoint registers a point and attaches any waiting orphans.
// Orphans that collide on id are returned as errors, the rest still attach.
func (r *ExtensionRegistry) AddExtensionPoint(point *ExtensionPoint) []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.points[point.uniqueID]; ok {
		return []error{NewPlatformError("extension point "+point.uniqueID+" already declared by "+existing.contributor, nil).
			WithContext("contributor", point.contributor)}
	}
	point.registry = r
	r.points[point.uniqueID] = point

	var errs []error
	remaining := r.orphans[:0]
	for _, ext := range r.orphans {
		if ext.pointID != point.uniqueID {
			remaining = append(remaining, ext)
			continue
		}
		if err := point.AddExtension(ext); err != nil {
			errs = append(errs, err)
		}
	}
	r.orphans = remaining
	return errs
}

// AddExtension adds an extension to its target point, or parks it as an
// orphan when the point is unknown.
func (r *ExtensionRegistry) AddExtension(ext *Extension) error {
	r.mu.Lock()
	point, ok := r.points[ext.pointID]
	if !ok {
		r.orphans = append(r.orphans, ext)
		r.mu.Unlock()
		return nil
	}
	r.mu.Unlock()
	return point.AddExtension(ext)
}

// Orphans returns extensions whose extension point has not been declared.
func (r *ExtensionRegistry) Orphans() []*Extension {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Extension, len(r.orphans))
	copy(out, r.orphans)
	return out
}

// RemoveContributionsFrom drops the points declared by a bundle and the
// extensions it contributed elsewhere.
func (r *ExtensionRegistry) RemoveContributionsFrom(symbolicName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, point := range r.points {
		if point.contributor == symbolicName {
			delete(r.points, id)
			continue
		}
		point.removeContributor(symbolicName)
	}
	kept := r.orphans[:0]
	for _, ext := range r.orphans {
		if ext.contributor != symbolicName {
			kept = append(kept, ext)
		}
	}
	r.orphans = kept
}

// GetExtensionPoint implements ExtensionPointService.
func (r *ExtensionRegistry) GetExtensionPoint(id string) (*ExtensionPoint, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.points[id]
	return p, ok
}

// GetExtensionPoints implements ExtensionPointService. Points are sorted by id.
func (r *ExtensionRegistry) GetExtensionPoints() []*ExtensionPoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ExtensionPoint, 0, len(r.points))
	for _, p := range r.points {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].uniqueID < out[j].uniqueID })
	return out
}

// GetExtensionPointsFrom implements ExtensionPointService.
func (r *ExtensionRegistry) GetExtensionPointsFrom(symbolicName string) []*ExtensionPoint {
	var out []*ExtensionPoint
	for _, p := range r.GetExtensionPoints() {
		if p.contributor == symbolicName {
			out = append(out, p)
		}
	}
	return out
}

// GetConfigurationElementsFor implements ExtensionPointService.
func (r *ExtensionRegistry) GetConfigurationElementsFor(pointID string) []*ConfigurationElement {
	p, ok := r.GetExtensionPoint(pointID)
	if !ok {
		return nil
	}
	return p.GetConfigurationElements()
}

// GetExtension implements ExtensionPointService.
func (r *ExtensionRegistry) GetExtension(pointID, extensionID string) (*Extension, bool) {
	p, ok := r.GetExtensionPoint(pointID)
	if !ok {
		return nil, false
	}
	return p.GetExtension(extensionID)
}

// HasContributionFrom implements ExtensionPointService. It is true when the
// bundle declared a point or contributed an extension.
func (r *ExtensionRegistry) HasContributionFrom(symbolicName string) bool {
	for _, p := range r.GetExtensionPoints() {
		if p.contributor == symbolicName || p.HasContributionFrom(symbolicName) {
			return true
		}
	}
	return false
}
