// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Standard backend names.
const (
	NameANGLE    = "angle"
	NameEGL      = "egl"
	NameNative   = "native"
	NameOpenGL   = "opengl"
	NameSoftware = "software"
)

// Standard priorities, highest tried first.
const (
	PriorityPlatform    = 100 // platform-accelerated (ANGLE on Windows)
	PriorityEGL         = 75  // generic EGL: Wayland, Android
	PriorityNativeLayer = 50  // OS-native layers (CoreAnimation)
	PriorityOpenGL      = 25  // generic OpenGL
	PrioritySoftware    = 0   // CPU fallback, always available
)

// Factory constructs a compositor for a widget. pool is the render
// thread's shared surface pool; it may be nil.
//
// A factory that cannot serve the platform/driver combination returns an
// error (or a nil Compositor); Create then tries the next candidate.
type Factory func(w Widget, pool *SurfacePool) (Compositor, error)

// RegistryEntry represents a registered compositor backend.
type RegistryEntry struct {
	// Name is the unique identifier for this backend.
	Name string

	// Priority determines selection order (higher = preferred).
	Priority int

	// Factory creates compositor instances.
	Factory Factory

	// Available reports if the backend can run on this system at all.
	Available func() bool
}

// Registry manages registered compositor backends.
//
// Example registration:
//
//	func init() {
//	    compositor.Register(compositor.NameEGL, compositor.PriorityEGL, newEGL, eglAvailable)
//	}
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*RegistryEntry
}

// globalRegistry is the default registry.
var globalRegistry = NewRegistry()

// NewRegistry creates a new registry containing only the software backend.
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[string]*RegistryEntry)}
	r.Register(NameSoftware, PrioritySoftware, func(w Widget, pool *SurfacePool) (Compositor, error) {
		return NewSoftware(w, pool), nil
	}, nil)
	return r
}

// Default returns the process-wide registry.
func Default() *Registry { return globalRegistry }

// Register adds a backend to the global registry.
func Register(name string, priority int, factory Factory, available func() bool) {
	globalRegistry.Register(name, priority, factory, available)
}

// Unregister removes a backend from the global registry.
func Unregister(name string) {
	globalRegistry.Unregister(name)
}

// List returns all registered backend names sorted by priority.
func List() []string {
	return globalRegistry.List()
}

// Available returns names of all available backends sorted by priority.
func Available() []string {
	return globalRegistry.Available()
}

// Create constructs a compositor from the global registry.
func Create(w Widget, pool *SurfacePool) (Compositor, error) {
	return globalRegistry.Create(w, pool)
}

// Register adds a backend to this registry.
//
// If available is nil, the backend is assumed always available.
// Registering a name that already exists replaces the previous entry.
func (r *Registry) Register(name string, priority int, factory Factory, available func() bool) {
	if factory == nil {
		panic("compositor: Register factory is nil")
	}
	if available == nil {
		available = func() bool { return true }
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[name] = &RegistryEntry{
		Name:      name,
		Priority:  priority,
		Factory:   factory,
		Available: available,
	}
}

// Unregister removes a backend from this registry.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, name)
}

// List returns all registered backend names sorted by priority.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(false)
}

// Available returns names of all available backends sorted by priority.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sortedNames(true)
}

// Get returns a copy of a registered entry.
func (r *Registry) Get(name string) (*RegistryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	if !ok {
		return nil, false
	}
	entryCopy := *entry
	return &entryCopy, true
}

// Create tries every available backend in priority order and returns the
// first one that constructs successfully, wrapped by Checked.
//
// Construction failures are not fatal; they are logged and the next
// candidate is tried. Create fails only when every candidate failed, in
// which case the error joins every candidate's failure.
func (r *Registry) Create(w Widget, pool *SurfacePool) (Compositor, error) {
	r.mu.RLock()
	names := r.sortedNames(true)
	r.mu.RUnlock()

	if len(names) == 0 {
		return nil, ErrNoBackendAvailable
	}

	var errs []error
	for _, name := range names {
		c, err := r.CreateByName(name, w, pool)
		if err == nil {
			slogger().Info("compositor selected", "backend", name)
			return c, nil
		}
		slogger().Warn("compositor candidate failed", "backend", name, "err", err)
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%w: %w", ErrNoBackendAvailable, errors.Join(errs...))
}

// CreateByName constructs a specific backend, wrapped by Checked.
func (r *Registry) CreateByName(name string, w Widget, pool *SurfacePool) (Compositor, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return nil, &BackendNotFoundError{Name: name}
	}
	if !entry.Available() {
		return nil, &BackendUnavailableError{Name: name}
	}

	c, err := entry.Factory(w, pool)
	if err != nil {
		return nil, fmt.Errorf("compositor: %s: %w", name, err)
	}
	if c == nil {
		return nil, &BackendUnavailableError{Name: name}
	}
	return Checked(c), nil
}

// sortedNames returns backend names sorted by priority (highest first).
// Equal priorities are ordered by name so selection is deterministic.
// Must be called with lock held.
func (r *Registry) sortedNames(onlyAvailable bool) []string {
	if len(r.entries) == 0 {
		return nil
	}

	entries := make([]*RegistryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if onlyAvailable && !e.Available() {
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority > entries[j].Priority
		}
		return entries[i].Name < entries[j].Name
	})

	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name
	}
	return names
}

// Errors.
var (
	// ErrNoBackendAvailable is returned when no compositor backend could be
	// constructed.
	ErrNoBackendAvailable = errors.New("compositor: no backend available")
)

// BackendNotFoundError indicates a named backend is not registered.
type BackendNotFoundError struct {
	Name string
}

func (e *BackendNotFoundError) Error() string {
	return "compositor: backend not found: " + e.Name
}

// BackendUnavailableError indicates a backend exists but cannot run here.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return "compositor: backend unavailable: " + e.Name
}
