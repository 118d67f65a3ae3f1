package texture

import (
	"fmt"
	"sync"
)

// Registry maps external image ids to their hosts.
//
// The primary map, the prepare queue and the deferred-destruction queue are
// guarded by one mutex whose scope is limited to map and queue mutation.
// Host hooks (PrepareForUse, NotifyNotUsed, ClearCachedResources, Destroy)
// always run after the mutex is released.
//
// Methods marked "render thread only" must be called from the goroutine that
// drives composition; the Registry does not check this itself.
type Registry struct {
	mu       sync.Mutex
	hosts    map[uint64]*Handle
	prepare  []*Handle
	deferred []*Handle
	shutdown bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{hosts: make(map[uint64]*Handle)}
}

// Register inserts host under id. Registering an id that is already present
// is a programming error and panics. After Shutdown the host is destroyed
// instead of being registered.
func (r *Registry) Register(id uint64, host Host) {
	if host == nil {
		panic(fmt.Sprintf("texture: Register(%d) with nil host", id))
	}
	r.mu.Lock()
	if r.shutdown {
		r.mu.Unlock()
		host.Destroy()
		return
	}
	if _, dup := r.hosts[id]; dup {
		r.mu.Unlock()
		panic(fmt.Sprintf("texture: image %d registered twice", id))
	}
	r.hosts[id] = newHandle(id, host)
	r.mu.Unlock()
}

// Unregister removes id from the primary map and moves the map's reference
// to the deferred-destruction queue, so the final release happens when the
// render thread calls DrainDeferred. It reports whether anything was queued.
// Unknown ids are ignored.
func (r *Registry) Unregister(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return false
	}
	h, ok := r.hosts[id]
	if !ok {
		return false
	}
	delete(r.hosts, id)
	r.deferred = append(r.deferred, h)
	return true
}

// PrepareForUse stages id for its preparation hook. It reports whether the
// id was staged; unknown ids are ignored.
func (r *Registry) PrepareForUse(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.shutdown {
		return false
	}
	h, ok := r.hosts[id]
	if !ok {
		return false
	}
	r.prepare = append(r.prepare, h.acquire())
	return true
}

// RunPrepared calls the preparation hook of every staged host exactly once
// and clears the prepare queue. Render thread only.
func (r *Registry) RunPrepared() int {
	r.mu.Lock()
	staged := r.prepare
	r.prepare = nil
	r.mu.Unlock()

	for _, h := range staged {
		if !h.Destroyed() {
			h.host.PrepareForUse()
		}
		h.Release()
	}
	return len(staged)
}

// NotifyNotUsed forwards the not-used signal to the host of id.
// Render thread only.
func (r *Registry) NotifyNotUsed(id uint64) bool {
	h := r.Lookup(id)
	if h == nil {
		return false
	}
	h.host.NotifyNotUsed()
	h.Release()
	return true
}

// Lookup returns a new reference to the host of id, or nil if id is not
// registered. The caller must Release it. Render thread only; callers must
// have run the preparation of a staged id before locking the result.
func (r *Registry) Lookup(id uint64) *Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[id]
	if !ok {
		return nil
	}
	return h.acquire()
}

// DrainDeferred releases every reference in the deferred-destruction queue.
// Render thread only.
func (r *Registry) DrainDeferred() int {
	r.mu.Lock()
	deferred := r.deferred
	r.deferred = nil
	r.mu.Unlock()

	for _, h := range deferred {
		h.Release()
	}
	return len(deferred)
}

// ForceRelease is the device-reset cleanup. It empties the prepare and
// deferred queues immediately, destroying every host that is no longer
// registered regardless of outstanding references, and drops the cached GPU
// resources of every registered host. It returns the number of queue
// entries released.
func (r *Registry) ForceRelease() int {
	r.mu.Lock()
	queued := make([]*Handle, 0, len(r.prepare)+len(r.deferred))
	queued = append(queued, r.prepare...)
	queued = append(queued, r.deferred...)
	r.prepare = nil
	r.deferred = nil
	orphaned := make([]bool, len(queued))
	for i, h := range queued {
		orphaned[i] = r.hosts[h.id] != h
	}
	live := r.snapshotLocked()
	r.mu.Unlock()

	for i, h := range queued {
		if orphaned[i] {
			h.destroy()
		}
		h.Release()
	}
	for _, h := range live {
		if !h.Destroyed() {
			h.host.ClearCachedResources()
		}
		h.Release()
	}
	return len(queued)
}

// ClearCachedResources drops the cached GPU resources of every registered
// host and releases the deferred queue. Render thread only.
func (r *Registry) ClearCachedResources() {
	r.mu.Lock()
	deferred := r.deferred
	r.deferred = nil
	live := r.snapshotLocked()
	r.mu.Unlock()

	for _, h := range deferred {
		h.Release()
	}
	for _, h := range live {
		h.host.ClearCachedResources()
		h.Release()
	}
}

// snapshotLocked returns an acquired reference to every registered host.
func (r *Registry) snapshotLocked() []*Handle {
	live := make([]*Handle, 0, len(r.hosts))
	for _, h := range r.hosts {
		live = append(live, h.acquire())
	}
	return live
}

// Shutdown stops accepting new registrations. Remaining images are expected
// to be removed with UnregisterDuringShutdown, then ReleaseAll.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.shutdown = true
	r.mu.Unlock()
}

// UnregisterDuringShutdown removes id and destroys its host immediately,
// skipping the deferred queue. It panics if the registry is not shutting
// down or id is unknown. Render thread only.
func (r *Registry) UnregisterDuringShutdown(id uint64) {
	r.mu.Lock()
	if !r.shutdown {
		r.mu.Unlock()
		panic(fmt.Sprintf("texture: UnregisterDuringShutdown(%d) before Shutdown", id))
	}
	h, ok := r.hosts[id]
	if !ok {
		r.mu.Unlock()
		panic(fmt.Sprintf("texture: UnregisterDuringShutdown(%d) of unknown image", id))
	}
	delete(r.hosts, id)
	r.mu.Unlock()

	h.destroy()
	h.Release()
}

// ReleaseAll drops every reference the registry holds. Render thread only.
func (r *Registry) ReleaseAll() {
	r.mu.Lock()
	all := make([]*Handle, 0, len(r.hosts)+len(r.prepare)+len(r.deferred))
	for _, h := range r.hosts {
		all = append(all, h)
	}
	all = append(all, r.prepare...)
	all = append(all, r.deferred...)
	clear(r.hosts)
	r.prepare = nil
	r.deferred = nil
	r.mu.Unlock()

	for _, h := range all {
		h.Release()
	}
}

// Len returns the number of registered images.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.hosts)
}

// Pending returns the lengths of the prepare and deferred queues.
func (r *Registry) Pending() (prepare, deferred int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.prepare), len(r.deferred)
}

// BytesUsed sums the memory attributed to every registered host.
func (r *Registry) BytesUsed() uint64 {
	r.mu.Lock()
	live := r.snapshotLocked()
	r.mu.Unlock()

	var total uint64
	for _, h := range live {
		if !h.Destroyed() {
			total += h.host.BytesUsed()
		}
		h.Release()
	}
	return total
}
