package texture

import (
	"fmt"
	"sync/atomic"
)

// Handle is a shared, reference-counted owner of a Host.
//
// The host is destroyed when the last reference is released, or earlier by
// a forced release during device-reset cleanup. Forced destruction overrides
// the normal lifetime rule; it is only valid because the GPU objects behind
// the host are already invalid at that point. Later releases never destroy
// the host a second time.
type Handle struct {
	id        uint64
	host      Host
	refs      atomic.Int32
	destroyed atomic.Bool
}

func newHandle(id uint64, host Host) *Handle {
	h := &Handle{id: id, host: host}
	h.refs.Store(1)
	return h
}

// ID returns the external image id the host was registered under.
func (h *Handle) ID() uint64 { return h.id }

// Host returns the owned host.
func (h *Handle) Host() Host { return h.host }

// Refs returns the current reference count.
func (h *Handle) Refs() int32 { return h.refs.Load() }

// Destroyed reports whether the host has been destroyed.
func (h *Handle) Destroyed() bool { return h.destroyed.Load() }

func (h *Handle) acquire() *Handle {
	if h.refs.Add(1) <= 1 {
		panic(fmt.Sprintf("texture: acquire of released image %d", h.id))
	}
	return h
}

// Release drops one reference. The last release destroys the host.
func (h *Handle) Release() {
	n := h.refs.Add(-1)
	switch {
	case n == 0:
		h.destroy()
	case n < 0:
		panic(fmt.Sprintf("texture: image %d released too many times", h.id))
	}
}

func (h *Handle) destroy() {
	if h.destroyed.CompareAndSwap(false, true) {
		h.host.Destroy()
	}
}
