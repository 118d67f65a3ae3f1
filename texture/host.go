// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package texture tracks externally supplied GPU-backed images for the
// render thread.
//
// Content code registers a Host under an opaque external image id from any
// goroutine. The render thread later looks the id up and locks the host to
// obtain pixel data for a composite. Hosts are reference counted through
// Handle: the Registry holds one reference for each set it places a host in
// (the primary map, the prepare queue, the deferred-destruction queue), and
// every Lookup hands out one more. The last Release destroys the host.
//
// Protocol (a documented precondition, not validated at runtime): a host
// staged with PrepareForUse must have its preparation hook run on the render
// thread before it is locked.
package texture

import (
	"errors"
	"image"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// Errors returned by hosts.
var (
	// ErrInvalidChannel is returned when Lock is called with a channel the
	// host does not have (e.g., channel 1 of a single-plane image).
	ErrInvalidChannel = errors.New("texture: invalid channel")

	// ErrDestroyed is returned when locking a host that was destroyed.
	ErrDestroyed = errors.New("texture: host destroyed")
)

// ImageKind tells how an ExternalImage carries its pixels.
type ImageKind uint8

const (
	// KindTextureHandle means the pixels live in a GPU texture named by
	// ExternalImage.Handle.
	KindTextureHandle ImageKind = iota

	// KindRawData means the pixels are CPU addressable in ExternalImage.Data.
	KindRawData
)

// ExternalImage is what a locked host exposes for one channel.
type ExternalImage struct {
	Kind ImageKind

	// Handle is the GPU texture name for KindTextureHandle.
	Handle uint32

	// U0, V0, U1, V1 are the normalized texture coordinates of the image
	// within the texture.
	U0, V0, U1, V1 float32

	// Data and Stride describe CPU pixels for KindRawData.
	Data   []byte
	Stride int

	Size   image.Point
	Format gputypes.TextureFormat
}

// Host owns GPU-visible pixel data for one external image.
//
// Lock, Unlock, PrepareForUse, NotifyNotUsed and ClearCachedResources are
// only called on the render thread. Destroy is called exactly once, on the
// render thread, except during device-reset cleanup.
type Host interface {
	// Lock exposes one channel of the image. gl is the render thread's
	// shared GPU context, which may be nil.
	Lock(channel uint8, gl gpucontext.DeviceProvider) (ExternalImage, error)

	// Unlock ends the access started by Lock.
	Unlock()

	// PrepareForUse runs mandatory staging before the first Lock of a
	// frame (e.g., waiting on a producer fence).
	PrepareForUse()

	// NotifyNotUsed tells the host it will not be locked this frame.
	NotifyNotUsed()

	// ClearCachedResources drops GPU objects derived from the image.
	// It is called when the GPU context is lost.
	ClearCachedResources()

	// Destroy releases the host's resources.
	Destroy()

	// Format returns the pixel format of channel 0.
	Format() gputypes.TextureFormat

	// Size returns the image size in pixels.
	Size() image.Point

	// BytesUsed returns the memory attributed to the host.
	BytesUsed() uint64
}
