// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"fmt"
	"image"
)

// SurfaceID names a virtual compositing surface.
type SurfaceID uint64

// TileID names one cell of a surface's tile grid.
// A tile belongs to exactly one surface.
type TileID struct {
	Surface SurfaceID
	X, Y    int32
}

// String returns a compact debug form, e.g. "7:(1,2)".
func (t TileID) String() string {
	return fmt.Sprintf("%d:(%d,%d)", t.Surface, t.X, t.Y)
}

// Capabilities describes what a compositor backend supports.
// It is queried once after construction and never changes.
type Capabilities struct {
	// VirtualSurfaceSize is the size of the virtual coordinate space of a
	// surface. Zero means the backend does not virtualize surfaces.
	VirtualSurfaceSize int32

	// MaxTileSize bounds the tile size accepted by CreateSurface.
	// A zero point means unbounded.
	MaxTileSize image.Point

	// BindTiles reports whether tiles can be bound as GPU render targets.
	BindTiles bool

	// MapTiles reports whether tiles can be mapped into CPU memory.
	MapTiles bool

	// NativeCompositing reports whether composition can be delegated to the
	// OS compositor via EnableNativeCompositor.
	NativeCompositing bool
}

// Widget is the windowing-system object a compositor draws into.
// It is owned by the caller; compositors only query it.
type Widget interface {
	// ClientSize returns the drawable size in device pixels.
	ClientSize() image.Point
}

// FramePresenter is implemented by widgets that accept CPU-composited frames.
// The software compositor presents through it at EndFrame.
type FramePresenter interface {
	Present(frame *image.RGBA) error
}

// Compositor is the capability set every platform backend satisfies.
//
// All methods are synchronous and must only be called from the render
// thread. Misuse (bind without create, destroying a surface that still owns
// tiles) is a programming error; see Checked.
type Compositor interface {
	// Name returns the backend identifier (e.g., "software", "angle").
	Name() string

	// BeginFrame starts one composite.
	BeginFrame()

	// EndFrame finishes the composite started by BeginFrame.
	EndFrame()

	// CreateSurface registers a virtual surface whose tiles have the given
	// size. virtualOffset maps surface coordinates into the backend's
	// virtual space.
	CreateSurface(id SurfaceID, virtualOffset, tileSize image.Point, isOpaque bool)

	// DestroySurface releases a surface. All of its tiles must have been
	// destroyed first.
	DestroySurface(id SurfaceID)

	// CreateTile allocates the tile at grid position (x, y) of a surface.
	CreateTile(id SurfaceID, x, y int32)

	// DestroyTile releases a tile.
	DestroyTile(id SurfaceID, x, y int32)

	// AddSurface places a registered surface into the current frame at
	// position, clipped to clip.
	AddSurface(id SurfaceID, position image.Point, clip image.Rectangle)

	// Bind makes a tile the current render target. It returns the offset
	// at which subsequent draws land and the framebuffer to draw into.
	// Only dirty needs redrawing; valid is the part of the tile that will
	// be composited.
	Bind(id TileID, dirty, valid image.Rectangle) (offset image.Point, fboID uint32)

	// Unbind ends the binding started by Bind.
	Unbind()

	// MapTile exposes the pixels of a tile to the CPU. It is the
	// alternative to Bind for backends without GPU-side binding.
	MapTile(id TileID, dirty, valid image.Rectangle) (data []byte, stride int)

	// UnmapTile ends the mapping started by MapTile.
	UnmapTile()

	// EnableNativeCompositor toggles whether composition is delegated to
	// the OS compositor.
	EnableNativeCompositor(enable bool)

	// Capabilities returns the immutable capability value.
	Capabilities() Capabilities

	// MakeCurrent makes the backend's graphics context current on the
	// calling thread. It reports false when that is impossible.
	MakeCurrent() bool

	// IsContextLost reports whether the underlying graphics context was
	// lost. Once it returns true every resource of the backend is invalid.
	IsContextLost() bool

	// Deinit releases all backend resources. It may be called once; the
	// compositor is unusable afterwards.
	Deinit()
}

// Readbacker is implemented by compositors that can copy the last
// composited frame back to the CPU.
type Readbacker interface {
	// Readback copies the region of the last composited frame starting at
	// the origin into dst. It returns false if no frame is available.
	Readback(dst *image.RGBA) bool

	// FrameSize returns the size of the last composited frame.
	FrameSize() image.Point
}
