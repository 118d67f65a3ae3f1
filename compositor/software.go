// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package compositor

import (
	"image"
	"sync/atomic"

	xdraw "golang.org/x/image/draw"
)

// SoftwareMaxTileSize bounds the tile size of the software compositor.
const SoftwareMaxTileSize = 1024

// softSurface has no virtual offset: Capabilities.VirtualSurfaceSize is 0,
// so tiles are placed from the surface position alone.
type softSurface struct {
	tileSize image.Point
	opaque   bool
	tiles    map[tileKey]*image.RGBA
}

type placement struct {
	id       SurfaceID
	position image.Point
	clip     image.Rectangle
}

// Software is the CPU compositor and the universal fallback backend.
//
// Tiles are RGBA buffers from a SurfacePool, drawn through MapTile. EndFrame
// composites the surfaces added during the frame into a framebuffer the
// size of the widget and presents it if the widget implements
// FramePresenter.
//
// Software does not lock; the render thread serializes all calls. Only
// IsContextLost and LoseContext may be used from other goroutines.
type Software struct {
	widget   Widget
	pool     *SurfacePool
	ownsPool bool

	surfaces    map[SurfaceID]*softSurface
	frame       []placement
	framebuffer *image.RGBA
	native      bool
	frames      uint64

	lost atomic.Bool
}

// NewSoftware creates a software compositor drawing for w. Tile buffers come
// from pool; a nil pool gives the compositor a private one.
func NewSoftware(w Widget, pool *SurfacePool) *Software {
	s := &Software{
		widget:   w,
		pool:     pool,
		surfaces: make(map[SurfaceID]*softSurface),
	}
	if s.pool == nil {
		s.pool = NewSurfacePool()
		s.ownsPool = true
	}
	return s
}

// Name returns "software".
func (s *Software) Name() string { return NameSoftware }

// BeginFrame starts collecting surface placements.
func (s *Software) BeginFrame() {
	s.frame = s.frame[:0]
}

// EndFrame composites the placed surfaces and presents the result.
func (s *Software) EndFrame() {
	size := image.Point{}
	if s.widget != nil {
		size = s.widget.ClientSize()
	}
	s.ensureFramebuffer(size)
	if s.framebuffer == nil {
		return
	}
	clear(s.framebuffer.Pix)

	bounds := s.framebuffer.Bounds()
	for _, p := range s.frame {
		surf, ok := s.surfaces[p.id]
		if !ok {
			continue
		}
		op := xdraw.Over
		if surf.opaque {
			op = xdraw.Src
		}
		clip := bounds
		if !p.clip.Empty() {
			clip = clip.Intersect(p.clip)
		}
		for k, tile := range surf.tiles {
			origin := p.position.Add(image.Pt(int(k.x)*surf.tileSize.X, int(k.y)*surf.tileSize.Y))
			dst := image.Rectangle{Min: origin, Max: origin.Add(surf.tileSize)}.Intersect(clip)
			if dst.Empty() {
				continue
			}
			sr := dst.Sub(origin)
			xdraw.Copy(s.framebuffer, dst.Min, tile, sr, op, nil)
		}
	}
	s.frames++

	if fp, ok := s.widget.(FramePresenter); ok {
		if err := fp.Present(s.framebuffer); err != nil {
			slogger().Warn("software compositor: present failed", "err", err)
		}
	}
}

func (s *Software) ensureFramebuffer(size image.Point) {
	if s.framebuffer != nil && s.framebuffer.Rect.Size() == size {
		return
	}
	if s.framebuffer != nil {
		s.pool.Put(s.framebuffer)
		s.framebuffer = nil
	}
	s.framebuffer = s.pool.Get(size)
}

// CreateSurface registers a surface. The virtual offset is ignored.
func (s *Software) CreateSurface(id SurfaceID, _, tileSize image.Point, isOpaque bool) {
	s.surfaces[id] = &softSurface{
		tileSize: tileSize,
		opaque:   isOpaque,
		tiles:    make(map[tileKey]*image.RGBA),
	}
}

// DestroySurface forgets a surface.
func (s *Software) DestroySurface(id SurfaceID) {
	if surf, ok := s.surfaces[id]; ok {
		for _, t := range surf.tiles {
			s.pool.Put(t)
		}
	}
	delete(s.surfaces, id)
}

// CreateTile allocates a tile buffer.
func (s *Software) CreateTile(id SurfaceID, x, y int32) {
	surf := s.surfaces[id]
	surf.tiles[tileKey{x, y}] = s.pool.Get(surf.tileSize)
}

// DestroyTile returns a tile buffer to the pool.
func (s *Software) DestroyTile(id SurfaceID, x, y int32) {
	surf := s.surfaces[id]
	k := tileKey{x, y}
	s.pool.Put(surf.tiles[k])
	delete(surf.tiles, k)
}

// AddSurface places a surface into the current frame.
func (s *Software) AddSurface(id SurfaceID, position image.Point, clip image.Rectangle) {
	s.frame = append(s.frame, placement{id: id, position: position, clip: clip})
}

// Bind is not supported by the software compositor.
func (s *Software) Bind(id TileID, _, _ image.Rectangle) (image.Point, uint32) {
	panic("compositor: software compositor cannot bind tile " + id.String())
}

// Unbind is not supported by the software compositor.
func (s *Software) Unbind() {
	panic("compositor: software compositor cannot unbind")
}

// MapTile returns the pixels of a tile, starting at its origin.
func (s *Software) MapTile(id TileID, _, _ image.Rectangle) ([]byte, int) {
	t := s.surfaces[id.Surface].tiles[tileKey{id.X, id.Y}]
	return t.Pix, t.Stride
}

// UnmapTile ends a mapping. Pixels are already in place.
func (s *Software) UnmapTile() {}

// EnableNativeCompositor records the request; the software compositor always
// composites in-process.
func (s *Software) EnableNativeCompositor(enable bool) {
	s.native = enable
}

// Capabilities reports map-only tiles without virtual surfaces.
func (s *Software) Capabilities() Capabilities {
	return Capabilities{
		MaxTileSize: image.Pt(SoftwareMaxTileSize, SoftwareMaxTileSize),
		MapTiles:    true,
	}
}

// MakeCurrent succeeds unless the context was lost.
func (s *Software) MakeCurrent() bool { return !s.lost.Load() }

// IsContextLost reports whether LoseContext was called.
func (s *Software) IsContextLost() bool { return s.lost.Load() }

// LoseContext simulates a lost graphics context.
func (s *Software) LoseContext() { s.lost.Store(true) }

// Frames returns the number of composited frames.
func (s *Software) Frames() uint64 { return s.frames }

// Readback copies the last composited frame into dst, starting at the
// framebuffer origin.
func (s *Software) Readback(dst *image.RGBA) bool {
	if s.framebuffer == nil || dst == nil {
		return false
	}
	sr := image.Rectangle{Max: dst.Rect.Size()}.Intersect(s.framebuffer.Bounds())
	xdraw.Copy(dst, dst.Rect.Min, s.framebuffer, sr, xdraw.Src, nil)
	return true
}

// FrameSize returns the framebuffer size, or zero before the first frame.
func (s *Software) FrameSize() image.Point {
	if s.framebuffer == nil {
		return image.Point{}
	}
	return s.framebuffer.Rect.Size()
}

// Deinit returns every buffer to the pool.
func (s *Software) Deinit() {
	for id := range s.surfaces {
		s.DestroySurface(id)
	}
	if s.framebuffer != nil {
		s.pool.Put(s.framebuffer)
		s.framebuffer = nil
	}
	if s.ownsPool {
		s.pool.Clear()
	}
}

var (
	_ Compositor = (*Software)(nil)
	_ Readbacker = (*Software)(nil)
)
