package compositor

import (
	"fmt"
	"image"
)

// tileAccess records how a tile has been drawn into. Bind and MapTile are
// mutually exclusive for the lifetime of a tile.
type tileAccess uint8

const (
	accessNone tileAccess = iota
	accessBind
	accessMap
)

type tileKey struct{ x, y int32 }

type surfaceState struct {
	tileSize image.Point
	tiles    map[tileKey]tileAccess
}

// checked enforces the surface/tile protocol in front of a backend.
type checked struct {
	inner Compositor
	caps  Capabilities

	surfaces map[SurfaceID]*surfaceState
	inFrame  bool
	deinit   bool
	bound    *TileID
	mapped   *TileID
}

// Checked wraps c so that every protocol violation panics before reaching
// the backend:
//
//   - tile operations on a tile that was never created
//   - DestroySurface while the surface still owns tiles
//   - Bind and MapTile on the same tile, or while another tile is active
//   - unbalanced BeginFrame/EndFrame, Unbind and UnmapTile
//   - any call after Deinit, including a second Deinit
//
// Capabilities are queried from c once, here. Wrapping an already checked
// compositor returns it unchanged.
func Checked(c Compositor) Compositor {
	if cc, ok := c.(*checked); ok {
		return cc
	}
	return &checked{
		inner:    c,
		caps:     c.Capabilities(),
		surfaces: make(map[SurfaceID]*surfaceState),
	}
}

// Unwrap returns the backend behind a checked compositor.
func Unwrap(c Compositor) Compositor {
	if cc, ok := c.(*checked); ok {
		return cc.inner
	}
	return c
}

func violation(format string, args ...any) {
	panic("compositor: " + fmt.Sprintf(format, args...))
}

func (c *checked) alive(op string) {
	if c.deinit {
		violation("%s after Deinit", op)
	}
}

func (c *checked) tile(op string, id TileID) *surfaceState {
	s, ok := c.surfaces[id.Surface]
	if !ok {
		violation("%s on tile %v of unknown surface", op, id)
	}
	if _, ok := s.tiles[tileKey{id.X, id.Y}]; !ok {
		violation("%s on tile %v that was not created", op, id)
	}
	return s
}

func (c *checked) Name() string { return c.inner.Name() }

func (c *checked) BeginFrame() {
	c.alive("BeginFrame")
	if c.inFrame {
		violation("BeginFrame inside a frame")
	}
	c.inFrame = true
	c.inner.BeginFrame()
}

func (c *checked) EndFrame() {
	c.alive("EndFrame")
	if !c.inFrame {
		violation("EndFrame without BeginFrame")
	}
	if c.bound != nil || c.mapped != nil {
		violation("EndFrame with an active tile")
	}
	c.inFrame = false
	c.inner.EndFrame()
}

func (c *checked) CreateSurface(id SurfaceID, virtualOffset, tileSize image.Point, isOpaque bool) {
	c.alive("CreateSurface")
	if _, ok := c.surfaces[id]; ok {
		violation("CreateSurface: surface %d already exists", id)
	}
	if tileSize.X <= 0 || tileSize.Y <= 0 {
		violation("CreateSurface: surface %d has empty tile size %v", id, tileSize)
	}
	if m := c.caps.MaxTileSize; (m.X > 0 && tileSize.X > m.X) || (m.Y > 0 && tileSize.Y > m.Y) {
		violation("CreateSurface: tile size %v exceeds %v", tileSize, m)
	}
	c.surfaces[id] = &surfaceState{tileSize: tileSize, tiles: make(map[tileKey]tileAccess)}
	c.inner.CreateSurface(id, virtualOffset, tileSize, isOpaque)
}

func (c *checked) DestroySurface(id SurfaceID) {
	c.alive("DestroySurface")
	s, ok := c.surfaces[id]
	if !ok {
		violation("DestroySurface: unknown surface %d", id)
	}
	if n := len(s.tiles); n > 0 {
		violation("DestroySurface: surface %d still owns %d tiles", id, n)
	}
	delete(c.surfaces, id)
	c.inner.DestroySurface(id)
}

func (c *checked) CreateTile(id SurfaceID, x, y int32) {
	c.alive("CreateTile")
	s, ok := c.surfaces[id]
	if !ok {
		violation("CreateTile: unknown surface %d", id)
	}
	k := tileKey{x, y}
	if _, ok := s.tiles[k]; ok {
		violation("CreateTile: tile %v already exists", TileID{id, x, y})
	}
	s.tiles[k] = accessNone
	c.inner.CreateTile(id, x, y)
}

func (c *checked) DestroyTile(id SurfaceID, x, y int32) {
	c.alive("DestroyTile")
	tid := TileID{id, x, y}
	s := c.tile("DestroyTile", tid)
	if (c.bound != nil && *c.bound == tid) || (c.mapped != nil && *c.mapped == tid) {
		violation("DestroyTile: tile %v is active", tid)
	}
	delete(s.tiles, tileKey{x, y})
	c.inner.DestroyTile(id, x, y)
}

func (c *checked) AddSurface(id SurfaceID, position image.Point, clip image.Rectangle) {
	c.alive("AddSurface")
	if _, ok := c.surfaces[id]; !ok {
		violation("AddSurface: unknown surface %d", id)
	}
	c.inner.AddSurface(id, position, clip)
}

func (c *checked) Bind(id TileID, dirty, valid image.Rectangle) (image.Point, uint32) {
	c.alive("Bind")
	if !c.caps.BindTiles {
		violation("Bind: backend %s cannot bind tiles", c.inner.Name())
	}
	s := c.tile("Bind", id)
	if c.bound != nil || c.mapped != nil {
		violation("Bind: tile %v while another tile is active", id)
	}
	k := tileKey{id.X, id.Y}
	if s.tiles[k] == accessMap {
		violation("Bind: tile %v was mapped", id)
	}
	s.tiles[k] = accessBind
	c.bound = &id
	return c.inner.Bind(id, dirty, valid)
}

func (c *checked) Unbind() {
	c.alive("Unbind")
	if c.bound == nil {
		violation("Unbind without Bind")
	}
	c.bound = nil
	c.inner.Unbind()
}

func (c *checked) MapTile(id TileID, dirty, valid image.Rectangle) ([]byte, int) {
	c.alive("MapTile")
	if !c.caps.MapTiles {
		violation("MapTile: backend %s cannot map tiles", c.inner.Name())
	}
	s := c.tile("MapTile", id)
	if c.bound != nil || c.mapped != nil {
		violation("MapTile: tile %v while another tile is active", id)
	}
	k := tileKey{id.X, id.Y}
	if s.tiles[k] == accessBind {
		violation("MapTile: tile %v was bound", id)
	}
	s.tiles[k] = accessMap
	c.mapped = &id
	return c.inner.MapTile(id, dirty, valid)
}

func (c *checked) UnmapTile() {
	c.alive("UnmapTile")
	if c.mapped == nil {
		violation("UnmapTile without MapTile")
	}
	c.mapped = nil
	c.inner.UnmapTile()
}

func (c *checked) EnableNativeCompositor(enable bool) {
	c.alive("EnableNativeCompositor")
	if enable && !c.caps.NativeCompositing {
		violation("EnableNativeCompositor: backend %s has no native compositing", c.inner.Name())
	}
	c.inner.EnableNativeCompositor(enable)
}

func (c *checked) Capabilities() Capabilities { return c.caps }

func (c *checked) MakeCurrent() bool {
	c.alive("MakeCurrent")
	return c.inner.MakeCurrent()
}

func (c *checked) IsContextLost() bool {
	if c.deinit {
		return true
	}
	return c.inner.IsContextLost()
}

func (c *checked) Deinit() {
	c.alive("Deinit")
	c.deinit = true
	c.surfaces = nil
	c.bound, c.mapped = nil, nil
	c.inner.Deinit()
}

// Readback forwards to the backend if it supports readback.
func (c *checked) Readback(dst *image.RGBA) bool {
	c.alive("Readback")
	if rb, ok := c.inner.(Readbacker); ok {
		return rb.Readback(dst)
	}
	return false
}

// FrameSize forwards to the backend if it supports readback.
func (c *checked) FrameSize() image.Point {
	if rb, ok := c.inner.(Readbacker); ok {
		return rb.FrameSize()
	}
	return image.Point{}
}

var (
	_ Compositor = (*checked)(nil)
	_ Readbacker = (*checked)(nil)
)
