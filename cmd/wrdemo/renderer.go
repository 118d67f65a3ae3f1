package main

import (
	"context"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/gogpu/renderthread"
	"github.com/gogpu/renderthread/compositor"
	"github.com/gogpu/renderthread/texture"
)

const surfaceID compositor.SurfaceID = 1

// plasmaRenderer shades an animated plasma on the scene-build pool, blends an
// external image over it and composites the result through mapped tiles.
type plasmaRenderer struct {
	comp    compositor.Compositor
	pool    *renderthread.ThreadPool
	imageID uint64

	tile       int
	cols, rows int
	scratch    *image.RGBA
	created    bool

	phase  float64
	paused bool
}

func newPlasmaRenderer(c compositor.Compositor, pool *renderthread.ThreadPool, size image.Point, tile int, imageID uint64) *plasmaRenderer {
	return &plasmaRenderer{
		comp:    c,
		pool:    pool,
		imageID: imageID,
		tile:    tile,
		cols:    (size.X + tile - 1) / tile,
		rows:    (size.Y + tile - 1) / tile,
		scratch: image.NewRGBA(image.Rectangle{Max: size}),
	}
}

func (r *plasmaRenderer) Update() { r.phase += 0.05 }

func (r *plasmaRenderer) ApplySceneUpdate(update any) {
	if p, ok := update.(float64); ok {
		r.phase = p
	}
}

func (r *plasmaRenderer) Render(w *renderthread.Worker, _ renderthread.FrameInfo, rb *renderthread.Readback) error {
	if !r.created {
		r.comp.CreateSurface(surfaceID, image.Point{}, image.Pt(r.tile, r.tile), true)
		for y := range r.rows {
			for x := range r.cols {
				r.comp.CreateTile(surfaceID, int32(x), int32(y)) //nolint:gosec // grid fits int32
			}
		}
		r.created = true
	}

	if err := r.shade(); err != nil {
		return err
	}
	r.blendExternal(w)

	r.comp.BeginFrame()
	for y := range r.rows {
		for x := range r.cols {
			r.uploadTile(x, y)
		}
	}
	r.comp.AddSurface(surfaceID, image.Point{}, image.Rectangle{})
	r.comp.EndFrame()

	renderthread.ReadbackInto(r.comp, rb)
	return nil
}

// shade fills the scratch buffer, one task per tile row.
func (r *plasmaRenderer) shade() error {
	b := r.scratch.Bounds()
	phase := r.phase
	tasks := make([]func(context.Context) error, r.rows)
	for row := range tasks {
		y0 := row * r.tile
		y1 := min(y0+r.tile, b.Max.Y)
		tasks[row] = func(ctx context.Context) error {
			for y := y0; y < y1; y++ {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				i := r.scratch.PixOffset(0, y)
				for x := range b.Max.X {
					fx, fy := float64(x), float64(y)
					v := math.Sin(fx*0.03+phase) + math.Sin(fy*0.02+phase*1.3) + math.Sin((fx+fy)*0.015+phase*0.7)
					r.scratch.Pix[i+0] = uint8(127 + 40*v)
					r.scratch.Pix[i+1] = uint8(127 + 40*math.Sin(v+phase))
					r.scratch.Pix[i+2] = uint8(127 + 40*math.Cos(v))
					r.scratch.Pix[i+3] = 255
					i += 4
				}
			}
			return nil
		}
	}
	return r.pool.Execute(context.Background(), tasks)
}

// blendExternal scales the external image into the center of the frame.
func (r *plasmaRenderer) blendExternal(w *renderthread.Worker) {
	h := w.RenderTexture(r.imageID)
	if h == nil {
		return
	}
	defer h.Release()

	img, err := h.Host().Lock(0, w.SharedContext())
	if err != nil {
		return
	}
	defer h.Host().Unlock()
	if img.Kind != texture.KindRawData {
		return
	}

	src := &image.RGBA{Pix: img.Data, Stride: img.Stride, Rect: image.Rectangle{Max: img.Size}}
	b := r.scratch.Bounds()
	side := min(b.Dx(), b.Dy()) / 3
	center := image.Pt(b.Dx()/2, b.Dy()/2)
	dst := image.Rect(center.X-side/2, center.Y-side/2, center.X+side/2, center.Y+side/2)
	xdraw.ApproxBiLinear.Scale(r.scratch, dst, src, src.Bounds(), xdraw.Over, nil)
}

func (r *plasmaRenderer) uploadTile(x, y int) {
	origin := image.Pt(x*r.tile, y*r.tile)
	area := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(r.tile, r.tile))}.Intersect(r.scratch.Bounds())
	local := area.Sub(origin)

	id := compositor.TileID{Surface: surfaceID, X: int32(x), Y: int32(y)} //nolint:gosec // grid fits int32
	data, stride := r.comp.MapTile(id, local, local)
	for row := 0; row < area.Dy(); row++ {
		src := r.scratch.PixOffset(area.Min.X, area.Min.Y+row)
		copy(data[row*stride:row*stride+area.Dx()*4], r.scratch.Pix[src:src+area.Dx()*4])
	}
	r.comp.UnmapTile()
}

func (r *plasmaRenderer) Pause() { r.paused = true }

func (r *plasmaRenderer) Resume() bool {
	r.paused = false
	return true
}

func (r *plasmaRenderer) AccumulateMemoryReport(m *renderthread.MemoryReport) {
	m.RenderTargetBytes += uint64(len(r.scratch.Pix))
}

func (r *plasmaRenderer) Compositor() compositor.Compositor { return r.comp }

func (r *plasmaRenderer) Close() {
	if r.created {
		for y := range r.rows {
			for x := range r.cols {
				r.comp.DestroyTile(surfaceID, int32(x), int32(y)) //nolint:gosec // grid fits int32
			}
		}
		r.comp.DestroySurface(surfaceID)
	}
	r.comp.Deinit()
}
