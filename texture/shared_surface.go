package texture

import (
	"image"
	"sync"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
)

// SharedSurfaceHost is a Host over a CPU shared-memory RGBA surface.
//
// Producers write into Pixels between frames; the render thread locks
// channel 0 to read them. Locking twice without Unlock panics.
type SharedSurfaceHost struct {
	mu        sync.Mutex
	img       *image.RGBA
	locked    bool
	destroyed bool
	prepared  uint64
}

// NewSharedSurfaceHost wraps img. The host takes ownership of its pixels.
func NewSharedSurfaceHost(img *image.RGBA) *SharedSurfaceHost {
	return &SharedSurfaceHost{img: img}
}

// Pixels returns the backing surface, or nil after Destroy.
func (s *SharedSurfaceHost) Pixels() *image.RGBA {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return nil
	}
	return s.img
}

// Lock exposes the raw pixels of channel 0.
func (s *SharedSurfaceHost) Lock(channel uint8, _ gpucontext.DeviceProvider) (ExternalImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return ExternalImage{}, ErrDestroyed
	}
	if channel != 0 {
		return ExternalImage{}, ErrInvalidChannel
	}
	if s.locked {
		panic("texture: shared surface locked twice")
	}
	s.locked = true
	return ExternalImage{
		Kind:   KindRawData,
		U1:     1,
		V1:     1,
		Data:   s.img.Pix,
		Stride: s.img.Stride,
		Size:   s.img.Rect.Size(),
		Format: gputypes.TextureFormatRGBA8Unorm,
	}, nil
}

// Unlock ends the access started by Lock.
func (s *SharedSurfaceHost) Unlock() {
	s.mu.Lock()
	s.locked = false
	s.mu.Unlock()
}

// PrepareForUse counts preparations; shared memory needs no staging.
func (s *SharedSurfaceHost) PrepareForUse() {
	s.mu.Lock()
	s.prepared++
	s.mu.Unlock()
}

// Prepared returns how many times PrepareForUse ran.
func (s *SharedSurfaceHost) Prepared() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prepared
}

func (s *SharedSurfaceHost) NotifyNotUsed() {}

func (s *SharedSurfaceHost) ClearCachedResources() {}

// Destroy drops the surface.
func (s *SharedSurfaceHost) Destroy() {
	s.mu.Lock()
	s.destroyed = true
	s.img = nil
	s.mu.Unlock()
}

// Format returns RGBA8Unorm.
func (s *SharedSurfaceHost) Format() gputypes.TextureFormat {
	return gputypes.TextureFormatRGBA8Unorm
}

// Size returns the surface size, or zero after Destroy.
func (s *SharedSurfaceHost) Size() image.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return image.Point{}
	}
	return s.img.Rect.Size()
}

// BytesUsed returns the size of the pixel buffer.
func (s *SharedSurfaceHost) BytesUsed() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.img == nil {
		return 0
	}
	return uint64(len(s.img.Pix))
}

var _ Host = (*SharedSurfaceHost)(nil)
