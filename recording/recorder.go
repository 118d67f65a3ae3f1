package recording

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang/snappy"
)

// ErrCorruptFrame is returned when a stored frame fails to decompress.
var ErrCorruptFrame = errors.New("recording: corrupt frame")

// DefaultMaxFrames bounds a recorder created with a non-positive limit.
const DefaultMaxFrames = 120

// Frame is one decoded composited frame.
type Frame struct {
	Index int
	Time  time.Time
	Image *image.RGBA
}

type storedFrame struct {
	index int
	at    time.Time
	size  image.Point
	data  []byte
}

// Recorder keeps compressed copies of composited frames. The oldest frames
// are dropped once the limit is reached.
//
// Recorder is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	maxFrames int
	next      int
	frames    []storedFrame
	bytes     uint64
}

// NewRecorder creates a recorder holding at most maxFrames frames.
func NewRecorder(maxFrames int) *Recorder {
	if maxFrames <= 0 {
		maxFrames = DefaultMaxFrames
	}
	return &Recorder{maxFrames: maxFrames}
}

// Record stores a compressed copy of img. Empty images are ignored.
func (r *Recorder) Record(img *image.RGBA, at time.Time) {
	if img == nil || img.Rect.Empty() {
		return
	}
	size := img.Rect.Size()
	raw := packRows(img)
	sf := storedFrame{at: at, size: size, data: snappy.Encode(nil, raw)}

	r.mu.Lock()
	defer r.mu.Unlock()
	sf.index = r.next
	r.next++
	if len(r.frames) == r.maxFrames {
		r.bytes -= uint64(len(r.frames[0].data))
		r.frames = r.frames[1:]
	}
	r.frames = append(r.frames, sf)
	r.bytes += uint64(len(sf.data))
}

// packRows returns the pixels of img without row padding.
func packRows(img *image.RGBA) []byte {
	size := img.Rect.Size()
	rowLen := size.X * 4
	if img.Stride == rowLen && img.Rect.Min == (image.Point{}) {
		return img.Pix[:rowLen*size.Y]
	}
	out := make([]byte, rowLen*size.Y)
	for y := range size.Y {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		copy(out[y*rowLen:], img.Pix[off:off+rowLen])
	}
	return out
}

// Len returns the number of stored frames.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// BytesUsed returns the compressed size of the stored frames.
func (r *Recorder) BytesUsed() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Reset drops every stored frame.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.bytes = 0
}

// Frames decodes the stored frames, oldest first.
func (r *Recorder) Frames() ([]Frame, error) {
	r.mu.Lock()
	stored := append([]storedFrame(nil), r.frames...)
	r.mu.Unlock()

	out := make([]Frame, 0, len(stored))
	for _, sf := range stored {
		img := image.NewRGBA(image.Rectangle{Max: sf.size})
		n, err := snappy.DecodedLen(sf.data)
		if err != nil || n != len(img.Pix) {
			return nil, fmt.Errorf("%w: frame %d", ErrCorruptFrame, sf.index)
		}
		if _, err := snappy.Decode(img.Pix, sf.data); err != nil {
			return nil, fmt.Errorf("%w: frame %d: %w", ErrCorruptFrame, sf.index, err)
		}
		out = append(out, Frame{Index: sf.index, Time: sf.at, Image: img})
	}
	return out, nil
}

// WriteFrames exports every stored frame into dir with the named exporter
// and returns the written paths. The directory is created if needed.
func (r *Recorder) WriteFrames(dir, exporter string) ([]string, error) {
	exp, err := NewExporter(exporter)
	if err != nil {
		return nil, err
	}
	frames, err := r.Frames()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("recording: %w", err)
	}

	paths := make([]string, 0, len(frames))
	for _, f := range frames {
		path := filepath.Join(dir, fmt.Sprintf("frame-%05d.%s", f.Index, exp.Extension()))
		if err := writeFrame(path, exp, f); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFrame(path string, exp Exporter, f Frame) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("recording: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("recording: %w", cerr)
		}
	}()
	if err := exp.Encode(file, f); err != nil {
		return fmt.Errorf("recording: frame %d: %w", f.Index, err)
	}
	return nil
}
