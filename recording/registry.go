package recording

import (
	"encoding/binary"
	"fmt"
	"image/png"
	"io"
	"sort"
	"sync"

	"github.com/golang/snappy"
)

// Exporter writes one frame in a file format.
type Exporter interface {
	// Extension is the file name extension without the dot.
	Extension() string

	// Encode writes f to w.
	Encode(w io.Writer, f Frame) error
}

// ExporterFactory creates a new exporter instance.
type ExporterFactory func() Exporter

var (
	registryMu sync.RWMutex
	exporters  = make(map[string]ExporterFactory)
)

func init() {
	Register("png", func() Exporter { return pngExporter{} })
	Register("rgba", func() Exporter { return rgbaExporter{} })
}

// Register registers an exporter factory under name.
//
// Register panics if factory is nil or name is already registered.
func Register(name string, factory ExporterFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("recording: Register factory is nil")
	}
	if _, dup := exporters[name]; dup {
		panic("recording: Register called twice for " + name)
	}
	exporters[name] = factory
}

// Unregister removes an exporter. Unknown names are ignored.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(exporters, name)
}

// NewExporter creates an exporter by name.
func NewExporter(name string) (Exporter, error) {
	registryMu.RLock()
	factory, ok := exporters[name]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("recording: unknown exporter %q", name)
	}
	return factory(), nil
}

// Exporters returns the registered exporter names, sorted.
func Exporters() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(exporters))
	for name := range exporters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type pngExporter struct{}

func (pngExporter) Extension() string { return "png" }

func (pngExporter) Encode(w io.Writer, f Frame) error {
	return png.Encode(w, f.Image)
}

// rgbaExporter writes a little-endian width and height followed by the raw
// RGBA rows, all inside a snappy framed stream.
type rgbaExporter struct{}

func (rgbaExporter) Extension() string { return "rgba.sz" }

func (rgbaExporter) Encode(w io.Writer, f Frame) error {
	sw := snappy.NewBufferedWriter(w)
	size := f.Image.Rect.Size()
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(size.X))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(size.Y))
	if _, err := sw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := sw.Write(packRows(f.Image)); err != nil {
		return err
	}
	return sw.Close()
}
