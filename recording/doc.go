// Package recording captures composited frames for later inspection.
//
// A Recorder is attached to one window. Every frame the render thread
// composites for that window is copied, compressed with snappy and kept in
// memory until it is exported or reset:
//
//	rec := recording.NewRecorder(0)
//	rec.Record(frame, time.Now())
//	paths, err := rec.WriteFrames("out", "png")
//
// # Exporters
//
// Frames are written through exporters registered by name, following the
// database/sql driver pattern. Two are built in:
//
//   - "png": one PNG file per frame
//   - "rgba": raw RGBA pixels in a snappy framed stream
//
// Register custom exporters with [Register]:
//
//	func init() {
//	    recording.Register("webp", func() recording.Exporter {
//	        return newWebPExporter()
//	    })
//	}
package recording
