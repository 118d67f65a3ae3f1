// Command wrdemo drives the render thread with a software compositor.
//
// It paces an animated window through the frame tracker, blends an external
// image into every frame, and writes the last frame (and optionally every
// recorded frame) as PNG.
package main

import (
	"context"
	"flag"
	"image"
	"image/color"
	"image/png"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/renderthread"
	"github.com/gogpu/renderthread/texture"
)

const (
	window  renderthread.WindowID = 1
	imageID uint64                = 1
)

type demoWindow struct{ size image.Point }

func (w demoWindow) ClientSize() image.Point { return w.size }

func main() {
	var (
		width   = flag.Int("width", 640, "window width")
		height  = flag.Int("height", 480, "window height")
		frames  = flag.Int("frames", 30, "frames to render")
		tile    = flag.Int("tile", 128, "tile size")
		config  = flag.String("config", "", "YAML render thread config")
		output  = flag.String("output", "wrdemo.png", "last frame output file")
		record  = flag.String("record", "", "directory for recorded frames")
		verbose = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	if *verbose {
		renderthread.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	cfg := renderthread.DefaultConfig()
	if *config != "" {
		var err error
		if cfg, err = renderthread.LoadConfigFile(*config); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	cfg.RecordFrames = cfg.RecordFrames || *record != ""

	var rendered, skipped int
	rt, err := renderthread.Start(
		renderthread.WithConfig(cfg),
		renderthread.WithFrameObserver(renderthread.FrameObserverFunc(func(_ renderthread.WindowID, s renderthread.FrameStats) {
			if s.Rendered {
				rendered++
			} else {
				skipped++
			}
		})),
		renderthread.WithDeviceResetHandler(func(reason string) {
			log.Printf("Device reset (%s)", reason)
		}),
	)
	if err != nil {
		log.Fatalf("Failed to start render thread: %v", err)
	}
	defer func() {
		if err := renderthread.Shutdown(); err != nil {
			log.Printf("Shutdown: %v", err)
		}
	}()

	size := image.Pt(*width, *height)
	rt.RegisterExternalImage(imageID, texture.NewSharedSurfaceHost(checkerboard(64, 8)))

	ctx := context.Background()
	var createErr error
	err = rt.RunSync(ctx, window, renderthread.EventFunc(func(w *renderthread.Worker, id renderthread.WindowID) {
		c, err := w.CreateCompositor(demoWindow{size})
		if err != nil {
			createErr = err
			return
		}
		w.AddRenderer(id, newPlasmaRenderer(c, rt.ThreadPool(), size, *tile, imageID))
	}))
	if err == nil {
		err = createErr
	}
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}

	start := time.Now()
	for vsync := uint64(1); vsync <= uint64(*frames); vsync++ { //nolint:gosec // flag is small
		for rt.TooManyPendingFrames(window) {
			time.Sleep(time.Millisecond)
		}
		if err := rt.PostSceneUpdate(window, float64(vsync)*0.1); err != nil {
			log.Fatalf("PostSceneUpdate: %v", err)
		}
		if err := rt.IncPendingFrameCount(window, vsync, time.Now(), 1); err != nil {
			log.Fatalf("IncPendingFrameCount: %v", err)
		}
		_ = rt.PrepareForUse(imageID)
		_ = rt.HandleFrameOneDoc(window, true)
		rt.DecPendingFrameBuildCount(window)
	}

	rb := &renderthread.Readback{
		Size:   size,
		Format: gputypes.TextureFormatRGBA8Unorm,
		Buffer: make([]byte, size.X*size.Y*4),
	}
	var (
		paths    []string
		writeErr error
	)
	err = rt.RunSync(ctx, window, renderthread.EventFunc(func(w *renderthread.Worker, id renderthread.WindowID) {
		w.UpdateAndRender(id, uint64(*frames)+1, time.Now(), true, rb) //nolint:gosec // flag is small
		if *record != "" {
			paths, writeErr = w.WriteCollectedFrames(id, *record)
		}
		w.RemoveRenderer(id)
	}))
	if err == nil {
		err = writeErr
	}
	if err != nil {
		log.Fatalf("Failed to finish: %v", err)
	}
	elapsed := time.Since(start)

	if err := savePNG(*output, &image.RGBA{Pix: rb.Buffer, Stride: size.X * 4, Rect: image.Rectangle{Max: size}}); err != nil {
		log.Fatalf("Failed to save: %v", err)
	}

	report, err := rt.AccumulateMemoryReport(renderthread.MemoryReport{}).Wait(ctx)
	if err != nil {
		log.Fatalf("Memory report: %v", err)
	}

	log.Printf("Rendered %d frames (%d skipped) in %v\n", rendered, skipped, elapsed)
	log.Printf("Last frame saved to %s (%dx%d)\n", *output, size.X, size.Y)
	if len(paths) > 0 {
		log.Printf("Recorded %d frames to %s\n", len(paths), *record)
	}
	log.Printf("Memory: %d bytes in external images, %d pooled surfaces\n",
		report.ExternalImageBytes, report.SurfacePoolBuffers)
}

func checkerboard(size, cells int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	cell := size / cells
	for y := range size {
		for x := range size {
			c := color.RGBA{R: 240, G: 240, B: 240, A: 255}
			if (x/cell+y/cell)%2 == 1 {
				c = color.RGBA{R: 20, G: 20, B: 20, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func savePNG(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return png.Encode(f, img)
}
