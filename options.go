package renderthread

import (
	"github.com/gogpu/gpucontext"

	"github.com/gogpu/renderthread/compositor"
)

// Option configures a render thread during Start.
//
// Example:
//
//	rt, err := renderthread.Start(
//	    renderthread.WithConfig(cfg),
//	    renderthread.WithDeviceProvider(provider),
//	    renderthread.WithDeviceResetHandler(func(reason string) {
//	        log.Printf("GPU reset: %s", reason)
//	    }),
//	)
type Option func(*options)

type options struct {
	config       Config
	provider     gpucontext.DeviceProvider
	onReset      func(reason string)
	onError      func(kind RenderErrorKind)
	observer     FrameObserver
	compositors  *compositor.Registry
	shutdownHook func(*Worker)
}

func defaultOptions() options {
	return options{
		config:      DefaultConfig(),
		compositors: compositor.Default(),
	}
}

// WithConfig replaces the default settings.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.config = cfg
	}
}

// WithDeviceProvider supplies the shared GPU context. The worker takes it
// over during startup and drops it on device reset and shutdown.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithDeviceResetHandler sets the function told about device resets.
// The reason names where the reset was detected.
//
// In the deferred notification mode the handler runs on the notifier
// goroutine. Calls queue up behind a slow handler without stalling frames.
// The handler must not call Shutdown, which waits for the notifier and
// would deadlock. In the sync mode it runs on the worker and the same rule
// applies.
func WithDeviceResetHandler(fn func(reason string)) Option {
	return func(o *options) {
		o.onReset = fn
	}
}

// WithErrorHandler sets the function told about unrecoverable renderer
// errors, for example to disable acceleration. It is delivered like the
// device-reset handler and must not call Shutdown either.
func WithErrorHandler(fn func(kind RenderErrorKind)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithFrameObserver sets the observer told about every executed frame.
func WithFrameObserver(obs FrameObserver) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithCompositorRegistry sets the registry CreateCompositor selects
// backends from. The default is compositor.Default().
func WithCompositorRegistry(r *compositor.Registry) Option {
	return func(o *options) {
		if r != nil {
			o.compositors = r
		}
	}
}

// WithShutdownHook sets a function run on the worker during Shutdown, after
// the external image registry stopped accepting images and before the
// remaining renderers are removed. It is the place to call
// Worker.UnregisterExternalImageDuringShutdown.
func WithShutdownHook(fn func(*Worker)) Option {
	return func(o *options) {
		o.shutdownHook = fn
	}
}
