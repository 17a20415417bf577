package engine

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/camera"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/surface_mapping"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithConfig sets the configuration used for the window, renderer, surface mapping and profiler. It also
// sets whether profiling starts enabled, so a later WithProfiling overrides it.
//
// Parameters:
//   - cfg: the configuration, normally from config.Load
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithConfig(cfg config.Config) EngineBuilderOption {
	return func(e *engine) {
		e.cfg = cfg
		e.profilingEnabled = cfg.Profiler.Enabled
	}
}

// WithLogger sets the logger passed to every subsystem.
func WithLogger(logger *slog.Logger) EngineBuilderOption {
	return func(e *engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithProfiling enables or disables the frame statistics log.
//
// Parameters:
//   - enabled: if true, enables performance profiling
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled = enabled
	}
}

// WithTickRate sets the tick callback rate in ticks per second. Values <= 0 select 60.
//
// Parameters:
//   - fps: target ticks per second
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.engineTickRate = tickRate(fps)
	}
}

// WithWindow uses w instead of opening a window. The engine does not close it.
//
// Parameters:
//   - w: a window
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithWindow(w window.Window) EngineBuilderOption {
	return func(e *engine) {
		e.window = w
	}
}

// WithDevice uses dev instead of creating a WebGPU device. The engine does not release it.
//
// Parameters:
//   - dev: a device
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithDevice(dev device.Device) EngineBuilderOption {
	return func(e *engine) {
		e.dev = dev
	}
}

// WithCamera replaces the default orbit-controlled stereo camera.
func WithCamera(c camera.Camera) EngineBuilderOption {
	return func(e *engine) {
		e.camera = c
	}
}

// WithSurfaceSource enables surface mapping over src.
//
// Parameters:
//   - src: the spatial surface source
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithSurfaceSource(src surface_mapping.SurfaceSource) EngineBuilderOption {
	return func(e *engine) {
		e.source = src
	}
}

// WithClearColor sets the colour the back buffer is cleared to each frame.
func WithClearColor(color common.Vec4) EngineBuilderOption {
	return func(e *engine) {
		e.clearColor = color
	}
}

// WithRenderFrameLimit caps the frame rate.
//
// Parameters:
//   - fps: maximum frames per second (0 = uncapped)
//
// Returns:
//   - EngineBuilderOption: option function to apply
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		e.renderFrameLimit = frameLimit(fps)
	}
}
