package surface_mapping

import (
	"time"

	"github.com/Carmen-Shannon/oxy-xr/engine/config"
)

// SurfaceMappingBuilderOption is a functional option applied during construction via NewSurfaceMapping.
type SurfaceMappingBuilderOption func(*surfaceMapping)

// WithWorkers sets the maximum number of concurrent mesh conversions.
//
// Parameters:
//   - n: the worker count; values below 1 are ignored
//
// Returns:
//   - SurfaceMappingBuilderOption: a function that applies the worker option
func WithWorkers(n int) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		if n > 0 {
			sm.workers = n
		}
	}
}

// WithQueueSize bounds the channel handing converted meshes to the render thread.
//
// Parameters:
//   - n: the channel capacity; values below 1 are ignored
//
// Returns:
//   - SurfaceMappingBuilderOption: a function that applies the queue option
func WithQueueSize(n int) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		if n > 0 {
			sm.queueSize = n
		}
	}
}

// WithReprocessInterval sets how much newer a surface update must be than the stored mesh before the
// surface is converted again.
func WithReprocessInterval(d time.Duration) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		sm.reprocessInterval = d
	}
}

// WithPollInterval sets the pause between observation passes.
func WithPollInterval(d time.Duration) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		if d > 0 {
			sm.pollInterval = d
		}
	}
}

// WithShaders sets the vertex and pixel shader files of the surface draw calls.
//
// Parameters:
//   - vs: the vertex shader file
//   - ps: the pixel shader file
//
// Returns:
//   - SurfaceMappingBuilderOption: a function that applies the shader option
func WithShaders(vs, ps string) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		sm.vertexShader = vs
		sm.pixelShader = ps
	}
}

// WithDrawMode sets the initial draw mode.
func WithDrawMode(mode DrawMode) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		sm.drawMode = mode
	}
}

// WithConfig applies the surface_mapping section of cfg.
func WithConfig(cfg config.Config) SurfaceMappingBuilderOption {
	return func(sm *surfaceMapping) {
		WithWorkers(cfg.SurfaceMapping.Workers)(sm)
		WithQueueSize(cfg.SurfaceMapping.QueueSize)(sm)
		WithReprocessInterval(time.Duration(cfg.SurfaceMapping.ReprocessInterval))(sm)
	}
}
