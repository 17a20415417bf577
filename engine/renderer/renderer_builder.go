package renderer

import (
	"log/slog"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithLogger sets the logger of the renderer and of the shaders and textures it creates.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - RendererBuilderOption: a function that applies the logger option to a renderer
func WithLogger(logger *slog.Logger) RendererBuilderOption {
	return func(r *renderer) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithShaderMediaDir sets the directory searched for shader files not found at their given path.
//
// Parameters:
//   - dir: the shader media directory
//
// Returns:
//   - RendererBuilderOption: a function that applies the media directory option to a renderer
func WithShaderMediaDir(dir string) RendererBuilderOption {
	return func(r *renderer) {
		r.shaderMediaDir = dir
	}
}

// WithHotReload watches every loaded shader file and reloads changed shaders in Update.
//
// Parameters:
//   - enabled: true to start a shader watcher
//
// Returns:
//   - RendererBuilderOption: a function that applies the hot reload option to a renderer
func WithHotReload(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.hotReload = enabled
	}
}

// WithBackBuffer sets the size and format of the back buffer the renderer creates before a native
// one is supplied. The default is 512x512 BGRA8.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//   - format: pixel format
//
// Returns:
//   - RendererBuilderOption: a function that applies the back buffer option to a renderer
func WithBackBuffer(width, height int, format device.Format) RendererBuilderOption {
	return func(r *renderer) {
		r.backBufferWidth = width
		r.backBufferHeight = height
		r.backBufferFormat = format
	}
}

// WithSinglePassStereo requests single-pass stereo. It only takes effect when the device supports it.
//
// Parameters:
//   - enabled: true to request single-pass stereo
//
// Returns:
//   - RendererBuilderOption: a function that applies the stereo option to a renderer
func WithSinglePassStereo(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.spsRequested = enabled
	}
}

// WithAmbient sets the initial ambient light colour.
func WithAmbient(color common.Vec4) RendererBuilderOption {
	return func(r *renderer) {
		r.ambient = color
	}
}

// WithDefaultLight places light 0.
//
// Parameters:
//   - position: the light position
//   - at: the point the light looks at
//
// Returns:
//   - RendererBuilderOption: a function that applies the light option to a renderer
func WithDefaultLight(position, at common.Vec3) RendererBuilderOption {
	return func(r *renderer) {
		r.lights[0] = Light{Position: position, At: at}
	}
}

// WithConfig applies the renderer, media, mesh and lighting sections of cfg. Options given after it
// override individual settings.
//
// Parameters:
//   - cfg: a validated configuration
//
// Returns:
//   - RendererBuilderOption: a function that applies the configuration to a renderer
func WithConfig(cfg config.Config) RendererBuilderOption {
	return func(r *renderer) {
		r.backBufferWidth = cfg.Renderer.BackBufferWidth
		r.backBufferHeight = cfg.Renderer.BackBufferHeight
		if format, err := cfg.BackBufferFormat(); err == nil {
			r.backBufferFormat = format
		}
		r.spsRequested = cfg.Renderer.SinglePassStereo
		r.hotReload = cfg.Renderer.HotReload

		r.shaderMediaDir = cfg.Media.Shaders
		r.textureMediaDir = cfg.Media.Textures
		r.meshOptions = cfg.MeshOptions()

		l := cfg.Lighting
		r.ambient = common.Vec4(l.Ambient)
		r.lights[0] = Light{Position: common.Vec3(l.LightPosition), At: common.Vec3(l.LightAt)}
	}
}
