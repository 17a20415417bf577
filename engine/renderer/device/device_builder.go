package device

import "log/slog"

// DeviceConfig collects the options shared by every Device implementation before construction.
// Backends living in other packages resolve it with NewDeviceConfig.
type DeviceConfig struct {
	Logger               *slog.Logger
	PresentMode          PresentMode
	ForceFallbackAdapter bool
	SinglePassStereo     bool
	BackBufferWidth      int
	BackBufferHeight     int
	BackBufferFormat     Format
}

// NewDeviceConfig applies options over the defaults: slog.Default(), VSync and a 512x512 BGRA8 sRGB
// back buffer.
//
// Parameters:
//   - options: variadic DeviceBuilderOption functions
//
// Returns:
//   - DeviceConfig: the resolved configuration
func NewDeviceConfig(options ...DeviceBuilderOption) DeviceConfig {
	c := DeviceConfig{
		Logger:           slog.Default(),
		PresentMode:      PresentModeVSync,
		BackBufferWidth:  512,
		BackBufferHeight: 512,
		BackBufferFormat: FormatBGRA8UnormSrgb,
	}
	for _, opt := range options {
		opt(&c)
	}
	return c
}

// DeviceBuilderOption is a functional option applied to a device during construction.
type DeviceBuilderOption func(*DeviceConfig)

// WithLogger sets the structured logger used for pipeline and resource diagnostics.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - DeviceBuilderOption: a function that applies the logger option
func WithLogger(logger *slog.Logger) DeviceBuilderOption {
	return func(c *DeviceConfig) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithPresentMode sets the surface present mode.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - DeviceBuilderOption: a function that applies the present mode option
func WithPresentMode(mode PresentMode) DeviceBuilderOption {
	return func(c *DeviceConfig) {
		c.PresentMode = mode
	}
}

// WithForceSoftwareRenderer forces WebGPU to use a CPU fallback adapter instead of hardware.
// This requires a software Vulkan ICD (SwiftShader or lavapipe) to be installed.
//
// Parameters:
//   - force: true to force the fallback adapter
//
// Returns:
//   - DeviceBuilderOption: a function that applies the fallback adapter option
func WithForceSoftwareRenderer(force bool) DeviceBuilderOption {
	return func(c *DeviceConfig) {
		c.ForceFallbackAdapter = force
	}
}

// WithSinglePassStereo makes the recording device report single-pass stereo support.
// The WebGPU device ignores it because WGSL cannot select the render target array slice.
//
// Parameters:
//   - supported: the capability to report
//
// Returns:
//   - DeviceBuilderOption: a function that applies the capability option
func WithSinglePassStereo(supported bool) DeviceBuilderOption {
	return func(c *DeviceConfig) {
		c.SinglePassStereo = supported
	}
}

// WithBackBuffer sets the size and format of the recording device's simulated swap-chain image.
//
// Parameters:
//   - width: width in pixels
//   - height: height in pixels
//   - format: pixel format
//
// Returns:
//   - DeviceBuilderOption: a function that applies the back buffer option
func WithBackBuffer(width, height int, format Format) DeviceBuilderOption {
	return func(c *DeviceConfig) {
		c.BackBufferWidth = width
		c.BackBufferHeight = height
		c.BackBufferFormat = format
	}
}
