package shader

import "log/slog"

// ShaderBuilderOption is a functional option used to configure a Shader during construction.
type ShaderBuilderOption func(*shader)

// WithLogger sets the logger used for load and reload messages.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - ShaderBuilderOption: a function that sets the logger
func WithLogger(logger *slog.Logger) ShaderBuilderOption {
	return func(s *shader) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMediaDir sets the fallback directory searched when the shader file is not found as given.
//
// Parameters:
//   - dir: the directory; empty disables the fallback
//
// Returns:
//   - ShaderBuilderOption: a function that sets the media directory
func WithMediaDir(dir string) ShaderBuilderOption {
	return func(s *shader) {
		s.mediaDir = dir
	}
}
