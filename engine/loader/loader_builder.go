package loader

import "log/slog"

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLogger sets the logger used for import diagnostics. A nil logger is ignored.
//
// Parameters:
//   - logger: the logger
//
// Returns:
//   - LoaderBuilderOption: a function that applies the logger option to a loader
func WithLogger(logger *slog.Logger) LoaderBuilderOption {
	return func(l *loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMediaDir sets the directory searched for files not found at the given path.
func WithMediaDir(dir string) LoaderBuilderOption {
	return func(l *loader) {
		l.mediaDir = dir
	}
}

// WithScene pre-populates the cache.
//
// Parameters:
//   - key: the cache key for the scene
//   - s: the scene to cache
//
// Returns:
//   - LoaderBuilderOption: a function that applies the scene option to a loader
func WithScene(key string, s *Scene) LoaderBuilderOption {
	return func(l *loader) {
		l.cache[key] = s
	}
}
