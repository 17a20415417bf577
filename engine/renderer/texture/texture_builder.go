package texture

import "log/slog"

// TextureBuilderOption is a functional option for configuring a Texture2D on creation.
type TextureBuilderOption func(*texture)

// WithLogger is an option builder that sets the logger of the Texture2D.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - TextureBuilderOption: a function that applies the logger option to a texture
func WithLogger(logger *slog.Logger) TextureBuilderOption {
	return func(t *texture) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithLabel is an option builder that sets the debug label of the device texture and its views.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - TextureBuilderOption: a function that applies the label option to a texture
func WithLabel(label string) TextureBuilderOption {
	return func(t *texture) {
		t.label = label
	}
}

// WithMediaDir is an option builder that sets the directory searched for texture files not found at
// their given path.
//
// Parameters:
//   - dir: the media directory
//
// Returns:
//   - TextureBuilderOption: a function that applies the media directory option to a texture
func WithMediaDir(dir string) TextureBuilderOption {
	return func(t *texture) {
		t.mediaDir = dir
	}
}

// WithStereo is an option builder that makes NewTexture allocate a two-layer array, one layer per eye.
//
// Parameters:
//   - stereo: true for two layers
//
// Returns:
//   - TextureBuilderOption: a function that applies the stereo option to a texture
func WithStereo(stereo bool) TextureBuilderOption {
	return func(t *texture) {
		t.arraySize = 1
		if stereo {
			t.arraySize = 2
		}
	}
}
