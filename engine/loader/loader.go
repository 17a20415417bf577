package loader

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// loader is the implementation of the Loader interface.
type loader struct {
	mu sync.RWMutex

	logger   *slog.Logger
	mediaDir string

	cache map[string]*Scene
}

// Loader imports static glTF 2.0 geometry (.gltf with embedded or external buffers, or .glb) and
// caches the result by name.
type Loader interface {
	// Load imports a file and caches the result by path. A path that does not exist is retried under
	// the media directory. A cached scene is returned without touching the file system.
	//
	// Parameters:
	//   - path: the .gltf or .glb file
	//
	// Returns:
	//   - *Scene: the imported geometry
	//   - error: error if the file cannot be read or decoded
	Load(path string) (*Scene, error)

	// LoadReader imports a glTF document or GLB container from r and caches it by name.
	//
	// Parameters:
	//   - name: the cache key
	//   - r: the document data; GLB is detected by its magic
	//   - baseDir: the directory external buffer URIs resolve against
	//
	// Returns:
	//   - *Scene: the imported geometry
	//   - error: error if decoding fails
	LoadReader(name string, r io.Reader, baseDir string) (*Scene, error)

	// Get returns a cached scene, or nil.
	Get(name string) *Scene

	// Scenes returns a copy of the cache.
	Scenes() map[string]*Scene

	// Evict drops a cached scene.
	Evict(name string)
}

var _ Loader = &loader{}

// NewLoader creates a Loader with the given options applied.
//
// Parameters:
//   - options: a variadic list of LoaderBuilderOption functions to configure the Loader
//
// Returns:
//   - Loader: the new loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		logger:   slog.Default(),
		mediaDir: DefaultMediaDir,
		cache:    make(map[string]*Scene),
	}
	for _, option := range options {
		option(l)
	}
	return l
}

// DefaultMediaDir is searched for model files that do not exist at the given path.
const DefaultMediaDir = "Media/Meshes"

// IsSupported reports whether path has a glTF extension.
func IsSupported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf", ".glb":
		return true
	}
	return false
}

// Decode imports a glTF document or GLB container without caching it.
//
// Parameters:
//   - name: the scene name used when the file names none
//   - data: the file contents
//   - baseDir: the directory external buffer URIs resolve against
//
// Returns:
//   - *Scene: the imported geometry
//   - error: error if decoding fails
func Decode(name string, data []byte, baseDir string) (*Scene, error) {
	f, err := parseGLTF(data, baseDir)
	if err != nil {
		return nil, err
	}
	return f.extractScene(name)
}

func (l *loader) Load(path string) (*Scene, error) {
	if s := l.Get(path); s != nil {
		return s, nil
	}
	if !IsSupported(path) {
		return nil, fmt.Errorf("%w: model format %q", ErrUnsupported, filepath.Ext(path))
	}

	resolved := path
	if _, err := os.Stat(resolved); err != nil && !filepath.IsAbs(path) && l.mediaDir != "" {
		resolved = filepath.Join(l.mediaDir, path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	s, err := Decode(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), data, filepath.Dir(resolved))
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	l.store(path, s)
	return s, nil
}

func (l *loader) LoadReader(name string, r io.Reader, baseDir string) (*Scene, error) {
	if s := l.Get(name); s != nil {
		return s, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", name, err)
	}
	s, err := Decode(name, data, baseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load from reader %q: %w", name, err)
	}
	l.store(name, s)
	return s, nil
}

func (l *loader) store(key string, s *Scene) {
	l.mu.Lock()
	l.cache[key] = s
	l.mu.Unlock()

	l.logger.Debug("model loaded",
		slog.String("name", key),
		slog.Int("primitives", len(s.Primitives)),
		slog.Int("triangles", s.TriangleCount()),
	)
	if s.Skipped > 0 {
		l.logger.Warn("non-triangle primitives skipped", slog.String("name", key), slog.Int("count", s.Skipped))
	}
}

func (l *loader) Get(name string) *Scene {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cache[name]
}

func (l *loader) Scenes() map[string]*Scene {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make(map[string]*Scene, len(l.cache))
	for k, v := range l.cache {
		result[k] = v
	}
	return result
}

func (l *loader) Evict(name string) {
	l.mu.Lock()
	delete(l.cache, name)
	l.mu.Unlock()
}
