package shader

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

type cacheKey struct {
	stage    Stage
	filename string
}

// cache is the implementation of the Cache interface.
type cache struct {
	dev     device.Device
	opts    []ShaderBuilderOption
	media   string
	shaders map[cacheKey]Shader
}

// Cache shares loaded shaders by (stage, filename). It is owned by one render context and is
// only touched from the render thread.
type Cache interface {
	// Load returns the cached shader for stage and filename, loading it on first use.
	//
	// Parameters:
	//   - stage: the shader stage
	//   - filename: the shader file
	//
	// Returns:
	//   - Shader: the shared shader
	//   - error: any load error; failures are not cached
	Load(stage Stage, filename string) (Shader, error)

	// Lookup returns a cached shader without loading it.
	Lookup(stage Stage, filename string) (Shader, bool)

	// HasFile reports whether filename resolves to a readable file, directly or in the media directory.
	HasFile(filename string) bool

	// Reload reloads every cached shader whose resolved path is one of paths.
	//
	// Parameters:
	//   - paths: changed files
	//
	// Returns:
	//   - int: the number of shaders reloaded
	//   - error: the joined reload errors
	Reload(paths []string) (int, error)

	// Shaders returns every cached shader ordered by filename then stage.
	Shaders() []Shader

	// Release frees every cached shader and empties the cache.
	Release()
}

var _ Cache = &cache{}

// NewCache creates an empty shader cache. The options are applied to every shader it loads.
//
// Parameters:
//   - dev: the device shaders are compiled on
//   - opts: options passed to every NewShader call
//
// Returns:
//   - Cache: the cache
func NewCache(dev device.Device, opts ...ShaderBuilderOption) Cache {
	probe := &shader{mediaDir: DefaultMediaDir}
	for _, opt := range opts {
		opt(probe)
	}
	return &cache{
		dev:     dev,
		opts:    opts,
		media:   probe.mediaDir,
		shaders: make(map[cacheKey]Shader),
	}
}

func (c *cache) Load(stage Stage, filename string) (Shader, error) {
	key := cacheKey{stage, filename}
	if s, ok := c.shaders[key]; ok {
		return s, nil
	}
	s, err := NewShader(c.dev, stage, filename, c.opts...)
	if err != nil {
		return nil, err
	}
	c.shaders[key] = s
	return s, nil
}

func (c *cache) Lookup(stage Stage, filename string) (Shader, bool) {
	s, ok := c.shaders[cacheKey{stage, filename}]
	return s, ok
}

func (c *cache) HasFile(filename string) bool {
	info, err := os.Stat(resolvePath(filename, c.media))
	return err == nil && !info.IsDir()
}

func (c *cache) Reload(paths []string) (int, error) {
	if len(paths) == 0 {
		return 0, nil
	}
	changed := make(map[string]bool, len(paths))
	for _, p := range paths {
		changed[absPath(p)] = true
	}

	var errs []error
	reloaded := 0
	for _, s := range c.Shaders() {
		if !changed[absPath(s.Path())] {
			continue
		}
		if err := s.Reload(); err != nil {
			errs = append(errs, err)
			continue
		}
		reloaded++
	}
	return reloaded, errors.Join(errs...)
}

func (c *cache) Shaders() []Shader {
	out := make([]Shader, 0, len(c.shaders))
	for _, s := range c.shaders {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Filename() != out[j].Filename() {
			return out[i].Filename() < out[j].Filename()
		}
		return out[i].Stage() < out[j].Stage()
	})
	return out
}

func (c *cache) Release() {
	for _, s := range c.shaders {
		s.Release()
	}
	c.shaders = make(map[cacheKey]Shader)
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}
