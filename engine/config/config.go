// Package config loads engine settings from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/texture"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("config: unsupported file extension")

// Config is the complete engine configuration. Zero fields in a loaded file keep their defaults.
type Config struct {
	Renderer       RendererConfig       `toml:"renderer" yaml:"renderer"`
	Media          MediaConfig          `toml:"media" yaml:"media"`
	Mesh           MeshConfig           `toml:"mesh" yaml:"mesh"`
	Lighting       LightingConfig       `toml:"lighting" yaml:"lighting"`
	SurfaceMapping SurfaceMappingConfig `toml:"surface_mapping" yaml:"surface_mapping"`
	Window         WindowConfig         `toml:"window" yaml:"window"`
	Profiler       ProfilerConfig       `toml:"profiler" yaml:"profiler"`
}

type RendererConfig struct {
	BackBufferWidth  int    `toml:"back_buffer_width" yaml:"back_buffer_width"`
	BackBufferHeight int    `toml:"back_buffer_height" yaml:"back_buffer_height"`
	BackBufferFormat string `toml:"back_buffer_format" yaml:"back_buffer_format"`
	SinglePassStereo bool   `toml:"single_pass_stereo" yaml:"single_pass_stereo"`
	HotReload        bool   `toml:"hot_reload" yaml:"hot_reload"`
}

// MediaConfig holds the directories searched for assets that are not found at their given path.
type MediaConfig struct {
	Shaders  string `toml:"shaders" yaml:"shaders"`
	Meshes   string `toml:"meshes" yaml:"meshes"`
	Textures string `toml:"textures" yaml:"textures"`
}

// MeshConfig tunes the octree built for mesh ray queries.
type MeshConfig struct {
	BVHTargetTriangles int `toml:"bvh_target_triangles" yaml:"bvh_target_triangles"`
	BVHMaxDepth        int `toml:"bvh_max_depth" yaml:"bvh_max_depth"`
}

type LightingConfig struct {
	Ambient       [4]float32 `toml:"ambient" yaml:"ambient"`
	LightPosition [3]float32 `toml:"light_position" yaml:"light_position"`
	LightAt       [3]float32 `toml:"light_at" yaml:"light_at"`
}

type SurfaceMappingConfig struct {
	Workers           int      `toml:"workers" yaml:"workers"`
	QueueSize         int      `toml:"queue_size" yaml:"queue_size"`
	ReprocessInterval Duration `toml:"reprocess_interval" yaml:"reprocess_interval"`
}

type WindowConfig struct {
	Title  string `toml:"title" yaml:"title"`
	Width  int    `toml:"width" yaml:"width"`
	Height int    `toml:"height" yaml:"height"`
}

type ProfilerConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Interval Duration `toml:"interval" yaml:"interval"`
}

// Default returns the configuration used when no file is given.
//
// Returns:
//   - Config: the default configuration
func Default() Config {
	return Config{
		Renderer: RendererConfig{
			BackBufferWidth:  512,
			BackBufferHeight: 512,
			BackBufferFormat: device.FormatBGRA8Unorm.String(),
		},
		Media: MediaConfig{
			Shaders:  shader.DefaultMediaDir,
			Meshes:   mesh.DefaultMediaDir,
			Textures: texture.DefaultMediaDir,
		},
		Mesh: MeshConfig{
			BVHTargetTriangles: mesh.DefaultTargetTriangleCount,
			BVHMaxDepth:        mesh.DefaultMaxDepth,
		},
		Lighting: LightingConfig{
			Ambient:       [4]float32{0.1, 0.1, 0.1, 1},
			LightPosition: [3]float32{7.5, 10, -2.5},
		},
		SurfaceMapping: SurfaceMappingConfig{
			Workers:           2,
			QueueSize:         16,
			ReprocessInterval: Duration(5 * time.Second),
		},
		Window: WindowConfig{
			Title:  "oxy-xr",
			Width:  1280,
			Height: 720,
		},
		Profiler: ProfilerConfig{
			Interval: Duration(time.Second),
		},
	}
}

// Load reads a config file, choosing the decoder by extension: .toml, or .yaml and .yml.
// Values absent from the file keep their defaults.
//
// Parameters:
//   - path: the config file
//
// Returns:
//   - Config: the merged configuration
//   - error: a read, decode or validation error
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return Parse(data, filepath.Ext(path))
}

// Parse decodes data in the format named by ext over the defaults.
//
// Parameters:
//   - data: the encoded config
//   - ext: ".toml", ".yaml" or ".yml"
//
// Returns:
//   - Config: the merged configuration
//   - error: a decode or validation error
func Parse(data []byte, ext string) (Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(ext) {
	case ".toml":
		err = toml.Unmarshal(data, &cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	default:
		return Config{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", ext, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes cfg in the format chosen by the extension of path.
//
// Parameters:
//   - cfg: the configuration
//   - path: the destination file
//
// Returns:
//   - error: an encode or write error
func Save(cfg Config, path string) error {
	var data []byte
	var err error
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		data, err = toml.Marshal(cfg)
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate reports the first setting that cannot be applied.
func (c Config) Validate() error {
	var errs []error
	if c.Renderer.BackBufferWidth <= 0 || c.Renderer.BackBufferHeight <= 0 {
		errs = append(errs, fmt.Errorf("config: back buffer size %dx%d", c.Renderer.BackBufferWidth, c.Renderer.BackBufferHeight))
	}
	if _, err := c.BackBufferFormat(); err != nil {
		errs = append(errs, err)
	}
	if c.Mesh.BVHTargetTriangles <= 0 || c.Mesh.BVHMaxDepth < 0 {
		errs = append(errs, fmt.Errorf("config: bvh target %d depth %d", c.Mesh.BVHTargetTriangles, c.Mesh.BVHMaxDepth))
	}
	if c.SurfaceMapping.Workers <= 0 || c.SurfaceMapping.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("config: surface mapping workers %d queue %d", c.SurfaceMapping.Workers, c.SurfaceMapping.QueueSize))
	}
	if c.SurfaceMapping.ReprocessInterval < 0 {
		errs = append(errs, fmt.Errorf("config: negative reprocess interval %s", c.SurfaceMapping.ReprocessInterval))
	}
	return errors.Join(errs...)
}

// BackBufferFormat parses Renderer.BackBufferFormat.
func (c Config) BackBufferFormat() (device.Format, error) {
	return device.ParseFormat(c.Renderer.BackBufferFormat)
}

// MeshOptions returns the mesh builder options carrying the media directory and octree settings.
func (c Config) MeshOptions() []mesh.MeshBuilderOption {
	return []mesh.MeshBuilderOption{
		mesh.WithMediaDir(c.Media.Meshes),
		mesh.WithBVH(c.Mesh.BVHTargetTriangles, c.Mesh.BVHMaxDepth),
	}
}
