package shader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

// Stage aliases device.Stage so callers do not need to import the device package to name a stage.
type Stage = device.Stage

const (
	StageVertex    = device.StageVertex
	StageVertexSPS = device.StageVertexSPS
	StagePixel     = device.StagePixel
	StageGeometry  = device.StageGeometry
)

// DefaultMediaDir is searched when a shader file is not found at the given path.
const DefaultMediaDir = "Media/Shaders"

// ErrEmptySource is returned for shader files without any source text.
var ErrEmptySource = errors.New("shader: empty source")

// Constant is one reflected uniform member.
type Constant struct {
	ID     ConstantID
	Offset uint64
	Size   uint64

	// ElementCount is N for array<T, N> members and 0 otherwise. A count of 2 holds the
	// left eye value followed by the right eye value.
	ElementCount int
}

// ConstantBuffer is one reflected uniform block with its CPU staging copy and GPU buffer.
type ConstantBuffer struct {
	Name      string
	Group     uint32
	Binding   uint32
	Size      uint64
	Constants []Constant

	staging []byte
	buffer  device.Buffer
}

// Staging returns the CPU copy uploaded by Shader.Upload.
func (cb *ConstantBuffer) Staging() []byte {
	return cb.staging
}

// Buffer returns the GPU uniform buffer.
func (cb *ConstantBuffer) Buffer() device.Buffer {
	return cb.buffer
}

// Write copies data into the staging copy of element i of c. Elements of a non-array constant
// other than 0 are ignored, and data longer than one element is truncated.
//
// Parameters:
//   - c: the constant to write
//   - element: the array element, 0 for non-array constants
//   - data: the little-endian value bytes
func (cb *ConstantBuffer) Write(c Constant, element int, data []byte) {
	count := max(c.ElementCount, 1)
	if element < 0 || element >= count {
		return
	}
	stride := c.Size / uint64(count)
	start := c.Offset + uint64(element)*stride
	if start >= uint64(len(cb.staging)) {
		return
	}
	end := min(start+stride, uint64(len(cb.staging)))
	copy(cb.staging[start:end], data)
}

// shader is the implementation of the Shader interface.
type shader struct {
	dev      device.Device
	logger   *slog.Logger
	mediaDir string

	stage      Stage
	filename   string
	path       string
	source     string
	entryPoint string

	module          device.ShaderModule
	bindings        []device.ResourceBinding
	constantBuffers []*ConstantBuffer

	pp PreProcessor
}

// Shader is a compiled WGSL shader for one stage whose uniform blocks have been reflected into
// constant buffers. Every uniform member is mapped to a ConstantID; the draw call fills the staging
// copies from the render state and uploads them right before the draw.
type Shader interface {
	// Stage returns the stage this shader was compiled for.
	Stage() Stage

	// Filename returns the file name the shader was requested with.
	Filename() string

	// Path returns the resolved path the source was read from.
	Path() string

	// Source returns the pre-processed WGSL source.
	Source() string

	// EntryPoint returns the parsed entry point, or an empty string for the device default.
	EntryPoint() string

	// Module returns the compiled device module.
	Module() device.ShaderModule

	// Bindings returns every reflected resource declaration in source order.
	Bindings() []device.ResourceBinding

	// ConstantBuffers returns the reflected uniform blocks. Index i is bound to constant buffer slot i.
	ConstantBuffers() []*ConstantBuffer

	// Bind makes this shader active for its stage and binds every constant buffer to its slot.
	Bind()

	// Upload copies the staging data of constant buffer i to the GPU and binds it.
	//
	// Parameters:
	//   - i: the constant buffer index
	//
	// Returns:
	//   - error: if i is out of range or the write fails
	Upload(i int) error

	// Reload re-reads, re-reflects and recompiles the shader. The previous state is kept on failure.
	//
	// Returns:
	//   - error: any load error
	Reload() error

	// Release frees the module and every constant buffer.
	Release()
}

var _ Shader = &shader{}

// NewShader loads, reflects and compiles a WGSL shader. The file is read from filename, or from
// the media directory joined with filename when the first read fails.
//
// Parameters:
//   - dev: the device that compiles the module and owns the constant buffers
//   - stage: the stage to compile for
//   - filename: the shader file
//   - opts: a variadic list of ShaderBuilderOption functions
//
// Returns:
//   - Shader: the loaded shader
//   - error: a read, pre-process, reflection or compile error; unknown uniform members produce an *UnknownConstantError
func NewShader(dev device.Device, stage Stage, filename string, opts ...ShaderBuilderOption) (Shader, error) {
	s := &shader{
		dev:      dev,
		logger:   slog.Default(),
		mediaDir: DefaultMediaDir,
		stage:    stage,
		filename: filename,
		pp:       NewPreProcessor(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.load(); err != nil {
		return nil, err
	}
	s.logger.Debug("shader loaded", "file", s.path, "stage", stage, "constantBuffers", len(s.constantBuffers))
	return s, nil
}

func (s *shader) Stage() Stage {
	return s.stage
}

func (s *shader) Filename() string {
	return s.filename
}

func (s *shader) Path() string {
	return s.path
}

func (s *shader) Source() string {
	return s.source
}

func (s *shader) EntryPoint() string {
	return s.entryPoint
}

func (s *shader) Module() device.ShaderModule {
	return s.module
}

func (s *shader) Bindings() []device.ResourceBinding {
	return s.bindings
}

func (s *shader) ConstantBuffers() []*ConstantBuffer {
	return s.constantBuffers
}

func (s *shader) Bind() {
	s.dev.BindShader(s.stage, s.module)
	for i, cb := range s.constantBuffers {
		s.dev.SetConstantBuffer(s.stage, i, cb.buffer)
	}
}

func (s *shader) Upload(i int) error {
	if i < 0 || i >= len(s.constantBuffers) {
		return fmt.Errorf("shader %s: constant buffer %d out of range", s.filename, i)
	}
	cb := s.constantBuffers[i]
	if err := s.dev.WriteBuffer(cb.buffer, 0, cb.staging); err != nil {
		return fmt.Errorf("shader %s: upload %s: %w", s.filename, cb.Name, err)
	}
	s.dev.SetConstantBuffer(s.stage, i, cb.buffer)
	return nil
}

func (s *shader) Reload() error {
	prev := *s
	if err := s.load(); err != nil {
		*s = prev
		return err
	}
	prev.releaseResources()
	s.logger.Info("shader reloaded", "file", s.path, "stage", s.stage)
	return nil
}

func (s *shader) Release() {
	s.releaseResources()
	s.module = nil
	s.constantBuffers = nil
}

func (s *shader) releaseResources() {
	if s.module != nil {
		s.module.Release()
	}
	for _, cb := range s.constantBuffers {
		if cb.buffer != nil {
			cb.buffer.Release()
		}
	}
}

// resolvePath returns filename if it exists, otherwise the media directory variant.
func resolvePath(filename, mediaDir string) string {
	if _, err := os.Stat(filename); err == nil || mediaDir == "" {
		return filename
	}
	return filepath.Join(mediaDir, filename)
}

// load reads, reflects and compiles the shader, replacing the current state on success.
func (s *shader) load() error {
	path := resolvePath(s.filename, s.mediaDir)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("shader: read %q: %w", s.filename, err)
	}
	if len(data) == 0 {
		return fmt.Errorf("shader %s: %w", path, ErrEmptySource)
	}

	source, err := s.pp.Process(string(data))
	if err != nil {
		return fmt.Errorf("shader %s: pre-process: %w", path, err)
	}

	parsed, err := parseBindings(source)
	if err != nil {
		return fmt.Errorf("shader %s: %w", path, err)
	}

	bindings := make([]device.ResourceBinding, 0, len(parsed))
	var layouts []parsedBinding
	for _, pb := range parsed {
		bindings = append(bindings, pb.binding)
		if pb.binding.Kind == device.ResourceUniform {
			layouts = append(layouts, pb)
		}
	}

	// reflect before touching the device so a content error leaves nothing to release
	constantBuffers := make([]*ConstantBuffer, 0, len(layouts))
	for _, pb := range layouts {
		cb := &ConstantBuffer{
			Name:    pb.binding.Name,
			Group:   pb.binding.Group,
			Binding: pb.binding.Binding,
			Size:    pb.binding.Size,
			staging: make([]byte, pb.binding.Size),
		}
		for _, m := range pb.members {
			id, ok := LookupConstant(m.name)
			if !ok {
				return &UnknownConstantError{File: path, Variable: m.name}
			}
			cb.Constants = append(cb.Constants, Constant{
				ID:           id,
				Offset:       m.offset,
				Size:         m.size,
				ElementCount: m.elementCount,
			})
		}
		constantBuffers = append(constantBuffers, cb)
	}

	entryPoint := parseEntryPoint(source, s.stage)
	module, err := s.dev.CreateShader(device.ShaderDesc{
		Stage:      s.stage,
		Label:      s.filename,
		Source:     source,
		EntryPoint: entryPoint,
		Bindings:   bindings,
	})
	if err != nil {
		return fmt.Errorf("shader %s: compile: %w", path, err)
	}

	for i, cb := range constantBuffers {
		buf, err := s.dev.CreateBuffer(fmt.Sprintf("%s:%s", s.filename, cb.Name), device.BufferKindUniform, cb.Size)
		if err != nil {
			module.Release()
			for _, created := range constantBuffers[:i] {
				created.buffer.Release()
			}
			return fmt.Errorf("shader %s: constant buffer %s: %w", path, cb.Name, err)
		}
		cb.buffer = buf
	}

	s.path = path
	s.source = source
	s.entryPoint = entryPoint
	s.module = module
	s.bindings = bindings
	s.constantBuffers = constantBuffers
	return nil
}
