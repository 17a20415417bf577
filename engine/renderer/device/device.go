// Package device abstracts the graphics API consumed by the render layer. The Device interface is a
// small immediate-mode surface (create resources, set state, draw) that sits atop WebGPU in production
// and atop a CPU recording implementation in tests.
package device

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

var (
	// ErrUnsupportedStage is returned when a backend cannot compile a shader for the requested stage.
	ErrUnsupportedStage = errors.New("device: unsupported shader stage")

	// ErrInvalidSize is returned for zero-sized resources or uploads that do not fit their destination.
	ErrInvalidSize = errors.New("device: invalid size")

	// ErrNoFrame is returned by draw and clear calls issued outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("device: no frame in flight")

	// ErrNotStaging is returned when Map or a staging copy is used with a non-staging texture.
	ErrNotStaging = errors.New("device: texture is not a staging texture")

	// ErrUnknownHandle is returned by WrapNativeTexture for handles the device does not own.
	ErrUnknownHandle = errors.New("device: unknown native texture handle")
)

// Buffer is a GPU buffer created by a Device.
type Buffer interface {
	// Label returns the debug label given at creation.
	Label() string

	// Kind returns how the buffer is bound.
	Kind() BufferKind

	// Size returns the buffer capacity in bytes.
	Size() uint64

	// Release frees the GPU memory. The buffer must not be used afterwards.
	Release()
}

// ShaderModule is a compiled shader for a single stage.
type ShaderModule interface {
	// Label returns the debug label given at creation, normally the source file name.
	Label() string

	// Stage returns the stage the module was compiled for.
	Stage() Stage

	// Release frees the module.
	Release()
}

// Texture is a 2D (array) texture created or wrapped by a Device.
type Texture interface {
	Label() string
	Width() int
	Height() int
	ArraySize() int
	Format() Format
	Usage() TextureUsage

	// Handle returns a stable identity for the underlying native image.
	Handle() uintptr

	Release()
}

// TextureView is a view over a range of array layers of a Texture.
type TextureView interface {
	// Texture returns the texture the view was created from.
	Texture() Texture

	// BaseLayer returns the first array layer covered by the view.
	BaseLayer() int

	// LayerCount returns the number of array layers covered by the view.
	LayerCount() int

	Release()
}

// Sampler is a texture sampler.
type Sampler interface {
	// Comparison reports whether the sampler performs depth comparison.
	Comparison() bool

	Release()
}

// Device is the graphics-device handle the render layer consumes. All state setters are immediate:
// the most recent value is used by the next DrawIndexedInstanced call.
//
// Devices are not safe for concurrent use; every call must come from the render thread.
type Device interface {
	// CreateBuffer allocates a GPU buffer.
	//
	// Parameters:
	//   - label: debug label
	//   - kind: how the buffer will be bound
	//   - size: capacity in bytes, must be greater than zero
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: ErrInvalidSize for a zero size, or a backend error
	CreateBuffer(label string, kind BufferKind, size uint64) (Buffer, error)

	// WriteBuffer copies data into buf starting at offset.
	//
	// Parameters:
	//   - buf: the destination buffer
	//   - offset: destination offset in bytes
	//   - data: bytes to copy
	//
	// Returns:
	//   - error: ErrInvalidSize if the write does not fit
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// CreateShader compiles a shader module.
	//
	// Parameters:
	//   - desc: stage, source and reflected resource bindings
	//
	// Returns:
	//   - ShaderModule: the compiled module
	//   - error: ErrUnsupportedStage or a compilation error
	CreateShader(desc ShaderDesc) (ShaderModule, error)

	// CreateTexture allocates a texture.
	//
	// Parameters:
	//   - desc: size, format, usage and optional per-mip initial data
	//
	// Returns:
	//   - Texture: the new texture
	//   - error: ErrInvalidSize or a backend error
	CreateTexture(desc TextureDesc) (Texture, error)

	// CreateStagingTexture allocates a single-layer CPU-visible copy target matching src.
	//
	// Parameters:
	//   - src: the texture whose size and format are copied
	//
	// Returns:
	//   - Texture: the staging texture
	//   - error: a backend error
	CreateStagingTexture(src Texture) (Texture, error)

	// CopyTexture copies layer 0, mip 0 of src into dst. Exactly one of the two must be a staging texture.
	//
	// Parameters:
	//   - dst: the destination texture
	//   - src: the source texture
	//
	// Returns:
	//   - error: ErrNotStaging if neither side is a staging texture
	CopyTexture(dst, src Texture) error

	// Map exposes the bytes of a staging texture to the CPU. Writes are kept until the next
	// CopyTexture from the staging texture.
	//
	// Parameters:
	//   - staging: a texture created by CreateStagingTexture
	//
	// Returns:
	//   - MappedTexture: the texel bytes and row pitch
	//   - error: ErrNotStaging for other textures
	Map(staging Texture) (MappedTexture, error)

	// Unmap ends CPU access to a staging texture.
	//
	// Parameters:
	//   - staging: the mapped staging texture
	Unmap(staging Texture)

	// WrapNativeTexture returns a Texture for a native image owned by the presentation layer.
	//
	// Parameters:
	//   - handle: the native image identity
	//
	// Returns:
	//   - Texture: a non-owning wrapper
	//   - error: ErrUnknownHandle if the device does not recognise the handle
	WrapNativeTexture(handle uintptr) (Texture, error)

	// BackBufferHandle returns the native handle of the image the current frame presents.
	//
	// Returns:
	//   - uintptr: the handle, stable until the next Resize
	BackBufferHandle() uintptr

	// CreateView creates a view over a range of layers of tex.
	//
	// Parameters:
	//   - tex: the texture
	//   - desc: the layer range
	//
	// Returns:
	//   - TextureView: the view
	//   - error: a backend error
	CreateView(tex Texture, desc ViewDesc) (TextureView, error)

	// CreateSampler creates a wrap-addressed sampler.
	//
	// Parameters:
	//   - desc: sampler options
	//
	// Returns:
	//   - Sampler: the sampler
	//   - error: a backend error
	CreateSampler(desc SamplerDesc) (Sampler, error)

	// SetRenderTargets binds colour targets and an optional depth target for subsequent draws.
	//
	// Parameters:
	//   - colors: colour target views, in slot order
	//   - depth: the depth view, or nil
	SetRenderTargets(colors []TextureView, depth TextureView)

	// SetViewport sets the rasterizer viewport.
	SetViewport(vp common.Viewport)

	// SetBlendMode sets the colour blend configuration.
	SetBlendMode(mode BlendMode)

	// SetDepthTest enables or disables depth testing and writing.
	SetDepthTest(enabled bool)

	// SetBackfaceCulling enables culling of back faces (clockwise triangles are front-facing).
	SetBackfaceCulling(enabled bool)

	// BindShader sets the active module for a stage. A nil module unbinds the stage.
	//
	// Parameters:
	//   - stage: the stage to bind
	//   - module: the module, or nil
	BindShader(stage Stage, module ShaderModule)

	// SetConstantBuffer binds a uniform buffer to a constant slot of a stage. Slot i is the i-th
	// uniform declaration of the bound shader.
	//
	// Parameters:
	//   - stage: the stage
	//   - slot: the constant slot
	//   - buf: the uniform buffer
	SetConstantBuffer(stage Stage, slot int, buf Buffer)

	// SetShaderResource binds a texture view and sampler to a resource slot of a stage. Slot i is the
	// i-th texture declaration of the bound shader, paired with its i-th sampler declaration.
	//
	// Parameters:
	//   - stage: the stage
	//   - slot: the resource slot
	//   - view: the texture view
	//   - sampler: the sampler
	SetShaderResource(stage Stage, slot int, view TextureView, sampler Sampler)

	// ClearShaderResources unbinds every texture resource of every stage.
	ClearShaderResources()

	// SetInputLayout sets the vertex input layout.
	SetInputLayout(layout InputLayout)

	// SetVertexBuffers binds the mesh vertex buffer (slot 0) and the instance buffer (slot 1).
	SetVertexBuffers(mesh, instance Buffer)

	// SetIndexBuffer binds a uint32 index buffer.
	SetIndexBuffer(buf Buffer)

	// SetTopology sets the primitive topology.
	SetTopology(topology Topology)

	// ClearTarget clears a colour view to color.
	ClearTarget(view TextureView, color common.Vec4)

	// ClearDepth clears a depth view to 1.
	ClearDepth(view TextureView)

	// DrawIndexedInstanced draws indexCount indices instanceCount times with the current state.
	//
	// Parameters:
	//   - indexCount: number of indices
	//   - instanceCount: number of instances
	//
	// Returns:
	//   - error: ErrNoFrame outside a frame, or a pipeline creation error
	DrawIndexedInstanced(indexCount, instanceCount uint32) error

	// BeginFrame acquires the back buffer and opens command recording for a frame.
	//
	// Returns:
	//   - error: an error if the back buffer could not be acquired
	BeginFrame() error

	// EndFrame closes and submits the frame's commands.
	EndFrame()

	// Present shows the frame's back buffer.
	Present()

	// Resize reconfigures the presentation surface.
	//
	// Parameters:
	//   - width: new width in pixels
	//   - height: new height in pixels
	Resize(width, height int)

	// SupportsSinglePassStereo reports whether vertex shaders can select the render target array slice,
	// allowing both eyes to be drawn by one instanced call.
	//
	// Returns:
	//   - bool: true if supported
	SupportsSinglePassStereo() bool

	// Release frees every resource owned by the device.
	Release()
}
