package device

import "fmt"

// BackendType identifies the Device implementation.
type BackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based device.
	BackendTypeWGPU BackendType = iota

	// BackendTypeRecording selects the CPU recording device used by tests and headless tools.
	BackendTypeRecording
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	PresentModeUncapped
)

// BufferKind selects how a GPU buffer is bound.
type BufferKind int

const (
	// BufferKindVertex holds per-vertex mesh data.
	BufferKindVertex BufferKind = iota
	// BufferKindIndex holds uint32 indices.
	BufferKindIndex
	// BufferKindInstance holds per-instance vertex data.
	BufferKindInstance
	// BufferKindUniform holds shader constants.
	BufferKindUniform
)

// Stage identifies a programmable shader stage.
type Stage int

const (
	// StageVertex is the regular vertex stage.
	StageVertex Stage = iota
	// StageVertexSPS is the single-pass stereo variant of the vertex stage.
	StageVertexSPS
	// StagePixel is the fragment stage.
	StagePixel
	// StageGeometry is the geometry stage. Not every backend supports it.
	StageGeometry
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageVertexSPS:
		return "vertex-sps"
	case StagePixel:
		return "pixel"
	case StageGeometry:
		return "geometry"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Format is a texture pixel format.
type Format int

const (
	FormatUnknown Format = iota
	FormatRGBA8Unorm
	FormatRGBA8UnormSrgb
	FormatBGRA8Unorm
	FormatBGRA8UnormSrgb
	// FormatBGRA8Typeless is only reported by native swap-chain images; wrapping promotes it to sRGB.
	FormatBGRA8Typeless
	FormatR32Float
	FormatRG32Float
	FormatR16Sint
	FormatR16Uint
	FormatR16Unorm
	FormatR8Uint
	FormatR8Unorm
	FormatDepth16Unorm
)

var formatNames = [...]string{
	FormatUnknown:        "unknown",
	FormatRGBA8Unorm:     "rgba8unorm",
	FormatRGBA8UnormSrgb: "rgba8unorm-srgb",
	FormatBGRA8Unorm:     "bgra8unorm",
	FormatBGRA8UnormSrgb: "bgra8unorm-srgb",
	FormatBGRA8Typeless:  "bgra8typeless",
	FormatR32Float:       "r32float",
	FormatRG32Float:      "rg32float",
	FormatR16Sint:        "r16sint",
	FormatR16Uint:        "r16uint",
	FormatR16Unorm:       "r16unorm",
	FormatR8Uint:         "r8uint",
	FormatR8Unorm:        "r8unorm",
	FormatDepth16Unorm:   "depth16unorm",
}

func (f Format) String() string {
	if f < 0 || int(f) >= len(formatNames) {
		return fmt.Sprintf("Format(%d)", int(f))
	}
	return formatNames[f]
}

// ParseFormat returns the format named by s, using the lower-case WebGPU style names of Format.String.
//
// Parameters:
//   - s: the format name
//
// Returns:
//   - Format: the format
//   - error: if s names no format
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if name == s && Format(f) != FormatUnknown {
			return Format(f), nil
		}
	}
	return FormatUnknown, fmt.Errorf("device: unknown format %q", s)
}

// BitsPerPixel returns the size of one texel in bits, or 0 for formats with no CPU layout.
func (f Format) BitsPerPixel() int {
	switch f {
	case FormatRG32Float:
		return 64
	case FormatRGBA8Unorm, FormatRGBA8UnormSrgb, FormatBGRA8Unorm, FormatBGRA8UnormSrgb, FormatBGRA8Typeless, FormatR32Float:
		return 32
	case FormatR16Sint, FormatR16Uint, FormatR16Unorm, FormatDepth16Unorm:
		return 16
	case FormatR8Uint, FormatR8Unorm:
		return 8
	default:
		return 0
	}
}

// IsDepth reports whether the format is a depth format.
func (f Format) IsDepth() bool {
	return f == FormatDepth16Unorm
}

// TextureUsage is a bit set describing how a texture may be used.
type TextureUsage uint32

const (
	// UsageShaderResource allows sampling the texture from shaders.
	UsageShaderResource TextureUsage = 1 << iota
	// UsageRenderTarget allows rendering into the texture.
	UsageRenderTarget
	// UsageDepthStencil marks a depth buffer.
	UsageDepthStencil
	// UsageStaging marks a CPU-visible copy used by Map/Unmap.
	UsageStaging
)

// Has reports whether every bit of o is set in u.
func (u TextureUsage) Has(o TextureUsage) bool {
	return u&o == o
}

// TextureDesc describes a texture to create.
type TextureDesc struct {
	Label     string
	Width     int
	Height    int
	ArraySize int
	MipLevels int
	Format    Format
	Usage     TextureUsage
	// InitialData holds one tightly packed slice per mip level, or nil.
	InitialData [][]byte
}

// ViewDesc selects the array layers a view covers. LayerCount 0 means every layer from BaseLayer.
type ViewDesc struct {
	BaseLayer  int
	LayerCount int
}

// SamplerDesc describes a sampler. Addressing is always wrap.
type SamplerDesc struct {
	Label string
	// Comparison enables a Less comparison with linear filtering, used for shadow maps.
	Comparison bool
}

// BlendMode selects one of the fixed colour blend configurations.
type BlendMode int

const (
	// BlendModeNone disables blending.
	BlendModeNone BlendMode = iota
	// BlendModeAlpha blends with source alpha for colour and alpha.
	BlendModeAlpha
	// BlendModeAdditive adds colour (one, one) and keeps source alpha.
	BlendModeAdditive
	// BlendModeColorWriteDisabled writes depth only.
	BlendModeColorWriteDisabled
)

func (b BlendMode) String() string {
	switch b {
	case BlendModeNone:
		return "none"
	case BlendModeAlpha:
		return "alpha"
	case BlendModeAdditive:
		return "additive"
	case BlendModeColorWriteDisabled:
		return "color-write-disabled"
	default:
		return fmt.Sprintf("blend(%d)", int(b))
	}
}

// Topology is the primitive topology used by indexed draws.
type Topology int

const (
	TopologyTriangleList Topology = iota
	TopologyLineList
)

// AttributeFormat is the data type of one vertex attribute.
type AttributeFormat int

const (
	AttributeFloat32x2 AttributeFormat = iota
	AttributeFloat32x3
	AttributeFloat32x4
)

// Size returns the attribute size in bytes.
func (a AttributeFormat) Size() uint64 {
	switch a {
	case AttributeFloat32x2:
		return 8
	case AttributeFloat32x3:
		return 12
	default:
		return 16
	}
}

// VertexAttribute binds a range of a vertex buffer element to a shader input location.
type VertexAttribute struct {
	Location uint32
	Format   AttributeFormat
	Offset   uint64
}

// VertexBufferLayout describes one vertex buffer slot.
type VertexBufferLayout struct {
	Stride      uint64
	PerInstance bool
	// StepRate is the number of instances drawn per element. 0 and 1 both mean one.
	StepRate   uint32
	Attributes []VertexAttribute
}

// InputLayout describes every vertex buffer slot read by the vertex stage: slot 0 is the mesh,
// slot 1 the instance buffer.
type InputLayout struct {
	Label   string
	Buffers []VertexBufferLayout
}

// ResourceKind classifies a shader resource binding.
type ResourceKind int

const (
	ResourceUniform ResourceKind = iota
	ResourceTexture
	ResourceDepthTexture
	ResourceSampler
	ResourceComparisonSampler
)

// ResourceBinding is one reflected @group/@binding declaration of a shader.
type ResourceBinding struct {
	Name    string
	Group   uint32
	Binding uint32
	Kind    ResourceKind
	// Size is the uniform block size in bytes. Zero for textures and samplers.
	Size uint64
	// Array is true for texture_2d_array declarations.
	Array bool
}

// ShaderDesc is the input to Device.CreateShader.
type ShaderDesc struct {
	Stage      Stage
	Label      string
	Source     string
	EntryPoint string
	Bindings   []ResourceBinding
}

// MappedTexture is the CPU view of a mapped staging texture.
type MappedTexture struct {
	Data     []byte
	RowPitch int
}

// CopyDirection tells the recording device which way a texture copy went.
type CopyDirection int

const (
	// CopyToStaging is a GPU to CPU copy.
	CopyToStaging CopyDirection = iota
	// CopyFromStaging is a CPU to GPU copy.
	CopyFromStaging
)

// Call is one entry of a recording device's call log.
type Call struct {
	Op   string
	Args []any
}

func (c Call) String() string {
	return fmt.Sprintf("%s%v", c.Op, c.Args)
}
