package wgpu_device

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/cogentcore/webgpu/wgpu"
)

// swapChainHandle is the native handle reported for the surface image. It is stable until Resize.
const swapChainHandle uintptr = 1

type gpuBuffer struct {
	label string
	kind  device.BufferKind
	size  uint64
	buf   *wgpu.Buffer

	// usedGen is the frame encoder generation of the last draw reading the buffer
	usedGen uint64
}

func (b *gpuBuffer) Label() string           { return b.label }
func (b *gpuBuffer) Kind() device.BufferKind { return b.kind }
func (b *gpuBuffer) Size() uint64            { return b.size }

func (b *gpuBuffer) Release() {
	if b.buf != nil {
		b.buf.Release()
		b.buf = nil
	}
}

type gpuShader struct {
	desc   device.ShaderDesc
	module *wgpu.ShaderModule

	uniforms []device.ResourceBinding
	textures []device.ResourceBinding
	samplers []device.ResourceBinding
}

func newGPUShader(desc device.ShaderDesc, module *wgpu.ShaderModule) *gpuShader {
	s := &gpuShader{desc: desc, module: module}
	for _, b := range desc.Bindings {
		switch b.Kind {
		case device.ResourceUniform:
			s.uniforms = append(s.uniforms, b)
		case device.ResourceTexture, device.ResourceDepthTexture:
			s.textures = append(s.textures, b)
		case device.ResourceSampler, device.ResourceComparisonSampler:
			s.samplers = append(s.samplers, b)
		}
	}
	return s
}

func (s *gpuShader) Label() string       { return s.desc.Label }
func (s *gpuShader) Stage() device.Stage { return s.desc.Stage }

func (s *gpuShader) Release() {
	if s.module != nil {
		s.module.Release()
		s.module = nil
	}
}

type gpuTexture struct {
	desc   device.TextureDesc
	handle uintptr
	tex    *wgpu.Texture

	// swapChain marks the proxy for the surface image; tex is replaced every frame.
	swapChain bool

	// staging textures live on the CPU; readback is used for GPU to CPU copies.
	mirror   []byte
	readback *wgpu.Buffer
}

func (t *gpuTexture) Label() string              { return t.desc.Label }
func (t *gpuTexture) Width() int                 { return t.desc.Width }
func (t *gpuTexture) Height() int                { return t.desc.Height }
func (t *gpuTexture) ArraySize() int             { return t.desc.ArraySize }
func (t *gpuTexture) Format() device.Format      { return t.desc.Format }
func (t *gpuTexture) Usage() device.TextureUsage { return t.desc.Usage }
func (t *gpuTexture) Handle() uintptr            { return t.handle }

func (t *gpuTexture) Release() {
	if t.swapChain {
		return
	}
	if t.tex != nil {
		t.tex.Release()
		t.tex = nil
	}
	if t.readback != nil {
		t.readback.Release()
		t.readback = nil
	}
	t.mirror = nil
}

func (t *gpuTexture) rowBytes() int {
	return t.desc.Width * t.desc.Format.BitsPerPixel() / 8
}

type gpuView struct {
	tex        *gpuTexture
	baseLayer  int
	layerCount int
	view       *wgpu.TextureView
}

func (v *gpuView) Texture() device.Texture { return v.tex }
func (v *gpuView) BaseLayer() int          { return v.baseLayer }
func (v *gpuView) LayerCount() int         { return v.layerCount }

func (v *gpuView) Release() {
	if v.view != nil && !v.tex.swapChain {
		v.view.Release()
		v.view = nil
	}
}

type gpuSampler struct {
	comparison bool
	sampler    *wgpu.Sampler
}

func (s *gpuSampler) Comparison() bool { return s.comparison }

func (s *gpuSampler) Release() {
	if s.sampler != nil {
		s.sampler.Release()
		s.sampler = nil
	}
}

// toWGPUFormat maps a device format onto the WebGPU format used to allocate it.
func toWGPUFormat(f device.Format) (wgpu.TextureFormat, error) {
	switch f {
	case device.FormatRGBA8Unorm:
		return wgpu.TextureFormatRGBA8Unorm, nil
	case device.FormatRGBA8UnormSrgb:
		return wgpu.TextureFormatRGBA8UnormSrgb, nil
	case device.FormatBGRA8Unorm:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case device.FormatBGRA8UnormSrgb, device.FormatBGRA8Typeless:
		return wgpu.TextureFormatBGRA8UnormSrgb, nil
	case device.FormatR32Float:
		return wgpu.TextureFormatR32Float, nil
	case device.FormatRG32Float:
		return wgpu.TextureFormatRG32Float, nil
	case device.FormatR16Sint:
		return wgpu.TextureFormatR16Sint, nil
	case device.FormatR16Uint:
		return wgpu.TextureFormatR16Uint, nil
	case device.FormatR8Uint:
		return wgpu.TextureFormatR8Uint, nil
	case device.FormatR8Unorm:
		return wgpu.TextureFormatR8Unorm, nil
	case device.FormatDepth16Unorm:
		return wgpu.TextureFormatDepth16Unorm, nil
	default:
		return wgpu.TextureFormatUndefined, fmt.Errorf("texture format %d has no WebGPU equivalent", int(f))
	}
}

// fromWGPUFormat maps a surface format back to a device format.
func fromWGPUFormat(f wgpu.TextureFormat) device.Format {
	switch f {
	case wgpu.TextureFormatRGBA8Unorm:
		return device.FormatRGBA8Unorm
	case wgpu.TextureFormatRGBA8UnormSrgb:
		return device.FormatRGBA8UnormSrgb
	case wgpu.TextureFormatBGRA8Unorm:
		return device.FormatBGRA8Unorm
	case wgpu.TextureFormatBGRA8UnormSrgb:
		return device.FormatBGRA8UnormSrgb
	default:
		return device.FormatUnknown
	}
}

func toVertexFormat(f device.AttributeFormat) wgpu.VertexFormat {
	switch f {
	case device.AttributeFloat32x2:
		return wgpu.VertexFormatFloat32x2
	case device.AttributeFloat32x3:
		return wgpu.VertexFormatFloat32x3
	default:
		return wgpu.VertexFormatFloat32x4
	}
}

func toVertexLayouts(layout device.InputLayout) []wgpu.VertexBufferLayout {
	out := make([]wgpu.VertexBufferLayout, 0, len(layout.Buffers))
	for _, b := range layout.Buffers {
		step := wgpu.VertexStepModeVertex
		if b.PerInstance {
			step = wgpu.VertexStepModeInstance
		}
		attrs := make([]wgpu.VertexAttribute, 0, len(b.Attributes))
		for _, a := range b.Attributes {
			attrs = append(attrs, wgpu.VertexAttribute{
				Format:         toVertexFormat(a.Format),
				Offset:         a.Offset,
				ShaderLocation: a.Location,
			})
		}
		out = append(out, wgpu.VertexBufferLayout{
			ArrayStride: b.Stride,
			StepMode:    step,
			Attributes:  attrs,
		})
	}
	return out
}

func toBufferUsage(kind device.BufferKind) wgpu.BufferUsage {
	switch kind {
	case device.BufferKindVertex, device.BufferKindInstance:
		return wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst
	case device.BufferKindIndex:
		return wgpu.BufferUsageIndex | wgpu.BufferUsageCopyDst
	default:
		return wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst
	}
}

func toTextureUsage(u device.TextureUsage) wgpu.TextureUsage {
	usage := wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst
	if u.Has(device.UsageShaderResource) {
		usage |= wgpu.TextureUsageTextureBinding
	}
	if u.Has(device.UsageRenderTarget) || u.Has(device.UsageDepthStencil) {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	return usage
}

// alignTo rounds n up to a multiple of align.
func alignTo(n, align int) int {
	return (n + align - 1) / align * align
}
