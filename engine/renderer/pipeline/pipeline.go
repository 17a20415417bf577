package pipeline

import (
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"
)

// pipeline is the implementation of the Pipeline interface.
// It holds the fixed-function state a render pipeline is created from and, once built, the WebGPU object.
type pipeline struct {
	// key uniquely identifies the state combination, used by the device's pipeline cache
	key string

	vertexModule, fragmentModule *wgpu.ShaderModule
	vertexEntry, fragmentEntry   string
	vertexBuffers                []wgpu.VertexBufferLayout
	colorFormats                 []wgpu.TextureFormat
	depthFormat                  wgpu.TextureFormat

	renderPipeline *wgpu.RenderPipeline

	depthTestEnabled  bool
	depthWriteEnabled bool
	blendEnabled      bool
	cullMode          wgpu.CullMode
	topology          wgpu.PrimitiveTopology
	frontFace         wgpu.FrontFace
	writeMask         wgpu.ColorWriteMask
	blendState        *wgpu.BlendState
}

// Pipeline is one render pipeline state combination: shader modules, vertex buffer layouts, target
// formats, and the depth, blend, cull and topology settings. The device builds a wgpu.RenderPipeline from
// it the first time the combination is drawn with.
type Pipeline interface {
	// Key returns the cache key of this state combination.
	//
	// Returns:
	//   - string: the key
	Key() string

	// RenderPipeline returns the created WebGPU pipeline, or nil before SetRenderPipeline.
	//
	// Returns:
	//   - *wgpu.RenderPipeline: the pipeline
	RenderPipeline() *wgpu.RenderPipeline

	// SetRenderPipeline stores the created WebGPU pipeline.
	//
	// Parameters:
	//   - rp: the pipeline
	SetRenderPipeline(rp *wgpu.RenderPipeline)

	// Descriptor assembles the creation descriptor for this combination.
	//
	// Parameters:
	//   - layout: the pipeline layout built from the shaders' reflected bindings
	//
	// Returns:
	//   - *wgpu.RenderPipelineDescriptor: the descriptor
	Descriptor(layout *wgpu.PipelineLayout) *wgpu.RenderPipelineDescriptor

	// DepthTestEnabled returns whether depth testing is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if depth testing is enabled, false otherwise
	DepthTestEnabled() bool

	// BlendEnabled returns whether blending is enabled for this pipeline.
	//
	// Returns:
	//   - bool: true if blending is enabled, false otherwise
	BlendEnabled() bool

	CullMode() wgpu.CullMode
	Topology() wgpu.PrimitiveTopology
	WriteMask() wgpu.ColorWriteMask

	// Release frees the WebGPU pipeline.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a pipeline state combination. Unlike a WebGPU default, front faces are clockwise.
//
// Parameters:
//   - opts: a variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: a new Pipeline with its key derived from the configured state
func NewPipeline(opts ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		vertexEntry:       "vs_main",
		fragmentEntry:     "fs_main",
		depthFormat:       wgpu.TextureFormatUndefined,
		depthTestEnabled:  true,
		depthWriteEnabled: true,
		cullMode:          wgpu.CullModeBack,
		topology:          wgpu.PrimitiveTopologyTriangleList,
		frontFace:         wgpu.FrontFaceCW,
		writeMask:         wgpu.ColorWriteMaskAll,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.key = p.computeKey()
	return p
}

func (p *pipeline) computeKey() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "vs=%p:%s fs=%p:%s", p.vertexModule, p.vertexEntry, p.fragmentModule, p.fragmentEntry)
	for i, vb := range p.vertexBuffers {
		fmt.Fprintf(&sb, " vb%d=%d/%d", i, vb.ArrayStride, vb.StepMode)
		for _, a := range vb.Attributes {
			fmt.Fprintf(&sb, ",%d:%d@%d", a.ShaderLocation, a.Format, a.Offset)
		}
	}
	for _, f := range p.colorFormats {
		fmt.Fprintf(&sb, " c=%d", f)
	}
	fmt.Fprintf(&sb, " d=%d dt=%t dw=%t", p.depthFormat, p.depthTestEnabled, p.depthWriteEnabled)
	fmt.Fprintf(&sb, " cull=%d topo=%d ff=%d mask=%d", p.cullMode, p.topology, p.frontFace, p.writeMask)
	if p.blendEnabled && p.blendState != nil {
		c, a := p.blendState.Color, p.blendState.Alpha
		fmt.Fprintf(&sb, " blend=%d,%d,%d/%d,%d,%d", c.SrcFactor, c.DstFactor, c.Operation, a.SrcFactor, a.DstFactor, a.Operation)
	}
	return sb.String()
}

func (p *pipeline) Key() string {
	return p.key
}

func (p *pipeline) RenderPipeline() *wgpu.RenderPipeline {
	return p.renderPipeline
}

func (p *pipeline) SetRenderPipeline(rp *wgpu.RenderPipeline) {
	p.renderPipeline = rp
}

func (p *pipeline) DepthTestEnabled() bool {
	return p.depthTestEnabled
}

func (p *pipeline) BlendEnabled() bool {
	return p.blendEnabled
}

func (p *pipeline) CullMode() wgpu.CullMode {
	return p.cullMode
}

func (p *pipeline) Topology() wgpu.PrimitiveTopology {
	return p.topology
}

func (p *pipeline) WriteMask() wgpu.ColorWriteMask {
	return p.writeMask
}

func (p *pipeline) Descriptor(layout *wgpu.PipelineLayout) *wgpu.RenderPipelineDescriptor {
	desc := &wgpu.RenderPipelineDescriptor{
		Label:  "Render Pipeline",
		Layout: layout,
		Vertex: wgpu.VertexState{
			Module:     p.vertexModule,
			EntryPoint: p.vertexEntry,
			Buffers:    p.vertexBuffers,
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  p.topology,
			FrontFace: p.frontFace,
			CullMode:  p.cullMode,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}

	if p.fragmentModule != nil {
		targets := make([]wgpu.ColorTargetState, 0, len(p.colorFormats))
		for _, f := range p.colorFormats {
			state := wgpu.ColorTargetState{
				Format:    f,
				WriteMask: p.writeMask,
			}
			if p.blendEnabled {
				state.Blend = p.blendState
			}
			targets = append(targets, state)
		}
		desc.Fragment = &wgpu.FragmentState{
			Module:     p.fragmentModule,
			EntryPoint: p.fragmentEntry,
			Targets:    targets,
		}
	}

	if p.depthFormat != wgpu.TextureFormatUndefined {
		depthCompare := wgpu.CompareFunctionLess
		if !p.depthTestEnabled {
			depthCompare = wgpu.CompareFunctionAlways
		}
		desc.DepthStencil = &wgpu.DepthStencilState{
			Format:            p.depthFormat,
			DepthWriteEnabled: p.depthTestEnabled && p.depthWriteEnabled,
			DepthCompare:      depthCompare,
			StencilFront: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
			StencilBack: wgpu.StencilFaceState{
				Compare: wgpu.CompareFunctionAlways,
			},
		}
	}
	return desc
}

func (p *pipeline) Release() {
	if p.renderPipeline != nil {
		p.renderPipeline.Release()
		p.renderPipeline = nil
	}
}
