package pipeline

import "github.com/cogentcore/webgpu/wgpu"

// PipelineBuilderOption is a functional option used to configure a Pipeline during construction.
type PipelineBuilderOption func(*pipeline)

// WithVertexShader sets the vertex module and entry point for this pipeline.
//
// Parameters:
//   - module: the compiled vertex module
//   - entryPoint: the entry point name; empty keeps "vs_main"
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex shader for this pipeline
func WithVertexShader(module *wgpu.ShaderModule, entryPoint string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexModule = module
		if entryPoint != "" {
			p.vertexEntry = entryPoint
		}
	}
}

// WithFragmentShader sets the fragment module and entry point for this pipeline. A pipeline without a
// fragment shader writes depth only.
//
// Parameters:
//   - module: the compiled fragment module
//   - entryPoint: the entry point name; empty keeps "fs_main"
//
// Returns:
//   - PipelineBuilderOption: a function that sets the fragment shader for this pipeline
func WithFragmentShader(module *wgpu.ShaderModule, entryPoint string) PipelineBuilderOption {
	return func(p *pipeline) {
		p.fragmentModule = module
		if entryPoint != "" {
			p.fragmentEntry = entryPoint
		}
	}
}

// WithVertexBuffers sets the vertex buffer layouts read by the vertex stage.
//
// Parameters:
//   - layouts: one layout per bound vertex buffer slot
//
// Returns:
//   - PipelineBuilderOption: a function that sets the vertex buffer layouts for this pipeline
func WithVertexBuffers(layouts []wgpu.VertexBufferLayout) PipelineBuilderOption {
	return func(p *pipeline) {
		p.vertexBuffers = layouts
	}
}

// WithTargets sets the colour and depth attachment formats the pipeline renders into.
//
// Parameters:
//   - colors: one format per colour attachment
//   - depth: the depth format, or wgpu.TextureFormatUndefined for no depth attachment
//
// Returns:
//   - PipelineBuilderOption: a function that sets the target formats for this pipeline
func WithTargets(colors []wgpu.TextureFormat, depth wgpu.TextureFormat) PipelineBuilderOption {
	return func(p *pipeline) {
		p.colorFormats = colors
		p.depthFormat = depth
	}
}

// WithDepthTestEnabled sets whether depth testing is enabled for this pipeline.
// A disabled depth test also disables depth writes.
//
// Parameters:
//   - enabled: a boolean indicating whether depth testing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth test enabled state for this pipeline
func WithDepthTestEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthTestEnabled = enabled
	}
}

// WithDepthWriteEnabled sets whether depth writing is enabled for this pipeline.
//
// Parameters:
//   - enabled: a boolean indicating whether depth writing should be enabled
//
// Returns:
//   - PipelineBuilderOption: a function that sets the depth write enabled state for this pipeline
func WithDepthWriteEnabled(enabled bool) PipelineBuilderOption {
	return func(p *pipeline) {
		p.depthWriteEnabled = enabled
	}
}

// WithBlendState enables blending with the given state. A nil state disables blending.
//
// Parameters:
//   - blendState: the blend state to use for this pipeline
//
// Returns:
//   - PipelineBuilderOption: a function that sets the blend state for this pipeline
func WithBlendState(blendState *wgpu.BlendState) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blendState = blendState
		p.blendEnabled = blendState != nil
	}
}

// WithCullMode sets the cull mode for this pipeline.
//
// Parameters:
//   - mode: the cull mode to use for this pipeline (e.g., wgpu.CullModeNone, wgpu.CullModeBack)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the cull mode for this pipeline
func WithCullMode(mode wgpu.CullMode) PipelineBuilderOption {
	return func(p *pipeline) {
		p.cullMode = mode
	}
}

// WithTopology sets the primitive topology for this pipeline.
//
// Parameters:
//   - topology: the primitive topology to use for this pipeline (e.g., wgpu.PrimitiveTopologyLineList)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the primitive topology for this pipeline
func WithTopology(topology wgpu.PrimitiveTopology) PipelineBuilderOption {
	return func(p *pipeline) {
		p.topology = topology
	}
}

// WithFrontFace sets the front face winding order for this pipeline.
//
// Parameters:
//   - frontFace: the front face to use for this pipeline (e.g., wgpu.FrontFaceCCW, wgpu.FrontFaceCW)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the front face for this pipeline
func WithFrontFace(frontFace wgpu.FrontFace) PipelineBuilderOption {
	return func(p *pipeline) {
		p.frontFace = frontFace
	}
}

// WithWriteMask sets the color write mask for this pipeline.
//
// Parameters:
//   - writeMask: the color write mask to use for this pipeline (e.g., wgpu.ColorWriteMaskAll, wgpu.ColorWriteMaskNone)
//
// Returns:
//   - PipelineBuilderOption: a function that sets the color write mask for this pipeline
func WithWriteMask(writeMask wgpu.ColorWriteMask) PipelineBuilderOption {
	return func(p *pipeline) {
		p.writeMask = writeMask
	}
}

// AlphaBlendState returns straight alpha blending for colour and alpha.
func AlphaBlendState() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorSrcAlpha,
			DstFactor: wgpu.BlendFactorOneMinusSrcAlpha,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}

// AdditiveBlendState returns (one, one) colour addition that keeps the source alpha.
func AdditiveBlendState() *wgpu.BlendState {
	return &wgpu.BlendState{
		Color: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorOne,
			Operation: wgpu.BlendOperationAdd,
		},
		Alpha: wgpu.BlendComponent{
			SrcFactor: wgpu.BlendFactorOne,
			DstFactor: wgpu.BlendFactorZero,
			Operation: wgpu.BlendOperationAdd,
		},
	}
}
