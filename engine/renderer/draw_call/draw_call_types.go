package draw_call

import (
	"errors"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
)

// ErrNoShaderForPass is returned by Draw when the active render pass has no shader set.
var ErrNoShaderForPass = errors.New("draw call: no shader set for render pass")

// Instance is the per-instance vertex data of regular instancing. Size: 80 bytes, matching the
// WGSL InstanceInput struct included with "//@oxy:include instance".
type Instance struct {
	World common.Mat4 // locations 3 to 6, one column each
	Color common.Vec4 // location 7
}

// ParticleInstance is the per-instance vertex data of particle instancing. Size: 32 bytes, matching
// the WGSL ParticleInput struct included with "//@oxy:include particle".
type ParticleInstance struct {
	// TranslationScale holds the particle position in xyz and its uniform scale in w.
	TranslationScale common.Vec4 // location 3
	Color            common.Vec4 // location 4
}

const (
	instanceSize         = uint64(unsafe.Sizeof(Instance{}))
	particleInstanceSize = uint64(unsafe.Sizeof(ParticleInstance{}))
)

// ShaderSet is the shaders a draw call binds for one render-pass index. VertexSPS and Geometry are
// optional.
type ShaderSet struct {
	Vertex    shader.Shader
	VertexSPS shader.Shader
	Pixel     shader.Shader
	Geometry  shader.Shader
}

func newInstance() Instance {
	return Instance{World: common.Identity(), Color: common.Vec4{1, 1, 1, 1}}
}

// inputLayout returns the mesh layout in slot 0 and the instance layout in slot 1. Single-pass stereo
// steps the instance data every second instance so each eye sees the same instance.
func inputLayout(particles, sps bool) device.InputLayout {
	step := uint32(1)
	if sps {
		step = 2
	}
	instance := device.VertexBufferLayout{
		Stride:      instanceSize,
		PerInstance: true,
		StepRate:    step,
		Attributes: []device.VertexAttribute{
			{Location: 3, Format: device.AttributeFloat32x4, Offset: 0},
			{Location: 4, Format: device.AttributeFloat32x4, Offset: 16},
			{Location: 5, Format: device.AttributeFloat32x4, Offset: 32},
			{Location: 6, Format: device.AttributeFloat32x4, Offset: 48},
			{Location: 7, Format: device.AttributeFloat32x4, Offset: 64},
		},
	}
	label := "instanced"
	if particles {
		instance.Stride = particleInstanceSize
		instance.Attributes = []device.VertexAttribute{
			{Location: 3, Format: device.AttributeFloat32x4, Offset: 0},
			{Location: 4, Format: device.AttributeFloat32x4, Offset: 16},
		}
		label = "particle"
	}
	if sps {
		label += " sps"
	}
	return device.InputLayout{
		Label:   label,
		Buffers: []device.VertexBufferLayout{mesh.VertexLayout(), instance},
	}
}
