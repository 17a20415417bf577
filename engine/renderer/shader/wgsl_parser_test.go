package shader

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stereoSource = `
struct StereoConstants {
    viewProj: array<mat4x4<f32>, 2>, // left, right
    lightPosV: vec3<f32>,
    farPlaneDist: f32,
}

/* shadow map
   @group(9) @binding(9) var<uniform> ignored: StereoConstants; */
@group(0) @binding(0) var<uniform> constants: StereoConstants;
@group(0) @binding(1) var<uniform> world: mat4x4<f32>;
@group(0) @binding(2) var shadowMap: texture_depth_2d;
@group(0) @binding(3) var shadowSampler: sampler_comparison;
@group(0) @binding(4) var eyes: texture_2d_array<f32>;
@group(0) @binding(5) var eyeSampler: sampler;

@vertex
fn main_vs(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0);
}
`

func TestParseBindings_Layout(t *testing.T) {
	bindings, err := parseBindings(stereoSource)
	require.NoError(t, err)
	require.Len(t, bindings, 6)

	cb := bindings[0]
	assert.Equal(t, "constants", cb.binding.Name)
	assert.Equal(t, device.ResourceUniform, cb.binding.Kind)
	assert.Equal(t, uint64(144), cb.binding.Size)
	require.Len(t, cb.members, 3)
	assert.Equal(t, memberLayout{name: "viewProj", typeName: "array<mat4x4<f32>, 2>", offset: 0, size: 128, elementCount: 2}, cb.members[0])
	assert.Equal(t, uint64(128), cb.members[1].offset)
	assert.Equal(t, uint64(12), cb.members[1].size)
	assert.Equal(t, uint64(140), cb.members[2].offset)

	single := bindings[1]
	assert.Equal(t, uint64(64), single.binding.Size)
	require.Len(t, single.members, 1)
	assert.Equal(t, "world", single.members[0].name)

	kinds := []device.ResourceKind{}
	for _, b := range bindings[2:] {
		kinds = append(kinds, b.binding.Kind)
	}
	assert.Equal(t, []device.ResourceKind{
		device.ResourceDepthTexture,
		device.ResourceComparisonSampler,
		device.ResourceTexture,
		device.ResourceSampler,
	}, kinds)
	assert.True(t, bindings[4].binding.Array)
	assert.Equal(t, uint32(5), bindings[5].binding.Binding)
}

func TestParseBindings_FrameConstants(t *testing.T) {
	src := FrameConstantsSource + "\n@group(0) @binding(0) var<uniform> frame: FrameConstants;\n"
	bindings, err := parseBindings(src)
	require.NoError(t, err)
	require.Len(t, bindings, 1)

	members := bindings[0].members
	require.Len(t, members, int(constantCount))
	offsets := map[string]uint64{}
	for _, m := range members {
		offsets[m.name] = m.offset
	}
	assert.Equal(t, uint64(64), offsets["worldViewProj"])
	assert.Equal(t, uint64(448), offsets["lightPosV"])
	assert.Equal(t, uint64(464), offsets["lightAmbient"])
	assert.Equal(t, uint64(496), offsets["projectionRange"])
	assert.Equal(t, uint64(512), bindings[0].binding.Size)
}

func TestParseBindings_Unsupported(t *testing.T) {
	_, err := parseBindings("@group(0) @binding(0) var<storage, read> data: array<f32>;")
	assert.Error(t, err)

	_, err = parseBindings("@group(0) @binding(0) var<uniform> data: Missing;")
	assert.Error(t, err)
}

func TestParseEntryPoint(t *testing.T) {
	src := `
// @vertex fn commented() {}
@vertex
fn vs(@location(0) p: vec3<f32>) -> @builtin(position) vec4<f32> { return vec4<f32>(p, 1.0); }
@fragment fn ps() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }
`
	assert.Equal(t, "vs", parseEntryPoint(src, device.StageVertex))
	assert.Equal(t, "vs", parseEntryPoint(src, device.StageVertexSPS))
	assert.Equal(t, "ps", parseEntryPoint(src, device.StagePixel))
	assert.Equal(t, "", parseEntryPoint(src, device.StageGeometry))
}

func TestParseStructFields_Attributes(t *testing.T) {
	structs := parseStructBlocks(stripComments(MeshVertexSource + InstanceInputSource))
	require.Len(t, structs, 2)
	assert.Equal(t, "VertexInput", structs[0].name)
	assert.Equal(t, 2, structs[0].fields[2].location)
	assert.Equal(t, "vec2<f32>", structs[0].fields[2].typeName)
	assert.Equal(t, 7, structs[1].fields[4].location)
}

func TestStripBlockComments_Nested(t *testing.T) {
	assert.Equal(t, "a  b", stripBlockComments("a /* x /* y */ z */ b"))
}
