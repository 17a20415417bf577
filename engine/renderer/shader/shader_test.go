package shader

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const basicVS = `
//@oxy:include mesh_vertex
//@oxy:include instance
//@oxy:include mesh_vertex

struct Constants {
    worldViewProj: mat4x4<f32>,
    viewProj: array<mat4x4<f32>, 2>,
    lightAmbient: vec4<f32>,
}

@group(0) @binding(0) var<uniform> constants: Constants;

@vertex
fn vs_basic(v: VertexInput, inst: InstanceInput) -> @builtin(position) vec4<f32> {
    return constants.worldViewProj * vec4<f32>(v.position, 1.0);
}
`

func writeShader(t *testing.T, dir, name, source string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(source), 0o644))
	return path
}

func TestNewShader_Reflection(t *testing.T) {
	dev := device.NewRecordingDevice()
	path := writeShader(t, t.TempDir(), "basic_vs.wgsl", basicVS)

	s, err := NewShader(dev, StageVertex, path)
	require.NoError(t, err)

	assert.Equal(t, StageVertex, s.Stage())
	assert.Equal(t, path, s.Filename())
	assert.Equal(t, "vs_basic", s.EntryPoint())
	assert.Contains(t, s.Source(), "@location(7) color: vec4<f32>")
	assert.NotContains(t, s.Source(), "@oxy:")

	cbs := s.ConstantBuffers()
	require.Len(t, cbs, 1)
	assert.Equal(t, "constants", cbs[0].Name)
	assert.Equal(t, uint64(208), cbs[0].Size)
	assert.Len(t, cbs[0].Staging(), 208)
	assert.Equal(t, uint64(208), cbs[0].Buffer().Size())
	assert.Equal(t, []Constant{
		{ID: ConstantWorldViewProj, Offset: 0, Size: 64},
		{ID: ConstantViewProj, Offset: 64, Size: 128, ElementCount: 2},
		{ID: ConstantLightAmbient, Offset: 192, Size: 16},
	}, cbs[0].Constants)
}

func TestNewShader_UnknownConstant(t *testing.T) {
	dev := device.NewRecordingDevice()
	src := `
struct Constants { world: mat4x4<f32>, tint: vec4<f32> }
@group(0) @binding(0) var<uniform> constants: Constants;
@fragment fn ps() -> @location(0) vec4<f32> { return constants.tint; }
`
	path := writeShader(t, t.TempDir(), "tint_ps.wgsl", src)

	_, err := NewShader(dev, StagePixel, path)
	var unknown *UnknownConstantError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "tint", unknown.Variable)
	assert.Equal(t, path, unknown.File)
	assert.Empty(t, dev.CallsOf("CreateShader"), "reflection fails before compiling")
}

func TestNewShader_MediaFallback(t *testing.T) {
	dev := device.NewRecordingDevice()
	media := t.TempDir()
	writeShader(t, media, "plain_ps.wgsl", "@fragment fn ps() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }")

	s, err := NewShader(dev, StagePixel, "plain_ps.wgsl", WithMediaDir(media))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(media, "plain_ps.wgsl"), s.Path())
	assert.Empty(t, s.ConstantBuffers())

	_, err = NewShader(dev, StagePixel, "missing_ps.wgsl", WithMediaDir(media))
	assert.ErrorIs(t, err, os.ErrNotExist)

	empty := writeShader(t, media, "empty.wgsl", "")
	_, err = NewShader(dev, StagePixel, empty)
	assert.ErrorIs(t, err, ErrEmptySource)
}

func TestShader_BindAndUpload(t *testing.T) {
	dev := device.NewRecordingDevice()
	path := writeShader(t, t.TempDir(), "basic_vs.wgsl", basicVS)
	s, err := NewShader(dev, StageVertex, path)
	require.NoError(t, err)

	s.Bind()
	state := dev.State()
	assert.Equal(t, s.Module(), state.Shaders[StageVertex])
	assert.Equal(t, s.ConstantBuffers()[0].Buffer(), state.ConstantBuffers[StageVertex][0])

	cb := s.ConstantBuffers()[0]
	right := make([]byte, 4)
	binary.LittleEndian.PutUint32(right, math.Float32bits(2))
	cb.Write(cb.Constants[1], 1, right)
	cb.Write(cb.Constants[1], 2, right) // out of range
	cb.Write(cb.Constants[0], 1, right) // non-array element 1

	require.NoError(t, s.Upload(0))
	data := dev.BufferData(cb.Buffer())
	assert.Equal(t, float32(2), math.Float32frombits(binary.LittleEndian.Uint32(data[128:])))
	assert.Equal(t, make([]byte, 64), data[:64])

	assert.Error(t, s.Upload(1))
}

func TestShader_Reload(t *testing.T) {
	dev := device.NewRecordingDevice()
	dir := t.TempDir()
	path := writeShader(t, dir, "reload_ps.wgsl", "@fragment fn first() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }")
	s, err := NewShader(dev, StagePixel, path)
	require.NoError(t, err)
	assert.Equal(t, "first", s.EntryPoint())

	writeShader(t, dir, "reload_ps.wgsl", `
@group(0) @binding(0) var<uniform> lightAmbient: vec4<f32>;
@fragment fn second() -> @location(0) vec4<f32> { return lightAmbient; }
`)
	require.NoError(t, s.Reload())
	assert.Equal(t, "second", s.EntryPoint())
	require.Len(t, s.ConstantBuffers(), 1)
	assert.Equal(t, ConstantLightAmbient, s.ConstantBuffers()[0].Constants[0].ID)

	writeShader(t, dir, "reload_ps.wgsl", "@group(0) @binding(0) var<uniform> bogus: f32;")
	var unknown *UnknownConstantError
	require.ErrorAs(t, s.Reload(), &unknown)
	assert.Equal(t, "second", s.EntryPoint(), "failed reload keeps the previous shader")
}

func TestLookupConstant(t *testing.T) {
	for id := ConstantWorld; id < constantCount; id++ {
		got, ok := LookupConstant(id.String())
		require.True(t, ok, id.String())
		assert.Equal(t, id, got)
	}
	_, ok := LookupConstant("World")
	assert.False(t, ok)
	assert.Equal(t, "ConstantID(99)", ConstantID(99).String())
}

func TestPreProcessor_Errors(t *testing.T) {
	pp := NewPreProcessor()
	_, err := pp.Process("//@oxy:include camera")
	assert.Error(t, err)
	_, err = pp.Process("//@oxy:")
	assert.Error(t, err)
	_, err = pp.Process("//@oxy:group 0 0")
	assert.Error(t, err)

	out, err := pp.Process("//@oxy:include particle\nfn f() {}")
	require.NoError(t, err)
	assert.Contains(t, out, "translationScale")
	require.Len(t, pp.Includes(), 1)
	assert.Equal(t, AnnotationArgParticle, pp.Includes()[0].Args[0])
}
