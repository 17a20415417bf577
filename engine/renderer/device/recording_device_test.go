package device

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordingDevice_BufferWrite(t *testing.T) {
	d := NewRecordingDevice()

	buf, err := d.CreateBuffer("constants", BufferKindUniform, 8)
	require.NoError(t, err)
	require.NoError(t, d.WriteBuffer(buf, 4, []byte{1, 2, 3, 4}))
	assert.Equal(t, []byte{0, 0, 0, 0, 1, 2, 3, 4}, d.BufferData(buf))

	err = d.WriteBuffer(buf, 6, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidSize)

	_, err = d.CreateBuffer("empty", BufferKindVertex, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRecordingDevice_StagingCopies(t *testing.T) {
	d := NewRecordingDevice()

	tex, err := d.CreateTexture(TextureDesc{Label: "color", Width: 2, Height: 2, Format: FormatRGBA8Unorm, Usage: UsageShaderResource})
	require.NoError(t, err)
	staging, err := d.CreateStagingTexture(tex)
	require.NoError(t, err)

	m, err := d.Map(staging)
	require.NoError(t, err)
	assert.Equal(t, 8, m.RowPitch)
	m.Data[0] = 42
	d.Unmap(staging)

	require.NoError(t, d.CopyTexture(tex, staging))
	assert.Equal(t, byte(42), d.TextureData(tex)[0])
	assert.Equal(t, 1, d.CopyCount(CopyFromStaging))
	assert.Equal(t, 0, d.CopyCount(CopyToStaging))

	require.NoError(t, d.CopyTexture(staging, tex))
	assert.Equal(t, 1, d.CopyCount(CopyToStaging))

	assert.ErrorIs(t, d.CopyTexture(tex, tex), ErrNotStaging)
	_, err = d.Map(tex)
	assert.ErrorIs(t, err, ErrNotStaging)
}

func TestRecordingDevice_StateTracking(t *testing.T) {
	d := NewRecordingDevice()

	s := d.State()
	assert.Equal(t, BlendModeNone, s.Blend)
	assert.True(t, s.DepthTest)
	assert.True(t, s.BackfaceCulling)

	d.SetBlendMode(BlendModeAdditive)
	d.SetDepthTest(false)
	d.SetViewport(common.NewViewport(64, 32))
	s = d.State()
	assert.Equal(t, BlendModeAdditive, s.Blend)
	assert.False(t, s.DepthTest)
	assert.Equal(t, float32(64), s.Viewport.Width)

	shader, err := d.CreateShader(ShaderDesc{Stage: StagePixel, Label: "ps.wgsl", Source: "fn fs_main() {}"})
	require.NoError(t, err)
	d.BindShader(StagePixel, shader)
	assert.Equal(t, shader, d.State().Shaders[StagePixel])
	d.BindShader(StagePixel, nil)
	assert.NotContains(t, d.State().Shaders, StagePixel)

	require.Len(t, d.CallsOf("SetBlendMode"), 1)
	assert.Equal(t, BlendModeAdditive, d.CallsOf("SetBlendMode")[0].Args[0])
}

func TestRecordingDevice_StateSnapshotIsolated(t *testing.T) {
	d := NewRecordingDevice()
	buf, err := d.CreateBuffer("cb", BufferKindUniform, 16)
	require.NoError(t, err)

	d.SetConstantBuffer(StageVertex, 0, buf)
	snapshot := d.State()
	d.SetConstantBuffer(StageVertex, 1, buf)

	assert.Len(t, snapshot.ConstantBuffers[StageVertex], 1)
	assert.Len(t, d.State().ConstantBuffers[StageVertex], 2)
}

func TestRecordingDevice_ClearTargetFillsLayers(t *testing.T) {
	d := NewRecordingDevice()
	tex, err := d.CreateTexture(TextureDesc{Label: "stereo", Width: 1, Height: 1, ArraySize: 2, Format: FormatBGRA8UnormSrgb, Usage: UsageRenderTarget})
	require.NoError(t, err)

	right, err := d.CreateView(tex, ViewDesc{BaseLayer: 1, LayerCount: 1})
	require.NoError(t, err)
	d.ClearTarget(right, common.Vec4{1, 0, 0, 1})

	// layer 0 untouched, layer 1 holds BGRA red
	assert.Equal(t, []byte{0, 0, 0, 0}, d.TextureData(tex))
	assert.Equal(t, []byte{0, 0, 255, 255}, tex.(*recTexture).data[4:8])

	_, err = d.CreateView(tex, ViewDesc{BaseLayer: 2, LayerCount: 1})
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestRecordingDevice_NativeTextures(t *testing.T) {
	d := NewRecordingDevice(WithBackBuffer(320, 240, FormatBGRA8Typeless))

	bb, err := d.WrapNativeTexture(d.BackBufferHandle())
	require.NoError(t, err)
	assert.Equal(t, 320, bb.Width())
	assert.Equal(t, FormatBGRA8Typeless, bb.Format())

	again, err := d.WrapNativeTexture(d.BackBufferHandle())
	require.NoError(t, err)
	assert.Same(t, bb, again)

	handle := d.AddNativeTexture(16, 16, 2, FormatBGRA8Typeless)
	stereo, err := d.WrapNativeTexture(handle)
	require.NoError(t, err)
	assert.Equal(t, 2, stereo.ArraySize())

	_, err = d.WrapNativeTexture(0xdead)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	d.Resize(100, 50)
	assert.Equal(t, 100, bb.Width())
}

func TestRecordingDevice_FrameAndCapabilities(t *testing.T) {
	d := NewRecordingDevice(WithSinglePassStereo(true))
	assert.True(t, d.SupportsSinglePassStereo())
	assert.False(t, NewRecordingDevice().SupportsSinglePassStereo())

	require.NoError(t, d.BeginFrame())
	assert.Error(t, d.BeginFrame())
	d.EndFrame()
	require.NoError(t, d.BeginFrame())

	d.ResetCalls()
	require.NoError(t, d.DrawIndexedInstanced(6, 2))
	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "DrawIndexedInstanced[6 2]", calls[0].String())
}

func TestFormat_BitsPerPixel(t *testing.T) {
	tests := []struct {
		format Format
		bits   int
	}{
		{FormatRGBA8Unorm, 32},
		{FormatBGRA8Typeless, 32},
		{FormatRG32Float, 64},
		{FormatR16Unorm, 16},
		{FormatR8Uint, 8},
		{FormatUnknown, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.bits, tt.format.BitsPerPixel(), "format %d", tt.format)
	}
	assert.True(t, FormatDepth16Unorm.IsDepth())
	assert.True(t, (UsageRenderTarget | UsageShaderResource).Has(UsageRenderTarget))
}
