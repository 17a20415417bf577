package renderer

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/texture"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRenderer(t *testing.T, devOpts []device.DeviceBuilderOption, opts ...RendererBuilderOption) (Renderer, device.RecordingDevice) {
	t.Helper()
	dev := device.NewRecordingDevice(devOpts...)
	r, err := NewRenderer(dev, opts...)
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r, dev
}

func newTarget(t *testing.T, dev device.Device, w, h int, stereo bool) texture.Texture2D {
	t.Helper()
	tex, err := texture.NewTexture(dev, w, h, device.FormatRGBA8Unorm, texture.WithStereo(stereo))
	require.NoError(t, err)
	return tex
}

func TestNewRenderer_InitialState(t *testing.T) {
	r, dev := newTestRenderer(t, nil)

	assert.Equal(t, common.Vec4{0.1, 0.1, 0.1, 1}, r.Ambient())
	assert.Equal(t, 1, r.LightCount())
	l, ok := r.Light(0)
	require.True(t, ok)
	assert.Equal(t, common.Vec3{7.5, 10, -2.5}, l.Position)
	assert.Equal(t, common.Vec3{}, l.At)

	view := common.LookAtRH(common.Vec3{5, 5, 5}, common.Vec3{}, common.Vec3{0, 1, 0})
	assert.Equal(t, view, r.View().Left)
	assert.Equal(t, view, r.View().Right)

	p := r.Projection()
	assert.Equal(t, common.PerspectiveRH(math32.Pi/4, 1, 1, 1000), p.Left)
	assert.InDelta(t, 0.828427, p.NearPlaneHeight, 1e-5)
	assert.InDelta(t, 0.828427, p.NearPlaneWidth, 1e-5)
	assert.InDelta(t, 1000.0/999.0, p.Range, 1e-6)
	assert.Equal(t, float32(1), p.Near)
	assert.Equal(t, float32(1000), p.Far)

	assert.Equal(t, DefaultRenderState, r.RenderState())
	assert.Equal(t, common.Identity(), r.LightViewProj())
	assert.Equal(t, common.Identity(), r.CameraView().Left)
	assert.Equal(t, 0, r.ActiveRenderPassIndex())

	bb := r.BackBuffer()
	require.NotNil(t, bb)
	assert.Equal(t, 512, bb.Width())
	assert.Equal(t, device.FormatBGRA8Unorm, bb.Format())
	assert.Same(t, bb, r.CurrentRenderTarget())

	state := dev.State()
	require.Len(t, state.Colors, 1)
	assert.Equal(t, bb.RenderTargetView(false), state.Colors[0])
	assert.Equal(t, common.NewViewport(512, 512), state.Viewport)
	assert.Equal(t, device.BlendModeNone, state.Blend)
	assert.True(t, state.DepthTest)
	assert.True(t, state.BackfaceCulling)
}

func TestViewStack_RoundTrip(t *testing.T) {
	r, _ := newTestRenderer(t, nil)
	before := r.View()

	for i := range 5 {
		m := common.Translation(common.Vec3{float32(i), 0, 0})
		r.PushView(m, common.Identity())
	}
	assert.Equal(t, common.Translation(common.Vec3{4, 0, 0}), r.View().Left)
	assert.Equal(t, common.Identity(), r.View().Right)
	for range 5 {
		r.PopView()
	}
	assert.Equal(t, before, r.View())

	r.PopView()
	r.PopView()
	assert.Equal(t, before, r.View(), "the sentinel is never popped")

	r.PushViewLookAt(common.Vec3{0, 0, 3}, common.Vec3{}, common.Vec3{0, 1, 0})
	assert.Equal(t, r.View().Left, r.View().Right)
}

func TestProjectionStack(t *testing.T) {
	r, _ := newTestRenderer(t, nil)
	before := r.Projection()

	left := common.Scaling(2, 2, 2)
	r.PushProj(left, common.Identity())
	p := r.Projection()
	assert.Equal(t, left, p.Left)
	assert.Zero(t, p.NearPlaneHeight)
	assert.Zero(t, p.NearPlaneWidth)
	assert.Zero(t, p.Range)

	r.PushProjOrtho(4, 3, 1, 11)
	p = r.Projection()
	assert.Equal(t, float32(3), p.NearPlaneHeight)
	assert.Equal(t, float32(4), p.NearPlaneWidth)
	assert.InDelta(t, 1.1, p.Range, 1e-6)

	r.PushProjPerspective(math32.Pi/2, 2, 0.5, 10)
	p = r.Projection()
	assert.InDelta(t, 1.0, p.NearPlaneHeight, 1e-5)
	assert.InDelta(t, 2.0, p.NearPlaneWidth, 1e-5)

	for range 6 {
		r.PopProj()
	}
	assert.Equal(t, before, r.Projection())
}

func TestRenderState_PushPopRestores(t *testing.T) {
	r, dev := newTestRenderer(t, nil)

	r.PushAlphaBlendState(device.BlendModeAdditive)
	assert.Equal(t, device.BlendModeAdditive, r.RenderState().Blend)
	assert.Equal(t, device.BlendModeAdditive, dev.State().Blend)

	r.PushDepthTestState(false)
	r.PushBackfaceCullingState(false)
	s := r.RenderState()
	assert.Equal(t, device.BlendModeAdditive, s.Blend)
	assert.False(t, s.DepthTest)
	assert.False(t, s.BackfaceCulling)
	assert.False(t, dev.State().BackfaceCulling)

	r.PopBackfaceCullingState()
	r.PopDepthTestState()
	assert.True(t, dev.State().DepthTest)
	assert.Equal(t, device.BlendModeAdditive, r.RenderState().Blend)

	r.PopAlphaBlendState()
	assert.Equal(t, DefaultRenderState, r.RenderState())
	assert.Equal(t, device.BlendModeNone, dev.State().Blend)

	r.PopAlphaBlendState()
	assert.Equal(t, DefaultRenderState, r.RenderState())
}

func TestRenderPass_Targets(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	tex := newTarget(t, dev, 64, 32, false)
	other := newTarget(t, dev, 64, 32, false)

	r.PushRenderPass(2, tex, other)
	assert.Equal(t, 2, r.ActiveRenderPassIndex())
	assert.Same(t, tex, r.CurrentRenderTarget())
	state := dev.State()
	require.Len(t, state.Colors, 2)
	assert.Equal(t, tex.RenderTargetView(false), state.Colors[0])
	assert.Equal(t, other.RenderTargetView(false), state.Colors[1])
	assert.Equal(t, tex.DepthView(false), state.Depth)
	assert.Equal(t, common.NewViewport(64, 32), state.Viewport)

	r.PushRenderPass(3)
	assert.Equal(t, 3, r.ActiveRenderPassIndex())
	assert.Same(t, tex, r.CurrentRenderTarget(), "no targets keeps the current target")
	assert.Len(t, dev.State().Colors, 1)

	r.PopRenderPass()
	assert.Equal(t, 2, r.ActiveRenderPassIndex())
	r.PopRenderPass()
	assert.Equal(t, 0, r.ActiveRenderPassIndex())
	assert.Same(t, r.BackBuffer(), r.CurrentRenderTarget())
	assert.Equal(t, common.NewViewport(512, 512), dev.State().Viewport)
	assert.Len(t, dev.CallsOf("ClearShaderResources"), 2)

	r.PopRenderPass()
	assert.Len(t, dev.CallsOf("ClearShaderResources"), 2, "over-pop is a no-op")
}

func TestRightEyePass(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	stereo := newTarget(t, dev, 32, 32, true)

	r.PushRightEyePass(1, stereo)
	assert.True(t, r.RenderState().RightEyePass)
	assert.Equal(t, 1, r.ActiveRenderPassIndex())
	state := dev.State()
	require.Len(t, state.Colors, 1)
	assert.Equal(t, stereo.RenderTargetView(true), state.Colors[0])
	assert.Equal(t, 1, state.Colors[0].BaseLayer())
	assert.Equal(t, stereo.DepthView(true), state.Depth)

	r.PopRightEyePass()
	assert.False(t, r.RenderState().RightEyePass)
	assert.Equal(t, r.BackBuffer().RenderTargetView(false), dev.State().Colors[0])
}

func TestShadowPass(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	depthMap := newTarget(t, dev, 128, 128, false)
	view, proj := r.View(), r.Projection()

	require.NoError(t, r.PushShadowPass(depthMap, 4, 0))
	assert.Equal(t, 4, r.ActiveRenderPassIndex())
	assert.Same(t, depthMap, r.CurrentRenderTarget())

	lightView := common.LookAtRH(common.Vec3{7.5, 10, -2.5}, common.Vec3{}, common.Vec3{0, 1, 0})
	lightProj := common.PerspectiveRH(math32.Pi/4, 1, 1, 250)
	assert.Equal(t, lightView, r.View().Left)
	assert.True(t, common.Mul4(lightProj, lightView).ApproxEqual(r.LightViewProj(), 1e-6))

	r.PopShadowPass()
	assert.Equal(t, view, r.View())
	assert.Equal(t, proj, r.Projection())
	assert.Equal(t, 0, r.ActiveRenderPassIndex())
	assert.False(t, r.LightViewProj().ApproxEqual(common.Identity(), 1e-6), "the snapshot outlives the pass")

	err := r.PushShadowPass(depthMap, 4, 5)
	assert.ErrorIs(t, err, ErrLightIndex)
	assert.Equal(t, 0, r.ActiveRenderPassIndex())
}

func TestUIPass(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	target := newTarget(t, dev, 200, 100, false)
	view := r.View()

	r.PushUIPass(target)
	assert.Equal(t, 0, r.ActiveRenderPassIndex())
	assert.Same(t, target, r.CurrentRenderTarget())
	p := r.Projection()
	assert.Equal(t, common.OrthographicRH(2, 1, 1, 1000), p.Left)
	assert.Equal(t, float32(2), p.NearPlaneWidth)
	assert.Equal(t, float32(1), p.NearPlaneHeight)
	assert.Equal(t, common.LookAtRH(common.Vec3{0, 0, 1}, common.Vec3{}, common.Vec3{0, 1, 0}), r.View().Left)
	assert.False(t, r.RenderState().DepthTest)
	assert.False(t, r.RenderState().FullscreenPass)
	assert.False(t, dev.State().DepthTest)

	r.PopUIPass()
	assert.Equal(t, view, r.View())
	assert.True(t, dev.State().DepthTest)
	assert.Same(t, r.BackBuffer(), r.CurrentRenderTarget())
}

func TestRenderPass_NilTargetKeepsCurrent(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	tex := newTarget(t, dev, 64, 32, false)

	assert.NotPanics(t, func() { r.PushRenderPass(1, nil) })
	assert.Same(t, r.BackBuffer(), r.CurrentRenderTarget())
	assert.Equal(t, r.BackBuffer().RenderTargetView(false), dev.State().Colors[0])

	r.PushRenderPass(2, tex)
	assert.NotPanics(t, func() { r.PushUIPass(nil) })
	assert.Same(t, tex, r.CurrentRenderTarget())
	assert.Equal(t, common.NewViewport(64, 32), dev.State().Viewport)

	r.PushRenderPass(3, nil, tex)
	state := dev.State()
	require.Len(t, state.Colors, 2)
	assert.Equal(t, tex.RenderTargetView(false), state.Colors[0])

	r.PopRenderPass()
	r.PopUIPass()
	r.PopRenderPass()
	r.PopRenderPass()
	assert.Equal(t, 0, r.ActiveRenderPassIndex())
}

func TestShadowPass_NilDepthMapKeepsCurrent(t *testing.T) {
	r, _ := newTestRenderer(t, nil)

	require.NotPanics(t, func() { require.NoError(t, r.PushShadowPass(nil, 4, 0)) })
	assert.Same(t, r.BackBuffer(), r.CurrentRenderTarget())
	r.PopShadowPass()
}

func TestUIPass_InsideFullscreenPassKeepsFlag(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	target := newTarget(t, dev, 64, 64, false)

	r.PushFullscreenPass(target)
	r.PushUIPass(target)
	assert.True(t, r.RenderState().FullscreenPass)

	r.PopUIPass()
	assert.True(t, r.RenderState().FullscreenPass)
	r.PopFullscreenPass()
	assert.False(t, r.RenderState().FullscreenPass)
}

func TestFullscreenPass_UsesCameraSnapshot(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	target := newTarget(t, dev, 64, 64, false)

	r.StoreCurrentViewAsCameraView()
	camera := r.View()
	cameraProj := r.Projection()

	v, p := r.ActiveCamera()
	assert.Equal(t, camera, v)
	assert.Equal(t, cameraProj, p)

	r.PushFullscreenPass(target)
	assert.True(t, r.RenderState().FullscreenPass)
	assert.False(t, r.RenderState().DepthTest)
	v, p = r.ActiveCamera()
	assert.Equal(t, camera, v)
	assert.Equal(t, cameraProj, p)
	assert.NotEqual(t, camera, r.View())

	r.PopFullscreenPass()
	assert.Equal(t, DefaultRenderState, r.RenderState())
}

func TestSetBackBufferNative_CachesByHandle(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	handle := dev.AddNativeTexture(256, 128, 2, device.FormatBGRA8Typeless)

	require.NoError(t, r.SetBackBufferNative(handle, common.Viewport{}))
	bb := r.BackBuffer()
	assert.Equal(t, device.FormatBGRA8UnormSrgb, bb.Format())
	assert.True(t, bb.IsStereo())
	assert.Equal(t, common.NewViewport(256, 128), dev.State().Viewport)

	vp := common.Viewport{Width: 100, Height: 50, MaxDepth: 1}
	require.NoError(t, r.SetBackBufferNative(handle, vp))
	assert.Same(t, bb, r.BackBuffer())
	assert.Equal(t, vp, dev.State().Viewport)
	assert.Len(t, dev.CallsOf("WrapNativeTexture"), 1)

	err := r.SetBackBufferNative(0xdead, common.Viewport{})
	assert.ErrorIs(t, err, device.ErrUnknownHandle)
	assert.Same(t, bb, r.BackBuffer())
}

func TestSetBackBuffer_DuringPassDoesNotRebind(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	target := newTarget(t, dev, 16, 16, false)
	other := newTarget(t, dev, 32, 32, false)

	r.PushRenderPass(1, target)
	r.SetBackBuffer(other)
	assert.Equal(t, target.RenderTargetView(false), dev.State().Colors[0])

	r.PopRenderPass()
	assert.Equal(t, other.RenderTargetView(false), dev.State().Colors[0])
}

func TestResize_RewrapsBackBuffer(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	require.NoError(t, r.SetBackBufferNative(dev.BackBufferHandle(), common.Viewport{}))
	before := r.BackBuffer()

	r.Resize(300, 200)
	after := r.BackBuffer()
	assert.NotSame(t, before, after)
	assert.Equal(t, 300, after.Width())
	assert.Equal(t, 200, after.Height())
	assert.Equal(t, common.NewViewport(300, 200), dev.State().Viewport)
}

func TestLights(t *testing.T) {
	r, _ := newTestRenderer(t, nil)

	assert.ErrorIs(t, r.SetLight(MaxLights, common.Vec3{}, common.Vec3{}), ErrLightIndex)
	assert.ErrorIs(t, r.SetLight(-1, common.Vec3{}, common.Vec3{}), ErrLightIndex)

	require.NoError(t, r.SetLight(3, common.Vec3{1, 2, 3}, common.Vec3{0, 0, 1}))
	assert.Equal(t, 4, r.LightCount())
	l, ok := r.Light(3)
	require.True(t, ok)
	assert.Equal(t, common.Vec3{1, 2, 3}, l.Position)
	_, ok = r.Light(2)
	assert.True(t, ok)
	_, ok = r.Light(4)
	assert.False(t, ok)

	assert.ErrorIs(t, r.SetActiveLight(5), ErrLightIndex)
	assert.Equal(t, 0, r.ActiveLight())
	require.NoError(t, r.SetActiveLight(3))
	assert.Equal(t, 3, r.ActiveLight())

	r.SetAmbient(common.Vec4{0.5, 0.5, 0.5, 1})
	assert.Equal(t, common.Vec4{0.5, 0.5, 0.5, 1}, r.Ambient())
}

func TestSinglePassStereo(t *testing.T) {
	r, _ := newTestRenderer(t, nil, WithSinglePassStereo(true))
	assert.False(t, r.SinglePassStereoSupported())
	assert.False(t, r.SinglePassStereoEnabled())

	r, _ = newTestRenderer(t, []device.DeviceBuilderOption{device.WithSinglePassStereo(true)}, WithSinglePassStereo(true))
	assert.True(t, r.SinglePassStereoSupported())
	assert.True(t, r.SinglePassStereoEnabled())
	r.EnableSinglePassStereo(false)
	assert.False(t, r.SinglePassStereoEnabled())
}

func TestGlobalRenderPasses(t *testing.T) {
	r, _ := newTestRenderer(t, nil)

	r.AddGlobalRenderPass("shadow_vs.wgsl", "shadow_ps.wgsl", 1)
	r.AddGlobalRenderPass("ui_vs.wgsl", "ui_ps.wgsl", 2)
	r.AddGlobalRenderPass("depth_vs.wgsl", "depth_ps.wgsl", 1)

	passes := r.GlobalRenderPasses()
	require.Len(t, passes, 2)
	assert.Equal(t, RenderPassDesc{Index: 1, VertexShader: "depth_vs.wgsl", PixelShader: "depth_ps.wgsl"}, passes[0])
	assert.Equal(t, 2, passes[1].Index)

	passes[0].Index = 9
	assert.Equal(t, 1, r.GlobalRenderPasses()[0].Index)
}

func TestBeginFrame_ReappliesState(t *testing.T) {
	r, dev := newTestRenderer(t, nil)
	dev.ResetCalls()

	require.NoError(t, r.BeginFrame())
	assert.Len(t, dev.CallsOf("SetRenderTargets"), 1)
	assert.Len(t, dev.CallsOf("SetBlendMode"), 1)
	assert.Error(t, r.BeginFrame())
	r.EndFrame()
	r.Present()
	assert.Len(t, dev.CallsOf("Present"), 1)
}

func TestLoadShader_HotReload(t *testing.T) {
	media := t.TempDir()
	path := filepath.Join(media, "solid_ps.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("@fragment fn solid() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }"), 0o644))

	r, _ := newTestRenderer(t, nil, WithShaderMediaDir(media), WithHotReload(true))
	s, err := r.LoadShader(shader.StagePixel, "solid_ps.wgsl")
	require.NoError(t, err)
	again, err := r.LoadShader(shader.StagePixel, "solid_ps.wgsl")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Equal(t, "solid", s.EntryPoint())
	require.NoError(t, r.Update())

	require.NoError(t, os.WriteFile(path, []byte("@fragment fn tinted() -> @location(0) vec4<f32> { return vec4<f32>(0.5); }"), 0o644))
	assert.Eventually(t, func() bool {
		return r.Update() == nil && s.EntryPoint() == "tinted"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestUpdate_LogsReloadFailure(t *testing.T) {
	media := t.TempDir()
	path := filepath.Join(media, "solid_ps.wgsl")
	require.NoError(t, os.WriteFile(path, []byte("@fragment fn solid() -> @location(0) vec4<f32> { return vec4<f32>(1.0); }"), 0o644))

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	r, _ := newTestRenderer(t, nil, WithShaderMediaDir(media), WithHotReload(true), WithLogger(logger))
	s, err := r.LoadShader(shader.StagePixel, "solid_ps.wgsl")
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	assert.Eventually(t, func() bool {
		return errors.Is(r.Update(), shader.ErrEmptySource)
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, buf.String(), "shader reload failed")
	assert.Equal(t, "solid", s.EntryPoint(), "a failed reload keeps the previous module")
}

func TestWithConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Renderer.BackBufferWidth = 320
	cfg.Renderer.BackBufferHeight = 160
	cfg.Renderer.BackBufferFormat = "rgba8unorm"
	cfg.Renderer.SinglePassStereo = true
	cfg.Lighting.Ambient = [4]float32{0.3, 0.3, 0.3, 1}
	cfg.Lighting.LightPosition = [3]float32{1, 2, 3}
	cfg.Media.Textures = "assets/tex"

	r, _ := newTestRenderer(t, []device.DeviceBuilderOption{device.WithSinglePassStereo(true)},
		WithConfig(cfg), WithAmbient(common.Vec4{0, 0, 0, 1}))

	bb := r.BackBuffer()
	assert.Equal(t, 320, bb.Width())
	assert.Equal(t, 160, bb.Height())
	assert.Equal(t, device.FormatRGBA8Unorm, bb.Format())
	assert.True(t, r.SinglePassStereoEnabled())
	assert.Equal(t, common.Vec4{0, 0, 0, 1}, r.Ambient(), "later options override the config")
	l, _ := r.Light(0)
	assert.Equal(t, common.Vec3{1, 2, 3}, l.Position)
	assert.Len(t, r.MeshOptions(), 3)
	assert.Len(t, r.TextureOptions(), 2)
}
