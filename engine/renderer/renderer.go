package renderer

import (
	"fmt"
	"log/slog"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/texture"
	"github.com/chewxy/math32"
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	dev    device.Device
	logger *slog.Logger

	shaderMediaDir  string
	textureMediaDir string
	meshOptions     []mesh.MeshBuilderOption
	hotReload       bool
	shaders         shader.Cache
	watcher         shader.Watcher
	globalPasses    []RenderPassDesc

	backBufferWidth  int
	backBufferHeight int
	backBufferFormat device.Format
	backBuffer       texture.Texture2D
	ownedBackBuffer  texture.Texture2D
	nativeBuffers    map[uintptr]texture.Texture2D

	views  []View
	projs  []Projection
	states []RenderState
	passes []renderPass

	lightViewProj common.Mat4
	cameraView    View
	cameraProj    Projection

	lights      [MaxLights]Light
	lightCount  int
	activeLight int
	ambient     common.Vec4

	spsRequested bool
	spsEnabled   bool
}

// Renderer is the explicit render context shared by every draw call on the render thread.
//
// It owns the device, the shader cache, the global render-pass list, the back-buffer cache and the
// lights, and it holds the state stacks: view, projection, render state and render pass. Each stack
// starts with one sentinel entry that is never popped, so an unmatched pop is a silent no-op.
// Pushes and pops must nest; every render-state or render-pass change is applied to the device
// immediately. A Renderer is not safe for concurrent use.
type Renderer interface {
	// Device returns the device the renderer drives.
	Device() device.Device

	// Logger returns the renderer's structured logger.
	Logger() *slog.Logger

	// MeshOptions returns the builder options every mesh created for this context should use: the
	// logger, media directory and octree settings.
	MeshOptions() []mesh.MeshBuilderOption

	// TextureOptions returns the logger and media directory options for textures loaded for this context.
	TextureOptions() []texture.TextureBuilderOption

	// Shaders returns the shader cache owned by the renderer.
	Shaders() shader.Cache

	// LoadShader returns the cached shader for stage and filename, loading it on first use.
	// With hot reload enabled the resolved file is watched for changes.
	//
	// Parameters:
	//   - stage: the shader stage
	//   - filename: the shader file, tried as given and then under the shader media directory
	//
	// Returns:
	//   - shader.Shader: the shared shader
	//   - error: any load or reflection error
	LoadShader(stage shader.Stage, filename string) (shader.Shader, error)

	// AddGlobalRenderPass registers a shader pair every draw call created afterwards uses for the
	// given pass index. A later registration for the same index replaces the earlier one.
	//
	// Parameters:
	//   - vs: the vertex shader file
	//   - ps: the pixel shader file
	//   - index: the render-pass index
	AddGlobalRenderPass(vs, ps string, index int)

	// GlobalRenderPasses returns the registered global passes in registration order.
	GlobalRenderPasses() []RenderPassDesc

	// PushView pushes a view matrix per eye.
	//
	// Parameters:
	//   - left: the left eye (or mono) view matrix
	//   - right: the right eye view matrix
	PushView(left, right common.Mat4)

	// PushViewLookAt pushes a mono view looking from eye at a point.
	//
	// Parameters:
	//   - eye: the eye position
	//   - at: the point looked at
	//   - up: the up direction
	PushViewLookAt(eye, at, up common.Vec3)

	// PopView removes the top view unless only the sentinel remains.
	PopView()

	// View returns the active view.
	View() View

	// PushProj pushes a projection matrix per eye. The scalar plane fields of the entry are zero.
	//
	// Parameters:
	//   - left: the left eye (or mono) projection
	//   - right: the right eye projection
	PushProj(left, right common.Mat4)

	// PushProjPerspective pushes a mono right-handed perspective projection.
	//
	// Parameters:
	//   - fovY: the vertical field of view in radians
	//   - aspect: width over height
	//   - near: the near plane distance
	//   - far: the far plane distance
	PushProjPerspective(fovY, aspect, near, far float32)

	// PushProjOrtho pushes a mono right-handed orthographic projection.
	//
	// Parameters:
	//   - width: the view volume width
	//   - height: the view volume height
	//   - near: the near plane distance
	//   - far: the far plane distance
	PushProjOrtho(width, height, near, far float32)

	// PopProj removes the top projection unless only the sentinel remains.
	PopProj()

	// Projection returns the active projection.
	Projection() Projection

	// PushAlphaBlendState pushes the active render state with its blend mode replaced.
	PushAlphaBlendState(mode device.BlendMode)

	// PopAlphaBlendState pops the render state pushed by PushAlphaBlendState.
	PopAlphaBlendState()

	// PushDepthTestState pushes the active render state with depth testing replaced.
	PushDepthTestState(enabled bool)

	// PopDepthTestState pops the render state pushed by PushDepthTestState.
	PopDepthTestState()

	// PushBackfaceCullingState pushes the active render state with back-face culling replaced.
	PushBackfaceCullingState(enabled bool)

	// PopBackfaceCullingState pops the render state pushed by PushBackfaceCullingState.
	PopBackfaceCullingState()

	// RenderState returns the active render state.
	RenderState() RenderState

	// PushRenderPass makes index the active render-pass index and binds targets. Without targets
	// the current render target stays bound.
	//
	// Parameters:
	//   - index: the render-pass index draw calls select their shaders with
	//   - targets: the color targets; target 0 also provides the depth view and the viewport
	PushRenderPass(index int, targets ...texture.Texture2D)

	// PopRenderPass restores the previous pass and its targets and unbinds shader resources.
	PopRenderPass()

	// ActiveRenderPassIndex returns the index of the top pass, or 0 with no pass pushed.
	ActiveRenderPassIndex() int

	// CurrentRenderTarget returns target 0 of the top pass, or the back buffer with no pass pushed.
	CurrentRenderTarget() texture.Texture2D

	// PushRightEyePass renders the right eye of a stereo target in its own pass.
	//
	// Parameters:
	//   - index: the render-pass index
	//   - target: the stereo target
	PushRightEyePass(index int, target texture.Texture2D)

	// PopRightEyePass undoes PushRightEyePass.
	PopRightEyePass()

	// PushShadowPass renders depth from a light into depthMap and snapshots the light view-projection.
	//
	// Parameters:
	//   - depthMap: the shadow map target
	//   - index: the render-pass index
	//   - lightIndex: the light the shadow is cast from
	//
	// Returns:
	//   - error: ErrLightIndex for an unset light; nothing is pushed then
	PushShadowPass(depthMap texture.Texture2D, index int, lightIndex int) error

	// PopShadowPass undoes PushShadowPass.
	PopShadowPass()

	// PushUIPass sets up pass 0 on target with an orthographic camera at (0, 0, 1) looking at the
	// origin, one unit high and the target aspect wide, with depth testing off.
	PushUIPass(target texture.Texture2D)

	// PopUIPass undoes PushUIPass.
	PopUIPass()

	// PushFullscreenPass is PushUIPass with the fullscreen flag set, so draw calls stretch to the
	// target and read the camera snapshot.
	PushFullscreenPass(target texture.Texture2D)

	// PopFullscreenPass undoes PushFullscreenPass.
	PopFullscreenPass()

	// StoreCurrentViewProjAsLightViewProj snapshots projection times view of the left eye.
	StoreCurrentViewProjAsLightViewProj()

	// StoreCurrentViewAsCameraView snapshots the active view and projection as the camera.
	StoreCurrentViewAsCameraView()

	// LightViewProj returns the stored light view-projection.
	LightViewProj() common.Mat4

	// CameraView returns the stored camera view.
	CameraView() View

	// CameraProjection returns the stored camera projection.
	CameraProjection() Projection

	// ActiveCamera returns the view and projection constants are computed from: the camera snapshot
	// during a fullscreen pass and the top of the stacks otherwise.
	ActiveCamera() (View, Projection)

	// SetBackBuffer binds tex as the default render target.
	SetBackBuffer(tex texture.Texture2D)

	// SetBackBufferNative wraps a native image as the back buffer. Wrappers are cached by handle.
	//
	// Parameters:
	//   - handle: the native image identity
	//   - viewport: the viewport; a zero Width covers the whole image
	//
	// Returns:
	//   - error: a wrap error
	SetBackBufferNative(handle uintptr, viewport common.Viewport) error

	// BackBuffer returns the current back buffer.
	BackBuffer() texture.Texture2D

	// SetLight places a light.
	//
	// Parameters:
	//   - index: the light slot in [0, MaxLights)
	//   - position: the light position
	//   - at: the point the light looks at during its shadow pass
	//
	// Returns:
	//   - error: ErrLightIndex for slots out of range
	SetLight(index int, position, at common.Vec3) error

	// Light returns a light and whether the slot is in use.
	Light(index int) (Light, bool)

	// LightCount returns one past the highest light slot in use.
	LightCount() int

	// SetActiveLight selects the light whose position feeds the view-space light constant.
	//
	// Parameters:
	//   - index: a slot below LightCount
	//
	// Returns:
	//   - error: ErrLightIndex for unused slots
	SetActiveLight(index int) error

	// ActiveLight returns the active light slot.
	ActiveLight() int

	// SetAmbient sets the ambient light colour.
	SetAmbient(color common.Vec4)

	// Ambient returns the ambient light colour.
	Ambient() common.Vec4

	// SinglePassStereoSupported reports whether the device can render both eyes in one instanced pass.
	SinglePassStereoSupported() bool

	// SinglePassStereoEnabled reports whether stereo targets are drawn in one pass.
	SinglePassStereoEnabled() bool

	// EnableSinglePassStereo turns single-pass stereo on or off. It stays off without device support.
	EnableSinglePassStereo(enabled bool)

	// Update applies shader files changed since the previous call. It must be called between frames.
	//
	// Returns:
	//   - error: the joined reload errors; shaders that failed keep their previous module
	Update() error

	// BeginFrame starts a device frame and rebinds the current targets and render state.
	BeginFrame() error

	// EndFrame submits the device frame.
	EndFrame()

	// Present shows the back buffer.
	Present()

	// Resize resizes the device back buffer and drops the cached native wrappers.
	Resize(width, height int)

	// Release frees the shader cache, the watcher and every texture the renderer created.
	Release()
}

var _ Renderer = &renderer{}

// NewRenderer creates a render context on dev and puts it in its initial state: a back buffer of the
// configured size, ambient (0.1, 0.1, 0.1, 1), light 0 at (7.5, 10, -2.5) looking at the origin, a view
// from (5, 5, 5) at the origin, a pi/4 perspective over 1..1000 and the default render state.
//
// Parameters:
//   - dev: the device
//   - options: variadic RendererBuilderOption functions
//
// Returns:
//   - Renderer: the render context
//   - error: a back buffer or watcher creation error
func NewRenderer(dev device.Device, options ...RendererBuilderOption) (Renderer, error) {
	r := &renderer{
		dev:              dev,
		logger:           slog.Default(),
		shaderMediaDir:   shader.DefaultMediaDir,
		textureMediaDir:  texture.DefaultMediaDir,
		backBufferWidth:  512,
		backBufferHeight: 512,
		backBufferFormat: device.FormatBGRA8Unorm,
		nativeBuffers:    make(map[uintptr]texture.Texture2D),
		ambient:          common.Vec4{0.1, 0.1, 0.1, 1},
		lightViewProj:    common.Identity(),
		cameraView:       View{Left: common.Identity(), Right: common.Identity()},
		lightCount:       1,
	}
	r.lights[0] = Light{Position: common.Vec3{7.5, 10, -2.5}}

	for _, opt := range options {
		opt(r)
	}

	r.shaders = shader.NewCache(dev, shader.WithLogger(r.logger), shader.WithMediaDir(r.shaderMediaDir))
	if r.hotReload {
		w, err := shader.NewWatcher(r.logger)
		if err != nil {
			return nil, fmt.Errorf("shader watcher: %w", err)
		}
		r.watcher = w
	}

	bb, err := texture.NewTexture(dev, r.backBufferWidth, r.backBufferHeight, r.backBufferFormat,
		texture.WithLogger(r.logger), texture.WithLabel("Back Buffer"))
	if err != nil {
		r.Release()
		return nil, fmt.Errorf("back buffer: %w", err)
	}
	r.ownedBackBuffer = bb
	r.backBuffer = bb

	view := common.LookAtRH(common.Vec3{5, 5, 5}, common.Vec3{}, common.Vec3{0, 1, 0})
	r.views = []View{{Left: view, Right: view}}
	r.projs = []Projection{perspective(math32.Pi/4, bb.Aspect(), 1, 1000)}
	r.states = []RenderState{DefaultRenderState}
	r.cameraProj = r.projs[0]

	r.EnableSinglePassStereo(r.spsRequested)
	r.applyState()
	r.rebind()
	return r, nil
}

func (r *renderer) Device() device.Device { return r.dev }
func (r *renderer) Logger() *slog.Logger  { return r.logger }
func (r *renderer) Shaders() shader.Cache { return r.shaders }

func (r *renderer) MeshOptions() []mesh.MeshBuilderOption {
	return append([]mesh.MeshBuilderOption{mesh.WithLogger(r.logger)}, r.meshOptions...)
}

func (r *renderer) TextureOptions() []texture.TextureBuilderOption {
	return []texture.TextureBuilderOption{texture.WithLogger(r.logger), texture.WithMediaDir(r.textureMediaDir)}
}
func (r *renderer) View() View             { return r.views[len(r.views)-1] }
func (r *renderer) Projection() Projection { return r.projs[len(r.projs)-1] }
func (r *renderer) RenderState() RenderState {
	return r.states[len(r.states)-1]
}

func (r *renderer) LoadShader(stage shader.Stage, filename string) (shader.Shader, error) {
	s, err := r.shaders.Load(stage, filename)
	if err != nil {
		return nil, err
	}
	if r.watcher != nil {
		if err := r.watcher.Watch(s.Path()); err != nil {
			r.logger.Warn("cannot watch shader", "path", s.Path(), "error", err)
		}
	}
	return s, nil
}

func (r *renderer) AddGlobalRenderPass(vs, ps string, index int) {
	desc := RenderPassDesc{Index: index, VertexShader: vs, PixelShader: ps}
	for i := range r.globalPasses {
		if r.globalPasses[i].Index == index {
			r.globalPasses[i] = desc
			return
		}
	}
	r.globalPasses = append(r.globalPasses, desc)
}

func (r *renderer) GlobalRenderPasses() []RenderPassDesc {
	return append([]RenderPassDesc(nil), r.globalPasses...)
}

func (r *renderer) PushView(left, right common.Mat4) {
	r.views = append(r.views, View{Left: left, Right: right})
}

func (r *renderer) PushViewLookAt(eye, at, up common.Vec3) {
	m := common.LookAtRH(eye, at, up)
	r.PushView(m, m)
}

func (r *renderer) PopView() {
	if len(r.views) > 1 {
		r.views = r.views[:len(r.views)-1]
	}
}

func (r *renderer) PushProj(left, right common.Mat4) {
	r.projs = append(r.projs, Projection{Left: left, Right: right})
}

func (r *renderer) PushProjPerspective(fovY, aspect, near, far float32) {
	r.projs = append(r.projs, perspective(fovY, aspect, near, far))
}

func (r *renderer) PushProjOrtho(width, height, near, far float32) {
	m := common.OrthographicRH(width, height, near, far)
	r.projs = append(r.projs, Projection{
		Left:            m,
		Right:           m,
		NearPlaneHeight: height,
		NearPlaneWidth:  width,
		Near:            near,
		Far:             far,
		Range:           far / (far - near),
	})
}

func (r *renderer) PopProj() {
	if len(r.projs) > 1 {
		r.projs = r.projs[:len(r.projs)-1]
	}
}

func perspective(fovY, aspect, near, far float32) Projection {
	m := common.PerspectiveRH(fovY, aspect, near, far)
	h := math32.Tan(fovY/2) * 2 * near
	return Projection{
		Left:            m,
		Right:           m,
		NearPlaneHeight: h,
		NearPlaneWidth:  h * aspect,
		Near:            near,
		Far:             far,
		Range:           far / (far - near),
	}
}

func (r *renderer) pushState(s RenderState) {
	r.states = append(r.states, s)
	r.applyState()
}

func (r *renderer) popState() {
	if len(r.states) > 1 {
		r.states = r.states[:len(r.states)-1]
	}
	r.applyState()
}

func (r *renderer) applyState() {
	s := r.RenderState()
	r.dev.SetBlendMode(s.Blend)
	r.dev.SetDepthTest(s.DepthTest)
	r.dev.SetBackfaceCulling(s.BackfaceCulling)
}

func (r *renderer) PushAlphaBlendState(mode device.BlendMode) {
	s := r.RenderState()
	s.Blend = mode
	r.pushState(s)
}

func (r *renderer) PopAlphaBlendState() { r.popState() }

func (r *renderer) PushDepthTestState(enabled bool) {
	s := r.RenderState()
	s.DepthTest = enabled
	r.pushState(s)
}

func (r *renderer) PopDepthTestState() { r.popState() }

func (r *renderer) PushBackfaceCullingState(enabled bool) {
	s := r.RenderState()
	s.BackfaceCulling = enabled
	r.pushState(s)
}

func (r *renderer) PopBackfaceCullingState() { r.popState() }

func (r *renderer) PushRenderPass(index int, targets ...texture.Texture2D) {
	current := r.CurrentRenderTarget()
	if len(targets) == 0 {
		targets = []texture.Texture2D{current}
	}
	bound := make([]texture.Texture2D, len(targets))
	for i, t := range targets {
		// a nil entry keeps drawing into the enclosing target
		if t == nil {
			t = current
		}
		bound[i] = t
	}
	r.passes = append(r.passes, renderPass{index: index, targets: bound})
	r.rebind()
}

func (r *renderer) PopRenderPass() {
	if len(r.passes) == 0 {
		return
	}
	r.passes = r.passes[:len(r.passes)-1]
	r.rebind()
	r.dev.ClearShaderResources()
}

func (r *renderer) ActiveRenderPassIndex() int {
	if len(r.passes) == 0 {
		return 0
	}
	return r.passes[len(r.passes)-1].index
}

func (r *renderer) CurrentRenderTarget() texture.Texture2D {
	if len(r.passes) == 0 {
		return r.backBuffer
	}
	return r.passes[len(r.passes)-1].targets[0]
}

func (r *renderer) currentTargets() []texture.Texture2D {
	if len(r.passes) == 0 {
		if r.backBuffer == nil {
			return nil
		}
		return []texture.Texture2D{r.backBuffer}
	}
	return r.passes[len(r.passes)-1].targets
}

// rebind binds the current targets, picking the right-eye views of stereo targets during a
// right-eye pass. Depth and viewport come from target 0.
func (r *renderer) rebind() {
	targets := r.currentTargets()
	if len(targets) == 0 || targets[0] == nil {
		return
	}
	right := r.RenderState().RightEyePass
	colors := make([]device.TextureView, 0, len(targets))
	for _, t := range targets {
		if t == nil {
			continue
		}
		if v := t.RenderTargetView(right); v != nil {
			colors = append(colors, v)
		}
	}
	r.dev.SetRenderTargets(colors, targets[0].DepthView(right))
	r.dev.SetViewport(targets[0].Viewport())
}

func (r *renderer) PushRightEyePass(index int, target texture.Texture2D) {
	s := r.RenderState()
	s.RightEyePass = true
	r.pushState(s)
	r.PushRenderPass(index, target)
}

func (r *renderer) PopRightEyePass() {
	r.popState()
	r.PopRenderPass()
}

func (r *renderer) PushShadowPass(depthMap texture.Texture2D, index int, lightIndex int) error {
	light, ok := r.Light(lightIndex)
	if !ok {
		return fmt.Errorf("shadow pass light %d: %w", lightIndex, ErrLightIndex)
	}
	r.PushRenderPass(index, depthMap)
	r.PushViewLookAt(light.Position, light.At, common.Vec3{0, 1, 0})
	r.PushProjPerspective(math32.Pi/4, 1, 1, 250)
	r.StoreCurrentViewProjAsLightViewProj()
	return nil
}

func (r *renderer) PopShadowPass() {
	r.PopProj()
	r.PopView()
	r.PopRenderPass()
}

func (r *renderer) pushUIPass(target texture.Texture2D, fullscreen bool) {
	r.PushRenderPass(0, target)
	r.PushViewLookAt(common.Vec3{0, 0, 1}, common.Vec3{}, common.Vec3{0, 1, 0})
	aspect := float32(1)
	if t := r.CurrentRenderTarget(); t != nil {
		aspect = t.Viewport().Aspect()
	}
	r.PushProjOrtho(aspect, 1, 1, 1000)
	s := r.RenderState()
	s.DepthTest = false
	s.FullscreenPass = fullscreen || s.FullscreenPass
	r.pushState(s)
}

func (r *renderer) popUIPass() {
	r.popState()
	r.PopProj()
	r.PopView()
	r.PopRenderPass()
}

func (r *renderer) PushUIPass(target texture.Texture2D)         { r.pushUIPass(target, false) }
func (r *renderer) PopUIPass()                                  { r.popUIPass() }
func (r *renderer) PushFullscreenPass(target texture.Texture2D) { r.pushUIPass(target, true) }
func (r *renderer) PopFullscreenPass()                          { r.popUIPass() }

func (r *renderer) StoreCurrentViewProjAsLightViewProj() {
	r.lightViewProj = common.Mul4(r.Projection().Left, r.View().Left)
}

func (r *renderer) StoreCurrentViewAsCameraView() {
	r.cameraView = r.View()
	r.cameraProj = r.Projection()
}

func (r *renderer) LightViewProj() common.Mat4    { return r.lightViewProj }
func (r *renderer) CameraView() View              { return r.cameraView }
func (r *renderer) CameraProjection() Projection  { return r.cameraProj }
func (r *renderer) BackBuffer() texture.Texture2D { return r.backBuffer }

func (r *renderer) ActiveCamera() (View, Projection) {
	if r.RenderState().FullscreenPass {
		return r.cameraView, r.cameraProj
	}
	return r.View(), r.Projection()
}

func (r *renderer) SetBackBuffer(tex texture.Texture2D) {
	r.backBuffer = tex
	if len(r.passes) == 0 {
		r.rebind()
	}
}

func (r *renderer) SetBackBufferNative(handle uintptr, viewport common.Viewport) error {
	bb, ok := r.nativeBuffers[handle]
	if !ok {
		var err error
		bb, err = texture.WrapNative(r.dev, handle, viewport,
			texture.WithLogger(r.logger), texture.WithLabel(fmt.Sprintf("Back Buffer %#x", handle)))
		if err != nil {
			return err
		}
		r.nativeBuffers[handle] = bb
	} else if viewport.Width > 0 {
		bb.SetViewport(viewport)
	} else {
		bb.SetViewport(common.NewViewport(bb.Width(), bb.Height()))
	}
	r.SetBackBuffer(bb)
	return nil
}

func (r *renderer) SetLight(index int, position, at common.Vec3) error {
	if index < 0 || index >= MaxLights {
		return fmt.Errorf("set light %d: %w", index, ErrLightIndex)
	}
	r.lights[index] = Light{Position: position, At: at}
	r.lightCount = max(r.lightCount, index+1)
	return nil
}

func (r *renderer) Light(index int) (Light, bool) {
	if index < 0 || index >= r.lightCount {
		return Light{}, false
	}
	return r.lights[index], true
}

func (r *renderer) LightCount() int  { return r.lightCount }
func (r *renderer) ActiveLight() int { return r.activeLight }

func (r *renderer) SetActiveLight(index int) error {
	if index < 0 || index >= r.lightCount {
		return fmt.Errorf("active light %d: %w", index, ErrLightIndex)
	}
	r.activeLight = index
	return nil
}

func (r *renderer) SetAmbient(color common.Vec4) { r.ambient = color }
func (r *renderer) Ambient() common.Vec4         { return r.ambient }

func (r *renderer) SinglePassStereoSupported() bool { return r.dev.SupportsSinglePassStereo() }
func (r *renderer) SinglePassStereoEnabled() bool   { return r.spsEnabled }

func (r *renderer) EnableSinglePassStereo(enabled bool) {
	r.spsEnabled = enabled && r.dev.SupportsSinglePassStereo()
}

func (r *renderer) Update() error {
	if r.watcher == nil {
		return nil
	}
	changed := r.watcher.Changed()
	if len(changed) == 0 {
		return nil
	}
	n, err := r.shaders.Reload(changed)
	if n > 0 {
		r.logger.Info("shaders reloaded", "count", n)
	}
	if err != nil {
		r.logger.Error("shader reload failed", "error", err)
	}
	return err
}

func (r *renderer) BeginFrame() error {
	if err := r.dev.BeginFrame(); err != nil {
		return err
	}
	r.applyState()
	r.rebind()
	return nil
}

func (r *renderer) EndFrame() { r.dev.EndFrame() }
func (r *renderer) Present()  { r.dev.Present() }

func (r *renderer) Resize(width, height int) {
	r.dev.Resize(width, height)

	var current uintptr
	rewrap := false
	for handle, bb := range r.nativeBuffers {
		if bb == r.backBuffer {
			current, rewrap = handle, true
		}
		bb.Reset()
	}
	clear(r.nativeBuffers)
	if rewrap {
		if err := r.SetBackBufferNative(current, common.Viewport{}); err != nil {
			r.logger.Error("back buffer rewrap after resize failed", "handle", current, "error", err)
			r.backBuffer = r.ownedBackBuffer
		}
	}
}

func (r *renderer) Release() {
	if r.watcher != nil {
		if err := r.watcher.Close(); err != nil {
			r.logger.Warn("shader watcher close failed", "error", err)
		}
		r.watcher = nil
	}
	if r.shaders != nil {
		r.shaders.Release()
	}
	for _, bb := range r.nativeBuffers {
		bb.Reset()
	}
	clear(r.nativeBuffers)
	if r.ownedBackBuffer != nil {
		r.ownedBackBuffer.Reset()
		r.ownedBackBuffer = nil
	}
	r.backBuffer = nil
}
