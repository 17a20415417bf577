package renderer

import (
	"errors"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/texture"
)

// MaxLights is the number of light slots a Renderer holds.
const MaxLights = 8

var (
	// ErrLightIndex is returned for light slots outside [0, MaxLights).
	ErrLightIndex = errors.New("renderer: light index out of range")

	// ErrNoBackBuffer is returned when a pass needs a target and no back buffer is set.
	ErrNoBackBuffer = errors.New("renderer: no back buffer")
)

// View is one entry of the view stack. Mono rendering uses the same matrix for both eyes.
type View struct {
	Left  common.Mat4
	Right common.Mat4
}

// Projection is one entry of the projection stack. The scalar fields are zero for projections
// pushed as raw matrices.
type Projection struct {
	Left  common.Mat4
	Right common.Mat4

	NearPlaneHeight float32
	NearPlaneWidth  float32
	Near            float32
	Far             float32

	// Range is Far / (Far - Near).
	Range float32
}

// RenderState is one entry of the render-state stack. Every push copies the top entry, changes one
// field and pushes the copy, so a pop always restores the exact previous state.
type RenderState struct {
	Blend           device.BlendMode
	DepthTest       bool
	BackfaceCulling bool

	// RightEyePass is set while the right eye of a stereo target is being rendered in a separate pass.
	RightEyePass bool

	// FullscreenPass is set while a fullscreen quad pass is active; draw calls scale their world
	// transform to the target aspect and read the camera snapshot instead of the live view.
	FullscreenPass bool
}

// DefaultRenderState is the sentinel entry of the render-state stack.
var DefaultRenderState = RenderState{
	Blend:           device.BlendModeNone,
	DepthTest:       true,
	BackfaceCulling: true,
}

// Light is a point light that also serves as the eye of the shadow pass.
type Light struct {
	Position common.Vec3
	At       common.Vec3
}

// RenderPassDesc names the shaders a draw call uses for one render-pass index.
type RenderPassDesc struct {
	Index          int
	VertexShader   string
	PixelShader    string
	GeometryShader string
}

// renderPass is one entry of the render-pass stack.
type renderPass struct {
	index   int
	targets []texture.Texture2D
}
