package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/chewxy/math32"
)

// DefaultEyeSeparation is the interpupillary distance in metres used when none is configured.
const DefaultEyeSeparation = 0.064

type cameraImpl struct {
	mu sync.Mutex

	position common.Vec3
	forward  common.Vec3
	up       common.Vec3

	eyeSeparation float32
	fov           float32
	aspect        float32
	near          float32
	far           float32

	controller CameraController
}

// Camera produces the stereo view pair and projection for a head pose. The eyes sit half the eye
// separation to either side of the head along its right axis and share the head's orientation.
//
// A Camera is safe for concurrent use so input callbacks can drive its controller while the render
// thread reads the matrices.
type Camera interface {
	// HeadPose returns the head position and its normalized forward and up directions.
	//
	// Returns:
	//   - position: the head position
	//   - forward: the view direction
	//   - up: the up direction
	HeadPose() (position, forward, up common.Vec3)

	// SetHeadPose sets the head pose directly, for example from a headset tracker.
	//
	// Parameters:
	//   - position: the head position
	//   - forward: the view direction; normalized on store
	//   - up: the up direction; normalized on store
	SetHeadPose(position, forward, up common.Vec3)

	EyeSeparation() float32
	SetEyeSeparation(d float32)

	// Fov returns the vertical field of view in radians.
	Fov() float32
	SetFov(fov float32)
	Aspect() float32
	SetAspect(aspect float32)
	Near() float32
	SetNear(near float32)
	Far() float32
	SetFar(far float32)

	// Controller returns the attached controller, or nil.
	Controller() CameraController

	// SetController attaches a controller whose position and target drive the head pose in Update.
	//
	// Parameters:
	//   - ctrl: the controller, or nil to detach
	SetController(ctrl CameraController)

	// Update copies the controller's position and target into the head pose. It does nothing without
	// a controller.
	Update()

	// EyePositions returns the left and right eye positions.
	EyePositions() (left, right common.Vec3)

	// Views returns the left and right eye view matrices.
	//
	// Returns:
	//   - left: the left eye world-to-view matrix
	//   - right: the right eye world-to-view matrix
	Views() (left, right common.Mat4)

	// Projection returns the perspective projection shared by both eyes.
	Projection() common.Mat4

	// Visible reports whether box, in world space, intersects either eye's view volume.
	//
	// Parameters:
	//   - box: the world space box
	//
	// Returns:
	//   - bool: false only if both eyes cannot see the box
	Visible(box common.AABB) bool

	// Push pushes the stereo view pair and the projection onto the render context's stacks.
	//
	// Parameters:
	//   - r: the render context
	Push(r renderer.Renderer)

	// Pop pops what Push pushed.
	//
	// Parameters:
	//   - r: the render context
	Pop(r renderer.Renderer)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a stereo camera at the origin looking down -Z with a pi/4 field of view, an aspect
// of 1 and clip planes at 0.1 and 100.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		forward:       common.Vec3{0, 0, -1},
		up:            common.Vec3{0, 1, 0},
		eyeSeparation: DefaultEyeSeparation,
		fov:           math32.Pi / 4,
		aspect:        1,
		near:          0.1,
		far:           100,
	}
	for _, option := range options {
		option(c)
	}
	c.Update()
	return c
}

func (c *cameraImpl) HeadPose() (position, forward, up common.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position, c.forward, c.up
}

func (c *cameraImpl) SetHeadPose(position, forward, up common.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setPose(position, forward, up)
}

// setPose keeps the previous direction when forward or up is degenerate. Caller must hold the mutex.
func (c *cameraImpl) setPose(position, forward, up common.Vec3) {
	c.position = position
	if forward.Length() > 1e-6 {
		c.forward = forward.Normalize()
	}
	if up.Length() > 1e-6 {
		c.up = up.Normalize()
	}
}

func (c *cameraImpl) EyeSeparation() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eyeSeparation
}

func (c *cameraImpl) SetEyeSeparation(d float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.eyeSeparation = d
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	position := c.controller.Position()
	c.setPose(position, c.controller.Target().Sub(position), c.up)
}

func (c *cameraImpl) EyePositions() (left, right common.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eyePositions()
}

// eyePositions offsets the head along its right axis. Caller must hold the mutex.
func (c *cameraImpl) eyePositions() (left, right common.Vec3) {
	offset := c.forward.Cross(c.up).Normalize().Scale(c.eyeSeparation / 2)
	return c.position.Sub(offset), c.position.Add(offset)
}

func (c *cameraImpl) Views() (left, right common.Mat4) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.views()
}

func (c *cameraImpl) views() (left, right common.Mat4) {
	l, r := c.eyePositions()
	return common.LookToRH(l, c.forward, c.up), common.LookToRH(r, c.forward, c.up)
}

func (c *cameraImpl) Projection() common.Mat4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.PerspectiveRH(c.fov, c.aspect, c.near, c.far)
}

func (c *cameraImpl) Visible(box common.AABB) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	proj := common.PerspectiveRH(c.fov, c.aspect, c.near, c.far)
	left, right := c.views()
	return common.ExtractFrustum(common.Mul4(proj, left)).IntersectsAABB(box) ||
		common.ExtractFrustum(common.Mul4(proj, right)).IntersectsAABB(box)
}

func (c *cameraImpl) Push(r renderer.Renderer) {
	c.mu.Lock()
	left, right := c.views()
	fov, aspect, near, far := c.fov, c.aspect, c.near, c.far
	c.mu.Unlock()

	r.PushView(left, right)
	r.PushProjPerspective(fov, aspect, near, far)
}

func (c *cameraImpl) Pop(r renderer.Renderer) {
	r.PopProj()
	r.PopView()
}
