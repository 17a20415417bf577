package camera

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/chewxy/math32"
)

type cameraControllerImpl struct {
	mu sync.Mutex

	position common.Vec3
	target   common.Vec3

	radius    float32
	azimuth   float32 // around +Y, 0 looks down -Z
	elevation float32

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	orbitSpeed       float32
	mouseSensitivity float32
	zoomSpeed        float32
	panSpeed         float32
}

var _ CameraController = &cameraControllerImpl{}

// NewCameraController creates an orbit controller sized for a room: three metres from the origin,
// thirty degrees above the horizon.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewCameraController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		radius:    3,
		elevation: math32.Pi / 6,

		minRadius:    0.25,
		maxRadius:    50,
		minElevation: -math32.Pi/2 + 0.1,
		maxElevation: math32.Pi/2 - 0.1,

		orbitSpeed:       0.03,
		mouseSensitivity: 0.005,
		zoomSpeed:        0.25,
		panSpeed:         0.05,
	}
	for _, option := range options {
		option(cc)
	}
	cc.clamp()
	cc.updatePosition()
	return cc
}

// clamp and updatePosition require the mutex to be held.
func (cc *cameraControllerImpl) clamp() {
	cc.radius = max(cc.minRadius, min(cc.maxRadius, cc.radius))
	cc.elevation = max(cc.minElevation, min(cc.maxElevation, cc.elevation))
}

func (cc *cameraControllerImpl) updatePosition() {
	cosElev, sinElev := math32.Cos(cc.elevation), math32.Sin(cc.elevation)
	offset := common.Vec3{
		-math32.Sin(cc.azimuth) * cosElev,
		sinElev,
		math32.Cos(cc.azimuth) * cosElev,
	}
	cc.position = cc.target.Add(offset.Scale(cc.radius))
}

// axes returns the view basis with world up as the reference, matching LookAtRH.
func (cc *cameraControllerImpl) axes() (right, up, forward common.Vec3) {
	forward = cc.target.Sub(cc.position).Normalize()
	right = forward.Cross(common.Vec3{0, 1, 0}).Normalize()
	up = right.Cross(forward)
	return right, up, forward
}

func (cc *cameraControllerImpl) Position() common.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() common.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(target common.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(azimuthSteps, elevationSteps float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += azimuthSteps * cc.orbitSpeed
	cc.elevation += elevationSteps * cc.orbitSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Drag(dx, dy float64) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += float32(dx) * cc.mouseSensitivity
	cc.elevation += float32(dy) * cc.mouseSensitivity
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius -= delta * cc.zoomSpeed
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Pan(right, up, forward float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	r, u, f := cc.axes()
	offset := r.Scale(right).Add(u.Scale(up)).Add(f.Scale(forward)).Scale(cc.panSpeed)
	cc.target = cc.target.Add(offset)
	cc.position = cc.position.Add(offset)
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) SetRadius(radius float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = radius
	cc.clamp()
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) SetAzimuth(azimuth float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = azimuth
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) SetElevation(elevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.elevation = elevation
	cc.clamp()
	cc.updatePosition()
}
