package camera

import "github.com/Carmen-Shannon/oxy-xr/common"

type CameraBuilderOption func(*cameraImpl)

// WithHeadPose sets the initial head pose.
//
// Parameters:
//   - position: the head position
//   - forward: the view direction
//   - up: the up direction
//
// Returns:
//   - CameraBuilderOption: a function that sets the head pose
func WithHeadPose(position, forward, up common.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.setPose(position, forward, up)
	}
}

// WithEyeSeparation sets the distance between the eyes.
//
// Parameters:
//   - d: the eye separation in world units
//
// Returns:
//   - CameraBuilderOption: a function that sets the eye separation
func WithEyeSeparation(d float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.eyeSeparation = d
	}
}

// WithFov sets the vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFov(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fov = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithClipPlanes sets the near and far clipping plane distances.
//
// Parameters:
//   - near: near plane distance
//   - far: far plane distance
//
// Returns:
//   - CameraBuilderOption: a function that sets the clip planes
func WithClipPlanes(near, far float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.near = near
		c.far = far
	}
}

// WithController attaches a controller. NewCamera applies it to the head pose after all options.
//
// Parameters:
//   - ctrl: the controller to attach
//
// Returns:
//   - CameraBuilderOption: functional option to set the controller
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
