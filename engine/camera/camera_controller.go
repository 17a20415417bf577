package camera

import "github.com/Carmen-Shannon/oxy-xr/common"

// CameraController drives a head pose from desktop input when no tracker is present. It orbits a
// target point in spherical coordinates (radius, azimuth, elevation) and pans position and target
// together along the view axes.
type CameraController interface {
	// Position returns the world-space eye position.
	Position() common.Vec3

	// Target returns the orbit pivot the controller looks at.
	Target() common.Vec3

	// SetTarget moves the pivot and recomputes the position from the spherical coordinates.
	//
	// Parameters:
	//   - target: the new pivot
	SetTarget(target common.Vec3)

	// Orbit rotates around the target by a number of orbit speed steps. Elevation is clamped.
	//
	// Parameters:
	//   - azimuthSteps: steps around the Y axis; positive turns right
	//   - elevationSteps: steps up from the horizontal plane
	Orbit(azimuthSteps, elevationSteps float32)

	// Drag orbits by a mouse movement in pixels scaled by the mouse sensitivity.
	//
	// Parameters:
	//   - dx: horizontal movement
	//   - dy: vertical movement; positive moves the view down
	Drag(dx, dy float64)

	// Zoom moves toward the target by delta times the zoom speed. The radius is clamped.
	Zoom(delta float32)

	// Pan translates position and target along the right, up and forward view axes, each scaled by
	// the pan speed.
	//
	// Parameters:
	//   - right: movement along the right axis
	//   - up: movement along the up axis
	//   - forward: movement along the view direction
	Pan(right, up, forward float32)

	Radius() float32
	SetRadius(radius float32)
	Azimuth() float32
	SetAzimuth(azimuth float32)
	Elevation() float32
	SetElevation(elevation float32)
}
