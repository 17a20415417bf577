package camera

import "github.com/Carmen-Shannon/oxy-xr/common"

// CameraControllerOption is a functional option for configuring a CameraController.
type CameraControllerOption func(*cameraControllerImpl)

// WithRadius sets the initial orbit radius (distance from target).
//
// Parameters:
//   - radius: distance from the orbit target
//
// Returns:
//   - CameraControllerOption: functional option to set the radius
func WithRadius(radius float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.radius = radius
	}
}

// WithAzimuth sets the initial horizontal angle around the Y axis.
//
// Parameters:
//   - azimuth: horizontal angle in radians (0 looks down -Z)
//
// Returns:
//   - CameraControllerOption: functional option to set the azimuth
func WithAzimuth(azimuth float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.azimuth = azimuth
	}
}

// WithElevation sets the initial vertical angle from the horizontal plane.
//
// Parameters:
//   - elevation: vertical angle in radians (0 = horizontal)
//
// Returns:
//   - CameraControllerOption: functional option to set the elevation
func WithElevation(elevation float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.elevation = elevation
	}
}

// WithTarget sets the orbit pivot.
//
// Parameters:
//   - target: the world-space pivot
//
// Returns:
//   - CameraControllerOption: functional option to set the target position
func WithTarget(target common.Vec3) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		cc.target = target
	}
}

// WithRadiusBounds sets the zoom limits. Bounds that are not positive or not ordered are ignored.
//
// Parameters:
//   - lo: the closest orbit distance
//   - hi: the furthest orbit distance
//
// Returns:
//   - CameraControllerOption: functional option to set radius bounds
func WithRadiusBounds(lo, hi float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		if lo > 0 && lo <= hi {
			cc.minRadius, cc.maxRadius = lo, hi
		}
	}
}

// WithElevationBounds sets the pitch limits in radians. Unordered bounds are ignored.
func WithElevationBounds(lo, hi float32) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		if lo <= hi {
			cc.minElevation, cc.maxElevation = lo, hi
		}
	}
}

// WithOrbitSpeed sets the radians turned per Orbit step.
func WithOrbitSpeed(speed float32) CameraControllerOption {
	return positive(speed, func(cc *cameraControllerImpl) { cc.orbitSpeed = speed })
}

// WithMouseSensitivity sets the radians turned per pixel of Drag.
func WithMouseSensitivity(sensitivity float32) CameraControllerOption {
	return positive(sensitivity, func(cc *cameraControllerImpl) { cc.mouseSensitivity = sensitivity })
}

// WithZoomSpeed sets the radius change per unit of Zoom.
func WithZoomSpeed(speed float32) CameraControllerOption {
	return positive(speed, func(cc *cameraControllerImpl) { cc.zoomSpeed = speed })
}

// WithPanSpeed sets the metres moved per unit of Pan.
func WithPanSpeed(speed float32) CameraControllerOption {
	return positive(speed, func(cc *cameraControllerImpl) { cc.panSpeed = speed })
}

// positive applies set only for v > 0.
func positive(v float32, set CameraControllerOption) CameraControllerOption {
	return func(cc *cameraControllerImpl) {
		if v > 0 {
			set(cc)
		}
	}
}
