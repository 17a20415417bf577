package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestNewCameraController_Defaults(t *testing.T) {
	cc := NewCameraController()

	assert.Equal(t, float32(3), cc.Radius())
	assert.Equal(t, float32(0), cc.Azimuth())
	assert.InDelta(t, math32.Pi/6, cc.Elevation(), 1e-6)
	assert.InDelta(t, 3, cc.Position().Sub(cc.Target()).Length(), 1e-5)
}

func TestNewCameraController_IgnoresInvalidOptions(t *testing.T) {
	cc := NewCameraController(
		WithRadius(100),
		WithRadiusBounds(5, 1),
		WithElevationBounds(1, -1),
		WithZoomSpeed(0),
		WithPanSpeed(-1),
	)

	assert.Equal(t, float32(50), cc.Radius(), "default radius bounds still clamp")
	cc.Zoom(1)
	assert.Equal(t, float32(49.75), cc.Radius(), "default zoom speed kept")
}

func TestCameraController_ZoomClamps(t *testing.T) {
	cc := NewCameraController(WithRadius(5), WithRadiusBounds(1, 10), WithZoomSpeed(1))

	cc.Zoom(2)
	assert.Equal(t, float32(3), cc.Radius())
	cc.Zoom(100)
	assert.Equal(t, float32(1), cc.Radius())
	cc.Zoom(-100)
	assert.Equal(t, float32(10), cc.Radius())
	assert.InDelta(t, 10, cc.Position().Length(), 1e-4)
}

func TestCameraController_OrbitClampsElevation(t *testing.T) {
	cc := NewCameraController(WithElevation(0), WithElevationBounds(-0.5, 0.5), WithOrbitSpeed(0.1))

	cc.Orbit(2, 3)
	assert.InDelta(t, 0.2, cc.Azimuth(), 1e-6)
	assert.InDelta(t, 0.3, cc.Elevation(), 1e-6)

	cc.Orbit(0, 100)
	assert.Equal(t, float32(0.5), cc.Elevation())
	cc.SetElevation(-9)
	assert.Equal(t, float32(-0.5), cc.Elevation())
}

func TestCameraController_Drag(t *testing.T) {
	cc := NewCameraController(WithElevation(0), WithMouseSensitivity(0.01))
	cc.Drag(10, -20)

	assert.InDelta(t, 0.1, cc.Azimuth(), 1e-6)
	assert.InDelta(t, -0.2, cc.Elevation(), 1e-6)
}

func TestCameraController_PanMovesTargetAndPosition(t *testing.T) {
	cc := NewCameraController(WithElevation(0), WithRadius(2), WithPanSpeed(1))
	a := assert.New(t)

	// looking down -Z from (0,0,2): right is +X, up is +Y
	cc.Pan(1, 0, 0)
	a.True(cc.Target().ApproxEqual(common.Vec3{1, 0, 0}, 1e-5), "target %v", cc.Target())
	a.True(cc.Position().ApproxEqual(common.Vec3{1, 0, 2}, 1e-5), "position %v", cc.Position())

	cc.Pan(0, 1, 0)
	a.True(cc.Target().ApproxEqual(common.Vec3{1, 1, 0}, 1e-5))

	cc.Pan(0, 0, 0.5)
	a.True(cc.Target().ApproxEqual(common.Vec3{1, 1, -0.5}, 1e-5))
	a.True(cc.Position().ApproxEqual(common.Vec3{1, 1, 1.5}, 1e-5))
	a.InDelta(2, cc.Radius(), 1e-6)
}

func TestCameraController_SetTarget(t *testing.T) {
	cc := NewCameraController(WithElevation(0), WithRadius(1))
	cc.SetTarget(common.Vec3{5, 0, 0})
	assert.True(t, cc.Position().ApproxEqual(common.Vec3{5, 0, 1}, 1e-5))
}
