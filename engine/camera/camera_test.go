package camera

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCamera_Defaults(t *testing.T) {
	c := NewCamera()

	pos, fwd, up := c.HeadPose()
	assert.Equal(t, common.Vec3{}, pos)
	assert.Equal(t, common.Vec3{0, 0, -1}, fwd)
	assert.Equal(t, common.Vec3{0, 1, 0}, up)
	assert.InDelta(t, DefaultEyeSeparation, c.EyeSeparation(), 1e-6)
	assert.InDelta(t, math32.Pi/4, c.Fov(), 1e-6)
	assert.Equal(t, float32(1), c.Aspect())
	assert.Equal(t, float32(0.1), c.Near())
	assert.Equal(t, float32(100), c.Far())
	assert.Nil(t, c.Controller())
}

func TestCamera_EyePositions(t *testing.T) {
	c := NewCamera(
		WithHeadPose(common.Vec3{1, 2, 3}, common.Vec3{0, 0, -2}, common.Vec3{0, 1, 0}),
		WithEyeSeparation(0.1),
	)

	left, right := c.EyePositions()
	assert.True(t, left.ApproxEqual(common.Vec3{0.95, 2, 3}, 1e-6), "left %v", left)
	assert.True(t, right.ApproxEqual(common.Vec3{1.05, 2, 3}, 1e-6), "right %v", right)

	// turned to face +X, right is +Z
	c.SetHeadPose(common.Vec3{}, common.Vec3{1, 0, 0}, common.Vec3{0, 1, 0})
	left, right = c.EyePositions()
	assert.True(t, left.ApproxEqual(common.Vec3{0, 0, -0.05}, 1e-6), "left %v", left)
	assert.True(t, right.ApproxEqual(common.Vec3{0, 0, 0.05}, 1e-6), "right %v", right)
}

func TestCamera_SetHeadPose_IgnoresDegenerateDirections(t *testing.T) {
	c := NewCamera()
	c.SetHeadPose(common.Vec3{0, 1, 0}, common.Vec3{}, common.Vec3{})

	pos, fwd, up := c.HeadPose()
	assert.Equal(t, common.Vec3{0, 1, 0}, pos)
	assert.Equal(t, common.Vec3{0, 0, -1}, fwd)
	assert.Equal(t, common.Vec3{0, 1, 0}, up)
}

func TestCamera_Views(t *testing.T) {
	c := NewCamera(WithEyeSeparation(0.2))
	left, right := c.Views()

	// each eye maps its own position to the view space origin
	l, r := c.EyePositions()
	assert.True(t, left.TransformPoint(l).ApproxEqual(common.Vec3{}, 1e-5))
	assert.True(t, right.TransformPoint(r).ApproxEqual(common.Vec3{}, 1e-5))

	// a point straight ahead of the head is to the right of the left eye
	ahead := common.Vec3{0, 0, -5}
	assert.InDelta(t, 0.1, left.TransformPoint(ahead)[0], 1e-5)
	assert.InDelta(t, -0.1, right.TransformPoint(ahead)[0], 1e-5)
	assert.InDelta(t, -5, left.TransformPoint(ahead)[2], 1e-5)
}

func TestCamera_Projection(t *testing.T) {
	c := NewCamera(WithFov(math32.Pi/2), WithAspect(2), WithClipPlanes(0.5, 50))
	assert.True(t, c.Projection().ApproxEqual(common.PerspectiveRH(math32.Pi/2, 2, 0.5, 50), 1e-6))

	c.SetFov(1)
	c.SetAspect(1.5)
	c.SetNear(1)
	c.SetFar(10)
	assert.True(t, c.Projection().ApproxEqual(common.PerspectiveRH(1, 1.5, 1, 10), 1e-6))
}

func TestCamera_Visible(t *testing.T) {
	c := NewCamera(WithHeadPose(common.Vec3{0, 0, 5}, common.Vec3{0, 0, -1}, common.Vec3{0, 1, 0}))

	assert.True(t, c.Visible(common.AABBFromMinMax(common.Vec3{-1, -1, -1}, common.Vec3{1, 1, 1})))
	assert.False(t, c.Visible(common.AABBFromMinMax(common.Vec3{-1, -1, 6}, common.Vec3{1, 1, 8})), "behind")
	assert.False(t, c.Visible(common.AABBFromMinMax(common.Vec3{40, -1, -1}, common.Vec3{42, 1, 1})), "off to the side")
}

func TestCamera_PushPop(t *testing.T) {
	r, err := renderer.NewRenderer(device.NewRecordingDevice())
	require.NoError(t, err)
	t.Cleanup(r.Release)

	before := r.View()
	c := NewCamera(WithHeadPose(common.Vec3{0, 1.6, 0}, common.Vec3{0, 0, -1}, common.Vec3{0, 1, 0}))
	c.Push(r)

	left, right := c.Views()
	assert.Equal(t, left, r.View().Left)
	assert.Equal(t, right, r.View().Right)
	assert.NotEqual(t, r.View().Left, r.View().Right)
	assert.InDelta(t, c.Near(), r.Projection().Near, 1e-6)
	assert.True(t, r.Projection().Left.ApproxEqual(c.Projection(), 1e-5))

	c.Pop(r)
	assert.Equal(t, before, r.View())
}

func TestCamera_FollowsController(t *testing.T) {
	ctrl := NewCameraController(WithTarget(common.Vec3{0, 1, 0}), WithRadius(2), WithElevation(0))
	c := NewCamera(WithController(ctrl))

	pos, fwd, _ := c.HeadPose()
	assert.True(t, pos.ApproxEqual(common.Vec3{0, 1, 2}, 1e-5), "pos %v", pos)
	assert.True(t, fwd.ApproxEqual(common.Vec3{0, 0, -1}, 1e-5), "fwd %v", fwd)

	ctrl.SetAzimuth(math32.Pi / 2)
	c.Update()
	pos, fwd, _ = c.HeadPose()
	assert.True(t, pos.ApproxEqual(common.Vec3{-2, 1, 0}, 1e-5), "pos %v", pos)
	assert.True(t, fwd.ApproxEqual(common.Vec3{1, 0, 0}, 1e-5), "fwd %v", fwd)

	c.SetController(nil)
	c.Update()
	after, _, _ := c.HeadPose()
	assert.Equal(t, pos, after)
}
