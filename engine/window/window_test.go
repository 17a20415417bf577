package window

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/stretchr/testify/assert"
)

func TestNewEngineWindow_Defaults(t *testing.T) {
	w := newEngineWindow()

	assert.Equal(t, "oxy-xr", w.Title())
	assert.Equal(t, 1280, w.Width())
	assert.Equal(t, 720, w.Height())
	assert.False(t, w.IsRunning(), "no platform window yet")
	assert.Nil(t, w.SurfaceDescriptor())
	w.RequestClose()
	assert.Error(t, w.Close())
}

func TestNewEngineWindow_Options(t *testing.T) {
	w := newEngineWindow(
		WithTitle("mirror"),
		WithSize(800, 0),
		WithMinSize(100, 100),
		WithMaxSize(640, 480),
	)

	assert.Equal(t, "mirror", w.Title())
	assert.Equal(t, "oxy-xr", newEngineWindow(WithTitle("")).Title())
	assert.Equal(t, 640, w.Width(), "clamped to the max width")
	assert.Equal(t, 480, w.Height(), "clamped to the max height")

	w = newEngineWindow(WithSize(10, 10))
	assert.Equal(t, 320, w.Width())
	assert.Equal(t, 200, w.Height())
}

func TestEngineWindow_Dispatch(t *testing.T) {
	w := newEngineWindow()

	// no callbacks set
	w.dispatchKey(common.KeyW, true)
	w.dispatchScroll(1)
	w.dispatchMouseButton(MouseButtonLeft, true, 0, 0)
	w.dispatchMouseMove(1, 1)

	var down, up []uint32
	var sizes [][2]int
	var scroll float32
	var buttons []MouseButton
	var moved [2]float64
	w.SetKeyDownCallback(func(k uint32) { down = append(down, k) })
	w.SetKeyUpCallback(func(k uint32) { up = append(up, k) })
	w.SetResizeCallback(func(width, height int) { sizes = append(sizes, [2]int{width, height}) })
	w.SetScrollCallback(func(d float32) { scroll += d })
	w.SetMouseButtonCallback(func(b MouseButton, isDown bool, _, _ float64) {
		if isDown {
			buttons = append(buttons, b)
		}
	})
	w.SetMouseMoveCallback(func(x, y float64) { moved = [2]float64{x, y} })

	w.dispatchKey(common.KeyW, true)
	w.dispatchKey(common.KeyW, false)
	w.dispatchScroll(-2)
	w.dispatchMouseButton(MouseButtonMiddle, true, 3, 4)
	w.dispatchMouseButton(MouseButtonMiddle, false, 3, 4)
	w.dispatchMouseMove(5, 6)
	w.dispatchResize(0, 0)
	w.dispatchResize(1024, 768)

	assert.Equal(t, []uint32{common.KeyW}, down)
	assert.Equal(t, []uint32{common.KeyW}, up)
	assert.Equal(t, float32(-2), scroll)
	assert.Equal(t, []MouseButton{MouseButtonMiddle}, buttons)
	assert.Equal(t, [2]float64{5, 6}, moved)
	assert.Equal(t, [][2]int{{1024, 768}}, sizes, "zero sizes are dropped")
	assert.Equal(t, 1024, w.Width())
	assert.Equal(t, 768, w.Height())
}
