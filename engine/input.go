package engine

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/surface_mapping"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
)

// inputState is only touched on the window goroutine, which also renders.
type inputState struct {
	keys         map[uint32]bool
	dragging     bool
	lastX, lastY float64
}

func newInputState() inputState {
	return inputState{keys: make(map[uint32]bool)}
}

// bindInput maps desktop input onto the camera controller. WASD and Q/E pan (faster with Shift), a
// left or right drag orbits, the wheel zooms, R recentres the orbit target and M cycles the surface
// draw mode.
func (e *engine) bindInput() {
	e.window.SetKeyDownCallback(func(key uint32) {
		e.input.keys[key] = true
		if key == common.KeyM && e.mapping != nil {
			next := (e.mapping.DrawMode() + 1) % (surface_mapping.DrawModeOcclusion + 1)
			e.mapping.SetDrawMode(next)
			e.logger.Info("surface draw mode", "mode", next.String())
		}
		if key == common.KeyR {
			if ctrl := e.camera.Controller(); ctrl != nil {
				ctrl.SetTarget(defaultTarget)
			}
		}
	})
	e.window.SetKeyUpCallback(func(key uint32) {
		delete(e.input.keys, key)
	})
	e.window.SetMouseButtonCallback(func(button window.MouseButton, down bool, x, y float64) {
		if button == window.MouseButtonLeft || button == window.MouseButtonRight {
			e.input.dragging = down
			e.input.lastX, e.input.lastY = x, y
		}
	})
	e.window.SetMouseMoveCallback(func(x, y float64) {
		if e.input.dragging {
			if ctrl := e.camera.Controller(); ctrl != nil {
				ctrl.Drag(x-e.input.lastX, y-e.input.lastY)
			}
		}
		e.input.lastX, e.input.lastY = x, y
	})
	e.window.SetScrollCallback(func(delta float32) {
		if ctrl := e.camera.Controller(); ctrl != nil {
			ctrl.Zoom(delta)
		}
	})
}

// applyInput pans by the held keys. Pan input is one unit per frame at 60 Hz.
func (e *engine) applyInput(dt float32) {
	ctrl := e.camera.Controller()
	if ctrl == nil {
		return
	}
	axis := func(pos, neg uint32) float32 {
		var v float32
		if e.input.keys[pos] {
			v++
		}
		if e.input.keys[neg] {
			v--
		}
		return v
	}
	right := axis(common.KeyD, common.KeyA)
	up := axis(common.KeyE, common.KeyQ)
	forward := axis(common.KeyW, common.KeyS)
	if right == 0 && up == 0 && forward == 0 {
		return
	}
	scale := dt * 60
	if e.input.keys[common.KeyLeftShift] || e.input.keys[common.KeyRightShift] {
		scale *= 3
	}
	ctrl.Pan(right*scale, up*scale, forward*scale)
}
