package window

import (
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
)

// MouseButton identifies a mouse button. Values match GLFW.
type MouseButton int

const (
	MouseButtonLeft MouseButton = iota
	MouseButtonRight
	MouseButtonMiddle
)

// Window provides the desktop window the mixed-reality view is mirrored into, along with its input
// events. Callbacks run on the thread calling ProcessMessages.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetScrollCallback sets the callback for mouse wheel events.
	//
	// Parameters:
	//   - callback: function receiving the vertical scroll delta (positive = away from the user)
	SetScrollCallback(callback func(delta float32))

	// SetKeyDownCallback sets the callback for key press and repeat events.
	//
	// Parameters:
	//   - callback: function receiving the key code (see common.Key*)
	SetKeyDownCallback(callback func(keyCode uint32))

	// SetKeyUpCallback sets the callback for key release events.
	SetKeyUpCallback(callback func(keyCode uint32))

	// SetMouseButtonCallback sets the callback for mouse button presses and releases.
	//
	// Parameters:
	//   - callback: function receiving the button, whether it is down, and the cursor position
	SetMouseButtonCallback(callback func(button MouseButton, down bool, x, y float64))

	// SetMouseMoveCallback sets the callback for cursor movement.
	//
	// Parameters:
	//   - callback: function receiving the cursor position in pixels
	SetMouseMoveCallback(callback func(x, y float64))

	// SurfaceDescriptor returns the platform surface descriptor used to create the WebGPU device.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the descriptor, or nil if the window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning reports whether the window is still open.
	IsRunning() bool

	// RequestClose asks the message loop to stop after the current iteration.
	RequestClose()

	// Close destroys the window and releases platform resources.
	//
	// Returns:
	//   - error: if the window was never initialized
	Close() error

	// ProcessMessages runs the message loop until the window closes, calling the update callback once
	// per iteration.
	ProcessMessages()

	Title() string
	Width() int
	Height() int
}

type engineWindow struct {
	title string

	minWidth, minHeight int
	maxWidth, maxHeight int
	width, height       int

	// platform state, *glfwWindow once created
	internalWindow any

	onUpdate      func()
	onResize      func(width, height int)
	onScroll      func(delta float32)
	onKeyDown     func(keyCode uint32)
	onKeyUp       func(keyCode uint32)
	onMouseButton func(button MouseButton, down bool, x, y float64)
	onMouseMove   func(x, y float64)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window. It must be called from the main goroutine.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: if the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := newEngineWindow(options...)
	if err := newPlatformWindow(w); err != nil {
		return nil, err
	}
	return w, nil
}

func newEngineWindow(options ...WindowBuilderOption) *engineWindow {
	w := &engineWindow{
		title:     "oxy-xr",
		minWidth:  320,
		minHeight: 200,
		maxWidth:  3840,
		maxHeight: 2160,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	w.width = max(w.minWidth, min(w.maxWidth, w.width))
	w.height = max(w.minHeight, min(w.maxHeight, w.height))
	return w
}

func (w *engineWindow) SetUpdateCallback(callback func())                  { w.onUpdate = callback }
func (w *engineWindow) SetResizeCallback(callback func(width, height int)) { w.onResize = callback }
func (w *engineWindow) SetScrollCallback(callback func(delta float32))     { w.onScroll = callback }
func (w *engineWindow) SetKeyDownCallback(callback func(keyCode uint32))   { w.onKeyDown = callback }
func (w *engineWindow) SetKeyUpCallback(callback func(keyCode uint32))     { w.onKeyUp = callback }
func (w *engineWindow) SetMouseMoveCallback(callback func(x, y float64))   { w.onMouseMove = callback }

func (w *engineWindow) SetMouseButtonCallback(callback func(button MouseButton, down bool, x, y float64)) {
	w.onMouseButton = callback
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) RequestClose() {
	platformRequestClose(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if !platformProcessMessages(w) {
			break
		}
		if w.onUpdate != nil {
			w.onUpdate()
		}
		runtime.Gosched()
	}
}

func (w *engineWindow) Title() string { return w.title }
func (w *engineWindow) Width() int    { return w.width }
func (w *engineWindow) Height() int   { return w.height }

// The dispatch helpers below translate platform events into callbacks.

func (w *engineWindow) dispatchResize(width, height int) {
	// minimized windows report 0x0; keep the last usable size
	if width <= 0 || height <= 0 {
		return
	}
	w.width, w.height = width, height
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) dispatchKey(keyCode uint32, down bool) {
	cb := w.onKeyUp
	if down {
		cb = w.onKeyDown
	}
	if cb != nil {
		cb(keyCode)
	}
}

func (w *engineWindow) dispatchScroll(delta float32) {
	if w.onScroll != nil {
		w.onScroll(delta)
	}
}

func (w *engineWindow) dispatchMouseButton(button MouseButton, down bool, x, y float64) {
	if w.onMouseButton != nil {
		w.onMouseButton(button, down, x, y)
	}
}

func (w *engineWindow) dispatchMouseMove(x, y float64) {
	if w.onMouseMove != nil {
		w.onMouseMove(x, y)
	}
}
