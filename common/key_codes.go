package common

// Key codes shared by the window and the engine input bindings. Printable keys use their upper-case
// ASCII value and the rest use GLFW's numbering, so GLFW key events need no translation.
// Reference: https://www.glfw.org/docs/3.3/group__keys.html
const (
	KeyA = 'A'
	KeyD = 'D'
	KeyE = 'E'
	KeyM = 'M'
	KeyQ = 'Q'
	KeyR = 'R'
	KeyS = 'S'
	KeyW = 'W'

	KeySpace = ' '

	KeyEsc        = 256
	KeyLeftShift  = 340
	KeyRightShift = 344
)
