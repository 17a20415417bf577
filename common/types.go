// Package common contains the plain value types and math shared by every engine package.
package common

// Viewport describes the rectangle of a render target that rasterization maps to, plus its depth range.
type Viewport struct {
	// X and Y are the top-left corner of the viewport in pixels.
	X, Y float32
	// Width and Height are the viewport size in pixels.
	Width, Height float32
	// MinDepth and MaxDepth bound the depth range, normally 0 and 1.
	MinDepth, MaxDepth float32
}

// NewViewport returns a viewport covering width x height pixels from the origin with depth range [0, 1].
func NewViewport(width, height int) Viewport {
	return Viewport{Width: float32(width), Height: float32(height), MaxDepth: 1}
}

// Aspect returns Width / Height, or 1 for a zero-height viewport.
func (v Viewport) Aspect() float32 {
	if v.Height == 0 {
		return 1
	}
	return v.Width / v.Height
}
