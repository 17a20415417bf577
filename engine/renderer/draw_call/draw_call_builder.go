package draw_call

import "github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"

// DrawCallBuilderOption is a functional option applied to a draw call during construction via NewDrawCall.
type DrawCallBuilderOption func(*drawCall)

// WithGeometryShader adds a geometry shader to render pass 0.
//
// Parameters:
//   - filename: the geometry shader file
//
// Returns:
//   - DrawCallBuilderOption: a function that applies the geometry shader option to a draw call
func WithGeometryShader(filename string) DrawCallBuilderOption {
	return func(dc *drawCall) {
		dc.geometryShader = filename
	}
}

// WithMeshType generates a built-in mesh when NewDrawCall is given no mesh.
//
// Parameters:
//   - t: the mesh type
//
// Returns:
//   - DrawCallBuilderOption: a function that applies the mesh type option to a draw call
func WithMeshType(t mesh.MeshType) DrawCallBuilderOption {
	return func(dc *drawCall) {
		dc.meshType = &t
	}
}

// WithModelFile loads an OBJ model when NewDrawCall is given no mesh.
//
// Parameters:
//   - path: the model file, tried as given and then under the mesh media directory
//
// Returns:
//   - DrawCallBuilderOption: a function that applies the model file option to a draw call
func WithModelFile(path string) DrawCallBuilderOption {
	return func(dc *drawCall) {
		dc.modelFile = path
	}
}

// WithLabel sets the label used for the instance buffer and a generated mesh. The default is the
// vertex shader name without extension.
func WithLabel(label string) DrawCallBuilderOption {
	return func(dc *drawCall) {
		dc.label = label
	}
}
