package mesh

import "log/slog"

// MeshBuilderOption is a functional option for configuring a Mesh via NewMesh.
type MeshBuilderOption func(*mesh)

// WithLogger is an option builder that sets the logger of the Mesh.
//
// Parameters:
//   - logger: the logger; nil keeps slog.Default()
//
// Returns:
//   - MeshBuilderOption: a function that applies the logger option to a mesh
func WithLogger(logger *slog.Logger) MeshBuilderOption {
	return func(m *mesh) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithLabel is an option builder that sets the debug label used for the Mesh's GPU buffers.
//
// Parameters:
//   - label: the label
//
// Returns:
//   - MeshBuilderOption: a function that applies the label option to a mesh
func WithLabel(label string) MeshBuilderOption {
	return func(m *mesh) {
		m.label = label
	}
}

// WithMediaDir is an option builder that sets the directory searched for mesh files not found at
// their given path.
//
// Parameters:
//   - dir: the media directory
//
// Returns:
//   - MeshBuilderOption: a function that applies the media directory option to a mesh
func WithMediaDir(dir string) MeshBuilderOption {
	return func(m *mesh) {
		m.mediaDir = dir
	}
}

// WithBVH is an option builder that sets the octree subdivision limits.
//
// Parameters:
//   - targetTriangles: nodes listing more triangles than this are subdivided
//   - maxDepth: nodes at this depth are never subdivided
//
// Returns:
//   - MeshBuilderOption: a function that applies the octree option to a mesh
func WithBVH(targetTriangles, maxDepth int) MeshBuilderOption {
	return func(m *mesh) {
		if targetTriangles > 0 {
			m.targetTriangles = targetTriangles
		}
		if maxDepth >= 0 {
			m.maxDepth = maxDepth
		}
	}
}

// WithDrawStyle is an option builder that sets the initial draw style of the Mesh.
//
// Parameters:
//   - style: the draw style
//
// Returns:
//   - MeshBuilderOption: a function that applies the draw style option to a mesh
func WithDrawStyle(style DrawStyle) MeshBuilderOption {
	return func(m *mesh) {
		m.drawStyle = style
	}
}
