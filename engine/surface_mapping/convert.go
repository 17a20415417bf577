package surface_mapping

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
)

const (
	snorm16Max = 1 << 15
	snorm8Max  = 1 << 7
)

// ConvertMesh unpacks a surface mesh into engine vertices and indices. Positions are divided by 2^15
// and multiplied by the position scale, normals are divided by 2^7 and texture coordinates are zero.
//
// Parameters:
//   - src: the packed surface mesh
//
// Returns:
//   - []mesh.Vertex: the decoded vertices
//   - []uint32: the widened indices
//   - error: ErrMismatchedBuffers for inconsistent buffers
func ConvertMesh(src *SurfaceMesh) ([]mesh.Vertex, []uint32, error) {
	if len(src.Positions)%4 != 0 || len(src.Positions) != len(src.Normals) {
		return nil, nil, fmt.Errorf("surface %s: %d positions, %d normals: %w",
			src.Surface.ID, len(src.Positions), len(src.Normals), ErrMismatchedBuffers)
	}

	scale := src.PositionScale
	vertices := make([]mesh.Vertex, len(src.Positions)/4)
	for i := range vertices {
		p := src.Positions[i*4 : i*4+3]
		n := src.Normals[i*4 : i*4+3]
		vertices[i] = mesh.Vertex{
			Position: common.Vec3{
				float32(p[0]) / snorm16Max * scale[0],
				float32(p[1]) / snorm16Max * scale[1],
				float32(p[2]) / snorm16Max * scale[2],
			},
			Normal: common.Vec3{
				float32(n[0]) / snorm8Max,
				float32(n[1]) / snorm8Max,
				float32(n[2]) / snorm8Max,
			},
		}
	}

	indices := make([]uint32, len(src.Indices))
	for i, idx := range src.Indices {
		indices[i] = uint32(idx)
	}
	return vertices, indices, nil
}
