package mesh

import (
	"github.com/Carmen-Shannon/oxy-xr/engine/loader"
)

// decodeGLTF merges every primitive of a glTF scene into one triangle list. Winding is reversed to
// clockwise and primitives without normals get smooth normals.
func decodeGLTF(name string, data []byte, baseDir string) ([]Vertex, []uint32, error) {
	s, err := loader.Decode(name, data, baseDir)
	if err != nil {
		return nil, nil, err
	}

	var vertices []Vertex
	var indices []uint32
	for _, p := range s.Primitives {
		base := uint32(len(vertices))
		first := len(indices)
		for i, pos := range p.Positions {
			v := Vertex{Position: pos}
			if p.Normals != nil {
				v.Normal = p.Normals[i]
			}
			if p.Texcoords != nil {
				v.Texcoord = p.Texcoords[i]
			}
			vertices = append(vertices, v)
		}
		for t := 0; t+2 < len(p.Indices); t += 3 {
			indices = append(indices, base+p.Indices[t], base+p.Indices[t+2], base+p.Indices[t+1])
		}
		if p.Normals == nil {
			smoothNormals(vertices[base:], rebase(indices[first:], base))
		}
	}
	return vertices, indices, nil
}

func rebase(indices []uint32, base uint32) []uint32 {
	out := make([]uint32, len(indices))
	for i, idx := range indices {
		out[i] = idx - base
	}
	return out
}
