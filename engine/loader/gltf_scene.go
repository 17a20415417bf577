package loader

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// Primitive is one triangle list of a glTF mesh with its node transforms baked in. Indices keep the
// counter-clockwise front-face winding of glTF, also under mirroring transforms.
type Primitive struct {
	Name      string
	Positions []common.Vec3
	Normals   []common.Vec3 // nil when the file has none
	Texcoords []common.Vec2 // nil when the file has none; v runs top-down
	Indices   []uint32
}

// Scene is the static geometry of a glTF file.
type Scene struct {
	Name       string
	Primitives []Primitive
	// Skipped counts primitives that are not triangle lists.
	Skipped int
}

// TriangleCount returns the number of triangles over all primitives.
func (s *Scene) TriangleCount() int {
	n := 0
	for _, p := range s.Primitives {
		n += len(p.Indices) / 3
	}
	return n
}

// extractScene walks the default scene, or the first one, and bakes every mesh instance. A file
// without scenes imports each mesh once at the origin.
func (f *gltfFile) extractScene(name string) (*Scene, error) {
	s := &Scene{Name: name}
	doc := f.doc

	if len(doc.Scenes) == 0 {
		for i := range doc.Meshes {
			if err := f.appendMesh(s, i, common.Identity()); err != nil {
				return nil, err
			}
		}
		return s, nil
	}

	index := 0
	if doc.Scene != nil {
		index = *doc.Scene
	}
	if index < 0 || index >= len(doc.Scenes) {
		return nil, fmt.Errorf("gltf: scene %d out of range", index)
	}
	if doc.Scenes[index].Name != "" {
		s.Name = doc.Scenes[index].Name
	}

	visited := make(map[int]bool)
	var walk func(node int, parent common.Mat4) error
	walk = func(node int, parent common.Mat4) error {
		if node < 0 || node >= len(doc.Nodes) {
			return fmt.Errorf("gltf: node %d out of range", node)
		}
		if visited[node] {
			return fmt.Errorf("gltf: node %d is reachable twice", node)
		}
		visited[node] = true

		n := &doc.Nodes[node]
		world := common.Mul4(parent, nodeMatrix(n))
		if n.Mesh != nil {
			if err := f.appendMesh(s, *n.Mesh, world); err != nil {
				return err
			}
		}
		for _, c := range n.Children {
			if err := walk(c, world); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range doc.Scenes[index].Nodes {
		if err := walk(root, common.Identity()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (f *gltfFile) appendMesh(s *Scene, index int, world common.Mat4) error {
	if index < 0 || index >= len(f.doc.Meshes) {
		return fmt.Errorf("gltf: mesh %d out of range", index)
	}
	m := &f.doc.Meshes[index]
	for i := range m.Primitives {
		prim := &m.Primitives[i]
		if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
			s.Skipped++
			continue
		}
		p, err := f.extractPrimitive(prim, world)
		if err != nil {
			return fmt.Errorf("gltf: mesh %d primitive %d: %w", index, i, err)
		}
		p.Name = m.Name
		if len(m.Primitives) > 1 {
			p.Name = fmt.Sprintf("%s.%d", m.Name, i)
		}
		s.Primitives = append(s.Primitives, p)
	}
	return nil
}

func (f *gltfFile) extractPrimitive(prim *gltfPrimitive, world common.Mat4) (Primitive, error) {
	var p Primitive

	posIndex, ok := prim.Attributes[gltfAttributePosition]
	if !ok {
		return p, fmt.Errorf("%w: no POSITION attribute", ErrAccessor)
	}
	raw, err := f.readFloats(posIndex, gltfAccessorTypeVec3)
	if err != nil {
		return p, err
	}
	p.Positions = make([]common.Vec3, len(raw)/3)
	for i := range p.Positions {
		p.Positions[i] = world.TransformPoint(common.Vec3{raw[i*3], raw[i*3+1], raw[i*3+2]})
	}

	if idx, ok := prim.Attributes[gltfAttributeNormal]; ok {
		raw, err := f.readFloats(idx, gltfAccessorTypeVec3)
		if err != nil {
			return p, err
		}
		if len(raw)/3 != len(p.Positions) {
			return p, fmt.Errorf("%w: %d normals for %d positions", ErrAccessor, len(raw)/3, len(p.Positions))
		}
		nm := normalMatrix(world)
		p.Normals = make([]common.Vec3, len(p.Positions))
		for i := range p.Normals {
			p.Normals[i] = nm.TransformNormal(common.Vec3{raw[i*3], raw[i*3+1], raw[i*3+2]}).Normalize()
		}
	}

	if idx, ok := prim.Attributes[gltfAttributeTexcoord0]; ok {
		raw, err := f.readFloats(idx, gltfAccessorTypeVec2)
		if err != nil {
			return p, err
		}
		if len(raw)/2 != len(p.Positions) {
			return p, fmt.Errorf("%w: %d texcoords for %d positions", ErrAccessor, len(raw)/2, len(p.Positions))
		}
		p.Texcoords = make([]common.Vec2, len(p.Positions))
		for i := range p.Texcoords {
			p.Texcoords[i] = common.Vec2{raw[i*2], raw[i*2+1]}
		}
	}

	if prim.Indices != nil {
		if p.Indices, err = f.readIndices(*prim.Indices); err != nil {
			return p, err
		}
	} else {
		p.Indices = make([]uint32, len(p.Positions))
		for i := range p.Indices {
			p.Indices[i] = uint32(i)
		}
	}
	if len(p.Indices)%3 != 0 {
		return p, fmt.Errorf("%w: %d indices is not a triangle list", ErrAccessor, len(p.Indices))
	}
	for _, i := range p.Indices {
		if int(i) >= len(p.Positions) {
			return p, fmt.Errorf("%w: index %d out of %d vertices", ErrAccessor, i, len(p.Positions))
		}
	}

	// a mirroring transform flips the apparent winding
	if determinant3(world) < 0 {
		for t := 0; t+2 < len(p.Indices); t += 3 {
			p.Indices[t+1], p.Indices[t+2] = p.Indices[t+2], p.Indices[t+1]
		}
	}
	return p, nil
}

// nodeMatrix returns the local transform of a node.
func nodeMatrix(n *gltfNode) common.Mat4 {
	if n.Matrix != nil {
		return common.Mat4(*n.Matrix)
	}
	m := common.Identity()
	if n.Scale != nil {
		m = common.Scaling(n.Scale[0], n.Scale[1], n.Scale[2])
	}
	if n.Rotation != nil {
		m = common.Mul4(quaternionMatrix(*n.Rotation), m)
	}
	if n.Translation != nil {
		m = common.Mul4(common.Translation(common.Vec3(*n.Translation)), m)
	}
	return m
}

// quaternionMatrix converts a unit quaternion (x, y, z, w) to a rotation matrix.
func quaternionMatrix(q [4]float32) common.Mat4 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	m := common.Identity()
	m[0] = 1 - 2*(y*y+z*z)
	m[1] = 2 * (x*y + z*w)
	m[2] = 2 * (x*z - y*w)
	m[4] = 2 * (x*y - z*w)
	m[5] = 1 - 2*(x*x+z*z)
	m[6] = 2 * (y*z + x*w)
	m[8] = 2 * (x*z + y*w)
	m[9] = 2 * (y*z - x*w)
	m[10] = 1 - 2*(x*x+y*y)
	return m
}

// normalMatrix returns the inverse transpose of world, or world itself when it is singular.
func normalMatrix(world common.Mat4) common.Mat4 {
	inv, ok := common.Invert4(world)
	if !ok {
		return world
	}
	return inv.Transpose()
}

func determinant3(m common.Mat4) float32 {
	return m[0]*(m[5]*m[10]-m[9]*m[6]) -
		m[4]*(m[1]*m[10]-m[9]*m[2]) +
		m[8]*(m[1]*m[6]-m[5]*m[2])
}
