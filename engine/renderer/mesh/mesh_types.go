package mesh

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

var (
	// ErrNonTriangularFace is returned by the OBJ loader for faces that do not have exactly three vertices.
	ErrNonTriangularFace = errors.New("mesh: face is not a triangle")

	// ErrIndexOutOfRange is returned when an index references a vertex slot that does not exist.
	ErrIndexOutOfRange = errors.New("mesh: index out of range")
)

// Vertex is the GPU layout of one mesh vertex. Size: 32 bytes, matching the WGSL VertexInput struct
// included with "//@oxy:include mesh_vertex".
type Vertex struct {
	Position common.Vec3 // offset  0, location 0
	Normal   common.Vec3 // offset 12, location 1
	Texcoord common.Vec2 // offset 24, location 2
}

// VertexSize is the stride of Vertex in a vertex buffer.
const VertexSize = uint64(unsafe.Sizeof(Vertex{}))

// VertexLayout returns the slot 0 buffer layout describing Vertex.
//
// Returns:
//   - device.VertexBufferLayout: the per-vertex layout, locations 0 to 2
func VertexLayout() device.VertexBufferLayout {
	return device.VertexBufferLayout{
		Stride: VertexSize,
		Attributes: []device.VertexAttribute{
			{Location: 0, Format: device.AttributeFloat32x3, Offset: 0},
			{Location: 1, Format: device.AttributeFloat32x3, Offset: 12},
			{Location: 2, Format: device.AttributeFloat32x2, Offset: 24},
		},
	}
}

// DrawStyle is the primitive topology the index list describes.
type DrawStyle int

const (
	// DrawStyleTriList treats every three indices as a triangle.
	DrawStyleTriList DrawStyle = iota
	// DrawStyleLineList treats every two indices as a line segment.
	DrawStyleLineList
)

// Topology maps the draw style to the device topology.
func (d DrawStyle) Topology() device.Topology {
	if d == DrawStyleLineList {
		return device.TopologyLineList
	}
	return device.TopologyTriangleList
}

func (d DrawStyle) String() string {
	switch d {
	case DrawStyleTriList:
		return "trilist"
	case DrawStyleLineList:
		return "linelist"
	default:
		return fmt.Sprintf("DrawStyle(%d)", int(d))
	}
}

// MeshType selects one of the built-in procedural meshes.
type MeshType int

const (
	MeshTypePlane MeshType = iota
	MeshTypeUIPlane
	MeshTypeZeroOnePlane
	MeshTypeBox
	MeshTypeCylinder
	MeshTypeRoundedBox
	MeshTypeSphere
)

var meshTypeNames = map[MeshType]string{
	MeshTypePlane:        "plane",
	MeshTypeUIPlane:      "ui_plane",
	MeshTypeZeroOnePlane: "zero_one_plane",
	MeshTypeBox:          "box",
	MeshTypeCylinder:     "cylinder",
	MeshTypeRoundedBox:   "rounded_box",
	MeshTypeSphere:       "sphere",
}

func (t MeshType) String() string {
	if name, ok := meshTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("MeshType(%d)", int(t))
}

// ParseMeshType resolves a name produced by MeshType.String.
//
// Parameters:
//   - name: the mesh type name
//
// Returns:
//   - MeshType: the type
//   - bool: false if the name is unknown
func ParseMeshType(name string) (MeshType, bool) {
	for t, n := range meshTypeNames {
		if n == name {
			return t, true
		}
	}
	return 0, false
}

// DiscMode selects the edge shape generated for each disc of a sweep.
type DiscMode int

const (
	// DiscModeCircle places segment-count vertices evenly around a circle of RadiusRight.
	DiscModeCircle DiscMode = iota
	// DiscModeSquare places four corner vertices at (+-RadiusRight, +-RadiusBack).
	DiscModeSquare
	// DiscModeRoundedSquare rounds the four corners with a quarter circle each.
	DiscModeRoundedSquare
)

// Disc is one cross section of a disc sweep. Up is the sweep direction at the disc, Right the in-plane
// reference axis. The in-plane back axis is Right x Up. A disc with both radii zero at the start or end
// of a sweep becomes a cap.
type Disc struct {
	Center      common.Vec3
	Up          common.Vec3
	Right       common.Vec3
	RadiusRight float32
	RadiusBack  float32
}

// Hit is the result of a successful ray query.
type Hit struct {
	// Distance along the normalized ray direction.
	Distance float32
	// Normal of the hit triangle in world space, pointing against the ray.
	Normal common.Vec3
}

// Leaf is a read-only view of one octree leaf.
type Leaf struct {
	Box       common.AABB
	Depth     int
	Triangles []int // triangle numbers: triangle t uses indices 3t, 3t+1, 3t+2
}
