package mesh

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/loader"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

// DefaultMediaDir is searched for mesh files that do not exist at the given path.
const DefaultMediaDir = "Media/Meshes"

// ErrNoDevice is returned by the buffer accessors of a mesh created without a device.
var ErrNoDevice = errors.New("mesh: no device")

// mesh is the implementation of the Mesh interface.
type mesh struct {
	dev      device.Device
	logger   *slog.Logger
	label    string
	mediaDir string

	vertices  []Vertex
	indices   []uint32
	drawStyle DrawStyle

	vertexBuffer device.Buffer
	indexBuffer  device.Buffer
	buffersDirty bool

	targetTriangles int
	maxDepth        int
	tree            *bvh
	boundsDirty     bool
}

// Mesh holds indexed geometry, its GPU buffers and an octree for ray and point queries. GPU buffers and
// the octree are rebuilt lazily on the first access after a mutation.
//
// A Mesh is owned by the render thread; it is not safe for concurrent use.
type Mesh interface {
	// LoadPlane replaces the geometry with a width x height quad in the XY plane facing +Z.
	//
	// Parameters:
	//   - width: extent along X
	//   - height: extent along Y
	LoadPlane(width, height float32)

	// LoadUIPlane replaces the geometry with a quad facing +Z whose texture v grows downwards.
	//
	// Parameters:
	//   - width: extent along X
	//   - height: extent along Y
	LoadUIPlane(width, height float32)

	// LoadZeroOnePlane replaces the geometry with a quad spanning [0,1] on X and Y, facing -Z.
	LoadZeroOnePlane()

	// LoadBox replaces the geometry with an axis-aligned box of 36 unshared vertices with face normals.
	//
	// Parameters:
	//   - width: extent along X
	//   - height: extent along Y
	//   - depth: extent along Z
	LoadBox(width, height, depth float32)

	// LoadCylinder replaces the geometry with a capped cylinder along Y.
	//
	// Parameters:
	//   - radius: cylinder radius
	//   - height: extent along Y
	//   - segments: vertices per ring, at least 3
	LoadCylinder(radius, height float32, segments int)

	// LoadRoundedBox replaces the geometry with a capped box along Y whose vertical edges are rounded.
	//
	// Parameters:
	//   - width: extent along X
	//   - height: extent along Y
	//   - depth: extent along Z
	//   - segments: vertices per ring, rounded down to a multiple of 4
	LoadRoundedBox(width, height, depth float32, segments int)

	// LoadSphere replaces the geometry with a UV sphere.
	//
	// Parameters:
	//   - radius: sphere radius
	//   - segments: rings and vertices per ring, at least 3
	LoadSphere(radius float32, segments int)

	// LoadDiscs replaces the geometry with a disc sweep and generates smooth normals.
	//
	// Parameters:
	//   - discs: the cross sections in sweep order
	//   - segments: vertices per circle ring
	//   - mode: the ring shape
	LoadDiscs(discs []Disc, segments int, mode DiscMode)

	// AppendDiscs appends a disc sweep to the existing geometry without touching normals.
	//
	// Parameters:
	//   - discs: the cross sections in sweep order
	//   - segments: vertices per circle ring
	//   - mode: the ring shape
	AppendDiscs(discs []Disc, segments int, mode DiscMode)

	// GenerateSmoothNormals recomputes every normal from the triangles sharing the vertex.
	GenerateSmoothNormals()

	// BakeTransform permanently transforms positions as points and normals as directions.
	//
	// Parameters:
	//   - m: the transform
	BakeTransform(m common.Mat4)

	// Clear removes every vertex and index and releases the GPU buffers.
	Clear()

	// LoadFromFile replaces the geometry with an OBJ, glTF or GLB file. The format follows the file
	// extension. The path is tried as given, then under the media directory.
	//
	// Parameters:
	//   - path: the mesh file
	//
	// Returns:
	//   - error: a read error, ErrNonTriangularFace or ErrIndexOutOfRange
	LoadFromFile(path string) error

	// SaveToFile writes the geometry as OBJ.
	//
	// Parameters:
	//   - path: the destination file
	//
	// Returns:
	//   - error: a write error
	SaveToFile(path string) error

	// Vertices returns the vertex slice for in-place editing. GPU buffers and the octree are marked dirty.
	Vertices() []Vertex

	// Indices returns the index slice for in-place editing. GPU buffers and the octree are marked dirty.
	Indices() []uint32

	// UpdateVertices replaces the vertices and sets sequential indices. A nil slice clears the mesh.
	//
	// Parameters:
	//   - vertices: the new vertices
	UpdateVertices(vertices []Vertex)

	// UpdateVerticesIndexed replaces the vertices and indices.
	//
	// Parameters:
	//   - vertices: the new vertices
	//   - indices: the new indices
	//
	// Returns:
	//   - error: ErrIndexOutOfRange if an index does not reference a vertex; the mesh is unchanged
	UpdateVerticesIndexed(vertices []Vertex, indices []uint32) error

	VertexCount() int
	IndexCount() int
	IsEmpty() bool
	DrawStyle() DrawStyle
	SetDrawStyle(style DrawStyle)

	// VertexBuffer returns the GPU vertex buffer, uploading pending changes. It is nil for an empty mesh.
	//
	// Returns:
	//   - device.Buffer: the vertex buffer
	//   - error: ErrNoDevice or a device error
	VertexBuffer() (device.Buffer, error)

	// IndexBuffer returns the GPU index buffer, uploading pending changes. It is nil for an empty mesh.
	//
	// Returns:
	//   - device.Buffer: the uint32 index buffer
	//   - error: ErrNoDevice or a device error
	IndexBuffer() (device.Buffer, error)

	// UpdateBoundingBox rebuilds the bounding box and octree now.
	UpdateBoundingBox()

	// BoundingBox returns the local-space box of every vertex. An empty mesh has a zero box.
	BoundingBox() common.AABB

	// Leaves returns the octree leaves.
	Leaves() []Leaf

	// TestRayIntersection returns the closest front-facing hit of a world space ray. Only triangle lists
	// are tested.
	//
	// Parameters:
	//   - origin: ray origin in world space
	//   - dir: ray direction in world space; distances are measured along its normalized form
	//   - world: the mesh's local-to-world transform
	//
	// Returns:
	//   - Hit: the closest hit
	//   - bool: false if nothing was hit
	TestRayIntersection(origin, dir common.Vec3, world common.Mat4) (Hit, bool)

	// TestRayIntersectionFurthest returns the furthest front-facing hit no further than maxDistance.
	//
	// Parameters:
	//   - origin: ray origin in world space
	//   - dir: ray direction in world space
	//   - world: the mesh's local-to-world transform
	//   - maxDistance: the largest accepted distance
	//
	// Returns:
	//   - Hit: the furthest accepted hit
	//   - bool: false if nothing was hit
	TestRayIntersectionFurthest(origin, dir common.Vec3, world common.Mat4, maxDistance float32) (Hit, bool)

	// TestPointInside reports whether p lies in the bounding box oriented by world.
	//
	// Parameters:
	//   - p: the point in world space
	//   - world: the mesh's local-to-world transform
	//
	// Returns:
	//   - bool: true if inside
	TestPointInside(p common.Vec3, world common.Mat4) bool

	// Release frees the GPU buffers.
	Release()
}

var _ Mesh = &mesh{}

// NewMesh creates an empty triangle-list mesh.
//
// Parameters:
//   - dev: the device GPU buffers are created on; nil restricts the mesh to CPU use
//   - opts: builder options
//
// Returns:
//   - Mesh: the mesh
func NewMesh(dev device.Device, opts ...MeshBuilderOption) Mesh {
	m := &mesh{
		dev:             dev,
		logger:          slog.Default(),
		label:           "mesh",
		mediaDir:        DefaultMediaDir,
		drawStyle:       DrawStyleTriList,
		targetTriangles: DefaultTargetTriangleCount,
		maxDepth:        DefaultMaxDepth,
		buffersDirty:    true,
		boundsDirty:     true,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewMeshOfType creates one of the built-in meshes with its default dimensions.
//
// Parameters:
//   - dev: the device
//   - t: the mesh type
//   - opts: builder options
//
// Returns:
//   - Mesh: the mesh
//   - error: if t is unknown
func NewMeshOfType(dev device.Device, t MeshType, opts ...MeshBuilderOption) (Mesh, error) {
	m := NewMesh(dev, append([]MeshBuilderOption{WithLabel(t.String())}, opts...)...)
	switch t {
	case MeshTypePlane:
		m.LoadPlane(DefaultPlaneWidth, DefaultPlaneHeight)
	case MeshTypeUIPlane:
		m.LoadUIPlane(DefaultPlaneWidth, DefaultPlaneHeight)
	case MeshTypeZeroOnePlane:
		m.LoadZeroOnePlane()
	case MeshTypeBox:
		m.LoadBox(1, 1, 1)
	case MeshTypeCylinder:
		m.LoadCylinder(DefaultCylinderRadius, 1, DefaultSweepSegments)
	case MeshTypeRoundedBox:
		m.LoadRoundedBox(1, 1, 1, DefaultSweepSegments)
	case MeshTypeSphere:
		m.LoadSphere(DefaultSphereRadius, DefaultSphereSegments)
	default:
		return nil, fmt.Errorf("mesh: unknown type %v", t)
	}
	return m, nil
}

// NewMeshFromFile creates a mesh from an OBJ file.
//
// Parameters:
//   - dev: the device
//   - path: the OBJ file, tried as given and then under the media directory
//   - opts: builder options
//
// Returns:
//   - Mesh: the mesh
//   - error: any load error
func NewMeshFromFile(dev device.Device, path string, opts ...MeshBuilderOption) (Mesh, error) {
	m := NewMesh(dev, append([]MeshBuilderOption{WithLabel(filepath.Base(path))}, opts...)...)
	if err := m.LoadFromFile(path); err != nil {
		return nil, err
	}
	return m, nil
}

// NewMeshFromData creates a mesh from explicit vertices and indices. Nil indices select sequential
// indices.
//
// Parameters:
//   - dev: the device
//   - vertices: the vertices
//   - indices: the indices, or nil
//   - opts: builder options
//
// Returns:
//   - Mesh: the mesh
//   - error: ErrIndexOutOfRange for invalid indices
func NewMeshFromData(dev device.Device, vertices []Vertex, indices []uint32, opts ...MeshBuilderOption) (Mesh, error) {
	m := NewMesh(dev, opts...)
	if indices == nil {
		m.UpdateVertices(vertices)
		return m, nil
	}
	if err := m.UpdateVerticesIndexed(vertices, indices); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *mesh) set(vertices []Vertex, indices []uint32) {
	m.vertices = vertices
	m.indices = indices
	m.markDirty()
}

func (m *mesh) markDirty() {
	m.buffersDirty = true
	m.boundsDirty = true
}

func (m *mesh) LoadPlane(width, height float32) {
	m.set(generatePlane(width, height))
}

func (m *mesh) LoadUIPlane(width, height float32) {
	m.set(generatePlane(width, height))
}

func (m *mesh) LoadZeroOnePlane() {
	m.set(generateZeroOnePlane())
}

func (m *mesh) LoadBox(width, height, depth float32) {
	m.set(generateBox(width, height, depth))
}

func (m *mesh) LoadCylinder(radius, height float32, segments int) {
	m.LoadDiscs(sweepAlongY(radius, radius, height), segments, DiscModeCircle)
}

func (m *mesh) LoadRoundedBox(width, height, depth float32, segments int) {
	m.LoadDiscs(sweepAlongY(width/2, depth/2, height), segments, DiscModeRoundedSquare)
}

func (m *mesh) LoadSphere(radius float32, segments int) {
	m.set(generateSphere(radius, segments))
}

func (m *mesh) LoadDiscs(discs []Disc, segments int, mode DiscMode) {
	vertices, indices := appendSweep(nil, nil, discs, segments, mode)
	smoothNormals(vertices, indices)
	m.set(vertices, indices)
}

func (m *mesh) AppendDiscs(discs []Disc, segments int, mode DiscMode) {
	m.set(appendSweep(m.vertices, m.indices, discs, segments, mode))
}

func (m *mesh) GenerateSmoothNormals() {
	smoothNormals(m.vertices, m.indices)
	m.buffersDirty = true
}

func (m *mesh) BakeTransform(t common.Mat4) {
	for i := range m.vertices {
		v := &m.vertices[i]
		v.Position = t.TransformPoint(v.Position)
		v.Normal = t.TransformNormal(v.Normal).Normalize()
	}
	m.markDirty()
}

func (m *mesh) Clear() {
	m.set(nil, nil)
	m.releaseBuffers()
}

func (m *mesh) LoadFromFile(path string) error {
	resolved := path
	if _, err := os.Stat(resolved); err != nil {
		resolved = filepath.Join(m.mediaDir, path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("mesh %s: %w", path, err)
	}

	var vertices []Vertex
	var indices []uint32
	if loader.IsSupported(resolved) {
		name := strings.TrimSuffix(filepath.Base(resolved), filepath.Ext(resolved))
		vertices, indices, err = decodeGLTF(name, data, filepath.Dir(resolved))
	} else {
		vertices, indices, err = decodeOBJ(bytes.NewReader(data))
	}
	if err != nil {
		return fmt.Errorf("mesh %s: %w", resolved, err)
	}
	m.set(vertices, indices)
	m.drawStyle = DrawStyleTriList
	m.logger.Debug("mesh loaded", "path", resolved, "vertices", len(vertices), "triangles", len(indices)/3)
	return nil
}

func (m *mesh) SaveToFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("mesh %s: %w", path, err)
	}
	if err := encodeOBJ(f, m.vertices, m.indices); err != nil {
		f.Close()
		return fmt.Errorf("mesh %s: %w", path, err)
	}
	return f.Close()
}

func (m *mesh) Vertices() []Vertex {
	m.markDirty()
	return m.vertices
}

func (m *mesh) Indices() []uint32 {
	m.markDirty()
	return m.indices
}

func (m *mesh) UpdateVertices(vertices []Vertex) {
	if vertices == nil {
		m.Clear()
		return
	}
	m.set(append([]Vertex(nil), vertices...), sequentialIndices(len(vertices)))
}

func (m *mesh) UpdateVerticesIndexed(vertices []Vertex, indices []uint32) error {
	for _, idx := range indices {
		if int(idx) >= len(vertices) {
			return fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, idx, len(vertices))
		}
	}
	if vertices == nil && indices == nil {
		m.Clear()
		return nil
	}
	m.set(append([]Vertex(nil), vertices...), append([]uint32(nil), indices...))
	return nil
}

func (m *mesh) VertexCount() int {
	return len(m.vertices)
}

func (m *mesh) IndexCount() int {
	return len(m.indices)
}

func (m *mesh) IsEmpty() bool {
	return len(m.vertices) == 0 || len(m.indices) == 0
}

func (m *mesh) DrawStyle() DrawStyle {
	return m.drawStyle
}

func (m *mesh) SetDrawStyle(style DrawStyle) {
	if style != m.drawStyle {
		m.drawStyle = style
		m.boundsDirty = true
	}
}

func (m *mesh) VertexBuffer() (device.Buffer, error) {
	if err := m.syncBuffers(); err != nil {
		return nil, err
	}
	return m.vertexBuffer, nil
}

func (m *mesh) IndexBuffer() (device.Buffer, error) {
	if err := m.syncBuffers(); err != nil {
		return nil, err
	}
	return m.indexBuffer, nil
}

// syncBuffers uploads dirty geometry, reusing each buffer while it is large enough.
func (m *mesh) syncBuffers() error {
	if !m.buffersDirty {
		return nil
	}
	if m.IsEmpty() {
		m.releaseBuffers()
		m.buffersDirty = false
		return nil
	}
	if m.dev == nil {
		return ErrNoDevice
	}

	var err error
	if m.vertexBuffer, err = m.upload(m.vertexBuffer, "vertices", device.BufferKindVertex, common.SliceToBytes(m.vertices)); err != nil {
		return err
	}
	if m.indexBuffer, err = m.upload(m.indexBuffer, "indices", device.BufferKindIndex, common.SliceToBytes(m.indices)); err != nil {
		return err
	}
	m.buffersDirty = false
	return nil
}

func (m *mesh) upload(buf device.Buffer, name string, kind device.BufferKind, data []byte) (device.Buffer, error) {
	size := uint64(len(data))
	if buf == nil || buf.Size() < size {
		if buf != nil {
			buf.Release()
		}
		created, err := m.dev.CreateBuffer(m.label+":"+name, kind, size)
		if err != nil {
			return nil, fmt.Errorf("mesh %s: create %s buffer: %w", m.label, name, err)
		}
		buf = created
	}
	if err := m.dev.WriteBuffer(buf, 0, data); err != nil {
		return buf, fmt.Errorf("mesh %s: write %s buffer: %w", m.label, name, err)
	}
	return buf, nil
}

func (m *mesh) releaseBuffers() {
	if m.vertexBuffer != nil {
		m.vertexBuffer.Release()
		m.vertexBuffer = nil
	}
	if m.indexBuffer != nil {
		m.indexBuffer.Release()
		m.indexBuffer = nil
	}
}

func (m *mesh) UpdateBoundingBox() {
	vertices := m.vertices
	if m.IsEmpty() {
		vertices = nil
	}
	m.tree = buildBVH(vertices, m.indices, m.drawStyle == DrawStyleTriList, m.targetTriangles, m.maxDepth)
	m.boundsDirty = false
}

func (m *mesh) bounds() *bvh {
	if m.boundsDirty || m.tree == nil {
		m.UpdateBoundingBox()
	}
	return m.tree
}

func (m *mesh) BoundingBox() common.AABB {
	return m.bounds().root()
}

func (m *mesh) Leaves() []Leaf {
	return m.bounds().leaves()
}

func (m *mesh) TestRayIntersection(origin, dir common.Vec3, world common.Mat4) (Hit, bool) {
	return m.rayQuery(origin, dir, world, false, 0)
}

func (m *mesh) TestRayIntersectionFurthest(origin, dir common.Vec3, world common.Mat4, maxDistance float32) (Hit, bool) {
	return m.rayQuery(origin, dir, world, true, maxDistance)
}

func (m *mesh) rayQuery(origin, dir common.Vec3, world common.Mat4, furthest bool, maxDistance float32) (Hit, bool) {
	if m.IsEmpty() || m.drawStyle != DrawStyleTriList {
		return Hit{}, false
	}
	q, ok := newRayQuery(m.vertices, m.indices, origin, dir, world)
	if !ok {
		return Hit{}, false
	}
	q.furthest = furthest
	q.maxDistance = maxDistance
	return m.bounds().intersect(q)
}

func (m *mesh) TestPointInside(p common.Vec3, world common.Mat4) bool {
	if m.IsEmpty() {
		return false
	}
	inv, ok := common.Invert4(world)
	if !ok {
		return false
	}
	return m.bounds().root().Contains(inv.TransformPoint(p), common.IntersectEpsilon)
}

func (m *mesh) Release() {
	m.releaseBuffers()
	m.buffersDirty = true
}
