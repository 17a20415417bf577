package mesh

import "github.com/Carmen-Shannon/oxy-xr/common"

const (
	// DefaultTargetTriangleCount is the triangle count above which an octree node is subdivided.
	DefaultTargetTriangleCount = 16

	// DefaultMaxDepth bounds the octree depth. The root is depth 0.
	DefaultMaxDepth = 8
)

// octantSigns orders the eight children of a node.
var octantSigns = [8]common.Vec3{
	{1, 1, 1}, {-1, 1, 1}, {1, 1, -1}, {-1, 1, -1},
	{1, -1, 1}, {-1, -1, 1}, {1, -1, -1}, {-1, -1, -1},
}

type bvhNode struct {
	box        common.AABB
	depth      int
	firstChild int // first of eight consecutive children, -1 for a leaf
	triangles  []int
}

// bvh is an octree over mesh triangles stored as an arena. Node 0 is the root.
type bvh struct {
	nodes    []bvhNode
	target   int
	maxDepth int
}

// buildBVH computes the root box from every vertex and subdivides while a node lists more than target
// triangles. A triangle is listed in every child box it overlaps, so straddling triangles are never split.
func buildBVH(vertices []Vertex, indices []uint32, triangles bool, target, maxDepth int) *bvh {
	t := &bvh{target: max(target, 1), maxDepth: max(maxDepth, 0)}
	if len(vertices) == 0 {
		t.nodes = []bvhNode{{firstChild: -1}}
		return t
	}

	points := make([]common.Vec3, len(vertices))
	for i := range vertices {
		points[i] = vertices[i].Position
	}
	root := bvhNode{box: common.AABBFromPoints(points), firstChild: -1}
	if triangles {
		root.triangles = make([]int, len(indices)/3)
		for i := range root.triangles {
			root.triangles[i] = i
		}
	}
	t.nodes = append(t.nodes, root)
	t.subdivide(0, vertices, indices)
	return t
}

func (t *bvh) subdivide(n int, vertices []Vertex, indices []uint32) {
	parent := t.nodes[n]
	if len(parent.triangles) <= t.target || parent.depth >= t.maxDepth {
		return
	}

	first := len(t.nodes)
	half := parent.box.Extents.Scale(0.5)
	for _, sign := range octantSigns {
		box := common.AABB{Center: parent.box.Center.Add(sign.Mul(half)), Extents: half}
		var tris []int
		for _, tri := range parent.triangles {
			a, b, c := trianglePositions(vertices, indices, tri)
			if common.TriangleOverlapsAABB(a, b, c, box, common.IntersectEpsilon) {
				tris = append(tris, tri)
			}
		}
		t.nodes = append(t.nodes, bvhNode{box: box, depth: parent.depth + 1, firstChild: -1, triangles: tris})
	}
	t.nodes[n].firstChild = first
	t.nodes[n].triangles = nil

	for i := 0; i < len(octantSigns); i++ {
		t.subdivide(first+i, vertices, indices)
	}
}

func (t *bvh) root() common.AABB {
	return t.nodes[0].box
}

func (t *bvh) leaves() []Leaf {
	var out []Leaf
	for _, n := range t.nodes {
		if n.firstChild >= 0 {
			continue
		}
		out = append(out, Leaf{Box: n.box, Depth: n.depth, Triangles: append([]int(nil), n.triangles...)})
	}
	return out
}

// rayQuery carries the state of one ray traversal. dir is normalized.
type rayQuery struct {
	vertices    []Vertex
	indices     []uint32
	origin      common.Vec3
	dir         common.Vec3
	world       common.Mat4
	furthest    bool
	maxDistance float32

	hit  bool
	best Hit
}

func (t *bvh) intersect(q *rayQuery) (Hit, bool) {
	t.visit(0, q)
	return q.best, q.hit
}

func (t *bvh) visit(n int, q *rayQuery) {
	node := &t.nodes[n]
	entry, ok := node.box.Transform(q.world).IntersectsRay(q.origin, q.dir, common.IntersectEpsilon)
	if !ok {
		return
	}
	if !q.furthest && q.hit && entry > q.best.Distance {
		return
	}

	if node.firstChild >= 0 {
		for i := 0; i < len(octantSigns); i++ {
			t.visit(node.firstChild+i, q)
		}
		return
	}

	for _, tri := range node.triangles {
		a, b, c := trianglePositions(q.vertices, q.indices, tri)
		q.testTriangle(q.world.TransformPoint(a), q.world.TransformPoint(b), q.world.TransformPoint(c))
	}
}

// testTriangle offers a world space triangle to the query. Clockwise triangles face the viewer, so a hit
// is rejected when the ray travels along the normal cross(c-a, b-a).
func (q *rayQuery) testTriangle(a, b, c common.Vec3) {
	d, ok := common.RayTriangle(q.origin, q.dir, a, b, c)
	if !ok {
		return
	}
	normal := c.Sub(a).Cross(b.Sub(a)).Normalize()
	if q.dir.Scale(-1).Dot(normal) < 0 {
		return
	}

	if q.furthest {
		if d <= q.maxDistance && (!q.hit || d > q.best.Distance) {
			q.best = Hit{Distance: d, Normal: normal}
			q.hit = true
		}
		return
	}
	if !q.hit || d < q.best.Distance {
		q.best = Hit{Distance: d, Normal: normal}
		q.hit = true
	}
}

func newRayQuery(vertices []Vertex, indices []uint32, origin, dir common.Vec3, world common.Mat4) (*rayQuery, bool) {
	if dir.Dot(dir) == 0 {
		return nil, false
	}
	return &rayQuery{
		vertices: vertices,
		indices:  indices,
		origin:   origin,
		dir:      dir.Normalize(),
		world:    world,
	}, true
}

func trianglePositions(vertices []Vertex, indices []uint32, tri int) (common.Vec3, common.Vec3, common.Vec3) {
	i := tri * 3
	return vertices[indices[i]].Position, vertices[indices[i+1]].Position, vertices[indices[i+2]].Position
}
