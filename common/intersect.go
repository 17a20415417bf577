package common

import "github.com/chewxy/math32"

// IntersectEpsilon is the tolerance used by the box tests below so that geometry lying exactly on a
// box face is still treated as touching it.
const IntersectEpsilon float32 = 1e-4

// AABB is an axis-aligned bounding box stored as centre and half extents.
type AABB struct {
	Center  Vec3
	Extents Vec3
}

// AABBFromMinMax builds a box spanning min..max.
//
// Parameters:
//   - min: the minimum corner
//   - max: the maximum corner
//
// Returns:
//   - AABB: the box
func AABBFromMinMax(min, max Vec3) AABB {
	return AABB{
		Center:  min.Add(max).Scale(0.5),
		Extents: max.Sub(min).Scale(0.5),
	}
}

// AABBFromPoints builds the smallest box containing every point. An empty slice yields a zero box.
func AABBFromPoints(points []Vec3) AABB {
	if len(points) == 0 {
		return AABB{}
	}
	min, max := points[0], points[0]
	for _, p := range points[1:] {
		min = min.Min(p)
		max = max.Max(p)
	}
	return AABBFromMinMax(min, max)
}

// Min returns the minimum corner of the box.
func (b AABB) Min() Vec3 {
	return b.Center.Sub(b.Extents)
}

// Max returns the maximum corner of the box.
func (b AABB) Max() Vec3 {
	return b.Center.Add(b.Extents)
}

// Corners returns the eight corners of the box.
func (b AABB) Corners() [8]Vec3 {
	var out [8]Vec3
	for i := 0; i < 8; i++ {
		s := Vec3{-1, -1, -1}
		if i&1 != 0 {
			s[0] = 1
		}
		if i&2 != 0 {
			s[1] = 1
		}
		if i&4 != 0 {
			s[2] = 1
		}
		out[i] = b.Center.Add(b.Extents.Mul(s))
	}
	return out
}

// Contains reports whether p lies inside the box, allowing eps of slack on every face.
func (b AABB) Contains(p Vec3, eps float32) bool {
	d := p.Sub(b.Center).Abs()
	return d[0] <= b.Extents[0]+eps && d[1] <= b.Extents[1]+eps && d[2] <= b.Extents[2]+eps
}

// Transform returns the axis-aligned box enclosing the eight corners of b transformed by m.
func (b AABB) Transform(m Mat4) AABB {
	corners := b.Corners()
	pts := make([]Vec3, 0, 8)
	for _, c := range corners {
		pts = append(pts, m.TransformPoint(c))
	}
	return AABBFromPoints(pts)
}

// IntersectsRay performs a slab test of the ray origin + t*dir (t >= 0) against the box
// grown by eps on every side.
//
// Parameters:
//   - origin: ray origin
//   - dir: ray direction (need not be normalized)
//   - eps: slack added to the box extents
//
// Returns:
//   - float32: entry distance along dir (0 when the origin is inside)
//   - bool: true if the ray touches the box
func (b AABB) IntersectsRay(origin, dir Vec3, eps float32) (float32, bool) {
	min := b.Min().Sub(Vec3{eps, eps, eps})
	max := b.Max().Add(Vec3{eps, eps, eps})

	tmin := float32(0)
	tmax := float32(math32.MaxFloat32)
	for axis := 0; axis < 3; axis++ {
		if math32.Abs(dir[axis]) < 1e-12 {
			if origin[axis] < min[axis] || origin[axis] > max[axis] {
				return 0, false
			}
			continue
		}
		inv := 1 / dir[axis]
		t1 := (min[axis] - origin[axis]) * inv
		t2 := (max[axis] - origin[axis]) * inv
		if t1 > t2 {
			t1, t2 = t2, t1
		}
		if t1 > tmin {
			tmin = t1
		}
		if t2 < tmax {
			tmax = t2
		}
		if tmin > tmax {
			return 0, false
		}
	}
	return tmin, true
}

// RayTriangle intersects the ray origin + t*dir with triangle (a, b, c) using the Moller-Trumbore
// algorithm. Both windings are reported; callers apply their own facing test.
//
// Parameters:
//   - origin: ray origin
//   - dir: ray direction
//   - a, b, c: triangle vertices
//
// Returns:
//   - float32: the distance t along dir
//   - bool: true when the ray hits the triangle at t >= 0
func RayTriangle(origin, dir, a, b, c Vec3) (float32, bool) {
	const eps = 1e-7

	e1 := b.Sub(a)
	e2 := c.Sub(a)
	p := dir.Cross(e2)
	det := e1.Dot(p)
	if det > -eps && det < eps {
		return 0, false
	}
	invDet := 1 / det

	s := origin.Sub(a)
	u := s.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}

	q := s.Cross(e1)
	v := dir.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := e2.Dot(q) * invDet
	if t < 0 {
		return 0, false
	}
	return t, true
}

// TriangleOverlapsAABB runs the separating axis test (box face normals, triangle normal and the
// nine edge cross products) between triangle (a, b, c) and the box grown by eps.
//
// Parameters:
//   - a, b, c: triangle vertices
//   - box: the box
//   - eps: slack added to the box extents
//
// Returns:
//   - bool: true if no separating axis exists
func TriangleOverlapsAABB(a, b, c Vec3, box AABB, eps float32) bool {
	ext := box.Extents.Add(Vec3{eps, eps, eps})
	v0 := a.Sub(box.Center)
	v1 := b.Sub(box.Center)
	v2 := c.Sub(box.Center)

	separated := func(axis Vec3) bool {
		if axis.Dot(axis) < 1e-12 {
			return false
		}
		p0, p1, p2 := v0.Dot(axis), v1.Dot(axis), v2.Dot(axis)
		r := ext[0]*math32.Abs(axis[0]) + ext[1]*math32.Abs(axis[1]) + ext[2]*math32.Abs(axis[2])
		lo := math32.Min(p0, math32.Min(p1, p2))
		hi := math32.Max(p0, math32.Max(p1, p2))
		return lo > r || hi < -r
	}

	boxAxes := [3]Vec3{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}
	for _, axis := range boxAxes {
		if separated(axis) {
			return false
		}
	}

	edges := [3]Vec3{v1.Sub(v0), v2.Sub(v1), v0.Sub(v2)}
	if separated(edges[0].Cross(edges[1])) {
		return false
	}
	for _, e := range edges {
		for _, axis := range boxAxes {
			if separated(e.Cross(axis)) {
				return false
			}
		}
	}
	return true
}
