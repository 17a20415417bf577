package common

// Plane is the plane dot(Normal, p) + Distance = 0. The positive half space is inside.
type Plane struct {
	Normal   Vec3
	Distance float32
}

// SignedDistance returns the signed distance of v from the plane.
func (p Plane) SignedDistance(v Vec3) float32 {
	return p.Normal.Dot(v) + p.Distance
}

// Frustum holds the six inward-facing planes of a view volume.
type Frustum struct {
	Planes [6]Plane // Left, Right, Bottom, Top, Near, Far
}

const (
	FrustumLeft = iota
	FrustumRight
	FrustumBottom
	FrustumTop
	FrustumNear
	FrustumFar
)

// ExtractFrustum extracts normalized frustum planes from a view-projection matrix using the
// Gribb/Hartmann method. The near plane assumes the [0, 1] clip depth range of PerspectiveRH.
//
// Parameters:
//   - viewProj: P * V
//
// Returns:
//   - Frustum: the extracted frustum
func ExtractFrustum(viewProj Mat4) Frustum {
	row := func(i int) Vec4 {
		return Vec4{viewProj.At(i, 0), viewProj.At(i, 1), viewProj.At(i, 2), viewProj.At(i, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)
	add := func(a, b Vec4) Vec4 { return Vec4{a[0] + b[0], a[1] + b[1], a[2] + b[2], a[3] + b[3]} }
	sub := func(a, b Vec4) Vec4 { return Vec4{a[0] - b[0], a[1] - b[1], a[2] - b[2], a[3] - b[3]} }

	var f Frustum
	for i, eq := range [6]Vec4{add(r3, r0), sub(r3, r0), add(r3, r1), sub(r3, r1), r2, sub(r3, r2)} {
		p := Plane{Normal: eq.Vec3(), Distance: eq[3]}
		if l := p.Normal.Length(); l > 0 {
			p.Normal = p.Normal.Scale(1 / l)
			p.Distance /= l
		}
		f.Planes[i] = p
	}
	return f
}

// ContainsPoint reports whether v lies inside every plane.
func (f Frustum) ContainsPoint(v Vec3) bool {
	for _, p := range f.Planes {
		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}

// IntersectsAABB reports whether box is at least partly inside. It is conservative: boxes near a
// frustum corner may be reported visible.
func (f Frustum) IntersectsAABB(box AABB) bool {
	lo, hi := box.Min(), box.Max()
	for _, p := range f.Planes {
		// the corner furthest along the plane normal
		var v Vec3
		for i := range 3 {
			if p.Normal[i] >= 0 {
				v[i] = hi[i]
			} else {
				v[i] = lo[i]
			}
		}
		if p.SignedDistance(v) < 0 {
			return false
		}
	}
	return true
}
