package common

import "github.com/chewxy/math32"

// Vec2 is a 2-component float32 vector, used for texture coordinates.
type Vec2 [2]float32

// Vec3 is a 3-component float32 vector used for positions, normals and directions.
type Vec3 [3]float32

// Vec4 is a 4-component float32 vector used for colours and homogeneous points.
type Vec4 [4]float32

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}

// Mul returns the component-wise product of v and o.
func (v Vec3) Mul(o Vec3) Vec3 {
	return Vec3{v[0] * o[0], v[1] * o[1], v[2] * o[2]}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Cross returns the cross product v x o.
func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Length returns the Euclidean length of v.
func (v Vec3) Length() float32 {
	return math32.Sqrt(v.Dot(v))
}

// Normalize returns v scaled to unit length. A zero vector is returned unchanged.
func (v Vec3) Normalize() Vec3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// Min returns the component-wise minimum of v and o.
func (v Vec3) Min(o Vec3) Vec3 {
	return Vec3{math32.Min(v[0], o[0]), math32.Min(v[1], o[1]), math32.Min(v[2], o[2])}
}

// Max returns the component-wise maximum of v and o.
func (v Vec3) Max(o Vec3) Vec3 {
	return Vec3{math32.Max(v[0], o[0]), math32.Max(v[1], o[1]), math32.Max(v[2], o[2])}
}

// Abs returns the component-wise absolute value of v.
func (v Vec3) Abs() Vec3 {
	return Vec3{math32.Abs(v[0]), math32.Abs(v[1]), math32.Abs(v[2])}
}

// ApproxEqual reports whether every component of v and o differs by at most eps.
func (v Vec3) ApproxEqual(o Vec3, eps float32) bool {
	return math32.Abs(v[0]-o[0]) <= eps && math32.Abs(v[1]-o[1]) <= eps && math32.Abs(v[2]-o[2]) <= eps
}

// Vec4 extends v with the given w component.
func (v Vec3) Vec4(w float32) Vec4 {
	return Vec4{v[0], v[1], v[2], w}
}

// Vec3 drops the w component of v.
func (v Vec4) Vec3() Vec3 {
	return Vec3{v[0], v[1], v[2]}
}
