package common

import (
	"unsafe"

	"github.com/chewxy/math32"
)

// Mat4 is a 4x4 matrix stored in column-major order (OpenGL/WebGPU convention).
// Vectors are treated as columns, so a transform chain reads right to left: P * V * W * p.
type Mat4 [16]float32

// Identity returns the 4x4 identity matrix.
//
// Returns:
//   - Mat4: the identity matrix
func Identity() Mat4 {
	return Mat4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// StructToBytes reinterprets a pointer to a struct as a raw byte slice using unsafe.
// The returned slice has length equal to the struct's size in memory.
//
// Parameters:
//   - v: pointer to the struct to reinterpret
//
// Returns:
//   - []byte: byte slice view of the struct's memory
func StructToBytes[T any](v *T) []byte {
	size := unsafe.Sizeof(*v)
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(size))
}

// Mul4 multiplies two 4x4 matrices. Result: a * b, so b is applied first.
//
// Parameters:
//   - a: left-hand matrix
//   - b: right-hand matrix
//
// Returns:
//   - Mat4: the product a * b
func Mul4(a, b Mat4) Mat4 {
	var out Mat4
	for i := 0; i < 4; i++ { // column of B
		for j := 0; j < 4; j++ { // row of A
			sum := float32(0)
			for k := 0; k < 4; k++ {
				sum += a[k*4+j] * b[i*4+k]
			}
			out[i*4+j] = sum
		}
	}
	return out
}

// Mul returns m * b.
func (m Mat4) Mul(b Mat4) Mat4 {
	return Mul4(m, b)
}

// Transpose returns the transpose of m.
func (m Mat4) Transpose() Mat4 {
	var out Mat4
	for c := 0; c < 4; c++ {
		for r := 0; r < 4; r++ {
			out[r*4+c] = m[c*4+r]
		}
	}
	return out
}

// At returns the element at the given row and column.
func (m Mat4) At(row, col int) float32 {
	return m[col*4+row]
}

// PerspectiveRH creates a right-handed perspective projection with a finite far plane.
// Clip-space depth is mapped to [0, 1], matching WebGPU.
//
// Parameters:
//   - fovY: vertical field of view in radians
//   - aspect: viewport aspect ratio (width/height)
//   - near: near clipping plane distance (must be > 0)
//   - far: far clipping plane distance (must be > near)
//
// Returns:
//   - Mat4: the projection matrix
func PerspectiveRH(fovY, aspect, near, far float32) Mat4 {
	f := 1.0 / math32.Tan(fovY/2.0)
	rng := far / (near - far)

	var out Mat4
	out[0] = f / aspect
	out[5] = f
	out[10] = rng
	out[11] = -1.0
	out[14] = rng * near
	return out
}

// OrthographicRH creates a right-handed orthographic projection centred on the view axis.
// Clip-space depth is mapped to [0, 1].
//
// Parameters:
//   - width: width of the view volume
//   - height: height of the view volume
//   - near: near clipping plane distance
//   - far: far clipping plane distance
//
// Returns:
//   - Mat4: the projection matrix
func OrthographicRH(width, height, near, far float32) Mat4 {
	rng := 1.0 / (near - far)

	var out Mat4
	out[0] = 2.0 / width
	out[5] = 2.0 / height
	out[10] = rng
	out[14] = rng * near
	out[15] = 1.0
	return out
}

// BuildModelMatrix constructs a 4x4 model matrix from position, Euler rotation, and scale.
// The rotation order is Y * X * Z (yaw-pitch-roll).
//
// Parameters:
//   - pos: translation in world space
//   - rot: rotation angles in radians around each axis
//   - scale: scale factors along each axis
//
// Returns:
//   - Mat4: the model matrix
func BuildModelMatrix(pos, rot, scale Vec3) Mat4 {
	cx, sx := math32.Cos(rot[0]), math32.Sin(rot[0])
	cy, sy := math32.Cos(rot[1]), math32.Sin(rot[1])
	cz, sz := math32.Cos(rot[2]), math32.Sin(rot[2])

	var out Mat4
	// R = Ry * Rx * Rz
	out[0] = (cy*cz + sy*sx*sz) * scale[0]
	out[1] = (cx * sz) * scale[0]
	out[2] = (-sy*cz + cy*sx*sz) * scale[0]

	out[4] = (cy*-sz + sy*sx*cz) * scale[1]
	out[5] = (cx * cz) * scale[1]
	out[6] = (sy*sz + cy*sx*cz) * scale[1]

	out[8] = (sy * cx) * scale[2]
	out[9] = (-sx) * scale[2]
	out[10] = (cy * cx) * scale[2]

	out[12] = pos[0]
	out[13] = pos[1]
	out[14] = pos[2]
	out[15] = 1
	return out
}

// Translation returns a matrix translating by v.
func Translation(v Vec3) Mat4 {
	m := Identity()
	m[12], m[13], m[14] = v[0], v[1], v[2]
	return m
}

// Scaling returns a matrix scaling by x, y and z.
func Scaling(x, y, z float32) Mat4 {
	m := Identity()
	m[0], m[5], m[10] = x, y, z
	return m
}

// RotationAxis returns a rotation of angle radians about axis (Rodrigues' formula).
// The axis does not need to be normalized. A positive angle rotates counter-clockwise
// when looking down the axis towards the origin.
//
// Parameters:
//   - axis: the rotation axis
//   - angle: rotation angle in radians
//
// Returns:
//   - Mat4: the rotation matrix
func RotationAxis(axis Vec3, angle float32) Mat4 {
	k := axis.Normalize()
	c := math32.Cos(angle)
	s := math32.Sin(angle)
	t := 1 - c

	m := Identity()
	// column 0
	m[0] = c + t*k[0]*k[0]
	m[1] = t*k[0]*k[1] + s*k[2]
	m[2] = t*k[0]*k[2] - s*k[1]
	// column 1
	m[4] = t*k[0]*k[1] - s*k[2]
	m[5] = c + t*k[1]*k[1]
	m[6] = t*k[1]*k[2] + s*k[0]
	// column 2
	m[8] = t*k[0]*k[2] + s*k[1]
	m[9] = t*k[1]*k[2] - s*k[0]
	m[10] = c + t*k[2]*k[2]
	return m
}

// Invert4 computes the inverse of a 4x4 matrix using the Laplace expansion (cofactor) method.
// If the matrix is singular the identity is returned together with false.
//
// Parameters:
//   - m: source matrix
//
// Returns:
//   - Mat4: the inverse matrix
//   - bool: true if the matrix was successfully inverted, false if singular
func Invert4(m Mat4) (Mat4, bool) {
	// 2x2 sub-determinants of the upper-left and lower-right quadrants.
	s0 := m[0]*m[5] - m[4]*m[1]
	s1 := m[0]*m[6] - m[4]*m[2]
	s2 := m[0]*m[7] - m[4]*m[3]
	s3 := m[1]*m[6] - m[5]*m[2]
	s4 := m[1]*m[7] - m[5]*m[3]
	s5 := m[2]*m[7] - m[6]*m[3]

	c5 := m[10]*m[15] - m[14]*m[11]
	c4 := m[9]*m[15] - m[13]*m[11]
	c3 := m[9]*m[14] - m[13]*m[10]
	c2 := m[8]*m[15] - m[12]*m[11]
	c1 := m[8]*m[14] - m[12]*m[10]
	c0 := m[8]*m[13] - m[12]*m[9]

	det := s0*c5 - s1*c4 + s2*c3 + s3*c2 - s4*c1 + s5*c0
	if det == 0 {
		return Identity(), false
	}

	invDet := 1.0 / det

	var out Mat4
	out[0] = (m[5]*c5 - m[6]*c4 + m[7]*c3) * invDet
	out[1] = (-m[1]*c5 + m[2]*c4 - m[3]*c3) * invDet
	out[2] = (m[13]*s5 - m[14]*s4 + m[15]*s3) * invDet
	out[3] = (-m[9]*s5 + m[10]*s4 - m[11]*s3) * invDet

	out[4] = (-m[4]*c5 + m[6]*c2 - m[7]*c1) * invDet
	out[5] = (m[0]*c5 - m[2]*c2 + m[3]*c1) * invDet
	out[6] = (-m[12]*s5 + m[14]*s2 - m[15]*s1) * invDet
	out[7] = (m[8]*s5 - m[10]*s2 + m[11]*s1) * invDet

	out[8] = (m[4]*c4 - m[5]*c2 + m[7]*c0) * invDet
	out[9] = (-m[0]*c4 + m[1]*c2 - m[3]*c0) * invDet
	out[10] = (m[12]*s4 - m[13]*s2 + m[15]*s0) * invDet
	out[11] = (-m[8]*s4 + m[9]*s2 - m[11]*s0) * invDet

	out[12] = (-m[4]*c3 + m[5]*c1 - m[6]*c0) * invDet
	out[13] = (m[0]*c3 - m[1]*c1 + m[2]*c0) * invDet
	out[14] = (-m[12]*s3 + m[13]*s1 - m[14]*s0) * invDet
	out[15] = (m[8]*s3 - m[9]*s1 + m[10]*s0) * invDet

	return out, true
}

// LookAtRH creates a right-handed view matrix that positions and orients the camera.
// The camera looks down its local -Z axis towards the target.
//
// Parameters:
//   - eye: camera position in world space
//   - center: target point the camera looks at
//   - up: up vector defining camera orientation (typically 0,1,0)
//
// Returns:
//   - Mat4: the view matrix
func LookAtRH(eye, center, up Vec3) Mat4 {
	return LookToRH(eye, center.Sub(eye), up)
}

// LookToRH creates a right-handed view matrix from an eye position and a viewing direction.
//
// Parameters:
//   - eye: camera position in world space
//   - dir: direction the camera faces
//   - up: up vector defining camera orientation
//
// Returns:
//   - Mat4: the view matrix
func LookToRH(eye, dir, up Vec3) Mat4 {
	z := dir.Scale(-1).Normalize()
	x := up.Cross(z).Normalize()
	y := z.Cross(x)

	var out Mat4
	out[0], out[4], out[8], out[12] = x[0], x[1], x[2], -x.Dot(eye)
	out[1], out[5], out[9], out[13] = y[0], y[1], y[2], -y.Dot(eye)
	out[2], out[6], out[10], out[14] = z[0], z[1], z[2], -z.Dot(eye)
	out[3], out[7], out[11], out[15] = 0, 0, 0, 1
	return out
}

// TransformPoint transforms p as a point (w = 1), dividing by the resulting w when it is not 1.
func (m Mat4) TransformPoint(p Vec3) Vec3 {
	x := m[0]*p[0] + m[4]*p[1] + m[8]*p[2] + m[12]
	y := m[1]*p[0] + m[5]*p[1] + m[9]*p[2] + m[13]
	z := m[2]*p[0] + m[6]*p[1] + m[10]*p[2] + m[14]
	w := m[3]*p[0] + m[7]*p[1] + m[11]*p[2] + m[15]
	if w != 1 && w != 0 {
		inv := 1 / w
		return Vec3{x * inv, y * inv, z * inv}
	}
	return Vec3{x, y, z}
}

// TransformNormal transforms n as a direction (w = 0), ignoring translation.
func (m Mat4) TransformNormal(n Vec3) Vec3 {
	return Vec3{
		m[0]*n[0] + m[4]*n[1] + m[8]*n[2],
		m[1]*n[0] + m[5]*n[1] + m[9]*n[2],
		m[2]*n[0] + m[6]*n[1] + m[10]*n[2],
	}
}

// TransformVec4 returns m * v.
func (m Mat4) TransformVec4(v Vec4) Vec4 {
	var out Vec4
	for r := 0; r < 4; r++ {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// ApproxEqual reports whether every element of m and b differs by at most eps.
func (m Mat4) ApproxEqual(b Mat4, eps float32) bool {
	for i := range m {
		if math32.Abs(m[i]-b[i]) > eps {
			return false
		}
	}
	return true
}
