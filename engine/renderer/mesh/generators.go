package mesh

import (
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/chewxy/math32"
)

// Default dimensions used by NewMeshOfType.
const (
	DefaultPlaneWidth      = 1.5
	DefaultPlaneHeight     = 0.85
	DefaultCylinderRadius  = 0.5
	DefaultSphereRadius    = 0.5
	DefaultSweepSegments   = 32
	DefaultSphereSegments  = 24
	roundedCornerCurveRate = 0.2
)

type capType int

const (
	capNone capType = iota
	capFlat
	capSmooth
)

var (
	axisX = common.Vec3{1, 0, 0}
	axisY = common.Vec3{0, 1, 0}
	axisZ = common.Vec3{0, 0, 1}
)

// planeVertices returns the four corners of a w x h quad in the XY plane ordered
// top-left, top-right, bottom-left, bottom-right with triangles (0,1,2) and (3,2,1).
func planeVertices(left, top, right, bottom float32, normal common.Vec3) ([]Vertex, []uint32) {
	vertices := []Vertex{
		{Position: common.Vec3{left, top, 0}, Normal: normal, Texcoord: common.Vec2{0, 0}},
		{Position: common.Vec3{right, top, 0}, Normal: normal, Texcoord: common.Vec2{1, 0}},
		{Position: common.Vec3{left, bottom, 0}, Normal: normal, Texcoord: common.Vec2{0, 1}},
		{Position: common.Vec3{right, bottom, 0}, Normal: normal, Texcoord: common.Vec2{1, 1}},
	}
	return vertices, []uint32{0, 1, 2, 3, 2, 1}
}

func generatePlane(width, height float32) ([]Vertex, []uint32) {
	return planeVertices(-width/2, height/2, width/2, -height/2, axisZ)
}

// generateZeroOnePlane spans [0,1] on both axes with y growing downwards, for screen space quads.
func generateZeroOnePlane() ([]Vertex, []uint32) {
	return planeVertices(0, 0, 1, 1, axisZ.Scale(-1))
}

func generateBox(width, height, depth float32) ([]Vertex, []uint32) {
	l, r := -width/2, width/2
	b, t := -height/2, height/2
	n, f := depth/2, -depth/2

	ltn, rtn, rbn, lbn := common.Vec3{l, t, n}, common.Vec3{r, t, n}, common.Vec3{r, b, n}, common.Vec3{l, b, n}
	ltf, rtf, rbf, lbf := common.Vec3{l, t, f}, common.Vec3{r, t, f}, common.Vec3{r, b, f}, common.Vec3{l, b, f}

	faces := [6]struct {
		corners [4]common.Vec3
		normal  common.Vec3
	}{
		{[4]common.Vec3{ltn, rtn, rbn, lbn}, axisZ},
		{[4]common.Vec3{rtn, rtf, rbf, rbn}, axisX},
		{[4]common.Vec3{rtf, ltf, lbf, rbf}, axisZ.Scale(-1)},
		{[4]common.Vec3{ltf, ltn, lbn, lbf}, axisX.Scale(-1)},
		{[4]common.Vec3{ltf, rtf, rtn, ltn}, axisY},
		{[4]common.Vec3{lbn, rbn, rbf, lbf}, axisY.Scale(-1)},
	}
	texcoords := [4]common.Vec2{{0, 0}, {1, 0}, {1, 1}, {0, 1}}

	vertices := make([]Vertex, 0, 36)
	for _, face := range faces {
		for _, corner := range [6]int{0, 1, 3, 1, 2, 3} {
			vertices = append(vertices, Vertex{Position: face.corners[corner], Normal: face.normal, Texcoord: texcoords[corner]})
		}
	}
	return vertices, sequentialIndices(len(vertices))
}

// sweepAlongY builds the four disc sweep used by cylinders and rounded boxes: a flat begin cap at the
// bottom, the body, and a flat end cap at the top.
func sweepAlongY(radiusRight, radiusBack, height float32) []Disc {
	bottom := axisY.Scale(-height / 2)
	top := axisY.Scale(height / 2)
	return []Disc{
		{Center: bottom, Up: axisY, Right: axisX},
		{Center: bottom, Up: axisY, Right: axisX, RadiusRight: radiusRight, RadiusBack: radiusBack},
		{Center: top, Up: axisY, Right: axisX, RadiusRight: radiusRight, RadiusBack: radiusBack},
		{Center: top, Up: axisY, Right: axisX},
	}
}

// generateSphere builds a UV sphere of segments rings between two pole vertices. Rings are produced by
// pitching -Y about Z and yawing the result about Y.
func generateSphere(radius float32, segments int) ([]Vertex, []uint32) {
	segments = max(segments, 3)
	n := uint32(segments)

	vertices := make([]Vertex, 0, 2+(segments-1)*segments)
	south := axisY.Scale(-radius)
	vertices = append(vertices, Vertex{Position: south, Normal: axisY.Scale(-1), Texcoord: common.Vec2{0, 1}})
	for ring := 1; ring < segments; ring++ {
		pitch := math32.Pi * float32(ring) / float32(segments)
		start := common.RotationAxis(axisZ, pitch).TransformNormal(south)
		for s := 0; s < segments; s++ {
			yaw := 2 * math32.Pi * float32(s) / float32(segments-1)
			p := common.RotationAxis(axisY, yaw).TransformNormal(start)
			vertices = append(vertices, Vertex{
				Position: p,
				Normal:   p.Normalize(),
				Texcoord: common.Vec2{float32(s) / float32(segments-1), 1 - float32(ring)/float32(segments)},
			})
		}
	}
	north := axisY.Scale(radius)
	vertices = append(vertices, Vertex{Position: north, Normal: axisY, Texcoord: common.Vec2{0, 0}})
	last := uint32(len(vertices) - 1)

	indices := make([]uint32, 0, 6*segments*(segments-1))
	for loop := uint32(0); loop < n-1; loop++ {
		for s := uint32(0); s < n; s++ {
			bl := 1 + loop*n + s
			br := 1 + loop*n + (s+1)%n
			if loop == 0 {
				indices = append(indices, 0, bl, br)
			}
			if loop == n-2 {
				indices = append(indices, br, bl, last)
				continue
			}
			tl, tr := bl+n, br+n
			indices = append(indices, bl, tl, tr, tr, br, bl)
		}
	}
	return vertices, indices
}

// ringSize is the number of vertices one disc contributes for the given mode.
func ringSize(mode DiscMode, segments int) int {
	switch mode {
	case DiscModeSquare:
		return 4
	case DiscModeRoundedSquare:
		return 4 * (segments / 4)
	default:
		return segments
	}
}

// clampSegments raises segments to the smallest count that produces a closed ring for mode.
func clampSegments(mode DiscMode, segments int) int {
	if mode == DiscModeRoundedSquare {
		return max(segments, 4)
	}
	return max(segments, 3)
}

func discBackDir(d Disc) common.Vec3 {
	return d.Right.Cross(d.Up)
}

// discTexcoord maps a disc-local offset to planar texture coordinates over the disc extents.
func discTexcoord(local common.Vec3, d Disc) common.Vec2 {
	var uv common.Vec2
	if d.RadiusRight != 0 {
		uv[0] = local.Dot(d.Right)/(2*d.RadiusRight) + 0.5
	}
	if d.RadiusBack != 0 {
		uv[1] = local.Dot(discBackDir(d))/(2*d.RadiusBack) + 0.5
	}
	return uv
}

func appendRing(vertices []Vertex, d Disc, segments int, mode DiscMode) []Vertex {
	emit := func(local common.Vec3) {
		vertices = append(vertices, Vertex{Position: d.Center.Add(local), Texcoord: discTexcoord(local, d)})
	}
	back := discBackDir(d)

	switch mode {
	case DiscModeSquare:
		r, b := d.Right.Scale(d.RadiusRight), back.Scale(d.RadiusBack)
		emit(r.Add(b))
		emit(r.Sub(b))
		emit(r.Scale(-1).Sub(b))
		emit(r.Scale(-1).Add(b))

	case DiscModeRoundedSquare:
		curve := math32.Min(d.RadiusRight*roundedCornerCurveRate, d.RadiusBack)
		toBack := back.Scale(d.RadiusBack - curve)
		toRight := d.Right.Scale(d.RadiusRight - curve)
		centers := [4]common.Vec3{
			toBack.Add(toRight),
			toRight.Sub(toBack),
			toRight.Add(toBack).Scale(-1),
			toBack.Sub(toRight),
		}
		perCorner := segments / 4
		arcStart := back.Scale(curve)
		quarter := common.RotationAxis(d.Up, math32.Pi/2)
		for _, center := range centers {
			for k := 0; k < perCorner; k++ {
				yaw := math32.Pi / 2 * float32(k) / float32(perCorner)
				emit(center.Add(common.RotationAxis(d.Up, yaw).TransformNormal(arcStart)))
			}
			arcStart = quarter.TransformNormal(arcStart)
		}

	default:
		start := d.Right.Scale(d.RadiusRight)
		for k := 0; k < segments; k++ {
			yaw := 2 * math32.Pi * float32(k) / float32(segments)
			emit(common.RotationAxis(d.Up, yaw).TransformNormal(start))
		}
	}
	return vertices
}

func isPointDisc(d Disc) bool {
	return d.RadiusRight == 0 && d.RadiusBack == 0
}

// sweepCaps detects caps: a zero-radius first or last disc closes the sweep, flat when it shares its
// centre with its neighbour and smooth otherwise.
func sweepCaps(discs []Disc) (capType, capType) {
	begin, end := capNone, capNone
	if len(discs) >= 2 && isPointDisc(discs[0]) {
		begin = capSmooth
		if discs[0].Center == discs[1].Center {
			begin = capFlat
		}
	}
	if (begin == capNone && len(discs) >= 2) || (begin != capNone && len(discs) >= 4) {
		last := len(discs) - 1
		if isPointDisc(discs[last]) {
			end = capSmooth
			if discs[last].Center == discs[last-1].Center {
				end = capFlat
			}
		}
	}
	return begin, end
}

// appendSweep appends the vertices and indices of a disc sweep to an existing vertex and index list.
// Normals are left zero. A flat cap duplicates the neighbouring ring so the cap keeps a hard edge once
// smooth normals are generated.
func appendSweep(vertices []Vertex, indices []uint32, discs []Disc, segments int, mode DiscMode) ([]Vertex, []uint32) {
	if len(discs) == 0 {
		return vertices, indices
	}
	segments = clampSegments(mode, segments)
	ring := uint32(ringSize(mode, segments))
	start := uint32(len(vertices))
	begin, end := sweepCaps(discs)

	loops := uint32(0)
	for i, d := range discs {
		switch {
		case i == 0 && begin != capNone, i == len(discs)-1 && end != capNone:
			vertices = append(vertices, Vertex{Position: d.Center, Texcoord: common.Vec2{0.5, 0.5}})
		default:
			if (begin == capFlat && i == 1) || (end == capFlat && i == len(discs)-2) {
				vertices = appendRing(vertices, d, segments, mode)
			}
			vertices = appendRing(vertices, d, segments, mode)
			loops++
		}
	}

	bodyStart := start
	switch begin {
	case capFlat:
		indices = appendBeginCap(indices, start, ring)
		bodyStart += 1 + ring
	case capSmooth:
		indices = appendBeginCap(indices, start, ring)
		bodyStart++
	}

	indices = appendBody(indices, bodyStart, loops, ring)

	switch end {
	case capFlat:
		indices = appendEndCap(indices, bodyStart+loops*ring, ring)
	case capSmooth:
		indices = appendEndCap(indices, bodyStart+(loops-1)*ring, ring)
	}
	return vertices, indices
}

func appendBeginCap(indices []uint32, center, ring uint32) []uint32 {
	for s := uint32(0); s < ring; s++ {
		indices = append(indices, center, center+1+s, center+1+(s+1)%ring)
	}
	return indices
}

func appendBody(indices []uint32, start, loops, ring uint32) []uint32 {
	for loop := uint32(0); loop+1 < loops; loop++ {
		for s := uint32(0); s < ring; s++ {
			bl := start + loop*ring + s
			br := start + loop*ring + (s+1)%ring
			tl, tr := bl+ring, br+ring
			indices = append(indices, bl, tl, tr, tr, br, bl)
		}
	}
	return indices
}

func appendEndCap(indices []uint32, ringStart, ring uint32) []uint32 {
	center := ringStart + ring
	for s := uint32(0); s < ring; s++ {
		indices = append(indices, ringStart+(s+1)%ring, ringStart+s, center)
	}
	return indices
}

// smoothNormals replaces every normal with the normalized sum of the face normals of the triangles
// using the vertex.
func smoothNormals(vertices []Vertex, indices []uint32) {
	for i := range vertices {
		vertices[i].Normal = common.Vec3{}
	}
	for i := 0; i+2 < len(indices); i += 3 {
		a, b, c := &vertices[indices[i]], &vertices[indices[i+1]], &vertices[indices[i+2]]
		n := a.Position.Sub(b.Position).Cross(c.Position.Sub(b.Position))
		a.Normal = a.Normal.Add(n)
		b.Normal = b.Normal.Add(n)
		c.Normal = c.Normal.Add(n)
	}
	for i := range vertices {
		vertices[i].Normal = vertices[i].Normal.Normalize()
	}
}

func sequentialIndices(n int) []uint32 {
	indices := make([]uint32, n)
	for i := range indices {
		indices[i] = uint32(i)
	}
	return indices
}
