package surface_mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/draw_call"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
)

// DrawMode selects how DrawMeshes renders the surface records.
type DrawMode int

const (
	// DrawModeNone skips surface rendering.
	DrawModeNone DrawMode = iota
	// DrawModeVisible draws the surfaces with their colour.
	DrawModeVisible
	// DrawModeOcclusion writes surface depth only so real-world geometry hides holograms behind it.
	DrawModeOcclusion
)

func (m DrawMode) String() string {
	switch m {
	case DrawModeNone:
		return "none"
	case DrawModeVisible:
		return "visible"
	case DrawModeOcclusion:
		return "occlusion"
	default:
		return fmt.Sprintf("DrawMode(%d)", int(m))
	}
}

// DefaultColor is the colour of a newly converted surface.
var DefaultColor = common.Vec4{0.5, 0.5, 0.5, 1}

// ObservationExtents are the half sizes of the box around the head inside which surfaces are observed.
var ObservationExtents = common.Vec3{10, 10, 5}

var (
	// ErrMismatchedBuffers is returned when a surface mesh has different position and normal counts.
	ErrMismatchedBuffers = errors.New("surface mapping: position and normal counts differ")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("surface mapping: already started")
)

// Surface is one observed real-world surface.
type Surface struct {
	ID         string
	UpdateTime time.Time
}

// SurfaceMesh is the packed mesh a SurfaceSource computes for a surface.
type SurfaceMesh struct {
	Surface Surface

	// Indices is an R16 triangle list.
	Indices []uint16

	// Positions holds four R16G16B16A16 SNORM components per vertex; w is ignored.
	Positions []int16

	// PositionScale multiplies the decoded positions.
	PositionScale common.Vec3

	// Normals holds four R8G8B8A8 SNORM components per vertex; w is ignored.
	Normals []int8

	// Transform maps the mesh into the reference frame. A zero matrix means identity.
	Transform common.Mat4
}

// SurfaceSource reports the surfaces observed by a spatial mapping device.
type SurfaceSource interface {
	// SetBoundingVolume limits observation to an axis aligned box.
	//
	// Parameters:
	//   - center: the box centre in the reference frame
	//   - extents: the box half sizes
	SetBoundingVolume(center, extents common.Vec3)

	// ObservedSurfaces returns every surface currently inside the bounding volume.
	//
	// Parameters:
	//   - ctx: cancels the query
	//
	// Returns:
	//   - []Surface: the observed surfaces
	//   - error: any source error
	ObservedSurfaces(ctx context.Context) ([]Surface, error)

	// ComputeMesh returns the latest mesh of a surface. A nil mesh with a nil error means the surface
	// has no mesh yet.
	//
	// Parameters:
	//   - ctx: cancels the computation
	//   - surface: the surface to mesh
	//
	// Returns:
	//   - *SurfaceMesh: the packed mesh, or nil
	//   - error: any source error
	ComputeMesh(ctx context.Context, surface Surface) (*SurfaceMesh, error)
}

// meshRecord is one converted surface. drawCall is created on the render thread the first time the
// record is drawn.
type meshRecord struct {
	id                string
	mesh              mesh.Mesh
	world             common.Mat4
	color             common.Vec4
	surfaceUpdateTime time.Time
	meshUpdateTime    time.Time
	drawCall          draw_call.DrawCall
}

func (rec *meshRecord) release() {
	if rec.drawCall != nil {
		rec.drawCall.Release()
	} else if rec.mesh != nil {
		rec.mesh.Release()
	}
}

// pendingSurface is a surface waiting for conversion with the time its current mesh was built;
// brand new surfaces carry the zero time.
type pendingSurface struct {
	surface        Surface
	meshUpdateTime time.Time
}
