package surface_mapping

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/draw_call"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
)

const (
	defaultWorkers           = 2
	defaultQueueSize         = 16
	defaultReprocessInterval = 5 * time.Second
	defaultPollInterval      = 50 * time.Millisecond
	poolQueueSize            = 256
	poolIdleTimeout          = time.Second
)

// surfaceMapping is the implementation of the SurfaceMapping interface.
type surfaceMapping struct {
	r      renderer.Renderer
	source SurfaceSource
	logger *slog.Logger

	workers           int
	queueSize         int
	reprocessInterval time.Duration
	pollInterval      time.Duration
	vertexShader      string
	pixelShader       string
	drawMode          DrawMode

	pool       worker.DynamicWorkerPool
	results    chan *meshRecord
	nextTaskID int
	queued     atomic.Int64
	cancel     context.CancelFunc
	done       chan struct{}

	// mu guards everything below; the observation goroutine and the conversion workers share it with
	// the render thread.
	mu       sync.Mutex
	records  map[string]*meshRecord
	erase    []string
	inFlight map[string]bool
	headPos  common.Vec3
	active   bool
}

// SurfaceMapping keeps render-ready meshes of the real-world surfaces reported by a SurfaceSource.
//
// Observation and conversion run off the render thread: a goroutine polls the source around the last
// head position and submits new or stale surfaces to a worker pool, which converts them and hands the
// results to the render thread through a bounded channel. Update applies them. Draw calls are only
// created and used on the render thread.
type SurfaceMapping interface {
	// Start begins observing. It may be called once.
	//
	// Parameters:
	//   - ctx: stops observation and pending conversions when cancelled
	//
	// Returns:
	//   - error: ErrAlreadyStarted on a second call
	Start(ctx context.Context) error

	// Update records the head position, erases surfaces no longer observed and adopts every converted
	// mesh waiting in the queue. Call it once per frame on the render thread.
	//
	// Parameters:
	//   - headPosition: the head position in the reference frame
	Update(headPosition common.Vec3)

	// DrawMeshes draws every surface according to the draw mode. Occlusion draws run inside a
	// colour-write-disabled blend state.
	//
	// Returns:
	//   - error: the joined draw call creation and draw errors
	DrawMeshes() error

	SetDrawMode(mode DrawMode)
	DrawMode() DrawMode

	// TestRayIntersection returns the closest hit over all surfaces.
	//
	// Parameters:
	//   - origin: the ray origin
	//   - dir: the ray direction
	//
	// Returns:
	//   - mesh.Hit: the closest hit
	//   - bool: false if no surface was hit
	TestRayIntersection(origin, dir common.Vec3) (mesh.Hit, bool)

	// SurfacesInProcessingQueue returns the number of surfaces submitted for conversion that have not
	// finished converting.
	SurfacesInProcessingQueue() int

	// IsActive reports whether at least one surface mesh has been adopted.
	IsActive() bool

	// RecordCount returns the number of adopted surfaces.
	RecordCount() int

	// Close stops observation and releases every surface mesh.
	Close()
}

var _ SurfaceMapping = &surfaceMapping{}

// NewSurfaceMapping creates a surface mapping fed by source. Observation starts with Start.
//
// Parameters:
//   - r: the render context the surface draw calls use
//   - source: the surface source
//   - options: variadic SurfaceMappingBuilderOption functions
//
// Returns:
//   - SurfaceMapping: the surface mapping
func NewSurfaceMapping(r renderer.Renderer, source SurfaceSource, options ...SurfaceMappingBuilderOption) SurfaceMapping {
	sm := &surfaceMapping{
		r:                 r,
		source:            source,
		logger:            r.Logger(),
		workers:           defaultWorkers,
		queueSize:         defaultQueueSize,
		reprocessInterval: defaultReprocessInterval,
		pollInterval:      defaultPollInterval,
		vertexShader:      "surface_vs.wgsl",
		pixelShader:       "surface_ps.wgsl",
		records:           make(map[string]*meshRecord),
		inFlight:          make(map[string]bool),
	}
	for _, opt := range options {
		opt(sm)
	}
	sm.results = make(chan *meshRecord, sm.queueSize)
	return sm
}

func (sm *surfaceMapping) Start(ctx context.Context) error {
	if sm.done != nil {
		return ErrAlreadyStarted
	}
	ctx, sm.cancel = context.WithCancel(ctx)
	sm.done = make(chan struct{})
	sm.pool = worker.NewDynamicWorkerPool(sm.workers, poolQueueSize, poolIdleTimeout)
	go sm.observe(ctx)
	sm.logger.Info("surface mapping started", "workers", sm.workers, "queue", sm.queueSize)
	return nil
}

func (sm *surfaceMapping) observe(ctx context.Context) {
	defer close(sm.done)
	ticker := time.NewTicker(sm.pollInterval)
	defer ticker.Stop()

	for {
		sm.mu.Lock()
		head := sm.headPos
		sm.mu.Unlock()
		sm.source.SetBoundingVolume(head, ObservationExtents)

		if err := sm.observeOnce(ctx); err != nil && ctx.Err() == nil {
			sm.logger.Warn("surface observation failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (sm *surfaceMapping) observeOnce(ctx context.Context) error {
	observed, err := sm.source.ObservedSurfaces(ctx)
	if err != nil {
		return err
	}
	for _, p := range sm.surfacesToProcess(observed) {
		sm.submit(ctx, p.surface)
	}
	return nil
}

// surfacesToProcess returns the observed surfaces that need a conversion, brand new surfaces first and
// then the surfaces whose meshes are oldest, and marks them in flight. Records whose surface is no
// longer observed are queued for erasure.
func (sm *surfaceMapping) surfacesToProcess(observed []Surface) []pendingSurface {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var pending []pendingSurface
	seen := make(map[string]bool, len(observed))
	for _, s := range observed {
		seen[s.ID] = true
		if sm.inFlight[s.ID] {
			continue
		}
		rec, ok := sm.records[s.ID]
		switch {
		case !ok:
			pending = append(pending, pendingSurface{surface: s})
		case rec.mesh == nil || s.UpdateTime.Sub(rec.surfaceUpdateTime) > sm.reprocessInterval:
			pending = append(pending, pendingSurface{surface: s, meshUpdateTime: rec.meshUpdateTime})
		}
	}

	for id := range sm.records {
		if !seen[id] && !slices.Contains(sm.erase, id) {
			sm.erase = append(sm.erase, id)
		}
	}

	slices.SortStableFunc(pending, func(a, b pendingSurface) int {
		return a.meshUpdateTime.Compare(b.meshUpdateTime)
	})
	for _, p := range pending {
		sm.inFlight[p.surface.ID] = true
	}
	return pending
}

func (sm *surfaceMapping) submit(ctx context.Context, s Surface) {
	sm.queued.Add(1)
	id := sm.nextTaskID
	sm.nextTaskID++

	sm.pool.SubmitTask(worker.Task{
		ID: id,
		Do: func() (any, error) {
			rec, err := sm.convert(ctx, s)
			sm.queued.Add(-1)
			if err != nil || rec == nil {
				sm.clearInFlight(s.ID)
				if err != nil && ctx.Err() == nil {
					sm.logger.Warn("surface conversion failed", "surface", s.ID, "error", err)
				}
				return nil, err
			}

			sm.logger.Debug("surface converted", "surface", s.ID, "vertices", rec.mesh.VertexCount())
			select {
			case sm.results <- rec:
				return s.ID, nil
			case <-ctx.Done():
				rec.release()
				sm.clearInFlight(s.ID)
				return nil, ctx.Err()
			}
		},
	})
}

// convert computes and unpacks the mesh of s. A nil record with a nil error means the source had no
// mesh for the surface.
func (sm *surfaceMapping) convert(ctx context.Context, s Surface) (*meshRecord, error) {
	src, err := sm.source.ComputeMesh(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("surface %s: %w", s.ID, err)
	}
	if src == nil {
		return nil, nil
	}

	vertices, indices, err := ConvertMesh(src)
	if err != nil {
		return nil, err
	}
	opts := append(sm.r.MeshOptions(), mesh.WithLabel("surface "+s.ID))
	m, err := mesh.NewMeshFromData(sm.r.Device(), vertices, indices, opts...)
	if err != nil {
		return nil, fmt.Errorf("surface %s: %w", s.ID, err)
	}
	m.UpdateBoundingBox()

	world := src.Transform
	if world == (common.Mat4{}) {
		world = common.Identity()
	}
	updated := src.Surface.UpdateTime
	if updated.IsZero() {
		updated = s.UpdateTime
	}
	return &meshRecord{
		id:                s.ID,
		mesh:              m,
		world:             world,
		color:             DefaultColor,
		surfaceUpdateTime: updated,
		meshUpdateTime:    time.Now(),
	}, nil
}

func (sm *surfaceMapping) clearInFlight(id string) {
	sm.mu.Lock()
	delete(sm.inFlight, id)
	sm.mu.Unlock()
}

func (sm *surfaceMapping) Update(headPosition common.Vec3) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.headPos = headPosition

	for _, id := range sm.erase {
		if rec, ok := sm.records[id]; ok {
			rec.release()
			delete(sm.records, id)
		}
	}
	sm.erase = sm.erase[:0]

drain:
	for {
		select {
		case rec := <-sm.results:
			if old, ok := sm.records[rec.id]; ok {
				old.release()
			}
			sm.records[rec.id] = rec
			delete(sm.inFlight, rec.id)
		default:
			break drain
		}
	}

	if len(sm.records) > 0 {
		sm.active = true
	}
}

func (sm *surfaceMapping) DrawMeshes() error {
	if sm.drawMode == DrawModeNone {
		return nil
	}
	if sm.drawMode == DrawModeOcclusion {
		sm.r.PushAlphaBlendState(device.BlendModeColorWriteDisabled)
		defer sm.r.PopAlphaBlendState()
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	var errs []error
	for _, id := range sm.sortedIDs() {
		rec := sm.records[id]
		if rec.drawCall == nil {
			dc, err := draw_call.NewDrawCall(sm.r, sm.vertexShader, sm.pixelShader, rec.mesh, draw_call.WithLabel("surface "+id))
			if err != nil {
				errs = append(errs, err)
				continue
			}
			dc.SetWorldTransform(rec.world, 0)
			dc.SetColor(rec.color, 0)
			rec.drawCall = dc
		}
		if err := rec.drawCall.Draw(1); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// sortedIDs keeps the draw order stable between frames. Callers hold mu.
func (sm *surfaceMapping) sortedIDs() []string {
	ids := make([]string, 0, len(sm.records))
	for id := range sm.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (sm *surfaceMapping) SetDrawMode(mode DrawMode) { sm.drawMode = mode }
func (sm *surfaceMapping) DrawMode() DrawMode        { return sm.drawMode }

func (sm *surfaceMapping) TestRayIntersection(origin, dir common.Vec3) (mesh.Hit, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	var best mesh.Hit
	found := false
	for _, rec := range sm.records {
		if rec.mesh == nil {
			continue
		}
		hit, ok := rec.mesh.TestRayIntersection(origin, dir, rec.world)
		if ok && (!found || hit.Distance < best.Distance) {
			best = hit
			found = true
		}
	}
	return best, found
}

func (sm *surfaceMapping) SurfacesInProcessingQueue() int {
	return int(sm.queued.Load())
}

func (sm *surfaceMapping) IsActive() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.active
}

func (sm *surfaceMapping) RecordCount() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.records)
}

func (sm *surfaceMapping) Close() {
	if sm.cancel != nil {
		sm.cancel()
		<-sm.done
	}
	// the observer has exited, so nothing submits to the pool any more
	if sm.pool != nil {
		sm.pool.ClearTaskQueue()
		sm.pool.Stop()
		sm.pool = nil
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, rec := range sm.records {
		rec.release()
		delete(sm.records, id)
	}
	for {
		select {
		case rec := <-sm.results:
			rec.release()
		default:
			return
		}
	}
}
