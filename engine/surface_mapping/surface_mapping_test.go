package surface_mapping

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const surfaceVS = `
//@oxy:include mesh_vertex
//@oxy:include instance

struct Constants {
    worldViewProj: mat4x4<f32>,
}

@group(0) @binding(0) var<uniform> constants: Constants;

@vertex
fn vs_surface(v: VertexInput, inst: InstanceInput) -> @builtin(position) vec4<f32> {
    return constants.worldViewProj * vec4<f32>(v.position, 1.0);
}
`

const surfacePS = `
@fragment
fn ps_surface() -> @location(0) vec4<f32> {
    return vec4<f32>(0.5, 0.5, 0.5, 1.0);
}
`

// fakeSource serves fixed quads for a mutable set of surfaces.
type fakeSource struct {
	mu       sync.Mutex
	surfaces map[string]Surface
	noMesh   map[string]bool
	fail     error
	computed map[string]int
	center   common.Vec3
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		surfaces: make(map[string]Surface),
		noMesh:   make(map[string]bool),
		computed: make(map[string]int),
	}
}

func (f *fakeSource) set(s Surface) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.surfaces[s.ID] = s
}

func (f *fakeSource) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.surfaces, id)
}

func (f *fakeSource) computeCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.computed[id]
}

func (f *fakeSource) lastCenter() common.Vec3 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.center
}

func (f *fakeSource) SetBoundingVolume(center, extents common.Vec3) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.center = center
}

func (f *fakeSource) ObservedSurfaces(ctx context.Context) ([]Surface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Surface, 0, len(f.surfaces))
	for _, s := range f.surfaces {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeSource) ComputeMesh(ctx context.Context, s Surface) (*SurfaceMesh, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.computed[s.ID]++
	if f.fail != nil {
		return nil, f.fail
	}
	if f.noMesh[s.ID] {
		return nil, nil
	}
	m := quad(common.Translation(common.Vec3{0, 0, -3}))
	m.Surface = s
	return m, nil
}

// quad is a 2x2 square in the xy plane facing +z.
func quad(transform common.Mat4) *SurfaceMesh {
	const h = 1 << 14
	return &SurfaceMesh{
		Indices:       []uint16{0, 2, 1, 0, 3, 2},
		Positions:     []int16{-h, -h, 0, 0, h, -h, 0, 0, h, h, 0, 0, -h, h, 0, 0},
		Normals:       []int8{0, 0, 127, 0, 0, 0, 127, 0, 0, 0, 127, 0, 0, 0, 127, 0},
		PositionScale: common.Vec3{2, 2, 2},
		Transform:     transform,
	}
}

func newTestRenderer(t *testing.T) (renderer.Renderer, device.RecordingDevice) {
	t.Helper()
	media := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(media, "surface_vs.wgsl"), []byte(surfaceVS), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(media, "surface_ps.wgsl"), []byte(surfacePS), 0o644))

	dev := device.NewRecordingDevice()
	r, err := renderer.NewRenderer(dev, renderer.WithShaderMediaDir(media))
	require.NoError(t, err)
	t.Cleanup(r.Release)
	return r, dev
}

func startMapping(t *testing.T, r renderer.Renderer, src SurfaceSource, opts ...SurfaceMappingBuilderOption) SurfaceMapping {
	t.Helper()
	opts = append([]SurfaceMappingBuilderOption{WithPollInterval(5 * time.Millisecond)}, opts...)
	sm := NewSurfaceMapping(r, src, opts...)
	require.NoError(t, sm.Start(context.Background()))
	t.Cleanup(sm.Close)
	return sm
}

func waitForRecords(t *testing.T, sm SurfaceMapping, n int) {
	t.Helper()
	assert.Eventually(t, func() bool {
		sm.Update(common.Vec3{})
		return sm.RecordCount() == n
	}, 2*time.Second, 5*time.Millisecond)
}

func TestConvertMesh(t *testing.T) {
	src := &SurfaceMesh{
		Indices:       []uint16{0, 1, 2},
		Positions:     []int16{16384, -8192, 32767, 0, 0, 0, 0, 0, -32768, 0, 0, 0},
		Normals:       []int8{64, -128, 0, 0, 0, 127, 0, 0, 0, 0, -64, 0},
		PositionScale: common.Vec3{2, 4, 1},
	}
	vertices, indices, err := ConvertMesh(src)
	require.NoError(t, err)
	require.Len(t, vertices, 3)
	assert.Equal(t, []uint32{0, 1, 2}, indices)

	assert.InDeltaSlice(t, []float32{1, -1, 32767.0 / 32768}, vertices[0].Position[:], 1e-6)
	assert.InDeltaSlice(t, []float32{0.5, -1, 0}, vertices[0].Normal[:], 1e-6)
	assert.InDeltaSlice(t, []float32{-2, 0, 0}, vertices[2].Position[:], 1e-6)
	assert.Equal(t, common.Vec2{}, vertices[1].Texcoord)

	src.Normals = src.Normals[:8]
	_, _, err = ConvertMesh(src)
	assert.ErrorIs(t, err, ErrMismatchedBuffers)
}

func TestSurfaceMapping_AdoptsAndErases(t *testing.T) {
	r, _ := newTestRenderer(t)
	src := newFakeSource()
	src.set(Surface{ID: "a", UpdateTime: time.Unix(100, 0)})
	sm := startMapping(t, r, src)
	assert.False(t, sm.IsActive())

	waitForRecords(t, sm, 1)
	assert.True(t, sm.IsActive())

	hit, ok := sm.TestRayIntersection(common.Vec3{0.25, -0.5, 0}, common.Vec3{0, 0, -1})
	require.True(t, ok)
	assert.InDelta(t, 3, hit.Distance, 1e-5)
	assert.InDeltaSlice(t, []float32{0, 0, 1}, hit.Normal[:], 1e-5)
	_, ok = sm.TestRayIntersection(common.Vec3{5, 5, 0}, common.Vec3{0, 0, -1})
	assert.False(t, ok)

	sm.Update(common.Vec3{1, 2, 3})
	assert.Eventually(t, func() bool { return src.lastCenter() == common.Vec3{1, 2, 3} }, time.Second, 5*time.Millisecond)

	src.remove("a")
	waitForRecords(t, sm, 0)
	assert.True(t, sm.IsActive(), "activity is sticky")
	assert.Zero(t, sm.SurfacesInProcessingQueue())
}

func TestSurfaceMapping_ReprocessesStaleSurfaces(t *testing.T) {
	r, _ := newTestRenderer(t)
	src := newFakeSource()
	src.set(Surface{ID: "a", UpdateTime: time.Unix(100, 0)})
	sm := startMapping(t, r, src, WithReprocessInterval(5*time.Second))
	waitForRecords(t, sm, 1)

	src.set(Surface{ID: "a", UpdateTime: time.Unix(104, 0)})
	time.Sleep(50 * time.Millisecond)
	sm.Update(common.Vec3{})
	assert.Equal(t, 1, src.computeCount("a"), "updates within the interval are ignored")

	src.set(Surface{ID: "a", UpdateTime: time.Unix(106, 0)})
	assert.Eventually(t, func() bool {
		sm.Update(common.Vec3{})
		return src.computeCount("a") == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, sm.RecordCount())
}

func TestSurfaceMapping_NoMeshOrError(t *testing.T) {
	r, _ := newTestRenderer(t)
	src := newFakeSource()
	src.noMesh["empty"] = true
	src.set(Surface{ID: "empty"})
	sm := startMapping(t, r, src)

	assert.Eventually(t, func() bool { return src.computeCount("empty") >= 2 }, 2*time.Second, 5*time.Millisecond,
		"a surface without a mesh is retried")
	sm.Update(common.Vec3{})
	assert.Zero(t, sm.RecordCount())

	src.mu.Lock()
	src.fail = errors.New("sensor lost")
	src.mu.Unlock()
	src.set(Surface{ID: "b"})
	assert.Eventually(t, func() bool { return src.computeCount("b") >= 2 }, 2*time.Second, 5*time.Millisecond)
	sm.Update(common.Vec3{})
	assert.Zero(t, sm.RecordCount())
}

func TestSurfaceMapping_StartTwice(t *testing.T) {
	r, _ := newTestRenderer(t)
	sm := startMapping(t, r, newFakeSource())
	assert.ErrorIs(t, sm.Start(context.Background()), ErrAlreadyStarted)
}

func TestSurfaceMapping_CloseStopsWorkers(t *testing.T) {
	r, _ := newTestRenderer(t)
	src := newFakeSource()
	src.set(Surface{ID: "a", UpdateTime: time.Unix(100, 0)})
	sm := startMapping(t, r, src)
	waitForRecords(t, sm, 1)

	impl := sm.(*surfaceMapping)
	require.NotNil(t, impl.pool)
	sm.Close()
	assert.Nil(t, impl.pool)
	assert.Zero(t, sm.RecordCount())
	assert.NotPanics(t, sm.Close)
}

func TestSurfacesToProcess_Order(t *testing.T) {
	r, _ := newTestRenderer(t)
	sm := NewSurfaceMapping(r, newFakeSource(), WithReprocessInterval(5*time.Second)).(*surfaceMapping)

	base := time.Unix(1000, 0)
	cpuMesh := mesh.NewMesh(nil)
	sm.records["old"] = &meshRecord{id: "old", mesh: cpuMesh, surfaceUpdateTime: base, meshUpdateTime: base.Add(time.Second)}
	sm.records["older"] = &meshRecord{id: "older", mesh: cpuMesh, surfaceUpdateTime: base, meshUpdateTime: base}
	sm.records["fresh"] = &meshRecord{id: "fresh", mesh: cpuMesh, surfaceUpdateTime: base, meshUpdateTime: base}
	sm.records["nomesh"] = &meshRecord{id: "nomesh", surfaceUpdateTime: base, meshUpdateTime: base.Add(time.Hour)}
	sm.records["gone"] = &meshRecord{id: "gone", mesh: cpuMesh}
	sm.inFlight["busy"] = true

	pending := sm.surfacesToProcess([]Surface{
		{ID: "old", UpdateTime: base.Add(6 * time.Second)},
		{ID: "fresh", UpdateTime: base.Add(5 * time.Second)},
		{ID: "new", UpdateTime: base},
		{ID: "nomesh", UpdateTime: base},
		{ID: "older", UpdateTime: base.Add(10 * time.Second)},
		{ID: "busy", UpdateTime: base},
	})

	ids := make([]string, len(pending))
	for i, p := range pending {
		ids[i] = p.surface.ID
	}
	assert.Equal(t, []string{"new", "older", "old", "nomesh"}, ids)
	assert.Equal(t, []string{"gone"}, sm.erase)
	for _, id := range ids {
		assert.True(t, sm.inFlight[id])
	}

	assert.Empty(t, sm.surfacesToProcess([]Surface{{ID: "new"}}), "in-flight surfaces are not resubmitted")
	assert.Len(t, sm.erase, 5)
}

func TestDrawMeshes_Modes(t *testing.T) {
	r, dev := newTestRenderer(t)
	src := newFakeSource()
	src.set(Surface{ID: "a"})
	src.set(Surface{ID: "b"})
	sm := startMapping(t, r, src)
	waitForRecords(t, sm, 2)

	assert.Equal(t, DrawModeNone, sm.DrawMode())
	require.NoError(t, sm.DrawMeshes())
	assert.Empty(t, dev.CallsOf("DrawIndexedInstanced"))

	sm.SetDrawMode(DrawModeVisible)
	require.NoError(t, sm.DrawMeshes())
	draws := dev.CallsOf("DrawIndexedInstanced")
	require.Len(t, draws, 2)
	assert.Equal(t, []any{uint32(6), uint32(1)}, draws[0].Args)

	impl := sm.(*surfaceMapping)
	rec := impl.records["a"]
	require.NotNil(t, rec.drawCall)
	assert.Equal(t, DefaultColor, rec.drawCall.Instances()[0].Color)
	assert.Equal(t, common.Translation(common.Vec3{0, 0, -3}), rec.drawCall.WorldTransform(0))

	dev.ResetCalls()
	sm.SetDrawMode(DrawModeOcclusion)
	require.NoError(t, sm.DrawMeshes())
	blends := dev.CallsOf("SetBlendMode")
	require.Len(t, blends, 2)
	assert.Equal(t, device.BlendModeColorWriteDisabled, blends[0].Args[0])
	assert.Equal(t, device.BlendModeNone, blends[1].Args[0])
	assert.Len(t, dev.CallsOf("DrawIndexedInstanced"), 2)
	assert.Equal(t, renderer.DefaultRenderState, r.RenderState())
}

func TestDrawMeshes_MissingShader(t *testing.T) {
	r, _ := newTestRenderer(t)
	src := newFakeSource()
	src.set(Surface{ID: "a"})
	sm := startMapping(t, r, src, WithShaders("missing_vs.wgsl", "surface_ps.wgsl"), WithDrawMode(DrawModeVisible))
	waitForRecords(t, sm, 1)

	assert.Error(t, sm.DrawMeshes())
}

func TestWithConfig(t *testing.T) {
	r, _ := newTestRenderer(t)
	cfg := config.Default()
	cfg.SurfaceMapping.Workers = 3
	cfg.SurfaceMapping.QueueSize = 4
	cfg.SurfaceMapping.ReprocessInterval = config.Duration(time.Minute)

	sm := NewSurfaceMapping(r, newFakeSource(), WithConfig(cfg)).(*surfaceMapping)
	assert.Equal(t, 3, sm.workers)
	assert.Equal(t, 4, cap(sm.results))
	assert.Equal(t, time.Minute, sm.reprocessInterval)
	sm.Close()
}
