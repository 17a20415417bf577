package draw_call

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/mesh"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/shader"
	"github.com/chewxy/math32"
)

// drawCall is the implementation of the DrawCall interface.
type drawCall struct {
	r      renderer.Renderer
	dev    device.Device
	logger *slog.Logger
	label  string

	geometryShader string
	meshType       *mesh.MeshType
	modelFile      string

	mesh       mesh.Mesh
	shaderSets map[int]ShaderSet

	instances      []Instance
	particles      []ParticleInstance
	particleMode   bool
	instanceBuffer device.Buffer
	dirty          bool
}

// DrawCall is one drawable object: a mesh, a shader set per render-pass index and an instance array.
//
// Draw resolves the shader set of the renderer's active pass, fills every reflected constant from the
// renderer's state, uploads changed instance data and submits one indexed-instanced draw. Instances
// are either regular (world matrix and colour) or particles (translation, scale and colour); switching
// between the two discards the instance data.
type DrawCall interface {
	// Mesh returns the drawn mesh.
	Mesh() mesh.Mesh

	// AddRenderPass sets the shaders used while the renderer's active pass index equals index. When the
	// device supports single-pass stereo, a vertex shader named like vs with "_SPS" before the
	// extension is loaded too if it exists.
	//
	// Parameters:
	//   - vs: the vertex shader file
	//   - ps: the pixel shader file
	//   - index: the render-pass index
	//   - gs: the geometry shader file, or "" for none
	//
	// Returns:
	//   - error: any shader load error; the previous set for index is kept then
	AddRenderPass(vs, ps string, index int, gs string) error

	// ShaderSet returns the shaders registered for a render-pass index.
	ShaderSet(index int) (ShaderSet, bool)

	// SetInstanceCapacity resizes the instance array and its GPU buffer. Changing between regular and
	// particle instancing clears both arrays.
	//
	// Parameters:
	//   - capacity: the number of instances
	//   - particles: true for particle instancing
	//
	// Returns:
	//   - error: a buffer creation error
	SetInstanceCapacity(capacity int, particles bool) error

	// InstanceCapacity returns the number of instances.
	InstanceCapacity() int

	// ParticleInstancing reports whether particle instancing is active.
	ParticleInstancing() bool

	// Instances returns the regular instance array for in-place edits and marks it for upload.
	// It is nil while particle instancing is active.
	Instances() []Instance

	// ParticleInstances returns the particle instance array for in-place edits and marks it for upload.
	// It is nil while regular instancing is active.
	ParticleInstances() []ParticleInstance

	// SetWorldTransform sets the world matrix of an instance. Indices out of range are ignored.
	SetWorldTransform(world common.Mat4, index int)

	// WorldTransform returns the world matrix of an instance, or the identity for indices out of range.
	WorldTransform(index int) common.Mat4

	// SetColor sets the colour of an instance of the active instancing mode. Indices out of range are ignored.
	SetColor(color common.Vec4, index int)

	// TestPointInside reports whether a world-space point lies in the mesh bounds placed by an instance.
	//
	// Parameters:
	//   - p: the point in world space
	//   - index: the instance
	//
	// Returns:
	//   - bool: false also for indices out of range
	TestPointInside(p common.Vec3, index int) bool

	// TestRayIntersection casts a world-space ray against the mesh placed by an instance.
	//
	// Parameters:
	//   - origin: the ray origin in world space
	//   - dir: the ray direction in world space
	//   - index: the instance
	//
	// Returns:
	//   - mesh.Hit: the closest hit
	//   - bool: false for a miss or an index out of range
	TestRayIntersection(origin, dir common.Vec3, index int) (mesh.Hit, bool)

	// Draw draws the first count instances with the shader set of the active render pass. Single-pass
	// stereo doubles the instance count on stereo targets and a fullscreen pass stretches instance 0
	// to the target aspect.
	//
	// Parameters:
	//   - count: the number of instances, clamped to the capacity
	//
	// Returns:
	//   - error: ErrNoShaderForPass or a device error
	Draw(count int) error

	// Release frees the instance buffer and the mesh.
	Release()
}

var _ DrawCall = &drawCall{}

// NewDrawCall creates a draw call with vs and ps as the shaders of render pass 0, a capacity of one
// regular instance and the renderer's global render passes.
//
// Parameters:
//   - r: the render context
//   - vs: the vertex shader file
//   - ps: the pixel shader file
//   - m: the mesh; nil uses WithMeshType, WithModelFile or an empty mesh
//   - options: variadic DrawCallBuilderOption functions
//
// Returns:
//   - DrawCall: the draw call
//   - error: a shader, mesh or buffer error
func NewDrawCall(r renderer.Renderer, vs, ps string, m mesh.Mesh, options ...DrawCallBuilderOption) (DrawCall, error) {
	dc := &drawCall{
		r:          r,
		dev:        r.Device(),
		logger:     r.Logger(),
		shaderSets: make(map[int]ShaderSet),
		mesh:       m,
	}
	for _, opt := range options {
		opt(dc)
	}
	if dc.label == "" {
		dc.label = strings.TrimSuffix(filepath.Base(vs), filepath.Ext(vs))
	}

	if err := dc.AddRenderPass(vs, ps, 0, dc.geometryShader); err != nil {
		return nil, err
	}
	if err := dc.SetInstanceCapacity(1, false); err != nil {
		return nil, err
	}

	if dc.mesh == nil {
		var err error
		meshOpts := append(dc.r.MeshOptions(), mesh.WithLabel(dc.label))
		switch {
		case dc.meshType != nil:
			dc.mesh, err = mesh.NewMeshOfType(dc.dev, *dc.meshType, meshOpts...)
		case dc.modelFile != "":
			dc.mesh, err = mesh.NewMeshFromFile(dc.dev, dc.modelFile, meshOpts...)
		default:
			dc.mesh = mesh.NewMesh(dc.dev, meshOpts...)
		}
		if err != nil {
			dc.Release()
			return nil, err
		}
	}

	for _, pass := range r.GlobalRenderPasses() {
		if err := dc.AddRenderPass(pass.VertexShader, pass.PixelShader, pass.Index, pass.GeometryShader); err != nil {
			dc.Release()
			return nil, err
		}
	}
	return dc, nil
}

func (dc *drawCall) Mesh() mesh.Mesh { return dc.mesh }

func (dc *drawCall) AddRenderPass(vs, ps string, index int, gs string) error {
	var set ShaderSet
	var err error
	if set.Vertex, err = dc.r.LoadShader(shader.StageVertex, vs); err != nil {
		return err
	}
	if set.Pixel, err = dc.r.LoadShader(shader.StagePixel, ps); err != nil {
		return err
	}
	if gs != "" {
		if set.Geometry, err = dc.r.LoadShader(shader.StageGeometry, gs); err != nil {
			return err
		}
	}
	if dc.r.SinglePassStereoSupported() {
		sps := spsFilename(vs)
		if dc.r.Shaders().HasFile(sps) {
			if set.VertexSPS, err = dc.r.LoadShader(shader.StageVertexSPS, sps); err != nil {
				return err
			}
		}
	}
	dc.shaderSets[index] = set
	return nil
}

// spsFilename inserts "_SPS" before the extension of a vertex shader file name.
func spsFilename(vs string) string {
	ext := filepath.Ext(vs)
	return strings.TrimSuffix(vs, ext) + "_SPS" + ext
}

func (dc *drawCall) ShaderSet(index int) (ShaderSet, bool) {
	set, ok := dc.shaderSets[index]
	return set, ok
}

func (dc *drawCall) SetInstanceCapacity(capacity int, particles bool) error {
	capacity = max(capacity, 0)
	if particles != dc.particleMode {
		dc.instances = nil
		dc.particles = nil
	}

	dc.instances = resize(dc.instances, capacity, newInstance)
	size := instanceSize
	if particles {
		dc.particles = resize(dc.particles, capacity, func() ParticleInstance {
			return ParticleInstance{TranslationScale: common.Vec4{0, 0, 0, 1}, Color: common.Vec4{1, 1, 1, 1}}
		})
		size = particleInstanceSize
	}

	if dc.instanceBuffer != nil {
		dc.instanceBuffer.Release()
		dc.instanceBuffer = nil
	}
	buf, err := dc.dev.CreateBuffer(dc.label+":instances", device.BufferKindInstance, uint64(max(capacity, 1))*size)
	if err != nil {
		return fmt.Errorf("draw call %s: instance buffer: %w", dc.label, err)
	}
	dc.instanceBuffer = buf
	dc.particleMode = particles
	dc.dirty = true
	return nil
}

func resize[T any](s []T, n int, fill func() T) []T {
	if n <= len(s) {
		return s[:n]
	}
	for len(s) < n {
		s = append(s, fill())
	}
	return s
}

func (dc *drawCall) InstanceCapacity() int    { return len(dc.instances) }
func (dc *drawCall) ParticleInstancing() bool { return dc.particleMode }

func (dc *drawCall) Instances() []Instance {
	if dc.particleMode {
		return nil
	}
	dc.dirty = true
	return dc.instances
}

func (dc *drawCall) ParticleInstances() []ParticleInstance {
	if !dc.particleMode {
		return nil
	}
	dc.dirty = true
	return dc.particles
}

func (dc *drawCall) SetWorldTransform(world common.Mat4, index int) {
	if index >= 0 && index < len(dc.instances) {
		dc.instances[index].World = world
	}
	dc.dirty = true
}

func (dc *drawCall) WorldTransform(index int) common.Mat4 {
	if index < 0 || index >= len(dc.instances) {
		return common.Identity()
	}
	return dc.instances[index].World
}

func (dc *drawCall) SetColor(color common.Vec4, index int) {
	if dc.particleMode {
		if index >= 0 && index < len(dc.particles) {
			dc.particles[index].Color = color
		}
	} else if index >= 0 && index < len(dc.instances) {
		dc.instances[index].Color = color
	}
	dc.dirty = true
}

func (dc *drawCall) TestPointInside(p common.Vec3, index int) bool {
	if index < 0 || index >= len(dc.instances) {
		return false
	}
	return dc.mesh.TestPointInside(p, dc.instances[index].World)
}

func (dc *drawCall) TestRayIntersection(origin, dir common.Vec3, index int) (mesh.Hit, bool) {
	if index < 0 || index >= len(dc.instances) {
		return mesh.Hit{}, false
	}
	return dc.mesh.TestRayIntersection(origin, dir, dc.instances[index].World)
}

func (dc *drawCall) Draw(count int) error {
	target := dc.r.CurrentRenderTarget()
	sps := target != nil && target.IsStereo() && dc.r.SinglePassStereoEnabled()
	state := dc.r.RenderState()

	if state.FullscreenPass && target != nil {
		dc.SetWorldTransform(common.Scaling(target.Aspect(), 1, 1), 0)
	}

	pass := dc.r.ActiveRenderPassIndex()
	set, ok := dc.shaderSets[pass]
	if !ok || set.Vertex == nil || set.Pixel == nil {
		return fmt.Errorf("draw call %s: pass %d: %w", dc.label, pass, ErrNoShaderForPass)
	}
	vs := set.Vertex
	if sps {
		if set.VertexSPS == nil {
			return fmt.Errorf("draw call %s: pass %d has no single-pass stereo vertex shader: %w", dc.label, pass, ErrNoShaderForPass)
		}
		vs = set.VertexSPS
	}

	dc.dev.SetInputLayout(inputLayout(dc.particleMode, sps))
	for _, s := range []shader.Shader{vs, set.Pixel, set.Geometry} {
		if s == nil {
			continue
		}
		s.Bind()
		if err := dc.updateConstants(s); err != nil {
			return err
		}
	}

	count = min(max(count, 0), len(dc.instances))
	if dc.dirty {
		if err := dc.uploadInstances(); err != nil {
			return err
		}
		dc.dirty = false
	}

	vb, err := dc.mesh.VertexBuffer()
	if err != nil {
		return err
	}
	ib, err := dc.mesh.IndexBuffer()
	if err != nil {
		return err
	}
	if vb == nil || ib == nil {
		return nil
	}
	dc.dev.SetVertexBuffers(vb, dc.instanceBuffer)
	dc.dev.SetIndexBuffer(ib)
	dc.dev.SetTopology(dc.mesh.DrawStyle().Topology())

	if sps {
		count *= 2
	}
	return dc.dev.DrawIndexedInstanced(uint32(dc.mesh.IndexCount()), uint32(count))
}

// uploadInstances writes the whole instance array so a later draw with a larger count never reads
// stale data.
func (dc *drawCall) uploadInstances() error {
	data := common.SliceToBytes(dc.instances)
	if dc.particleMode {
		data = common.SliceToBytes(dc.particles)
	}
	if len(data) == 0 {
		return nil
	}
	if err := dc.dev.WriteBuffer(dc.instanceBuffer, 0, data); err != nil {
		return fmt.Errorf("draw call %s: upload instances: %w", dc.label, err)
	}
	return nil
}

// updateConstants fills and uploads every constant buffer of s. Per-eye constants declared as
// array<T, 2> receive the left eye then the right eye; plain ones receive the eye of the active pass.
func (dc *drawCall) updateConstants(s shader.Shader) error {
	view, proj := dc.r.View(), dc.r.Projection()
	cameraView, cameraProj := dc.r.ActiveCamera()
	rightEye := dc.r.RenderState().RightEyePass
	world := dc.WorldTransform(0)

	perEye := func(cb *shader.ConstantBuffer, c shader.Constant, f func(v, p common.Mat4) common.Mat4) {
		switch c.ElementCount {
		case 0:
			v, p := view.Left, proj.Left
			if rightEye {
				v, p = view.Right, proj.Right
			}
			m := f(v, p)
			cb.Write(c, 0, common.StructToBytes(&m))
		case 2:
			left := f(view.Left, proj.Left)
			right := f(view.Right, proj.Right)
			cb.Write(c, 0, common.StructToBytes(&left))
			cb.Write(c, 1, common.StructToBytes(&right))
		}
	}

	for i, cb := range s.ConstantBuffers() {
		for _, c := range cb.Constants {
			switch c.ID {
			case shader.ConstantWorld:
				cb.Write(c, 0, common.StructToBytes(&world))
			case shader.ConstantWorldViewProj:
				perEye(cb, c, func(v, p common.Mat4) common.Mat4 { return common.Mul4(p, common.Mul4(v, world)) })
			case shader.ConstantViewProj:
				perEye(cb, c, func(v, p common.Mat4) common.Mat4 { return common.Mul4(p, v) })
			case shader.ConstantView:
				perEye(cb, c, func(v, _ common.Mat4) common.Mat4 { return v })
			case shader.ConstantInvView:
				perEye(cb, c, func(v, _ common.Mat4) common.Mat4 {
					inv, _ := common.Invert4(v)
					return inv
				})
			case shader.ConstantLightViewProj:
				m := dc.r.LightViewProj()
				cb.Write(c, 0, common.StructToBytes(&m))
			case shader.ConstantLightPosV:
				light, _ := dc.r.Light(dc.r.ActiveLight())
				v := cameraView.Left.TransformVec4(light.Position.Vec4(1))
				cb.Write(c, 0, common.StructToBytes(&v))
			case shader.ConstantInvViewLightViewProj:
				inv, _ := common.Invert4(cameraView.Left)
				m := common.Mul4(dc.r.LightViewProj(), inv)
				cb.Write(c, 0, common.StructToBytes(&m))
			case shader.ConstantLightAmbient:
				a := dc.r.Ambient()
				cb.Write(c, 0, common.StructToBytes(&a))
			case shader.ConstantNearPlaneHeight:
				cb.Write(c, 0, common.StructToBytes(&cameraProj.NearPlaneHeight))
			case shader.ConstantNearPlaneWidth:
				cb.Write(c, 0, common.StructToBytes(&cameraProj.NearPlaneWidth))
			case shader.ConstantNearPlaneDist:
				cb.Write(c, 0, common.StructToBytes(&cameraProj.Near))
			case shader.ConstantFarPlaneDist:
				cb.Write(c, 0, common.StructToBytes(&cameraProj.Far))
			case shader.ConstantProjectionRange:
				cb.Write(c, 0, common.StructToBytes(&cameraProj.Range))
			}
		}
		if err := s.Upload(i); err != nil {
			return err
		}
	}
	return nil
}

func (dc *drawCall) Release() {
	if dc.instanceBuffer != nil {
		dc.instanceBuffer.Release()
		dc.instanceBuffer = nil
	}
	if dc.mesh != nil {
		dc.mesh.Release()
	}
}

// CalculateWorldTransformForLine places a unit cylinder along Y (height 1, radius 0.5) so it spans
// start to end with the given radius. right orients the cylinder around its axis and must not be
// parallel to the line. Equal end points give the identity.
//
// Parameters:
//   - start: the line start
//   - end: the line end
//   - radius: the cylinder radius
//   - right: the roll reference direction
//
// Returns:
//   - common.Mat4: the world matrix
func CalculateWorldTransformForLine(start, end common.Vec3, radius float32, right common.Vec3) common.Mat4 {
	if start == end {
		return common.Identity()
	}
	toEnd := end.Sub(start)
	translation := common.Translation(start.Add(toEnd.Scale(0.5)))
	scale := common.Scaling(radius*2, toEnd.Length(), radius*2)
	toZ := common.RotationAxis(common.Vec3{1, 0, 0}, math32.Pi/2)
	toTarget := common.LookToRH(common.Vec3{}, toEnd.Normalize(), right).Transpose()
	return common.Mul4(translation, common.Mul4(toTarget, common.Mul4(toZ, scale)))
}
