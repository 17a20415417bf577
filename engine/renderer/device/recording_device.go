package device

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sync/atomic"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// recordingBackBufferHandle is the native handle of the simulated swap-chain image.
const recordingBackBufferHandle uintptr = 1

var recordingHandleSeq atomic.Uintptr

type recBuffer struct {
	label    string
	kind     BufferKind
	data     []byte
	released bool
}

func (b *recBuffer) Label() string    { return b.label }
func (b *recBuffer) Kind() BufferKind { return b.kind }
func (b *recBuffer) Size() uint64     { return uint64(len(b.data)) }
func (b *recBuffer) Release()         { b.released = true }

type recShader struct {
	desc ShaderDesc
}

func (s *recShader) Label() string { return s.desc.Label }
func (s *recShader) Stage() Stage  { return s.desc.Stage }
func (s *recShader) Release()      {}

type recTexture struct {
	desc   TextureDesc
	handle uintptr
	// data holds every array layer of mip 0, tightly packed.
	data     []byte
	released bool
}

func (t *recTexture) Label() string       { return t.desc.Label }
func (t *recTexture) Width() int          { return t.desc.Width }
func (t *recTexture) Height() int         { return t.desc.Height }
func (t *recTexture) ArraySize() int      { return t.desc.ArraySize }
func (t *recTexture) Format() Format      { return t.desc.Format }
func (t *recTexture) Usage() TextureUsage { return t.desc.Usage }
func (t *recTexture) Handle() uintptr     { return t.handle }
func (t *recTexture) Release()            { t.released = true }

func (t *recTexture) layerSize() int {
	return t.desc.Width * t.desc.Height * t.desc.Format.BitsPerPixel() / 8
}

type recView struct {
	tex        *recTexture
	baseLayer  int
	layerCount int
}

func (v *recView) Texture() Texture { return v.tex }
func (v *recView) BaseLayer() int   { return v.baseLayer }
func (v *recView) LayerCount() int  { return v.layerCount }
func (v *recView) Release()         {}

type recSampler struct {
	comparison bool
}

func (s *recSampler) Comparison() bool { return s.comparison }
func (s *recSampler) Release()         {}

// RecordedState is a snapshot of the pipeline state last set on a recording device.
type RecordedState struct {
	Colors          []TextureView
	Depth           TextureView
	Viewport        common.Viewport
	Blend           BlendMode
	DepthTest       bool
	BackfaceCulling bool
	Shaders         map[Stage]ShaderModule
	ConstantBuffers map[Stage]map[int]Buffer
	Resources       map[Stage]map[int]TextureView
	Layout          InputLayout
	MeshBuffer      Buffer
	InstanceBuffer  Buffer
	IndexBuffer     Buffer
	Topology        Topology
}

// recordingDevice is a CPU implementation of Device that logs every call, keeps texture and buffer
// contents in byte slices, and counts staging copies.
type recordingDevice struct {
	cfg    DeviceConfig
	logger *slog.Logger

	calls  []Call
	state  RecordedState
	copies map[CopyDirection]int

	native  map[uintptr]*recTexture
	inFrame bool
}

// RecordingDevice is a Device that records its calls for inspection. It accepts draws outside
// BeginFrame/EndFrame so state-machine code can be exercised without a frame loop.
type RecordingDevice interface {
	Device

	// Calls returns every call recorded since creation or the last ResetCalls.
	//
	// Returns:
	//   - []Call: the call log in order
	Calls() []Call

	// CallsOf returns the recorded calls whose Op equals op.
	//
	// Parameters:
	//   - op: the method name, e.g. "DrawIndexedInstanced"
	//
	// Returns:
	//   - []Call: the matching calls in order
	CallsOf(op string) []Call

	// ResetCalls clears the call log. Copy counters are kept.
	ResetCalls()

	// State returns a snapshot of the current pipeline state.
	//
	// Returns:
	//   - RecordedState: the state
	State() RecordedState

	// BufferData returns the current contents of a buffer created by this device.
	//
	// Parameters:
	//   - buf: the buffer
	//
	// Returns:
	//   - []byte: the buffer bytes, or nil for foreign buffers
	BufferData(buf Buffer) []byte

	// TextureData returns layer 0 of a texture created or wrapped by this device.
	//
	// Parameters:
	//   - tex: the texture
	//
	// Returns:
	//   - []byte: the texel bytes, or nil for foreign textures
	TextureData(tex Texture) []byte

	// CopyCount returns the number of staging copies performed in a direction.
	//
	// Parameters:
	//   - dir: CopyToStaging or CopyFromStaging
	//
	// Returns:
	//   - int: the count
	CopyCount(dir CopyDirection) int

	// AddNativeTexture registers a simulated native image, such as a holographic camera back buffer.
	//
	// Parameters:
	//   - width, height: size in pixels
	//   - arraySize: 2 for a stereo image
	//   - format: pixel format
	//
	// Returns:
	//   - uintptr: the native handle to pass to WrapNativeTexture
	AddNativeTexture(width, height, arraySize int, format Format) uintptr
}

var _ RecordingDevice = &recordingDevice{}

// NewRecordingDevice creates a recording device with a simulated back buffer (512x512 BGRA8 sRGB
// unless WithBackBuffer is given).
//
// Parameters:
//   - options: variadic DeviceBuilderOption functions
//
// Returns:
//   - RecordingDevice: the device
func NewRecordingDevice(options ...DeviceBuilderOption) RecordingDevice {
	cfg := NewDeviceConfig(options...)

	d := &recordingDevice{
		cfg:    cfg,
		logger: cfg.Logger,
		copies: make(map[CopyDirection]int),
		native: make(map[uintptr]*recTexture),
	}
	d.resetState()

	bb := newRecTexture(TextureDesc{
		Label:     "Back Buffer",
		Width:     cfg.BackBufferWidth,
		Height:    cfg.BackBufferHeight,
		ArraySize: 1,
		MipLevels: 1,
		Format:    cfg.BackBufferFormat,
		Usage:     UsageRenderTarget,
	})
	bb.handle = recordingBackBufferHandle
	d.native[recordingBackBufferHandle] = bb
	return d
}

func newRecTexture(desc TextureDesc) *recTexture {
	if desc.ArraySize <= 0 {
		desc.ArraySize = 1
	}
	if desc.MipLevels <= 0 {
		desc.MipLevels = 1
	}
	t := &recTexture{
		desc:   desc,
		handle: recordingHandleSeq.Add(1) + 0x1000,
	}
	t.data = make([]byte, t.layerSize()*desc.ArraySize)
	return t
}

func (d *recordingDevice) resetState() {
	d.state = RecordedState{
		Blend:           BlendModeNone,
		DepthTest:       true,
		BackfaceCulling: true,
		Shaders:         make(map[Stage]ShaderModule),
		ConstantBuffers: make(map[Stage]map[int]Buffer),
		Resources:       make(map[Stage]map[int]TextureView),
	}
}

func (d *recordingDevice) record(op string, args ...any) {
	d.calls = append(d.calls, Call{Op: op, Args: args})
}

func (d *recordingDevice) Calls() []Call {
	out := make([]Call, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *recordingDevice) CallsOf(op string) []Call {
	var out []Call
	for _, c := range d.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (d *recordingDevice) ResetCalls() {
	d.calls = nil
}

func (d *recordingDevice) State() RecordedState {
	s := d.state
	s.Colors = append([]TextureView(nil), d.state.Colors...)
	s.Shaders = maps.Clone(d.state.Shaders)
	s.ConstantBuffers = make(map[Stage]map[int]Buffer, len(d.state.ConstantBuffers))
	for k, v := range d.state.ConstantBuffers {
		s.ConstantBuffers[k] = maps.Clone(v)
	}
	s.Resources = make(map[Stage]map[int]TextureView, len(d.state.Resources))
	for k, v := range d.state.Resources {
		s.Resources[k] = maps.Clone(v)
	}
	return s
}

func (d *recordingDevice) BufferData(buf Buffer) []byte {
	b, ok := buf.(*recBuffer)
	if !ok {
		return nil
	}
	return b.data
}

func (d *recordingDevice) TextureData(tex Texture) []byte {
	t, ok := tex.(*recTexture)
	if !ok {
		return nil
	}
	return t.data[:t.layerSize()]
}

func (d *recordingDevice) CopyCount(dir CopyDirection) int {
	return d.copies[dir]
}

func (d *recordingDevice) AddNativeTexture(width, height, arraySize int, format Format) uintptr {
	t := newRecTexture(TextureDesc{
		Label:     "Native Texture",
		Width:     width,
		Height:    height,
		ArraySize: arraySize,
		MipLevels: 1,
		Format:    format,
		Usage:     UsageRenderTarget | UsageShaderResource,
	})
	d.native[t.handle] = t
	return t.handle
}

func (d *recordingDevice) CreateBuffer(label string, kind BufferKind, size uint64) (Buffer, error) {
	d.record("CreateBuffer", label, kind, size)
	if size == 0 {
		return nil, fmt.Errorf("create buffer %q: %w", label, ErrInvalidSize)
	}
	return &recBuffer{label: label, kind: kind, data: make([]byte, size)}, nil
}

func (d *recordingDevice) WriteBuffer(buf Buffer, offset uint64, data []byte) error {
	d.record("WriteBuffer", buf.Label(), offset, len(data))
	b, ok := buf.(*recBuffer)
	if !ok {
		return fmt.Errorf("write buffer %q: foreign buffer", buf.Label())
	}
	if offset+uint64(len(data)) > uint64(len(b.data)) {
		return fmt.Errorf("write buffer %q: %d bytes at %d into %d: %w", b.label, len(data), offset, len(b.data), ErrInvalidSize)
	}
	copy(b.data[offset:], data)
	return nil
}

func (d *recordingDevice) CreateShader(desc ShaderDesc) (ShaderModule, error) {
	d.record("CreateShader", desc.Stage, desc.Label)
	if desc.Source == "" {
		return nil, fmt.Errorf("create shader %q: empty source", desc.Label)
	}
	return &recShader{desc: desc}, nil
}

func (d *recordingDevice) CreateTexture(desc TextureDesc) (Texture, error) {
	d.record("CreateTexture", desc.Label, desc.Width, desc.Height, desc.ArraySize, desc.Format)
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("create texture %q %dx%d: %w", desc.Label, desc.Width, desc.Height, ErrInvalidSize)
	}
	t := newRecTexture(desc)
	if len(desc.InitialData) > 0 {
		copy(t.data, desc.InitialData[0])
	}
	return t, nil
}

func (d *recordingDevice) CreateStagingTexture(src Texture) (Texture, error) {
	d.record("CreateStagingTexture", src.Label())
	return d.CreateTexture(TextureDesc{
		Label:     src.Label() + " Staging",
		Width:     src.Width(),
		Height:    src.Height(),
		ArraySize: 1,
		MipLevels: 1,
		Format:    src.Format(),
		Usage:     UsageStaging,
	})
}

func (d *recordingDevice) CopyTexture(dst, src Texture) error {
	s, sok := src.(*recTexture)
	t, tok := dst.(*recTexture)
	if !sok || !tok {
		return fmt.Errorf("copy texture: foreign texture")
	}
	switch {
	case t.desc.Usage.Has(UsageStaging) && !s.desc.Usage.Has(UsageStaging):
		d.copies[CopyToStaging]++
		d.record("CopyTexture", CopyToStaging, s.desc.Label)
	case s.desc.Usage.Has(UsageStaging) && !t.desc.Usage.Has(UsageStaging):
		d.copies[CopyFromStaging]++
		d.record("CopyTexture", CopyFromStaging, t.desc.Label)
	default:
		return ErrNotStaging
	}
	n := min(s.layerSize(), t.layerSize())
	copy(t.data[:n], s.data[:n])
	return nil
}

func (d *recordingDevice) Map(staging Texture) (MappedTexture, error) {
	d.record("Map", staging.Label())
	t, ok := staging.(*recTexture)
	if !ok || !t.desc.Usage.Has(UsageStaging) {
		return MappedTexture{}, ErrNotStaging
	}
	return MappedTexture{Data: t.data, RowPitch: t.desc.Width * t.desc.Format.BitsPerPixel() / 8}, nil
}

func (d *recordingDevice) Unmap(staging Texture) {
	d.record("Unmap", staging.Label())
}

func (d *recordingDevice) WrapNativeTexture(handle uintptr) (Texture, error) {
	d.record("WrapNativeTexture", handle)
	t, ok := d.native[handle]
	if !ok {
		return nil, fmt.Errorf("wrap native texture %#x: %w", handle, ErrUnknownHandle)
	}
	return t, nil
}

func (d *recordingDevice) BackBufferHandle() uintptr {
	return recordingBackBufferHandle
}

func (d *recordingDevice) CreateView(tex Texture, desc ViewDesc) (TextureView, error) {
	d.record("CreateView", tex.Label(), desc.BaseLayer, desc.LayerCount)
	t, ok := tex.(*recTexture)
	if !ok {
		return nil, fmt.Errorf("create view: foreign texture")
	}
	count := desc.LayerCount
	if count == 0 {
		count = t.desc.ArraySize - desc.BaseLayer
	}
	if desc.BaseLayer < 0 || count <= 0 || desc.BaseLayer+count > t.desc.ArraySize {
		return nil, fmt.Errorf("create view of %q layers %d+%d: %w", t.desc.Label, desc.BaseLayer, count, ErrInvalidSize)
	}
	return &recView{tex: t, baseLayer: desc.BaseLayer, layerCount: count}, nil
}

func (d *recordingDevice) CreateSampler(desc SamplerDesc) (Sampler, error) {
	d.record("CreateSampler", desc.Comparison)
	return &recSampler{comparison: desc.Comparison}, nil
}

func (d *recordingDevice) SetRenderTargets(colors []TextureView, depth TextureView) {
	d.record("SetRenderTargets", len(colors), depth != nil)
	d.state.Colors = append([]TextureView(nil), colors...)
	d.state.Depth = depth
}

func (d *recordingDevice) SetViewport(vp common.Viewport) {
	d.record("SetViewport", vp)
	d.state.Viewport = vp
}

func (d *recordingDevice) SetBlendMode(mode BlendMode) {
	d.record("SetBlendMode", mode)
	d.state.Blend = mode
}

func (d *recordingDevice) SetDepthTest(enabled bool) {
	d.record("SetDepthTest", enabled)
	d.state.DepthTest = enabled
}

func (d *recordingDevice) SetBackfaceCulling(enabled bool) {
	d.record("SetBackfaceCulling", enabled)
	d.state.BackfaceCulling = enabled
}

func (d *recordingDevice) BindShader(stage Stage, module ShaderModule) {
	label := ""
	if module != nil {
		label = module.Label()
	}
	d.record("BindShader", stage, label)
	if module == nil {
		delete(d.state.Shaders, stage)
		return
	}
	d.state.Shaders[stage] = module
}

func (d *recordingDevice) SetConstantBuffer(stage Stage, slot int, buf Buffer) {
	d.record("SetConstantBuffer", stage, slot, buf.Label())
	if d.state.ConstantBuffers[stage] == nil {
		d.state.ConstantBuffers[stage] = make(map[int]Buffer)
	}
	d.state.ConstantBuffers[stage][slot] = buf
}

func (d *recordingDevice) SetShaderResource(stage Stage, slot int, view TextureView, sampler Sampler) {
	d.record("SetShaderResource", stage, slot)
	if d.state.Resources[stage] == nil {
		d.state.Resources[stage] = make(map[int]TextureView)
	}
	d.state.Resources[stage][slot] = view
}

func (d *recordingDevice) ClearShaderResources() {
	d.record("ClearShaderResources")
	d.state.Resources = make(map[Stage]map[int]TextureView)
}

func (d *recordingDevice) SetInputLayout(layout InputLayout) {
	d.record("SetInputLayout", layout.Label)
	d.state.Layout = layout
}

func (d *recordingDevice) SetVertexBuffers(mesh, instance Buffer) {
	d.record("SetVertexBuffers")
	d.state.MeshBuffer = mesh
	d.state.InstanceBuffer = instance
}

func (d *recordingDevice) SetIndexBuffer(buf Buffer) {
	d.record("SetIndexBuffer")
	d.state.IndexBuffer = buf
}

func (d *recordingDevice) SetTopology(topology Topology) {
	d.record("SetTopology", topology)
	d.state.Topology = topology
}

func (d *recordingDevice) ClearTarget(view TextureView, color common.Vec4) {
	d.record("ClearTarget", color)
	v, ok := view.(*recView)
	if !ok {
		return
	}
	texel := encodeColor(v.tex.desc.Format, color)
	if len(texel) == 0 {
		return
	}
	size := v.tex.layerSize()
	for layer := v.baseLayer; layer < v.baseLayer+v.layerCount; layer++ {
		start := layer * size
		for i := start; i+len(texel) <= start+size && i+len(texel) <= len(v.tex.data); i += len(texel) {
			copy(v.tex.data[i:], texel)
		}
	}
}

func (d *recordingDevice) ClearDepth(view TextureView) {
	d.record("ClearDepth")
}

func (d *recordingDevice) DrawIndexedInstanced(indexCount, instanceCount uint32) error {
	d.record("DrawIndexedInstanced", indexCount, instanceCount)
	return nil
}

func (d *recordingDevice) BeginFrame() error {
	d.record("BeginFrame")
	if d.inFrame {
		return fmt.Errorf("begin frame: previous frame not ended")
	}
	d.inFrame = true
	return nil
}

func (d *recordingDevice) EndFrame() {
	d.record("EndFrame")
	d.inFrame = false
}

func (d *recordingDevice) Present() {
	d.record("Present")
}

func (d *recordingDevice) Resize(width, height int) {
	d.record("Resize", width, height)
	bb := d.native[recordingBackBufferHandle]
	bb.desc.Width, bb.desc.Height = width, height
	bb.data = make([]byte, bb.layerSize()*bb.desc.ArraySize)
}

func (d *recordingDevice) SupportsSinglePassStereo() bool {
	return d.cfg.SinglePassStereo
}

func (d *recordingDevice) Release() {
	d.record("Release")
	d.logger.Debug("recording device released", "calls", len(d.calls))
}

// encodeColor converts a float colour into one texel of the given format.
func encodeColor(f Format, c common.Vec4) []byte {
	u8 := func(v float32) byte {
		return byte(math.Round(float64(min(max(v, 0), 1)) * 255))
	}
	switch f {
	case FormatRGBA8Unorm, FormatRGBA8UnormSrgb:
		return []byte{u8(c[0]), u8(c[1]), u8(c[2]), u8(c[3])}
	case FormatBGRA8Unorm, FormatBGRA8UnormSrgb, FormatBGRA8Typeless:
		return []byte{u8(c[2]), u8(c[1]), u8(c[0]), u8(c[3])}
	case FormatR32Float:
		out := make([]byte, 4)
		binary.LittleEndian.PutUint32(out, math.Float32bits(c[0]))
		return out
	default:
		return nil
	}
}
