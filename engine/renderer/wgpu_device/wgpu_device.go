// Package wgpu_device implements device.Device on WebGPU. Render pipelines are built lazily from the
// bound state the first time a combination is drawn with and cached by state key.
package wgpu_device

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/pipeline"
	"github.com/cogentcore/webgpu/wgpu"
)

const depthFormat = wgpu.TextureFormatDepth16Unorm

type boundResource struct {
	view    *gpuView
	sampler *gpuSampler
}

// bindingRef locates one reflected binding of the vertex or pixel shader.
type bindingRef struct {
	binding    device.ResourceBinding
	stage      device.Stage
	slot       int
	visibility wgpu.ShaderStage
}

type pipelineEntry struct {
	p            pipeline.Pipeline
	layout       *wgpu.PipelineLayout
	groupLayouts []*wgpu.BindGroupLayout
	groups       [][]bindingRef
}

type wgpuDeviceImpl struct {
	mu     *sync.Mutex
	cfg    device.DeviceConfig
	logger *slog.Logger

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface
	device   *wgpu.Device
	queue    *wgpu.Queue

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode
	backBuffer    *gpuTexture

	// Frame state for batching every draw of a frame into one submission
	frameEncoder *wgpu.CommandEncoder
	framePass    *wgpu.RenderPassEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
	passDirty    bool
	frameGarbage []*wgpu.BindGroup
	// encoderGen counts frame encoders; a buffer stamped with the current value is read by a recorded draw
	encoderGen uint64

	colors    []*gpuView
	depth     *gpuView
	viewport  common.Viewport
	blend     device.BlendMode
	depthTest bool
	cull      bool
	shaders   map[device.Stage]*gpuShader
	constants map[device.Stage]map[int]*gpuBuffer
	resources map[device.Stage]map[int]boundResource
	layout    device.InputLayout
	meshBuf   *gpuBuffer
	instBuf   *gpuBuffer
	indexBuf  *gpuBuffer
	topology  device.Topology

	pipelines map[string]*pipelineEntry
	fallback  fallbackResources
}

// fallbackResources fill bindings a shader declares but nothing was bound to.
type fallbackResources struct {
	uniforms      map[uint64]*wgpu.Buffer
	colorView     *wgpu.TextureView
	colorArray    *wgpu.TextureView
	depthView     *wgpu.TextureView
	depthArray    *wgpu.TextureView
	sampler       *wgpu.Sampler
	compareSample *wgpu.Sampler
}

var _ device.Device = &wgpuDeviceImpl{}

// NewDevice creates a WebGPU device rendering to the given surface and configures the surface at
// width x height.
//
// Parameters:
//   - surfaceDescriptor: the platform surface, normally from the window
//   - width: initial surface width in pixels
//   - height: initial surface height in pixels
//   - options: variadic DeviceBuilderOption functions
//
// Returns:
//   - device.Device: the device
//   - error: if no adapter or device could be acquired
func NewDevice(surfaceDescriptor *wgpu.SurfaceDescriptor, width, height int, options ...device.DeviceBuilderOption) (device.Device, error) {
	runtime.LockOSThread()
	cfg := device.NewDeviceConfig(options...)
	d := &wgpuDeviceImpl{
		mu:          &sync.Mutex{},
		cfg:         cfg,
		logger:      cfg.Logger,
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeFifo,
		depthTest:   true,
		cull:        true,
		shaders:     make(map[device.Stage]*gpuShader),
		constants:   make(map[device.Stage]map[int]*gpuBuffer),
		resources:   make(map[device.Stage]map[int]boundResource),
		pipelines:   make(map[string]*pipelineEntry),
		fallback:    fallbackResources{uniforms: make(map[uint64]*wgpu.Buffer)},
	}
	if cfg.PresentMode == device.PresentModeUncapped {
		d.presentMode = wgpu.PresentModeImmediate
	}
	d.surface = d.instance.CreateSurface(surfaceDescriptor)

	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: cfg.ForceFallbackAdapter,
		CompatibleSurface:    d.surface,
	})
	if err != nil {
		d.surface.Release()
		d.instance.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.adapter = a

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Main Device",
	})
	if err != nil {
		a.Release()
		d.surface.Release()
		d.instance.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.device = dev
	d.queue = dev.GetQueue()

	d.backBuffer = &gpuTexture{handle: swapChainHandle, swapChain: true}
	d.Resize(width, height)
	return d, nil
}

func (d *wgpuDeviceImpl) Resize(width, height int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	capabilities := d.surface.GetCapabilities(d.adapter)
	d.surfaceFormat = capabilities.Formats[0]
	d.surface.Configure(d.adapter, d.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      d.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: d.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})

	d.backBuffer.desc = device.TextureDesc{
		Label:     "Back Buffer",
		Width:     width,
		Height:    height,
		ArraySize: 1,
		MipLevels: 1,
		Format:    fromWGPUFormat(d.surfaceFormat),
		Usage:     device.UsageRenderTarget,
	}
}

func (d *wgpuDeviceImpl) CreateBuffer(label string, kind device.BufferKind, size uint64) (device.Buffer, error) {
	if size == 0 {
		return nil, fmt.Errorf("create buffer %q: %w", label, device.ErrInvalidSize)
	}
	// uniform and copy sizes must be multiples of 4
	alloc := uint64(alignTo(int(size), 4))
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             alloc,
		Usage:            toBufferUsage(kind),
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, err
	}
	return &gpuBuffer{label: label, kind: kind, size: size, buf: buf}, nil
}

func (d *wgpuDeviceImpl) WriteBuffer(buf device.Buffer, offset uint64, data []byte) error {
	b, ok := buf.(*gpuBuffer)
	if !ok || b.buf == nil {
		return fmt.Errorf("write buffer %q: not a live WebGPU buffer", buf.Label())
	}
	if offset+uint64(len(data)) > b.size {
		return fmt.Errorf("write buffer %q: %d bytes at %d into %d: %w", b.label, len(data), offset, b.size, device.ErrInvalidSize)
	}
	if rem := len(data) % 4; rem != 0 {
		padded := make([]byte, len(data)+4-rem)
		copy(padded, data)
		data = padded
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	// queue writes land before the frame's command buffer, so draws already recorded against this
	// buffer must be submitted first or they would read the new contents
	if d.frameEncoder != nil && d.usedByRecordedDraw(b) {
		if err := d.flushFrame(); err != nil {
			return fmt.Errorf("write buffer %q: %w", b.label, err)
		}
	}
	d.queue.WriteBuffer(b.buf, offset, data)
	return nil
}

func (d *wgpuDeviceImpl) CreateShader(desc device.ShaderDesc) (device.ShaderModule, error) {
	switch desc.Stage {
	case device.StageVertex, device.StagePixel:
	default:
		return nil, fmt.Errorf("create shader %q for %s stage: %w", desc.Label, desc.Stage, device.ErrUnsupportedStage)
	}
	if desc.EntryPoint == "" {
		desc.EntryPoint = "vs_main"
		if desc.Stage == device.StagePixel {
			desc.EntryPoint = "fs_main"
		}
	}
	module, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: desc.Label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: desc.Source,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("compile shader %q: %w", desc.Label, err)
	}
	return newGPUShader(desc, module), nil
}

func (d *wgpuDeviceImpl) CreateTexture(desc device.TextureDesc) (device.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("create texture %q %dx%d: %w", desc.Label, desc.Width, desc.Height, device.ErrInvalidSize)
	}
	if desc.ArraySize <= 0 {
		desc.ArraySize = 1
	}
	if desc.MipLevels <= 0 {
		desc.MipLevels = 1
	}
	format, err := toWGPUFormat(desc.Format)
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:     desc.Label,
		Usage:     toTextureUsage(desc.Usage),
		Dimension: wgpu.TextureDimension2D,
		Size: wgpu.Extent3D{
			Width:              uint32(desc.Width),
			Height:             uint32(desc.Height),
			DepthOrArrayLayers: uint32(desc.ArraySize),
		},
		Format:        format,
		MipLevelCount: uint32(desc.MipLevels),
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}

	t := &gpuTexture{desc: desc, tex: tex, handle: nextHandle()}

	bpp := desc.Format.BitsPerPixel()
	for mip, data := range desc.InitialData {
		w := max(desc.Width>>mip, 1)
		h := max(desc.Height>>mip, 1)
		d.queue.WriteTexture(
			&wgpu.ImageCopyTexture{
				Texture:  tex,
				MipLevel: uint32(mip),
				Origin:   wgpu.Origin3D{},
				Aspect:   wgpu.TextureAspectAll,
			},
			data,
			&wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(w * bpp / 8),
				RowsPerImage: uint32(h),
			},
			&wgpu.Extent3D{
				Width:              uint32(w),
				Height:             uint32(h),
				DepthOrArrayLayers: 1,
			},
		)
	}
	return t, nil
}

var handleSeq = struct {
	sync.Mutex
	next uintptr
}{next: 0x1000}

func nextHandle() uintptr {
	handleSeq.Lock()
	defer handleSeq.Unlock()
	handleSeq.next++
	return handleSeq.next
}

func (d *wgpuDeviceImpl) CreateStagingTexture(src device.Texture) (device.Texture, error) {
	t := &gpuTexture{
		desc: device.TextureDesc{
			Label:     src.Label() + " Staging",
			Width:     src.Width(),
			Height:    src.Height(),
			ArraySize: 1,
			MipLevels: 1,
			Format:    src.Format(),
			Usage:     device.UsageStaging,
		},
		handle: nextHandle(),
	}
	if t.rowBytes() == 0 {
		return nil, fmt.Errorf("create staging texture for %q: %w", src.Label(), device.ErrInvalidSize)
	}
	t.mirror = make([]byte, t.rowBytes()*t.desc.Height)

	padded := alignTo(t.rowBytes(), 256)
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: t.desc.Label + " Readback",
		Size:  uint64(padded * t.desc.Height),
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	t.readback = buf
	return t, nil
}

func (d *wgpuDeviceImpl) CopyTexture(dst, src device.Texture) error {
	s, sok := src.(*gpuTexture)
	t, tok := dst.(*gpuTexture)
	if !sok || !tok {
		return errors.New("copy texture: not a WebGPU texture")
	}
	switch {
	case t.desc.Usage.Has(device.UsageStaging) && !s.desc.Usage.Has(device.UsageStaging):
		return d.readTexture(t, s)
	case s.desc.Usage.Has(device.UsageStaging) && !t.desc.Usage.Has(device.UsageStaging):
		return d.writeTexture(t, s)
	default:
		return device.ErrNotStaging
	}
}

// readTexture copies layer 0 of src into the staging mirror through the readback buffer.
func (d *wgpuDeviceImpl) readTexture(staging, src *gpuTexture) error {
	gpuTex := src.tex
	if src.swapChain {
		gpuTex = d.frameSurface
	}
	if gpuTex == nil {
		return fmt.Errorf("read texture %q: %w", src.desc.Label, device.ErrNoFrame)
	}

	row := staging.rowBytes()
	padded := alignTo(row, 256)
	height := staging.desc.Height

	if err := d.flushFrame(); err != nil {
		return err
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	encoder.CopyTextureToBuffer(
		&wgpu.ImageCopyTexture{
			Texture:  gpuTex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyBuffer{
			Buffer: staging.readback,
			Layout: wgpu.TextureDataLayout{
				Offset:       0,
				BytesPerRow:  uint32(padded),
				RowsPerImage: uint32(height),
			},
		},
		&wgpu.Extent3D{
			Width:              uint32(staging.desc.Width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
	)
	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		encoder.Release()
		return err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()
	encoder.Release()

	var status wgpu.BufferMapAsyncStatus
	size := uint64(padded * height)
	staging.readback.MapAsync(wgpu.MapModeRead, 0, size, func(s wgpu.BufferMapAsyncStatus) {
		status = s
	})
	d.device.Poll(true, nil)
	if status != wgpu.BufferMapAsyncStatusSuccess {
		return fmt.Errorf("read texture %q: map status %d", src.desc.Label, status)
	}
	mapped := staging.readback.GetMappedRange(0, uint(size))
	for y := 0; y < height; y++ {
		copy(staging.mirror[y*row:(y+1)*row], mapped[y*padded:y*padded+row])
	}
	staging.readback.Unmap()
	return nil
}

func (d *wgpuDeviceImpl) writeTexture(dst, staging *gpuTexture) error {
	if dst.tex == nil {
		return fmt.Errorf("write texture %q: no backing texture", dst.desc.Label)
	}
	if err := d.flushFrame(); err != nil {
		return err
	}
	d.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  dst.tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		staging.mirror,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(staging.rowBytes()),
			RowsPerImage: uint32(staging.desc.Height),
		},
		&wgpu.Extent3D{
			Width:              uint32(staging.desc.Width),
			Height:             uint32(staging.desc.Height),
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (d *wgpuDeviceImpl) Map(staging device.Texture) (device.MappedTexture, error) {
	t, ok := staging.(*gpuTexture)
	if !ok || t.mirror == nil {
		return device.MappedTexture{}, device.ErrNotStaging
	}
	return device.MappedTexture{Data: t.mirror, RowPitch: t.rowBytes()}, nil
}

func (d *wgpuDeviceImpl) Unmap(staging device.Texture) {}

func (d *wgpuDeviceImpl) WrapNativeTexture(handle uintptr) (device.Texture, error) {
	if handle != swapChainHandle {
		return nil, fmt.Errorf("wrap native texture %#x: %w", handle, device.ErrUnknownHandle)
	}
	return d.backBuffer, nil
}

func (d *wgpuDeviceImpl) BackBufferHandle() uintptr {
	return swapChainHandle
}

func (d *wgpuDeviceImpl) CreateView(tex device.Texture, desc device.ViewDesc) (device.TextureView, error) {
	t, ok := tex.(*gpuTexture)
	if !ok {
		return nil, errors.New("create view: not a WebGPU texture")
	}
	count := desc.LayerCount
	if count == 0 {
		count = t.desc.ArraySize - desc.BaseLayer
	}
	if desc.BaseLayer < 0 || count <= 0 || desc.BaseLayer+count > t.desc.ArraySize {
		return nil, fmt.Errorf("create view of %q layers %d+%d: %w", t.desc.Label, desc.BaseLayer, count, device.ErrInvalidSize)
	}
	v := &gpuView{tex: t, baseLayer: desc.BaseLayer, layerCount: count}
	if t.swapChain {
		// resolved against the acquired surface image every frame
		return v, nil
	}

	format, err := toWGPUFormat(t.desc.Format)
	if err != nil {
		return nil, err
	}
	dim := wgpu.TextureViewDimension2D
	if count > 1 {
		dim = wgpu.TextureViewDimension2DArray
	}
	aspect := wgpu.TextureAspectAll
	if t.desc.Format.IsDepth() {
		aspect = wgpu.TextureAspectDepthOnly
	}
	view, err := t.tex.CreateView(&wgpu.TextureViewDescriptor{
		Label:           t.desc.Label + " View",
		Format:          format,
		Dimension:       dim,
		BaseMipLevel:    0,
		MipLevelCount:   uint32(t.desc.MipLevels),
		BaseArrayLayer:  uint32(desc.BaseLayer),
		ArrayLayerCount: uint32(count),
		Aspect:          aspect,
	})
	if err != nil {
		return nil, err
	}
	v.view = view
	return v, nil
}

func (d *wgpuDeviceImpl) CreateSampler(desc device.SamplerDesc) (device.Sampler, error) {
	sd := &wgpu.SamplerDescriptor{
		Label:         desc.Label,
		AddressModeU:  wgpu.AddressModeRepeat,
		AddressModeV:  wgpu.AddressModeRepeat,
		AddressModeW:  wgpu.AddressModeRepeat,
		MagFilter:     wgpu.FilterModeLinear,
		MinFilter:     wgpu.FilterModeLinear,
		MipmapFilter:  wgpu.MipmapFilterModeLinear,
		LodMinClamp:   0,
		LodMaxClamp:   32,
		MaxAnisotropy: 1,
	}
	if desc.Comparison {
		sd.MipmapFilter = wgpu.MipmapFilterModeNearest
		sd.Compare = wgpu.CompareFunctionLess
	}
	s, err := d.device.CreateSampler(sd)
	if err != nil {
		return nil, err
	}
	return &gpuSampler{comparison: desc.Comparison, sampler: s}, nil
}

func (d *wgpuDeviceImpl) SetRenderTargets(colors []device.TextureView, depth device.TextureView) {
	d.colors = d.colors[:0]
	for _, c := range colors {
		if v, ok := c.(*gpuView); ok {
			d.colors = append(d.colors, v)
		}
	}
	d.depth, _ = depth.(*gpuView)
	d.passDirty = true
}

func (d *wgpuDeviceImpl) SetViewport(vp common.Viewport) {
	d.viewport = vp
	if d.framePass != nil && !d.passDirty {
		d.applyViewport()
	}
}

func (d *wgpuDeviceImpl) SetBlendMode(mode device.BlendMode) {
	d.blend = mode
}

func (d *wgpuDeviceImpl) SetDepthTest(enabled bool) {
	d.depthTest = enabled
}

func (d *wgpuDeviceImpl) SetBackfaceCulling(enabled bool) {
	d.cull = enabled
}

func (d *wgpuDeviceImpl) SetInputLayout(layout device.InputLayout) {
	d.layout = layout
}

func (d *wgpuDeviceImpl) SetTopology(topology device.Topology) {
	d.topology = topology
}

func (d *wgpuDeviceImpl) BindShader(stage device.Stage, module device.ShaderModule) {
	s, ok := module.(*gpuShader)
	if !ok || s == nil {
		delete(d.shaders, stage)
		return
	}
	d.shaders[stage] = s
}

func (d *wgpuDeviceImpl) SetConstantBuffer(stage device.Stage, slot int, buf device.Buffer) {
	b, ok := buf.(*gpuBuffer)
	if !ok {
		return
	}
	if d.constants[stage] == nil {
		d.constants[stage] = make(map[int]*gpuBuffer)
	}
	d.constants[stage][slot] = b
}

func (d *wgpuDeviceImpl) SetShaderResource(stage device.Stage, slot int, view device.TextureView, sampler device.Sampler) {
	if d.resources[stage] == nil {
		d.resources[stage] = make(map[int]boundResource)
	}
	v, _ := view.(*gpuView)
	s, _ := sampler.(*gpuSampler)
	d.resources[stage][slot] = boundResource{view: v, sampler: s}
}

func (d *wgpuDeviceImpl) ClearShaderResources() {
	d.resources = make(map[device.Stage]map[int]boundResource)
}

func (d *wgpuDeviceImpl) SetVertexBuffers(mesh, instance device.Buffer) {
	d.meshBuf, _ = mesh.(*gpuBuffer)
	d.instBuf, _ = instance.(*gpuBuffer)
}

func (d *wgpuDeviceImpl) SetIndexBuffer(buf device.Buffer) {
	d.indexBuf, _ = buf.(*gpuBuffer)
}

func (d *wgpuDeviceImpl) ClearTarget(view device.TextureView, color common.Vec4) {
	v, ok := view.(*gpuView)
	if !ok {
		return
	}
	target := d.resolveView(v)
	if target == nil {
		return
	}
	d.encodeClear(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    target,
			LoadOp:  wgpu.LoadOpClear,
			StoreOp: wgpu.StoreOpStore,
			ClearValue: wgpu.Color{
				R: float64(color[0]), G: float64(color[1]), B: float64(color[2]), A: float64(color[3]),
			},
		}},
	})
}

func (d *wgpuDeviceImpl) ClearDepth(view device.TextureView) {
	v, ok := view.(*gpuView)
	if !ok || v.view == nil {
		return
	}
	d.encodeClear(&wgpu.RenderPassDescriptor{
		DepthStencilAttachment: &wgpu.RenderPassDepthStencilAttachment{
			View:            v.view,
			DepthLoadOp:     wgpu.LoadOpClear,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: 1.0,
		},
	})
}

// encodeClear records a pass that only clears. Outside a frame it is submitted on its own encoder.
func (d *wgpuDeviceImpl) encodeClear(desc *wgpu.RenderPassDescriptor) {
	d.endPass()
	if d.frameEncoder != nil {
		d.frameEncoder.BeginRenderPass(desc).End()
		return
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		d.logger.Error("clear: command encoder", "error", err)
		return
	}
	encoder.BeginRenderPass(desc).End()
	commandBuffer, err := encoder.Finish(nil)
	if err == nil {
		d.queue.Submit(commandBuffer)
		commandBuffer.Release()
	}
	encoder.Release()
}

func (d *wgpuDeviceImpl) resolveView(v *gpuView) *wgpu.TextureView {
	if v.tex.swapChain {
		return d.frameView
	}
	return v.view
}

// flushFrame submits the commands recorded so far in the frame so queue operations observe them.
func (d *wgpuDeviceImpl) flushFrame() error {
	if d.frameEncoder == nil {
		return nil
	}
	d.endPass()
	commandBuffer, err := d.frameEncoder.Finish(nil)
	d.frameEncoder.Release()
	d.frameEncoder = nil
	if err != nil {
		return err
	}
	d.queue.Submit(commandBuffer)
	commandBuffer.Release()

	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		return err
	}
	d.frameEncoder = encoder
	d.encoderGen++
	return nil
}

// markUsed stamps buffers read by a draw recorded in the current frame encoder.
func (d *wgpuDeviceImpl) markUsed(bufs ...*gpuBuffer) {
	for _, b := range bufs {
		if b != nil {
			b.usedGen = d.encoderGen
		}
	}
}

func (d *wgpuDeviceImpl) usedByRecordedDraw(b *gpuBuffer) bool {
	return b.usedGen != 0 && b.usedGen == d.encoderGen
}

func (d *wgpuDeviceImpl) endPass() {
	if d.framePass != nil {
		d.framePass.End()
		d.framePass = nil
	}
	d.passDirty = true
}

// ensurePass begins a render pass over the bound targets if none is open for them.
func (d *wgpuDeviceImpl) ensurePass() (*wgpu.RenderPassEncoder, error) {
	if d.framePass != nil && !d.passDirty {
		return d.framePass, nil
	}
	d.endPass()

	desc := &wgpu.RenderPassDescriptor{}
	for _, c := range d.colors {
		view := d.resolveView(c)
		if view == nil {
			return nil, fmt.Errorf("render target %q: %w", c.tex.desc.Label, device.ErrNoFrame)
		}
		desc.ColorAttachments = append(desc.ColorAttachments, wgpu.RenderPassColorAttachment{
			View:    view,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		})
	}
	if d.depth != nil && d.depth.view != nil {
		desc.DepthStencilAttachment = &wgpu.RenderPassDepthStencilAttachment{
			View:         d.depth.view,
			DepthLoadOp:  wgpu.LoadOpLoad,
			DepthStoreOp: wgpu.StoreOpStore,
		}
	}
	d.framePass = d.frameEncoder.BeginRenderPass(desc)
	d.passDirty = false
	d.applyViewport()
	return d.framePass, nil
}

func (d *wgpuDeviceImpl) applyViewport() {
	vp := d.viewport
	w, h := float32(0), float32(0)
	switch {
	case len(d.colors) > 0:
		w, h = float32(d.colors[0].tex.desc.Width), float32(d.colors[0].tex.desc.Height)
	case d.depth != nil:
		w, h = float32(d.depth.tex.desc.Width), float32(d.depth.tex.desc.Height)
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		vp = common.Viewport{Width: w, Height: h, MaxDepth: 1}
	}
	vp.Width = min(vp.Width, w-vp.X)
	vp.Height = min(vp.Height, h-vp.Y)
	if vp.Width <= 0 || vp.Height <= 0 {
		return
	}
	d.framePass.SetViewport(vp.X, vp.Y, vp.Width, vp.Height, vp.MinDepth, vp.MaxDepth)
}

func (d *wgpuDeviceImpl) DrawIndexedInstanced(indexCount, instanceCount uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameEncoder == nil {
		return device.ErrNoFrame
	}
	vs := d.shaders[device.StageVertex]
	if vs == nil {
		return errors.New("draw: no vertex shader bound")
	}
	if d.meshBuf == nil || d.indexBuf == nil {
		return errors.New("draw: mesh buffers not bound")
	}
	ps := d.shaders[device.StagePixel]

	entry, err := d.pipelineFor(vs, ps)
	if err != nil {
		return err
	}
	pass, err := d.ensurePass()
	if err != nil {
		return err
	}
	pass.SetPipeline(entry.p.RenderPipeline())
	for g := range entry.groupLayouts {
		bg, err := d.createBindGroup(entry, g)
		if err != nil {
			return err
		}
		pass.SetBindGroup(uint32(g), bg, nil)
		d.frameGarbage = append(d.frameGarbage, bg)
	}
	pass.SetVertexBuffer(0, d.meshBuf.buf, 0, wgpu.WholeSize)
	if d.instBuf != nil && len(d.layout.Buffers) > 1 {
		pass.SetVertexBuffer(1, d.instBuf.buf, 0, wgpu.WholeSize)
	}
	pass.SetIndexBuffer(d.indexBuf.buf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
	pass.DrawIndexed(indexCount, instanceCount, 0, 0, 0)
	d.markUsed(d.meshBuf, d.instBuf, d.indexBuf)
	return nil
}

// pipelineFor returns the cached pipeline for the bound state, creating it on first use.
func (d *wgpuDeviceImpl) pipelineFor(vs, ps *gpuShader) (*pipelineEntry, error) {
	colorFormats := make([]wgpu.TextureFormat, 0, len(d.colors))
	for _, c := range d.colors {
		if c.tex.swapChain {
			colorFormats = append(colorFormats, d.surfaceFormat)
			continue
		}
		f, err := toWGPUFormat(c.tex.desc.Format)
		if err != nil {
			return nil, err
		}
		colorFormats = append(colorFormats, f)
	}
	depth := wgpu.TextureFormatUndefined
	if d.depth != nil {
		depth = depthFormat
	}

	opts := []pipeline.PipelineBuilderOption{
		pipeline.WithVertexShader(vs.module, vs.desc.EntryPoint),
		pipeline.WithVertexBuffers(toVertexLayouts(d.layout)),
		pipeline.WithTargets(colorFormats, depth),
		pipeline.WithDepthTestEnabled(d.depthTest),
		pipeline.WithFrontFace(wgpu.FrontFaceCW),
	}
	if ps != nil && len(colorFormats) > 0 {
		opts = append(opts, pipeline.WithFragmentShader(ps.module, ps.desc.EntryPoint))
	}
	if !d.cull {
		opts = append(opts, pipeline.WithCullMode(wgpu.CullModeNone))
	}
	if d.topology == device.TopologyLineList {
		opts = append(opts, pipeline.WithTopology(wgpu.PrimitiveTopologyLineList))
	}
	switch d.blend {
	case device.BlendModeAlpha:
		opts = append(opts, pipeline.WithBlendState(pipeline.AlphaBlendState()))
	case device.BlendModeAdditive:
		opts = append(opts, pipeline.WithBlendState(pipeline.AdditiveBlendState()))
	case device.BlendModeColorWriteDisabled:
		opts = append(opts, pipeline.WithWriteMask(wgpu.ColorWriteMaskNone))
	}

	p := pipeline.NewPipeline(opts...)
	if entry, ok := d.pipelines[p.Key()]; ok {
		return entry, nil
	}

	entry := &pipelineEntry{p: p}
	entry.groups = mergeBindings(vs, ps)
	entry.groupLayouts = make([]*wgpu.BindGroupLayout, len(entry.groups))
	for g, refs := range entry.groups {
		entries := make([]wgpu.BindGroupLayoutEntry, 0, len(refs))
		for _, ref := range refs {
			entries = append(entries, layoutEntry(ref))
		}
		layout, err := d.device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
			Label:   fmt.Sprintf("%s group %d", vs.desc.Label, g),
			Entries: entries,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create bind group layout for group %d: %w", g, err)
		}
		entry.groupLayouts[g] = layout
	}

	layout, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            vs.desc.Label,
		BindGroupLayouts: entry.groupLayouts,
	})
	if err != nil {
		return nil, err
	}
	entry.layout = layout

	created, err := d.device.CreateRenderPipeline(p.Descriptor(layout))
	if err != nil {
		d.logger.Error("render pipeline creation failed", "vertex", vs.desc.Label, "error", err)
		return nil, err
	}
	p.SetRenderPipeline(created)
	d.pipelines[p.Key()] = entry
	d.logger.Debug("render pipeline created", "vertex", vs.desc.Label, "blend", d.blend.String(), "cached", len(d.pipelines))
	return entry, nil
}

// mergeBindings groups the reflected bindings of both stages by @group. A binding declared by both
// stages is shared and its visibility is the union.
func mergeBindings(vs, ps *gpuShader) [][]bindingRef {
	byGroup := make(map[uint32]map[uint32]bindingRef)
	maxGroup := -1
	add := func(s *gpuShader, stage device.Stage, visibility wgpu.ShaderStage) {
		if s == nil {
			return
		}
		slots := map[device.ResourceKind]int{}
		for _, b := range s.desc.Bindings {
			kind := b.Kind
			if kind == device.ResourceDepthTexture {
				kind = device.ResourceTexture
			}
			if kind == device.ResourceComparisonSampler {
				kind = device.ResourceSampler
			}
			slot := slots[kind]
			slots[kind]++

			if byGroup[b.Group] == nil {
				byGroup[b.Group] = make(map[uint32]bindingRef)
			}
			if existing, ok := byGroup[b.Group][b.Binding]; ok {
				existing.visibility |= visibility
				byGroup[b.Group][b.Binding] = existing
				continue
			}
			byGroup[b.Group][b.Binding] = bindingRef{binding: b, stage: stage, slot: slot, visibility: visibility}
			maxGroup = max(maxGroup, int(b.Group))
		}
	}
	add(vs, device.StageVertex, wgpu.ShaderStageVertex)
	add(ps, device.StagePixel, wgpu.ShaderStageFragment)

	groups := make([][]bindingRef, maxGroup+1)
	for g, refs := range byGroup {
		list := make([]bindingRef, 0, len(refs))
		for _, r := range refs {
			list = append(list, r)
		}
		sort.Slice(list, func(i, j int) bool {
			return list[i].binding.Binding < list[j].binding.Binding
		})
		groups[g] = list
	}
	return groups
}

func layoutEntry(ref bindingRef) wgpu.BindGroupLayoutEntry {
	entry := wgpu.BindGroupLayoutEntry{
		Binding:    ref.binding.Binding,
		Visibility: ref.visibility,
	}
	dim := wgpu.TextureViewDimension2D
	if ref.binding.Array {
		dim = wgpu.TextureViewDimension2DArray
	}
	switch ref.binding.Kind {
	case device.ResourceUniform:
		entry.Buffer.Type = wgpu.BufferBindingTypeUniform
		entry.Buffer.MinBindingSize = ref.binding.Size
	case device.ResourceTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeFloat
		entry.Texture.ViewDimension = dim
	case device.ResourceDepthTexture:
		entry.Texture.SampleType = wgpu.TextureSampleTypeDepth
		entry.Texture.ViewDimension = dim
	case device.ResourceSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeFiltering
	case device.ResourceComparisonSampler:
		entry.Sampler.Type = wgpu.SamplerBindingTypeComparison
	}
	return entry
}

func (d *wgpuDeviceImpl) createBindGroup(entry *pipelineEntry, g int) (*wgpu.BindGroup, error) {
	refs := entry.groups[g]
	entries := make([]wgpu.BindGroupEntry, 0, len(refs))
	for _, ref := range refs {
		e := wgpu.BindGroupEntry{Binding: ref.binding.Binding}
		switch ref.binding.Kind {
		case device.ResourceUniform:
			if b := d.constants[ref.stage][ref.slot]; b != nil && b.buf != nil {
				e.Buffer = b.buf
				d.markUsed(b)
			} else {
				buf, err := d.fallbackUniform(ref.binding.Size)
				if err != nil {
					return nil, err
				}
				e.Buffer = buf
			}
			e.Size = wgpu.WholeSize
		case device.ResourceTexture, device.ResourceDepthTexture:
			if r := d.resources[ref.stage][ref.slot]; r.view != nil && d.resolveView(r.view) != nil {
				e.TextureView = d.resolveView(r.view)
			} else {
				view, err := d.fallbackView(ref.binding.Kind == device.ResourceDepthTexture, ref.binding.Array)
				if err != nil {
					return nil, err
				}
				e.TextureView = view
			}
		case device.ResourceSampler, device.ResourceComparisonSampler:
			comparison := ref.binding.Kind == device.ResourceComparisonSampler
			if r := d.resources[ref.stage][ref.slot]; r.sampler != nil && r.sampler.comparison == comparison {
				e.Sampler = r.sampler.sampler
			} else {
				s, err := d.fallbackSampler(comparison)
				if err != nil {
					return nil, err
				}
				e.Sampler = s
			}
		}
		entries = append(entries, e)
	}
	return d.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   fmt.Sprintf("group %d", g),
		Layout:  entry.groupLayouts[g],
		Entries: entries,
	})
}

func (d *wgpuDeviceImpl) fallbackUniform(size uint64) (*wgpu.Buffer, error) {
	size = uint64(alignTo(int(max(size, 16)), 16))
	if buf, ok := d.fallback.uniforms[size]; ok {
		return buf, nil
	}
	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "Fallback Uniform",
		Size:  size,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, err
	}
	d.fallback.uniforms[size] = buf
	return buf, nil
}

func (d *wgpuDeviceImpl) fallbackView(depth, array bool) (*wgpu.TextureView, error) {
	slot := &d.fallback.colorView
	format := wgpu.TextureFormatRGBA8Unorm
	aspect := wgpu.TextureAspectAll
	switch {
	case depth && array:
		slot = &d.fallback.depthArray
	case depth:
		slot = &d.fallback.depthView
	case array:
		slot = &d.fallback.colorArray
	}
	if depth {
		format = depthFormat
		aspect = wgpu.TextureAspectDepthOnly
	}
	if *slot != nil {
		return *slot, nil
	}
	layers, dim := uint32(1), wgpu.TextureViewDimension2D
	if array {
		layers, dim = 2, wgpu.TextureViewDimension2DArray
	}
	tex, err := d.device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         "Fallback Texture",
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageRenderAttachment,
		Dimension:     wgpu.TextureDimension2D,
		Size:          wgpu.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: layers},
		Format:        format,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return nil, err
	}
	view, err := tex.CreateView(&wgpu.TextureViewDescriptor{
		Format:          format,
		Dimension:       dim,
		MipLevelCount:   1,
		ArrayLayerCount: layers,
		Aspect:          aspect,
	})
	if err != nil {
		return nil, err
	}
	*slot = view
	return view, nil
}

func (d *wgpuDeviceImpl) fallbackSampler(comparison bool) (*wgpu.Sampler, error) {
	slot := &d.fallback.sampler
	if comparison {
		slot = &d.fallback.compareSample
	}
	if *slot != nil {
		return *slot, nil
	}
	s, err := d.CreateSampler(device.SamplerDesc{Label: "Fallback Sampler", Comparison: comparison})
	if err != nil {
		return nil, err
	}
	*slot = s.(*gpuSampler).sampler
	return *slot, nil
}

func (d *wgpuDeviceImpl) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// a held surface image means the previous frame was never presented
	if d.frameSurface != nil {
		return fmt.Errorf("previous frame surface not yet presented")
	}

	surfaceTexture, err := d.surface.GetCurrentTexture()
	if err != nil {
		return err
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return err
	}
	encoder, err := d.device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return err
	}

	d.frameEncoder = encoder
	d.encoderGen++
	d.frameSurface = surfaceTexture
	d.frameView = view
	d.passDirty = true
	return nil
}

func (d *wgpuDeviceImpl) EndFrame() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameEncoder == nil {
		return
	}
	d.endPass()

	commandBuffer, err := d.frameEncoder.Finish(nil)
	if err != nil {
		d.logger.Error("frame encoder finish failed", "error", err)
	} else {
		d.queue.Submit(commandBuffer)
		commandBuffer.Release()
	}
	d.frameEncoder.Release()
	d.frameEncoder = nil

	for _, bg := range d.frameGarbage {
		bg.Release()
	}
	d.frameGarbage = d.frameGarbage[:0]
}

func (d *wgpuDeviceImpl) Present() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.frameSurface == nil {
		return
	}
	d.surface.Present()

	if d.frameView != nil {
		d.frameView.Release()
		d.frameView = nil
	}
	d.frameSurface.Release()
	d.frameSurface = nil
}

func (d *wgpuDeviceImpl) SupportsSinglePassStereo() bool {
	return false
}

func (d *wgpuDeviceImpl) Release() {
	for _, e := range d.pipelines {
		e.p.Release()
		for _, l := range e.groupLayouts {
			l.Release()
		}
		e.layout.Release()
	}
	d.pipelines = make(map[string]*pipelineEntry)
	for _, b := range d.fallback.uniforms {
		b.Release()
	}
	d.queue.Release()
	d.device.Release()
	d.adapter.Release()
	d.surface.Release()
	d.instance.Release()
}
