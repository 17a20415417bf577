// Package texture wraps 2D device textures with the views, sampler, depth buffer and CPU staging copy
// the render layer needs to use them as shader inputs, render targets and readback sources.
package texture

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

// texture is the implementation of the Texture2D interface.
type texture struct {
	dev      device.Device
	logger   *slog.Logger
	label    string
	mediaDir string

	arraySize int

	native device.Texture
	owned  bool

	width    int
	height   int
	format   device.Format
	viewport common.Viewport

	stereo       bool
	renderTarget bool
	comparison   bool

	shaderView  device.TextureView
	targetView  device.TextureView
	targetRight device.TextureView
	depth       device.Texture
	depthView   device.TextureView
	depthRight  device.TextureView
	sampler     device.Sampler

	staging     device.Texture
	mappedCount int
	mapped      device.MappedTexture
	mapType     MapType
}

// Texture2D is a 2D texture, optionally a two-layer stereo array, together with the views it is bound
// through. Textures created as render targets carry a 16-bit depth buffer of the same size and layer
// count.
//
// A Texture2D is owned by the render thread; it is not safe for concurrent use.
type Texture2D interface {
	// Width returns the width in pixels, or 0 after Reset.
	Width() int

	// Height returns the height in pixels, or 0 after Reset.
	Height() int

	// Aspect returns Width / Height, or 1 for an empty texture.
	Aspect() float32

	// Format returns the pixel format. Native BGRA8 typeless images report BGRA8 sRGB.
	Format() device.Format

	// BitsPerPixel returns the texel size of the format in bits, 0 for formats without a CPU layout.
	BitsPerPixel() int

	// IsStereo reports whether the texture is a two-layer render target with separate right-eye views.
	IsStereo() bool

	// IsRenderTarget reports whether the texture can be rendered into.
	IsRenderTarget() bool

	// Native returns the device texture.
	Native() device.Texture

	// ShaderView returns the view over every layer used for sampling, or nil if the texture cannot be sampled.
	ShaderView() device.TextureView

	// RenderTargetView returns the colour target view.
	//
	// Parameters:
	//   - rightEye: true for the right-eye layer of a stereo texture; the left view covers every layer
	//
	// Returns:
	//   - device.TextureView: the view, or nil if the texture is not a render target
	RenderTargetView(rightEye bool) device.TextureView

	// DepthView returns the depth target view.
	//
	// Parameters:
	//   - rightEye: true for the right-eye layer of a stereo texture; the left view covers every layer
	//
	// Returns:
	//   - device.TextureView: the view, or nil if the texture is not a render target
	DepthView(rightEye bool) device.TextureView

	// Sampler returns the wrap-addressed sampler bound alongside ShaderView.
	Sampler() device.Sampler

	// BindAsShaderResource binds the shader view and sampler to a stage. Textures without a shader view
	// are skipped.
	//
	// Parameters:
	//   - stage: the shader stage
	//   - slot: the resource slot in declaration order of the shader's texture bindings
	BindAsShaderResource(stage device.Stage, slot int)

	// EnableComparisonSampling replaces the sampler with a Less comparison sampler, or back.
	//
	// Parameters:
	//   - enabled: true for comparison sampling
	//
	// Returns:
	//   - error: a device error
	EnableComparisonSampling(enabled bool) error

	// ComparisonSamplingEnabled reports the state set by EnableComparisonSampling.
	ComparisonSamplingEnabled() bool

	// Viewport returns the viewport used when the texture is the first render target.
	Viewport() common.Viewport

	// SetViewport overrides the viewport.
	//
	// Parameters:
	//   - vp: the new viewport
	SetViewport(vp common.Viewport)

	// Map exposes the texels of layer 0 to the CPU. Calls nest: only the outermost Map copies from the
	// GPU, and only the matching outermost Unmap copies back. Nested calls keep the first map type.
	//
	// Parameters:
	//   - mapType: the access direction
	//
	// Returns:
	//   - []byte: the texel rows, Pitch bytes apart
	//   - error: ErrReleased or a device error
	Map(mapType MapType) ([]byte, error)

	// Unmap ends one level of Map. Unbalanced calls are ignored.
	//
	// Returns:
	//   - error: a device error from copying written texels back
	Unmap() error

	// Data returns the mapped texels, or nil while unmapped.
	Data() []byte

	// Pitch returns the byte distance between rows of the mapped texels.
	Pitch() int

	// UploadData replaces the texels of layer 0 with tightly packed rows.
	//
	// Parameters:
	//   - data: at least width*height*BitsPerPixel/8 bytes
	//
	// Returns:
	//   - error: ErrDataTooSmall, ErrUnsupportedFormat or a device error
	UploadData(data []byte) error

	// SaveToFile writes layer 0 as an image. The encoder follows the extension: .bmp, .tif/.tiff or PNG.
	//
	// Parameters:
	//   - path: the destination file
	//
	// Returns:
	//   - error: ErrUnsupportedFormat or a write error
	SaveToFile(path string) error

	// Clear fills the colour target with color and the depth buffer with 1.
	//
	// Parameters:
	//   - color: RGBA clear colour
	Clear(color common.Vec4)

	// Reset releases every view, the sampler, the depth buffer and the staging copy, and the texture
	// itself unless it was wrapped. The Texture2D is empty afterwards.
	Reset()
}

var _ Texture2D = &texture{}

func newTexture(dev device.Device, options ...TextureBuilderOption) *texture {
	t := &texture{
		dev:       dev,
		logger:    slog.Default(),
		mediaDir:  DefaultMediaDir,
		arraySize: 1,
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// NewTexture creates a texture usable as a shader resource and as a render target, with a depth buffer.
//
// Parameters:
//   - dev: the device
//   - width, height: size in pixels
//   - format: the pixel format
//   - options: variadic TextureBuilderOption functions
//
// Returns:
//   - Texture2D: the texture
//   - error: a device error
func NewTexture(dev device.Device, width, height int, format device.Format, options ...TextureBuilderOption) (Texture2D, error) {
	t := newTexture(dev, options...)
	if t.label == "" {
		t.label = fmt.Sprintf("Texture %dx%d", width, height)
	}
	native, err := dev.CreateTexture(device.TextureDesc{
		Label:     t.label,
		Width:     width,
		Height:    height,
		ArraySize: t.arraySize,
		MipLevels: 1,
		Format:    format,
		Usage:     device.UsageShaderResource | device.UsageRenderTarget,
	})
	if err != nil {
		return nil, err
	}
	if err := t.attach(native, true); err != nil {
		return nil, err
	}
	return t, nil
}

// WrapNative wraps a native image owned by the presentation layer, such as a swap-chain or holographic
// camera back buffer. The wrapped image is never released by the texture.
//
// Parameters:
//   - dev: the device
//   - handle: the native image identity
//   - viewport: the viewport to use; a zero Width covers the whole image
//   - options: variadic TextureBuilderOption functions
//
// Returns:
//   - Texture2D: the texture
//   - error: device.ErrUnknownHandle or a device error
func WrapNative(dev device.Device, handle uintptr, viewport common.Viewport, options ...TextureBuilderOption) (Texture2D, error) {
	t := newTexture(dev, options...)
	native, err := dev.WrapNativeTexture(handle)
	if err != nil {
		return nil, err
	}
	if err := t.attach(native, false); err != nil {
		return nil, err
	}
	if viewport.Width > 0 {
		t.viewport = viewport
	}
	return t, nil
}

// NewTextureFromFile loads a shader-resource texture from a DDS or image file. The path is tried as
// given, then under the media directory.
//
// Parameters:
//   - dev: the device
//   - path: the file
//   - options: variadic TextureBuilderOption functions
//
// Returns:
//   - Texture2D: the texture
//   - error: a read error, ErrInvalidDDS, ErrUnsupportedImage or a device error
func NewTextureFromFile(dev device.Device, path string, options ...TextureBuilderOption) (Texture2D, error) {
	t := newTexture(dev, options...)
	resolved := resolvePath(path, t.mediaDir)
	img, err := loadImageFile(resolved)
	if err != nil {
		return nil, err
	}
	if t.label == "" {
		t.label = filepath.Base(resolved)
	}
	native, err := dev.CreateTexture(device.TextureDesc{
		Label:       t.label,
		Width:       img.width,
		Height:      img.height,
		ArraySize:   1,
		MipLevels:   len(img.mips),
		Format:      img.format,
		Usage:       device.UsageShaderResource,
		InitialData: img.mips,
	})
	if err != nil {
		return nil, err
	}
	if err := t.attach(native, true); err != nil {
		return nil, err
	}
	t.logger.Debug("texture loaded", "path", resolved, "width", img.width, "height", img.height, "format", img.format, "mips", len(img.mips))
	return t, nil
}

// attach adopts native and creates the views its usage allows.
func (t *texture) attach(native device.Texture, owned bool) error {
	t.Reset()

	t.native = native
	t.owned = owned
	t.width = native.Width()
	t.height = native.Height()
	t.format = native.Format()
	if t.format == device.FormatBGRA8Typeless {
		t.format = device.FormatBGRA8UnormSrgb
	}
	t.viewport = common.NewViewport(t.width, t.height)
	if t.label == "" {
		t.label = native.Label()
	}

	err := t.createViews()
	if err != nil {
		t.Reset()
		return fmt.Errorf("texture %q: %w", t.label, err)
	}
	return nil
}

func (t *texture) createViews() error {
	usage := t.native.Usage()
	layers := t.native.ArraySize()

	var err error
	if usage.Has(device.UsageShaderResource) {
		if t.shaderView, err = t.dev.CreateView(t.native, device.ViewDesc{}); err != nil {
			return err
		}
	}

	if usage.Has(device.UsageRenderTarget) {
		t.renderTarget = true
		if t.targetView, err = t.dev.CreateView(t.native, device.ViewDesc{}); err != nil {
			return err
		}
		t.depth, err = t.dev.CreateTexture(device.TextureDesc{
			Label:     t.label + " Depth",
			Width:     t.width,
			Height:    t.height,
			ArraySize: layers,
			MipLevels: 1,
			Format:    device.FormatDepth16Unorm,
			Usage:     device.UsageDepthStencil | device.UsageShaderResource,
		})
		if err != nil {
			return err
		}
		if t.depthView, err = t.dev.CreateView(t.depth, device.ViewDesc{}); err != nil {
			return err
		}

		if layers == 2 {
			t.stereo = true
			if t.targetRight, err = t.dev.CreateView(t.native, device.ViewDesc{BaseLayer: 1, LayerCount: 1}); err != nil {
				return err
			}
			if t.depthRight, err = t.dev.CreateView(t.depth, device.ViewDesc{BaseLayer: 1, LayerCount: 1}); err != nil {
				return err
			}
		}
	}

	t.sampler, err = t.dev.CreateSampler(device.SamplerDesc{Label: t.label + " Sampler"})
	return err
}

func (t *texture) Width() int  { return t.width }
func (t *texture) Height() int { return t.height }

func (t *texture) Aspect() float32 {
	if t.height == 0 {
		return 1
	}
	return float32(t.width) / float32(t.height)
}

func (t *texture) Format() device.Format          { return t.format }
func (t *texture) BitsPerPixel() int              { return t.format.BitsPerPixel() }
func (t *texture) IsStereo() bool                 { return t.stereo }
func (t *texture) IsRenderTarget() bool           { return t.renderTarget }
func (t *texture) Native() device.Texture         { return t.native }
func (t *texture) ShaderView() device.TextureView { return t.shaderView }

func (t *texture) RenderTargetView(rightEye bool) device.TextureView {
	if rightEye && t.stereo {
		return t.targetRight
	}
	return t.targetView
}

func (t *texture) DepthView(rightEye bool) device.TextureView {
	if rightEye && t.stereo {
		return t.depthRight
	}
	return t.depthView
}

func (t *texture) Sampler() device.Sampler { return t.sampler }

func (t *texture) BindAsShaderResource(stage device.Stage, slot int) {
	if t.shaderView == nil {
		return
	}
	t.dev.SetShaderResource(stage, slot, t.shaderView, t.sampler)
}

func (t *texture) EnableComparisonSampling(enabled bool) error {
	if t.native == nil {
		return ErrReleased
	}
	sampler, err := t.dev.CreateSampler(device.SamplerDesc{Label: t.label + " Sampler", Comparison: enabled})
	if err != nil {
		return err
	}
	if t.sampler != nil {
		t.sampler.Release()
	}
	t.sampler = sampler
	t.comparison = enabled
	return nil
}

func (t *texture) ComparisonSamplingEnabled() bool { return t.comparison }

func (t *texture) Viewport() common.Viewport      { return t.viewport }
func (t *texture) SetViewport(vp common.Viewport) { t.viewport = vp }

func (t *texture) Map(mapType MapType) ([]byte, error) {
	if t.native == nil {
		return nil, ErrReleased
	}
	t.mappedCount++
	if t.mappedCount > 1 {
		return t.mapped.Data, nil
	}

	if err := t.ensureStaging(); err != nil {
		t.mappedCount = 0
		return nil, err
	}
	t.mapType = mapType
	if mapType.reads() {
		if err := t.dev.CopyTexture(t.staging, t.native); err != nil {
			t.mappedCount = 0
			return nil, err
		}
	}
	mapped, err := t.dev.Map(t.staging)
	if err != nil {
		t.mappedCount = 0
		return nil, err
	}
	t.mapped = mapped
	return mapped.Data, nil
}

func (t *texture) Unmap() error {
	if t.native == nil || t.staging == nil || t.mappedCount == 0 {
		return nil
	}
	t.mappedCount--
	if t.mappedCount > 0 {
		return nil
	}

	t.dev.Unmap(t.staging)
	t.mapped = device.MappedTexture{}
	if t.mapType.writes() {
		return t.dev.CopyTexture(t.native, t.staging)
	}
	return nil
}

func (t *texture) ensureStaging() error {
	if t.staging != nil {
		return nil
	}
	staging, err := t.dev.CreateStagingTexture(t.native)
	if err != nil {
		return err
	}
	t.staging = staging
	return nil
}

func (t *texture) Data() []byte { return t.mapped.Data }
func (t *texture) Pitch() int   { return t.mapped.RowPitch }

func (t *texture) UploadData(data []byte) error {
	if t.native == nil {
		return ErrReleased
	}
	bytesPerPixel := t.format.BitsPerPixel() / 8
	if bytesPerPixel == 0 {
		return fmt.Errorf("upload to %q: %w: %d", t.label, ErrUnsupportedFormat, t.format)
	}
	rowBytes := t.width * bytesPerPixel
	if required := rowBytes * t.height; len(data) < required {
		return fmt.Errorf("upload to %q: %d bytes, need %d: %w", t.label, len(data), required, ErrDataTooSmall)
	}

	dst, err := t.Map(MapWrite)
	if err != nil {
		return err
	}
	pitch := t.Pitch()
	for row := range t.height {
		copy(dst[row*pitch:row*pitch+rowBytes], data[row*rowBytes:])
	}
	return t.Unmap()
}

func (t *texture) SaveToFile(path string) error {
	if t.native == nil {
		return ErrReleased
	}
	data, err := t.Map(MapRead)
	if err != nil {
		return err
	}
	img, convErr := toImage(data, t.Pitch(), t.width, t.height, t.format)
	unmapErr := t.Unmap()
	if convErr != nil {
		return fmt.Errorf("save %q: %w", t.label, convErr)
	}
	if unmapErr != nil {
		return unmapErr
	}
	return writeImageFile(path, img)
}

func (t *texture) Clear(color common.Vec4) {
	if t.targetView != nil {
		t.dev.ClearTarget(t.targetView, color)
	}
	if t.depthView != nil {
		t.dev.ClearDepth(t.depthView)
	}
}

func (t *texture) Reset() {
	if t.mappedCount != 0 && t.staging != nil {
		t.mappedCount = 1
		if err := t.Unmap(); err != nil {
			t.logger.Warn("texture unmap on reset failed", "label", t.label, "error", err)
		}
	}
	t.mappedCount = 0
	t.mapped = device.MappedTexture{}
	t.mapType = MapRead

	for _, v := range []device.TextureView{t.shaderView, t.targetView, t.targetRight, t.depthView, t.depthRight} {
		if v != nil {
			v.Release()
		}
	}
	t.shaderView, t.targetView, t.targetRight, t.depthView, t.depthRight = nil, nil, nil, nil, nil

	if t.sampler != nil {
		t.sampler.Release()
		t.sampler = nil
	}
	for _, tex := range []device.Texture{t.depth, t.staging} {
		if tex != nil {
			tex.Release()
		}
	}
	t.depth, t.staging = nil, nil
	if t.native != nil && t.owned {
		t.native.Release()
	}
	t.native = nil
	t.owned = false

	t.width, t.height = 0, 0
	t.format = device.FormatUnknown
	t.viewport = common.Viewport{}
	t.stereo = false
	t.renderTarget = false
	t.comparison = false
}
