package texture

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func TestNewTexture_RenderTarget(t *testing.T) {
	dev := device.NewRecordingDevice()

	tex, err := NewTexture(dev, 8, 4, device.FormatRGBA8Unorm, WithLabel("color"))
	require.NoError(t, err)

	assert.Equal(t, 8, tex.Width())
	assert.Equal(t, 4, tex.Height())
	assert.Equal(t, float32(2), tex.Aspect())
	assert.Equal(t, 32, tex.BitsPerPixel())
	assert.True(t, tex.IsRenderTarget())
	assert.False(t, tex.IsStereo())
	assert.Equal(t, common.NewViewport(8, 4), tex.Viewport())

	require.NotNil(t, tex.ShaderView())
	require.NotNil(t, tex.RenderTargetView(false))
	require.NotNil(t, tex.DepthView(false))
	assert.Same(t, tex.RenderTargetView(false), tex.RenderTargetView(true), "mono textures have one target view")
	assert.Equal(t, device.FormatDepth16Unorm, tex.DepthView(false).Texture().Format())
	assert.False(t, tex.Sampler().Comparison())

	_, err = NewTexture(dev, 0, 4, device.FormatRGBA8Unorm)
	assert.ErrorIs(t, err, device.ErrInvalidSize)
}

func TestNewTexture_Stereo(t *testing.T) {
	dev := device.NewRecordingDevice()

	tex, err := NewTexture(dev, 4, 4, device.FormatBGRA8Unorm, WithStereo(true))
	require.NoError(t, err)
	require.True(t, tex.IsStereo())

	left := tex.RenderTargetView(false)
	assert.Equal(t, 0, left.BaseLayer())
	assert.Equal(t, 2, left.LayerCount())

	right := tex.RenderTargetView(true)
	assert.Equal(t, 1, right.BaseLayer())
	assert.Equal(t, 1, right.LayerCount())

	depthRight := tex.DepthView(true)
	assert.Equal(t, 1, depthRight.BaseLayer())
	assert.Equal(t, 2, depthRight.Texture().ArraySize())
}

func TestWrapNative(t *testing.T) {
	dev := device.NewRecordingDevice()
	handle := dev.AddNativeTexture(16, 8, 2, device.FormatBGRA8Typeless)

	tex, err := WrapNative(dev, handle, common.Viewport{})
	require.NoError(t, err)
	assert.Equal(t, device.FormatBGRA8UnormSrgb, tex.Format())
	assert.True(t, tex.IsStereo())
	assert.Equal(t, common.NewViewport(16, 8), tex.Viewport())

	vp := common.Viewport{X: 2, Y: 1, Width: 8, Height: 4, MaxDepth: 1}
	tex, err = WrapNative(dev, handle, vp)
	require.NoError(t, err)
	assert.Equal(t, vp, tex.Viewport())

	tex.Reset()
	_, err = WrapNative(dev, handle, common.Viewport{})
	assert.NoError(t, err, "the native image outlives its wrapper")

	_, err = WrapNative(dev, 0xdead, common.Viewport{})
	assert.ErrorIs(t, err, device.ErrUnknownHandle)
}

func TestMap_Reentrant(t *testing.T) {
	dev := device.NewRecordingDevice()
	tex, err := NewTexture(dev, 2, 2, device.FormatRGBA8Unorm)
	require.NoError(t, err)

	outer, err := tex.Map(MapRead)
	require.NoError(t, err)
	inner, err := tex.Map(MapWrite)
	require.NoError(t, err)
	assert.Same(t, &outer[0], &inner[0], "nested maps share the mapping")
	assert.Equal(t, 8, tex.Pitch())
	assert.Equal(t, 1, dev.CopyCount(device.CopyToStaging))
	assert.Len(t, dev.CallsOf("CreateStagingTexture"), 1)

	require.NoError(t, tex.Unmap())
	assert.NotNil(t, tex.Data(), "still mapped after the inner unmap")
	require.NoError(t, tex.Unmap())
	assert.Nil(t, tex.Data())
	assert.Equal(t, 0, dev.CopyCount(device.CopyFromStaging), "read maps never copy back")
	assert.NoError(t, tex.Unmap(), "unbalanced unmap is ignored")

	data, err := tex.Map(MapWrite)
	require.NoError(t, err)
	data[0] = 200
	require.NoError(t, tex.Unmap())
	assert.Equal(t, 1, dev.CopyCount(device.CopyFromStaging))
	assert.Equal(t, 1, dev.CopyCount(device.CopyToStaging), "write maps never copy from the GPU")
	assert.Equal(t, byte(200), dev.TextureData(tex.Native())[0])
	assert.Len(t, dev.CallsOf("CreateStagingTexture"), 1, "staging copy is created once")
}

func TestUploadData(t *testing.T) {
	dev := device.NewRecordingDevice()
	tex, err := NewTexture(dev, 3, 2, device.FormatRGBA8Unorm)
	require.NoError(t, err)

	data := make([]byte, 3*2*4)
	for i := range data {
		data[i] = byte(i)
	}
	require.NoError(t, tex.UploadData(data))
	assert.Equal(t, data, dev.TextureData(tex.Native()))

	err = tex.UploadData(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrDataTooSmall)

	unknown, err := NewTexture(dev, 2, 2, device.FormatUnknown)
	require.NoError(t, err)
	assert.ErrorIs(t, unknown.UploadData(make([]byte, 64)), ErrUnsupportedFormat)
}

func TestClear(t *testing.T) {
	dev := device.NewRecordingDevice()
	tex, err := NewTexture(dev, 2, 1, device.FormatRGBA8Unorm)
	require.NoError(t, err)

	tex.Clear(common.Vec4{1, 0, 0, 1})
	assert.Equal(t, []byte{255, 0, 0, 255, 255, 0, 0, 255}, dev.TextureData(tex.Native()))
	assert.Len(t, dev.CallsOf("ClearTarget"), 1)
	assert.Len(t, dev.CallsOf("ClearDepth"), 1)
}

func TestBindAsShaderResource(t *testing.T) {
	dev := device.NewRecordingDevice()
	tex, err := NewTexture(dev, 4, 4, device.FormatRGBA8Unorm)
	require.NoError(t, err)

	tex.BindAsShaderResource(device.StagePixel, 1)
	assert.Equal(t, tex.ShaderView(), dev.State().Resources[device.StagePixel][1])

	bb, err := WrapNative(dev, dev.BackBufferHandle(), common.Viewport{})
	require.NoError(t, err)
	bb.BindAsShaderResource(device.StageVertex, 0)
	assert.Len(t, dev.CallsOf("SetShaderResource"), 1, "render-target-only textures have no shader view")
}

func TestEnableComparisonSampling(t *testing.T) {
	dev := device.NewRecordingDevice()
	tex, err := NewTexture(dev, 2, 2, device.FormatR32Float)
	require.NoError(t, err)

	require.NoError(t, tex.EnableComparisonSampling(true))
	assert.True(t, tex.ComparisonSamplingEnabled())
	assert.True(t, tex.Sampler().Comparison())

	require.NoError(t, tex.EnableComparisonSampling(false))
	assert.False(t, tex.Sampler().Comparison())
}

func TestReset(t *testing.T) {
	dev := device.NewRecordingDevice()
	tex, err := NewTexture(dev, 2, 2, device.FormatRGBA8Unorm, WithStereo(true))
	require.NoError(t, err)
	_, err = tex.Map(MapWrite)
	require.NoError(t, err)

	tex.Reset()
	assert.Equal(t, 1, dev.CopyCount(device.CopyFromStaging), "reset flushes an open write map")
	assert.Zero(t, tex.Width())
	assert.Zero(t, tex.Height())
	assert.Equal(t, device.FormatUnknown, tex.Format())
	assert.False(t, tex.IsStereo())
	assert.Nil(t, tex.Native())
	assert.Nil(t, tex.RenderTargetView(true))

	_, err = tex.Map(MapRead)
	assert.ErrorIs(t, err, ErrReleased)
	assert.ErrorIs(t, tex.UploadData(nil), ErrReleased)
	assert.ErrorIs(t, tex.SaveToFile(filepath.Join(t.TempDir(), "x.png")), ErrReleased)
	assert.NoError(t, tex.Unmap())
}

func rgbaPixels(w, h int) []byte {
	data := make([]byte, w*h*4)
	for i := 0; i < len(data); i += 4 {
		data[i], data[i+1], data[i+2], data[i+3] = byte(i), byte(255-i), byte(i/2), 255
	}
	return data
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	dev := device.NewRecordingDevice()
	dir := t.TempDir()

	tex, err := NewTexture(dev, 4, 3, device.FormatRGBA8Unorm)
	require.NoError(t, err)
	pixels := rgbaPixels(4, 3)
	require.NoError(t, tex.UploadData(pixels))

	path := filepath.Join(dir, "out.png")
	require.NoError(t, tex.SaveToFile(path))

	loaded, err := NewTextureFromFile(dev, path)
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Width())
	assert.Equal(t, 3, loaded.Height())
	assert.Equal(t, device.FormatRGBA8Unorm, loaded.Format())
	assert.False(t, loaded.IsRenderTarget())
	assert.Nil(t, loaded.RenderTargetView(false))
	assert.Equal(t, pixels, dev.TextureData(loaded.Native()))
	assert.Equal(t, "out.png", loaded.Native().Label())
}

func TestSaveToFile_Encoders(t *testing.T) {
	dev := device.NewRecordingDevice()
	dir := t.TempDir()

	tex, err := NewTexture(dev, 2, 2, device.FormatBGRA8Unorm)
	require.NoError(t, err)
	require.NoError(t, tex.UploadData([]byte{
		10, 20, 30, 255, 0, 0, 0, 255,
		0, 0, 0, 255, 0, 0, 0, 255,
	}))

	decoders := map[string]func(*os.File) (image.Image, error){
		"out.png":  func(f *os.File) (image.Image, error) { return png.Decode(f) },
		"out.bmp":  func(f *os.File) (image.Image, error) { return bmp.Decode(f) },
		"out.tiff": func(f *os.File) (image.Image, error) { return tiff.Decode(f) },
	}
	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, tex.SaveToFile(path))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			img, err := decode(f)
			require.NoError(t, err)

			r, g, b, a := img.At(0, 0).RGBA()
			assert.Equal(t, []uint32{30, 20, 10, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8}, "BGRA texels are swizzled to RGBA")
		})
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func floatTexels(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}

func TestNewTextureFromFile_GrayDegradesToFloat(t *testing.T) {
	dev := device.NewRecordingDevice()
	dir := t.TempDir()

	gray := image.NewGray(image.Rect(0, 0, 3, 1))
	gray.Pix = []uint8{0, 51, 255}
	writePNG(t, filepath.Join(dir, "gray.png"), gray)

	tex, err := NewTextureFromFile(dev, filepath.Join(dir, "gray.png"))
	require.NoError(t, err)
	assert.Equal(t, device.FormatR32Float, tex.Format())
	assert.InDeltaSlice(t, []float32{0, 0.2, 1}, floatTexels(dev.TextureData(tex.Native())), 1e-6)

	palette := color.Palette{color.Black, color.White}
	paletted := image.NewPaletted(image.Rect(0, 0, 2, 1), palette)
	paletted.Pix = []uint8{1, 0}
	writePNG(t, filepath.Join(dir, "paletted.png"), paletted)

	tex, err = NewTextureFromFile(dev, filepath.Join(dir, "paletted.png"))
	require.NoError(t, err)
	assert.Equal(t, device.FormatR32Float, tex.Format())
	assert.InDeltaSlice(t, []float32{1, 0}, floatTexels(dev.TextureData(tex.Native())), 1e-6)
}

func TestNewTextureFromFile_MediaFallback(t *testing.T) {
	dev := device.NewRecordingDevice()
	media := t.TempDir()
	writePNG(t, filepath.Join(media, "fallback-only.png"), image.NewNRGBA(image.Rect(0, 0, 2, 2)))

	tex, err := NewTextureFromFile(dev, "fallback-only.png", WithMediaDir(media))
	require.NoError(t, err)
	assert.Equal(t, 2, tex.Width())

	_, err = NewTextureFromFile(dev, "missing.png", WithMediaDir(media))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewTextureFromFile_Unsupported(t *testing.T) {
	dev := device.NewRecordingDevice()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o644))

	_, err := NewTextureFromFile(dev, path)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

// ddsFile builds an uncompressed BGRA DDS stream with the given mip count and row padding.
func ddsFile(t *testing.T, width, height, mips, padding int, fourCC uint32) []byte {
	t.Helper()
	pitch := width*4 + padding
	h := ddsHeader{
		Size:              124,
		Height:            uint32(height),
		Width:             uint32(width),
		PitchOrLinearSize: uint32(pitch),
		MipMapCount:       uint32(mips),
		PixelFormat: ddsPixelFormat{
			Size:        32,
			Flags:       ddsFlagRGB | 0x1,
			FourCC:      fourCC,
			RGBBitCount: 32,
		},
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, ddsMagic))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	for i := range mips {
		mipPitch := pitch >> i
		rows := max(height>>i, 1)
		for y := range rows {
			row := make([]byte, mipPitch)
			for x := range row {
				row[x] = byte(i*100 + y*10 + x)
			}
			buf.Write(row)
		}
	}
	return buf.Bytes()
}

func TestDecodeDDS(t *testing.T) {
	img, err := decodeDDS(bytes.NewReader(ddsFile(t, 4, 2, 2, 0, 0)))
	require.NoError(t, err)
	assert.Equal(t, 4, img.width)
	assert.Equal(t, 2, img.height)
	assert.Equal(t, device.FormatBGRA8Unorm, img.format)
	require.Len(t, img.mips, 2)
	assert.Len(t, img.mips[0], 4*2*4)
	assert.Len(t, img.mips[1], 2*1*4)
	assert.Equal(t, byte(100), img.mips[1][0])

	padded, err := decodeDDS(bytes.NewReader(ddsFile(t, 2, 2, 1, 8, 0)))
	require.NoError(t, err)
	require.Len(t, padded.mips, 1)
	assert.Len(t, padded.mips[0], 2*2*4, "row padding is stripped")
	assert.Equal(t, byte(10), padded.mips[0][8], "second row starts at its own pitch")

	_, err = decodeDDS(bytes.NewReader(ddsFile(t, 4, 2, 1, 0, ddsFourCCDX10)))
	assert.ErrorIs(t, err, ErrInvalidDDS)

	_, err = decodeDDS(bytes.NewReader([]byte("PNG\x00 not dds")))
	assert.ErrorIs(t, err, ErrInvalidDDS)

	truncated := ddsFile(t, 4, 2, 1, 0, 0)
	_, err = decodeDDS(bytes.NewReader(truncated[:len(truncated)-1]))
	assert.ErrorIs(t, err, ErrInvalidDDS)
}

func TestNewTextureFromFile_DDS(t *testing.T) {
	dev := device.NewRecordingDevice()
	data := ddsFile(t, 4, 4, 3, 0, 0)
	path := filepath.Join(t.TempDir(), "tile.dds")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tex, err := NewTextureFromFile(dev, path)
	require.NoError(t, err)
	assert.Equal(t, device.FormatBGRA8Unorm, tex.Format())
	assert.Equal(t, 4, tex.Width())
	assert.Equal(t, data[4+124:4+124+64], dev.TextureData(tex.Native()))
}
