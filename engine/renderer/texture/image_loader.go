package texture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const (
	ddsMagic      uint32 = 0x20534444 // "DDS "
	ddsFourCCDX10 uint32 = 0x30315844 // "DX10"
	ddsFlagRGB    uint32 = 0x40
)

// imageData is a decoded texture file: one tightly packed byte slice per mip level.
type imageData struct {
	width  int
	height int
	format device.Format
	mips   [][]byte
}

type ddsPixelFormat struct {
	Size        uint32
	Flags       uint32
	FourCC      uint32
	RGBBitCount uint32
	RBitMask    uint32
	GBitMask    uint32
	BBitMask    uint32
	ABitMask    uint32
}

type ddsHeader struct {
	Size              uint32
	Flags             uint32
	Height            uint32
	Width             uint32
	PitchOrLinearSize uint32
	Depth             uint32
	MipMapCount       uint32
	Reserved1         [11]uint32
	PixelFormat       ddsPixelFormat
	Caps              uint32
	Caps2             uint32
	Caps3             uint32
	Caps4             uint32
	Reserved2         uint32
}

// resolvePath returns path if it exists, otherwise path joined under mediaDir.
func resolvePath(path, mediaDir string) string {
	if _, err := os.Stat(path); err == nil || mediaDir == "" {
		return path
	}
	return filepath.Join(mediaDir, path)
}

// loadImageFile reads a texture file. DDS files are recognised by extension or magic number; anything
// else must be an image type the registered decoders understand.
func loadImageFile(path string) (*imageData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	isDDS := strings.EqualFold(filepath.Ext(path), ".dds") ||
		(len(data) >= 4 && binary.LittleEndian.Uint32(data) == ddsMagic)
	if isDDS {
		img, err := decodeDDS(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return img, nil
	}
	img, err := decodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// decodeDDS reads an uncompressed 32-bit RGB(A) DDS stream with its full mip chain.
func decodeDDS(r io.Reader) (*imageData, error) {
	var magic uint32
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDDS, err)
	}
	if magic != ddsMagic {
		return nil, fmt.Errorf("%w: magic %#x", ErrInvalidDDS, magic)
	}
	var h ddsHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrInvalidDDS, err)
	}
	if h.PixelFormat.FourCC == ddsFourCCDX10 {
		return nil, fmt.Errorf("%w: DX10 extended header", ErrInvalidDDS)
	}
	if h.PixelFormat.Flags&ddsFlagRGB == 0 || h.PixelFormat.RGBBitCount != 32 {
		return nil, fmt.Errorf("%w: only uncompressed 32-bit RGB is supported", ErrInvalidDDS)
	}
	if h.Width == 0 || h.Height == 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidDDS, h.Width, h.Height)
	}

	img := &imageData{
		width:  int(h.Width),
		height: int(h.Height),
		format: device.FormatBGRA8Unorm,
	}
	pitch := int(h.PitchOrLinearSize)
	if pitch < img.width*4 {
		pitch = img.width * 4
	}
	levels := max(int(h.MipMapCount), 1)
	for i := range levels {
		mipPitch := max(pitch>>i, 4)
		mipWidth := max(img.width>>i, 1)
		mipHeight := max(img.height>>i, 1)

		raw := make([]byte, mipPitch*mipHeight)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("%w: mip %d: %v", ErrInvalidDDS, i, err)
		}
		rowBytes := mipWidth * 4
		if mipPitch == rowBytes {
			img.mips = append(img.mips, raw)
			continue
		}
		tight := make([]byte, rowBytes*mipHeight)
		for y := range mipHeight {
			copy(tight[y*rowBytes:(y+1)*rowBytes], raw[y*mipPitch:])
		}
		img.mips = append(img.mips, tight)
	}
	return img, nil
}

// decodeImage decodes any registered image codec. Gray and paletted images become single-channel
// R32F normalized to [0, 1]; everything else becomes RGBA8.
func decodeImage(data []byte) (*imageData, error) {
	if !filetype.IsImage(data) {
		kind, _ := filetype.Match(data)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, kind.Extension)
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	bounds := src.Bounds()
	img := &imageData{width: bounds.Dx(), height: bounds.Dy()}
	switch src.(type) {
	case *image.Gray, *image.Paletted:
		img.format = device.FormatR32Float
		img.mips = [][]byte{grayToFloat(src)}
	default:
		rgba := image.NewRGBA(image.Rect(0, 0, img.width, img.height))
		draw.Draw(rgba, rgba.Bounds(), src, bounds.Min, draw.Src)
		img.format = device.FormatRGBA8Unorm
		img.mips = [][]byte{rgba.Pix}
	}
	return img, nil
}

func grayToFloat(src image.Image) []byte {
	bounds := src.Bounds()
	out := make([]byte, 0, bounds.Dx()*bounds.Dy()*4)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			g := color.GrayModel.Convert(src.At(x, y)).(color.Gray)
			out = binary.LittleEndian.AppendUint32(out, math.Float32bits(float32(g.Y)/255))
		}
	}
	return out
}
