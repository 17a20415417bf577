package texture

import (
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// toImage copies mapped texel rows into an image. 8-bit colour formats become NRGBA; single-channel
// float and 8-bit formats become Gray with floats clamped to [0, 1].
func toImage(data []byte, pitch, width, height int, format device.Format) (image.Image, error) {
	rect := image.Rect(0, 0, width, height)
	switch format {
	case device.FormatRGBA8Unorm, device.FormatRGBA8UnormSrgb:
		img := image.NewNRGBA(rect)
		for y := range height {
			copy(img.Pix[y*img.Stride:y*img.Stride+width*4], data[y*pitch:])
		}
		return img, nil
	case device.FormatBGRA8Unorm, device.FormatBGRA8UnormSrgb, device.FormatBGRA8Typeless:
		img := image.NewNRGBA(rect)
		for y := range height {
			src := data[y*pitch:]
			dst := img.Pix[y*img.Stride:]
			for x := range width {
				b, g, r, a := src[x*4], src[x*4+1], src[x*4+2], src[x*4+3]
				dst[x*4], dst[x*4+1], dst[x*4+2], dst[x*4+3] = r, g, b, a
			}
		}
		return img, nil
	case device.FormatR32Float:
		img := image.NewGray(rect)
		for y := range height {
			src := data[y*pitch:]
			for x := range width {
				v := math.Float32frombits(binary.LittleEndian.Uint32(src[x*4:]))
				img.Pix[y*img.Stride+x] = uint8(math.Round(float64(min(max(v, 0), 1)) * 255))
			}
		}
		return img, nil
	case device.FormatR8Unorm, device.FormatR8Uint:
		img := image.NewGray(rect)
		for y := range height {
			copy(img.Pix[y*img.Stride:y*img.Stride+width], data[y*pitch:])
		}
		return img, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
	}
}

// writeImageFile encodes img by the extension of path: BMP, TIFF, or PNG for anything else.
func writeImageFile(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".bmp":
		err = bmp.Encode(f, img)
	case ".tif", ".tiff":
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return f.Close()
}
