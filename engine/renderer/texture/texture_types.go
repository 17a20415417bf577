package texture

import (
	"errors"
	"fmt"
)

// DefaultMediaDir is searched for texture files that do not exist at the given path.
const DefaultMediaDir = "Media/Textures"

var (
	// ErrReleased is returned by operations on a texture after Reset.
	ErrReleased = errors.New("texture: released")

	// ErrUnsupportedFormat is returned when a CPU operation meets a format with no byte layout.
	ErrUnsupportedFormat = errors.New("texture: unsupported format")

	// ErrDataTooSmall is returned by UploadData when fewer than width*height texels are supplied.
	ErrDataTooSmall = errors.New("texture: data too small")

	// ErrUnsupportedImage is returned for files that are neither DDS nor a decodable image.
	ErrUnsupportedImage = errors.New("texture: unsupported image")

	// ErrInvalidDDS is returned for DDS files with a bad magic number, a DX10 header or a non-RGB layout.
	ErrInvalidDDS = errors.New("texture: invalid dds")
)

// MapType selects the direction of CPU access granted by Map.
type MapType int

const (
	// MapRead copies the GPU texture into the staging copy before mapping.
	MapRead MapType = iota
	// MapWrite copies the staging copy back into the GPU texture after the last Unmap.
	MapWrite
	// MapReadWrite does both.
	MapReadWrite
)

func (m MapType) String() string {
	switch m {
	case MapRead:
		return "read"
	case MapWrite:
		return "write"
	case MapReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("map(%d)", int(m))
	}
}

func (m MapType) reads() bool  { return m == MapRead || m == MapReadWrite }
func (m MapType) writes() bool { return m == MapWrite || m == MapReadWrite }
