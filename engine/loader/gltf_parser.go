package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrInvalidVersion   = errors.New("gltf: unsupported version, must be 2.x")
	ErrInvalidGLB       = errors.New("gltf: invalid GLB container")
	ErrInvalidBufferURI = errors.New("gltf: invalid buffer URI")
	ErrBufferSize       = errors.New("gltf: buffer smaller than declared")
	ErrAccessor         = errors.New("gltf: invalid accessor")
	ErrUnsupported      = errors.New("gltf: unsupported feature")
)

// gltfFile is a parsed document with its buffers resolved.
type gltfFile struct {
	doc     *gltfDocument
	baseDir string
	bin     []byte
}

// isGLB reports whether data starts with the GLB magic.
func isGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic
}

// parseGLTF parses JSON or GLB data. External buffer URIs resolve against baseDir.
func parseGLTF(data []byte, baseDir string) (*gltfFile, error) {
	f := &gltfFile{baseDir: baseDir}
	jsonData := data
	if isGLB(data) {
		var err error
		if jsonData, f.bin, err = splitGLB(data); err != nil {
			return nil, err
		}
	}

	var doc gltfDocument
	if err := json.Unmarshal(jsonData, &doc); err != nil {
		return nil, fmt.Errorf("gltf: parse JSON: %w", err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return nil, ErrInvalidVersion
	}
	for _, ext := range doc.ExtensionsRequired {
		if ext != "KHR_mesh_quantization" {
			return nil, fmt.Errorf("%w: required extension %s", ErrUnsupported, ext)
		}
	}
	f.doc = &doc
	if err := f.loadBuffers(); err != nil {
		return nil, err
	}
	return f, nil
}

// splitGLB returns the JSON and BIN chunks of a GLB container.
func splitGLB(data []byte) (jsonChunk, binChunk []byte, err error) {
	r := bytes.NewReader(data)
	var header gltfGLBHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", ErrInvalidGLB, err)
	}
	if header.Version != gltfGLBVersion {
		return nil, nil, fmt.Errorf("%w: version %d", ErrInvalidGLB, header.Version)
	}

	for {
		var ch gltfGLBChunkHeader
		if err := binary.Read(r, binary.LittleEndian, &ch); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, nil, fmt.Errorf("%w: chunk header: %v", ErrInvalidGLB, err)
		}
		if int64(ch.ChunkLength) > int64(r.Len()) {
			return nil, nil, fmt.Errorf("%w: chunk length %d exceeds file", ErrInvalidGLB, ch.ChunkLength)
		}
		chunk := make([]byte, ch.ChunkLength)
		if _, err := io.ReadFull(r, chunk); err != nil {
			return nil, nil, fmt.Errorf("%w: chunk data: %v", ErrInvalidGLB, err)
		}
		switch ch.ChunkType {
		case gltfGLBChunkJSON:
			jsonChunk = chunk
		case gltfGLBChunkBIN:
			binChunk = chunk
		}
	}
	if jsonChunk == nil {
		return nil, nil, fmt.Errorf("%w: missing JSON chunk", ErrInvalidGLB)
	}
	return jsonChunk, binChunk, nil
}

// loadBuffers fills every buffer from a data URI, a file next to the document or the GLB BIN chunk.
func (f *gltfFile) loadBuffers() error {
	for i := range f.doc.Buffers {
		buf := &f.doc.Buffers[i]
		switch {
		case buf.URI == "" && i == 0 && f.bin != nil:
			buf.Data = f.bin
		case buf.URI == "":
			return fmt.Errorf("%w: buffer %d has no data", ErrInvalidBufferURI, i)
		case strings.HasPrefix(buf.URI, "data:"):
			data, err := decodeDataURI(buf.URI)
			if err != nil {
				return fmt.Errorf("buffer %d: %w", i, err)
			}
			buf.Data = data
		default:
			data, err := os.ReadFile(filepath.Join(f.baseDir, filepath.FromSlash(buf.URI)))
			if err != nil {
				return fmt.Errorf("gltf: buffer %d: %w", i, err)
			}
			buf.Data = data
		}
		if len(buf.Data) < buf.ByteLength {
			return fmt.Errorf("%w: buffer %d has %d of %d bytes", ErrBufferSize, i, len(buf.Data), buf.ByteLength)
		}
	}
	return nil
}

// decodeDataURI decodes data:[<mediatype>];base64,<data>.
func decodeDataURI(uri string) ([]byte, error) {
	comma := strings.IndexByte(uri, ',')
	if comma < 0 || !strings.HasSuffix(uri[:comma], ";base64") {
		return nil, ErrInvalidBufferURI
	}
	data, err := base64.StdEncoding.DecodeString(uri[comma+1:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBufferURI, err)
	}
	return data, nil
}

// accessorElements returns the raw bytes of each element of an accessor, honouring the buffer view
// stride.
func (f *gltfFile) accessorElements(index int) (*gltfAccessor, [][]byte, error) {
	if index < 0 || index >= len(f.doc.Accessors) {
		return nil, nil, fmt.Errorf("%w: index %d out of range", ErrAccessor, index)
	}
	acc := &f.doc.Accessors[index]
	if acc.Sparse != nil {
		return nil, nil, fmt.Errorf("%w: sparse accessor %d", ErrUnsupported, index)
	}
	if acc.BufferView == nil || *acc.BufferView < 0 || *acc.BufferView >= len(f.doc.BufferViews) {
		return nil, nil, fmt.Errorf("%w: accessor %d has no buffer view", ErrAccessor, index)
	}
	bv := &f.doc.BufferViews[*acc.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(f.doc.Buffers) {
		return nil, nil, fmt.Errorf("%w: buffer view %d references buffer %d", ErrAccessor, *acc.BufferView, bv.Buffer)
	}
	data := f.doc.Buffers[bv.Buffer].Data

	size := componentSize(acc.ComponentType) * componentCount(acc.Type)
	if size == 0 {
		return nil, nil, fmt.Errorf("%w: accessor %d has type %s/%d", ErrAccessor, index, acc.Type, acc.ComponentType)
	}
	stride := size
	if bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}
	start := bv.ByteOffset + acc.ByteOffset
	if acc.Count > 0 {
		end := start + (acc.Count-1)*stride + size
		if end > len(data) || end > bv.ByteOffset+bv.ByteLength {
			return nil, nil, fmt.Errorf("%w: accessor %d reads past its buffer view", ErrAccessor, index)
		}
	}

	out := make([][]byte, acc.Count)
	for i := range out {
		off := start + i*stride
		out[i] = data[off : off+size]
	}
	return acc, out, nil
}

// readFloats reads an accessor of the given type as float32 components, decoding normalized integer
// components into [0, 1] or [-1, 1].
func (f *gltfFile) readFloats(index int, accessorType string) ([]float32, error) {
	acc, elems, err := f.accessorElements(index)
	if err != nil {
		return nil, err
	}
	if acc.Type != accessorType {
		return nil, fmt.Errorf("%w: accessor %d is %s, want %s", ErrAccessor, index, acc.Type, accessorType)
	}
	n := componentCount(accessorType)
	csize := componentSize(acc.ComponentType)
	out := make([]float32, 0, len(elems)*n)
	for _, e := range elems {
		for c := range n {
			out = append(out, decodeComponent(e[c*csize:], acc.ComponentType, acc.Normalized))
		}
	}
	return out, nil
}

// readIndices reads a SCALAR unsigned accessor as uint32 indices.
func (f *gltfFile) readIndices(index int) ([]uint32, error) {
	acc, elems, err := f.accessorElements(index)
	if err != nil {
		return nil, err
	}
	if acc.Type != gltfAccessorTypeScalar {
		return nil, fmt.Errorf("%w: index accessor %d is %s", ErrAccessor, index, acc.Type)
	}
	out := make([]uint32, len(elems))
	for i, e := range elems {
		switch acc.ComponentType {
		case gltfComponentTypeUnsignedByte:
			out[i] = uint32(e[0])
		case gltfComponentTypeUnsignedShort:
			out[i] = uint32(binary.LittleEndian.Uint16(e))
		case gltfComponentTypeUnsignedInt:
			out[i] = binary.LittleEndian.Uint32(e)
		default:
			return nil, fmt.Errorf("%w: index component type %d", ErrAccessor, acc.ComponentType)
		}
	}
	return out, nil
}

func decodeComponent(b []byte, componentType int, normalized bool) float32 {
	switch componentType {
	case gltfComponentTypeFloat:
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	case gltfComponentTypeByte:
		v := float32(int8(b[0]))
		if normalized {
			return max(v/127, -1)
		}
		return v
	case gltfComponentTypeUnsignedByte:
		v := float32(b[0])
		if normalized {
			return v / 255
		}
		return v
	case gltfComponentTypeShort:
		v := float32(int16(binary.LittleEndian.Uint16(b)))
		if normalized {
			return max(v/32767, -1)
		}
		return v
	case gltfComponentTypeUnsignedShort:
		v := float32(binary.LittleEndian.Uint16(b))
		if normalized {
			return v / 65535
		}
		return v
	case gltfComponentTypeUnsignedInt:
		return float32(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func componentSize(componentType int) int {
	switch componentType {
	case gltfComponentTypeByte, gltfComponentTypeUnsignedByte:
		return 1
	case gltfComponentTypeShort, gltfComponentTypeUnsignedShort:
		return 2
	case gltfComponentTypeUnsignedInt, gltfComponentTypeFloat:
		return 4
	}
	return 0
}

func componentCount(accessorType string) int {
	switch accessorType {
	case gltfAccessorTypeScalar:
		return 1
	case gltfAccessorTypeVec2:
		return 2
	case gltfAccessorTypeVec3:
		return 3
	case gltfAccessorTypeVec4:
		return 4
	}
	return 0
}
