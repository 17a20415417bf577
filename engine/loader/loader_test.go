package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// triangleBuffer returns three positions followed by three ushort indices, padded to 4 bytes.
func triangleBuffer() []byte {
	var b bytes.Buffer
	for _, f := range []float32{0, 0, 0, 1, 0, 0, 0, 1, 0} {
		_ = binary.Write(&b, binary.LittleEndian, math.Float32bits(f))
	}
	for _, i := range []uint16{0, 1, 2} {
		_ = binary.Write(&b, binary.LittleEndian, i)
	}
	b.Write([]byte{0, 0})
	return b.Bytes()
}

// triangleDoc builds a one-triangle document. node customizes the single scene node.
func triangleDoc(uri string, node map[string]any) map[string]any {
	if node == nil {
		node = map[string]any{}
	}
	node["mesh"] = 0
	buffer := map[string]any{"byteLength": 44}
	if uri != "" {
		buffer["uri"] = uri
	}
	return map[string]any{
		"asset":  map[string]any{"version": "2.0"},
		"scene":  0,
		"scenes": []any{map[string]any{"name": "tri-scene", "nodes": []int{0}}},
		"nodes":  []any{node},
		"meshes": []any{map[string]any{
			"name":       "tri",
			"primitives": []any{map[string]any{"attributes": map[string]int{"POSITION": 0}, "indices": 1}},
		}},
		"accessors": []any{
			map[string]any{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
			map[string]any{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"},
		},
		"bufferViews": []any{
			map[string]any{"buffer": 0, "byteOffset": 0, "byteLength": 36},
			map[string]any{"buffer": 0, "byteOffset": 36, "byteLength": 6},
		},
		"buffers": []any{buffer},
	}
}

func dataURI(b []byte) string {
	return "data:application/octet-stream;base64," + base64.StdEncoding.EncodeToString(b)
}

func marshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func glb(t *testing.T, doc map[string]any, bin []byte) []byte {
	t.Helper()
	js := marshal(t, doc)
	for len(js)%4 != 0 {
		js = append(js, ' ')
	}
	var b bytes.Buffer
	total := 12 + 8 + len(js) + 8 + len(bin)
	_ = binary.Write(&b, binary.LittleEndian, gltfGLBHeader{Magic: gltfGLBMagic, Version: 2, Length: uint32(total)})
	_ = binary.Write(&b, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(js)), ChunkType: gltfGLBChunkJSON})
	b.Write(js)
	_ = binary.Write(&b, binary.LittleEndian, gltfGLBChunkHeader{ChunkLength: uint32(len(bin)), ChunkType: gltfGLBChunkBIN})
	b.Write(bin)
	return b.Bytes()
}

func TestDecode_DataURI(t *testing.T) {
	s, err := Decode("fallback", marshal(t, triangleDoc(dataURI(triangleBuffer()), nil)), "")
	require.NoError(t, err)

	assert.Equal(t, "tri-scene", s.Name)
	require.Len(t, s.Primitives, 1)
	p := s.Primitives[0]
	assert.Equal(t, "tri", p.Name)
	assert.Equal(t, []common.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}, p.Positions)
	assert.Equal(t, []uint32{0, 1, 2}, p.Indices)
	assert.Nil(t, p.Normals)
	assert.Nil(t, p.Texcoords)
	assert.Equal(t, 1, s.TriangleCount())
}

func TestDecode_GLB(t *testing.T) {
	s, err := Decode("model", glb(t, triangleDoc("", nil), triangleBuffer()), "")
	require.NoError(t, err)
	require.Len(t, s.Primitives, 1)
	assert.Equal(t, []uint32{0, 1, 2}, s.Primitives[0].Indices)
}

func TestDecode_NodeTransforms(t *testing.T) {
	tests := []struct {
		name    string
		node    map[string]any
		second  common.Vec3
		indices []uint32
	}{
		{"translation", map[string]any{"translation": []float32{0, 0, 5}}, common.Vec3{1, 0, 5}, []uint32{0, 1, 2}},
		{"rotation", map[string]any{"rotation": []float32{0, 0, float32(math.Sqrt2 / 2), float32(math.Sqrt2 / 2)}}, common.Vec3{0, 1, 0}, []uint32{0, 1, 2}},
		{"mirror", map[string]any{"scale": []float32{-1, 1, 1}}, common.Vec3{-1, 0, 0}, []uint32{0, 2, 1}},
		{"matrix", map[string]any{"matrix": []float32{2, 0, 0, 0, 0, 2, 0, 0, 0, 0, 2, 0, 1, 0, 0, 1}}, common.Vec3{3, 0, 0}, []uint32{0, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Decode("m", marshal(t, triangleDoc(dataURI(triangleBuffer()), tt.node)), "")
			require.NoError(t, err)
			p := s.Primitives[0]
			assert.True(t, p.Positions[1].ApproxEqual(tt.second, 1e-5), "got %v", p.Positions[1])
			assert.Equal(t, tt.indices, p.Indices)
		})
	}
}

func TestDecode_ChildInheritsParent(t *testing.T) {
	doc := triangleDoc(dataURI(triangleBuffer()), nil)
	delete(doc["nodes"].([]any)[0].(map[string]any), "mesh")
	doc["nodes"].([]any)[0].(map[string]any)["translation"] = []float32{0, 2, 0}
	doc["nodes"].([]any)[0].(map[string]any)["children"] = []int{1}
	doc["nodes"] = append(doc["nodes"].([]any), map[string]any{"mesh": 0, "translation": []float32{1, 0, 0}})

	s, err := Decode("m", marshal(t, doc), "")
	require.NoError(t, err)
	assert.True(t, s.Primitives[0].Positions[0].ApproxEqual(common.Vec3{1, 2, 0}, 1e-6))
}

func TestDecode_NodeCycle(t *testing.T) {
	doc := triangleDoc(dataURI(triangleBuffer()), map[string]any{"children": []int{0}})
	_, err := Decode("m", marshal(t, doc), "")
	assert.Error(t, err)
}

func TestDecode_NoScenesImportsEveryMesh(t *testing.T) {
	doc := triangleDoc(dataURI(triangleBuffer()), nil)
	delete(doc, "scene")
	delete(doc, "scenes")
	delete(doc, "nodes")

	s, err := Decode("fallback", marshal(t, doc), "")
	require.NoError(t, err)
	assert.Equal(t, "fallback", s.Name)
	assert.Len(t, s.Primitives, 1)
}

func TestDecode_SkipsNonTriangles(t *testing.T) {
	doc := triangleDoc(dataURI(triangleBuffer()), nil)
	mesh := doc["meshes"].([]any)[0].(map[string]any)
	mesh["primitives"] = append(mesh["primitives"].([]any),
		map[string]any{"attributes": map[string]int{"POSITION": 0}, "mode": 1})

	s, err := Decode("m", marshal(t, doc), "")
	require.NoError(t, err)
	assert.Len(t, s.Primitives, 1)
	assert.Equal(t, 1, s.Skipped)
	assert.Equal(t, "tri.0", s.Primitives[0].Name)
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
		want   error
	}{
		{"version", func(doc map[string]any) { doc["asset"] = map[string]any{"version": "1.0"} }, ErrInvalidVersion},
		{"required extension", func(doc map[string]any) { doc["extensionsRequired"] = []string{"KHR_draco_mesh_compression"} }, ErrUnsupported},
		{"short buffer", func(doc map[string]any) {
			doc["buffers"] = []any{map[string]any{"byteLength": 44, "uri": dataURI([]byte{1, 2})}}
		}, ErrBufferSize},
		{"bad uri", func(doc map[string]any) {
			doc["buffers"] = []any{map[string]any{"byteLength": 0, "uri": "data:text/plain,abc"}}
		}, ErrInvalidBufferURI},
		{"accessor past view", func(doc map[string]any) {
			doc["accessors"].([]any)[0].(map[string]any)["count"] = 4
		}, ErrAccessor},
		{"index out of range", func(doc map[string]any) {
			doc["accessors"].([]any)[0].(map[string]any)["count"] = 2
			doc["bufferViews"].([]any)[0].(map[string]any)["byteLength"] = 24
		}, ErrAccessor},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := triangleDoc(dataURI(triangleBuffer()), nil)
			tt.mutate(doc)
			_, err := Decode("m", marshal(t, doc), "")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecode_InvalidGLB(t *testing.T) {
	data := glb(t, triangleDoc("", nil), triangleBuffer())
	binary.LittleEndian.PutUint32(data[4:], 1)
	_, err := Decode("m", data, "")
	assert.ErrorIs(t, err, ErrInvalidGLB)
}

func TestDecode_NormalsAndTexcoords(t *testing.T) {
	var b bytes.Buffer
	b.Write(triangleBuffer())
	for range 3 {
		for _, f := range []float32{0, 0, 1} {
			_ = binary.Write(&b, binary.LittleEndian, math.Float32bits(f))
		}
	}
	// normalized ushort texcoords
	for _, v := range []uint16{0, 0, 65535, 0, 0, 65535} {
		_ = binary.Write(&b, binary.LittleEndian, v)
	}

	doc := triangleDoc(dataURI(b.Bytes()), map[string]any{"scale": []float32{2, 2, 2}})
	doc["buffers"] = []any{map[string]any{"byteLength": b.Len(), "uri": dataURI(b.Bytes())}}
	doc["bufferViews"] = append(doc["bufferViews"].([]any),
		map[string]any{"buffer": 0, "byteOffset": 44, "byteLength": 36},
		map[string]any{"buffer": 0, "byteOffset": 80, "byteLength": 12})
	doc["accessors"] = append(doc["accessors"].([]any),
		map[string]any{"bufferView": 2, "componentType": 5126, "count": 3, "type": "VEC3"},
		map[string]any{"bufferView": 3, "componentType": 5123, "normalized": true, "count": 3, "type": "VEC2"})
	doc["meshes"].([]any)[0].(map[string]any)["primitives"] = []any{map[string]any{
		"attributes": map[string]int{"POSITION": 0, "NORMAL": 2, "TEXCOORD_0": 3},
		"indices":    1,
	}}

	s, err := Decode("m", marshal(t, doc), "")
	require.NoError(t, err)
	p := s.Primitives[0]
	require.Len(t, p.Normals, 3)
	assert.True(t, p.Normals[0].ApproxEqual(common.Vec3{0, 0, 1}, 1e-5), "normals stay unit length")
	assert.Equal(t, []common.Vec2{{0, 0}, {1, 0}, {0, 1}}, p.Texcoords)
}

func TestLoader_LoadCachesAndResolvesMediaDir(t *testing.T) {
	media := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(media, "tri.bin"), triangleBuffer(), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(media, "tri.gltf"), marshal(t, triangleDoc("tri.bin", nil)), 0o644))

	l := NewLoader(WithMediaDir(media))
	s, err := l.Load("tri.gltf")
	require.NoError(t, err)
	assert.Len(t, s.Primitives, 1)

	again, err := l.Load("tri.gltf")
	require.NoError(t, err)
	assert.Same(t, s, again)
	assert.Same(t, s, l.Get("tri.gltf"))
	assert.Len(t, l.Scenes(), 1)

	l.Evict("tri.gltf")
	assert.Nil(t, l.Get("tri.gltf"))

	_, err = l.Load("missing.glb")
	assert.Error(t, err)
	_, err = l.Load("model.fbx")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestLoader_LoadReader(t *testing.T) {
	l := NewLoader(WithLogger(nil))
	s, err := l.LoadReader("reader", strings.NewReader(string(glb(t, triangleDoc("", nil), triangleBuffer()))), "")
	require.NoError(t, err)
	assert.Same(t, s, l.Get("reader"))

	cached := &Scene{Name: "preset"}
	l = NewLoader(WithScene("preset", cached))
	got, err := l.LoadReader("preset", strings.NewReader("not json"), "")
	require.NoError(t, err)
	assert.Same(t, cached, got)
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("a/b.GLTF"))
	assert.True(t, IsSupported("x.glb"))
	assert.False(t, IsSupported("x.obj"))
}
