package mesh

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/common"
)

// objDecoder accumulates the attribute pools of an OBJ stream and assembles deduplicated vertices
// from face triples.
type objDecoder struct {
	line      int
	positions []common.Vec3
	normals   []common.Vec3
	texcoords []common.Vec2

	known    map[[3]int]uint32
	vertices []Vertex
	indices  []uint32
}

// decodeOBJ reads positions (v), normals (vn), texcoords (vt) and triangular faces (f) from r.
// Texture v is flipped to top-down and triangle winding is reversed to clockwise. Other statements
// (o, g, s, usemtl, mtllib) are ignored.
func decodeOBJ(r io.Reader) ([]Vertex, []uint32, error) {
	dec := &objDecoder{known: make(map[[3]int]uint32)}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		dec.line++
		if err := dec.parseLine(scanner.Text()); err != nil {
			return nil, nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return dec.vertices, dec.indices, nil
}

func (dec *objDecoder) parseLine(line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return nil
	}
	switch fields[0] {
	case "v":
		v, err := dec.parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.positions = append(dec.positions, common.Vec3{v[0], v[1], v[2]})
	case "vn":
		v, err := dec.parseFloats(fields[1:], 3)
		if err != nil {
			return err
		}
		dec.normals = append(dec.normals, common.Vec3{v[0], v[1], v[2]})
	case "vt":
		v, err := dec.parseFloats(fields[1:], 2)
		if err != nil {
			return err
		}
		dec.texcoords = append(dec.texcoords, common.Vec2{v[0], 1 - v[1]})
	case "f":
		return dec.parseFace(fields[1:])
	}
	return nil
}

func (dec *objDecoder) parseFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, dec.errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := range out {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, dec.errorf("%v", err)
		}
		out[i] = float32(f)
	}
	return out, nil
}

// parseFace parses "f p/t/n p/t/n p/t/n". Indices are 1-based and 0 or an empty field means unset.
func (dec *objDecoder) parseFace(fields []string) error {
	if len(fields) != 3 {
		return fmt.Errorf("%w: line %d has %d vertices", ErrNonTriangularFace, dec.line, len(fields))
	}
	var tri [3]uint32
	for i, field := range fields {
		idx, err := dec.faceVertex(field)
		if err != nil {
			return err
		}
		tri[i] = idx
	}
	dec.indices = append(dec.indices, tri[2], tri[1], tri[0])
	return nil
}

func (dec *objDecoder) faceVertex(field string) (uint32, error) {
	var key [3]int
	for i, part := range strings.SplitN(field, "/", 3) {
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return 0, dec.errorf("face index %q: %v", part, err)
		}
		key[i] = n
	}
	if idx, ok := dec.known[key]; ok {
		return idx, nil
	}

	var v Vertex
	p, t, n := key[0], key[1], key[2]
	if p < 1 || p > len(dec.positions) {
		return 0, fmt.Errorf("%w: line %d position %d", ErrIndexOutOfRange, dec.line, p)
	}
	v.Position = dec.positions[p-1]
	if t != 0 {
		if t < 1 || t > len(dec.texcoords) {
			return 0, fmt.Errorf("%w: line %d texcoord %d", ErrIndexOutOfRange, dec.line, t)
		}
		v.Texcoord = dec.texcoords[t-1]
	}
	if n != 0 {
		if n < 1 || n > len(dec.normals) {
			return 0, fmt.Errorf("%w: line %d normal %d", ErrIndexOutOfRange, dec.line, n)
		}
		v.Normal = dec.normals[n-1]
	}

	idx := uint32(len(dec.vertices))
	dec.vertices = append(dec.vertices, v)
	dec.known[key] = idx
	return idx, nil
}

func (dec *objDecoder) errorf(format string, args ...any) error {
	return fmt.Errorf("obj line %d: %s", dec.line, fmt.Sprintf(format, args...))
}

// encodeOBJ writes one v, vt and vn entry per vertex and one face per triangle with the winding
// reversed back to counter-clockwise, so decodeOBJ restores the original winding.
func encodeOBJ(w io.Writer, vertices []Vertex, indices []uint32) error {
	if len(indices)%3 != 0 {
		return errors.New("obj: index count is not a multiple of 3")
	}
	bw := bufio.NewWriter(w)
	for _, v := range vertices {
		fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(v.Position[0]), formatFloat(v.Position[1]), formatFloat(v.Position[2]))
	}
	for _, v := range vertices {
		fmt.Fprintf(bw, "vt %s %s\n", formatFloat(v.Texcoord[0]), formatFloat(1-v.Texcoord[1]))
	}
	for _, v := range vertices {
		fmt.Fprintf(bw, "vn %s %s %s\n", formatFloat(v.Normal[0]), formatFloat(v.Normal[1]), formatFloat(v.Normal[2]))
	}
	for i := 0; i < len(indices); i += 3 {
		a, b, c := indices[i]+1, indices[i+1]+1, indices[i+2]+1
		fmt.Fprintf(bw, "f %d/%d/%d %d/%d/%d %d/%d/%d\n", c, c, c, b, b, b, a, a, a)
	}
	return bw.Flush()
}

func formatFloat(f float32) string {
	return strconv.FormatFloat(float64(f), 'g', -1, 32)
}
