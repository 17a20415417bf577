package shader

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

// wgslPrimitiveLayoutMap maps the WGSL scalar, vector and matrix types allowed in uniform blocks
// to their byte size and alignment.
//
// Reference: https://www.w3.org/TR/WGSL/#alignment-and-size
var wgslPrimitiveLayoutMap = map[string]wgslTypeLayout{
	"f32":  {4, 4},
	"i32":  {4, 4},
	"u32":  {4, 4},
	"f16":  {2, 2},
	"bool": {4, 4},

	"vec2<f32>": {8, 8},
	"vec2f":     {8, 8},
	"vec3<f32>": {12, 16},
	"vec3f":     {12, 16},
	"vec4<f32>": {16, 16},
	"vec4f":     {16, 16},

	"vec2<i32>": {8, 8},
	"vec2i":     {8, 8},
	"vec3<i32>": {12, 16},
	"vec3i":     {12, 16},
	"vec4<i32>": {16, 16},
	"vec4i":     {16, 16},

	"vec2<u32>": {8, 8},
	"vec2u":     {8, 8},
	"vec3<u32>": {12, 16},
	"vec3u":     {12, 16},
	"vec4<u32>": {16, 16},
	"vec4u":     {16, 16},

	// matCxR<f32>: C columns of vecR<f32>
	"mat2x2<f32>": {16, 8},
	"mat3x3<f32>": {48, 16},
	"mat4x4<f32>": {64, 16},
	"mat4x4f":     {64, 16},
	"mat3x3f":     {48, 16},
	"mat4x3<f32>": {64, 16},
	"mat3x4<f32>": {48, 16},
}

// uniformBlockAlign is the granularity uniform block sizes are rounded up to.
const uniformBlockAlign = 16

// roundUpAlign rounds value up to the next multiple of alignment.
// Alignment must be a power of two.
func roundUpAlign(alignment, value uint64) uint64 {
	if alignment == 0 {
		return value
	}
	return (value + alignment - 1) &^ (alignment - 1)
}

// parseArrayType splits a fixed-size array<T, N> into its element type and count.
//
// Parameters:
//   - typeName: the WGSL type name, e.g. "array<mat4x4<f32>, 2>"
//
// Returns:
//   - string: the element type
//   - int: the element count
//   - bool: false if typeName is not a fixed-size array
func parseArrayType(typeName string) (string, int, bool) {
	if !strings.HasPrefix(typeName, "array<") || !strings.HasSuffix(typeName, ">") {
		return "", 0, false
	}
	inner := typeName[len("array<") : len(typeName)-1]
	parts := splitAtTopLevelCommas(inner)
	if len(parts) != 2 {
		return "", 0, false
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || count <= 0 {
		return "", 0, false
	}
	return strings.TrimSpace(parts[0]), count, true
}

// resolveTypeLayout resolves a WGSL type name to its size and alignment using primitives,
// previously computed struct layouts and fixed-size arrays of either. Runtime-sized arrays
// cannot live in a uniform block and resolve to false.
//
// Parameters:
//   - typeName: the WGSL type name to resolve, e.g. "f32", "Constants", "array<vec4<f32>, 2>"
//   - knownTypes: a map of already-resolved struct names to their layouts
//
// Returns:
//   - wgslTypeLayout: the resolved layout
//   - bool: true if the type could be resolved
func resolveTypeLayout(typeName string, knownTypes map[string]wgslTypeLayout) (wgslTypeLayout, bool) {
	if layout, ok := wgslPrimitiveLayoutMap[typeName]; ok {
		return layout, true
	}
	if layout, ok := knownTypes[typeName]; ok {
		return layout, true
	}

	elemType, count, ok := parseArrayType(typeName)
	if !ok {
		return wgslTypeLayout{}, false
	}
	elemLayout, ok := resolveTypeLayout(elemType, knownTypes)
	if !ok {
		return wgslTypeLayout{}, false
	}
	// array elements in the uniform address space are 16-byte strided
	stride := roundUpAlign(max(elemLayout.align, uniformBlockAlign), elemLayout.size)
	return wgslTypeLayout{uint64(count) * stride, max(elemLayout.align, uniformBlockAlign)}, true
}

// computeMemberLayouts places every non-builtin field of a struct at its aligned offset.
//
// Parameters:
//   - ps: the parsed struct
//   - knownTypes: a map of already-resolved struct names to their layouts
//
// Returns:
//   - []memberLayout: the members in declaration order
//   - wgslTypeLayout: the layout of the whole struct
//   - bool: false if any field type is unknown
func computeMemberLayouts(ps parsedStruct, knownTypes map[string]wgslTypeLayout) ([]memberLayout, wgslTypeLayout, bool) {
	members := make([]memberLayout, 0, len(ps.fields))
	offset := uint64(0)
	maxAlign := uint64(1)

	for _, field := range ps.fields {
		if field.isBuiltin {
			continue
		}
		fieldLayout, ok := resolveTypeLayout(field.typeName, knownTypes)
		if !ok {
			return nil, wgslTypeLayout{}, false
		}

		offset = roundUpAlign(fieldLayout.align, offset)
		m := memberLayout{
			name:     field.name,
			typeName: field.typeName,
			offset:   offset,
			size:     fieldLayout.size,
		}
		if _, count, isArray := parseArrayType(field.typeName); isArray {
			m.elementCount = count
		}
		members = append(members, m)

		offset += fieldLayout.size
		maxAlign = max(maxAlign, fieldLayout.align)
	}

	return members, wgslTypeLayout{roundUpAlign(maxAlign, offset), maxAlign}, true
}

// computeStructSizes computes the layout of every parsed struct. Structs that embed other
// structs are resolved iteratively until no further progress is made.
//
// Parameters:
//   - structs: all parsed struct blocks from the WGSL source
//
// Returns:
//   - map[string]wgslTypeLayout: a map from struct name to computed layout
func computeStructSizes(structs []parsedStruct) map[string]wgslTypeLayout {
	resolved := make(map[string]wgslTypeLayout, len(structs))
	remaining := make([]parsedStruct, len(structs))
	copy(remaining, structs)

	for len(remaining) > 0 {
		progress := false
		next := remaining[:0]
		for _, ps := range remaining {
			if _, layout, ok := computeMemberLayouts(ps, resolved); ok {
				resolved[ps.name] = layout
				progress = true
			} else {
				next = append(next, ps)
			}
		}
		remaining = next
		if !progress {
			break
		}
	}

	return resolved
}

// classifyResource maps a parsed WGSL declaration onto the device resource kinds.
//
// Parameters:
//   - addressSpace: the address space qualifier, empty for handle types
//   - typeName: the WGSL type string (e.g. "Constants", "texture_2d<f32>", "sampler")
//
// Returns:
//   - device.ResourceKind: the resource kind
//   - bool: true for texture_2d_array and texture_depth_2d_array
//   - error: for storage buffers, storage textures and other unsupported declarations
func classifyResource(addressSpace, typeName string) (device.ResourceKind, bool, error) {
	if addressSpace != "" {
		if addressSpace == "uniform" {
			return device.ResourceUniform, false, nil
		}
		return 0, false, fmt.Errorf("unsupported address space %q", addressSpace)
	}

	base, _ := splitTypeParams(typeName)
	switch base {
	case "sampler":
		return device.ResourceSampler, false, nil
	case "sampler_comparison":
		return device.ResourceComparisonSampler, false, nil
	case "texture_2d":
		return device.ResourceTexture, false, nil
	case "texture_2d_array":
		return device.ResourceTexture, true, nil
	case "texture_depth_2d":
		return device.ResourceDepthTexture, false, nil
	case "texture_depth_2d_array":
		return device.ResourceDepthTexture, true, nil
	default:
		return 0, false, fmt.Errorf("unsupported resource type %q", typeName)
	}
}

// splitTypeParams splits a WGSL parameterized type into its base name and parameter string.
// For "texture_2d<f32>" returns ("texture_2d", "f32").
func splitTypeParams(typeName string) (base string, params string) {
	before, after, ok := strings.Cut(typeName, "<")
	if !ok {
		return typeName, ""
	}
	return before, strings.TrimSpace(strings.TrimSuffix(after, ">"))
}

// stripComments removes both single-line (//) and block (/* */) comments from WGSL source.
func stripComments(source string) string {
	return stripLineComments(stripBlockComments(source))
}

func stripLineComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	for line := range strings.SplitSeq(source, "\n") {
		if idx := strings.Index(line, "//"); idx >= 0 {
			line = line[:idx]
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// stripBlockComments removes block comments, which may nest in WGSL.
func stripBlockComments(source string) string {
	var sb strings.Builder
	sb.Grow(len(source))
	depth := 0
	for i := 0; i < len(source); {
		if i+1 < len(source) {
			switch {
			case source[i] == '/' && source[i+1] == '*':
				depth++
				i += 2
				continue
			case source[i] == '*' && source[i+1] == '/' && depth > 0:
				depth--
				i += 2
				continue
			}
		}
		if depth == 0 {
			sb.WriteByte(source[i])
		}
		i++
	}
	return sb.String()
}

// splitAtTopLevelCommas splits a string at commas that are not nested inside angle brackets,
// so array<mat4x4<f32>, 2> stays one piece.
func splitAtTopLevelCommas(s string) []string {
	var parts []string
	depth := 0
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '<':
			depth++
		case '>':
			if depth > 0 {
				depth--
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}
