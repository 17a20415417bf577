// annotations.go defines the annotation syntax understood by the shader pre-processor.
// Annotations are single-line WGSL comments prefixed with @oxy: that splice engine-owned
// WGSL declarations into a shader, so vertex input structs always match the buffers the
// mesh and draw call bind.
package shader

import (
	"fmt"
	"slices"
	"strings"
)

// annotationPrefix is the marker that identifies an annotation within a WGSL comment line.
const annotationPrefix = "@oxy:"

// AnnotationType identifies the kind of annotation parsed from a WGSL comment line.
type AnnotationType string

const (
	// AnnotationTypeInclude injects the WGSL source of a registered struct at the annotation site.
	//
	// Syntax: //@oxy:include <struct_type>
	//
	// Example: //@oxy:include mesh_vertex
	AnnotationTypeInclude AnnotationType = "include"
)

// AnnotationArg is one argument of an annotation.
type AnnotationArg string

const (
	// AnnotationArgMeshVertex is the per-vertex input (locations 0 to 2).
	AnnotationArgMeshVertex AnnotationArg = "mesh_vertex"

	// AnnotationArgInstance is the per-instance world matrix and colour (locations 3 to 7).
	AnnotationArgInstance AnnotationArg = "instance"

	// AnnotationArgParticle is the per-instance translation/scale and colour (locations 3 and 4).
	AnnotationArgParticle AnnotationArg = "particle"

	// AnnotationArgFrameConstants is a uniform struct holding every known constant.
	AnnotationArgFrameConstants AnnotationArg = "frame_constants"
)

var validStructTypes = []AnnotationArg{
	AnnotationArgMeshVertex,
	AnnotationArgInstance,
	AnnotationArgParticle,
	AnnotationArgFrameConstants,
}

// Annotation is one parsed annotation line.
type Annotation struct {
	Type AnnotationType
	Args []AnnotationArg

	// Line is 1-based.
	Line int
}

// parseAnnotation parses a single line of WGSL source. Lines without the annotation prefix
// return nil without error.
//
// Parameters:
//   - line: the source line
//   - lineNum: the 1-based line number for error reporting
//
// Returns:
//   - *Annotation: the parsed annotation, or nil if the line is not an annotation
//   - error: a descriptive error if the annotation is malformed
func parseAnnotation(line string, lineNum int) (*Annotation, error) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "//") {
		return nil, nil
	}
	_, after, ok := strings.Cut(trimmed, annotationPrefix)
	if !ok {
		return nil, nil
	}

	args := strings.Fields(after)
	if len(args) == 0 {
		return nil, fmt.Errorf("line %d: empty @oxy annotation", lineNum)
	}

	switch AnnotationType(args[0]) {
	case AnnotationTypeInclude:
		if len(args) != 2 {
			return nil, fmt.Errorf("line %d: @oxy include annotation requires exactly one argument", lineNum)
		}
		if !slices.Contains(validStructTypes, AnnotationArg(args[1])) {
			return nil, fmt.Errorf("line %d: unknown struct type %q in @oxy include annotation", lineNum, args[1])
		}
		return &Annotation{
			Type: AnnotationTypeInclude,
			Args: []AnnotationArg{AnnotationArg(args[1])},
			Line: lineNum,
		}, nil
	default:
		return nil, fmt.Errorf("line %d: unknown @oxy annotation type %q", lineNum, args[0])
	}
}
