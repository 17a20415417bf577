// pre_processor.go implements the WGSL shader pre-processor. It scans shader source for
// @oxy: annotations and replaces each include with the registered WGSL struct source.
package shader

import (
	_ "embed"
	"fmt"
	"strings"
)

// MeshVertexSource is the WGSL VertexInput struct matching mesh.Vertex (32 bytes).
//
//go:embed assets/mesh_vertex.wgsl
var MeshVertexSource string

// InstanceInputSource is the WGSL InstanceInput struct matching the draw call instance record (80 bytes).
//
//go:embed assets/instance_input.wgsl
var InstanceInputSource string

// ParticleInputSource is the WGSL ParticleInput struct matching the particle instance record (32 bytes).
//
//go:embed assets/particle_input.wgsl
var ParticleInputSource string

// FrameConstantsSource is a uniform struct naming every known constant.
//
//go:embed assets/frame_constants.wgsl
var FrameConstantsSource string

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// structRegistry maps include arguments to their WGSL source.
	structRegistry map[AnnotationArg]string

	// includes records the include annotations of the most recent Process call.
	includes []Annotation
}

// PreProcessor expands @oxy: annotations in WGSL source.
type PreProcessor interface {
	// Process replaces every @oxy:include line with the registered struct source.
	// A struct type included more than once is only emitted the first time.
	//
	// Parameters:
	//   - source: the raw WGSL source
	//
	// Returns:
	//   - string: the expanded WGSL source
	//   - error: an error if any annotation is malformed or references an unknown type
	Process(source string) (string, error)

	// Includes returns the include annotations collected during the most recent Process call.
	//
	// Returns:
	//   - []Annotation: the includes in source order
	Includes() []Annotation
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the engine's struct registry.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		structRegistry: map[AnnotationArg]string{
			AnnotationArgMeshVertex:     MeshVertexSource,
			AnnotationArgInstance:       InstanceInputSource,
			AnnotationArgParticle:       ParticleInputSource,
			AnnotationArgFrameConstants: FrameConstantsSource,
		},
	}
}

func (p *preProcessor) Process(source string) (string, error) {
	p.includes = p.includes[:0]

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	seen := make(map[AnnotationArg]bool)

	for i, line := range lines {
		a, err := parseAnnotation(line, i+1)
		if err != nil {
			return "", err
		}
		if a == nil {
			out = append(out, line)
			continue
		}

		switch a.Type {
		case AnnotationTypeInclude:
			arg := a.Args[0]
			src, ok := p.structRegistry[arg]
			if !ok {
				return "", fmt.Errorf("line %d: unknown @oxy:include argument %q", i+1, arg)
			}
			p.includes = append(p.includes, *a)
			if seen[arg] {
				continue
			}
			seen[arg] = true
			out = append(out, strings.TrimRight(src, "\n"))
		default:
			return "", fmt.Errorf("line %d: unknown annotation type %q", i+1, a.Type)
		}
	}
	return strings.Join(out, "\n"), nil
}

func (p *preProcessor) Includes() []Annotation {
	return p.includes
}
