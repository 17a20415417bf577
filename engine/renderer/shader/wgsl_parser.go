package shader

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
)

var (
	// structBlockRegex matches struct declarations and captures the name and body
	structBlockRegex = regexp.MustCompile(`struct\s+(\w+)\s*\{([^}]*)\}`)

	// locationRegex matches @location(N) attributes
	locationRegex = regexp.MustCompile(`@location\((\d+)\)`)

	// builtinRegex matches @builtin(...) attributes
	builtinRegex = regexp.MustCompile(`@builtin\(\w+\)`)

	// fieldRegex matches a struct field: optional attributes, name, colon, type.
	// The type capture is greedy so array<T, N> survives intact.
	fieldRegex = regexp.MustCompile(`(?:(?:@\w+\([^)]*\)\s*)*)*\s*(\w+)\s*:\s*(.+)`)

	vertexEntryRegex   = regexp.MustCompile(`(?s)@vertex\b.*?\bfn\s+(\w+)`)
	fragmentEntryRegex = regexp.MustCompile(`(?s)@fragment\b.*?\bfn\s+(\w+)`)

	// bindGroupDeclRegex captures group, binding, optional address space, variable name, and type
	// from declarations like: @group(0) @binding(0) var<uniform> constants: Constants;
	// or handle types: @group(0) @binding(1) var diffuse: texture_2d<f32>;
	bindGroupDeclRegex = regexp.MustCompile(`@group\((\d+)\)\s*@binding\((\d+)\)\s*var(?:<([^>]*)>)?\s+(\w+)\s*:\s*([^;]+?)\s*;`)
)

// parseBindings extracts every @group/@binding declaration from WGSL source in declaration order.
// Uniform declarations are laid out: a struct-typed uniform contributes one member per field, any
// other type contributes a single member named after the variable. Uniform block sizes are
// rounded up to 16 bytes.
//
// Parameters:
//   - source: the pre-processed WGSL source
//
// Returns:
//   - []parsedBinding: the declarations in source order
//   - error: if a declaration uses an unsupported resource type or an unresolvable uniform type
func parseBindings(source string) ([]parsedBinding, error) {
	cleaned := stripComments(source)
	structs := parseStructBlocks(cleaned)
	structSizes := computeStructSizes(structs)
	byName := make(map[string]parsedStruct, len(structs))
	for _, ps := range structs {
		byName[ps.name] = ps
	}

	matches := bindGroupDeclRegex.FindAllStringSubmatch(cleaned, -1)
	bindings := make([]parsedBinding, 0, len(matches))
	for _, match := range matches {
		group, _ := strconv.ParseUint(match[1], 10, 32)
		binding, _ := strconv.ParseUint(match[2], 10, 32)
		addressSpace := strings.TrimSpace(match[3])
		varName := strings.TrimSpace(match[4])
		typeName := strings.TrimSpace(match[5])

		kind, array, err := classifyResource(addressSpace, typeName)
		if err != nil {
			return nil, fmt.Errorf("binding %q: %w", varName, err)
		}

		pb := parsedBinding{
			binding: device.ResourceBinding{
				Name:    varName,
				Group:   uint32(group),
				Binding: uint32(binding),
				Kind:    kind,
				Array:   array,
			},
			typeName: typeName,
		}

		if kind == device.ResourceUniform {
			members, size, err := uniformMembers(varName, typeName, byName, structSizes)
			if err != nil {
				return nil, err
			}
			pb.members = members
			pb.binding.Size = roundUpAlign(uniformBlockAlign, size)
		}
		bindings = append(bindings, pb)
	}

	return bindings, nil
}

// uniformMembers lays out the contents of one uniform declaration.
func uniformMembers(varName, typeName string, structs map[string]parsedStruct, structSizes map[string]wgslTypeLayout) ([]memberLayout, uint64, error) {
	if ps, ok := structs[typeName]; ok {
		members, layout, ok := computeMemberLayouts(ps, structSizes)
		if !ok {
			return nil, 0, fmt.Errorf("uniform %q: struct %s has a member of unknown type", varName, typeName)
		}
		return members, layout.size, nil
	}

	layout, ok := resolveTypeLayout(typeName, structSizes)
	if !ok {
		return nil, 0, fmt.Errorf("uniform %q: unknown type %s", varName, typeName)
	}
	m := memberLayout{name: varName, typeName: typeName, size: layout.size}
	if _, count, isArray := parseArrayType(typeName); isArray {
		m.elementCount = count
	}
	return []memberLayout{m}, layout.size, nil
}

// parseEntryPoint extracts the entry point function name for the given stage from WGSL source.
// Geometry has no WGSL attribute and always yields an empty string, as does a missing entry point.
//
// Parameters:
//   - source: the WGSL source
//   - stage: the shader stage to search for
//
// Returns:
//   - string: the entry point function name, or empty string if not found
func parseEntryPoint(source string, stage device.Stage) string {
	cleaned := stripComments(source)

	var re *regexp.Regexp
	switch stage {
	case device.StageVertex, device.StageVertexSPS:
		re = vertexEntryRegex
	case device.StagePixel:
		re = fragmentEntryRegex
	default:
		return ""
	}

	if match := re.FindStringSubmatch(cleaned); match != nil {
		return match[1]
	}
	return ""
}

// parseStructBlocks finds all struct { ... } blocks in the cleaned WGSL source
// and parses their fields including @location and @builtin attributes
//
// Parameters:
//   - source: WGSL source with comments already stripped
//
// Returns:
//   - []parsedStruct: all struct blocks found in the source
func parseStructBlocks(source string) []parsedStruct {
	matches := structBlockRegex.FindAllStringSubmatch(source, -1)
	structs := make([]parsedStruct, 0, len(matches))
	for _, match := range matches {
		structs = append(structs, parsedStruct{
			name:   match[1],
			fields: parseStructFields(match[2]),
		})
	}
	return structs
}

// parseStructFields parses the body of a struct block into individual fields
func parseStructFields(body string) []parsedField {
	lines := splitAtTopLevelCommas(body)
	fields := make([]parsedField, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field := parsedField{location: -1}
		field.isBuiltin = builtinRegex.MatchString(line)
		if locMatch := locationRegex.FindStringSubmatch(line); locMatch != nil {
			if loc, err := strconv.Atoi(locMatch[1]); err == nil {
				field.location = loc
			}
		}

		fm := fieldRegex.FindStringSubmatch(line)
		if fm == nil {
			continue
		}
		field.name = fm[1]
		field.typeName = strings.TrimSpace(fm[2])
		fields = append(fields, field)
	}

	return fields
}
