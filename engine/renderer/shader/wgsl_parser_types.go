package shader

import "github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"

// wgslTypeLayout holds the byte size and alignment for a WGSL type per the WGSL host-shareable layout rules.
type wgslTypeLayout struct {
	size  uint64
	align uint64
}

// parsedField represents a single field extracted from a WGSL struct during parsing
type parsedField struct {
	name      string
	typeName  string
	location  int
	isBuiltin bool
}

// parsedStruct represents a WGSL struct block extracted during parsing
type parsedStruct struct {
	name   string
	fields []parsedField
}

// memberLayout is one member of a uniform block placed at its byte offset.
type memberLayout struct {
	name     string
	typeName string
	offset   uint64
	size     uint64

	// elementCount is N for array<T, N> members and 0 otherwise.
	elementCount int
}

// parsedBinding is one @group/@binding declaration together with the WGSL type it was declared with.
type parsedBinding struct {
	binding  device.ResourceBinding
	typeName string

	// members is only filled for uniform declarations.
	members []memberLayout
}
