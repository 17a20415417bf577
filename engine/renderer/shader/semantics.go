package shader

import "fmt"

// ConstantID is the semantic role of a reflected uniform member. The set is closed: a shader
// declaring a member that maps to none of these fails to load.
type ConstantID int

const (
	// ConstantWorld is the object to world matrix.
	ConstantWorld ConstantID = iota
	// ConstantWorldViewProj is P * V * W.
	ConstantWorldViewProj
	// ConstantViewProj is P * V.
	ConstantViewProj
	// ConstantView is the world to view matrix.
	ConstantView
	// ConstantInvView is the inverse of the view matrix.
	ConstantInvView
	// ConstantLightViewProj is the snapshotted light view-projection used for shadow lookups.
	ConstantLightViewProj
	// ConstantInvViewLightViewProj is lightViewProj * inverse(view), taking view space into light clip space.
	ConstantInvViewLightViewProj
	// ConstantLightPosV is the active light position in view space.
	ConstantLightPosV
	// ConstantLightAmbient is the ambient colour.
	ConstantLightAmbient
	ConstantNearPlaneHeight
	ConstantNearPlaneWidth
	ConstantNearPlaneDist
	ConstantFarPlaneDist
	// ConstantProjectionRange is far / (far - near).
	ConstantProjectionRange

	constantCount
)

// semanticNames is the canonical WGSL member name of every ConstantID.
var semanticNames = [constantCount]string{
	ConstantWorld:                "world",
	ConstantWorldViewProj:        "worldViewProj",
	ConstantViewProj:             "viewProj",
	ConstantView:                 "view",
	ConstantInvView:              "invView",
	ConstantLightViewProj:        "lightViewProj",
	ConstantInvViewLightViewProj: "invViewLightViewProj",
	ConstantLightPosV:            "lightPosV",
	ConstantLightAmbient:         "lightAmbient",
	ConstantNearPlaneHeight:      "nearPlaneHeight",
	ConstantNearPlaneWidth:       "nearPlaneWidth",
	ConstantNearPlaneDist:        "nearPlaneDist",
	ConstantFarPlaneDist:         "farPlaneDist",
	ConstantProjectionRange:      "projectionRange",
}

var semanticIDs = func() map[string]ConstantID {
	ids := make(map[string]ConstantID, constantCount)
	for id, name := range semanticNames {
		ids[name] = ConstantID(id)
	}
	return ids
}()

func (id ConstantID) String() string {
	if id < 0 || id >= constantCount {
		return fmt.Sprintf("ConstantID(%d)", int(id))
	}
	return semanticNames[id]
}

// LookupConstant resolves a uniform member name to its semantic role.
//
// Parameters:
//   - name: the member name as declared in WGSL
//
// Returns:
//   - ConstantID: the semantic role
//   - bool: false if the name is not in the table
func LookupConstant(name string) (ConstantID, bool) {
	id, ok := semanticIDs[name]
	return id, ok
}

// UnknownConstantError reports a uniform member whose name is not a known semantic.
type UnknownConstantError struct {
	File     string
	Variable string
}

func (e *UnknownConstantError) Error() string {
	return fmt.Sprintf("shader %s: unknown constant %q", e.File, e.Variable)
}
