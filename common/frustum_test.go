package common

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
)

func TestExtractFrustum(t *testing.T) {
	view := LookAtRH(Vec3{0, 0, 5}, Vec3{}, Vec3{0, 1, 0})
	proj := PerspectiveRH(math32.Pi/2, 1, 1, 10)
	f := ExtractFrustum(Mul4(proj, view))

	assert.True(t, f.ContainsPoint(Vec3{}))
	assert.True(t, f.ContainsPoint(Vec3{0, 0, 3.5}))
	assert.False(t, f.ContainsPoint(Vec3{0, 0, 4.5}), "in front of the near plane")
	assert.False(t, f.ContainsPoint(Vec3{0, 0, -6}), "beyond the far plane")
	assert.False(t, f.ContainsPoint(Vec3{6, 0, 0}))

	near := f.Planes[FrustumNear]
	assert.InDelta(t, 1, near.Normal.Length(), 1e-5)
	assert.InDelta(t, 0, near.SignedDistance(Vec3{0, 0, 4}), 1e-4)
	assert.InDelta(t, 0, f.Planes[FrustumFar].SignedDistance(Vec3{0, 0, -5}), 1e-3)
}

func TestFrustum_IntersectsAABB(t *testing.T) {
	f := ExtractFrustum(Mul4(PerspectiveRH(math32.Pi/2, 1, 1, 10), LookAtRH(Vec3{0, 0, 5}, Vec3{}, Vec3{0, 1, 0})))

	tests := []struct {
		name string
		box  AABB
		want bool
	}{
		{"inside", AABBFromMinMax(Vec3{-1, -1, -1}, Vec3{1, 1, 1}), true},
		{"straddles left plane", AABBFromMinMax(Vec3{-8, -1, -1}, Vec3{-4, 1, 1}), true},
		{"fully left", AABBFromMinMax(Vec3{-20, -1, -1}, Vec3{-10, 1, 1}), false},
		{"behind camera", AABBFromMinMax(Vec3{-1, -1, 6}, Vec3{1, 1, 8}), false},
		{"past far", AABBFromMinMax(Vec3{-1, -1, -20}, Vec3{1, 1, -12}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.IntersectsAABB(tt.box))
		})
	}
}
