package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAABB_IntersectsRay(t *testing.T) {
	box := AABBFromMinMax(Vec3{-1, -1, -1}, Vec3{1, 1, 1})

	tests := []struct {
		name   string
		origin Vec3
		dir    Vec3
		hit    bool
		dist   float32
	}{
		{name: "hits front face", origin: Vec3{0, 0, -5}, dir: Vec3{0, 0, 1}, hit: true, dist: 4},
		{name: "unnormalized direction", origin: Vec3{0, 0, -5}, dir: Vec3{0, 0, 2}, hit: true, dist: 2},
		{name: "origin inside", origin: Vec3{0.5, 0, 0}, dir: Vec3{1, 0, 0}, hit: true, dist: 0},
		{name: "parallel outside slab", origin: Vec3{2, 0, -5}, dir: Vec3{0, 0, 1}, hit: false},
		{name: "pointing away", origin: Vec3{0, 0, -5}, dir: Vec3{0, 0, -1}, hit: false},
		{name: "diagonal miss", origin: Vec3{0, 3, -5}, dir: Vec3{0, 0.1, 1}, hit: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, hit := box.IntersectsRay(tt.origin, tt.dir, 0)
			assert.Equal(t, tt.hit, hit)
			if tt.hit {
				assert.InDelta(t, tt.dist, dist, 1e-5)
			}
		})
	}
}

func TestAABB_IntersectsRayEpsilonGrowsBox(t *testing.T) {
	box := AABBFromMinMax(Vec3{-1, -1, -1}, Vec3{1, 1, 1})
	origin := Vec3{1.00005, 0, -5}

	_, hit := box.IntersectsRay(origin, Vec3{0, 0, 1}, 0)
	assert.False(t, hit)

	dist, hit := box.IntersectsRay(origin, Vec3{0, 0, 1}, IntersectEpsilon)
	assert.True(t, hit)
	assert.InDelta(t, 4-IntersectEpsilon, dist, 1e-4)
}
