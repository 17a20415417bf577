package wgpu_device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUsedByRecordedDraw_TracksEncoderGeneration(t *testing.T) {
	d := &wgpuDeviceImpl{encoderGen: 1}
	constants := &gpuBuffer{label: "constants"}
	instances := &gpuBuffer{label: "instances"}

	assert.False(t, d.usedByRecordedDraw(constants), "a fresh buffer can be written in place")

	d.markUsed(constants, nil)
	assert.True(t, d.usedByRecordedDraw(constants), "a write after a draw must submit that draw first")
	assert.False(t, d.usedByRecordedDraw(instances))

	// flushing or starting a frame moves to a new encoder
	d.encoderGen++
	assert.False(t, d.usedByRecordedDraw(constants))
}
