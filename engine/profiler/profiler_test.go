package profiler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestProfiler(t *testing.T, buf *bytes.Buffer, opts ...ProfilerBuilderOption) (*Profiler, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Unix(1000, 0)}
	logger := slog.New(slog.NewJSONHandler(buf, nil))
	p := NewProfiler(append([]ProfilerBuilderOption{WithLogger(logger)}, opts...)...)
	p.now = clock.now
	p.lastTime = clock.t
	return p, clock
}

func TestNewProfiler_Defaults(t *testing.T) {
	p := NewProfiler(WithInterval(0), WithLogger(nil))
	assert.Equal(t, time.Second, p.Interval())
	assert.NotNil(t, p.logger)
}

func TestProfiler_Tick(t *testing.T) {
	var buf bytes.Buffer
	p, clock := newTestProfiler(t, &buf, WithInterval(500*time.Millisecond))

	for range 9 {
		clock.advance(50 * time.Millisecond)
		assert.False(t, p.Tick())
	}
	assert.Zero(t, buf.Len())

	clock.advance(50 * time.Millisecond)
	require.True(t, p.Tick())

	s := p.Last()
	assert.InDelta(t, 20, s.FPS, 1e-9)
	assert.Equal(t, 50*time.Millisecond, s.FrameTime)
	assert.Positive(t, s.HeapMB)
	assert.Positive(t, s.SysMB)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "profiler", line["msg"])
	assert.Equal(t, "20.00", line["fps"])
	assert.Contains(t, line, "gc")

	// the window restarts
	clock.advance(100 * time.Millisecond)
	assert.False(t, p.Tick())
}
