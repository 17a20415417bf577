package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-xr/common"
	"github.com/Carmen-Shannon/oxy-xr/engine/camera"
	"github.com/Carmen-Shannon/oxy-xr/engine/config"
	"github.com/Carmen-Shannon/oxy-xr/engine/profiler"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/device"
	"github.com/Carmen-Shannon/oxy-xr/engine/renderer/wgpu_device"
	"github.com/Carmen-Shannon/oxy-xr/engine/surface_mapping"
	"github.com/Carmen-Shannon/oxy-xr/engine/window"
)

// defaultTarget is the orbit target of the default camera, roughly eye height above the origin.
var defaultTarget = common.Vec3{0, 1, 0}

// ErrAlreadyRunning is returned by Run when the engine loop is already active.
var ErrAlreadyRunning = errors.New("engine: already running")

type engine struct {
	cfg    config.Config
	logger *slog.Logger

	window     window.Window
	ownsWindow bool
	dev        device.Device
	ownsDevice bool
	renderer   renderer.Renderer
	camera     camera.Camera
	source     surface_mapping.SurfaceSource
	mapping    surface_mapping.SurfaceMapping

	profiler         *profiler.Profiler
	profilingEnabled bool

	clearColor common.Vec4
	input      inputState

	tickRateChannel  chan time.Duration
	engineTickRate   time.Duration
	tickCallback     func(deltaTime float32)
	renderCallback   func(r renderer.Renderer, deltaTime float32)
	renderFrameLimit time.Duration
	lastRender       time.Time

	running     atomic.Bool
	wg          sync.WaitGroup
	quitChannel chan struct{}
	quitOnce    sync.Once
}

// Engine runs the desktop mixed-reality loop: it owns the window, the device, the render context, a
// stereo camera and, when a surface source is given, the surface mapping. Each window iteration renders
// one frame; a separate goroutine fires the tick callback at a fixed rate.
type Engine interface {
	Window() window.Window
	Device() device.Device
	Renderer() renderer.Renderer
	Camera() camera.Camera

	// SurfaceMapping returns the surface mapping, or nil without a surface source.
	SurfaceMapping() surface_mapping.SurfaceMapping

	Profiler() *profiler.Profiler

	// EnableProfiler turns on per-interval frame statistics in the log.
	EnableProfiler()

	// DisableProfiler turns the frame statistics off.
	DisableProfiler()

	// SetTickRate sets the tick callback rate in ticks per second. Takes effect immediately while
	// running.
	//
	// Parameters:
	//   - fps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each tick on the tick goroutine. It runs
	// concurrently with rendering.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called each frame between BeginFrame and EndFrame, with
	// the camera's views and projection pushed and the surfaces drawn.
	//
	// Parameters:
	//   - callback: function receiving the render context and the delta time in seconds
	SetRenderCallback(callback func(r renderer.Renderer, deltaTime float32))

	// SetRenderFrameLimit caps the frame rate.
	//
	// Parameters:
	//   - fps: maximum frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// Run starts the surface mapping and the tick goroutine, then runs the window loop on the calling
	// goroutine until the window closes, Quit is called or ctx is done. Everything the engine created is
	// released before Run returns.
	//
	// Parameters:
	//   - ctx: stops the engine when done
	//
	// Returns:
	//   - error: ErrAlreadyRunning, a start error or the joined release errors
	Run(ctx context.Context) error

	// Quit stops the engine. Safe to call more than once and from any goroutine.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates the engine. Without WithWindow it opens a GLFW window, and without WithDevice it
// creates a WebGPU device on the window's surface. Must be called from the main goroutine.
//
// Parameters:
//   - options: functional options for engine configuration
//
// Returns:
//   - Engine: the newly created engine
//   - error: a window, device or renderer creation error
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		cfg:             config.Default(),
		logger:          slog.Default(),
		clearColor:      common.Vec4{0, 0, 0, 1},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		engineTickRate:  time.Second / 60,
		input:           newInputState(),
	}
	for _, opt := range options {
		opt(e)
	}

	if e.window == nil {
		w, err := window.NewWindow(
			window.WithTitle(e.cfg.Window.Title),
			window.WithSize(e.cfg.Window.Width, e.cfg.Window.Height),
		)
		if err != nil {
			return nil, fmt.Errorf("window: %w", err)
		}
		e.window, e.ownsWindow = w, true
	}

	if e.dev == nil {
		dev, err := wgpu_device.NewDevice(e.window.SurfaceDescriptor(), e.window.Width(), e.window.Height(),
			device.WithLogger(e.logger))
		if err != nil {
			e.release()
			return nil, fmt.Errorf("device: %w", err)
		}
		e.dev, e.ownsDevice = dev, true
	}

	r, err := renderer.NewRenderer(e.dev, renderer.WithConfig(e.cfg), renderer.WithLogger(e.logger))
	if err != nil {
		e.release()
		return nil, fmt.Errorf("renderer: %w", err)
	}
	e.renderer = r
	if err := r.SetBackBufferNative(e.dev.BackBufferHandle(), common.Viewport{}); err != nil {
		e.release()
		return nil, fmt.Errorf("swap chain: %w", err)
	}

	if e.camera == nil {
		e.camera = camera.NewCamera(
			camera.WithAspect(float32(e.window.Width())/float32(e.window.Height())),
			camera.WithController(camera.NewCameraController(camera.WithTarget(defaultTarget))),
		)
	}
	if e.source != nil {
		e.mapping = surface_mapping.NewSurfaceMapping(r, e.source, surface_mapping.WithConfig(e.cfg))
	}
	e.profiler = profiler.NewProfiler(
		profiler.WithLogger(e.logger),
		profiler.WithInterval(time.Duration(e.cfg.Profiler.Interval)),
	)

	e.window.SetResizeCallback(e.resize)
	e.bindInput()
	return e, nil
}

func (e *engine) Window() window.Window                          { return e.window }
func (e *engine) Device() device.Device                          { return e.dev }
func (e *engine) Renderer() renderer.Renderer                    { return e.renderer }
func (e *engine) Camera() camera.Camera                          { return e.camera }
func (e *engine) SurfaceMapping() surface_mapping.SurfaceMapping { return e.mapping }
func (e *engine) Profiler() *profiler.Profiler                   { return e.profiler }

func (e *engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if e.mapping != nil {
		if err := e.mapping.Start(ctx); err != nil {
			e.running.Store(false)
			return fmt.Errorf("surface mapping: %w", err)
		}
	}

	e.wg.Add(2)
	go e.handleEngine()
	go func() {
		defer e.wg.Done()
		select {
		case <-ctx.Done():
			e.Quit()
		case <-e.quitChannel:
		}
	}()

	e.logger.Info("engine started", "window", e.window.Title(), "width", e.window.Width(), "height", e.window.Height())
	e.lastRender = time.Now()
	e.window.SetUpdateCallback(e.frame)
	e.window.ProcessMessages()

	e.Quit()
	e.wg.Wait()
	e.running.Store(false)
	e.logger.Info("engine stopped")
	return e.release()
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

func (e *engine) quitting() bool {
	select {
	case <-e.quitChannel:
		return true
	default:
		return false
	}
}

// handleEngine fires the tick callback at the configured rate until quit. Rate changes arrive on
// tickRateChannel.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()
	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case rate := <-e.tickRateChannel:
			ticker.Reset(rate)
		}
	}
}

// frame renders one frame on the window goroutine. A panic stops the engine instead of the process.
func (e *engine) frame() {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("render frame panicked", "panic", r)
			e.Quit()
			e.window.RequestClose()
		}
	}()

	if e.quitting() {
		e.window.RequestClose()
		return
	}

	now := time.Now()
	dt := float32(now.Sub(e.lastRender).Seconds())
	e.lastRender = now

	e.applyInput(dt)
	e.camera.Update()
	// reload errors are logged by the renderer
	_ = e.renderer.Update()
	if e.mapping != nil {
		head, _, _ := e.camera.HeadPose()
		e.mapping.Update(head)
	}

	if err := e.renderer.BeginFrame(); err != nil {
		e.logger.Warn("begin frame failed", "error", err)
		return
	}
	e.renderer.BackBuffer().Clear(e.clearColor)
	e.camera.Push(e.renderer)
	if e.mapping != nil {
		if err := e.mapping.DrawMeshes(); err != nil {
			e.logger.Warn("drawing surfaces failed", "error", err)
		}
	}
	if e.renderCallback != nil {
		e.renderCallback(e.renderer, dt)
	}
	e.camera.Pop(e.renderer)
	e.renderer.EndFrame()
	e.renderer.Present()

	if e.profilingEnabled {
		e.profiler.Tick()
	}

	if e.renderFrameLimit > 0 {
		if remaining := e.renderFrameLimit - time.Since(now); remaining > 0 {
			time.Sleep(remaining)
		}
	}
}

func (e *engine) resize(width, height int) {
	e.renderer.Resize(width, height)
	e.camera.SetAspect(float32(width) / float32(height))
}

// release frees what the engine created, in reverse order of creation.
func (e *engine) release() error {
	var errs []error
	if e.mapping != nil {
		e.mapping.Close()
		e.mapping = nil
	}
	if e.renderer != nil {
		e.renderer.Release()
		e.renderer = nil
	}
	if e.ownsDevice && e.dev != nil {
		e.dev.Release()
		e.dev = nil
	}
	if e.ownsWindow && e.window != nil {
		if err := e.window.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close window: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (e *engine) EnableProfiler()  { e.profilingEnabled = true }
func (e *engine) DisableProfiler() { e.profilingEnabled = false }

func (e *engine) SetTickRate(fps float64) {
	rate := tickRate(fps)
	if !e.running.Load() {
		e.engineTickRate = rate
		return
	}
	// replace a pending update rather than block
	select {
	case e.tickRateChannel <- rate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- rate
	}
}

func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback func(r renderer.Renderer, deltaTime float32)) {
	e.renderCallback = callback
}

func (e *engine) SetRenderFrameLimit(fps float64) {
	e.renderFrameLimit = frameLimit(fps)
}

func tickRate(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}

func frameLimit(fps float64) time.Duration {
	if fps <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / fps)
}
