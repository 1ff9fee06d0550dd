package app

import (
	"github.com/gekko3d/fluid"
	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/gekko3d/fluid/fluidrt/rt/gpu"
	"github.com/gekko3d/fluid/fluidrt/rt/pipeline"
	"github.com/gekko3d/fluid/fluidrt/rt/sim"
	"github.com/gekko3d/fluid/fluidrt/rt/webgpu"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"
)

type App struct {
	Window   *glfw.Window
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	FluidConfig fluid.Config
	SimConfig   sim.Config
	Log         fluid.Logger
	// root is the logger components derive their own loggers from.
	root fluid.Logger

	Backend  *webgpu.Device
	Renderer *fluid.Renderer
	Sim      *sim.Sim
	Profiler *pipeline.Profiler

	// Orbit camera around the tank.
	Target   mgl32.Vec3
	Yaw      float32
	Pitch    float32
	Distance float32

	Paused    bool
	DebugMode bool

	LastRenderTime float64
	LastStepTime   float64
	FrameCount     int
	FPS            float64
	FPSTime        float64
}

func NewApp(window *glfw.Window, cfg fluid.Config, simCfg sim.Config, log fluid.Logger) *App {
	return &App{
		Window:      window,
		FluidConfig: cfg,
		SimConfig:   simCfg,
		Log:         fluid.Named(log, "app"),
		root:        log,
		Profiler:    pipeline.NewProfiler(),
		Target:      mgl32.Vec3{0, 0.6, 0},
		Yaw:         0.3,
		Pitch:       -0.35,
		Distance:    4,
	}
}

func (a *App) Init() error {
	// WebGPU Init
	a.Instance = wgpu.CreateInstance(nil)

	surface := a.Instance.CreateSurface(GetSurfaceDescriptor(a.Window))
	a.Surface = surface

	adapter, err := a.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return err
	}
	a.Adapter = adapter

	a.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		return err
	}
	a.Queue = a.Device.GetQueue()

	// Config
	width, height := a.Window.GetFramebufferSize()
	caps := surface.GetCapabilities(adapter)
	format := caps.Formats[0]

	a.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      format,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo,
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, a.Device, a.Config)

	// The renderer runs at the framebuffer resolution.
	a.FluidConfig.Screen.Width, a.FluidConfig.Screen.Height = width, height

	a.Backend, err = webgpu.NewDevice(a.Device, surface, format, width, height, fluid.Named(a.root, "webgpu"))
	if err != nil {
		return err
	}
	a.Renderer, err = fluid.NewRenderer(a.Backend, a.FluidConfig, a.root)
	if err != nil {
		return err
	}
	a.Renderer.Pipeline().SetScopes(a.Profiler)

	a.SimConfig.Radius = a.FluidConfig.Water.Radius
	a.Sim = sim.New(a.SimConfig)
	if err := a.Renderer.InitGeometry(a.Sim.NumParticles(), a.Sim.MaxDiffuse(), a.Sim.Triangles()); err != nil {
		return err
	}
	a.Log.Infof("%d particles (%d cloth), %d diffuse max, %dx%d %v",
		a.Sim.NumParticles(), a.Sim.NumCloth(), a.Sim.MaxDiffuse(), width, height, format)
	return nil
}

// Update advances the simulation and hands its buffers to the renderer.
func (a *App) Update() {
	now := glfw.GetTime()
	dt := float32(now - a.LastStepTime)
	a.LastStepTime = now
	if dt > 1.0/30 {
		dt = 1.0 / 30
	}
	if !a.Paused {
		a.Sim.Step(dt)
	}

	bridge := a.Renderer.Bridge()
	writes := []struct {
		tok  gpu.Token
		data []float32
	}{
		{a.Renderer.PositionsToken(), a.Sim.Positions()},
		{a.Renderer.DiffusePositionsToken(), a.Sim.DiffusePositions()},
		{a.Renderer.DiffuseVelocitiesToken(), a.Sim.DiffuseVelocities()},
	}
	for _, w := range writes {
		if len(w.data) == 0 {
			continue
		}
		if err := bridge.Write(w.tok, 0, w.data); err != nil {
			a.Log.Errorf("%v", err)
			continue
		}
		if _, err := bridge.Publish(w.tok); err != nil {
			a.Log.Errorf("%v", err)
		}
	}
}

func (a *App) Camera() *core.CameraState {
	return core.Orbit(a.Target, a.Distance, a.Yaw, a.Pitch, a.FluidConfig.FOVRadians())
}

func (a *App) Render() {
	err := a.Renderer.Render(a.Sim.NumParticles(), a.Sim.NumDiffuse(), a.Sim.NumCloth(), a.Sim.Triangles(), a.Camera())
	if err != nil {
		a.Log.Errorf("render: %v", err)
		return
	}

	// Update FPS
	now := glfw.GetTime()
	if a.LastRenderTime > 0 {
		a.FrameCount++
		a.FPSTime += now - a.LastRenderTime
		if a.FPSTime >= 1.0 {
			a.FPS = float64(a.FrameCount) / a.FPSTime
			a.FrameCount = 0
			a.FPSTime = 0
			if a.DebugMode {
				a.Log.Infof("%.1f fps\n%s", a.FPS, a.Profiler.String())
			}
			a.Profiler.Reset()
		}
	}
	a.LastRenderTime = now
}

// HandleKey orbits with the arrow keys, zooms with +/- and pauses with space.
func (a *App) HandleKey(key glfw.Key, action glfw.Action) {
	if action != glfw.Press && action != glfw.Repeat {
		return
	}
	const step = 0.05
	switch key {
	case glfw.KeyLeft:
		a.Yaw -= step
	case glfw.KeyRight:
		a.Yaw += step
	case glfw.KeyUp:
		a.Pitch = mgl32.Clamp(a.Pitch+step, -1.5, 1.5)
	case glfw.KeyDown:
		a.Pitch = mgl32.Clamp(a.Pitch-step, -1.5, 1.5)
	case glfw.KeyEqual, glfw.KeyKPAdd:
		a.Distance = max(a.Distance*0.95, 0.5)
	case glfw.KeyMinus, glfw.KeyKPSubtract:
		a.Distance *= 1.05
	case glfw.KeySpace:
		if action == glfw.Press {
			a.Paused = !a.Paused
		}
	}
}

func (a *App) HandleScroll(yoff float64) {
	a.Distance = max(a.Distance*float32(1-0.1*yoff), 0.5)
}

func (a *App) Release() {
	if a.Renderer != nil {
		if err := a.Renderer.Close(); err != nil {
			a.Log.Warnf("close: %v", err)
		}
	}
	if a.Backend != nil {
		a.Backend.Release()
	}
	if a.Device != nil {
		a.Device.Release()
	}
	if a.Adapter != nil {
		a.Adapter.Release()
	}
	if a.Surface != nil {
		a.Surface.Release()
	}
	if a.Instance != nil {
		a.Instance.Release()
	}
}

func GetSurfaceDescriptor(w *glfw.Window) *wgpu.SurfaceDescriptor {
	return wgpuglfw.GetSurfaceDescriptor(w)
}
