package main

import (
	"flag"
	"runtime"

	"github.com/gekko3d/fluid"
	"github.com/gekko3d/fluid/fluidrt/rt/app"
	"github.com/gekko3d/fluid/fluidrt/rt/sim"

	"github.com/go-gl/glfw/v3.3/glfw"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	configPath := flag.String("config", "", "YAML renderer config (defaults when empty)")
	debug := flag.Bool("debug", false, "Enable debug logging and per-stage timings")
	water := flag.Int("water", 16, "Edge length of the initial water block, in particles")
	cloth := flag.Int("cloth", 12, "Edge length of the cloth grid (0 disables cloth)")
	flag.Parse()

	cfg := fluid.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = fluid.LoadConfig(*configPath); err != nil {
			panic(err)
		}
	}
	if *debug {
		cfg.Log.Debug = true
	}
	log := fluid.NewLogger(cfg.Log)

	simCfg := sim.DefaultConfig()
	simCfg.WaterSide = *water
	simCfg.ClothSide = *cloth

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	window, err := glfw.CreateWindow(cfg.Screen.Width, cfg.Screen.Height, "Fluid", nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	application := app.NewApp(window, cfg, simCfg, log)
	application.DebugMode = *debug
	if err := application.Init(); err != nil {
		panic(err)
	}
	defer application.Release()

	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
		if key == glfw.KeyEscape && action == glfw.Press {
			w.SetShouldClose(true)
		}
		application.HandleKey(key, action)
	})

	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		application.HandleScroll(yoff)
	})

	for !window.ShouldClose() {
		glfw.PollEvents()
		application.Update()
		application.Render()
	}
}
