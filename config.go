package fluid

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gekko3d/fluid/fluidrt/rt/core"
	"github.com/go-gl/mathgl/mgl32"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

type LogConfig struct {
	Prefix string `yaml:"prefix"`
	Debug  bool   `yaml:"debug"`
	Quiet  bool   `yaml:"quiet"`
}

type ScreenConfig struct {
	Width  int     `yaml:"width"`
	Height int     `yaml:"height"`
	ZNear  float32 `yaml:"zNear"`
	ZFar   float32 `yaml:"zFar"`
	// FOV is the vertical field of view in degrees.
	FOV        float32   `yaml:"fov"`
	ClearColor []float32 `yaml:"clearColor"`
}

type WaterConfig struct {
	Radius                float32   `yaml:"radius"`
	ThicknessRadiusFactor float32   `yaml:"thicknessRadiusFactor"`
	FilterRadius          float32   `yaml:"filterRadius"`
	BlurScale             float32   `yaml:"blurScale"`
	Color                 []float32 `yaml:"color"`
	ThicknessScale        float32   `yaml:"thicknessScale"`
	Absorption            float32   `yaml:"absorption"`
	RefractionScale       float32   `yaml:"refractionScale"`
}

type FoamConfig struct {
	Radius    float32 `yaml:"radius"`
	Intensity float32 `yaml:"intensity"`
}

type ClothConfig struct {
	Radius float32 `yaml:"radius"`
}

type Config struct {
	Screen ScreenConfig `yaml:"screen"`
	Water  WaterConfig  `yaml:"water"`
	Foam   FoamConfig   `yaml:"foam"`
	Cloth  ClothConfig  `yaml:"cloth"`
	// LightDir is in view space.
	LightDir []float32 `yaml:"lightDir"`
	Log      LogConfig `yaml:"log"`
}

// DefaultConfig mirrors core.DefaultParams.
func DefaultConfig() Config {
	p := core.DefaultParams()
	return Config{
		Screen: ScreenConfig{
			Width:      p.Width,
			Height:     p.Height,
			ZNear:      p.ZNear,
			ZFar:       p.ZFar,
			FOV:        45,
			ClearColor: p.ClearColor[:],
		},
		Water: WaterConfig{
			Radius:                p.Radius,
			ThicknessRadiusFactor: p.ThicknessRadiusFactor,
			FilterRadius:          p.FilterRadius,
			BlurScale:             p.BlurScale,
			Color:                 p.Color[:],
			ThicknessScale:        p.ThicknessScale,
			Absorption:            p.Absorption,
			RefractionScale:       p.RefractionScale,
		},
		Foam:     FoamConfig{Radius: p.FoamRadius, Intensity: p.FoamIntensity},
		Cloth:    ClothConfig{Radius: p.ClothRadius},
		LightDir: p.LightDir[:],
		Log:      LogConfig{Prefix: "fluid"},
	}
}

// ParseConfig overlays YAML onto DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	c := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	c, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.Screen.FOV <= 0 || c.Screen.FOV >= 180 {
		return fmt.Errorf("%w: fov %g", ErrInvalidConfig, c.Screen.FOV)
	}
	for name, v := range map[string]struct {
		got  []float32
		want int
	}{
		"screen.clearColor": {c.Screen.ClearColor, 4},
		"water.color":       {c.Water.Color, 4},
		"lightDir":          {c.LightDir, 3},
	} {
		if len(v.got) != v.want {
			return fmt.Errorf("%w: %s needs %d components, got %d", ErrInvalidConfig, name, v.want, len(v.got))
		}
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// FOVRadians is the configured field of view for cameras built by callers.
func (c Config) FOVRadians() float32 {
	return mgl32.DegToRad(c.Screen.FOV)
}

// Params converts the config to the constants the pipeline is built with.
// Vectors with the wrong length are left at their defaults; Validate
// reports them.
func (c Config) Params() core.Params {
	p := core.DefaultParams()
	p.Width, p.Height = c.Screen.Width, c.Screen.Height
	p.ZNear, p.ZFar = c.Screen.ZNear, c.Screen.ZFar
	p.Radius = c.Water.Radius
	p.ClothRadius = c.Cloth.Radius
	p.FoamRadius = c.Foam.Radius
	p.ThicknessRadiusFactor = c.Water.ThicknessRadiusFactor
	p.FilterRadius = c.Water.FilterRadius
	p.BlurScale = c.Water.BlurScale
	p.ThicknessScale = c.Water.ThicknessScale
	p.Absorption = c.Water.Absorption
	p.RefractionScale = c.Water.RefractionScale
	p.FoamIntensity = c.Foam.Intensity
	if len(c.Water.Color) == 4 {
		p.Color = mgl32.Vec4{c.Water.Color[0], c.Water.Color[1], c.Water.Color[2], c.Water.Color[3]}
	}
	if len(c.Screen.ClearColor) == 4 {
		p.ClearColor = mgl32.Vec4{c.Screen.ClearColor[0], c.Screen.ClearColor[1], c.Screen.ClearColor[2], c.Screen.ClearColor[3]}
	}
	if len(c.LightDir) == 3 {
		p.LightDir = mgl32.Vec3{c.LightDir[0], c.LightDir[1], c.LightDir[2]}
	}
	return p
}
