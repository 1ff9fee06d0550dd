// Package sim is a toy particle producer for the demo: a sloshing tank of
// water particles, a kinematic cloth sheet and a spray emitter. It only
// exists to feed the renderer plausible data.
package sim

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

type Config struct {
	// WaterSide is the edge length, in particles, of the initial water block.
	WaterSide int
	// ClothSide is the edge length of the cloth grid; 0 disables cloth.
	ClothSide  int
	MaxDiffuse int
	Radius     float32
	// Box is the half extent of the tank; the floor is at y = 0.
	Box  mgl32.Vec3
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		WaterSide:  16,
		ClothSide:  12,
		MaxDiffuse: 2048,
		Radius:     0.05,
		Box:        mgl32.Vec3{1, 2, 0.6},
		Seed:       1,
	}
}

type Sim struct {
	cfg Config
	rng *rand.Rand

	cloth     []mgl32.Vec3
	clothRest []mgl32.Vec3
	triangles []uint32

	pos []mgl32.Vec3
	vel []mgl32.Vec3

	spray   Emitter
	diffuse *pool
	time    float32

	grid map[[3]int][]int
}

func New(cfg Config) *Sim {
	s := &Sim{
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.Seed)),
		grid: make(map[[3]int][]int),
		spray: Emitter{
			MaxParticles:     cfg.MaxDiffuse,
			SpawnRate:        600,
			LifetimeRange:    [2]float32{0.4, 1.2},
			StartSpeedRange:  [2]float32{0.5, 1.5},
			Gravity:          9.8,
			Drag:             0.5,
			ConeAngleDegrees: 35,
		},
		diffuse: newPool(cfg.MaxDiffuse),
	}

	spacing := cfg.Radius * 2
	n := cfg.WaterSide
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			for k := 0; k < n; k++ {
				p := mgl32.Vec3{
					-cfg.Box.X() + cfg.Radius + float32(i)*spacing,
					cfg.Radius + float32(j)*spacing,
					-cfg.Box.Z() + cfg.Radius + float32(k)*spacing,
				}
				s.pos = append(s.pos, p)
				s.vel = append(s.vel, mgl32.Vec3{})
			}
		}
	}

	// The cloth hangs above the tank's far half.
	c := cfg.ClothSide
	if c > 1 {
		size := cfg.Box.X()
		for j := 0; j < c; j++ {
			for i := 0; i < c; i++ {
				u, v := float32(i)/float32(c-1), float32(j)/float32(c-1)
				s.clothRest = append(s.clothRest, mgl32.Vec3{
					(u - 0.5) * size,
					cfg.Box.Y()*0.9 - v*size*0.5,
					cfg.Box.Z() * 0.5,
				})
			}
		}
		s.cloth = append([]mgl32.Vec3(nil), s.clothRest...)
		for j := 0; j < c-1; j++ {
			for i := 0; i < c-1; i++ {
				a := uint32(j*c + i)
				b, d, e := a+1, a+uint32(c), a+uint32(c)+1
				s.triangles = append(s.triangles, a, b, e, a, e, d)
			}
		}
	}
	return s
}

func (s *Sim) NumCloth() int     { return len(s.cloth) }
func (s *Sim) NumParticles() int { return len(s.cloth) + len(s.pos) }
func (s *Sim) NumDiffuse() int   { return s.diffuse.alive }
func (s *Sim) MaxDiffuse() int   { return s.cfg.MaxDiffuse }

// Triangles indexes the cloth prefix of Positions.
func (s *Sim) Triangles() []uint32 { return s.triangles }

// Step advances the simulation by dt seconds.
func (s *Sim) Step(dt float32) {
	if dt <= 0 {
		return
	}
	s.time += dt
	r := s.cfg.Radius
	box := s.cfg.Box

	// Tilt gravity back and forth to slosh the tank.
	slosh := float32(math.Sin(float64(s.time)*1.3)) * 3
	g := mgl32.Vec3{slosh, -9.8, 0}

	for i := range s.pos {
		s.vel[i] = s.vel[i].Add(g.Mul(dt)).Mul(0.995)
		s.pos[i] = s.pos[i].Add(s.vel[i].Mul(dt))
	}
	s.separate(dt)

	var splashes []mgl32.Vec3
	for i := range s.pos {
		p, v := s.pos[i], s.vel[i]
		for axis := 0; axis < 3; axis++ {
			lo, hi := -box[axis]+r, box[axis]-r
			if axis == 1 {
				lo, hi = r, box[1]*2-r
			}
			if p[axis] < lo {
				p[axis] = lo
				if v[axis] < -2 {
					splashes = append(splashes, p)
				}
				v[axis] *= -0.3
			} else if p[axis] > hi {
				p[axis] = hi
				if v[axis] > 2 {
					splashes = append(splashes, p)
				}
				v[axis] *= -0.3
			}
		}
		s.pos[i], s.vel[i] = p, v
	}

	for i, rest := range s.clothRest {
		x := float32(i%s.cfg.ClothSide) / float32(max(s.cfg.ClothSide-1, 1))
		y := float32(i/s.cfg.ClothSide) / float32(max(s.cfg.ClothSide-1, 1))
		wave := float32(math.Sin(float64(s.time*2+x*4))) * 0.08 * y
		s.cloth[i] = rest.Add(mgl32.Vec3{0, 0, wave})
	}

	s.diffuse.spawn(&s.spray, s.rng, dt, splashes)
	s.diffuse.integrate(&s.spray, dt, 0)
}

// separate pushes overlapping water particles apart, one pass over a hash
// grid with cells one diameter wide.
func (s *Sim) separate(dt float32) {
	d := s.cfg.Radius * 2
	for k := range s.grid {
		s.grid[k] = s.grid[k][:0]
	}
	cell := func(p mgl32.Vec3) [3]int {
		return [3]int{int(math.Floor(float64(p.X() / d))), int(math.Floor(float64(p.Y() / d))), int(math.Floor(float64(p.Z() / d)))}
	}
	for i, p := range s.pos {
		c := cell(p)
		s.grid[c] = append(s.grid[c], i)
	}
	for i := range s.pos {
		c := cell(s.pos[i])
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					for _, j := range s.grid[[3]int{c[0] + dx, c[1] + dy, c[2] + dz}] {
						if j <= i {
							continue
						}
						delta := s.pos[j].Sub(s.pos[i])
						dist := delta.Len()
						if dist >= d || dist == 0 {
							continue
						}
						push := delta.Mul((d - dist) * 0.5 / dist)
						s.pos[i] = s.pos[i].Sub(push)
						s.pos[j] = s.pos[j].Add(push)
						corr := push.Mul(1 / dt * 0.2)
						s.vel[i] = s.vel[i].Sub(corr)
						s.vel[j] = s.vel[j].Add(corr)
					}
				}
			}
		}
	}
}

// Positions returns vec4 records: cloth vertices first, then water.
func (s *Sim) Positions() []float32 {
	out := make([]float32, 0, s.NumParticles()*4)
	for _, p := range s.cloth {
		out = append(out, p.X(), p.Y(), p.Z(), 1)
	}
	for _, p := range s.pos {
		out = append(out, p.X(), p.Y(), p.Z(), 1)
	}
	return out
}

// DiffusePositions returns vec4 records with the remaining life fraction in w.
func (s *Sim) DiffusePositions() []float32 {
	p := s.diffuse
	out := make([]float32, 0, p.alive*4)
	for i := 0; i < p.alive; i++ {
		out = append(out, p.pos[i].X(), p.pos[i].Y(), p.pos[i].Z(), 1-p.age[i]/p.life[i])
	}
	return out
}

func (s *Sim) DiffuseVelocities() []float32 {
	p := s.diffuse
	out := make([]float32, 0, p.alive*3)
	for i := 0; i < p.alive; i++ {
		out = append(out, p.vel[i].X(), p.vel[i].Y(), p.vel[i].Z())
	}
	return out
}
