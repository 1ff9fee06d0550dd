package sim

import (
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
)

// Emitter spawns short-lived diffuse particles (spray and foam).
type Emitter struct {
	MaxParticles int

	SpawnRate        float32    // particles per second
	LifetimeRange    [2]float32 // seconds (min,max)
	StartSpeedRange  [2]float32 // units/sec (min,max)
	Gravity          float32    // positive acceleration downward
	Drag             float32    // per-second linear drag
	ConeAngleDegrees float32    // 0 = straight up
}

// pool stores live diffuse particles as parallel slices; dead ones are
// swap-removed so [0, alive) is always dense.
type pool struct {
	pos  []mgl32.Vec3
	vel  []mgl32.Vec3
	age  []float32
	life []float32

	alive    int
	spawnAcc float32
}

func newPool(capacity int) *pool {
	return &pool{
		pos:  make([]mgl32.Vec3, capacity),
		vel:  make([]mgl32.Vec3, capacity),
		age:  make([]float32, capacity),
		life: make([]float32, capacity),
	}
}

func lerp(a, b, t float32) float32 { return a + (b-a)*t }

// sampleDirection draws a uniform direction in a cone around +Y.
func sampleDirection(rng *rand.Rand, coneDeg float32) mgl32.Vec3 {
	if coneDeg <= 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	thetaMax := float32(math.Pi) * (coneDeg / 180.0)
	u := rng.Float32()
	v := rng.Float32()
	cosTheta := lerp(float32(math.Cos(float64(thetaMax))), 1.0, u)
	sinTheta := float32(math.Sqrt(float64(1.0 - cosTheta*cosTheta)))
	phi := 2.0 * float32(math.Pi) * v
	return mgl32.Vec3{
		float32(math.Cos(float64(phi))) * sinTheta,
		cosTheta,
		float32(math.Sin(float64(phi))) * sinTheta,
	}
}

func (p *pool) killAt(i int) {
	last := p.alive - 1
	p.pos[i] = p.pos[last]
	p.vel[i] = p.vel[last]
	p.age[i] = p.age[last]
	p.life[i] = p.life[last]
	p.alive--
}

// spawn emits up to the accumulated count from the given sources, cycling
// through them.
func (p *pool) spawn(em *Emitter, rng *rand.Rand, dt float32, sources []mgl32.Vec3) {
	p.spawnAcc += em.SpawnRate * dt
	n := int(p.spawnAcc)
	if n > 0 {
		p.spawnAcc -= float32(n)
	}
	if n > em.MaxParticles-p.alive {
		n = em.MaxParticles - p.alive
	}
	if len(sources) == 0 {
		return
	}
	for i := 0; i < n; i++ {
		idx := p.alive
		p.alive++
		p.pos[idx] = sources[rng.Intn(len(sources))]
		speed := lerp(em.StartSpeedRange[0], em.StartSpeedRange[1], rng.Float32())
		p.vel[idx] = sampleDirection(rng, em.ConeAngleDegrees).Mul(speed)
		p.age[idx] = 0
		p.life[idx] = lerp(em.LifetimeRange[0], em.LifetimeRange[1], rng.Float32())
	}
}

func (p *pool) integrate(em *Emitter, dt float32, floor float32) {
	drag := float32(math.Max(0, float64(1.0-em.Drag*dt)))
	i := 0
	for i < p.alive {
		age := p.age[i] + dt
		if age >= p.life[i] {
			p.killAt(i)
			continue
		}
		v := p.vel[i].Add(mgl32.Vec3{0, -em.Gravity * dt, 0}).Mul(drag)
		pos := p.pos[i].Add(v.Mul(dt))
		if pos.Y() < floor {
			pos[1] = floor
			v[1] = 0
		}
		p.vel[i] = v
		p.pos[i] = pos
		p.age[i] = age
		i++
	}
}
