package game

import (
	"image/color"
	"math"
	"math/rand"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
)

// maxParticles caps the live pool; bursts beyond it are silently dropped.
const maxParticles = 2048

// ParticleType selects the kinematics and look of a particle.
type ParticleType int

const (
	ParticleSnow ParticleType = iota
	ParticleSparkle
	ParticleSmoke
	ParticleZzz
	ParticleCelebrate
)

func (t ParticleType) String() string {
	switch t {
	case ParticleSnow:
		return "snow"
	case ParticleSparkle:
		return "sparkle"
	case ParticleSmoke:
		return "smoke"
	case ParticleZzz:
		return "zzz"
	case ParticleCelebrate:
		return "celebrate"
	default:
		return "unknown"
	}
}

// Particle is one short-lived effect sprite. Ages are milliseconds,
// velocities pixels per second.
type Particle struct {
	Pos    Vec2
	Vel    Vec2
	Age    float64
	MaxAge float64
	Color  color.RGBA
	Type   ParticleType
	Size   float64
	phase  float64 // per-particle offset for snow drift
}

// fadeStart is the fraction of lifetime after which particles fade out.
const fadeStart = 0.70

var celebratePalette = []color.RGBA{
	{R: 255, G: 95, B: 95, A: 255},
	{R: 255, G: 200, B: 60, A: 255},
	{R: 90, G: 200, B: 120, A: 255},
	{R: 80, G: 160, B: 255, A: 255},
	{R: 190, G: 110, B: 255, A: 255},
}

// ParticleSystem owns every live particle.
type ParticleSystem struct {
	particles []Particle
	rng       *rand.Rand
}

// NewParticleSystem creates an empty system drawing randomness from rng.
func NewParticleSystem(rng *rand.Rand) *ParticleSystem {
	if rng == nil {
		rng = rand.New(rand.NewSource(1)) // #nosec G404 -- cosmetic only
	}
	return &ParticleSystem{rng: rng}
}

// Len returns the number of live particles.
func (ps *ParticleSystem) Len() int { return len(ps.particles) }

// Particles returns the live particles. The slice must not be retained.
func (ps *ParticleSystem) Particles() []Particle { return ps.particles }

// CountType returns how many live particles have type t.
func (ps *ParticleSystem) CountType(t ParticleType) int {
	n := 0
	for i := range ps.particles {
		if ps.particles[i].Type == t {
			n++
		}
	}
	return n
}

// Clear removes every particle.
func (ps *ParticleSystem) Clear() {
	ps.particles = ps.particles[:0]
}

func (ps *ParticleSystem) between(lo, hi float64) float64 {
	return lo + ps.rng.Float64()*(hi-lo)
}

// AddBurst spawns count particles of type t at pos with randomized initial
// velocity and lifetime.
func (ps *ParticleSystem) AddBurst(pos Vec2, t ParticleType, count int) {
	for i := 0; i < count && len(ps.particles) < maxParticles; i++ {
		p := Particle{Pos: pos, Type: t}
		switch t {
		case ParticleSparkle:
			ang := ps.between(0, 2*math.Pi)
			speed := ps.between(40, 120)
			p.Vel = Vec2{math.Cos(ang) * speed, math.Sin(ang)*speed - 60}
			p.MaxAge = ps.between(600, 1000)
			p.Size = ps.between(1.5, 3)
			p.Color = color.RGBA{R: 255, G: 240, B: 150, A: 255}
		case ParticleCelebrate:
			p.Vel = Vec2{ps.between(-80, 80), ps.between(-250, -150)}
			p.MaxAge = ps.between(1200, 1800)
			p.Size = ps.between(2, 3.5)
			p.Color = celebratePalette[ps.rng.Intn(len(celebratePalette))]
		case ParticleSmoke:
			p.Vel = Vec2{ps.between(-15, 15), ps.between(-40, -20)}
			p.MaxAge = ps.between(1000, 1600)
			p.Size = ps.between(3, 5)
			g := uint8(ps.between(90, 140))
			p.Color = color.RGBA{R: g, G: g, B: g, A: 200}
		case ParticleSnow:
			p.Vel = Vec2{0, ps.between(15, 30)}
			p.MaxAge = ps.between(4000, 7000)
			p.Size = ps.between(1, 2.5)
			p.phase = ps.between(0, 2*math.Pi)
			p.Color = color.RGBA{R: 245, G: 250, B: 255, A: 230}
		case ParticleZzz:
			p.Vel = Vec2{ps.between(-4, 4), ps.between(-18, -12)}
			p.MaxAge = ps.between(1800, 2400)
			p.Size = ps.between(3, 4)
			p.Color = color.RGBA{R: 170, G: 190, B: 255, A: 255}
		default:
			continue
		}
		ps.particles = append(ps.particles, p)
	}
}

// Update applies per-type kinematics and removes expired particles.
func (ps *ParticleSystem) Update(dtMs float64) {
	dt := dtMs / 1000
	kept := ps.particles[:0]
	for _, p := range ps.particles {
		p.Age += dtMs
		if p.Age >= p.MaxAge {
			continue
		}
		switch p.Type {
		case ParticleSparkle:
			p.Vel.Y += 200 * dt
		case ParticleCelebrate:
			p.Vel.Y += 300 * dt
			p.Vel.X *= math.Max(0, 1-0.6*dt)
		case ParticleSmoke:
			k := math.Max(0, 1-1.5*dt)
			p.Vel.X *= k
			p.Vel.Y *= k
			p.Size += 2.5 * dt
		case ParticleSnow:
			p.Vel.X = math.Sin(p.Age/700+p.phase) * 12
		case ParticleZzz:
			p.Vel.X = math.Sin(p.Age/300+p.phase) * 6
		}
		p.Pos.X += p.Vel.X * dt
		p.Pos.Y += p.Vel.Y * dt
		kept = append(kept, p)
	}
	ps.particles = kept
}

// Opacity returns the draw alpha of p: opaque until the final 30% of its
// lifetime, snow fading across its whole life.
func (p *Particle) Opacity() float64 {
	if p.MaxAge <= 0 {
		return 0
	}
	t := p.Age / p.MaxAge
	if p.Type == ParticleSnow {
		return math.Max(0, 1-t)
	}
	if t <= fadeStart {
		return 1
	}
	return math.Max(0, 1-(t-fadeStart)/(1-fadeStart))
}

// DrawColor is the particle colour faded by Opacity, premultiplied the
// way ebiten expects. Color itself holds straight alpha.
func (p *Particle) DrawColor() color.RGBA {
	alpha := float64(p.Color.A) * p.Opacity()
	a := alpha / 255
	return color.RGBA{
		R: uint8(float64(p.Color.R) * a),
		G: uint8(float64(p.Color.G) * a),
		B: uint8(float64(p.Color.B) * a),
		A: uint8(alpha),
	}
}

// Draw renders every particle in world space.
func (ps *ParticleSystem) Draw(dst *ebiten.Image) {
	for i := range ps.particles {
		p := &ps.particles[i]
		c := p.DrawColor()
		if c.A == 0 {
			continue
		}
		x, y, s := float32(p.Pos.X), float32(p.Pos.Y), float32(p.Size)
		switch p.Type {
		case ParticleZzz:
			// A tiny "z" glyph drawn with three strokes.
			vector.StrokeLine(dst, x-s, y-s, x+s, y-s, 1, c, true)
			vector.StrokeLine(dst, x+s, y-s, x-s, y+s, 1, c, true)
			vector.StrokeLine(dst, x-s, y+s, x+s, y+s, 1, c, true)
		case ParticleCelebrate:
			vector.FillRect(dst, x-s/2, y-s/2, s, s*1.6, c, false)
		default:
			vector.FillCircle(dst, x, y, s, c, true)
		}
	}
}
