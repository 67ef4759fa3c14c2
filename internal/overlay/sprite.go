// Sprite kinematics: trajectories, motion, fading and respawn
package overlay

import (
	"image"
	"math"
	"math/rand"
	"time"
)

// Trajectory is the straight path a sprite walks along
type Trajectory int

const (
	LeftToRight Trajectory = iota
	RightToLeft
	TopToBottom
)

func (t Trajectory) String() string {
	switch t {
	case LeftToRight:
		return "left-to-right"
	case RightToLeft:
		return "right-to-left"
	case TopToBottom:
		return "top-to-bottom"
	default:
		return "unknown"
	}
}

const (
	// traverseTime is how long a straight crossing takes at the reference speed
	traverseTime     = 6 * time.Second
	referenceSpeed   = 50.0
	horizontalJitter = 100.0
	verticalJitter   = 200.0
	fadeStart        = 0.8
)

// Vec is a point or displacement in frame pixels
type Vec struct {
	X, Y float64
}

func (v Vec) Add(o Vec) Vec       { return Vec{v.X + o.X, v.Y + o.Y} }
func (v Vec) Sub(o Vec) Vec       { return Vec{v.X - o.X, v.Y - o.Y} }
func (v Vec) Scale(f float64) Vec { return Vec{v.X * f, v.Y * f} }

// Sprite is one animated overlay object
type Sprite struct {
	ID         uint64
	Trajectory Trajectory
	Pos        Vec
	Target     Vec
	Velocity   Vec // pixels per second at the reference speed
	Size       float64
	Speed      float64
	Age        time.Duration
	Lifetime   time.Duration // zero for persistent sprites
	Persistent bool
	Opacity    float64
	Palette    Palette
	TailPhase  float64
	TailRate   float64 // radians per second
	Bob        float64
}

// launch places s just outside the frame on a random trajectory
func (s *Sprite) launch(bounds image.Point, rng *rand.Rand) {
	w, h := float64(bounds.X), float64(bounds.Y)
	size := s.Size
	s.Trajectory = Trajectory(rng.Intn(3))

	var start Vec
	switch s.Trajectory {
	case LeftToRight:
		start = Vec{-size, rng.Float64() * math.Max(h-size, 0)}
		s.Target = Vec{w + size, start.Y + (rng.Float64()-0.5)*horizontalJitter}
	case RightToLeft:
		start = Vec{w + size, rng.Float64() * math.Max(h-size, 0)}
		s.Target = Vec{-size, start.Y + (rng.Float64()-0.5)*horizontalJitter}
	default:
		start = Vec{rng.Float64() * math.Max(w-size, 0), -size}
		s.Target = Vec{start.X + (rng.Float64()-0.5)*verticalJitter, h + size}
	}

	s.Pos = start
	s.Velocity = s.Target.Sub(start).Scale(1 / traverseTime.Seconds())
	s.Age = 0
	s.Opacity = 1
	s.Palette = randomPalette(rng)
}

// advance moves the sprite by dt and updates its secondary animation
func (s *Sprite) advance(dt time.Duration) {
	s.Age += dt
	factor := s.Speed / referenceSpeed
	s.Pos = s.Pos.Add(s.Velocity.Scale(dt.Seconds() * factor))

	s.TailPhase = math.Mod(s.TailPhase+s.TailRate*dt.Seconds(), 2*math.Pi)
	s.Bob = math.Sin(float64(s.Age.Milliseconds())*0.01) * 5

	s.Opacity = 1
	if !s.Persistent && s.Lifetime > 0 {
		progress := float64(s.Age) / float64(s.Lifetime)
		if progress > fadeStart {
			s.Opacity = math.Max(0, 1-(progress-fadeStart)*5)
		}
	}
}

// expired reports whether a non-persistent sprite outlived its lifetime
func (s *Sprite) expired() bool {
	return !s.Persistent && s.Lifetime > 0 && s.Age >= s.Lifetime
}

// offscreen reports whether the sprite left the frame plus a one-sprite margin
func (s *Sprite) offscreen(bounds image.Point) bool {
	w, h := float64(bounds.X), float64(bounds.Y)
	return s.Pos.X < -s.Size || s.Pos.X > w+s.Size ||
		s.Pos.Y < -s.Size || s.Pos.Y > h+s.Size
}
