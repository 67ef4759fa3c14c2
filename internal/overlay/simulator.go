// Package overlay simulates the small animated cats drawn by the overlay effect.
//
// A Simulator owns a population of sprites. Each Update advances every sprite,
// applies the population policy (minimum count, periodic spawning, maximum
// count) and respawns persistent sprites that walked off the frame. Draw
// renders the population onto a BGR frame with gocv primitives.
//
// A Simulator is not safe for concurrent use; it belongs to one renderer.
package overlay

import (
	"image"
	"math/rand"
	"time"
)

// Config controls the population policy
type Config struct {
	MinCount      int           `yaml:"min_count" json:"min_count"`
	MaxCount      int           `yaml:"max_count" json:"max_count"`
	SpawnInterval time.Duration `yaml:"spawn_interval" json:"spawn_interval"`
	Lifetime      time.Duration `yaml:"lifetime" json:"lifetime"`
	AlwaysVisible bool          `yaml:"always_visible" json:"always_visible"`
}

// DefaultConfig returns the stock population policy
func DefaultConfig() Config {
	return Config{
		MinCount:      2,
		MaxCount:      3,
		SpawnInterval: 2 * time.Second,
		Lifetime:      8 * time.Second,
		AlwaysVisible: true,
	}
}

func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.MinCount < 0 {
		c.MinCount = 0
	}
	if c.MaxCount <= 0 {
		c.MaxCount = d.MaxCount
	}
	if c.MinCount > c.MaxCount {
		c.MinCount = c.MaxCount
	}
	if c.SpawnInterval <= 0 {
		c.SpawnInterval = d.SpawnInterval
	}
	if c.Lifetime <= 0 {
		c.Lifetime = d.Lifetime
	}
	return c
}

// Simulator holds the sprite population
type Simulator struct {
	cfg           Config
	rng           *rand.Rand
	sprites       []*Sprite
	alwaysVisible bool
	sinceSpawn    time.Duration
	nextID        uint64
}

// New creates an empty simulator. A nil rng gets a time-seeded source.
func New(cfg Config, rng *rand.Rand) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cfg = cfg.normalized()
	return &Simulator{
		cfg:           cfg,
		rng:           rng,
		alwaysVisible: cfg.AlwaysVisible,
	}
}

func (s *Simulator) Config() Config {
	return s.cfg
}

func (s *Simulator) AlwaysVisible() bool {
	return s.alwaysVisible
}

// SetAlwaysVisible switches the persistence mode. Existing sprites become
// persistent, or get one full lifetime left counted from now.
func (s *Simulator) SetAlwaysVisible(on bool) {
	s.alwaysVisible = on
	for _, sp := range s.sprites {
		if on {
			sp.Persistent = true
			sp.Lifetime = 0
		} else {
			sp.Persistent = false
			sp.Lifetime = sp.Age + s.cfg.Lifetime
		}
	}
}

// Update advances the population by dt inside a frame of the given size.
// speed and size apply to every live sprite, not only to new ones.
func (s *Simulator) Update(bounds image.Point, dt time.Duration, speed, size float64) {
	if bounds.X <= 0 || bounds.Y <= 0 {
		return
	}
	if dt < 0 {
		dt = 0
	}

	live := s.sprites[:0]
	for _, sp := range s.sprites {
		sp.Speed = speed
		sp.Size = size
		sp.advance(dt)

		switch {
		case sp.Persistent && sp.offscreen(bounds):
			sp.launch(bounds, s.rng)
		case sp.expired(), !sp.Persistent && sp.offscreen(bounds):
			continue
		}
		live = append(live, sp)
	}
	for i := len(live); i < len(s.sprites); i++ {
		s.sprites[i] = nil
	}
	s.sprites = live

	for len(s.sprites) < s.cfg.MinCount {
		s.spawn(bounds, speed, size)
	}

	s.sinceSpawn += dt
	if s.sinceSpawn >= s.cfg.SpawnInterval {
		s.sinceSpawn = 0
		if len(s.sprites) < s.cfg.MaxCount {
			s.spawn(bounds, speed, size)
		}
	}
}

func (s *Simulator) spawn(bounds image.Point, speed, size float64) {
	s.nextID++
	sp := &Sprite{
		ID:         s.nextID,
		Speed:      speed,
		Size:       size,
		Persistent: s.alwaysVisible,
		TailRate:   (0.1 + s.rng.Float64()*0.05) * 60,
	}
	if !sp.Persistent {
		sp.Lifetime = s.cfg.Lifetime
	}
	sp.launch(bounds, s.rng)
	s.sprites = append(s.sprites, sp)
}

// Sprites returns a snapshot of the population
func (s *Simulator) Sprites() []Sprite {
	out := make([]Sprite, len(s.sprites))
	for i, sp := range s.sprites {
		out[i] = *sp
	}
	return out
}

func (s *Simulator) Count() int {
	return len(s.sprites)
}

