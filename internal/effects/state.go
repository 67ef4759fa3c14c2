package effects

// Hard parameter limits. The catalogue advertises narrower UI ranges for some of them.
const (
	MinBlurRadius       = 0.0
	MaxBlurRadius       = 20.0
	MinPixelSize        = 1
	MaxPixelSize        = 100
	MinBackgroundBlur   = 0.0
	MaxBackgroundBlur   = 30.0
	MinIntensity        = 0.0
	MaxIntensity        = 100.0
	MinOverlaySpeed     = 10.0
	MaxOverlaySpeed     = 100.0
	MinOverlaySize      = 10.0
	MaxOverlaySize      = 80.0
	defaultBlurRadius   = 6.0
	defaultPixelSize    = 8
	defaultBgBlur       = 10.0
	defaultVintage      = 70.0
	defaultEdge         = 50.0
	defaultOverlaySpeed = 50.0
	defaultOverlaySize  = 30.0
)

// Params holds the per-effect parameters. Inactive effects keep their values.
type Params struct {
	BlurRadius       float64    `json:"blur_radius" yaml:"blur_radius"`
	PixelSize        int        `json:"pixel_size" yaml:"pixel_size"`
	BackgroundBlur   float64    `json:"background_blur" yaml:"background_blur"`
	MaskSource       MaskSource `json:"mask_source" yaml:"mask_source"`
	VintageIntensity float64    `json:"vintage_intensity" yaml:"vintage_intensity"`
	EdgeIntensity    float64    `json:"edge_intensity" yaml:"edge_intensity"`
	OverlaySpeed     float64    `json:"overlay_speed" yaml:"overlay_speed"`
	OverlaySize      float64    `json:"overlay_size" yaml:"overlay_size"`
	AlwaysVisible    bool       `json:"always_visible" yaml:"always_visible"`
}

// State is the filter state read once per rendered frame
type State struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Effect  Kind   `json:"effect" yaml:"effect"`
	Params  Params `json:"params" yaml:"params"`
}

// DefaultParams returns the stock parameter set
func DefaultParams() Params {
	return Params{
		BlurRadius:       defaultBlurRadius,
		PixelSize:        defaultPixelSize,
		BackgroundBlur:   defaultBgBlur,
		MaskSource:       MaskEllipse,
		VintageIntensity: defaultVintage,
		EdgeIntensity:    defaultEdge,
		OverlaySpeed:     defaultOverlaySpeed,
		OverlaySize:      defaultOverlaySize,
		AlwaysVisible:    true,
	}
}

// DefaultState returns an enabled state with no effect selected
func DefaultState() State {
	return State{
		Enabled: true,
		Effect:  KindNone,
		Params:  DefaultParams(),
	}
}

// Normalize clamps every parameter into its hard range
func (p Params) Normalize() Params {
	p.BlurRadius = clampFloat(p.BlurRadius, MinBlurRadius, MaxBlurRadius)
	p.PixelSize = clampInt(p.PixelSize, MinPixelSize, MaxPixelSize)
	p.BackgroundBlur = clampFloat(p.BackgroundBlur, MinBackgroundBlur, MaxBackgroundBlur)
	if p.MaskSource != MaskEllipse && p.MaskSource != MaskSegmentation {
		p.MaskSource = MaskEllipse
	}
	p.VintageIntensity = clampFloat(p.VintageIntensity, MinIntensity, MaxIntensity)
	p.EdgeIntensity = clampFloat(p.EdgeIntensity, MinIntensity, MaxIntensity)
	p.OverlaySpeed = clampFloat(p.OverlaySpeed, MinOverlaySpeed, MaxOverlaySpeed)
	p.OverlaySize = clampFloat(p.OverlaySize, MinOverlaySize, MaxOverlaySize)
	return p
}

// Normalize clamps parameters and maps unknown effects to none
func (s State) Normalize() State {
	if !s.Effect.Valid() {
		s.Effect = KindNone
	}
	s.Params = s.Params.Normalize()
	return s
}

func clampFloat(v, lo, hi float64) float64 {
	if v != v { // NaN
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
