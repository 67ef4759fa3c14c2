// Effect catalogue used to generate control surfaces
package effects

import (
	"fmt"
	"math"
)

// ParameterInfo describes a parameter for UI generation
type ParameterInfo struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Type        string   `json:"type"` // "int", "float", "bool", "enum"
	Min         float64  `json:"min,omitempty"`
	Max         float64  `json:"max,omitempty"`
	Step        float64  `json:"step,omitempty"`
	Default     any      `json:"default"`
	Description string   `json:"description"`
	Options     []string `json:"options,omitempty"` // For enum type
}

// Descriptor documents one effect kind
type Descriptor struct {
	Kind        Kind            `json:"kind"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  []ParameterInfo `json:"parameters"`
}

// Catalog returns the descriptors of every effect in display order
func Catalog() []Descriptor {
	defaults := DefaultParams()
	return []Descriptor{
		{
			Kind:        KindNone,
			Name:        "None",
			Description: "Pass the camera frame through unchanged",
		},
		{
			Kind:        KindGrayscale,
			Name:        "Grayscale",
			Description: "Desaturate using the luminance transform",
		},
		{
			Kind:        KindBlur,
			Name:        "Blur",
			Description: "Gaussian blur of the whole frame",
			Parameters: []ParameterInfo{
				{
					Key:         "blur_radius",
					Name:        "Blur radius",
					Type:        "float",
					Min:         MinBlurRadius,
					Max:         MaxBlurRadius,
					Step:        1,
					Default:     defaults.BlurRadius,
					Description: "Gaussian sigma in pixels, 0 disables the blur",
				},
			},
		},
		{
			Kind:        KindPixelate,
			Name:        "Pixelate",
			Description: "Nearest-neighbour downscale and upscale into flat blocks",
			Parameters: []ParameterInfo{
				{
					Key:         "pixel_size",
					Name:        "Block size",
					Type:        "int",
					Min:         2,
					Max:         40,
					Step:        1,
					Default:     defaults.PixelSize,
					Description: "Edge length of one block in pixels",
				},
			},
		},
		{
			Kind:        KindBackgroundBlur,
			Name:        "Background blur",
			Description: "Blur the background and keep the person sharp",
			Parameters: []ParameterInfo{
				{
					Key:         "background_blur",
					Name:        "Background blur",
					Type:        "float",
					Min:         MinBackgroundBlur,
					Max:         MaxBackgroundBlur,
					Step:        1,
					Default:     defaults.BackgroundBlur,
					Description: "Gaussian sigma applied to the background",
				},
				{
					Key:         "mask_source",
					Name:        "Mask source",
					Type:        "enum",
					Default:     defaults.MaskSource.String(),
					Description: "Ellipse heuristic or segmentation model",
					Options:     []string{MaskEllipse.String(), MaskSegmentation.String()},
				},
			},
		},
		{
			Kind:        KindVintage,
			Name:        "Vintage",
			Description: "Sepia tone with animated film grain and vignette",
			Parameters: []ParameterInfo{
				{
					Key:         "vintage_intensity",
					Name:        "Intensity",
					Type:        "float",
					Min:         MinIntensity,
					Max:         MaxIntensity,
					Step:        1,
					Default:     defaults.VintageIntensity,
					Description: "Strength of tone, grain and vignette",
				},
			},
		},
		{
			Kind:        KindEdgeEnhance,
			Name:        "Edge enhance",
			Description: "Brighten Sobel edges on top of the original colours",
			Parameters: []ParameterInfo{
				{
					Key:         "edge_intensity",
					Name:        "Intensity",
					Type:        "float",
					Min:         MinIntensity,
					Max:         MaxIntensity,
					Step:        1,
					Default:     defaults.EdgeIntensity,
					Description: "Amount of gradient added to each channel",
				},
			},
		},
		{
			Kind:        KindOverlay,
			Name:        "Cat overlay",
			Description: "Animated cats walking across the frame",
			Parameters: []ParameterInfo{
				{
					Key:         "overlay_speed",
					Name:        "Speed",
					Type:        "float",
					Min:         MinOverlaySpeed,
					Max:         MaxOverlaySpeed,
					Step:        1,
					Default:     defaults.OverlaySpeed,
					Description: "Walking speed, 50 crosses the frame in about six seconds",
				},
				{
					Key:         "overlay_size",
					Name:        "Size",
					Type:        "float",
					Min:         MinOverlaySize,
					Max:         MaxOverlaySize,
					Step:        1,
					Default:     defaults.OverlaySize,
					Description: "Sprite size in pixels",
				},
				{
					Key:         "always_visible",
					Name:        "Always visible",
					Type:        "bool",
					Default:     defaults.AlwaysVisible,
					Description: "Respawn cats at the edges instead of letting them expire",
				},
			},
		},
		{
			Kind:        KindMirror,
			Name:        "Mirror",
			Description: "Flip the frame horizontally",
		},
	}
}

// Describe returns the descriptor of a single kind
func Describe(k Kind) (Descriptor, bool) {
	for _, d := range Catalog() {
		if d.Kind == k {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Param returns the value of the parameter with the given catalogue key.
// Numeric values are reported as float64, enums as their name.
func (p Params) Param(key string) (any, bool) {
	switch key {
	case "blur_radius":
		return p.BlurRadius, true
	case "pixel_size":
		return float64(p.PixelSize), true
	case "background_blur":
		return p.BackgroundBlur, true
	case "mask_source":
		return p.MaskSource.String(), true
	case "vintage_intensity":
		return p.VintageIntensity, true
	case "edge_intensity":
		return p.EdgeIntensity, true
	case "overlay_speed":
		return p.OverlaySpeed, true
	case "overlay_size":
		return p.OverlaySize, true
	case "always_visible":
		return p.AlwaysVisible, true
	}
	return nil, false
}

// SetParam assigns a parameter by catalogue key. The value is not clamped;
// Normalize does that.
func (p *Params) SetParam(key string, value any) error {
	switch key {
	case "mask_source":
		name, ok := value.(string)
		if !ok {
			return fmt.Errorf("parameter %s: want string, got %T", key, value)
		}
		return p.MaskSource.UnmarshalText([]byte(name))
	case "always_visible":
		on, ok := value.(bool)
		if !ok {
			return fmt.Errorf("parameter %s: want bool, got %T", key, value)
		}
		p.AlwaysVisible = on
		return nil
	}

	var v float64
	switch n := value.(type) {
	case float64:
		v = n
	case int:
		v = float64(n)
	default:
		return fmt.Errorf("parameter %s: want number, got %T", key, value)
	}
	switch key {
	case "blur_radius":
		p.BlurRadius = v
	case "pixel_size":
		// clamp before converting, out of range floats do not fit an int
		p.PixelSize = int(math.Round(clampFloat(v, MinPixelSize, MaxPixelSize)))
	case "background_blur":
		p.BackgroundBlur = v
	case "vintage_intensity":
		p.VintageIntensity = v
	case "edge_intensity":
		p.EdgeIntensity = v
	case "overlay_speed":
		p.OverlaySpeed = v
	case "overlay_size":
		p.OverlaySize = v
	default:
		return fmt.Errorf("unknown parameter: %q", key)
	}
	return nil
}
