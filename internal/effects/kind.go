// Effect kinds and mask sources
package effects

import (
	"fmt"
	"strings"
)

// Kind identifies the single effect applied to a rendered frame
type Kind int

const (
	KindNone Kind = iota
	KindGrayscale
	KindBlur
	KindPixelate
	KindBackgroundBlur
	KindVintage
	KindEdgeEnhance
	KindOverlay
	KindMirror
)

var kindNames = map[Kind]string{
	KindNone:           "none",
	KindGrayscale:      "grayscale",
	KindBlur:           "blur",
	KindPixelate:       "pixelate",
	KindBackgroundBlur: "background_blur",
	KindVintage:        "vintage",
	KindEdgeEnhance:    "edge_enhance",
	KindOverlay:        "overlay",
	KindMirror:         "mirror",
}

// Kinds returns every effect kind in display order
func Kinds() []Kind {
	return []Kind{
		KindNone,
		KindGrayscale,
		KindBlur,
		KindPixelate,
		KindBackgroundBlur,
		KindVintage,
		KindEdgeEnhance,
		KindOverlay,
		KindMirror,
	}
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Valid reports whether k names a known effect
func (k Kind) Valid() bool {
	_, ok := kindNames[k]
	return ok
}

// ParseKind resolves an effect name. "cat_overlay" is accepted as an alias of overlay.
func ParseKind(name string) (Kind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "cat_overlay" {
		return KindOverlay, nil
	}
	for k, n := range kindNames {
		if n == name {
			return k, nil
		}
	}
	return KindNone, fmt.Errorf("unknown effect: %q", name)
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("unknown effect kind: %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// MaskSource selects how background blur separates foreground from background
type MaskSource int

const (
	// MaskEllipse uses the CPU soft ellipse heuristic
	MaskEllipse MaskSource = iota
	// MaskSegmentation asks the configured segmentation model for a mask
	MaskSegmentation
)

func (m MaskSource) String() string {
	switch m {
	case MaskEllipse:
		return "ellipse"
	case MaskSegmentation:
		return "segmentation"
	default:
		return fmt.Sprintf("mask(%d)", int(m))
	}
}

func (m MaskSource) MarshalText() ([]byte, error) {
	switch m {
	case MaskEllipse, MaskSegmentation:
		return []byte(m.String()), nil
	}
	return nil, fmt.Errorf("unknown mask source: %d", int(m))
}

func (m *MaskSource) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "ellipse", "":
		*m = MaskEllipse
	case "segmentation", "model":
		*m = MaskSegmentation
	default:
		return fmt.Errorf("unknown mask source: %q", string(text))
	}
	return nil
}
