package overlay

import (
	"image/color"
	"math/rand"
)

// Palette is the coat of one sprite
type Palette struct {
	Name   string
	Body   color.RGBA
	Stripe color.RGBA
}

var palettes = []Palette{
	{Name: "orange tabby", Body: rgb(0xFF, 0x8C, 0x42), Stripe: rgb(0xD4, 0x64, 0x1C)},
	{Name: "brown tabby", Body: rgb(0x8B, 0x45, 0x13), Stripe: rgb(0x65, 0x43, 0x21)},
	{Name: "black", Body: rgb(0x2F, 0x2F, 0x2F), Stripe: rgb(0x00, 0x00, 0x00)},
	{Name: "gray", Body: rgb(0xD3, 0xD3, 0xD3), Stripe: rgb(0xA9, 0xA9, 0xA9)},
	{Name: "white", Body: rgb(0xFF, 0xFF, 0xFF), Stripe: rgb(0xE0, 0xE0, 0xE0)},
	{Name: "cream", Body: rgb(0xFF, 0xE4, 0xB5), Stripe: rgb(0xDE, 0xB8, 0x87)},
}

func randomPalette(rng *rand.Rand) Palette {
	return palettes[rng.Intn(len(palettes))]
}

func rgb(r, g, b uint8) color.RGBA {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}
