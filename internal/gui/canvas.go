// Live preview of the processed stream
package gui

import (
	"image"
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// PreviewCanvas shows the most recent presented frame
type PreviewCanvas struct {
	logger *logrus.Logger

	card  *widget.Card
	image *canvas.Image
	size  image.Point
}

func NewPreviewCanvas(logger *logrus.Logger) *PreviewCanvas {
	pc := &PreviewCanvas{logger: logger}

	pc.image = canvas.NewImageFromImage(placeholder(320, 240))
	pc.image.FillMode = canvas.ImageFillContain
	pc.image.ScaleMode = canvas.ImageScaleFastest
	pc.image.SetMinSize(fyne.NewSize(320, 240))

	pc.card = widget.NewCard("Preview", "Waiting for camera...", pc.image)
	return pc
}

func placeholder(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	fill := color.RGBA{R: 32, G: 32, B: 36, A: 255}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, fill)
		}
	}
	return img
}

func (pc *PreviewCanvas) GetContainer() fyne.CanvasObject {
	return pc.card
}

// frameImage converts a BGR frame for display. It is safe to call off the UI goroutine.
func frameImage(frame gocv.Mat) (image.Image, error) {
	return frame.ToImage()
}

// Show replaces the displayed image. Call it on the UI goroutine.
func (pc *PreviewCanvas) Show(img image.Image) {
	if img == nil || img.Bounds().Empty() {
		return
	}
	pc.image.Image = img
	pc.image.Refresh()

	if size := img.Bounds().Size(); size != pc.size {
		pc.size = size
		pc.card.SetSubTitle(formatSize(size.X, size.Y))
		pc.logger.WithFields(logrus.Fields{
			"function": "PreviewCanvas.Show",
			"width":    size.X,
			"height":   size.Y,
		}).Debug("Preview size changed")
	}
}

// Reset shows the placeholder again
func (pc *PreviewCanvas) Reset(reason string) {
	pc.image.Image = placeholder(320, 240)
	pc.image.Refresh()
	pc.size = image.Point{}
	pc.card.SetSubTitle(reason)
}
