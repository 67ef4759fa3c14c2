// Info panel with tick statistics and quality metrics
package gui

import (
	"fmt"
	"sort"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"camera-effects/internal/metrics"
)

// InfoPanel shows how the running session is doing
type InfoPanel struct {
	container *fyne.Container

	statsLabel     *widget.Label
	errorLabel     *widget.Label
	metricsContent *fyne.Container
}

func NewInfoPanel() *InfoPanel {
	ip := &InfoPanel{}
	ip.initializeUI()
	return ip
}

func (ip *InfoPanel) initializeUI() {
	ip.statsLabel = widget.NewLabel("No active session")
	ip.errorLabel = widget.NewLabel("")
	ip.errorLabel.Wrapping = fyne.TextWrapWord
	ip.errorLabel.Importance = widget.DangerImportance

	ip.metricsContent = container.NewVBox(
		widget.NewLabel("Quality metrics compare the output with the camera frame."),
	)

	ip.container = container.NewVBox(
		widget.NewCard("📊 Pipeline", "", container.NewVBox(ip.statsLabel, ip.errorLabel)),
		widget.NewSeparator(),
		widget.NewCard("📈 Quality", "", ip.metricsContent),
	)
}

func (ip *InfoPanel) GetContainer() fyne.CanvasObject {
	return ip.container
}

// UpdateStats shows a statistics snapshot. Call it on the UI goroutine.
func (ip *InfoPanel) UpdateStats(s metrics.Snapshot) {
	ip.statsLabel.SetText(formatStats(s))
	if s.LastError != "" {
		ip.errorLabel.SetText("Last error: " + s.LastError)
	} else {
		ip.errorLabel.SetText("")
	}
}

func formatStats(s metrics.Snapshot) string {
	return fmt.Sprintf("%.1f fps · render %s\nframes %d · failed %d · missed %d · resized %d",
		s.FPS, s.RenderCost.Round(10*time.Microsecond), s.Rendered, s.Failed, s.SourceMiss, s.Resizes)
}

func formatSize(w, h int) string {
	return fmt.Sprintf("%d × %d", w, h)
}

// UpdateMetrics shows quality values keyed by metric name
func (ip *InfoPanel) UpdateMetrics(values map[string]float64) {
	ip.metricsContent.RemoveAll()
	if len(values) == 0 {
		ip.metricsContent.Add(widget.NewLabel("🔄 Waiting for frames..."))
		ip.metricsContent.Refresh()
		return
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ip.metricsContent.Add(createMetricWidget(k, values[k]))
	}
	ip.metricsContent.Refresh()
}

// Clear resets the panel when the session goes away
func (ip *InfoPanel) Clear() {
	ip.statsLabel.SetText("No active session")
	ip.errorLabel.SetText("")
	ip.UpdateMetrics(nil)
}

// rating maps a metric value onto a coarse closeness label
func rating(name string, value float64) (string, fyne.Resource) {
	type band struct {
		limit float64
		label string
		icon  fyne.Resource
	}
	var bands []band
	higher := true
	switch name {
	case "psnr":
		bands = []band{{40, "Near identical", theme.ConfirmIcon()}, {30, "Close", theme.InfoIcon()}, {20, "Altered", theme.WarningIcon()}}
	case "ssim":
		bands = []band{{0.95, "Near identical", theme.ConfirmIcon()}, {0.8, "Close", theme.InfoIcon()}, {0.6, "Altered", theme.WarningIcon()}}
	case "mse":
		higher = false
		bands = []band{{100, "Near identical", theme.ConfirmIcon()}, {500, "Close", theme.InfoIcon()}, {1000, "Altered", theme.WarningIcon()}}
	default:
		return "", nil
	}
	for _, b := range bands {
		if (higher && value > b.limit) || (!higher && value < b.limit) {
			return b.label, b.icon
		}
	}
	return "Heavily altered", theme.ErrorIcon()
}

func createMetricWidget(name string, value float64) fyne.CanvasObject {
	var text string
	switch name {
	case "psnr":
		text = fmt.Sprintf("📡 PSNR: %.2f dB", value)
	case "ssim":
		text = fmt.Sprintf("📈 SSIM: %.3f", value)
	case "mse":
		text = fmt.Sprintf("📊 MSE: %.2f", value)
	default:
		text = fmt.Sprintf("📈 %s: %.3f", name, value)
	}

	label := widget.NewLabel(text)
	quality, icon := rating(name, value)
	if icon == nil {
		return label
	}
	return container.NewVBox(
		label,
		container.NewHBox(widget.NewIcon(icon), widget.NewLabel(quality)),
	)
}
