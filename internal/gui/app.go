// Preview window for the processed stream
package gui

import (
	"context"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/config"
	"camera-effects/internal/control"
	"camera-effects/internal/effects"
	"camera-effects/internal/metrics"
)

const (
	statsInterval   = 500 * time.Millisecond
	qualityInterval = 2 * time.Second
)

// Application is the desktop preview: the live output, the effect controls
// and the session statistics side by side.
type Application struct {
	app    fyne.App
	window fyne.Window
	logger *logrus.Logger
	cfg    config.PreviewConfig

	store     *control.Store
	evaluator *metrics.Evaluator

	// GUI components
	preview     *PreviewCanvas
	panel       *ControlPanel
	info        *InfoPanel
	menuHandler *MenuHandler
	statusCard  *widget.Card

	mu     sync.RWMutex
	source control.FrameSource
	fps    float64

	unsubscribe func()
	onClose     func()
}

func NewApplication(app fyne.App, store *control.Store, cfg config.PreviewConfig, logger *logrus.Logger) *Application {
	window := app.NewWindow(cfg.Title)
	window.Resize(fyne.NewSize(float32(cfg.Width), float32(cfg.Height)))
	window.CenterOnScreen()

	a := &Application{
		app:       app,
		window:    window,
		logger:    logger,
		cfg:       cfg,
		store:     store,
		evaluator: metrics.NewEvaluator(),
	}

	a.initializeGUI()
	a.setupLayout()
	a.setupCallbacks()
	return a
}

func (a *Application) initializeGUI() {
	a.preview = NewPreviewCanvas(a.logger)
	a.panel = NewControlPanel(a.store, a.logger)
	a.info = NewInfoPanel()
	a.menuHandler = NewMenuHandler(a.window, a.store, a.Source, a.logger)
	a.statusCard = widget.NewCard("📊 Status", "", widget.NewLabel("Waiting for camera..."))
}

func (a *Application) setupLayout() {
	right := container.NewVSplit(
		a.statusCard,
		container.NewScroll(a.info.GetContainer()),
	)
	right.SetOffset(0.2)

	centerAndRight := container.NewHSplit(
		container.NewPadded(a.preview.GetContainer()),
		right,
	)
	centerAndRight.SetOffset(0.75)

	content := container.NewHSplit(a.panel.GetContainer(), centerAndRight)
	content.SetOffset(0.25)

	a.window.SetMainMenu(a.menuHandler.GetMainMenu())
	a.window.SetContent(content)
}

func (a *Application) setupCallbacks() {
	// store changes may come from the control server; widgets are only
	// touched on the UI goroutine
	a.unsubscribe = a.store.Subscribe(func(current, _ effects.State) {
		fyne.Do(func() {
			a.panel.Sync(current)
		})
	})

	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})
}

// OnClose registers fn to run when the window is closed
func (a *Application) OnClose(fn func()) {
	a.onClose = fn
}

// SetSource attaches the running session. A nil source detaches it.
func (a *Application) SetSource(src control.FrameSource, fps float64) {
	a.mu.Lock()
	a.source = src
	a.fps = fps
	a.mu.Unlock()

	fyne.Do(func() {
		if src == nil {
			a.preview.Reset("Camera stopped")
			a.info.Clear()
			a.updateStatusMessage("⏹️ No active session")
			return
		}
		a.updateStatusMessage("🎥 Streaming")
	})
}

// Source returns the attached session, or nil
func (a *Application) Source() control.FrameSource {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.source
}

func (a *Application) frameRate() float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.fps
}

// Run shows the window and blocks until it is closed or ctx is cancelled.
// It must be called from the main goroutine.
func (a *Application) Run(ctx context.Context) {
	a.logger.WithFields(logrus.Fields{
		"function": "Application.Run",
		"title":    a.cfg.Title,
	}).Info("Showing preview window")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.refreshLoop(ctx)
	}()

	closed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			fyne.Do(a.app.Quit)
		case <-closed:
		}
	}()

	a.window.ShowAndRun()
	close(closed)
	cancel()
	wg.Wait()
}

func (a *Application) refreshLoop(ctx context.Context) {
	frame := gocv.NewMat()
	defer frame.Close()
	input := gocv.NewMat()
	defer input.Close()

	interval := time.Second / 30
	if fps := a.frameRate(); fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastStats, lastQuality time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			src := a.Source()
			if src == nil || !src.Snapshot(&frame) {
				continue
			}
			img, err := frameImage(frame)
			if err != nil {
				a.logger.WithFields(logrus.Fields{
					"function": "Application.refreshLoop",
					"error":    err.Error(),
				}).Debug("Frame conversion failed")
				continue
			}
			fyne.Do(func() { a.preview.Show(img) })

			if now.Sub(lastStats) >= statsInterval {
				lastStats = now
				stats := src.Stats()
				fyne.Do(func() { a.info.UpdateStats(stats) })
			}
			if now.Sub(lastQuality) >= qualityInterval && src.SnapshotInput(&input) {
				lastQuality = now
				values, err := a.evaluator.CalculateAll(input, frame)
				if err != nil {
					continue
				}
				fyne.Do(func() { a.info.UpdateMetrics(values) })
			}
		}
	}
}

func (a *Application) updateStatusMessage(message string) {
	if a.statusCard != nil {
		a.statusCard.SetContent(widget.NewLabel(message))
	}
}

func (a *Application) cleanup() {
	a.logger.WithField("function", "Application.cleanup").Info("Closing preview window")
	if a.unsubscribe != nil {
		a.unsubscribe()
	}
	if a.onClose != nil {
		a.onClose()
	}
}
