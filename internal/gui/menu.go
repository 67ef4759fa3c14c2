// Menu handler for application actions
package gui

import (
	"errors"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/capture"
	"camera-effects/internal/control"
	"camera-effects/internal/effects"
)

// MenuHandler handles menu actions
type MenuHandler struct {
	window fyne.Window
	store  *control.Store
	source func() control.FrameSource
	logger *logrus.Logger
}

func NewMenuHandler(window fyne.Window, store *control.Store, source func() control.FrameSource, logger *logrus.Logger) *MenuHandler {
	return &MenuHandler{
		window: window,
		store:  store,
		source: source,
		logger: logger,
	}
}

func (mh *MenuHandler) GetMainMenu() *fyne.MainMenu {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Save Snapshot...", mh.saveSnapshot),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Exit", func() {
			mh.window.Close()
		}),
	)

	items := make([]*fyne.MenuItem, 0, len(effects.Kinds())+2)
	for _, d := range effects.Catalog() {
		kind := d.Kind
		items = append(items, fyne.NewMenuItem(d.Name, func() {
			mh.store.Update(func(st *effects.State) {
				st.Enabled = true
				st.Effect = kind
			})
		}))
	}
	items = append(items, fyne.NewMenuItemSeparator(), fyne.NewMenuItem("Reset Parameters", func() {
		mh.store.Update(func(st *effects.State) { st.Params = effects.DefaultParams() })
	}))
	effectsMenu := fyne.NewMenu("Effects", items...)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mh.showAbout),
	)

	return fyne.NewMainMenu(fileMenu, effectsMenu, helpMenu)
}

func (mh *MenuHandler) saveSnapshot() {
	src := mh.source()
	if src == nil {
		mh.showError("No Stream", errors.New("no processed stream is running"))
		return
	}

	// grab the frame now, not when the dialog closes
	frame := gocv.NewMat()
	if !src.Snapshot(&frame) {
		frame.Close()
		mh.showError("No Frame", errors.New("no frame has been rendered yet"))
		return
	}

	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		defer frame.Close()
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()

		if err := capture.SaveImage(frame, path); err != nil {
			mh.showError("Failed to Save Snapshot", err)
			return
		}
		mh.logger.WithFields(logrus.Fields{
			"function": "MenuHandler.saveSnapshot",
			"filepath": path,
		}).Info("Snapshot saved")
	}, mh.window)

	fileDialog.SetFileName("snapshot.png")
	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".png", ".jpg", ".jpeg", ".tiff", ".tif", ".bmp"}))
	fileDialog.Show()
}

func (mh *MenuHandler) showAbout() {
	content := container.NewVBox(
		widget.NewLabel("Camera Effects"),
		widget.NewSeparator(),
		widget.NewLabel("Live camera effects with a virtual camera output"),
		widget.NewLabel("and a remote control API."),
		widget.NewSeparator(),
		widget.NewLabel("Built with Go, Fyne and OpenCV"),
	)

	aboutDialog := dialog.NewCustom("About", "Close", content, mh.window)
	aboutDialog.Resize(fyne.NewSize(400, 240))
	aboutDialog.Show()
}

func (mh *MenuHandler) showError(title string, err error) {
	mh.logger.WithFields(logrus.Fields{
		"function": "MenuHandler.showError",
		"error":    err.Error(),
	}).Error(title)
	dialog.ShowError(err, mh.window)
}
