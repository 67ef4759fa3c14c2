// Control panel generated from the effect catalogue
package gui

import (
	"fmt"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
	"github.com/sirupsen/logrus"

	"camera-effects/internal/control"
	"camera-effects/internal/effects"
)

// paramWidget binds one catalogue parameter to its widget
type paramWidget struct {
	info   effects.ParameterInfo
	slider *widget.Slider
	value  *widget.Label
	check  *widget.Check
	choice *widget.Select
}

type ControlPanel struct {
	store  *control.Store
	logger *logrus.Logger

	container    *fyne.Container
	enabledCheck *widget.Check
	effectSelect *widget.Select
	description  *widget.Label
	paramsBox    *fyne.Container

	catalog []effects.Descriptor
	byName  map[string]effects.Descriptor
	current effects.Kind
	params  []*paramWidget

	// set while widgets are being updated from the store
	syncing bool
}

func NewControlPanel(store *control.Store, logger *logrus.Logger) *ControlPanel {
	cp := &ControlPanel{
		store:   store,
		logger:  logger,
		catalog: effects.Catalog(),
		byName:  make(map[string]effects.Descriptor),
		current: effects.Kind(-1),
	}
	cp.initializeUI()
	cp.Sync(store.State())
	return cp
}

func (cp *ControlPanel) initializeUI() {
	names := make([]string, 0, len(cp.catalog))
	for _, d := range cp.catalog {
		names = append(names, d.Name)
		cp.byName[d.Name] = d
	}

	cp.enabledCheck = widget.NewCheck("Effects enabled", func(on bool) {
		if cp.syncing {
			return
		}
		cp.store.Update(func(st *effects.State) { st.Enabled = on })
	})

	cp.effectSelect = widget.NewSelect(names, cp.onEffectSelected)
	cp.effectSelect.PlaceHolder = "Choose an effect..."

	cp.description = widget.NewLabel("")
	cp.description.Wrapping = fyne.TextWrapWord

	cp.paramsBox = container.NewVBox()

	effectCard := widget.NewCard("🎨 Effect", "",
		container.NewVBox(cp.enabledCheck, cp.effectSelect, cp.description))
	paramsCard := widget.NewCard("⚙️ Parameters", "", cp.paramsBox)

	cp.container = container.NewVBox(effectCard, widget.NewSeparator(), paramsCard)
}

func (cp *ControlPanel) GetContainer() fyne.CanvasObject {
	return container.NewVScroll(cp.container)
}

func (cp *ControlPanel) onEffectSelected(name string) {
	d, ok := cp.byName[name]
	if !ok {
		return
	}
	if d.Kind != cp.current {
		cp.current = d.Kind
		cp.description.SetText(d.Description)
		cp.buildParameters(d)
	}
	if cp.syncing {
		return
	}
	cp.store.Update(func(st *effects.State) { st.Effect = d.Kind })
	cp.logger.WithFields(logrus.Fields{
		"function": "ControlPanel.onEffectSelected",
		"effect":   d.Kind.String(),
	}).Debug("Effect selected")
}

func (cp *ControlPanel) buildParameters(d effects.Descriptor) {
	cp.paramsBox.RemoveAll()
	cp.params = cp.params[:0]

	if len(d.Parameters) == 0 {
		cp.paramsBox.Add(widget.NewLabel("ℹ️ No configurable parameters for this effect"))
		cp.paramsBox.Refresh()
		return
	}

	wasSyncing := cp.syncing
	cp.syncing = true
	params := cp.store.State().Params
	for _, info := range d.Parameters {
		pw := cp.createParameterWidget(info)
		cp.params = append(cp.params, pw)
		if v, ok := params.Param(info.Key); ok {
			pw.set(v)
		}
	}
	cp.syncing = wasSyncing
	cp.paramsBox.Refresh()
}

func (cp *ControlPanel) createParameterWidget(info effects.ParameterInfo) *paramWidget {
	pw := &paramWidget{info: info}
	cp.paramsBox.Add(widget.NewLabel(info.Name))

	switch info.Type {
	case "int", "float":
		pw.slider = widget.NewSlider(info.Min, info.Max)
		pw.slider.Step = info.Step
		if pw.slider.Step == 0 {
			pw.slider.Step = 1
		}
		pw.value = widget.NewLabel("")
		pw.slider.OnChanged = func(v float64) {
			pw.value.SetText(pw.format(v))
			cp.setParam(info.Key, v)
		}
		cp.paramsBox.Add(container.NewBorder(nil, nil, nil, pw.value, pw.slider))

	case "bool":
		pw.check = widget.NewCheck(info.Description, func(on bool) {
			cp.setParam(info.Key, on)
		})
		cp.paramsBox.Add(pw.check)
		return pw

	case "enum":
		pw.choice = widget.NewSelect(info.Options, func(opt string) {
			cp.setParam(info.Key, opt)
		})
		cp.paramsBox.Add(pw.choice)

	default:
		cp.paramsBox.Add(widget.NewLabel("❌ Unsupported parameter type"))
		return pw
	}

	hint := widget.NewLabel(info.Description)
	hint.Wrapping = fyne.TextWrapWord
	hint.TextStyle = fyne.TextStyle{Italic: true}
	cp.paramsBox.Add(hint)
	return pw
}

func (pw *paramWidget) format(v float64) string {
	if pw.info.Type == "int" {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}

// set updates the widget without echoing the value back to the store
func (pw *paramWidget) set(v any) {
	switch {
	case pw.slider != nil:
		f, ok := v.(float64)
		if !ok {
			return
		}
		// the catalogue range is narrower than what the store accepts
		if f < pw.slider.Min {
			pw.slider.Min = f
		}
		if f > pw.slider.Max {
			pw.slider.Max = f
		}
		if f != pw.slider.Value {
			pw.slider.SetValue(f)
		}
		pw.value.SetText(pw.format(f))
	case pw.check != nil:
		if on, ok := v.(bool); ok && on != pw.check.Checked {
			pw.check.SetChecked(on)
		}
	case pw.choice != nil:
		if s, ok := v.(string); ok && s != pw.choice.Selected {
			pw.choice.SetSelected(s)
		}
	}
}

func (cp *ControlPanel) setParam(key string, value any) {
	if cp.syncing {
		return
	}
	_, err := cp.store.Modify(func(st *effects.State) error {
		return st.Params.SetParam(key, value)
	})
	if err != nil {
		cp.logger.WithFields(logrus.Fields{
			"function": "ControlPanel.setParam",
			"param":    key,
			"error":    err.Error(),
		}).Warn("Parameter update rejected")
	}
}

// Sync shows st in the widgets. Call it on the UI goroutine.
func (cp *ControlPanel) Sync(st effects.State) {
	cp.syncing = true
	defer func() { cp.syncing = false }()

	if st.Enabled != cp.enabledCheck.Checked {
		cp.enabledCheck.SetChecked(st.Enabled)
	}
	if d, ok := effects.Describe(st.Effect); ok && cp.effectSelect.Selected != d.Name {
		cp.effectSelect.SetSelected(d.Name)
	}
	for _, pw := range cp.params {
		if v, ok := st.Params.Param(pw.info.Key); ok {
			pw.set(v)
		}
	}
}

// Selected reports the effect shown in the panel
func (cp *ControlPanel) Selected() effects.Kind {
	return cp.current
}
