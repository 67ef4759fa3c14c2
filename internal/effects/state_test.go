package effects

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"none", KindNone, false},
		{"grayscale", KindGrayscale, false},
		{" Blur ", KindBlur, false},
		{"background_blur", KindBackgroundBlur, false},
		{"edge_enhance", KindEdgeEnhance, false},
		{"cat_overlay", KindOverlay, false},
		{"overlay", KindOverlay, false},
		{"sepia", KindNone, true},
		{"", KindNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestKindNamesRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		require.True(t, k.Valid())
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
	assert.False(t, Kind(42).Valid())
	assert.Equal(t, "kind(42)", Kind(42).String())

	_, err := Kind(42).MarshalText()
	assert.Error(t, err)
}

func TestStateJSON(t *testing.T) {
	var st State
	err := json.Unmarshal([]byte(`{"enabled":true,"effect":"vintage","params":{"mask_source":"model","vintage_intensity":40}}`), &st)
	require.NoError(t, err)
	assert.True(t, st.Enabled)
	assert.Equal(t, KindVintage, st.Effect)
	assert.Equal(t, MaskSegmentation, st.Params.MaskSource)
	assert.Equal(t, 40.0, st.Params.VintageIntensity)

	out, err := json.Marshal(DefaultState())
	require.NoError(t, err)
	assert.Contains(t, string(out), `"effect":"none"`)
	assert.Contains(t, string(out), `"mask_source":"ellipse"`)

	err = json.Unmarshal([]byte(`{"effect":"sparkles"}`), &st)
	assert.Error(t, err)
}

func TestStateYAML(t *testing.T) {
	var st State
	err := yaml.Unmarshal([]byte("enabled: true\neffect: pixelate\nparams:\n  pixel_size: 12\n"), &st)
	require.NoError(t, err)
	assert.Equal(t, KindPixelate, st.Effect)
	assert.Equal(t, 12, st.Params.PixelSize)
}

func TestParamsNormalize(t *testing.T) {
	p := Params{
		BlurRadius:       -3,
		PixelSize:        1000,
		BackgroundBlur:   math.NaN(),
		MaskSource:       MaskSource(7),
		VintageIntensity: 150,
		EdgeIntensity:    -1,
		OverlaySpeed:     1,
		OverlaySize:      500,
	}.Normalize()

	assert.Equal(t, MinBlurRadius, p.BlurRadius)
	assert.Equal(t, MaxPixelSize, p.PixelSize)
	assert.Equal(t, MinBackgroundBlur, p.BackgroundBlur)
	assert.Equal(t, MaskEllipse, p.MaskSource)
	assert.Equal(t, MaxIntensity, p.VintageIntensity)
	assert.Equal(t, MinIntensity, p.EdgeIntensity)
	assert.Equal(t, MinOverlaySpeed, p.OverlaySpeed)
	assert.Equal(t, MaxOverlaySize, p.OverlaySize)

	d := DefaultParams()
	assert.Equal(t, d, d.Normalize())
}

func TestStateNormalize(t *testing.T) {
	st := State{Enabled: true, Effect: Kind(-1), Params: Params{PixelSize: 0}}.Normalize()
	assert.Equal(t, KindNone, st.Effect)
	assert.Equal(t, MinPixelSize, st.Params.PixelSize)
}

func TestClampByte(t *testing.T) {
	assert.Equal(t, uint8(0), clampByte(-10))
	assert.Equal(t, uint8(255), clampByte(300))
	assert.Equal(t, uint8(128), clampByte(127.5))
	assert.Equal(t, uint8(127), clampByte(127.4))
}

func TestCatalog(t *testing.T) {
	cat := Catalog()
	require.Len(t, cat, len(Kinds()))
	for i, k := range Kinds() {
		assert.Equal(t, k, cat[i].Kind)
		assert.NotEmpty(t, cat[i].Name)
		for _, p := range cat[i].Parameters {
			assert.NotEmpty(t, p.Key)
			if p.Type == "int" || p.Type == "float" {
				assert.Less(t, p.Min, p.Max, p.Key)
			}
		}
	}

	d, ok := Describe(KindPixelate)
	require.True(t, ok)
	require.Len(t, d.Parameters, 1)
	assert.Equal(t, "pixel_size", d.Parameters[0].Key)
	assert.Equal(t, 2.0, d.Parameters[0].Min)
	assert.Equal(t, 40.0, d.Parameters[0].Max)

	_, ok = Describe(Kind(99))
	assert.False(t, ok)
}

func TestParamsByKey(t *testing.T) {
	p := DefaultParams()
	for _, d := range Catalog() {
		for _, info := range d.Parameters {
			v, ok := p.Param(info.Key)
			require.True(t, ok, info.Key)
			assert.EqualValues(t, info.Default, v, info.Key)
			require.NoError(t, p.SetParam(info.Key, v), info.Key)
		}
	}
	assert.Equal(t, DefaultParams(), p)

	require.NoError(t, p.SetParam("pixel_size", 12.6))
	assert.Equal(t, 13, p.PixelSize)
	require.NoError(t, p.SetParam("blur_radius", 3))
	assert.Equal(t, 3.0, p.BlurRadius)
	require.NoError(t, p.SetParam("mask_source", "segmentation"))
	assert.Equal(t, MaskSegmentation, p.MaskSource)
	require.NoError(t, p.SetParam("always_visible", false))
	assert.False(t, p.AlwaysVisible)

	assert.Error(t, p.SetParam("always_visible", "yes"))
	assert.Error(t, p.SetParam("mask_source", 1.0))
	assert.Error(t, p.SetParam("edge_intensity", "high"))
	assert.Error(t, p.SetParam("sparkle_count", 3.0))
	_, ok := p.Param("sparkle_count")
	assert.False(t, ok)
}

func TestSetParam_PixelSizeOutOfRange(t *testing.T) {
	p := DefaultParams()

	require.NoError(t, p.SetParam("pixel_size", 1e300))
	assert.Equal(t, MaxPixelSize, p.PixelSize)
	require.NoError(t, p.SetParam("pixel_size", -1e300))
	assert.Equal(t, MinPixelSize, p.PixelSize)
	require.NoError(t, p.SetParam("pixel_size", math.Inf(1)))
	assert.Equal(t, MaxPixelSize, p.PixelSize)
	require.NoError(t, p.SetParam("pixel_size", math.NaN()))
	assert.Equal(t, MinPixelSize, p.PixelSize)
	require.NoError(t, p.SetParam("pixel_size", 64.4))
	assert.Equal(t, 64, p.PixelSize)
}
