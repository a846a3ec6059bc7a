package codec

import (
	"testing"

	"github.com/ariebrainware/ltt-bedboard/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templates() []model.QuickTreatment {
	return model.DefaultQuickTreatments
}

func catalogStep(label string) model.TreatmentStep {
	for _, q := range model.DefaultQuickTreatments {
		if q.Label == label {
			return q.Step()
		}
	}
	panic("unknown label " + label)
}

func TestEncode(t *testing.T) {
	steps := []model.TreatmentStep{catalogStep("Hot"), catalogStep("ICT"), catalogStep("Mg")}
	assert.Equal(t, "Hot/ICT/Mg", Encode(steps, templates()))
	assert.Equal(t, "", Encode(nil, templates()))
}

func TestEncode_NameSubstring(t *testing.T) {
	steps := []model.TreatmentStep{
		{Name: "Hot Pack (lumbar)"},
		{Name: "manual therapy 20min"},
		{Name: "Stretching"},
	}
	assert.Equal(t, "Hot/Manual/Str", Encode(steps, templates()))
}

func TestEncode_Deterministic(t *testing.T) {
	steps := []model.TreatmentStep{{Name: "Cold Pack"}, {Name: "Pilates"}}
	first := Encode(steps, templates())
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Encode(steps, templates()))
	}
}

func TestAbbreviate_Fallback(t *testing.T) {
	assert.Equal(t, "?", Abbreviate(model.TreatmentStep{}, templates()))
	assert.Equal(t, "ab", Abbreviate(model.TreatmentStep{Name: "a/b"}, templates()))
	assert.Equal(t, "도수치", Abbreviate(model.TreatmentStep{Name: "도수치료"}, templates()))
}

func TestDecode_RoundTripCatalogSteps(t *testing.T) {
	for _, labels := range [][]string{
		{"Hot"},
		{"Hot", "ICT"},
		{"Cold", "TENS", "US", "Laser"},
		{"Hot", "Tx", "ICT", "Manual", "ESWT", "IR", "Mg"},
	} {
		var steps []model.TreatmentStep
		for _, l := range labels {
			steps = append(steps, catalogStep(l))
		}
		got := Decode(Encode(steps, templates()), templates())
		assert.Equal(t, steps, got, labels)
	}
}

func TestDecode_CaseInsensitiveAndNames(t *testing.T) {
	got := Decode("hot / ict/ Manual Therapy", templates())
	require.Len(t, got, 3)
	assert.Equal(t, catalogStep("Hot"), got[0])
	assert.Equal(t, catalogStep("ICT"), got[1])
	assert.Equal(t, catalogStep("Manual"), got[2])
	assert.False(t, got[2].EnableTimer)
}

func TestDecode_UnknownToken(t *testing.T) {
	got := Decode("Hot/Pilates", templates())
	require.Len(t, got, 2)
	assert.Equal(t, model.TreatmentStep{
		ID:          "custom-1",
		Name:        "Pilates",
		Duration:    FallbackDuration,
		EnableTimer: true,
		Color:       FallbackColor,
	}, got[1])
}

func TestDecode_Empty(t *testing.T) {
	assert.Empty(t, Decode("", templates()))
	assert.Empty(t, Decode(" / /", templates()))
}
