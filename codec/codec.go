// Package codec converts bed step lists to and from the compact code stored
// in a visit's treatment_name column, e.g. "Hot/ICT/Mg".
//
// The code is lossy: only tokens that match a catalog template decode back to
// the template's duration, timer flag and color. Anything else decodes to a
// fallback step.
package codec

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/ariebrainware/ltt-bedboard/model"
)

const (
	// Separator joins step abbreviations.
	Separator = "/"
	// FallbackDuration is the duration in seconds of a step decoded from an
	// unknown token.
	FallbackDuration = 600
	// FallbackColor is the color of a step decoded from an unknown token.
	FallbackColor = "gray"

	fallbackRunes = 3
)

// Encode joins the abbreviation of every step with Separator.
func Encode(steps []model.TreatmentStep, templates []model.QuickTreatment) string {
	if len(steps) == 0 {
		return ""
	}
	ordered := byNameLength(templates)
	parts := make([]string, 0, len(steps))
	for _, s := range steps {
		parts = append(parts, abbreviate(s, ordered))
	}
	return strings.Join(parts, Separator)
}

// Abbreviate returns the short display label of one step.
func Abbreviate(step model.TreatmentStep, templates []model.QuickTreatment) string {
	return abbreviate(step, byNameLength(templates))
}

func abbreviate(step model.TreatmentStep, ordered []model.QuickTreatment) string {
	name := strings.ToLower(strings.TrimSpace(step.Name))
	for _, t := range ordered {
		if strings.EqualFold(step.Name, t.Label) || strings.EqualFold(step.ID, t.Label) {
			return t.Label
		}
	}
	for _, t := range ordered {
		if t.Name != "" && strings.Contains(name, strings.ToLower(t.Name)) {
			return t.Label
		}
	}
	return firstRunes(step.Name, fallbackRunes)
}

// Decode splits code on Separator and rebuilds one step per token.
func Decode(code string, templates []model.QuickTreatment) []model.TreatmentStep {
	var steps []model.TreatmentStep
	for i, token := range strings.Split(code, Separator) {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		if t, ok := lookup(token, templates); ok {
			steps = append(steps, t.Step())
			continue
		}
		steps = append(steps, model.TreatmentStep{
			ID:          fmt.Sprintf("custom-%d", i),
			Name:        token,
			Duration:    FallbackDuration,
			EnableTimer: true,
			Color:       FallbackColor,
		})
	}
	return steps
}

func lookup(token string, templates []model.QuickTreatment) (model.QuickTreatment, bool) {
	for _, t := range templates {
		if strings.EqualFold(token, t.Label) {
			return t, true
		}
	}
	for _, t := range templates {
		if strings.EqualFold(token, t.Name) {
			return t, true
		}
	}
	return model.QuickTreatment{}, false
}

// byNameLength orders templates longest name first so "Hot Pack" wins over a
// shorter template whose name it contains.
func byNameLength(templates []model.QuickTreatment) []model.QuickTreatment {
	out := make([]model.QuickTreatment, len(templates))
	copy(out, templates)
	sort.SliceStable(out, func(i, j int) bool {
		return utf8.RuneCountInString(out[i].Name) > utf8.RuneCountInString(out[j].Name)
	})
	return out
}

func firstRunes(s string, n int) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), Separator, "")
	if s == "" {
		return "?"
	}
	r := []rune(s)
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
