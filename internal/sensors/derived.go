package sensors

import (
	"github.com/kermanimohammad/SensorPlus-Client/internal/config"
	colorful "github.com/lucasb-eyer/go-colorful"
)

// Feedback is the transient visual effect derived from one reading.
type Feedback struct {
	Normalized float64
	Emissive   *colorful.Color // nil for binary kinds
	Scale      float64         // uniform world scale for the handle
	Visibility *float64        // set for binary kinds only
}

// DeriveFeedback maps a reading onto emissive colour, size pulse and
// visibility. baseScale is the world scale the handle rests at.
//  1. Continuous kinds normalise the clamped magnitude into [0,1], blend the
//     emissive colour across the type's range and pulse the size by
//     base*(1+a*t) when pulsing is enabled.
//  2. Light toggles visibility between 1 and 0.25 and resets the scale.
func DeriveFeedback(r *Reading, baseScale float64) Feedback {
	def, _ := Definition(r.Kind)
	if !r.Continuous() {
		vis := 0.25
		if r.On != nil && *r.On {
			vis = 1
		}
		return Feedback{Scale: baseScale, Visibility: &vis}
	}

	t := def.Range.Normalize(r.Magnitude())
	lo, hi := def.emissiveBounds()
	c := lo.BlendRgb(hi, t)

	fb := Feedback{Normalized: t, Emissive: &c, Scale: baseScale}
	if config.EnablePulse {
		fb.Scale = baseScale * (1 + def.Pulse*t)
	}
	return fb
}
