// internal/dsp/trig.go
package dsp

import "math"

// Func selects the function evaluated by Approx.
type Func int

const (
	SinFunc Func = iota
	CosFunc
)

const (
	twoPi     = 2 * math.Pi
	halfPi    = math.Pi / 2
	quarterPi = math.Pi / 4
)

// Approx evaluates sine or cosine of angle (radians, any range) with a
// centered two-term Taylor expansion. The input is folded into [0, π] and
// the expansion point is chosen so the argument stays within π/4 of it.
// Worst-case absolute error is about 0.016 near odd multiples of π/4; this
// is an approximation, not exact trigonometry.
func Approx(angle float64, kind Func) float64 {
	angle = math.Mod(angle, twoPi)
	if angle < 0 {
		angle += twoPi
	}
	if kind == CosFunc {
		angle += halfPi
		if angle >= twoPi {
			angle -= twoPi
		}
	}

	sign := 1.0
	if angle > math.Pi {
		angle -= math.Pi
		sign = -1
	}

	var r float64
	switch {
	case angle <= quarterPi:
		r = angle - angle*angle*angle/6
	case angle <= 3*quarterPi:
		d := angle - halfPi
		r = 1 - d*d/2
	default:
		a := angle - math.Pi
		r = -a + a*a*a/6
	}
	return sign * r
}

// Sin is Approx(angle, SinFunc).
func Sin(angle float64) float64 { return Approx(angle, SinFunc) }

// Cos is Approx(angle, CosFunc).
func Cos(angle float64) float64 { return Approx(angle, CosFunc) }
