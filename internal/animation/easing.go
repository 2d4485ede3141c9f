package animation

import (
	"math"
	"sort"
	"strings"
)

// Easing maps linear progress in [0,1] to eased progress. Every easing
// returns 0 at 0 and 1 at 1; back easings overshoot in between.
type Easing func(t float64) float64

func Linear(t float64) float64 { return t }

func EaseInQuad(t float64) float64  { return t * t }
func EaseOutQuad(t float64) float64 { return 1 - (1-t)*(1-t) }
func EaseInOutQuad(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	return 1 - math.Pow(-2*t+2, 2)/2
}

func EaseInCubic(t float64) float64  { return t * t * t }
func EaseOutCubic(t float64) float64 { return 1 - math.Pow(1-t, 3) }

// EaseInOutCubic is the smooth in-out curve used for keyframe tracks.
func EaseInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

func EaseInQuart(t float64) float64  { return t * t * t * t }
func EaseOutQuart(t float64) float64 { return 1 - math.Pow(1-t, 4) }
func EaseInOutQuart(t float64) float64 {
	if t < 0.5 {
		return 8 * t * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 4)/2
}

func EaseInSine(t float64) float64    { return 1 - math.Cos(t*math.Pi/2) }
func EaseOutSine(t float64) float64   { return math.Sin(t * math.Pi / 2) }
func EaseInOutSine(t float64) float64 { return -(math.Cos(math.Pi*t) - 1) / 2 }

func EaseInExpo(t float64) float64 {
	if t <= 0 {
		return 0
	}
	return math.Pow(2, 10*t-10)
}

func EaseOutExpo(t float64) float64 {
	if t >= 1 {
		return 1
	}
	return 1 - math.Pow(2, -10*t)
}

func EaseInOutExpo(t float64) float64 {
	switch {
	case t <= 0:
		return 0
	case t >= 1:
		return 1
	case t < 0.5:
		return math.Pow(2, 20*t-10) / 2
	default:
		return (2 - math.Pow(2, -20*t+10)) / 2
	}
}

func EaseOutBack(t float64) float64 {
	const c1 = 1.70158
	const c3 = c1 + 1
	return 1 + c3*math.Pow(t-1, 3) + c1*math.Pow(t-1, 2)
}

func EaseOutBounce(t float64) float64 {
	const n1 = 7.5625
	const d1 = 2.75
	switch {
	case t < 1/d1:
		return n1 * t * t
	case t < 2/d1:
		t -= 1.5 / d1
		return n1*t*t + 0.75
	case t < 2.5/d1:
		t -= 2.25 / d1
		return n1*t*t + 0.9375
	default:
		t -= 2.625 / d1
		return n1*t*t + 0.984375
	}
}

var easings = map[string]Easing{
	"linear":         Linear,
	"easeInQuad":     EaseInQuad,
	"easeOutQuad":    EaseOutQuad,
	"easeInOutQuad":  EaseInOutQuad,
	"easeInCubic":    EaseInCubic,
	"easeOutCubic":   EaseOutCubic,
	"easeInOutCubic": EaseInOutCubic,
	"easeInQuart":    EaseInQuart,
	"easeOutQuart":   EaseOutQuart,
	"easeInOutQuart": EaseInOutQuart,
	"easeInSine":     EaseInSine,
	"easeOutSine":    EaseOutSine,
	"easeInOutSine":  EaseInOutSine,
	"easeInExpo":     EaseInExpo,
	"easeOutExpo":    EaseOutExpo,
	"easeInOutExpo":  EaseInOutExpo,
	"easeOutBack":    EaseOutBack,
	"easeOutBounce":  EaseOutBounce,
}

// EasingByName looks an easing up by name, ignoring case, dashes and
// underscores, so "ease-in-out-cubic" and "easeInOutCubic" are the same.
func EasingByName(name string) (Easing, bool) {
	norm := func(s string) string {
		s = strings.NewReplacer("-", "", "_", "", " ", "").Replace(s)
		return strings.ToLower(s)
	}
	want := norm(name)
	for k, e := range easings {
		if norm(k) == want {
			return e, true
		}
	}
	return nil, false
}

// EasingNames lists the registered easing names in sorted order.
func EasingNames() []string {
	names := make([]string, 0, len(easings))
	for k := range easings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
