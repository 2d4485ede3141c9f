package animation

import "sort"

// Keyframe is a value pinned to a time in seconds. Easing names the curve
// used to reach this keyframe from the previous one.
type Keyframe struct {
	Time   float64 `yaml:"time"`
	Value  float64 `yaml:"value"`
	Easing string  `yaml:"easing,omitempty"`
}

// Interpolate returns the value of a keyframe track at currentTime.
// Keyframes must be sorted by time. Outside the track the nearest end
// value holds; segments without an easing use EaseInOutCubic.
func Interpolate(keyframes []Keyframe, currentTime float64) float64 {
	if len(keyframes) == 0 {
		return 0
	}

	// Before the first keyframe
	if currentTime <= keyframes[0].Time {
		return keyframes[0].Value
	}

	// After the last keyframe
	last := keyframes[len(keyframes)-1]
	if currentTime >= last.Time {
		return last.Value
	}

	// Find surrounding keyframes
	var prevKf, nextKf Keyframe
	for i := 0; i < len(keyframes)-1; i++ {
		if currentTime >= keyframes[i].Time && currentTime < keyframes[i+1].Time {
			prevKf = keyframes[i]
			nextKf = keyframes[i+1]
			break
		}
	}

	timeDelta := nextKf.Time - prevKf.Time
	if timeDelta == 0 {
		return nextKf.Value
	}
	t := (currentTime - prevKf.Time) / timeDelta

	ease := Easing(EaseInOutCubic)
	if nextKf.Easing != "" {
		if e, ok := EasingByName(nextKf.Easing); ok {
			ease = e
		}
	}
	return lerp(prevKf.Value, nextKf.Value, ease(t))
}

// lerp performs linear interpolation between a and b
func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Track is a keyframed property of one element, for example the "x" or
// "opacity" of a title.
type Track struct {
	ElementID string     `yaml:"element"`
	Property  string     `yaml:"property"`
	Keyframes []Keyframe `yaml:"keyframes"`
}

// Sort orders the keyframes by time, keeping the order of equal times.
func (t *Track) Sort() {
	sort.SliceStable(t.Keyframes, func(i, j int) bool {
		return t.Keyframes[i].Time < t.Keyframes[j].Time
	})
}

func (t Track) ValueAt(sec float64) float64 {
	return Interpolate(t.Keyframes, sec)
}

// End is the time of the last keyframe.
func (t Track) End() float64 {
	if len(t.Keyframes) == 0 {
		return 0
	}
	return t.Keyframes[len(t.Keyframes)-1].Time
}
