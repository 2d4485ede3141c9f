package timeline

import "gopkg.in/yaml.v3"

// Clip is a span of time on one track.
type Clip struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name,omitempty"`
	Type       string  `yaml:"type,omitempty"`
	StartTime  float64 `yaml:"start"`
	EndTime    float64 `yaml:"end"`
	LayerIndex int     `yaml:"track"`
	Locked     bool    `yaml:"locked,omitempty"`
	Visible    bool    `yaml:"visible"`
	Volume     float64 `yaml:"volume"`
	ElementID  string  `yaml:"element,omitempty"` // Scene element shown while the clip is active
}

// UnmarshalYAML fills visible and volume before decoding, so documents that
// leave them out get a visible clip at full volume.
func (c *Clip) UnmarshalYAML(node *yaml.Node) error {
	type plain Clip
	p := plain{Visible: true, Volume: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Clip(p)
	return nil
}

func (c Clip) Duration() float64 {
	return c.EndTime - c.StartTime
}

// Contains reports whether t falls in [StartTime, EndTime).
func (c Clip) Contains(t float64) bool {
	return t >= c.StartTime && t < c.EndTime
}

func (c Clip) overlaps(o Clip) bool {
	return c.LayerIndex == o.LayerIndex && c.StartTime < o.EndTime && o.StartTime < c.EndTime
}
