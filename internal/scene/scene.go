package scene

// Scene is one editable canvas. The order of Elements is the z-order used
// when rendering: later elements are drawn on top.
type Scene struct {
	ID         string    `yaml:"id"`
	Name       string    `yaml:"name"`
	Background string    `yaml:"background,omitempty"`
	Elements   []Element `yaml:"elements"`
}

// Index returns the position of the element with the given id, or -1.
func (s *Scene) Index(id string) int {
	for i := range s.Elements {
		if s.Elements[i].ID == id {
			return i
		}
	}
	return -1
}

// Element returns a pointer to the element with the given id.
func (s *Scene) Element(id string) (*Element, bool) {
	i := s.Index(id)
	if i < 0 {
		return nil, false
	}
	return &s.Elements[i], true
}

// Remove deletes the element with the given id and reports whether it existed.
func (s *Scene) Remove(id string) bool {
	i := s.Index(id)
	if i < 0 {
		return false
	}
	s.Elements = append(s.Elements[:i], s.Elements[i+1:]...)
	return true
}

// IDs returns the ids of all elements in z-order.
func (s *Scene) IDs() []string {
	out := make([]string, len(s.Elements))
	for i, e := range s.Elements {
		out[i] = e.ID
	}
	return out
}
