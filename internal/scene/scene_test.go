package scene

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSignatureTracksGeometryAndContent(t *testing.T) {
	base := NewElement("e1", TypeText, 10, 20, 100, 40)
	base.Text = &TextProps{Content: "hello", FontSize: 24, Color: "#ffffff"}

	same := base
	same.Text = &TextProps{Content: "hello", FontSize: 24, Color: "#ffffff"}
	assert.Equal(t, base.Signature(), same.Signature())

	moved := base
	moved.X = 11
	assert.NotEqual(t, base.Signature(), moved.Signature())

	edited := base
	edited.Text = &TextProps{Content: "bye", FontSize: 24, Color: "#ffffff"}
	assert.NotEqual(t, base.Signature(), edited.Signature())
}

func TestSceneIndexAndRemove(t *testing.T) {
	s := Scene{ID: "s1", Elements: []Element{
		NewElement("a", TypeShape, 0, 0, 10, 10),
		NewElement("b", TypeShape, 0, 0, 10, 10),
		NewElement("c", TypeShape, 0, 0, 10, 10),
	}}

	assert.Equal(t, 1, s.Index("b"))
	assert.Equal(t, -1, s.Index("z"))

	el, ok := s.Element("c")
	require.True(t, ok)
	el.X = 5
	assert.Equal(t, 5.0, s.Elements[2].X)

	assert.True(t, s.Remove("b"))
	assert.False(t, s.Remove("b"))
	assert.Equal(t, []string{"a", "c"}, s.IDs())
}

func TestNormalize(t *testing.T) {
	e := Element{ID: "x", Type: TypeImage}
	e.Normalize()
	assert.Equal(t, 1.0, e.ScaleX)
	assert.Equal(t, 1.0, e.ScaleY)
	assert.Equal(t, 0.0, e.Opacity, "zero opacity is a value, not a default")

	e.Opacity = 3
	e.Normalize()
	assert.Equal(t, 1.0, e.Opacity)
	e.Opacity = -0.5
	e.Normalize()
	assert.Equal(t, 0.0, e.Opacity)
}

func TestDecodeDefaultsTransform(t *testing.T) {
	var els []Element
	require.NoError(t, yaml.Unmarshal([]byte(`
- id: a
  type: shape
- id: b
  type: shape
  opacity: 0
  scale_x: 2
`), &els))
	require.Len(t, els, 2)
	assert.Equal(t, 1.0, els[0].Opacity)
	assert.Equal(t, 1.0, els[0].ScaleX)
	assert.Equal(t, 0.0, els[1].Opacity)
	assert.Equal(t, 2.0, els[1].ScaleX)
	assert.Equal(t, 1.0, els[1].ScaleY)
}

func TestSignatureCoversNestedFields(t *testing.T) {
	// a new Element field must be added to Signature
	assert.Equal(t, 15, reflect.TypeOf(Element{}).NumField())

	base := NewElement("s", TypeShape, 0, 0, 10, 10)
	base.Shape = &ShapeProps{Kind: ShapeRect, Fill: &Paint{Color: "#fff"}}
	sig := base.Signature()
	assert.Equal(t, sig, base.Signature())

	edits := map[string]func(e *Element){
		"opacity":   func(e *Element) { e.Opacity = 0 },
		"fill":      func(e *Element) { e.Shape.Fill = &Paint{Color: "#000"} },
		"gradient":  func(e *Element) { e.Shape.Fill = &Paint{Color: "#fff", Gradient: &GradientSpec{Kind: "linear"}} },
		"stroke":    func(e *Element) { e.Shape.Stroke = &Stroke{Color: "#fff", Width: 1} },
		"dash":      func(e *Element) { e.Shape.Stroke = &Stroke{Color: "#fff", Width: 1, Dash: []float64{2}} },
		"shadow":    func(e *Element) { e.Shape.InnerShadow = &Shadow{Blur: 2} },
		"kind":      func(e *Element) { e.Shape.Kind = ShapeCircle },
		"character": func(e *Element) { e.Character = &CharacterProps{} },
	}
	for name, edit := range edits {
		t.Run(name, func(t *testing.T) {
			el := base
			sh := *base.Shape
			el.Shape = &sh
			edit(&el)
			assert.NotEqual(t, sig, el.Signature())
		})
	}
	assert.NotEqual(t, sig, NewElement("s", TypeShape, 0, 0, 10, 10).Signature())
}

func TestSources(t *testing.T) {
	e := NewElement("v", TypeVideo, 0, 0, 10, 10)
	e.Media = &MediaProps{Source: "clip.mp4", Poster: "poster.png"}
	assert.Equal(t, []string{"poster.png"}, e.Sources())
	assert.True(t, TypeVideo.Valid())
	assert.False(t, ElementType("sprite").Valid())
}

func TestPropertyAccess(t *testing.T) {
	e := NewElement("p", TypeShape, 1, 2, 30, 40)
	for _, name := range []string{"x", "y", "width", "height", "rotation", "scale_x", "scale_y", "opacity"} {
		require.True(t, e.SetProperty(name, 7), name)
		v, ok := e.Property(name)
		require.True(t, ok)
		assert.Equal(t, 7.0, v, name)
	}
	assert.False(t, e.SetProperty("colour", 1))
	_, ok := e.Property("colour")
	assert.False(t, ok)
}
