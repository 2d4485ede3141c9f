package scene

import "gopkg.in/yaml.v3"

// ElementType names what an element draws.
type ElementType string

const (
	TypeText      ElementType = "text"
	TypeImage     ElementType = "image"
	TypeShape     ElementType = "shape"
	TypeVideo     ElementType = "video"
	TypeAudio     ElementType = "audio"
	TypeCharacter ElementType = "character"
)

// Valid reports whether t is one of the known element types.
func (t ElementType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeShape, TypeVideo, TypeAudio, TypeCharacter:
		return true
	}
	return false
}

// Element is a single item placed on a scene. Geometry is in scene pixels,
// Rotation in degrees around the element centre.
type Element struct {
	ID       string      `yaml:"id"`
	Type     ElementType `yaml:"type"`
	X        float64     `yaml:"x"`
	Y        float64     `yaml:"y"`
	Width    float64     `yaml:"width"`
	Height   float64     `yaml:"height"`
	Rotation float64     `yaml:"rotation"`
	ScaleX   float64     `yaml:"scale_x"`
	ScaleY   float64     `yaml:"scale_y"`
	Opacity  float64     `yaml:"opacity"`

	Text      *TextProps      `yaml:"text,omitempty"`
	Image     *ImageProps     `yaml:"image,omitempty"`
	Shape     *ShapeProps     `yaml:"shape,omitempty"`
	Media     *MediaProps     `yaml:"media,omitempty"`
	Character *CharacterProps `yaml:"character,omitempty"`
}

// NewElement returns an element with identity scale and full opacity.
func NewElement(id string, t ElementType, x, y, w, h float64) Element {
	return Element{
		ID:      id,
		Type:    t,
		X:       x,
		Y:       y,
		Width:   w,
		Height:  h,
		ScaleX:  1,
		ScaleY:  1,
		Opacity: 1,
	}
}

// UnmarshalYAML gives elements that leave out scale or opacity identity
// scale and full opacity. An explicit zero is kept.
func (e *Element) UnmarshalYAML(node *yaml.Node) error {
	type plain Element
	p := plain{ScaleX: 1, ScaleY: 1, Opacity: 1}
	if err := node.Decode(&p); err != nil {
		return err
	}
	*e = Element(p)
	return nil
}

// Normalize fills in identity scale for elements built in code without
// one and clamps the opacity to [0, 1].
func (e *Element) Normalize() {
	if e.ScaleX == 0 {
		e.ScaleX = 1
	}
	if e.ScaleY == 0 {
		e.ScaleY = 1
	}
	e.Opacity = max(0, min(e.Opacity, 1))
}

// Sources lists the external resources the element needs to render.
func (e Element) Sources() []string {
	var srcs []string
	if e.Image != nil && e.Image.Source != "" {
		srcs = append(srcs, e.Image.Source)
	}
	if e.Media != nil && e.Media.Poster != "" {
		srcs = append(srcs, e.Media.Poster)
	}
	if e.Character != nil && e.Character.Source != "" {
		srcs = append(srcs, e.Character.Source)
	}
	if e.Shape != nil && e.Shape.Fill != nil && e.Shape.Fill.Pattern != nil && e.Shape.Fill.Pattern.Source != "" {
		srcs = append(srcs, e.Shape.Fill.Pattern.Source)
	}
	return srcs
}

// TextProps describes a text element.
type TextProps struct {
	Content     string  `yaml:"content"`
	FontSource  string  `yaml:"font_source,omitempty"`
	FontSize    float64 `yaml:"font_size"`
	Color       string  `yaml:"color"`
	Align       string  `yaml:"align,omitempty"` // left, center, right
	LineSpacing float64 `yaml:"line_spacing,omitempty"`
	Fill        *Paint  `yaml:"fill,omitempty"`
	Stroke      *Stroke `yaml:"stroke,omitempty"`
	Shadow      *Shadow `yaml:"shadow,omitempty"`
}

// ImageProps describes a bitmap element.
type ImageProps struct {
	Source       string  `yaml:"source"`
	Fit          string  `yaml:"fit,omitempty"` // fill, contain, cover
	CornerRadius float64 `yaml:"corner_radius,omitempty"`
	Shadow       *Shadow `yaml:"shadow,omitempty"`
}

// ShapeKind selects the geometry of a shape element.
type ShapeKind string

const (
	ShapeRect        ShapeKind = "rect"
	ShapeRoundedRect ShapeKind = "rounded_rect"
	ShapeCircle      ShapeKind = "circle"
	ShapeEllipse     ShapeKind = "ellipse"
	ShapePolygon     ShapeKind = "polygon"
	ShapeStar        ShapeKind = "star"
	ShapeLine        ShapeKind = "line"
	ShapeArrow       ShapeKind = "arrow"
	ShapeGrid        ShapeKind = "grid"
	ShapeQRCode      ShapeKind = "qrcode"
)

// ShapeProps describes a vector shape element.
type ShapeProps struct {
	Kind         ShapeKind `yaml:"kind"`
	Sides        int       `yaml:"sides,omitempty"`
	InnerRatio   float64   `yaml:"inner_ratio,omitempty"` // Star inner radius / outer radius
	CornerRadius float64   `yaml:"corner_radius,omitempty"`
	CellSize     float64   `yaml:"cell_size,omitempty"`
	Content      string    `yaml:"content,omitempty"` // QR payload
	Fill         *Paint    `yaml:"fill,omitempty"`
	Stroke       *Stroke   `yaml:"stroke,omitempty"`
	Shadow       *Shadow   `yaml:"shadow,omitempty"`
	InnerShadow  *Shadow   `yaml:"inner_shadow,omitempty"`
}

// MediaProps describes video and audio elements.
type MediaProps struct {
	Source   string    `yaml:"source"`
	Poster   string    `yaml:"poster,omitempty"`
	Volume   float64   `yaml:"volume"`
	Muted    bool      `yaml:"muted,omitempty"`
	Waveform []float64 `yaml:"waveform,omitempty"`
	Color    string    `yaml:"color,omitempty"`
}

// CharacterProps describes an avatar element.
type CharacterProps struct {
	Source string `yaml:"source,omitempty"`
	Pose   string `yaml:"pose,omitempty"`
	Color  string `yaml:"color,omitempty"`
}

// Paint is a fill: a solid colour, a gradient or a pattern.
type Paint struct {
	Color    string        `yaml:"color,omitempty"`
	Gradient *GradientSpec `yaml:"gradient,omitempty"`
	Pattern  *PatternSpec  `yaml:"pattern,omitempty"`
}

// GradientSpec describes a linear, radial or conic gradient in element
// local coordinates.
type GradientSpec struct {
	Kind  string      `yaml:"kind"` // linear, radial, conic
	X0    float64     `yaml:"x0"`
	Y0    float64     `yaml:"y0"`
	R0    float64     `yaml:"r0,omitempty"`
	X1    float64     `yaml:"x1"`
	Y1    float64     `yaml:"y1"`
	R1    float64     `yaml:"r1,omitempty"`
	Angle float64     `yaml:"angle,omitempty"` // Conic start angle, degrees
	Stops []ColorStop `yaml:"stops"`
}

// ColorStop is one gradient stop.
type ColorStop struct {
	Offset float64 `yaml:"offset"`
	Color  string  `yaml:"color"`
}

// PatternSpec describes a bitmap or procedural pattern fill.
type PatternSpec struct {
	Kind       string  `yaml:"kind"` // image, checker, lines, dots
	Source     string  `yaml:"source,omitempty"`
	Repeat     string  `yaml:"repeat,omitempty"` // repeat, repeat-x, repeat-y, no-repeat
	Size       float64 `yaml:"size,omitempty"`
	Foreground string  `yaml:"foreground,omitempty"`
	Background string  `yaml:"background,omitempty"`
	Scale      float64 `yaml:"scale,omitempty"`
	Rotation   float64 `yaml:"rotation,omitempty"`
}

// Stroke is an outline style.
type Stroke struct {
	Color string    `yaml:"color"`
	Width float64   `yaml:"width"`
	Dash  []float64 `yaml:"dash,omitempty"`
}

// Shadow is a drop or inner shadow.
type Shadow struct {
	Color   string  `yaml:"color"`
	OffsetX float64 `yaml:"offset_x"`
	OffsetY float64 `yaml:"offset_y"`
	Blur    float64 `yaml:"blur"`
}

// Property returns the value of a numeric transform property by its YAML
// name.
func (e *Element) Property(name string) (float64, bool) {
	switch name {
	case "x":
		return e.X, true
	case "y":
		return e.Y, true
	case "width":
		return e.Width, true
	case "height":
		return e.Height, true
	case "rotation":
		return e.Rotation, true
	case "scale_x":
		return e.ScaleX, true
	case "scale_y":
		return e.ScaleY, true
	case "opacity":
		return e.Opacity, true
	}
	return 0, false
}

// SetProperty sets a numeric transform property by its YAML name and
// reports whether the name is known.
func (e *Element) SetProperty(name string, v float64) bool {
	switch name {
	case "x":
		e.X = v
	case "y":
		e.Y = v
	case "width":
		e.Width = v
	case "height":
		e.Height = v
	case "rotation":
		e.Rotation = v
	case "scale_x":
		e.ScaleX = v
	case "scale_y":
		e.ScaleY = v
	case "opacity":
		e.Opacity = v
	default:
		return false
	}
	return true
}
