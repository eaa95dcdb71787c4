package render

import "unicode/utf8"

// Style describes how a primitive is painted.
type Style struct {
	Fill     string  `json:"fill,omitempty"`
	Stroke   string  `json:"stroke,omitempty"`
	Width    float64 `json:"lw,omitempty"`
	Alpha    float64 `json:"a,omitempty"` // zero means opaque
	FontSize float64 `json:"fs,omitempty"`
	Bold     bool    `json:"b,omitempty"`
	Align    string  `json:"al,omitempty"`
}

// Canvas receives drawing primitives in graph space.
type Canvas interface {
	Line(x1, y1, x2, y2 float64, s Style)
	Polygon(points []float64, s Style)
	Circle(x, y, r float64, s Style)
	Rect(x, y, w, h, radius float64, s Style)
	Text(x, y float64, text string, s Style)
}

// charWidth is the advance of one glyph per unit of font size. The painter
// uses a monospace font so this matches what is drawn.
const charWidth = 0.6

// TextWidth is the drawn width of text at size.
func TextWidth(text string, size float64) float64 {
	return float64(utf8.RuneCountInString(text)) * size * charWidth
}

// Op is one recorded primitive.
type Op struct {
	Kind   string    `json:"k"`
	X      float64   `json:"x,omitempty"`
	Y      float64   `json:"y,omitempty"`
	X2     float64   `json:"x2,omitempty"`
	Y2     float64   `json:"y2,omitempty"`
	W      float64   `json:"w,omitempty"`
	H      float64   `json:"h,omitempty"`
	R      float64   `json:"r,omitempty"`
	Points []float64 `json:"pts,omitempty"`
	Text   string    `json:"t,omitempty"`
	Style  Style     `json:"s"`
}

// DisplayList records primitives for a remote painter.
type DisplayList struct {
	Ops []Op
}

func (d *DisplayList) Line(x1, y1, x2, y2 float64, s Style) {
	d.Ops = append(d.Ops, Op{Kind: "line", X: x1, Y: y1, X2: x2, Y2: y2, Style: s})
}

func (d *DisplayList) Polygon(points []float64, s Style) {
	d.Ops = append(d.Ops, Op{Kind: "poly", Points: points, Style: s})
}

func (d *DisplayList) Circle(x, y, r float64, s Style) {
	d.Ops = append(d.Ops, Op{Kind: "circle", X: x, Y: y, R: r, Style: s})
}

func (d *DisplayList) Rect(x, y, w, h, radius float64, s Style) {
	d.Ops = append(d.Ops, Op{Kind: "rect", X: x, Y: y, W: w, H: h, R: radius, Style: s})
}

func (d *DisplayList) Text(x, y float64, text string, s Style) {
	d.Ops = append(d.Ops, Op{Kind: "text", X: x, Y: y, Text: text, Style: s})
}
