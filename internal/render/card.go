package render

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	jsoniter "github.com/json-iterator/go"
	"github.com/msalah0e/graphlens/internal/graph"
	"github.com/spf13/cast"
)

// Property type tags shown on detailed cards.
const (
	TagID     = "ID"
	TagI32    = "I32"
	TagF64    = "F64"
	TagString = "String"
	TagBool   = "Bool"
	TagArray  = "[F64]"
)

// TypeTag infers the tag for a property from its key and value. Keys equal
// to or ending in "_id" are always IDs.
func TypeTag(key string, v any) string {
	if key == "id" || strings.HasSuffix(key, "_id") {
		return TagID
	}
	switch x := v.(type) {
	case bool:
		return TagBool
	case []any, []float64:
		return TagArray
	case float64:
		if x == math.Trunc(x) && !math.IsInf(x, 0) {
			return TagI32
		}
		return TagF64
	case float32:
		if float64(x) == math.Trunc(float64(x)) {
			return TagI32
		}
		return TagF64
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TagI32
	default:
		return TagString
	}
}

const maxValueRunes = 24

// DisplayValue formats a property value for a card row.
func DisplayValue(v any) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = "null"
	case []any, map[string]any, []float64:
		b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(x)
		if err != nil {
			s = fmt.Sprint(x)
		} else {
			s = string(b)
		}
	default:
		var err error
		if s, err = cast.ToStringE(x); err != nil {
			s = fmt.Sprint(x)
		}
	}
	if utf8.RuneCountInString(s) > maxValueRunes {
		r := []rune(s)
		s = string(r[:maxValueRunes-1]) + "…"
	}
	return s
}

// Card metrics in graph units.
const (
	cardMinWidth  = 150.0
	cardMaxWidth  = 320.0
	cardPad       = 8.0
	headerHeight  = 22.0
	rowHeight     = 16.0
	headerFont    = 12.0
	rowFont       = 10.0
	tagFont       = 8.0
	cardRadius    = 6.0
	columnGap     = 12.0
	SimpleRadius  = 8.0
	HoverRadius   = 12.0
	hitSlop       = 4.0
	expandLabel   = "expand connections"
	showLessLabel = "show less"
)

// Bounds is a rectangle relative to a node's center.
type Bounds struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Contains reports whether the offset (dx, dy) from the node center falls
// inside b.
func (b Bounds) Contains(dx, dy float64) bool {
	return dx >= b.X && dx <= b.X+b.W && dy >= b.Y && dy <= b.Y+b.H
}

type row struct {
	key, tag, value string
}

// card is the laid-out detailed rendering of one entity.
type card struct {
	title  string
	rows   []row
	hidden int
	w, h   float64
	more   *Bounds
	expand *Bounds
}

func moreLabel(hidden int) string { return fmt.Sprintf("+%d more", hidden) }

// layoutCard measures a card. maxFields caps the rows of a collapsed card;
// expanded cards list every property.
func layoutCard(e graph.Entity, maxFields int, expanded, withExpand bool) card {
	c := card{title: e.Label}
	if c.title == "" {
		c.title = e.ID
	}
	keys := e.Keys()
	shown := keys
	if !expanded && maxFields > 0 && len(keys) > maxFields {
		shown = keys[:maxFields]
		c.hidden = len(keys) - maxFields
	}
	for _, k := range shown {
		v := e.Props[k]
		c.rows = append(c.rows, row{key: k, tag: TypeTag(k, v), value: DisplayValue(v)})
	}

	w := TextWidth(c.title, headerFont) + 2*cardPad
	for _, r := range c.rows {
		rw := TextWidth(r.key, rowFont) + columnGap + TextWidth(r.value, rowFont) + 4 + TextWidth(r.tag, tagFont) + 2*cardPad
		w = math.Max(w, rw)
	}
	c.w = math.Min(cardMaxWidth, math.Max(cardMinWidth, w))

	h := headerHeight + float64(len(c.rows))*rowHeight + cardPad
	toggle := len(keys) > maxFields && maxFields > 0
	if toggle {
		h += rowHeight
	}
	if withExpand {
		h += rowHeight
	}
	c.h = h

	top := -c.h / 2
	y := top + headerHeight + float64(len(c.rows))*rowHeight + cardPad/2
	if toggle {
		c.more = &Bounds{X: -c.w / 2, Y: y, W: c.w, H: rowHeight}
		y += rowHeight
	}
	if withExpand {
		c.expand = &Bounds{X: -c.w / 2, Y: y, W: c.w, H: rowHeight}
	}
	return c
}

func (c card) toggleLabel() string {
	if c.hidden > 0 {
		return moreLabel(c.hidden)
	}
	return showLessLabel
}
