// Package element holds the value types that cross context boundaries: the
// descriptor captured at detection time, the viewport used to normalize it, and
// the self-contained replacement command sent back to the page.
package element

import (
	"math"
	"strings"
)

type Rect struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
}

// Within reports whether every dimension of r differs from other by strictly
// less than tolerance.
func (r Rect) Within(other Rect, tolerance float64) bool {
	return math.Abs(r.Width-other.Width) < tolerance &&
		math.Abs(r.Height-other.Height) < tolerance &&
		math.Abs(r.Top-other.Top) < tolerance &&
		math.Abs(r.Left-other.Left) < tolerance
}

type Viewport struct {
	Width  float64 `json:"windowWidth"`
	Height float64 `json:"windowHeight"`
}

func (v Viewport) IsZero() bool {
	return v.Width == 0 && v.Height == 0
}

// Descriptor is a snapshot of an element taken once by the page context.
// It is passed by value; nothing downstream holds a reference to the live node.
type Descriptor struct {
	TagName   string   `json:"tagName"`
	ClassList []string `json:"classList"`
	Rect      Rect     `json:"rect"`
}

// Clone returns a copy whose class list does not alias d's.
func (d Descriptor) Clone() Descriptor {
	out := d
	out.ClassList = append([]string(nil), d.ClassList...)
	return out
}

// Replacement instructs a page context to swap the element matching Selector
// and Rect with a placeholder carrying Text.
type Replacement struct {
	Selector string `json:"selector"`
	Rect     Rect   `json:"rect"`
	Text     string `json:"replacement"`
}

// Selector builds the structural selector tag.class1.class2 for d, escaping
// each class as a CSS identifier.
func Selector(d Descriptor) string {
	var b strings.Builder
	b.WriteString(strings.ToLower(d.TagName))
	for _, c := range d.ClassList {
		if c == "" {
			continue
		}
		b.WriteByte('.')
		b.WriteString(EscapeIdent(c))
	}
	return b.String()
}
