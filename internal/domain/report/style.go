package report

import "strings"

// Font families every render backend provides. The PDF backend maps them to
// its built-in core fonts; the HTML backend emits matching CSS families.
const (
	FontHelvetica = "helvetica"
	FontTimes     = "times"
	FontCourier   = "courier"
)

// Style is a named text style report elements reference. Size is in points.
// Colors are "#rrggbb"; an empty color means the backend default of black
// text with no fill.
type Style struct {
	Name      string
	Font      string
	Bold      bool
	Italic    bool
	Underline bool
	Size      float64
	Color     string
	Fill      string
}

// FlagString packs the style flags into the compact "BIU" form backends use
// to select font variants.
func (s Style) FlagString() string {
	var b strings.Builder
	if s.Bold {
		b.WriteByte('B')
	}
	if s.Italic {
		b.WriteByte('I')
	}
	if s.Underline {
		b.WriteByte('U')
	}
	return b.String()
}

// LineHeight is the default vertical advance for a line of text in the
// style, in points.
func (s Style) LineHeight() float64 {
	return s.Size * 1.25
}
