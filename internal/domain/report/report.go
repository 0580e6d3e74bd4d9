// Package report defines the backend-independent model of a generated
// report: page geometry in physical units, named text styles, document
// metadata, and the element factories every render backend implements.
// Concrete output lives in the render packages; report generators build
// against the interfaces here and run unchanged on any backend.
package report

import (
	"strings"

	"github.com/mirono/webtrees/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Units
// ─────────────────────────────────────────────────────────────────────────────

// Unit is a physical length unit report definitions may use. All internal
// layout math runs in points; input values are converted once up front.
type Unit string

const (
	UnitPoint      Unit = "pt"
	UnitInch       Unit = "in"
	UnitCentimeter Unit = "cm"
	UnitMillimeter Unit = "mm"
)

const (
	pointsPerInch      = 72.0
	millimetersPerInch = 25.4
	centimetersPerInch = 2.54
)

// ToPoints converts v from the unit to points. 1 in = 72 pt, 1 in = 2.54 cm.
func (u Unit) ToPoints(v float64) float64 {
	switch u {
	case UnitInch:
		return v * pointsPerInch
	case UnitCentimeter:
		return v * pointsPerInch / centimetersPerInch
	case UnitMillimeter:
		return v * pointsPerInch / millimetersPerInch
	default:
		return v
	}
}

func (u Unit) valid() bool {
	switch u {
	case UnitPoint, UnitInch, UnitCentimeter, UnitMillimeter:
		return true
	}
	return false
}

// ParseUnit resolves a unit name such as "cm". The empty string means points.
func ParseUnit(s string) (Unit, error) {
	u := Unit(strings.ToLower(strings.TrimSpace(s)))
	if u == "" {
		return UnitPoint, nil
	}
	if !u.valid() {
		return "", errors.New(errors.ErrCodeValidation, "unknown measurement unit").WithDetail(s)
	}
	return u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Page formats and orientation
// ─────────────────────────────────────────────────────────────────────────────

// PageFormat is a named paper size. Dimensions returns the portrait size.
type PageFormat string

const (
	PageA4     PageFormat = "A4"
	PageA3     PageFormat = "A3"
	PageLetter PageFormat = "LETTER"
	PageLegal  PageFormat = "LEGAL"
	PageFolio  PageFormat = "FOLIO"
)

// Dimensions returns the portrait width and height of the format in points.
func (f PageFormat) Dimensions() (width, height float64, err error) {
	switch f {
	case PageA4:
		return UnitMillimeter.ToPoints(210), UnitMillimeter.ToPoints(297), nil
	case PageA3:
		return UnitMillimeter.ToPoints(297), UnitMillimeter.ToPoints(420), nil
	case PageLetter:
		return UnitInch.ToPoints(8.5), UnitInch.ToPoints(11), nil
	case PageLegal:
		return UnitInch.ToPoints(8.5), UnitInch.ToPoints(14), nil
	case PageFolio:
		return UnitInch.ToPoints(8.5), UnitInch.ToPoints(13), nil
	}
	return 0, 0, errors.New(errors.ErrCodeValidation, "unknown page format").WithDetail(string(f))
}

// ParsePageFormat resolves a page format name case-insensitively.
func ParsePageFormat(s string) (PageFormat, error) {
	f := PageFormat(strings.ToUpper(strings.TrimSpace(s)))
	if _, _, err := f.Dimensions(); err != nil {
		return "", err
	}
	return f, nil
}

// Orientation selects which page side becomes the width. Named formats are
// portrait-defined; landscape exchanges their width and height.
type Orientation string

const (
	Portrait  Orientation = "portrait"
	Landscape Orientation = "landscape"
)

// ParseOrientation resolves an orientation name. Empty means portrait.
func ParseOrientation(s string) (Orientation, error) {
	switch o := Orientation(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return Portrait, nil
	case Portrait, Landscape:
		return o, nil
	default:
		return "", errors.New(errors.ErrCodeValidation, "unknown page orientation").WithDetail(s)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Page setup
// ─────────────────────────────────────────────────────────────────────────────

// PageSetup describes a report page in the report's input unit. Either a
// named Format or an explicit PageWidth/PageHeight pair is given; margins
// are always explicit. Normalize converts everything to points.
type PageSetup struct {
	Unit        Unit
	Format      PageFormat
	Orientation Orientation

	// PageWidth and PageHeight apply when Format is empty.
	PageWidth  float64
	PageHeight float64

	MarginLeft   float64
	MarginRight  float64
	MarginTop    float64
	MarginBottom float64

	// HeaderMargin is the distance from the top edge to the page header
	// band; FooterMargin the distance from the bottom edge to the footer.
	HeaderMargin float64
	FooterMargin float64
}

// DefaultPageSetup is the layout used when a report definition does not
// override it: A4 portrait with the margins of the bundled report designs.
func DefaultPageSetup() PageSetup {
	return PageSetup{
		Unit:         UnitMillimeter,
		Format:       PageA4,
		Orientation:  Portrait,
		MarginLeft:   17.99,
		MarginRight:  9.52,
		MarginTop:    26.8,
		MarginBottom: 21.6,
		HeaderMargin: 4.63,
		FooterMargin: 9.53,
	}
}

// Geometry is a page setup fully normalized to points. Portrait geometry has
// width <= height, landscape width >= height.
type Geometry struct {
	Format      PageFormat
	Orientation Orientation

	PageWidth  float64
	PageHeight float64

	MarginLeft   float64
	MarginRight  float64
	MarginTop    float64
	MarginBottom float64

	HeaderMargin float64
	FooterMargin float64
}

// ContentWidth is the horizontal space between the left and right margins.
func (g Geometry) ContentWidth() float64 {
	return g.PageWidth - g.MarginLeft - g.MarginRight
}

// ContentHeight is the vertical space between the top and bottom margins.
func (g Geometry) ContentHeight() float64 {
	return g.PageHeight - g.MarginTop - g.MarginBottom
}

// Normalize validates the setup and converts it to point geometry.
func (s PageSetup) Normalize() (Geometry, error) {
	unit := s.Unit
	if unit == "" {
		unit = UnitPoint
	}
	if !unit.valid() {
		return Geometry{}, errors.New(errors.ErrCodeValidation, "unknown measurement unit").WithDetail(string(s.Unit))
	}

	var width, height float64
	if s.Format != "" {
		var err error
		width, height, err = s.Format.Dimensions()
		if err != nil {
			return Geometry{}, err
		}
	} else {
		width = unit.ToPoints(s.PageWidth)
		height = unit.ToPoints(s.PageHeight)
	}
	if width <= 0 || height <= 0 {
		return Geometry{}, errors.New(errors.ErrCodeValidation, "page size must be positive")
	}

	orientation := s.Orientation
	if orientation == "" {
		orientation = Portrait
	}
	switch orientation {
	case Portrait:
		if width > height {
			width, height = height, width
		}
	case Landscape:
		if width < height {
			width, height = height, width
		}
	default:
		return Geometry{}, errors.New(errors.ErrCodeValidation, "unknown page orientation").WithDetail(string(s.Orientation))
	}

	g := Geometry{
		Format:       s.Format,
		Orientation:  orientation,
		PageWidth:    width,
		PageHeight:   height,
		MarginLeft:   unit.ToPoints(s.MarginLeft),
		MarginRight:  unit.ToPoints(s.MarginRight),
		MarginTop:    unit.ToPoints(s.MarginTop),
		MarginBottom: unit.ToPoints(s.MarginBottom),
		HeaderMargin: unit.ToPoints(s.HeaderMargin),
		FooterMargin: unit.ToPoints(s.FooterMargin),
	}

	for _, m := range []struct {
		name  string
		value float64
	}{
		{"left margin", g.MarginLeft},
		{"right margin", g.MarginRight},
		{"top margin", g.MarginTop},
		{"bottom margin", g.MarginBottom},
		{"header margin", g.HeaderMargin},
		{"footer margin", g.FooterMargin},
	} {
		if m.value < 0 {
			return Geometry{}, errors.New(errors.ErrCodeValidation, "margins must not be negative").WithDetail(m.name)
		}
	}
	if g.ContentWidth() <= 0 {
		return Geometry{}, errors.New(errors.ErrCodeValidation, "margins exceed the page width")
	}
	if g.ContentHeight() <= 0 {
		return Geometry{}, errors.New(errors.ErrCodeValidation, "margins exceed the page height")
	}
	return g, nil
}
