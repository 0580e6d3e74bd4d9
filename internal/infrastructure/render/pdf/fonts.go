package pdf

import "github.com/mirono/webtrees/internal/domain/report"

// face is one of the built-in core fonts every PDF reader ships. Widths are
// in millesimal em units for the printable ASCII range 0x20..0x7E; bytes
// outside it use the fallback width. Fixed-pitch faces ignore the table.
type face struct {
	baseFont string
	widths   *[95]int
	fallback int
	fixed    int
}

// Adobe core metrics for the regular and bold weights. Oblique and italic
// variants use their upright widths.
var (
	helveticaWidths = [95]int{
		278, 278, 355, 556, 556, 889, 667, 191, 333, 333, 389, 584, 278, 333,
		278, 278, 556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 278, 278,
		584, 584, 584, 556, 1015, 667, 667, 722, 722, 667, 611, 778, 722, 278,
		500, 667, 556, 833, 722, 778, 667, 778, 722, 667, 611, 722, 667, 944,
		667, 667, 611, 278, 278, 278, 469, 556, 333, 556, 556, 500, 556, 556,
		278, 556, 556, 222, 222, 500, 222, 833, 556, 556, 556, 556, 333, 500,
		278, 556, 500, 722, 500, 500, 500, 334, 260, 334, 584,
	}
	helveticaBoldWidths = [95]int{
		278, 333, 474, 556, 556, 889, 722, 238, 333, 333, 389, 584, 278, 333,
		278, 278, 556, 556, 556, 556, 556, 556, 556, 556, 556, 556, 333, 333,
		584, 584, 584, 611, 975, 722, 722, 722, 722, 667, 611, 778, 722, 278,
		556, 722, 611, 833, 722, 778, 667, 778, 722, 667, 611, 722, 667, 944,
		667, 667, 611, 333, 278, 333, 584, 556, 333, 556, 611, 556, 611, 556,
		333, 611, 611, 278, 278, 556, 278, 889, 611, 611, 611, 611, 389, 556,
		333, 611, 556, 778, 556, 556, 500, 389, 280, 389, 584,
	}
	timesWidths = [95]int{
		250, 333, 408, 500, 500, 833, 778, 180, 333, 333, 500, 564, 250, 333,
		250, 278, 500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 278, 278,
		564, 564, 564, 444, 921, 722, 667, 667, 722, 611, 556, 722, 722, 333,
		389, 722, 611, 889, 722, 722, 556, 722, 667, 556, 611, 722, 722, 944,
		722, 722, 611, 333, 278, 333, 469, 500, 333, 444, 500, 444, 500, 444,
		333, 500, 500, 278, 278, 500, 278, 778, 500, 500, 500, 500, 333, 389,
		278, 500, 500, 722, 500, 500, 444, 480, 200, 480, 541,
	}
	timesBoldWidths = [95]int{
		250, 333, 555, 500, 500, 1000, 833, 278, 333, 333, 500, 570, 250, 333,
		250, 278, 500, 500, 500, 500, 500, 500, 500, 500, 500, 500, 333, 333,
		570, 570, 570, 500, 930, 722, 667, 722, 722, 667, 611, 778, 778, 389,
		500, 778, 667, 944, 722, 778, 611, 778, 722, 556, 667, 722, 722, 1000,
		722, 722, 667, 333, 278, 333, 581, 500, 333, 500, 556, 444, 556, 444,
		333, 500, 556, 278, 333, 556, 278, 833, 556, 500, 556, 556, 444, 389,
		333, 556, 500, 722, 500, 500, 444, 394, 220, 394, 520,
	}
)

var coreFaces = map[string]*face{
	"Helvetica":             {baseFont: "Helvetica", widths: &helveticaWidths, fallback: 556},
	"Helvetica-Bold":        {baseFont: "Helvetica-Bold", widths: &helveticaBoldWidths, fallback: 611},
	"Helvetica-Oblique":     {baseFont: "Helvetica-Oblique", widths: &helveticaWidths, fallback: 556},
	"Helvetica-BoldOblique": {baseFont: "Helvetica-BoldOblique", widths: &helveticaBoldWidths, fallback: 611},
	"Times-Roman":           {baseFont: "Times-Roman", widths: &timesWidths, fallback: 500},
	"Times-Bold":            {baseFont: "Times-Bold", widths: &timesBoldWidths, fallback: 500},
	"Times-Italic":          {baseFont: "Times-Italic", widths: &timesWidths, fallback: 500},
	"Times-BoldItalic":      {baseFont: "Times-BoldItalic", widths: &timesBoldWidths, fallback: 500},
	"Courier":               {baseFont: "Courier", fixed: 600},
	"Courier-Bold":          {baseFont: "Courier-Bold", fixed: 600},
	"Courier-Oblique":       {baseFont: "Courier-Oblique", fixed: 600},
	"Courier-BoldOblique":   {baseFont: "Courier-BoldOblique", fixed: 600},
}

// faceFor resolves a style's font family and flags to a core face. Unknown
// families fall back to Helvetica.
func faceFor(family string, bold, italic bool) *face {
	var name string
	switch family {
	case report.FontTimes:
		switch {
		case bold && italic:
			name = "Times-BoldItalic"
		case bold:
			name = "Times-Bold"
		case italic:
			name = "Times-Italic"
		default:
			name = "Times-Roman"
		}
	case report.FontCourier:
		switch {
		case bold && italic:
			name = "Courier-BoldOblique"
		case bold:
			name = "Courier-Bold"
		case italic:
			name = "Courier-Oblique"
		default:
			name = "Courier"
		}
	default:
		switch {
		case bold && italic:
			name = "Helvetica-BoldOblique"
		case bold:
			name = "Helvetica-Bold"
		case italic:
			name = "Helvetica-Oblique"
		default:
			name = "Helvetica"
		}
	}
	return coreFaces[name]
}

// faceForStyle resolves the face of a document style.
func faceForStyle(s report.Style) *face {
	return faceFor(s.Font, s.Bold, s.Italic)
}

func (f *face) byteWidth(b byte) int {
	if f.fixed > 0 {
		return f.fixed
	}
	if b >= 0x20 && b <= 0x7E {
		return f.widths[b-0x20]
	}
	return f.fallback
}

// textWidth measures encoded bytes at the given size, in points.
func (f *face) textWidth(encoded []byte, size float64) float64 {
	total := 0
	for _, b := range encoded {
		total += f.byteWidth(b)
	}
	return float64(total) * size / 1000
}

// stringWidth measures s at the given size, in points.
func (f *face) stringWidth(s string, size float64) float64 {
	return f.textWidth(encodeWinAnsi(s), size)
}
