package report

import (
	"io"
	"strings"

	"github.com/mirono/webtrees/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Output formats
// ─────────────────────────────────────────────────────────────────────────────

// Format selects a render backend for generated output.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
)

// ParseFormat resolves an output format name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatPDF, FormatHTML:
		return f, nil
	default:
		return "", errors.New(errors.ErrCodeReportFormatUnknown, "unknown report format").WithDetail(s)
	}
}

// MediaType returns the content type of the generated artifact.
func (f Format) MediaType() string {
	if f == FormatHTML {
		return "text/html; charset=utf-8"
	}
	return "application/pdf"
}

// Extension returns the file extension of the generated artifact.
func (f Format) Extension() string {
	if f == FormatHTML {
		return ".html"
	}
	return ".pdf"
}

// ─────────────────────────────────────────────────────────────────────────────
// Element geometry helpers
// ─────────────────────────────────────────────────────────────────────────────

// PageNumber is the placeholder backends replace with the number of the
// page a text line lands on. Put it in a page header element to number
// every page.
const PageNumber = "#PAGENUM#"

// Position is an absolute page coordinate in points with the origin at the
// top left corner of the page. Element options take a nil *Position to mean
// "at the current cursor".
type Position struct {
	X float64
	Y float64
}

// Border selects which cell edges are stroked.
type Border uint8

const (
	BorderTop Border = 1 << iota
	BorderRight
	BorderBottom
	BorderLeft
)

const (
	BorderNone Border = 0
	BorderAll  Border = BorderTop | BorderRight | BorderBottom | BorderLeft
)

// Has reports whether side is set.
func (b Border) Has(side Border) bool {
	return b&side != 0
}

// Align is horizontal alignment inside an element.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// ─────────────────────────────────────────────────────────────────────────────
// Elements
// ─────────────────────────────────────────────────────────────────────────────

// Element is one drawable piece of a report. Elements are created by a
// Renderer's factory methods, stay bound to that renderer, and are drawn
// when it runs.
type Element interface {
	// Height reports the vertical space the element occupies when drawn at
	// the current cursor, in points. The layout engine uses it to decide
	// page breaks before rendering.
	Height() float64
	// Render draws the element and advances the renderer cursor.
	Render() error
}

// Text is a styled text run that wraps inside the available width.
type Text interface {
	Element
	AppendText(text string)
	AppendNewline()
}

// Cell is a fixed-width box of text, optionally bordered and filled.
type Cell interface {
	Element
	AppendText(text string)
}

// TextBox groups child elements inside an optionally bordered box.
type TextBox interface {
	Element
	AddElement(e Element)
}

// Footnote renders a superscript reference mark in the text flow and defers
// its body to the bottom of the page the mark lands on. Identical bodies
// share one number and the body prints once, where first referenced.
type Footnote interface {
	Element
	AppendText(text string)
}

// ImageObject is a stored media file a renderer can embed.
type ImageObject interface {
	// ContentType is the MIME type of the stored bytes, e.g. "image/jpeg".
	ContentType() string
	// Open returns the image bytes. The caller closes the reader.
	Open() (io.ReadCloser, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Element options
// ─────────────────────────────────────────────────────────────────────────────

// CellOpts configures a cell. Zero Width spans the remaining content width;
// zero Height uses the style line height.
type CellOpts struct {
	Width  float64
	Height float64
	Border Border
	// BorderColor and Color override the stroke and text colors, "#rrggbb".
	BorderColor string
	Color       string
	// Fill is the background color; empty leaves the background unpainted.
	Fill  string
	Align Align
	// Style names a registered document style; empty resolves the fallback.
	Style string
	Pos   *Position
	// NewLine moves the cursor to the start of the next line after the
	// cell; otherwise the cursor advances to the cell's right edge.
	NewLine bool
	// Truncate cuts text exceeding the width instead of wrapping it.
	Truncate bool
}

// TextBoxOpts configures a text box. Zero Height grows to the content.
type TextBoxOpts struct {
	Width   float64
	Height  float64
	Border  bool
	Fill    string
	Pos     *Position
	NewLine bool
	// Padding insets child elements from the box edges.
	Padding bool
}

// ImageOpts configures image placement. Width and Height bound the drawn
// size and the image scales to fit them preserving aspect ratio; zero uses
// the natural size at 72 DPI.
type ImageOpts struct {
	Width   float64
	Height  float64
	Pos     *Position
	Align   Align
	NewLine bool
}

// ─────────────────────────────────────────────────────────────────────────────
// Renderer
// ─────────────────────────────────────────────────────────────────────────────

// Renderer is the factory surface every output backend implements. Report
// generators build the element tree through it and the same generator code
// produces PDF or HTML depending on the backend chosen.
type Renderer interface {
	NewCell(opts CellOpts) Cell
	NewTextBox(opts TextBoxOpts) TextBox
	// NewText creates a text run in the named style. A non-empty color
	// overrides the style color.
	NewText(style, color string) Text
	// NewLine draws a line between two absolute page coordinates.
	NewLine(x1, y1, x2, y2 float64) Element
	// NewImage embeds an image read from a local file.
	NewImage(path string, opts ImageOpts) (Element, error)
	// NewImageFromObject embeds a stored media object.
	NewImageFromObject(obj ImageObject, opts ImageOpts) (Element, error)
	NewFootnote(style string) Footnote

	// AddElement appends an element to the document body.
	AddElement(e Element)
	// AddPageHeader registers an element replayed at the top of every page.
	AddPageHeader(e Element)
	// ClearPageHeader drops the registered page header elements.
	ClearPageHeader()

	// Run lays out the body and writes the finished document to w.
	Run(w io.Writer) error
}
