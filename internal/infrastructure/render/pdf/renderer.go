// Package pdf renders report documents to PDF 1.4 with nothing but the
// standard library: a hand-built object table, xref and trailer, flate
// compressed content streams, and the built-in core fonts with their real
// metric tables. Layout is cursor based with automatic page breaks, page
// header replay, and per-page footnote collection.
package pdf

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/pkg/errors"
)

const (
	// ascentRatio approximates the cap ascent of the core fonts; text drawn
	// into a line box sits this fraction of the size below the box top.
	ascentRatio = 0.8

	cellPadX         = 2.0
	boxPad           = 4.0
	footnoteGap      = 8.0
	footnoteRuleFrac = 3.0
	defaultStrokeW   = 0.7
)

// Renderer implements report.Renderer for PDF output.
type Renderer struct {
	doc      *report.Document
	geom     report.Geometry
	compress bool
	now      func() time.Time

	body   []report.Element
	header []report.Element

	// layout state while running; coordinates are top-left origin and are
	// flipped to PDF bottom-left only when operators are emitted.
	pages     []*bytes.Buffer
	content   *bytes.Buffer
	pageNum   int
	x, y      float64
	topY      float64
	leftLim   float64
	rightLim  float64
	noBreak   int
	faces     []string
	faceIndex map[string]int
	images    []*imageData

	footnotes   []*pdfFootnote
	notesHeight float64
	notesByText map[string]int
	noteCount   int

	err error
}

// New returns a renderer for doc with compressed content streams.
func New(doc *report.Document) *Renderer {
	return &Renderer{
		doc:         doc,
		geom:        doc.Geometry(),
		compress:    true,
		now:         time.Now,
		faceIndex:   make(map[string]int),
		notesByText: make(map[string]int),
	}
}

// AddElement appends an element to the document body.
func (r *Renderer) AddElement(e report.Element) {
	r.body = append(r.body, e)
}

// AddPageHeader registers an element replayed at the top of every page.
func (r *Renderer) AddPageHeader(e report.Element) {
	r.header = append(r.header, e)
}

// ClearPageHeader drops the registered page header elements.
func (r *Renderer) ClearPageHeader() {
	r.header = nil
}

// Run lays out the body and writes the finished PDF to w.
func (r *Renderer) Run(w io.Writer) error {
	r.startPage()
	for _, e := range r.body {
		if r.err != nil {
			break
		}
		if err := e.Render(); err != nil && r.err == nil {
			r.err = err
		}
	}
	if r.err != nil {
		return errors.Wrap(r.err, errors.ErrCodeRenderFailed, "pdf render failed")
	}
	r.flushFootnotes()

	pages := make([][]byte, len(r.pages))
	for i, p := range r.pages {
		pages[i] = p.Bytes()
	}
	a := assembler{
		compress: r.compress,
		faces:    r.faces,
		images:   r.images,
		pages:    pages,
		pageW:    r.geom.PageWidth,
		pageH:    r.geom.PageHeight,
		info: docInfo{
			Title:    r.doc.Title(),
			Subject:  r.doc.Description(),
			Producer: "webtrees",
			Created:  r.now(),
		},
	}
	out, err := a.build()
	if err != nil {
		return err
	}
	if _, err := w.Write(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeRenderFailed, "write pdf output")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Page lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func (r *Renderer) startPage() {
	r.content = new(bytes.Buffer)
	r.pages = append(r.pages, r.content)
	r.pageNum++
	r.footnotes = nil
	r.notesHeight = 0
	r.leftLim = r.geom.MarginLeft
	r.rightLim = r.geom.PageWidth - r.geom.MarginRight

	// The header band starts at the header margin; the body resumes below
	// whichever is lower, the top margin or the header content.
	r.x, r.y = r.geom.MarginLeft, r.geom.HeaderMargin
	r.noBreak++
	for _, e := range r.header {
		if r.err != nil {
			break
		}
		if err := e.Render(); err != nil && r.err == nil {
			r.err = err
		}
	}
	r.noBreak--
	if r.y < r.geom.MarginTop {
		r.y = r.geom.MarginTop
	}
	r.x = r.geom.MarginLeft
	r.topY = r.y
}

func (r *Renderer) newPage() {
	r.flushFootnotes()
	r.startPage()
}

// bottomLimit is the lowest y body content may reach on the current page,
// leaving room for collected footnotes.
func (r *Renderer) bottomLimit() float64 {
	return r.geom.PageHeight - r.geom.MarginBottom - r.notesHeight
}

// ensureSpace breaks the page when h does not fit below the cursor. Inside
// the page header or a text box the layout is pinned and never breaks; a
// fresh page never breaks either, oversized content overflows instead of
// looping.
func (r *Renderer) ensureSpace(h float64) {
	if r.noBreak > 0 {
		return
	}
	if r.y+h <= r.bottomLimit() {
		return
	}
	if r.y <= r.topY {
		return
	}
	r.newPage()
}

// flushFootnotes draws the collected footnote block above the bottom margin
// with a short separator rule.
func (r *Renderer) flushFootnotes() {
	if len(r.footnotes) == 0 {
		return
	}
	y := r.geom.PageHeight - r.geom.MarginBottom - r.notesHeight
	ruleWidth := r.geom.ContentWidth() / footnoteRuleFrac
	ruleY := y + footnoteGap/2
	r.strokeLine(r.geom.MarginLeft, ruleY, r.geom.MarginLeft+ruleWidth, ruleY, "", 0.5)
	y += footnoteGap
	for _, fn := range r.footnotes {
		y = fn.renderBody(y)
	}
	r.footnotes = nil
	r.notesHeight = 0
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// NewText creates a text run in the named style. A non-empty color
// overrides the style color.
func (r *Renderer) NewText(style, color string) report.Text {
	return &pdfText{r: r, styleName: style, color: color}
}

// NewCell creates a bordered, filled, or plain cell of text.
func (r *Renderer) NewCell(opts report.CellOpts) report.Cell {
	return &pdfCell{r: r, opts: opts}
}

// NewTextBox groups child elements inside an optionally bordered box.
func (r *Renderer) NewTextBox(opts report.TextBoxOpts) report.TextBox {
	return &pdfTextBox{r: r, opts: opts}
}

// NewLine draws a line between two absolute page coordinates.
func (r *Renderer) NewLine(x1, y1, x2, y2 float64) report.Element {
	return &pdfLine{r: r, x1: x1, y1: y1, x2: x2, y2: y2}
}

// NewImage embeds an image read from a local file.
func (r *Renderer) NewImage(path string, opts report.ImageOpts) (report.Element, error) {
	data, err := readImageFile(path)
	if err != nil {
		return nil, err
	}
	return r.newImageElement(data, opts)
}

// NewImageFromObject embeds a stored media object.
func (r *Renderer) NewImageFromObject(obj report.ImageObject, opts report.ImageOpts) (report.Element, error) {
	rc, err := obj.Open()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenderFailed, "open media object")
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRenderFailed, "read media object")
	}
	return r.newImageElement(data, opts)
}

func (r *Renderer) newImageElement(data []byte, opts report.ImageOpts) (report.Element, error) {
	im, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	r.images = append(r.images, im)
	return &pdfImage{
		r:       r,
		index:   len(r.images),
		natural: [2]float64{float64(im.width), float64(im.height)},
		opts:    opts,
	}, nil
}

// NewFootnote creates a footnote in the named style.
func (r *Renderer) NewFootnote(style string) report.Footnote {
	return &pdfFootnote{r: r, styleName: style}
}

// ─────────────────────────────────────────────────────────────────────────────
// Style and resource resolution
// ─────────────────────────────────────────────────────────────────────────────

// resolveStyle looks up a document style; a resolution failure is recorded
// once and a safe fallback keeps rendering to the final error.
func (r *Renderer) resolveStyle(name string) report.Style {
	s, err := r.doc.Style(name)
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return report.Style{Name: name, Font: report.FontHelvetica, Size: 10}
	}
	return s
}

// faceID returns the 1-based font resource index for f, registering it on
// first use.
func (r *Renderer) faceID(f *face) int {
	if id, ok := r.faceIndex[f.baseFont]; ok {
		return id
	}
	r.faces = append(r.faces, f.baseFont)
	r.faceIndex[f.baseFont] = len(r.faces)
	return len(r.faces)
}

// substitute fills per-page placeholders into a line of text.
func (r *Renderer) substitute(s string) string {
	if !strings.Contains(s, report.PageNumber) {
		return s
	}
	return strings.ReplaceAll(s, report.PageNumber, strconv.Itoa(r.pageNum))
}

// ─────────────────────────────────────────────────────────────────────────────
// Content stream operators
// ─────────────────────────────────────────────────────────────────────────────

// pdfY flips a top-origin y coordinate into the PDF bottom-origin space.
func (r *Renderer) pdfY(y float64) float64 {
	return r.geom.PageHeight - y
}

// parseHexColor converts "#rrggbb" to unit RGB components. Empty or
// malformed values produce black.
func parseHexColor(hex string) (cr, cg, cb float64) {
	hex = strings.TrimPrefix(hex, "#")
	if len(hex) != 6 {
		return 0, 0, 0
	}
	var ir, ig, ib int
	if _, err := fmt.Sscanf(hex, "%02x%02x%02x", &ir, &ig, &ib); err != nil {
		return 0, 0, 0
	}
	return float64(ir) / 255, float64(ig) / 255, float64(ib) / 255
}

// drawText draws one encoded line with its top edge at (x, topY).
func (r *Renderer) drawText(x, topY float64, faceID int, size float64, color string, encoded []byte) {
	if len(encoded) == 0 {
		return
	}
	cr, cg, cb := parseHexColor(color)
	baseline := topY + size*ascentRatio
	fmt.Fprintf(r.content, "BT\n/F%d %.2f Tf\n%.3f %.3f %.3f rg\n%.2f %.2f Td\n(%s) Tj\nET\n",
		faceID, size, cr, cg, cb, x, r.pdfY(baseline), escapeText(encoded))
}

// fillRect paints a rectangle whose top-left corner is (x, y).
func (r *Renderer) fillRect(x, y, w, h float64, color string) {
	cr, cg, cb := parseHexColor(color)
	fmt.Fprintf(r.content, "%.3f %.3f %.3f rg\n%.2f %.2f %.2f %.2f re f\n",
		cr, cg, cb, x, r.pdfY(y+h), w, h)
}

// strokeLine strokes a segment between two top-origin points.
func (r *Renderer) strokeLine(x1, y1, x2, y2 float64, color string, width float64) {
	cr, cg, cb := parseHexColor(color)
	fmt.Fprintf(r.content, "%.3f %.3f %.3f RG\n%.2f w\n%.2f %.2f m %.2f %.2f l S\n",
		cr, cg, cb, width, x1, r.pdfY(y1), x2, r.pdfY(y2))
}

// strokeBorders strokes the selected edges of a rectangle.
func (r *Renderer) strokeBorders(x, y, w, h float64, b report.Border, color string) {
	if b.Has(report.BorderTop) {
		r.strokeLine(x, y, x+w, y, color, defaultStrokeW)
	}
	if b.Has(report.BorderBottom) {
		r.strokeLine(x, y+h, x+w, y+h, color, defaultStrokeW)
	}
	if b.Has(report.BorderLeft) {
		r.strokeLine(x, y, x, y+h, color, defaultStrokeW)
	}
	if b.Has(report.BorderRight) {
		r.strokeLine(x+w, y, x+w, y+h, color, defaultStrokeW)
	}
}

// drawImage places image resource idx with its top-left corner at (x, y).
func (r *Renderer) drawImage(idx int, x, y, w, h float64) {
	fmt.Fprintf(r.content, "q\n%.2f 0 0 %.2f %.2f %.2f cm\n/Im%d Do\nQ\n",
		w, h, x, r.pdfY(y+h), idx)
}
