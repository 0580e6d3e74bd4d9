// Package html renders report documents to a single self-contained HTML
// page. Styles become CSS classes, images are inlined as data URIs, and
// footnotes collect into a block at the end of the document. The page has
// no pagination; print hints carry the page geometry instead.
package html

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"strings"

	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/pkg/errors"
)

var shell = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
{{.CSS}}</style>
</head>
<body>
{{.Body}}</body>
</html>
`))

// Renderer implements report.Renderer for HTML output.
type Renderer struct {
	doc *report.Document

	body   []report.Element
	header []report.Element

	buf   *bytes.Buffer
	notes []*htmlFootnote

	notesByText map[string]int
	noteCount   int

	err error
}

// New returns a renderer for doc.
func New(doc *report.Document) *Renderer {
	return &Renderer{
		doc:         doc,
		notesByText: make(map[string]int),
	}
}

// AddElement appends an element to the document body.
func (r *Renderer) AddElement(e report.Element) {
	r.body = append(r.body, e)
}

// AddPageHeader registers a header element. Without pagination the header
// renders once at the top of the document.
func (r *Renderer) AddPageHeader(e report.Element) {
	r.header = append(r.header, e)
}

// ClearPageHeader drops the registered page header elements.
func (r *Renderer) ClearPageHeader() {
	r.header = nil
}

// Run renders the document and writes the finished page to w.
func (r *Renderer) Run(w io.Writer) error {
	r.buf = new(bytes.Buffer)
	for _, e := range r.header {
		if r.err != nil {
			break
		}
		if err := e.Render(); err != nil && r.err == nil {
			r.err = err
		}
	}
	for _, e := range r.body {
		if r.err != nil {
			break
		}
		if err := e.Render(); err != nil && r.err == nil {
			r.err = err
		}
	}
	if r.err != nil {
		return errors.Wrap(r.err, errors.ErrCodeRenderFailed, "html render failed")
	}
	r.flushFootnotes()

	err := shell.Execute(w, struct {
		Title string
		CSS   template.CSS
		Body  template.HTML
	}{
		Title: r.doc.Title(),
		CSS:   template.CSS(r.css()),
		Body:  template.HTML(r.buf.String()),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeRenderFailed, "write html output")
	}
	return nil
}

// flushFootnotes appends the collected footnote block after the body.
func (r *Renderer) flushFootnotes() {
	if len(r.notes) == 0 {
		return
	}
	r.buf.WriteString("<div class=\"footnotes\">\n<hr>\n")
	for _, fn := range r.notes {
		fmt.Fprintf(r.buf, "<p>%d. %s</p>\n", fn.num, textHTML(fn.text))
	}
	r.buf.WriteString("</div>\n")
}

// ─────────────────────────────────────────────────────────────────────────────
// Factories
// ─────────────────────────────────────────────────────────────────────────────

// NewText creates a text run in the named style. A non-empty color
// overrides the style color.
func (r *Renderer) NewText(style, color string) report.Text {
	return &htmlText{r: r, styleName: style, color: color}
}

// NewCell creates a bordered, filled, or plain cell of text.
func (r *Renderer) NewCell(opts report.CellOpts) report.Cell {
	return &htmlCell{r: r, opts: opts}
}

// NewTextBox groups child elements inside an optionally bordered box.
func (r *Renderer) NewTextBox(opts report.TextBoxOpts) report.TextBox {
	return &htmlTextBox{r: r, opts: opts}
}

// NewLine draws a line between two page coordinates. Only horizontal and
// vertical lines have an HTML rendering; anything else degrades to a rule.
func (r *Renderer) NewLine(x1, y1, x2, y2 float64) report.Element {
	return &htmlLine{r: r, x1: x1, y1: y1, x2: x2, y2: y2}
}

// NewImage embeds an image read from a local file as a data URI.
func (r *Renderer) NewImage(path string, opts report.ImageOpts) (report.Element, error) {
	data, contentType, err := readImageFile(path)
	if err != nil {
		return nil, err
	}
	return &htmlImage{r: r, data: data, contentType: contentType, opts: opts}, nil
}

// NewImageFromObject embeds a stored media object as a data URI.
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
	return &htmlImage{r: r, data: data, contentType: obj.ContentType(), opts: opts}, nil
}

// NewFootnote creates a footnote in the named style.
func (r *Renderer) NewFootnote(style string) report.Footnote {
	return &htmlFootnote{r: r, styleName: style}
}

// ─────────────────────────────────────────────────────────────────────────────
// Styles
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

// css builds the stylesheet: page geometry for printing plus one class per
// registered style.
func (r *Renderer) css() string {
	g := r.doc.Geometry()
	var b strings.Builder
	fmt.Fprintf(&b, "@page { size: %.2fpt %.2fpt; margin: %.2fpt %.2fpt %.2fpt %.2fpt; }\n",
		g.PageWidth, g.PageHeight, g.MarginTop, g.MarginRight, g.MarginBottom, g.MarginLeft)
	fmt.Fprintf(&b, "body { width: %.2fpt; margin: 0 auto; }\n", g.ContentWidth())
	b.WriteString("div.footnotes p { margin: 2pt 0; }\n")
	for _, s := range r.doc.Styles() {
		fmt.Fprintf(&b, ".%s { %s}\n", classFor(s.Name), styleCSS(s))
	}
	return b.String()
}

// classFor turns a style name into a safe CSS class name.
func classFor(name string) string {
	mapped := strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			return c
		}
		return '-'
	}, name)
	return "s-" + mapped
}

func fontFamilyCSS(font string) string {
	switch font {
	case report.FontTimes:
		return `"Times New Roman", Times, serif`
	case report.FontCourier:
		return `"Courier New", Courier, monospace`
	default:
		return "Helvetica, Arial, sans-serif"
	}
}

// styleCSS renders the declarations of one style.
func styleCSS(s report.Style) string {
	var b strings.Builder
	fmt.Fprintf(&b, "font-family: %s; ", fontFamilyCSS(s.Font))
	fmt.Fprintf(&b, "font-size: %.2fpt; ", s.Size)
	if s.Bold {
		b.WriteString("font-weight: bold; ")
	}
	if s.Italic {
		b.WriteString("font-style: italic; ")
	}
	if s.Underline {
		b.WriteString("text-decoration: underline; ")
	}
	if s.Color != "" {
		fmt.Fprintf(&b, "color: %s; ", s.Color)
	}
	return b.String()
}

// textHTML escapes s and converts newlines and per-page placeholders. A
// single unpaginated page is always page one.
func textHTML(s string) string {
	s = strings.ReplaceAll(s, report.PageNumber, "1")
	s = html.EscapeString(s)
	return strings.ReplaceAll(s, "\n", "<br>\n")
}
