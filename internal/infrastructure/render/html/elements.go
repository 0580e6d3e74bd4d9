package html

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Text
// ─────────────────────────────────────────────────────────────────────────────

type htmlText struct {
	r         *Renderer
	styleName string
	color     string
	text      string
}

func (t *htmlText) AppendText(s string) { t.text += s }
func (t *htmlText) AppendNewline()      { t.text += "\n" }

func (t *htmlText) Height() float64 {
	s := t.r.resolveStyle(t.styleName)
	return float64(strings.Count(t.text, "\n")+1) * s.LineHeight()
}

func (t *htmlText) Render() error {
	r := t.r
	s := r.resolveStyle(t.styleName)
	attr := ""
	if t.color != "" {
		attr = fmt.Sprintf(` style="color: %s;"`, t.color)
	}
	fmt.Fprintf(r.buf, `<span class="%s"%s>%s</span>`, classFor(s.Name), attr, textHTML(t.text))
	r.buf.WriteByte('\n')
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cell
// ─────────────────────────────────────────────────────────────────────────────

type htmlCell struct {
	r    *Renderer
	opts report.CellOpts
	text string
}

func (c *htmlCell) AppendText(s string) { c.text += s }

func (c *htmlCell) Height() float64 {
	s := c.r.resolveStyle(c.opts.Style)
	h := float64(strings.Count(c.text, "\n")+1) * s.LineHeight()
	if c.opts.Height > h {
		h = c.opts.Height
	}
	return h
}

// borderCSS renders the selected edges; a full frame collapses to the
// shorthand property.
func borderCSS(b report.Border, color string) string {
	if color == "" {
		color = "#000000"
	}
	edge := "0.5pt solid " + color
	if b == report.BorderAll {
		return fmt.Sprintf("border: %s; ", edge)
	}
	var s strings.Builder
	if b.Has(report.BorderTop) {
		fmt.Fprintf(&s, "border-top: %s; ", edge)
	}
	if b.Has(report.BorderRight) {
		fmt.Fprintf(&s, "border-right: %s; ", edge)
	}
	if b.Has(report.BorderBottom) {
		fmt.Fprintf(&s, "border-bottom: %s; ", edge)
	}
	if b.Has(report.BorderLeft) {
		fmt.Fprintf(&s, "border-left: %s; ", edge)
	}
	return s.String()
}

func (c *htmlCell) Render() error {
	r := c.r
	s := r.resolveStyle(c.opts.Style)

	var css strings.Builder
	if !c.opts.NewLine {
		css.WriteString("display: inline-block; vertical-align: top; ")
	}
	if c.opts.Width > 0 {
		fmt.Fprintf(&css, "width: %.2fpt; ", c.opts.Width)
	}
	if c.opts.Height > 0 {
		fmt.Fprintf(&css, "min-height: %.2fpt; ", c.opts.Height)
	}
	css.WriteString(borderCSS(c.opts.Border, c.opts.BorderColor))
	if c.opts.Fill != "" {
		fmt.Fprintf(&css, "background-color: %s; ", c.opts.Fill)
	}
	if c.opts.Align != "" && c.opts.Align != report.AlignLeft {
		fmt.Fprintf(&css, "text-align: %s; ", c.opts.Align)
	}
	if c.opts.Color != "" {
		fmt.Fprintf(&css, "color: %s; ", c.opts.Color)
	}
	if c.opts.Truncate {
		css.WriteString("white-space: nowrap; overflow: hidden; ")
	}

	fmt.Fprintf(r.buf, `<div class="cell %s" style="%s">%s</div>`,
		classFor(s.Name), css.String(), textHTML(c.text))
	r.buf.WriteByte('\n')
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Text box
// ─────────────────────────────────────────────────────────────────────────────

type htmlTextBox struct {
	r        *Renderer
	opts     report.TextBoxOpts
	children []report.Element
}

func (b *htmlTextBox) AddElement(e report.Element) {
	b.children = append(b.children, e)
}

func (b *htmlTextBox) Height() float64 {
	if b.opts.Height > 0 {
		return b.opts.Height
	}
	h := 0.0
	for _, e := range b.children {
		h += e.Height()
	}
	return h
}

func (b *htmlTextBox) Render() error {
	r := b.r

	var css strings.Builder
	if !b.opts.NewLine {
		css.WriteString("display: inline-block; vertical-align: top; ")
	}
	if b.opts.Width > 0 {
		fmt.Fprintf(&css, "width: %.2fpt; ", b.opts.Width)
	}
	if b.opts.Height > 0 {
		fmt.Fprintf(&css, "min-height: %.2fpt; ", b.opts.Height)
	}
	if b.opts.Border {
		css.WriteString("border: 0.5pt solid #000000; ")
	}
	if b.opts.Fill != "" {
		fmt.Fprintf(&css, "background-color: %s; ", b.opts.Fill)
	}
	if b.opts.Padding {
		css.WriteString("padding: 4pt; ")
	}

	fmt.Fprintf(r.buf, `<div class="box" style="%s">`, css.String())
	r.buf.WriteByte('\n')
	var err error
	for _, e := range b.children {
		if err = e.Render(); err != nil {
			break
		}
	}
	r.buf.WriteString("</div>\n")
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Line
// ─────────────────────────────────────────────────────────────────────────────

type htmlLine struct {
	r              *Renderer
	x1, y1, x2, y2 float64
}

func (l *htmlLine) Height() float64 { return 0 }

func (l *htmlLine) Render() error {
	r := l.r
	g := r.doc.Geometry()
	switch {
	case l.y1 == l.y2:
		fmt.Fprintf(r.buf, `<div class="line" style="margin-left: %.2fpt; width: %.2fpt; border-top: 0.7pt solid #000000;"></div>`,
			l.x1-g.MarginLeft, l.x2-l.x1)
	case l.x1 == l.x2:
		fmt.Fprintf(r.buf, `<div class="line" style="margin-left: %.2fpt; height: %.2fpt; border-left: 0.7pt solid #000000; width: 0;"></div>`,
			l.x1-g.MarginLeft, l.y2-l.y1)
	default:
		r.buf.WriteString("<hr>")
	}
	r.buf.WriteByte('\n')
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Image
// ─────────────────────────────────────────────────────────────────────────────

// readImageFile loads an image and sniffs its media type from the leading
// magic bytes.
func readImageFile(path string) (data []byte, contentType string, err error) {
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrCodeRenderFailed, "read image file")
	}
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return data, "image/jpeg", nil
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return data, "image/png", nil
	}
	return nil, "", errors.New(errors.ErrCodeRenderFailed, "unsupported image format, want jpeg or png")
}

type htmlImage struct {
	r           *Renderer
	data        []byte
	contentType string
	opts        report.ImageOpts
}

func (im *htmlImage) Height() float64 { return im.opts.Height }

func (im *htmlImage) Render() error {
	r := im.r

	var css strings.Builder
	if im.opts.Width > 0 {
		fmt.Fprintf(&css, "max-width: %.2fpt; ", im.opts.Width)
	}
	if im.opts.Height > 0 {
		fmt.Fprintf(&css, "max-height: %.2fpt; ", im.opts.Height)
	}
	switch im.opts.Align {
	case report.AlignCenter:
		css.WriteString("display: block; margin: 0 auto; ")
	case report.AlignRight:
		css.WriteString("display: block; margin-left: auto; ")
	}

	fmt.Fprintf(r.buf, `<img src="data:%s;base64,%s" style="%s" alt="">`,
		im.contentType, base64.StdEncoding.EncodeToString(im.data), css.String())
	r.buf.WriteByte('\n')
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Footnote
// ─────────────────────────────────────────────────────────────────────────────

type htmlFootnote struct {
	r         *Renderer
	styleName string
	text      string
	num       int
}

func (fn *htmlFootnote) AppendText(s string) { fn.text += s }

func (fn *htmlFootnote) Height() float64 { return 0 }

// Render places the superscript marker; the body joins the footnote block
// at the end of the document. A body text already seen reuses its number.
func (fn *htmlFootnote) Render() error {
	r := fn.r
	if n, ok := r.notesByText[fn.text]; ok {
		fn.num = n
	} else {
		r.noteCount++
		fn.num = r.noteCount
		r.notesByText[fn.text] = fn.num
		r.notes = append(r.notes, fn)
	}
	s := r.resolveStyle(fn.styleName)
	fmt.Fprintf(r.buf, `<sup class="%s">%s</sup>`, classFor(s.Name), strconv.Itoa(fn.num))
	r.buf.WriteByte('\n')
	return nil
}
