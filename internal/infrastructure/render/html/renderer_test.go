package html

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/pkg/errors"
)

func testDoc(t *testing.T, styles ...report.Style) *report.Document {
	t.Helper()
	doc, err := report.NewDocument(report.PageSetup{
		PageWidth:    300,
		PageHeight:   400,
		MarginLeft:   20,
		MarginRight:  20,
		MarginTop:    30,
		MarginBottom: 30,
	})
	require.NoError(t, err)
	if len(styles) == 0 {
		styles = []report.Style{{Name: "body", Font: report.FontHelvetica, Size: 10}}
	}
	for _, s := range styles {
		require.NoError(t, doc.AddStyle(s))
	}
	return doc
}

func render(t *testing.T, r *Renderer) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, r.Run(&buf))
	return buf.String()
}

func TestRun_Shell(t *testing.T) {
	t.Parallel()

	doc := testDoc(t)
	doc.SetTitle("Ancestors & Descendants")
	r := New(doc)
	out := render(t, r)

	assert.True(t, strings.HasPrefix(out, "<!DOCTYPE html>"))
	assert.Contains(t, out, "<title>Ancestors &amp; Descendants</title>")
	assert.Contains(t, out, "@page { size: 300.00pt 400.00pt;")
	assert.Contains(t, out, ".s-body { font-family: Helvetica, Arial, sans-serif; font-size: 10.00pt; }")
	assert.Contains(t, out, "</html>")
}

func TestText_SpanWithStyleAndColor(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	txt := r.NewText("body", "#ff0000")
	txt.AppendText("John <Smith>")
	txt.AppendNewline()
	txt.AppendText("born 1820")
	r.AddElement(txt)
	out := render(t, r)

	assert.Contains(t, out, `<span class="s-body" style="color: #ff0000;">John &lt;Smith&gt;<br>`)
	assert.Contains(t, out, "born 1820</span>")
}

func TestCell_StyledDiv(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	c := r.NewCell(report.CellOpts{
		Width:   120,
		Border:  report.BorderAll,
		Fill:    "#eeeeee",
		Align:   report.AlignCenter,
		Style:   "body",
		NewLine: true,
	})
	c.AppendText("Name & Dates")
	r.AddElement(c)
	out := render(t, r)

	assert.Contains(t, out, `class="cell s-body"`)
	assert.Contains(t, out, "width: 120.00pt;")
	assert.Contains(t, out, "border: 0.5pt solid #000000;")
	assert.Contains(t, out, "background-color: #eeeeee;")
	assert.Contains(t, out, "text-align: center;")
	assert.Contains(t, out, "Name &amp; Dates</div>")
	assert.NotContains(t, out, "display: inline-block; vertical-align: top; width: 120.00pt")
}

func TestCell_InlineWhenNotNewLine(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	c := r.NewCell(report.CellOpts{Width: 60, Style: "body"})
	c.AppendText("left")
	r.AddElement(c)
	out := render(t, r)

	assert.Contains(t, out, "display: inline-block;")
}

func TestCell_PartialBorders(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	c := r.NewCell(report.CellOpts{Border: report.BorderTop | report.BorderBottom, Style: "body", NewLine: true})
	c.AppendText("ruled")
	r.AddElement(c)
	out := render(t, r)

	assert.Contains(t, out, "border-top: 0.5pt solid #000000;")
	assert.Contains(t, out, "border-bottom: 0.5pt solid #000000;")
	assert.NotContains(t, out, "border-left:")
}

func TestTextBox_NestsChildren(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	b := r.NewTextBox(report.TextBoxOpts{Width: 200, Border: true, Padding: true, NewLine: true})
	c := r.NewCell(report.CellOpts{Style: "body", NewLine: true})
	c.AppendText("Boxed")
	b.AddElement(c)
	r.AddElement(b)
	out := render(t, r)

	boxAt := strings.Index(out, `<div class="box"`)
	childAt := strings.Index(out, "Boxed</div>")
	require.GreaterOrEqual(t, boxAt, 0)
	require.Greater(t, childAt, boxAt)
	assert.Contains(t, out, "padding: 4pt;")
}

func TestLine_Horizontal(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	r.AddElement(r.NewLine(20, 50, 120, 50))
	out := render(t, r)

	assert.Contains(t, out, `<div class="line" style="margin-left: 0.00pt; width: 100.00pt; border-top: 0.7pt solid #000000;"></div>`)
}

func TestFootnotes_MarkersAndBlock(t *testing.T) {
	t.Parallel()

	doc := testDoc(t,
		report.Style{Name: "body", Font: report.FontHelvetica, Size: 10},
		report.Style{Name: "footnote", Font: report.FontHelvetica, Size: 8},
	)
	r := New(doc)

	fn1 := r.NewFootnote("footnote")
	fn1.AppendText("Parish register, 1823.")
	r.AddElement(fn1)
	fn2 := r.NewFootnote("footnote")
	fn2.AppendText("Parish register, 1823.")
	r.AddElement(fn2)
	fn3 := r.NewFootnote("footnote")
	fn3.AppendText("Census of 1851.")
	r.AddElement(fn3)
	out := render(t, r)

	assert.Equal(t, 2, strings.Count(out, `<sup class="s-footnote">1</sup>`))
	assert.Equal(t, 1, strings.Count(out, `<sup class="s-footnote">2</sup>`))
	assert.Equal(t, 1, strings.Count(out, "<p>1. Parish register, 1823.</p>"))
	assert.Contains(t, out, "<p>2. Census of 1851.</p>")
	assert.Contains(t, out, `<div class="footnotes">`)
}

func TestImage_DataURI(t *testing.T) {
	t.Parallel()

	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))
	path := filepath.Join(t.TempDir(), "stripe.png")
	require.NoError(t, os.WriteFile(path, pngBuf.Bytes(), 0o600))

	r := New(testDoc(t))
	el, err := r.NewImage(path, report.ImageOpts{Width: 50, Align: report.AlignCenter})
	require.NoError(t, err)
	r.AddElement(el)
	out := render(t, r)

	assert.Contains(t, out, `src="data:image/png;base64,`)
	assert.Contains(t, out, "max-width: 50.00pt;")
	assert.Contains(t, out, "margin: 0 auto;")
}

func TestImage_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("not an image"), 0o600))

	r := New(testDoc(t))
	_, err := r.NewImage(path, report.ImageOpts{})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRenderFailed))
}

func TestPageNumberPlaceholder(t *testing.T) {
	t.Parallel()

	r := New(testDoc(t))
	h := r.NewCell(report.CellOpts{Style: "body", NewLine: true})
	h.AppendText("Page #PAGENUM#")
	r.AddPageHeader(h)
	out := render(t, r)

	assert.Contains(t, out, "Page 1")
	assert.NotContains(t, out, "#PAGENUM#")
}

func TestRun_MissingStyleFails(t *testing.T) {
	t.Parallel()

	doc, err := report.NewDocument(report.PageSetup{PageWidth: 300, PageHeight: 400})
	require.NoError(t, err)

	r := New(doc)
	txt := r.NewText("body", "")
	txt.AppendText("x")
	r.AddElement(txt)

	err = r.Run(io.Discard)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRenderFailed))
}
