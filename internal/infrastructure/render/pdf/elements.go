package pdf

import (
	"strconv"
	"strings"

	"github.com/mirono/webtrees/internal/domain/report"
)

// markerScale sizes the superscript footnote number relative to its style.
const markerScale = 0.65

// ─────────────────────────────────────────────────────────────────────────────
// Line wrapping
// ─────────────────────────────────────────────────────────────────────────────

// wrapLine splits one paragraph into lines no wider than firstLimit for the
// first line and restLimit for the rest. When the cursor sits too close to
// the right edge for even the first word, an empty first line is emitted so
// the caller wraps before the word. Words wider than a whole line are broken
// mid-word.
func wrapLine(f *face, size float64, s string, firstLimit, restLimit float64) []string {
	if s == "" {
		return []string{""}
	}
	var lines []string
	limit := firstLimit
	cur := ""
	started := false
	for _, word := range strings.Split(s, " ") {
		cand := word
		if started {
			cand = cur + " " + word
		}
		if f.stringWidth(cand, size) <= limit {
			cur, started = cand, true
			continue
		}
		if started {
			lines = append(lines, cur)
			cur, started = "", false
			limit = restLimit
			if f.stringWidth(word, size) <= limit {
				cur, started = word, true
				continue
			}
		} else if limit < restLimit {
			lines = append(lines, "")
			limit = restLimit
			if f.stringWidth(word, size) <= limit {
				cur, started = word, true
				continue
			}
		}
		for f.stringWidth(word, size) > limit {
			var head string
			head, word = splitWord(f, size, word, limit)
			lines = append(lines, head)
			limit = restLimit
		}
		cur, started = word, true
	}
	return append(lines, cur)
}

// splitWord cuts word at the last rune fitting in limit. At least one rune
// always moves to head so callers make progress.
func splitWord(f *face, size float64, word string, limit float64) (head, tail string) {
	var b strings.Builder
	w := 0.0
	for i, r := range word {
		rw := f.stringWidth(string(r), size)
		if b.Len() > 0 && w+rw > limit {
			return b.String(), word[i:]
		}
		b.WriteRune(r)
		w += rw
	}
	return b.String(), ""
}

// truncateLine cuts s at the last rune fitting in limit.
func truncateLine(f *face, size float64, s string, limit float64) string {
	if f.stringWidth(s, size) <= limit {
		return s
	}
	var b strings.Builder
	w := 0.0
	for _, r := range s {
		rw := f.stringWidth(string(r), size)
		if w+rw > limit {
			break
		}
		b.WriteRune(r)
		w += rw
	}
	return b.String()
}

// ─────────────────────────────────────────────────────────────────────────────
// Text
// ─────────────────────────────────────────────────────────────────────────────

type pdfText struct {
	r         *Renderer
	styleName string
	color     string
	text      string
}

func (t *pdfText) AppendText(s string) { t.text += s }
func (t *pdfText) AppendNewline()      { t.text += "\n" }

func (t *pdfText) Height() float64 {
	s := t.r.resolveStyle(t.styleName)
	f := faceForStyle(s)
	cw := t.r.geom.ContentWidth()
	n := 0
	for _, para := range strings.Split(t.text, "\n") {
		n += len(wrapLine(f, s.Size, para, cw, cw))
	}
	return float64(n) * s.LineHeight()
}

// Render flows the text from the cursor. Every wrapped line but the last
// moves the cursor to the next line; the last advances it in place so
// following runs continue on the same line.
func (t *pdfText) Render() error {
	r := t.r
	s := r.resolveStyle(t.styleName)
	if t.color != "" {
		s.Color = t.color
	}
	f := faceForStyle(s)
	lh := s.LineHeight()

	paras := strings.Split(t.text, "\n")
	for pi, para := range paras {
		lines := wrapLine(f, s.Size, para, r.rightLim-r.x, r.rightLim-r.leftLim)
		for li, ln := range lines {
			r.ensureSpace(lh)
			enc := encodeWinAnsi(r.substitute(ln))
			r.drawText(r.x, r.y, r.faceID(f), s.Size, s.Color, enc)
			if pi == len(paras)-1 && li == len(lines)-1 {
				r.x += f.textWidth(enc, s.Size)
			} else {
				r.x = r.leftLim
				r.y += lh
			}
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Cell
// ─────────────────────────────────────────────────────────────────────────────

type pdfCell struct {
	r    *Renderer
	opts report.CellOpts
	text string
}

func (c *pdfCell) AppendText(s string) { c.text += s }

func (c *pdfCell) width(x float64) float64 {
	if c.opts.Width > 0 {
		return c.opts.Width
	}
	return c.r.rightLim - x
}

// lines wraps the cell text into the inner width. Placeholder substitution
// happens at draw time, and the raw placeholder is never narrower than the
// number it becomes, so measuring the raw text cannot overflow.
func (c *pdfCell) lines(f *face, size, inner float64) []string {
	if c.opts.Truncate {
		return []string{truncateLine(f, size, c.text, inner)}
	}
	var out []string
	for _, para := range strings.Split(c.text, "\n") {
		out = append(out, wrapLine(f, size, para, inner, inner)...)
	}
	return out
}

func (c *pdfCell) Height() float64 {
	s := c.r.resolveStyle(c.opts.Style)
	f := faceForStyle(s)
	w := c.opts.Width
	if w <= 0 {
		w = c.r.geom.ContentWidth()
	}
	h := float64(len(c.lines(f, s.Size, w-2*cellPadX))) * s.LineHeight()
	if c.opts.Height > h {
		h = c.opts.Height
	}
	return h
}

func (c *pdfCell) Render() error {
	r := c.r
	s := r.resolveStyle(c.opts.Style)
	if c.opts.Color != "" {
		s.Color = c.opts.Color
	}
	f := faceForStyle(s)
	lh := s.LineHeight()

	x, y := r.x, r.y
	if c.opts.Pos != nil {
		x, y = c.opts.Pos.X, c.opts.Pos.Y
	}
	lines := c.lines(f, s.Size, c.width(x)-2*cellPadX)
	h := float64(len(lines)) * lh
	if c.opts.Height > h {
		h = c.opts.Height
	}
	if c.opts.Pos == nil {
		r.ensureSpace(h)
		x, y = r.x, r.y
	}
	w := c.width(x)

	if c.opts.Fill != "" {
		r.fillRect(x, y, w, h, c.opts.Fill)
	}
	if c.opts.Border != report.BorderNone {
		r.strokeBorders(x, y, w, h, c.opts.Border, c.opts.BorderColor)
	}
	ty := y
	for _, ln := range lines {
		enc := encodeWinAnsi(r.substitute(ln))
		tx := x + cellPadX
		switch c.opts.Align {
		case report.AlignCenter:
			tx = x + (w-f.textWidth(enc, s.Size))/2
		case report.AlignRight:
			tx = x + w - cellPadX - f.textWidth(enc, s.Size)
		}
		r.drawText(tx, ty, r.faceID(f), s.Size, s.Color, enc)
		ty += lh
	}

	if c.opts.Pos == nil {
		if c.opts.NewLine {
			r.x, r.y = r.leftLim, y+h
		} else {
			r.x, r.y = x+w, y
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Text box
// ─────────────────────────────────────────────────────────────────────────────

type pdfTextBox struct {
	r        *Renderer
	opts     report.TextBoxOpts
	children []report.Element
}

func (b *pdfTextBox) AddElement(e report.Element) {
	b.children = append(b.children, e)
}

func (b *pdfTextBox) pad() float64 {
	if b.opts.Padding {
		return boxPad
	}
	return 0
}

func (b *pdfTextBox) Height() float64 {
	if b.opts.Height > 0 {
		return b.opts.Height
	}
	h := 0.0
	for _, e := range b.children {
		h += e.Height()
	}
	return h + 2*b.pad()
}

// Render draws the box frame and lays out the children inside it. The box is
// atomic: it breaks the page before drawing when it does not fit, and its
// children never break it apart.
func (b *pdfTextBox) Render() error {
	r := b.r
	h := b.Height()
	var x, y float64
	if b.opts.Pos != nil {
		x, y = b.opts.Pos.X, b.opts.Pos.Y
	} else {
		r.ensureSpace(h)
		x, y = r.x, r.y
	}
	w := b.opts.Width
	if w <= 0 {
		w = r.rightLim - x
	}

	if b.opts.Fill != "" {
		r.fillRect(x, y, w, h, b.opts.Fill)
	}
	if b.opts.Border {
		r.strokeBorders(x, y, w, h, report.BorderAll, "")
	}

	saveX, saveY := r.x, r.y
	saveL, saveR := r.leftLim, r.rightLim
	pad := b.pad()
	r.leftLim, r.rightLim = x+pad, x+w-pad
	r.x, r.y = r.leftLim, y+pad
	r.noBreak++
	var err error
	for _, e := range b.children {
		if err = e.Render(); err != nil {
			break
		}
	}
	r.noBreak--
	r.leftLim, r.rightLim = saveL, saveR

	switch {
	case b.opts.Pos != nil:
		r.x, r.y = saveX, saveY
	case b.opts.NewLine:
		r.x, r.y = r.leftLim, y+h
	default:
		r.x, r.y = x+w, y
	}
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Line
// ─────────────────────────────────────────────────────────────────────────────

type pdfLine struct {
	r              *Renderer
	x1, y1, x2, y2 float64
}

func (l *pdfLine) Height() float64 { return 0 }

func (l *pdfLine) Render() error {
	l.r.strokeLine(l.x1, l.y1, l.x2, l.y2, "", defaultStrokeW)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Image
// ─────────────────────────────────────────────────────────────────────────────

type pdfImage struct {
	r       *Renderer
	index   int
	natural [2]float64
	opts    report.ImageOpts
}

func (im *pdfImage) size() (w, h float64) {
	w, h = im.opts.Width, im.opts.Height
	nw, nh := im.natural[0], im.natural[1]
	switch {
	case w <= 0 && h <= 0:
		return nw, nh
	case w <= 0:
		return nw * h / nh, h
	case h <= 0:
		return w, nh * w / nw
	}
	scale := w / nw
	if s := h / nh; s < scale {
		scale = s
	}
	return nw * scale, nh * scale
}

func (im *pdfImage) Height() float64 {
	_, h := im.size()
	return h
}

func (im *pdfImage) Render() error {
	r := im.r
	w, h := im.size()
	var x, y float64
	if im.opts.Pos != nil {
		x, y = im.opts.Pos.X, im.opts.Pos.Y
	} else {
		r.ensureSpace(h)
		x, y = r.x, r.y
		switch im.opts.Align {
		case report.AlignCenter:
			x = r.leftLim + (r.rightLim-r.leftLim-w)/2
		case report.AlignRight:
			x = r.rightLim - w
		}
	}
	r.drawImage(im.index, x, y, w, h)
	if im.opts.Pos == nil {
		if im.opts.NewLine {
			r.x, r.y = r.leftLim, y+h
		} else {
			r.x = x + w
		}
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Footnote
// ─────────────────────────────────────────────────────────────────────────────

type pdfFootnote struct {
	r         *Renderer
	styleName string
	text      string
	num       int
}

func (fn *pdfFootnote) AppendText(s string) { fn.text += s }

// Height is zero; the marker rides the current line and the body is drawn
// from the page's bottom reserve.
func (fn *pdfFootnote) Height() float64 { return 0 }

// Render assigns the footnote its number, reserves room for the body at the
// page bottom, and draws the superscript marker at the cursor. A body text
// already seen anywhere in the document reuses its number and is not
// reserved again.
func (fn *pdfFootnote) Render() error {
	r := fn.r
	if n, ok := r.notesByText[fn.text]; ok {
		fn.num = n
	} else {
		r.noteCount++
		fn.num = r.noteCount
		r.notesByText[fn.text] = fn.num
		if len(r.footnotes) == 0 {
			r.notesHeight += footnoteGap
		}
		r.footnotes = append(r.footnotes, fn)
		r.notesHeight += fn.bodyHeight()
	}

	s := r.resolveStyle(fn.styleName)
	f := faceForStyle(s)
	size := s.Size * markerScale
	enc := encodeWinAnsi(strconv.Itoa(fn.num))
	r.drawText(r.x, r.y, r.faceID(f), size, s.Color, enc)
	r.x += f.textWidth(enc, size)
	return nil
}

func (fn *pdfFootnote) bodyText() string {
	return strconv.Itoa(fn.num) + ". " + fn.text
}

func (fn *pdfFootnote) bodyHeight() float64 {
	r := fn.r
	s := r.resolveStyle(fn.styleName)
	f := faceForStyle(s)
	cw := r.geom.ContentWidth()
	n := 0
	for _, para := range strings.Split(fn.bodyText(), "\n") {
		n += len(wrapLine(f, s.Size, para, cw, cw))
	}
	return float64(n) * s.LineHeight()
}

// renderBody draws the numbered body text starting at y and returns the y
// below the last line.
func (fn *pdfFootnote) renderBody(y float64) float64 {
	r := fn.r
	s := r.resolveStyle(fn.styleName)
	f := faceForStyle(s)
	cw := r.geom.ContentWidth()
	for _, para := range strings.Split(fn.bodyText(), "\n") {
		for _, ln := range wrapLine(f, s.Size, para, cw, cw) {
			r.drawText(r.geom.MarginLeft, y, r.faceID(f), s.Size, s.Color, encodeWinAnsi(ln))
			y += s.LineHeight()
		}
	}
	return y
}
