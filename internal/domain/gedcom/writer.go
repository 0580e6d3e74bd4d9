package gedcom

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// maxLineLength is the GEDCOM 5.5.1 physical line limit including level,
// xref, and tag.  Values that would overflow are split onto CONC lines;
// embedded newlines become CONT lines.
const maxLineLength = 255

// Writer emits records as canonical GEDCOM text.
type Writer struct {
	bw *bufio.Writer
}

// NewWriter wraps w in a GEDCOM writer.  Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{bw: bufio.NewWriter(w)}
}

// WriteRecord writes one record and its subtree.
func (w *Writer) WriteRecord(rec *Record) error {
	if err := w.writeLine(0, rec.Xref, string(rec.Type), rec.Value); err != nil {
		return err
	}
	for _, c := range rec.Children {
		if err := w.writeNode(1, c); err != nil {
			return err
		}
	}
	return nil
}

// Flush drains buffered output to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

func (w *Writer) writeNode(level int, n *Node) error {
	if err := w.writeLine(level, "", n.Tag, n.Value); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := w.writeNode(level+1, c); err != nil {
			return err
		}
	}
	return nil
}

// writeLine emits one logical line, splitting the value into CONT lines at
// newlines and CONC lines at the physical length limit.
func (w *Writer) writeLine(level int, xref, tag, value string) error {
	segments := strings.Split(value, "\n")
	for i, seg := range segments {
		lineTag := tag
		lineXref := xref
		lineLevel := level
		if i > 0 {
			lineTag = "CONT"
			lineXref = ""
			lineLevel = level + 1
		}
		if err := w.writeSegment(lineLevel, lineXref, lineTag, seg, level+1); err != nil {
			return err
		}
	}
	return nil
}

// writeSegment emits one newline-free value, CONC-splitting as needed.
// concLevel is the level CONC continuations are written at (one below the
// owning line's children would be wrong for CONT lines, whose CONCs stay at
// the CONT's own level).
func (w *Writer) writeSegment(level int, xref, tag, value string, concLevel int) error {
	prefixLen := lineOverhead(level, xref, tag)
	first, rest := splitAt(value, maxLineLength-prefixLen)

	var b strings.Builder
	fmt.Fprintf(&b, "%d", level)
	if xref != "" {
		fmt.Fprintf(&b, " @%s@", xref)
	}
	b.WriteByte(' ')
	b.WriteString(tag)
	if first != "" {
		b.WriteByte(' ')
		b.WriteString(first)
	}
	b.WriteByte('\n')
	if _, err := w.bw.WriteString(b.String()); err != nil {
		return err
	}

	concOverhead := lineOverhead(concLevel, "", "CONC")
	for rest != "" {
		var chunk string
		chunk, rest = splitAt(rest, maxLineLength-concOverhead)
		if _, err := fmt.Fprintf(w.bw, "%d CONC %s\n", concLevel, chunk); err != nil {
			return err
		}
	}
	return nil
}

// lineOverhead is the byte length of "LEVEL [@XREF@] TAG " for a line.
func lineOverhead(level int, xref, tag string) int {
	n := len(fmt.Sprintf("%d", level)) + 1 + len(tag) + 1
	if xref != "" {
		n += len(xref) + 3
	}
	return n
}

// splitAt breaks s after at most limit bytes on a rune boundary, nudging the
// break away from spaces so neither piece gains a leading or trailing space
// that a trimming reader would destroy.
func splitAt(s string, limit int) (head, tail string) {
	if limit < 1 {
		limit = 1
	}
	if len(s) <= limit {
		return s, ""
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	adjusted := cut
	for adjusted > 1 && (s[adjusted] == ' ' || s[adjusted-1] == ' ') {
		adjusted--
	}
	if adjusted > 1 {
		cut = adjusted
	}
	return s[:cut], s[cut:]
}

// ─────────────────────────────────────────────────────────────────────────────
// Document helpers
// ─────────────────────────────────────────────────────────────────────────────

// NewHeader builds the HEAD record for an export, stamped with the producing
// source and the moment of writing.
func NewHeader(sourceName, sourceVersion string, now time.Time) *Record {
	head := NewRecord("", RecordHeader)
	sour := head.AddChild("SOUR", sourceName)
	if sourceVersion != "" {
		sour.AddChild("VERS", sourceVersion)
	}
	date := head.AddChild("DATE", fmt.Sprintf("%d %s %d", now.Day(), monthName[int(now.Month())], now.Year()))
	date.AddChild("TIME", now.Format("15:04:05"))
	head.AddChild("CHAR", "UTF-8")
	gedc := head.AddChild("GEDC", "")
	gedc.AddChild("VERS", "5.5.1")
	gedc.AddChild("FORM", "LINEAGE-LINKED")
	return head
}

// NewTrailer returns the TRLR record that ends every GEDCOM file.
func NewTrailer() *Record {
	return NewRecord("", RecordTrailer)
}

// WriteAll writes records to w in order and flushes.  Callers compose the
// document themselves (header first, trailer last) so that exports can
// stream records between the two.
func WriteAll(w io.Writer, recs []*Record) error {
	gw := NewWriter(w)
	for _, rec := range recs {
		if err := gw.WriteRecord(rec); err != nil {
			return err
		}
	}
	return gw.Flush()
}
