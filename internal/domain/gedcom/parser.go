package gedcom

import (
	"bufio"
	"io"
	"strings"

	"github.com/mirono/webtrees/pkg/errors"
)

// maxScanTokenSize bounds a single physical line; real exports stay far under
// this even with binary OBJE payloads pasted in by broken tools.
const maxScanTokenSize = 1 << 20

// Parser reads GEDCOM lines from a stream and assembles level-0 records.
// It is tolerant of UTF-8 BOMs, \r\n line endings, leading whitespace, and
// blank lines; CONT/CONC continuations are folded into the owning node's
// value so that values may contain newlines in memory.
type Parser struct {
	sc      *bufio.Scanner
	lineNum int
	pending *rawLine
	started bool
	err     error
}

type rawLine struct {
	num   int
	level int
	xref  string
	tag   string
	value string
}

// NewParser wraps r in a streaming GEDCOM parser.
func NewParser(r io.Reader) *Parser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), maxScanTokenSize)
	return &Parser{sc: sc}
}

// ParseAll reads every record from r.  Convenience wrapper over Next for
// callers that hold the whole file anyway (imports are streamed instead).
func ParseAll(r io.Reader) ([]*Record, error) {
	p := NewParser(r)
	var out []*Record
	for {
		rec, err := p.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}

// Next returns the next record in the stream, or io.EOF after the last one.
// A syntax error aborts the stream; the error detail carries the offending
// line number.
func (p *Parser) Next() (*Record, error) {
	if p.err != nil {
		return nil, p.err
	}

	first, err := p.readLine()
	if err != nil {
		p.err = err
		return nil, err
	}
	if first.level != 0 {
		p.err = p.errorf(first.num, "expected a level 0 line, got level %d", first.level)
		return nil, p.err
	}

	rec := &Record{
		Xref:  first.xref,
		Type:  RecordType(first.tag),
		Value: first.value,
	}

	// stack[i] holds the open node at level i; index 0 is a synthetic root
	// standing in for the record itself.
	root := &Node{Tag: first.tag, Value: first.value}
	stack := []*Node{root}

	for {
		l, err := p.readLine()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.err = err
			return nil, err
		}
		if l.level == 0 {
			p.pending = l
			break
		}

		if l.tag == "CONT" || l.tag == "CONC" {
			if l.level > len(stack) {
				p.err = p.errorf(l.num, "%s line has no owner", l.tag)
				return nil, p.err
			}
			owner := stack[l.level-1]
			if l.tag == "CONT" {
				owner.Value += "\n" + l.value
			} else {
				owner.Value += l.value
			}
			continue
		}

		if l.xref != "" {
			p.err = p.errorf(l.num, "xref @%s@ defined below level 0", l.xref)
			return nil, p.err
		}
		if l.level > len(stack) {
			p.err = p.errorf(l.num, "level jumps from %d to %d", len(stack)-1, l.level)
			return nil, p.err
		}

		parent := stack[l.level-1]
		node := parent.AddChild(l.tag, l.value)
		stack = append(stack[:l.level], node)
	}

	rec.Value = root.Value
	rec.Children = root.Children
	return rec, nil
}

// readLine returns the next meaningful line, skipping blanks.
func (p *Parser) readLine() (*rawLine, error) {
	if p.pending != nil {
		l := p.pending
		p.pending = nil
		return l, nil
	}
	for p.sc.Scan() {
		p.lineNum++
		text := strings.TrimSuffix(p.sc.Text(), "\r")
		if !p.started {
			text = strings.TrimPrefix(text, "\uFEFF")
			p.started = true
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		return p.parseRawLine(p.lineNum, text)
	}
	if err := p.sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeGedcomParse, "failed to read GEDCOM stream")
	}
	return nil, io.EOF
}

// parseRawLine splits "LEVEL [@XREF@] TAG [value]".  The single space after
// the tag is the delimiter; everything beyond it is the value, verbatim.
func (p *Parser) parseRawLine(num int, s string) (*rawLine, error) {
	t := strings.TrimLeft(s, " \t")

	i := 0
	for i < len(t) && t[i] >= '0' && t[i] <= '9' {
		i++
	}
	if i == 0 {
		return nil, p.errorf(num, "missing level number")
	}
	level := 0
	for _, c := range t[:i] {
		level = level*10 + int(c-'0')
	}
	if level > 99 {
		return nil, p.errorf(num, "level %d exceeds 99", level)
	}

	rest := strings.TrimLeft(t[i:], " ")
	if rest == "" {
		return nil, p.errorf(num, "missing tag")
	}

	l := &rawLine{num: num, level: level}

	if strings.HasPrefix(rest, "@") && !strings.HasPrefix(rest, "@#") {
		end := strings.Index(rest[1:], "@")
		if end < 0 {
			return nil, p.errorf(num, "unterminated xref")
		}
		l.xref = rest[1 : end+1]
		if l.xref == "" {
			return nil, p.errorf(num, "empty xref")
		}
		rest = strings.TrimLeft(rest[end+2:], " ")
	}

	j := 0
	for j < len(rest) && isTagChar(rest[j]) {
		j++
	}
	if j == 0 {
		return nil, p.errorf(num, "missing tag")
	}
	l.tag = strings.ToUpper(rest[:j])

	if j < len(rest) {
		if rest[j] != ' ' {
			return nil, p.errorf(num, "malformed tag %q", rest[:j+1])
		}
		l.value = rest[j+1:]
	}
	return l, nil
}

func (p *Parser) errorf(num int, format string, args ...interface{}) error {
	return errors.New(errors.ErrCodeGedcomParse, "malformed GEDCOM").
		WithDetailf("line %d: "+format, append([]interface{}{num}, args...)...)
}

func isTagChar(c byte) bool {
	return c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '_'
}
