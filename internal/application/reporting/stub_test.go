package reporting

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/pkg/errors"
)

// Three generations around John Smith: his parents (F2), his marriage to
// Mary Jones with son Peter (F1), and Peter's own family (F3). S1 is cited
// on John's birth.
const sampleGedcom = `0 HEAD
1 GEDC
2 VERS 5.5.1
1 CHAR UTF-8
0 @I1@ INDI
1 NAME John /Smith/
1 SEX M
1 BIRT
2 DATE 12 JAN 1823
2 PLAC London, England
2 SOUR @S1@
3 PAGE p. 44
1 DEAT
2 DATE 3 MAR 1901
2 PLAC York, England
1 FAMS @F1@
1 FAMC @F2@
0 @I2@ INDI
1 NAME Mary /Jones/
1 SEX F
1 BIRT
2 DATE 1825
1 DEAT
2 DATE 1910
1 FAMS @F1@
0 @I3@ INDI
1 NAME Peter /Smith/
1 SEX M
1 BIRT
2 DATE 2 FEB 1850
1 FAMC @F1@
1 FAMS @F3@
0 @I4@ INDI
1 NAME Robert /Smith/
1 SEX M
1 BIRT
2 DATE 1798
1 FAMS @F2@
0 @I5@ INDI
1 NAME Ann /Brown/
1 SEX F
1 FAMS @F2@
0 @I6@ INDI
1 NAME Jane /Green/
1 SEX F
1 FAMS @F3@
0 @I7@ INDI
1 NAME Alice /Smith/
1 SEX F
1 FAMC @F3@
0 @F1@ FAM
1 HUSB @I1@
1 WIFE @I2@
1 CHIL @I3@
1 MARR
2 DATE 10 JUN 1848
2 PLAC London, England
0 @F2@ FAM
1 HUSB @I4@
1 WIFE @I5@
1 CHIL @I1@
0 @F3@ FAM
1 HUSB @I3@
1 WIFE @I6@
1 CHIL @I7@
1 MARR
2 DATE 1875
0 @S1@ SOUR
1 TITL Parish register of St Mary
0 TRLR
`

func loadSample(t *testing.T) *stubLoader {
	t.Helper()
	recs, err := gedcom.ParseAll(strings.NewReader(sampleGedcom))
	require.NoError(t, err)
	byXref := make(map[string]*gedcom.Record)
	for _, r := range recs {
		if r.Xref != "" {
			byXref[r.Xref] = r
		}
	}
	return &stubLoader{recs: byXref}
}

// ─────────────────────────────────────────────────────────────────────────────
// Dependency stubs
// ─────────────────────────────────────────────────────────────────────────────

type stubLoader struct {
	recs map[string]*gedcom.Record
}

func (l *stubLoader) Record(_ context.Context, _ int64, xref string) (*gedcom.Record, error) {
	rec, ok := l.recs[xref]
	if !ok {
		return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found").WithDetail(xref)
	}
	return rec, nil
}

type stubJobs struct {
	jobs      map[string]*Job
	createErr error
}

func newStubJobs() *stubJobs { return &stubJobs{jobs: make(map[string]*Job)} }

func (s *stubJobs) Create(_ context.Context, job *Job) error {
	if s.createErr != nil {
		return s.createErr
	}
	copied := *job
	s.jobs[job.Handle] = &copied
	return nil
}

func (s *stubJobs) Get(_ context.Context, handle string) (*Job, error) {
	job, ok := s.jobs[handle]
	if !ok {
		return nil, errors.New(errors.ErrCodeReportNotFound, "report not found").WithDetail(handle)
	}
	copied := *job
	return &copied, nil
}

func (s *stubJobs) Update(_ context.Context, job *Job) error {
	copied := *job
	s.jobs[job.Handle] = &copied
	return nil
}

type stubStore struct {
	data   map[string][]byte
	types  map[string]string
	putErr error
}

func newStubStore() *stubStore {
	return &stubStore{data: make(map[string][]byte), types: make(map[string]string)}
}

func (s *stubStore) Put(_ context.Context, key, contentType string, data []byte) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.data[key] = append([]byte(nil), data...)
	s.types[key] = contentType
	return nil
}

func (s *stubStore) Get(_ context.Context, key string) ([]byte, string, error) {
	data, ok := s.data[key]
	if !ok {
		return nil, "", errors.New(errors.ErrCodeStorageError, "object not found").WithDetail(key)
	}
	return data, s.types[key], nil
}

type stubEvents struct {
	requested  []string
	finished   []string
	requestErr error
}

func (e *stubEvents) ReportRequested(_ context.Context, job *Job) error {
	if e.requestErr != nil {
		return e.requestErr
	}
	e.requested = append(e.requested, job.Handle)
	return nil
}

func (e *stubEvents) ReportFinished(_ context.Context, job *Job) error {
	e.finished = append(e.finished, job.Handle)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Recording renderer
// ─────────────────────────────────────────────────────────────────────────────

// recordingRenderer captures element text in render order so tests assert
// on report content without a real backend.
type recordingRenderer struct {
	header  []report.Element
	body    []report.Element
	out     []string
	notes   []string
	failRun bool
}

func (r *recordingRenderer) text() string { return strings.Join(r.out, "") }

type recordedElem struct {
	r        *recordingRenderer
	buf      strings.Builder
	children []report.Element
	note     bool
}

func (e *recordedElem) Height() float64 { return 10 }

func (e *recordedElem) Render() error {
	if s := e.buf.String(); s != "" {
		if e.note {
			e.r.notes = append(e.r.notes, s)
		} else {
			e.r.out = append(e.r.out, s)
		}
	}
	for _, c := range e.children {
		if err := c.Render(); err != nil {
			return err
		}
	}
	return nil
}

func (e *recordedElem) AppendText(t string)         { e.buf.WriteString(t) }
func (e *recordedElem) AppendNewline()              { e.buf.WriteString("\n") }
func (e *recordedElem) AddElement(c report.Element) { e.children = append(e.children, c) }

func (r *recordingRenderer) NewCell(report.CellOpts) report.Cell { return &recordedElem{r: r} }

func (r *recordingRenderer) NewTextBox(report.TextBoxOpts) report.TextBox {
	return &recordedElem{r: r}
}

func (r *recordingRenderer) NewText(string, string) report.Text { return &recordedElem{r: r} }
func (r *recordingRenderer) NewLine(float64, float64, float64, float64) report.Element {
	return &recordedElem{r: r}
}

func (r *recordingRenderer) NewImage(string, report.ImageOpts) (report.Element, error) {
	return &recordedElem{r: r}, nil
}

func (r *recordingRenderer) NewImageFromObject(report.ImageObject, report.ImageOpts) (report.Element, error) {
	return &recordedElem{r: r}, nil
}

func (r *recordingRenderer) NewFootnote(string) report.Footnote {
	return &recordedElem{r: r, note: true}
}

func (r *recordingRenderer) AddElement(e report.Element)    { r.body = append(r.body, e) }
func (r *recordingRenderer) AddPageHeader(e report.Element) { r.header = append(r.header, e) }
func (r *recordingRenderer) ClearPageHeader()               { r.header = nil }

func (r *recordingRenderer) Run(w io.Writer) error {
	if r.failRun {
		return errors.New(errors.ErrCodeRenderFailed, "forced render failure")
	}
	for _, e := range r.header {
		if err := e.Render(); err != nil {
			return err
		}
	}
	for _, e := range r.body {
		if err := e.Render(); err != nil {
			return err
		}
	}
	_, err := w.Write([]byte(r.text()))
	return err
}

// buildReport runs a generator against the sample tree and returns the
// recorded output.
func buildReport(t *testing.T, gen Generator, job *Job) *recordingRenderer {
	t.Helper()
	doc, err := report.NewDocument(report.DefaultPageSetup())
	require.NoError(t, err)
	require.NoError(t, registerStyles(doc))
	rnd := &recordingRenderer{}
	require.NoError(t, gen.Build(context.Background(), doc, rnd, job))
	require.NoError(t, rnd.Run(io.Discard))
	return rnd
}
