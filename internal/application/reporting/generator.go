package reporting

import (
	"context"
	"strconv"
	"strings"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/pkg/errors"
)

// Generator builds the element tree of one report kind. The same generator
// output renders to PDF or HTML depending on the backend behind rnd.
type Generator interface {
	Build(ctx context.Context, doc *report.Document, rnd report.Renderer, job *Job) error
}

// Layout constants, in points.
const (
	labelColWidth = 110.0
	numColWidth   = 34.0
	indentStep    = 16.0
	rowGap        = 4.0
	sectionGap    = 10.0
)

// base carries the record loader and the layout helpers the bundled
// generators share.
type base struct {
	loader Loader
}

// root loads the record the report starts from. A missing root fails the
// job, unlike linked records which render as gaps.
func (b base) root(ctx context.Context, treeID int64, xref string) (*gedcom.Record, error) {
	return b.loader.Record(ctx, treeID, xref)
}

// record resolves a linked record. Dangling pointers are common in real
// files, so a missing xref comes back as nil rather than an error.
func (b base) record(ctx context.Context, treeID int64, xref string) (*gedcom.Record, error) {
	if xref == "" {
		return nil, nil
	}
	rec, err := b.loader.Record(ctx, treeID, xref)
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// parents resolves the father and mother of rec through its first
// child-of-family link. Either may be nil.
func (b base) parents(ctx context.Context, treeID int64, rec *gedcom.Record) (father, mother *gedcom.Record, err error) {
	links := rec.FamiliesAsChild()
	if len(links) == 0 {
		return nil, nil, nil
	}
	fam, err := b.record(ctx, treeID, links[0])
	if err != nil || fam == nil {
		return nil, nil, err
	}
	if father, err = b.record(ctx, treeID, fam.Husband()); err != nil {
		return nil, nil, err
	}
	if mother, err = b.record(ctx, treeID, fam.Wife()); err != nil {
		return nil, nil, err
	}
	return father, mother, nil
}

// factSources resolves the source citations attached to the first fact with
// the given tag into footnote bodies. A pointer citation yields the source
// title plus the cited page; an inline citation yields its text as is.
func (b base) factSources(ctx context.Context, treeID int64, rec *gedcom.Record, tag string) ([]string, error) {
	fact := rec.First(tag)
	if fact == nil {
		return nil, nil
	}
	var bodies []string
	for _, cit := range fact.All("SOUR") {
		xref := gedcom.PointerTarget(cit.Value)
		if xref == "" {
			if cit.Value != "" {
				bodies = append(bodies, cit.Value)
			}
			continue
		}
		src, err := b.record(ctx, treeID, xref)
		if err != nil {
			return nil, err
		}
		if src == nil {
			continue
		}
		body := src.SourceTitle()
		if body == "" {
			body = xref
		}
		if page := cit.ValueOf("PAGE"); page != "" {
			body += ", " + page
		}
		bodies = append(bodies, body)
	}
	return bodies, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Element helpers
// ─────────────────────────────────────────────────────────────────────────────

// addPageHeader puts the tree name and the page number at the top of every
// page.
func addPageHeader(rnd report.Renderer, geom report.Geometry, treeName string) {
	left := rnd.NewCell(report.CellOpts{Width: geom.ContentWidth() - 90, Style: styleSmall})
	left.AppendText(treeName)
	rnd.AddPageHeader(left)

	right := rnd.NewCell(report.CellOpts{Width: 90, Align: report.AlignRight, Style: styleSmall, NewLine: true})
	right.AppendText("Page " + report.PageNumber)
	rnd.AddPageHeader(right)
}

func addTitle(rnd report.Renderer, text string) {
	c := rnd.NewCell(report.CellOpts{Style: styleTitle, Align: report.AlignCenter, NewLine: true})
	c.AppendText(text)
	rnd.AddElement(c)
}

func addSubtitle(rnd report.Renderer, text string) {
	c := rnd.NewCell(report.CellOpts{Style: styleSection, Align: report.AlignCenter, NewLine: true})
	c.AppendText(text)
	rnd.AddElement(c)
}

// addSection draws an underlined section heading with breathing room above.
func addSection(rnd report.Renderer, text string) {
	addGap(rnd, sectionGap)
	c := rnd.NewCell(report.CellOpts{
		Style:       styleSection,
		Border:      report.BorderBottom,
		BorderColor: "#999999",
		NewLine:     true,
	})
	c.AppendText(text)
	rnd.AddElement(c)
	addGap(rnd, rowGap)
}

// addGap advances the flow by an empty strip.
func addGap(rnd report.Renderer, h float64) {
	c := rnd.NewCell(report.CellOpts{Height: h, Style: styleBody, NewLine: true})
	rnd.AddElement(c)
}

// lineBreak moves the flow to the start of the next line, for rows whose
// last element leaves the cursor mid-line.
func lineBreak(rnd report.Renderer) {
	t := rnd.NewText(styleBody, "")
	t.AppendNewline()
	rnd.AddElement(t)
}

// factRow writes one labelled row. When rec and tag name a fact, its source
// citations follow the value as footnote marks. Rows with an empty value
// are dropped so reports show only what the file records.
func (b base) factRow(ctx context.Context, rnd report.Renderer, job *Job, rec *gedcom.Record, tag, label, value string) error {
	if value == "" {
		return nil
	}
	lbl := rnd.NewCell(report.CellOpts{Width: labelColWidth, Style: styleLabel})
	lbl.AppendText(label)
	rnd.AddElement(lbl)

	txt := rnd.NewText(styleBody, "")
	txt.AppendText(value)
	rnd.AddElement(txt)

	if rec != nil && tag != "" {
		bodies, err := b.factSources(ctx, job.TreeID, rec, tag)
		if err != nil {
			return err
		}
		for _, body := range bodies {
			fn := rnd.NewFootnote(styleFootnote)
			fn.AppendText(body)
			rnd.AddElement(fn)
		}
	}
	lineBreak(rnd)
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Formatting helpers
// ─────────────────────────────────────────────────────────────────────────────

// personLine renders a person as "Name (1823-1901)". A nil record yields ""
// so factRow drops the row.
func personLine(rec *gedcom.Record) string {
	if rec == nil {
		return ""
	}
	name := rec.FullName()
	if name == "" {
		name = rec.Xref
	}
	if span := lifespan(rec); span != "" {
		return name + " " + span
	}
	return name
}

// lifespan renders the birth and death years, e.g. "(1823-1901)",
// "(b. 1823)" or "(d. 1901)".
func lifespan(rec *gedcom.Record) string {
	birth, death := rec.BirthDate(), rec.DeathDate()
	switch {
	case !birth.IsZero() && !death.IsZero():
		return "(" + yearString(birth) + "-" + yearString(death) + ")"
	case !birth.IsZero():
		return "(b. " + yearString(birth) + ")"
	case !death.IsZero():
		return "(d. " + yearString(death) + ")"
	}
	return ""
}

func yearString(d gedcom.Date) string {
	y := d.Year()
	if y == 0 {
		return "?"
	}
	return strconv.Itoa(y)
}

// dateAndPlace joins an event's date and place, skipping whichever is
// missing.
func dateAndPlace(d gedcom.Date, place string) string {
	parts := make([]string, 0, 2)
	if !d.IsZero() {
		parts = append(parts, d.String())
	}
	if place != "" {
		parts = append(parts, place)
	}
	return strings.Join(parts, ", ")
}

func sexLabel(sex string) string {
	switch sex {
	case "M":
		return "Male"
	case "F":
		return "Female"
	}
	return "Unknown"
}
