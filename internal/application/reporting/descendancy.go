package reporting

import (
	"context"
	"strconv"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/report"
)

// DescendancyReport lists a person's descendants as an indented outline
// with d'Aboville numbers: the start person is 1, their children 1.1, 1.2
// and so on, one numbering level per generation. Each person's marriages
// print as small rows under the name.
type DescendancyReport struct {
	base
}

func NewDescendancyReport(loader Loader) *DescendancyReport {
	return &DescendancyReport{base{loader: loader}}
}

func (g *DescendancyReport) Build(ctx context.Context, doc *report.Document, rnd report.Renderer, job *Job) error {
	start, err := g.root(ctx, job.TreeID, job.Xref)
	if err != nil {
		return err
	}

	doc.SetTitle("Descendancy Report")
	doc.AddDescription("Descendants of " + personLine(start))

	addPageHeader(rnd, doc.Geometry(), job.TreeName)
	addTitle(rnd, "Descendancy Report")
	addSubtitle(rnd, "Descendants of "+personLine(start))
	addGap(rnd, sectionGap)

	return g.walk(ctx, rnd, job, start, "1", 0)
}

func (g *DescendancyReport) walk(ctx context.Context, rnd report.Renderer, job *Job, rec *gedcom.Record, number string, depth int) error {
	g.personRow(rnd, rec, number, depth)

	families := rec.FamiliesAsSpouse()
	for _, famXref := range families {
		fam, err := g.record(ctx, job.TreeID, famXref)
		if err != nil {
			return err
		}
		if fam == nil {
			continue
		}
		if err := g.marriageRow(ctx, rnd, job, rec, fam, depth); err != nil {
			return err
		}
	}

	// Generations counts the start person, so recursion stops one short.
	if depth+1 >= job.Generations {
		return nil
	}

	seq := 0
	for _, famXref := range families {
		fam, err := g.record(ctx, job.TreeID, famXref)
		if err != nil {
			return err
		}
		if fam == nil {
			continue
		}
		for _, childXref := range fam.ChildXrefs() {
			child, err := g.record(ctx, job.TreeID, childXref)
			if err != nil {
				return err
			}
			if child == nil {
				continue
			}
			seq++
			if err := g.walk(ctx, rnd, job, child, number+"."+strconv.Itoa(seq), depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *DescendancyReport) personRow(rnd report.Renderer, rec *gedcom.Record, number string, depth int) {
	g.indent(rnd, depth)

	num := rnd.NewText(styleLabel, "")
	num.AppendText(number + " ")
	rnd.AddElement(num)

	name := rnd.NewText(styleBody, "")
	name.AppendText(personLine(rec))
	rnd.AddElement(name)
	lineBreak(rnd)
}

func (g *DescendancyReport) marriageRow(ctx context.Context, rnd report.Renderer, job *Job, rec *gedcom.Record, fam *gedcom.Record, depth int) error {
	spouseXref := fam.Husband()
	if spouseXref == rec.Xref {
		spouseXref = fam.Wife()
	}
	spouse, err := g.record(ctx, job.TreeID, spouseXref)
	if err != nil {
		return err
	}

	line := ""
	if spouse != nil {
		line = "m. " + personLine(spouse)
	}
	if when := dateAndPlace(fam.MarriageDate(), fam.MarriagePlace()); when != "" {
		if line == "" {
			line = "m. " + when
		} else {
			line += ", " + when
		}
	}
	if line == "" {
		return nil
	}

	g.indent(rnd, depth)
	txt := rnd.NewText(styleSmall, "")
	txt.AppendText("   " + line)
	rnd.AddElement(txt)
	lineBreak(rnd)
	return nil
}

// indent pushes the cursor right by one step per generation. Depth zero
// writes nothing; a zero width cell would span the whole line.
func (g *DescendancyReport) indent(rnd report.Renderer, depth int) {
	if depth == 0 {
		return
	}
	pad := rnd.NewCell(report.CellOpts{Width: float64(depth) * indentStep, Style: styleBody})
	rnd.AddElement(pad)
}
