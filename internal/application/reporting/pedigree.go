package reporting

import (
	"context"
	"strconv"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/report"
)

// PedigreeReport lists a person's ancestors generation by generation under
// their Sosa-Stradonitz numbers: the start person is 1, a person number n
// has father 2n and mother 2n+1, so a number alone places an ancestor in
// the tree. Missing ancestors leave their numbers unused.
type PedigreeReport struct {
	base
}

func NewPedigreeReport(loader Loader) *PedigreeReport {
	return &PedigreeReport{base{loader: loader}}
}

// slot pairs an ancestor with their Sosa number during the walk.
type slot struct {
	num int
	rec *gedcom.Record
}

func (g *PedigreeReport) Build(ctx context.Context, doc *report.Document, rnd report.Renderer, job *Job) error {
	start, err := g.root(ctx, job.TreeID, job.Xref)
	if err != nil {
		return err
	}

	doc.SetTitle("Pedigree Report")
	doc.AddDescription("Ancestors of " + personLine(start))

	addPageHeader(rnd, doc.Geometry(), job.TreeName)
	addTitle(rnd, "Pedigree Report")
	addSubtitle(rnd, "Ancestors of "+personLine(start))

	current := []slot{{num: 1, rec: start}}
	for gen := 1; gen <= job.Generations && len(current) > 0; gen++ {
		addSection(rnd, "Generation "+strconv.Itoa(gen))

		var next []slot
		for _, sl := range current {
			g.ancestorRows(rnd, sl)

			if gen == job.Generations {
				continue
			}
			father, mother, err := g.parents(ctx, job.TreeID, sl.rec)
			if err != nil {
				return err
			}
			if father != nil {
				next = append(next, slot{num: 2 * sl.num, rec: father})
			}
			if mother != nil {
				next = append(next, slot{num: 2*sl.num + 1, rec: mother})
			}
		}
		current = next
	}
	return nil
}

// ancestorRows writes the numbered name row and, below it, small rows for
// the birth and death events that are on record.
func (g *PedigreeReport) ancestorRows(rnd report.Renderer, sl slot) {
	num := rnd.NewCell(report.CellOpts{Width: numColWidth, Align: report.AlignRight, Style: styleLabel})
	num.AppendText(strconv.Itoa(sl.num) + ".")
	rnd.AddElement(num)

	name := rnd.NewText(styleBody, "")
	name.AppendText(" " + personLine(sl.rec))
	rnd.AddElement(name)
	lineBreak(rnd)

	g.eventRow(rnd, "b. ", dateAndPlace(sl.rec.BirthDate(), sl.rec.BirthPlace()))
	g.eventRow(rnd, "d. ", dateAndPlace(sl.rec.DeathDate(), sl.rec.DeathPlace()))
}

func (g *PedigreeReport) eventRow(rnd report.Renderer, prefix, event string) {
	if event == "" {
		return
	}
	pad := rnd.NewCell(report.CellOpts{Width: numColWidth, Style: styleSmall})
	rnd.AddElement(pad)

	txt := rnd.NewText(styleSmall, "")
	txt.AppendText(" " + prefix + event)
	rnd.AddElement(txt)
	lineBreak(rnd)
}
