package reporting

import (
	"context"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/report"
)

// IndividualReport is a facts sheet for one person: vital events with their
// cited sources as footnotes, the parents, and one section per family the
// person founded, listing spouse, marriage and children.
type IndividualReport struct {
	base
}

func NewIndividualReport(loader Loader) *IndividualReport {
	return &IndividualReport{base{loader: loader}}
}

func (g *IndividualReport) Build(ctx context.Context, doc *report.Document, rnd report.Renderer, job *Job) error {
	indi, err := g.root(ctx, job.TreeID, job.Xref)
	if err != nil {
		return err
	}

	doc.SetTitle("Individual Report")
	doc.AddDescription(personLine(indi))

	addPageHeader(rnd, doc.Geometry(), job.TreeName)
	addTitle(rnd, "Individual Report")
	addSubtitle(rnd, personLine(indi))
	addGap(rnd, sectionGap)

	if err := g.factRow(ctx, rnd, job, indi, "NAME", "Name", indi.FullName()); err != nil {
		return err
	}
	if err := g.factRow(ctx, rnd, job, nil, "", "Sex", sexLabel(indi.Sex())); err != nil {
		return err
	}
	if err := g.factRow(ctx, rnd, job, indi, "BIRT", "Born", dateAndPlace(indi.BirthDate(), indi.BirthPlace())); err != nil {
		return err
	}
	if err := g.factRow(ctx, rnd, job, indi, "DEAT", "Died", dateAndPlace(indi.DeathDate(), indi.DeathPlace())); err != nil {
		return err
	}

	if err := g.parentsSection(ctx, rnd, job, indi); err != nil {
		return err
	}
	return g.familySections(ctx, rnd, job, indi)
}

func (g *IndividualReport) parentsSection(ctx context.Context, rnd report.Renderer, job *Job, indi *gedcom.Record) error {
	father, mother, err := g.parents(ctx, job.TreeID, indi)
	if err != nil {
		return err
	}
	if father == nil && mother == nil {
		return nil
	}
	addSection(rnd, "Parents")
	if err := g.factRow(ctx, rnd, job, nil, "", "Father", personLine(father)); err != nil {
		return err
	}
	return g.factRow(ctx, rnd, job, nil, "", "Mother", personLine(mother))
}

func (g *IndividualReport) familySections(ctx context.Context, rnd report.Renderer, job *Job, indi *gedcom.Record) error {
	for _, famXref := range indi.FamiliesAsSpouse() {
		fam, err := g.record(ctx, job.TreeID, famXref)
		if err != nil {
			return err
		}
		if fam == nil {
			continue
		}

		spouseXref := fam.Husband()
		if spouseXref == indi.Xref {
			spouseXref = fam.Wife()
		}
		spouse, err := g.record(ctx, job.TreeID, spouseXref)
		if err != nil {
			return err
		}

		heading := "Family"
		if spouse != nil {
			heading = "Family with " + spouse.FullName()
		}
		addSection(rnd, heading)

		if err := g.factRow(ctx, rnd, job, nil, "", "Spouse", personLine(spouse)); err != nil {
			return err
		}
		if err := g.factRow(ctx, rnd, job, fam, "MARR", "Married", dateAndPlace(fam.MarriageDate(), fam.MarriagePlace())); err != nil {
			return err
		}

		label := "Children"
		for _, childXref := range fam.ChildXrefs() {
			child, err := g.record(ctx, job.TreeID, childXref)
			if err != nil {
				return err
			}
			if child == nil {
				continue
			}
			if err := g.factRow(ctx, rnd, job, nil, "", label, personLine(child)); err != nil {
				return err
			}
			label = ""
		}
	}
	return nil
}
