// Package family resolves the links GEDCOM spreads across FAM and INDI
// records into usable shapes: one Unit per family record, a tree-wide
// Index for parent/child/spouse lookups, and the graph Projection the
// kinship store is rebuilt from.
//
// FAM records are taken as the authority for who belongs to a family;
// the FAMC/FAMS back-references on individuals are not consulted.
package family

import (
	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/pkg/errors"
)

// LinkKind names one kinship edge. Parent links run parent to child.
type LinkKind string

const (
	KindFather LinkKind = "FATHER_OF"
	KindMother LinkKind = "MOTHER_OF"
	KindSpouse LinkKind = "SPOUSE_OF"
)

// Link is one directed kinship edge between two individuals of a tree.
type Link struct {
	FromXref string   `json:"from_xref"`
	ToXref   string   `json:"to_xref"`
	Kind     LinkKind `json:"kind"`
}

// Unit is one FAM record resolved into its members. The HUSB slot is the
// father of the children, the WIFE slot the mother; either may be empty.
type Unit struct {
	Xref          string      `json:"xref"`
	HusbandXref   string      `json:"husband_xref,omitempty"`
	WifeXref      string      `json:"wife_xref,omitempty"`
	ChildXrefs    []string    `json:"child_xrefs,omitempty"`
	MarriageDate  gedcom.Date `json:"marriage_date,omitempty"`
	MarriagePlace string      `json:"marriage_place,omitempty"`
}

// UnitFromRecord resolves one parsed FAM record. Duplicate CHIL pointers,
// which show up in hand-edited files, are dropped.
func UnitFromRecord(rec *gedcom.Record) (*Unit, error) {
	if rec.Type != gedcom.RecordFamily {
		return nil, errors.Newf(errors.ErrCodeValidation, "record %s is not a family", rec.Xref)
	}
	u := &Unit{
		Xref:          rec.Xref,
		HusbandXref:   rec.Husband(),
		WifeXref:      rec.Wife(),
		MarriageDate:  rec.MarriageDate(),
		MarriagePlace: rec.MarriagePlace(),
	}
	seen := make(map[string]bool)
	for _, child := range rec.ChildXrefs() {
		if child == "" || seen[child] {
			continue
		}
		seen[child] = true
		u.ChildXrefs = append(u.ChildXrefs, child)
	}
	return u, nil
}

// Links returns the edges this unit contributes: a parent link per child
// per present parent, and one spouse link when both partners are present.
func (u *Unit) Links() []Link {
	var links []Link
	for _, child := range u.ChildXrefs {
		if u.HusbandXref != "" {
			links = append(links, Link{FromXref: u.HusbandXref, ToXref: child, Kind: KindFather})
		}
		if u.WifeXref != "" {
			links = append(links, Link{FromXref: u.WifeXref, ToXref: child, Kind: KindMother})
		}
	}
	if u.HusbandXref != "" && u.WifeXref != "" {
		links = append(links, Link{FromXref: u.HusbandXref, ToXref: u.WifeXref, Kind: KindSpouse})
	}
	return links
}

// Member is the individual shape the kinship graph stores.
type Member struct {
	Xref      string `json:"xref"`
	Name      string `json:"name"`
	Sex       string `json:"sex"`
	BirthYear int    `json:"birth_year"`
}

// MemberFromRecord projects one parsed INDI record.
func MemberFromRecord(rec *gedcom.Record) (Member, error) {
	if rec.Type != gedcom.RecordIndividual {
		return Member{}, errors.Newf(errors.ErrCodeValidation, "record %s is not an individual", rec.Xref)
	}
	return Member{
		Xref:      rec.Xref,
		Name:      rec.FullName(),
		Sex:       rec.Sex(),
		BirthYear: rec.BirthDate().Year(),
	}, nil
}
