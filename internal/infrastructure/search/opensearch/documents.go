package opensearch

import (
	"fmt"
	"strings"
	"time"

	"github.com/mirono/webtrees/internal/domain/gedcom"
)

// Logical index names; the client prefixes them per deployment.
const (
	IndexIndividuals = "individuals"
	IndexSources     = "sources"
)

// IndividualDocument is the searchable projection of an INDI record.  Dates
// stay as display strings because GEDCOM dates are partial and ranged; the
// extracted years carry the range filters.
type IndividualDocument struct {
	TreeID     int64     `json:"tree_id"`
	Xref       string    `json:"xref"`
	Names      []string  `json:"names,omitempty"`
	Given      string    `json:"given,omitempty"`
	Surname    string    `json:"surname,omitempty"`
	Sex        string    `json:"sex,omitempty"`
	BirthDate  string    `json:"birth_date,omitempty"`
	BirthYear  int       `json:"birth_year,omitempty"`
	BirthPlace string    `json:"birth_place,omitempty"`
	DeathDate  string    `json:"death_date,omitempty"`
	DeathYear  int       `json:"death_year,omitempty"`
	DeathPlace string    `json:"death_place,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SourceDocument is the searchable projection of a SOUR record.
type SourceDocument struct {
	TreeID    int64     `json:"tree_id"`
	Xref      string    `json:"xref"`
	Title     string    `json:"title,omitempty"`
	Author    string    `json:"author,omitempty"`
	Text      string    `json:"text,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentID builds the index-wide unique id. Xrefs repeat across trees, so
// the tree id is part of the identity.
func DocumentID(treeID int64, xref string) string {
	return fmt.Sprintf("%d:%s", treeID, xref)
}

// NewIndividualDocument projects an INDI record for indexing.
func NewIndividualDocument(treeID int64, rec *gedcom.Record, updatedAt time.Time) IndividualDocument {
	given, surname := rec.Name()

	var names []string
	for _, n := range rec.All("NAME") {
		if v := strings.TrimSpace(strings.ReplaceAll(n.Value, "/", " ")); v != "" {
			names = append(names, strings.Join(strings.Fields(v), " "))
		}
	}

	birth := rec.BirthDate()
	death := rec.DeathDate()

	return IndividualDocument{
		TreeID:     treeID,
		Xref:       rec.Xref,
		Names:      names,
		Given:      given,
		Surname:    surname,
		Sex:        rec.Sex(),
		BirthDate:  birth.String(),
		BirthYear:  birth.Year(),
		BirthPlace: rec.BirthPlace(),
		DeathDate:  death.String(),
		DeathYear:  death.Year(),
		DeathPlace: rec.DeathPlace(),
		UpdatedAt:  updatedAt,
	}
}

// NewSourceDocument projects a SOUR record for indexing.
func NewSourceDocument(treeID int64, rec *gedcom.Record, updatedAt time.Time) SourceDocument {
	return SourceDocument{
		TreeID:    treeID,
		Xref:      rec.Xref,
		Title:     rec.SourceTitle(),
		Author:    rec.ValueOf("AUTH"),
		Text:      rec.ValueOf("TEXT"),
		UpdatedAt: updatedAt,
	}
}

// IndexForRecordType maps a record type onto its logical index, empty when
// the type is not indexed.
func IndexForRecordType(recordType gedcom.RecordType) string {
	switch recordType {
	case gedcom.RecordIndividual:
		return IndexIndividuals
	case gedcom.RecordSource:
		return IndexSources
	default:
		return ""
	}
}
