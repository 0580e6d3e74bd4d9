// Package record models stored genealogy records: one row per GEDCOM
// record holding the canonical text plus the columns extracted from it for
// listing, filtering and search indexing.
package record

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/pkg/types/common"
)

// Record is one stored genealogy record. The GEDCOM text is the source of
// truth; the extracted fields are derived on every write and populated per
// record type (names and dates for individuals, spouse links for families,
// title for sources, the object-storage key for media).
type Record struct {
	ID        int64             `json:"id"`
	TreeID    int64             `json:"tree_id"`
	Xref      string            `json:"xref"`
	Type      gedcom.RecordType `json:"type"`
	Gedcom    string            `json:"gedcom"`
	Name      string            `json:"name,omitempty"`
	Surname   string            `json:"surname,omitempty"`
	Sex       string            `json:"sex,omitempty"`
	BirthDate string            `json:"birth_date,omitempty"`
	BirthSort int               `json:"-"`
	DeathDate string            `json:"death_date,omitempty"`
	DeathSort int               `json:"-"`
	Husband   string            `json:"husband,omitempty"`
	Wife      string            `json:"wife,omitempty"`
	ObjectKey string            `json:"object_key,omitempty"`
	UpdatedBy uuid.UUID         `json:"updated_by,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// FromGedcom builds a storable row from a parsed record, serializing the
// tree back to canonical text and extracting the type-specific columns.
func FromGedcom(treeID int64, rec *gedcom.Record) (*Record, error) {
	var b strings.Builder
	w := gedcom.NewWriter(&b)
	if err := w.WriteRecord(rec); err != nil {
		return nil, err
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}

	row := &Record{
		TreeID: treeID,
		Xref:   rec.Xref,
		Type:   rec.Type,
		Gedcom: b.String(),
	}
	row.extract(rec)
	return row, nil
}

func (r *Record) extract(rec *gedcom.Record) {
	switch rec.Type {
	case gedcom.RecordIndividual:
		r.Name = rec.FullName()
		_, r.Surname = rec.Name()
		r.Sex = rec.Sex()
		if d := rec.BirthDate(); !d.IsZero() {
			r.BirthDate = d.String()
			r.BirthSort = d.SortKey()
		}
		if d := rec.DeathDate(); !d.IsZero() {
			r.DeathDate = d.String()
			r.DeathSort = d.SortKey()
		}
	case gedcom.RecordFamily:
		r.Husband = rec.Husband()
		r.Wife = rec.Wife()
	case gedcom.RecordSource:
		r.Name = rec.SourceTitle()
	case gedcom.RecordMedia:
		r.Name = rec.MediaTitle()
		r.ObjectKey = rec.MediaFile()
	case gedcom.RecordNote:
		r.Name = firstLine(rec.Value)
	}
}

// Parse returns the GEDCOM record tree stored in the row.
func (r *Record) Parse() (*gedcom.Record, error) {
	recs, err := gedcom.ParseAll(strings.NewReader(r.Gedcom))
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Xref == r.Xref {
			return rec, nil
		}
	}
	if len(recs) > 0 {
		return recs[0], nil
	}
	return gedcom.NewRecord(r.Xref, r.Type), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	const max = 120
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// ListFilter narrows and pages a record listing within one tree.
type ListFilter struct {
	TreeID int64
	Type   gedcom.RecordType
	// Name filters on the extracted name column, case-insensitive substring.
	Name string
	Page common.Pagination
}

// Change is one audit entry for a record write. Old is empty on create,
// New is empty on delete.
type Change struct {
	ID        int64     `json:"id"`
	TreeID    int64     `json:"tree_id"`
	Xref      string    `json:"xref"`
	OldGedcom string    `json:"old_gedcom,omitempty"`
	NewGedcom string    `json:"new_gedcom,omitempty"`
	Author    uuid.UUID `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}
