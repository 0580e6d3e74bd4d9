package gedcom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirono/webtrees/pkg/errors"
)

func buildIndividual(xref, name, sex string) *Record {
	rec := NewRecord(xref, RecordIndividual)
	rec.AddChild("NAME", name)
	if sex != "" {
		rec.AddChild("SEX", sex)
	}
	return rec
}

func TestMergeRecords_UnionsStructures(t *testing.T) {
	target := buildIndividual("I1", "John /Smith/", "M")
	other := buildIndividual("I9", "John /Smith/", "M")
	other.AddChild("BIRT", "").AddChild("DATE", "2 JAN 1900")
	other.AddChild("NAME", "Jack /Smith/")

	merged, conflicts, err := MergeRecords(target, other)
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	assert.Equal(t, "I1", merged.Xref, "merge keeps the target xref")
	assert.Len(t, merged.All("NAME"), 2, "alternative names are kept side by side")
	assert.Len(t, merged.All("SEX"), 1, "identical SEX is not duplicated")
	assert.Equal(t, "2 JAN 1900", merged.ValueOf("BIRT", "DATE"))
}

func TestMergeRecords_ReportsSingletonConflicts(t *testing.T) {
	target := buildIndividual("I1", "Alex /Doe/", "M")
	other := buildIndividual("I2", "Alex /Doe/", "F")

	merged, conflicts, err := MergeRecords(target, other)
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	assert.Equal(t, Conflict{Tag: "SEX", Ours: "M", Theirs: "F"}, conflicts[0])
	assert.Equal(t, "M", merged.ValueOf("SEX"), "the target value wins")
	assert.Len(t, merged.All("SEX"), 1)
}

func TestMergeRecords_FamilySpouseConflicts(t *testing.T) {
	target := NewRecord("F1", RecordFamily)
	target.AddChild("HUSB", "@I1@")
	target.AddChild("CHIL", "@I3@")

	other := NewRecord("F2", RecordFamily)
	other.AddChild("HUSB", "@I7@")
	other.AddChild("WIFE", "@I2@")
	other.AddChild("CHIL", "@I3@")
	other.AddChild("CHIL", "@I4@")

	merged, conflicts, err := MergeRecords(target, other)
	require.NoError(t, err)

	require.Len(t, conflicts, 1)
	assert.Equal(t, "HUSB", conflicts[0].Tag)
	assert.Equal(t, "I1", merged.Husband())
	assert.Equal(t, "I2", merged.Wife(), "missing singleton is adopted from the other record")
	assert.Equal(t, []string{"I3", "I4"}, merged.ChildXrefs())
}

func TestMergeRecords_IdenticalSubtreesNotDuplicated(t *testing.T) {
	target := NewRecord("I1", RecordIndividual)
	target.AddChild("BIRT", "").AddChild("DATE", "1900")
	other := NewRecord("I2", RecordIndividual)
	other.AddChild("BIRT", "").AddChild("DATE", "1900")

	merged, _, err := MergeRecords(target, other)
	require.NoError(t, err)
	assert.Len(t, merged.All("BIRT"), 1)

	// A BIRT with a different date is a distinct alternative fact.
	variant := NewRecord("I3", RecordIndividual)
	variant.AddChild("BIRT", "").AddChild("DATE", "1901")
	merged, _, err = MergeRecords(merged, variant)
	require.NoError(t, err)
	assert.Len(t, merged.All("BIRT"), 2)
}

func TestMergeRecords_InputsUntouched(t *testing.T) {
	target := buildIndividual("I1", "A /B/", "M")
	other := buildIndividual("I2", "C /D/", "F")

	_, _, err := MergeRecords(target, other)
	require.NoError(t, err)

	assert.Len(t, target.Children, 2)
	assert.Len(t, other.Children, 2)
	assert.Equal(t, "A /B/", target.ValueOf("NAME"))
}

func TestMergeRecords_TypeMismatch(t *testing.T) {
	_, _, err := MergeRecords(NewRecord("I1", RecordIndividual), NewRecord("F1", RecordFamily))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeRecordTypeInvalid))
}

func TestMergeRecords_NilInput(t *testing.T) {
	_, _, err := MergeRecords(nil, NewRecord("I1", RecordIndividual))
	assert.Error(t, err)
}

func TestBuildRemapping(t *testing.T) {
	existing := map[string]bool{"I1": true, "F1": true}
	taken := func(x string) bool { return existing[x] }

	recs := []*Record{
		NewRecord("I1", RecordIndividual),
		NewRecord("I2", RecordIndividual),
		NewRecord("F1", RecordFamily),
	}

	mapping := BuildRemapping(recs, taken)

	// I1 collides; I2 is free in the store but used by the incoming file, so
	// the replacement skips to I3.  F1 gets the next free F number.
	assert.Equal(t, map[string]string{"I1": "I3", "F1": "F2"}, mapping)
}

func TestBuildRemapping_NoCollisions(t *testing.T) {
	recs := []*Record{NewRecord("I1", RecordIndividual)}
	mapping := BuildRemapping(recs, func(string) bool { return false })
	assert.Empty(t, mapping)
}

func TestRemapXrefs(t *testing.T) {
	indi := NewRecord("I1", RecordIndividual)
	indi.AddChild("FAMS", "@F1@")
	note := indi.AddChild("NOTE", "plain text, not a pointer")
	note.AddChild("SOUR", "@S1@")

	fam := NewRecord("F1", RecordFamily)
	fam.AddChild("HUSB", "@I1@")
	fam.AddChild("WIFE", "@I2@")

	mapping := map[string]string{"I1": "I9", "F1": "F9"}
	RemapXrefs([]*Record{indi, fam}, mapping)

	assert.Equal(t, "I9", indi.Xref)
	assert.Equal(t, "@F9@", indi.First("FAMS").Value)
	assert.Equal(t, "plain text, not a pointer", indi.First("NOTE").Value)
	assert.Equal(t, "@S1@", indi.Path("NOTE", "SOUR").Value, "unmapped pointers stay put")

	assert.Equal(t, "F9", fam.Xref)
	assert.Equal(t, "I9", fam.Husband())
	assert.Equal(t, "I2", fam.Wife(), "xrefs outside the mapping are untouched")
}

func TestRemapXrefs_EmptyMapping(t *testing.T) {
	indi := NewRecord("I1", RecordIndividual)
	indi.AddChild("FAMS", "@F1@")
	RemapXrefs([]*Record{indi}, nil)
	assert.Equal(t, "I1", indi.Xref)
	assert.Equal(t, "@F1@", indi.First("FAMS").Value)
}
