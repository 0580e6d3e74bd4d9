// Package gedcom implements the GEDCOM 5.5.1 record model, codec, and merge
// logic that the rest of the system stores and exchanges genealogy data in.
// A parsed file is a sequence of records; each record is a tree of nodes
// carrying tag, value, and nested sub-structures.  Infrastructure concerns
// (persistence, search indexing) live in separate layers; everything about
// the format itself lives here.
package gedcom

import (
	"regexp"
	"strings"
)

// ─────────────────────────────────────────────────────────────────────────────
// Record types
// ─────────────────────────────────────────────────────────────────────────────

// RecordType is the level-0 tag of a GEDCOM record.
type RecordType string

const (
	RecordIndividual RecordType = "INDI"
	RecordFamily     RecordType = "FAM"
	RecordSource     RecordType = "SOUR"
	RecordMedia      RecordType = "OBJE"
	RecordRepository RecordType = "REPO"
	RecordNote       RecordType = "NOTE"
	RecordSubmitter  RecordType = "SUBM"
	RecordHeader     RecordType = "HEAD"
	RecordTrailer    RecordType = "TRLR"
)

// knownRecordTypes is the set of record types the system stores as first-class
// rows.  Records of other types survive parse/write round-trips untouched.
var knownRecordTypes = map[RecordType]bool{
	RecordIndividual: true,
	RecordFamily:     true,
	RecordSource:     true,
	RecordMedia:      true,
	RecordRepository: true,
	RecordNote:       true,
	RecordSubmitter:  true,
	RecordHeader:     true,
	RecordTrailer:    true,
}

// IsKnown reports whether t is one of the record types the system models.
func (t RecordType) IsKnown() bool {
	return knownRecordTypes[t]
}

// String returns the tag form of the record type.
func (t RecordType) String() string {
	return string(t)
}

// XrefPrefix returns the conventional xref letter for generated
// cross-references of this type ("I42", "F3"); types without a convention
// get "X".
func (t RecordType) XrefPrefix() string {
	switch t {
	case RecordIndividual:
		return "I"
	case RecordFamily:
		return "F"
	case RecordSource:
		return "S"
	case RecordMedia:
		return "M"
	case RecordRepository:
		return "R"
	case RecordNote:
		return "N"
	case RecordSubmitter:
		return "U"
	default:
		return "X"
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Xref helpers
// ─────────────────────────────────────────────────────────────────────────────

// reXrefPointer matches a cross-reference pointer value such as "@I123@".
// Calendar escapes like "@#DJULIAN@" start with "#" and are not pointers.
var reXrefPointer = regexp.MustCompile(`^@([A-Za-z0-9_][^@]*)@$`)

// IsPointer reports whether value is an xref pointer (e.g. "@I1@").
func IsPointer(value string) bool {
	return reXrefPointer.MatchString(value)
}

// PointerTarget returns the xref inside a pointer value, or "" when value is
// not a pointer.  "@I1@" yields "I1".
func PointerTarget(value string) string {
	m := reXrefPointer.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	return m[1]
}

// ─────────────────────────────────────────────────────────────────────────────
// Node
// ─────────────────────────────────────────────────────────────────────────────

// Node is one GEDCOM line below record level together with its sub-lines.
// The level number is implicit in the nesting depth.  CONT/CONC continuation
// lines are folded into Value at parse time, so Value may contain newlines;
// the writer re-splits them on output.
type Node struct {
	Tag      string  `json:"tag"`
	Value    string  `json:"value,omitempty"`
	Children []*Node `json:"children,omitempty"`
}

// First returns the first child with the given tag, or nil.
func (n *Node) First(tag string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// All returns every child with the given tag, in document order.
func (n *Node) All(tag string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Path walks nested children by tag and returns the node at the end of the
// path, or nil when any step is missing.
func (n *Node) Path(tags ...string) *Node {
	cur := n
	for _, tag := range tags {
		cur = cur.First(tag)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// ValueOf returns the value of the node at the given path, or "".
func (n *Node) ValueOf(tags ...string) string {
	if target := n.Path(tags...); target != nil {
		return target.Value
	}
	return ""
}

// AddChild appends a child node and returns it, for fluent tree building.
func (n *Node) AddChild(tag, value string) *Node {
	c := &Node{Tag: tag, Value: value}
	n.Children = append(n.Children, c)
	return c
}

// Clone returns a deep copy of the node subtree.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{Tag: n.Tag, Value: n.Value}
	if len(n.Children) > 0 {
		out.Children = make([]*Node, len(n.Children))
		for i, c := range n.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Record
// ─────────────────────────────────────────────────────────────────────────────

// Record is a level-0 GEDCOM record: xref, type, and the subtree below it.
// HEAD and TRLR records have no xref.  A record-level value is rare but legal
// (e.g. "0 @N1@ NOTE some text").
type Record struct {
	Xref     string     `json:"xref,omitempty"`
	Type     RecordType `json:"type"`
	Value    string     `json:"value,omitempty"`
	Children []*Node    `json:"children,omitempty"`
}

// NewRecord builds an empty record of the given type.
func NewRecord(xref string, typ RecordType) *Record {
	return &Record{Xref: xref, Type: typ}
}

// First returns the first level-1 node with the given tag, or nil.
func (r *Record) First(tag string) *Node {
	if r == nil {
		return nil
	}
	for _, c := range r.Children {
		if c.Tag == tag {
			return c
		}
	}
	return nil
}

// All returns every level-1 node with the given tag, in document order.
func (r *Record) All(tag string) []*Node {
	if r == nil {
		return nil
	}
	var out []*Node
	for _, c := range r.Children {
		if c.Tag == tag {
			out = append(out, c)
		}
	}
	return out
}

// Path walks nested nodes by tag starting at record level.
func (r *Record) Path(tags ...string) *Node {
	if r == nil || len(tags) == 0 {
		return nil
	}
	cur := r.First(tags[0])
	if cur == nil {
		return nil
	}
	return cur.Path(tags[1:]...)
}

// ValueOf returns the value of the node at the given path, or "".
func (r *Record) ValueOf(tags ...string) string {
	if target := r.Path(tags...); target != nil {
		return target.Value
	}
	return ""
}

// AddChild appends a level-1 node and returns it.
func (r *Record) AddChild(tag, value string) *Node {
	c := &Node{Tag: tag, Value: value}
	r.Children = append(r.Children, c)
	return c
}

// Clone returns a deep copy of the record.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{Xref: r.Xref, Type: r.Type, Value: r.Value}
	if len(r.Children) > 0 {
		out.Children = make([]*Node, len(r.Children))
		for i, c := range r.Children {
			out.Children[i] = c.Clone()
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// Fact extraction: individuals
// ─────────────────────────────────────────────────────────────────────────────

// Name splits the first NAME structure into given name and surname.  In
// GEDCOM the surname is delimited by slashes: "John /Smith/" or
// "Maria /de la Cruz/ y Pérez".  Text outside the slashes joins the given
// name (before) and suffix (after); the suffix is appended to the given part
// the way the original data entry wrote it.
func (r *Record) Name() (given, surname string) {
	raw := r.ValueOf("NAME")
	if raw == "" {
		return "", ""
	}
	start := strings.Index(raw, "/")
	if start < 0 {
		return strings.TrimSpace(raw), ""
	}
	end := strings.Index(raw[start+1:], "/")
	if end < 0 {
		return strings.TrimSpace(raw), ""
	}
	end += start + 1
	surname = strings.TrimSpace(raw[start+1 : end])
	given = strings.TrimSpace(raw[:start])
	if suffix := strings.TrimSpace(raw[end+1:]); suffix != "" {
		if given == "" {
			given = suffix
		} else {
			given = given + " " + suffix
		}
	}
	return given, surname
}

// FullName returns "Given Surname" with slashes removed, or "" for records
// without a NAME structure.
func (r *Record) FullName() string {
	given, surname := r.Name()
	switch {
	case given == "" && surname == "":
		return ""
	case given == "":
		return surname
	case surname == "":
		return given
	default:
		return given + " " + surname
	}
}

// Sex returns "M", "F", or "U" for an individual record.
func (r *Record) Sex() string {
	switch v := r.ValueOf("SEX"); v {
	case "M", "F":
		return v
	default:
		return "U"
	}
}

// BirthDate returns the parsed date of the first BIRT structure.
func (r *Record) BirthDate() Date {
	return ParseDate(r.ValueOf("BIRT", "DATE"))
}

// BirthPlace returns the place of the first BIRT structure.
func (r *Record) BirthPlace() string {
	return r.ValueOf("BIRT", "PLAC")
}

// DeathDate returns the parsed date of the first DEAT structure.
func (r *Record) DeathDate() Date {
	return ParseDate(r.ValueOf("DEAT", "DATE"))
}

// DeathPlace returns the place of the first DEAT structure.
func (r *Record) DeathPlace() string {
	return r.ValueOf("DEAT", "PLAC")
}

// FamiliesAsSpouse returns the xrefs of FAMS links (families where this
// individual is a spouse).
func (r *Record) FamiliesAsSpouse() []string {
	return pointerValues(r.All("FAMS"))
}

// FamiliesAsChild returns the xrefs of FAMC links (families where this
// individual is a child).
func (r *Record) FamiliesAsChild() []string {
	return pointerValues(r.All("FAMC"))
}

// ─────────────────────────────────────────────────────────────────────────────
// Fact extraction: families, sources, media
// ─────────────────────────────────────────────────────────────────────────────

// Husband returns the xref of the HUSB link of a family record, or "".
func (r *Record) Husband() string {
	return PointerTarget(r.ValueOf("HUSB"))
}

// Wife returns the xref of the WIFE link of a family record, or "".
func (r *Record) Wife() string {
	return PointerTarget(r.ValueOf("WIFE"))
}

// ChildXrefs returns the xrefs of CHIL links of a family record.
func (r *Record) ChildXrefs() []string {
	return pointerValues(r.All("CHIL"))
}

// MarriageDate returns the parsed date of the first MARR structure.
func (r *Record) MarriageDate() Date {
	return ParseDate(r.ValueOf("MARR", "DATE"))
}

// MarriagePlace returns the place of the first MARR structure.
func (r *Record) MarriagePlace() string {
	return r.ValueOf("MARR", "PLAC")
}

// SourceTitle returns the TITL value of a source record.
func (r *Record) SourceTitle() string {
	return r.ValueOf("TITL")
}

// MediaFile returns the FILE value of a media record: a filename or, once
// imported, the object-storage key.
func (r *Record) MediaFile() string {
	return r.ValueOf("FILE")
}

// MediaTitle returns the media title (FILE>TITL per 5.5.1, falling back to a
// record-level TITL that plenty of real files use).
func (r *Record) MediaTitle() string {
	if t := r.ValueOf("FILE", "TITL"); t != "" {
		return t
	}
	return r.ValueOf("TITL")
}

func pointerValues(nodes []*Node) []string {
	var out []string
	for _, n := range nodes {
		if target := PointerTarget(n.Value); target != "" {
			out = append(out, target)
		}
	}
	return out
}
