package family

import (
	"sort"

	"github.com/mirono/webtrees/internal/domain/gedcom"
)

// Index answers family-link questions across one tree. Build it once from
// the tree's records; lookups are map reads.
type Index struct {
	units    []*Unit
	byXref   map[string]*Unit
	asChild  map[string][]*Unit
	asSpouse map[string][]*Unit
}

// NewIndex builds the index from parsed records. Non-family records and
// malformed family records are skipped.
func NewIndex(records []*gedcom.Record) *Index {
	ix := &Index{
		byXref:   make(map[string]*Unit),
		asChild:  make(map[string][]*Unit),
		asSpouse: make(map[string][]*Unit),
	}
	for _, rec := range records {
		if rec.Type != gedcom.RecordFamily {
			continue
		}
		u, err := UnitFromRecord(rec)
		if err != nil {
			continue
		}
		ix.add(u)
	}
	return ix
}

func (ix *Index) add(u *Unit) {
	ix.units = append(ix.units, u)
	ix.byXref[u.Xref] = u
	for _, child := range u.ChildXrefs {
		ix.asChild[child] = append(ix.asChild[child], u)
	}
	if u.HusbandXref != "" {
		ix.asSpouse[u.HusbandXref] = append(ix.asSpouse[u.HusbandXref], u)
	}
	if u.WifeXref != "" {
		ix.asSpouse[u.WifeXref] = append(ix.asSpouse[u.WifeXref], u)
	}
}

// Unit returns the family with the given xref, or nil.
func (ix *Index) Unit(xref string) *Unit {
	return ix.byXref[xref]
}

// Units returns every family, in input order.
func (ix *Index) Units() []*Unit {
	return ix.units
}

// Len returns the number of families.
func (ix *Index) Len() int {
	return len(ix.units)
}

// Parents returns the father and mother xrefs of an individual through the
// first family it is a child of. Either may be empty.
func (ix *Index) Parents(childXref string) (father, mother string) {
	units := ix.asChild[childXref]
	if len(units) == 0 {
		return "", ""
	}
	return units[0].HusbandXref, units[0].WifeXref
}

// Children returns the children of an individual across every family it is
// a spouse in, deduplicated, in family order.
func (ix *Index) Children(parentXref string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range ix.asSpouse[parentXref] {
		for _, child := range u.ChildXrefs {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
		}
	}
	return out
}

// Spouses returns the partners of an individual across its families.
func (ix *Index) Spouses(xref string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, u := range ix.asSpouse[xref] {
		partner := u.HusbandXref
		if partner == xref {
			partner = u.WifeXref
		}
		if partner == "" || partner == xref || seen[partner] {
			continue
		}
		seen[partner] = true
		out = append(out, partner)
	}
	return out
}

// FamiliesOfSpouse returns the units an individual is a partner in.
func (ix *Index) FamiliesOfSpouse(xref string) []*Unit {
	return ix.asSpouse[xref]
}

// Links flattens every unit's edges.
func (ix *Index) Links() []Link {
	var links []Link
	for _, u := range ix.units {
		links = append(links, u.Links()...)
	}
	return links
}

// Projection is the graph view of one tree: its individuals plus the edges
// the family units define. Edges naming an xref with no individual record
// (dangling pointers are routine in real files) are dropped so the graph
// never holds half an edge.
type Projection struct {
	Members []Member `json:"members"`
	Links   []Link   `json:"links"`
}

// BuildProjection assembles the projection from one tree's parsed records.
// Members come out sorted by xref so rebuilds are deterministic.
func BuildProjection(records []*gedcom.Record) *Projection {
	known := make(map[string]bool)
	var members []Member
	for _, rec := range records {
		if rec.Type != gedcom.RecordIndividual {
			continue
		}
		m, err := MemberFromRecord(rec)
		if err != nil || m.Xref == "" || known[m.Xref] {
			continue
		}
		known[m.Xref] = true
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i].Xref < members[j].Xref })

	var links []Link
	for _, link := range NewIndex(records).Links() {
		if !known[link.FromXref] || !known[link.ToXref] {
			continue
		}
		links = append(links, link)
	}
	return &Projection{Members: members, Links: links}
}
