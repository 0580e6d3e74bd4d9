package gedcom

import (
	"fmt"
	"strings"

	"github.com/mirono/webtrees/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Record merge
// ─────────────────────────────────────────────────────────────────────────────

// Conflict records a single-valued fact that differs between two records
// being merged.  The merge keeps Ours; Theirs is reported for review.
type Conflict struct {
	Tag    string `json:"tag"`
	Ours   string `json:"ours"`
	Theirs string `json:"theirs"`
}

// singletonTags lists, per record type, the level-1 tags that can appear at
// most once.  Differing values on these become conflicts; everything else is
// a repeatable structure and merges as a union (GEDCOM allows alternative
// NAME, BIRT, and similar facts side by side).
var singletonTags = map[RecordType]map[string]bool{
	RecordIndividual: {"SEX": true},
	RecordFamily:     {"HUSB": true, "WIFE": true},
}

// MergeRecords combines other into target and returns the merged record
// together with the list of conflicting single-valued facts.  The result
// keeps target's xref and everything target already had; sub-structures of
// other that target lacks are appended.  Neither input is modified.
func MergeRecords(target, other *Record) (*Record, []Conflict, error) {
	if target == nil || other == nil {
		return nil, nil, errors.New(errors.ErrCodeBadRequest, "merge requires two records")
	}
	if target.Type != other.Type {
		return nil, nil, errors.New(errors.ErrCodeRecordTypeInvalid, "cannot merge records of different types").
			WithDetailf("%s vs %s", target.Type, other.Type)
	}

	merged := target.Clone()
	singles := singletonTags[target.Type]

	seen := make(map[string]bool, len(merged.Children))
	for _, c := range merged.Children {
		seen[nodeFingerprint(c)] = true
	}

	var conflicts []Conflict
	for _, c := range other.Children {
		if singles[c.Tag] {
			if ours := merged.First(c.Tag); ours != nil {
				if ours.Value != c.Value {
					conflicts = append(conflicts, Conflict{Tag: c.Tag, Ours: ours.Value, Theirs: c.Value})
				}
				continue
			}
		}
		if fp := nodeFingerprint(c); !seen[fp] {
			merged.Children = append(merged.Children, c.Clone())
			seen[fp] = true
		}
	}
	return merged, conflicts, nil
}

// nodeFingerprint serialises a subtree into a canonical comparison key.
func nodeFingerprint(n *Node) string {
	var b strings.Builder
	fingerprintInto(&b, n, 0)
	return b.String()
}

func fingerprintInto(b *strings.Builder, n *Node, depth int) {
	fmt.Fprintf(b, "%d %s %s\x00", depth, n.Tag, n.Value)
	for _, c := range n.Children {
		fingerprintInto(b, c, depth+1)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Xref remapping
// ─────────────────────────────────────────────────────────────────────────────

// BuildRemapping returns replacement xrefs for every record in recs whose
// xref collides per taken.  Replacements keep the alphabetic prefix and use
// the next free number ("I42" → "I127"), avoiding both existing xrefs and
// the incoming file's own.
func BuildRemapping(recs []*Record, taken func(string) bool) map[string]string {
	incoming := make(map[string]bool, len(recs))
	for _, r := range recs {
		if r.Xref != "" {
			incoming[r.Xref] = true
		}
	}

	mapping := make(map[string]string)
	assigned := make(map[string]bool)
	nextByPrefix := make(map[string]int)

	for _, r := range recs {
		if r.Xref == "" || !taken(r.Xref) {
			continue
		}
		prefix := xrefPrefix(r.Xref)
		n := nextByPrefix[prefix]
		for {
			n++
			candidate := fmt.Sprintf("%s%d", prefix, n)
			if !taken(candidate) && !incoming[candidate] && !assigned[candidate] {
				mapping[r.Xref] = candidate
				assigned[candidate] = true
				break
			}
		}
		nextByPrefix[prefix] = n
	}
	return mapping
}

// RemapXrefs rewrites record xrefs and every pointer value per mapping.
// Records are modified in place.
func RemapXrefs(recs []*Record, mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	for _, rec := range recs {
		if nx, ok := mapping[rec.Xref]; ok {
			rec.Xref = nx
		}
		for _, c := range rec.Children {
			remapNode(c, mapping)
		}
	}
}

func remapNode(n *Node, mapping map[string]string) {
	if t := PointerTarget(n.Value); t != "" {
		if nx, ok := mapping[t]; ok {
			n.Value = "@" + nx + "@"
		}
	}
	for _, c := range n.Children {
		remapNode(c, mapping)
	}
}

// xrefPrefix returns the leading letters of an xref ("I" for "I42"); xrefs
// with no alphabetic prefix get "X".
func xrefPrefix(xref string) string {
	i := 0
	for i < len(xref) && (xref[i] >= 'A' && xref[i] <= 'Z' || xref[i] >= 'a' && xref[i] <= 'z') {
		i++
	}
	if i == 0 {
		return "X"
	}
	return xref[:i]
}
