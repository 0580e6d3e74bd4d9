package kinship

import (
	"context"
	"strings"

	neo4jrepo "github.com/mirono/webtrees/internal/infrastructure/database/neo4j/repositories"
	"github.com/mirono/webtrees/pkg/errors"
)

// Step is one hop of a relationship chain. Label names who Person is to the
// previous person on the path.
type Step struct {
	Person neo4jrepo.Person `json:"person"`
	Label  string           `json:"label"`
}

// Relationship is a kinship path resolved into prose-ready steps:
// "father's mother" style, read from From toward To.
type Relationship struct {
	From        neo4jrepo.Person `json:"from"`
	To          neo4jrepo.Person `json:"to"`
	Steps       []Step           `json:"steps"`
	Description string           `json:"description"`
	Hops        int              `json:"hops"`
}

// Path finds the closest relationship between two individuals of a tree.
// maxDepth bounds the traversal; zero means the store's ceiling.
func (s *Service) Path(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*Relationship, error) {
	if fromXref == "" || toXref == "" {
		return nil, errors.New(errors.ErrCodeValidation, "both individuals are required")
	}
	p, err := s.store.ShortestPath(ctx, treeID, fromXref, toXref, maxDepth)
	if err != nil {
		return nil, err
	}
	return describePath(p)
}

// Ancestors lists an individual's direct-line forebears, closest first.
func (s *Service) Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error) {
	if xref == "" {
		return nil, errors.New(errors.ErrCodeValidation, "individual is required")
	}
	return s.store.Ancestors(ctx, treeID, xref, generations)
}

// Descendants lists an individual's direct-line offspring, closest first.
func (s *Service) Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]neo4jrepo.Relative, error) {
	if xref == "" {
		return nil, errors.New(errors.ErrCodeValidation, "individual is required")
	}
	return s.store.Descendants(ctx, treeID, xref, generations)
}

// CommonAncestors lists ancestors two individuals share, nearest first.
func (s *Service) CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]neo4jrepo.Relative, error) {
	if xrefA == "" || xrefB == "" {
		return nil, errors.New(errors.ErrCodeValidation, "both individuals are required")
	}
	if xrefA == xrefB {
		return nil, errors.New(errors.ErrCodeValidation, "individuals are the same")
	}
	return s.store.CommonAncestors(ctx, treeID, xrefA, xrefB, limit)
}

// Counts reports the projection size for one tree.
func (s *Service) Counts(ctx context.Context, treeID int64) (*neo4jrepo.GraphCounts, error) {
	return s.store.Counts(ctx, treeID)
}

// describePath turns a stored path into labeled steps. Person i+1 connects
// to person i through step i.
func describePath(p *neo4jrepo.Path) (*Relationship, error) {
	if len(p.Persons) == 0 || len(p.Persons) != len(p.Steps)+1 {
		return nil, errors.New(errors.ErrCodeInternal, "kinship path shape mismatch")
	}

	rel := &Relationship{
		From: p.Persons[0],
		To:   p.Persons[len(p.Persons)-1],
		Hops: p.Length(),
	}
	labels := make([]string, 0, len(p.Steps))
	for i, step := range p.Steps {
		next := p.Persons[i+1]
		label := hopLabel(step, next)
		rel.Steps = append(rel.Steps, Step{Person: next, Label: label})
		labels = append(labels, label)
	}
	rel.Description = strings.Join(labels, "'s ")
	return rel, nil
}

// hopLabel names who next is to the previous person. Parent links are
// stored parent to child, so the step direction separates parent from
// child; sex picks the word.
func hopLabel(step neo4jrepo.PathStep, next neo4jrepo.Person) string {
	switch step.Type {
	case neo4jrepo.LinkFather, neo4jrepo.LinkMother:
		if step.FromXref == next.Xref {
			if step.Type == neo4jrepo.LinkFather {
				return "father"
			}
			return "mother"
		}
		switch next.Sex {
		case "M":
			return "son"
		case "F":
			return "daughter"
		}
		return "child"
	case neo4jrepo.LinkSpouse:
		switch next.Sex {
		case "M":
			return "husband"
		case "F":
			return "wife"
		}
		return "spouse"
	}
	return "relative"
}
