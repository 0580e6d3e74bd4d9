// Package repositories holds the Cypher-backed kinship graph store.  The
// graph is a projection of the record store: nodes and relationships are
// rebuilt from GEDCOM records, never edited directly, so every operation
// here is safe to re-run.
package repositories

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	driver "github.com/mirono/webtrees/internal/infrastructure/database/neo4j"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// Link relationship types stored in the graph. Parent links point from
// parent to child; spouse links are stored once and traversed undirected.
const (
	LinkFather = "FATHER_OF"
	LinkMother = "MOTHER_OF"
	LinkSpouse = "SPOUSE_OF"
)

// Person is the node projection of an individual.
type Person struct {
	Xref      string `json:"xref"`
	Name      string `json:"name"`
	Sex       string `json:"sex"`
	BirthYear int    `json:"birth_year"`
}

// Link is one relationship between two individuals of the same tree.
type Link struct {
	FromXref string
	ToXref   string
	Type     string
}

// PathStep is one hop of a kinship path, in stored direction: for parent
// links From is the parent, for spouse links the stored order.
type PathStep struct {
	FromXref string `json:"from_xref"`
	ToXref   string `json:"to_xref"`
	Type     string `json:"type"`
}

// Path is a kinship connection between two individuals.
type Path struct {
	Persons []Person   `json:"persons"`
	Steps   []PathStep `json:"steps"`
}

// Length returns the number of hops.
func (p *Path) Length() int { return len(p.Steps) }

// Relative is a person found by an ancestry walk, with the generation
// distance from the starting individual (1 = parent/child).
type Relative struct {
	Person     Person `json:"person"`
	Generation int    `json:"generation"`
}

// GraphCounts reports the projection size for one tree.
type GraphCounts struct {
	Persons int64 `json:"persons"`
	Links   int64 `json:"links"`
}

// maxPathDepth bounds variable-length traversals. Depth is spliced into the
// Cypher text (the pattern length cannot be a parameter), so it is clamped
// to an integer ceiling first.
const maxPathDepth = 25

// KinshipRepository is the graph store contract the kinship service uses.
type KinshipRepository interface {
	EnsureConstraints(ctx context.Context) error
	SyncTree(ctx context.Context, treeID int64, persons []Person, links []Link) error
	DeleteTree(ctx context.Context, treeID int64) (int64, error)
	UpsertIndividual(ctx context.Context, treeID int64, person Person) error
	RemoveIndividual(ctx context.Context, treeID int64, xref string) error
	LinkFamily(ctx context.Context, treeID int64, links []Link) error
	UnlinkFamily(ctx context.Context, treeID int64, links []Link) error
	ShortestPath(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*Path, error)
	Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]Relative, error)
	Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]Relative, error)
	CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]Relative, error)
	Counts(ctx context.Context, treeID int64) (*GraphCounts, error)
}

type kinshipRepo struct {
	driver driver.Querier
	log    logging.Logger
}

// NewKinshipRepository builds the Cypher-backed store.
func NewKinshipRepository(d driver.Querier, log logging.Logger) KinshipRepository {
	return &kinshipRepo{driver: d, log: log.Named("kinship_repo")}
}

// nodeKey is the unique node identity: xrefs repeat across trees.
func nodeKey(treeID int64, xref string) string {
	return fmt.Sprintf("%d:%s", treeID, xref)
}

// EnsureConstraints creates the uniqueness constraint and tree index the
// queries depend on. Safe to run at every startup.
func (r *kinshipRepo) EnsureConstraints(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT individual_key IF NOT EXISTS FOR (n:Individual) REQUIRE n.key IS UNIQUE",
		"CREATE INDEX individual_tree IF NOT EXISTS FOR (n:Individual) ON (n.tree_id)",
	}
	for _, stmt := range statements {
		if _, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
			result, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

// SyncTree replaces one tree's projection wholesale: delete, recreate nodes,
// then recreate links grouped by type (the relationship type cannot be a
// Cypher parameter).
func (r *kinshipRepo) SyncTree(ctx context.Context, treeID int64, persons []Person, links []Link) error {
	if _, err := r.DeleteTree(ctx, treeID); err != nil {
		return err
	}

	if len(persons) > 0 {
		rows := make([]map[string]interface{}, len(persons))
		for i, p := range persons {
			rows[i] = map[string]interface{}{
				"key":        nodeKey(treeID, p.Xref),
				"xref":       p.Xref,
				"name":       p.Name,
				"sex":        p.Sex,
				"birth_year": p.BirthYear,
			}
		}
		_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
			result, err := tx.Run(ctx, `
				UNWIND $rows AS row
				CREATE (n:Individual {
					key: row.key, tree_id: $tree_id, xref: row.xref,
					name: row.name, sex: row.sex, birth_year: row.birth_year
				})`,
				map[string]any{"rows": rows, "tree_id": treeID})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return err
		}
	}

	if err := r.createLinks(ctx, treeID, links, "CREATE"); err != nil {
		return err
	}

	r.log.Info("tree graph synced",
		logging.Int64("tree_id", treeID),
		logging.Int("persons", len(persons)),
		logging.Int("links", len(links)),
	)
	return nil
}

// DeleteTree removes the tree's nodes with their relationships.
func (r *kinshipRepo) DeleteTree(ctx context.Context, treeID int64) (int64, error) {
	res, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
		result, err := tx.Run(ctx,
			"MATCH (n:Individual {tree_id: $tree_id}) DETACH DELETE n RETURN count(n) AS deleted",
			map[string]any{"tree_id": treeID})
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, result, func(rec *neo4j.Record) (int64, error) {
			return asInt64(rec.Values[0]), nil
		})
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// UpsertIndividual creates or refreshes one node.
func (r *kinshipRepo) UpsertIndividual(ctx context.Context, treeID int64, person Person) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, `
			MERGE (n:Individual {key: $key})
			SET n.tree_id = $tree_id, n.xref = $xref,
			    n.name = $name, n.sex = $sex, n.birth_year = $birth_year`,
			map[string]any{
				"key":        nodeKey(treeID, person.Xref),
				"tree_id":    treeID,
				"xref":       person.Xref,
				"name":       person.Name,
				"sex":        person.Sex,
				"birth_year": person.BirthYear,
			})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

// RemoveIndividual deletes one node with its relationships.
func (r *kinshipRepo) RemoveIndividual(ctx context.Context, treeID int64, xref string) error {
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
		result, err := tx.Run(ctx,
			"MATCH (n:Individual {key: $key}) DETACH DELETE n",
			map[string]any{"key": nodeKey(treeID, xref)})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	return err
}

// LinkFamily merges the given links; existing identical links are kept once.
func (r *kinshipRepo) LinkFamily(ctx context.Context, treeID int64, links []Link) error {
	return r.createLinks(ctx, treeID, links, "MERGE")
}

// UnlinkFamily removes exactly the given links.
func (r *kinshipRepo) UnlinkFamily(ctx context.Context, treeID int64, links []Link) error {
	for _, linkType := range []string{LinkFather, LinkMother, LinkSpouse} {
		rows := linkRows(treeID, links, linkType)
		if len(rows) == 0 {
			continue
		}
		query := fmt.Sprintf(`
			UNWIND $rows AS row
			MATCH (a:Individual {key: row.from})-[rel:%s]->(b:Individual {key: row.to})
			DELETE rel`, linkType)
		if _, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
			result, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (r *kinshipRepo) createLinks(ctx context.Context, treeID int64, links []Link, verb string) error {
	for _, linkType := range []string{LinkFather, LinkMother, LinkSpouse} {
		rows := linkRows(treeID, links, linkType)
		if len(rows) == 0 {
			continue
		}
		query := fmt.Sprintf(`
			UNWIND $rows AS row
			MATCH (a:Individual {key: row.from})
			MATCH (b:Individual {key: row.to})
			%s (a)-[:%s]->(b)`, verb, linkType)
		if _, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (interface{}, error) {
			result, err := tx.Run(ctx, query, map[string]any{"rows": rows})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		}); err != nil {
			return err
		}
	}
	return nil
}

func linkRows(treeID int64, links []Link, linkType string) []map[string]interface{} {
	var rows []map[string]interface{}
	for _, l := range links {
		if l.Type != linkType {
			continue
		}
		rows = append(rows, map[string]interface{}{
			"from": nodeKey(treeID, l.FromXref),
			"to":   nodeKey(treeID, l.ToXref),
		})
	}
	return rows
}

// ShortestPath finds the closest kinship connection, traversing parent and
// spouse links in either direction.
func (r *kinshipRepo) ShortestPath(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*Path, error) {
	if fromXref == toXref {
		return nil, errors.New(errors.ErrCodeValidation, "path endpoints are the same individual")
	}
	if maxDepth <= 0 || maxDepth > maxPathDepth {
		maxDepth = maxPathDepth
	}

	query := fmt.Sprintf(`
		MATCH (a:Individual {key: $from}), (b:Individual {key: $to})
		MATCH p = shortestPath((a)-[:FATHER_OF|MOTHER_OF|SPOUSE_OF*..%d]-(b))
		RETURN [n IN nodes(p) | n{.xref, .name, .sex, .birth_year}] AS persons,
		       [r IN relationships(p) | {type: type(r), from: startNode(r).xref, to: endNode(r).xref}] AS steps`,
		maxDepth)

	res, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, map[string]any{
			"from": nodeKey(treeID, fromXref),
			"to":   nodeKey(treeID, toXref),
		})
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, result, mapPath)
	})
	if err != nil {
		if errors.IsCode(err, errors.ErrCodeNotFound) {
			return nil, errors.New(errors.ErrCodeKinshipNoPath, "no kinship path found").
				WithDetail(fmt.Sprintf("%s..%s", fromXref, toXref))
		}
		return nil, err
	}
	return res.(*Path), nil
}

// Ancestors walks parent links upward.
func (r *kinshipRepo) Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]Relative, error) {
	if generations <= 0 || generations > maxPathDepth {
		generations = maxPathDepth
	}
	query := fmt.Sprintf(`
		MATCH p = (a:Individual)-[:FATHER_OF|MOTHER_OF*1..%d]->(d:Individual {key: $key})
		RETURN a{.xref, .name, .sex, .birth_year} AS person, min(length(p)) AS generation
		ORDER BY generation, person.xref`, generations)
	return r.collectRelatives(ctx, query, map[string]any{"key": nodeKey(treeID, xref)})
}

// Descendants walks parent links downward.
func (r *kinshipRepo) Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]Relative, error) {
	if generations <= 0 || generations > maxPathDepth {
		generations = maxPathDepth
	}
	query := fmt.Sprintf(`
		MATCH p = (a:Individual {key: $key})-[:FATHER_OF|MOTHER_OF*1..%d]->(d:Individual)
		RETURN d{.xref, .name, .sex, .birth_year} AS person, min(length(p)) AS generation
		ORDER BY generation, person.xref`, generations)
	return r.collectRelatives(ctx, query, map[string]any{"key": nodeKey(treeID, xref)})
}

// CommonAncestors returns ancestors shared by both individuals, nearest
// first by combined generation distance.
func (r *kinshipRepo) CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]Relative, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(`
		MATCH pa = (anc:Individual)-[:FATHER_OF|MOTHER_OF*1..%d]->(a:Individual {key: $a})
		MATCH pb = (anc)-[:FATHER_OF|MOTHER_OF*1..%d]->(b:Individual {key: $b})
		RETURN anc{.xref, .name, .sex, .birth_year} AS person,
		       min(length(pa)) + min(length(pb)) AS generation
		ORDER BY generation, person.xref
		LIMIT %d`, maxPathDepth, maxPathDepth, limit)
	return r.collectRelatives(ctx, query, map[string]any{
		"a": nodeKey(treeID, xrefA),
		"b": nodeKey(treeID, xrefB),
	})
}

// Counts reports projection sizes for health and admin output.
func (r *kinshipRepo) Counts(ctx context.Context, treeID int64) (*GraphCounts, error) {
	res, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, `
			MATCH (n:Individual {tree_id: $tree_id})
			OPTIONAL MATCH (n)-[rel]->()
			RETURN count(DISTINCT n) AS persons, count(rel) AS links`,
			map[string]any{"tree_id": treeID})
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, result, func(rec *neo4j.Record) (*GraphCounts, error) {
			return &GraphCounts{
				Persons: asInt64(rec.Values[0]),
				Links:   asInt64(rec.Values[1]),
			}, nil
		})
	})
	if err != nil {
		return nil, err
	}
	return res.(*GraphCounts), nil
}

func (r *kinshipRepo) collectRelatives(ctx context.Context, query string, params map[string]any) ([]Relative, error) {
	res, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (interface{}, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, result, func(rec *neo4j.Record) (Relative, error) {
			person, err := mapPerson(rec.Values[0])
			if err != nil {
				return Relative{}, err
			}
			return Relative{Person: person, Generation: int(asInt64(rec.Values[1]))}, nil
		})
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, nil
	}
	return res.([]Relative), nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Record mapping
// ─────────────────────────────────────────────────────────────────────────────

func mapPath(rec *neo4j.Record) (*Path, error) {
	persons, ok := rec.Values[0].([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrCodeSerialization, "unexpected path node shape")
	}
	steps, ok := rec.Values[1].([]interface{})
	if !ok {
		return nil, errors.New(errors.ErrCodeSerialization, "unexpected path step shape")
	}

	path := &Path{}
	for _, p := range persons {
		person, err := mapPerson(p)
		if err != nil {
			return nil, err
		}
		path.Persons = append(path.Persons, person)
	}
	for _, s := range steps {
		m, ok := s.(map[string]interface{})
		if !ok {
			return nil, errors.New(errors.ErrCodeSerialization, "unexpected path step shape")
		}
		path.Steps = append(path.Steps, PathStep{
			FromXref: asString(m["from"]),
			ToXref:   asString(m["to"]),
			Type:     asString(m["type"]),
		})
	}
	return path, nil
}

func mapPerson(v interface{}) (Person, error) {
	m, ok := v.(map[string]interface{})
	if !ok {
		return Person{}, errors.New(errors.ErrCodeSerialization, "unexpected person shape")
	}
	return Person{
		Xref:      asString(m["xref"]),
		Name:      asString(m["name"]),
		Sex:       asString(m["sex"]),
		BirthYear: int(asInt64(m["birth_year"])),
	}, nil
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	}
	return 0
}
