package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
	"github.com/mirono/webtrees/pkg/types/common"
)

const recordColumns = `id, tree_id, xref, type, gedcom, name, surname, sex,
	birth_date, birth_sort, death_date, death_sort, husband, wife, object_key,
	updated_by, created_at, updated_at`

type recordRepository struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewRecordRepository builds the PostgreSQL implementation of the genealogy
// record persistence contract.
func NewRecordRepository(conn *postgres.Connection, log logging.Logger) record.RecordRepository {
	return &recordRepository{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

// WithTx runs fn against a repository bound to one transaction; imports use
// this so a failed file leaves no partial records behind.
func (r *recordRepository) WithTx(ctx context.Context, fn func(record.RecordRepository) error) error {
	tx, err := r.conn.DB().BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}

	txRepo := &recordRepository{
		conn:     r.conn,
		log:      r.log,
		executor: tx,
	}

	if err := fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("transaction rollback failed", logging.Err(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

func (r *recordRepository) Create(ctx context.Context, rec *record.Record) error {
	query := `
		INSERT INTO records (
			tree_id, xref, type, gedcom, name, surname, sex,
			birth_date, birth_sort, death_date, death_sort, husband, wife, object_key,
			updated_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING id, created_at, updated_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		rec.TreeID, rec.Xref, rec.Type, rec.Gedcom, rec.Name, rec.Surname, rec.Sex,
		rec.BirthDate, rec.BirthSort, rec.DeathDate, rec.DeathSort, rec.Husband, rec.Wife, rec.ObjectKey,
		rec.UpdatedBy,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)

	if err != nil {
		if uniqueViolation(err, "records_tree_xref_key") {
			return errors.Wrap(err, errors.ErrCodeDuplicateXref,
				"record cross-reference already exists").WithDetailf("tree=%d xref=%s", rec.TreeID, rec.Xref)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create record")
	}
	return nil
}

func (r *recordRepository) Get(ctx context.Context, treeID int64, xref string) (*record.Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE tree_id = $1 AND xref = $2`
	return scanRecord(r.executor.QueryRowContext(ctx, query, treeID, xref))
}

func (r *recordRepository) Update(ctx context.Context, rec *record.Record) error {
	query := `
		UPDATE records SET
			type = $3, gedcom = $4, name = $5, surname = $6, sex = $7,
			birth_date = $8, birth_sort = $9, death_date = $10, death_sort = $11,
			husband = $12, wife = $13, object_key = $14, updated_by = $15, updated_at = NOW()
		WHERE tree_id = $1 AND xref = $2
	`
	res, err := r.executor.ExecContext(ctx, query,
		rec.TreeID, rec.Xref, rec.Type, rec.Gedcom, rec.Name, rec.Surname, rec.Sex,
		rec.BirthDate, rec.BirthSort, rec.DeathDate, rec.DeathSort,
		rec.Husband, rec.Wife, rec.ObjectKey, rec.UpdatedBy,
	)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update record")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Newf(errors.ErrCodeRecordNotFound, "record %s not found in tree %d", rec.Xref, rec.TreeID)
	}
	return nil
}

func (r *recordRepository) Delete(ctx context.Context, treeID int64, xref string) error {
	res, err := r.executor.ExecContext(ctx,
		`DELETE FROM records WHERE tree_id = $1 AND xref = $2`, treeID, xref)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete record")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Newf(errors.ErrCodeRecordNotFound, "record %s not found in tree %d", xref, treeID)
	}
	return nil
}

func (r *recordRepository) List(ctx context.Context, filter record.ListFilter) ([]*record.Record, int64, error) {
	where := "WHERE tree_id = $1"
	args := []interface{}{filter.TreeID}

	if filter.Type != "" {
		where += fmt.Sprintf(" AND type = $%d", len(args)+1)
		args = append(args, filter.Type)
	}
	if filter.Name != "" {
		where += fmt.Sprintf(" AND name ILIKE $%d", len(args)+1)
		args = append(args, "%"+filter.Name+"%")
	}

	var total int64
	countQuery := "SELECT COUNT(*) FROM records " + where
	if err := r.executor.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count records")
	}

	page := filter.Page
	if page.PageSize <= 0 {
		page = common.DefaultPagination()
	}
	query := fmt.Sprintf("SELECT "+recordColumns+" FROM records "+where+
		" ORDER BY name ASC, id ASC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, page.PageSize, page.Offset())

	rows, err := r.executor.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list records")
	}
	defer rows.Close()

	var records []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list records")
	}
	return records, total, nil
}

// NextXref reserves the next free cross-reference for a record type. The
// per-type counter only moves forward; when an import seeded xrefs past the
// counter the loop skips the taken numbers until it clears them.
func (r *recordRepository) NextXref(ctx context.Context, treeID int64, typ gedcom.RecordType) (string, error) {
	prefix := typ.XrefPrefix()
	for {
		var n int64
		err := r.executor.QueryRowContext(ctx, `
			INSERT INTO xref_counters (tree_id, record_type, next_id)
			VALUES ($1, $2, 2)
			ON CONFLICT (tree_id, record_type)
			DO UPDATE SET next_id = xref_counters.next_id + 1
			RETURNING next_id - 1
		`, treeID, typ).Scan(&n)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to advance xref counter")
		}

		xref := fmt.Sprintf("%s%d", prefix, n)
		var taken bool
		err = r.executor.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM records WHERE tree_id = $1 AND xref = $2)`,
			treeID, xref).Scan(&taken)
		if err != nil {
			return "", errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to check xref")
		}
		if !taken {
			return xref, nil
		}
	}
}

func (r *recordRepository) CountByType(ctx context.Context, treeID int64) (map[gedcom.RecordType]int64, error) {
	rows, err := r.executor.QueryContext(ctx,
		`SELECT type, COUNT(*) FROM records WHERE tree_id = $1 GROUP BY type`, treeID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count records by type")
	}
	defer rows.Close()

	counts := make(map[gedcom.RecordType]int64)
	for rows.Next() {
		var (
			typ   gedcom.RecordType
			count int64
		)
		if err := rows.Scan(&typ, &count); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan record count")
		}
		counts[typ] = count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to count records by type")
	}
	return counts, nil
}

func (r *recordRepository) AddChange(ctx context.Context, c *record.Change) error {
	query := `
		INSERT INTO changes (tree_id, xref, old_gedcom, new_gedcom, author)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		c.TreeID, c.Xref, c.OldGedcom, c.NewGedcom, c.Author,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to record change")
	}
	return nil
}

func (r *recordRepository) ListChanges(ctx context.Context, treeID int64, xref string, limit int) ([]*record.Change, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, tree_id, xref, old_gedcom, new_gedcom, author, created_at
		FROM changes
		WHERE tree_id = $1 AND xref = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := r.executor.QueryContext(ctx, query, treeID, xref, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list changes")
	}
	defer rows.Close()

	var changes []*record.Change
	for rows.Next() {
		var c record.Change
		if err := rows.Scan(&c.ID, &c.TreeID, &c.Xref, &c.OldGedcom, &c.NewGedcom, &c.Author, &c.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan change")
		}
		changes = append(changes, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list changes")
	}
	return changes, nil
}

func scanRecord(row scanner) (*record.Record, error) {
	var rec record.Record
	err := row.Scan(
		&rec.ID, &rec.TreeID, &rec.Xref, &rec.Type, &rec.Gedcom, &rec.Name, &rec.Surname, &rec.Sex,
		&rec.BirthDate, &rec.BirthSort, &rec.DeathDate, &rec.DeathSort, &rec.Husband, &rec.Wife, &rec.ObjectKey,
		&rec.UpdatedBy, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeRecordNotFound, "record not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan record")
	}
	return &rec, nil
}
