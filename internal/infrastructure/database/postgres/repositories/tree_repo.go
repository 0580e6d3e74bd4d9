package repositories

import (
	"context"
	"database/sql"

	"github.com/mirono/webtrees/internal/domain/tree"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

const treeColumns = `id, name, title, owner_id, preferences, import_state, import_error,
	created_at, updated_at`

type treeRepository struct {
	conn     *postgres.Connection
	log      logging.Logger
	executor queryExecutor
}

// NewTreeRepository builds the PostgreSQL implementation of the tree and
// site-setting persistence contract.
func NewTreeRepository(conn *postgres.Connection, log logging.Logger) tree.TreeRepository {
	return &treeRepository{
		conn:     conn,
		log:      log,
		executor: conn.DB(),
	}
}

func (r *treeRepository) Create(ctx context.Context, t *tree.Tree) error {
	query := `
		INSERT INTO trees (name, title, owner_id, preferences, import_state)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`
	err := r.executor.QueryRowContext(ctx, query,
		t.Name, t.Title, t.OwnerID, prefsValue(t.Preferences), t.ImportState,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)

	if err != nil {
		if uniqueViolation(err, "trees_name_key") {
			return errors.Wrap(err, errors.ErrCodeDuplicateTreeName,
				"a family tree with this name already exists").WithDetail(t.Name)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create tree")
	}
	return nil
}

func (r *treeRepository) GetByID(ctx context.Context, id int64) (*tree.Tree, error) {
	query := `SELECT ` + treeColumns + ` FROM trees WHERE id = $1`
	return scanTree(r.executor.QueryRowContext(ctx, query, id))
}

func (r *treeRepository) GetByName(ctx context.Context, name string) (*tree.Tree, error) {
	query := `SELECT ` + treeColumns + ` FROM trees WHERE name = $1`
	return scanTree(r.executor.QueryRowContext(ctx, query, name))
}

func (r *treeRepository) List(ctx context.Context) ([]*tree.Tree, error) {
	query := `SELECT ` + treeColumns + ` FROM trees ORDER BY name ASC`
	rows, err := r.executor.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list trees")
	}
	defer rows.Close()

	var trees []*tree.Tree
	for rows.Next() {
		t, err := scanTree(rows)
		if err != nil {
			return nil, err
		}
		trees = append(trees, t)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list trees")
	}
	return trees, nil
}

func (r *treeRepository) Update(ctx context.Context, t *tree.Tree) error {
	query := `
		UPDATE trees SET
			name = $2, title = $3, owner_id = $4, preferences = $5, updated_at = NOW()
		WHERE id = $1
	`
	res, err := r.executor.ExecContext(ctx, query,
		t.ID, t.Name, t.Title, t.OwnerID, prefsValue(t.Preferences),
	)
	if err != nil {
		if uniqueViolation(err, "trees_name_key") {
			return errors.Wrap(err, errors.ErrCodeDuplicateTreeName,
				"a family tree with this name already exists").WithDetail(t.Name)
		}
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to update tree")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Newf(errors.ErrCodeTreeNotFound, "tree %d not found", t.ID)
	}
	return nil
}

// Delete removes the tree row; records, changes and xref counters follow via
// ON DELETE CASCADE.
func (r *treeRepository) Delete(ctx context.Context, id int64) error {
	res, err := r.executor.ExecContext(ctx, `DELETE FROM trees WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete tree")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Newf(errors.ErrCodeTreeNotFound, "tree %d not found", id)
	}
	r.log.Info("deleted tree", logging.Int64("tree_id", id))
	return nil
}

func (r *treeRepository) SetPreference(ctx context.Context, id int64, name, value string) error {
	var (
		res sql.Result
		err error
	)
	if value == "" {
		query := `UPDATE trees SET preferences = preferences - $2, updated_at = NOW() WHERE id = $1`
		res, err = r.executor.ExecContext(ctx, query, id, name)
	} else {
		query := `UPDATE trees SET
			preferences = jsonb_set(COALESCE(preferences, '{}'::jsonb), ARRAY[$2], to_jsonb($3::text)),
			updated_at = NOW()
			WHERE id = $1`
		res, err = r.executor.ExecContext(ctx, query, id, name, value)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to set tree preference")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Newf(errors.ErrCodeTreeNotFound, "tree %d not found", id)
	}
	return nil
}

func (r *treeRepository) SetImportState(ctx context.Context, id int64, state tree.ImportState, importErr string) error {
	query := `UPDATE trees SET import_state = $2, import_error = $3, updated_at = NOW() WHERE id = $1`
	res, err := r.executor.ExecContext(ctx, query, id, state, importErr)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to set import state")
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return errors.Newf(errors.ErrCodeTreeNotFound, "tree %d not found", id)
	}
	return nil
}

// GetSiteSetting returns "" without error when the setting was never written.
func (r *treeRepository) GetSiteSetting(ctx context.Context, name string) (string, error) {
	var value string
	err := r.executor.QueryRowContext(ctx,
		`SELECT value FROM site_settings WHERE name = $1`, name).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to get site setting")
	}
	return value, nil
}

func (r *treeRepository) SetSiteSetting(ctx context.Context, name, value string) error {
	query := `
		INSERT INTO site_settings (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`
	if _, err := r.executor.ExecContext(ctx, query, name, value); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to set site setting")
	}
	return nil
}

func scanTree(row scanner) (*tree.Tree, error) {
	var (
		t         tree.Tree
		prefsJSON []byte
	)
	err := row.Scan(
		&t.ID, &t.Name, &t.Title, &t.OwnerID, &prefsJSON, &t.ImportState, &t.ImportError,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.New(errors.ErrCodeTreeNotFound, "family tree not found")
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan tree")
	}
	t.Preferences = scanPrefs(prefsJSON)
	return &t, nil
}
