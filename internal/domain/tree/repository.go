package tree

import "context"

// TreeRepository is the persistence contract for trees and site settings.
// Lookups return an error with code ErrCodeTreeNotFound when no row
// matches; Create maps a name collision to ErrCodeDuplicateTreeName.
type TreeRepository interface {
	Create(ctx context.Context, t *Tree) error
	GetByID(ctx context.Context, id int64) (*Tree, error)
	GetByName(ctx context.Context, name string) (*Tree, error)
	List(ctx context.Context) ([]*Tree, error)
	Update(ctx context.Context, t *Tree) error
	// Delete removes the tree and cascades to its records.
	Delete(ctx context.Context, id int64) error

	// SetPreference writes one tree preference; empty value deletes it.
	SetPreference(ctx context.Context, id int64, name, value string) error
	SetImportState(ctx context.Context, id int64, state ImportState, importErr string) error

	// GetSiteSetting returns "" without error for an unset name.
	GetSiteSetting(ctx context.Context, name string) (string, error)
	SetSiteSetting(ctx context.Context, name, value string) error
}
