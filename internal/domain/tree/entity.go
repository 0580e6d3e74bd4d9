// Package tree holds the family-tree aggregate: a named container that
// owns every genealogy record imported into it, with per-tree preferences
// and the site-wide settings the admin surface edits.
package tree

import (
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/pkg/errors"
)

// ImportState tracks the lifecycle of the last GEDCOM import into a tree.
type ImportState string

const (
	// ImportNone means nothing was imported yet; the tree is empty.
	ImportNone ImportState = "none"
	// ImportRunning means an import is in progress and writes are blocked.
	ImportRunning ImportState = "running"
	// ImportReady means the last import completed.
	ImportReady ImportState = "ready"
	// ImportFailed means the last import aborted; Error carries the cause.
	ImportFailed ImportState = "failed"
)

// Tree is one family tree.
type Tree struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Title       string            `json:"title"`
	OwnerID     uuid.UUID         `json:"owner_id"`
	Preferences map[string]string `json:"preferences,omitempty"`
	ImportState ImportState       `json:"import_state"`
	ImportError string            `json:"import_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Preference names used by the rest of the system.
const (
	// PrefMediaPath is the folder prefix stripped from GEDCOM media file
	// references on import.
	PrefMediaPath = "media.path"
	// PrefContactEmail is the address shown as tree contact.
	PrefContactEmail = "contact.email"
	// PrefImportSource records where the last import came from (filename
	// or upload), PrefImportDate when it finished.
	PrefImportSource = "import.source"
	PrefImportDate   = "import.date"
)

// treeName is deliberately narrow; the name ends up in URLs and object
// storage keys.
var treeName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

// ValidateName checks a tree name: 1 to 32 characters of lowercase
// letters, digits, hyphen or underscore, starting alphanumeric.
func ValidateName(name string) error {
	if !treeName.MatchString(name) {
		return errors.New(errors.ErrCodeValidation, "tree name must be 1-32 lowercase letters, digits, '-' or '_'").WithDetail(name)
	}
	return nil
}

// New builds an empty tree owned by the given user.
func New(name, title string, ownerID uuid.UUID) (*Tree, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if title == "" {
		title = name
	}
	now := time.Now().UTC()
	return &Tree{
		Name:        name,
		Title:       title,
		OwnerID:     ownerID,
		ImportState: ImportNone,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Importing reports whether record writes are currently blocked.
func (t *Tree) Importing() bool {
	return t.ImportState == ImportRunning
}

// Preference returns a tree preference value, "" when unset.
func (t *Tree) Preference(name string) string {
	return t.Preferences[name]
}

// SetPreference sets a tree preference; an empty value removes the entry.
func (t *Tree) SetPreference(name, value string) {
	if value == "" {
		delete(t.Preferences, name)
		return
	}
	if t.Preferences == nil {
		t.Preferences = make(map[string]string)
	}
	t.Preferences[name] = value
}

// ─────────────────────────────────────────────────────────────────────────────
// Site settings
// ─────────────────────────────────────────────────────────────────────────────

// SiteSetting is one site-wide key-value setting.
type SiteSetting struct {
	Name      string    `json:"name"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SettingMapProvider selects the geographic map provider offered to
// clients.
const SettingMapProvider = "map.provider"

// DefaultMapProvider is used until an administrator picks one.
const DefaultMapProvider = "openstreetmap"

// MapProviders lists the providers the admin surface offers.
func MapProviders() []string {
	return []string{"openstreetmap", "mapbox", "bingmaps", "here"}
}

// ValidateMapProvider checks a provider against the supported list.
func ValidateMapProvider(provider string) error {
	for _, p := range MapProviders() {
		if p == provider {
			return nil
		}
	}
	return errors.New(errors.ErrCodeValidation, "unsupported map provider").WithDetail(provider)
}
