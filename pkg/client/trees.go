package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// TreesClient covers tree lifecycle, preferences, site settings and GEDCOM
// transfer.
type TreesClient struct {
	client *Client
}

// Tree is one family tree.
type Tree struct {
	ID          int64             `json:"id"`
	Name        string            `json:"name"`
	Title       string            `json:"title"`
	OwnerID     string            `json:"owner_id"`
	Preferences map[string]string `json:"preferences,omitempty"`
	ImportState string            `json:"import_state"`
	ImportError string            `json:"import_error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// TreeStats is the per-type record census of a tree.
type TreeStats struct {
	TreeID int64            `json:"tree_id"`
	Counts map[string]int64 `json:"counts"`
}

// Preference is one named setting.
type Preference struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MapProviderSetting is the site-wide geographic map provider.
type MapProviderSetting struct {
	Provider  string   `json:"provider"`
	Available []string `json:"available"`
}

// ImportResult summarizes one GEDCOM import.
type ImportResult struct {
	TreeID   int64          `json:"tree_id"`
	Counts   map[string]int `json:"counts"`
	Total    int            `json:"total"`
	Remapped int            `json:"remapped"`
	Skipped  int            `json:"skipped"`
	Duration time.Duration  `json:"duration"`
}

// ExportResult is the handle of a finished GEDCOM export.
type ExportResult struct {
	Key     string `json:"key"`
	URL     string `json:"url,omitempty"`
	Records int    `json:"records"`
	Bytes   int    `json:"bytes"`
}

// Create creates a tree. Admin only.
// POST /api/v1/trees
func (tc *TreesClient) Create(ctx context.Context, name, title string) (*Tree, error) {
	if name == "" {
		return nil, invalidArg("name is required")
	}
	body := map[string]string{"name": name, "title": title}
	var t Tree
	if err := tc.client.post(ctx, "/api/v1/trees", body, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// List returns every tree visible to the caller.
// GET /api/v1/trees
func (tc *TreesClient) List(ctx context.Context) ([]Tree, error) {
	var resp struct {
		Items []Tree `json:"items"`
	}
	if err := tc.client.get(ctx, "/api/v1/trees", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Get returns one tree.
// GET /api/v1/trees/{treeID}
func (tc *TreesClient) Get(ctx context.Context, treeID int64) (*Tree, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	var t Tree
	if err := tc.client.get(ctx, fmt.Sprintf("/api/v1/trees/%d", treeID), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Rename changes a tree's display title.
// PUT /api/v1/trees/{treeID}
func (tc *TreesClient) Rename(ctx context.Context, treeID int64, title string) (*Tree, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if title == "" {
		return nil, invalidArg("title is required")
	}
	var t Tree
	if err := tc.client.put(ctx, fmt.Sprintf("/api/v1/trees/%d", treeID), map[string]string{"title": title}, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

// Delete removes a tree and everything in it. Admin only.
// DELETE /api/v1/trees/{treeID}
func (tc *TreesClient) Delete(ctx context.Context, treeID int64) error {
	if treeID <= 0 {
		return invalidArg("treeID is required")
	}
	return tc.client.delete(ctx, fmt.Sprintf("/api/v1/trees/%d", treeID))
}

// Stats returns the record counts per type.
// GET /api/v1/trees/{treeID}/stats
func (tc *TreesClient) Stats(ctx context.Context, treeID int64) (*TreeStats, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	var stats TreeStats
	if err := tc.client.get(ctx, fmt.Sprintf("/api/v1/trees/%d/stats", treeID), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Preference reads one tree setting.
// GET /api/v1/trees/{treeID}/preferences/{name}
func (tc *TreesClient) Preference(ctx context.Context, treeID int64, name string) (*Preference, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if name == "" {
		return nil, invalidArg("name is required")
	}
	var pref Preference
	path := fmt.Sprintf("/api/v1/trees/%d/preferences/%s", treeID, url.PathEscape(name))
	if err := tc.client.get(ctx, path, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// SetPreference writes one tree setting.
// PUT /api/v1/trees/{treeID}/preferences/{name}
func (tc *TreesClient) SetPreference(ctx context.Context, treeID int64, name, value string) (*Preference, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if name == "" {
		return nil, invalidArg("name is required")
	}
	var pref Preference
	path := fmt.Sprintf("/api/v1/trees/%d/preferences/%s", treeID, url.PathEscape(name))
	if err := tc.client.put(ctx, path, map[string]string{"value": value}, &pref); err != nil {
		return nil, err
	}
	return &pref, nil
}

// MapProvider reads the site-wide map provider setting.
// GET /api/v1/site/map-provider
func (tc *TreesClient) MapProvider(ctx context.Context) (*MapProviderSetting, error) {
	var setting MapProviderSetting
	if err := tc.client.get(ctx, "/api/v1/site/map-provider", &setting); err != nil {
		return nil, err
	}
	return &setting, nil
}

// SetMapProvider switches the site-wide map provider. Admin only.
// PUT /api/v1/site/map-provider
func (tc *TreesClient) SetMapProvider(ctx context.Context, provider string) error {
	if provider == "" {
		return invalidArg("provider is required")
	}
	return tc.client.put(ctx, "/api/v1/site/map-provider", map[string]string{"provider": provider}, nil)
}

// ImportGedcom uploads GEDCOM text into a tree. The whole file is read
// before sending so retries resend identical bytes.
// POST /api/v1/trees/{treeID}/gedcom
func (tc *TreesClient) ImportGedcom(ctx context.Context, treeID int64, r io.Reader) (*ImportResult, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if r == nil {
		return nil, invalidArg("reader is required")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read GEDCOM input: %w", err)
	}
	if len(data) == 0 {
		return nil, invalidArg("GEDCOM input is empty")
	}

	path := fmt.Sprintf("/api/v1/trees/%d/gedcom", treeID)
	encode := func() (io.Reader, string, error) {
		return bytes.NewReader(data), "text/x-gedcom", nil
	}
	respBody, _, _, err := tc.client.doRaw(ctx, http.MethodPost, path, encode)
	if err != nil {
		return nil, err
	}
	var result ImportResult
	if err := unmarshalBody(respBody, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ExportGedcom writes the tree to object storage and returns the handle.
// POST /api/v1/trees/{treeID}/export
func (tc *TreesClient) ExportGedcom(ctx context.Context, treeID int64) (*ExportResult, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	var result ExportResult
	if err := tc.client.post(ctx, fmt.Sprintf("/api/v1/trees/%d/export", treeID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DownloadGedcom streams the tree back as GEDCOM text.
// GET /api/v1/trees/{treeID}/gedcom
func (tc *TreesClient) DownloadGedcom(ctx context.Context, treeID int64) ([]byte, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	data, _, _, err := tc.client.doRaw(ctx, http.MethodGet, fmt.Sprintf("/api/v1/trees/%d/gedcom", treeID), nil)
	return data, err
}
