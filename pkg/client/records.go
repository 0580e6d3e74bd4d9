package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// RecordsClient covers GEDCOM record CRUD, the change log, merging and
// media files.
type RecordsClient struct {
	client *Client
}

// Record is one GEDCOM record with its derived fields.
type Record struct {
	ID        int64     `json:"id"`
	TreeID    int64     `json:"tree_id"`
	Xref      string    `json:"xref"`
	Type      string    `json:"type"`
	Gedcom    string    `json:"gedcom"`
	Name      string    `json:"name,omitempty"`
	Surname   string    `json:"surname,omitempty"`
	Sex       string    `json:"sex,omitempty"`
	BirthDate string    `json:"birth_date,omitempty"`
	DeathDate string    `json:"death_date,omitempty"`
	Husband   string    `json:"husband,omitempty"`
	Wife      string    `json:"wife,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Change is one entry of a record's change log.
type Change struct {
	ID        int64     `json:"id"`
	TreeID    int64     `json:"tree_id"`
	Xref      string    `json:"xref"`
	OldGedcom string    `json:"old_gedcom,omitempty"`
	NewGedcom string    `json:"new_gedcom,omitempty"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordListOptions filter a record listing.
type RecordListOptions struct {
	Type string
	Name string
	Page Pagination
}

// MergeResult is the outcome of folding one record into another.
type MergeResult struct {
	Record    *Record  `json:"record"`
	Conflicts []any    `json:"conflicts,omitempty"`
	Relinked  []string `json:"relinked,omitempty"`
}

// Create adds a record from raw GEDCOM text. The xref in the text is
// advisory; the server may assign a fresh one.
// POST /api/v1/trees/{treeID}/records
func (rc *RecordsClient) Create(ctx context.Context, treeID int64, gedcomText string) (*Record, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if gedcomText == "" {
		return nil, invalidArg("gedcom is required")
	}
	var rec Record
	path := fmt.Sprintf("/api/v1/trees/%d/records", treeID)
	if err := rc.client.post(ctx, path, map[string]string{"gedcom": gedcomText}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// List pages through a tree's records.
// GET /api/v1/trees/{treeID}/records?type=&name=&page=&page_size=
func (rc *RecordsClient) List(ctx context.Context, treeID int64, opts RecordListOptions) ([]Record, *PaginationResult, error) {
	if treeID <= 0 {
		return nil, nil, invalidArg("treeID is required")
	}
	q := url.Values{}
	if opts.Type != "" {
		q.Set("type", opts.Type)
	}
	if opts.Name != "" {
		q.Set("name", opts.Name)
	}
	if opts.Page.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page.Page))
	}
	if opts.Page.PageSize > 0 {
		q.Set("page_size", strconv.Itoa(opts.Page.PageSize))
	}
	path := fmt.Sprintf("/api/v1/trees/%d/records", treeID)
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var resp ListResponse[Record]
	if err := rc.client.get(ctx, path, &resp); err != nil {
		return nil, nil, err
	}
	return resp.Items, &resp.Pagination, nil
}

// Get returns one record by xref.
// GET /api/v1/trees/{treeID}/records/{xref}
func (rc *RecordsClient) Get(ctx context.Context, treeID int64, xref string) (*Record, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if xref == "" {
		return nil, invalidArg("xref is required")
	}
	var rec Record
	if err := rc.client.get(ctx, recordPath(treeID, xref), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Update replaces a record's GEDCOM text.
// PUT /api/v1/trees/{treeID}/records/{xref}
func (rc *RecordsClient) Update(ctx context.Context, treeID int64, xref, gedcomText string) (*Record, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if xref == "" {
		return nil, invalidArg("xref is required")
	}
	if gedcomText == "" {
		return nil, invalidArg("gedcom is required")
	}
	var rec Record
	if err := rc.client.put(ctx, recordPath(treeID, xref), map[string]string{"gedcom": gedcomText}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Delete removes a record.
// DELETE /api/v1/trees/{treeID}/records/{xref}
func (rc *RecordsClient) Delete(ctx context.Context, treeID int64, xref string) error {
	if treeID <= 0 {
		return invalidArg("treeID is required")
	}
	if xref == "" {
		return invalidArg("xref is required")
	}
	return rc.client.delete(ctx, recordPath(treeID, xref))
}

// Changes returns a record's change log, newest first.
// GET /api/v1/trees/{treeID}/records/{xref}/changes
func (rc *RecordsClient) Changes(ctx context.Context, treeID int64, xref string) ([]Change, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if xref == "" {
		return nil, invalidArg("xref is required")
	}
	var resp struct {
		Items []Change `json:"items"`
	}
	if err := rc.client.get(ctx, recordPath(treeID, xref)+"/changes", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Merge folds sourceXref into targetXref. The target survives with the
// union of facts; every pointer to the source is rewritten.
// POST /api/v1/trees/{treeID}/records/{targetXref}/merge
func (rc *RecordsClient) Merge(ctx context.Context, treeID int64, targetXref, sourceXref string) (*MergeResult, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if targetXref == "" {
		return nil, invalidArg("targetXref is required")
	}
	if sourceXref == "" {
		return nil, invalidArg("sourceXref is required")
	}
	var result MergeResult
	body := map[string]string{"source_xref": sourceXref}
	if err := rc.client.post(ctx, recordPath(treeID, targetXref)+"/merge", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// MediaContent streams a media object's stored file.
// GET /api/v1/trees/{treeID}/media/{xref}/content
func (rc *RecordsClient) MediaContent(ctx context.Context, treeID int64, xref string) (data []byte, contentType string, err error) {
	if treeID <= 0 {
		return nil, "", invalidArg("treeID is required")
	}
	if xref == "" {
		return nil, "", invalidArg("xref is required")
	}
	path := fmt.Sprintf("/api/v1/trees/%d/media/%s/content", treeID, url.PathEscape(xref))
	data, contentType, _, err = rc.client.doRaw(ctx, http.MethodGet, path, nil)
	return data, contentType, err
}

func recordPath(treeID int64, xref string) string {
	return fmt.Sprintf("/api/v1/trees/%d/records/%s", treeID, url.PathEscape(xref))
}
