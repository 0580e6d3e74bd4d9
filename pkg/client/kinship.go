package client

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
)

// KinshipClient covers relationship queries over the kinship graph.
type KinshipClient struct {
	client *Client
}

// Person is one individual as projected into the graph.
type Person struct {
	Xref      string `json:"xref"`
	Name      string `json:"name"`
	Sex       string `json:"sex"`
	BirthYear int    `json:"birth_year"`
}

// Step is one hop of a relationship path.
type Step struct {
	Person Person `json:"person"`
	Label  string `json:"label"`
}

// Relationship is a kinship path resolved into prose-ready steps.
type Relationship struct {
	From        Person `json:"from"`
	To          Person `json:"to"`
	Steps       []Step `json:"steps"`
	Description string `json:"description"`
	Hops        int    `json:"hops"`
}

// Relative is one ancestor or descendant with its generation distance.
type Relative struct {
	Person     Person `json:"person"`
	Generation int    `json:"generation"`
}

// GraphCounts reports the projection size for one tree.
type GraphCounts struct {
	Persons int64 `json:"persons"`
	Links   int64 `json:"links"`
}

// SyncResult summarizes one graph rebuild.
type SyncResult struct {
	TreeID  int64 `json:"tree_id"`
	Persons int   `json:"persons"`
	Links   int   `json:"links"`
}

// Path finds the closest relationship between two individuals. maxDepth
// zero means the server's ceiling.
// GET /api/v1/trees/{treeID}/kinship/path?from=&to=&max_depth=
func (kc *KinshipClient) Path(ctx context.Context, treeID int64, fromXref, toXref string, maxDepth int) (*Relationship, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if fromXref == "" || toXref == "" {
		return nil, invalidArg("fromXref and toXref are required")
	}
	params := url.Values{}
	params.Set("from", fromXref)
	params.Set("to", toXref)
	if maxDepth > 0 {
		params.Set("max_depth", strconv.Itoa(maxDepth))
	}
	var rel Relationship
	path := fmt.Sprintf("/api/v1/trees/%d/kinship/path?%s", treeID, params.Encode())
	if err := kc.client.get(ctx, path, &rel); err != nil {
		return nil, err
	}
	return &rel, nil
}

// Ancestors lists an individual's ancestors up to generations levels.
// GET /api/v1/trees/{treeID}/kinship/ancestors/{xref}?generations=
func (kc *KinshipClient) Ancestors(ctx context.Context, treeID int64, xref string, generations int) ([]Relative, error) {
	return kc.relatives(ctx, treeID, "ancestors", xref, generations)
}

// Descendants lists an individual's descendants down to generations levels.
// GET /api/v1/trees/{treeID}/kinship/descendants/{xref}?generations=
func (kc *KinshipClient) Descendants(ctx context.Context, treeID int64, xref string, generations int) ([]Relative, error) {
	return kc.relatives(ctx, treeID, "descendants", xref, generations)
}

func (kc *KinshipClient) relatives(ctx context.Context, treeID int64, direction, xref string, generations int) ([]Relative, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if xref == "" {
		return nil, invalidArg("xref is required")
	}
	path := fmt.Sprintf("/api/v1/trees/%d/kinship/%s/%s", treeID, direction, url.PathEscape(xref))
	if generations > 0 {
		path += "?generations=" + strconv.Itoa(generations)
	}
	var resp struct {
		Items []Relative `json:"items"`
	}
	if err := kc.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// CommonAncestors lists the shared ancestors of two individuals, closest
// first.
// GET /api/v1/trees/{treeID}/kinship/common-ancestors?a=&b=&limit=
func (kc *KinshipClient) CommonAncestors(ctx context.Context, treeID int64, xrefA, xrefB string, limit int) ([]Relative, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	if xrefA == "" || xrefB == "" {
		return nil, invalidArg("xrefA and xrefB are required")
	}
	params := url.Values{}
	params.Set("a", xrefA)
	params.Set("b", xrefB)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Items []Relative `json:"items"`
	}
	path := fmt.Sprintf("/api/v1/trees/%d/kinship/common-ancestors?%s", treeID, params.Encode())
	if err := kc.client.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// Counts reports how many persons and links the tree's graph holds.
// GET /api/v1/trees/{treeID}/kinship/counts
func (kc *KinshipClient) Counts(ctx context.Context, treeID int64) (*GraphCounts, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	var counts GraphCounts
	if err := kc.client.get(ctx, fmt.Sprintf("/api/v1/trees/%d/kinship/counts", treeID), &counts); err != nil {
		return nil, err
	}
	return &counts, nil
}

// Sync rebuilds the tree's graph projection from the record store. Manager
// role or better.
// POST /api/v1/trees/{treeID}/kinship/sync
func (kc *KinshipClient) Sync(ctx context.Context, treeID int64) (*SyncResult, error) {
	if treeID <= 0 {
		return nil, invalidArg("treeID is required")
	}
	var result SyncResult
	if err := kc.client.post(ctx, fmt.Sprintf("/api/v1/trees/%d/kinship/sync", treeID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
