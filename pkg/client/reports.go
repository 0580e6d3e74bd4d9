package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ReportsClient covers asynchronous report generation.
type ReportsClient struct {
	client *Client
}

// Report kinds and formats accepted by Generate.
const (
	ReportIndividual  = "individual"
	ReportPedigree    = "pedigree"
	ReportDescendancy = "descendancy"

	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// Report job states.
const (
	ReportPending = "pending"
	ReportReady   = "ready"
	ReportFailed  = "failed"
)

// GenerateReportRequest asks for one report over a tree.
type GenerateReportRequest struct {
	TreeID      int64  `json:"-"`
	Kind        string `json:"kind"`
	Format      string `json:"format"`
	Xref        string `json:"xref"`
	Generations int    `json:"generations,omitempty"`
}

// ReportJob is one report generation tracked by handle.
type ReportJob struct {
	Handle      string    `json:"handle"`
	TreeID      int64     `json:"tree_id"`
	TreeName    string    `json:"tree_name"`
	Kind        string    `json:"kind"`
	Format      string    `json:"format"`
	Xref        string    `json:"xref"`
	Generations int       `json:"generations"`
	RequestedBy string    `json:"requested_by,omitempty"`
	Status      string    `json:"status"`
	ObjectKey   string    `json:"object_key,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Generate queues a report and returns the pending job. Poll Status until
// the job leaves ReportPending, then Download.
// POST /api/v1/trees/{treeID}/reports
func (rc *ReportsClient) Generate(ctx context.Context, req *GenerateReportRequest) (*ReportJob, error) {
	if req == nil {
		return nil, invalidArg("request is required")
	}
	if req.TreeID <= 0 {
		return nil, invalidArg("TreeID is required")
	}
	if req.Kind == "" {
		return nil, invalidArg("Kind is required")
	}
	if req.Xref == "" {
		return nil, invalidArg("Xref is required")
	}
	var job ReportJob
	path := fmt.Sprintf("/api/v1/trees/%d/reports", req.TreeID)
	if err := rc.client.post(ctx, path, req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Status returns the job for a handle.
// GET /api/v1/reports/{handle}
func (rc *ReportsClient) Status(ctx context.Context, handle string) (*ReportJob, error) {
	if handle == "" {
		return nil, invalidArg("handle is required")
	}
	var job ReportJob
	if err := rc.client.get(ctx, "/api/v1/reports/"+url.PathEscape(handle), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// ErrReportPending is returned by Download while the job has not finished.
var ErrReportPending = errors.New("webtrees: report is still being generated")

// Download fetches a finished report's bytes. Pending jobs return
// ErrReportPending; failed ones surface the failure reason as an APIError.
// GET /api/v1/reports/{handle}/download
func (rc *ReportsClient) Download(ctx context.Context, handle string) (data []byte, contentType string, err error) {
	if handle == "" {
		return nil, "", invalidArg("handle is required")
	}
	data, contentType, status, err := rc.client.doRaw(ctx, http.MethodGet, "/api/v1/reports/"+url.PathEscape(handle)+"/download", nil)
	if err != nil {
		return nil, "", err
	}
	if status == http.StatusAccepted {
		return nil, "", ErrReportPending
	}
	return data, contentType, nil
}

// Wait polls Status until the job finishes or ctx expires. interval zero
// defaults to two seconds.
func (rc *ReportsClient) Wait(ctx context.Context, handle string, interval time.Duration) (*ReportJob, error) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := rc.Status(ctx, handle)
		if err != nil {
			return nil, err
		}
		if job.Status != ReportPending {
			return job, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
