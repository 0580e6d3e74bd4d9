// Package reporting generates printable genealogy reports.
//
// Generation is asynchronous. Generate validates a request, stores a
// pending job under a fresh handle and announces it; a worker picks the
// announcement up and calls Process, which loads the tree records, builds
// the report through a render backend and stores the artifact in object
// storage. Fetch streams the stored bytes back once the job is ready.
package reporting

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/internal/infrastructure/monitoring/logging"
	"github.com/mirono/webtrees/pkg/errors"
)

// ─────────────────────────────────────────────────────────────────────────────
// Report kinds
// ─────────────────────────────────────────────────────────────────────────────

// Kind selects one of the bundled report definitions.
type Kind string

const (
	// KindIndividual is a facts sheet for one person: vital events,
	// parents, spouses and children, with cited sources as footnotes.
	KindIndividual Kind = "individual"
	// KindPedigree lists a person's ancestors generation by generation
	// with their Sosa-Stradonitz numbers.
	KindPedigree Kind = "pedigree"
	// KindDescendancy lists a person's descendants as an indented,
	// d'Aboville numbered outline.
	KindDescendancy Kind = "descendancy"
)

// ParseKind validates a report kind coming in from a request.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindIndividual, KindPedigree, KindDescendancy:
		return k, nil
	default:
		return "", errors.New(errors.ErrCodeReportTypeUnknown, "unknown report kind").WithDetail(s)
	}
}

const (
	// DefaultGenerations is used when a request does not say how deep a
	// pedigree or descendancy report should go.
	DefaultGenerations = 4
	// MaxGenerations bounds the walk; a pedigree doubles per generation.
	MaxGenerations = 12
)

// ─────────────────────────────────────────────────────────────────────────────
// Jobs
// ─────────────────────────────────────────────────────────────────────────────

// Status is the lifecycle state of a report job.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Request is what a caller asks for. TreeName and RequestedBy ride along
// into the job so the worker needs no extra lookups to render the page
// header or address the completion notice.
type Request struct {
	TreeID      int64
	TreeName    string
	Kind        Kind
	Format      report.Format
	Xref        string
	Generations int
	RequestedBy string
}

// Job is one report generation tracked by handle.
type Job struct {
	Handle      string        `json:"handle"`
	TreeID      int64         `json:"tree_id"`
	TreeName    string        `json:"tree_name"`
	Kind        Kind          `json:"kind"`
	Format      report.Format `json:"format"`
	Xref        string        `json:"xref"`
	Generations int           `json:"generations"`
	RequestedBy string        `json:"requested_by,omitempty"`
	Status      Status        `json:"status"`
	ObjectKey   string        `json:"object_key,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	FinishedAt  time.Time     `json:"finished_at,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Dependencies
// ─────────────────────────────────────────────────────────────────────────────

// Loader resolves GEDCOM records of a tree by xref. Implementations return
// an error with code ErrCodeRecordNotFound when the xref does not exist.
type Loader interface {
	Record(ctx context.Context, treeID int64, xref string) (*gedcom.Record, error)
}

// JobStore persists report jobs. Get returns an error with code
// ErrCodeReportNotFound for an unknown handle.
type JobStore interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, handle string) (*Job, error)
	Update(ctx context.Context, job *Job) error
}

// ObjectStore keeps finished report artifacts.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) (data []byte, contentType string, err error)
}

// Events announces job transitions. The message bus adapter publishes
// ReportRequested where the worker listens and ReportFinished where the
// notification pipeline listens.
type Events interface {
	ReportRequested(ctx context.Context, job *Job) error
	ReportFinished(ctx context.Context, job *Job) error
}

// RendererFactory builds the output backend for a format. The command
// binaries wire the PDF and HTML renderers in.
type RendererFactory func(doc *report.Document, format report.Format) (report.Renderer, error)

// ─────────────────────────────────────────────────────────────────────────────
// Service
// ─────────────────────────────────────────────────────────────────────────────

// Service owns the report job lifecycle.
type Service struct {
	jobs       JobStore
	store      ObjectStore
	events     Events
	newRender  RendererFactory
	generators map[Kind]Generator
	log        logging.Logger
	now        func() time.Time
}

// NewService wires the report service.
func NewService(jobs JobStore, store ObjectStore, loader Loader, events Events, factory RendererFactory, log logging.Logger) *Service {
	return &Service{
		jobs:      jobs,
		store:     store,
		events:    events,
		newRender: factory,
		generators: map[Kind]Generator{
			KindIndividual:  NewIndividualReport(loader),
			KindPedigree:    NewPedigreeReport(loader),
			KindDescendancy: NewDescendancyReport(loader),
		},
		log: log.Named("reporting"),
		now: time.Now,
	}
}

// Generate validates the request, records a pending job and announces it.
// The returned job carries the handle the caller polls and fetches with.
func (s *Service) Generate(ctx context.Context, req Request) (*Job, error) {
	if _, err := ParseKind(string(req.Kind)); err != nil {
		return nil, err
	}
	if _, err := report.ParseFormat(string(req.Format)); err != nil {
		return nil, err
	}
	if req.TreeID <= 0 {
		return nil, errors.New(errors.ErrCodeValidation, "tree id is required")
	}
	if req.Xref == "" {
		return nil, errors.New(errors.ErrCodeValidation, "record xref is required")
	}
	generations := req.Generations
	if generations <= 0 {
		generations = DefaultGenerations
	}
	if generations > MaxGenerations {
		generations = MaxGenerations
	}

	job := &Job{
		Handle:      uuid.NewString(),
		TreeID:      req.TreeID,
		TreeName:    req.TreeName,
		Kind:        req.Kind,
		Format:      req.Format,
		Xref:        req.Xref,
		Generations: generations,
		RequestedBy: req.RequestedBy,
		Status:      StatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.events.ReportRequested(ctx, job); err != nil {
		return nil, err
	}
	s.log.Info("report queued",
		logging.String("handle", job.Handle),
		logging.Int64("tree_id", job.TreeID),
		logging.String("kind", string(job.Kind)),
		logging.String("format", string(job.Format)))
	return job, nil
}

// Process renders a pending job and stores the artifact. The worker calls
// it for every job announcement; a job already past pending is left alone
// so redelivered announcements are harmless.
func (s *Service) Process(ctx context.Context, handle string) error {
	job, err := s.jobs.Get(ctx, handle)
	if err != nil {
		return err
	}
	if job.Status != StatusPending {
		s.log.Debug("report already processed",
			logging.String("handle", handle),
			logging.String("status", string(job.Status)))
		return nil
	}

	data, err := s.render(ctx, job)
	if err != nil {
		job.Status = StatusFailed
		job.Reason = err.Error()
		job.FinishedAt = s.now().UTC()
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			return uerr
		}
		s.announceFinished(ctx, job)
		s.log.Error("report failed", logging.String("handle", handle), logging.Err(err))
		return err
	}

	key := "reports/" + job.Handle + job.Format.Extension()
	if err := s.store.Put(ctx, key, job.Format.MediaType(), data); err != nil {
		job.Status = StatusFailed
		job.Reason = err.Error()
		job.FinishedAt = s.now().UTC()
		if uerr := s.jobs.Update(ctx, job); uerr != nil {
			return uerr
		}
		s.announceFinished(ctx, job)
		return err
	}

	job.Status = StatusReady
	job.ObjectKey = key
	job.FinishedAt = s.now().UTC()
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}
	s.announceFinished(ctx, job)
	s.log.Info("report ready",
		logging.String("handle", handle),
		logging.String("key", key),
		logging.Int("bytes", len(data)))
	return nil
}

// Fetch returns the artifact bytes and content type for a ready job.
func (s *Service) Fetch(ctx context.Context, handle string) ([]byte, string, error) {
	job, err := s.jobs.Get(ctx, handle)
	if err != nil {
		return nil, "", err
	}
	switch job.Status {
	case StatusPending:
		return nil, "", errors.New(errors.ErrCodeReportPending, "report is still being generated").WithDetail(handle)
	case StatusFailed:
		return nil, "", errors.New(errors.ErrCodeRenderFailed, "report generation failed").WithDetail(job.Reason)
	}
	return s.store.Get(ctx, job.ObjectKey)
}

// Status returns the job for a handle.
func (s *Service) Status(ctx context.Context, handle string) (*Job, error) {
	return s.jobs.Get(ctx, handle)
}

func (s *Service) render(ctx context.Context, job *Job) ([]byte, error) {
	gen, ok := s.generators[job.Kind]
	if !ok {
		return nil, errors.New(errors.ErrCodeReportTypeUnknown, "unknown report kind").WithDetail(string(job.Kind))
	}
	doc, err := report.NewDocument(report.DefaultPageSetup())
	if err != nil {
		return nil, err
	}
	if err := registerStyles(doc); err != nil {
		return nil, err
	}
	rnd, err := s.newRender(doc, job.Format)
	if err != nil {
		return nil, err
	}
	if err := gen.Build(ctx, doc, rnd, job); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := rnd.Run(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Artifact storage is the source of truth for the result; the finished
// event only drives notifications, so a publish failure is logged and
// swallowed.
func (s *Service) announceFinished(ctx context.Context, job *Job) {
	if err := s.events.ReportFinished(ctx, job); err != nil {
		s.log.Warn("report finished event not published",
			logging.String("handle", job.Handle), logging.Err(err))
	}
}
