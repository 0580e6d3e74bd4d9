package main

import (
	"context"
	"time"

	"github.com/mirono/webtrees/internal/application/auth"
	"github.com/mirono/webtrees/internal/application/importexport"
	"github.com/mirono/webtrees/internal/application/reporting"
	"github.com/mirono/webtrees/internal/application/users"
	"github.com/mirono/webtrees/internal/domain/gedcom"
	"github.com/mirono/webtrees/internal/domain/record"
	"github.com/mirono/webtrees/internal/domain/report"
	"github.com/mirono/webtrees/internal/infrastructure/database/neo4j"
	"github.com/mirono/webtrees/internal/infrastructure/database/postgres"
	"github.com/mirono/webtrees/internal/infrastructure/database/redis"
	"github.com/mirono/webtrees/internal/infrastructure/messaging/kafka"
	"github.com/mirono/webtrees/internal/infrastructure/render/html"
	"github.com/mirono/webtrees/internal/infrastructure/render/pdf"
	"github.com/mirono/webtrees/internal/infrastructure/search/opensearch"
	"github.com/mirono/webtrees/pkg/errors"
)

const eventSource = "apiserver"

// bus publishes enveloped events. All application-layer Events interfaces
// are satisfied by thin adapters over it, keeping Kafka out of the services.
type bus struct {
	producer *kafka.Producer
}

func (b *bus) publish(ctx context.Context, topic, eventType string, payload interface{}) error {
	env, err := kafka.NewEventEnvelope(eventType, eventSource, payload)
	if err != nil {
		return err
	}
	return b.producer.PublishEnvelope(ctx, topic, env)
}

// authEvents satisfies auth.Events.
type authEvents struct{ bus *bus }

func (e *authEvents) Audit(ctx context.Context, a *auth.AuditEvent) error {
	return e.bus.publish(ctx, kafka.TopicAuditLog, "audit.logged", kafka.AuditLogPayload{
		Action:   a.Action,
		ActorID:  a.ActorID,
		Subject:  a.Subject,
		ClientIP: a.ClientIP,
		Detail:   a.Detail,
		At:       time.Now().UTC(),
	})
}

func (e *authEvents) Notify(ctx context.Context, n *auth.Notification) error {
	return e.bus.publish(ctx, kafka.TopicNotificationSend, "notification.requested", kafka.NotificationPayload{
		Template:    n.Template,
		RecipientID: n.RecipientID,
		Email:       n.Email,
		Variables:   n.Variables,
	})
}

// usersEvents satisfies users.Events.
type usersEvents struct{ bus *bus }

func (e *usersEvents) Audit(ctx context.Context, a *users.AuditEvent) error {
	return e.bus.publish(ctx, kafka.TopicAuditLog, "audit.logged", kafka.AuditLogPayload{
		Action:   a.Action,
		ActorID:  a.ActorID,
		Subject:  a.Subject,
		ClientIP: a.ClientIP,
		Detail:   a.Detail,
		At:       time.Now().UTC(),
	})
}

func (e *usersEvents) Notify(ctx context.Context, n *users.Notification) error {
	return e.bus.publish(ctx, kafka.TopicNotificationSend, "notification.requested", kafka.NotificationPayload{
		Template:    n.Template,
		RecipientID: n.RecipientID,
		Email:       n.Email,
		Variables:   n.Variables,
	})
}

// searchEvents satisfies genealogy.Events. Index mutations travel through
// the bus so the worker applies them off the request path.
type searchEvents struct{ bus *bus }

func (e *searchEvents) IndexRecord(ctx context.Context, treeID int64, xref string, typ gedcom.RecordType) error {
	return e.bus.publish(ctx, kafka.TopicSearchIndex, "search.index", kafka.SearchIndexPayload{
		Op:         "index",
		TreeID:     treeID,
		Xref:       xref,
		RecordType: string(typ),
	})
}

func (e *searchEvents) DeindexRecord(ctx context.Context, treeID int64, xref string, typ gedcom.RecordType) error {
	return e.bus.publish(ctx, kafka.TopicSearchIndex, "search.index", kafka.SearchIndexPayload{
		Op:         "delete",
		TreeID:     treeID,
		Xref:       xref,
		RecordType: string(typ),
	})
}

func (e *searchEvents) ReindexTree(ctx context.Context, treeID int64) error {
	return e.bus.publish(ctx, kafka.TopicSearchIndex, "search.index", kafka.SearchIndexPayload{
		Op:     "reindex-tree",
		TreeID: treeID,
	})
}

// importEvents satisfies importexport.Events.
type importEvents struct{ bus *bus }

func (e *importEvents) ImportCompleted(ctx context.Context, a importexport.Announcement) error {
	return e.bus.publish(ctx, kafka.TopicGedcomImported, "gedcom.imported", kafka.GedcomImportedPayload{
		TreeID:     a.TreeID,
		TreeName:   a.TreeName,
		Source:     a.Source,
		Counts:     a.Counts,
		ImportedAt: time.Now().UTC(),
	})
}

// reportEvents satisfies reporting.Events.
type reportEvents struct{ bus *bus }

func (e *reportEvents) ReportRequested(ctx context.Context, job *reporting.Job) error {
	return e.bus.publish(ctx, kafka.TopicReportGenerate, "report.requested", kafka.ReportGeneratePayload{
		Handle:      job.Handle,
		TreeID:      job.TreeID,
		Kind:        string(job.Kind),
		Format:      string(job.Format),
		Xref:        job.Xref,
		Generations: job.Generations,
		RequestedBy: job.RequestedBy,
	})
}

func (e *reportEvents) ReportFinished(ctx context.Context, job *reporting.Job) error {
	return e.bus.publish(ctx, kafka.TopicReportGenerated, "report.generated", kafka.ReportGeneratedPayload{
		Handle:     job.Handle,
		Status:     string(job.Status),
		ObjectKey:  job.ObjectKey,
		Reason:     job.Reason,
		FinishedAt: job.FinishedAt,
	})
}

// recordLoader satisfies reporting.Loader over the record repository.
type recordLoader struct {
	records record.RecordRepository
}

func (l *recordLoader) Record(ctx context.Context, treeID int64, xref string) (*gedcom.Record, error) {
	rec, err := l.records.Get(ctx, treeID, xref)
	if err != nil {
		return nil, err
	}
	return rec.Parse()
}

// rendererFactory builds the output backend for a report format.
func rendererFactory(doc *report.Document, format report.Format) (report.Renderer, error) {
	switch format {
	case report.FormatPDF:
		return pdf.New(doc), nil
	case report.FormatHTML:
		return html.New(doc), nil
	default:
		return nil, errors.New(errors.ErrCodeValidation, "unsupported report format").WithDetail(string(format))
	}
}

// Health checker adapters for the readiness probe.

type postgresHealth struct{ conn *postgres.Connection }

func (h *postgresHealth) Name() string                    { return "postgres" }
func (h *postgresHealth) Check(ctx context.Context) error { return h.conn.HealthCheck(ctx) }

type redisHealth struct{ client *redis.Client }

func (h *redisHealth) Name() string                    { return "redis" }
func (h *redisHealth) Check(ctx context.Context) error { return h.client.Ping(ctx) }

type opensearchHealth struct{ client *opensearch.Client }

func (h *opensearchHealth) Name() string                    { return "opensearch" }
func (h *opensearchHealth) Check(ctx context.Context) error { return h.client.Ping(ctx) }

type neo4jHealth struct{ driver *neo4j.Driver }

func (h *neo4jHealth) Name() string                    { return "neo4j" }
func (h *neo4jHealth) Check(ctx context.Context) error { return h.driver.HealthCheck(ctx) }
