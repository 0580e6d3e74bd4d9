package repositories

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	driver "github.com/mirono/webtrees/internal/infrastructure/database/neo4j"
)

// cypherCall records one statement the repository ran.
type cypherCall struct {
	Cypher string
	Params map[string]any
}

// stubResult implements driver.Result over canned records.
type stubResult struct {
	records []*neo4j.Record
	idx     int
	current *neo4j.Record
	err     error
}

func (r *stubResult) Next(ctx context.Context) bool {
	if r.err != nil || r.idx >= len(r.records) {
		return false
	}
	r.current = r.records[r.idx]
	r.idx++
	return true
}

func (r *stubResult) Record() *neo4j.Record { return r.current }

func (r *stubResult) Err() error { return r.err }

func (r *stubResult) Consume(ctx context.Context) (neo4j.ResultSummary, error) { return nil, nil }

// queuedRun is the scripted outcome of one Run call.
type queuedRun struct {
	result *stubResult
	err    error
}

// stubTransaction hands out queued results in order and records every call.
// When the queue is exhausted it returns empty results, so mutation-only
// tests don't have to script each Consume.
type stubTransaction struct {
	calls []cypherCall
	queue []queuedRun
}

func (t *stubTransaction) Run(ctx context.Context, cypher string, params map[string]any) (driver.Result, error) {
	t.calls = append(t.calls, cypherCall{Cypher: cypher, Params: params})
	if len(t.queue) == 0 {
		return &stubResult{}, nil
	}
	next := t.queue[0]
	t.queue = t.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	return next.result, nil
}

func (t *stubTransaction) queueRecords(records ...*neo4j.Record) {
	t.queue = append(t.queue, queuedRun{result: &stubResult{records: records}})
}

func (t *stubTransaction) queueError(err error) {
	t.queue = append(t.queue, queuedRun{err: err})
}

// stubQuerier implements driver.Querier, running all work against one
// scripted transaction and recording the access mode of each call.
type stubQuerier struct {
	tx    *stubTransaction
	modes []string
}

func (q *stubQuerier) ExecuteRead(ctx context.Context, work driver.TransactionWork) (interface{}, error) {
	q.modes = append(q.modes, "read")
	return work(q.tx)
}

func (q *stubQuerier) ExecuteWrite(ctx context.Context, work driver.TransactionWork) (interface{}, error) {
	q.modes = append(q.modes, "write")
	return work(q.tx)
}

func newStubQuerier() (*stubQuerier, *stubTransaction) {
	tx := &stubTransaction{}
	return &stubQuerier{tx: tx}, tx
}

func newRecord(keys []string, values []any) *neo4j.Record {
	return &neo4j.Record{Keys: keys, Values: values}
}

func personValue(xref, name, sex string, birthYear int64) map[string]interface{} {
	return map[string]interface{}{
		"xref":       xref,
		"name":       name,
		"sex":        sex,
		"birth_year": birthYear,
	}
}

func stepValue(relType, from, to string) map[string]interface{} {
	return map[string]interface{}{
		"type": relType,
		"from": from,
		"to":   to,
	}
}
