package db

import (
	"context"
	"sort"

	"github.com/pgscope/pgscope/o11y"
)

// Span starts a span for one named query against entity. Its duration is recorded
// as the db.query timing, tagged with the entity, the query name and the result.
func Span(ctx context.Context, entity, queryName string) (context.Context, o11y.Span) {
	return startSpan(ctx, entity+"."+queryName, "db.query", map[string]string{
		"db.entity":     entity,
		"db.query_name": queryName,
	})
}

// sessionSpan covers one step of a Session's life, timed as db.session.
func sessionSpan(ctx context.Context, step string) (context.Context, o11y.Span) {
	return startSpan(ctx, "session."+step, "db.session", map[string]string{
		"db.session_step": step,
	})
}

func startSpan(ctx context.Context, name, metric string, fields map[string]string) (context.Context, o11y.Span) {
	ctx, span := o11y.StartSpan(ctx, "db: "+name)
	span.AddRawField("db.system", "postgresql")

	tags := make([]string, 0, len(fields)+1)
	for k, v := range fields {
		span.AddRawField(k, v)
		tags = append(tags, k)
	}
	sort.Strings(tags)
	span.RecordMetric(o11y.Timing(metric, append(tags, "result")...))
	return ctx, span
}
