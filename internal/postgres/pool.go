// Package postgres owns pgx pool construction and query instrumentation.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/go-core/log"
)

// slowQueryThreshold controls when a completed query is logged as slow.
const slowQueryThreshold = 250 * time.Millisecond

// NewPool connects to PostgreSQL with otel query tracing and slow-query
// logging wired into every connection.
func NewPool(ctx context.Context, databaseURL string, logger log.Logger) (*pgxpool.Pool, error) {
	if logger == nil {
		logger = log.Nop()
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.ConnConfig.Tracer = &slowQueryTracer{
		inner:  otelpgx.NewTracer(otelpgx.WithTrimSQLInSpanName()),
		logger: logger,
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return pool, nil
}

// slowQueryTracer wraps the otelpgx tracer and additionally logs failed and
// slow queries.
type slowQueryTracer struct {
	inner  pgx.QueryTracer
	logger log.Logger
}

type queryStartKey struct{}

type queryStart struct {
	sql     string
	started time.Time
}

func (t *slowQueryTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	// Let the inner tracer create its span first.
	ctx = t.inner.TraceQueryStart(ctx, conn, data)
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, started: time.Now()})
}

func (t *slowQueryTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	t.inner.TraceQueryEnd(ctx, conn, data)

	qs, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	dur := time.Since(qs.started)
	switch {
	case data.Err != nil:
		t.logger.Error(ctx, data.Err, "query failed",
			"sql", qs.sql, "duration_ms", dur.Milliseconds())
	case dur >= slowQueryThreshold:
		t.logger.Warn(ctx, "slow query",
			"sql", qs.sql, "duration_ms", dur.Milliseconds())
	}
}
