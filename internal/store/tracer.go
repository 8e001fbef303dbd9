package store

import (
	"context"
	"time"

	"daylog/internal/platform/logger"
)

// QueryEvent describes one executed statement, mirroring
// ryansgi-swearjar/backend/internal/platform/store/pg's QueryEvent shape
// generalized from pgx to database/sql
type QueryEvent struct {
	SQL       string
	Args      []any
	ElapsedUS int64
	Err       error
	Slow      bool
}

// QueryTracer receives a QueryEvent after every Exec/Query/QueryRow
type QueryTracer interface {
	OnQuery(ctx context.Context, ev QueryEvent)
}

// zlTracer logs query events through the shared zerolog logger, matching
// pg.Tracer's "print SQL at debug when LogSQL, warn when slow" behavior
type zlTracer struct {
	logSQL bool
}

// newTracer returns a QueryTracer that logs through logger.C(ctx)
func newTracer(logSQL bool) QueryTracer { return &zlTracer{logSQL: logSQL} }

func (t *zlTracer) OnQuery(ctx context.Context, ev QueryEvent) {
	log := logger.C(ctx)
	switch {
	case ev.Err != nil:
		log.Error().Err(ev.Err).Str("sql", ev.SQL).Int64("elapsed_us", ev.ElapsedUS).Msg("store: query failed")
	case ev.Slow:
		log.Warn().Str("sql", ev.SQL).Int64("elapsed_us", ev.ElapsedUS).Msg("store: slow query")
	case t.logSQL:
		log.Debug().Str("sql", ev.SQL).Int64("elapsed_us", ev.ElapsedUS).Msg("store: query")
	}
}

func (t *zlTracer) emit(ctx context.Context, sql string, args []any, start time.Time, slowMs int, err error) {
	elapsedUS := time.Since(start).Microseconds()
	slow := slowMs > 0 && elapsedUS >= int64(slowMs)*1000
	t.OnQuery(ctx, QueryEvent{SQL: sql, Args: args, ElapsedUS: elapsedUS, Err: err, Slow: slow})
}
