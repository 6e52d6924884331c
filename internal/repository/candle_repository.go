package repository

import (
	"context"

	"signal-desk/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const createArchiveTable = `
CREATE TABLE IF NOT EXISTS kline_archive (
    symbol      TEXT             NOT NULL,
    interval    TEXT             NOT NULL,
    open_time   BIGINT           NOT NULL,
    open        DOUBLE PRECISION NOT NULL,
    high        DOUBLE PRECISION NOT NULL,
    low         DOUBLE PRECISION NOT NULL,
    close       DOUBLE PRECISION NOT NULL,
    volume      DOUBLE PRECISION NOT NULL,
    fetched_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW(),
    PRIMARY KEY (symbol, interval, open_time)
);

CREATE INDEX IF NOT EXISTS idx_kline_archive_symbol_interval_time
    ON kline_archive (symbol, interval, open_time DESC);
`

const upsertArchivedCandle = `
INSERT INTO kline_archive (symbol, interval, open_time, open, high, low, close, volume, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
ON CONFLICT (symbol, interval, open_time) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    fetched_at = EXCLUDED.fetched_at`

type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// ArchiveCoverage summarises what the archive holds for one symbol and
// interval.
type ArchiveCoverage struct {
	Symbol    string `json:"symbol"`
	Interval  string `json:"interval"`
	Candles   int64  `json:"candles"`
	FirstOpen int64  `json:"first_open"`
	LastOpen  int64  `json:"last_open"`
}

// CandleRepository persists raw klines so analyses can still run when the
// exchange is unreachable.
type CandleRepository struct {
	pool   PgxPool
	tracer trace.Tracer
}

func NewCandleRepository(pool PgxPool, tracer trace.Tracer) *CandleRepository {
	return &CandleRepository{pool: pool, tracer: tracer}
}

func (r *CandleRepository) RunMigrations(ctx context.Context) error {
	_, span := r.tracer.Start(ctx, "candle-repo.run-migrations")
	defer span.End()

	_, err := r.pool.Exec(ctx, createArchiveTable)
	return err
}

func (r *CandleRepository) UpsertCandles(ctx context.Context, symbol, interval string, candles domain.Series) error {
	if len(candles) == 0 {
		return nil
	}

	_, span := r.tracer.Start(ctx, "candle-repo.upsert-candles")
	defer span.End()
	span.SetAttributes(attribute.String("symbol", symbol), attribute.Int("candles", len(candles)))

	batch := &pgx.Batch{}
	for _, c := range candles {
		batch.Queue(upsertArchivedCandle,
			symbol, interval, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range candles {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// GetCandles returns up to limit of the most recent archived candles in
// chronological order.
func (r *CandleRepository) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]*domain.ArchivedCandle, error) {
	_, span := r.tracer.Start(ctx, "candle-repo.get-candles")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, interval, open_time, open, high, low, close, volume
		 FROM (
		     SELECT symbol, interval, open_time, open, high, low, close, volume
		     FROM kline_archive
		     WHERE symbol = $1 AND interval = $2
		     ORDER BY open_time DESC
		     LIMIT $3
		 ) recent
		 ORDER BY open_time ASC`,
		symbol, interval, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candles []*domain.ArchivedCandle
	for rows.Next() {
		c := &domain.ArchivedCandle{}
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, err
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

func (r *CandleRepository) Coverage(ctx context.Context) ([]ArchiveCoverage, error) {
	_, span := r.tracer.Start(ctx, "candle-repo.coverage")
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT symbol, interval, COUNT(*), MIN(open_time), MAX(open_time)
		 FROM kline_archive
		 GROUP BY symbol, interval
		 ORDER BY symbol, interval`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArchiveCoverage
	for rows.Next() {
		var c ArchiveCoverage
		if err := rows.Scan(&c.Symbol, &c.Interval, &c.Candles, &c.FirstOpen, &c.LastOpen); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
