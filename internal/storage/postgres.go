package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ewarn/internal/config"
	"ewarn/internal/logger"
	"ewarn/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS surveillance_records (
	disease        TEXT    NOT NULL,
	province_code  TEXT    NOT NULL,
	province_name  TEXT    NOT NULL DEFAULT '',
	city_code      TEXT    NOT NULL DEFAULT '',
	city_name      TEXT    NOT NULL DEFAULT '',
	year           INT     NOT NULL,
	month          INT     NOT NULL CHECK (month BETWEEN 1 AND 12),
	status         TEXT    NOT NULL,
	endemic_status TEXT    NOT NULL DEFAULT '',
	metrics        JSONB   NOT NULL DEFAULT '{}',
	change_metrics JSONB   NOT NULL DEFAULT '{}',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (disease, province_code, city_code, year, month, status)
);
`

// Postgres is a RecordStore backed by a pgx pool
type Postgres struct {
	pool *pgxpool.Pool
}

var _ RecordStore = (*Postgres)(nil)

// NewPostgres creates the connection pool and verifies it
func NewPostgres(ctx context.Context, cfg config.PostgresConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log := logger.WithComponent("storage")
	log.Info().
		Int32("max_conns", poolConfig.MaxConns).
		Msg("connected to postgres")

	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, schema)
	return err
}

// Records returns every record of the disease ordered by period and region
func (p *Postgres) Records(ctx context.Context, disease models.Disease) ([]models.MonthlyRecord, error) {
	query := `
		SELECT province_code, province_name, city_code, city_name, year, month,
		       status, endemic_status, metrics, change_metrics
		FROM surveillance_records
		WHERE disease = $1
		ORDER BY year, month, province_code, city_code
	`

	rows, err := p.pool.Query(ctx, query, string(disease))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.MonthlyRecord
	for rows.Next() {
		var (
			rec                   models.MonthlyRecord
			status                string
			metricsRaw, changeRaw []byte
		)
		if err := rows.Scan(
			&rec.Region.ProvinceCode, &rec.Region.ProvinceName,
			&rec.Region.CityCode, &rec.Region.CityName,
			&rec.Period.Year, &rec.Period.Month,
			&status, &rec.EndemicStatus, &metricsRaw, &changeRaw,
		); err != nil {
			return nil, err
		}

		if err := json.Unmarshal(metricsRaw, &rec.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics: %w", err)
		}
		if err := json.Unmarshal(changeRaw, &rec.ChangeMetrics); err != nil {
			return nil, fmt.Errorf("decode change metrics: %w", err)
		}
		rec.Disease = disease
		rec.Status = models.Status(status)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LatestActual returns the most recent period with actual data, or nil
func (p *Postgres) LatestActual(ctx context.Context, disease models.Disease) (*models.Period, error) {
	query := `
		SELECT year, month
		FROM surveillance_records
		WHERE disease = $1 AND status = $2
		ORDER BY year DESC, month DESC
		LIMIT 1
	`

	var period models.Period
	err := p.pool.QueryRow(ctx, query, string(disease), string(models.StatusActual)).
		Scan(&period.Year, &period.Month)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &period, nil
}

// SaveRecords upserts records in one batch. Invalid records are skipped and
// the number written is returned.
func (p *Postgres) SaveRecords(ctx context.Context, disease models.Disease, records []models.MonthlyRecord) (int, error) {
	query := `
		INSERT INTO surveillance_records (disease, province_code, province_name, city_code, city_name,
			year, month, status, endemic_status, metrics, change_metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (disease, province_code, city_code, year, month, status) DO UPDATE SET
			province_name = EXCLUDED.province_name,
			city_name = EXCLUDED.city_name,
			endemic_status = EXCLUDED.endemic_status,
			metrics = EXCLUDED.metrics,
			change_metrics = EXCLUDED.change_metrics,
			updated_at = now()
	`

	batch := &pgx.Batch{}
	for i := range records {
		rec := records[i]
		rec.Normalize()
		if err := rec.Validate(); err != nil {
			continue
		}

		metricsJSON, err := json.Marshal(nonNilMetrics(rec.Metrics))
		if err != nil {
			return 0, fmt.Errorf("encode metrics: %w", err)
		}
		changeJSON, err := json.Marshal(nonNilChanges(rec.ChangeMetrics))
		if err != nil {
			return 0, fmt.Errorf("encode change metrics: %w", err)
		}

		batch.Queue(query,
			string(disease), rec.Region.ProvinceCode, rec.Region.ProvinceName,
			rec.Region.CityCode, rec.Region.CityName,
			rec.Period.Year, rec.Period.Month, string(rec.Status), rec.EndemicStatus,
			metricsJSON, changeJSON,
		)
	}

	if batch.Len() == 0 {
		return 0, nil
	}

	br := p.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return i, fmt.Errorf("upsert record %d: %w", i, err)
		}
	}
	return batch.Len(), nil
}

// Ping checks the connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the pool
func (p *Postgres) Close() {
	p.pool.Close()
}

func nonNilMetrics(m models.Metrics) models.Metrics {
	if m == nil {
		return models.Metrics{}
	}
	return m
}

func nonNilChanges(c models.ChangeMetrics) models.ChangeMetrics {
	if c == nil {
		return models.ChangeMetrics{}
	}
	return c
}
