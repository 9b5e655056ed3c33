package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"arbiter/internal/assessment"
	id "arbiter/pkg/domain"
	dErrors "arbiter/pkg/domain-errors"
)

// PostgresArchive persists assessments in a single table: the full document
// as JSONB plus the columns the read API filters and orders on.
type PostgresArchive struct {
	pool *pgxpool.Pool
}

const createAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
	request_id UUID PRIMARY KEY,
	subject_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	recorded   BOOLEAN NOT NULL,
	document   JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS assessments_subject_idx
	ON assessments (subject_id, created_at DESC);`

// NewPostgresArchive connects, verifies the connection, and ensures the
// schema exists.
func NewPostgresArchive(ctx context.Context, dsn string) (*PostgresArchive, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid postgres dsn")
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "postgres pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "postgres ping")
	}
	if _, err := pool.Exec(ctx, createAssessments); err != nil {
		pool.Close()
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "postgres schema")
	}
	return &PostgresArchive{pool: pool}, nil
}

func (s *PostgresArchive) Save(ctx context.Context, a *assessment.RiskAssessment) error {
	doc, err := json.Marshal(a)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "encode assessment")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO assessments (request_id, subject_id, created_at, recorded, document)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (request_id) DO UPDATE
			SET recorded = EXCLUDED.recorded, document = EXCLUDED.document
	`, a.RequestID.String(), a.SubjectID.String(), a.CreatedAt, a.Recording.Recorded, doc)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "save assessment")
	}
	return nil
}

func (s *PostgresArchive) Get(ctx context.Context, requestID id.RequestID) (*assessment.RiskAssessment, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT document FROM assessments WHERE request_id = $1`,
		requestID.String(),
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "load assessment")
	}
	return decodeAssessment(doc)
}

func (s *PostgresArchive) ListBySubject(ctx context.Context, subjectID id.SubjectID, limit int) ([]*assessment.RiskAssessment, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT document FROM assessments
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, subjectID.String(), limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list assessments")
	}
	defer rows.Close()

	var out []*assessment.RiskAssessment
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "scan assessment")
		}
		a, err := decodeAssessment(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnavailable, "list assessments")
	}
	return out, nil
}

// Close releases the connection pool.
func (s *PostgresArchive) Close() {
	s.pool.Close()
}

func decodeAssessment(doc []byte) (*assessment.RiskAssessment, error) {
	var a assessment.RiskAssessment
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "corrupt archived assessment")
	}
	return &a, nil
}
