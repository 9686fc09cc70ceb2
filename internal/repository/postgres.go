package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"canto/internal/model"
)

type postgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sql.DB) TranslationRepository {
	return &postgresRepository{
		db: db,
	}
}

const selectColumns = `
	id, source_language, target_language, provider, filename, audio_size_bytes,
	converted, recognized, transcript, fallback, voice, transcript_url, audio_url,
	status, failed_stage, error_message, processing_time_ms, created_at`

// Create creates a new translation request record
func (r *postgresRepository) Create(ctx context.Context, req *model.TranslationRequest) error {
	query := `
		INSERT INTO translation_requests (` + selectColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		req.ID,
		req.SourceLanguage,
		req.TargetLanguage,
		req.Provider,
		req.Filename,
		req.AudioSizeBytes,
		req.Converted,
		req.Recognized,
		req.Transcript,
		req.Fallback,
		req.Voice,
		req.TranscriptURL,
		req.AudioURL,
		req.Status,
		req.FailedStage,
		req.ErrorMessage,
		req.ProcessingTimeMs,
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create translation request: %w", err)
	}

	return nil
}

// UpdateResult updates the pipeline outcome
func (r *postgresRepository) UpdateResult(ctx context.Context, req *model.TranslationRequest) error {
	query := `
		UPDATE translation_requests
		SET
			status = COALESCE(NULLIF($1, ''), status),
			converted = $2,
			fallback = $3,
			recognized = COALESCE($4, recognized),
			transcript = COALESCE($5, transcript),
			voice = COALESCE($6, voice),
			transcript_url = COALESCE($7, transcript_url),
			audio_url = COALESCE($8, audio_url),
			failed_stage = COALESCE($9, failed_stage),
			error_message = COALESCE($10, error_message),
			processing_time_ms = COALESCE($11, processing_time_ms),
			audio_size_bytes = COALESCE($12, audio_size_bytes)
		WHERE id = $13
	`

	res, err := r.db.ExecContext(ctx, query,
		req.Status,
		req.Converted,
		req.Fallback,
		req.Recognized,
		req.Transcript,
		req.Voice,
		req.TranscriptURL,
		req.AudioURL,
		req.FailedStage,
		req.ErrorMessage,
		req.ProcessingTimeMs,
		req.AudioSizeBytes,
		req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update translation request: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to update %s: %w", req.ID, ErrNotFound)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*model.TranslationRequest, error) {
	var req model.TranslationRequest
	var createdAt time.Time

	err := row.Scan(
		&req.ID,
		&req.SourceLanguage,
		&req.TargetLanguage,
		&req.Provider,
		&req.Filename,
		&req.AudioSizeBytes,
		&req.Converted,
		&req.Recognized,
		&req.Transcript,
		&req.Fallback,
		&req.Voice,
		&req.TranscriptURL,
		&req.AudioURL,
		&req.Status,
		&req.FailedStage,
		&req.ErrorMessage,
		&req.ProcessingTimeMs,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}
	req.CreatedAt = createdAt
	return &req, nil
}

// GetByID retrieves a translation request by ID
func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.TranslationRequest, error) {
	query := `SELECT ` + selectColumns + ` FROM translation_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get translation request: %w", err)
	}
	return req, nil
}

// ListRecent retrieves translation requests with pagination, newest first
func (r *postgresRepository) ListRecent(ctx context.Context, limit, offset int) ([]model.TranslationRequest, error) {
	query := `SELECT ` + selectColumns + `
		FROM translation_requests
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query translation requests: %w", err)
	}
	defer rows.Close()

	requests := []model.TranslationRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan translation request: %w", err)
		}
		requests = append(requests, *req)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return requests, nil
}
