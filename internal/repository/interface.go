package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"canto/internal/model"
)

var ErrNotFound = errors.New("translation request not found")

// TranslationRepository defines the interface for translation history access
type TranslationRepository interface {
	// Create creates a new translation request record
	Create(ctx context.Context, req *model.TranslationRequest) error

	// UpdateResult updates the outcome (transcript, voice, status, error, etc.).
	// Nil fields leave the stored value untouched.
	UpdateResult(ctx context.Context, req *model.TranslationRequest) error

	// GetByID retrieves a translation request by ID
	GetByID(ctx context.Context, id uuid.UUID) (*model.TranslationRequest, error)

	// ListRecent retrieves translation requests, newest first
	ListRecent(ctx context.Context, limit, offset int) ([]model.TranslationRequest, error)
}
