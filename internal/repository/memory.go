package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"canto/internal/model"
)

type memoryRepository struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*model.TranslationRequest
}

// NewMemoryRepository creates a repository that keeps history in process
// memory. It is used when no DATABASE_URL is configured.
func NewMemoryRepository() TranslationRepository {
	return &memoryRepository{requests: make(map[uuid.UUID]*model.TranslationRequest)}
}

func (r *memoryRepository) Create(_ context.Context, req *model.TranslationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[req.ID]; exists {
		return fmt.Errorf("translation request %s already exists", req.ID)
	}
	reqCopy := *req
	r.requests[req.ID] = &reqCopy
	return nil
}

func (r *memoryRepository) UpdateResult(_ context.Context, req *model.TranslationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.requests[req.ID]
	if !ok {
		return fmt.Errorf("failed to update %s: %w", req.ID, ErrNotFound)
	}

	if req.Status != "" {
		rec.Status = req.Status
	}
	rec.Converted = req.Converted
	rec.Fallback = req.Fallback
	mergeString(&rec.Recognized, req.Recognized)
	mergeString(&rec.Transcript, req.Transcript)
	mergeString(&rec.Voice, req.Voice)
	mergeString(&rec.TranscriptURL, req.TranscriptURL)
	mergeString(&rec.AudioURL, req.AudioURL)
	mergeString(&rec.FailedStage, req.FailedStage)
	mergeString(&rec.ErrorMessage, req.ErrorMessage)
	if req.AudioSizeBytes != nil {
		v := *req.AudioSizeBytes
		rec.AudioSizeBytes = &v
	}
	if req.ProcessingTimeMs != nil {
		v := *req.ProcessingTimeMs
		rec.ProcessingTimeMs = &v
	}
	return nil
}

func (r *memoryRepository) GetByID(_ context.Context, id uuid.UUID) (*model.TranslationRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	// Return a copy to avoid race conditions
	recCopy := *rec
	return &recCopy, nil
}

func (r *memoryRepository) ListRecent(_ context.Context, limit, offset int) ([]model.TranslationRequest, error) {
	r.mu.Lock()
	all := make([]model.TranslationRequest, 0, len(r.requests))
	for _, rec := range r.requests {
		all = append(all, *rec)
	}
	r.mu.Unlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []model.TranslationRequest{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func mergeString(dst **string, src *string) {
	if src == nil {
		return
	}
	v := *src
	*dst = &v
}
