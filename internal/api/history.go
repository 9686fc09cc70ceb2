package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"canto/internal/model"
	"canto/internal/repository"
	"canto/internal/utils"
)

// listTranslations handles GET /api/v1/translations
func (h *Handler) listTranslations(c *gin.Context) {
	if h.opts.Repository == nil {
		utils.Error(c, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	// Parse pagination parameters
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100 // Max limit
	}

	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	requests, err := h.opts.Repository.ListRecent(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list translation history", zap.Error(err))
		utils.Error(c, http.StatusInternalServerError, "failed to retrieve history")
		return
	}

	items := make([]gin.H, 0, len(requests))
	for _, req := range requests {
		items = append(items, summarize(req))
	}

	utils.Success(c, gin.H{
		"items":  items,
		"limit":  limit,
		"offset": offset,
		"count":  len(items),
	})
}

func summarize(req model.TranslationRequest) gin.H {
	item := gin.H{
		"id":              req.ID.String(),
		"created_at":      req.CreatedAt,
		"status":          req.Status,
		"input_language":  req.SourceLanguage,
		"output_language": req.TargetLanguage,
		"provider":        req.Provider,
	}

	// Add transcript preview (first 100 runes)
	if req.Transcript != nil && *req.Transcript != "" {
		transcript := []rune(*req.Transcript)
		if len(transcript) > 100 {
			item["transcript_preview"] = string(transcript[:100]) + "..."
		} else {
			item["transcript_preview"] = string(transcript)
		}
	}
	if req.FailedStage != nil {
		item["failed_stage"] = *req.FailedStage
	}
	if req.ProcessingTimeMs != nil {
		item["processing_time_ms"] = *req.ProcessingTimeMs
	}
	return item
}

// getTranslation handles GET /api/v1/translations/:id
func (h *Handler) getTranslation(c *gin.Context) {
	if h.opts.Repository == nil {
		utils.Error(c, http.StatusServiceUnavailable, "history is not enabled")
		return
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "invalid id format")
		return
	}

	req, err := h.opts.Repository.GetByID(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		utils.Error(c, http.StatusNotFound, "translation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get translation", zap.String("id", id.String()), zap.Error(err))
		utils.Error(c, http.StatusInternalServerError, "failed to retrieve translation")
		return
	}

	utils.Success(c, gin.H{"translation": req})
}
