package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/fsp-disbursement/internal/api_gateway/service"
	"github.com/fsp-disbursement/internal/domain/callback"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/queue"
	"github.com/gin-gonic/gin"
)

// CallbackLog reads the callback audit trail
type CallbackLog interface {
	ListByReference(ctx context.Context, provider shared.ProviderName, reference string, limit int) ([]*callback.Entry, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	purger    service.QueuePurger
	callbacks CallbackLog
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(logger *slog.Logger, purger service.QueuePurger, callbacks CallbackLog) *AdminHandler {
	return &AdminHandler{
		purger:    purger,
		callbacks: callbacks,
		logger:    logger,
	}
}

// PurgeQueues drops every queued job and clears the rate limiter
func (h *AdminHandler) PurgeQueues(c *gin.Context) {
	result, err := h.purger.PurgeAll(c.Request.Context())
	if err != nil {
		if errors.Is(err, queue.ErrPurgeForbidden) {
			RespondForbidden(c, err.Error())
			return
		}
		h.logger.Error("Failed to purge queues", "error", err)
		RespondInternalError(c)
		return
	}

	RespondOK(c, PurgeResponse{
		Queues:          result.Queues,
		RateLimiterKeys: result.RateLimiterKeys,
	})
}

// ListCallbacks returns the audited callbacks of one provider reference, newest first
func (h *AdminHandler) ListCallbacks(c *gin.Context) {
	var params CallbackLogParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	provider := shared.ParseProviderName(c.Param("provider"))
	reference := c.Param("reference")

	entries, err := h.callbacks.ListByReference(c.Request.Context(), provider, reference, params.Limit)
	if err != nil {
		h.logger.Error("Failed to list callbacks", "provider", provider, "reference", reference, "error", err)
		RespondInternalError(c)
		return
	}

	response := make([]CallbackEntryResponse, 0, len(entries))
	for _, e := range entries {
		response = append(response, CallbackEntryResponse{
			ID:             e.ID.String(),
			Kind:           e.Kind,
			Reference:      e.Reference,
			ProviderStatus: e.ProviderStatus,
			Result:         string(e.Result),
			Detail:         e.Detail,
			CorrelationID:  e.CorrelationID,
			ReceivedAt:     e.ReceivedAt.Format(time.RFC3339),
		})
	}
	RespondOK(c, response)
}
