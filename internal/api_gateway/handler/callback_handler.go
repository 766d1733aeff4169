package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/fsp-disbursement/internal/api_gateway/middleware"
	"github.com/fsp-disbursement/internal/api_gateway/service"
	"github.com/fsp-disbursement/internal/domain/callback"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/fsp-disbursement/internal/fsp"
	"github.com/gin-gonic/gin"
)

// CallbackHandler receives provider webhooks. Authentication happens in middleware.
type CallbackHandler struct {
	callbackService service.CallbackService
	logger          *slog.Logger
}

// NewCallbackHandler creates a new callback handler
func NewCallbackHandler(logger *slog.Logger, callbackService service.CallbackService) *CallbackHandler {
	return &CallbackHandler{
		callbackService: callbackService,
		logger:          logger,
	}
}

// Receive applies the status pushed by a provider
func (h *CallbackHandler) Receive(c *gin.Context) {
	provider := shared.ParseProviderName(c.Param("provider"))
	kind := c.Param("kind")

	body, err := c.GetRawData()
	if err != nil {
		RespondBadRequest(c, "Unreadable request body")
		return
	}

	result, err := h.callbackService.HandleCallback(c.Request.Context(), provider, kind, body, middleware.GetCorrelationID(c))
	switch {
	case err == nil:
		RespondOK(c, CallbackResponse{Result: string(result)})
	case errors.Is(err, fsp.ErrInvalidCallback) || result == callback.ResultInvalid:
		RespondBadRequest(c, err.Error())
	case errors.Is(err, service.ErrUnattributable), errors.Is(err, service.ErrUnknownReference):
		RespondNotFound(c, err.Error())
	default:
		h.logger.Error("Failed to handle callback", "provider", provider, "kind", kind, "error", err)
		RespondWithError(c, http.StatusInternalServerError, "CALLBACK_NOT_APPLIED", "Callback could not be applied")
	}
}
