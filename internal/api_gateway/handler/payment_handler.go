package handler

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/fsp-disbursement/internal/api_gateway/middleware"
	"github.com/fsp-disbursement/internal/api_gateway/service"
	"github.com/fsp-disbursement/internal/domain/job"
	"github.com/fsp-disbursement/internal/domain/shared"
	"github.com/gin-gonic/gin"
)

// PaymentHandler handles HTTP requests that start or retry payments
type PaymentHandler struct {
	paymentService service.PaymentService
	providers      map[shared.ProviderName]struct{}
	logger         *slog.Logger
}

// NewPaymentHandler creates a new payment handler accepting batches for the given providers
func NewPaymentHandler(logger *slog.Logger, paymentService service.PaymentService, providers []shared.ProviderName) *PaymentHandler {
	known := make(map[shared.ProviderName]struct{}, len(providers))
	for _, p := range providers {
		known[p] = struct{}{}
	}
	return &PaymentHandler{
		paymentService: paymentService,
		providers:      known,
		logger:         logger,
	}
}

// EnqueueBatch queues one job per transfer of the batch
func (h *PaymentHandler) EnqueueBatch(c *gin.Context) {
	var req EnqueueBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	provider := shared.ParseProviderName(req.Provider)
	if _, ok := h.providers[provider]; !ok {
		h.logger.Warn("Unknown provider", "provider", req.Provider)
		RespondUnprocessable(c, "Unknown provider: "+req.Provider)
		return
	}

	batch := job.BatchContext{
		ProgramID:        req.ProgramID,
		PaymentNumber:    req.PaymentNumber,
		Provider:         provider,
		ProviderConfigID: req.ProviderConfigID,
		UserID:           req.UserID,
		CorrelationID:    middleware.GetCorrelationID(c),
	}
	items := make([]job.TransferRequest, 0, len(req.Transfers))
	for _, t := range req.Transfers {
		items = append(items, job.TransferRequest{
			ReferenceID:    t.ReferenceID,
			Amount:         t.Amount,
			Destination:    t.Destination,
			ProviderParams: t.ProviderParams,
		})
	}

	result, err := h.paymentService.EnqueueBatch(c.Request.Context(), batch, items)
	if err != nil {
		if errors.Is(err, service.ErrEmptyBatch) {
			RespondBadRequest(c, err.Error())
			return
		}
		h.logger.Error("Failed to enqueue batch", "program_id", req.ProgramID, "error", err)
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, mapBatchResult(result))
}

// RetryFailed re-queues the failed transfers of one payment
func (h *PaymentHandler) RetryFailed(c *gin.Context) {
	programID, err := strconv.ParseInt(c.Param("programId"), 10, 64)
	if err != nil || programID <= 0 {
		RespondBadRequest(c, "Invalid program ID")
		return
	}
	paymentNumber, err := strconv.Atoi(c.Param("paymentNumber"))
	if err != nil || paymentNumber <= 0 {
		RespondBadRequest(c, "Invalid payment number")
		return
	}

	var req RetryPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	result, err := h.paymentService.RetryFailed(c.Request.Context(), programID, paymentNumber, req.UserID, middleware.GetCorrelationID(c))
	if err != nil {
		if errors.Is(err, service.ErrRetryWindowClosed) {
			RespondConflict(c, err.Error())
			return
		}
		h.logger.Error("Failed to retry payment",
			"program_id", programID,
			"payment_number", paymentNumber,
			"error", err,
		)
		RespondInternalError(c)
		return
	}

	RespondAccepted(c, mapBatchResult(result))
}

func mapBatchResult(result *service.BatchResult) BatchResponse {
	return BatchResponse{
		Accepted:      result.Accepted,
		NotApplicable: result.NotApplicable,
		Queue:         result.Queue,
	}
}
