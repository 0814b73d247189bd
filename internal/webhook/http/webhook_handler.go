// Package http provides the HTTP handler for inbound oracle notifications.
package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/allisson/escrowd/internal/errors"
	"github.com/allisson/escrowd/internal/httputil"
	"github.com/allisson/escrowd/internal/signing"
	"github.com/allisson/escrowd/internal/webhook/service"
	"github.com/allisson/escrowd/internal/webhook/usecase"
)

// WebhookHandler handles HTTP requests delivering oracle notifications.
type WebhookHandler struct {
	incomingUseCase usecase.IncomingUseCase
	signer          signing.Signer
	logger          *slog.Logger
}

// NewWebhookHandler creates a new webhook handler. A nil signer disables
// signature verification on inbound requests.
func NewWebhookHandler(
	incomingUseCase usecase.IncomingUseCase,
	signer signing.Signer,
	logger *slog.Logger,
) *WebhookHandler {
	return &WebhookHandler{
		incomingUseCase: incomingUseCase,
		signer:          signer,
		logger:          logger,
	}
}

// ReceiveResponse acknowledges a recorded notification.
type ReceiveResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Receive handles POST /v1/webhook. The signature is verified over the raw
// request body before any parsing, so a tampered payload is rejected even if
// it is valid JSON.
func (h *WebhookHandler) Receive(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if h.signer != nil {
		sig := c.GetHeader(service.SignatureHeader)
		if !h.signer.Verify(body, sig) {
			if h.logger != nil {
				h.logger.Warn("inbound webhook signature verification failed",
					slog.String("client_ip", c.ClientIP()))
			}
			httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
			return
		}
	}

	var input usecase.RecordIncomingInput
	if err := json.Unmarshal(body, &input); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	incoming, err := h.incomingUseCase.Record(c.Request.Context(), input)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, ReceiveResponse{
		ID:     incoming.ID.String(),
		Status: string(incoming.Status),
	})
}
