package handler

import (
	"strings"

	"settlement-gateway/internal/adapter/http/dto"
	"settlement-gateway/internal/adapter/http/middleware"
	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/apperror"
	"settlement-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// PaymentHandler handles payment creation, lookup and PIX confirmations.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentSvc ports.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc}
}

// CreatePayment handles POST /api/v1/payments.
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}

	var req dto.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	gross, err := domain.ParseAmount(req.GrossAmount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}
	var ledgerAmount *decimal.Decimal
	if req.LedgerAmount != nil {
		amt, err := domain.ParseAmount(*req.LedgerAmount)
		if err != nil {
			response.Error(c, apperror.ErrInvalidAmount())
			return
		}
		ledgerAmount = &amt
	}

	p, err := h.paymentSvc.CreatePayment(c.Request.Context(), ports.CreatePaymentRequest{
		ID:            req.PaymentID,
		MerchantID:    m.ID,
		GrossAmount:   gross,
		GrossCurrency: req.GrossCurrency,
		LedgerAmount:  ledgerAmount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxResourceID, p.ID)

	response.Created(c, dto.NewPaymentResponse(p))
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}

	p, err := h.paymentSvc.GetPayment(c.Request.Context(), m.ID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewPaymentResponse(p))
}

// PixWebhook handles POST /api/v1/webhooks/pix. The rail may redeliver;
// a repeated notification answers 200 with credited=false.
func (h *PaymentHandler) PixWebhook(c *gin.Context) {
	var req dto.PixWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	paymentID := strings.TrimSpace(req.PaymentID)
	c.Set(middleware.CtxResourceID, paymentID)

	result, err := h.paymentSvc.Confirm(c.Request.Context(), paymentID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.ConfirmResponse{
		Payment:  dto.NewPaymentResponse(result.Payment),
		Balance:  result.Balance.String(),
		Credited: result.Credited,
	})
}
