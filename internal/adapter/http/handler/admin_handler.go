package handler

import (
	"strings"
	"time"

	"settlement-gateway/internal/adapter/http/dto"
	"settlement-gateway/internal/adapter/http/middleware"
	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/apperror"
	"settlement-gateway/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminHandler serves the operator API.
type AdminHandler struct {
	authSvc       ports.AuthService
	merchantSvc   ports.MerchantService
	withdrawalSvc ports.WithdrawalService
	ledgerSvc     ports.LedgerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	authSvc ports.AuthService,
	merchantSvc ports.MerchantService,
	withdrawalSvc ports.WithdrawalService,
	ledgerSvc ports.LedgerService,
) *AdminHandler {
	return &AdminHandler{
		authSvc:       authSvc,
		merchantSvc:   merchantSvc,
		withdrawalSvc: withdrawalSvc,
		ledgerSvc:     ledgerSvc,
	}
}

// Login handles POST /api/v1/admin/login.
func (h *AdminHandler) Login(c *gin.Context) {
	var req dto.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	// Passwords are compared verbatim.
	req.Username = strings.TrimSpace(req.Username)

	token, expiry, err := h.authSvc.AdminLogin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxAdmin, req.Username)

	response.OK(c, dto.LoginResponse{
		Token:  token,
		Expiry: expiry.Unix(),
	})
}

// CreateMerchant handles POST /api/v1/admin/merchants.
func (h *AdminHandler) CreateMerchant(c *gin.Context) {
	var req dto.CreateMerchantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.merchantSvc.CreateMerchant(c.Request.Context(), ports.CreateMerchantRequest{
		ID:         req.ID,
		Name:       req.Name,
		WebhookURL: req.WebhookURL,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	m := result.Merchant
	c.Set(middleware.CtxResourceID, m.ID)

	response.Created(c, dto.CreateMerchantResponse{
		MerchantID: m.ID,
		Name:       m.Name,
		AccessKey:  result.AccessKey,
		SecretKey:  result.SecretKey,
		WebhookURL: m.WebhookURL,
		Status:     string(m.Status),
		CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
	})
}

// ListWithdrawals handles GET /api/v1/admin/withdrawals.
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	var q dto.WithdrawalListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.WithdrawalListParams{Page: q.Page, PageSize: q.PageSize}
	if q.MerchantID != "" {
		params.MerchantID = &q.MerchantID
	}
	if q.Status != "" {
		status := domain.WithdrawalStatus(q.Status)
		params.Status = &status
	}
	listWithdrawals(c, h.withdrawalSvc, params)
}

// ApproveWithdrawal handles POST /api/v1/admin/withdrawals/:id/approve.
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	id, ok := withdrawalID(c)
	if !ok {
		return
	}

	w, err := h.withdrawalSvc.Approve(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

// RejectWithdrawal handles POST /api/v1/admin/withdrawals/:id/reject.
// The body is optional.
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	id, ok := withdrawalID(c)
	if !ok {
		return
	}

	var req dto.RejectWithdrawalRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, apperror.Validation(err.Error()))
			return
		}
		dto.SanitizeStruct(&req)
	}

	w, err := h.withdrawalSvc.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

// MerchantBalance handles GET /api/v1/admin/merchants/:id/balance.
func (h *AdminHandler) MerchantBalance(c *gin.Context) {
	writeBalance(c, h.ledgerSvc, c.Param("id"))
}

// MerchantLedger handles GET /api/v1/admin/merchants/:id/ledger.
func (h *AdminHandler) MerchantLedger(c *gin.Context) {
	writeLedger(c, h.ledgerSvc, c.Param("id"))
}

func withdrawalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid withdrawal id"))
		return uuid.Nil, false
	}
	return id, true
}
