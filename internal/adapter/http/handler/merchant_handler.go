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
)

// HeaderIdempotencyKey lets a merchant retry a withdrawal request safely.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	maxIdempotencyKeyLen = 128
	defaultPageSize      = 20
)

// MerchantHandler serves the HMAC-authenticated merchant API.
type MerchantHandler struct {
	ledgerSvc     ports.LedgerService
	withdrawalSvc ports.WithdrawalService
}

// NewMerchantHandler creates a new MerchantHandler.
func NewMerchantHandler(ledgerSvc ports.LedgerService, withdrawalSvc ports.WithdrawalService) *MerchantHandler {
	return &MerchantHandler{ledgerSvc: ledgerSvc, withdrawalSvc: withdrawalSvc}
}

// GetBalance handles GET /api/v1/merchant/balance.
func (h *MerchantHandler) GetBalance(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}
	writeBalance(c, h.ledgerSvc, m.ID)
}

// GetLedger handles GET /api/v1/merchant/ledger.
func (h *MerchantHandler) GetLedger(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}
	writeLedger(c, h.ledgerSvc, m.ID)
}

// RequestWithdrawal handles POST /api/v1/merchant/withdrawals.
func (h *MerchantHandler) RequestWithdrawal(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}

	var req dto.WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		response.Error(c, apperror.ErrInvalidAmount())
		return
	}

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLen {
		response.Error(c, apperror.Validation("Idempotency-Key too long"))
		return
	}

	w, err := h.withdrawalSvc.Request(c.Request.Context(), ports.WithdrawalRequest{
		MerchantID:         m.ID,
		Amount:             amount,
		DestinationAddress: req.DestinationAddress,
		IdempotencyKey:     key,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Set(middleware.CtxResourceID, w.ID.String())

	response.Created(c, dto.NewWithdrawalResponse(w))
}

// ListWithdrawals handles GET /api/v1/merchant/withdrawals.
// The merchant_id filter is always the caller.
func (h *MerchantHandler) ListWithdrawals(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}

	var q dto.WithdrawalListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	params := ports.WithdrawalListParams{MerchantID: &m.ID, Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		status := domain.WithdrawalStatus(q.Status)
		params.Status = &status
	}
	listWithdrawals(c, h.withdrawalSvc, params)
}

// GetWithdrawal handles GET /api/v1/merchant/withdrawals/:id.
func (h *MerchantHandler) GetWithdrawal(c *gin.Context) {
	m, ok := merchantOrAbort(c)
	if !ok {
		return
	}
	id, ok := withdrawalID(c)
	if !ok {
		return
	}

	w, err := h.withdrawalSvc.Get(c.Request.Context(), m.ID, id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewWithdrawalResponse(w))
}

func merchantOrAbort(c *gin.Context) (*domain.Merchant, bool) {
	m, ok := middleware.MerchantFrom(c)
	if !ok {
		response.Error(c, apperror.ErrInvalidAccessKey())
		return nil, false
	}
	return m, true
}

func writeBalance(c *gin.Context, svc ports.LedgerService, merchantID string) {
	b, err := svc.GetBalance(c.Request.Context(), merchantID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, dto.NewBalanceResponse(b))
}

// writeLedger pages by sequence number; next_cursor is the last seq returned.
func writeLedger(c *gin.Context, svc ports.LedgerService, merchantID string) {
	var q dto.LedgerQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	entries, err := svc.GetLedger(c.Request.Context(), merchantID, q.AfterSeq, q.Limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	page := response.PageMeta{}
	if n := len(entries); n > 0 {
		next := entries[n-1].Seq
		page.NextCursor = &next
	}
	response.Paged(c, dto.NewLedgerEntries(entries), page)
}

func listWithdrawals(c *gin.Context, svc ports.WithdrawalService, params ports.WithdrawalListParams) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PageSize < 1 {
		params.PageSize = defaultPageSize
	}

	items, total, err := svc.List(c.Request.Context(), params)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Paged(c, dto.NewWithdrawalList(items), response.PageMeta{
		Total:    &total,
		Page:     params.Page,
		PageSize: params.PageSize,
	})
}
