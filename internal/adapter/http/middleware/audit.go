package middleware

import (
	"encoding/json"
	"net/http"

	"settlement-gateway/internal/core/domain"
	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/response"

	"github.com/gin-gonic/gin"
)

type auditRoute struct {
	action       domain.AuditAction
	resourceType string
}

// auditRoutes maps write routes (method + gin route pattern) to audit actions.
var auditRoutes = map[string]auditRoute{
	"POST /api/v1/admin/login":                   {domain.AuditActionAdminLogin, "session"},
	"POST /api/v1/admin/merchants":               {domain.AuditActionCreateMerchant, "merchant"},
	"POST /api/v1/admin/withdrawals/:id/approve": {domain.AuditActionApproveWithdrawal, "withdrawal"},
	"POST /api/v1/admin/withdrawals/:id/reject":  {domain.AuditActionRejectWithdrawal, "withdrawal"},
	"POST /api/v1/payments":                      {domain.AuditActionCreatePayment, "payment"},
	"POST /api/v1/webhooks/pix":                  {domain.AuditActionConfirmPayment, "payment"},
	"POST /api/v1/merchant/withdrawals":          {domain.AuditActionRequestWithdrawal, "withdrawal"},
}

// AuditLog creates an audit middleware that logs successful write operations.
// Handlers may set CtxResourceID to name the resource they created.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}

		route, ok := auditRoutes[c.Request.Method+" "+c.FullPath()]
		if !ok {
			return
		}

		entry := &domain.AuditLog{
			Actor:        actor(c),
			Action:       route.action,
			ResourceType: route.resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
		}
		if id := c.GetString(CtxResourceID); id != "" {
			entry.ResourceID = id
		}
		if mid := c.GetString(CtxMerchantID); mid != "" {
			entry.MerchantID = &mid
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"path":       c.Request.URL.Path,
			"status":     c.Writer.Status(),
			"request_id": c.GetString(response.CtxRequestID),
		})
		entry.Details = string(details)

		auditSvc.Log(c.Request.Context(), entry)
	}
}

func actor(c *gin.Context) string {
	if sub := c.GetString(CtxAdmin); sub != "" {
		return "admin:" + sub
	}
	if mid := c.GetString(CtxMerchantID); mid != "" {
		return "merchant:" + mid
	}
	if c.FullPath() == "/api/v1/webhooks/pix" {
		return "pix"
	}
	return "anonymous"
}
