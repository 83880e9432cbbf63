package handler

import (
	"net/http"

	"backoffice/internal/service"
	"backoffice/pkg/pagination"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type SubmissionHandler struct {
	auditService service.AuditService
}

func NewSubmissionHandler(auditService service.AuditService) *SubmissionHandler {
	return &SubmissionHandler{auditService: auditService}
}

func (h *SubmissionHandler) RegisterRoutes(router *gin.RouterGroup) {
	group := router.Group("/api/submissions")
	{
		group.GET("", h.ListSubmissions)
	}
}

// ListSubmissions returns the history of create/update requests sent to the API
// @Summary      List submissions
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        kind        query     string  false  "purchase_invoice or inbound_delivery"
// @Param        status      query     string  false  "SUCCEEDED or FAILED"
// @Param        session_id  query     string  false  "Editing session"
// @Param        page        query     int     false  "Page number (default 1)"
// @Param        limit       query     int     false  "Number of items per page (default 20)"
// @Success      200         {object}  response.Response{data=[]service.SubmissionLogResponse}
// @Failure      500         {object}  response.Response
// @Router       /api/submissions [get]
func (h *SubmissionHandler) ListSubmissions(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.auditService.ListSubmissions(c.Request.Context(), service.SubmissionLogFilter{
		DocumentKind: c.Query("kind"),
		Status:       c.Query("status"),
		SessionID:    c.Query("session_id"),
		Page:         params.Page,
		Limit:        params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, logs, params.Page, params.Limit, total))
}
