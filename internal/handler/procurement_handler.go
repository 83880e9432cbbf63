package handler

import (
	"net/http"
	"strconv"

	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
)

type ProcurementHandler struct {
	procurementService service.ProcurementService
}

func NewProcurementHandler(procurementService service.ProcurementService) *ProcurementHandler {
	return &ProcurementHandler{procurementService: procurementService}
}

func (h *ProcurementHandler) RegisterRoutes(router *gin.RouterGroup) {
	sessions := router.Group("/api/procurement/sessions")
	{
		sessions.POST("", h.OpenSession)
		sessions.GET("/:id", h.GetSession)
		sessions.DELETE("/:id", h.CancelSession)
		sessions.PUT("/:id/document", h.ReseedSession)
		sessions.PUT("/:id/header", h.UpdateHeader)
		sessions.POST("/:id/lines", h.AddLine)
		sessions.PATCH("/:id/lines/:componentId", h.UpdateQuantity)
		sessions.PATCH("/:id/lines/:componentId/receipt", h.UpdateReceipt)
		sessions.DELETE("/:id/lines/:componentId", h.RemoveLine)
		sessions.POST("/:id/validate", h.Validate)
		sessions.POST("/:id/submit", h.Submit)
	}
}

// OpenSession starts editing a new or existing document
// @Summary      Open editing session
// @Description  Opens a line editor for a new document, an existing document (document_id) or a delivery seeded from an invoice (purchase_invoice_id)
// @Tags         procurement
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.OpenSessionRequest  true  "Session payload"
// @Success      201      {object}  response.Response{data=service.SessionView}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/procurement/sessions [post]
func (h *ProcurementHandler) OpenSession(c *gin.Context) {
	var req service.OpenSessionRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.procurementService.OpenSession(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, view))
}

// GetSession returns the current state of a session
// @Summary      Get editing session
// @Tags         procurement
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response{data=service.SessionView}
// @Failure      404  {object}  response.Response
// @Router       /api/procurement/sessions/{id} [get]
func (h *ProcurementHandler) GetSession(c *gin.Context) {
	view, err := h.procurementService.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// CancelSession discards a session and its unsaved edits
// @Summary      Cancel editing session
// @Tags         procurement
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/procurement/sessions/{id} [delete]
func (h *ProcurementHandler) CancelSession(c *gin.Context) {
	if err := h.procurementService.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Session discarded"}))
}

// ReseedSession points the session at another document
// @Summary      Re-seed editing session
// @Description  Re-initializes the editor when the document differs from the one being edited; otherwise local edits are kept
// @Tags         procurement
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                 true  "Session ID"
// @Param        payload  body      service.ReseedRequest  true  "Document reference"
// @Success      200      {object}  response.Response{data=service.SessionView}
// @Failure      404      {object}  response.Response
// @Router       /api/procurement/sessions/{id}/document [put]
func (h *ProcurementHandler) ReseedSession(c *gin.Context) {
	var req service.ReseedRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.procurementService.Reseed(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// UpdateHeader replaces supplier, delivery date and notes
// @Summary      Update document header
// @Tags         procurement
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                       true  "Session ID"
// @Param        payload  body      service.UpdateHeaderRequest  true  "Header fields"
// @Success      200      {object}  response.Response{data=service.SessionView}
// @Failure      409      {object}  response.Response
// @Router       /api/procurement/sessions/{id}/header [put]
func (h *ProcurementHandler) UpdateHeader(c *gin.Context) {
	var req service.UpdateHeaderRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.procurementService.UpdateHeader(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// AddLine adds one unit of a catalog product
// @Summary      Add product
// @Description  Adds a product line, or increments its quantity when already present
// @Tags         procurement
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Session ID"
// @Param        payload  body      service.AddLineRequest  true  "Product"
// @Success      200      {object}  response.Response{data=service.SessionView}
// @Failure      404      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/procurement/sessions/{id}/lines [post]
func (h *ProcurementHandler) AddLine(c *gin.Context) {
	var req service.AddLineRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.procurementService.AddLine(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// UpdateQuantity sets a line quantity; below 1 removes the line
// @Summary      Update line quantity
// @Tags         procurement
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id           path      string                         true  "Session ID"
// @Param        componentId  path      int                            true  "Component ID"
// @Param        payload      body      service.UpdateQuantityRequest  true  "Quantity"
// @Success      200          {object}  response.Response{data=service.SessionView}
// @Failure      404          {object}  response.Response
// @Router       /api/procurement/sessions/{id}/lines/{componentId} [patch]
func (h *ProcurementHandler) UpdateQuantity(c *gin.Context) {
	componentID, ok := componentParam(c)
	if !ok {
		return
	}
	var req service.UpdateQuantityRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.procurementService.UpdateQuantity(c.Request.Context(), c.Param("id"), componentID, *req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// UpdateReceipt records received and damaged units on an inbound delivery line
// @Summary      Update receipt quantities
// @Tags         procurement
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id           path      string                        true  "Session ID"
// @Param        componentId  path      int                           true  "Component ID"
// @Param        payload      body      service.UpdateReceiptRequest  true  "Received and damaged quantities"
// @Success      200          {object}  response.Response{data=service.SessionView}
// @Failure      400          {object}  response.Response
// @Router       /api/procurement/sessions/{id}/lines/{componentId}/receipt [patch]
func (h *ProcurementHandler) UpdateReceipt(c *gin.Context) {
	componentID, ok := componentParam(c)
	if !ok {
		return
	}
	var req service.UpdateReceiptRequest
	if !bindJSON(c, &req) {
		return
	}
	view, err := h.procurementService.UpdateReceipt(c.Request.Context(), c.Param("id"), componentID, *req.ReceivedQuantity, *req.DamagedQuantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// RemoveLine removes a line; saved lines are deleted on submit
// @Summary      Remove line
// @Tags         procurement
// @Security     BearerAuth
// @Produce      json
// @Param        id           path      string  true  "Session ID"
// @Param        componentId  path      int     true  "Component ID"
// @Success      200          {object}  response.Response{data=service.SessionView}
// @Failure      404          {object}  response.Response
// @Router       /api/procurement/sessions/{id}/lines/{componentId} [delete]
func (h *ProcurementHandler) RemoveLine(c *gin.Context) {
	componentID, ok := componentParam(c)
	if !ok {
		return
	}
	view, err := h.procurementService.RemoveLine(c.Request.Context(), c.Param("id"), componentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, view))
}

// Validate checks whether the document can be submitted
// @Summary      Validate document
// @Tags         procurement
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response{data=service.ValidationResult}
// @Failure      404  {object}  response.Response
// @Router       /api/procurement/sessions/{id}/validate [post]
func (h *ProcurementHandler) Validate(c *gin.Context) {
	result, err := h.procurementService.Validate(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Submit creates or updates the document through the REST API
// @Summary      Submit document
// @Description  Sends the document with its line changes; saved lines removed in the session are sent with _destroy. The session is closed on success.
// @Tags         procurement
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  response.Response{data=service.SubmitResult}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/procurement/sessions/{id}/submit [post]
func (h *ProcurementHandler) Submit(c *gin.Context) {
	result, err := h.procurementService.Submit(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

func componentParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("componentId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid component id"))
		return 0, false
	}
	return id, true
}
