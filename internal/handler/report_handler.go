package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"backoffice/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type ReportHandler struct {
	reportService service.ReportService
}

func NewReportHandler(reportService service.ReportService) *ReportHandler {
	return &ReportHandler{reportService: reportService}
}

func (h *ReportHandler) RegisterRoutes(router *gin.RouterGroup) {
	reports := router.Group("/api/reports")
	{
		reports.GET("/purchase-invoices.xlsx", h.PurchaseInvoices)
		reports.GET("/inbound-deliveries.xlsx", h.InboundDeliveries)
	}
}

// PurchaseInvoices exports all purchase invoices
// @Summary      Purchase invoice report
// @Tags         reports
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success      200  {file}    file
// @Failure      502  {object}  response.Response
// @Router       /api/reports/purchase-invoices.xlsx [get]
func (h *ReportHandler) PurchaseInvoices(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.reportService.WritePurchaseInvoiceReport(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}
	sendWorkbook(c, "purchase-invoices", &buf)
}

// InboundDeliveries exports all inbound deliveries
// @Summary      Inbound delivery report
// @Tags         reports
// @Security     BearerAuth
// @Produce      application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Success      200  {file}    file
// @Failure      502  {object}  response.Response
// @Router       /api/reports/inbound-deliveries.xlsx [get]
func (h *ReportHandler) InboundDeliveries(c *gin.Context) {
	var buf bytes.Buffer
	if err := h.reportService.WriteInboundDeliveryReport(c.Request.Context(), &buf); err != nil {
		respondError(c, err)
		return
	}
	sendWorkbook(c, "inbound-deliveries", &buf)
}

// sendWorkbook writes a fully rendered workbook so a failed render can still
// produce a JSON error.
func sendWorkbook(c *gin.Context, name string, buf *bytes.Buffer) {
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}
