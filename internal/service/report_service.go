package service

import (
	"context"
	"io"

	ierr "backoffice/internal/errors"
	"backoffice/internal/logger"
	"backoffice/internal/report"
	"backoffice/internal/upstream"
)

type ReportService interface {
	WritePurchaseInvoiceReport(ctx context.Context, w io.Writer) error
	WriteInboundDeliveryReport(ctx context.Context, w io.Writer) error
}

type reportService struct {
	api upstream.API
	log *logger.Logger
}

func NewReportService(api upstream.API, log *logger.Logger) ReportService {
	return &reportService{api: api, log: log}
}

func (s *reportService) WritePurchaseInvoiceReport(ctx context.Context, w io.Writer) error {
	invoices, err := s.api.ListPurchaseInvoices(ctx)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Could not load purchase invoices").
			Mark(ierr.ErrHTTPClient)
	}
	s.log.Debugw("rendering purchase invoice report", "invoices", len(invoices))
	if err := report.WritePurchaseInvoices(w, invoices); err != nil {
		return ierr.WithError(err).
			WithHint("Could not render the report").
			Mark(ierr.ErrSystem)
	}
	return nil
}

func (s *reportService) WriteInboundDeliveryReport(ctx context.Context, w io.Writer) error {
	deliveries, err := s.api.ListInboundDeliveries(ctx)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Could not load inbound deliveries").
			Mark(ierr.ErrHTTPClient)
	}
	s.log.Debugw("rendering inbound delivery report", "deliveries", len(deliveries))
	if err := report.WriteInboundDeliveries(w, deliveries); err != nil {
		return ierr.WithError(err).
			WithHint("Could not render the report").
			Mark(ierr.ErrSystem)
	}
	return nil
}
