package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"backoffice/internal/service"
	"backoffice/internal/upstream"

	"github.com/spf13/cobra"
)

func newReportCommand(app *App) *cobra.Command {
	var out string

	report := &cobra.Command{
		Use:   "report",
		Short: "Export procurement documents as XLSX",
	}
	report.PersistentFlags().StringVarP(&out, "out", "o", "", "Output file (default <report>.xlsx)")

	report.AddCommand(&cobra.Command{
		Use:   "invoices",
		Short: "Export purchase invoices",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runReport(cmd.Context(), out, "purchase-invoices.xlsx", service.ReportService.WritePurchaseInvoiceReport)
		},
	})
	report.AddCommand(&cobra.Command{
		Use:   "deliveries",
		Short: "Export inbound deliveries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runReport(cmd.Context(), out, "inbound-deliveries.xlsx", service.ReportService.WriteInboundDeliveryReport)
		},
	})
	return report
}

func (a *App) runReport(ctx context.Context, out, fallback string, write func(service.ReportService, context.Context, io.Writer) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.setup(); err != nil {
		return err
	}
	if a.token != "" {
		ctx = upstream.WithToken(ctx, a.token)
	}
	if out == "" {
		out = fallback
	}

	var buf bytes.Buffer
	if err := write(service.NewReportService(a.API, a.Log), ctx, &buf); err != nil {
		return err
	}
	if err := os.WriteFile(out, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Fprintf(a.Out, "wrote %s\n", out)
	return nil
}
