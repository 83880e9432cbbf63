package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	ierr "backoffice/internal/errors"
	"backoffice/internal/lineeditor"
	"backoffice/internal/service"
	"backoffice/internal/session"
	"backoffice/internal/upstream"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// cliUser owns the sessions the CLI opens.
const cliUser = "procurectl"

// Draft is the YAML form of an editing session.
type Draft struct {
	Kind              string      `yaml:"kind"`
	DocumentID        *int64      `yaml:"document_id"`
	PurchaseInvoiceID *int64      `yaml:"purchase_invoice_id"`
	Header            DraftHeader `yaml:"header"`
	Lines             []DraftLine `yaml:"lines"`
	// Remove lists component ids to take off the document.
	Remove []int64 `yaml:"remove"`
}

// DraftHeader fields left empty keep the value of the seeded document.
type DraftHeader struct {
	SupplierName         string `yaml:"supplier_name"`
	ExpectedDeliveryDate string `yaml:"expected_delivery_date"`
	Notes                string `yaml:"notes"`
}

type DraftLine struct {
	ProductID int64 `yaml:"product_id"`
	Quantity  *int  `yaml:"quantity"`
	Received  *int  `yaml:"received"`
	Damaged   *int  `yaml:"damaged"`
}

func LoadDraft(path string) (*Draft, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read draft: %w", err)
	}
	var d Draft
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse draft %s: %w", path, err)
	}
	if !lineeditor.Kind(d.Kind).Valid() {
		return nil, fmt.Errorf("draft %s: kind must be purchase_invoice or inbound_delivery, got %q", path, d.Kind)
	}
	return &d, nil
}

func newDraftCommand(app *App) *cobra.Command {
	var file string

	draft := &cobra.Command{
		Use:   "draft",
		Short: "Replay a YAML draft through the line editor",
	}
	draft.PersistentFlags().StringVarP(&file, "file", "f", "draft.yaml", "Draft file")

	draft.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Replay and validate a draft without submitting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runDraft(cmd.Context(), file, false)
		},
	})
	draft.AddCommand(&cobra.Command{
		Use:   "submit",
		Short: "Replay, validate and submit a draft",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runDraft(cmd.Context(), file, true)
		},
	})
	return draft
}

func (a *App) runDraft(ctx context.Context, file string, submit bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	d, err := LoadDraft(file)
	if err != nil {
		return err
	}
	if err := a.setup(); err != nil {
		return err
	}
	if a.token != "" {
		ctx = upstream.WithToken(ctx, a.token)
	}
	ctx = session.WithUserID(ctx, cliUser)

	svc := service.NewProcurementService(
		session.NewStore(a.Config.Session.TTL, a.Config.Session.CleanupInterval),
		a.API,
		service.NewCatalogService(a.API, a.Config.Catalog.CacheTTL, a.Log),
		nil,
		nil,
		a.Log,
	)

	view, err := replay(ctx, svc, d, a.Out)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Cancel(ctx, view.ID) }()

	result, err := svc.Validate(ctx, view.ID)
	if err != nil {
		return err
	}
	printSession(a.Out, result.Session)
	if !result.Valid {
		return fmt.Errorf("draft is not valid: %s", result.Message)
	}
	if !submit {
		fmt.Fprintln(a.Out, "draft is valid")
		return nil
	}

	submitted, err := svc.Submit(ctx, view.ID)
	if err != nil {
		return fmt.Errorf("submit: %s", ierr.DisplayMessage(err))
	}
	printNotifications(a.Out, submitted.Notifications)
	switch {
	case submitted.PurchaseInvoice != nil:
		fmt.Fprintf(a.Out, "purchase invoice %d %sd, total %s\n",
			submitted.PurchaseInvoice.ID, strings.ToLower(submitted.Action), submitted.PurchaseInvoice.TotalAmount.StringFixed(2))
	case submitted.InboundDelivery != nil:
		expected, received, damaged := submitted.InboundDelivery.Quantities()
		fmt.Fprintf(a.Out, "inbound delivery %d %sd, expected %d received %d damaged %d\n",
			submitted.InboundDelivery.ID, strings.ToLower(submitted.Action), expected, received, damaged)
	}
	return nil
}

// replay opens a session for d and applies its header, removals and lines in that order.
func replay(ctx context.Context, svc service.ProcurementService, d *Draft, out io.Writer) (service.SessionView, error) {
	view, err := svc.OpenSession(ctx, service.OpenSessionRequest{
		Kind:              d.Kind,
		DocumentID:        d.DocumentID,
		PurchaseInvoiceID: d.PurchaseInvoiceID,
	})
	if err != nil {
		return service.SessionView{}, err
	}

	header := view.Header
	if d.Header.SupplierName != "" {
		header.SupplierName = d.Header.SupplierName
	}
	if d.Header.ExpectedDeliveryDate != "" {
		header.ExpectedDeliveryDate = d.Header.ExpectedDeliveryDate
	}
	if d.Header.Notes != "" {
		header.Notes = d.Header.Notes
	}
	if view, err = svc.UpdateHeader(ctx, view.ID, service.UpdateHeaderRequest{
		SupplierName:         header.SupplierName,
		ExpectedDeliveryDate: header.ExpectedDeliveryDate,
		Notes:                header.Notes,
		PurchaseInvoiceID:    header.PurchaseInvoiceID,
	}); err != nil {
		return service.SessionView{}, err
	}

	for _, componentID := range d.Remove {
		if view, err = svc.RemoveLine(ctx, view.ID, componentID); err != nil {
			return service.SessionView{}, fmt.Errorf("remove component %d: %w", componentID, err)
		}
		printNotifications(out, view.Notifications)
	}

	for _, l := range d.Lines {
		if !lo.ContainsBy(view.Lines, func(v service.LineView) bool { return v.ComponentID == l.ProductID }) {
			if view, err = svc.AddLine(ctx, view.ID, service.AddLineRequest{ProductID: l.ProductID}); err != nil {
				return service.SessionView{}, fmt.Errorf("add product %d: %w", l.ProductID, err)
			}
			printNotifications(out, view.Notifications)
		}
		if l.Quantity != nil {
			if view, err = svc.UpdateQuantity(ctx, view.ID, l.ProductID, *l.Quantity); err != nil {
				return service.SessionView{}, fmt.Errorf("set quantity of product %d: %w", l.ProductID, err)
			}
			printNotifications(out, view.Notifications)
		}
		if l.Received != nil || l.Damaged != nil {
			// a field left out of the draft keeps the line's current value
			current, _ := lo.Find(view.Lines, func(v service.LineView) bool { return v.ComponentID == l.ProductID })
			received := lo.FromPtrOr(l.Received, current.ReceivedQuantity)
			damaged := lo.FromPtrOr(l.Damaged, current.DamagedQuantity)
			if view, err = svc.UpdateReceipt(ctx, view.ID, l.ProductID, received, damaged); err != nil {
				return service.SessionView{}, fmt.Errorf("set receipt of product %d: %w", l.ProductID, err)
			}
		}
	}
	return view, nil
}

func printSession(out io.Writer, view service.SessionView) {
	fmt.Fprintf(out, "%s supplier=%q date=%s\n", view.Kind, view.Header.SupplierName, view.Header.ExpectedDeliveryDate)
	for _, l := range view.Lines {
		if view.Kind == lineeditor.KindInboundDelivery {
			fmt.Fprintf(out, "  %-24s expected %3d received %3d damaged %3d\n", l.ComponentName, l.Quantity, l.ReceivedQuantity, l.DamagedQuantity)
			continue
		}
		fmt.Fprintf(out, "  %-24s %3d x %s = %s\n", l.ComponentName, l.Quantity, l.PricePerUnit, l.LineTotal)
	}
	if len(view.DestroyedLineIDs) > 0 {
		fmt.Fprintf(out, "  delete lines %v\n", view.DestroyedLineIDs)
	}
	fmt.Fprintf(out, "estimated total %s\n", view.EstimatedTotal)
	printNotifications(out, view.Notifications)
}

func printNotifications(out io.Writer, notes []lineeditor.Notification) {
	for _, n := range notes {
		fmt.Fprintf(out, "[%s] %s\n", n.Level, n.Message)
	}
}
