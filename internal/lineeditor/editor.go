// Package lineeditor maintains the line items of a purchase invoice or inbound
// delivery being edited, reconciling them against the lines the server already has.
//
// An Editor is not safe for concurrent use; callers serialize access.
package lineeditor

import (
	"fmt"
	"strings"

	ierr "backoffice/internal/errors"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

type Editor struct {
	kind     Kind
	notifier Notifier

	header      Header
	active      []Line
	destroyable []Line

	seeded  bool
	seedKey string
}

// New returns an empty editor. A nil notifier discards notifications.
func New(kind Kind, notifier Notifier) *Editor {
	if notifier == nil {
		notifier = discard{}
	}
	return &Editor{kind: kind, notifier: notifier}
}

func (e *Editor) Kind() Kind {
	return e.kind
}

// Initialize seeds the editor from doc, or empties it when doc is nil. After the
// first call, it only re-seeds when doc identifies a different document.
func (e *Editor) Initialize(doc *Document) bool {
	key := doc.Key()
	if e.seeded && e.seedKey == key {
		return false
	}

	e.reset()
	e.seeded = true
	e.seedKey = key
	if doc == nil {
		return true
	}

	e.header = normalizeHeader(doc.Header)
	// Seeded lines are kept as the server has them, zero quantities included,
	// so no persisted line leaves the active set without being destroyed.
	e.active = cloneLines(doc.Lines)
	return true
}

func (e *Editor) Header() Header {
	return e.header
}

func (e *Editor) SetHeader(h Header) {
	if e.kind != KindInboundDelivery {
		h.PurchaseInvoiceID = nil
	} else if h.PurchaseInvoiceID == nil {
		h.PurchaseInvoiceID = e.header.PurchaseInvoiceID
	}
	e.header = normalizeHeader(h)
}

// AddLine adds one unit of p, appending a new line when p is not in the active set.
func (e *Editor) AddLine(p Product) {
	if i := e.indexOf(p.ID); i >= 0 {
		e.active[i].Quantity++
	} else {
		e.active = append(e.active, Line{
			ComponentID:   p.ID,
			ComponentName: p.Name,
			Quantity:      1,
			PricePerUnit:  p.UnitPrice,
		})
	}
	e.notify(LevelSuccess, fmt.Sprintf("%s added", displayName(p.Name, p.ID)))
}

// UpdateQuantity sets the quantity of a line. Anything below 1 removes it.
func (e *Editor) UpdateQuantity(componentID int64, quantity int) error {
	if quantity < 1 {
		return e.RemoveLine(componentID)
	}
	i := e.indexOf(componentID)
	if i < 0 {
		return lineNotFound(componentID)
	}
	e.active[i].Quantity = quantity
	return nil
}

// UpdateReceipt records received and damaged units of an inbound delivery line.
func (e *Editor) UpdateReceipt(componentID int64, received, damaged int) error {
	if e.kind != KindInboundDelivery {
		return ierr.NewError("receipt quantities on a purchase invoice").
			WithHint("Received and damaged quantities only apply to inbound deliveries").
			Mark(ierr.ErrInvalidOperation)
	}
	if received < 0 || damaged < 0 {
		return ierr.NewErrorf("negative receipt for component %d", componentID).
			WithHint("Received and damaged quantities cannot be negative").
			Mark(ierr.ErrValidation)
	}
	i := e.indexOf(componentID)
	if i < 0 {
		return lineNotFound(componentID)
	}
	e.active[i].ReceivedQuantity = received
	e.active[i].DamagedQuantity = damaged
	return nil
}

// RemoveLine drops a line from the active set. Lines that exist server-side are
// queued in the destroyable set so the update request deletes them.
func (e *Editor) RemoveLine(componentID int64) error {
	i := e.indexOf(componentID)
	if i < 0 {
		return lineNotFound(componentID)
	}
	line := e.active[i]
	if line.Persisted() && !e.isDestroyable(*line.ID) {
		e.destroyable = append(e.destroyable, line)
	}
	e.active = append(e.active[:i:i], e.active[i+1:]...)
	e.notify(LevelInfo, fmt.Sprintf("%s removed", displayName(line.ComponentName, line.ComponentID)))
	return nil
}

// CalculateTotal is an estimate for display; the server's total is authoritative.
func (e *Editor) CalculateTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.active {
		total = total.Add(l.Total())
	}
	return total
}

// Validate reports whether the form can be submitted. Failures are also sent to the notifier.
func (e *Editor) Validate() error {
	err := e.check()
	if err != nil {
		e.notify(LevelError, ierr.DisplayMessage(err))
	}
	return err
}

func (e *Editor) check() error {
	if len(e.active) == 0 {
		return ierr.NewError("no lines").
			WithHint("Add at least one product").
			Mark(ierr.ErrValidation)
	}
	if strings.TrimSpace(e.header.SupplierName) == "" {
		return ierr.NewError("supplier name is blank").
			WithHint("Supplier name is required").
			Mark(ierr.ErrValidation)
	}
	if e.kind == KindInboundDelivery {
		for _, l := range e.active {
			if l.receiptExceedsExpected() {
				return ierr.NewErrorf("component %d: received %d + damaged %d > expected %d",
					l.ComponentID, l.ReceivedQuantity, l.DamagedQuantity, l.Quantity).
					WithHintf("%s: received and damaged quantities exceed the expected quantity",
						displayName(l.ComponentName, l.ComponentID)).
					Mark(ierr.ErrValidation)
			}
		}
	}
	return nil
}

// FormData returns the header and active lines. Destroyable lines are appended
// by the submission handler.
func (e *Editor) FormData() FormData {
	return FormData{Header: e.header, Lines: cloneLines(e.active)}
}

func (e *Editor) Lines() []Line {
	return cloneLines(e.active)
}

func (e *Editor) Destroyable() []Line {
	return cloneLines(e.destroyable)
}

// Reset clears lines and header. The next Initialize always re-seeds.
func (e *Editor) Reset() {
	e.reset()
	e.seeded = false
	e.seedKey = ""
}

func (e *Editor) reset() {
	e.header = Header{}
	e.active = nil
	e.destroyable = nil
}

func (e *Editor) indexOf(componentID int64) int {
	_, i, found := lo.FindIndexOf(e.active, func(l Line) bool {
		return l.ComponentID == componentID
	})
	if !found {
		return -1
	}
	return i
}

func (e *Editor) isDestroyable(id int64) bool {
	return lo.ContainsBy(e.destroyable, func(l Line) bool {
		return l.ID != nil && *l.ID == id
	})
}

func (e *Editor) notify(level Level, msg string) {
	e.notifier.Notify(Notification{Level: level, Message: msg})
}

func normalizeHeader(h Header) Header {
	h.ExpectedDeliveryDate = NormalizeDate(h.ExpectedDeliveryDate)
	if h.PurchaseInvoiceID != nil {
		id := *h.PurchaseInvoiceID
		h.PurchaseInvoiceID = &id
	}
	return h
}

func lineNotFound(componentID int64) error {
	return ierr.NewErrorf("component %d is not in the line set", componentID).
		WithHint("That product is not on this document").
		Mark(ierr.ErrNotFound)
}

func displayName(name string, id int64) string {
	if name != "" {
		return name
	}
	return fmt.Sprintf("Product #%d", id)
}
