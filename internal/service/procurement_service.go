package service

import (
	"context"
	"encoding/json"
	"fmt"

	ierr "backoffice/internal/errors"
	"backoffice/internal/lineeditor"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/session"
	"backoffice/internal/upstream"

	"github.com/samber/lo"
)

// --- DTOs ---

type OpenSessionRequest struct {
	Kind string `json:"kind" binding:"required,oneof=purchase_invoice inbound_delivery"`
	// DocumentID opens an existing document for editing.
	DocumentID *int64 `json:"document_id"`
	// PurchaseInvoiceID seeds a new inbound delivery from the invoice's lines.
	PurchaseInvoiceID *int64 `json:"purchase_invoice_id"`
}

type ReseedRequest struct {
	DocumentID        *int64 `json:"document_id"`
	PurchaseInvoiceID *int64 `json:"purchase_invoice_id"`
}

type UpdateHeaderRequest struct {
	SupplierName         string `json:"supplier_name"`
	ExpectedDeliveryDate string `json:"expected_delivery_date"`
	Notes                string `json:"notes"`
	PurchaseInvoiceID    *int64 `json:"purchase_invoice_id"`
}

type AddLineRequest struct {
	ProductID int64 `json:"product_id" binding:"required,gt=0"`
}

type UpdateQuantityRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

type UpdateReceiptRequest struct {
	ReceivedQuantity *int `json:"received_quantity" binding:"required"`
	DamagedQuantity  *int `json:"damaged_quantity" binding:"required"`
}

type LineView struct {
	ID               *int64 `json:"id"`
	ComponentID      int64  `json:"component_id"`
	ComponentName    string `json:"component_name"`
	Quantity         int    `json:"quantity"`
	PricePerUnit     string `json:"price_per_unit"`
	LineTotal        string `json:"line_total"`
	ReceivedQuantity int    `json:"received_quantity,omitempty"`
	DamagedQuantity  int    `json:"damaged_quantity,omitempty"`
}

type SessionView struct {
	ID               string                    `json:"id"`
	Kind             lineeditor.Kind           `json:"kind"`
	DocumentID       *int64                    `json:"document_id"`
	Header           lineeditor.Header         `json:"header"`
	Lines            []LineView                `json:"lines"`
	DestroyedLineIDs []int64                   `json:"destroyed_line_ids"`
	EstimatedTotal   string                    `json:"estimated_total"`
	Submitting       bool                      `json:"submitting"`
	Notifications    []lineeditor.Notification `json:"notifications"`
}

type ValidationResult struct {
	Valid   bool        `json:"valid"`
	Message string      `json:"message,omitempty"`
	Session SessionView `json:"session"`
}

// SubmitResult carries the canonical document as stored by the API after a
// successful create or update. Exactly one of the document fields is set.
type SubmitResult struct {
	Action          string                    `json:"action"`
	Kind            lineeditor.Kind           `json:"kind"`
	PurchaseInvoice *upstream.PurchaseInvoice `json:"purchase_invoice,omitempty"`
	InboundDelivery *upstream.InboundDelivery `json:"inbound_delivery,omitempty"`
	Notifications   []lineeditor.Notification `json:"notifications"`
}

// Publisher forwards session notifications to live subscribers (the websocket hub).
type Publisher interface {
	Notifier(sessionID string) lineeditor.Notifier
}

// --- Interface ---

// ProcurementService serves editing sessions. The acting user is taken from
// session.UserIDFrom(ctx); a session opened by another user reads as not found.
type ProcurementService interface {
	OpenSession(ctx context.Context, req OpenSessionRequest) (SessionView, error)
	GetSession(ctx context.Context, id string) (SessionView, error)
	Reseed(ctx context.Context, id string, req ReseedRequest) (SessionView, error)
	UpdateHeader(ctx context.Context, id string, req UpdateHeaderRequest) (SessionView, error)
	AddLine(ctx context.Context, id string, req AddLineRequest) (SessionView, error)
	UpdateQuantity(ctx context.Context, id string, componentID int64, quantity int) (SessionView, error)
	UpdateReceipt(ctx context.Context, id string, componentID int64, received, damaged int) (SessionView, error)
	RemoveLine(ctx context.Context, id string, componentID int64) (SessionView, error)
	Validate(ctx context.Context, id string) (ValidationResult, error)
	Submit(ctx context.Context, id string) (SubmitResult, error)
	Cancel(ctx context.Context, id string) error
}

type procurementService struct {
	sessions  session.Store
	api       upstream.API
	catalog   CatalogService
	logRepo   repository.SubmissionRepository
	publisher Publisher
	log       *logger.Logger
}

// NewProcurementService wires the session service. publisher may be nil.
func NewProcurementService(
	sessions session.Store,
	api upstream.API,
	catalog CatalogService,
	logRepo repository.SubmissionRepository,
	publisher Publisher,
	log *logger.Logger,
) ProcurementService {
	return &procurementService{
		sessions:  sessions,
		api:       api,
		catalog:   catalog,
		logRepo:   logRepo,
		publisher: publisher,
		log:       log,
	}
}

// --- Implementation ---

func (s *procurementService) OpenSession(ctx context.Context, req OpenSessionRequest) (SessionView, error) {
	userID := session.UserIDFrom(ctx)
	kind := lineeditor.Kind(req.Kind)
	if !kind.Valid() {
		return SessionView{}, ierr.NewErrorf("unknown document kind %q", req.Kind).
			WithHint("Kind must be purchase_invoice or inbound_delivery").
			Mark(ierr.ErrValidation)
	}

	doc, err := s.fetchSeed(ctx, kind, req.DocumentID, req.PurchaseInvoiceID)
	if err != nil {
		return SessionView{}, err
	}

	sess := &session.Session{UserID: userID, Recorder: &lineeditor.Recorder{}}
	sess.Lock()
	defer sess.Unlock()
	s.sessions.Create(sess)
	notifiers := lineeditor.Fanout{sess.Recorder}
	if s.publisher != nil {
		notifiers = append(notifiers, s.publisher.Notifier(sess.ID))
	}
	sess.Notifier = notifiers
	sess.Editor = lineeditor.New(kind, sess.Notifier)
	sess.Editor.Initialize(doc)
	if doc != nil {
		sess.DocumentID = doc.ID
	}

	s.log.Infow("procurement session opened",
		"session_id", sess.ID, "kind", kind, "document_id", sess.DocumentID, "user_id", userID)
	return s.view(sess), nil
}

func (s *procurementService) GetSession(ctx context.Context, id string) (SessionView, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	defer sess.Unlock()
	return s.view(sess), nil
}

// Reseed re-initializes the editor. It is a no-op when the requested document
// is the one already being edited.
func (s *procurementService) Reseed(ctx context.Context, id string, req ReseedRequest) (SessionView, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	kind := sess.Editor.Kind()
	sess.Unlock()

	doc, err := s.fetchSeed(ctx, kind, req.DocumentID, req.PurchaseInvoiceID)
	if err != nil {
		return SessionView{}, err
	}

	return s.mutate(ctx, id, func(sess *session.Session) error {
		if sess.Editor.Initialize(doc) {
			sess.DocumentID = nil
			if doc != nil {
				sess.DocumentID = doc.ID
			}
			s.log.Debugw("session re-seeded", "session_id", sess.ID, "document", doc.Key())
		}
		return nil
	})
}

func (s *procurementService) UpdateHeader(ctx context.Context, id string, req UpdateHeaderRequest) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		sess.Editor.SetHeader(lineeditor.Header{
			SupplierName:         req.SupplierName,
			ExpectedDeliveryDate: req.ExpectedDeliveryDate,
			Notes:                req.Notes,
			PurchaseInvoiceID:    req.PurchaseInvoiceID,
		})
		return nil
	})
}

func (s *procurementService) AddLine(ctx context.Context, id string, req AddLineRequest) (SessionView, error) {
	product, err := s.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		return SessionView{}, err
	}
	return s.mutate(ctx, id, func(sess *session.Session) error {
		sess.Editor.AddLine(product)
		return nil
	})
}

func (s *procurementService) UpdateQuantity(ctx context.Context, id string, componentID int64, quantity int) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.Editor.UpdateQuantity(componentID, quantity)
	})
}

func (s *procurementService) UpdateReceipt(ctx context.Context, id string, componentID int64, received, damaged int) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.Editor.UpdateReceipt(componentID, received, damaged)
	})
}

func (s *procurementService) RemoveLine(ctx context.Context, id string, componentID int64) (SessionView, error) {
	return s.mutate(ctx, id, func(sess *session.Session) error {
		return sess.Editor.RemoveLine(componentID)
	})
}

func (s *procurementService) Validate(ctx context.Context, id string) (ValidationResult, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return ValidationResult{}, err
	}
	defer sess.Unlock()

	verr := sess.Editor.Validate()
	return ValidationResult{
		Valid:   verr == nil,
		Message: ierr.DisplayMessage(verr),
		Session: s.view(sess),
	}, nil
}

// Submit validates the session and sends it to the API. The session lock is
// not held during the request; the submitting flag keeps edits out meanwhile.
// On failure the editor keeps its state so the user can retry.
func (s *procurementService) Submit(ctx context.Context, id string) (SubmitResult, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return SubmitResult{}, err
	}
	if !sess.BeginSubmit() {
		sess.Unlock()
		return SubmitResult{}, errSubmitting(id)
	}
	if err := sess.Editor.Validate(); err != nil {
		sess.EndSubmit()
		sess.Recorder.Drain()
		sess.Unlock()
		return SubmitResult{}, err
	}
	kind := sess.Editor.Kind()
	form := sess.Editor.FormData()
	destroyable := sess.Editor.Destroyable()
	documentID := cloneID(sess.DocumentID)
	sess.Unlock()

	entry := &model.SubmissionLog{
		SessionID:      sess.ID,
		UserID:         sess.UserID,
		DocumentKind:   string(kind),
		DocumentID:     documentID,
		Action:         model.SubmissionActionCreate,
		ActiveLines:    len(form.Lines),
		DestroyedLines: len(destroyable),
	}
	if documentID != nil {
		entry.Action = model.SubmissionActionUpdate
	}

	result, payload, sendErr := s.send(ctx, kind, documentID, form, destroyable)
	entry.Payload = string(payload)
	result.Action = entry.Action
	result.Kind = kind

	sess.Lock()
	defer sess.Unlock()
	sess.EndSubmit()

	if sendErr != nil {
		entry.Status = model.SubmissionFailed
		entry.Error = sendErr.Error()
		s.record(ctx, entry)
		sess.Notifier.Notify(lineeditor.Notification{
			Level:   lineeditor.LevelError,
			Message: ierr.DisplayMessage(sendErr),
		})
		sess.Recorder.Drain()
		s.log.Warnw("submission failed", "session_id", sess.ID, "kind", kind, "error", sendErr)
		return SubmitResult{}, sendErr
	}

	entry.Status = model.SubmissionSucceeded
	entry.DocumentID = result.documentID()
	s.record(ctx, entry)

	sess.Notifier.Notify(lineeditor.Notification{
		Level:   lineeditor.LevelSuccess,
		Message: fmt.Sprintf("%s saved", kindLabel(kind)),
	})
	result.Notifications = sess.Recorder.Drain()

	if !sess.Closed() {
		sess.Editor.Reset()
		sess.Close()
		s.sessions.Delete(sess.ID)
	}
	s.log.Infow("submission succeeded",
		"session_id", sess.ID, "kind", kind, "action", entry.Action, "document_id", entry.DocumentID)

	s.refetch(ctx, &result)
	return result, nil
}

// Cancel discards the session. A submission already in flight is not aborted.
func (s *procurementService) Cancel(ctx context.Context, id string) error {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return err
	}
	defer sess.Unlock()
	sess.Editor.Reset()
	sess.Close()
	s.sessions.Delete(id)
	s.log.Infow("procurement session cancelled", "session_id", id)
	return nil
}

// acquire returns the session locked and its lifetime extended. A session closed
// while the caller waited for the lock, or opened by another user, is not found.
func (s *procurementService) acquire(ctx context.Context, id string) (*session.Session, error) {
	sess, err := s.sessions.Get(id)
	if err != nil {
		return nil, err
	}
	sess.Lock()
	if sess.Closed() || !sess.OwnedBy(session.UserIDFrom(ctx)) {
		sess.Unlock()
		return nil, session.NotFound(id)
	}
	if err := s.sessions.Touch(sess); err != nil {
		sess.Unlock()
		return nil, err
	}
	return sess, nil
}

// mutate runs fn under the session lock and returns the resulting view with the
// notifications fn raised.
func (s *procurementService) mutate(ctx context.Context, id string, fn func(*session.Session) error) (SessionView, error) {
	sess, err := s.acquire(ctx, id)
	if err != nil {
		return SessionView{}, err
	}
	defer sess.Unlock()

	if sess.Submitting() {
		return SessionView{}, errSubmitting(sess.ID)
	}

	if err := fn(sess); err != nil {
		sess.Recorder.Drain()
		return SessionView{}, err
	}
	return s.view(sess), nil
}

func (s *procurementService) fetchSeed(ctx context.Context, kind lineeditor.Kind, documentID, invoiceID *int64) (*lineeditor.Document, error) {
	switch {
	case documentID != nil && kind == lineeditor.KindPurchaseInvoice:
		invoice, err := s.api.GetPurchaseInvoice(ctx, *documentID)
		if err != nil {
			return nil, err
		}
		return invoice.Document(), nil
	case documentID != nil:
		delivery, err := s.api.GetInboundDelivery(ctx, *documentID)
		if err != nil {
			return nil, err
		}
		return delivery.Document(), nil
	case invoiceID != nil && kind == lineeditor.KindInboundDelivery:
		invoice, err := s.api.GetPurchaseInvoice(ctx, *invoiceID)
		if err != nil {
			return nil, err
		}
		return invoice.DeliveryDocument(), nil
	case invoiceID != nil:
		return nil, ierr.NewError("purchase_invoice_id on a purchase invoice session").
			WithHint("A purchase invoice cannot be seeded from another invoice").
			Mark(ierr.ErrValidation)
	default:
		return nil, nil
	}
}

func (s *procurementService) send(
	ctx context.Context,
	kind lineeditor.Kind,
	documentID *int64,
	form lineeditor.FormData,
	destroyable []lineeditor.Line,
) (SubmitResult, []byte, error) {
	var result SubmitResult

	if kind == lineeditor.KindPurchaseInvoice {
		req := BuildPurchaseInvoicePayload(form, destroyable)
		payload := s.encodePayload(req)
		var err error
		if documentID == nil {
			result.PurchaseInvoice, err = s.api.CreatePurchaseInvoice(ctx, req)
		} else {
			result.PurchaseInvoice, err = s.api.UpdatePurchaseInvoice(ctx, *documentID, req)
		}
		return result, payload, err
	}

	req := BuildInboundDeliveryPayload(form, destroyable)
	payload := s.encodePayload(req)
	var err error
	if documentID == nil {
		result.InboundDelivery, err = s.api.CreateInboundDelivery(ctx, req)
	} else {
		result.InboundDelivery, err = s.api.UpdateInboundDelivery(ctx, *documentID, req)
	}
	return result, payload, err
}

// encodePayload renders req for the submission log. Encoding failures only cost
// the logged payload.
func (s *procurementService) encodePayload(req interface{}) []byte {
	payload, err := json.Marshal(req)
	if err != nil {
		s.log.Errorw("failed to encode submission payload", "error", err)
		return nil
	}
	return payload
}

// refetch replaces the write response with the stored document. A failed
// re-fetch keeps the write response.
func (s *procurementService) refetch(ctx context.Context, result *SubmitResult) {
	switch {
	case result.PurchaseInvoice != nil:
		invoice, err := s.api.GetPurchaseInvoice(ctx, result.PurchaseInvoice.ID)
		if err != nil {
			s.log.Warnw("failed to re-fetch purchase invoice", "id", result.PurchaseInvoice.ID, "error", err)
			return
		}
		result.PurchaseInvoice = invoice
	case result.InboundDelivery != nil:
		delivery, err := s.api.GetInboundDelivery(ctx, result.InboundDelivery.ID)
		if err != nil {
			s.log.Warnw("failed to re-fetch inbound delivery", "id", result.InboundDelivery.ID, "error", err)
			return
		}
		result.InboundDelivery = delivery
	}
}

func (s *procurementService) record(ctx context.Context, entry *model.SubmissionLog) {
	if s.logRepo == nil {
		return
	}
	if err := s.logRepo.Log(ctx, entry); err != nil {
		s.log.Errorw("failed to write submission log", "session_id", entry.SessionID, "error", err)
	}
}

func (s *procurementService) view(sess *session.Session) SessionView {
	ed := sess.Editor
	lines := lo.Map(ed.Lines(), func(l lineeditor.Line, _ int) LineView {
		return LineView{
			ID:               l.ID,
			ComponentID:      l.ComponentID,
			ComponentName:    l.ComponentName,
			Quantity:         l.Quantity,
			PricePerUnit:     l.PricePerUnit.StringFixed(2),
			LineTotal:        l.Total().StringFixed(2),
			ReceivedQuantity: l.ReceivedQuantity,
			DamagedQuantity:  l.DamagedQuantity,
		}
	})
	destroyed := lo.FilterMap(ed.Destroyable(), func(l lineeditor.Line, _ int) (int64, bool) {
		if l.ID == nil {
			return 0, false
		}
		return *l.ID, true
	})

	return SessionView{
		ID:               sess.ID,
		Kind:             ed.Kind(),
		DocumentID:       cloneID(sess.DocumentID),
		Header:           ed.Header(),
		Lines:            lines,
		DestroyedLineIDs: destroyed,
		EstimatedTotal:   ed.CalculateTotal().StringFixed(2),
		Submitting:       sess.Submitting(),
		Notifications:    sess.Recorder.Drain(),
	}
}

func (r SubmitResult) documentID() *int64 {
	switch {
	case r.PurchaseInvoice != nil:
		id := r.PurchaseInvoice.ID
		return &id
	case r.InboundDelivery != nil:
		id := r.InboundDelivery.ID
		return &id
	}
	return nil
}

func errSubmitting(id string) error {
	return ierr.NewErrorf("session %s is being submitted", id).
		WithHint("The document is being saved, please wait").
		Mark(ierr.ErrConflict)
}

func kindLabel(kind lineeditor.Kind) string {
	if kind == lineeditor.KindInboundDelivery {
		return "Inbound delivery"
	}
	return "Purchase invoice"
}

func cloneID(id *int64) *int64 {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
