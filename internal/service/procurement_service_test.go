package service

import (
	"context"
	"sync"
	"testing"
	"time"

	ierr "backoffice/internal/errors"
	"backoffice/internal/lineeditor"
	"backoffice/internal/logger"
	"backoffice/internal/model"
	"backoffice/internal/repository"
	"backoffice/internal/session"
	"backoffice/internal/testutil"
	"backoffice/internal/upstream"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type recordingPublisher struct {
	mu    sync.Mutex
	items map[string][]lineeditor.Notification
}

func (p *recordingPublisher) Notifier(sessionID string) lineeditor.Notifier {
	return lineeditor.NotifierFunc(func(n lineeditor.Notification) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.items[sessionID] = append(p.items[sessionID], n)
	})
}

func (p *recordingPublisher) For(sessionID string) []lineeditor.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]lineeditor.Notification(nil), p.items[sessionID]...)
}

type ProcurementServiceSuite struct {
	suite.Suite
	ctx       context.Context
	api       *testutil.FakeAPI
	sessions  session.Store
	logRepo   repository.SubmissionRepository
	publisher *recordingPublisher
	service   ProcurementService
}

func TestProcurementService(t *testing.T) {
	suite.Run(t, new(ProcurementServiceSuite))
}

func (s *ProcurementServiceSuite) SetupTest() {
	s.ctx = session.WithUserID(context.Background(), "user-1")
	s.api = testutil.NewFakeAPI(
		upstream.Component{ID: 1, Name: "CPU", UnitPrice: decimal.NewFromInt(1000000), CategoryName: "Processors"},
		upstream.Component{ID: 2, Name: "RAM", UnitPrice: decimal.RequireFromString("250.50"), CategoryName: "Memory"},
		upstream.Component{ID: 7, Name: "GPU", UnitPrice: decimal.NewFromInt(500), CategoryName: "Graphics"},
		upstream.Component{ID: 8, Name: "PSU", UnitPrice: decimal.NewFromInt(90), CategoryName: "Power"},
	)
	s.api.Invoices[12] = &upstream.PurchaseInvoice{
		ID:                   12,
		SupplierName:         "Acme Components",
		ExpectedDeliveryDate: "2026-11-03T00:00:00.000Z",
		Status:               "draft",
		Lines: []upstream.PurchaseInvoiceLine{
			{ID: 55, ComponentID: 7, ComponentName: "GPU", Quantity: 3, PricePerUnit: decimal.NewFromInt(500)},
			{ID: 56, ComponentID: 8, ComponentName: "PSU", Quantity: 1, PricePerUnit: decimal.NewFromInt(90)},
		},
	}

	log := logger.NewNop()
	s.sessions = session.NewStore(time.Minute, time.Minute)
	s.logRepo = repository.NewSubmissionRepository(testutil.NewTestDB(s.T()))
	s.publisher = &recordingPublisher{items: make(map[string][]lineeditor.Notification)}
	s.service = NewProcurementService(
		s.sessions,
		s.api,
		NewCatalogService(s.api, time.Minute, log),
		s.logRepo,
		s.publisher,
		log,
	)
}

func (s *ProcurementServiceSuite) open(req OpenSessionRequest) SessionView {
	view, err := s.service.OpenSession(s.ctx, req)
	s.Require().NoError(err)
	return view
}

func (s *ProcurementServiceSuite) submissions() []model.SubmissionLog {
	logs, _, err := s.logRepo.List(s.ctx, repository.SubmissionListFilter{Page: 1, Limit: 50})
	s.Require().NoError(err)
	return logs
}

func (s *ProcurementServiceSuite) TestCreatePurchaseInvoice() {
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice"})
	s.Empty(view.Lines)
	s.Nil(view.DocumentID)

	_, err := s.service.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 1})
	s.Require().NoError(err)
	view, err = s.service.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 1})
	s.Require().NoError(err)

	s.Require().Len(view.Lines, 1)
	s.Equal(2, view.Lines[0].Quantity)
	s.Nil(view.Lines[0].ID)
	s.Equal("2000000.00", view.Lines[0].LineTotal)
	s.Equal("2000000.00", view.EstimatedTotal)
	s.Equal([]lineeditor.Notification{{Level: lineeditor.LevelSuccess, Message: "CPU added"}}, view.Notifications)

	view, err = s.service.UpdateHeader(s.ctx, view.ID, UpdateHeaderRequest{
		SupplierName:         "Acme",
		ExpectedDeliveryDate: "2026-12-01T10:00:00Z",
	})
	s.Require().NoError(err)
	s.Equal("2026-12-01", view.Header.ExpectedDeliveryDate)

	result, err := s.service.Submit(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.SubmissionActionCreate, result.Action)
	s.Require().NotNil(result.PurchaseInvoice)
	s.Equal("Acme", result.PurchaseInvoice.SupplierName)
	s.True(decimal.NewFromInt(2000000).Equal(result.PurchaseInvoice.TotalAmount))
	s.Contains(result.Notifications, lineeditor.Notification{Level: lineeditor.LevelSuccess, Message: "Purchase invoice saved"})

	s.Require().Len(s.api.InvoiceRequests, 1)
	attrs := s.api.InvoiceRequests[0].PurchaseInvoice
	s.Require().Len(attrs.LinesAttributes, 1)
	s.Nil(attrs.LinesAttributes[0].ID)
	s.Equal(int64(1), attrs.LinesAttributes[0].ComponentID)
	s.Equal(2, attrs.LinesAttributes[0].Quantity)

	_, err = s.service.GetSession(s.ctx, view.ID)
	s.True(ierr.IsNotFound(err), "session is discarded after a successful submit")

	logs := s.submissions()
	s.Require().Len(logs, 1)
	s.Equal(model.SubmissionSucceeded, logs[0].Status)
	s.Equal("user-1", logs[0].UserID)
	s.Require().NotNil(logs[0].DocumentID)
	s.Equal(result.PurchaseInvoice.ID, *logs[0].DocumentID)
}

func (s *ProcurementServiceSuite) TestEditInvoiceDestroysRemovedLineOnce() {
	id := int64(12)
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice", DocumentID: &id})
	s.Require().NotNil(view.DocumentID)
	s.Equal(int64(12), *view.DocumentID)
	s.Equal("2026-11-03", view.Header.ExpectedDeliveryDate)
	s.Require().Len(view.Lines, 2)

	view, err := s.service.RemoveLine(s.ctx, view.ID, 7)
	s.Require().NoError(err)
	s.Equal([]int64{55}, view.DestroyedLineIDs)
	s.Equal([]lineeditor.Notification{{Level: lineeditor.LevelInfo, Message: "GPU removed"}}, view.Notifications)

	_, err = s.service.RemoveLine(s.ctx, view.ID, 7)
	s.True(ierr.IsNotFound(err))

	result, err := s.service.Submit(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Equal(model.SubmissionActionUpdate, result.Action)

	s.Require().Len(s.api.InvoiceRequests, 1)
	destroyed := lo.Filter(s.api.InvoiceRequests[0].PurchaseInvoice.LinesAttributes, func(a upstream.PurchaseInvoiceLineAttributes, _ int) bool {
		return a.Destroy
	})
	s.Require().Len(destroyed, 1)
	s.Equal(int64(55), *destroyed[0].ID)

	s.Require().Len(result.PurchaseInvoice.Lines, 1)
	s.Equal(int64(56), result.PurchaseInvoice.Lines[0].ID)
}

func (s *ProcurementServiceSuite) TestUpdateQuantityBelowOneRemoves() {
	id := int64(12)
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice", DocumentID: &id})

	view, err := s.service.UpdateQuantity(s.ctx, view.ID, 8, 4)
	s.Require().NoError(err)
	s.Equal("360.00", view.Lines[1].LineTotal)
	s.Equal("1860.00", view.EstimatedTotal)

	view, err = s.service.UpdateQuantity(s.ctx, view.ID, 8, 0)
	s.Require().NoError(err)
	s.Len(view.Lines, 1)
	s.Equal([]int64{56}, view.DestroyedLineIDs)

	_, err = s.service.UpdateQuantity(s.ctx, view.ID, 99, 2)
	s.True(ierr.IsNotFound(err))
}

func (s *ProcurementServiceSuite) TestSubmitRejectsInvalidForm() {
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice"})

	_, err := s.service.Submit(s.ctx, view.ID)
	s.True(ierr.IsValidation(err))
	s.Equal("Add at least one product", ierr.DisplayMessage(err))

	_, err = s.service.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 2})
	s.Require().NoError(err)
	_, err = s.service.Submit(s.ctx, view.ID)
	s.True(ierr.IsValidation(err))
	s.Equal("Supplier name is required", ierr.DisplayMessage(err))

	s.Empty(s.api.InvoiceRequests)
	s.Empty(s.submissions())

	got, err := s.service.GetSession(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Len(got.Lines, 1)
	s.False(got.Submitting)

	published := s.publisher.For(view.ID)
	s.Equal(lineeditor.LevelError, published[len(published)-1].Level)
}

func (s *ProcurementServiceSuite) TestSubmitFailureKeepsState() {
	id := int64(12)
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice", DocumentID: &id})
	_, err := s.service.RemoveLine(s.ctx, view.ID, 7)
	s.Require().NoError(err)

	s.api.WriteErr = ierr.NewError("boom").WithHint("Supplier is locked").Mark(ierr.ErrHTTPClient)
	_, err = s.service.Submit(s.ctx, view.ID)
	s.True(ierr.IsHTTPClient(err))

	got, err := s.service.GetSession(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Len(got.Lines, 1)
	s.Equal([]int64{55}, got.DestroyedLineIDs)
	s.False(got.Submitting)

	logs := s.submissions()
	s.Require().Len(logs, 1)
	s.Equal(model.SubmissionFailed, logs[0].Status)
	s.Contains(logs[0].Payload, `"_destroy":true`)

	published := s.publisher.For(view.ID)
	s.Equal(lineeditor.Notification{Level: lineeditor.LevelError, Message: "Supplier is locked"}, published[len(published)-1])

	s.api.WriteErr = nil
	_, err = s.service.Submit(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Len(s.submissions(), 2)
}

func (s *ProcurementServiceSuite) TestConcurrentSubmitIsRejected() {
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice"})
	_, err := s.service.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 1})
	s.Require().NoError(err)
	_, err = s.service.UpdateHeader(s.ctx, view.ID, UpdateHeaderRequest{SupplierName: "Acme"})
	s.Require().NoError(err)

	s.api.Block = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.service.Submit(s.ctx, view.ID)
		done <- err
	}()

	s.Require().Eventually(func() bool {
		got, err := s.service.GetSession(s.ctx, view.ID)
		return err == nil && got.Submitting
	}, time.Second, 5*time.Millisecond)

	_, err = s.service.Submit(s.ctx, view.ID)
	s.True(ierr.IsConflict(err))
	_, err = s.service.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 2})
	s.True(ierr.IsConflict(err))

	close(s.api.Block)
	s.Require().NoError(<-done)
	s.Len(s.api.InvoiceRequests, 1)
}

func (s *ProcurementServiceSuite) TestInboundDeliveryFromInvoice() {
	invoiceID := int64(12)
	view := s.open(OpenSessionRequest{Kind: "inbound_delivery", PurchaseInvoiceID: &invoiceID})
	s.Nil(view.DocumentID)
	s.Require().NotNil(view.Header.PurchaseInvoiceID)
	s.Equal(int64(12), *view.Header.PurchaseInvoiceID)
	s.Require().Len(view.Lines, 2)
	s.Nil(view.Lines[0].ID)
	s.Equal(3, view.Lines[0].Quantity)

	_, err := s.service.UpdateReceipt(s.ctx, view.ID, 7, 3, 1)
	s.Require().NoError(err)

	result, err := s.service.Validate(s.ctx, view.ID)
	s.Require().NoError(err)
	s.False(result.Valid)
	s.Contains(result.Message, "GPU")
	s.Require().Len(result.Session.Notifications, 1)
	s.Equal(lineeditor.LevelError, result.Session.Notifications[0].Level)

	_, err = s.service.UpdateReceipt(s.ctx, view.ID, 7, 2, 1)
	s.Require().NoError(err)
	result, err = s.service.Validate(s.ctx, view.ID)
	s.Require().NoError(err)
	s.True(result.Valid)

	submitted, err := s.service.Submit(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Require().NotNil(submitted.InboundDelivery)
	s.Equal(lineeditor.KindInboundDelivery, submitted.Kind)
	s.Require().NotNil(submitted.InboundDelivery.PurchaseInvoiceID)
	s.Equal(int64(12), *submitted.InboundDelivery.PurchaseInvoiceID)
	expected, received, damaged := submitted.InboundDelivery.Quantities()
	s.Equal([]int{4, 2, 1}, []int{expected, received, damaged})
}

func (s *ProcurementServiceSuite) TestUpdateReceiptOnInvoiceIsInvalid() {
	id := int64(12)
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice", DocumentID: &id})
	_, err := s.service.UpdateReceipt(s.ctx, view.ID, 7, 1, 0)
	s.True(ierr.IsInvalidOperation(err))
}

func (s *ProcurementServiceSuite) TestReseedKeysOnDocumentIdentity() {
	id := int64(12)
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice", DocumentID: &id})
	_, err := s.service.RemoveLine(s.ctx, view.ID, 7)
	s.Require().NoError(err)

	view, err = s.service.Reseed(s.ctx, view.ID, ReseedRequest{DocumentID: &id})
	s.Require().NoError(err)
	s.Len(view.Lines, 1, "same document keeps local edits")

	s.api.Invoices[13] = &upstream.PurchaseInvoice{ID: 13, SupplierName: "Acme Components"}
	other := int64(13)
	view, err = s.service.Reseed(s.ctx, view.ID, ReseedRequest{DocumentID: &other})
	s.Require().NoError(err)
	s.Empty(view.Lines)
	s.Empty(view.DestroyedLineIDs)
	s.Equal(int64(13), *view.DocumentID)
}

func (s *ProcurementServiceSuite) TestOpenUnknownDocument() {
	id := int64(404)
	_, err := s.service.OpenSession(s.ctx, OpenSessionRequest{Kind: "inbound_delivery", DocumentID: &id})
	s.True(ierr.IsNotFound(err))
	s.Zero(s.sessions.Count())
}

func (s *ProcurementServiceSuite) TestCancelDiscardsSession() {
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice"})
	s.Require().NoError(s.service.Cancel(s.ctx, view.ID))
	_, err := s.service.GetSession(s.ctx, view.ID)
	s.True(ierr.IsNotFound(err))
	s.True(ierr.IsNotFound(s.service.Cancel(s.ctx, view.ID)))
}

func (s *ProcurementServiceSuite) TestAddUnknownProduct() {
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice"})
	_, err := s.service.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 999})
	s.True(ierr.IsNotFound(err))
}

// staleStore runs onGet once right after a lookup, so the caller holds a
// session that another request closes before the caller locks it.
type staleStore struct {
	session.Store
	onGet func()
}

func (st *staleStore) Get(id string) (*session.Session, error) {
	sess, err := st.Store.Get(id)
	if hook := st.onGet; hook != nil {
		st.onGet = nil
		hook()
	}
	return sess, err
}

func (s *ProcurementServiceSuite) TestRequestWaitingDuringCancelSeesNotFound() {
	stale := &staleStore{Store: s.sessions}
	svc := NewProcurementService(stale, s.api, NewCatalogService(s.api, time.Minute, logger.NewNop()), s.logRepo, nil, logger.NewNop())

	id := int64(12)
	view, err := svc.OpenSession(s.ctx, OpenSessionRequest{Kind: "purchase_invoice", DocumentID: &id})
	s.Require().NoError(err)

	stale.onGet = func() {
		s.Require().NoError(svc.Cancel(s.ctx, view.ID))
	}
	_, err = svc.UpdateHeader(s.ctx, view.ID, UpdateHeaderRequest{SupplierName: "Other"})
	s.True(ierr.IsNotFound(err))

	s.Zero(s.sessions.Count(), "cancelled session must stay discarded")
	_, err = svc.GetSession(s.ctx, view.ID)
	s.True(ierr.IsNotFound(err))
	_, err = svc.Submit(s.ctx, view.ID)
	s.True(ierr.IsNotFound(err))
	s.Empty(s.api.InvoiceRequests)
}

func (s *ProcurementServiceSuite) TestRequestWaitingDuringSubmitSeesNotFound() {
	stale := &staleStore{Store: s.sessions}
	svc := NewProcurementService(stale, s.api, NewCatalogService(s.api, time.Minute, logger.NewNop()), s.logRepo, nil, logger.NewNop())

	view, err := svc.OpenSession(s.ctx, OpenSessionRequest{Kind: "purchase_invoice"})
	s.Require().NoError(err)
	_, err = svc.AddLine(s.ctx, view.ID, AddLineRequest{ProductID: 1})
	s.Require().NoError(err)
	_, err = svc.UpdateHeader(s.ctx, view.ID, UpdateHeaderRequest{SupplierName: "Acme"})
	s.Require().NoError(err)

	stale.onGet = func() {
		_, err := svc.Submit(s.ctx, view.ID)
		s.Require().NoError(err)
	}
	_, err = svc.Validate(s.ctx, view.ID)
	s.True(ierr.IsNotFound(err))
	s.Zero(s.sessions.Count())
	s.Len(s.api.InvoiceRequests, 1)
}

func (s *ProcurementServiceSuite) TestSessionOfAnotherUserIsNotFound() {
	view := s.open(OpenSessionRequest{Kind: "purchase_invoice"})
	other := session.WithUserID(context.Background(), "user-2")

	_, err := s.service.GetSession(other, view.ID)
	s.True(ierr.IsNotFound(err))
	_, err = s.service.AddLine(other, view.ID, AddLineRequest{ProductID: 1})
	s.True(ierr.IsNotFound(err))
	_, err = s.service.Submit(other, view.ID)
	s.True(ierr.IsNotFound(err))
	s.True(ierr.IsNotFound(s.service.Cancel(other, view.ID)))

	got, err := s.service.GetSession(s.ctx, view.ID)
	s.Require().NoError(err)
	s.Empty(got.Lines)
}
