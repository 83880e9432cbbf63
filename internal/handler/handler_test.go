package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/session"
	"backoffice/internal/testutil"
	"backoffice/internal/upstream"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
)

var testSecret = []byte("handler-secret")

type envelope struct {
	Status     string               `json:"status"`
	StatusCode int                  `json:"status_code"`
	Data       json.RawMessage      `json:"data"`
	Pagination *struct{ Total int } `json:"pagination"`
	Error      string               `json:"error"`
}

type HandlerSuite struct {
	suite.Suite
	api    *testutil.FakeAPI
	router *gin.Engine
	token  string
}

func TestHandlers(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	log := logger.NewNop()

	s.api = testutil.NewFakeAPI(
		upstream.Component{ID: 1, Name: "CPU", UnitPrice: decimal.NewFromInt(1000000), CategoryName: "Processors"},
		upstream.Component{ID: 7, Name: "GPU", UnitPrice: decimal.NewFromInt(500), CategoryName: "Graphics"},
	)
	s.api.Invoices[12] = &upstream.PurchaseInvoice{
		ID:           12,
		SupplierName: "Acme",
		TotalAmount:  decimal.NewFromInt(1500),
		Lines: []upstream.PurchaseInvoiceLine{
			{ID: 55, ComponentID: 7, ComponentName: "GPU", Quantity: 3, PricePerUnit: decimal.NewFromInt(500), TotalLineAmount: decimal.NewFromInt(1500)},
		},
	}

	db := testutil.NewTestDB(s.T())
	logRepo := repository.NewSubmissionRepository(db)
	catalog := service.NewCatalogService(s.api, time.Minute, log)
	procurement := service.NewProcurementService(session.NewStore(time.Minute, time.Minute), s.api, catalog, logRepo, nil, log)

	s.router = gin.New()
	api := s.router.Group("/", middleware.RequireAuth(testSecret))
	NewProcurementHandler(procurement).RegisterRoutes(api)
	NewCatalogHandler(catalog).RegisterRoutes(api)
	NewReportHandler(service.NewReportService(s.api, log)).RegisterRoutes(api)
	NewSubmissionHandler(service.NewAuditService(logRepo, repository.NewTransactionManager(db))).RegisterRoutes(api)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	s.Require().NoError(err)
	s.token = token
}

func (s *HandlerSuite) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) decode(w *httptest.ResponseRecorder, data interface{}) envelope {
	var env envelope
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && len(env.Data) > 0 {
		s.Require().NoError(json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *HandlerSuite) TestRequiresAuth() {
	req := httptest.NewRequest(http.MethodGet, "/api/catalog/products", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerSuite) TestSearchProducts() {
	w := s.do(http.MethodGet, "/api/catalog/products?search=graph", nil)
	s.Require().Equal(http.StatusOK, w.Code)

	var products []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	s.decode(w, &products)
	s.Require().Len(products, 1)
	s.Equal("GPU", products[0].Name)
}

func (s *HandlerSuite) TestEditAndSubmitInvoice() {
	w := s.do(http.MethodPost, "/api/procurement/sessions", map[string]interface{}{"kind": "purchase_invoice", "document_id": 12})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var view service.SessionView
	s.decode(w, &view)
	base := "/api/procurement/sessions/" + view.ID

	w = s.do(http.MethodPost, base+"/lines", map[string]interface{}{"product_id": 1})
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	s.decode(w, &view)
	s.Len(view.Lines, 2)
	s.Equal("1001500.00", view.EstimatedTotal)

	w = s.do(http.MethodDelete, base+"/lines/7", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.decode(w, &view)
	s.Equal([]int64{55}, view.DestroyedLineIDs)

	w = s.do(http.MethodDelete, base+"/lines/7", nil)
	s.Equal(http.StatusNotFound, w.Code)
	s.Equal("That product is not on this document", s.decode(w, nil).Error)

	w = s.do(http.MethodPatch, base+"/lines/1", map[string]interface{}{"quantity": 3})
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, base+"/validate", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var validation service.ValidationResult
	s.decode(w, &validation)
	s.True(validation.Valid)

	w = s.do(http.MethodPost, base+"/submit", nil)
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())
	var result service.SubmitResult
	s.decode(w, &result)
	s.Require().NotNil(result.PurchaseInvoice)
	s.Require().Len(result.PurchaseInvoice.Lines, 1)
	s.Equal(3, result.PurchaseInvoice.Lines[0].Quantity)

	w = s.do(http.MethodGet, base, nil)
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodGet, "/api/submissions?status=SUCCEEDED", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	var logs []service.SubmissionLogResponse
	env := s.decode(w, &logs)
	s.Require().Len(logs, 1)
	s.Equal("user-7", logs[0].UserID)
	s.Equal("UPDATE", logs[0].Action)
	s.Require().NotNil(env.Pagination)
	s.Equal(1, env.Pagination.Total)
}

func (s *HandlerSuite) TestDeliveryReceiptValidation() {
	w := s.do(http.MethodPost, "/api/procurement/sessions", map[string]interface{}{"kind": "inbound_delivery", "purchase_invoice_id": 12})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var view service.SessionView
	s.decode(w, &view)
	base := "/api/procurement/sessions/" + view.ID

	w = s.do(http.MethodPatch, base+"/lines/7/receipt", map[string]interface{}{"received_quantity": 3, "damaged_quantity": 1})
	s.Require().Equal(http.StatusOK, w.Code)

	w = s.do(http.MethodPost, base+"/submit", nil)
	s.Equal(http.StatusBadRequest, w.Code)
	s.Contains(s.decode(w, nil).Error, "exceed the expected quantity")
	s.Empty(s.api.DeliveryRequests)

	w = s.do(http.MethodPatch, base+"/lines/7/receipt", map[string]interface{}{"received_quantity": -1, "damaged_quantity": 0})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPatch, base+"/lines/7/receipt", map[string]interface{}{"received_quantity": 2})
	s.Equal(http.StatusBadRequest, w.Code, "damaged_quantity is required")
}

func (s *HandlerSuite) TestBadRequests() {
	w := s.do(http.MethodPost, "/api/procurement/sessions", map[string]interface{}{"kind": "sales_order"})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/procurement/sessions", map[string]interface{}{"kind": "purchase_invoice", "document_id": 404})
	s.Equal(http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/procurement/sessions", map[string]interface{}{"kind": "purchase_invoice"})
	var view service.SessionView
	s.decode(w, &view)

	w = s.do(http.MethodPatch, fmt.Sprintf("/api/procurement/sessions/%s/lines/abc", view.ID), map[string]interface{}{"quantity": 1})
	s.Equal(http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/procurement/sessions/missing/lines", map[string]interface{}{"product_id": 1})
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerSuite) TestPurchaseInvoiceReport() {
	w := s.do(http.MethodGet, "/api/reports/purchase-invoices.xlsx", nil)
	s.Require().Equal(http.StatusOK, w.Code)
	s.Equal(xlsxContentType, w.Header().Get("Content-Type"))
	s.Contains(w.Header().Get("Content-Disposition"), "purchase-invoices-")

	f, err := excelize.OpenReader(w.Body)
	s.Require().NoError(err)
	defer f.Close()
	rows, err := f.GetRows("Purchase invoices")
	s.Require().NoError(err)
	s.Len(rows, 2)
}

func (s *HandlerSuite) TestSessionOfAnotherUserIsNotFound() {
	w := s.do(http.MethodPost, "/api/procurement/sessions", map[string]interface{}{"kind": "purchase_invoice"})
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())
	var view service.SessionView
	s.decode(w, &view)

	other, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-8",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(testSecret)
	s.Require().NoError(err)
	owner := s.token
	s.token = other
	defer func() { s.token = owner }()

	w = s.do(http.MethodGet, "/api/procurement/sessions/"+view.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)
	w = s.do(http.MethodDelete, "/api/procurement/sessions/"+view.ID, nil)
	s.Equal(http.StatusNotFound, w.Code)

	s.token = owner
	w = s.do(http.MethodGet, "/api/procurement/sessions/"+view.ID, nil)
	s.Equal(http.StatusOK, w.Code)
}
