package handlers

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"order-mgmt-svc/circuitbreaker"
	"order-mgmt-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func setupReportTest(t *testing.T) (*ReportHandler, sqlmock.Sqlmock, *gin.Engine) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}

	logger := zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel))
	handler := &ReportHandler{
		db:             db,
		logger:         logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/orders/report", handler.OrdersReport)

	return handler, mock, router
}

func TestReportHandler_OrdersReport_Success(t *testing.T) {
	handler, mock, router := setupReportTest(t)
	defer handler.db.Close()

	// Only products with orders inside the 90-day window appear; the join
	// drops everything else before grouping.
	rows := sqlmock.NewRows([]string{"name", "price", "order_quantity", "total_amount"}).
		AddRow("A", 10.0, 3, 30.0)

	mock.ExpectQuery("SELECT p.name, p.price, SUM").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/orders/report", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp struct {
		Report []models.ReportRow `json:"report"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(resp.Report) != 1 {
		t.Fatalf("Expected 1 report row, got %d", len(resp.Report))
	}

	row := resp.Report[0]
	if row.ProductName != "A" || row.Price != 10.0 || row.OrderQuantity != 3 || row.TotalAmount != 30.0 {
		t.Errorf("Unexpected report row: %+v", row)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

// capturedTimeArg records a time.Time query argument so the test can assert
// on it after the request.
type capturedTimeArg struct {
	dest *time.Time
}

func (a capturedTimeArg) Match(v driver.Value) bool {
	ts, ok := v.(time.Time)
	if ok {
		*a.dest = ts
	}
	return ok
}

func midnight(ts time.Time) time.Time {
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, ts.Location())
}

func TestReportHandler_OrdersReport_WindowBounds(t *testing.T) {
	handler, mock, router := setupReportTest(t)
	defer handler.db.Close()

	var gotStart, gotEnd time.Time
	rows := sqlmock.NewRows([]string{"name", "price", "order_quantity", "total_amount"})

	mock.ExpectQuery("SELECT p.name, p.price, SUM").
		WithArgs(capturedTimeArg{&gotStart}, capturedTimeArg{&gotEnd}).
		WillReturnRows(rows)

	// Midnight is computed before and after the request so the assertions
	// hold even if the test straddles a day boundary.
	dayBefore := midnight(time.Now())
	req := httptest.NewRequest("GET", "/orders/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	dayAfter := midnight(time.Now())

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	if h, m, s := gotStart.Clock(); h != 0 || m != 0 || s != 0 {
		t.Errorf("Expected window start at midnight, got %v", gotStart)
	}

	if !gotStart.Equal(dayBefore.AddDate(0, 0, -90)) && !gotStart.Equal(dayAfter.AddDate(0, 0, -90)) {
		t.Errorf("Expected window start 90 days before %v, got %v", dayBefore, gotStart)
	}

	// 90 days back plus the exclusive upper bound one day ahead: 91 days wide.
	if !gotEnd.Equal(gotStart.AddDate(0, 0, 91)) {
		t.Errorf("Expected window end 91 days after start %v, got %v", gotStart, gotEnd)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestReportHandler_OrdersReport_Empty(t *testing.T) {
	handler, mock, router := setupReportTest(t)
	defer handler.db.Close()

	rows := sqlmock.NewRows([]string{"name", "price", "order_quantity", "total_amount"})

	mock.ExpectQuery("SELECT p.name, p.price, SUM").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(rows)

	req := httptest.NewRequest("GET", "/orders/report", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status %d, got %d", http.StatusOK, w.Code)
	}

	expectedBody := `{"report":[]}`
	if w.Body.String() != expectedBody {
		t.Errorf("Expected body %s, got %s", expectedBody, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestReportHandler_OrdersReport_QueryError(t *testing.T) {
	handler, mock, router := setupReportTest(t)
	defer handler.db.Close()

	mock.ExpectQuery("SELECT p.name, p.price, SUM").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("relation does not exist"))

	req := httptest.NewRequest("GET", "/orders/report", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}

	expectedBody := `{"error":"Internal server error"}`
	if w.Body.String() != expectedBody {
		t.Errorf("Expected body %s, got %s", expectedBody, w.Body.String())
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestReportHandler_OrdersReport_CircuitOpens(t *testing.T) {
	handler, mock, router := setupReportTest(t)
	defer handler.db.Close()

	for i := 0; i < 5; i++ {
		mock.ExpectQuery("SELECT p.name, p.price, SUM").
			WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnError(errors.New("connection refused"))
	}

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest("GET", "/orders/report", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Request %d: expected status %d, got %d", i, http.StatusInternalServerError, w.Code)
		}
	}

	// Sixth request trips on the open circuit without touching the database.
	req := httptest.NewRequest("GET", "/orders/report", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}
