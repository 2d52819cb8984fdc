package handlers

import (
	"database/sql"
	"net/http"
	"time"

	"order-mgmt-svc/circuitbreaker"
	"order-mgmt-svc/models"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const reportQuery = `
	SELECT p.name, p.price, SUM(oi.quantity) AS order_quantity, p.price * SUM(oi.quantity) AS total_amount
	FROM order_items oi
	JOIN orders o ON o.id = oi.order_id
	JOIN products p ON p.id = oi.product_id
	WHERE o.order_date >= $1 AND o.order_date < $2
	GROUP BY p.name, p.price
	ORDER BY p.name`

type ReportHandler struct {
	db             *sql.DB
	logger         *zap.Logger
	circuitBreaker *circuitbreaker.CircuitBreaker
}

func NewReportHandler(db *sql.DB, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{
		db:             db,
		logger:         logger,
		circuitBreaker: circuitbreaker.NewCircuitBreaker(5, 30*time.Second),
	}
}

// OrdersReport aggregates the last 90 days of order items per product.
// The window is inclusive on both ends at date granularity. Products with no
// qualifying orders are omitted entirely (inner join).
func (h *ReportHandler) OrdersReport(c *gin.Context) {
	ctx, span := otel.Tracer("order-mgmt-svc").Start(c.Request.Context(), "OrdersReport")
	defer span.End()

	now := time.Now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	windowStart := dayStart.AddDate(0, 0, -90)
	windowEnd := dayStart.AddDate(0, 0, 1)

	report := []models.ReportRow{}
	queryErr := h.circuitBreaker.Execute(ctx, func() error {
		rows, err := h.db.QueryContext(ctx, reportQuery, windowStart, windowEnd)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var row models.ReportRow
			if err := rows.Scan(&row.ProductName, &row.Price, &row.OrderQuantity, &row.TotalAmount); err != nil {
				return err
			}
			report = append(report, row)
		}
		return rows.Err()
	})

	if queryErr != nil {
		if queryErr == circuitbreaker.ErrCircuitOpen {
			span.SetAttributes(attribute.String("circuit.state", "open"))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
			return
		}
		span.RecordError(queryErr)
		h.logger.Error("Failed to generate orders report", zap.Error(queryErr))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("report.rows", len(report)))
	c.JSON(http.StatusOK, gin.H{"report": report})
}
