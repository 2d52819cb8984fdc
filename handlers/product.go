package handlers

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"order-mgmt-svc/cache"
	"order-mgmt-svc/middleware"
	"order-mgmt-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const upsertProductQuery = "INSERT INTO products (name, price) VALUES ($1, $2) " +
	"ON CONFLICT (name) DO UPDATE SET price = EXCLUDED.price, updated_at = CURRENT_TIMESTAMP"

type ProductHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	logger      *zap.Logger
}

func NewProductHandler(db *sql.DB, redisClient *redis.Client, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		db:          db,
		redisClient: redisClient,
		logger:      logger,
	}
}

// AddProducts applies a bulk JSON upload of {product_name, price} pairs as
// upserts keyed on name. A malformed entry fails the bind and rejects the
// whole request before any write.
func (h *ProductHandler) AddProducts(c *gin.Context) {
	ctx, span := otel.Tracer("order-mgmt-svc").Start(c.Request.Context(), "AddProducts")
	defer span.End()

	var req models.AddProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(req.ProductsData)))

	if len(req.ProductsData) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "Products created successfully"})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for _, item := range req.ProductsData {
		if _, err := tx.ExecContext(ctx, upsertProductQuery, item.ProductName, *item.Price); err != nil {
			tx.Rollback()
			span.RecordError(err)
			h.logger.Error("Failed to upsert product", zap.String("name", item.ProductName), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for _, item := range req.ProductsData {
		h.invalidateProduct(ctx, item.ProductName)
	}

	middleware.RecordProductsUpserted("json", len(req.ProductsData))
	h.logger.Info("Products upserted", zap.Int("count", len(req.ProductsData)))
	c.JSON(http.StatusOK, gin.H{"message": "Products created successfully"})
}

// UploadProducts applies a CSV file of name,price rows as upserts. The whole
// file is parsed and validated before the first write, so a bad row leaves the
// catalog untouched.
func (h *ProductHandler) UploadProducts(c *gin.Context) {
	ctx, span := otel.Tracer("order-mgmt-svc").Start(c.Request.Context(), "UploadProducts")
	defer span.End()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided"})
		return
	}
	if strings.TrimSpace(fileHeader.Filename) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file selected"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to open uploaded file", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	defer file.Close()

	upserts, err := parseProductCSV(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Int("products.count", len(upserts)))

	if len(upserts) == 0 {
		c.JSON(http.StatusOK, gin.H{"message": "Product information uploaded successfully"})
		return
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to begin transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for _, u := range upserts {
		if _, err := tx.ExecContext(ctx, upsertProductQuery, u.name, u.price); err != nil {
			tx.Rollback()
			span.RecordError(err)
			h.logger.Error("Failed to upsert product", zap.String("name", u.name), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to commit transaction", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	for _, u := range upserts {
		h.invalidateProduct(ctx, u.name)
	}

	middleware.RecordProductsUpserted("csv", len(upserts))
	h.logger.Info("Products uploaded", zap.Int("count", len(upserts)))
	c.JSON(http.StatusOK, gin.H{"message": "Product information uploaded successfully"})
}

type productUpsert struct {
	name  string
	price float64
}

func parseProductCSV(r io.Reader) ([]productUpsert, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 2

	var upserts []productUpsert
	row := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			return nil, fmt.Errorf("invalid CSV at row %d", row)
		}

		name := strings.TrimSpace(record[0])
		if name == "" {
			return nil, fmt.Errorf("missing product name at row %d", row)
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
		if err != nil || price < 0 {
			return nil, fmt.Errorf("invalid price for product %s", name)
		}

		upserts = append(upserts, productUpsert{name: name, price: price})
	}

	return upserts, nil
}

func (h *ProductHandler) invalidateProduct(ctx context.Context, name string) {
	if h.redisClient == nil {
		return
	}
	if err := cache.DeleteProduct(ctx, h.redisClient, name); err != nil {
		h.logger.Warn("Failed to invalidate product cache", zap.String("name", name), zap.Error(err))
	}
}
