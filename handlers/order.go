package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"order-mgmt-svc/cache"
	"order-mgmt-svc/kafka"
	"order-mgmt-svc/middleware"
	"order-mgmt-svc/models"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const productCacheTTL = 5 * time.Minute

type OrderHandler struct {
	db          *sql.DB
	redisClient *redis.Client
	producer    kafka.Publisher
	logger      *zap.Logger
}

func NewOrderHandler(db *sql.DB, redisClient *redis.Client, producer kafka.Publisher, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		db:          db,
		redisClient: redisClient,
		producer:    producer,
		logger:      logger,
	}
}

// CreateOrder persists the order row first, then validates and inserts items
// one by one. On a missing product it stops with an error naming the product;
// the order row and any items inserted before the failure stay persisted.
// The order row and its items are therefore visible in two phases, not
// atomically.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	ctx, span := otel.Tracer("order-mgmt-svc").Start(c.Request.Context(), "CreateOrder")
	defer span.End()

	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	span.SetAttributes(attribute.Int("order.items", len(req.OrderItems)))

	var order models.Order
	err := h.db.QueryRowContext(ctx,
		"INSERT INTO orders DEFAULT VALUES RETURNING id, order_date",
	).Scan(&order.ID, &order.OrderDate)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("Failed to create order", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	span.SetAttributes(attribute.Int("order.id", order.ID))

	var eventItems []models.OrderItemEvent
	for _, item := range req.OrderItems {
		if item.Quantity <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("Quantity must be a positive integer for product %s", item.ProductName),
			})
			return
		}

		product, err := h.findProductByName(ctx, item.ProductName)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				c.JSON(http.StatusNotFound, gin.H{
					"error": fmt.Sprintf("Product %s not found", item.ProductName),
				})
				return
			}
			span.RecordError(err)
			h.logger.Error("Failed to look up product", zap.String("name", item.ProductName), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		_, err = h.db.ExecContext(ctx,
			"INSERT INTO order_items (order_id, product_id, quantity) VALUES ($1, $2, $3)",
			order.ID, product.ID, item.Quantity,
		)
		if err != nil {
			span.RecordError(err)
			h.logger.Error("Failed to create order item",
				zap.Int("order_id", order.ID),
				zap.String("name", item.ProductName),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		eventItems = append(eventItems, models.OrderItemEvent{
			ProductID: product.ID,
			Quantity:  item.Quantity,
		})
	}

	middleware.RecordOrderCreated()

	if h.producer != nil {
		event := models.OrderEvent{
			OrderID:   order.ID,
			ItemCount: len(eventItems),
			Items:     eventItems,
			EventType: "order_created",
		}
		if err := kafka.PublishOrderEvent(ctx, h.producer, "order_events", event, h.logger); err != nil {
			// Don't fail the request, but log the error
			h.logger.Error("Failed to publish order_created event", zap.Error(err))
		}
	}

	h.logger.Info("Order created", zap.Int("order_id", order.ID), zap.Int("items", len(eventItems)))
	c.JSON(http.StatusCreated, gin.H{"message": "Order created successfully"})
}

// findProductByName resolves a product by its exact name, consulting the
// Redis cache before the database. Absence is reported as sql.ErrNoRows.
func (h *OrderHandler) findProductByName(ctx context.Context, name string) (*models.Product, error) {
	if h.redisClient != nil {
		if data, err := cache.GetProduct(ctx, h.redisClient, name); err == nil {
			var product models.Product
			if err := json.Unmarshal(data, &product); err == nil {
				return &product, nil
			}
		}
	}

	var product models.Product
	err := h.db.QueryRowContext(ctx,
		"SELECT id, name, price FROM products WHERE name = $1",
		name,
	).Scan(&product.ID, &product.Name, &product.Price)
	if err != nil {
		return nil, err
	}

	if h.redisClient != nil {
		if err := cache.SetProduct(ctx, h.redisClient, name, product, productCacheTTL); err != nil {
			h.logger.Warn("Failed to cache product", zap.String("name", name), zap.Error(err))
		}
	}

	return &product, nil
}
