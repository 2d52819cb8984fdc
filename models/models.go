package models

import "time"

type Product struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Order struct {
	ID        int       `json:"id"`
	OrderDate time.Time `json:"order_date"`
}

type OrderItem struct {
	ID        int `json:"id"`
	OrderID   int `json:"order_id"`
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}

// ProductUpsert is one entry of a bulk product upload. Price is a pointer so
// a missing "price" key fails binding while an explicit 0 is still accepted.
type ProductUpsert struct {
	ProductName string   `json:"product_name" binding:"required"`
	Price       *float64 `json:"price" binding:"required,gte=0"`
}

type AddProductsRequest struct {
	ProductsData []ProductUpsert `json:"products_data" binding:"dive"`
}

// OrderItemRequest carries no quantity binding tag on purpose: the order row
// must be persisted before item-level validation runs, so quantity is checked
// in the handler loop rather than at bind time.
type OrderItemRequest struct {
	ProductName string `json:"product_name" binding:"required"`
	Quantity    int    `json:"quantity"`
}

type CreateOrderRequest struct {
	OrderItems []OrderItemRequest `json:"order_items" binding:"dive"`
}

// ReportRow JSON keys are part of the report contract, capitals and all.
type ReportRow struct {
	ProductName   string  `json:"Product Name"`
	Price         float64 `json:"Price"`
	OrderQuantity int     `json:"Order Quantity"`
	TotalAmount   float64 `json:"Total Amount"`
}

type OrderEvent struct {
	OrderID   int              `json:"order_id"`
	ItemCount int              `json:"item_count"`
	Items     []OrderItemEvent `json:"items"`
	EventType string           `json:"event_type"` // order_created
}

type OrderItemEvent struct {
	ProductID int `json:"product_id"`
	Quantity  int `json:"quantity"`
}
