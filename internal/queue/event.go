// Package queue carries order lifecycle events over RabbitMQ.
package queue

import "time"

// Event types, also used as routing keys and queue names.
const (
	EventOrderPlaced    = "order.placed"
	EventOrderCancelled = "order.cancelled"
)

// OrderEvent is published after an order transaction commits. It holds
// enough for downstream consumers to log or notify without querying the
// database.
type OrderEvent struct {
	Type        string           `json:"type"`
	OrderID     string           `json:"order_id"`
	UserID      string           `json:"user_id"`
	UserName    string           `json:"user_name,omitempty"`
	ActorID     string           `json:"actor_id,omitempty"`
	Items       []OrderEventItem `json:"items"`
	TotalAmount string           `json:"total_amount"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

type OrderEventItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}
