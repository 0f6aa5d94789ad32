package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a row of `common_orders`. It is created together with its
// details in a single transaction and removed, details included, when
// cancelled.
type Order struct {
	ID                  string     // common_orders.id
	OrderDate           time.Time  // common_orders.order_date
	ShippedAddress      string     // common_orders.shipped_address
	ExpectedShippedDate time.Time  // common_orders.expected_shipped_date
	ActualShippedDate   *time.Time // common_orders.actual_shipped_date (nullable)
	PhoneNumber         string     // common_orders.phone_number
	UserID              string     // common_orders.user_id
	MasterData

	UserName string        // joined from security_users.username
	Details  []OrderDetail // ordered by product name
}

// OrderDetail is a row of `common_order_details`, keyed by (order_id, product_id).
// Price is the product price captured when the order was placed.
type OrderDetail struct {
	OrderID   string          // common_order_details.order_id
	ProductID string          // common_order_details.product_id
	Quantity  int             // common_order_details.quantity
	Price     decimal.Decimal // common_order_details.price
	Discount  decimal.Decimal // common_order_details.discount (fraction 0..1)

	ProductName string // joined from common_products.name
}

// SubTotal returns quantity * price * (1 - discount).
func (d OrderDetail) SubTotal() decimal.Decimal {
	return d.Price.
		Mul(decimal.NewFromInt(int64(d.Quantity))).
		Mul(decimal.NewFromInt(1).Sub(d.Discount))
}

// TotalAmount sums the detail subtotals.
func (o Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, d := range o.Details {
		total = total.Add(d.SubTotal())
	}
	return total
}

// TotalItems sums the detail quantities.
func (o Order) TotalItems() int {
	n := 0
	for _, d := range o.Details {
		n += d.Quantity
	}
	return n
}
