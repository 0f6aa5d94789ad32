package model

import "github.com/shopspring/decimal"

// Category is a row of `common_categories`.
type Category struct {
	ID          string  // common_categories.id
	Name        string  // common_categories.name
	Description *string // common_categories.description (nullable)
	MasterData
}

// Supplier is a row of `common_suppliers`.
type Supplier struct {
	ID          string  // common_suppliers.id
	Name        string  // common_suppliers.name
	Address     *string // common_suppliers.address (nullable)
	PhoneNumber *string // common_suppliers.phone_number (nullable)
	MasterData
}

// Product is a row of `common_products`. UnitInStock is only changed by
// product updates and by the order placement and cancellation workflows.
// CategoryID and SupplierID become nil when the referenced row is deleted.
type Product struct {
	ID             string          // common_products.id
	Name           string          // common_products.name
	Description    *string         // common_products.description (nullable)
	Price          decimal.Decimal // common_products.price
	UnitInStock    int             // common_products.unit_in_stock
	Thumbnail      *string         // common_products.thumbnail (nullable)
	IsDiscontinued bool            // common_products.is_discontinued
	CategoryID     *string         // common_products.category_id (nullable)
	SupplierID     *string         // common_products.supplier_id (nullable)
	MasterData

	CategoryName *string // joined, read-only
	SupplierName *string // joined, read-only
}
