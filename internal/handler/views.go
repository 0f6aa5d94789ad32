package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/storefront-api/internal/model"
)

type auditView struct {
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

func auditOf(m model.MasterData) auditView {
	return auditView{IsActive: m.IsActive, CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt}
}

type categoryView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	auditView
}

func toCategoryView(c model.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Description: c.Description, auditView: auditOf(c.MasterData)}
}

type supplierView struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Address     *string `json:"address"`
	PhoneNumber *string `json:"phone_number"`
	auditView
}

func toSupplierView(s model.Supplier) supplierView {
	return supplierView{ID: s.ID, Name: s.Name, Address: s.Address, PhoneNumber: s.PhoneNumber, auditView: auditOf(s.MasterData)}
}

type productView struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    *string         `json:"description"`
	Price          decimal.Decimal `json:"price"`
	UnitInStock    int             `json:"unit_in_stock"`
	Thumbnail      *string         `json:"thumbnail"`
	IsDiscontinued bool            `json:"is_discontinued"`
	CategoryID     *string         `json:"category_id"`
	CategoryName   *string         `json:"category_name"`
	SupplierID     *string         `json:"supplier_id"`
	SupplierName   *string         `json:"supplier_name"`
	auditView
}

func toProductView(p model.Product) productView {
	return productView{
		ID: p.ID, Name: p.Name, Description: p.Description, Price: p.Price, UnitInStock: p.UnitInStock,
		Thumbnail: p.Thumbnail, IsDiscontinued: p.IsDiscontinued,
		CategoryID: p.CategoryID, CategoryName: p.CategoryName,
		SupplierID: p.SupplierID, SupplierName: p.SupplierName,
		auditView: auditOf(p.MasterData),
	}
}

type orderDetailView struct {
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Discount    decimal.Decimal `json:"discount"`
	SubTotal    decimal.Decimal `json:"sub_total"`
}

type orderView struct {
	ID                  string            `json:"id"`
	OrderDate           time.Time         `json:"order_date"`
	ShippedAddress      string            `json:"shipped_address"`
	ExpectedShippedDate time.Time         `json:"expected_shipped_date"`
	ActualShippedDate   *time.Time        `json:"actual_shipped_date"`
	PhoneNumber         string            `json:"phone_number"`
	UserID              string            `json:"user_id"`
	UserName            string            `json:"user_name"`
	TotalAmount         decimal.Decimal   `json:"total_amount"`
	TotalItems          int               `json:"total_items"`
	Details             []orderDetailView `json:"details"`
	auditView
}

func toOrderView(o model.Order) orderView {
	v := orderView{
		ID: o.ID, OrderDate: o.OrderDate, ShippedAddress: o.ShippedAddress,
		ExpectedShippedDate: o.ExpectedShippedDate, ActualShippedDate: o.ActualShippedDate,
		PhoneNumber: o.PhoneNumber, UserID: o.UserID, UserName: o.UserName,
		TotalAmount: o.TotalAmount(), TotalItems: o.TotalItems(),
		Details:   make([]orderDetailView, 0, len(o.Details)),
		auditView: auditOf(o.MasterData),
	}
	for _, d := range o.Details {
		v.Details = append(v.Details, orderDetailView{
			ProductID: d.ProductID, ProductName: d.ProductName, Quantity: d.Quantity,
			Price: d.Price, Discount: d.Discount, SubTotal: d.SubTotal(),
		})
	}
	return v
}

type userView struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	DisplayName string     `json:"display_name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Address     *string    `json:"address,omitempty"`
	Avatar      *string    `json:"avatar,omitempty"`
	Roles       []string   `json:"roles"`
	IsActive    bool       `json:"is_active"`
}

func toUserView(u model.User) userView {
	roles := u.Roles
	if roles == nil {
		roles = []string{}
	}
	return userView{
		ID: u.ID, Username: u.Username, Email: u.Email, FirstName: u.FirstName, LastName: u.LastName,
		DisplayName: u.DisplayName, DateOfBirth: u.DateOfBirth, Address: u.Address, Avatar: u.Avatar,
		Roles: roles, IsActive: u.IsActive,
	}
}
