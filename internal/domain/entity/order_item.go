package entity

import "github.com/shopspring/decimal"

// OrderItem línea de un pedido con precio, origen de los ítems de la NFC-e.
type OrderItem struct {
	OrderID      int64
	ProductID    int64
	ProductName  string
	Quantity     decimal.Decimal
	Price        decimal.Decimal
	Discount     decimal.Decimal
	SerialNumber string
	NCM          string
	CFOP         string
	CSOSN        string
}
