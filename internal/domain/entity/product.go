package entity

import "github.com/shopspring/decimal"

// Product producto vendido; la clasificación fiscal puede venir vacía y se completa con los valores por defecto.
type Product struct {
	ID      int64
	StoreID int64
	Name    string
	Price   decimal.Decimal
	NCM     string
	CFOP    string
	CSOSN   string
}
