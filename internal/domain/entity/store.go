package entity

import (
	"fmt"

	"github.com/janssengh/ouvirtiba/internal/domain"
)

// Store emitente de la NFC-e.
type Store struct {
	ID           int64
	Name         string // razão social (xNome)
	TradeName    string
	CNPJ         string
	IE           string // inscrição estadual
	Address      string
	Number       string
	Complement   string
	Neighborhood string
	City         string
	CityCode     string // código IBGE del municipio (cMun)
	UF           string
	ZipCode      string
	Phone        string
}

// StoreContext identifica explícitamente la tienda y la serie de emisión de cada operación.
type StoreContext struct {
	StoreID int64
	Series  int
}

// NewStoreContext valida y construye el contexto.
func NewStoreContext(storeID int64, series int) (StoreContext, error) {
	if storeID <= 0 {
		return StoreContext{}, domain.ErrStoreRequired
	}
	if series < 0 || series > 999 {
		return StoreContext{}, fmt.Errorf("%w: serie %d fuera de rango", domain.ErrInvalidInput, series)
	}
	return StoreContext{StoreID: storeID, Series: series}, nil
}
