package nfce

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/janssengh/ouvirtiba/internal/domain/entity"
)

// ErrInvalidDocument agrupa errores de coherencia del documento fiscal.
var ErrInvalidDocument = errors.New("documento fiscal inválido")

// ItemTotal total de la línea: cantidad × unitario − descuento, a 2 decimales.
func ItemTotal(quantity, unitPrice, discount decimal.Decimal) decimal.Decimal {
	return quantity.Mul(unitPrice).Sub(discount).Round(2)
}

// SumItems suma los totales de línea.
func SumItems(items []*entity.FiscalDocumentItem) decimal.Decimal {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.TotalPrice)
	}
	return sum.Round(2)
}

// ValidateFiscalDocument comprueba que cada línea tenga clasificación y total coherente,
// y que el total del documento sea la suma de los ítems menos el descuento de cabecera.
// Un documento sin ítems no es error aquí: lo decide quien lo crea.
func ValidateFiscalDocument(doc *entity.FiscalDocument, items []*entity.FiscalDocumentItem) error {
	if doc == nil {
		return fmt.Errorf("%w: documento nulo", ErrInvalidDocument)
	}
	var errs []error

	for _, it := range items {
		if it.NCM == "" || it.CFOP == "" || it.CSOSN == "" {
			errs = append(errs, fmt.Errorf("ítem %d (%s): clasificación fiscal incompleta (NCM/CFOP/CSOSN)", it.Position, it.ProductName))
		}
		if !it.Quantity.IsPositive() {
			errs = append(errs, fmt.Errorf("ítem %d (%s): cantidad debe ser mayor que cero", it.Position, it.ProductName))
		}
		if expected := ItemTotal(it.Quantity, it.UnitPrice, it.Discount); !it.TotalPrice.Equal(expected) {
			errs = append(errs, fmt.Errorf("ítem %d (%s): total (%s) no coincide con cantidad × unitario − descuento (%s)",
				it.Position, it.ProductName, it.TotalPrice.StringFixed(2), expected.StringFixed(2)))
		}
	}

	if doc.Discount.IsNegative() {
		errs = append(errs, fmt.Errorf("descuento de cabecera negativo (%s)", doc.Discount.StringFixed(2)))
	}
	expected := SumItems(items).Sub(doc.Discount).Round(2)
	if !doc.TotalValue.Equal(expected) {
		errs = append(errs, fmt.Errorf("total (%s) no coincide con la suma de ítems menos descuento (%s)",
			doc.TotalValue.StringFixed(2), expected.StringFixed(2)))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrInvalidDocument}, errs...)...)
	}
	return nil
}
