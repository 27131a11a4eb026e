package fiscal

import (
	"time"

	"github.com/janssengh/ouvirtiba/internal/application/dto"
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// Hora oficial de emisión (-03:00), la misma que usa el XML.
var brasilia = time.FixedZone("BRT", -3*60*60)

// ToDocumentResponse convierte la entidad (e ítems opcionales) al DTO.
func ToDocumentResponse(d *entity.FiscalDocument, items []*entity.FiscalDocumentItem) dto.FiscalDocumentResponse {
	resp := dto.FiscalDocumentResponse{
		ID:                 d.ID,
		StoreID:            d.StoreID,
		ClientID:           d.ClientID,
		OrderID:            d.OrderID,
		Series:             d.Series,
		Number:             d.Number,
		IssueDate:          d.IssueDate.In(brasilia).Format(time.RFC3339),
		AccessKey:          d.AccessKey,
		AccessKeyFormatted: nfce.FormatAccessKey(d.AccessKey),
		Status:             string(d.Status),
		PaymentCode:        d.PaymentCode,
		TotalValue:         d.TotalValue,
		Discount:           d.Discount,
		ReceiptNumber:      d.ReceiptNumber,
		ProtocolNumber:     d.ProtocolNumber,
		StatusCode:         d.StatusCode,
		StatusMessage:      d.StatusMessage,
		XMLPath:            d.XMLPath,
		Simulated:          d.Simulated,
	}
	for _, it := range items {
		resp.Items = append(resp.Items, dto.FiscalDocumentItemResponse{
			Position:     it.Position,
			ProductID:    it.ProductID,
			ProductName:  it.ProductName,
			Quantity:     it.Quantity,
			UnitPrice:    it.UnitPrice,
			Discount:     it.Discount,
			TotalPrice:   it.TotalPrice,
			NCM:          it.NCM,
			CFOP:         it.CFOP,
			CSOSN:        it.CSOSN,
			SerialNumber: it.SerialNumber,
		})
	}
	return resp
}
