package entity

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/janssengh/ouvirtiba/internal/domain"
)

// FiscalStatus estado del documento fiscal en el pipeline NFC-e.
type FiscalStatus string

const (
	FiscalStatusDraft        FiscalStatus = "DRAFT"         // Numerado, chave asignada
	FiscalStatusXMLGenerated FiscalStatus = "XML_GENERATED" // XML base construido
	FiscalStatusSigned       FiscalStatus = "SIGNED"        // Firmado y persistido en disco
	FiscalStatusTransmitted  FiscalStatus = "TRANSMITTED"   // Lote recibido (cStat 103), nRec asignado
	FiscalStatusAuthorized   FiscalStatus = "AUTHORIZED"    // Autorizado (cStat 100), nProt asignado
	FiscalStatusRejected     FiscalStatus = "REJECTED"      // Rechazo definitivo de la SEFAZ
)

// transiciones permitidas: origen -> destinos.
var fiscalTransitions = map[FiscalStatus][]FiscalStatus{
	FiscalStatusDraft:        {FiscalStatusXMLGenerated},
	FiscalStatusXMLGenerated: {FiscalStatusSigned, FiscalStatusDraft},
	FiscalStatusSigned:       {FiscalStatusTransmitted, FiscalStatusSigned, FiscalStatusDraft},
	FiscalStatusTransmitted:  {FiscalStatusAuthorized, FiscalStatusRejected, FiscalStatusTransmitted},
	FiscalStatusRejected:     {FiscalStatusSigned},
}

// Valid indica si el estado es uno de los conocidos.
func (s FiscalStatus) Valid() bool {
	switch s {
	case FiscalStatusDraft, FiscalStatusXMLGenerated, FiscalStatusSigned,
		FiscalStatusTransmitted, FiscalStatusAuthorized, FiscalStatusRejected:
		return true
	}
	return false
}

// Final indica si la SEFAZ ya emitió veredicto.
func (s FiscalStatus) Final() bool {
	return s == FiscalStatusAuthorized || s == FiscalStatusRejected
}

// CanTransition informa si from -> to está permitido.
func CanTransition(from, to FiscalStatus) bool {
	for _, next := range fiscalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// FiscalDocument representa una NFC-e emitida por la tienda.
// AccessKey y Number no cambian una vez asignados.
type FiscalDocument struct {
	ID             string
	StoreID        int64
	ClientID       int64
	OrderID        *int64
	Series         int
	Number         int64
	IssueDate      time.Time
	AccessKey      string
	ControlCode    string // cNF, 8 dígitos
	EmissionType   int    // tpEmis (1 = normal)
	PaymentCode    string // tPag
	Status         FiscalStatus
	ReceiptNumber  string // nRec
	ProtocolNumber string // nProt
	StatusCode     string // último cStat recibido
	StatusMessage  string // último xMotivo recibido
	XMLPath        string
	TotalValue     decimal.Decimal
	Discount       decimal.Decimal
	Simulated      bool // respuestas del gateway sandbox
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TransitionTo cambia el estado si la transición es válida.
func (d *FiscalDocument) TransitionTo(to FiscalStatus) error {
	if !CanTransition(d.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, d.Status, to)
	}
	d.Status = to
	return nil
}

// FiscalDocumentItem línea de la NFC-e. Inmutable después de creada.
type FiscalDocumentItem struct {
	ID           string
	DocumentID   string
	Position     int // nItem, desde 1
	ProductID    int64
	ProductName  string
	Quantity     decimal.Decimal
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
	Discount     decimal.Decimal
	NCM          string
	CFOP         string
	CSOSN        string
	SerialNumber string
}

// FiscalDocumentFilter filtros para el listado.
type FiscalDocumentFilter struct {
	Status FiscalStatus
	Limit  int
	Offset int
}
