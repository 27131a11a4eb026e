// Package nfce implementa la construcción del XML de la NFC-e 4.00, la transmisión SOAP 1.2
// a la SEFAZ (autorización y consulta de recibo), el gateway sandbox y el almacén de XML firmados.
package nfce

import (
	"github.com/janssengh/ouvirtiba/internal/domain/entity"
	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// DocumentBuildContext datos necesarios para construir el XML de una NFC-e.
type DocumentBuildContext struct {
	Document *entity.FiscalDocument
	Store    *entity.Store  // emitente
	Client   *entity.Client // nil o sin CPF/CNPJ = consumidor no identificado (sin <dest>)
	Items    []*entity.FiscalDocumentItem

	Environment    nfce.Environment
	QRCodeURL      string // infNFeSupl/qrCode
	VerProc        string
	AdditionalInfo string // infAdic/infCpl; vacío = texto por ambiente
}
