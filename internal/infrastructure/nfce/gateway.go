package nfce

import (
	"context"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// SEFAZGateway gateway real: autorización por NFeAutorizacao4 y consulta por NFeRetAutorizacao4.
type SEFAZGateway struct {
	Authorization *AuthorizationClient
	Receipt       *ReceiptClient
}

var _ Gateway = (*SEFAZGateway)(nil)

// NewSEFAZGateway arma los dos clientes SOAP con las mismas opciones de transporte.
func NewSEFAZGateway(auth TransportOptions, receipt ReceiptOptions) *SEFAZGateway {
	return &SEFAZGateway{
		Authorization: NewAuthorizationClient(auth),
		Receipt:       NewReceiptClient(receipt),
	}
}

// Transmit delega en el cliente de autorización.
func (g *SEFAZGateway) Transmit(ctx context.Context, signedXML []byte, bundle *nfce.CertificateBundle, env nfce.Environment) (*TransmitResult, error) {
	return g.Authorization.Transmit(ctx, signedXML, bundle, env)
}

// QueryReceipt delega en el cliente de consulta de recibo.
func (g *SEFAZGateway) QueryReceipt(ctx context.Context, receiptNumber string, bundle *nfce.CertificateBundle, env nfce.Environment) (*ReceiptResult, error) {
	return g.Receipt.QueryReceipt(ctx, receiptNumber, bundle, env)
}
