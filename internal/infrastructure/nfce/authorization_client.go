package nfce

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// ── Puerto (interfaz) ──────────────────────────────────────────────────────────

// TransmitResult respuesta de NFeAutorizacao4 (retEnviNFe).
type TransmitResult struct {
	Code          string // cStat
	Reason        string // xMotivo literal
	ReceiptNumber string // infRec/nRec, solo con cStat 103
	ReceivedAt    string // dhRecbto
	AppVersion    string // verAplic
	Environment   string // tpAmb devuelto
	Endpoint      string
	Raw           []byte
	Simulated     bool
}

// Accepted indica lote recibido (autorización pendiente de consulta de recibo).
func (r *TransmitResult) Accepted() bool {
	return r != nil && r.Code == nfce.StatusLotReceived && r.ReceiptNumber != ""
}

// Gateway puerto de salida hacia la SEFAZ: autorización asíncrona + consulta de recibo.
// La implementación real es SOAP con mTLS; SandboxGateway es la alternativa explícita.
type Gateway interface {
	Transmit(ctx context.Context, signedXML []byte, bundle *nfce.CertificateBundle, env nfce.Environment) (*TransmitResult, error)
	QueryReceipt(ctx context.Context, receiptNumber string, bundle *nfce.CertificateBundle, env nfce.Environment) (*ReceiptResult, error)
}

// ── Implementación SOAP ────────────────────────────────────────────────────────

// AuthorizationClient cliente del WS NFeAutorizacao4.
type AuthorizationClient struct {
	transport *soapTransport
	lotID     func() string
}

// NewAuthorizationClient timeout por defecto 30 s.
func NewAuthorizationClient(opts TransportOptions) *AuthorizationClient {
	return &AuthorizationClient{
		transport: newSOAPTransport("autorización", opts, nfce.AuthorizationURLs, 30*time.Second),
		lotID:     randomLotID,
	}
}

type retEnviNFe struct {
	TpAmb    string `xml:"tpAmb"`
	VerAplic string `xml:"verAplic"`
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	DhRecbto string `xml:"dhRecbto"`
	InfRec   struct {
		NRec string `xml:"nRec"`
		TMed string `xml:"tMed"`
	} `xml:"infRec"`
}

// Transmit envía el lote (una NFC-e, indSinc=0). cStat 103 es éxito con nRec;
// cualquier otro cStat es *nfce.RejectionError con el xMotivo literal.
// Sin respuesta de ningún candidato => *nfce.TransportError y resultado nil.
func (c *AuthorizationClient) Transmit(ctx context.Context, signedXML []byte, bundle *nfce.CertificateBundle, env nfce.Environment) (*TransmitResult, error) {
	if !env.Valid() {
		return nil, &nfce.ValidationError{Field: "environment", Reason: env.String()}
	}
	envelope, err := c.envelope(signedXML)
	if err != nil {
		return nil, err
	}

	body, endpoint, err := c.transport.post(ctx, env, bundle, envelope)
	if err != nil {
		return nil, err
	}
	return parseTransmitResponse(body, endpoint)
}

func (c *AuthorizationClient) envelope(signedXML []byte) ([]byte, error) {
	doc := etree.NewDocument()
	doc.ReadSettings.PreserveCData = true // qrCode va en CDATA
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return nil, &nfce.DocumentBuildError{Reason: "XML firmado ilegible", Err: err}
	}
	nfe := doc.Root()
	if nfe == nil || nfe.Tag != "NFe" {
		return nil, &nfce.DocumentBuildError{Reason: "el XML firmado no tiene raíz <NFe>"}
	}

	lot := etree.NewElement("enviNFe")
	lot.CreateAttr("xmlns", nfce.Namespace)
	lot.CreateAttr("versao", nfce.LayoutVersion)
	lot.CreateElement("idLote").SetText(c.lotID())
	lot.CreateElement("indSinc").SetText("0")
	lot.AddChild(nfe)

	return buildEnvelope(nfce.NamespaceWSAutorizacao, lot)
}

func parseTransmitResponse(body []byte, endpoint string) (*TransmitResult, error) {
	var ret retEnviNFe
	if err := decodeResult(body, "retEnviNFe", &ret); err != nil {
		return nil, err
	}
	res := &TransmitResult{
		Code:          strings.TrimSpace(ret.CStat),
		Reason:        strings.TrimSpace(ret.XMotivo),
		ReceiptNumber: strings.TrimSpace(ret.InfRec.NRec),
		ReceivedAt:    ret.DhRecbto,
		AppVersion:    ret.VerAplic,
		Environment:   ret.TpAmb,
		Endpoint:      endpoint,
		Raw:           body,
	}
	switch {
	case res.Code == "":
		return res, &nfce.ParseError{Reason: "retEnviNFe sin cStat"}
	case res.Code != nfce.StatusLotReceived:
		return res, &nfce.RejectionError{Code: res.Code, Reason: res.Reason}
	case res.ReceiptNumber == "":
		return res, &nfce.ParseError{Reason: "cStat 103 sin infRec/nRec"}
	}
	return res, nil
}

// randomLotID idLote numérico de 15 dígitos.
func randomLotID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1e15))
	if err != nil {
		return fmt.Sprintf("%015d", time.Now().UnixNano()%1e15)
	}
	return fmt.Sprintf("%015d", n.Int64())
}
