package nfce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/janssengh/ouvirtiba/pkg/nfce"
)

// ReceiptStatus veredicto de la consulta de recibo.
type ReceiptStatus string

const (
	ReceiptAuthorized ReceiptStatus = "AUTHORIZED"
	ReceiptRejected   ReceiptStatus = "REJECTED"
	ReceiptProcessing ReceiptStatus = "PROCESSING"
)

// ReceiptResult respuesta de NFeRetAutorizacao4 (retConsReciNFe + protNFe/infProt).
type ReceiptResult struct {
	Status         ReceiptStatus
	LotCode        string // cStat del lote (104/105)
	LotReason      string
	Code           string // cStat del infProt
	Reason         string // xMotivo del infProt, literal
	ProtocolNumber string
	AccessKey      string
	AuthorizedAt   string // dhRecbto del infProt
	Endpoint       string
	Raw            []byte
	Simulated      bool
	Cached         bool
}

// Final indica veredicto definitivo (no cambia al volver a consultar).
func (r *ReceiptResult) Final() bool {
	return r != nil && (r.Status == ReceiptAuthorized || r.Status == ReceiptRejected)
}

// ReceiptOptions opciones propias de la consulta de recibo.
type ReceiptOptions struct {
	TransportOptions
	// MinInterval separación mínima entre consultas (la SEFAZ responde 656 si se consulta demasiado).
	MinInterval time.Duration
	// CacheTTL vigencia de los veredictos definitivos en memoria.
	CacheTTL time.Duration
}

// ReceiptClient cliente del WS NFeRetAutorizacao4.
type ReceiptClient struct {
	transport *soapTransport
	limiter   *rate.Limiter
	verdicts  *cache.Cache
}

// NewReceiptClient timeout por defecto 15 s, intervalo mínimo 2 s.
func NewReceiptClient(opts ReceiptOptions) *ReceiptClient {
	interval := opts.MinInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ReceiptClient{
		transport: newSOAPTransport("consulta de recibo", opts.TransportOptions, nfce.ReceiptURLs, 15*time.Second),
		limiter:   rate.NewLimiter(rate.Every(interval), 1),
		verdicts:  cache.New(ttl, ttl/2),
	}
}

type retConsReciNFe struct {
	TpAmb    string `xml:"tpAmb"`
	VerAplic string `xml:"verAplic"`
	NRec     string `xml:"nRec"`
	CStat    string `xml:"cStat"`
	XMotivo  string `xml:"xMotivo"`
	ProtNFe  []struct {
		InfProt struct {
			ChNFe    string `xml:"chNFe"`
			DhRecbto string `xml:"dhRecbto"`
			NProt    string `xml:"nProt"`
			CStat    string `xml:"cStat"`
			XMotivo  string `xml:"xMotivo"`
		} `xml:"infProt"`
	} `xml:"protNFe"`
}

// QueryReceipt consulta el recibo. Lote 105 => ReceiptProcessing sin error;
// lote 104 => veredicto del infProt (100/150 autorizado, el resto rechazado).
// Otros cStat del lote son *nfce.RejectionError de la consulta, no del documento.
func (c *ReceiptClient) QueryReceipt(ctx context.Context, receiptNumber string, bundle *nfce.CertificateBundle, env nfce.Environment) (*ReceiptResult, error) {
	receiptNumber = strings.TrimSpace(receiptNumber)
	if receiptNumber == "" || !isNumeric(receiptNumber) {
		return nil, &nfce.ValidationError{Field: "nRec", Reason: "debe ser numérico y no vacío"}
	}
	if !env.Valid() {
		return nil, &nfce.ValidationError{Field: "environment", Reason: env.String()}
	}

	cacheKey := env.Code() + ":" + receiptNumber
	if v, ok := c.verdicts.Get(cacheKey); ok {
		res := *v.(*ReceiptResult)
		res.Cached = true
		return &res, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("nfce: consulta de recibo: %w", err)
	}

	envelope, err := receiptEnvelope(receiptNumber, env)
	if err != nil {
		return nil, err
	}
	body, endpoint, err := c.transport.post(ctx, env, bundle, envelope)
	if err != nil {
		return nil, err
	}

	res, err := parseReceiptResponse(body, endpoint)
	if err != nil {
		return res, err
	}
	if res.Final() {
		c.verdicts.Set(cacheKey, res, cache.DefaultExpiration)
	}
	return res, nil
}

func receiptEnvelope(receiptNumber string, env nfce.Environment) ([]byte, error) {
	cons := etree.NewElement("consReciNFe")
	cons.CreateAttr("xmlns", nfce.Namespace)
	cons.CreateAttr("versao", nfce.LayoutVersion)
	cons.CreateElement("tpAmb").SetText(env.Code())
	cons.CreateElement("nRec").SetText(receiptNumber)
	return buildEnvelope(nfce.NamespaceWSRetAutorizacao, cons)
}

func parseReceiptResponse(body []byte, endpoint string) (*ReceiptResult, error) {
	var ret retConsReciNFe
	if err := decodeResult(body, "retConsReciNFe", &ret); err != nil {
		return nil, err
	}
	res := &ReceiptResult{
		LotCode:   strings.TrimSpace(ret.CStat),
		LotReason: strings.TrimSpace(ret.XMotivo),
		Endpoint:  endpoint,
		Raw:       body,
	}

	switch res.LotCode {
	case "":
		return res, &nfce.ParseError{Reason: "retConsReciNFe sin cStat"}
	case nfce.StatusLotProcessing:
		res.Status = ReceiptProcessing
		res.Code, res.Reason = res.LotCode, res.LotReason
		return res, nil
	case nfce.StatusLotProcessed:
	default:
		return res, &nfce.RejectionError{Code: res.LotCode, Reason: res.LotReason}
	}

	if len(ret.ProtNFe) == 0 {
		return res, &nfce.ParseError{Reason: "lote procesado sin protNFe"}
	}
	prot := ret.ProtNFe[0].InfProt
	res.Code = strings.TrimSpace(prot.CStat)
	res.Reason = strings.TrimSpace(prot.XMotivo)
	res.AccessKey = strings.TrimSpace(prot.ChNFe)
	res.AuthorizedAt = prot.DhRecbto
	res.ProtocolNumber = strings.TrimSpace(prot.NProt)

	switch res.Code {
	case "":
		return res, &nfce.ParseError{Reason: "infProt sin cStat"}
	case nfce.StatusAuthorized, nfce.StatusAuthorizedLate:
		if res.ProtocolNumber == "" {
			return res, &nfce.ParseError{Reason: "autorizado sin nProt"}
		}
		res.Status = ReceiptAuthorized
	default:
		res.Status = ReceiptRejected
	}
	return res, nil
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
